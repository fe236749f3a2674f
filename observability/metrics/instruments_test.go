package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"cdpledger/core/events"
	"cdpledger/crypto"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Aggregation)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestObserverRecordsMeterInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	obs := NewObserverWithMeter(provider)
	owner := crypto.ModuleAddress("owner")

	obs.Emit(events.Redemption{Redeemer: owner, Attempted: tokens(100), Actual: tokens(90), CollSent: tokens(1), Fee: tokens(2)})
	obs.Emit(events.BorrowingFeePaid{Owner: owner, Fee: tokens(10)})
	obs.Emit(events.TroveLiquidated{Owner: owner})
	obs.Emit(events.TroveLiquidated{Owner: owner})

	data := collect(t, reader)
	redemptions, ok := data["cdp.redemptions"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, redemptions.DataPoints, 1)
	require.Equal(t, int64(1), redemptions.DataPoints[0].Value)

	liquidations, ok := data["cdp.liquidations"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Equal(t, int64(2), liquidations.DataPoints[0].Value)

	redeemed, ok := data["cdp.redeemed_debt"].(metricdata.Sum[float64])
	require.True(t, ok)
	require.InDelta(t, 90, redeemed.DataPoints[0].Value, 1e-9)

	fees, ok := data["cdp.fees"].(metricdata.Sum[float64])
	require.True(t, ok)
	byKind := make(map[string]float64)
	for _, dp := range fees.DataPoints {
		kind, found := dp.Attributes.Value("kind")
		require.True(t, found)
		byKind[kind.AsString()] = dp.Value
	}
	require.InDelta(t, 2, byKind["redemption"], 1e-9)
	require.InDelta(t, 10, byKind["borrowing"], 1e-9)
}

func TestInstrumentsToleratesNil(t *testing.T) {
	var inst *Instruments
	inst.Record(context.Background(), events.TroveLiquidated{})
	NewInstruments(nil).Record(context.Background(), events.TroveLiquidated{})
}
