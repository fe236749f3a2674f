package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"cdpledger/core/events"
)

const meterName = "cdpledger/ledger"

// Instruments mirrors the headline ledger counters onto an OpenTelemetry
// meter so they reach the OTLP exporter alongside traces.
type Instruments struct {
	redemptions  metric.Int64Counter
	liquidations metric.Int64Counter
	redeemed     metric.Float64Counter
	fees         metric.Float64Counter
}

// NewInstruments creates the ledger instruments on provider. Instruments that
// cannot be created fall back to no-ops.
func NewInstruments(provider metric.MeterProvider) *Instruments {
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	meter := provider.Meter(meterName)
	fallback := noop.NewMeterProvider().Meter(meterName)

	inst := &Instruments{}
	var err error
	if inst.redemptions, err = meter.Int64Counter("cdp.redemptions", metric.WithDescription("Successful redemptions.")); err != nil {
		inst.redemptions, _ = fallback.Int64Counter("cdp.redemptions")
	}
	if inst.liquidations, err = meter.Int64Counter("cdp.liquidations", metric.WithDescription("Troves closed by liquidation.")); err != nil {
		inst.liquidations, _ = fallback.Int64Counter("cdp.liquidations")
	}
	if inst.redeemed, err = meter.Float64Counter("cdp.redeemed_debt", metric.WithDescription("Debt tokens redeemed, in whole tokens.")); err != nil {
		inst.redeemed, _ = fallback.Float64Counter("cdp.redeemed_debt")
	}
	if inst.fees, err = meter.Float64Counter("cdp.fees", metric.WithDescription("Fees charged, in whole tokens.")); err != nil {
		inst.fees, _ = fallback.Float64Counter("cdp.fees")
	}
	return inst
}

// Record folds evt into the instruments.
func (i *Instruments) Record(ctx context.Context, evt events.Event) {
	if i == nil || evt == nil {
		return
	}
	switch e := evt.(type) {
	case events.Redemption:
		i.redemptions.Add(ctx, 1)
		i.redeemed.Add(ctx, units(e.Actual))
		i.fees.Add(ctx, units(e.Fee), metric.WithAttributes(attribute.String("kind", "redemption")))
	case events.BorrowingFeePaid:
		i.fees.Add(ctx, units(e.Fee), metric.WithAttributes(attribute.String("kind", "borrowing")))
	case events.TroveLiquidated:
		i.liquidations.Add(ctx, 1)
	}
}
