package metrics

import (
	"context"
	"math/big"
	"sync"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"cdpledger/core/events"
	"cdpledger/observability"
)

// LedgerMetrics tracks protocol activity derived from ledger events. Amounts
// are reported in whole tokens.
type LedgerMetrics struct {
	troveOps        *prometheus.CounterVec
	fees            *prometheus.CounterVec
	redeemed        prometheus.Counter
	collRedeemed    prometheus.Counter
	liquidations    prometheus.Counter
	baseRate        prometheus.Gauge
	surplusClaimed  prometheus.Counter
	rewardsNotified *prometheus.CounterVec
	rewardsPaid     *prometheus.CounterVec
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

// Ledger returns the lazily-initialised ledger metrics registry.
func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			troveOps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "cdp_trove_operations_total",
				Help: "Trove state changes segmented by operation.",
			}, []string{"operation"}),
			fees: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "cdp_fees_total",
				Help: "Fees charged segmented by kind.",
			}, []string{"kind"}),
			redeemed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "cdp_redeemed_debt_total",
				Help: "Debt tokens redeemed against troves.",
			}),
			collRedeemed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "cdp_redeemed_collateral_total",
				Help: "Collateral sent to redeemers net of fees.",
			}),
			liquidations: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "cdp_liquidations_total",
				Help: "Troves closed by liquidation.",
			}),
			baseRate: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "cdp_base_rate",
				Help: "Last committed base rate as a fraction.",
			}),
			surplusClaimed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "cdp_surplus_claimed_total",
				Help: "Collateral claimed from the surplus vault.",
			}),
			rewardsNotified: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "cdp_rewards_notified_total",
				Help: "Reward amounts added to the streamer segmented by token.",
			}, []string{"token"}),
			rewardsPaid: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "cdp_rewards_paid_total",
				Help: "Rewards paid to stakers segmented by token.",
			}, []string{"token"}),
		}
		prometheus.MustRegister(
			ledgerRegistry.troveOps,
			ledgerRegistry.fees,
			ledgerRegistry.redeemed,
			ledgerRegistry.collRedeemed,
			ledgerRegistry.liquidations,
			ledgerRegistry.baseRate,
			ledgerRegistry.surplusClaimed,
			ledgerRegistry.rewardsNotified,
			ledgerRegistry.rewardsPaid,
		)
	})
	return ledgerRegistry
}

func units(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v.ToBig()), big.NewFloat(1e18)).Float64()
	return f
}

// Observe folds a single event into the metrics.
func (m *LedgerMetrics) Observe(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	switch e := evt.(type) {
	case events.TroveUpdated:
		operation := e.Operation
		if operation == "" {
			operation = "unknown"
		}
		m.troveOps.WithLabelValues(operation).Inc()
	case events.BorrowingFeePaid:
		m.fees.WithLabelValues("borrowing").Add(units(e.Fee))
	case events.Redemption:
		m.fees.WithLabelValues("redemption").Add(units(e.Fee))
		m.redeemed.Add(units(e.Actual))
		m.collRedeemed.Add(units(e.CollSent))
	case events.BaseRateUpdated:
		m.baseRate.Set(units(e.BaseRate))
	case events.TroveLiquidated:
		m.liquidations.Inc()
	case events.CollateralClaimed:
		m.surplusClaimed.Add(units(e.Amount))
	case events.RewardAdded:
		m.rewardsNotified.WithLabelValues(e.Token).Add(units(e.Amount))
	case events.RewardPaid:
		m.rewardsPaid.WithLabelValues(e.Token).Add(units(e.Amount))
	}
}

// Observer is an events.Emitter feeding the ledger and event-count metrics
// and the OpenTelemetry ledger instruments.
type Observer struct {
	ledger      *LedgerMetrics
	instruments *Instruments
}

// NewObserver binds the process-wide registries and the global meter
// provider. Call it after telemetry has been initialised.
func NewObserver() *Observer {
	return NewObserverWithMeter(otel.GetMeterProvider())
}

// NewObserverWithMeter is NewObserver with an explicit meter provider.
func NewObserverWithMeter(provider metric.MeterProvider) *Observer {
	return &Observer{ledger: Ledger(), instruments: NewInstruments(provider)}
}

// Emit implements events.Emitter.
func (o *Observer) Emit(evt events.Event) {
	if o == nil || evt == nil {
		return
	}
	observability.Events().RecordEvent(evt.EventType())
	o.ledger.Observe(evt)
	o.instruments.Record(context.Background(), evt)
}
