package troves

import (
	"github.com/holiman/uint256"

	"cdpledger/core/events"
	"cdpledger/crypto"
	nativecommon "cdpledger/native/common"
)

// LiquidationResult aggregates a liquidation batch.
type LiquidationResult struct {
	Liquidated          []crypto.Address
	DebtRedistributed   *uint256.Int
	CollRedistributed   *uint256.Int
	CollGasCompensation *uint256.Int
	DebtGasCompensation *uint256.Int
}

// Liquidate closes a single trove whose ICR is below MCR.
func (m *Manager) Liquidate(liquidator, owner crypto.Address) (*LiquidationResult, error) {
	return m.BatchLiquidate(liquidator, []crypto.Address{owner})
}

// BatchLiquidate closes every listed trove whose ICR is below MCR and spreads
// their debt and collateral over the remaining troves pro rata to stake.
// Ratios are evaluated before any redistribution of the batch takes effect.
// The liquidator receives coll/LiquidationCollDivisor of each trove and its
// gas compensation.
func (m *Manager) BatchLiquidate(liquidator crypto.Address, owners []crypto.Address) (*LiquidationResult, error) {
	if m == nil || m.store == nil {
		return nil, ErrNilState
	}
	if err := nativecommon.Guard(m.pauses, moduleName); err != nil {
		return nil, err
	}
	price, err := m.FetchPrice()
	if err != nil {
		return nil, err
	}

	seen := make(map[crypto.Address]bool, len(owners))
	var targets []crypto.Address
	for _, owner := range owners {
		if seen[owner] || !m.store.IsActive(owner) {
			continue
		}
		seen[owner] = true
		if m.store.CurrentICR(owner, price).Lt(m.params.MCR) {
			targets = append(targets, owner)
		}
	}
	if len(targets) == 0 {
		return nil, ErrNotLiquidatable
	}
	if uint64(len(targets)) >= m.store.OwnersCount() {
		return nil, ErrOnlyOneTrove
	}

	result := &LiquidationResult{
		DebtRedistributed:   zero(),
		CollRedistributed:   zero(),
		CollGasCompensation: zero(),
		DebtGasCompensation: zero(),
	}
	divisor := uint256.NewInt(m.params.LiquidationCollDivisor)
	for _, owner := range targets {
		m.store.ApplyPendingRewards(owner)
		trove := m.store.Get(owner)
		collGas := new(uint256.Int).Div(trove.Coll, divisor)
		collToRedistribute := new(uint256.Int).Sub(trove.Coll, collGas)

		if err := m.store.Close(owner, StatusClosedByLiquidation); err != nil {
			return nil, err
		}
		if err := m.sorted.Remove(owner); err != nil {
			return nil, err
		}
		result.Liquidated = append(result.Liquidated, owner)
		result.DebtRedistributed.Add(result.DebtRedistributed, trove.Debt)
		result.CollRedistributed.Add(result.CollRedistributed, collToRedistribute)
		result.CollGasCompensation.Add(result.CollGasCompensation, collGas)
		result.DebtGasCompensation.Add(result.DebtGasCompensation, m.params.GasCompensation)

		m.Emit(events.TroveLiquidated{
			Owner:               owner,
			Liquidator:          liquidator,
			Debt:                clone(trove.Debt),
			Coll:                clone(trove.Coll),
			CollGasCompensation: collGas,
			DebtGasCompensation: clone(m.params.GasCompensation),
		})
		m.EmitTroveUpdated(owner, events.TroveOperationLiquidate)
	}

	m.store.redistribute(result.DebtRedistributed, result.CollRedistributed)
	m.store.updateSystemSnapshots()

	if err := m.bank.Transfer(collToken, m.accounts.ActivePool, liquidator, result.CollGasCompensation); err != nil {
		return nil, err
	}
	if err := m.bank.Transfer(debtToken, m.accounts.GasPool, liquidator, result.DebtGasCompensation); err != nil {
		return nil, err
	}

	totals := m.store.Totals()
	m.Emit(events.LiquidationRewardsUpdated{
		LColl:                   totals.LColl,
		LDebt:                   totals.LDebt,
		TotalStakesSnapshot:     totals.TotalStakesSnapshot,
		TotalCollateralSnapshot: totals.TotalCollateralSnapshot,
	})
	return result, nil
}
