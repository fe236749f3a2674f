package troves

import (
	"github.com/holiman/uint256"

	"cdpledger/crypto"
)

// RedemptionHints simulates a redemption of amount at price and returns the
// first trove to redeem from, the NICR the final partially redeemed trove
// would reach (zero when there is none) and the amount that can actually be
// redeemed without leaving a trove below the minimum net debt or closing the
// last active trove.
func (m *Manager) RedemptionHints(amount, price *uint256.Int, maxIterations uint64) (first crypto.Address, partialNICR, truncated *uint256.Int) {
	partialNICR = zero()
	if amount == nil || amount.IsZero() || price == nil || price.IsZero() {
		return crypto.ZeroAddress, partialNICR, zero()
	}
	remaining := clone(amount)
	current := m.sorted.Last()
	for !current.IsZero() && m.store.CurrentICR(current, price).Lt(m.params.MCR) {
		current = m.sorted.Prev(current)
	}
	first = current

	var iterations, closed uint64
	for !current.IsZero() && !remaining.IsZero() {
		if maxIterations > 0 && iterations >= maxIterations {
			break
		}
		iterations++
		coll, debt := m.store.EntireDebtAndColl(current)
		netDebt := saturatingSub(debt, m.params.GasCompensation)
		if netDebt.Gt(remaining) {
			if netDebt.Gt(m.params.MinNetDebt) {
				maxRedeemable := minOf(remaining, new(uint256.Int).Sub(netDebt, m.params.MinNetDebt))
				newColl := saturatingSub(coll, mulDiv(maxRedeemable, DecimalPrecision, price))
				newDebt := new(uint256.Int).Sub(netDebt, maxRedeemable)
				newDebt.Add(newDebt, m.params.GasCompensation)
				partialNICR = ComputeNominalCR(newColl, newDebt)
				remaining.Sub(remaining, maxRedeemable)
			}
			break
		}
		if closed+1 >= m.store.OwnersCount() {
			break
		}
		closed++
		remaining.Sub(remaining, netDebt)
		current = m.sorted.Prev(current)
	}
	return first, partialNICR, new(uint256.Int).Sub(amount, remaining)
}

// InsertHints returns the exact neighbors a trove with the given collateral
// and composite debt would have. It scans from the tail without a search
// limit and is meant to run off the critical path.
func (m *Manager) InsertHints(coll, debt *uint256.Int) (prev, next crypto.Address) {
	return m.InsertHintsForNICR(ComputeNominalCR(coll, debt))
}

// InsertHintsForNICR is InsertHints for a precomputed nominal ratio.
func (m *Manager) InsertHintsForNICR(nicr *uint256.Int) (prev, next crypto.Address) {
	next = crypto.ZeroAddress
	prev = m.sorted.Last()
	for !prev.IsZero() && nicr.Gt(m.store.NominalICR(prev)) {
		next = prev
		prev = m.sorted.Prev(prev)
	}
	return prev, next
}
