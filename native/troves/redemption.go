package troves

import (
	"fmt"

	"github.com/holiman/uint256"

	"cdpledger/core/events"
	"cdpledger/crypto"
	nativecommon "cdpledger/native/common"
)

// RedemptionRequest carries the redeemer's parameters. PartialNICR is the
// nominal ratio the caller expects the partially redeemed trove to land at;
// zero disables the check. MaxIterations bounds the troves visited; zero
// means unlimited.
type RedemptionRequest struct {
	Redeemer         crypto.Address
	Amount           *uint256.Int
	FirstHint        crypto.Address
	UpperPartialHint crypto.Address
	LowerPartialHint crypto.Address
	PartialNICR      *uint256.Int
	MaxFeePercentage *uint256.Int
	MaxIterations    uint64
}

// RedemptionResult summarises an executed redemption.
type RedemptionResult struct {
	Attempted *uint256.Int
	Redeemed  *uint256.Int
	CollDrawn *uint256.Int
	Fee       *uint256.Int
	CollSent  *uint256.Int
	BaseRate  *uint256.Int
	Closed    []crypto.Address
	Partial   crypto.Address
}

type redemptionLot struct {
	owner   crypto.Address
	debtLot *uint256.Int
	collLot *uint256.Int
	newColl *uint256.Int
	newDebt *uint256.Int
	full    bool
	// partial troves only
	newNICR *uint256.Int
	prev    crypto.Address
	next    crypto.Address
}

type redemptionPlan struct {
	lots      []redemptionLot
	redeemed  *uint256.Int
	collDrawn *uint256.Int
}

// Redeem exchanges debt tokens for collateral at face value against the
// riskiest troves at or above MCR. Every check runs before the first mutation.
func (m *Manager) Redeem(req RedemptionRequest) (*RedemptionResult, error) {
	if m == nil || m.store == nil {
		return nil, ErrNilState
	}
	if err := nativecommon.Guard(m.pauses, moduleName); err != nil {
		return nil, err
	}
	if req.MaxFeePercentage == nil || req.MaxFeePercentage.Lt(m.params.RedemptionFeeFloor) || req.MaxFeePercentage.Gt(DecimalPrecision) {
		return nil, ErrInvalidMaxFee
	}
	now := m.Now()
	if now < m.deployedAt+m.params.BootstrapPeriod {
		return nil, ErrBootstrapPeriod
	}
	price, err := m.FetchPrice()
	if err != nil {
		return nil, err
	}
	if m.store.TCR(price).Lt(m.params.RedemptionDisableTCR) {
		return nil, ErrRedemptionsDisabled
	}
	if req.Amount == nil || req.Amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	if m.bank.BalanceOf(debtToken, req.Redeemer).Lt(req.Amount) {
		return nil, ErrInsufficientBalance
	}

	plan := m.planRedemption(req, price)
	if plan.collDrawn.IsZero() {
		return nil, ErrUnableToRedeem
	}

	newBaseRate := m.baseRate.RedemptionBaseRate(m.params, now, plan.collDrawn, m.store.EntireSystemColl())
	fee := FeeFor(plan.collDrawn, RedemptionRate(m.params, newBaseRate))
	if !fee.Lt(plan.collDrawn) {
		return nil, ErrFeeExceedsCollateral
	}
	if FeePercentage(fee, plan.collDrawn).Gt(req.MaxFeePercentage) {
		return nil, ErrFeeExceedsMax
	}
	if err := m.CheckFeeDistribution(m.accounts.TroveManager, collToken, fee); err != nil {
		return nil, err
	}
	return m.commitRedemption(req, plan, newBaseRate, fee, now)
}

func (m *Manager) isValidFirstRedemptionHint(hint crypto.Address, price *uint256.Int) bool {
	if hint.IsZero() || !m.sorted.Contains(hint) || m.store.CurrentICR(hint, price).Lt(m.params.MCR) {
		return false
	}
	next := m.sorted.Next(hint)
	return next.IsZero() || m.store.CurrentICR(next, price).Lt(m.params.MCR)
}

// planRedemption walks the index from the riskiest eligible trove towards
// the head without mutating anything.
func (m *Manager) planRedemption(req RedemptionRequest, price *uint256.Int) *redemptionPlan {
	plan := &redemptionPlan{redeemed: zero(), collDrawn: zero()}
	remaining := clone(req.Amount)

	current := req.FirstHint
	if !m.isValidFirstRedemptionHint(current, price) {
		current = m.sorted.Last()
		for !current.IsZero() && m.store.CurrentICR(current, price).Lt(m.params.MCR) {
			current = m.sorted.Prev(current)
		}
	}

	skip := make(map[crypto.Address]bool)
	var iterations uint64
	for !current.IsZero() && !remaining.IsZero() {
		if req.MaxIterations > 0 && iterations >= req.MaxIterations {
			break
		}
		iterations++
		next := m.sorted.Prev(current)
		lot, ok := m.planLot(current, remaining, price, req, skip)
		if !ok {
			break
		}
		// the last active trove is never closed by redemption
		if lot.full && uint64(len(skip))+1 >= m.store.OwnersCount() {
			break
		}
		plan.lots = append(plan.lots, lot)
		remaining.Sub(remaining, lot.debtLot)
		plan.redeemed.Add(plan.redeemed, lot.debtLot)
		plan.collDrawn.Add(plan.collDrawn, lot.collLot)
		if !lot.full {
			break
		}
		skip[current] = true
		current = next
	}
	return plan
}

// planLot sizes the redemption against one trove. It reports false when a
// partial redemption has to be cancelled.
func (m *Manager) planLot(owner crypto.Address, remaining, price *uint256.Int, req RedemptionRequest, skip map[crypto.Address]bool) (redemptionLot, bool) {
	coll, debt := m.store.EntireDebtAndColl(owner)
	netDebt := saturatingSub(debt, m.params.GasCompensation)
	debtLot := minOf(remaining, netDebt)
	collLot := mulDiv(debtLot, DecimalPrecision, price)
	if collLot.Gt(coll) {
		return redemptionLot{}, false
	}
	lot := redemptionLot{
		owner:   owner,
		debtLot: debtLot,
		collLot: collLot,
		newColl: new(uint256.Int).Sub(coll, collLot),
		newDebt: new(uint256.Int).Sub(debt, debtLot),
	}
	if lot.newDebt.Eq(m.params.GasCompensation) {
		lot.full = true
		return lot, true
	}

	lot.newNICR = ComputeNominalCR(lot.newColl, lot.newDebt)
	if req.PartialNICR != nil && !req.PartialNICR.IsZero() && !lot.newNICR.Eq(req.PartialNICR) {
		return redemptionLot{}, false
	}
	if saturatingSub(lot.newDebt, m.params.GasCompensation).Lt(m.params.MinNetDebt) {
		return redemptionLot{}, false
	}
	exclude := make(map[crypto.Address]bool, len(skip)+1)
	for id := range skip {
		exclude[id] = true
	}
	exclude[owner] = true
	prev, next, err := m.sorted.FindInsertPositionExcluding(lot.newNICR, req.UpperPartialHint, req.LowerPartialHint, exclude)
	if err != nil {
		return redemptionLot{}, false
	}
	lot.prev, lot.next = prev, next
	return lot, true
}

func (m *Manager) commitRedemption(req RedemptionRequest, plan *redemptionPlan, newBaseRate, fee *uint256.Int, now uint64) (*RedemptionResult, error) {
	result := &RedemptionResult{
		Attempted: clone(req.Amount),
		Redeemed:  clone(plan.redeemed),
		CollDrawn: clone(plan.collDrawn),
		Fee:       clone(fee),
		CollSent:  new(uint256.Int).Sub(plan.collDrawn, fee),
		BaseRate:  clone(newBaseRate),
	}
	for _, lot := range plan.lots {
		m.store.ApplyPendingRewards(lot.owner)
		if lot.full {
			if err := m.redeemCloseTrove(lot); err != nil {
				return nil, err
			}
			result.Closed = append(result.Closed, lot.owner)
			continue
		}
		if _, err := m.store.Adjust(lot.owner, lot.newColl, lot.newDebt); err != nil {
			return nil, err
		}
		if err := m.sorted.ReInsert(lot.owner, lot.newNICR, lot.prev, lot.next); err != nil {
			return nil, fmt.Errorf("troves: reinsert partially redeemed trove: %w", err)
		}
		result.Partial = lot.owner
		m.EmitTroveUpdated(lot.owner, events.TroveOperationRedeem)
	}

	m.CommitBaseRate(newBaseRate, now)

	if err := m.bank.Burn(debtToken, req.Redeemer, plan.redeemed); err != nil {
		return nil, err
	}
	if !fee.IsZero() {
		if err := m.bank.Transfer(collToken, m.accounts.ActivePool, m.accounts.TroveManager, fee); err != nil {
			return nil, err
		}
		if err := m.DistributeFee(m.accounts.TroveManager, collToken, fee); err != nil {
			return nil, err
		}
	}
	if err := m.bank.Transfer(collToken, m.accounts.ActivePool, req.Redeemer, result.CollSent); err != nil {
		return nil, err
	}
	m.Emit(events.Redemption{
		Redeemer:  req.Redeemer,
		Attempted: result.Attempted,
		Actual:    result.Redeemed,
		CollSent:  result.CollSent,
		Fee:       result.Fee,
	})
	return result, nil
}

// redeemCloseTrove closes a fully redeemed trove, burns its gas compensation
// and escrows the residual collateral for its owner.
func (m *Manager) redeemCloseTrove(lot redemptionLot) error {
	if err := m.store.Close(lot.owner, StatusClosedByRedemption); err != nil {
		return err
	}
	if err := m.sorted.Remove(lot.owner); err != nil {
		return err
	}
	if err := m.bank.Burn(debtToken, m.accounts.GasPool, m.params.GasCompensation); err != nil {
		return err
	}
	if !lot.newColl.IsZero() {
		if err := m.bank.Transfer(collToken, m.accounts.ActivePool, m.accounts.SurplusPool, lot.newColl); err != nil {
			return err
		}
		if m.surplus != nil {
			if err := m.surplus.Credit(m.accounts.TroveManager, lot.owner, lot.newColl); err != nil {
				return err
			}
		}
	}
	m.EmitTroveUpdated(lot.owner, events.TroveOperationRedeem)
	return nil
}
