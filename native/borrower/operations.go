package borrower

import (
	"github.com/holiman/uint256"

	"cdpledger/core/events"
	"cdpledger/crypto"
	"cdpledger/native/bank"
	nativecommon "cdpledger/native/common"
	"cdpledger/native/troves"
)

const moduleName = "borrower"

// SurplusClaimer pays escrowed collateral back to trove owners.
type SurplusClaimer interface {
	Balance(owner crypto.Address) *uint256.Int
	Claim(caller, owner crypto.Address) (*uint256.Int, error)
}

// Operations is the borrower-facing facade. Each mutating call names the
// acting account and the principal whose trove is affected; tokens move
// to and from the actor while trove state is recorded for the principal.
type Operations struct {
	manager  *troves.Manager
	registry *Registry
	surplus  SurplusClaimer
	pauses   nativecommon.PauseView
}

// NewOperations binds the facade to the trove manager and delegation registry.
func NewOperations(manager *troves.Manager, registry *Registry, surplus SurplusClaimer) *Operations {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Operations{manager: manager, registry: registry, surplus: surplus}
}

func (o *Operations) SetPauses(p nativecommon.PauseView) { o.pauses = p }

// Registry exposes the delegation registry.
func (o *Operations) Registry() *Registry { return o.registry }

// Authorize reports whether actor may act for principal.
func (o *Operations) Authorize(actor, principal crypto.Address) error {
	if actor == principal || o.registry.IsApproved(principal, actor) {
		return nil
	}
	return ErrDelegateNotApproved
}

// OpenTroveRequest describes a new trove.
type OpenTroveRequest struct {
	Actor            crypto.Address
	Principal        crypto.Address
	Coll             *uint256.Int
	DebtAmount       *uint256.Int
	MaxFeePercentage *uint256.Int
	UpperHint        crypto.Address
	LowerHint        crypto.Address
}

// AdjustTroveRequest is the general adjustment. At most one of CollTopUp and
// CollWithdrawal may be non-zero; DebtChange is minted when IsDebtIncrease
// and repaid otherwise.
type AdjustTroveRequest struct {
	Actor            crypto.Address
	Principal        crypto.Address
	CollTopUp        *uint256.Int
	CollWithdrawal   *uint256.Int
	DebtChange       *uint256.Int
	IsDebtIncrease   bool
	MaxFeePercentage *uint256.Int
	UpperHint        crypto.Address
	LowerHint        crypto.Address
}

// Result reports the trove after an operation and the borrowing fee charged.
type Result struct {
	Trove *troves.Trove
	Fee   *uint256.Int
}

func isZero(v *uint256.Int) bool { return v == nil || v.IsZero() }

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

func (o *Operations) guard(actor, principal crypto.Address) error {
	if o == nil || o.manager == nil {
		return troves.ErrNilState
	}
	if err := nativecommon.Guard(o.pauses, moduleName); err != nil {
		return err
	}
	if principal.IsZero() {
		return ErrZeroAddress
	}
	return o.Authorize(actor, principal)
}

func (o *Operations) validateMaxFee(maxFee *uint256.Int) error {
	params := o.manager.Params()
	if maxFee == nil || maxFee.Lt(params.BorrowingFeeFloor) || maxFee.Gt(troves.DecimalPrecision) {
		return ErrInvalidMaxFee
	}
	return nil
}

// borrowingFee returns the fee on amount at the base rate decayed to now.
func (o *Operations) borrowingFee(amount, maxFee, decayed *uint256.Int) (*uint256.Int, error) {
	fee := troves.FeeFor(amount, troves.BorrowingRate(o.manager.Params(), decayed))
	if troves.FeePercentage(fee, amount).Gt(maxFee) {
		return nil, ErrFeeExceedsMax
	}
	return fee, nil
}

func (o *Operations) requireBalance(symbol string, holder crypto.Address, amount *uint256.Int) error {
	if o.manager.Bank().BalanceOf(symbol, holder).Lt(amount) {
		return ErrInsufficientBalance
	}
	return nil
}

// payFee mints the borrowing fee to the borrower-operations account and
// forwards it to the reward streamer.
func (o *Operations) payFee(principal crypto.Address, fee *uint256.Int) error {
	if fee.IsZero() {
		return nil
	}
	accounts := o.manager.Accounts()
	if err := o.manager.Bank().Mint(bank.SymbolDebt, accounts.BorrowerOps, fee); err != nil {
		return err
	}
	if err := o.manager.DistributeFee(accounts.BorrowerOps, bank.SymbolDebt, fee); err != nil {
		return err
	}
	o.manager.Emit(events.BorrowingFeePaid{Owner: principal, Fee: new(uint256.Int).Set(fee)})
	return nil
}

// OpenTrove opens a trove for the principal funded by the actor.
func (o *Operations) OpenTrove(req OpenTroveRequest) (*Result, error) {
	if err := o.guard(req.Actor, req.Principal); err != nil {
		return nil, err
	}
	if isZero(req.Coll) || isZero(req.DebtAmount) {
		return nil, ErrInvalidAmount
	}
	store, sorted := o.manager.Store(), o.manager.Sorted()
	if store.IsActive(req.Principal) {
		return nil, ErrTroveActive
	}
	if err := o.validateMaxFee(req.MaxFeePercentage); err != nil {
		return nil, err
	}
	params := o.manager.Params()
	now := o.manager.Now()
	price, err := o.manager.FetchPrice()
	if err != nil {
		return nil, err
	}

	decayed := o.manager.DecayedBaseRate(now)
	fee, err := o.borrowingFee(req.DebtAmount, req.MaxFeePercentage, decayed)
	if err != nil {
		return nil, err
	}
	netDebt := new(uint256.Int).Add(req.DebtAmount, fee)
	if netDebt.Lt(params.MinNetDebt) {
		return nil, ErrDebtBelowMin
	}
	compositeDebt := new(uint256.Int).Add(netDebt, params.GasCompensation)
	if troves.ComputeCR(req.Coll, compositeDebt, price).Lt(params.MCR) {
		return nil, ErrICRBelowMCR
	}
	if err := o.requireBalance(bank.SymbolCollateral, req.Actor, req.Coll); err != nil {
		return nil, err
	}
	if sorted.IsFull() {
		return nil, ErrListFull
	}
	nicr := troves.ComputeNominalCR(req.Coll, compositeDebt)
	prev, next, err := sorted.FindInsertPosition(nicr, req.UpperHint, req.LowerHint)
	if err != nil {
		return nil, err
	}
	accounts := o.manager.Accounts()
	if err := o.manager.CheckFeeDistribution(accounts.BorrowerOps, bank.SymbolDebt, fee); err != nil {
		return nil, err
	}

	o.manager.CommitBaseRate(decayed, now)
	trove, err := store.Open(req.Principal, req.Coll, compositeDebt)
	if err != nil {
		return nil, err
	}
	if err := sorted.Insert(req.Principal, nicr, prev, next); err != nil {
		return nil, err
	}
	ledger := o.manager.Bank()
	if err := ledger.Transfer(bank.SymbolCollateral, req.Actor, accounts.ActivePool, req.Coll); err != nil {
		return nil, err
	}
	if err := ledger.Mint(bank.SymbolDebt, req.Actor, req.DebtAmount); err != nil {
		return nil, err
	}
	if err := ledger.Mint(bank.SymbolDebt, accounts.GasPool, params.GasCompensation); err != nil {
		return nil, err
	}
	if err := o.payFee(req.Principal, fee); err != nil {
		return nil, err
	}
	o.manager.EmitTroveUpdated(req.Principal, events.TroveOperationOpen)
	return &Result{Trove: trove, Fee: fee}, nil
}

// AdjustTrove changes the principal's collateral and debt in one step.
func (o *Operations) AdjustTrove(req AdjustTroveRequest) (*Result, error) {
	if err := o.guard(req.Actor, req.Principal); err != nil {
		return nil, err
	}
	store, sorted := o.manager.Store(), o.manager.Sorted()
	if !store.IsActive(req.Principal) {
		return nil, ErrTroveNotActive
	}
	topUp, withdrawal, debtChange := orZero(req.CollTopUp), orZero(req.CollWithdrawal), orZero(req.DebtChange)
	if !topUp.IsZero() && !withdrawal.IsZero() {
		return nil, ErrCollTopUpAndWithdrawal
	}
	if topUp.IsZero() && withdrawal.IsZero() && debtChange.IsZero() {
		return nil, ErrZeroAdjustment
	}
	borrowing := req.IsDebtIncrease && !debtChange.IsZero()
	if borrowing {
		if err := o.validateMaxFee(req.MaxFeePercentage); err != nil {
			return nil, err
		}
	}
	params := o.manager.Params()
	now := o.manager.Now()
	price, err := o.manager.FetchPrice()
	if err != nil {
		return nil, err
	}

	coll, debt := store.EntireDebtAndColl(req.Principal)
	if withdrawal.Gt(coll) {
		return nil, ErrInsufficientCollateral
	}
	newColl := new(uint256.Int).Add(coll, topUp)
	newColl.Sub(newColl, withdrawal)

	fee := new(uint256.Int)
	decayed := o.manager.DecayedBaseRate(now)
	newDebt := new(uint256.Int).Set(debt)
	switch {
	case borrowing:
		if fee, err = o.borrowingFee(debtChange, req.MaxFeePercentage, decayed); err != nil {
			return nil, err
		}
		newDebt.Add(newDebt, debtChange)
		newDebt.Add(newDebt, fee)
	case !debtChange.IsZero():
		netDebt := new(uint256.Int).Sub(debt, params.GasCompensation)
		if debtChange.Gt(netDebt) {
			return nil, ErrInvalidRepayment
		}
		if new(uint256.Int).Sub(netDebt, debtChange).Lt(params.MinNetDebt) {
			return nil, ErrDebtBelowMin
		}
		if err := o.requireBalance(bank.SymbolDebt, req.Actor, debtChange); err != nil {
			return nil, err
		}
		newDebt.Sub(newDebt, debtChange)
	}
	if !topUp.IsZero() {
		if err := o.requireBalance(bank.SymbolCollateral, req.Actor, topUp); err != nil {
			return nil, err
		}
	}
	if troves.ComputeCR(newColl, newDebt, price).Lt(params.MCR) {
		return nil, ErrICRBelowMCR
	}
	nicr := troves.ComputeNominalCR(newColl, newDebt)
	exclude := map[crypto.Address]bool{req.Principal: true}
	prev, next, err := sorted.FindInsertPositionExcluding(nicr, req.UpperHint, req.LowerHint, exclude)
	if err != nil {
		return nil, err
	}
	accounts := o.manager.Accounts()
	if err := o.manager.CheckFeeDistribution(accounts.BorrowerOps, bank.SymbolDebt, fee); err != nil {
		return nil, err
	}

	store.ApplyPendingRewards(req.Principal)
	if borrowing {
		o.manager.CommitBaseRate(decayed, now)
	}
	trove, err := store.Adjust(req.Principal, newColl, newDebt)
	if err != nil {
		return nil, err
	}
	if err := sorted.ReInsert(req.Principal, nicr, prev, next); err != nil {
		return nil, err
	}
	ledger := o.manager.Bank()
	if !topUp.IsZero() {
		if err := ledger.Transfer(bank.SymbolCollateral, req.Actor, accounts.ActivePool, topUp); err != nil {
			return nil, err
		}
	}
	if !withdrawal.IsZero() {
		if err := ledger.Transfer(bank.SymbolCollateral, accounts.ActivePool, req.Actor, withdrawal); err != nil {
			return nil, err
		}
	}
	if borrowing {
		if err := ledger.Mint(bank.SymbolDebt, req.Actor, debtChange); err != nil {
			return nil, err
		}
		if err := o.payFee(req.Principal, fee); err != nil {
			return nil, err
		}
	} else if !debtChange.IsZero() {
		if err := ledger.Burn(bank.SymbolDebt, req.Actor, debtChange); err != nil {
			return nil, err
		}
	}
	o.manager.EmitTroveUpdated(req.Principal, events.TroveOperationAdjust)
	return &Result{Trove: trove, Fee: fee}, nil
}

// AddColl tops up the principal's collateral from the actor.
func (o *Operations) AddColl(actor, principal crypto.Address, amount *uint256.Int, upperHint, lowerHint crypto.Address) (*Result, error) {
	if isZero(amount) {
		return nil, ErrInvalidAmount
	}
	return o.AdjustTrove(AdjustTroveRequest{Actor: actor, Principal: principal, CollTopUp: amount, UpperHint: upperHint, LowerHint: lowerHint})
}

// WithdrawColl pays collateral from the principal's trove to the actor.
func (o *Operations) WithdrawColl(actor, principal crypto.Address, amount *uint256.Int, upperHint, lowerHint crypto.Address) (*Result, error) {
	if isZero(amount) {
		return nil, ErrInvalidAmount
	}
	return o.AdjustTrove(AdjustTroveRequest{Actor: actor, Principal: principal, CollWithdrawal: amount, UpperHint: upperHint, LowerHint: lowerHint})
}

// WithdrawDebt mints debt tokens to the actor against the principal's trove.
func (o *Operations) WithdrawDebt(actor, principal crypto.Address, maxFee, amount *uint256.Int, upperHint, lowerHint crypto.Address) (*Result, error) {
	if isZero(amount) {
		return nil, ErrInvalidAmount
	}
	return o.AdjustTrove(AdjustTroveRequest{
		Actor:            actor,
		Principal:        principal,
		DebtChange:       amount,
		IsDebtIncrease:   true,
		MaxFeePercentage: maxFee,
		UpperHint:        upperHint,
		LowerHint:        lowerHint,
	})
}

// RepayDebt burns the actor's debt tokens against the principal's trove.
func (o *Operations) RepayDebt(actor, principal crypto.Address, amount *uint256.Int, upperHint, lowerHint crypto.Address) (*Result, error) {
	if isZero(amount) {
		return nil, ErrInvalidAmount
	}
	return o.AdjustTrove(AdjustTroveRequest{Actor: actor, Principal: principal, DebtChange: amount, UpperHint: upperHint, LowerHint: lowerHint})
}

// CloseTrove repays the principal's net debt from the actor and returns the
// collateral to the actor.
func (o *Operations) CloseTrove(actor, principal crypto.Address) (*uint256.Int, error) {
	if err := o.guard(actor, principal); err != nil {
		return nil, err
	}
	store, sorted := o.manager.Store(), o.manager.Sorted()
	if !store.IsActive(principal) {
		return nil, ErrTroveNotActive
	}
	if store.OwnersCount() <= 1 {
		return nil, ErrOnlyOneTrove
	}
	params := o.manager.Params()
	coll, debt := store.EntireDebtAndColl(principal)
	repay := new(uint256.Int).Sub(debt, params.GasCompensation)
	if err := o.requireBalance(bank.SymbolDebt, actor, repay); err != nil {
		return nil, err
	}

	store.ApplyPendingRewards(principal)
	if err := store.Close(principal, troves.StatusClosedByOwner); err != nil {
		return nil, err
	}
	if err := sorted.Remove(principal); err != nil {
		return nil, err
	}
	ledger, accounts := o.manager.Bank(), o.manager.Accounts()
	if err := ledger.Burn(bank.SymbolDebt, actor, repay); err != nil {
		return nil, err
	}
	if err := ledger.Burn(bank.SymbolDebt, accounts.GasPool, params.GasCompensation); err != nil {
		return nil, err
	}
	if err := ledger.Transfer(bank.SymbolCollateral, accounts.ActivePool, actor, coll); err != nil {
		return nil, err
	}
	o.manager.EmitTroveUpdated(principal, events.TroveOperationClose)
	return coll, nil
}

// ClaimCollateral pays the principal's surplus to the principal. Only the
// principal may claim.
func (o *Operations) ClaimCollateral(actor, principal crypto.Address) (*uint256.Int, error) {
	if o == nil || o.manager == nil || o.surplus == nil {
		return nil, troves.ErrNilState
	}
	if err := nativecommon.Guard(o.pauses, moduleName); err != nil {
		return nil, err
	}
	if o.surplus.Balance(principal).IsZero() {
		return nil, ErrNoSurplusToClaim
	}
	if actor != principal {
		return nil, ErrNotOwner
	}
	return o.surplus.Claim(o.manager.Accounts().BorrowerOps, principal)
}
