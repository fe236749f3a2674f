package troves

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"cdpledger/crypto"
)

// Store owns the canonical state of every trove, the active owner array and
// the redistribution accumulators.
type Store struct {
	troves map[crypto.Address]*Trove
	owners []crypto.Address
	totals Totals
}

// NewStore returns an empty position store.
func NewStore() *Store {
	return &Store{troves: make(map[crypto.Address]*Trove), totals: newTotals()}
}

// Get returns a copy of the owner's trove or nil when none was ever opened.
func (s *Store) Get(owner crypto.Address) *Trove {
	if t, ok := s.troves[owner]; ok {
		return t.Clone()
	}
	return nil
}

// Status returns the lifecycle stage of the owner's trove.
func (s *Store) Status(owner crypto.Address) Status {
	if t, ok := s.troves[owner]; ok {
		return t.Status
	}
	return StatusNonExistent
}

// IsActive reports whether the owner has an active trove.
func (s *Store) IsActive(owner crypto.Address) bool { return s.Status(owner) == StatusActive }

// Totals returns a copy of the store-wide accumulators.
func (s *Store) Totals() Totals { return s.totals.Clone() }

// OwnersCount returns the number of active troves.
func (s *Store) OwnersCount() uint64 { return uint64(len(s.owners)) }

// Owners returns the active owner array in array-index order.
func (s *Store) Owners() []crypto.Address {
	out := make([]crypto.Address, len(s.owners))
	copy(out, s.owners)
	return out
}

// PendingRewards returns the redistributed collateral and debt the trove has
// not yet absorbed.
func (s *Store) PendingRewards(owner crypto.Address) (coll, debt *uint256.Int) {
	t, ok := s.troves[owner]
	if !ok || t.Status != StatusActive || t.Stake.IsZero() {
		return zero(), zero()
	}
	collDelta := new(uint256.Int).Sub(s.totals.LColl, t.Snapshot.Coll)
	debtDelta := new(uint256.Int).Sub(s.totals.LDebt, t.Snapshot.Debt)
	return mulDiv(t.Stake, collDelta, DecimalPrecision), mulDiv(t.Stake, debtDelta, DecimalPrecision)
}

// HasPendingRewards reports whether a redistribution happened since the
// trove's last snapshot.
func (s *Store) HasPendingRewards(owner crypto.Address) bool {
	t, ok := s.troves[owner]
	if !ok || t.Status != StatusActive {
		return false
	}
	return t.Snapshot.Coll.Lt(s.totals.LColl)
}

// EntireDebtAndColl returns the trove's collateral and debt including pending
// rewards.
func (s *Store) EntireDebtAndColl(owner crypto.Address) (coll, debt *uint256.Int) {
	t, ok := s.troves[owner]
	if !ok {
		return zero(), zero()
	}
	pendingColl, pendingDebt := s.PendingRewards(owner)
	return new(uint256.Int).Add(t.Coll, pendingColl), new(uint256.Int).Add(t.Debt, pendingDebt)
}

// NominalICR returns the trove's nominal collateral ratio including pending
// rewards. It orders the sorted index.
func (s *Store) NominalICR(owner crypto.Address) *uint256.Int {
	coll, debt := s.EntireDebtAndColl(owner)
	return ComputeNominalCR(coll, debt)
}

// CurrentICR returns the trove's collateral ratio at price including pending
// rewards.
func (s *Store) CurrentICR(owner crypto.Address, price *uint256.Int) *uint256.Int {
	coll, debt := s.EntireDebtAndColl(owner)
	return ComputeCR(coll, debt, price)
}

// EntireSystemColl returns the collateral held by active and default pools.
func (s *Store) EntireSystemColl() *uint256.Int {
	return new(uint256.Int).Add(s.totals.ActiveColl, s.totals.DefaultColl)
}

// EntireSystemDebt returns the debt held by active and default pools.
func (s *Store) EntireSystemDebt() *uint256.Int {
	return new(uint256.Int).Add(s.totals.ActiveDebt, s.totals.DefaultDebt)
}

// TCR returns the total collateral ratio at price.
func (s *Store) TCR(price *uint256.Int) *uint256.Int {
	return ComputeCR(s.EntireSystemColl(), s.EntireSystemDebt(), price)
}

// ComputeNewStake scales coll by the last liquidation snapshot ratio.
func (s *Store) ComputeNewStake(coll *uint256.Int) *uint256.Int {
	if s.totals.TotalCollateralSnapshot.IsZero() {
		return clone(coll)
	}
	return mulDiv(coll, s.totals.TotalStakesSnapshot, s.totals.TotalCollateralSnapshot)
}

// ApplyPendingRewards folds pending redistribution rewards into the trove and
// moves them from the default pool to the active pool.
func (s *Store) ApplyPendingRewards(owner crypto.Address) {
	if !s.HasPendingRewards(owner) {
		return
	}
	t := s.troves[owner]
	pendingColl, pendingDebt := s.PendingRewards(owner)
	t.Coll.Add(t.Coll, pendingColl)
	t.Debt.Add(t.Debt, pendingDebt)
	s.updateSnapshot(t)
	s.totals.DefaultColl = saturatingSub(s.totals.DefaultColl, pendingColl)
	s.totals.DefaultDebt = saturatingSub(s.totals.DefaultDebt, pendingDebt)
	s.totals.ActiveColl.Add(s.totals.ActiveColl, pendingColl)
	s.totals.ActiveDebt.Add(s.totals.ActiveDebt, pendingDebt)
}

func saturatingSub(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return zero()
	}
	return new(uint256.Int).Sub(a, b)
}

func (s *Store) updateSnapshot(t *Trove) {
	t.Snapshot = RewardSnapshot{Coll: clone(s.totals.LColl), Debt: clone(s.totals.LDebt)}
}

func (s *Store) updateStake(t *Trove) {
	newStake := s.ComputeNewStake(t.Coll)
	s.totals.TotalStakes = saturatingSub(s.totals.TotalStakes, t.Stake)
	s.totals.TotalStakes.Add(s.totals.TotalStakes, newStake)
	t.Stake = newStake
}

// Open records a fresh active trove for owner, replacing any closed record,
// and appends it to the owner array. Pool balances are credited.
func (s *Store) Open(owner crypto.Address, coll, debt *uint256.Int) (*Trove, error) {
	if s.IsActive(owner) {
		return nil, ErrTroveActive
	}
	t := &Trove{
		Owner:      owner,
		Status:     StatusActive,
		Coll:       clone(coll),
		Debt:       clone(debt),
		Stake:      zero(),
		ArrayIndex: uint64(len(s.owners)),
	}
	s.updateSnapshot(t)
	s.updateStake(t)
	s.troves[owner] = t
	s.owners = append(s.owners, owner)
	s.totals.ActiveColl.Add(s.totals.ActiveColl, coll)
	s.totals.ActiveDebt.Add(s.totals.ActiveDebt, debt)
	return t.Clone(), nil
}

// Adjust sets the trove's collateral and debt, recomputes its stake and moves
// the difference through the active pool. Pending rewards must already be applied.
func (s *Store) Adjust(owner crypto.Address, coll, debt *uint256.Int) (*Trove, error) {
	t, ok := s.troves[owner]
	if !ok || t.Status != StatusActive {
		return nil, ErrTroveNotActive
	}
	if coll.Gt(t.Coll) {
		s.totals.ActiveColl.Add(s.totals.ActiveColl, new(uint256.Int).Sub(coll, t.Coll))
	} else {
		s.totals.ActiveColl = saturatingSub(s.totals.ActiveColl, new(uint256.Int).Sub(t.Coll, coll))
	}
	if debt.Gt(t.Debt) {
		s.totals.ActiveDebt.Add(s.totals.ActiveDebt, new(uint256.Int).Sub(debt, t.Debt))
	} else {
		s.totals.ActiveDebt = saturatingSub(s.totals.ActiveDebt, new(uint256.Int).Sub(t.Debt, debt))
	}
	t.Coll = clone(coll)
	t.Debt = clone(debt)
	s.updateStake(t)
	return t.Clone(), nil
}

// Close zeroes the trove, removes its stake and owner-array entry and debits
// its collateral and debt from the active pool.
func (s *Store) Close(owner crypto.Address, status Status) error {
	t, ok := s.troves[owner]
	if !ok || t.Status != StatusActive {
		return ErrTroveNotActive
	}
	if status == StatusActive || status == StatusNonExistent {
		return fmt.Errorf("troves: invalid closing status %s", status)
	}
	s.totals.ActiveColl = saturatingSub(s.totals.ActiveColl, t.Coll)
	s.totals.ActiveDebt = saturatingSub(s.totals.ActiveDebt, t.Debt)
	s.totals.TotalStakes = saturatingSub(s.totals.TotalStakes, t.Stake)
	s.removeOwner(t)
	t.Status = status
	t.Coll = zero()
	t.Debt = zero()
	t.Stake = zero()
	t.Snapshot = RewardSnapshot{Coll: zero(), Debt: zero()}
	return nil
}

// removeOwner swaps the last owner into the removed slot.
func (s *Store) removeOwner(t *Trove) {
	idx := t.ArrayIndex
	last := uint64(len(s.owners) - 1)
	if idx != last {
		moved := s.owners[last]
		s.owners[idx] = moved
		s.troves[moved].ArrayIndex = idx
	}
	s.owners = s.owners[:last]
	t.ArrayIndex = 0
}

// redistribute spreads debt and coll over all remaining stakes, carrying the
// division remainders into the next redistribution, and books them in the
// default pool. The caller has already debited the active pool.
func (s *Store) redistribute(debt, coll *uint256.Int) {
	if debt.IsZero() || s.totals.TotalStakes.IsZero() {
		return
	}
	collNumerator := new(uint256.Int).Mul(coll, DecimalPrecision)
	collNumerator.Add(collNumerator, s.totals.LastCollError)
	debtNumerator := new(uint256.Int).Mul(debt, DecimalPrecision)
	debtNumerator.Add(debtNumerator, s.totals.LastDebtError)

	collPerStake := new(uint256.Int).Div(collNumerator, s.totals.TotalStakes)
	debtPerStake := new(uint256.Int).Div(debtNumerator, s.totals.TotalStakes)

	s.totals.LastCollError = new(uint256.Int).Sub(collNumerator, new(uint256.Int).Mul(collPerStake, s.totals.TotalStakes))
	s.totals.LastDebtError = new(uint256.Int).Sub(debtNumerator, new(uint256.Int).Mul(debtPerStake, s.totals.TotalStakes))

	s.totals.LColl.Add(s.totals.LColl, collPerStake)
	s.totals.LDebt.Add(s.totals.LDebt, debtPerStake)

	s.totals.DefaultColl.Add(s.totals.DefaultColl, coll)
	s.totals.DefaultDebt.Add(s.totals.DefaultDebt, debt)
}

// updateSystemSnapshots records the stake and collateral totals used to
// scale new stakes.
func (s *Store) updateSystemSnapshots() {
	s.totals.TotalStakesSnapshot = clone(s.totals.TotalStakes)
	s.totals.TotalCollateralSnapshot = s.EntireSystemColl()
}

// StoreSnapshot is the exportable form of the store.
type StoreSnapshot struct {
	Troves []*Trove
	Owners []crypto.Address
	Totals Totals
}

// Export returns a deep copy of the store ordered by owner address.
func (s *Store) Export() StoreSnapshot {
	out := StoreSnapshot{Owners: s.Owners(), Totals: s.Totals()}
	for _, t := range s.troves {
		out.Troves = append(out.Troves, t.Clone())
	}
	sort.Slice(out.Troves, func(i, j int) bool {
		return bytes.Compare(out.Troves[i].Owner[:], out.Troves[j].Owner[:]) < 0
	})
	return out
}

// Import replaces the store contents with snap.
func (s *Store) Import(snap StoreSnapshot) error {
	troves := make(map[crypto.Address]*Trove, len(snap.Troves))
	for _, t := range snap.Troves {
		if t == nil {
			continue
		}
		troves[t.Owner] = t.Clone()
	}
	for i, owner := range snap.Owners {
		t, ok := troves[owner]
		if !ok || t.Status != StatusActive {
			return fmt.Errorf("troves: owner %s listed without active trove", owner)
		}
		if t.ArrayIndex != uint64(i) {
			return fmt.Errorf("troves: owner %s array index mismatch", owner)
		}
	}
	s.troves = troves
	s.owners = append([]crypto.Address(nil), snap.Owners...)
	s.totals = snap.Totals.Clone()
	return nil
}
