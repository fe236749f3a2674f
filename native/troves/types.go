package troves

import (
	"github.com/holiman/uint256"

	"cdpledger/crypto"
)

// Status describes the lifecycle stage of a trove.
type Status uint8

const (
	StatusNonExistent Status = iota
	StatusActive
	StatusClosedByOwner
	StatusClosedByLiquidation
	StatusClosedByRedemption
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusClosedByOwner:
		return "closedByOwner"
	case StatusClosedByLiquidation:
		return "closedByLiquidation"
	case StatusClosedByRedemption:
		return "closedByRedemption"
	default:
		return "nonExistent"
	}
}

// RewardSnapshot records the redistribution accumulators a trove has already
// absorbed.
type RewardSnapshot struct {
	Coll *uint256.Int
	Debt *uint256.Int
}

// Trove is a single collateralised debt position keyed by its owner.
type Trove struct {
	Owner crypto.Address
	// Status is the lifecycle stage; only active troves are linked in the
	// ordered index.
	Status Status
	// Coll is the collateral recorded for the trove, excluding pending rewards.
	Coll *uint256.Int
	// Debt is the composite debt including gas compensation.
	Debt *uint256.Int
	// Stake weights the trove in redistributions.
	Stake *uint256.Int
	// ArrayIndex is the trove's position in the active owner array.
	ArrayIndex uint64
	Snapshot   RewardSnapshot
}

// Clone returns a deep copy of the trove.
func (t *Trove) Clone() *Trove {
	if t == nil {
		return nil
	}
	return &Trove{
		Owner:      t.Owner,
		Status:     t.Status,
		Coll:       clone(t.Coll),
		Debt:       clone(t.Debt),
		Stake:      clone(t.Stake),
		ArrayIndex: t.ArrayIndex,
		Snapshot:   RewardSnapshot{Coll: clone(t.Snapshot.Coll), Debt: clone(t.Snapshot.Debt)},
	}
}

// Totals carries the store-wide accumulators and pool balances.
type Totals struct {
	TotalStakes             *uint256.Int
	TotalStakesSnapshot     *uint256.Int
	TotalCollateralSnapshot *uint256.Int
	// LColl and LDebt accumulate redistributed collateral and debt per unit staked.
	LColl         *uint256.Int
	LDebt         *uint256.Int
	LastCollError *uint256.Int
	LastDebtError *uint256.Int
	// ActiveColl and ActiveDebt are held by active troves; DefaultColl and
	// DefaultDebt are redistributed amounts not yet applied to a trove.
	ActiveColl  *uint256.Int
	ActiveDebt  *uint256.Int
	DefaultColl *uint256.Int
	DefaultDebt *uint256.Int
}

func newTotals() Totals {
	return Totals{
		TotalStakes:             zero(),
		TotalStakesSnapshot:     zero(),
		TotalCollateralSnapshot: zero(),
		LColl:                   zero(),
		LDebt:                   zero(),
		LastCollError:           zero(),
		LastDebtError:           zero(),
		ActiveColl:              zero(),
		ActiveDebt:              zero(),
		DefaultColl:             zero(),
		DefaultDebt:             zero(),
	}
}

// Clone returns a deep copy of the totals.
func (t Totals) Clone() Totals {
	return Totals{
		TotalStakes:             clone(t.TotalStakes),
		TotalStakesSnapshot:     clone(t.TotalStakesSnapshot),
		TotalCollateralSnapshot: clone(t.TotalCollateralSnapshot),
		LColl:                   clone(t.LColl),
		LDebt:                   clone(t.LDebt),
		LastCollError:           clone(t.LastCollError),
		LastDebtError:           clone(t.LastDebtError),
		ActiveColl:              clone(t.ActiveColl),
		ActiveDebt:              clone(t.ActiveDebt),
		DefaultColl:             clone(t.DefaultColl),
		DefaultDebt:             clone(t.DefaultDebt),
	}
}

// Accounts names the module accounts that custody funds.
type Accounts struct {
	ActivePool     crypto.Address
	GasPool        crypto.Address
	SurplusPool    crypto.Address
	TroveManager   crypto.Address
	BorrowerOps    crypto.Address
	RewardStreamer crypto.Address
}

// DefaultAccounts derives the module accounts from their labels.
func DefaultAccounts() Accounts {
	return Accounts{
		ActivePool:     crypto.ModuleAddress("activePool"),
		GasPool:        crypto.ModuleAddress("gasPool"),
		SurplusPool:    crypto.ModuleAddress("collSurplusPool"),
		TroveManager:   crypto.ModuleAddress("troveManager"),
		BorrowerOps:    crypto.ModuleAddress("borrowerOperations"),
		RewardStreamer: crypto.ModuleAddress("multiRewards"),
	}
}
