package events

import (
	"github.com/holiman/uint256"

	"cdpledger/core/types"
	"cdpledger/crypto"
)

const (
	// TypeTroveUpdated is emitted whenever a trove's collateral, debt or stake changes.
	TypeTroveUpdated = "trove.updated"
	// TypeTroveBorrowingFeePaid records the borrowing fee charged on new debt.
	TypeTroveBorrowingFeePaid = "trove.borrowingFeePaid"
	// TypeTroveLiquidated is emitted for every trove closed by liquidation.
	TypeTroveLiquidated = "trove.liquidated"
	// TypeLiquidationRewardsUpdated captures the redistribution accumulators.
	TypeLiquidationRewardsUpdated = "troves.liquidationRewardsUpdated"

	TroveOperationOpen      = "open"
	TroveOperationAdjust    = "adjust"
	TroveOperationClose     = "close"
	TroveOperationRedeem    = "redeemCollateral"
	TroveOperationLiquidate = "liquidate"
)

// TroveUpdated carries the post-operation state of a trove.
type TroveUpdated struct {
	Owner     crypto.Address
	Debt      *uint256.Int
	Coll      *uint256.Int
	Stake     *uint256.Int
	Status    string
	Operation string
}

// EventType satisfies the Event interface.
func (TroveUpdated) EventType() string { return TypeTroveUpdated }

// Event converts the structured payload into a broadcastable event.
func (e TroveUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeTroveUpdated,
		Attributes: map[string]string{
			"owner":     formatAddress(e.Owner),
			"debt":      formatAmount(e.Debt),
			"coll":      formatAmount(e.Coll),
			"stake":     formatAmount(e.Stake),
			"status":    e.Status,
			"operation": e.Operation,
		},
	}
}

// BorrowingFeePaid records the fee charged to a trove on debt issuance.
type BorrowingFeePaid struct {
	Owner crypto.Address
	Fee   *uint256.Int
}

// EventType satisfies the Event interface.
func (BorrowingFeePaid) EventType() string { return TypeTroveBorrowingFeePaid }

// Event converts the structured payload into a broadcastable event.
func (e BorrowingFeePaid) Event() *types.Event {
	return &types.Event{
		Type: TypeTroveBorrowingFeePaid,
		Attributes: map[string]string{
			"owner": formatAddress(e.Owner),
			"fee":   formatAmount(e.Fee),
		},
	}
}

// TroveLiquidated records a liquidation by redistribution.
type TroveLiquidated struct {
	Owner               crypto.Address
	Liquidator          crypto.Address
	Debt                *uint256.Int
	Coll                *uint256.Int
	CollGasCompensation *uint256.Int
	DebtGasCompensation *uint256.Int
}

// EventType satisfies the Event interface.
func (TroveLiquidated) EventType() string { return TypeTroveLiquidated }

// Event converts the structured payload into a broadcastable event.
func (e TroveLiquidated) Event() *types.Event {
	return &types.Event{
		Type: TypeTroveLiquidated,
		Attributes: map[string]string{
			"owner":               formatAddress(e.Owner),
			"liquidator":          formatAddress(e.Liquidator),
			"debt":                formatAmount(e.Debt),
			"coll":                formatAmount(e.Coll),
			"collGasCompensation": formatAmount(e.CollGasCompensation),
			"debtGasCompensation": formatAmount(e.DebtGasCompensation),
		},
	}
}

// LiquidationRewardsUpdated captures the cumulative redistribution rewards per
// unit staked after a liquidation.
type LiquidationRewardsUpdated struct {
	LColl                   *uint256.Int
	LDebt                   *uint256.Int
	TotalStakesSnapshot     *uint256.Int
	TotalCollateralSnapshot *uint256.Int
}

// EventType satisfies the Event interface.
func (LiquidationRewardsUpdated) EventType() string { return TypeLiquidationRewardsUpdated }

// Event converts the structured payload into a broadcastable event.
func (e LiquidationRewardsUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeLiquidationRewardsUpdated,
		Attributes: map[string]string{
			"lColl":                   formatAmount(e.LColl),
			"lDebt":                   formatAmount(e.LDebt),
			"totalStakesSnapshot":     formatAmount(e.TotalStakesSnapshot),
			"totalCollateralSnapshot": formatAmount(e.TotalCollateralSnapshot),
		},
	}
}
