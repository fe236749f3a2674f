package events

import (
	"github.com/holiman/uint256"

	"cdpledger/core/types"
	"cdpledger/crypto"
)

const (
	// TypeRedemption is emitted once per successful redemption.
	TypeRedemption = "troves.redemption"
	// TypeBaseRateUpdated captures every stored change of the fee base rate.
	TypeBaseRateUpdated = "troves.baseRateUpdated"
)

// Redemption summarises a redemption: the requested and redeemed debt, the
// collateral paid out and the fee retained.
type Redemption struct {
	Redeemer  crypto.Address
	Attempted *uint256.Int
	Actual    *uint256.Int
	CollSent  *uint256.Int
	Fee       *uint256.Int
}

// EventType satisfies the Event interface.
func (Redemption) EventType() string { return TypeRedemption }

// Event converts the structured payload into a broadcastable event.
func (e Redemption) Event() *types.Event {
	return &types.Event{
		Type: TypeRedemption,
		Attributes: map[string]string{
			"redeemer":  formatAddress(e.Redeemer),
			"attempted": formatAmount(e.Attempted),
			"actual":    formatAmount(e.Actual),
			"collSent":  formatAmount(e.CollSent),
			"fee":       formatAmount(e.Fee),
		},
	}
}

// BaseRateUpdated records the stored base rate and fee operation time.
type BaseRateUpdated struct {
	BaseRate             *uint256.Int
	LastFeeOperationTime uint64
}

// EventType satisfies the Event interface.
func (BaseRateUpdated) EventType() string { return TypeBaseRateUpdated }

// Event converts the structured payload into a broadcastable event.
func (e BaseRateUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeBaseRateUpdated,
		Attributes: map[string]string{
			"baseRate":             formatAmount(e.BaseRate),
			"lastFeeOperationTime": formatUint(e.LastFeeOperationTime),
		},
	}
}
