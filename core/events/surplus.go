package events

import (
	"github.com/holiman/uint256"

	"cdpledger/core/types"
	"cdpledger/crypto"
)

const (
	// TypeSurplusCredited is emitted when residual collateral is escrowed for an owner.
	TypeSurplusCredited = "surplus.credited"
	// TypeCollateralClaimed is emitted when an owner withdraws escrowed collateral.
	TypeCollateralClaimed = "surplus.claimed"
)

// SurplusCredited records an addition to an owner's claimable collateral.
type SurplusCredited struct {
	Owner   crypto.Address
	Amount  *uint256.Int
	Balance *uint256.Int
}

// EventType satisfies the Event interface.
func (SurplusCredited) EventType() string { return TypeSurplusCredited }

// Event converts the structured payload into a broadcastable event.
func (e SurplusCredited) Event() *types.Event {
	return &types.Event{
		Type: TypeSurplusCredited,
		Attributes: map[string]string{
			"owner":   formatAddress(e.Owner),
			"amount":  formatAmount(e.Amount),
			"balance": formatAmount(e.Balance),
		},
	}
}

// CollateralClaimed records a surplus payout.
type CollateralClaimed struct {
	Owner  crypto.Address
	Amount *uint256.Int
}

// EventType satisfies the Event interface.
func (CollateralClaimed) EventType() string { return TypeCollateralClaimed }

// Event converts the structured payload into a broadcastable event.
func (e CollateralClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeCollateralClaimed,
		Attributes: map[string]string{
			"owner":  formatAddress(e.Owner),
			"amount": formatAmount(e.Amount),
		},
	}
}
