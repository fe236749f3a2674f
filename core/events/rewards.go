package events

import (
	"github.com/holiman/uint256"

	"cdpledger/core/types"
	"cdpledger/crypto"
)

const (
	TypeRewardAdded            = "rewards.added"
	TypeRewardStaked           = "rewards.staked"
	TypeRewardWithdrawn        = "rewards.withdrawn"
	TypeRewardPaid             = "rewards.paid"
	TypeRewardsDurationUpdated = "rewards.durationUpdated"
)

// RewardAdded records a reward notification and the resulting stream rate.
type RewardAdded struct {
	Token        string
	Amount       *uint256.Int
	RewardRate   *uint256.Int
	PeriodFinish uint64
}

// EventType satisfies the Event interface.
func (RewardAdded) EventType() string { return TypeRewardAdded }

// Event converts the structured payload into a broadcastable event.
func (e RewardAdded) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardAdded,
		Attributes: map[string]string{
			"token":        e.Token,
			"amount":       formatAmount(e.Amount),
			"rewardRate":   formatAmount(e.RewardRate),
			"periodFinish": formatUint(e.PeriodFinish),
		},
	}
}

// Staked records a stake deposit.
type Staked struct {
	Account crypto.Address
	Amount  *uint256.Int
}

// EventType satisfies the Event interface.
func (Staked) EventType() string { return TypeRewardStaked }

// Event converts the structured payload into a broadcastable event.
func (e Staked) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardStaked,
		Attributes: map[string]string{
			"account": formatAddress(e.Account),
			"amount":  formatAmount(e.Amount),
		},
	}
}

// Withdrawn records a stake withdrawal.
type Withdrawn struct {
	Account crypto.Address
	Amount  *uint256.Int
}

// EventType satisfies the Event interface.
func (Withdrawn) EventType() string { return TypeRewardWithdrawn }

// Event converts the structured payload into a broadcastable event.
func (e Withdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardWithdrawn,
		Attributes: map[string]string{
			"account": formatAddress(e.Account),
			"amount":  formatAmount(e.Amount),
		},
	}
}

// RewardPaid records a reward payout to a staker.
type RewardPaid struct {
	Account crypto.Address
	Token   string
	Amount  *uint256.Int
}

// EventType satisfies the Event interface.
func (RewardPaid) EventType() string { return TypeRewardPaid }

// Event converts the structured payload into a broadcastable event.
func (e RewardPaid) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardPaid,
		Attributes: map[string]string{
			"account": formatAddress(e.Account),
			"token":   e.Token,
			"amount":  formatAmount(e.Amount),
		},
	}
}

// RewardsDurationUpdated records a change of a stream's epoch length.
type RewardsDurationUpdated struct {
	Token    string
	Duration uint64
}

// EventType satisfies the Event interface.
func (RewardsDurationUpdated) EventType() string { return TypeRewardsDurationUpdated }

// Event converts the structured payload into a broadcastable event.
func (e RewardsDurationUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardsDurationUpdated,
		Attributes: map[string]string{
			"token":    e.Token,
			"duration": formatUint(e.Duration),
		},
	}
}
