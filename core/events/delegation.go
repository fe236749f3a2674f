package events

import (
	"strconv"

	"cdpledger/core/types"
	"cdpledger/crypto"
)

// TypeDelegateApprovalSet is emitted whenever an owner toggles a delegate.
const TypeDelegateApprovalSet = "borrower.delegateApprovalSet"

// DelegateApprovalSet records a delegation toggle.
type DelegateApprovalSet struct {
	Owner    crypto.Address
	Delegate crypto.Address
	Approved bool
}

// EventType satisfies the Event interface.
func (DelegateApprovalSet) EventType() string { return TypeDelegateApprovalSet }

// Event converts the structured payload into a broadcastable event.
func (e DelegateApprovalSet) Event() *types.Event {
	return &types.Event{
		Type: TypeDelegateApprovalSet,
		Attributes: map[string]string{
			"owner":    formatAddress(e.Owner),
			"delegate": formatAddress(e.Delegate),
			"approved": strconv.FormatBool(e.Approved),
		},
	}
}
