package borrower

import (
	"bytes"
	"sort"

	"cdpledger/core/events"
	"cdpledger/crypto"
)

// Registry records which delegates each owner has approved. Approval is
// one-directional, has no expiry and no per-owner limit.
type Registry struct {
	approvals map[crypto.Address]map[crypto.Address]bool
	emitter   events.Emitter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		approvals: make(map[crypto.Address]map[crypto.Address]bool),
		emitter:   events.NoopEmitter{},
	}
}

// SetEmitter configures the event sink.
func (r *Registry) SetEmitter(e events.Emitter) {
	if e == nil {
		e = events.NoopEmitter{}
	}
	r.emitter = e
}

// SetApproval grants or revokes delegate's right to act for owner. Repeating
// the same call leaves the result unchanged.
func (r *Registry) SetApproval(owner, delegate crypto.Address, approved bool) error {
	if owner.IsZero() || delegate.IsZero() {
		return ErrZeroAddress
	}
	if owner == delegate {
		return ErrSelfDelegation
	}
	if approved {
		set, ok := r.approvals[owner]
		if !ok {
			set = make(map[crypto.Address]bool)
			r.approvals[owner] = set
		}
		set[delegate] = true
	} else if set, ok := r.approvals[owner]; ok {
		delete(set, delegate)
		if len(set) == 0 {
			delete(r.approvals, owner)
		}
	}
	r.emitter.Emit(events.DelegateApprovalSet{Owner: owner, Delegate: delegate, Approved: approved})
	return nil
}

// IsApproved reports whether delegate may act for owner.
func (r *Registry) IsApproved(owner, delegate crypto.Address) bool {
	if r == nil {
		return false
	}
	return r.approvals[owner][delegate]
}

// Delegates returns the owner's approved delegates in byte order.
func (r *Registry) Delegates(owner crypto.Address) []crypto.Address {
	set := r.approvals[owner]
	out := make([]crypto.Address, 0, len(set))
	for delegate := range set {
		out = append(out, delegate)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// Approval is the exported form of one grant.
type Approval struct {
	Owner    crypto.Address
	Delegate crypto.Address
}

// Export returns every grant ordered by owner then delegate.
func (r *Registry) Export() []Approval {
	owners := make([]crypto.Address, 0, len(r.approvals))
	for owner := range r.approvals {
		owners = append(owners, owner)
	}
	sort.Slice(owners, func(i, j int) bool { return bytes.Compare(owners[i][:], owners[j][:]) < 0 })
	var out []Approval
	for _, owner := range owners {
		for _, delegate := range r.Delegates(owner) {
			out = append(out, Approval{Owner: owner, Delegate: delegate})
		}
	}
	return out
}

// Import replaces the registry contents without emitting events.
func (r *Registry) Import(approvals []Approval) {
	r.approvals = make(map[crypto.Address]map[crypto.Address]bool)
	for _, a := range approvals {
		if a.Owner.IsZero() || a.Delegate.IsZero() || a.Owner == a.Delegate {
			continue
		}
		set, ok := r.approvals[a.Owner]
		if !ok {
			set = make(map[crypto.Address]bool)
			r.approvals[a.Owner] = set
		}
		set[a.Delegate] = true
	}
}
