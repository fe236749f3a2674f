package ledger

import (
	"fmt"

	"cdpledger/native/bank"
	"cdpledger/native/borrower"
	"cdpledger/native/multirewards"
	"cdpledger/native/surplus"
	"cdpledger/native/troves"
)

// Snapshot is the full exportable state of the system. Every field is ordered
// deterministically so equal states encode identically.
type Snapshot struct {
	Balances  []bank.Balance
	Troves    troves.Snapshot
	Surplus   []surplus.Entry
	Rewards   multirewards.Snapshot
	Approvals []borrower.Approval
	Paused    []string
}

// Export captures the current state.
func (s *System) Export() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Balances:  s.bank.Export(),
		Troves:    s.manager.Export(),
		Surplus:   s.surplus.Export(),
		Rewards:   s.streamer.Export(),
		Approvals: s.registry.Export(),
		Paused:    s.pauses.List(),
	}
}

// Restore replaces the current state with snap. The bank and trove state are
// validated before anything is swapped in.
func (s *System) Restore(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := bank.NewLedger()
	if err := staged.Import(snap.Balances); err != nil {
		return fmt.Errorf("ledger: restore balances: %w", err)
	}
	if err := s.manager.Restore(snap.Troves); err != nil {
		return fmt.Errorf("ledger: restore troves: %w", err)
	}
	if err := s.bank.Import(snap.Balances); err != nil {
		return fmt.Errorf("ledger: restore balances: %w", err)
	}
	s.surplus.Import(snap.Surplus)
	s.streamer.Import(snap.Rewards)
	s.registry.Import(snap.Approvals)
	for _, module := range s.pauses.List() {
		s.pauses.Set(module, false)
	}
	for _, module := range snap.Paused {
		s.pauses.Set(module, true)
	}
	return nil
}
