package surplus

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"cdpledger/core/events"
	"cdpledger/crypto"
	"cdpledger/native/bank"
)

var (
	ErrCallerNotTroveManager = errors.New("surplus: caller is not the trove manager")
	ErrCallerNotBorrowerOps  = errors.New("surplus: caller is not borrower operations")
	ErrNoSurplusToClaim      = errors.New("surplus: no collateral available to claim")
)

// Transferer moves escrowed collateral out of the pool account.
type Transferer interface {
	Transfer(symbol string, from, to crypto.Address, amount *uint256.Int) error
}

// Pool escrows collateral owed to owners of troves closed by redemption. The
// collateral itself sits at the pool account; the pool tracks who may claim it.
type Pool struct {
	account      crypto.Address
	troveManager crypto.Address
	borrowerOps  crypto.Address
	bank         Transferer
	emitter      events.Emitter
	balances     map[crypto.Address]*uint256.Int
	total        *uint256.Int
}

// NewPool returns an empty vault custodied at account. Only troveManager may
// credit it and only borrowerOps may pay out of it.
func NewPool(account, troveManager, borrowerOps crypto.Address, ledger Transferer) *Pool {
	return &Pool{
		account:      account,
		troveManager: troveManager,
		borrowerOps:  borrowerOps,
		bank:         ledger,
		emitter:      events.NoopEmitter{},
		balances:     make(map[crypto.Address]*uint256.Int),
		total:        new(uint256.Int),
	}
}

// SetEmitter configures the event sink.
func (p *Pool) SetEmitter(e events.Emitter) {
	if e == nil {
		e = events.NoopEmitter{}
	}
	p.emitter = e
}

// Account returns the custody address.
func (p *Pool) Account() crypto.Address { return p.account }

// Balance returns the collateral claimable by owner.
func (p *Pool) Balance(owner crypto.Address) *uint256.Int {
	if p == nil {
		return new(uint256.Int)
	}
	if bal, ok := p.balances[owner]; ok {
		return new(uint256.Int).Set(bal)
	}
	return new(uint256.Int)
}

// Total returns the collateral escrowed for all owners.
func (p *Pool) Total() *uint256.Int {
	if p == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(p.total)
}

// Credit adds amount to owner's claimable balance. Credits accumulate until claimed.
func (p *Pool) Credit(caller, owner crypto.Address, amount *uint256.Int) error {
	if p == nil {
		return fmt.Errorf("surplus: pool not configured")
	}
	if caller != p.troveManager {
		return ErrCallerNotTroveManager
	}
	if amount == nil || amount.IsZero() {
		return nil
	}
	bal := p.Balance(owner)
	bal.Add(bal, amount)
	p.balances[owner] = bal
	p.total.Add(p.total, amount)
	p.emitter.Emit(events.SurplusCredited{Owner: owner, Amount: new(uint256.Int).Set(amount), Balance: new(uint256.Int).Set(bal)})
	return nil
}

// Claim pays owner's full balance to owner and zeroes it.
func (p *Pool) Claim(caller, owner crypto.Address) (*uint256.Int, error) {
	if p == nil {
		return nil, fmt.Errorf("surplus: pool not configured")
	}
	if caller != p.borrowerOps {
		return nil, ErrCallerNotBorrowerOps
	}
	amount := p.Balance(owner)
	if amount.IsZero() {
		return nil, ErrNoSurplusToClaim
	}
	if err := p.bank.Transfer(bank.SymbolCollateral, p.account, owner, amount); err != nil {
		return nil, err
	}
	delete(p.balances, owner)
	p.total.Sub(p.total, amount)
	p.emitter.Emit(events.CollateralClaimed{Owner: owner, Amount: new(uint256.Int).Set(amount)})
	return amount, nil
}

// Entry is the exported form of one claimable balance.
type Entry struct {
	Owner  crypto.Address
	Amount *uint256.Int
}

// Export returns every claimable balance ordered by owner.
func (p *Pool) Export() []Entry {
	out := make([]Entry, 0, len(p.balances))
	for owner, amount := range p.balances {
		out = append(out, Entry{Owner: owner, Amount: new(uint256.Int).Set(amount)})
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Owner[:], out[j].Owner[:]) < 0 })
	return out
}

// Import replaces the vault balances.
func (p *Pool) Import(entries []Entry) {
	p.balances = make(map[crypto.Address]*uint256.Int, len(entries))
	p.total = new(uint256.Int)
	for _, e := range entries {
		if e.Amount == nil || e.Amount.IsZero() {
			continue
		}
		p.balances[e.Owner] = new(uint256.Int).Set(e.Amount)
		p.total.Add(p.total, e.Amount)
	}
}
