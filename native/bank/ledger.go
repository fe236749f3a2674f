package bank

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/holiman/uint256"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"cdpledger/crypto"
)

// Token symbols tracked by the ledger.
const (
	SymbolCollateral = "COLL"
	SymbolDebt       = "CDPUSD"
	SymbolStake      = "STAKE"
)

var (
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrUnknownSymbol       = errors.New("bank: symbol required")
	ErrSupplyOverflow      = errors.New("bank: supply overflow")
)

type balanceKey struct {
	symbol string
	addr   crypto.Address
}

// Ledger keeps fungible balances for every token the ledger touches. It has
// transfer, mint and burn semantics and no allowances: callers that pull funds
// are trusted modules acting inside the same execution domain.
type Ledger struct {
	balances map[balanceKey]*uint256.Int
	supply   map[string]*uint256.Int
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[balanceKey]*uint256.Int),
		supply:   make(map[string]*uint256.Int),
	}
}

// NormalizeSymbol folds a token symbol to its canonical form: NFKC
// normalised, trimmed and upper-cased.
func NormalizeSymbol(symbol string) string {
	folded := norm.NFKC.String(strings.TrimSpace(symbol))
	return cases.Upper(language.Und).String(strings.TrimSpace(folded))
}

func normalizeSymbol(symbol string) (string, error) {
	sym := NormalizeSymbol(symbol)
	if sym == "" {
		return "", ErrUnknownSymbol
	}
	return sym, nil
}

// BalanceOf returns a copy of the holder's balance.
func (l *Ledger) BalanceOf(symbol string, addr crypto.Address) *uint256.Int {
	if l == nil {
		return new(uint256.Int)
	}
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return new(uint256.Int)
	}
	if bal, ok := l.balances[balanceKey{sym, addr}]; ok {
		return new(uint256.Int).Set(bal)
	}
	return new(uint256.Int)
}

// TotalSupply returns the outstanding supply of a token.
func (l *Ledger) TotalSupply(symbol string) *uint256.Int {
	if l == nil {
		return new(uint256.Int)
	}
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return new(uint256.Int)
	}
	if s, ok := l.supply[sym]; ok {
		return new(uint256.Int).Set(s)
	}
	return new(uint256.Int)
}

func (l *Ledger) set(sym string, addr crypto.Address, value *uint256.Int) {
	key := balanceKey{sym, addr}
	if value.IsZero() {
		delete(l.balances, key)
		return
	}
	l.balances[key] = value
}

// Transfer moves amount from one holder to another. A zero amount is a no-op.
func (l *Ledger) Transfer(symbol string, from, to crypto.Address, amount *uint256.Int) error {
	if l == nil {
		return fmt.Errorf("bank: ledger not configured")
	}
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return err
	}
	if amount == nil || amount.IsZero() || from == to {
		return nil
	}
	fromBal := l.BalanceOf(sym, from)
	if fromBal.Lt(amount) {
		return fmt.Errorf("%w: %s has %s %s, needs %s", ErrInsufficientBalance, from, fromBal.Dec(), sym, amount.Dec())
	}
	toBal := l.BalanceOf(sym, to)
	l.set(sym, from, fromBal.Sub(fromBal, amount))
	l.set(sym, to, toBal.Add(toBal, amount))
	return nil
}

// Mint creates new tokens for the recipient.
func (l *Ledger) Mint(symbol string, to crypto.Address, amount *uint256.Int) error {
	if l == nil {
		return fmt.Errorf("bank: ledger not configured")
	}
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return nil
	}
	supply := l.TotalSupply(sym)
	next, overflow := new(uint256.Int).AddOverflow(supply, amount)
	if overflow {
		return ErrSupplyOverflow
	}
	bal := l.BalanceOf(sym, to)
	l.supply[sym] = next
	l.set(sym, to, bal.Add(bal, amount))
	return nil
}

// Burn destroys tokens held by the holder.
func (l *Ledger) Burn(symbol string, from crypto.Address, amount *uint256.Int) error {
	if l == nil {
		return fmt.Errorf("bank: ledger not configured")
	}
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return nil
	}
	bal := l.BalanceOf(sym, from)
	if bal.Lt(amount) {
		return fmt.Errorf("%w: %s has %s %s, needs %s", ErrInsufficientBalance, from, bal.Dec(), sym, amount.Dec())
	}
	supply := l.TotalSupply(sym)
	l.supply[sym] = supply.Sub(supply, amount)
	l.set(sym, from, bal.Sub(bal, amount))
	return nil
}

// Balance is the exported form of a single holding.
type Balance struct {
	Symbol  string
	Address crypto.Address
	Amount  *uint256.Int
}

// Export returns every non-zero balance ordered by symbol then address.
func (l *Ledger) Export() []Balance {
	if l == nil {
		return nil
	}
	out := make([]Balance, 0, len(l.balances))
	for key, amount := range l.balances {
		out = append(out, Balance{Symbol: key.symbol, Address: key.addr, Amount: new(uint256.Int).Set(amount)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return strings.Compare(string(out[i].Address[:]), string(out[j].Address[:])) < 0
	})
	return out
}

// Import replaces the ledger contents with the supplied balances and
// recomputes supplies.
func (l *Ledger) Import(balances []Balance) error {
	if l == nil {
		return fmt.Errorf("bank: ledger not configured")
	}
	l.balances = make(map[balanceKey]*uint256.Int)
	l.supply = make(map[string]*uint256.Int)
	for _, b := range balances {
		if err := l.Mint(b.Symbol, b.Address, b.Amount); err != nil {
			return err
		}
	}
	return nil
}
