package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"cdpledger/crypto"
	"cdpledger/native/bank"
)

// Genesis seeds a fresh ledger.
type Genesis struct {
	// DeployedAt anchors the redemption bootstrap period; zero uses start time.
	DeployedAt   uint64           `yaml:"deployed_at"`
	Price        string           `yaml:"price"`
	RewardsOwner string           `yaml:"rewards_owner"`
	Balances     []GenesisBalance `yaml:"balances"`
}

// GenesisBalance is an initial token holding.
type GenesisBalance struct {
	Address string `yaml:"address"`
	Symbol  string `yaml:"symbol"`
	Amount  string `yaml:"amount"`
}

// ResolvedGenesis is the parsed form of Genesis.
type ResolvedGenesis struct {
	DeployedAt   uint64
	Price        *uint256.Int
	RewardsOwner crypto.Address
	Balances     []bank.Balance
}

// LoadGenesis reads a YAML genesis document.
func LoadGenesis(path string) (*Genesis, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open genesis: %w", err)
	}
	defer file.Close()

	var g Genesis
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&g); err != nil {
		return nil, fmt.Errorf("decode genesis: %w", err)
	}
	return &g, nil
}

// Resolve parses addresses and amounts.
func (g *Genesis) Resolve() (*ResolvedGenesis, error) {
	if g == nil {
		return nil, fmt.Errorf("genesis is missing")
	}
	price, err := ParseAmount(g.Price)
	if err != nil {
		return nil, fmt.Errorf("genesis price: %w", err)
	}
	if price.IsZero() {
		return nil, fmt.Errorf("genesis price must be positive")
	}
	out := &ResolvedGenesis{DeployedAt: g.DeployedAt, Price: price}
	if strings.TrimSpace(g.RewardsOwner) != "" {
		if out.RewardsOwner, err = crypto.DecodeAddress(g.RewardsOwner); err != nil {
			return nil, fmt.Errorf("genesis rewards_owner: %w", err)
		}
	}
	for i, b := range g.Balances {
		addr, err := crypto.DecodeAddress(b.Address)
		if err != nil {
			return nil, fmt.Errorf("genesis balance %d: %w", i, err)
		}
		symbol := bank.NormalizeSymbol(b.Symbol)
		switch symbol {
		case bank.SymbolCollateral, bank.SymbolDebt, bank.SymbolStake:
		default:
			return nil, fmt.Errorf("genesis balance %d: unknown symbol %q", i, b.Symbol)
		}
		amount, err := ParseAmount(b.Amount)
		if err != nil {
			return nil, fmt.Errorf("genesis balance %d: %w", i, err)
		}
		out.Balances = append(out.Balances, bank.Balance{Symbol: symbol, Address: addr, Amount: amount})
	}
	return out, nil
}
