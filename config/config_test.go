package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"cdpledger/crypto"
	"cdpledger/native/bank"
	"cdpledger/native/troves"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	_, err = os.Stat(path)
	require.NoError(t, err)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.RPCAddress, reloaded.RPCAddress)
	require.Equal(t, cfg.Protocol, reloaded.Protocol)

	params, duration, err := reloaded.Protocol.Params()
	require.NoError(t, err)
	require.Equal(t, troves.DefaultParams(), params)
	require.Equal(t, uint64(7*24*60*60), duration)
}

func TestLoadParsesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `RPCAddress = "127.0.0.1:9000"
DataDir = "./data"
Environment = "prod"

[log]
Level = "DEBUG"
File = "/var/log/cdpd.log"

[indexer]
DSN = "file::memory:"

[rate_limit]
PerSecond = 5.0
Burst = 10

[protocol]
MCR = "1_500_000_000_000_000_000"
MinNetDebt = "1000000000000000000000"
GasCompensation = "0"
RedemptionFeeFloor = "5000000000000000"
BorrowingFeeFloor = "5000000000000000"
MaxBorrowingFee = "50000000000000000"
MinuteDecayFactor = "999037758833783000"
RedemptionDisableTCR = "1100000000000000000"
LiquidationCollDivisor = 200
MaxTroves = 10
RewardsDurationSecs = 3600
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.RPCAddress)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "file::memory:", cfg.Indexer.DSN)

	params, duration, err := cfg.Protocol.Params()
	require.NoError(t, err)
	require.Equal(t, "1500000000000000000", params.MCR.Dec())
	require.True(t, params.GasCompensation.IsZero())
	require.Equal(t, uint64(10), params.MaxTroves)
	require.Equal(t, troves.DefaultParams().BootstrapPeriod, params.BootstrapPeriod)
	require.Equal(t, uint64(3600), duration)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"unknown key":  "Bogus = 1\n",
		"bad level":    "[log]\nLevel = \"loud\"\n",
		"bad mcr":      "[protocol]\nMCR = \"1000000000000000000\"\n",
		"not a number": "[protocol]\nMinNetDebt = \"12abc\"\n",
		"burst":        "[rate_limit]\nPerSecond = 1.0\nBurst = 0\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".toml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestJWTSecretPrefersEnvironment(t *testing.T) {
	auth := Auth{JWTSecret: "file", JWTSecretEnv: "CDP_TEST_JWT"}
	require.Equal(t, "file", auth.JWTSecretValue())
	t.Setenv("CDP_TEST_JWT", "env")
	require.Equal(t, "env", auth.JWTSecretValue())
}

func TestGenesisResolve(t *testing.T) {
	alice := crypto.ModuleAddress("alice")
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	contents := "deployed_at: 1600000000\nprice: \"200000000000000000000\"\nrewards_owner: \"" + alice.Hex() + "\"\n" +
		"balances:\n" +
		"  - address: " + alice.String() + "\n    symbol: coll\n    amount: \"1000000000000000000000\"\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	g, err := LoadGenesis(path)
	require.NoError(t, err)
	resolved, err := g.Resolve()
	require.NoError(t, err)
	require.Equal(t, uint64(1_600_000_000), resolved.DeployedAt)
	require.Equal(t, "200000000000000000000", resolved.Price.Dec())
	require.Equal(t, alice, resolved.RewardsOwner)
	require.Len(t, resolved.Balances, 1)
	require.Equal(t, bank.SymbolCollateral, resolved.Balances[0].Symbol)
	require.Equal(t, alice, resolved.Balances[0].Address)

	g.Balances[0].Symbol = "doge"
	_, err = g.Resolve()
	require.Error(t, err)
	g.Balances[0].Symbol = "COLL"
	g.Price = "0"
	_, err = g.Resolve()
	require.Error(t, err)
}

func TestLoadGenesisRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	require.NoError(t, os.WriteFile(path, []byte("price: \"1\"\nsupply: 5\n"), 0o644))
	_, err := LoadGenesis(path)
	require.Error(t, err)
}
