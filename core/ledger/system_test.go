package ledger

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"cdpledger/core/events"
	"cdpledger/crypto"
	"cdpledger/native/bank"
	"cdpledger/native/borrower"
	nativecommon "cdpledger/native/common"
	"cdpledger/native/pricefeed"
	"cdpledger/native/troves"
)

func whole(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), troves.DecimalPrecision)
}

type harness struct {
	sys   *System
	clock *nativecommon.ManualClock
	feed  *pricefeed.Static
	rec   *events.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock: nativecommon.NewManualClock(time.Unix(1_700_000_000, 0)),
		feed:  pricefeed.NewStatic(whole(200)),
		rec:   &events.Recorder{},
	}
	cfg := DefaultConfig()
	cfg.DeployedAt = uint64(h.clock.Now().Unix()) - cfg.Params.BootstrapPeriod - 1
	sys, err := New(cfg, h.feed, h.clock, h.rec)
	require.NoError(t, err)
	h.sys = sys
	return h
}

func (h *harness) open(t *testing.T, label string, coll, debt uint64) crypto.Address {
	t.Helper()
	owner := crypto.ModuleAddress(label)
	require.NoError(t, h.sys.Fund([]bank.Balance{{Symbol: bank.SymbolCollateral, Address: owner, Amount: whole(coll)}}))
	upper, lower := h.sys.InsertHints(whole(coll), new(uint256.Int).Add(whole(debt), whole(210)))
	_, err := h.sys.OpenTrove(borrower.OpenTroveRequest{
		Actor: owner, Principal: owner, Coll: whole(coll), DebtAmount: whole(debt),
		MaxFeePercentage: troves.DecimalPrecision, UpperHint: upper, LowerHint: lower,
	})
	require.NoError(t, err)
	return owner
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	feed := pricefeed.NewStatic(whole(200))
	cfg := DefaultConfig()
	cfg.RewardsDuration = 0
	_, err := New(cfg, feed, nil, nil)
	require.Error(t, err)

	cfg = DefaultConfig()
	cfg.Params.MCR = nil
	_, err = New(cfg, feed, nil, nil)
	require.Error(t, err)
}

func TestBorrowingFeesStreamToStakers(t *testing.T) {
	h := newHarness(t)
	staker := crypto.ModuleAddress("staker")
	require.NoError(t, h.sys.Fund([]bank.Balance{{Symbol: bank.SymbolStake, Address: staker, Amount: whole(100)}}))
	require.NoError(t, h.sys.Stake(staker, whole(100)))

	h.open(t, "alice", 20, 2_000)
	data, err := h.sys.RewardData(bank.SymbolDebt)
	require.NoError(t, err)
	require.False(t, data.RewardRate.IsZero())

	h.clock.Advance(time.Duration(DefaultRewardsDuration) * time.Second)
	info := h.sys.StakeInfo(staker)
	require.Equal(t, whole(100), info.Staked)
	earned := info.Earned[bank.SymbolDebt]
	require.False(t, earned.IsZero())
	require.True(t, earned.Cmp(whole(10)) <= 0)
	require.True(t, info.Earned[bank.SymbolCollateral].IsZero())

	paid, err := h.sys.Exit(staker)
	require.NoError(t, err)
	require.Equal(t, earned, paid[bank.SymbolDebt])
	require.Equal(t, earned, h.sys.Balance(bank.SymbolDebt, staker))
	require.Equal(t, whole(100), h.sys.Balance(bank.SymbolStake, staker))
}

func TestPausedModuleRejectsOperations(t *testing.T) {
	h := newHarness(t)
	owner := h.open(t, "alice", 20, 2_000)

	h.sys.SetPaused(ModuleBorrower, true)
	require.Equal(t, []string{ModuleBorrower}, h.sys.Paused())
	_, err := h.sys.AddColl(owner, owner, whole(1), crypto.ZeroAddress, crypto.ZeroAddress)
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)

	h.sys.SetPaused(ModuleBorrower, false)
	require.Empty(t, h.sys.Paused())
	require.NoError(t, h.sys.Fund([]bank.Balance{{Symbol: bank.SymbolCollateral, Address: owner, Amount: whole(1)}}))
	_, err = h.sys.AddColl(owner, owner, whole(1), crypto.ZeroAddress, crypto.ZeroAddress)
	require.NoError(t, err)
}

func TestSummaryAndQueries(t *testing.T) {
	h := newHarness(t)
	alice := h.open(t, "alice", 20, 2_000)
	bob := h.open(t, "bob", 30, 2_000)

	require.Equal(t, []crypto.Address{bob, alice}, h.sys.SortedTroves())
	view, err := h.sys.Trove(alice)
	require.NoError(t, err)
	require.Equal(t, whole(2_210), view.EntireDebt)
	require.Equal(t, troves.ComputeCR(whole(20), whole(2_210), whole(200)), view.ICR)

	missing, err := h.sys.Trove(crypto.ModuleAddress("nobody"))
	require.NoError(t, err)
	require.Nil(t, missing)

	sum, err := h.sys.Summary()
	require.NoError(t, err)
	require.Equal(t, uint64(2), sum.Troves)
	require.Equal(t, whole(50), sum.TotalColl)
	require.Equal(t, whole(4_420), sum.TotalDebt)
	require.Equal(t, troves.ComputeCR(whole(50), whole(4_420), whole(200)), sum.TCR)

	first, _, truncated, err := h.sys.RedemptionHints(whole(500), 0)
	require.NoError(t, err)
	require.Equal(t, alice, first)
	require.Equal(t, whole(210), truncated)
}

func TestExportRestoreRoundTrip(t *testing.T) {
	h := newHarness(t)
	alice := h.open(t, "alice", 20, 2_000)
	bob := h.open(t, "bob", 30, 2_000)
	delegate := crypto.ModuleAddress("delegate")
	require.NoError(t, h.sys.SetApproval(alice, delegate, true))
	h.sys.SetPaused(ModuleRewards, true)

	snap := h.sys.Export()
	require.Len(t, snap.Approvals, 1)
	require.Equal(t, []string{ModuleRewards}, snap.Paused)

	other := newHarness(t)
	other.open(t, "carol", 25, 2_000)
	require.NoError(t, other.sys.Restore(snap))

	require.Equal(t, snap, other.sys.Export())
	require.Equal(t, []crypto.Address{bob, alice}, other.sys.SortedTroves())
	require.True(t, other.sys.IsApproved(alice, delegate))
	require.Equal(t, []string{ModuleRewards}, other.sys.Paused())
	carol, err := other.sys.Trove(crypto.ModuleAddress("carol"))
	require.NoError(t, err)
	require.Nil(t, carol)
}

func TestRestoreRejectsInconsistentIndex(t *testing.T) {
	h := newHarness(t)
	h.open(t, "alice", 20, 2_000)
	snap := h.sys.Export()
	snap.Troves.Order = nil

	other := newHarness(t)
	bob := other.open(t, "bob", 30, 2_000)
	require.Error(t, other.sys.Restore(snap))
	require.Equal(t, []crypto.Address{bob}, other.sys.SortedTroves())
}
