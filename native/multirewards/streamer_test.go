package multirewards

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"cdpledger/core/events"
	"cdpledger/crypto"
	"cdpledger/native/bank"
	nativecommon "cdpledger/native/common"
)

const week = uint64(7 * 24 * 60 * 60)

type fixture struct {
	streamer    *Streamer
	ledger      *bank.Ledger
	clock       *nativecommon.ManualClock
	owner       crypto.Address
	distributor crypto.Address
	rec         *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ledger:      bank.NewLedger(),
		clock:       nativecommon.NewManualClock(time.Unix(1_700_000_000, 0)),
		owner:       crypto.ModuleAddress("owner"),
		distributor: crypto.ModuleAddress("troveManager"),
		rec:         &events.Recorder{},
	}
	f.streamer = NewStreamer(f.owner, crypto.ModuleAddress("multiRewards"), bank.SymbolStake, f.ledger)
	f.streamer.SetClock(f.clock)
	f.streamer.SetEmitter(f.rec)
	require.NoError(t, f.streamer.AddRewardToken(f.owner, bank.SymbolDebt, []crypto.Address{f.distributor}, week))
	require.NoError(t, f.streamer.AddRewardToken(f.owner, bank.SymbolCollateral, []crypto.Address{f.distributor}, week))
	return f
}

func (f *fixture) fund(t *testing.T, symbol string, to crypto.Address, amount *uint256.Int) {
	t.Helper()
	require.NoError(t, f.ledger.Mint(symbol, to, amount))
}

func TestRewardTokensInRegistrationOrder(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, []string{bank.SymbolDebt, bank.SymbolCollateral}, f.streamer.RewardTokens())
	require.ErrorIs(t, f.streamer.AddRewardToken(f.owner, bank.SymbolDebt, nil, week), ErrRewardExists)
	require.ErrorIs(t, f.streamer.AddRewardToken(f.distributor, "OTHER", nil, week), ErrNotOwner)
}

func TestStakeZeroFails(t *testing.T) {
	f := newFixture(t)
	staker := crypto.ModuleAddress("staker")
	require.ErrorIs(t, f.streamer.Stake(staker, uint256.NewInt(0)), ErrZeroAmount)
	require.ErrorIs(t, f.streamer.Withdraw(staker, uint256.NewInt(0)), ErrZeroWithdraw)
}

func TestNotifyRequiresDistributor(t *testing.T) {
	f := newFixture(t)
	stranger := crypto.ModuleAddress("stranger")
	f.fund(t, bank.SymbolCollateral, stranger, uint256.NewInt(100))
	require.ErrorIs(t, f.streamer.NotifyRewardAmount(stranger, bank.SymbolCollateral, uint256.NewInt(100)), ErrNotDistributor)
	require.ErrorIs(t, f.streamer.NotifyRewardAmount(f.distributor, "UNKNOWN", uint256.NewInt(1)), ErrUnknownToken)

	require.NoError(t, f.streamer.SetRewardsDistributor(f.owner, bank.SymbolCollateral, stranger, true))
	require.NoError(t, f.streamer.NotifyRewardAmount(stranger, bank.SymbolCollateral, uint256.NewInt(100)))
	require.Equal(t, uint64(100), f.ledger.BalanceOf(bank.SymbolCollateral, f.streamer.Account()).Uint64())
}

func TestNotifyMidEpochFoldsLeftover(t *testing.T) {
	f := newFixture(t)
	duration := uint256.NewInt(week)
	r1 := new(uint256.Int).Mul(duration, uint256.NewInt(1_000_000))
	r2 := new(uint256.Int).Mul(duration, uint256.NewInt(2_000_000))
	f.fund(t, bank.SymbolCollateral, f.distributor, new(uint256.Int).Add(r1, r2))

	require.NoError(t, f.streamer.NotifyRewardAmount(f.distributor, bank.SymbolCollateral, r1))
	data, err := f.streamer.RewardData(bank.SymbolCollateral)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000), data.RewardRate.Uint64())

	d := uint64(24 * 60 * 60)
	f.clock.Advance(time.Duration(d) * time.Second)
	require.NoError(t, f.streamer.NotifyRewardAmount(f.distributor, bank.SymbolCollateral, r2))

	// (R1*(D-d)/D + R2) / D
	leftover := new(uint256.Int).Mul(r1, uint256.NewInt(week-d))
	leftover.Div(leftover, duration)
	expected := new(uint256.Int).Add(leftover, r2)
	expected.Div(expected, duration)

	data, err = f.streamer.RewardData(bank.SymbolCollateral)
	require.NoError(t, err)
	require.Equal(t, expected, data.RewardRate)
	require.Equal(t, f.streamer.now()+week, data.PeriodFinish)
}

func TestNotifyAfterEpochUsesFreshRate(t *testing.T) {
	f := newFixture(t)
	amount := new(uint256.Int).Mul(uint256.NewInt(week), uint256.NewInt(5))
	f.fund(t, bank.SymbolDebt, f.distributor, new(uint256.Int).Mul(amount, uint256.NewInt(2)))
	require.NoError(t, f.streamer.NotifyRewardAmount(f.distributor, bank.SymbolDebt, amount))
	f.clock.Advance(time.Duration(week+1) * time.Second)
	require.NoError(t, f.streamer.NotifyRewardAmount(f.distributor, bank.SymbolDebt, amount))
	data, err := f.streamer.RewardData(bank.SymbolDebt)
	require.NoError(t, err)
	require.Equal(t, uint64(5), data.RewardRate.Uint64())
}

func TestSingleStakerEarnsWholeStream(t *testing.T) {
	f := newFixture(t)
	staker := crypto.ModuleAddress("staker")
	stake := uint256.NewInt(100)
	f.fund(t, bank.SymbolStake, staker, stake)
	require.NoError(t, f.streamer.Stake(staker, stake))

	reward := new(uint256.Int).Mul(uint256.NewInt(week), uint256.NewInt(1_000))
	f.fund(t, bank.SymbolCollateral, f.distributor, reward)
	require.NoError(t, f.streamer.NotifyRewardAmount(f.distributor, bank.SymbolCollateral, reward))

	f.clock.Advance(time.Duration(week/2) * time.Second)
	half := f.streamer.Earned(staker, bank.SymbolCollateral)
	require.Equal(t, new(uint256.Int).Div(reward, uint256.NewInt(2)), half)

	f.clock.Advance(time.Duration(week) * time.Second)
	require.Equal(t, reward, f.streamer.Earned(staker, bank.SymbolCollateral))
	require.Equal(t, reward, f.streamer.RewardForDuration(bank.SymbolCollateral))

	paid, err := f.streamer.Exit(staker)
	require.NoError(t, err)
	require.Equal(t, reward, paid[bank.SymbolCollateral])
	require.Equal(t, reward, f.ledger.BalanceOf(bank.SymbolCollateral, staker))
	require.Equal(t, stake, f.ledger.BalanceOf(bank.SymbolStake, staker))
	require.True(t, f.streamer.TotalSupply().IsZero())
	require.True(t, f.streamer.Earned(staker, bank.SymbolCollateral).IsZero())
	require.Len(t, f.rec.OfType(events.TypeRewardPaid), 1)
}

func TestTwoStakersSplitProRata(t *testing.T) {
	f := newFixture(t)
	alice, bob := crypto.ModuleAddress("alice"), crypto.ModuleAddress("bob")
	f.fund(t, bank.SymbolStake, alice, uint256.NewInt(300))
	f.fund(t, bank.SymbolStake, bob, uint256.NewInt(100))
	require.NoError(t, f.streamer.Stake(alice, uint256.NewInt(300)))
	require.NoError(t, f.streamer.Stake(bob, uint256.NewInt(100)))

	reward := new(uint256.Int).Mul(uint256.NewInt(week), uint256.NewInt(400))
	f.fund(t, bank.SymbolDebt, f.distributor, reward)
	require.NoError(t, f.streamer.NotifyRewardAmount(f.distributor, bank.SymbolDebt, reward))
	f.clock.Advance(time.Duration(week) * time.Second)

	require.Equal(t, new(uint256.Int).Mul(uint256.NewInt(week), uint256.NewInt(300)), f.streamer.Earned(alice, bank.SymbolDebt))
	require.Equal(t, new(uint256.Int).Mul(uint256.NewInt(week), uint256.NewInt(100)), f.streamer.Earned(bob, bank.SymbolDebt))
}

func TestSetRewardsDurationOnlyAfterPeriod(t *testing.T) {
	f := newFixture(t)
	amount := uint256.NewInt(week)
	f.fund(t, bank.SymbolDebt, f.distributor, amount)
	require.NoError(t, f.streamer.NotifyRewardAmount(f.distributor, bank.SymbolDebt, amount))
	require.ErrorIs(t, f.streamer.SetRewardsDuration(f.owner, bank.SymbolDebt, 2*week), ErrPeriodActive)
	f.clock.Advance(time.Duration(week+1) * time.Second)
	require.ErrorIs(t, f.streamer.SetRewardsDuration(f.owner, bank.SymbolDebt, 0), ErrInvalidDuration)
	require.NoError(t, f.streamer.SetRewardsDuration(f.owner, bank.SymbolDebt, 2*week))
	data, err := f.streamer.RewardData(bank.SymbolDebt)
	require.NoError(t, err)
	require.Equal(t, 2*week, data.RewardsDuration)
}

func TestExportImportRoundTrip(t *testing.T) {
	f := newFixture(t)
	staker := crypto.ModuleAddress("staker")
	f.fund(t, bank.SymbolStake, staker, uint256.NewInt(10))
	require.NoError(t, f.streamer.Stake(staker, uint256.NewInt(10)))
	reward := uint256.NewInt(week * 3)
	f.fund(t, bank.SymbolCollateral, f.distributor, reward)
	require.NoError(t, f.streamer.NotifyRewardAmount(f.distributor, bank.SymbolCollateral, reward))
	f.clock.Advance(time.Hour)
	require.NoError(t, f.streamer.Withdraw(staker, uint256.NewInt(4)))

	restored := NewStreamer(f.owner, f.streamer.Account(), bank.SymbolStake, f.ledger)
	restored.SetClock(f.clock)
	restored.Import(f.streamer.Export())
	require.Equal(t, f.streamer.Export(), restored.Export())
	require.Equal(t, f.streamer.TotalSupply(), restored.TotalSupply())
	require.Equal(t, f.streamer.Earned(staker, bank.SymbolCollateral), restored.Earned(staker, bank.SymbolCollateral))
}

func TestImportSkipsNilAmounts(t *testing.T) {
	f := newFixture(t)
	staker := crypto.ModuleAddress("staker")
	snap := f.streamer.Export()
	snap.Balances = []StakeBalance{{Account: staker}}
	snap.Users = []UserReward{{Account: staker, Token: bank.SymbolCollateral, Accrued: uint256.NewInt(7)}}

	restored := NewStreamer(f.owner, f.streamer.Account(), bank.SymbolStake, f.ledger)
	restored.SetClock(f.clock)
	require.NotPanics(t, func() { restored.Import(snap) })
	require.True(t, restored.TotalSupply().IsZero())
	require.True(t, restored.BalanceOf(staker).IsZero())
	require.Equal(t, uint256.NewInt(7), restored.Earned(staker, bank.SymbolCollateral))
}
