package troves

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"cdpledger/core/events"
	"cdpledger/crypto"
	"cdpledger/native/bank"
)

func TestLiquidateRedistributesToRemainingTroves(t *testing.T) {
	f := newFixture(t)
	a, b, c, d := f.openABCD(t)
	f.feed.Set(whole(180))
	liquidator := crypto.ModuleAddress("keeper")

	res, err := f.m.Liquidate(liquidator, a)
	require.NoError(t, err)
	require.Equal(t, []crypto.Address{a}, res.Liquidated)
	require.Equal(t, whole(2_200), res.DebtRedistributed)
	require.Equal(t, milli(13_134), res.CollRedistributed)

	require.Equal(t, StatusClosedByLiquidation, f.m.Store().Status(a))
	require.False(t, f.m.Sorted().Contains(a))
	require.Equal(t, milli(66), f.ledger.BalanceOf(bank.SymbolCollateral, liquidator))
	require.Equal(t, whole(200), f.ledger.BalanceOf(bank.SymbolDebt, liquidator))

	store := f.m.Store()
	require.Equal(t, whole(12_800), store.EntireSystemDebt())
	require.Equal(t, milli(98_834), store.EntireSystemColl())
	require.Equal(t, store.EntireSystemColl(), f.ledger.BalanceOf(bank.SymbolCollateral, f.accounts.ActivePool))

	totals := store.Totals()
	require.Equal(t, milli(85_700), totals.TotalStakesSnapshot)
	require.Equal(t, milli(98_834), totals.TotalCollateralSnapshot)

	pending := new(uint256.Int)
	for _, owner := range []crypto.Address{b, c, d} {
		require.True(t, store.HasPendingRewards(owner))
		_, debt := store.PendingRewards(owner)
		pending.Add(pending, debt)
	}
	require.False(t, pending.Gt(whole(2_200)))
	require.True(t, new(uint256.Int).Sub(whole(2_200), pending).Lt(uint256.NewInt(1_000)))

	_, pendingB := store.PendingRewards(b)
	_, pendingD := store.PendingRewards(d)
	require.True(t, pendingD.Gt(pendingB))
	f.requireSorted(t)

	require.Len(t, f.rec.OfType(events.TypeTroveLiquidated), 1)
	require.Len(t, f.rec.OfType(events.TypeLiquidationRewardsUpdated), 1)
}

func TestApplyPendingRewardsMovesDefaultToActive(t *testing.T) {
	f := newFixture(t)
	a, b, _, _ := f.openABCD(t)
	f.feed.Set(whole(180))
	_, err := f.m.Liquidate(crypto.ModuleAddress("keeper"), a)
	require.NoError(t, err)

	store := f.m.Store()
	systemDebt := store.EntireSystemDebt()
	coll, debt := store.EntireDebtAndColl(b)
	store.ApplyPendingRewards(b)
	trove := store.Get(b)
	require.Equal(t, coll, trove.Coll)
	require.Equal(t, debt, trove.Debt)
	require.False(t, store.HasPendingRewards(b))
	require.Equal(t, systemDebt, store.EntireSystemDebt())

	stake := store.ComputeNewStake(whole(10))
	require.Equal(t, mulDiv(whole(10), milli(85_700), milli(98_834)), stake)
}

func TestBatchLiquidateEvaluatesBeforeRedistribution(t *testing.T) {
	f := newFixture(t)
	a, b, c, d := f.openABCD(t)
	f.feed.Set(whole(150))

	res, err := f.m.BatchLiquidate(crypto.ModuleAddress("keeper"), []crypto.Address{a, b, c, a, d})
	require.NoError(t, err)
	require.Equal(t, []crypto.Address{a, b, c}, res.Liquidated)
	require.Equal(t, uint64(1), f.m.Store().OwnersCount())
	require.Equal(t, []crypto.Address{d}, f.m.Sorted().IDs())
	require.Equal(t, whole(600), res.DebtGasCompensation)
}

func TestLiquidateRejections(t *testing.T) {
	f := newFixture(t)
	a := f.open(t, "A", milli(13_200), whole(2_200))
	f.feed.Set(whole(180))
	keeper := crypto.ModuleAddress("keeper")

	_, err := f.m.Liquidate(keeper, a)
	require.ErrorIs(t, err, ErrOnlyOneTrove)

	d := f.open(t, "D", whole(42), whole(4_200))
	_, err = f.m.Liquidate(keeper, d)
	require.ErrorIs(t, err, ErrNotLiquidatable)
	_, err = f.m.Liquidate(keeper, crypto.ModuleAddress("nobody"))
	require.ErrorIs(t, err, ErrNotLiquidatable)
}
