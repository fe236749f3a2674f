package troves

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

func (f *fixture) redeemer(t *testing.T, amount *uint256.Int) crypto.Address {
	t.Helper()
	addr := crypto.ModuleAddress("redeemer")
	require.NoError(t, f.ledger.Mint(bank.SymbolDebt, addr, amount))
	return addr
}

func request(redeemer crypto.Address, amount *uint256.Int) RedemptionRequest {
	return RedemptionRequest{Redeemer: redeemer, Amount: amount, MaxFeePercentage: clone(DecimalPrecision)}
}

func TestRedeemClosesTrovesInOrderThenPartial(t *testing.T) {
	f := newFixture(t)
	a, b, c, d := f.openABCD(t)
	redeemer := f.redeemer(t, whole(9_000))
	systemColl := f.m.Store().EntireSystemColl()

	res, err := f.m.Redeem(request(redeemer, whole(9_000)))
	require.NoError(t, err)
	require.Equal(t, []crypto.Address{a, b, c}, res.Closed)
	require.Equal(t, d, res.Partial)
	require.Equal(t, whole(9_000), res.Redeemed)
	require.Equal(t, whole(45), res.CollDrawn)

	for _, owner := range []crypto.Address{a, b, c} {
		require.Equal(t, StatusClosedByRedemption, f.m.Store().Status(owner))
		require.True(t, f.m.Store().Get(owner).Debt.IsZero())
		require.False(t, f.m.Sorted().Contains(owner))
	}
	partial := f.m.Store().Get(d)
	require.Equal(t, whole(3_200), partial.Debt)
	require.Equal(t, whole(37), partial.Coll)
	require.Equal(t, []crypto.Address{d}, f.m.Sorted().IDs())
	require.Equal(t, []crypto.Address{d}, f.m.Store().Owners())

	// residual collateral belongs to the closed troves' owners
	require.Equal(t, milli(3_200), f.pool.Balance(a))
	require.Equal(t, milli(4_300), f.pool.Balance(b))
	require.Equal(t, milli(9_400), f.pool.Balance(c))
	require.Equal(t, milli(16_900), f.ledger.BalanceOf(bank.SymbolCollateral, f.accounts.SurplusPool))
	require.True(t, f.pool.Balance(redeemer).IsZero())

	expectedBase := mulDiv(whole(45), DecimalPrecision, systemColl)
	require.Equal(t, expectedBase, res.BaseRate)
	require.Equal(t, expectedBase, f.m.BaseRate().Rate)
	expectedFee := FeeFor(whole(45), RedemptionRate(f.m.Params(), expectedBase))
	require.Equal(t, expectedFee, res.Fee)

	require.True(t, f.ledger.BalanceOf(bank.SymbolDebt, redeemer).IsZero())
	require.Equal(t, new(uint256.Int).Sub(whole(45), expectedFee), f.ledger.BalanceOf(bank.SymbolCollateral, redeemer))
	require.Equal(t, expectedFee, f.ledger.BalanceOf(bank.SymbolCollateral, f.streamer.Account()))
	require.Equal(t, whole(200), f.ledger.BalanceOf(bank.SymbolDebt, f.accounts.GasPool))
	require.Equal(t, f.m.Store().EntireSystemColl(), f.ledger.BalanceOf(bank.SymbolCollateral, f.accounts.ActivePool))

	require.Len(t, f.rec.OfType(events.TypeRedemption), 1)
	require.Len(t, f.rec.OfType(events.TypeSurplusCredited), 3)
	require.Len(t, f.rec.OfType(events.TypeBaseRateUpdated), 1)
}

func TestRedeemPartialWithHints(t *testing.T) {
	f := newFixture(t)
	a, b, c, d := f.openABCD(t)
	redeemer := f.redeemer(t, whole(5_000))
	price := whole(200)

	first, partialNICR, truncated := f.m.RedemptionHints(whole(5_000), price, 0)
	require.Equal(t, a, first)
	require.Equal(t, whole(5_000), truncated)
	require.Equal(t, ComputeNominalCR(milli(24_400), whole(3_200)), partialNICR)
	upper, lower := f.m.InsertHintsForNICR(partialNICR)

	req := request(redeemer, whole(5_000))
	req.FirstHint = first
	req.PartialNICR = partialNICR
	req.UpperPartialHint, req.LowerPartialHint = upper, lower
	res, err := f.m.Redeem(req)
	require.NoError(t, err)
	require.Equal(t, []crypto.Address{a, b}, res.Closed)
	require.Equal(t, c, res.Partial)

	require.Equal(t, whole(3_200), f.m.Store().Get(c).Debt)
	require.Equal(t, milli(24_400), f.m.Store().Get(c).Coll)
	require.Equal(t, whole(4_200), f.m.Store().Get(d).Debt)
	require.Equal(t, []crypto.Address{d, c}, f.m.Sorted().IDs())
	f.requireSorted(t)
}

func TestRedeemSkipsTrovesBelowMCR(t *testing.T) {
	f := newFixture(t)
	a, b, _, _ := f.openABCD(t)
	f.feed.Set(whole(180))
	redeemer := f.redeemer(t, whole(2_000))

	res, err := f.m.Redeem(request(redeemer, whole(2_000)))
	require.NoError(t, err)
	require.Equal(t, []crypto.Address{b}, res.Closed)
	require.True(t, f.m.Store().IsActive(a))
	require.Equal(t, a, f.m.Sorted().Last())
}

func TestRedeemInvalidFirstHintFallsBackToTail(t *testing.T) {
	f := newFixture(t)
	a, _, _, d := f.openABCD(t)
	redeemer := f.redeemer(t, whole(2_000))

	req := request(redeemer, whole(2_000))
	req.FirstHint = d
	res, err := f.m.Redeem(req)
	require.NoError(t, err)
	require.Equal(t, []crypto.Address{a}, res.Closed)
}

func TestRedeemCancelsPartialBelowMinNetDebt(t *testing.T) {
	f := newFixture(t)
	a, b, c, _ := f.openABCD(t)
	redeemer := f.redeemer(t, whole(6_300))

	res, err := f.m.Redeem(request(redeemer, whole(6_300)))
	require.NoError(t, err)
	require.Equal(t, []crypto.Address{a, b}, res.Closed)
	require.True(t, res.Partial.IsZero())
	require.Equal(t, whole(4_000), res.Redeemed)
	require.Equal(t, whole(4_200), f.m.Store().Get(c).Debt)
	require.Equal(t, whole(2_300), f.ledger.BalanceOf(bank.SymbolDebt, redeemer))
}

func TestRedeemCancelsPartialOnStaleNICR(t *testing.T) {
	f := newFixture(t)
	f.openABCD(t)
	redeemer := f.redeemer(t, whole(5_000))

	req := request(redeemer, whole(5_000))
	req.PartialNICR = uint256.NewInt(1)
	res, err := f.m.Redeem(req)
	require.NoError(t, err)
	require.Equal(t, whole(4_000), res.Redeemed)
	require.True(t, res.Partial.IsZero())
}

func TestRedeemMaxIterations(t *testing.T) {
	f := newFixture(t)
	a, _, _, _ := f.openABCD(t)
	redeemer := f.redeemer(t, whole(9_000))

	req := request(redeemer, whole(9_000))
	req.MaxIterations = 1
	res, err := f.m.Redeem(req)
	require.NoError(t, err)
	require.Equal(t, []crypto.Address{a}, res.Closed)
	require.Equal(t, whole(2_000), res.Redeemed)
}

func TestRedeemNeverClosesLastTrove(t *testing.T) {
	f := newFixture(t)
	a := f.open(t, "A", milli(13_200), whole(2_200))
	d := f.open(t, "D", whole(42), whole(4_200))
	redeemer := f.redeemer(t, whole(6_000))

	first, partialNICR, truncated := f.m.RedemptionHints(whole(6_000), whole(200), 0)
	require.Equal(t, a, first)
	require.True(t, partialNICR.IsZero())
	require.Equal(t, whole(2_000), truncated)

	res, err := f.m.Redeem(request(redeemer, whole(6_000)))
	require.NoError(t, err)
	require.Equal(t, []crypto.Address{a}, res.Closed)
	require.Equal(t, truncated, res.Redeemed)
	require.True(t, f.m.Store().IsActive(d))
}

func TestRedeemUnableToRedeem(t *testing.T) {
	f := newFixture(t)
	f.openABCD(t)
	redeemer := f.redeemer(t, whole(300))

	_, err := f.m.Redeem(request(redeemer, whole(300)))
	require.ErrorIs(t, err, ErrUnableToRedeem)
}

func TestRedeemValidation(t *testing.T) {
	f := newFixture(t)
	f.openABCD(t)
	redeemer := f.redeemer(t, whole(2_000))

	req := request(redeemer, whole(2_000))
	req.MaxFeePercentage = uint256.NewInt(1)
	_, err := f.m.Redeem(req)
	require.ErrorIs(t, err, ErrInvalidMaxFee)

	_, err = f.m.Redeem(request(redeemer, new(uint256.Int)))
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.m.Redeem(request(redeemer, whole(2_001)))
	require.ErrorIs(t, err, ErrInsufficientBalance)

	f.m.SetDeployedAt(f.m.Now())
	_, err = f.m.Redeem(request(redeemer, whole(2_000)))
	require.ErrorIs(t, err, ErrBootstrapPeriod)
	f.m.SetDeployedAt(0)

	f.feed.Set(whole(130))
	_, err = f.m.Redeem(request(redeemer, whole(2_000)))
	require.ErrorIs(t, err, ErrRedemptionsDisabled)
	f.feed.Set(whole(200))

	f.m.SetPauses(nativecommon.NewPauses(moduleName))
	_, err = f.m.Redeem(request(redeemer, whole(2_000)))
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)
}

func TestRedeemFeeAboveMaximumLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	f.openABCD(t)
	redeemer := f.redeemer(t, whole(2_000))
	before := f.m.Export()
	balances := f.ledger.Export()

	req := request(redeemer, whole(2_000))
	req.MaxFeePercentage = clone(f.m.Params().RedemptionFeeFloor)
	_, err := f.m.Redeem(req)
	require.ErrorIs(t, err, ErrFeeExceedsMax)
	require.Equal(t, before, f.m.Export())
	require.Equal(t, balances, f.ledger.Export())
	require.Empty(t, f.rec.Events())
}

func TestRedemptionBaseRateDecays(t *testing.T) {
	f := newFixture(t)
	f.openABCD(t)
	redeemer := f.redeemer(t, whole(2_000))
	res, err := f.m.Redeem(request(redeemer, whole(2_000)))
	require.NoError(t, err)

	f.clock.Advance(12 * time.Hour)
	decayed := f.m.DecayedBaseRate(f.m.Now())
	half := new(uint256.Int).Rsh(res.BaseRate, 1)
	tolerance := new(uint256.Int).Div(res.BaseRate, uint256.NewInt(1_000))
	diff := new(uint256.Int)
	if decayed.Gt(half) {
		diff.Sub(decayed, half)
	} else {
		diff.Sub(half, decayed)
	}
	require.True(t, diff.Lt(tolerance), "decayed %s, expected about %s", decayed.Dec(), half.Dec())
}
