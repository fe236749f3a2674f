package troves

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestDecPow(t *testing.T) {
	factor := DefaultParams().MinuteDecayFactor
	require.Equal(t, DecimalPrecision, decPow(factor, 0))
	require.Equal(t, factor, decPow(factor, 1))
	require.Equal(t, decMul(factor, factor), decPow(factor, 2))
	require.Equal(t, decPow(factor, maxDecayMinutes), decPow(factor, maxDecayMinutes+10))
}

func TestDecMulRoundsHalfUp(t *testing.T) {
	// 0.5e-18 * 1 rounds up to one unit
	half := new(uint256.Int).Rsh(DecimalPrecision, 1)
	require.Equal(t, uint256.NewInt(1), decMul(uint256.NewInt(1), half))
	require.Equal(t, uint256.NewInt(0), decMul(uint256.NewInt(1), uint256.NewInt(1)))
}

func TestNominalRatioOfZeroDebtIsMax(t *testing.T) {
	require.Equal(t, maxUint256, ComputeNominalCR(whole(1), new(uint256.Int)))
	require.Equal(t, maxUint256, ComputeCR(whole(1), new(uint256.Int), whole(200)))
	require.Equal(t, NICRPrecision, ComputeNominalCR(whole(5), whole(5)))
}

func TestBaseRateFeeClockAdvancesPerMinute(t *testing.T) {
	rate := NewBaseRate(1_000)
	require.True(t, rate.store(milli(10), 1_030))
	require.Equal(t, uint64(1_000), rate.LastFeeOperationTime)
	require.False(t, rate.store(milli(10), 1_059))
	require.True(t, rate.store(milli(10), 1_060))
	require.Equal(t, uint64(1_060), rate.LastFeeOperationTime)
}

func TestBaseRateDecayIsPureFunctionOfTime(t *testing.T) {
	params := DefaultParams()
	rate := &BaseRate{Rate: milli(500), LastFeeOperationTime: 0}
	require.Equal(t, milli(500), rate.Decayed(params, 59))
	first := rate.Decayed(params, 3_600)
	require.Equal(t, first, rate.Decayed(params, 3_600))
	require.True(t, first.Lt(milli(500)))
	require.Equal(t, milli(500), rate.Rate)
}

func TestRedemptionBaseRateCapped(t *testing.T) {
	params := DefaultParams()
	rate := NewBaseRate(0)
	got := rate.RedemptionBaseRate(params, 0, whole(3), whole(2))
	require.Equal(t, DecimalPrecision, got)
	require.Equal(t, DecimalPrecision, RedemptionRate(params, got))
}

func TestBorrowingRateCapped(t *testing.T) {
	params := DefaultParams()
	require.Equal(t, params.BorrowingFeeFloor, BorrowingRate(params, new(uint256.Int)))
	require.Equal(t, params.MaxBorrowingFee, BorrowingRate(params, milli(500)))
	require.Equal(t, whole(5), FeeFor(whole(100), milli(50)))
	require.Equal(t, milli(50), FeePercentage(whole(5), whole(100)))
}
