package troves

import "github.com/holiman/uint256"

// BaseRate is the decaying fee state shared by redemption and borrowing.
// Decay is evaluated lazily from the stored value and the time of the last
// fee operation; nothing ticks in the background.
type BaseRate struct {
	Rate                 *uint256.Int
	LastFeeOperationTime uint64
}

// NewBaseRate returns a zero base rate anchored at now.
func NewBaseRate(now uint64) *BaseRate {
	return &BaseRate{Rate: zero(), LastFeeOperationTime: now}
}

// Clone returns a copy of the fee state.
func (b *BaseRate) Clone() *BaseRate {
	if b == nil {
		return nil
	}
	return &BaseRate{Rate: clone(b.Rate), LastFeeOperationTime: b.LastFeeOperationTime}
}

func (b *BaseRate) minutesPassed(now uint64) uint64 {
	if now <= b.LastFeeOperationTime {
		return 0
	}
	return (now - b.LastFeeOperationTime) / secondsPerMinute
}

// Decayed returns the base rate decayed to now.
func (b *BaseRate) Decayed(params Params, now uint64) *uint256.Int {
	factor := decPow(params.MinuteDecayFactor, b.minutesPassed(now))
	return mulDiv(b.Rate, factor, DecimalPrecision)
}

// nextFeeOperationTime advances the fee clock only after a full minute so
// that frequent operations cannot stall decay.
func (b *BaseRate) nextFeeOperationTime(now uint64) uint64 {
	if now >= b.LastFeeOperationTime+secondsPerMinute {
		return now
	}
	return b.LastFeeOperationTime
}

// store records rate and advances the fee clock. It returns whether anything changed.
func (b *BaseRate) store(rate *uint256.Int, now uint64) bool {
	next := b.nextFeeOperationTime(now)
	changed := !b.Rate.Eq(rate) || next != b.LastFeeOperationTime
	b.Rate = clone(rate)
	b.LastFeeOperationTime = next
	return changed
}

// RedemptionBaseRate returns the base rate after a redemption drawing
// collDrawn out of totalColl: min(decayed + collDrawn/totalColl, 100%).
func (b *BaseRate) RedemptionBaseRate(params Params, now uint64, collDrawn, totalColl *uint256.Int) *uint256.Int {
	rate := b.Decayed(params, now)
	if !totalColl.IsZero() {
		rate.Add(rate, mulDiv(collDrawn, DecimalPrecision, totalColl))
	}
	return minOf(rate, DecimalPrecision)
}

// RedemptionRate returns the redemption fee rate for a given base rate.
func RedemptionRate(params Params, baseRate *uint256.Int) *uint256.Int {
	return minOf(new(uint256.Int).Add(params.RedemptionFeeFloor, baseRate), DecimalPrecision)
}

// BorrowingRate returns the borrowing fee rate for a given base rate.
func BorrowingRate(params Params, baseRate *uint256.Int) *uint256.Int {
	return minOf(new(uint256.Int).Add(params.BorrowingFeeFloor, baseRate), params.MaxBorrowingFee)
}

// FeeFor applies rate to amount.
func FeeFor(amount, rate *uint256.Int) *uint256.Int {
	return mulDiv(amount, rate, DecimalPrecision)
}

// FeePercentage returns fee / amount in 18-decimal fixed point.
func FeePercentage(fee, amount *uint256.Int) *uint256.Int {
	if amount.IsZero() {
		return zero()
	}
	return mulDiv(fee, DecimalPrecision, amount)
}
