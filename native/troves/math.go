package troves

import "github.com/holiman/uint256"

var (
	// DecimalPrecision is the 18-decimal fixed point unit; 1e18 == 100%.
	DecimalPrecision = uint256.NewInt(1_000_000_000_000_000_000)
	// NICRPrecision scales nominal collateral ratios.
	NICRPrecision = new(uint256.Int).Mul(DecimalPrecision, uint256.NewInt(100))

	halfDecimal = new(uint256.Int).Rsh(DecimalPrecision, 1)
	maxUint256  = new(uint256.Int).SetAllOne()
)

const (
	secondsPerMinute = 60
	// maxDecayMinutes caps decPow at 1000 years.
	maxDecayMinutes = 525_600_000
)

func mustDecimal(value string) *uint256.Int {
	v, err := uint256.FromDecimal(value)
	if err != nil {
		panic("invalid decimal constant " + value)
	}
	return v
}

func zero() *uint256.Int { return new(uint256.Int) }

func clone(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

func minOf(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return clone(a)
	}
	return clone(b)
}

// mulDiv computes a*b/d with a 512-bit intermediate.
func mulDiv(a, b, d *uint256.Int) *uint256.Int {
	if d.IsZero() {
		return zero()
	}
	out, _ := new(uint256.Int).MulDivOverflow(a, b, d)
	return out
}

// decMul multiplies two 18-decimal values rounding half up.
func decMul(x, y *uint256.Int) *uint256.Int {
	prod := new(uint256.Int).Mul(x, y)
	prod.Add(prod, halfDecimal)
	return prod.Div(prod, DecimalPrecision)
}

// decPow raises an 18-decimal base to an integer number of minutes by
// exponentiation by squaring.
func decPow(base *uint256.Int, minutes uint64) *uint256.Int {
	if minutes > maxDecayMinutes {
		minutes = maxDecayMinutes
	}
	if minutes == 0 {
		return clone(DecimalPrecision)
	}
	y := clone(DecimalPrecision)
	x := clone(base)
	n := minutes
	for n > 1 {
		if n%2 == 0 {
			x = decMul(x, x)
			n /= 2
		} else {
			y = decMul(x, y)
			x = decMul(x, x)
			n = (n - 1) / 2
		}
	}
	return decMul(x, y)
}

// ComputeNominalCR returns coll * 1e20 / debt, or the maximum value for zero debt.
func ComputeNominalCR(coll, debt *uint256.Int) *uint256.Int {
	if debt == nil || debt.IsZero() {
		return clone(maxUint256)
	}
	return mulDiv(coll, NICRPrecision, debt)
}

// ComputeCR returns coll * price / debt, or the maximum value for zero debt.
func ComputeCR(coll, debt, price *uint256.Int) *uint256.Int {
	if debt == nil || debt.IsZero() {
		return clone(maxUint256)
	}
	return mulDiv(coll, price, debt)
}
