package troves

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Params groups the protocol constants governing troves, fees and redemptions.
// Ratios and fee rates use 18-decimal fixed point.
type Params struct {
	// MCR is the minimum collateral ratio an active trove must keep.
	MCR *uint256.Int
	// MinNetDebt is the smallest debt, excluding gas compensation, a trove may carry.
	MinNetDebt *uint256.Int
	// GasCompensation is reserved in the gas pool for every active trove and
	// included in its recorded debt.
	GasCompensation *uint256.Int
	// RedemptionFeeFloor is the minimum redemption fee rate.
	RedemptionFeeFloor *uint256.Int
	// BorrowingFeeFloor is the minimum borrowing fee rate.
	BorrowingFeeFloor *uint256.Int
	// MaxBorrowingFee caps the borrowing fee rate.
	MaxBorrowingFee *uint256.Int
	// MinuteDecayFactor decays the base rate once per elapsed minute.
	MinuteDecayFactor *uint256.Int
	// RedemptionDisableTCR disables redemptions while the system ratio is below it.
	RedemptionDisableTCR *uint256.Int
	// BootstrapPeriod delays the first redemption after deployment, in seconds.
	BootstrapPeriod uint64
	// LiquidationCollDivisor sets the liquidator's collateral share as coll / divisor.
	LiquidationCollDivisor uint64
	// MaxTroves bounds the ordered index.
	MaxTroves uint64
	// HintSearchLimit bounds hint traversal; zero leaves it bounded by list size.
	HintSearchLimit uint64
}

// DefaultParams mirrors the reference deployment.
func DefaultParams() Params {
	mcr := mustDecimal("1100000000000000000")
	return Params{
		MCR:                    mcr,
		MinNetDebt:             mustDecimal("1800000000000000000000"),
		GasCompensation:        mustDecimal("200000000000000000000"),
		RedemptionFeeFloor:     mustDecimal("5000000000000000"),
		BorrowingFeeFloor:      mustDecimal("5000000000000000"),
		MaxBorrowingFee:        mustDecimal("50000000000000000"),
		MinuteDecayFactor:      mustDecimal("999037758833783000"),
		RedemptionDisableTCR:   clone(mcr),
		BootstrapPeriod:        14 * 24 * 60 * 60,
		LiquidationCollDivisor: 200,
		MaxTroves:              1_000_000,
	}
}

// Validate checks the parameter set for internal consistency.
func (p Params) Validate() error {
	required := map[string]*uint256.Int{
		"mcr":                  p.MCR,
		"minNetDebt":           p.MinNetDebt,
		"gasCompensation":      p.GasCompensation,
		"redemptionFeeFloor":   p.RedemptionFeeFloor,
		"borrowingFeeFloor":    p.BorrowingFeeFloor,
		"maxBorrowingFee":      p.MaxBorrowingFee,
		"minuteDecayFactor":    p.MinuteDecayFactor,
		"redemptionDisableTCR": p.RedemptionDisableTCR,
	}
	for name, value := range required {
		if value == nil {
			return fmt.Errorf("troves: %s must be set", name)
		}
	}
	if !p.MCR.Gt(DecimalPrecision) {
		return fmt.Errorf("troves: mcr must exceed 100%%")
	}
	if p.MinNetDebt.IsZero() {
		return fmt.Errorf("troves: minNetDebt must be positive")
	}
	if p.RedemptionFeeFloor.Gt(DecimalPrecision) || p.BorrowingFeeFloor.Gt(DecimalPrecision) {
		return fmt.Errorf("troves: fee floors cannot exceed 100%%")
	}
	if p.BorrowingFeeFloor.Gt(p.MaxBorrowingFee) {
		return fmt.Errorf("troves: borrowing fee floor exceeds max borrowing fee")
	}
	if p.MinuteDecayFactor.IsZero() || !p.MinuteDecayFactor.Lt(DecimalPrecision) {
		return fmt.Errorf("troves: minute decay factor must be within (0, 1)")
	}
	if p.LiquidationCollDivisor == 0 {
		return fmt.Errorf("troves: liquidation collateral divisor must be positive")
	}
	if p.MaxTroves == 0 {
		return fmt.Errorf("troves: max troves must be positive")
	}
	return nil
}

// Clone returns a deep copy of the parameters.
func (p Params) Clone() Params {
	out := p
	out.MCR = clone(p.MCR)
	out.MinNetDebt = clone(p.MinNetDebt)
	out.GasCompensation = clone(p.GasCompensation)
	out.RedemptionFeeFloor = clone(p.RedemptionFeeFloor)
	out.BorrowingFeeFloor = clone(p.BorrowingFeeFloor)
	out.MaxBorrowingFee = clone(p.MaxBorrowingFee)
	out.MinuteDecayFactor = clone(p.MinuteDecayFactor)
	out.RedemptionDisableTCR = clone(p.RedemptionDisableTCR)
	return out
}
