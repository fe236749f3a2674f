package troves

import "errors"

var (
	ErrNilState             = errors.New("troves: manager not configured")
	ErrInvalidMaxFee        = errors.New("troves: max fee percentage must be between the fee floor and 100%")
	ErrBootstrapPeriod      = errors.New("troves: redemptions are not allowed during the bootstrap period")
	ErrRedemptionsDisabled  = errors.New("troves: redemptions disabled while TCR is below the threshold")
	ErrInvalidAmount        = errors.New("troves: amount must be greater than zero")
	ErrInsufficientBalance  = errors.New("troves: requested redemption amount must be <= user's debt token balance")
	ErrUnableToRedeem       = errors.New("troves: unable to redeem any amount")
	ErrFeeExceedsMax        = errors.New("troves: fee exceeded provided maximum")
	ErrFeeExceedsCollateral = errors.New("troves: fee would eat up all returned collateral")
	ErrNotLiquidatable      = errors.New("troves: nothing to liquidate")
	ErrOnlyOneTrove         = errors.New("troves: only one trove in the system")
	ErrTroveActive          = errors.New("troves: trove is active")
	ErrTroveNotActive       = errors.New("troves: trove does not exist or is closed")
	ErrDebtBelowMin         = errors.New("troves: trove's net debt must be greater than minimum")
	ErrICRBelowMCR          = errors.New("troves: an operation that would result in ICR < MCR is not permitted")
)
