package borrower

import (
	"errors"

	"cdpledger/native/sortedtroves"
	"cdpledger/native/surplus"
	"cdpledger/native/troves"
)

var (
	ErrDelegateNotApproved    = errors.New("borrower: delegate not approved")
	ErrNotOwner               = errors.New("borrower: caller is not the trove owner")
	ErrZeroAddress            = errors.New("borrower: address cannot be zero")
	ErrSelfDelegation         = errors.New("borrower: cannot delegate to self")
	ErrInvalidAmount          = errors.New("borrower: amount must be greater than zero")
	ErrZeroAdjustment         = errors.New("borrower: there must be either a collateral change or a debt change")
	ErrCollTopUpAndWithdrawal = errors.New("borrower: cannot withdraw and add collateral")
	ErrInsufficientCollateral = errors.New("borrower: collateral withdrawal exceeds trove collateral")
	ErrInsufficientBalance    = errors.New("borrower: caller doesn't have enough balance")
	ErrInvalidRepayment       = errors.New("borrower: amount repaid must not be larger than the trove's debt")
)

// Errors shared with the trove manager.
var (
	ErrInvalidMaxFee    = troves.ErrInvalidMaxFee
	ErrFeeExceedsMax    = troves.ErrFeeExceedsMax
	ErrTroveActive      = troves.ErrTroveActive
	ErrTroveNotActive   = troves.ErrTroveNotActive
	ErrDebtBelowMin     = troves.ErrDebtBelowMin
	ErrICRBelowMCR      = troves.ErrICRBelowMCR
	ErrOnlyOneTrove     = troves.ErrOnlyOneTrove
	ErrNoSurplusToClaim = surplus.ErrNoSurplusToClaim
	ErrListFull         = sortedtroves.ErrListFull
)
