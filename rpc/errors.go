package rpc

import (
	"errors"
	"net/http"

	"cdpledger/indexer"
	"cdpledger/native/bank"
	"cdpledger/native/borrower"
	nativecommon "cdpledger/native/common"
	"cdpledger/native/multirewards"
	"cdpledger/native/pricefeed"
	"cdpledger/native/sortedtroves"
	"cdpledger/native/surplus"
	"cdpledger/native/troves"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeForbidden      = -32003
	codeNotFound       = -32004
	codeConflict       = -32009
	codeUnprocessable  = -32022
	codeUnavailable    = -32023
	codeRateLimited    = -32029
)

var (
	forbiddenErrors = []error{
		borrower.ErrDelegateNotApproved,
		borrower.ErrNotOwner,
		surplus.ErrCallerNotTroveManager,
		surplus.ErrCallerNotBorrowerOps,
		multirewards.ErrNotOwner,
		multirewards.ErrNotDistributor,
	}
	notFoundErrors = []error{
		errTroveNotFound,
		indexer.ErrNotFound,
		troves.ErrTroveNotActive,
		troves.ErrUnableToRedeem,
		troves.ErrNotLiquidatable,
		surplus.ErrNoSurplusToClaim,
		sortedtroves.ErrNotFound,
		multirewards.ErrUnknownToken,
	}
	conflictErrors = []error{
		sortedtroves.ErrInvalidHint,
		sortedtroves.ErrAlreadyExists,
		sortedtroves.ErrListFull,
		troves.ErrTroveActive,
		multirewards.ErrRewardExists,
		multirewards.ErrPeriodActive,
	}
	unprocessableErrors = []error{
		troves.ErrInvalidMaxFee,
		troves.ErrBootstrapPeriod,
		troves.ErrRedemptionsDisabled,
		troves.ErrInvalidAmount,
		troves.ErrInsufficientBalance,
		troves.ErrFeeExceedsMax,
		troves.ErrFeeExceedsCollateral,
		troves.ErrOnlyOneTrove,
		troves.ErrDebtBelowMin,
		troves.ErrICRBelowMCR,
		borrower.ErrZeroAddress,
		borrower.ErrSelfDelegation,
		borrower.ErrInvalidAmount,
		borrower.ErrZeroAdjustment,
		borrower.ErrCollTopUpAndWithdrawal,
		borrower.ErrInsufficientCollateral,
		borrower.ErrInsufficientBalance,
		borrower.ErrInvalidRepayment,
		multirewards.ErrZeroAmount,
		multirewards.ErrZeroWithdraw,
		multirewards.ErrInsufficientStake,
		multirewards.ErrInvalidDuration,
		multirewards.ErrRewardTooHigh,
		sortedtroves.ErrInvalidID,
		sortedtroves.ErrInvalidNICR,
		bank.ErrInsufficientBalance,
		bank.ErrUnknownSymbol,
		bank.ErrSupplyOverflow,
	}
)

// classify maps a ledger error to an HTTP status and JSON-RPC code.
func classify(err error) (int, int) {
	switch {
	case err == nil:
		return http.StatusOK, 0
	case errors.Is(err, nativecommon.ErrModulePaused),
		errors.Is(err, pricefeed.ErrPriceUnavailable),
		errors.Is(err, errIndexerDisabled),
		errors.Is(err, errPriceFixed):
		return http.StatusServiceUnavailable, codeUnavailable
	case matchesAny(err, forbiddenErrors):
		return http.StatusForbidden, codeForbidden
	case matchesAny(err, notFoundErrors):
		return http.StatusNotFound, codeNotFound
	case matchesAny(err, conflictErrors):
		return http.StatusConflict, codeConflict
	case matchesAny(err, unprocessableErrors):
		return http.StatusUnprocessableEntity, codeUnprocessable
	default:
		return http.StatusInternalServerError, codeServerError
	}
}

// errorClass names the taxonomy bucket of an HTTP status for metrics.
func errorClass(status int) string {
	switch status {
	case http.StatusForbidden:
		return "authorization"
	case http.StatusNotFound:
		return "resource_empty"
	case http.StatusConflict:
		return "consistency"
	case http.StatusUnprocessableEntity:
		return "invariant"
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func writeLedgerError(w http.ResponseWriter, id interface{}, err error) {
	status, code := classify(err)
	writeError(w, status, id, code, err.Error(), nil)
}
