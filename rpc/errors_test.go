package rpc

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"cdpledger/native/borrower"
	nativecommon "cdpledger/native/common"
	"cdpledger/native/sortedtroves"
	"cdpledger/native/surplus"
	"cdpledger/native/troves"
)

func TestClassifyMapsTaxonomy(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{borrower.ErrDelegateNotApproved, http.StatusForbidden},
		{surplus.ErrCallerNotBorrowerOps, http.StatusForbidden},
		{troves.ErrICRBelowMCR, http.StatusUnprocessableEntity},
		{fmt.Errorf("open: %w", troves.ErrDebtBelowMin), http.StatusUnprocessableEntity},
		{troves.ErrRedemptionsDisabled, http.StatusUnprocessableEntity},
		{sortedtroves.ErrInvalidHint, http.StatusConflict},
		{borrower.ErrNoSurplusToClaim, http.StatusNotFound},
		{troves.ErrUnableToRedeem, http.StatusNotFound},
		{nativecommon.ErrModulePaused, http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, code := classify(tc.err)
		require.Equal(t, tc.status, status, tc.err.Error())
		require.NotZero(t, code)
	}
}
