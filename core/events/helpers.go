package events

import (
	"strconv"

	"github.com/holiman/uint256"

	"cdpledger/crypto"
)

func formatAmount(value *uint256.Int) string {
	if value == nil {
		return "0"
	}
	return value.Dec()
}

func formatAddress(addr crypto.Address) string {
	if addr.IsZero() {
		return ""
	}
	return addr.String()
}

func formatUint(value uint64) string {
	return strconv.FormatUint(value, 10)
}
