package config

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"cdpledger/native/troves"
)

// Protocol carries the protocol parameters as decimal strings in base units
// (1e18 = 100% for rates).
type Protocol struct {
	MCR                    string `toml:"MCR"`
	MinNetDebt             string `toml:"MinNetDebt"`
	GasCompensation        string `toml:"GasCompensation"`
	RedemptionFeeFloor     string `toml:"RedemptionFeeFloor"`
	BorrowingFeeFloor      string `toml:"BorrowingFeeFloor"`
	MaxBorrowingFee        string `toml:"MaxBorrowingFee"`
	MinuteDecayFactor      string `toml:"MinuteDecayFactor"`
	RedemptionDisableTCR   string `toml:"RedemptionDisableTCR"`
	BootstrapPeriodSecs    uint64 `toml:"BootstrapPeriodSecs"`
	LiquidationCollDivisor uint64 `toml:"LiquidationCollDivisor"`
	MaxTroves              uint64 `toml:"MaxTroves"`
	HintSearchLimit        uint64 `toml:"HintSearchLimit"`
	RewardsDurationSecs    uint64 `toml:"RewardsDurationSecs"`
}

// DefaultProtocol renders troves.DefaultParams.
func DefaultProtocol() Protocol {
	p := troves.DefaultParams()
	return Protocol{
		MCR:                    p.MCR.Dec(),
		MinNetDebt:             p.MinNetDebt.Dec(),
		GasCompensation:        p.GasCompensation.Dec(),
		RedemptionFeeFloor:     p.RedemptionFeeFloor.Dec(),
		BorrowingFeeFloor:      p.BorrowingFeeFloor.Dec(),
		MaxBorrowingFee:        p.MaxBorrowingFee.Dec(),
		MinuteDecayFactor:      p.MinuteDecayFactor.Dec(),
		RedemptionDisableTCR:   p.RedemptionDisableTCR.Dec(),
		BootstrapPeriodSecs:    p.BootstrapPeriod,
		LiquidationCollDivisor: p.LiquidationCollDivisor,
		MaxTroves:              p.MaxTroves,
		HintSearchLimit:        p.HintSearchLimit,
		RewardsDurationSecs:    7 * 24 * 60 * 60,
	}
}

func (p *Protocol) normalize() {
	for _, field := range []*string{
		&p.MCR, &p.MinNetDebt, &p.GasCompensation, &p.RedemptionFeeFloor,
		&p.BorrowingFeeFloor, &p.MaxBorrowingFee, &p.MinuteDecayFactor, &p.RedemptionDisableTCR,
	} {
		*field = strings.ReplaceAll(strings.TrimSpace(*field), "_", "")
	}
}

// ParseAmount parses a non-negative decimal integer in base units.
func ParseAmount(value string) (*uint256.Int, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(value), "_", "")
	if trimmed == "" {
		return nil, fmt.Errorf("amount must not be empty")
	}
	amount, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	return amount, nil
}

// Params parses and validates the protocol parameters. The second return is
// the reward epoch length in seconds.
func (p Protocol) Params() (troves.Params, uint64, error) {
	params := troves.Params{
		BootstrapPeriod:        p.BootstrapPeriodSecs,
		LiquidationCollDivisor: p.LiquidationCollDivisor,
		MaxTroves:              p.MaxTroves,
		HintSearchLimit:        p.HintSearchLimit,
	}
	fields := []struct {
		name  string
		value string
		dst   **uint256.Int
	}{
		{"MCR", p.MCR, &params.MCR},
		{"MinNetDebt", p.MinNetDebt, &params.MinNetDebt},
		{"GasCompensation", p.GasCompensation, &params.GasCompensation},
		{"RedemptionFeeFloor", p.RedemptionFeeFloor, &params.RedemptionFeeFloor},
		{"BorrowingFeeFloor", p.BorrowingFeeFloor, &params.BorrowingFeeFloor},
		{"MaxBorrowingFee", p.MaxBorrowingFee, &params.MaxBorrowingFee},
		{"MinuteDecayFactor", p.MinuteDecayFactor, &params.MinuteDecayFactor},
		{"RedemptionDisableTCR", p.RedemptionDisableTCR, &params.RedemptionDisableTCR},
	}
	for _, f := range fields {
		amount, err := ParseAmount(f.value)
		if err != nil {
			return troves.Params{}, 0, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = amount
	}
	if err := params.Validate(); err != nil {
		return troves.Params{}, 0, err
	}
	if p.RewardsDurationSecs == 0 {
		return troves.Params{}, 0, fmt.Errorf("RewardsDurationSecs must be positive")
	}
	return params, p.RewardsDurationSecs, nil
}
