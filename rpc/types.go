package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/holiman/uint256"

	"cdpledger/config"
	"cdpledger/core/ledger"
	"cdpledger/crypto"
	"cdpledger/native/borrower"
	"cdpledger/native/multirewards"
	"cdpledger/native/troves"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// paramError marks a malformed request rather than a ledger rejection.
type paramError struct {
	msg string
	err error
}

func (e *paramError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return fmt.Sprintf("%s: %v", e.msg, e.err)
}

func (e *paramError) Unwrap() error { return e.err }

func invalidParams(msg string, err error) error { return &paramError{msg: msg, err: err} }

func isParamError(err error) bool {
	var target *paramError
	return errors.As(err, &target)
}

// decodeParams expects exactly one parameter object.
func decodeParams(params []json.RawMessage, dst interface{}) error {
	if len(params) != 1 {
		return invalidParams("exactly one parameter object expected", nil)
	}
	if err := json.Unmarshal(params[0], dst); err != nil {
		return invalidParams("invalid parameter object", err)
	}
	return nil
}

// decodeOptionalParams accepts zero or one parameter object.
func decodeOptionalParams(params []json.RawMessage, dst interface{}) error {
	if len(params) == 0 {
		return nil
	}
	return decodeParams(params, dst)
}

func parseAmount(field, value string) (*uint256.Int, error) {
	amount, err := config.ParseAmount(value)
	if err != nil {
		return nil, invalidParams(field, err)
	}
	return amount, nil
}

func parseOptionalAmount(field, value string) (*uint256.Int, error) {
	if value == "" {
		return nil, nil
	}
	return parseAmount(field, value)
}

func requireAddress(field string, addr crypto.Address) error {
	if addr.IsZero() {
		return invalidParams(field+" is required", nil)
	}
	return nil
}

func amountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func amountMap(values map[string]*uint256.Int) map[string]string {
	out := make(map[string]string, len(values))
	for token, amount := range values {
		out[token] = amountString(amount)
	}
	return out
}

// --- borrower operations ---

type hintParams struct {
	UpperHint crypto.Address `json:"upperHint"`
	LowerHint crypto.Address `json:"lowerHint"`
}

type openTroveParams struct {
	Principal crypto.Address `json:"principal"`
	Coll      string         `json:"coll"`
	Debt      string         `json:"debt"`
	MaxFee    string         `json:"maxFeePercentage"`
	hintParams
}

type adjustTroveParams struct {
	Principal      crypto.Address `json:"principal"`
	CollTopUp      string         `json:"collTopUp"`
	CollWithdrawal string         `json:"collWithdrawal"`
	DebtChange     string         `json:"debtChange"`
	IsDebtIncrease bool           `json:"isDebtIncrease"`
	MaxFee         string         `json:"maxFeePercentage"`
	hintParams
}

type amountParams struct {
	Principal crypto.Address `json:"principal"`
	Amount    string         `json:"amount"`
	MaxFee    string         `json:"maxFeePercentage"`
	hintParams
}

type principalParams struct {
	Principal crypto.Address `json:"principal"`
}

type approvalParams struct {
	Delegate crypto.Address `json:"delegate"`
	Approved bool           `json:"approved"`
}

type TroveResult struct {
	Owner      crypto.Address `json:"owner"`
	Status     string         `json:"status"`
	Coll       string         `json:"coll"`
	Debt       string         `json:"debt"`
	Stake      string         `json:"stake"`
	EntireColl string         `json:"entireColl,omitempty"`
	EntireDebt string         `json:"entireDebt,omitempty"`
	NICR       string         `json:"nicr,omitempty"`
	ICR        string         `json:"icr,omitempty"`
}

func troveResult(t *troves.Trove) *TroveResult {
	if t == nil {
		return nil
	}
	return &TroveResult{
		Owner:  t.Owner,
		Status: t.Status.String(),
		Coll:   amountString(t.Coll),
		Debt:   amountString(t.Debt),
		Stake:  amountString(t.Stake),
	}
}

func troveViewResult(v *ledger.TroveView) *TroveResult {
	if v == nil {
		return nil
	}
	out := troveResult(v.Trove)
	out.EntireColl = amountString(v.EntireColl)
	out.EntireDebt = amountString(v.EntireDebt)
	out.NICR = amountString(v.NICR)
	out.ICR = amountString(v.ICR)
	return out
}

type OperationResult struct {
	Trove *TroveResult `json:"trove"`
	Fee   string       `json:"fee"`
}

func operationResult(res *borrower.Result) *OperationResult {
	if res == nil {
		return nil
	}
	return &OperationResult{Trove: troveResult(res.Trove), Fee: amountString(res.Fee)}
}

type AmountResult struct {
	Amount string `json:"amount"`
}

// --- trove manager ---

type redeemParams struct {
	Amount           string         `json:"amount"`
	FirstHint        crypto.Address `json:"firstHint"`
	UpperPartialHint crypto.Address `json:"upperPartialHint"`
	LowerPartialHint crypto.Address `json:"lowerPartialHint"`
	PartialNICR      string         `json:"partialNICR"`
	MaxFee           string         `json:"maxFeePercentage"`
	MaxIterations    uint64         `json:"maxIterations"`
}

type RedemptionResult struct {
	Attempted string           `json:"attempted"`
	Redeemed  string           `json:"redeemed"`
	CollDrawn string           `json:"collDrawn"`
	Fee       string           `json:"fee"`
	CollSent  string           `json:"collSent"`
	BaseRate  string           `json:"baseRate"`
	Closed    []crypto.Address `json:"closed"`
	Partial   *crypto.Address  `json:"partial,omitempty"`
}

func redemptionResult(res *troves.RedemptionResult) *RedemptionResult {
	out := &RedemptionResult{
		Attempted: amountString(res.Attempted),
		Redeemed:  amountString(res.Redeemed),
		CollDrawn: amountString(res.CollDrawn),
		Fee:       amountString(res.Fee),
		CollSent:  amountString(res.CollSent),
		BaseRate:  amountString(res.BaseRate),
		Closed:    res.Closed,
	}
	if out.Closed == nil {
		out.Closed = []crypto.Address{}
	}
	if !res.Partial.IsZero() {
		partial := res.Partial
		out.Partial = &partial
	}
	return out
}

type liquidateParams struct {
	Owner crypto.Address `json:"owner"`
}

type batchLiquidateParams struct {
	Owners []crypto.Address `json:"owners"`
}

type LiquidationResult struct {
	Liquidated          []crypto.Address `json:"liquidated"`
	DebtRedistributed   string           `json:"debtRedistributed"`
	CollRedistributed   string           `json:"collRedistributed"`
	CollGasCompensation string           `json:"collGasCompensation"`
	DebtGasCompensation string           `json:"debtGasCompensation"`
}

func liquidationResult(res *troves.LiquidationResult) *LiquidationResult {
	out := &LiquidationResult{
		Liquidated:          res.Liquidated,
		DebtRedistributed:   amountString(res.DebtRedistributed),
		CollRedistributed:   amountString(res.CollRedistributed),
		CollGasCompensation: amountString(res.CollGasCompensation),
		DebtGasCompensation: amountString(res.DebtGasCompensation),
	}
	if out.Liquidated == nil {
		out.Liquidated = []crypto.Address{}
	}
	return out
}

// --- reward streamer ---

type stakeParams struct {
	Amount string `json:"amount"`
}

type durationParams struct {
	Token    string `json:"token"`
	Duration uint64 `json:"duration"`
}

type RewardsResult struct {
	Paid map[string]string `json:"paid"`
}

type StakeResult struct {
	Account crypto.Address    `json:"account"`
	Staked  string            `json:"staked"`
	Earned  map[string]string `json:"earned"`
}

type RewardDataResult struct {
	Token                string           `json:"token"`
	Distributors         []crypto.Address `json:"distributors"`
	RewardsDuration      uint64           `json:"rewardsDuration"`
	PeriodFinish         uint64           `json:"periodFinish"`
	RewardRate           string           `json:"rewardRate"`
	LastUpdateTime       uint64           `json:"lastUpdateTime"`
	RewardPerTokenStored string           `json:"rewardPerTokenStored"`
}

func rewardDataResult(token string, r *multirewards.Reward) *RewardDataResult {
	return &RewardDataResult{
		Token:                token,
		Distributors:         r.Distributors,
		RewardsDuration:      r.RewardsDuration,
		PeriodFinish:         r.PeriodFinish,
		RewardRate:           amountString(r.RewardRate),
		LastUpdateTime:       r.LastUpdateTime,
		RewardPerTokenStored: amountString(r.RewardPerTokenStored),
	}
}

// --- queries and admin ---

type pauseParams struct {
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

type PausedResult struct {
	Paused []string `json:"paused"`
}

type ownerParams struct {
	Owner crypto.Address `json:"owner"`
}

type accountParams struct {
	Account crypto.Address `json:"account"`
}

type tokenParams struct {
	Token string `json:"token"`
}

type redemptionHintParams struct {
	Amount        string `json:"amount"`
	MaxIterations uint64 `json:"maxIterations"`
}

type RedemptionHintsResult struct {
	FirstHint       crypto.Address `json:"firstHint"`
	PartialNICR     string         `json:"partialNICR"`
	TruncatedAmount string         `json:"truncatedAmount"`
}

type insertHintParams struct {
	Coll string `json:"coll"`
	Debt string `json:"debt"`
}

type InsertHintsResult struct {
	UpperHint crypto.Address `json:"upperHint"`
	LowerHint crypto.Address `json:"lowerHint"`
}

type SystemResult struct {
	Price      string   `json:"price"`
	TCR        string   `json:"tcr"`
	TotalColl  string   `json:"totalColl"`
	TotalDebt  string   `json:"totalDebt"`
	Troves     uint64   `json:"troves"`
	BaseRate   string   `json:"baseRate"`
	DeployedAt uint64   `json:"deployedAt"`
	Paused     []string `json:"paused"`
}

type BalanceResult struct {
	Address  crypto.Address    `json:"address"`
	Balances map[string]string `json:"balances"`
}

type DelegatesResult struct {
	Owner     crypto.Address   `json:"owner"`
	Delegates []crypto.Address `json:"delegates"`
}

type eventParams struct {
	Type    string `json:"type"`
	Subject string `json:"subject"`
	After   uint64 `json:"after"`
	Limit   int    `json:"limit"`
}
