package rpc

import (
	"encoding/json"
	"net/http"

	"cdpledger/crypto"
	"cdpledger/native/borrower"
	"cdpledger/native/troves"
)

func (s *Server) handleOpenTrove(_ *http.Request, actor crypto.Address, params []json.RawMessage) (interface{}, error) {
	var p openTroveParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	coll, err := parseAmount("coll", p.Coll)
	if err != nil {
		return nil, err
	}
	debt, err := parseAmount("debt", p.Debt)
	if err != nil {
		return nil, err
	}
	maxFee, err := parseAmount("maxFeePercentage", p.MaxFee)
	if err != nil {
		return nil, err
	}
	res, err := s.system.OpenTrove(borrower.OpenTroveRequest{
		Actor:            actor,
		Principal:        principalOr(p.Principal, actor),
		Coll:             coll,
		DebtAmount:       debt,
		MaxFeePercentage: maxFee,
		UpperHint:        p.UpperHint,
		LowerHint:        p.LowerHint,
	})
	if err != nil {
		return nil, err
	}
	return operationResult(res), nil
}

func (s *Server) handleAdjustTrove(_ *http.Request, actor crypto.Address, params []json.RawMessage) (interface{}, error) {
	var p adjustTroveParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	topUp, err := parseOptionalAmount("collTopUp", p.CollTopUp)
	if err != nil {
		return nil, err
	}
	withdrawal, err := parseOptionalAmount("collWithdrawal", p.CollWithdrawal)
	if err != nil {
		return nil, err
	}
	change, err := parseOptionalAmount("debtChange", p.DebtChange)
	if err != nil {
		return nil, err
	}
	maxFee, err := parseOptionalAmount("maxFeePercentage", p.MaxFee)
	if err != nil {
		return nil, err
	}
	res, err := s.system.AdjustTrove(borrower.AdjustTroveRequest{
		Actor:            actor,
		Principal:        principalOr(p.Principal, actor),
		CollTopUp:        topUp,
		CollWithdrawal:   withdrawal,
		DebtChange:       change,
		IsDebtIncrease:   p.IsDebtIncrease,
		MaxFeePercentage: maxFee,
		UpperHint:        p.UpperHint,
		LowerHint:        p.LowerHint,
	})
	if err != nil {
		return nil, err
	}
	return operationResult(res), nil
}

// amountOperation serves the single-amount adjustments.
type amountOperation func(actor, principal crypto.Address, p amountParams) (*borrower.Result, error)

func (s *Server) runAmountOperation(actor crypto.Address, params []json.RawMessage, op amountOperation) (interface{}, error) {
	var p amountParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	res, err := op(actor, principalOr(p.Principal, actor), p)
	if err != nil {
		return nil, err
	}
	return operationResult(res), nil
}

func (s *Server) handleAddColl(_ *http.Request, actor crypto.Address, params []json.RawMessage) (interface{}, error) {
	return s.runAmountOperation(actor, params, func(actor, principal crypto.Address, p amountParams) (*borrower.Result, error) {
		amount, err := parseAmount("amount", p.Amount)
		if err != nil {
			return nil, err
		}
		return s.system.AddColl(actor, principal, amount, p.UpperHint, p.LowerHint)
	})
}

func (s *Server) handleWithdrawColl(_ *http.Request, actor crypto.Address, params []json.RawMessage) (interface{}, error) {
	return s.runAmountOperation(actor, params, func(actor, principal crypto.Address, p amountParams) (*borrower.Result, error) {
		amount, err := parseAmount("amount", p.Amount)
		if err != nil {
			return nil, err
		}
		return s.system.WithdrawColl(actor, principal, amount, p.UpperHint, p.LowerHint)
	})
}

func (s *Server) handleWithdrawDebt(_ *http.Request, actor crypto.Address, params []json.RawMessage) (interface{}, error) {
	return s.runAmountOperation(actor, params, func(actor, principal crypto.Address, p amountParams) (*borrower.Result, error) {
		amount, err := parseAmount("amount", p.Amount)
		if err != nil {
			return nil, err
		}
		maxFee, err := parseAmount("maxFeePercentage", p.MaxFee)
		if err != nil {
			return nil, err
		}
		return s.system.WithdrawDebt(actor, principal, maxFee, amount, p.UpperHint, p.LowerHint)
	})
}

func (s *Server) handleRepayDebt(_ *http.Request, actor crypto.Address, params []json.RawMessage) (interface{}, error) {
	return s.runAmountOperation(actor, params, func(actor, principal crypto.Address, p amountParams) (*borrower.Result, error) {
		amount, err := parseAmount("amount", p.Amount)
		if err != nil {
			return nil, err
		}
		return s.system.RepayDebt(actor, principal, amount, p.UpperHint, p.LowerHint)
	})
}

func (s *Server) handleCloseTrove(_ *http.Request, actor crypto.Address, params []json.RawMessage) (interface{}, error) {
	var p principalParams
	if err := decodeOptionalParams(params, &p); err != nil {
		return nil, err
	}
	returned, err := s.system.CloseTrove(actor, principalOr(p.Principal, actor))
	if err != nil {
		return nil, err
	}
	return AmountResult{Amount: amountString(returned)}, nil
}

func (s *Server) handleClaimCollateral(_ *http.Request, actor crypto.Address, params []json.RawMessage) (interface{}, error) {
	var p principalParams
	if err := decodeOptionalParams(params, &p); err != nil {
		return nil, err
	}
	claimed, err := s.system.ClaimCollateral(actor, principalOr(p.Principal, actor))
	if err != nil {
		return nil, err
	}
	return AmountResult{Amount: amountString(claimed)}, nil
}

func (s *Server) handleSetDelegateApproval(_ *http.Request, actor crypto.Address, params []json.RawMessage) (interface{}, error) {
	var p approvalParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := requireAddress("delegate", p.Delegate); err != nil {
		return nil, err
	}
	if err := s.system.SetApproval(actor, p.Delegate, p.Approved); err != nil {
		return nil, err
	}
	return DelegatesResult{Owner: actor, Delegates: nonNilAddresses(s.system.Delegates(actor))}, nil
}

func (s *Server) handleRedeem(_ *http.Request, actor crypto.Address, params []json.RawMessage) (interface{}, error) {
	var p redeemParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	maxFee, err := parseAmount("maxFeePercentage", p.MaxFee)
	if err != nil {
		return nil, err
	}
	partialNICR, err := parseOptionalAmount("partialNICR", p.PartialNICR)
	if err != nil {
		return nil, err
	}
	res, err := s.system.Redeem(troves.RedemptionRequest{
		Redeemer:         actor,
		Amount:           amount,
		FirstHint:        p.FirstHint,
		UpperPartialHint: p.UpperPartialHint,
		LowerPartialHint: p.LowerPartialHint,
		PartialNICR:      partialNICR,
		MaxFeePercentage: maxFee,
		MaxIterations:    p.MaxIterations,
	})
	if err != nil {
		return nil, err
	}
	return redemptionResult(res), nil
}

func (s *Server) handleLiquidate(_ *http.Request, actor crypto.Address, params []json.RawMessage) (interface{}, error) {
	var p liquidateParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := requireAddress("owner", p.Owner); err != nil {
		return nil, err
	}
	res, err := s.system.Liquidate(actor, p.Owner)
	if err != nil {
		return nil, err
	}
	return liquidationResult(res), nil
}

func (s *Server) handleBatchLiquidate(_ *http.Request, actor crypto.Address, params []json.RawMessage) (interface{}, error) {
	var p batchLiquidateParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if len(p.Owners) == 0 {
		return nil, invalidParams("owners is required", nil)
	}
	res, err := s.system.BatchLiquidate(actor, p.Owners)
	if err != nil {
		return nil, err
	}
	return liquidationResult(res), nil
}

func nonNilAddresses(addrs []crypto.Address) []crypto.Address {
	if addrs == nil {
		return []crypto.Address{}
	}
	return addrs
}
