package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"cdpledger/core/ledger"
	"cdpledger/crypto"
	"cdpledger/indexer"
	"cdpledger/native/bank"
)

var (
	errIndexerDisabled = errors.New("rpc: event indexer not configured")
	errTroveNotFound   = errors.New("rpc: trove not found")
	errPriceFixed      = errors.New("rpc: price feed is not operator controlled")
)

var pausableModules = map[string]struct{}{
	ledger.ModuleTroves:   {},
	ledger.ModuleBorrower: {},
	ledger.ModuleRewards:  {},
}

func (s *Server) handleGetTrove(_ *http.Request, _ crypto.Address, params []json.RawMessage) (interface{}, error) {
	var p ownerParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := requireAddress("owner", p.Owner); err != nil {
		return nil, err
	}
	view, err := s.system.Trove(p.Owner)
	if err != nil {
		return nil, err
	}
	if view == nil {
		return nil, errTroveNotFound
	}
	return troveViewResult(view), nil
}

func (s *Server) handleGetSortedTroves(_ *http.Request, _ crypto.Address, _ []json.RawMessage) (interface{}, error) {
	return nonNilAddresses(s.system.SortedTroves()), nil
}

func (s *Server) handleGetSystem(_ *http.Request, _ crypto.Address, _ []json.RawMessage) (interface{}, error) {
	summary, err := s.system.Summary()
	if err != nil {
		return nil, err
	}
	paused := s.system.Paused()
	if paused == nil {
		paused = []string{}
	}
	return SystemResult{
		Price:      amountString(summary.Price),
		TCR:        amountString(summary.TCR),
		TotalColl:  amountString(summary.TotalColl),
		TotalDebt:  amountString(summary.TotalDebt),
		Troves:     summary.Troves,
		BaseRate:   amountString(summary.BaseRate),
		DeployedAt: summary.DeployedAt,
		Paused:     paused,
	}, nil
}

func (s *Server) handleGetRedemptionHints(_ *http.Request, _ crypto.Address, params []json.RawMessage) (interface{}, error) {
	var p redemptionHintParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	first, partialNICR, truncated, err := s.system.RedemptionHints(amount, p.MaxIterations)
	if err != nil {
		return nil, err
	}
	return RedemptionHintsResult{
		FirstHint:       first,
		PartialNICR:     amountString(partialNICR),
		TruncatedAmount: amountString(truncated),
	}, nil
}

func (s *Server) handleGetInsertHints(_ *http.Request, _ crypto.Address, params []json.RawMessage) (interface{}, error) {
	var p insertHintParams
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
	upper, lower := s.system.InsertHints(coll, debt)
	return InsertHintsResult{UpperHint: upper, LowerHint: lower}, nil
}

func (s *Server) handleGetBalance(_ *http.Request, _ crypto.Address, params []json.RawMessage) (interface{}, error) {
	var p struct {
		Address crypto.Address `json:"address"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := requireAddress("address", p.Address); err != nil {
		return nil, err
	}
	balances := make(map[string]string, 3)
	for _, symbol := range []string{bank.SymbolCollateral, bank.SymbolDebt, bank.SymbolStake} {
		balances[symbol] = amountString(s.system.Balance(symbol, p.Address))
	}
	return BalanceResult{Address: p.Address, Balances: balances}, nil
}

func (s *Server) handleGetSurplus(_ *http.Request, _ crypto.Address, params []json.RawMessage) (interface{}, error) {
	var p ownerParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := requireAddress("owner", p.Owner); err != nil {
		return nil, err
	}
	return AmountResult{Amount: amountString(s.system.SurplusBalance(p.Owner))}, nil
}

func (s *Server) handleGetDelegates(_ *http.Request, _ crypto.Address, params []json.RawMessage) (interface{}, error) {
	var p ownerParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := requireAddress("owner", p.Owner); err != nil {
		return nil, err
	}
	return DelegatesResult{Owner: p.Owner, Delegates: nonNilAddresses(s.system.Delegates(p.Owner))}, nil
}

func (s *Server) handleSetPaused(_ *http.Request, _ crypto.Address, params []json.RawMessage) (interface{}, error) {
	var p pauseParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if _, ok := pausableModules[p.Module]; !ok {
		return nil, invalidParams("unknown module "+p.Module, nil)
	}
	s.system.SetPaused(p.Module, p.Paused)
	paused := s.system.Paused()
	if paused == nil {
		paused = []string{}
	}
	return PausedResult{Paused: paused}, nil
}

func (s *Server) handleSetPrice(_ *http.Request, _ crypto.Address, params []json.RawMessage) (interface{}, error) {
	if s.prices == nil {
		return nil, errPriceFixed
	}
	var p struct {
		Price string `json:"price"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	price, err := parseAmount("price", p.Price)
	if err != nil {
		return nil, err
	}
	if price.IsZero() {
		return nil, invalidParams("price must be positive", nil)
	}
	s.prices.Set(price)
	return s.handleGetSystem(nil, crypto.ZeroAddress, nil)
}

func (s *Server) handleGetEvents(r *http.Request, _ crypto.Address, params []json.RawMessage) (interface{}, error) {
	if s.events == nil {
		return nil, errIndexerDisabled
	}
	var p eventParams
	if err := decodeOptionalParams(params, &p); err != nil {
		return nil, err
	}
	events, err := s.events.Events(r.Context(), indexer.Filter{Type: p.Type, Subject: p.Subject, After: p.After, Limit: p.Limit})
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []indexer.Event{}
	}
	return events, nil
}

func (s *Server) handleGetIndexedTrove(r *http.Request, _ crypto.Address, params []json.RawMessage) (interface{}, error) {
	if s.events == nil {
		return nil, errIndexerDisabled
	}
	var p ownerParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := requireAddress("owner", p.Owner); err != nil {
		return nil, err
	}
	return s.events.Trove(r.Context(), p.Owner.String())
}

func (s *Server) handleArchiveEvents(r *http.Request, _ crypto.Address, params []json.RawMessage) (interface{}, error) {
	if s.events == nil || s.archiveDir == "" {
		return nil, errIndexerDisabled
	}
	var p eventParams
	if err := decodeOptionalParams(params, &p); err != nil {
		return nil, err
	}
	return s.events.ExportParquet(r.Context(), s.archiveDir, indexer.Filter{Type: p.Type, Subject: p.Subject, After: p.After})
}
