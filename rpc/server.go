package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cdpledger/core/ledger"
	"cdpledger/crypto"
	"cdpledger/indexer"
	"cdpledger/observability"
)

// PriceSetter lets operators move the collateral price.
type PriceSetter interface {
	Set(price *uint256.Int)
}

// handlerFunc executes a method for actor, which is zero on anonymous calls.
type handlerFunc func(r *http.Request, actor crypto.Address, params []json.RawMessage) (interface{}, error)

type method struct {
	module string
	// auth requires a bearer token; admin additionally requires an admin subject.
	auth    bool
	admin   bool
	handler handlerFunc
}

// Server exposes the ledger over JSON-RPC 2.0.
type Server struct {
	system  *ledger.System
	events  *indexer.Sink
	auth    *Authenticator
	limiter *RateLimiter
	prices  PriceSetter
	hub     *EventHub
	logger  *slog.Logger

	archiveDir string
	methods    map[string]method
}

// NewServer builds the dispatcher. events may be nil when no indexer is
// configured.
func NewServer(system *ledger.System, events *indexer.Sink, auth *Authenticator, limiter *RateLimiter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		system:  system,
		events:  events,
		auth:    auth,
		limiter: limiter,
		logger:  logger.With(slog.String("component", "rpc")),
	}
	s.methods = s.routes()
	return s
}

// SetPriceSetter enables cdp_setPrice.
func (s *Server) SetPriceSetter(prices PriceSetter) {
	if s == nil {
		return
	}
	s.prices = prices
}

// SetArchiveDir enables cdp_archiveEvents, writing exports under dir.
func (s *Server) SetArchiveDir(dir string) {
	if s == nil {
		return
	}
	s.archiveDir = dir
}

// SetEventHub exposes hub on /ws/events.
func (s *Server) SetEventHub(hub *EventHub) {
	if s == nil {
		return
	}
	s.hub = hub
}

func (s *Server) routes() map[string]method {
	return map[string]method{
		"cdp_openTrove":           {module: ledger.ModuleBorrower, auth: true, handler: s.handleOpenTrove},
		"cdp_adjustTrove":         {module: ledger.ModuleBorrower, auth: true, handler: s.handleAdjustTrove},
		"cdp_addColl":             {module: ledger.ModuleBorrower, auth: true, handler: s.handleAddColl},
		"cdp_withdrawColl":        {module: ledger.ModuleBorrower, auth: true, handler: s.handleWithdrawColl},
		"cdp_withdrawDebt":        {module: ledger.ModuleBorrower, auth: true, handler: s.handleWithdrawDebt},
		"cdp_repayDebt":           {module: ledger.ModuleBorrower, auth: true, handler: s.handleRepayDebt},
		"cdp_closeTrove":          {module: ledger.ModuleBorrower, auth: true, handler: s.handleCloseTrove},
		"cdp_claimCollateral":     {module: ledger.ModuleBorrower, auth: true, handler: s.handleClaimCollateral},
		"cdp_setDelegateApproval": {module: ledger.ModuleBorrower, auth: true, handler: s.handleSetDelegateApproval},
		"cdp_getDelegates":        {module: ledger.ModuleBorrower, handler: s.handleGetDelegates},
		"cdp_getSurplus":          {module: ledger.ModuleBorrower, handler: s.handleGetSurplus},

		"cdp_redeem":             {module: ledger.ModuleTroves, auth: true, handler: s.handleRedeem},
		"cdp_liquidate":          {module: ledger.ModuleTroves, auth: true, handler: s.handleLiquidate},
		"cdp_batchLiquidate":     {module: ledger.ModuleTroves, auth: true, handler: s.handleBatchLiquidate},
		"cdp_getTrove":           {module: ledger.ModuleTroves, handler: s.handleGetTrove},
		"cdp_getSortedTroves":    {module: ledger.ModuleTroves, handler: s.handleGetSortedTroves},
		"cdp_getSystem":          {module: ledger.ModuleTroves, handler: s.handleGetSystem},
		"cdp_getRedemptionHints": {module: ledger.ModuleTroves, handler: s.handleGetRedemptionHints},
		"cdp_getInsertHints":     {module: ledger.ModuleTroves, handler: s.handleGetInsertHints},
		"cdp_getBalance":         {module: ledger.ModuleTroves, handler: s.handleGetBalance},

		"cdp_stake":              {module: ledger.ModuleRewards, auth: true, handler: s.handleStake},
		"cdp_withdraw":           {module: ledger.ModuleRewards, auth: true, handler: s.handleWithdraw},
		"cdp_getReward":          {module: ledger.ModuleRewards, auth: true, handler: s.handleGetReward},
		"cdp_exit":               {module: ledger.ModuleRewards, auth: true, handler: s.handleExit},
		"cdp_setRewardsDuration": {module: ledger.ModuleRewards, auth: true, handler: s.handleSetRewardsDuration},
		"cdp_getStake":           {module: ledger.ModuleRewards, handler: s.handleGetStake},
		"cdp_getRewardData":      {module: ledger.ModuleRewards, handler: s.handleGetRewardData},

		"cdp_setPaused":       {module: "admin", auth: true, admin: true, handler: s.handleSetPaused},
		"cdp_setPrice":        {module: "admin", auth: true, admin: true, handler: s.handleSetPrice},
		"cdp_archiveEvents":   {module: "indexer", auth: true, admin: true, handler: s.handleArchiveEvents},
		"cdp_getEvents":       {module: "indexer", handler: s.handleGetEvents},
		"cdp_getIndexedTrove": {module: "indexer", handler: s.handleGetIndexedTrove},
	}
}

// Handler returns the HTTP surface: JSON-RPC on / and /rpc, plus health and
// Prometheus endpoints.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws/events", s.serveEvents)
	r.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Use(s.limiter.Middleware)
		r.Post("/", s.handle)
		r.Post("/rpc", s.handle)
	})
	return otelhttp.NewHandler(r, "cdp-rpc")
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := r.Context()
		next.ServeHTTP(w, r.WithContext(contextWithRequestID(ctx, id)))
	})
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	m, ok := s.methods[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method), nil)
		return
	}

	start := time.Now()
	status := s.dispatch(w, r, req, m)
	observability.ModuleMetrics().Observe(m.module, req.Method, status, time.Since(start))
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest, m method) int {
	actor, authenticated := actorFrom(r.Context())
	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("rpc.method", req.Method),
		attribute.String("cdp.module", m.module),
		attribute.String("cdp.actor", actorLabel(actor)),
	)
	if m.auth && !authenticated {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "bearer token required", nil)
		return http.StatusUnauthorized
	}
	if m.admin && !s.auth.IsAdmin(actor) {
		writeError(w, http.StatusForbidden, req.ID, codeForbidden, "admin subject required", nil)
		return http.StatusForbidden
	}

	result, err := m.handler(r, actor, req.Params)
	if err != nil {
		if isParamError(err) {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return http.StatusBadRequest
		}
		status, _ := classify(err)
		observability.ModuleMetrics().RecordRejection(m.module, errorClass(status))
		span.SetAttributes(attribute.Int("cdp.status", status))
		if status >= http.StatusInternalServerError {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "rpc call rejected",
			slog.String("method", req.Method),
			slog.String("actor", actorLabel(actor)),
			slog.Int("status", status),
			slog.String("request_id", requestIDFrom(r.Context())),
			slog.Any("error", err))
		writeLedgerError(w, req.ID, err)
		return status
	}
	if m.auth {
		s.logger.Info("rpc call",
			slog.String("method", req.Method),
			slog.String("actor", actorLabel(actor)),
			slog.String("request_id", requestIDFrom(r.Context())))
	}
	writeResult(w, req.ID, result)
	return http.StatusOK
}

func actorLabel(actor crypto.Address) string {
	if actor.IsZero() {
		return ""
	}
	return actor.String()
}

// principalOr defaults the trove principal to the caller.
func principalOr(principal, actor crypto.Address) crypto.Address {
	if principal.IsZero() {
		return actor
	}
	return principal
}
