package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"prism/core/events"
	"prism/crypto"
	nativecommon "prism/native/common"
	"prism/native/market"
	"prism/native/nav"
	"prism/native/oracle"
	"prism/native/token"
	"prism/native/treasury"
	"prism/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeForbidden      = -32002
	codeSlippage       = -32010
	codePaused         = -32011
	codeInsufficient   = -32012
	codeCapExceeded    = -32013
	codeStalePrice     = -32014
	codeRateLimited    = -32020
	codeQuotaExceeded  = -32021
)

// ServerConfig carries the transport level knobs for the RPC server.
type ServerConfig struct {
	// JWTSecret signs bearer tokens for mutating calls. Leaving it empty
	// disables every authenticated method.
	JWTSecret string
	// ClockSkew is the accepted leeway when validating token lifetimes.
	ClockSkew time.Duration
	// RequestsPerMinute and Burst bound per-client request throughput.
	// Zero disables the limiter.
	RequestsPerMinute float64
	Burst             int
	// Quota bounds state-changing submissions per authenticated caller.
	Quota nativecommon.Quota
	// Admins may flip module pauses and drive the manual price feed. Engine
	// level parameter changes carry their own admin list.
	Admins []crypto.Address
}

// TokenSet holds the three ledgers for balance queries.
type TokenSet struct {
	Base       token.Token
	Fractional token.Token
	Leveraged  token.Token
}

// Services bundles the engines and feeds the server fronts.
type Services struct {
	Market   *market.Engine
	Treasury *treasury.Engine
	Tokens   TokenSet
	Oracle   *oracle.Aggregator
	Manual   *oracle.ManualOracle
	Journal  *events.Journal
	Pauses   *nativecommon.Pauses
}

// Server exposes the protocol over JSON-RPC 2.0, with a websocket event
// stream and Prometheus metrics on the same mux.
type Server struct {
	log    *slog.Logger
	cfg    ServerConfig
	svc    Services
	secret []byte

	// Mutating calls hold writeMu for their full span. Engine atomicity
	// rests on this single writer.
	writeMu sync.Mutex

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter

	quotaMu sync.Mutex
	quotas  map[string]nativecommon.QuotaNow

	clock func() time.Time
}

// NewServer validates the wiring and returns a ready server.
func NewServer(svc Services, cfg ServerConfig) (*Server, error) {
	if svc.Market == nil {
		return nil, errors.New("rpc: market engine required")
	}
	if svc.Treasury == nil {
		return nil, errors.New("rpc: treasury engine required")
	}
	if svc.Tokens.Base == nil || svc.Tokens.Fractional == nil || svc.Tokens.Leveraged == nil {
		return nil, errors.New("rpc: token ledgers required")
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &Server{
		log:      slog.Default().With("component", "rpc"),
		cfg:      cfg,
		svc:      svc,
		secret:   []byte(strings.TrimSpace(cfg.JWTSecret)),
		limiters: make(map[string]*rate.Limiter),
		quotas:   make(map[string]nativecommon.QuotaNow),
		clock:    time.Now,
	}, nil
}

// SetClock overrides the time source for tests.
func (s *Server) SetClock(clock func() time.Time) {
	if clock != nil {
		s.clock = clock
	}
}

// Router assembles the HTTP mux. The daemon owns the http.Server so it can
// drive graceful shutdown.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/rpc", s.handle)
	r.Get("/ws/events", s.handleEventsWS)
	return r
}

// Start serves the router on addr and blocks until the listener fails.
func (s *Server) Start(addr string) error {
	s.log.Info("starting JSON-RPC server", "addr", addr)
	return http.ListenAndServe(addr, s.Router())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// handle is the main request handler that routes to specific methods.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	rec.Header().Set("Content-Type", "application/json")
	rec.Header().Set("X-Request-Id", uuid.NewString())

	started := time.Now()
	method := "unknown"
	defer func() {
		observability.RPC().Observe(method, rec.status, time.Since(started))
	}()

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(rec, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(rec, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(rec, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(rec, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(rec, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}
	method = req.Method

	if !s.allowClient(clientSource(r)) {
		observability.RPC().RecordThrottle("rate_limit")
		writeError(rec, http.StatusTooManyRequests, req.ID, codeRateLimited, "request rate limit exceeded", nil)
		return
	}

	switch req.Method {
	case "prism_status":
		s.handleStatus(rec, r, req)
	case "prism_config":
		s.handleConfig(rec, r, req)
	case "prism_nav":
		s.handleNav(rec, r, req)
	case "prism_regime":
		s.handleRegime(rec, r, req)
	case "prism_balance":
		s.handleBalance(rec, r, req)
	case "prism_quoteMint":
		s.handleQuoteMint(rec, r, req)
	case "prism_quoteRedeem":
		s.handleQuoteRedeem(rec, r, req)
	case "prism_headroom":
		s.handleHeadroom(rec, r, req)
	case "prism_liquidationQuote":
		s.handleLiquidationQuote(rec, r, req)
	case "prism_events":
		s.handleEvents(rec, r, req)
	case "prism_oracleStatus":
		s.handleOracleStatus(rec, r, req)
	case "prism_settleWhitelist":
		s.handleSettleWhitelist(rec, r, req)
	case "prism_mintFractional":
		s.authenticated(rec, r, req, s.handleMintFractional)
	case "prism_mintLeveraged":
		s.authenticated(rec, r, req, s.handleMintLeveraged)
	case "prism_mintBoth":
		s.authenticated(rec, r, req, s.handleMintBoth)
	case "prism_redeem":
		s.authenticated(rec, r, req, s.handleRedeem)
	case "prism_redeemFractional":
		s.authenticated(rec, r, req, s.handleRedeemFractional)
	case "prism_redeemLeveraged":
		s.authenticated(rec, r, req, s.handleRedeemLeveraged)
	case "prism_admin_updateStabilityRatios":
		s.authenticated(rec, r, req, s.handleUpdateStabilityRatios)
	case "prism_admin_updateMintFees":
		s.authenticated(rec, r, req, s.handleUpdateMintFees)
	case "prism_admin_updateRedeemFees":
		s.authenticated(rec, r, req, s.handleUpdateRedeemFees)
	case "prism_admin_updatePauseFlags":
		s.authenticated(rec, r, req, s.handleUpdatePauseFlags)
	case "prism_admin_updatePlatformAddress":
		s.authenticated(rec, r, req, s.handleUpdatePlatformAddress)
	case "prism_admin_updateLiquidationIncentive":
		s.authenticated(rec, r, req, s.handleUpdateLiquidationIncentive)
	case "prism_admin_updateBeta":
		s.authenticated(rec, r, req, s.handleUpdateBeta)
	case "prism_admin_updateBaseTokenCap":
		s.authenticated(rec, r, req, s.handleUpdateBaseTokenCap)
	case "prism_admin_updateEmaSampleInterval":
		s.authenticated(rec, r, req, s.handleUpdateEmaSampleInterval)
	case "prism_admin_updateSettleWhitelist":
		s.authenticated(rec, r, req, s.handleUpdateSettleWhitelist)
	case "prism_admin_initializePrice":
		s.authenticated(rec, r, req, s.handleInitializePrice)
	case "prism_admin_submitPrice":
		s.authenticated(rec, r, req, s.handleSubmitPrice)
	case "prism_admin_pauseModule":
		s.authenticated(rec, r, req, s.handlePauseModule)
	default:
		writeError(rec, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
	}
}

type authedHandler func(w http.ResponseWriter, r *http.Request, req *RPCRequest, caller crypto.Address)

// authenticated verifies the bearer token, charges the caller quota, and
// serializes the handler behind the single writer lock.
func (s *Server) authenticated(w http.ResponseWriter, r *http.Request, req *RPCRequest, fn authedHandler) {
	caller, rpcErr := s.authenticate(r)
	if rpcErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	if rpcErr := s.consumeQuota(caller); rpcErr != nil {
		writeError(w, http.StatusTooManyRequests, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	fn(w, r, req, caller)
}

func (s *Server) allowClient(id string) bool {
	if s.cfg.RequestsPerMinute <= 0 {
		return true
	}
	s.limiterMu.Lock()
	limiter, ok := s.limiters[id]
	if !ok {
		perSecond := s.cfg.RequestsPerMinute / 60.0
		burst := s.cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		s.limiters[id] = limiter
	}
	s.limiterMu.Unlock()
	return limiter.Allow()
}

func (s *Server) consumeQuota(caller crypto.Address) *RPCError {
	q := s.cfg.Quota
	if q.MaxRequestsPerMin == 0 && q.MaxUnitsPerEpoch == 0 {
		return nil
	}
	epochSecs := uint64(q.EpochSeconds)
	if epochSecs == 0 {
		epochSecs = 60
	}
	nowEpoch := uint64(s.clock().Unix()) / epochSecs
	key := caller.String()

	s.quotaMu.Lock()
	defer s.quotaMu.Unlock()
	next, err := nativecommon.CheckQuota(q, nowEpoch, s.quotas[key], 1, 1)
	if err != nil {
		observability.RPC().RecordThrottle("quota_exceeded")
		return &RPCError{Code: codeQuotaExceeded, Message: "submission quota exceeded"}
	}
	s.quotas[key] = next
	return nil
}

func clientSource(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
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

// engineErrorClass maps the engine error taxonomy onto an HTTP status, a
// JSON-RPC code and a stable reason label shared with the metrics layer.
func engineErrorClass(err error) (int, int, string) {
	switch {
	case errors.Is(err, market.ErrSlippage):
		return http.StatusConflict, codeSlippage, "slippage"
	case errors.Is(err, market.ErrMintPaused):
		return http.StatusConflict, codePaused, "mint_paused"
	case errors.Is(err, market.ErrRedeemPaused):
		return http.StatusConflict, codePaused, "redeem_paused"
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusConflict, codePaused, "module_paused"
	case errors.Is(err, market.ErrReentrantCall):
		return http.StatusConflict, codeServerError, "reentrant"
	case errors.Is(err, token.ErrInsufficientBalance):
		return http.StatusBadRequest, codeInsufficient, "insufficient_balance"
	case errors.Is(err, treasury.ErrCapExceeded):
		return http.StatusConflict, codeCapExceeded, "cap_exceeded"
	case errors.Is(err, treasury.ErrOraclePriceInvalid),
		errors.Is(err, oracle.ErrNoFreshQuote):
		return http.StatusServiceUnavailable, codeStalePrice, "stale_price"
	case errors.Is(err, market.ErrUnauthorized),
		errors.Is(err, treasury.ErrUnauthorized):
		return http.StatusForbidden, codeForbidden, "unauthorized"
	case errors.Is(err, market.ErrInvalidRedemption),
		errors.Is(err, market.ErrInvalidRatio),
		errors.Is(err, market.ErrInvalidFee),
		errors.Is(err, nav.ErrInvalidRatio):
		return http.StatusBadRequest, codeInvalidParams, "invalid_params"
	case errors.Is(err, treasury.ErrAlreadyInitialized):
		return http.StatusConflict, codeInvalidParams, "already_initialized"
	case errors.Is(err, nav.ErrUnderCollateralized):
		return http.StatusConflict, codeServerError, "under_collateralized"
	case errors.Is(err, nav.ErrZeroSupply):
		return http.StatusConflict, codeServerError, "zero_supply"
	case errors.Is(err, treasury.ErrInvariantViolation):
		return http.StatusConflict, codeServerError, "invariant"
	default:
		return http.StatusInternalServerError, codeServerError, "internal"
	}
}

// writeEngineError maps the engine taxonomy onto JSON-RPC error codes.
// Unclassified errors surface a generic message with the cause in data.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	status, code, reason := engineErrorClass(err)
	if reason == "internal" {
		writeError(w, status, id, code, "internal error", err.Error())
		return
	}
	writeError(w, status, id, code, err.Error(), nil)
}
