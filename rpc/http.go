package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ipledger/core/state"
	"ipledger/native/loan"
	"ipledger/native/royalty"
	"ipledger/native/token"
	"ipledger/observability/metrics"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	authTokenEnv    = "IPLEDGER_RPC_TOKEN"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
)

// Server exposes the protocol operation set over JSON-RPC 2.0. Mutating
// methods require the bearer token configured through IPLEDGER_RPC_TOKEN
// when one is set; queries stay open.
type Server struct {
	loans     *loan.Engine
	royalties *royalty.Engine
	tokens    *token.Ledger
	state     *state.Manager
	authToken string
	logger    *slog.Logger

	// stateMu serializes every state-mutating method so each operation's
	// read-check-write sequence sees the previous operation's writes.
	stateMu sync.Mutex
}

// NewServer wires the engines and state manager into an RPC server.
func NewServer(loans *loan.Engine, royalties *royalty.Engine, tokens *token.Ledger, st *state.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		loans:     loans,
		royalties: royalties,
		tokens:    tokens,
		state:     st,
		authToken: strings.TrimSpace(os.Getenv(authTokenEnv)),
		logger:    logger,
	}
}

// Handler returns the HTTP mux serving the RPC endpoint and /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start serves the RPC surface until the listener fails.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", slog.String("addr", addr))
	return http.ListenAndServe(addr, s.Handler())
}

// RPCRequest is a JSON-RPC 2.0 request envelope.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

// RPCResponse is a JSON-RPC 2.0 response envelope.
type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError carries a JSON-RPC 2.0 error object.
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

func (s *Server) authorized(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	presented := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return subtle.ConstantTimeCompare([]byte(presented), []byte(s.authToken)) == 1
}

func isMutating(method string) bool {
	switch method {
	case "loan_apply", "loan_approve", "loan_repay", "loan_liquidate",
		"royalty_issue", "royalty_transfer", "royalty_deposit", "royalty_claim",
		"token_transfer", "token_approve", "token_mint",
		"assets_register":
		return true
	default:
		return false
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "POST required", nil)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "unable to read request body", nil)
		return
	}
	if len(body) > maxRequestBytes {
		writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest, "request body too large", nil)
		return
	}

	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", nil)
		return
	}

	if isMutating(req.Method) {
		if !s.authorized(r) {
			metrics.Protocol().ObserveRequest(req.Method, "error")
			writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "unauthorized", nil)
			return
		}
		s.stateMu.Lock()
		defer s.stateMu.Unlock()
	}

	handler, ok := s.routes()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}

	rec := &statusRecorder{ResponseWriter: w}
	handler(rec, r, &req)
	outcome := "ok"
	if rec.failed {
		outcome = "error"
	}
	metrics.Protocol().ObserveRequest(req.Method, outcome)
}

type handlerFunc func(http.ResponseWriter, *http.Request, *RPCRequest)

func (s *Server) routes() map[string]handlerFunc {
	return map[string]handlerFunc{
		"loan_apply":       s.handleLoanApply,
		"loan_approve":     s.handleLoanApprove,
		"loan_repay":       s.handleLoanRepay,
		"loan_liquidate":   s.handleLoanLiquidate,
		"loan_get":         s.handleLoanGet,
		"royalty_issue":    s.handleRoyaltyIssue,
		"royalty_transfer": s.handleRoyaltyTransfer,
		"royalty_deposit":  s.handleRoyaltyDeposit,
		"royalty_claim":    s.handleRoyaltyClaim,
		"royalty_class":    s.handleRoyaltyClass,
		"royalty_holding":  s.handleRoyaltyHolding,
		"royalty_pool":     s.handleRoyaltyPool,
		"token_transfer":   s.handleTokenTransfer,
		"token_approve":    s.handleTokenApprove,
		"token_mint":       s.handleTokenMint,
		"token_balance":    s.handleTokenBalance,
		"token_allowance":  s.handleTokenAllowance,
		"assets_register":  s.handleAssetsRegister,
		"assets_owner":     s.handleAssetsOwner,
	}
}

// statusRecorder tracks whether a handler reported an error so request
// metrics reflect outcomes without re-parsing the response.
type statusRecorder struct {
	http.ResponseWriter
	failed bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if status >= http.StatusBadRequest {
		r.failed = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return errors.New("expected a single params object")
	}
	return json.Unmarshal(req.Params[0], out)
}
