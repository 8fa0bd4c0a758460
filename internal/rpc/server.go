// Package rpc implements the JSON-RPC 2.0 API of the ledger node.
//
// Read methods are open. Every mutating method takes a signed Envelope;
// the caller identity of the ledger call is the address of the signing key.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/Klingon-tech/oyster/config"
	"github.com/Klingon-tech/oyster/internal/catalog"
	"github.com/Klingon-tech/oyster/internal/ledger"
	olog "github.com/Klingon-tech/oyster/internal/log"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// Server is the JSON-RPC 2.0 HTTP server.
type Server struct {
	addr        string
	engine      *ledger.Engine
	catalog     *catalog.Service // nil = catalog_* disabled
	server      *http.Server
	logger      zerolog.Logger
	ln          net.Listener
	allowedNets []*net.IPNet // Empty = allow all.
	corsOrigins []string     // Empty = no CORS headers.
}

// New creates a new RPC server. The rpcCfg parameter controls IP filtering
// and CORS. A zero-value RPCConfig allows all IPs and disables CORS.
func New(addr string, engine *ledger.Engine, rpcCfg ...config.RPCConfig) *Server {
	s := &Server{
		addr:   addr,
		engine: engine,
		logger: olog.WithComponent("rpc"),
	}

	if len(rpcCfg) > 0 {
		s.allowedNets = parseAllowedIPs(rpcCfg[0].AllowedIPs)
		s.corsOrigins = rpcCfg[0].CORSOrigins
	}

	s.server = &http.Server{
		Handler:      s.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.filterIPs)
	r.Use(s.cors)
	r.Post("/", s.handleRequest)
	r.Options("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/health", s.handleHealth)
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, nil, CodeInvalidRequest, "only POST method is allowed")
	})
	return r
}

// parseAllowedIPs converts string IP/CIDR entries into net.IPNet.
func parseAllowedIPs(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		_, ipNet, err := net.ParseCIDR(entry)
		if err == nil {
			nets = append(nets, ipNet)
			continue
		}
		// Try as a single IP (add /32 or /128).
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

// Start begins listening and serving in a background goroutine.
// It returns immediately after the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpc listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("RPC server error")
		}
	}()

	return nil
}

// Addr returns the listener address (useful when bound to :0).
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// SetCatalog enables the catalog_* methods.
func (s *Server) SetCatalog(c *catalog.Service) {
	s.catalog = c
}

// filterIPs rejects requests from addresses outside the allow list.
func (s *Server) filterIPs(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.allowedNets) > 0 {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			ip := net.ParseIP(host)
			if ip == nil || !s.isIPAllowed(ip) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// cors adds CORS headers based on the configured origins.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.setCORSHeaders(w, r)
		next.ServeHTTP(w, r)
	})
}

// handleRequest is the main HTTP handler for JSON-RPC requests.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		writeError(w, nil, CodeParseError, "failed to read request body")
		return
	}
	if len(body) > maxBodySize {
		writeError(w, nil, CodeInvalidRequest, "request body too large")
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, CodeParseError, "invalid JSON")
		return
	}

	if req.JSONRPC != "2.0" {
		writeError(w, req.ID, CodeInvalidRequest, "jsonrpc must be \"2.0\"")
		return
	}

	result, rpcErr := s.dispatch(&req)
	if rpcErr != nil {
		writeJSON(w, Response{
			JSONRPC: "2.0",
			Error:   rpcErr,
			ID:      req.ID,
		})
		return
	}

	writeJSON(w, Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      req.ID,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	pending, err := s.engine.Outbox().Len()
	status := "ok"
	if err != nil {
		status = "degraded"
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HealthResult{
		Status:        status,
		Bootstrapped:  s.engine.Bootstrapped(),
		PendingEvents: pending,
	})
}

// dispatch routes a request to the appropriate handler.
func (s *Server) dispatch(req *Request) (interface{}, *Error) {
	switch req.Method {
	case "ledger_getInfo":
		return s.handleLedgerGetInfo(req)
	case "ledger_bootstrap":
		return s.handleLedgerBootstrap(req)
	case "ledger_checkInvariants":
		return s.handleLedgerCheckInvariants(req)
	case "token_getInfo":
		return s.handleTokenGetInfo(req)
	case "token_balanceOf":
		return s.handleTokenBalanceOf(req)
	case "token_totalSupply":
		return s.handleTokenTotalSupply(req)
	case "token_isValidated":
		return s.handleTokenIsValidated(req)
	case "token_quote":
		return s.handleTokenQuote(req)
	case "token_setVault":
		return s.handleTokenSetVault(req)
	case "token_mint":
		return s.handleTokenMint(req)
	case "token_validate":
		return s.handleTokenValidate(req)
	case "vault_getInfo":
		return s.handleVaultGetInfo(req)
	case "vault_isAuthorized":
		return s.handleVaultIsAuthorized(req)
	case "vault_authorize":
		return s.handleVaultAuthorize(req)
	case "vault_send":
		return s.handleVaultSend(req)
	case "vault_receive":
		return s.handleVaultReceive(req)
	case "rights_list":
		return s.handleRightsList(req)
	case "rights_getInfo":
		return s.handleRightsGetInfo(req)
	case "rights_viewBalance":
		return s.handleRightsViewBalance(req)
	case "rights_viewTokensPerAddress":
		return s.handleRightsViewTokensPerAddress(req)
	case "rights_viewRemaining":
		return s.handleRightsViewRemaining(req)
	case "rights_viewSealed":
		return s.handleRightsViewSealed(req)
	case "rights_viewShare":
		return s.handleRightsViewShare(req)
	case "rights_viewRightHolders":
		return s.handleRightsViewRightHolders(req)
	case "rights_deploy":
		return s.handleRightsDeploy(req)
	case "rights_assign":
		return s.handleRightsAssign(req)
	case "rights_withdraw":
		return s.handleRightsWithdraw(req)
	case "rights_seal":
		return s.handleRightsSeal(req)
	case "rights_buyLot":
		return s.handleRightsBuyLot(req)
	case "rights_buyTokens":
		return s.handleRightsBuyTokens(req)
	case "rights_sellTokens":
		return s.handleRightsSellTokens(req)
	case "rights_payRightsFee":
		return s.handleRightsPayRightsFee(req)
	case "rights_payListenFee":
		return s.handleRightsPayListenFee(req)
	case "catalog_create":
		return s.handleCatalogCreate(req)
	case "catalog_list":
		return s.handleCatalogList(req)
	case "catalog_get":
		return s.handleCatalogGet(req)
	case "catalog_byProducer":
		return s.handleCatalogByProducer(req)
	case "catalog_byLedger":
		return s.handleCatalogByLedger(req)
	default:
		return nil, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)}
	}
}

// writeJSON writes a JSON-RPC response.
func writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeError writes a JSON-RPC error response.
func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	writeJSON(w, Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message},
		ID:      id,
	})
}

// isIPAllowed checks if the IP is in the allowed networks list.
func (s *Server) isIPAllowed(ip net.IP) bool {
	for _, n := range s.allowedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// setCORSHeaders adds CORS headers based on the configured origins.
func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	if len(s.corsOrigins) == 0 {
		return
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}

	allowed := false
	for _, o := range s.corsOrigins {
		if o == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			allowed = true
			break
		}
		if o == origin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			allowed = true
			break
		}
	}

	if allowed {
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	}
}

// parseParams unmarshals the request params into the given target.
func parseParams(req *Request, target interface{}) *Error {
	if len(req.Params) == 0 || string(req.Params) == "null" {
		return &Error{Code: CodeInvalidParams, Message: "params required"}
	}
	if err := json.Unmarshal(req.Params, target); err != nil {
		return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}

// callError converts an error from the ledger or the catalog. Ledger
// rejections keep their message and carry the kind; anything else is an
// infrastructure failure and is logged rather than exposed.
func (s *Server) callError(method string, err error) *Error {
	if kind := ledger.KindOf(err); kind != "" {
		return &Error{Code: LedgerErrorCode(kind), Message: err.Error(), Data: kind}
	}
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return &Error{Code: CodeNotFound, Message: err.Error()}
	case errors.Is(err, catalog.ErrInvalidRequest):
		return &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	s.logger.Error().Err(err).Str("method", method).Msg("RPC call failed")
	return &Error{Code: CodeInternalError, Message: "internal error"}
}
