package rpc

import (
	"encoding/json"

	"github.com/Klingon-tech/oyster/internal/catalog"
	"github.com/Klingon-tech/oyster/internal/events"
	"github.com/Klingon-tech/oyster/internal/ledger"
	"github.com/Klingon-tech/oyster/pkg/types"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError      = -32700
	CodeInvalidRequest  = -32600
	CodeMethodNotFound  = -32601
	CodeInvalidParams   = -32602
	CodeInternalError   = -32603
	CodeNotFound        = -32000
	CodeUnauthenticated = -32001

	// CodeLedgerBase is the code of the first ledger error kind. Kind i
	// of ledger.Kinds() maps to CodeLedgerBase - i.
	CodeLedgerBase = -32100
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object. Ledger errors carry their kind
// name in Data.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// LedgerErrorCode returns the stable code of a ledger error kind, or
// CodeInternalError for an unknown kind.
func LedgerErrorCode(kind string) int {
	for i, k := range ledger.Kinds() {
		if k == kind {
			return CodeLedgerBase - i
		}
	}
	return CodeInternalError
}

// ErrorKind is the inverse of LedgerErrorCode. It returns "" for codes
// outside the ledger range.
func ErrorKind(code int) string {
	kinds := ledger.Kinds()
	i := CodeLedgerBase - code
	if i < 0 || i >= len(kinds) {
		return ""
	}
	return kinds[i]
}

// ── Param types ─────────────────────────────────────────────────────────

// AddressParam is used by views that take one account or ledger address.
type AddressParam struct {
	Address types.Address `json:"address"`
}

// HolderParam is used by per-holder rights views.
type HolderParam struct {
	Ledger types.Address `json:"ledger"`
	Holder types.Address `json:"holder"`
}

// QuoteParam is used by token_quote.
type QuoteParam struct {
	Amount uint64 `json:"amount"`
}

// IDParam is used by catalog_get.
type IDParam struct {
	ID string `json:"id"`
}

// BootstrapParam is used by ledger_bootstrap.
type BootstrapParam struct {
	Envelope
	ledger.Params
}

// AmountParam is used by token_mint.
type AmountParam struct {
	Envelope
	Amount uint64 `json:"amount"`
}

// TargetParam is used by token_setVault and token_validate.
type TargetParam struct {
	Envelope
	Address types.Address `json:"address"`
}

// AuthorizeParam is used by vault_authorize.
type AuthorizeParam struct {
	Envelope
	Address types.Address `json:"address"`
	Allowed bool          `json:"allowed"`
}

// TransferParam is used by vault_send and vault_receive. Account is the
// recipient for a send and the source for a receive.
type TransferParam struct {
	Envelope
	Account types.Address `json:"account"`
	Amount  uint64        `json:"amount"`
}

// DeployParam is used by rights_deploy.
type DeployParam struct {
	Envelope
	ledger.RightsParams
}

// ShareParam is used by rights_assign and rights_withdraw.
type ShareParam struct {
	Envelope
	Ledger types.Address `json:"ledger"`
	Holder types.Address `json:"holder"`
	Pct    uint64        `json:"pct"`
}

// LedgerParam is used by calls that name only a rights ledger.
type LedgerParam struct {
	Envelope
	Ledger types.Address `json:"ledger"`
}

// TradeParam is used by rights_buyTokens and rights_sellTokens.
type TradeParam struct {
	Envelope
	Ledger types.Address `json:"ledger"`
	Amount uint64        `json:"amount"`
}

// CreateAssetParam is used by catalog_create. The signer is the producer.
type CreateAssetParam struct {
	Envelope
	Title    string              `json:"title"`
	Artist   string              `json:"artist"`
	Metadata map[string]string   `json:"metadata,omitempty"`
	Duration uint32              `json:"duration"`
	Rights   ledger.RightsParams `json:"rights"`
	Shares   []catalog.Share     `json:"shares,omitempty"`
	Seal     bool                `json:"seal,omitempty"`
}

// ── Result types ────────────────────────────────────────────────────────

// ReceiptResult is returned by every signed call.
type ReceiptResult struct {
	CallID  string        `json:"call_id"`
	Address string        `json:"address,omitempty"`
	Refund  uint64        `json:"refund"`
	Payout  uint64        `json:"payout"`
	Event   *events.Event `json:"event,omitempty"`
}

// NewReceiptResult converts a ledger receipt.
func NewReceiptResult(r ledger.Receipt) *ReceiptResult {
	res := &ReceiptResult{
		CallID: r.CallID.String(),
		Refund: r.Refund,
		Payout: r.Payout,
		Event:  r.Event,
	}
	if !r.Address.IsZero() {
		res.Address = r.Address.String()
	}
	return res
}

// LedgerInfoResult is returned by ledger_getInfo.
type LedgerInfoResult struct {
	Bootstrapped  bool              `json:"bootstrapped"`
	Token         *ledger.TokenInfo `json:"token,omitempty"`
	Vault         *ledger.VaultInfo `json:"vault,omitempty"`
	RightsLedgers int               `json:"rights_ledgers"`
	PendingEvents int               `json:"pending_events"`
}

// BalanceResult is returned by balance views.
type BalanceResult struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
}

// QuoteResult is returned by token_quote.
type QuoteResult struct {
	Amount   uint64 `json:"amount"`
	Required uint64 `json:"required"`
	Fee      uint64 `json:"fee"`
}

// FlagResult is returned by boolean views.
type FlagResult struct {
	Address string `json:"address"`
	Value   bool   `json:"value"`
}

// HealthResult is served on GET /health.
type HealthResult struct {
	Status        string `json:"status"`
	Bootstrapped  bool   `json:"bootstrapped"`
	PendingEvents int    `json:"pending_events"`
}
