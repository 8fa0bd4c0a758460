// Package events carries ledger notifications from the commit point to
// external sinks.
//
// The ledger engine appends exactly one Event per successful mutating call to
// a persistent outbox, inside the same storage batch as the state change. A
// Dispatcher drains the outbox in sequence order and hands batches to every
// registered Sink. Delivery is at-least-once; sinks deduplicate on CallID.
package events

import (
	"time"

	"github.com/Klingon-tech/oyster/internal/id"
	"github.com/Klingon-tech/oyster/pkg/types"
)

// Kind names the entry point that produced an event.
type Kind string

// Event kinds.
const (
	KindBootstrapped    Kind = "ledger.bootstrapped"
	KindMinted          Kind = "token.minted"
	KindVaultBound      Kind = "token.vault_bound"
	KindLedgerValidated Kind = "token.ledger_validated"
	KindAuthorized      Kind = "vault.authorized"
	KindVaultSent       Kind = "vault.sent"
	KindVaultReceived   Kind = "vault.received"
	KindRightsDeployed  Kind = "rights.deployed"
	KindRightsAssigned  Kind = "rights.assigned"
	KindRightsWithdrawn Kind = "rights.withdrawn"
	KindRightsSealed    Kind = "rights.sealed"
	KindTokensBought    Kind = "rights.tokens_bought"
	KindTokensSold      Kind = "rights.tokens_sold"
	KindRightsFeePaid   Kind = "rights.fee_paid"
	KindListenFeePaid   Kind = "rights.listen_paid"
)

// Account roles used as keys of Event.Accounts.
const (
	RoleCaller = "caller"
	RoleOwner  = "owner"
	RoleHolder = "holder"
	RoleLedger = "ledger"
	RoleToken  = "token"
	RoleVault  = "vault"
	RoleFrom   = "from"
	RoleTo     = "to"
	RoleTarget = "target"
)

// Amount roles used as keys of Event.Amounts.
const (
	AmountTokens   = "tokens"
	AmountPct      = "pct"
	AmountPayment  = "payment"
	AmountRequired = "required"
	AmountFee      = "fee"
	AmountRefund   = "refund"
	AmountPayout   = "payout"
	AmountAllowed  = "allowed"
	AmountSupply   = "supply"
	AmountRate     = "right_purchase_rate"
	AmountListen   = "listen_rate"
)

// Event is the notification for one committed call.
type Event struct {
	CallID   id.ID                    `json:"call_id"`
	Seq      uint64                   `json:"seq"`
	Kind     Kind                     `json:"kind"`
	Contract types.Address            `json:"contract"`
	Accounts map[string]types.Address `json:"accounts,omitempty"`
	Amounts  map[string]uint64        `json:"amounts,omitempty"`
	Time     time.Time                `json:"time"`
}

// Account returns the address recorded for role, or the zero address.
func (e *Event) Account(role string) types.Address {
	return e.Accounts[role]
}

// Amount returns the amount recorded for role, or zero.
func (e *Event) Amount(role string) uint64 {
	return e.Amounts[role]
}
