// Package ledger implements the rights-ledger settlement core: one token
// ledger, one custody vault, and any number of per-asset rights ledgers.
//
// Every entry point runs as a single exclusive transaction. All checks
// happen before the state moves, and every mutation goes through an undo
// journal so a failure anywhere in a cross-ledger chain, including the final
// storage commit, leaves every ledger exactly as it was. A committed call
// writes its state changes, its event and its call marker in one batch.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Klingon-tech/oyster/internal/events"
	"github.com/Klingon-tech/oyster/internal/id"
	olog "github.com/Klingon-tech/oyster/internal/log"
	"github.com/Klingon-tech/oyster/internal/storage"
	"github.com/Klingon-tech/oyster/pkg/crypto"
	"github.com/Klingon-tech/oyster/pkg/types"
)

// Params configure the token ledger at bootstrap.
type Params struct {
	UnitsPerToken uint64 `json:"units_per_token"`
	ServiceFee    uint64 `json:"service_fee"`
	LotSize       uint64 `json:"lot_size"`
}

// Validate checks the bootstrap parameters.
func (p Params) Validate() error {
	if p.UnitsPerToken == 0 {
		return fmt.Errorf("%w: units per token must be positive", ErrInvalidParameter)
	}
	if p.LotSize == 0 {
		return fmt.Errorf("%w: lot size must be positive", ErrInvalidParameter)
	}
	return nil
}

// Call is the envelope of one entry-point invocation.
type Call struct {
	ID     id.ID         // generated when Nil
	Caller types.Address // authenticated identity
	Value  uint64        // attached payment in currency base units
}

// Receipt describes the committed effects of a call.
type Receipt struct {
	CallID  id.ID         `json:"call_id"`
	Address types.Address `json:"address,omitempty"`
	Refund  uint64        `json:"refund"`
	Payout  uint64        `json:"payout"`
	Event   *events.Event `json:"event,omitempty"`
}

// txn is the working set of one call: the undo journal, the entities to
// persist and the event to emit.
type txn struct {
	call       Call
	j          journal
	meta       bool
	balances   map[types.Address]struct{}
	validated  map[types.Address]struct{}
	authorized map[types.Address]struct{}
	rights     map[types.Address]struct{}
	event      *events.Event
	receipt    Receipt
}

func newTxn(call Call) *txn {
	return &txn{
		call:       call,
		balances:   make(map[types.Address]struct{}),
		validated:  make(map[types.Address]struct{}),
		authorized: make(map[types.Address]struct{}),
		rights:     make(map[types.Address]struct{}),
	}
}

func (tx *txn) touchMeta() { tx.meta = true }
func (tx *txn) touchBalance(a types.Address) { tx.balances[a] = struct{}{} }
func (tx *txn) touchValidated(a types.Address) { tx.validated[a] = struct{}{} }
func (tx *txn) touchAuthorized(a types.Address) { tx.authorized[a] = struct{}{} }
func (tx *txn) touchRights(a types.Address) { tx.rights[a] = struct{}{} }

func (tx *txn) nonPayable() error {
	if tx.call.Value != 0 {
		return fmt.Errorf("%w: call takes no payment, got %d", ErrIncorrectPayment, tx.call.Value)
	}
	return nil
}

// Engine owns the token ledger, the vault and the contract registry.
// It is safe for concurrent use.
type Engine struct {
	mu sync.RWMutex

	db      storage.DB
	batcher storage.Batcher
	state   *storage.PrefixDB
	outbox  *events.Outbox

	now      func() time.Time
	onCommit func()

	nonce     uint64
	seq       uint64
	token     *TokenLedger
	vault     *Vault
	contracts map[types.Address]Contract
	ledgers   map[types.Address]*RightsLedger
	order     []types.Address
}

// New opens the engine over db and reloads any persisted state. db must
// support atomic batches.
func New(db storage.DB) (*Engine, error) {
	batcher, ok := db.(storage.Batcher)
	if !ok {
		return nil, errors.New("ledger: storage does not support atomic batches")
	}
	e := &Engine{
		db:        db,
		batcher:   batcher,
		state:     storage.NewPrefixDB(db, StatePrefix),
		outbox:    events.NewOutbox(db),
		now:       time.Now,
		contracts: make(map[types.Address]Contract),
		ledgers:   make(map[types.Address]*RightsLedger),
	}
	if err := e.load(); err != nil {
		return nil, err
	}
	return e, nil
}

// Outbox returns the event outbox the engine commits into.
func (e *Engine) Outbox() *events.Outbox { return e.outbox }

// SetCommitHook registers fn to run after every commit that emitted an
// event. It runs with the engine lock held and must not block.
func (e *Engine) SetCommitHook(fn func()) {
	e.mu.Lock()
	e.onCommit = fn
	e.mu.Unlock()
}

// SetClock replaces the event timestamp source.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	e.now = now
	e.mu.Unlock()
}

// run executes fn as one transaction.
func (e *Engine) run(op string, call Call, fn func(tx *txn) error) (Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if call.ID.IsNil() {
		call.ID = id.NewCallID()
	} else if call.ID.Prefix() != id.PrefixCall {
		return Receipt{CallID: call.ID}, fmt.Errorf("%w: call id %s", ErrInvalidParameter, call.ID)
	}
	if call.Caller.IsZero() {
		return Receipt{CallID: call.ID}, fmt.Errorf("%w: missing caller", ErrInvalidParameter)
	}
	seen, err := e.state.Has(callKey(call.ID))
	if err != nil {
		return Receipt{CallID: call.ID}, fmt.Errorf("lookup call %s: %w", call.ID, err)
	}
	if seen {
		return Receipt{CallID: call.ID}, fmt.Errorf("%w: %s", ErrDuplicateCall, call.ID)
	}

	tx := newTxn(call)
	if err := fn(tx); err != nil {
		tx.j.rollback()
		olog.Ledger.Debug().Err(err).
			Str("op", op).
			Str("call", call.ID.String()).
			Str("caller", call.Caller.String()).
			Str("kind", KindOf(err)).
			Msg("Call rejected")
		return Receipt{CallID: call.ID}, err
	}
	if err := e.commit(tx); err != nil {
		tx.j.rollback()
		olog.Ledger.Error().Err(err).Str("op", op).Str("call", call.ID.String()).Msg("Commit failed")
		return Receipt{CallID: call.ID}, fmt.Errorf("commit %s: %w", op, err)
	}

	r := tx.receipt
	r.CallID = call.ID
	r.Event = tx.event
	ev := olog.Ledger.Debug().Str("op", op).Str("call", call.ID.String())
	if tx.event != nil {
		ev = ev.Uint64("seq", tx.event.Seq)
	}
	ev.Msg("Call committed")
	if tx.event != nil && e.onCommit != nil {
		e.onCommit()
	}
	return r, nil
}

// emit attaches the call's event. The caller is always recorded.
func (e *Engine) emit(tx *txn, kind events.Kind, contract types.Address, accounts map[string]types.Address, amounts map[string]uint64) {
	if accounts == nil {
		accounts = make(map[string]types.Address)
	}
	accounts[events.RoleCaller] = tx.call.Caller
	set(&tx.j, &e.seq, e.seq+1)
	tx.touchMeta()
	tx.event = &events.Event{
		CallID:   tx.call.ID,
		Seq:      e.seq,
		Kind:     kind,
		Contract: contract,
		Accounts: accounts,
		Amounts:  amounts,
		Time:     e.now().UTC(),
	}
}

func (e *Engine) deployAddress(tx *txn, kind Kind) types.Address {
	addr := crypto.ContractAddress(string(kind), tx.call.Caller, e.nonce)
	set(&tx.j, &e.nonce, e.nonce+1)
	tx.touchMeta()
	return addr
}

func (e *Engine) requireBootstrapped() error {
	if e.token == nil {
		return ErrNotBootstrapped
	}
	return nil
}

func (e *Engine) ledger(addr types.Address) (*RightsLedger, error) {
	if err := e.requireBootstrapped(); err != nil {
		return nil, err
	}
	r, ok := e.ledgers[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLedger, addr)
	}
	return r, nil
}

// Bootstrap deploys the token ledger and the vault. The caller owns both.
func (e *Engine) Bootstrap(call Call, p Params) (Receipt, error) {
	return e.run("bootstrap", call, func(tx *txn) error {
		if e.token != nil {
			return fmt.Errorf("%w: token %s", ErrAlreadyDeployed, e.token.address)
		}
		if err := tx.nonPayable(); err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}
		owner := tx.call.Caller
		t := newTokenLedger(e.deployAddress(tx, KindToken), owner, p)
		v := newVault(e.deployAddress(tx, KindVault), owner, t)
		set(&tx.j, &e.token, t)
		set(&tx.j, &e.vault, v)
		setEntry(&tx.j, e.contracts, t.address, Contract(t))
		setEntry(&tx.j, e.contracts, v.address, Contract(v))
		tx.receipt.Address = t.address
		e.emit(tx, events.KindBootstrapped, t.address,
			map[string]types.Address{events.RoleOwner: owner, events.RoleToken: t.address, events.RoleVault: v.address},
			map[string]uint64{events.AmountRate: p.UnitsPerToken, events.AmountFee: p.ServiceFee})
		return nil
	})
}

// SetVault binds the token ledger to the deployed vault, once.
func (e *Engine) SetVault(call Call, addr types.Address) (Receipt, error) {
	return e.run("setVault", call, func(tx *txn) error {
		if err := e.requireBootstrapped(); err != nil {
			return err
		}
		if err := tx.nonPayable(); err != nil {
			return err
		}
		v, _ := e.contracts[addr].(*Vault)
		if err := e.token.setVault(tx, v); err != nil {
			return err
		}
		e.emit(tx, events.KindVaultBound, e.token.address,
			map[string]types.Address{events.RoleVault: addr}, nil)
		return nil
	})
}

// Mint creates amount new tokens in the vault.
func (e *Engine) Mint(call Call, amount uint64) (Receipt, error) {
	return e.run("mint", call, func(tx *txn) error {
		if err := e.requireBootstrapped(); err != nil {
			return err
		}
		if err := tx.nonPayable(); err != nil {
			return err
		}
		if err := e.token.mint(tx, amount); err != nil {
			return err
		}
		e.emit(tx, events.KindMinted, e.token.address,
			map[string]types.Address{events.RoleVault: e.token.vault},
			map[string]uint64{events.AmountTokens: amount, events.AmountSupply: e.token.totalSupply})
		return nil
	})
}

// Validate registers a rights ledger with the token ledger. Validating an
// already validated ledger succeeds without an event.
func (e *Engine) Validate(call Call, ledgerAddr types.Address) (Receipt, error) {
	return e.run("validate", call, func(tx *txn) error {
		if err := e.requireBootstrapped(); err != nil {
			return err
		}
		if err := tx.nonPayable(); err != nil {
			return err
		}
		changed, err := e.token.validate(tx, ledgerAddr, e.contracts[ledgerAddr])
		if err != nil || !changed {
			return err
		}
		e.emit(tx, events.KindLedgerValidated, e.token.address,
			map[string]types.Address{events.RoleLedger: ledgerAddr}, nil)
		return nil
	})
}

// Authorize grants or revokes an identity's right to move its own tokens
// into the vault. Redundant calls succeed without an event.
func (e *Engine) Authorize(call Call, addr types.Address, allowed bool) (Receipt, error) {
	return e.run("authorize", call, func(tx *txn) error {
		if err := e.requireBootstrapped(); err != nil {
			return err
		}
		if err := tx.nonPayable(); err != nil {
			return err
		}
		changed, err := e.vault.authorize(tx, addr, allowed)
		if err != nil || !changed {
			return err
		}
		var flag uint64
		if allowed {
			flag = 1
		}
		e.emit(tx, events.KindAuthorized, e.vault.address,
			map[string]types.Address{events.RoleTarget: addr},
			map[string]uint64{events.AmountAllowed: flag})
		return nil
	})
}

// VaultSend moves tokens out of custody. Owner only.
func (e *Engine) VaultSend(call Call, to types.Address, amount uint64) (Receipt, error) {
	return e.run("vaultSend", call, func(tx *txn) error {
		if err := e.requireBootstrapped(); err != nil {
			return err
		}
		if err := tx.nonPayable(); err != nil {
			return err
		}
		if err := e.vault.requireOwner(tx); err != nil {
			return err
		}
		if to.IsZero() {
			return fmt.Errorf("%w: zero recipient", ErrInvalidParameter)
		}
		if err := e.vault.send(tx, to, amount); err != nil {
			return err
		}
		e.emit(tx, events.KindVaultSent, e.vault.address,
			map[string]types.Address{events.RoleTo: to},
			map[string]uint64{events.AmountTokens: amount})
		return nil
	})
}

// VaultReceive moves the caller's own tokens back into custody. The caller
// must be authorized by the vault.
func (e *Engine) VaultReceive(call Call, from types.Address, amount uint64) (Receipt, error) {
	return e.run("vaultReceive", call, func(tx *txn) error {
		if err := e.requireBootstrapped(); err != nil {
			return err
		}
		if err := tx.nonPayable(); err != nil {
			return err
		}
		if err := e.vault.receive(tx, tx.call.Caller, from, amount); err != nil {
			return err
		}
		e.emit(tx, events.KindVaultReceived, e.vault.address,
			map[string]types.Address{events.RoleFrom: from},
			map[string]uint64{events.AmountTokens: amount})
		return nil
	})
}

// DeployRightsLedger creates an Open rights ledger owned by the caller.
// The ledger is registered but not validated.
func (e *Engine) DeployRightsLedger(call Call, p RightsParams) (Receipt, error) {
	return e.run("deployRightsLedger", call, func(tx *txn) error {
		if err := e.requireBootstrapped(); err != nil {
			return err
		}
		if err := tx.nonPayable(); err != nil {
			return err
		}
		addr := e.deployAddress(tx, KindRights)
		r := newRightsLedger(addr, tx.call.Caller, p, e.token, e.vault)
		r.index = len(e.order)
		setEntry(&tx.j, e.contracts, addr, Contract(r))
		setEntry(&tx.j, e.ledgers, addr, r)
		set(&tx.j, &e.order, append(e.order[:len(e.order):len(e.order)], addr))
		tx.touchRights(addr)
		tx.receipt.Address = addr
		e.emit(tx, events.KindRightsDeployed, addr,
			map[string]types.Address{events.RoleOwner: tx.call.Caller},
			map[string]uint64{events.AmountRate: p.RightPurchaseRate, events.AmountListen: p.ListenRate})
		return nil
	})
}

// AssignRights gives holder pct more percent of the ledger's revenue.
func (e *Engine) AssignRights(call Call, ledgerAddr, holder types.Address, pct uint64) (Receipt, error) {
	return e.run("assignRights", call, func(tx *txn) error {
		r, err := e.ledger(ledgerAddr)
		if err != nil {
			return err
		}
		if err := tx.nonPayable(); err != nil {
			return err
		}
		if holder.IsZero() {
			return fmt.Errorf("%w: zero holder", ErrInvalidParameter)
		}
		if err := r.assign(tx, holder, pct); err != nil {
			return err
		}
		e.emit(tx, events.KindRightsAssigned, ledgerAddr,
			map[string]types.Address{events.RoleHolder: holder},
			map[string]uint64{events.AmountPct: pct})
		return nil
	})
}

// WithdrawRights takes pct percent back from holder.
func (e *Engine) WithdrawRights(call Call, ledgerAddr, holder types.Address, pct uint64) (Receipt, error) {
	return e.run("withdrawRights", call, func(tx *txn) error {
		r, err := e.ledger(ledgerAddr)
		if err != nil {
			return err
		}
		if err := tx.nonPayable(); err != nil {
			return err
		}
		if err := r.withdraw(tx, holder, pct); err != nil {
			return err
		}
		e.emit(tx, events.KindRightsWithdrawn, ledgerAddr,
			map[string]types.Address{events.RoleHolder: holder},
			map[string]uint64{events.AmountPct: pct})
		return nil
	})
}

// SealRights freezes the division. Every percent must be assigned.
func (e *Engine) SealRights(call Call, ledgerAddr types.Address) (Receipt, error) {
	return e.run("sealRights", call, func(tx *txn) error {
		r, err := e.ledger(ledgerAddr)
		if err != nil {
			return err
		}
		if err := tx.nonPayable(); err != nil {
			return err
		}
		if err := r.seal(tx); err != nil {
			return err
		}
		e.emit(tx, events.KindRightsSealed, ledgerAddr, nil, nil)
		return nil
	})
}

// BuyLot buys one canonical lot, fee included.
func (e *Engine) BuyLot(call Call, ledgerAddr types.Address) (Receipt, error) {
	return e.run("buyLot", call, func(tx *txn) error {
		r, err := e.ledger(ledgerAddr)
		if err != nil {
			return err
		}
		return e.buy(tx, r, r.token.lotSize)
	})
}

// BuyTokens buys amount tokens through a sealed ledger with the attached
// payment. Overpayment is returned as Receipt.Refund.
func (e *Engine) BuyTokens(call Call, ledgerAddr types.Address, amount uint64) (Receipt, error) {
	return e.run("buyTokens", call, func(tx *txn) error {
		r, err := e.ledger(ledgerAddr)
		if err != nil {
			return err
		}
		return e.buy(tx, r, amount)
	})
}

func (e *Engine) buy(tx *txn, r *RightsLedger, amount uint64) error {
	required, fee, refund, err := r.buy(tx, amount)
	if err != nil {
		return err
	}
	tx.receipt.Refund = refund
	e.emit(tx, events.KindTokensBought, r.address,
		map[string]types.Address{events.RoleToken: e.token.address, events.RoleVault: e.vault.address},
		map[string]uint64{
			events.AmountTokens:   amount,
			events.AmountPayment:  tx.call.Value,
			events.AmountRequired: required,
			events.AmountFee:      fee,
			events.AmountRefund:   refund,
		})
	return nil
}

// SellTokens returns amount of the caller's tokens to the vault and pays
// out their base value from the ledger's currency.
func (e *Engine) SellTokens(call Call, ledgerAddr types.Address, amount uint64) (Receipt, error) {
	return e.run("sellTokens", call, func(tx *txn) error {
		r, err := e.ledger(ledgerAddr)
		if err != nil {
			return err
		}
		payout, err := r.sell(tx, amount)
		if err != nil {
			return err
		}
		tx.receipt.Payout = payout
		e.emit(tx, events.KindTokensSold, ledgerAddr,
			map[string]types.Address{events.RoleVault: e.vault.address},
			map[string]uint64{events.AmountTokens: amount, events.AmountPayout: payout})
		return nil
	})
}

// PayRightsFee pays the exact right-purchase fee into the ledger.
func (e *Engine) PayRightsFee(call Call, ledgerAddr types.Address) (Receipt, error) {
	return e.run("payRightsFee", call, func(tx *txn) error {
		r, err := e.ledger(ledgerAddr)
		if err != nil {
			return err
		}
		if err := r.payFee(tx, r.rightPurchaseRate); err != nil {
			return err
		}
		e.emit(tx, events.KindRightsFeePaid, ledgerAddr, nil,
			map[string]uint64{events.AmountPayment: tx.call.Value})
		return nil
	})
}

// PayListenFee pays the exact listen fee into the ledger.
func (e *Engine) PayListenFee(call Call, ledgerAddr types.Address) (Receipt, error) {
	return e.run("payListenFee", call, func(tx *txn) error {
		r, err := e.ledger(ledgerAddr)
		if err != nil {
			return err
		}
		if err := r.payFee(tx, r.listenRate); err != nil {
			return err
		}
		e.emit(tx, events.KindListenFeePaid, ledgerAddr, nil,
			map[string]uint64{events.AmountPayment: tx.call.Value})
		return nil
	})
}
