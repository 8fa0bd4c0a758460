package ledger

import (
	"fmt"

	"github.com/Klingon-tech/oyster/pkg/types"
)

// FullShare is the total percentage divided among right holders.
const FullShare = 100

// RightsLedger divides one asset's revenue among right holders. It starts
// Open, where the owner assigns and withdraws percentages, and becomes
// Sealed once everything is assigned. Sealed is terminal; only exchange
// operations are accepted afterwards.
type RightsLedger struct {
	index             int
	address           types.Address
	owner             types.Address
	sealed            bool
	division          map[types.Address]uint64
	remaining         uint64
	holders           []types.Address
	tokens            map[types.Address]uint64
	currency          uint64
	rightPurchaseRate uint64
	listenRate        uint64
	token             *TokenLedger
	vault             *Vault
}

// RightsParams are supplied by the owner at deployment.
type RightsParams struct {
	RightPurchaseRate uint64 `json:"right_purchase_rate"`
	ListenRate        uint64 `json:"listen_rate"`
}

func newRightsLedger(addr, owner types.Address, p RightsParams, token *TokenLedger, vault *Vault) *RightsLedger {
	return &RightsLedger{
		address:           addr,
		owner:             owner,
		division:          make(map[types.Address]uint64),
		remaining:         FullShare,
		tokens:            make(map[types.Address]uint64),
		rightPurchaseRate: p.RightPurchaseRate,
		listenRate:        p.ListenRate,
		token:             token,
		vault:             vault,
	}
}

// ContractAddress implements Contract.
func (r *RightsLedger) ContractAddress() types.Address { return r.address }

// ContractKind implements KindProber.
func (r *RightsLedger) ContractKind() Kind { return KindRights }

func (r *RightsLedger) requireOwner(tx *txn) error {
	if tx.call.Caller != r.owner {
		return fmt.Errorf("%w: %s is not the owner of %s", ErrUnauthorized, tx.call.Caller, r.address)
	}
	return nil
}

func (r *RightsLedger) requireOpen() error {
	if r.sealed {
		return fmt.Errorf("%w: %s", ErrAlreadySealed, r.address)
	}
	return nil
}

func (r *RightsLedger) requireSealed() error {
	if !r.sealed {
		return fmt.Errorf("%w: %s", ErrNotSealed, r.address)
	}
	return nil
}

func (r *RightsLedger) listed(holder types.Address) bool {
	for _, h := range r.holders {
		if h == holder {
			return true
		}
	}
	return false
}

func (r *RightsLedger) assign(tx *txn, holder types.Address, pct uint64) error {
	if err := r.requireOwner(tx); err != nil {
		return err
	}
	if err := r.requireOpen(); err != nil {
		return err
	}
	if pct == 0 {
		return fmt.Errorf("%w: percentage must be positive", ErrInvalidAmount)
	}
	if pct > r.remaining {
		return fmt.Errorf("%w: %d requested, %d remaining", ErrInsufficientRemaining, pct, r.remaining)
	}
	set(&tx.j, &r.remaining, r.remaining-pct)
	setEntry(&tx.j, r.division, holder, r.division[holder]+pct)
	if !r.listed(holder) {
		set(&tx.j, &r.holders, append(r.holders[:len(r.holders):len(r.holders)], holder))
	}
	tx.touchRights(r.address)
	return nil
}

func (r *RightsLedger) withdraw(tx *txn, holder types.Address, pct uint64) error {
	if err := r.requireOwner(tx); err != nil {
		return err
	}
	if err := r.requireOpen(); err != nil {
		return err
	}
	if pct == 0 {
		return fmt.Errorf("%w: percentage must be positive", ErrInvalidAmount)
	}
	if have := r.division[holder]; have < pct {
		return fmt.Errorf("%w: %s holds %d, %d requested", ErrInsufficientHolderShare, holder, have, pct)
	}
	setEntry(&tx.j, r.division, holder, r.division[holder]-pct)
	set(&tx.j, &r.remaining, r.remaining+pct)
	tx.touchRights(r.address)
	return nil
}

func (r *RightsLedger) seal(tx *txn) error {
	if err := r.requireOwner(tx); err != nil {
		return err
	}
	if err := r.requireOpen(); err != nil {
		return err
	}
	if r.remaining != 0 {
		return fmt.Errorf("%w: %d%% remaining", ErrRightsNotFullyAssigned, r.remaining)
	}
	set(&tx.j, &r.sealed, true)
	tx.touchRights(r.address)
	return nil
}

// buy purchases amount tokens for the caller with the attached payment.
func (r *RightsLedger) buy(tx *txn, amount uint64) (required, fee, refund uint64, err error) {
	if err := r.requireSealed(); err != nil {
		return 0, 0, 0, err
	}
	if amount == 0 {
		return 0, 0, 0, fmt.Errorf("%w: token amount must be positive", ErrInvalidAmount)
	}
	buyer := tx.call.Caller
	held, err := add(r.tokens[buyer], amount)
	if err != nil {
		return 0, 0, 0, err
	}
	quoted, _, err := r.token.Quote(amount)
	if err != nil {
		return 0, 0, 0, err
	}
	balance, err := add(r.currency, quoted)
	if err != nil {
		return 0, 0, 0, err
	}

	required, fee, refund, err = r.token.purchase(tx, r.vault, r.address, amount, tx.call.Value)
	if err != nil {
		return 0, 0, 0, err
	}
	setEntry(&tx.j, r.tokens, buyer, held)
	set(&tx.j, &r.currency, balance)
	tx.touchRights(r.address)
	return required, fee, refund, nil
}

// sell returns amount of the caller's tokens to the vault and pays the
// caller at the token rate out of the ledger's currency.
func (r *RightsLedger) sell(tx *txn, amount uint64) (uint64, error) {
	if err := r.requireSealed(); err != nil {
		return 0, err
	}
	if tx.call.Value != 0 {
		return 0, fmt.Errorf("%w: selling takes no payment", ErrIncorrectPayment)
	}
	seller := tx.call.Caller
	held := r.tokens[seller]
	if amount == 0 || amount > held {
		return 0, fmt.Errorf("%w: %s holds %d through %s, selling %d",
			ErrInsufficientTokenBalance, seller, held, r.address, amount)
	}
	payout, err := mul(amount, r.token.unitsPerToken)
	if err != nil {
		return 0, err
	}
	if r.currency < payout {
		return 0, fmt.Errorf("%w: ledger holds %d, payout %d", ErrInsufficientLedgerCurrency, r.currency, payout)
	}
	if err := r.vault.receive(tx, r.address, r.address, amount); err != nil {
		return 0, err
	}
	setEntry(&tx.j, r.tokens, seller, held-amount)
	set(&tx.j, &r.currency, r.currency-payout)
	tx.touchRights(r.address)
	return payout, nil
}

// payFee accepts an exact fee payment into the ledger's currency.
func (r *RightsLedger) payFee(tx *txn, rate uint64) error {
	if err := r.requireSealed(); err != nil {
		return err
	}
	if tx.call.Value != rate {
		return fmt.Errorf("%w: fee is %d, got %d", ErrIncorrectPayment, rate, tx.call.Value)
	}
	balance, err := add(r.currency, rate)
	if err != nil {
		return err
	}
	set(&tx.j, &r.currency, balance)
	tx.touchRights(r.address)
	return nil
}

// RightsInfo summarizes one rights ledger.
type RightsInfo struct {
	Address           types.Address            `json:"address"`
	Owner             types.Address            `json:"owner"`
	Sealed            bool                     `json:"sealed"`
	Validated         bool                     `json:"validated"`
	Remaining         uint64                   `json:"remaining"`
	Division          map[types.Address]uint64 `json:"division"`
	RightHolders      []types.Address          `json:"right_holders"`
	CurrencyBalance   uint64                   `json:"currency_balance"`
	TokenBalance      uint64                   `json:"token_balance"`
	RightPurchaseRate uint64                   `json:"right_purchase_rate"`
	ListenRate        uint64                   `json:"listen_rate"`
}

func (r *RightsLedger) info() RightsInfo {
	div := make(map[types.Address]uint64, len(r.division))
	for k, v := range r.division {
		div[k] = v
	}
	return RightsInfo{
		Address:           r.address,
		Owner:             r.owner,
		Sealed:            r.sealed,
		Validated:         r.token.validated[r.address],
		Remaining:         r.remaining,
		Division:          div,
		RightHolders:      append([]types.Address{}, r.holders...),
		CurrencyBalance:   r.currency,
		TokenBalance:      r.token.BalanceOf(r.address),
		RightPurchaseRate: r.rightPurchaseRate,
		ListenRate:        r.listenRate,
	}
}

// checkInvariants verifies percentage conservation and that the ledger
// holds at least the tokens it owes its buyers.
func (r *RightsLedger) checkInvariants() error {
	sum := r.remaining
	for _, pct := range r.division {
		sum += pct
	}
	if sum != FullShare {
		return fmt.Errorf("ledger %s: remaining + shares = %d, want %d", r.address, sum, FullShare)
	}
	var owed uint64
	for _, n := range r.tokens {
		owed += n
	}
	if held := r.token.BalanceOf(r.address); held < owed {
		return fmt.Errorf("ledger %s: holds %d tokens, owes %d", r.address, held, owed)
	}
	return nil
}
