package ledger

import (
	"fmt"

	"github.com/Klingon-tech/oyster/pkg/types"
)

// TokenLedger is the fungible settlement token. The sum of balances always
// equals totalSupply; new supply is only ever minted into the vault.
type TokenLedger struct {
	address       types.Address
	owner         types.Address
	totalSupply   uint64
	balances      map[types.Address]uint64
	unitsPerToken uint64
	serviceFee    uint64
	lotSize       uint64
	vault         types.Address
	validated     map[types.Address]bool
}

func newTokenLedger(addr, owner types.Address, p Params) *TokenLedger {
	return &TokenLedger{
		address:       addr,
		owner:         owner,
		balances:      make(map[types.Address]uint64),
		unitsPerToken: p.UnitsPerToken,
		serviceFee:    p.ServiceFee,
		lotSize:       p.LotSize,
		validated:     make(map[types.Address]bool),
	}
}

// ContractAddress implements Contract.
func (t *TokenLedger) ContractAddress() types.Address { return t.address }

// ContractKind implements KindProber.
func (t *TokenLedger) ContractKind() Kind { return KindToken }

// BalanceOf returns the token balance of addr.
func (t *TokenLedger) BalanceOf(addr types.Address) uint64 {
	return t.balances[addr]
}

// Quote returns the currency required to buy amount tokens and the flat
// fee included in it. The fee applies only to the canonical lot.
func (t *TokenLedger) Quote(amount uint64) (required, fee uint64, err error) {
	required, err = mul(amount, t.unitsPerToken)
	if err != nil {
		return 0, 0, err
	}
	if amount == t.lotSize {
		fee = t.serviceFee
		if required, err = add(required, fee); err != nil {
			return 0, 0, err
		}
	}
	return required, fee, nil
}

func (t *TokenLedger) requireOwner(tx *txn) error {
	if tx.call.Caller != t.owner {
		return fmt.Errorf("%w: %s is not the token owner", ErrUnauthorized, tx.call.Caller)
	}
	return nil
}

func (t *TokenLedger) setBalance(tx *txn, addr types.Address, v uint64) {
	setEntry(&tx.j, t.balances, addr, v)
	tx.touchBalance(addr)
}

// transfer moves amount from one holder to another.
func (t *TokenLedger) transfer(tx *txn, from, to types.Address, amount uint64) error {
	have := t.balances[from]
	if have < amount {
		return fmt.Errorf("%w: %s holds %d, need %d", ErrInsufficientTokenBalance, from, have, amount)
	}
	if from == to {
		return nil
	}
	credited, err := add(t.balances[to], amount)
	if err != nil {
		return err
	}
	t.setBalance(tx, from, have-amount)
	t.setBalance(tx, to, credited)
	return nil
}

func (t *TokenLedger) mint(tx *txn, amount uint64) error {
	if err := t.requireOwner(tx); err != nil {
		return err
	}
	if amount == 0 {
		return fmt.Errorf("%w: mint amount must be positive", ErrInvalidAmount)
	}
	if t.vault.IsZero() {
		return ErrVaultNotBound
	}
	supply, err := add(t.totalSupply, amount)
	if err != nil {
		return err
	}
	held, err := add(t.balances[t.vault], amount)
	if err != nil {
		return err
	}
	set(&tx.j, &t.totalSupply, supply)
	t.setBalance(tx, t.vault, held)
	tx.touchMeta()
	return nil
}

func (t *TokenLedger) setVault(tx *txn, v *Vault) error {
	if err := t.requireOwner(tx); err != nil {
		return err
	}
	if !t.vault.IsZero() {
		return fmt.Errorf("%w: bound to %s", ErrAlreadyBound, t.vault)
	}
	if v == nil {
		return fmt.Errorf("%w: not the deployed vault", ErrCapabilityCheckFailed)
	}
	set(&tx.j, &t.vault, v.address)
	tx.touchMeta()
	return nil
}

// validate registers a rights ledger after probing it. c is nil when
// nothing is deployed at addr. Reports whether the set changed.
func (t *TokenLedger) validate(tx *txn, addr types.Address, c Contract) (bool, error) {
	if err := t.requireOwner(tx); err != nil {
		return false, err
	}
	if c == nil {
		return false, fmt.Errorf("%w: %s", ErrNotAContract, addr)
	}
	p, ok := c.(KindProber)
	if !ok {
		return false, fmt.Errorf("%w: %s does not answer the kind probe", ErrCapabilityCheckFailed, addr)
	}
	if k := p.ContractKind(); k != KindRights {
		return false, fmt.Errorf("%w: %s is a %s contract", ErrCapabilityCheckFailed, addr, k)
	}
	if t.validated[addr] {
		return false, nil
	}
	setEntry(&tx.j, t.validated, addr, true)
	tx.touchValidated(addr)
	return true, nil
}

// purchase sells amount tokens from the vault to a validated rights ledger
// for payment. It returns the required price, the fee part of it, and the
// refund owed to the buyer.
func (t *TokenLedger) purchase(tx *txn, v *Vault, ledgerAddr types.Address, amount, payment uint64) (required, fee, refund uint64, err error) {
	if !t.validated[ledgerAddr] {
		return 0, 0, 0, fmt.Errorf("%w: %s", ErrNotValidated, ledgerAddr)
	}
	if v == nil || t.vault.IsZero() {
		return 0, 0, 0, ErrVaultNotBound
	}
	required, fee, err = t.Quote(amount)
	if err != nil {
		return 0, 0, 0, err
	}
	if payment < required {
		return 0, 0, 0, fmt.Errorf("%w: need %d, got %d", ErrInsufficientPayment, required, payment)
	}
	if err := v.send(tx, ledgerAddr, amount); err != nil {
		return 0, 0, 0, err
	}
	return required, fee, payment - required, nil
}

// TokenInfo summarizes the token ledger.
type TokenInfo struct {
	Address        types.Address `json:"address"`
	Owner          types.Address `json:"owner"`
	TotalSupply    uint64        `json:"total_supply"`
	UnitsPerToken  uint64        `json:"units_per_token"`
	ServiceFee     uint64        `json:"service_fee"`
	LotSize        uint64        `json:"lot_size"`
	Vault          types.Address `json:"vault"`
	ValidatedCount int           `json:"validated_count"`
	Holders        int           `json:"holders"`
}

func (t *TokenLedger) info() TokenInfo {
	return TokenInfo{
		Address:        t.address,
		Owner:          t.owner,
		TotalSupply:    t.totalSupply,
		UnitsPerToken:  t.unitsPerToken,
		ServiceFee:     t.serviceFee,
		LotSize:        t.lotSize,
		Vault:          t.vault,
		ValidatedCount: len(t.validated),
		Holders:        len(t.balances),
	}
}
