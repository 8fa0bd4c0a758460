package ledger

import (
	"fmt"
	"sort"

	"github.com/Klingon-tech/oyster/pkg/types"
)

// Vault holds the token supply in custody. Its balance lives in the token
// ledger. Only the owner pushes tokens out; only authorized identities may
// push their own tokens back in.
type Vault struct {
	address    types.Address
	owner      types.Address
	token      *TokenLedger
	authorized map[types.Address]bool
}

func newVault(addr, owner types.Address, token *TokenLedger) *Vault {
	return &Vault{
		address:    addr,
		owner:      owner,
		token:      token,
		authorized: make(map[types.Address]bool),
	}
}

// ContractAddress implements Contract.
func (v *Vault) ContractAddress() types.Address { return v.address }

// ContractKind implements KindProber.
func (v *Vault) ContractKind() Kind { return KindVault }

// Balance returns the number of tokens in custody.
func (v *Vault) Balance() uint64 {
	return v.token.BalanceOf(v.address)
}

func (v *Vault) requireOwner(tx *txn) error {
	if tx.call.Caller != v.owner {
		return fmt.Errorf("%w: %s is not the vault owner", ErrUnauthorized, tx.call.Caller)
	}
	return nil
}

// authorize grants or revokes the right to push tokens into custody.
// Reports whether the set changed.
func (v *Vault) authorize(tx *txn, addr types.Address, allowed bool) (bool, error) {
	if err := v.requireOwner(tx); err != nil {
		return false, err
	}
	if addr.IsZero() {
		return false, fmt.Errorf("%w: zero address", ErrInvalidParameter)
	}
	if v.authorized[addr] == allowed {
		return false, nil
	}
	setEntry(&tx.j, v.authorized, addr, allowed)
	tx.touchAuthorized(addr)
	return true, nil
}

// send moves tokens out of custody. Callers are responsible for access
// control: the engine checks ownership for external calls, and the token
// ledger's purchase path uses it as an internal capability.
func (v *Vault) send(tx *txn, to types.Address, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("%w: send amount must be positive", ErrInvalidAmount)
	}
	if have := v.Balance(); have < amount {
		return fmt.Errorf("%w: vault holds %d, need %d", ErrInsufficientVaultBalance, have, amount)
	}
	return v.token.transfer(tx, v.address, to, amount)
}

// receive pulls amount tokens from an authorized identity moving its own
// funds back into custody.
func (v *Vault) receive(tx *txn, caller, from types.Address, amount uint64) error {
	if caller != from {
		return fmt.Errorf("%w: %s cannot move tokens of %s", ErrUnauthorized, caller, from)
	}
	if !v.authorized[from] {
		return fmt.Errorf("%w: %s is not authorized by the vault", ErrUnauthorized, from)
	}
	if amount == 0 {
		return fmt.Errorf("%w: receive amount must be positive", ErrInvalidAmount)
	}
	return v.token.transfer(tx, from, v.address, amount)
}

// VaultInfo summarizes the vault.
type VaultInfo struct {
	Address    types.Address   `json:"address"`
	Owner      types.Address   `json:"owner"`
	Balance    uint64          `json:"balance"`
	Authorized []types.Address `json:"authorized"`
}

func (v *Vault) info() VaultInfo {
	auth := make([]types.Address, 0, len(v.authorized))
	for a := range v.authorized {
		auth = append(auth, a)
	}
	sort.Slice(auth, func(i, j int) bool { return auth[i].Hex() < auth[j].Hex() })
	return VaultInfo{
		Address:    v.address,
		Owner:      v.owner,
		Balance:    v.Balance(),
		Authorized: auth,
	}
}
