package ledger

import (
	"fmt"

	"github.com/Klingon-tech/oyster/pkg/types"
)

// Views read committed state under the shared lock and never fail on a
// sealed or open ledger; they fail only when the target does not exist.

// Bootstrapped reports whether the token ledger and vault exist.
func (e *Engine) Bootstrapped() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.token != nil
}

// TokenInfo summarizes the token ledger.
func (e *Engine) TokenInfo() (TokenInfo, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.requireBootstrapped(); err != nil {
		return TokenInfo{}, err
	}
	return e.token.info(), nil
}

// BalanceOf returns the token balance of addr.
func (e *Engine) BalanceOf(addr types.Address) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.token == nil {
		return 0
	}
	return e.token.BalanceOf(addr)
}

// TotalSupply returns the number of tokens ever minted.
func (e *Engine) TotalSupply() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.token == nil {
		return 0
	}
	return e.token.totalSupply
}

// IsValidated reports whether addr is a validated rights ledger.
func (e *Engine) IsValidated(addr types.Address) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.token != nil && e.token.validated[addr]
}

// Quote returns the price of amount tokens and the fee included in it.
func (e *Engine) Quote(amount uint64) (required, fee uint64, err error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.requireBootstrapped(); err != nil {
		return 0, 0, err
	}
	return e.token.Quote(amount)
}

// VaultInfo summarizes the vault.
func (e *Engine) VaultInfo() (VaultInfo, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.requireBootstrapped(); err != nil {
		return VaultInfo{}, err
	}
	return e.vault.info(), nil
}

// IsAuthorized reports whether addr may move its tokens into the vault.
func (e *Engine) IsAuthorized(addr types.Address) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.vault != nil && e.vault.authorized[addr]
}

// Ledgers returns every rights ledger address in deployment order.
func (e *Engine) Ledgers() []types.Address {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]types.Address(nil), e.order...)
}

func (e *Engine) view(addr types.Address, fn func(r *RightsLedger)) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, err := e.ledger(addr)
	if err != nil {
		return err
	}
	fn(r)
	return nil
}

// RightsInfo summarizes one rights ledger.
func (e *Engine) RightsInfo(addr types.Address) (RightsInfo, error) {
	var info RightsInfo
	err := e.view(addr, func(r *RightsLedger) { info = r.info() })
	return info, err
}

// ViewBalance returns the currency a ledger has accumulated.
func (e *Engine) ViewBalance(addr types.Address) (uint64, error) {
	var v uint64
	err := e.view(addr, func(r *RightsLedger) { v = r.currency })
	return v, err
}

// ViewTokensPerAddress returns how many tokens holder bought through a ledger.
func (e *Engine) ViewTokensPerAddress(addr, holder types.Address) (uint64, error) {
	var v uint64
	err := e.view(addr, func(r *RightsLedger) { v = r.tokens[holder] })
	return v, err
}

// ViewRemaining returns the unassigned percentage.
func (e *Engine) ViewRemaining(addr types.Address) (uint64, error) {
	var v uint64
	err := e.view(addr, func(r *RightsLedger) { v = r.remaining })
	return v, err
}

// ViewSealed reports whether the ledger is sealed.
func (e *Engine) ViewSealed(addr types.Address) (bool, error) {
	var v bool
	err := e.view(addr, func(r *RightsLedger) { v = r.sealed })
	return v, err
}

// ViewShare returns holder's percentage.
func (e *Engine) ViewShare(addr, holder types.Address) (uint64, error) {
	var v uint64
	err := e.view(addr, func(r *RightsLedger) { v = r.division[holder] })
	return v, err
}

// ViewRightHolders lists every account that ever held a share, in order of
// first assignment.
func (e *Engine) ViewRightHolders(addr types.Address) ([]types.Address, error) {
	var v []types.Address
	err := e.view(addr, func(r *RightsLedger) { v = append([]types.Address{}, r.holders...) })
	return v, err
}

// CheckInvariants verifies supply conservation and, per rights ledger,
// percentage conservation and token backing.
func (e *Engine) CheckInvariants() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.token == nil {
		return nil
	}
	var sum uint64
	for _, b := range e.token.balances {
		sum += b
	}
	if sum != e.token.totalSupply {
		return fmt.Errorf("balances sum to %d, total supply %d", sum, e.token.totalSupply)
	}
	for _, addr := range e.order {
		if err := e.ledgers[addr].checkInvariants(); err != nil {
			return err
		}
	}
	return nil
}
