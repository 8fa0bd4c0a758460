package ledger

import "errors"

// Ledger errors. Every failed call returns one of these (possibly wrapped
// with detail) and leaves all ledgers unchanged.
var (
	ErrUnauthorized               = errors.New("unauthorized")
	ErrNotValidated               = errors.New("rights ledger not validated")
	ErrNotAContract               = errors.New("address is not a contract")
	ErrCapabilityCheckFailed      = errors.New("capability check failed")
	ErrAlreadyBound               = errors.New("vault already bound")
	ErrAlreadySealed              = errors.New("rights already sealed")
	ErrNotSealed                  = errors.New("rights not sealed")
	ErrRightsNotFullyAssigned     = errors.New("rights not fully assigned")
	ErrInsufficientRemaining      = errors.New("insufficient remaining percentage")
	ErrInsufficientHolderShare    = errors.New("insufficient holder share")
	ErrInsufficientVaultBalance   = errors.New("insufficient vault balance")
	ErrInsufficientTokenBalance   = errors.New("insufficient token balance")
	ErrInsufficientLedgerCurrency = errors.New("insufficient ledger currency")
	ErrInsufficientPayment        = errors.New("insufficient payment")
	ErrIncorrectPayment           = errors.New("incorrect payment")

	ErrInvalidAmount    = errors.New("invalid amount")
	ErrOverflow         = errors.New("arithmetic overflow")
	ErrVaultNotBound    = errors.New("vault not bound")
	ErrUnknownLedger    = errors.New("unknown rights ledger")
	ErrDuplicateCall    = errors.New("call already committed")
	ErrNotBootstrapped  = errors.New("ledger not bootstrapped")
	ErrAlreadyDeployed  = errors.New("ledger already bootstrapped")
	ErrInvalidParameter = errors.New("invalid parameter")
)

// errorKinds maps each ledger error to its taxonomy name.
var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrUnauthorized, "Unauthorized"},
	{ErrNotValidated, "NotValidated"},
	{ErrNotAContract, "NotAContract"},
	{ErrCapabilityCheckFailed, "CapabilityCheckFailed"},
	{ErrAlreadyBound, "AlreadyBound"},
	{ErrAlreadySealed, "AlreadySealed"},
	{ErrNotSealed, "NotSealed"},
	{ErrRightsNotFullyAssigned, "RightsNotFullyAssigned"},
	{ErrInsufficientRemaining, "InsufficientRemaining"},
	{ErrInsufficientHolderShare, "InsufficientHolderShare"},
	{ErrInsufficientVaultBalance, "InsufficientVaultBalance"},
	{ErrInsufficientTokenBalance, "InsufficientTokenBalance"},
	{ErrInsufficientLedgerCurrency, "InsufficientLedgerCurrency"},
	{ErrInsufficientPayment, "InsufficientPayment"},
	{ErrIncorrectPayment, "IncorrectPayment"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrOverflow, "Overflow"},
	{ErrVaultNotBound, "VaultNotBound"},
	{ErrUnknownLedger, "UnknownLedger"},
	{ErrDuplicateCall, "DuplicateCall"},
	{ErrNotBootstrapped, "NotBootstrapped"},
	{ErrAlreadyDeployed, "AlreadyDeployed"},
	{ErrInvalidParameter, "InvalidParameter"},
}

// KindOf returns the taxonomy name of a ledger error, or "" when err is
// nil or not a ledger error (for example a storage failure).
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return ""
}

// Kinds returns every taxonomy name in a stable order.
func Kinds() []string {
	out := make([]string, len(errorKinds))
	for i, k := range errorKinds {
		out[i] = k.kind
	}
	return out
}
