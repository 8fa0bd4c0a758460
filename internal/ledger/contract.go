package ledger

import "github.com/Klingon-tech/oyster/pkg/types"

// Kind identifies what a contract is when probed.
type Kind string

// Contract kinds known to the engine.
const (
	KindToken  Kind = "token"
	KindVault  Kind = "vault"
	KindRights Kind = "rights"
)

// Contract is anything deployed at a ledger address.
type Contract interface {
	ContractAddress() types.Address
}

// KindProber is the read-only capability probe Validate calls on a
// candidate address. Only a RightsLedger answers KindRights.
type KindProber interface {
	ContractKind() Kind
}
