package keys

import (
	"fmt"

	"github.com/tyler-smith/go-bip32"

	"github.com/Klingon-tech/oyster/pkg/crypto"
	"github.com/Klingon-tech/oyster/pkg/types"
)

// Derivation path m/44'/CoinType'/account'/0/index.
const (
	Purpose  = bip32.FirstHardenedChild + 44
	CoinType = bip32.FirstHardenedChild + 7997
)

// Node is a BIP-32 key in the derivation tree.
type Node struct {
	key *bip32.Key
}

// Master returns the root node for seed.
func Master(seed []byte) (*Node, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	root, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}
	return &Node{key: root}, nil
}

// Child derives one level down. Add bip32.FirstHardenedChild for a
// hardened step.
func (n *Node) Child(index uint32) (*Node, error) {
	child, err := n.key.NewChildKey(index)
	if err != nil {
		return nil, fmt.Errorf("derive child %d: %w", index, err)
	}
	return &Node{key: child}, nil
}

// Identity derives the signing node for an account and index.
func (n *Node) Identity(account, index uint32) (*Node, error) {
	cur := n
	for _, step := range []uint32{Purpose, CoinType, bip32.FirstHardenedChild + account, 0, index} {
		next, err := cur.Child(step)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// PublicKey returns the compressed public key.
func (n *Node) PublicKey() []byte {
	return n.key.PublicKey().Key
}

// Address returns the ledger address controlled by this node.
func (n *Node) Address() types.Address {
	return crypto.AddressFromPubKey(n.PublicKey())
}

// Depth returns the distance from the master node.
func (n *Node) Depth() uint8 { return n.key.Depth }

// PrivateKey returns the signing key. It fails on public-only nodes.
func (n *Node) PrivateKey() (*crypto.PrivateKey, error) {
	if !n.key.IsPrivate {
		return nil, fmt.Errorf("public-only key")
	}
	raw := n.key.Key
	// bip32 pads private keys to 33 bytes.
	if len(raw) == 33 && raw[0] == 0 {
		raw = raw[1:]
	}
	return crypto.PrivateKeyFromBytes(raw)
}

// Public returns a copy without the private half.
func (n *Node) Public() *Node {
	return &Node{key: n.key.PublicKey()}
}
