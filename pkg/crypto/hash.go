// Package crypto provides the hashing and signing primitives of the ledger node.
package crypto

import (
	"encoding/binary"

	"github.com/Klingon-tech/oyster/pkg/types"
	"github.com/zeebo/blake3"
)

// contractDomain separates contract address derivation from other digests.
const contractDomain = "oyster/contract"

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// HashParts hashes the concatenation of parts, each prefixed by its
// big-endian uint32 length so that part boundaries are unambiguous.
func HashParts(parts ...[]byte) types.Hash {
	h := blake3.New()
	var n [4]byte
	for _, p := range parts {
		binary.BigEndian.PutUint32(n[:], uint32(len(p)))
		h.Write(n[:])
		h.Write(p)
	}
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// AddressFromPubKey derives an address from a compressed public key.
// Address = BLAKE3(compressed_pubkey)[:20].
func AddressFromPubKey(pubKey []byte) types.Address {
	h := Hash(pubKey)
	var addr types.Address
	copy(addr[:], h[:types.AddressSize])
	return addr
}

// ContractAddress derives the address of a ledger contract deployed by
// deployer as its nonce-th deployment.
func ContractAddress(kind string, deployer types.Address, nonce uint64) types.Address {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	h := HashParts([]byte(contractDomain), []byte(kind), deployer[:], n[:])
	var addr types.Address
	copy(addr[:], h[:types.AddressSize])
	return addr
}
