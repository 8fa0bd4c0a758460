// Package keys manages the secp256k1 identities that sign ledger calls.
//
// A keyring holds one BIP-39 seed, sealed with a passphrase. Identities
// are BIP-32 children of that seed; the keyring file remembers which ones
// were derived and under which label, never the private keys themselves.
package keys

import (
	"errors"
	"fmt"

	"github.com/tyler-smith/go-bip39"
)

// MnemonicEntropyBits is the entropy size for 24-word mnemonics.
const MnemonicEntropyBits = 256

// SeedSize is the length of a BIP-39 seed in bytes.
const SeedSize = 64

// ErrInvalidMnemonic is returned for phrases that fail the BIP-39 checks.
var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// NewMnemonic creates a 24-word recovery phrase.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(MnemonicEntropyBits)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("generate mnemonic: %w", err)
	}
	return phrase, nil
}

// ValidMnemonic reports whether phrase has valid words and checksum.
func ValidMnemonic(phrase string) bool {
	return bip39.IsMnemonicValid(phrase)
}

// Seed derives the 64-byte seed for phrase and an optional passphrase.
func Seed(phrase, passphrase string) ([]byte, error) {
	if !ValidMnemonic(phrase) {
		return nil, ErrInvalidMnemonic
	}
	seed, err := bip39.NewSeedWithErrorChecking(phrase, passphrase)
	if err != nil {
		return nil, fmt.Errorf("derive seed: %w", err)
	}
	return seed, nil
}
