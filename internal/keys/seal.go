package keys

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// SaltSize is the length of the Argon2id salt.
const SaltSize = 32

// sealed layout: salt | memory(4, LE) | time(4, LE) | threads(1) | nonce(24) | ciphertext
const headerSize = SaltSize + 4 + 4 + 1

// ErrWrongPassphrase is returned when a sealed blob fails authentication.
var ErrWrongPassphrase = errors.New("wrong passphrase or corrupted keyring")

// KDFParams are the Argon2id cost parameters stored with each sealed blob.
type KDFParams struct {
	Memory  uint32 `yaml:"memory"` // KiB
	Time    uint32 `yaml:"time"`
	Threads uint8  `yaml:"threads"`
}

// DefaultKDF returns the cost used for new keyrings.
func DefaultKDF() KDFParams {
	return KDFParams{Memory: 64 * 1024, Time: 3, Threads: 4}
}

func (p KDFParams) key(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, p.Time, p.Memory, p.Threads, chacha20poly1305.KeySize)
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Seal encrypts data under passphrase with XChaCha20-Poly1305.
func Seal(data, passphrase []byte, p KDFParams) ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("salt: %w", err)
	}
	key := p.key(passphrase, salt)
	defer wipe(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	out := make([]byte, 0, headerSize+len(nonce)+len(data)+aead.Overhead())
	out = append(out, salt...)
	out = binary.LittleEndian.AppendUint32(out, p.Memory)
	out = binary.LittleEndian.AppendUint32(out, p.Time)
	out = append(out, p.Threads)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, data, nil), nil
}

// Open reverses Seal.
func Open(blob, passphrase []byte) ([]byte, error) {
	minLen := headerSize + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead
	if len(blob) < minLen {
		return nil, fmt.Errorf("sealed data too short: %d bytes, need %d", len(blob), minLen)
	}
	p := KDFParams{
		Memory:  binary.LittleEndian.Uint32(blob[SaltSize:]),
		Time:    binary.LittleEndian.Uint32(blob[SaltSize+4:]),
		Threads: blob[SaltSize+8],
	}
	if p.Time == 0 || p.Threads == 0 {
		return nil, fmt.Errorf("sealed data has invalid KDF parameters")
	}
	key := p.key(passphrase, blob[:SaltSize])
	defer wipe(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	nonce := blob[headerSize : headerSize+chacha20poly1305.NonceSizeX]
	plain, err := aead.Open(nil, nonce, blob[headerSize+chacha20poly1305.NonceSizeX:], nil)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return plain, nil
}
