package keys

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Klingon-tech/oyster/pkg/crypto"
	"github.com/Klingon-tech/oyster/pkg/types"
)

const (
	keyringExt     = ".keyring"
	keyringVersion = 1
)

// Errors returned by Store.
var (
	ErrKeyringExists   = errors.New("keyring already exists")
	ErrKeyringNotFound = errors.New("keyring not found")
	ErrUnknownIdentity = errors.New("identity not in keyring")
)

// Identity is one derived signing identity.
type Identity struct {
	Label   string        `json:"label"`
	Account uint32        `json:"account"`
	Index   uint32        `json:"index"`
	Address types.Address `json:"address"`
}

// keyringFile is the on-disk JSON form.
type keyringFile struct {
	Version    int        `json:"version"`
	CreatedAt  time.Time  `json:"created_at"`
	SealedSeed []byte     `json:"sealed_seed"`
	Identities []Identity `json:"identities"`
	NextIndex  uint32     `json:"next_index"`
}

// Store keeps keyring files in one directory.
type Store struct {
	dir string
	kdf KDFParams
}

// NewStore opens dir, creating it if needed. New keyrings are sealed
// with kdf.
func NewStore(dir string, kdf KDFParams) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create keyring dir: %w", err)
	}
	return &Store{dir: dir, kdf: kdf}, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+keyringExt)
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\.`) {
		return fmt.Errorf("invalid keyring name %q", name)
	}
	return nil
}

// Create seals seed into a new keyring and derives its first identity,
// labelled "default".
func (s *Store) Create(name string, seed, passphrase []byte) (Identity, error) {
	if err := validName(name); err != nil {
		return Identity{}, err
	}
	if _, err := os.Stat(s.path(name)); err == nil {
		return Identity{}, fmt.Errorf("%w: %s", ErrKeyringExists, name)
	}
	sealed, err := Seal(seed, passphrase, s.kdf)
	if err != nil {
		return Identity{}, fmt.Errorf("seal seed: %w", err)
	}
	kf := &keyringFile{
		Version:    keyringVersion,
		CreatedAt:  time.Now().UTC(),
		SealedSeed: sealed,
		Identities: []Identity{},
	}
	id, err := kf.derive(seed, "default")
	if err != nil {
		return Identity{}, err
	}
	return id, s.write(name, kf)
}

// Derive adds the next identity under label.
func (s *Store) Derive(name string, passphrase []byte, label string) (Identity, error) {
	kf, err := s.read(name)
	if err != nil {
		return Identity{}, err
	}
	seed, err := Open(kf.SealedSeed, passphrase)
	if err != nil {
		return Identity{}, err
	}
	defer wipe(seed)
	id, err := kf.derive(seed, label)
	if err != nil {
		return Identity{}, err
	}
	return id, s.write(name, kf)
}

func (kf *keyringFile) derive(seed []byte, label string) (Identity, error) {
	for _, existing := range kf.Identities {
		if existing.Label == label {
			return Identity{}, fmt.Errorf("label %q already used", label)
		}
	}
	root, err := Master(seed)
	if err != nil {
		return Identity{}, err
	}
	node, err := root.Identity(0, kf.NextIndex)
	if err != nil {
		return Identity{}, err
	}
	id := Identity{Label: label, Index: kf.NextIndex, Address: node.Address()}
	kf.Identities = append(kf.Identities, id)
	kf.NextIndex++
	return id, nil
}

// Identities lists a keyring's identities in derivation order.
func (s *Store) Identities(name string) ([]Identity, error) {
	kf, err := s.read(name)
	if err != nil {
		return nil, err
	}
	return kf.Identities, nil
}

// Signer unlocks the private key of the identity with the given label or
// address string. An empty selector picks the first identity.
func (s *Store) Signer(name string, passphrase []byte, selector string) (*crypto.PrivateKey, error) {
	kf, err := s.read(name)
	if err != nil {
		return nil, err
	}
	var target *Identity
	for i := range kf.Identities {
		id := &kf.Identities[i]
		if selector == "" || id.Label == selector || strings.EqualFold(id.Address.String(), selector) {
			target = id
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownIdentity, selector)
	}

	seed, err := Open(kf.SealedSeed, passphrase)
	if err != nil {
		return nil, err
	}
	defer wipe(seed)
	root, err := Master(seed)
	if err != nil {
		return nil, err
	}
	node, err := root.Identity(target.Account, target.Index)
	if err != nil {
		return nil, err
	}
	if node.Address() != target.Address {
		return nil, fmt.Errorf("identity %s does not match its seed", target.Address)
	}
	return node.PrivateKey()
}

// Names lists the keyrings in the store.
func (s *Store) Names() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read keyring dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == keyringExt {
			names = append(names, strings.TrimSuffix(e.Name(), keyringExt))
		}
	}
	return names, nil
}

// Remove deletes a keyring file.
func (s *Store) Remove(name string) error {
	if err := os.Remove(s.path(name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrKeyringNotFound, name)
		}
		return err
	}
	return nil
}

func (s *Store) write(name string, kf *keyringFile) error {
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal keyring: %w", err)
	}
	if err := os.WriteFile(s.path(name), data, 0600); err != nil {
		return fmt.Errorf("write keyring: %w", err)
	}
	return nil
}

func (s *Store) read(name string) (*keyringFile, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(name))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrKeyringNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read keyring: %w", err)
	}
	var kf keyringFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse keyring: %w", err)
	}
	if kf.Version != keyringVersion {
		return nil, fmt.Errorf("unsupported keyring version %d", kf.Version)
	}
	return &kf, nil
}
