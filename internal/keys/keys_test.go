package keys

import (
	"bytes"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Klingon-tech/oyster/pkg/crypto"
)

const testPhrase = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func fastKDF() KDFParams {
	return KDFParams{Memory: 1024, Time: 1, Threads: 1}
}

func testSeed(t *testing.T) []byte {
	t.Helper()
	seed, err := Seed(testPhrase, "")
	if err != nil {
		t.Fatalf("Seed() error: %v", err)
	}
	return seed
}

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), fastKDF())
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	return s
}

func TestSeed_Vector(t *testing.T) {
	seed, err := Seed(testPhrase, "TREZOR")
	if err != nil {
		t.Fatalf("Seed() error: %v", err)
	}
	want, _ := hex.DecodeString("c55257c360c07c72029aebc1b53c05ed0362ada38ead3e3e9efa3708e53495531f09a6987599d18264c1e1c92f2cf141630c7a3c4ab7c81b2f001698e7463b04")
	if !bytes.Equal(seed, want) {
		t.Errorf("seed = %x, want %x", seed, want)
	}
}

func TestSeed_Invalid(t *testing.T) {
	_, err := Seed("abandon abandon abandon", "")
	if !errors.Is(err, ErrInvalidMnemonic) {
		t.Fatalf("err = %v, want ErrInvalidMnemonic", err)
	}
}

func TestNewMnemonic(t *testing.T) {
	phrase, err := NewMnemonic()
	if err != nil {
		t.Fatalf("NewMnemonic() error: %v", err)
	}
	if n := len(strings.Fields(phrase)); n != 24 {
		t.Errorf("word count = %d, want 24", n)
	}
	if !ValidMnemonic(phrase) {
		t.Error("generated mnemonic is not valid")
	}
}

func TestMaster_SeedSize(t *testing.T) {
	if _, err := Master(make([]byte, 32)); err == nil {
		t.Fatal("expected error for short seed")
	}
}

func TestIdentity_Deterministic(t *testing.T) {
	seed := testSeed(t)
	root, err := Master(seed)
	if err != nil {
		t.Fatalf("Master() error: %v", err)
	}

	a, err := root.Identity(0, 0)
	if err != nil {
		t.Fatalf("Identity() error: %v", err)
	}
	again, _ := root.Identity(0, 0)
	other, _ := root.Identity(0, 1)

	if a.Address() != again.Address() {
		t.Error("same path gave different addresses")
	}
	if a.Address() == other.Address() {
		t.Error("different index gave the same address")
	}
	if a.Depth() != 5 {
		t.Errorf("depth = %d, want 5", a.Depth())
	}

	key, err := a.PrivateKey()
	if err != nil {
		t.Fatalf("PrivateKey() error: %v", err)
	}
	if key.Address() != a.Address() {
		t.Errorf("key address = %s, node address = %s", key.Address(), a.Address())
	}
	if !bytes.Equal(key.PublicKey(), a.PublicKey()) {
		t.Error("public key mismatch")
	}

	if _, err := a.Public().PrivateKey(); err == nil {
		t.Error("public node should not yield a private key")
	}
}

func TestSealOpen(t *testing.T) {
	data := []byte("seed material")
	blob, err := Seal(data, []byte("pass"), fastKDF())
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	got, err := Open(blob, []byte("pass"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Open() = %q, want %q", got, data)
	}

	if _, err := Open(blob, []byte("wrong")); !errors.Is(err, ErrWrongPassphrase) {
		t.Errorf("wrong passphrase err = %v, want ErrWrongPassphrase", err)
	}

	blob[len(blob)-1] ^= 0xff
	if _, err := Open(blob, []byte("pass")); !errors.Is(err, ErrWrongPassphrase) {
		t.Errorf("tampered err = %v, want ErrWrongPassphrase", err)
	}

	if _, err := Open(blob[:10], []byte("pass")); err == nil {
		t.Error("expected error for truncated blob")
	}
}

func TestSeal_Salted(t *testing.T) {
	a, _ := Seal([]byte("x"), []byte("pass"), fastKDF())
	b, _ := Seal([]byte("x"), []byte("pass"), fastKDF())
	if bytes.Equal(a, b) {
		t.Error("two seals of the same data should differ")
	}
}

func TestStore_CreateAndSign(t *testing.T) {
	s := testStore(t)
	seed := testSeed(t)
	pass := []byte("pw")

	first, err := s.Create("artist", seed, pass)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if first.Label != "default" || first.Index != 0 {
		t.Errorf("first identity = %+v", first)
	}

	root, _ := Master(seed)
	node, _ := root.Identity(0, 0)
	if first.Address != node.Address() {
		t.Errorf("address = %s, want %s", first.Address, node.Address())
	}

	key, err := s.Signer("artist", pass, "")
	if err != nil {
		t.Fatalf("Signer() error: %v", err)
	}
	if key.Address() != first.Address {
		t.Errorf("signer address = %s, want %s", key.Address(), first.Address)
	}

	digest := crypto.Hash([]byte("call")).Bytes()
	sig, err := key.Sign(digest)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if !crypto.VerifySignature(digest, sig, key.PublicKey()) {
		t.Error("signature does not verify")
	}
}

func TestStore_Duplicate(t *testing.T) {
	s := testStore(t)
	seed := testSeed(t)
	if _, err := s.Create("dup", seed, []byte("pw")); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := s.Create("dup", seed, []byte("pw")); !errors.Is(err, ErrKeyringExists) {
		t.Fatalf("err = %v, want ErrKeyringExists", err)
	}
}

func TestStore_Derive(t *testing.T) {
	s := testStore(t)
	pass := []byte("pw")
	if _, err := s.Create("ops", testSeed(t), pass); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	second, err := s.Derive("ops", pass, "payouts")
	if err != nil {
		t.Fatalf("Derive() error: %v", err)
	}
	if second.Index != 1 {
		t.Errorf("index = %d, want 1", second.Index)
	}
	if _, err := s.Derive("ops", pass, "payouts"); err == nil {
		t.Error("expected error for reused label")
	}
	if _, err := s.Derive("ops", []byte("bad"), "other"); !errors.Is(err, ErrWrongPassphrase) {
		t.Errorf("err = %v, want ErrWrongPassphrase", err)
	}

	ids, err := s.Identities("ops")
	if err != nil {
		t.Fatalf("Identities() error: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("identities = %d, want 2", len(ids))
	}

	for _, sel := range []string{"payouts", second.Address.String()} {
		key, err := s.Signer("ops", pass, sel)
		if err != nil {
			t.Fatalf("Signer(%q) error: %v", sel, err)
		}
		if key.Address() != second.Address {
			t.Errorf("Signer(%q) address = %s, want %s", sel, key.Address(), second.Address)
		}
	}
	if _, err := s.Signer("ops", pass, "nobody"); !errors.Is(err, ErrUnknownIdentity) {
		t.Errorf("err = %v, want ErrUnknownIdentity", err)
	}
}

func TestStore_NamesAndRemove(t *testing.T) {
	s := testStore(t)
	seed := testSeed(t)
	for _, name := range []string{"a", "b"} {
		if _, err := s.Create(name, seed, []byte("pw")); err != nil {
			t.Fatalf("Create(%s) error: %v", name, err)
		}
	}
	// Stray files are ignored.
	os.WriteFile(filepath.Join(s.dir, "notes.txt"), []byte("x"), 0600)

	names, err := s.Names()
	if err != nil {
		t.Fatalf("Names() error: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("names = %v, want 2 entries", names)
	}

	if err := s.Remove("a"); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if err := s.Remove("a"); !errors.Is(err, ErrKeyringNotFound) {
		t.Errorf("err = %v, want ErrKeyringNotFound", err)
	}
	if _, err := s.Identities("a"); !errors.Is(err, ErrKeyringNotFound) {
		t.Errorf("err = %v, want ErrKeyringNotFound", err)
	}
}

func TestStore_FileMode(t *testing.T) {
	s := testStore(t)
	if _, err := s.Create("m", testSeed(t), []byte("pw")); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	info, err := os.Stat(s.path("m"))
	if err != nil {
		t.Fatalf("Stat() error: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("mode = %o, want 600", perm)
	}
}

func TestStore_InvalidName(t *testing.T) {
	s := testStore(t)
	for _, name := range []string{"", "../x", "a.b"} {
		if _, err := s.Create(name, testSeed(t), []byte("pw")); err == nil {
			t.Errorf("Create(%q) should fail", name)
		}
	}
}
