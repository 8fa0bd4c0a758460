package ledger

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/Klingon-tech/oyster/internal/events"
	"github.com/Klingon-tech/oyster/internal/id"
	"github.com/Klingon-tech/oyster/internal/storage"
	"github.com/Klingon-tech/oyster/pkg/types"
)

var (
	operator = types.Address{0x01}
	artist   = types.Address{0xA1}
	alice    = types.Address{0xB1}
	bob      = types.Address{0xB2}
	stranger = types.Address{0xEE}
)

var testParams = Params{UnitsPerToken: 50000, ServiceFee: 200000, LotSize: 100}

var testRights = RightsParams{RightPurchaseRate: 1000000, ListenRate: 1000}

// lotPrice is 100*50000 + 200000.
const lotPrice = 5200000

func as(caller types.Address) Call { return Call{Caller: caller} }

func pay(caller types.Address, value uint64) Call { return Call{Caller: caller, Value: value} }

type fixture struct {
	t     *testing.T
	db    storage.DB
	e     *Engine
	token types.Address
	vault types.Address
}

// newFixture bootstraps an engine, binds the vault and mints supply tokens.
func newFixture(t *testing.T, supply uint64) *fixture {
	t.Helper()
	return newFixtureOn(t, storage.NewMemory(), supply)
}

func newFixtureOn(t *testing.T, db storage.DB, supply uint64) *fixture {
	t.Helper()
	e, err := New(db)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.SetClock(func() time.Time { return time.Unix(1700000000, 0) })
	f := &fixture{t: t, db: db, e: e}
	f.must(e.Bootstrap(as(operator), testParams))
	info, err := e.TokenInfo()
	if err != nil {
		t.Fatalf("TokenInfo: %v", err)
	}
	v, err := e.VaultInfo()
	if err != nil {
		t.Fatalf("VaultInfo: %v", err)
	}
	f.token, f.vault = info.Address, v.Address
	f.must(e.SetVault(as(operator), f.vault))
	if supply > 0 {
		f.must(e.Mint(as(operator), supply))
	}
	return f
}

func (f *fixture) must(r Receipt, err error) Receipt {
	f.t.Helper()
	if err != nil {
		f.t.Fatalf("unexpected error: %v", err)
	}
	return r
}

// deploy creates an open ledger owned by artist.
func (f *fixture) deploy() types.Address {
	f.t.Helper()
	r := f.must(f.e.DeployRightsLedger(as(artist), testRights))
	return r.Address
}

// sealed creates a ledger that is fully assigned, sealed, validated and
// authorized by the vault.
func (f *fixture) sealed() types.Address {
	f.t.Helper()
	addr := f.deploy()
	f.must(f.e.AssignRights(as(artist), addr, artist, 60))
	f.must(f.e.AssignRights(as(artist), addr, alice, 40))
	f.must(f.e.SealRights(as(artist), addr))
	f.must(f.e.Validate(as(operator), addr))
	f.must(f.e.Authorize(as(operator), addr, true))
	return addr
}

func (f *fixture) checkInvariants() {
	f.t.Helper()
	if err := f.e.CheckInvariants(); err != nil {
		f.t.Fatalf("invariants: %v", err)
	}
}

func wantErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("error = %v, want %v", err, target)
	}
}

type snapshot struct {
	Token    TokenInfo
	Vault    VaultInfo
	Rights   []RightsInfo
	Balances map[types.Address]uint64
	Nonce    uint64
	Seq      uint64
	Stored   map[string]string
}

func (f *fixture) snapshot(t *testing.T) snapshot {
	t.Helper()
	s := snapshot{Balances: make(map[types.Address]uint64), Stored: dump(t, f.db)}
	s.Token, _ = f.e.TokenInfo()
	s.Vault, _ = f.e.VaultInfo()
	for _, addr := range f.e.Ledgers() {
		info, err := f.e.RightsInfo(addr)
		if err != nil {
			t.Fatalf("RightsInfo: %v", err)
		}
		s.Rights = append(s.Rights, info)
	}
	f.e.mu.RLock()
	for k, v := range f.e.token.balances {
		s.Balances[k] = v
	}
	s.Nonce, s.Seq = f.e.nonce, f.e.seq
	f.e.mu.RUnlock()
	return s
}

func (f *fixture) assertUnchanged(t *testing.T, before snapshot) {
	t.Helper()
	after := f.snapshot(t)
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("state changed by failed call:\nbefore %+v\nafter  %+v", before, after)
	}
}

func dump(t *testing.T, db storage.DB) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := db.ForEach(nil, func(k, v []byte) error {
		out[string(k)] = string(v)
		return nil
	})
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	return out
}

func TestNew_RequiresBatcher(t *testing.T) {
	db := storage.NewPrefixDB(storage.NewMemory(), []byte("x/"))
	if _, err := New(db); err != nil {
		t.Fatalf("prefix db over memory should batch: %v", err)
	}
	if _, err := New(plainDB{storage.NewMemory()}); err == nil {
		t.Fatal("expected error for storage without batches")
	}
}

// plainDB hides the Batcher implementation of the wrapped DB.
type plainDB struct{ storage.DB }

func TestBootstrap(t *testing.T) {
	e, err := New(storage.NewMemory())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e.Bootstrapped() {
		t.Fatal("fresh engine should not be bootstrapped")
	}
	_, err = e.Mint(as(operator), 1)
	wantErr(t, err, ErrNotBootstrapped)
	_, err = e.TokenInfo()
	wantErr(t, err, ErrNotBootstrapped)

	_, err = e.Bootstrap(as(operator), Params{UnitsPerToken: 0, LotSize: 100})
	wantErr(t, err, ErrInvalidParameter)
	_, err = e.Bootstrap(pay(operator, 5), testParams)
	wantErr(t, err, ErrIncorrectPayment)

	r, err := e.Bootstrap(as(operator), testParams)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if r.Event == nil || r.Event.Kind != events.KindBootstrapped {
		t.Fatalf("event = %+v, want %s", r.Event, events.KindBootstrapped)
	}
	info, _ := e.TokenInfo()
	if info.Address != r.Address {
		t.Errorf("token address = %s, want %s", info.Address, r.Address)
	}
	if info.Owner != operator {
		t.Errorf("owner = %s, want %s", info.Owner, operator)
	}
	if info.UnitsPerToken != 50000 || info.ServiceFee != 200000 || info.LotSize != 100 {
		t.Errorf("params = %+v", info)
	}
	v, _ := e.VaultInfo()
	if v.Owner != operator {
		t.Errorf("vault owner = %s, want %s", v.Owner, operator)
	}
	if v.Address == info.Address {
		t.Error("vault and token share an address")
	}
	if !info.Vault.IsZero() {
		t.Error("vault should not be bound yet")
	}

	_, err = e.Bootstrap(as(operator), testParams)
	wantErr(t, err, ErrAlreadyDeployed)
}

func TestSetVault(t *testing.T) {
	f := newFixture(t, 0)
	e := f.e

	_, err := e.SetVault(as(operator), f.vault)
	wantErr(t, err, ErrAlreadyBound)

	info, _ := e.TokenInfo()
	if info.Vault != f.vault {
		t.Errorf("vault = %s, want %s", info.Vault, f.vault)
	}
}

func TestSetVault_Checks(t *testing.T) {
	e, _ := New(storage.NewMemory())
	r, _ := e.Bootstrap(as(operator), testParams)
	v, _ := e.VaultInfo()

	_, err := e.SetVault(as(stranger), v.Address)
	wantErr(t, err, ErrUnauthorized)
	_, err = e.SetVault(as(operator), r.Address)
	wantErr(t, err, ErrCapabilityCheckFailed)
	_, err = e.SetVault(as(operator), stranger)
	wantErr(t, err, ErrCapabilityCheckFailed)
	_, err = e.Mint(as(operator), 10)
	wantErr(t, err, ErrVaultNotBound)

	got, err := e.SetVault(as(operator), v.Address)
	if err != nil {
		t.Fatalf("SetVault: %v", err)
	}
	if got.Event.Kind != events.KindVaultBound {
		t.Errorf("kind = %s, want %s", got.Event.Kind, events.KindVaultBound)
	}
}

func TestMint(t *testing.T) {
	f := newFixture(t, 0)
	e := f.e

	tests := []struct {
		name string
		call Call
		amt  uint64
		want error
	}{
		{"not owner", as(stranger), 10, ErrUnauthorized},
		{"zero", as(operator), 0, ErrInvalidAmount},
		{"payment attached", pay(operator, 1), 10, ErrIncorrectPayment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Mint(tt.call, tt.amt)
			wantErr(t, err, tt.want)
		})
	}

	r := f.must(e.Mint(as(operator), 1000))
	if got := e.BalanceOf(f.vault); got != 1000 {
		t.Errorf("vault balance = %d, want 1000", got)
	}
	if got := e.TotalSupply(); got != 1000 {
		t.Errorf("supply = %d, want 1000", got)
	}
	if r.Event.Amount(events.AmountSupply) != 1000 {
		t.Errorf("event supply = %d, want 1000", r.Event.Amount(events.AmountSupply))
	}
	f.must(e.Mint(as(operator), 500))
	if got := e.TotalSupply(); got != 1500 {
		t.Errorf("supply = %d, want 1500", got)
	}
	_, err := e.Mint(as(operator), ^uint64(0))
	wantErr(t, err, ErrOverflow)
	if got := e.TotalSupply(); got != 1500 {
		t.Errorf("supply after overflow = %d, want 1500", got)
	}
	f.checkInvariants()
}

func TestValidate(t *testing.T) {
	f := newFixture(t, 1000)
	e := f.e
	addr := f.deploy()

	_, err := e.Validate(as(stranger), addr)
	wantErr(t, err, ErrUnauthorized)
	_, err = e.Validate(as(operator), stranger)
	wantErr(t, err, ErrNotAContract)
	_, err = e.Validate(as(operator), f.vault)
	wantErr(t, err, ErrCapabilityCheckFailed)
	_, err = e.Validate(as(operator), f.token)
	wantErr(t, err, ErrCapabilityCheckFailed)

	r := f.must(e.Validate(as(operator), addr))
	if r.Event == nil || r.Event.Kind != events.KindLedgerValidated {
		t.Fatalf("event = %+v, want %s", r.Event, events.KindLedgerValidated)
	}
	if r.Event.Account(events.RoleLedger) != addr {
		t.Errorf("event ledger = %s, want %s", r.Event.Account(events.RoleLedger), addr)
	}
	if !e.IsValidated(addr) {
		t.Error("ledger should be validated")
	}

	again := f.must(e.Validate(as(operator), addr))
	if again.Event != nil {
		t.Errorf("repeat validation emitted %s", again.Event.Kind)
	}
	info, _ := e.TokenInfo()
	if info.ValidatedCount != 1 {
		t.Errorf("validated count = %d, want 1", info.ValidatedCount)
	}
}

func TestAuthorize(t *testing.T) {
	f := newFixture(t, 1000)
	e := f.e

	_, err := e.Authorize(as(stranger), alice, true)
	wantErr(t, err, ErrUnauthorized)
	_, err = e.Authorize(as(operator), types.Address{}, true)
	wantErr(t, err, ErrInvalidParameter)

	r := f.must(e.Authorize(as(operator), alice, true))
	if r.Event == nil || r.Event.Amount(events.AmountAllowed) != 1 {
		t.Fatalf("event = %+v, want allowed=1", r.Event)
	}
	if r := f.must(e.Authorize(as(operator), alice, true)); r.Event != nil {
		t.Error("redundant authorize emitted an event")
	}
	if !e.IsAuthorized(alice) {
		t.Error("alice should be authorized")
	}
	v, _ := e.VaultInfo()
	if len(v.Authorized) != 1 || v.Authorized[0] != alice {
		t.Errorf("authorized = %v, want [%s]", v.Authorized, alice)
	}

	r = f.must(e.Authorize(as(operator), alice, false))
	if r.Event == nil || r.Event.Amount(events.AmountAllowed) != 0 {
		t.Fatalf("event = %+v, want allowed=0", r.Event)
	}
	if e.IsAuthorized(alice) {
		t.Error("alice should be revoked")
	}
	if r := f.must(e.Authorize(as(operator), bob, false)); r.Event != nil {
		t.Error("redundant revoke emitted an event")
	}
}

func TestVaultSendReceive(t *testing.T) {
	f := newFixture(t, 1000)
	e := f.e

	_, err := e.VaultSend(as(stranger), alice, 10)
	wantErr(t, err, ErrUnauthorized)
	_, err = e.VaultSend(as(operator), alice, 0)
	wantErr(t, err, ErrInvalidAmount)
	_, err = e.VaultSend(as(operator), alice, 1001)
	wantErr(t, err, ErrInsufficientVaultBalance)

	r := f.must(e.VaultSend(as(operator), alice, 300))
	if r.Event.Kind != events.KindVaultSent || r.Event.Account(events.RoleTo) != alice {
		t.Errorf("event = %+v", r.Event)
	}
	if got := e.BalanceOf(alice); got != 300 {
		t.Errorf("alice = %d, want 300", got)
	}

	_, err = e.VaultReceive(as(alice), alice, 100)
	wantErr(t, err, ErrUnauthorized)
	f.must(e.Authorize(as(operator), alice, true))
	_, err = e.VaultReceive(as(bob), alice, 100)
	wantErr(t, err, ErrUnauthorized)
	_, err = e.VaultReceive(as(alice), alice, 301)
	wantErr(t, err, ErrInsufficientTokenBalance)

	r = f.must(e.VaultReceive(as(alice), alice, 100))
	if r.Event.Kind != events.KindVaultReceived {
		t.Errorf("kind = %s, want %s", r.Event.Kind, events.KindVaultReceived)
	}
	if got := e.BalanceOf(alice); got != 200 {
		t.Errorf("alice = %d, want 200", got)
	}
	if got := e.BalanceOf(f.vault); got != 800 {
		t.Errorf("vault = %d, want 800", got)
	}
	f.checkInvariants()
}

func TestEvents_OnePerCallInSequence(t *testing.T) {
	f := newFixture(t, 1000)
	addr := f.sealed()
	f.must(f.e.BuyLot(pay(alice, lotPrice), addr))

	pending, err := f.e.Outbox().Pending(0)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	// bootstrap, vault, mint, deploy, 2x assign, seal, validate, authorize, buy
	if len(pending) != 10 {
		t.Fatalf("pending = %d, want 10", len(pending))
	}
	seen := make(map[string]bool)
	for i, ev := range pending {
		if ev.Seq != uint64(i+1) {
			t.Errorf("event %d seq = %d, want %d", i, ev.Seq, i+1)
		}
		if ev.CallID.Prefix() != id.PrefixCall {
			t.Errorf("event %d call id = %s", i, ev.CallID)
		}
		if seen[ev.CallID.String()] {
			t.Errorf("call id %s repeated", ev.CallID)
		}
		seen[ev.CallID.String()] = true
		if ev.Account(events.RoleCaller).IsZero() {
			t.Errorf("event %d has no caller", i)
		}
	}
	last := pending[len(pending)-1]
	if last.Kind != events.KindTokensBought {
		t.Errorf("last kind = %s, want %s", last.Kind, events.KindTokensBought)
	}
	if !last.Time.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("time = %v", last.Time)
	}
}

func TestCommitHook(t *testing.T) {
	f := newFixture(t, 1000)
	calls := 0
	f.e.SetCommitHook(func() { calls++ })

	f.must(f.e.Authorize(as(operator), alice, true))
	f.must(f.e.Authorize(as(operator), alice, true))
	_, _ = f.e.Mint(as(stranger), 1)
	if calls != 1 {
		t.Errorf("hook calls = %d, want 1", calls)
	}
}
