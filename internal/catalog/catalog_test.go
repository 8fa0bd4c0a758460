package catalog

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/oyster/internal/id"
	"github.com/Klingon-tech/oyster/internal/ledger"
	"github.com/Klingon-tech/oyster/internal/storage"
	"github.com/Klingon-tech/oyster/pkg/types"
)

var (
	operator = types.Address{0x01}
	producer = types.Address{0xA1}
	other    = types.Address{0xA2}
	holder   = types.Address{0xB1}
)

func setup(t *testing.T) (*Service, *ledger.Engine) {
	t.Helper()
	db := storage.NewMemory()
	e, err := ledger.New(db)
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	params := ledger.Params{UnitsPerToken: 50000, ServiceFee: 200000, LotSize: 100}
	if _, err := e.Bootstrap(ledger.Call{Caller: operator}, params); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	v, _ := e.VaultInfo()
	if _, err := e.SetVault(ledger.Call{Caller: operator}, v.Address); err != nil {
		t.Fatalf("SetVault: %v", err)
	}
	return NewService(e, NewStore(db), operator, zerolog.Nop()), e
}

func request(title string, by types.Address) CreateRequest {
	return CreateRequest{
		Producer: by,
		Title:    title,
		Artist:   "The Oysters",
		Metadata: map[string]string{"genre": "surf"},
		Duration: 185,
		Rights:   ledger.RightsParams{RightPurchaseRate: 1000, ListenRate: 10},
	}
}

func TestCreate(t *testing.T) {
	svc, e := setup(t)

	a, err := svc.Create(request("Low Tide", producer))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.ID.Prefix() != id.PrefixAsset {
		t.Errorf("id = %s, want asset prefix", a.ID)
	}
	if !e.IsValidated(a.Ledger) {
		t.Error("ledger not validated")
	}
	if !e.IsAuthorized(a.Ledger) {
		t.Error("ledger not authorized by the vault")
	}
	info, err := e.RightsInfo(a.Ledger)
	if err != nil {
		t.Fatalf("RightsInfo: %v", err)
	}
	if info.Owner != producer {
		t.Errorf("owner = %s, want %s", info.Owner, producer)
	}
	if info.Sealed {
		t.Error("ledger should stay open without shares")
	}

	got, err := svc.Get(a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "Low Tide" || got.Duration != 185 || got.Metadata["genre"] != "surf" {
		t.Errorf("asset = %+v", got)
	}
	byLedger, err := svc.ByLedger(a.Ledger)
	if err != nil {
		t.Fatalf("ByLedger: %v", err)
	}
	if byLedger.ID.String() != a.ID.String() {
		t.Errorf("ByLedger id = %s, want %s", byLedger.ID, a.ID)
	}
}

func TestCreate_SharesAndSeal(t *testing.T) {
	svc, e := setup(t)
	req := request("High Tide", producer)
	req.Shares = []Share{{Holder: producer, Pct: 70}, {Holder: holder, Pct: 30}}
	req.Seal = true

	a, err := svc.Create(req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	sealed, _ := e.ViewSealed(a.Ledger)
	if !sealed {
		t.Error("ledger should be sealed")
	}
	share, _ := e.ViewShare(a.Ledger, holder)
	if share != 30 {
		t.Errorf("share = %d, want 30", share)
	}
}

func TestCreate_InvalidRequest(t *testing.T) {
	svc, e := setup(t)
	tests := []struct {
		name string
		edit func(r *CreateRequest)
		want string
	}{
		{"no producer", func(r *CreateRequest) { r.Producer = types.Address{} }, "producer"},
		{"no title", func(r *CreateRequest) { r.Title = "  " }, "title"},
		{"zero share", func(r *CreateRequest) { r.Shares = []Share{{Holder: holder}} }, "invalid share"},
		{"over 100", func(r *CreateRequest) {
			r.Shares = []Share{{Holder: holder, Pct: 60}, {Holder: producer, Pct: 41}}
		}, "total"},
		{"share over 100", func(r *CreateRequest) {
			r.Shares = []Share{{Holder: holder, Pct: 101}}
		}, "invalid share"},
		{"total wraps", func(r *CreateRequest) {
			r.Shares = []Share{{Holder: holder, Pct: math.MaxUint64}, {Holder: producer, Pct: 2}}
		}, "invalid share"},
		{"two full shares", func(r *CreateRequest) {
			r.Shares = []Share{{Holder: holder, Pct: 100}, {Holder: producer, Pct: 100}}
		}, "total"},
		{"seal partial", func(r *CreateRequest) {
			r.Shares = []Share{{Holder: holder, Pct: 60}}
			r.Seal = true
		}, "cannot seal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request("x", producer)
			tt.edit(&req)
			_, err := svc.Create(req)
			if !errors.Is(err, ErrInvalidRequest) || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want %q", err, tt.want)
			}
		})
	}
	if n := len(e.Ledgers()); n != 0 {
		t.Errorf("invalid requests deployed %d ledgers", n)
	}
}

func TestCreate_OperatorMismatch(t *testing.T) {
	svc, e := setup(t)
	svc.operator = other

	_, err := svc.Create(request("Riptide", producer))
	if !errors.Is(err, ledger.ErrUnauthorized) {
		t.Fatalf("error = %v, want %v", err, ledger.ErrUnauthorized)
	}
	var inc *IncompleteError
	if !errors.As(err, &inc) {
		t.Fatalf("error = %T, want *IncompleteError", err)
	}
	if inc.Step != "validate" {
		t.Errorf("step = %q, want validate", inc.Step)
	}
	if !strings.Contains(err.Error(), inc.Ledger.String()) {
		t.Errorf("error %q does not name ledger %s", err, inc.Ledger)
	}
	info, err := e.RightsInfo(inc.Ledger)
	if err != nil {
		t.Fatalf("RightsInfo(%s): %v", inc.Ledger, err)
	}
	if info.Owner != producer {
		t.Errorf("incomplete ledger owner = %s, want %s", info.Owner, producer)
	}
	assets, _ := svc.List()
	if len(assets) != 0 {
		t.Errorf("assets = %d, want 0", len(assets))
	}
	if n := len(e.Ledgers()); n != 1 {
		t.Errorf("ledgers = %d, want the deployed one", n)
	}
}

func TestQueries(t *testing.T) {
	svc, _ := setup(t)
	var mine []*Asset
	for _, title := range []string{"One", "Two", "Three"} {
		a, err := svc.Create(request(title, producer))
		if err != nil {
			t.Fatalf("Create(%s): %v", title, err)
		}
		mine = append(mine, a)
	}
	if _, err := svc.Create(request("Other", other)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	all, err := svc.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("List = %d, want 4", len(all))
	}

	got, err := svc.ByProducer(producer)
	if err != nil {
		t.Fatalf("ByProducer: %v", err)
	}
	if len(got) != len(mine) {
		t.Fatalf("ByProducer = %d, want %d", len(got), len(mine))
	}
	titles := make(map[string]bool)
	for _, a := range got {
		titles[a.Title] = true
		if a.Producer != producer {
			t.Errorf("asset %s producer = %s", a.Title, a.Producer)
		}
	}
	for _, a := range mine {
		if !titles[a.Title] {
			t.Errorf("missing %s", a.Title)
		}
	}

	none, err := svc.ByProducer(holder)
	if err != nil || len(none) != 0 {
		t.Errorf("ByProducer(holder) = %v, %v", none, err)
	}
}

func TestNotFound(t *testing.T) {
	svc, _ := setup(t)
	if _, err := svc.Get(id.NewAssetID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get error = %v, want %v", err, ErrNotFound)
	}
	if _, err := svc.ByLedger(types.Address{0x99}); !errors.Is(err, ErrNotFound) {
		t.Errorf("ByLedger error = %v, want %v", err, ErrNotFound)
	}
}

func TestCreate_ReplayedCallID(t *testing.T) {
	svc, e := setup(t)

	req := request("Undertow", producer)
	req.CallID = id.NewCallID()
	if _, err := svc.Create(req); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := svc.Create(req)
	if !errors.Is(err, ledger.ErrDuplicateCall) {
		t.Fatalf("error = %v, want %v", err, ledger.ErrDuplicateCall)
	}
	if n := len(e.Ledgers()); n != 1 {
		t.Errorf("ledgers = %d, want 1", n)
	}
	all, _ := svc.List()
	if len(all) != 1 {
		t.Errorf("assets = %d, want 1", len(all))
	}
}
