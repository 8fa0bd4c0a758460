package rpcclient

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Klingon-tech/oyster/internal/events"
	"github.com/Klingon-tech/oyster/internal/ledger"
	olog "github.com/Klingon-tech/oyster/internal/log"
	"github.com/Klingon-tech/oyster/internal/rpc"
	"github.com/Klingon-tech/oyster/internal/storage"
	"github.com/Klingon-tech/oyster/pkg/crypto"
)

type testEnv struct {
	client   *Client
	engine   *ledger.Engine
	operator *crypto.PrivateKey
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	olog.Init("error", false, "")

	operator, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	e, err := ledger.New(storage.NewMemory())
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}

	// Create and start RPC server on random port.
	srv := rpc.New("127.0.0.1:0", e)
	if err := srv.Start(); err != nil {
		t.Fatalf("start rpc: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	return &testEnv{
		client:   New("http://" + srv.Addr() + "/"),
		engine:   e,
		operator: operator,
	}
}

func TestClient_Bootstrap(t *testing.T) {
	env := setupTestEnv(t)

	r, err := env.client.Send(env.operator, "ledger_bootstrap", rpc.BootstrapParam{
		Params: ledger.Params{UnitsPerToken: 50000, ServiceFee: 200000, LotSize: 100},
	})
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if r.CallID == "" {
		t.Error("receipt has no call id")
	}
	if r.Event == nil || r.Event.Kind != events.KindBootstrapped {
		t.Fatalf("event = %+v, want %s", r.Event, events.KindBootstrapped)
	}

	var info ledger.TokenInfo
	if err := env.client.Call("token_getInfo", nil, &info); err != nil {
		t.Fatalf("Call error: %v", err)
	}
	if info.Owner != env.operator.Address() {
		t.Errorf("owner = %s, want %s", info.Owner, env.operator.Address())
	}
	if info.LotSize != 100 {
		t.Errorf("lot size = %d, want 100", info.LotSize)
	}
}

func TestClient_LedgerErrorKind(t *testing.T) {
	env := setupTestEnv(t)

	_, err := env.client.Send(env.operator, "token_mint", rpc.AmountParam{Amount: 1})
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("error = %v, want *RPCError", err)
	}
	if rpcErr.Kind != "NotBootstrapped" {
		t.Errorf("kind = %q, want NotBootstrapped", rpcErr.Kind)
	}
}

func TestClient_MethodNotFound(t *testing.T) {
	env := setupTestEnv(t)

	err := env.client.Call("nonexistent_method", nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("expected *RPCError, got %T", err)
	}
	if rpcErr.Code != rpc.CodeMethodNotFound {
		t.Errorf("code = %d, want %d", rpcErr.Code, rpc.CodeMethodNotFound)
	}
	if rpcErr.Kind != "" {
		t.Errorf("kind = %q, want empty", rpcErr.Kind)
	}
}

func TestClient_ConnectionRefused(t *testing.T) {
	client := New("http://127.0.0.1:1/")
	if err := client.Call("ledger_getInfo", nil, nil); err == nil {
		t.Fatal("expected connection error")
	}
}

func TestClient_BadResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	if err := New(srv.URL).Call("ledger_getInfo", nil, nil); err == nil {
		t.Fatal("expected decode error")
	}
}
