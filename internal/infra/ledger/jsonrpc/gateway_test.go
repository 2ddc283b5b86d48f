package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/vietddude/governor/internal/core/domain"
	"github.com/vietddude/governor/internal/infra/ledger"
)

const contract = "0xEscrow"

type rpcCall struct {
	Method string
	Params []json.RawMessage
}

// fakeRelayer answers JSON-RPC requests from a method table.
type fakeRelayer struct {
	mu      sync.Mutex
	calls   []rpcCall
	results map[string]string
	errors  map[string]string
	status  int
}

func (f *fakeRelayer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req struct {
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
		ID     uint64            `json:"id"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.calls = append(f.calls, rpcCall{Method: req.Method, Params: req.Params})
	status := f.status
	result, hasResult := f.results[req.Method]
	rpcErr, hasErr := f.errors[req.Method]
	f.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		w.Write([]byte("unavailable"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case hasErr:
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":` + rpcErr + `}`))
	case hasResult:
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":` + result + `}`))
	default:
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":null}`))
	}
}

func (f *fakeRelayer) lastCall(t *testing.T) rpcCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatal("no rpc calls recorded")
	}
	return f.calls[len(f.calls)-1]
}

func newTestGateway(t *testing.T, relayer *fakeRelayer) *Gateway {
	t.Helper()
	srv := httptest.NewServer(relayer)
	t.Cleanup(srv.Close)

	gw, err := NewGateway(Config{URL: srv.URL, Contract: contract})
	if err != nil {
		t.Fatalf("NewGateway failed: %v", err)
	}
	t.Cleanup(func() { gw.Close() })
	return gw
}

func TestNewGateway_Validation(t *testing.T) {
	if _, err := NewGateway(Config{Contract: contract}); err == nil {
		t.Error("expected error for missing url")
	}
	if _, err := NewGateway(Config{URL: "http://localhost"}); err == nil {
		t.Error("expected error for missing contract")
	}
}

func TestGateway_LatestBlock(t *testing.T) {
	gw := newTestGateway(t, &fakeRelayer{results: map[string]string{
		"escrow_blockNumber": `"0x1b4"`,
	}})

	head, err := gw.LatestBlock(context.Background())
	if err != nil {
		t.Fatalf("LatestBlock failed: %v", err)
	}
	if head != 436 {
		t.Errorf("expected 436, got %d", head)
	}
}

func TestGateway_GetLogs(t *testing.T) {
	relayer := &fakeRelayer{results: map[string]string{
		"escrow_getLogs": `[
			{"blockNumber":"0x64","logIndex":"0x0","transactionHash":"0xaa","event":"GameStarted","data":{"gameId":"0x2a"}},
			{"blockNumber":101,"logIndex":1,"transactionHash":"0xbb","event":"PlayerJoined","data":{"gameId":7,"player":"0xABC"}}
		]`,
	}}
	gw := newTestGateway(t, relayer)

	logs, err := gw.GetLogs(context.Background(), 100, 101)
	if err != nil {
		t.Fatalf("GetLogs failed: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(logs))
	}
	if logs[0].BlockNumber != 100 || logs[1].LogIndex != 1 || logs[1].TxHash != "0xbb" {
		t.Errorf("unexpected logs: %+v", logs)
	}

	call := relayer.lastCall(t)
	var filter map[string]string
	if err := json.Unmarshal(call.Params[0], &filter); err != nil {
		t.Fatalf("decode filter: %v", err)
	}
	if filter["address"] != "0xescrow" || filter["fromBlock"] != "0x64" || filter["toBlock"] != "0x65" {
		t.Errorf("unexpected filter: %v", filter)
	}

	ev, ok := gw.Decode(logs[1])
	if !ok {
		t.Fatal("expected PlayerJoined to decode")
	}
	joined, ok := ev.(domain.PlayerJoined)
	if !ok || joined.GameID != 7 || joined.Player != "0xabc" || joined.Meta().BlockNumber != 101 {
		t.Errorf("unexpected event: %#v", ev)
	}
}

func TestGateway_ReadGame(t *testing.T) {
	gw := newTestGateway(t, &fakeRelayer{results: map[string]string{
		"escrow_getGame": `{"id":"0x2a","state":1,"governor":"0xGOV","creator":"0xc",
			"players":["0xA","0xB"],"forfeited":["0xB"],"stake":"1000000000000000000000"}`,
	}})

	game, err := gw.ReadGame(context.Background(), 42)
	if err != nil {
		t.Fatalf("ReadGame failed: %v", err)
	}
	if game.ID != 42 || game.State != domain.GameStateStarted || !game.GovernedBy("0xgov") {
		t.Errorf("unexpected game: %+v", game)
	}
	if len(game.Players) != 2 || game.Players[0] != "0xa" || !game.HasForfeited("0xb") {
		t.Errorf("unexpected players: %v forfeited: %v", game.Players, game.Forfeited)
	}
	want, _ := new(big.Int).SetString("1000000000000000000000", 10)
	if game.Stake.Cmp(want) != 0 {
		t.Errorf("unexpected stake: %s", game.Stake)
	}
}

func TestGateway_ReadGameNotFound(t *testing.T) {
	gw := newTestGateway(t, &fakeRelayer{})

	_, err := gw.ReadGame(context.Background(), 1)
	if !errors.Is(err, ledger.ErrGameNotFound) {
		t.Errorf("expected ErrGameNotFound, got %v", err)
	}
}

func TestGateway_ListGames(t *testing.T) {
	relayer := &fakeRelayer{results: map[string]string{
		"escrow_listGames": `["0x1", 2, "3"]`,
	}}
	gw := newTestGateway(t, relayer)

	ids, err := gw.ListGames(context.Background(), ledger.GameFilter{
		Governor: "0xgov",
		State:    domain.GameStateStarted,
		Offset:   50,
		Limit:    50,
	})
	if err != nil {
		t.Fatalf("ListGames failed: %v", err)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[2] != 3 {
		t.Errorf("unexpected ids: %v", ids)
	}

	var filter struct {
		Governor string `json:"governor"`
		State    int    `json:"state"`
		Offset   int    `json:"offset"`
		Limit    int    `json:"limit"`
	}
	if err := json.Unmarshal(relayer.lastCall(t).Params[0], &filter); err != nil {
		t.Fatalf("decode filter: %v", err)
	}
	if filter.Governor != "0xgov" || filter.State != 1 || filter.Offset != 50 || filter.Limit != 50 {
		t.Errorf("unexpected filter: %+v", filter)
	}
}

func TestGateway_SubmitResolve(t *testing.T) {
	relayer := &fakeRelayer{results: map[string]string{
		"escrow_resolve": `{"transactionHash":"0xtx","blockNumber":"0x10","status":"0x1"}`,
	}}
	gw := newTestGateway(t, relayer)

	receipt, err := gw.Submit(context.Background(), domain.ResolveCall{
		GameID: 42,
		Losers: []domain.Address{"0xb"},
		Fee:    big.NewInt(25),
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if receipt.TxHash != "0xtx" || receipt.BlockNumber != 16 {
		t.Errorf("unexpected receipt: %+v", receipt)
	}

	var params struct {
		GameID string   `json:"gameId"`
		Losers []string `json:"losers"`
		Fee    string   `json:"fee"`
	}
	if err := json.Unmarshal(relayer.lastCall(t).Params[0], &params); err != nil {
		t.Fatalf("decode params: %v", err)
	}
	if params.GameID != "0x2a" || len(params.Losers) != 1 || params.Losers[0] != "0xb" || params.Fee != "25" {
		t.Errorf("unexpected params: %+v", params)
	}
}

func TestGateway_SubmitClassifiesFailures(t *testing.T) {
	tests := []struct {
		name    string
		relayer *fakeRelayer
		want    ledger.Failure
	}{
		{
			name: "reverted",
			relayer: &fakeRelayer{errors: map[string]string{
				"escrow_start": `{"code":3,"message":"execution reverted: game not created"}`,
			}},
			want: ledger.FailureDeterministic,
		},
		{
			name: "invalid params",
			relayer: &fakeRelayer{errors: map[string]string{
				"escrow_start": `{"code":-32602,"message":"bad game id"}`,
			}},
			want: ledger.FailureDeterministic,
		},
		{
			name: "nonce race",
			relayer: &fakeRelayer{errors: map[string]string{
				"escrow_start": `{"code":-32000,"message":"nonce too low"}`,
			}},
			want: ledger.FailureTransient,
		},
		{
			name: "revert mentioning numbers",
			relayer: &fakeRelayer{errors: map[string]string{
				"escrow_start": `{"code":-32000,"message":"execution reverted: game 1503 already resolved"}`,
			}},
			want: ledger.FailureDeterministic,
		},
		{
			name:    "rate limited",
			relayer: &fakeRelayer{status: http.StatusTooManyRequests},
			want:    ledger.FailureTransient,
		},
		{
			name:    "unavailable",
			relayer: &fakeRelayer{status: http.StatusServiceUnavailable},
			want:    ledger.FailureTransient,
		},
		{
			name:    "bad request",
			relayer: &fakeRelayer{status: http.StatusBadRequest},
			want:    ledger.FailureDeterministic,
		},
		{
			name: "failed receipt",
			relayer: &fakeRelayer{results: map[string]string{
				"escrow_start": `{"transactionHash":"0xtx","blockNumber":"0x10","status":"0x0"}`,
			}},
			want: ledger.FailureDeterministic,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newTestGateway(t, tt.relayer)
			_, err := gw.Submit(context.Background(), domain.StartCall{GameID: 1})
			if err == nil {
				t.Fatal("expected error")
			}

			var det *ledger.DeterministicError
			var tr *ledger.TransientError
			switch tt.want {
			case ledger.FailureDeterministic:
				if !errors.As(err, &det) {
					t.Errorf("expected DeterministicError, got %T: %v", err, err)
				}
			case ledger.FailureTransient:
				if !errors.As(err, &tr) {
					t.Errorf("expected TransientError, got %T: %v", err, err)
				}
			}
		})
	}
}

func TestDecode(t *testing.T) {
	gw := &Gateway{log: newTestLogger()}

	tests := []struct {
		name string
		raw  ledger.RawLog
		want domain.EventKind
		ok   bool
	}{
		{
			name: "created",
			raw:  ledger.RawLog{Event: "GameCreated", Data: json.RawMessage(`{"gameId":1,"creator":"0xC","stake":"0x10"}`)},
			want: domain.EventKindCreated,
			ok:   true,
		},
		{
			name: "forfeited",
			raw:  ledger.RawLog{Event: "PlayerForfeited", Data: json.RawMessage(`{"gameId":1,"player":"0xa"}`)},
			want: domain.EventKindForfeited,
			ok:   true,
		},
		{
			name: "resolved",
			raw:  ledger.RawLog{Event: "GameResolved", Data: json.RawMessage(`{"gameId":1,"winners":["0xa"],"losers":["0xb"]}`)},
			want: domain.EventKindResolved,
			ok:   true,
		},
		{
			name: "unknown event",
			raw:  ledger.RawLog{Event: "Transfer", Data: json.RawMessage(`{}`)},
		},
		{
			name: "malformed payload",
			raw:  ledger.RawLog{Event: "GameStarted", Data: json.RawMessage(`{"gameId":"zz"}`)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := gw.Decode(tt.raw)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && ev.Kind() != tt.want {
				t.Errorf("kind = %s, want %s", ev.Kind(), tt.want)
			}
		})
	}

	ev, _ := gw.Decode(tests[0].raw)
	if created := ev.(domain.GameCreated); created.Stake.Int64() != 16 || created.Creator != "0xc" {
		t.Errorf("unexpected created event: %+v", created)
	}
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
