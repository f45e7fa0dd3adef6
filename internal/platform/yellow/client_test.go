package yellow

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oneset-labs/onesetd/internal/domain"
)

func newTestServer(t *testing.T) (*httptest.Server, *Client) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/init", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Address string `json:"address"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Address == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"token": "tok-" + in.Address})
	})
	mux.HandleFunc("POST /v1/sessions/create", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-0xabc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"sessionId": "sess-1",
			"txHash":    "0xdeposit",
		})
	})
	mux.HandleFunc("POST /v1/trades/intent", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Nonce     uint64 `json:"nonce"`
			Signature string `json:"signature"`
		}
		json.NewDecoder(r.Body).Decode(&in)
		if in.Signature == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"nonce":   in.Nonce,
		})
	})
	mux.HandleFunc("GET /v1/sessions/sess-1/balance", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]int64{"balanceUnits": 48_500_000})
	})
	mux.HandleFunc("POST /v1/sessions/settle", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"txHash": "0xsettle"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, NewClient(srv.URL, nil, slog.New(slog.DiscardHandler))
}

func TestAuthedCallsRequireInitialize(t *testing.T) {
	_, c := newTestServer(t)

	_, err := c.CreateSession(context.Background(), "0xabc", 50_000_000, 30*time.Minute)
	if !errors.Is(err, domain.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	t.Logf("Correctly blocked: %v", err)
}

func TestSessionLifecycle(t *testing.T) {
	_, c := newTestServer(t)
	ctx := context.Background()

	if err := c.Initialize(ctx, "0xabc"); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	receipt, err := c.CreateSession(ctx, "0xabc", 50_000_000, 30*time.Minute)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if receipt.SessionID != "sess-1" || receipt.TxHash != "0xdeposit" {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}

	market, _ := domain.MarketBySymbol("BTC")
	ack, err := c.SubmitTradeIntent(ctx, domain.TradeIntent{
		SessionID: "sess-1",
		Market:    market,
		Side:      domain.SideLong,
		SizeUnits: 500_000,
		Nonce:     7,
		Signature: "0xsig",
	})
	if err != nil {
		t.Fatalf("submit intent: %v", err)
	}
	if !ack.Success || ack.Nonce != 7 {
		t.Fatalf("unexpected ack: %+v", ack)
	}

	bal, err := c.GetSessionBalance(ctx, "sess-1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != 48_500_000 {
		t.Fatalf("balance: %d", bal)
	}

	tx, err := c.Settle(ctx, domain.SettlementData{SessionID: "sess-1", Signature: "0xsig"})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if tx != "0xsettle" {
		t.Fatalf("settle tx: %q", tx)
	}
}

func TestInitializeRejectsEmptyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"token": ""})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, slog.New(slog.DiscardHandler))
	if err := c.Initialize(context.Background(), "0xabc"); err == nil {
		t.Fatal("expected error for empty token")
	}
}
