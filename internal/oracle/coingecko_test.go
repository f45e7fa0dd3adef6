package oracle

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oneset-labs/onesetd/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestFetchMultiplePrices_ParsesQuotes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("vs_currencies"); got != "usd" {
			t.Errorf("expected vs_currencies=usd, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"bitcoin":  {"usd": 97000.5, "usd_24h_change": 1.25},
			"ethereum": {"usd": 3500.0,  "usd_24h_change": -0.5}
		}`))
	}))
	defer srv.Close()

	c := NewCoinGeckoClient(srv.URL, 5*time.Second, discardLogger())
	quotes, err := c.FetchMultiplePrices(context.Background(), []string{"BTC", "ETH"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	btc, ok := quotes["BTC"]
	if !ok {
		t.Fatal("missing BTC quote")
	}
	if btc.Price != 97000.5 || btc.Change24h != 1.25 {
		t.Fatalf("unexpected BTC quote: %+v", btc)
	}
	if eth := quotes["ETH"]; eth.Price != 3500.0 {
		t.Fatalf("unexpected ETH quote: %+v", eth)
	}
}

func TestFetchMultiplePrices_UnknownSymbol(t *testing.T) {
	c := NewCoinGeckoClient("http://localhost:0", time.Second, discardLogger())
	_, err := c.FetchMultiplePrices(context.Background(), []string{"DOGE"})
	if !errors.Is(err, domain.ErrUnknownMarket) {
		t.Fatalf("expected ErrUnknownMarket, got: %v", err)
	}
}

func TestFetchMultiplePrices_RejectsNonPositivePrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"bitcoin": {"usd": 0, "usd_24h_change": 0}}`))
	}))
	defer srv.Close()

	c := NewCoinGeckoClient(srv.URL, time.Second, discardLogger())
	_, err := c.FetchMultiplePrices(context.Background(), []string{"BTC"})
	if err == nil {
		t.Fatal("expected error for zero price")
	}
}

func TestFetchPrice_MissingFromResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewCoinGeckoClient(srv.URL, time.Second, discardLogger())
	_, err := c.FetchPrice(context.Background(), "BTC")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
}
