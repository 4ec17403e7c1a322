package wallet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func newTestEsplora(url string) *Esplora {
	return NewEsplora(EsploraOptions{BaseURL: url, Timeout: time.Second}, zerolog.Nop())
}

func TestEsploraFeeEstimates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fee-estimates" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]float64{"1": 25.5, "6": 12.0, "144": 2.1})
	}))
	defer srv.Close()

	e := newTestEsplora(srv.URL)
	rate, err := e.EstimateFeeRate(context.Background(), 6)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if !rate.Equal(decimal.NewFromInt(12)) {
		t.Fatalf("expected 12 sat/vB for target 6, got %s", rate)
	}

	if _, err := e.EstimateFeeRate(context.Background(), 3); err == nil {
		t.Fatal("missing target must be an error")
	}
}

func TestEsploraSeen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/address/bc1qused":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"chain_stats":   map[string]int64{"tx_count": 3},
				"mempool_stats": map[string]int64{"tx_count": 0},
			})
		case "/address/bc1qfresh":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"chain_stats":   map[string]int64{"tx_count": 0},
				"mempool_stats": map[string]int64{"tx_count": 0},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	e := newTestEsplora(srv.URL)

	seen, err := e.Seen(context.Background(), "bc1qused")
	if err != nil {
		t.Fatalf("seen: %v", err)
	}
	if !seen {
		t.Fatal("address with chain history must report seen")
	}

	seen, err = e.Seen(context.Background(), "bc1qfresh")
	if err != nil {
		t.Fatalf("seen: %v", err)
	}
	if seen {
		t.Fatal("unused address must not report seen")
	}
}

func TestEsploraRetriesTransientFailures(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(812345)
	}))
	defer srv.Close()

	height, err := newTestEsplora(srv.URL).TipHeight(context.Background())
	if err != nil {
		t.Fatalf("tip height: %v", err)
	}
	if height != 812_345 {
		t.Fatalf("expected 812345, got %d", height)
	}
	if calls != 2 {
		t.Fatalf("expected one retry, saw %d calls", calls)
	}
}

func TestEsploraDoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := newTestEsplora(srv.URL).TipHeight(context.Background()); err == nil {
		t.Fatal("404 must be an error")
	}
	if calls != 1 {
		t.Fatalf("client errors must not be retried, saw %d calls", calls)
	}
}

func TestLightningOperatingBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "key123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		// LNbits reports millisatoshis.
		_ = json.NewEncoder(w).Encode(map[string]any{"name": "ops", "balance": 32_000_000})
	}))
	defer srv.Close()

	l := NewLightning(LightningOptions{BaseURL: srv.URL, APIKey: "key123", Timeout: time.Second}, zerolog.Nop())
	balance, err := l.OperatingBalance(context.Background())
	if err != nil {
		t.Fatalf("operating balance: %v", err)
	}
	if balance != 32_000 {
		t.Fatalf("expected 32000 sats, got %d", balance)
	}
}
