package market

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestServer(t *testing.T, markets []gammaMarket) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(markets)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func tradableMarket() gammaMarket {
	return gammaMarket{
		ConditionID:           "cond-1",
		Active:                true,
		Closed:                false,
		AcceptingOrders:       true,
		EnableOrderBook:       true,
		ClobTokenIds:          `["asset-a","asset-b"]`,
		OrderPriceMinTickSize: 0.01,
		OrderMinSize:          5,
	}
}

func TestResolveReturnsMarketRef(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, []gammaMarket{tradableMarket()})
	r := NewResolver(srv.URL, testLogger())

	ref, err := r.Resolve(context.Background(), "cond-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ref.AssetIDA != "asset-a" || ref.AssetIDB != "asset-b" {
		t.Fatalf("unexpected asset ids: %+v", ref)
	}
	if ref.TickSize.Decimals() != 2 {
		t.Errorf("expected 0.01 tick size, got %v", ref.TickSize)
	}
}

func TestResolveRejectsInactiveMarket(t *testing.T) {
	t.Parallel()
	m := tradableMarket()
	m.Active = false
	srv := newTestServer(t, []gammaMarket{m})
	r := NewResolver(srv.URL, testLogger())

	if _, err := r.Resolve(context.Background(), "cond-1"); err == nil {
		t.Fatal("expected error for inactive market")
	}
}

func TestResolveRejectsNotFound(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)
	r := NewResolver(srv.URL, testLogger())

	if _, err := r.Resolve(context.Background(), "cond-missing"); err == nil {
		t.Fatal("expected error for unknown market")
	}
}

func TestResolveRejectsMissingTokenPair(t *testing.T) {
	t.Parallel()
	m := tradableMarket()
	m.ClobTokenIds = `["only-one"]`
	srv := newTestServer(t, []gammaMarket{m})
	r := NewResolver(srv.URL, testLogger())

	if _, err := r.Resolve(context.Background(), "cond-1"); err == nil {
		t.Fatal("expected error for missing token pair")
	}
}
