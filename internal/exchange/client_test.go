package exchange

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"

	"polymarket-mm/internal/config"
	"polymarket-mm/pkg/types"
)

func newDryRunClient() *Client {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return &Client{
		dryRun: true,
		rl:     NewRateLimiter(),
		logger: logger,
	}
}

func testMarket() types.MarketRef {
	return types.MarketRef{ConditionID: "cond-1", AssetIDA: "asset-a", AssetIDB: "asset-b", TickSize: types.Tick001}
}

func TestDryRunPostOrders(t *testing.T) {
	t.Parallel()
	c := newDryRunClient()

	orders := []types.Order{
		{Token: types.TokenA, Price: 0.50, Size: 10, Side: types.BUY},
		{Token: types.TokenA, Price: 0.55, Size: 10, Side: types.SELL},
	}

	accepted, err := c.PostOrders(context.Background(), orders, testMarket())
	if err != nil {
		t.Fatalf("PostOrders: %v", err)
	}
	if len(accepted) != 2 {
		t.Fatalf("expected 2 accepted orders, got %d", len(accepted))
	}
	for i, o := range accepted {
		if o.ID == "" {
			t.Errorf("accepted[%d].ID is empty", i)
		}
	}
}

func TestDryRunPostOrdersEmpty(t *testing.T) {
	t.Parallel()
	c := newDryRunClient()

	accepted, err := c.PostOrders(context.Background(), nil, testMarket())
	if err != nil {
		t.Fatalf("PostOrders: %v", err)
	}
	if accepted != nil {
		t.Errorf("expected nil for empty orders, got %v", accepted)
	}
}

func TestDryRunPostOrdersRejectsOversizedBatch(t *testing.T) {
	t.Parallel()
	c := newDryRunClient()
	orders := make([]types.Order, 16)
	if _, err := c.PostOrders(context.Background(), orders, testMarket()); err == nil {
		t.Fatal("expected error for a batch over 15 orders")
	}
}

func TestDryRunCancelOrders(t *testing.T) {
	t.Parallel()
	c := newDryRunClient()

	cancelled, err := c.CancelOrders(context.Background(), []string{"order-1", "order-2"})
	if err != nil {
		t.Fatalf("CancelOrders: %v", err)
	}
	if len(cancelled) != 2 {
		t.Errorf("expected 2 cancelled, got %d", len(cancelled))
	}
}

func TestDryRunCancelOrdersEmpty(t *testing.T) {
	t.Parallel()
	c := newDryRunClient()

	cancelled, err := c.CancelOrders(context.Background(), nil)
	if err != nil {
		t.Fatalf("CancelOrders: %v", err)
	}
	if len(cancelled) != 0 {
		t.Errorf("expected 0 cancelled, got %d", len(cancelled))
	}
}

func TestDryRunCancelAll(t *testing.T) {
	t.Parallel()
	c := newDryRunClient()

	if _, err := c.CancelAll(context.Background()); err != nil {
		t.Fatalf("CancelAll: %v", err)
	}
}

func TestNewClientDryRunFromConfig(t *testing.T) {
	t.Parallel()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	cfg := config.Config{DryRun: true, API: config.APIConfig{CLOBBaseURL: "http://localhost"}}
	auth := &Auth{}
	c := NewClient(cfg, auth, logger)

	if !c.dryRun {
		t.Error("client.dryRun should be true when config.DryRun is true")
	}
}

func testAuthConfig() config.Config {
	return config.Config{
		Wallet: config.WalletConfig{
			PrivateKey:    "0x1111111111111111111111111111111111111111111111111111111111111111",
			ChainID:       137,
			SignatureType: 0,
		},
		API: config.APIConfig{
			CLOBBaseURL: "http://localhost",
			ApiKey:      "test-key",
			Secret:      "test-secret",
			Passphrase:  "test-pass",
		},
	}
}

func TestBuildOrderPayloadFillsOrderFields(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg := testAuthConfig()

	auth, err := NewAuth(cfg)
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}

	c := NewClient(cfg, auth, logger)
	payload := c.buildOrderPayload(types.Order{
		Price: 0.55,
		Size:  10,
		Side:  types.BUY,
	}, "asset-a", types.Tick001)

	if payload.Order.Salt == "" {
		t.Fatal("expected a non-empty salt")
	}
	if payload.Order.Nonce != "0" {
		t.Fatalf("nonce = %q, want 0", payload.Order.Nonce)
	}
	if payload.Owner != "test-key" {
		t.Fatalf("owner = %q, want test-key", payload.Owner)
	}
	if payload.Order.TokenID != "asset-a" {
		t.Fatalf("token id = %q, want asset-a", payload.Order.TokenID)
	}
}

func TestBuildOrderPayloadUsesFunderAsMaker(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg := testAuthConfig()
	auth, err := NewAuth(cfg)
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	c := NewClient(cfg, auth, logger)

	payload := c.buildOrderPayload(types.Order{Price: 0.5, Size: 1, Side: types.BUY}, "asset-a", types.Tick001)

	if !strings.HasPrefix(payload.Order.Maker, "0x") {
		t.Fatalf("maker = %q, want 0x-prefixed address", payload.Order.Maker)
	}
}
