package syncloop

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"polymarket-mm/internal/orderbook"
	"polymarket-mm/internal/shadowbook"
	"polymarket-mm/internal/strategy"
	"polymarket-mm/pkg/types"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func testStrategy(t *testing.T) *strategy.Strategy {
	t.Helper()
	s, err := strategy.New(strategy.Config{
		Bands: []types.Band{{MinMargin: 0, AvgMargin: 0.01, MaxMargin: 0.02, MinAmount: 5, AvgAmount: 10, MaxAmount: 20}},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// withBalances starts obm's reconcile loop long enough to seed balances via
// GetBalances, then cancels it; the manager's public API has no direct
// balance setter, matching the teacher's convention that OrderBook state is
// exchange-derived, not test-injected.
func withBalances(t *testing.T, obm *orderbook.Manager, balances types.Balances) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go obm.Run(ctx)
	waitFor(t, time.Second, func() bool {
		return obm.GetOrderBook().Balances()[types.Collateral] == balances[types.Collateral]
	})
}

func TestSynchronizeSkippedBeforeBootstrap(t *testing.T) {
	t.Parallel()
	book := shadowbook.New("asset-1", rand.New(rand.NewSource(1)))
	var placeCalls int
	obm := orderbook.New(orderbook.Config{
		PlaceOrders: func(ctx context.Context, orders []types.Order) ([]types.Order, error) {
			placeCalls++
			return nil, nil
		},
	})
	m := New(Config{Book: book, OrderBookMgr: obm, Strategy: testStrategy(t)})

	m.Synchronize(context.Background(), nil)

	if placeCalls != 0 {
		t.Fatalf("expected no dispatch before bootstrap, got %d place calls", placeCalls)
	}
}

func TestSynchronizeSkippedWithPendingCancels(t *testing.T) {
	t.Parallel()
	book := shadowbook.New("asset-1", rand.New(rand.NewSource(1)))
	book.ApplySnapshot([]types.PriceLevel{{Price: "0.48", Size: "10"}}, []types.PriceLevel{{Price: "0.52", Size: "10"}})

	blockCancel := make(chan struct{})
	obm := orderbook.New(orderbook.Config{
		CancelOrders: func(ctx context.Context, ids []string) ([]string, error) {
			<-blockCancel
			return ids, nil
		},
	})
	defer close(blockCancel)

	obm.CancelOrders(context.Background(), []string{"order-1"})
	waitFor(t, time.Second, func() bool { return obm.HasPendingCancels() })

	m := New(Config{Book: book, OrderBookMgr: obm, Strategy: testStrategy(t)})
	m.Synchronize(context.Background(), nil)

	// Synchronize must return (not block) while the cancel above is still
	// in flight; reaching this point without a timeout is the assertion.
}

func TestSynchronizeSkippedOnInvalidBalances(t *testing.T) {
	t.Parallel()
	book := shadowbook.New("asset-1", rand.New(rand.NewSource(1)))
	book.ApplySnapshot([]types.PriceLevel{{Price: "0.48", Size: "10"}}, []types.PriceLevel{{Price: "0.52", Size: "10"}})

	var placeCalls int
	obm := orderbook.New(orderbook.Config{
		PlaceOrders: func(ctx context.Context, orders []types.Order) ([]types.Order, error) {
			placeCalls++
			return nil, nil
		},
	})
	m := New(Config{Book: book, OrderBookMgr: obm, Strategy: testStrategy(t)})

	// Balances default to an empty map (all zero), which must fail validation.
	m.Synchronize(context.Background(), nil)

	if placeCalls != 0 {
		t.Fatalf("expected no dispatch with all-zero balances, got %d", placeCalls)
	}
}

func TestSynchronizeUsesExplicitPriceOverride(t *testing.T) {
	t.Parallel()
	book := shadowbook.New("asset-1", rand.New(rand.NewSource(1)))
	book.ApplySnapshot(nil, nil) // bootstrap without giving a usable mid price

	placed := make(chan []types.Order, 1)
	obm := orderbook.New(orderbook.Config{
		GetBalances: func(ctx context.Context) (types.Balances, error) {
			return types.Balances{types.Collateral: 1000}, nil
		},
		GetOrders: func(ctx context.Context) ([]types.Order, error) { return nil, nil },
		PlaceOrders: func(ctx context.Context, orders []types.Order) ([]types.Order, error) {
			placed <- orders
			return nil, nil
		},
	})
	withBalances(t, obm, types.Balances{types.Collateral: 1000})

	m := New(Config{Book: book, OrderBookMgr: obm, Strategy: testStrategy(t)})
	target := 0.5
	m.Synchronize(context.Background(), &target)

	select {
	case orders := <-placed:
		if len(orders) == 0 {
			t.Fatal("expected at least one order placed at the overridden target price")
		}
	case <-time.After(time.Second):
		t.Fatal("expected a place dispatch using the overridden price")
	}
}
