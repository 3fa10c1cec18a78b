// Package orderbook implements OrderBookManager (C4): an in-memory view of
// resting orders and balances, plus an asynchronous, bounded-worker-pool
// dispatcher for placing and cancelling orders against the exchange, and a
// periodic anti-entropy reconcile loop.
//
// Grounded on original_source/poly_market_maker/orderbook.py for the
// OrderBook/OrderBookManager shape (in-flight tracking sets, injected
// exchange functions, tolerant reconcile) and the teacher's
// internal/strategy/maker.go for the Go context/WaitGroup run-loop idiom.
package orderbook

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"polymarket-mm/internal/metrics"
	"polymarket-mm/pkg/types"
)

// DefaultWorkers is the default size of the bounded place/cancel worker pool.
const DefaultWorkers = 5

// GetOrdersFunc fetches all currently-resting orders from the exchange.
type GetOrdersFunc func(ctx context.Context) ([]types.Order, error)

// GetBalancesFunc fetches current balances from the exchange.
type GetBalancesFunc func(ctx context.Context) (types.Balances, error)

// PlaceOrdersFunc submits new orders and returns the ones the exchange accepted.
type PlaceOrdersFunc func(ctx context.Context, orders []types.Order) ([]types.Order, error)

// CancelOrdersFunc cancels orders by ID and returns the ids actually cancelled.
type CancelOrdersFunc func(ctx context.Context, orderIDs []string) ([]string, error)

// CancelAllOrdersFunc cancels every resting order and returns the cancelled ids.
type CancelAllOrdersFunc func(ctx context.Context) ([]string, error)

// OrderBook is a point-in-time, thread-safe view of resting orders and
// balances. It is the shared state OrderBookManager mutates from its worker
// pool and reconcile loop, and that StrategyManager reads via GetOrderBook.
type OrderBook struct {
	mu sync.RWMutex

	orders   map[string]types.Order
	balances types.Balances

	placing   map[string]bool // client-side ids queued to be placed, pre-ack
	cancelling map[string]bool // order ids submitted for cancellation, pre-ack
}

func newOrderBook() *OrderBook {
	return &OrderBook{
		orders:     make(map[string]types.Order),
		balances:   types.Balances{},
		placing:    make(map[string]bool),
		cancelling: make(map[string]bool),
	}
}

// Orders returns a snapshot copy of the resting orders, excluding any
// currently mid-cancellation (optimistic: they are treated as already gone).
func (ob *OrderBook) Orders() []types.Order {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	out := make([]types.Order, 0, len(ob.orders))
	for id, o := range ob.orders {
		if ob.cancelling[id] {
			continue
		}
		out = append(out, o)
	}
	return out
}

// Balances returns a snapshot copy of the last-known balances.
func (ob *OrderBook) Balances() types.Balances {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	out := make(types.Balances, len(ob.balances))
	for k, v := range ob.balances {
		out[k] = v
	}
	return out
}

// HasPendingCancels reports whether any cancel is still in flight.
func (ob *OrderBook) HasPendingCancels() bool {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return len(ob.cancelling) > 0
}

// PlacingCount returns the number of orders currently mid-placement.
func (ob *OrderBook) PlacingCount() int {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return len(ob.placing)
}

// Manager dispatches place/cancel operations through a bounded worker pool
// and periodically reconciles local state against the exchange.
type Manager struct {
	book *OrderBook

	getOrders       GetOrdersFunc
	getBalances     GetBalancesFunc
	placeOrders     PlaceOrdersFunc
	cancelOrders    CancelOrdersFunc
	cancelAllOrders CancelAllOrdersFunc
	onUpdate        func()

	sem             chan struct{} // bounded worker pool: one slot per in-flight task
	reconcileEvery  time.Duration
	logger          *slog.Logger
	metrics         metrics.Recorder

	wg sync.WaitGroup
}

// Config configures a Manager.
type Config struct {
	Workers         int // defaults to DefaultWorkers if <= 0
	ReconcileEvery  time.Duration
	GetOrders       GetOrdersFunc
	GetBalances     GetBalancesFunc
	PlaceOrders     PlaceOrdersFunc
	CancelOrders    CancelOrdersFunc
	CancelAllOrders CancelAllOrdersFunc
	OnUpdate        func()
	Logger          *slog.Logger
	Metrics         metrics.Recorder // defaults to metrics.NoOp{} if nil
}

// New constructs a Manager. Call Run to start its reconcile loop.
func New(cfg Config) *Manager {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reconcileEvery := cfg.ReconcileEvery
	if reconcileEvery <= 0 {
		reconcileEvery = 10 * time.Second
	}
	rec := cfg.Metrics
	if rec == nil {
		rec = metrics.NoOp{}
	}
	return &Manager{
		book:            newOrderBook(),
		getOrders:       cfg.GetOrders,
		getBalances:     cfg.GetBalances,
		placeOrders:     cfg.PlaceOrders,
		cancelOrders:    cfg.CancelOrders,
		cancelAllOrders: cfg.CancelAllOrders,
		onUpdate:        cfg.OnUpdate,
		sem:             make(chan struct{}, workers),
		reconcileEvery:  reconcileEvery,
		logger:          logger.With("component", "order_book_manager"),
		metrics:         rec,
	}
}

// GetOrderBook returns the current OrderBook snapshot container.
func (m *Manager) GetOrderBook() *OrderBook { return m.book }

// HasPendingCancels reports whether a cancel dispatched by this manager is
// still in flight; each cancel task clears its ids when it completes,
// whether or not the exchange accepted the cancel. StrategyManager (C5)
// uses this to enforce the cancel-tick/settle-tick/place-tick discipline.
func (m *Manager) HasPendingCancels() bool { return m.book.HasPendingCancels() }

// PlaceOrders dispatches a place task to the worker pool. It returns
// immediately; the result is applied to the OrderBook asynchronously.
func (m *Manager) PlaceOrders(ctx context.Context, orders []types.Order) {
	if len(orders) == 0 {
		return
	}
	taskID := uuid.NewString()

	m.book.mu.Lock()
	for i := range orders {
		m.book.placing[taskID+":"+strconv.Itoa(i)] = true
	}
	m.book.mu.Unlock()
	m.notifyUpdate()

	m.dispatch(ctx, taskID, "place", func(ctx context.Context) {
		accepted, err := m.placeOrders(ctx, orders)
		m.book.mu.Lock()
		for i := range orders {
			delete(m.book.placing, taskID+":"+strconv.Itoa(i))
		}
		if err == nil {
			for _, o := range accepted {
				if o.ID != "" {
					m.book.orders[o.ID] = o
				}
			}
		}
		m.book.mu.Unlock()
		if err != nil {
			m.logger.Error("place orders failed", "task", taskID, "error", err, "count", len(orders))
		} else {
			m.metrics.OrdersPlaced(len(accepted))
		}
		m.notifyUpdate()
	})
}

// CancelOrders dispatches a cancel-by-id task to the worker pool.
func (m *Manager) CancelOrders(ctx context.Context, orderIDs []string) {
	if len(orderIDs) == 0 {
		return
	}
	taskID := uuid.NewString()

	m.book.mu.Lock()
	for _, id := range orderIDs {
		m.book.cancelling[id] = true
	}
	m.book.mu.Unlock()
	m.notifyUpdate()

	m.dispatch(ctx, taskID, "cancel", func(ctx context.Context) {
		cancelled, err := m.cancelOrders(ctx, orderIDs)
		// A non-empty response is treated as full success for the submitted
		// batch; the reconcile loop corrects any residual either way.
		success := err == nil && len(cancelled) > 0

		m.book.mu.Lock()
		for _, id := range orderIDs {
			delete(m.book.cancelling, id)
			if success {
				delete(m.book.orders, id)
			}
		}
		m.book.mu.Unlock()
		if err != nil {
			m.logger.Error("cancel orders failed", "task", taskID, "error", err, "count", len(orderIDs))
		} else {
			m.metrics.OrdersCancelled(len(cancelled))
		}
		m.notifyUpdate()
	})
}

// CancelAllOrders dispatches a cancel-everything task to the worker pool.
func (m *Manager) CancelAllOrders(ctx context.Context) {
	taskID := uuid.NewString()

	m.book.mu.Lock()
	marked := make([]string, 0, len(m.book.orders))
	for id := range m.book.orders {
		m.book.cancelling[id] = true
		marked = append(marked, id)
	}
	m.book.mu.Unlock()

	m.dispatch(ctx, taskID, "cancel_all", func(ctx context.Context) {
		cancelled, err := m.cancelAllOrders(ctx)
		m.book.mu.Lock()
		for _, id := range marked {
			delete(m.book.cancelling, id)
		}
		if err == nil {
			for _, id := range cancelled {
				delete(m.book.orders, id)
			}
		}
		m.book.mu.Unlock()
		if err != nil {
			m.logger.Error("cancel all orders failed", "task", taskID, "error", err)
		}
		m.notifyUpdate()
	})
}

// dispatch runs fn on the bounded worker pool without blocking the caller:
// fn's goroutine waits for a semaphore slot (which bounds how many
// place/cancel tasks run concurrently against the exchange), runs fn, and
// releases the slot when fn returns. A panic inside fn is recovered and
// logged. If ctx is cancelled before a slot frees up, fn is not run.
func (m *Manager) dispatch(ctx context.Context, taskID, kind string, fn func(ctx context.Context)) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		select {
		case m.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-m.sem }()
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("worker task panicked", "task", taskID, "kind", kind, "recovered", r)
			}
		}()
		m.logger.Debug("dispatching task", "task", taskID, "kind", kind)
		fn(ctx)
	}()
}

func (m *Manager) notifyUpdate() {
	if m.onUpdate == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("on_update callback panicked", "recovered", r)
		}
	}()
	m.onUpdate()
}

// Run starts the periodic anti-entropy reconcile loop. Blocks until ctx is
// cancelled, then waits for in-flight place/cancel tasks to finish.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.reconcileEvery)
	defer ticker.Stop()

	m.reconcile(ctx)
	for {
		select {
		case <-ctx.Done():
			m.wg.Wait()
			return
		case <-ticker.C:
			m.reconcile(ctx)
		}
	}
}

// reconcile refetches orders (critical — any error aborts this cycle, since
// trading decisions must never be based on stale/partial order state) and
// balances (non-critical — a failure here just skips the balance refresh).
func (m *Manager) reconcile(ctx context.Context) {
	if m.getOrders == nil {
		return
	}
	orders, err := m.getOrders(ctx)
	if err != nil {
		m.logger.Warn("reconcile: failed to fetch orders, skipping cycle", "error", err)
		m.metrics.ReconcileCycle(false)
		return
	}

	m.book.mu.Lock()
	fresh := make(map[string]types.Order, len(orders))
	for _, o := range orders {
		if m.book.cancelling[o.ID] {
			// A cancel is already in flight for this id; don't resurrect it
			// just because the fetch raced ahead of the exchange's ack.
			continue
		}
		fresh[o.ID] = o
	}
	m.book.orders = fresh
	m.book.mu.Unlock()

	if m.getBalances == nil {
		m.metrics.ReconcileCycle(true)
		m.notifyUpdate()
		return
	}
	balances, err := m.getBalances(ctx)
	if err != nil {
		m.logger.Warn("reconcile: failed to fetch balances, keeping stale value", "error", err)
		m.metrics.ReconcileCycle(true)
		m.notifyUpdate()
		return
	}
	m.book.mu.Lock()
	m.book.balances = balances
	m.book.mu.Unlock()
	m.metrics.ReconcileCycle(true)
	m.notifyUpdate()
}
