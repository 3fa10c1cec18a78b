// Package syncloop implements StrategyManager (C5): the tick-driven loop
// that gates on bootstrap and pending-cancel state, derives target prices
// from a ShadowBook, calls the Bands strategy, and dispatches the resulting
// cancel/place sets through an OrderBookManager in cancel-then-place order.
//
// Grounded on original_source/poly_market_maker/strategy.py
// (StrategyManager.synchronize) for the gating and dispatch order, and the
// teacher's internal/strategy/maker.go for the Go ticker-driven Run loop.
package syncloop

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/internal/metrics"
	"polymarket-mm/internal/orderbook"
	"polymarket-mm/internal/shadowbook"
	"polymarket-mm/internal/strategy"
	"polymarket-mm/pkg/types"
)

// Manager ties together a ShadowBook, an OrderBookManager, and a Strategy
// into the periodic synchronize loop.
type Manager struct {
	book     *shadowbook.ShadowBook
	obm      *orderbook.Manager
	strategy *strategy.Strategy

	tickInterval time.Duration
	logger       *slog.Logger
	metrics      metrics.Recorder
}

// Config configures a Manager.
type Config struct {
	Book         *shadowbook.ShadowBook
	OrderBookMgr *orderbook.Manager
	Strategy     *strategy.Strategy
	TickInterval time.Duration
	Metrics      metrics.Recorder // defaults to metrics.NoOp{} if nil
	Logger       *slog.Logger
}

// New constructs a Manager.
func New(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	rec := cfg.Metrics
	if rec == nil {
		rec = metrics.NoOp{}
	}
	return &Manager{
		book:         cfg.Book,
		obm:          cfg.OrderBookMgr,
		strategy:     cfg.Strategy,
		tickInterval: interval,
		logger:       logger.With("component", "sync_loop"),
		metrics:      rec,
	}
}

// Run ticks Synchronize every TickInterval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Synchronize(ctx, nil)
		}
	}
}

// Synchronize runs one tick of the gating/dispatch sequence: bootstrap gate,
// pending-cancel gate, order-book read, price derivation, strategy
// evaluation, then cancel-then-place dispatch. price, if non-nil, overrides
// the ShadowBook-derived target price for token A (spec §4.5's explicit
// override). Any failure is logged and swallowed — a bad tick must never
// crash the keeper.
func (m *Manager) Synchronize(ctx context.Context, price *float64) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("synchronize panicked, recovering", "recovered", r)
		}
	}()
	m.metrics.SyncTick()

	if m.book.LastUpdateTime().IsZero() {
		m.logger.Debug("synchronize skipped: shadow book not yet bootstrapped")
		return
	}

	if m.obm.HasPendingCancels() {
		m.logger.Debug("synchronize skipped: cancels still pending")
		return
	}

	ob := m.obm.GetOrderBook()
	orders := ob.Orders()
	balances := ob.Balances()
	if err := validateBalances(balances); err != nil {
		m.logger.Warn("synchronize skipped: invalid balances", "error", err)
		return
	}

	targetA, ok := m.tokenAPrice(price)
	if !ok || targetA <= 0 {
		m.logger.Debug("synchronize skipped: no positive target price available")
		return
	}
	targetB := round6(1 - targetA)

	targets := map[types.Token]float64{
		types.TokenA: targetA,
		types.TokenB: targetB,
	}

	toCancel, toPlace := m.strategy.GetOrders(orders, balances, targets)

	if len(toCancel) > 0 {
		ids := make([]string, 0, len(toCancel))
		for _, o := range toCancel {
			if o.ID != "" {
				ids = append(ids, o.ID)
			}
		}
		// Cancels dispatch alone; placement waits for a later tick once the
		// cancels have settled (the cancel-tick/settle-tick/place-tick
		// discipline the pending-cancel gate above enforces).
		m.obm.CancelOrders(ctx, ids)
		return
	}

	if len(toPlace) > 0 {
		m.obm.PlaceOrders(ctx, toPlace)
	}
}

func (m *Manager) tokenAPrice(override *float64) (float64, bool) {
	if override != nil {
		return round6(*override), true
	}
	if mid, ok := m.book.GetMidPrice(); ok {
		return round6(mid), true
	}
	return 0, false
}

func round6(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(int32(types.MaxDecimals)).Float64()
	return f
}

func validateBalances(b types.Balances) error {
	if b == nil {
		return fmt.Errorf("balances are nil")
	}
	var sum float64
	for _, v := range b {
		if v < 0 {
			return fmt.Errorf("negative balance")
		}
		sum += v
	}
	if sum == 0 {
		return fmt.Errorf("all balances are zero")
	}
	return nil
}
