// Package metrics defines the injectable observability sink used across the
// keeper: an order counter, a desync counter, sync-tick and reconcile-cycle
// counters. Production wires a Prometheus-backed Recorder; tests use NoOp so
// assertions on call counts never need a live scrape endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is the process-wide observability sink every component that
// emits a countable event writes through.
type Recorder interface {
	// OrdersPlaced records a successful batch placement of n orders.
	OrdersPlaced(n int)
	// OrdersCancelled records a successful batch cancellation of n orders.
	OrdersCancelled(n int)
	// SyncTick records one pass of the synchronize loop.
	SyncTick()
	// ReconcileCycle records one pass of the order-book anti-entropy loop,
	// tagged by whether it completed cleanly.
	ReconcileCycle(ok bool)
	// Desync records a detected local/server best-bid-ask mismatch for an asset.
	Desync(assetID string)
	// WSReconnect records a price-listener reconnect attempt.
	WSReconnect(assetID string)
}

// Prometheus is a Recorder backed by github.com/prometheus/client_golang.
// NewPrometheus registers its counters against a prometheus.Registerer;
// nothing in this repository serves them over HTTP (the operational HTTP
// server exposes only /health and /snapshot).
type Prometheus struct {
	ordersPlaced    prometheus.Counter
	ordersCancelled prometheus.Counter
	syncTicks       prometheus.Counter
	reconcileOK     prometheus.Counter
	reconcileFailed prometheus.Counter
	desyncs         *prometheus.CounterVec
	wsReconnects    *prometheus.CounterVec
}

// NewPrometheus builds a Prometheus recorder and registers its metrics
// against reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		ordersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "keeper",
			Name:      "orders_placed_total",
			Help:      "Total number of orders successfully placed.",
		}),
		ordersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "keeper",
			Name:      "orders_cancelled_total",
			Help:      "Total number of orders successfully cancelled.",
		}),
		syncTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "keeper",
			Name:      "sync_ticks_total",
			Help:      "Total number of synchronize loop passes.",
		}),
		reconcileOK: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "keeper",
			Name:      "reconcile_cycles_total",
			Help:      "Total number of successful order-book reconcile cycles.",
		}),
		reconcileFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "keeper",
			Name:      "reconcile_cycles_failed_total",
			Help:      "Total number of reconcile cycles aborted on a fetch error.",
		}),
		desyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keeper",
			Name:      "book_desyncs_total",
			Help:      "Total number of detected local/server order book mismatches, by asset.",
		}, []string{"asset_id"}),
		wsReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keeper",
			Name:      "ws_reconnects_total",
			Help:      "Total number of price-listener reconnect attempts, by asset.",
		}, []string{"asset_id"}),
	}

	reg.MustRegister(
		p.ordersPlaced,
		p.ordersCancelled,
		p.syncTicks,
		p.reconcileOK,
		p.reconcileFailed,
		p.desyncs,
		p.wsReconnects,
	)
	return p
}

func (p *Prometheus) OrdersPlaced(n int)    { p.ordersPlaced.Add(float64(n)) }
func (p *Prometheus) OrdersCancelled(n int) { p.ordersCancelled.Add(float64(n)) }
func (p *Prometheus) SyncTick()             { p.syncTicks.Inc() }

func (p *Prometheus) ReconcileCycle(ok bool) {
	if ok {
		p.reconcileOK.Inc()
		return
	}
	p.reconcileFailed.Inc()
}

func (p *Prometheus) Desync(assetID string)      { p.desyncs.WithLabelValues(assetID).Inc() }
func (p *Prometheus) WSReconnect(assetID string) { p.wsReconnects.WithLabelValues(assetID).Inc() }

// NoOp is a Recorder that discards every event. Used in tests and anywhere
// metrics are disabled.
type NoOp struct{}

func (NoOp) OrdersPlaced(int)         {}
func (NoOp) OrdersCancelled(int)      {}
func (NoOp) SyncTick()                {}
func (NoOp) ReconcileCycle(bool)      {}
func (NoOp) Desync(string)            {}
func (NoOp) WSReconnect(string)       {}
