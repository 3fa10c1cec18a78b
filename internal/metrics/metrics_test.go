package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestPrometheusRecordsCounters(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)

	p.OrdersPlaced(3)
	p.OrdersCancelled(1)
	p.SyncTick()
	p.ReconcileCycle(true)
	p.ReconcileCycle(false)
	p.Desync("asset-1")
	p.WSReconnect("asset-1")

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	counts := map[string]float64{}
	for _, mf := range metricFamilies {
		for _, m := range mf.GetMetric() {
			counts[mf.GetName()] += counterValue(m)
		}
	}

	if counts["keeper_orders_placed_total"] != 3 {
		t.Errorf("orders_placed_total = %v, want 3", counts["keeper_orders_placed_total"])
	}
	if counts["keeper_orders_cancelled_total"] != 1 {
		t.Errorf("orders_cancelled_total = %v, want 1", counts["keeper_orders_cancelled_total"])
	}
	if counts["keeper_reconcile_cycles_total"] != 1 {
		t.Errorf("reconcile_cycles_total = %v, want 1", counts["keeper_reconcile_cycles_total"])
	}
	if counts["keeper_reconcile_cycles_failed_total"] != 1 {
		t.Errorf("reconcile_cycles_failed_total = %v, want 1", counts["keeper_reconcile_cycles_failed_total"])
	}
}

func counterValue(m *dto.Metric) float64 {
	if m.GetCounter() != nil {
		return m.GetCounter().GetValue()
	}
	return 0
}

func TestNoOpDoesNotPanic(t *testing.T) {
	t.Parallel()
	var r Recorder = NoOp{}
	r.OrdersPlaced(1)
	r.OrdersCancelled(1)
	r.SyncTick()
	r.ReconcileCycle(true)
	r.Desync("asset-1")
	r.WSReconnect("asset-1")
}
