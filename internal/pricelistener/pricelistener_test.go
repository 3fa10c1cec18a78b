package pricelistener

import (
	"encoding/json"
	"math/rand"
	"testing"
	"time"

	"polymarket-mm/internal/shadowbook"
)

func newListenerForTest(debounce time.Duration, onUpdate func()) *PriceListener {
	book := shadowbook.New("asset-1", rand.New(rand.NewSource(1)))
	return New(Config{
		AssetID:          "asset-1",
		ConditionID:      "condition-1",
		Book:             book,
		DebounceInterval: debounce,
		OnUpdate:         onUpdate,
	})
}

func TestHandleOneAppliesBookSnapshot(t *testing.T) {
	t.Parallel()
	var calls int
	p := newListenerForTest(0, func() { calls++ })

	raw := json.RawMessage(`{"event_type":"book","asset_id":"asset-1","bids":[{"price":"0.48","size":"10"}],"asks":[{"price":"0.52","size":"5"}]}`)
	p.handleOne(raw)

	bid, ok := p.book.GetBestBid()
	if !ok || bid != 0.48 {
		t.Fatalf("expected best bid 0.48 after snapshot, got %v ok=%v", bid, ok)
	}
	if calls != 1 {
		t.Fatalf("expected onUpdate called once, got %d", calls)
	}
}

func TestHandleOneIgnoresOtherAssetID(t *testing.T) {
	t.Parallel()
	var calls int
	p := newListenerForTest(0, func() { calls++ })

	raw := json.RawMessage(`{"event_type":"book","asset_id":"some-other-asset","bids":[{"price":"0.48","size":"10"}]}`)
	p.handleOne(raw)

	if calls != 0 {
		t.Fatalf("expected no update for a non-matching asset id, got %d calls", calls)
	}
}

func TestHandleOneIgnoresOtherConditionID(t *testing.T) {
	t.Parallel()
	var calls int
	p := newListenerForTest(0, func() { calls++ })

	raw := json.RawMessage(`{"event_type":"book","market":"some-other-condition","asset_id":"asset-1","bids":[{"price":"0.48","size":"10"}]}`)
	p.handleOne(raw)

	if calls != 0 {
		t.Fatalf("expected no update for a non-matching condition id, got %d calls", calls)
	}
}

func TestHandleOneAppliesBookSnapshotWhenConditionIDMatches(t *testing.T) {
	t.Parallel()
	var calls int
	p := newListenerForTest(0, func() { calls++ })

	raw := json.RawMessage(`{"event_type":"book","market":"condition-1","asset_id":"asset-1","bids":[{"price":"0.48","size":"10"}]}`)
	p.handleOne(raw)

	if calls != 1 {
		t.Fatalf("expected onUpdate called once for a matching condition id, got %d", calls)
	}
}

func TestHandleOneAppliesPriceChange(t *testing.T) {
	t.Parallel()
	p := newListenerForTest(0, func() {})
	p.book.ApplySnapshot(nil, nil)

	raw := json.RawMessage(`{"event_type":"price_change","price_changes":[{"asset_id":"asset-1","side":"buy","price":"0.49","size":"7"}]}`)
	p.handleOne(raw)

	bid, ok := p.book.GetBestBid()
	if !ok || bid != 0.49 {
		t.Fatalf("expected best bid 0.49 after price_change, got %v ok=%v", bid, ok)
	}
}

func TestHandleOneIgnoresUnknownEventType(t *testing.T) {
	t.Parallel()
	var calls int
	p := newListenerForTest(0, func() { calls++ })

	raw := json.RawMessage(`{"event_type":"last_trade_price","asset_id":"asset-1"}`)
	p.handleOne(raw)

	if calls != 0 {
		t.Fatalf("expected no update for an unknown event type, got %d calls", calls)
	}
}

func TestTriggerDebouncedSkipsWithinInterval(t *testing.T) {
	t.Parallel()
	var calls int
	p := newListenerForTest(time.Hour, func() { calls++ })

	p.triggerDebounced()
	p.triggerDebounced()
	p.triggerDebounced()

	if calls != 1 {
		t.Fatalf("expected exactly one call within the debounce interval, got %d", calls)
	}
}

func TestTriggerDebouncedFiresAfterIntervalElapses(t *testing.T) {
	t.Parallel()
	var calls int
	p := newListenerForTest(time.Millisecond, func() { calls++ })

	p.triggerDebounced()
	time.Sleep(5 * time.Millisecond)
	p.triggerDebounced()

	if calls != 2 {
		t.Fatalf("expected two calls once the debounce interval elapsed, got %d", calls)
	}
}

func TestHandleMessageAcceptsBatchedArray(t *testing.T) {
	t.Parallel()
	var calls int
	p := newListenerForTest(0, func() { calls++ })

	data := []byte(`[{"event_type":"book","asset_id":"asset-1","bids":[{"price":"0.48","size":"10"}]},{"event_type":"book","asset_id":"asset-1","bids":[{"price":"0.49","size":"10"}]}]`)
	p.handleMessage(data)

	if calls != 2 {
		t.Fatalf("expected two updates from a batched array, got %d", calls)
	}
	bid, ok := p.book.GetBestBid()
	if !ok || bid != 0.49 {
		t.Fatalf("expected the last snapshot in the batch to win, got %v ok=%v", bid, ok)
	}
}
