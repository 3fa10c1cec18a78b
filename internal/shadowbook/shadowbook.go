// Package shadowbook implements ShadowBook (C1): an in-memory replica of
// the top-of-book for one asset id, fed by snapshot/delta events from
// PriceListener (C2). Grounded on
// original_source/poly_market_maker/simulation/shadow_book.py for the
// delta/cache/desync semantics, and internal/market/book.go (teacher) for
// the Go locking/struct shape.
package shadowbook

import (
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"polymarket-mm/pkg/types"
)

// Side tags which side of the book a delta or snapshot row belongs to.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Delta is a single (side, price, size) update, optionally carrying the
// server's view of the best bid/ask for desync sampling.
type Delta struct {
	Side    Side
	Price   float64
	Size    float64
	HasBest bool
	Best    float64
}

// float64Source is the minimal PRNG surface ShadowBook needs for desync
// sampling. *rand.Rand satisfies it; tests may supply a deterministic
// stand-in.
type float64Source interface {
	Float64() float64
}

// ShadowBook is a local replica of one asset's order book: bids, asks, a
// cached best bid/ask, and the last trade price. Safe for concurrent use;
// the single writer is expected to be PriceListener, with readers taking a
// snapshot via GetBestBid/GetBestAsk/GetMidPrice.
type ShadowBook struct {
	mu sync.Mutex

	assetID string
	rng     float64Source // dedicated PRNG for deterministic desync-sampling tests

	bids map[float64]float64
	asks map[float64]float64

	bestBidCache *float64
	bestAskCache *float64

	lastTradePrice *float64
	lastUpdateTime time.Time
}

// New creates an empty ShadowBook tracking assetID. rng, if nil, uses a
// process-local source; pass a seeded *rand.Rand (or any float64Source) for
// deterministic tests of the desync-sampling behavior (S6).
func New(assetID string, rng float64Source) *ShadowBook {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &ShadowBook{
		assetID: assetID,
		rng:     rng,
		bids:    make(map[float64]float64),
		asks:    make(map[float64]float64),
	}
}

// ApplySnapshot replaces both sides atomically, dropping zero-size levels,
// resetting the best-bid/ask caches, and updating last_update_time.
// Idempotent on identical input.
func (sb *ShadowBook) ApplySnapshot(bids, asks []types.PriceLevel) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	sb.bids = levelsToMap(bids)
	sb.asks = levelsToMap(asks)
	sb.bestBidCache = nil
	sb.bestAskCache = nil
	sb.lastUpdateTime = time.Now()
}

func levelsToMap(levels []types.PriceLevel) map[float64]float64 {
	out := make(map[float64]float64, len(levels))
	for _, lvl := range levels {
		price, err1 := strconv.ParseFloat(lvl.Price, 64)
		size, err2 := strconv.ParseFloat(lvl.Size, 64)
		if err1 != nil || err2 != nil || size <= 0 {
			continue
		}
		out[price] = size
	}
	return out
}

// ApplyDelta updates exactly one (side, price, size) tuple. Returns false if
// a desync was sampled and detected (see SPEC_FULL.md §4.1); the book itself
// is still updated either way — a desync does not corrupt local state, it
// only signals that the owner should request a fresh snapshot.
func (sb *ShadowBook) ApplyDelta(d Delta) bool {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	healthy := true
	if d.Side == SideBuy {
		if d.Size == 0 {
			delete(sb.bids, d.Price)
			if sb.bestBidCache != nil && *sb.bestBidCache == d.Price {
				sb.bestBidCache = nil
			}
		} else {
			sb.bids[d.Price] = d.Size
			if sb.bestBidCache != nil && d.Price > *sb.bestBidCache {
				p := d.Price
				sb.bestBidCache = &p
			}
		}
		if d.HasBest && sb.rng.Float64() < types.DesyncSampleRate && d.Best > 0 {
			mine := sb.bestBidLocked()
			if mine == nil || absF(*mine-d.Best) > types.Epsilon {
				healthy = false
			}
		}
	} else {
		if d.Size == 0 {
			delete(sb.asks, d.Price)
			if sb.bestAskCache != nil && *sb.bestAskCache == d.Price {
				sb.bestAskCache = nil
			}
		} else {
			sb.asks[d.Price] = d.Size
			if sb.bestAskCache != nil && d.Price < *sb.bestAskCache {
				p := d.Price
				sb.bestAskCache = &p
			}
		}
		if d.HasBest && sb.rng.Float64() < types.DesyncSampleRate && d.Best > 0 {
			mine := sb.bestAskLocked()
			if mine == nil || absF(*mine-d.Best) > types.Epsilon {
				healthy = false
			}
		}
	}

	sb.lastUpdateTime = time.Now()
	return healthy
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func (sb *ShadowBook) bestBidLocked() *float64 {
	if sb.bestBidCache != nil {
		return sb.bestBidCache
	}
	if len(sb.bids) == 0 {
		return nil
	}
	var best float64
	first := true
	for p := range sb.bids {
		if first || p > best {
			best = p
			first = false
		}
	}
	sb.bestBidCache = &best
	return sb.bestBidCache
}

func (sb *ShadowBook) bestAskLocked() *float64 {
	if sb.bestAskCache != nil {
		return sb.bestAskCache
	}
	if len(sb.asks) == 0 {
		return nil
	}
	var best float64
	first := true
	for p := range sb.asks {
		if first || p < best {
			best = p
			first = false
		}
	}
	sb.bestAskCache = &best
	return sb.bestAskCache
}

// GetBestBid returns the best bid, or (0, false) if the bid side is empty.
func (sb *ShadowBook) GetBestBid() (float64, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if b := sb.bestBidLocked(); b != nil {
		return *b, true
	}
	return 0, false
}

// GetBestAsk returns the best ask, or (0, false) if the ask side is empty.
func (sb *ShadowBook) GetBestAsk() (float64, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if a := sb.bestAskLocked(); a != nil {
		return *a, true
	}
	return 0, false
}

// GetMidPrice returns (best_bid+best_ask)/2, or (0, false) if either side is empty.
func (sb *ShadowBook) GetMidPrice() (float64, bool) {
	sb.mu.Lock()
	bid := sb.bestBidLocked()
	ask := sb.bestAskLocked()
	sb.mu.Unlock()
	if bid == nil || ask == nil {
		return 0, false
	}
	return (*bid + *ask) / 2, true
}

// LastUpdateTime returns the time of the last applied snapshot or delta, the
// zero time if none has ever been applied. C5's bootstrap gate uses this.
func (sb *ShadowBook) LastUpdateTime() time.Time {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.lastUpdateTime
}

// SetLastTradePrice safely parses and stores the last trade price, treating
// an empty string or unparsable value as ⊥.
func (sb *ShadowBook) SetLastTradePrice(raw string) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if strings.TrimSpace(raw) == "" {
		sb.lastTradePrice = nil
		return
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		sb.lastTradePrice = nil
		return
	}
	sb.lastTradePrice = &v
}

// LastTradePrice returns the last trade price, or (0, false) if unset.
func (sb *ShadowBook) LastTradePrice() (float64, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.lastTradePrice == nil {
		return 0, false
	}
	return *sb.lastTradePrice, true
}

// AssetID returns the asset id this ShadowBook tracks.
func (sb *ShadowBook) AssetID() string { return sb.assetID }
