// Package pricelistener implements PriceListener (C2): a single WebSocket
// connection to the market-data feed for one asset, feeding snapshot/delta
// events into a ShadowBook and debouncing a caller-supplied callback.
//
// Grounded on original_source/poly_market_maker/price_listener.py for the
// connect/subscribe/debounce/reconnect semantics, and the teacher's
// internal/exchange/ws.go for the Go dial-and-dispatch idiom — but unlike
// ws.go's exponential backoff, reconnection here uses the fixed 5-second
// delay the Python source uses.
package pricelistener

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"polymarket-mm/internal/metrics"
	"polymarket-mm/internal/shadowbook"
	"polymarket-mm/pkg/types"
)

const (
	reconnectDelay = 5 * time.Second
	writeTimeout   = 10 * time.Second
	dialTimeout    = 10 * time.Second
)

// wireEnvelope is the minimal shape needed to route an incoming message; the
// wire's discriminator key is "event_type" per spec.md's canonical format
// (some deployed variants of the original Python use "type" instead — see
// DESIGN.md open question #5 for why event_type was chosen as canonical).
type wireEnvelope struct {
	EventType string `json:"event_type"`
}

// PriceListener maintains a single WebSocket connection subscribed to one
// asset id, applying book/price_change events to a ShadowBook and invoking
// OnUpdate at most once per DebounceInterval.
type PriceListener struct {
	wsURL           string
	assetID         string
	conditionID     string
	book            *shadowbook.ShadowBook
	debounceInterval time.Duration
	onUpdate        func()
	metrics         metrics.Recorder

	logger *slog.Logger

	mu              sync.Mutex
	conn            *websocket.Conn
	lastTriggerTime time.Time
}

// Config configures a PriceListener.
type Config struct {
	WSURL            string
	AssetID          string
	ConditionID      string // expected value of a "book" event's market field
	Book             *shadowbook.ShadowBook
	DebounceInterval time.Duration // 0 disables debouncing
	OnUpdate         func()
	Metrics          metrics.Recorder // defaults to metrics.NoOp{} if nil
	Logger           *slog.Logger
}

// New constructs a PriceListener. It does not connect until Run is called.
func New(cfg Config) *PriceListener {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rec := cfg.Metrics
	if rec == nil {
		rec = metrics.NoOp{}
	}
	return &PriceListener{
		wsURL:            cfg.WSURL,
		assetID:          cfg.AssetID,
		conditionID:      cfg.ConditionID,
		book:             cfg.Book,
		debounceInterval: cfg.DebounceInterval,
		onUpdate:         cfg.OnUpdate,
		metrics:          rec,
		logger:           logger.With("component", "price_listener", "asset_id", cfg.AssetID),
	}
}

// Run connects and maintains the WebSocket connection, reconnecting after a
// fixed 5-second delay on any error. Blocks until ctx is cancelled.
func (p *PriceListener) Run(ctx context.Context) error {
	for {
		err := p.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		p.logger.Warn("price listener disconnected, reconnecting", "error", err, "delay", reconnectDelay)
		p.metrics.WSReconnect(p.assetID)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (p *PriceListener) connectAndRead(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, p.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		conn.Close()
		p.conn = nil
		p.mu.Unlock()
	}()

	sub := types.WSSubscribeMsg{Type: "market", AssetsIDs: []string{p.assetID}}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	p.logger.Info("price listener connected")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		p.handleMessage(msg)
	}
}

func (p *PriceListener) handleMessage(data []byte) {
	// The feed may deliver a single object or a JSON array of objects.
	var batch []json.RawMessage
	if err := json.Unmarshal(data, &batch); err != nil {
		batch = []json.RawMessage{data}
	}
	for _, raw := range batch {
		p.handleOne(raw)
	}
}

func (p *PriceListener) handleOne(raw json.RawMessage) {
	var env wireEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		p.logger.Debug("ignoring non-json message", "data", string(raw))
		return
	}

	switch env.EventType {
	case "book":
		var snap types.BookSnapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			p.logger.Error("unmarshal book event", "error", err)
			return
		}
		if snap.Market != "" && snap.Market != p.conditionID {
			return
		}
		if snap.AssetID != "" && snap.AssetID != p.assetID {
			return
		}
		p.book.ApplySnapshot(snap.Bids, snap.Asks)
		p.book.SetLastTradePrice(snap.LastTradePrice)
		p.triggerDebounced()

	case "price_change":
		var evt struct {
			PriceChanges []types.PriceChange `json:"price_changes"`
		}
		if err := json.Unmarshal(raw, &evt); err != nil {
			p.logger.Error("unmarshal price_change event", "error", err)
			return
		}
		for _, chg := range evt.PriceChanges {
			if chg.AssetID != "" && chg.AssetID != p.assetID {
				continue
			}
			p.applyPriceChange(chg)
		}
		p.triggerDebounced()

	default:
		p.logger.Debug("ignoring event", "event_type", env.EventType)
	}
}

func (p *PriceListener) applyPriceChange(chg types.PriceChange) {
	side := shadowbook.SideBuy
	if chg.Side == "sell" {
		side = shadowbook.SideSell
	}
	price, okPrice := parseFloat(chg.Price)
	size, okSize := parseFloat(chg.Size)
	if !okPrice || !okSize {
		p.logger.Warn("malformed price_change entry, treating as desync", "price", chg.Price, "size", chg.Size)
		p.metrics.Desync(p.assetID)
		p.forceReconnect()
		return
	}

	d := shadowbook.Delta{Side: side, Price: price, Size: size}
	if best := chg.BestBid; side == shadowbook.SideBuy && best != "" {
		if v, ok := parseFloat(best); ok {
			d.HasBest = true
			d.Best = v
		}
	}
	if best := chg.BestAsk; side == shadowbook.SideSell && best != "" {
		if v, ok := parseFloat(best); ok {
			d.HasBest = true
			d.Best = v
		}
	}

	if healthy := p.book.ApplyDelta(d); !healthy {
		p.logger.Warn("shadow book desync detected, forcing reconnect", "asset_id", p.assetID)
		p.metrics.Desync(p.assetID)
		p.forceReconnect()
	}
}

// forceReconnect closes the live connection so the Run loop's read error
// drives a reconnect, which re-subscribes and implicitly re-syncs via the
// server's initial book snapshot.
func (p *PriceListener) forceReconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		p.conn.Close()
	}
}

// triggerDebounced invokes onUpdate at most once per debounceInterval,
// measured against a monotonic clock (time.Now() on this platform is
// already monotonic-safe for subtraction).
func (p *PriceListener) triggerDebounced() {
	if p.onUpdate == nil {
		return
	}
	now := time.Now()

	p.mu.Lock()
	elapsed := now.Sub(p.lastTriggerTime)
	if p.debounceInterval > 0 && elapsed < p.debounceInterval {
		p.mu.Unlock()
		return
	}
	p.lastTriggerTime = now
	p.mu.Unlock()

	p.onUpdate()
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil
}

func parseFloatOr(s string, def float64) float64 {
	if v, ok := parseFloat(s); ok {
		return v
	}
	return def
}
