// Package opstatus is the keeper's operational HTTP surface: a liveness
// probe and a read-only snapshot of current book/order state. It carries no
// P&L or risk fields — this spec's data model has neither.
package opstatus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"polymarket-mm/internal/orderbook"
	"polymarket-mm/internal/shadowbook"
	"polymarket-mm/pkg/types"
)

// Snapshot is the JSON shape returned by GET /snapshot.
type Snapshot struct {
	Market        types.MarketRef `json:"market"`
	BestBid       *float64        `json:"best_bid,omitempty"`
	BestAsk       *float64        `json:"best_ask,omitempty"`
	MidPrice      *float64        `json:"mid_price,omitempty"`
	BookUpdatedAt time.Time       `json:"book_updated_at"`
	Orders        []types.Order   `json:"orders"`
	Balances      types.Balances  `json:"balances"`
}

// Server serves /health and /snapshot over plain HTTP.
type Server struct {
	market  types.MarketRef
	book    *shadowbook.ShadowBook
	obm     *orderbook.Manager
	http    *http.Server
	logger  *slog.Logger
}

// Config configures the operational HTTP server.
type Config struct {
	Port   int
	Market types.MarketRef
	Book   *shadowbook.ShadowBook
	OBM    *orderbook.Manager
	Logger *slog.Logger
}

// NewServer builds an opstatus.Server. It does not start listening until Start is called.
func NewServer(cfg Config) *Server {
	s := &Server{
		market: cfg.Market,
		book:   cfg.Book,
		obm:    cfg.OBM,
		logger: cfg.Logger.With("component", "opstatus"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/snapshot", s.handleSnapshot)

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start blocks serving HTTP until Stop is called, returning http.ErrServerClosed as nil.
func (s *Server) Start() error {
	s.logger.Info("operational HTTP server starting", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("opstatus server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := Snapshot{
		Market:        s.market,
		BookUpdatedAt: s.book.LastUpdateTime(),
	}
	if bid, ok := s.book.GetBestBid(); ok {
		snap.BestBid = &bid
	}
	if ask, ok := s.book.GetBestAsk(); ok {
		snap.BestAsk = &ask
	}
	if mid, ok := s.book.GetMidPrice(); ok {
		snap.MidPrice = &mid
	}

	ob := s.obm.GetOrderBook()
	snap.Orders = ob.Orders()
	snap.Balances = ob.Balances()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.logger.Error("encode snapshot", "error", err)
	}
}
