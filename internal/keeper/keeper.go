// Package keeper wires C1-C5 and the exchange adapter into a single running
// process: it resolves the configured market, builds the ShadowBook,
// PriceListener, OrderBookManager, Strategy and sync loop, and manages their
// goroutine lifecycle.
//
// Grounded on the teacher's internal/engine/engine.go for the
// context/WaitGroup start/stop pattern, reduced from multi-market scanning
// to the single resolved market this spec tracks.
package keeper

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"polymarket-mm/internal/config"
	"polymarket-mm/internal/exchange"
	"polymarket-mm/internal/market"
	"polymarket-mm/internal/metrics"
	"polymarket-mm/internal/orderbook"
	"polymarket-mm/internal/pricelistener"
	"polymarket-mm/internal/shadowbook"
	"polymarket-mm/internal/strategy"
	"polymarket-mm/internal/syncloop"
	"polymarket-mm/pkg/types"
)

// Keeper owns the lifecycle of every subsystem for the one market it trades.
type Keeper struct {
	cfg    config.Config
	client *exchange.Client
	auth   *exchange.Auth
	market types.MarketRef

	book     *shadowbook.ShadowBook
	listener *pricelistener.PriceListener
	obm      *orderbook.Manager
	sync     *syncloop.Manager

	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New resolves the configured market and wires every component together.
// It derives L2 API credentials via L1 auth if none are configured.
func New(cfg config.Config, logger *slog.Logger, rec metrics.Recorder) (*Keeper, error) {
	if rec == nil {
		rec = metrics.NoOp{}
	}

	auth, err := exchange.NewAuth(cfg)
	if err != nil {
		return nil, fmt.Errorf("build auth: %w", err)
	}
	client := exchange.NewClient(cfg, auth, logger)

	if !auth.HasL2Credentials() {
		logger.Info("no L2 credentials configured, deriving API key via L1 auth")
		creds, err := client.DeriveAPIKey(context.Background())
		if err != nil {
			return nil, fmt.Errorf("derive API key: %w", err)
		}
		auth.SetCredentials(*creds)
	}

	resolver := market.NewResolver(cfg.API.GammaBaseURL, logger)
	mkt, err := resolver.Resolve(context.Background(), cfg.Market.ConditionID)
	if err != nil {
		return nil, fmt.Errorf("resolve market: %w", err)
	}

	strat, err := strategy.New(cfg.Strategy, logger)
	if err != nil {
		return nil, fmt.Errorf("build strategy: %w", err)
	}

	book := shadowbook.New(mkt.AssetIDA, rand.New(rand.NewSource(time.Now().UnixNano())))

	obm := orderbook.New(orderbook.Config{
		Workers:        cfg.Sync.Workers,
		ReconcileEvery: cfg.Sync.ReconcileEvery,
		GetOrders:      client.GetOrders,
		GetBalances: func(ctx context.Context) (types.Balances, error) {
			return client.GetBalances(ctx, mkt)
		},
		PlaceOrders: func(ctx context.Context, orders []types.Order) ([]types.Order, error) {
			return client.PostOrders(ctx, orders, mkt)
		},
		CancelOrders:    client.CancelOrders,
		CancelAllOrders: client.CancelAll,
		Logger:          logger,
		Metrics:         rec,
	})

	syncMgr := syncloop.New(syncloop.Config{
		Book:         book,
		OrderBookMgr: obm,
		Strategy:     strat,
		TickInterval: cfg.Sync.TickInterval,
		Metrics:      rec,
		Logger:       logger,
	})

	listener := pricelistener.New(pricelistener.Config{
		WSURL:            cfg.API.WSMarketURL,
		AssetID:          mkt.AssetIDA,
		ConditionID:      mkt.ConditionID,
		Book:             book,
		DebounceInterval: cfg.Sync.DebounceInterval,
		OnUpdate:         func() { syncMgr.Synchronize(context.Background(), nil) },
		Metrics:          rec,
		Logger:           logger,
	})

	ctx, cancel := context.WithCancel(context.Background())

	return &Keeper{
		cfg:      cfg,
		client:   client,
		auth:     auth,
		market:   mkt,
		book:     book,
		listener: listener,
		obm:      obm,
		sync:     syncMgr,
		logger:   logger.With("component", "keeper"),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Market returns the resolved market this keeper trades.
func (k *Keeper) Market() types.MarketRef { return k.market }

// Book returns the tracked ShadowBook, for wiring the operational HTTP surface.
func (k *Keeper) Book() *shadowbook.ShadowBook { return k.book }

// OrderBookManager returns the order book manager, for wiring the
// operational HTTP surface.
func (k *Keeper) OrderBookManager() *orderbook.Manager { return k.obm }

// Start launches the price listener, order book manager, and sync loop goroutines.
func (k *Keeper) Start() {
	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		if err := k.listener.Run(k.ctx); err != nil && k.ctx.Err() == nil {
			k.logger.Error("price listener stopped", "error", err)
		}
	}()

	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		k.obm.Run(k.ctx)
	}()

	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		k.sync.Run(k.ctx)
	}()

	k.logger.Info("keeper started", "condition_id", k.market.ConditionID)
}

// Stop cancels every goroutine, waits for them to exit, then cancels all
// resting orders on the exchange as a safety net.
func (k *Keeper) Stop() {
	k.logger.Info("shutting down")
	k.cancel()
	k.wg.Wait()

	cancelCtx, cancelCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelCancel()
	if _, err := k.client.CancelAll(cancelCtx); err != nil {
		k.logger.Error("failed to cancel all orders on shutdown", "error", err)
	}
	k.logger.Info("shutdown complete")
}
