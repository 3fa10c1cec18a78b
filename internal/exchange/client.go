// Package exchange implements the CLOB REST client.
//
// The REST client (Client) talks to the exchange for order management:
//   - GetOrderBook:  GET  /book                — fetch L2 book for a token
//   - GetOrders:     GET  /orders              — fetch this account's resting orders
//   - GetBalances:   GET  /balances            — fetch collateral/token balances
//   - PostOrders:    POST /orders              — batch-place up to 15 orders
//   - CancelOrders:  DELETE /orders            — cancel specific orders by ID
//   - CancelAll:     DELETE /cancel-all         — emergency cancel everything
//   - DeriveAPIKey:  GET  /auth/derive-api-key — bootstrap L2 creds from L1 wallet
//
// Book reads, order placement and cancellation are rate-limited via
// per-category TokenBuckets; GetOrders, GetBalances and DeriveAPIKey are not.
// Every request is automatically retried on 5xx errors. Account and trading
// requests carry L2 HMAC headers, DeriveAPIKey carries L1 headers, and book
// reads carry none. In DryRun mode, mutating methods log and return
// fabricated success without making any HTTP call.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"polymarket-mm/internal/config"
	"polymarket-mm/pkg/types"
)

// Client is the CLOB REST API client. It wraps a resty HTTP client with
// rate limiting, retry, and auth.
type Client struct {
	http   *resty.Client
	auth   *Auth
	rl     *RateLimiter
	dryRun bool
	logger *slog.Logger
}

// NewClient creates a REST client with rate limiting and retry.
func NewClient(cfg config.Config, auth *Auth, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.API.CLOBBaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		auth:   auth,
		rl:     NewRateLimiter(),
		dryRun: cfg.DryRun,
		logger: logger,
	}
}

// GetOrderBook fetches the order book for a single asset.
func (c *Client) GetOrderBook(ctx context.Context, assetID string) (*types.BookSnapshot, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return nil, err
	}

	var result types.BookSnapshot
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token_id", assetID).
		SetResult(&result).
		Get("/book")
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get book: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &result, nil
}

// GetOrders fetches this account's currently resting orders across all
// tracked assets. Satisfies orderbook.GetOrdersFunc.
func (c *Client) GetOrders(ctx context.Context) ([]types.Order, error) {
	headers, err := c.auth.L2Headers("GET", "/orders", "")
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	var raw []types.OpenOrder
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&raw).
		Get("/orders")
	if err != nil {
		return nil, fmt.Errorf("get orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get orders: status %d: %s", resp.StatusCode(), resp.String())
	}

	orders := make([]types.Order, 0, len(raw))
	for _, o := range raw {
		price, _ := strconv.ParseFloat(o.Price, 64)
		origSize, _ := strconv.ParseFloat(o.OriginalSize, 64)
		matched, _ := strconv.ParseFloat(o.SizeMatched, 64)
		orders = append(orders, types.Order{
			ID:    o.ID,
			Side:  types.Side(o.Side),
			Price: price,
			Size:  origSize - matched,
		})
	}
	return orders, nil
}

// GetBalances fetches collateral and outcome-token balances for the
// given market. keeper.New adapts it to orderbook.GetBalancesFunc by
// binding the resolved market in a closure.
func (c *Client) GetBalances(ctx context.Context, market types.MarketRef) (types.Balances, error) {
	headers, err := c.auth.L2Headers("GET", "/balances", "")
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	var raw struct {
		Collateral string `json:"collateral"`
		A          string `json:"token_a"`
		B          string `json:"token_b"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetQueryParam("market", market.ConditionID).
		SetResult(&raw).
		Get("/balances")
	if err != nil {
		return nil, fmt.Errorf("get balances: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get balances: status %d: %s", resp.StatusCode(), resp.String())
	}

	collateral, _ := strconv.ParseFloat(raw.Collateral, 64)
	tokenA, _ := strconv.ParseFloat(raw.A, 64)
	tokenB, _ := strconv.ParseFloat(raw.B, 64)
	return types.Balances{
		types.Collateral:                collateral,
		types.BalanceKey(types.TokenA):  tokenA,
		types.BalanceKey(types.TokenB):  tokenB,
	}, nil
}

// buildOrderPayload converts a resting-order intent into the on-chain
// SignedOrder + metadata the REST API expects, converting human-readable
// price/size to big.Int maker/taker amounts at the market's tick precision.
// The maker is the funder wallet (proxy), the signer is the EOA, and the
// taker is the zero address (open order, anyone can fill). The order itself
// is not signed: its Signature field is left empty, and only the HTTP
// request is authenticated, via L2 HMAC headers.
func (c *Client) buildOrderPayload(order types.Order, tokenID string, tickSize types.TickSize) types.OrderPayload {
	makerAmt, takerAmt := PriceToAmounts(order.Price, order.Size, order.Side, tickSize)

	return types.OrderPayload{
		Order: types.SignedOrder{
			Salt:          uuid.NewString(),
			Maker:         c.auth.FunderAddress().Hex(),
			Signer:        c.auth.Address().Hex(),
			Taker:         "0x0000000000000000000000000000000000000000",
			TokenID:       tokenID,
			MakerAmount:   makerAmt.String(),
			TakerAmount:   takerAmt.String(),
			Side:          order.Side,
			Expiration:    "0",
			Nonce:         "0",
			FeeRateBps:    "0",
			SignatureType: c.auth.sigType,
		},
		Owner:     c.auth.creds.ApiKey,
		OrderType: "GTC",
	}
}

// PostOrders places up to 15 orders in a batch against the given market.
func (c *Client) PostOrders(ctx context.Context, orders []types.Order, market types.MarketRef) ([]types.Order, error) {
	if len(orders) == 0 {
		return nil, nil
	}
	if len(orders) > 15 {
		return nil, fmt.Errorf("batch limit is 15 orders, got %d", len(orders))
	}
	if c.dryRun {
		c.logger.Info("DRY-RUN: would post orders", "count", len(orders))
		accepted := make([]types.Order, len(orders))
		for i, o := range orders {
			o.ID = "dry-run-" + uuid.NewString()
			accepted[i] = o
		}
		return accepted, nil
	}
	if err := c.rl.Order.Wait(ctx); err != nil {
		return nil, err
	}

	payloads := make([]types.OrderPayload, len(orders))
	for i, order := range orders {
		payloads[i] = c.buildOrderPayload(order, market.AssetID(order.Token), market.TickSize)
	}

	body, err := json.Marshal(payloads)
	if err != nil {
		return nil, fmt.Errorf("marshal orders: %w", err)
	}
	headers, err := c.auth.L2Headers("POST", "/orders", string(body))
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	var results []types.OrderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(payloads).
		SetResult(&results).
		Post("/orders")
	if err != nil {
		return nil, fmt.Errorf("post orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("post orders: status %d: %s", resp.StatusCode(), resp.String())
	}

	accepted := make([]types.Order, 0, len(results))
	for i, result := range results {
		if result.Success && result.OrderID != "" {
			o := orders[i]
			o.ID = result.OrderID
			accepted = append(accepted, o)
		} else if result.ErrorMsg != "" {
			c.logger.Error("order rejected", "error", result.ErrorMsg, "side", orders[i].Side, "price", orders[i].Price)
		}
	}
	return accepted, nil
}

// CancelOrders cancels multiple orders by ID.
func (c *Client) CancelOrders(ctx context.Context, orderIDs []string) ([]string, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel orders", "count", len(orderIDs))
		return orderIDs, nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return nil, err
	}

	payload := struct {
		OrderIDs []string `json:"orderIDs"`
	}{OrderIDs: orderIDs}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal cancel request: %w", err)
	}
	headers, err := c.auth.L2Headers("DELETE", "/orders", string(body))
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	var result types.CancelResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(json.RawMessage(body)).
		SetResult(&result).
		Delete("/orders")
	if err != nil {
		return nil, fmt.Errorf("cancel orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("cancel orders: status %d: %s", resp.StatusCode(), resp.String())
	}

	c.logger.Info("orders cancelled", "count", len(result.Canceled))
	return result.Canceled, nil
}

// CancelAll cancels every open order for the configured account.
func (c *Client) CancelAll(ctx context.Context) ([]string, error) {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel all orders")
		return nil, nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return nil, err
	}

	headers, err := c.auth.L2Headers("DELETE", "/cancel-all", "")
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	var result types.CancelResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Delete("/cancel-all")
	if err != nil {
		return nil, fmt.Errorf("cancel all: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("cancel all: status %d: %s", resp.StatusCode(), resp.String())
	}

	c.logger.Warn("all orders cancelled", "count", len(result.Canceled))
	return result.Canceled, nil
}

// DeriveAPIKey derives L2 API credentials via L1 authentication.
func (c *Client) DeriveAPIKey(ctx context.Context) (*Credentials, error) {
	headers, err := c.auth.L1Headers(0)
	if err != nil {
		return nil, fmt.Errorf("l1 headers: %w", err)
	}

	var result Credentials
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Get("/auth/derive-api-key")
	if err != nil {
		return nil, fmt.Errorf("derive api key: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("derive api key: status %d: %s", resp.StatusCode(), resp.String())
	}

	c.auth.SetCredentials(result)
	c.logger.Info("API key derived", "api_key", result.ApiKey)
	return &result, nil
}
