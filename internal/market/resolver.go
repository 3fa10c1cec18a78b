// Package market resolves the single configured condition id this keeper
// trades into its two outcome asset ids and tick size, via the Gamma API.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"polymarket-mm/pkg/types"
)

// gammaMarket is the subset of the Gamma API's market JSON this keeper needs.
type gammaMarket struct {
	ConditionID           string `json:"conditionId"`
	Active                bool   `json:"active"`
	Closed                bool   `json:"closed"`
	AcceptingOrders       bool   `json:"acceptingOrders"`
	EnableOrderBook       bool   `json:"enableOrderBook"`
	ClobTokenIds          string `json:"clobTokenIds"`
	OrderPriceMinTickSize float64 `json:"orderPriceMinTickSize"`
	OrderMinSize          float64 `json:"orderMinSize"`
}

// Resolver looks up a condition id against the Gamma API and returns the
// MarketRef the rest of the keeper operates on.
type Resolver struct {
	http   *resty.Client
	logger *slog.Logger
}

// NewResolver creates a Resolver pointed at the given Gamma base URL.
func NewResolver(gammaBaseURL string, logger *slog.Logger) *Resolver {
	client := resty.New().
		SetBaseURL(gammaBaseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second)

	return &Resolver{http: client, logger: logger.With("component", "resolver")}
}

// Resolve fetches the market for conditionID and converts it into a
// types.MarketRef. It refuses markets that are inactive, closed, not
// accepting orders, lack an order book, or are missing either token id.
func (r *Resolver) Resolve(ctx context.Context, conditionID string) (types.MarketRef, error) {
	var results []gammaMarket
	resp, err := r.http.R().
		SetContext(ctx).
		SetQueryParam("condition_ids", conditionID).
		SetResult(&results).
		Get("/markets")
	if err != nil {
		return types.MarketRef{}, fmt.Errorf("fetch market %s: %w", conditionID, err)
	}
	if resp.StatusCode() != 200 {
		return types.MarketRef{}, fmt.Errorf("fetch market %s: status %d", conditionID, resp.StatusCode())
	}
	if len(results) == 0 {
		return types.MarketRef{}, fmt.Errorf("market %s not found", conditionID)
	}
	gm := results[0]

	if !gm.Active || gm.Closed || !gm.AcceptingOrders || !gm.EnableOrderBook {
		return types.MarketRef{}, fmt.Errorf("market %s is not tradable (active=%v closed=%v accepting_orders=%v order_book=%v)",
			conditionID, gm.Active, gm.Closed, gm.AcceptingOrders, gm.EnableOrderBook)
	}

	var tokenIDs []string
	if gm.ClobTokenIds != "" {
		if err := json.Unmarshal([]byte(gm.ClobTokenIds), &tokenIDs); err != nil {
			return types.MarketRef{}, fmt.Errorf("market %s: parse clobTokenIds: %w", conditionID, err)
		}
	}
	if len(tokenIDs) != 2 {
		return types.MarketRef{}, fmt.Errorf("market %s: expected 2 outcome tokens, got %d", conditionID, len(tokenIDs))
	}

	ref := types.MarketRef{
		ConditionID:  gm.ConditionID,
		AssetIDA:     tokenIDs[0],
		AssetIDB:     tokenIDs[1],
		TickSize:     tickSizeFromFloat(gm.OrderPriceMinTickSize),
		MinOrderSize: gm.OrderMinSize,
	}

	r.logger.Info("market resolved",
		"condition_id", ref.ConditionID,
		"asset_a", ref.AssetIDA,
		"asset_b", ref.AssetIDB,
		"tick_size", ref.TickSize,
	)
	return ref, nil
}

func tickSizeFromFloat(f float64) types.TickSize {
	switch strconv.FormatFloat(f, 'g', -1, 64) {
	case "0.1":
		return types.Tick01
	case "0.001":
		return types.Tick0001
	case "0.0001":
		return types.Tick00001
	default:
		return types.Tick001
	}
}
