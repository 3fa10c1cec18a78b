// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the keeper — tokens, orders,
// balances, bands, and WebSocket event payloads. It has no dependencies on
// internal packages, so it can be imported by any layer.
package types

import "time"

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of an order: BUY or SELL.
type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

// Token is the two-valued outcome tag for a binary market: A (YES) or B (NO).
type Token string

const (
	TokenA Token = "A"
	TokenB Token = "B"
)

// Complement returns the other outcome token.
func (t Token) Complement() Token {
	if t == TokenA {
		return TokenB
	}
	return TokenA
}

// BalanceKey identifies one of the three balances the keeper tracks:
// the collateral numeraire, or one of the two outcome tokens.
type BalanceKey string

const (
	Collateral BalanceKey = "COLLATERAL"
)

// Balances maps Collateral/TokenA/TokenB to a non-negative amount.
// Token balances are keyed by BalanceKey(token), so BalanceKey(TokenA) == "A".
type Balances map[BalanceKey]float64

// Of returns the balance for a token.
func (b Balances) Of(tok Token) float64 {
	return b[BalanceKey(tok)]
}

// SignatureType identifies the signing scheme for the CTF exchange contract.
type SignatureType int

const (
	SigEOA        SignatureType = 0 // externally-owned account (standard wallet)
	SigProxy      SignatureType = 1 // Polymarket proxy / Magic wallet
	SigGnosisSafe SignatureType = 2 // Gnosis Safe multisig
)

// TickSize represents the price granularity for a market.
type TickSize string

const (
	Tick01    TickSize = "0.1"
	Tick001   TickSize = "0.01"
	Tick0001  TickSize = "0.001"
	Tick00001 TickSize = "0.0001"
)

// Decimals returns the number of decimal places a price at this tick size
// is quoted to.
func (t TickSize) Decimals() int {
	switch t {
	case Tick01:
		return 1
	case Tick001:
		return 2
	case Tick0001:
		return 3
	case Tick00001:
		return 4
	default:
		return 2
	}
}

// AmountDecimals returns the rounding precision for USDC amounts at this tick size.
func (t TickSize) AmountDecimals() int {
	switch t {
	case Tick01:
		return 3
	case Tick001:
		return 4
	case Tick0001:
		return 5
	case Tick00001:
		return 6
	default:
		return 4
	}
}

// ————————————————————————————————————————————————————————————————————————
// Orders
// ————————————————————————————————————————————————————————————————————————

// Order is an immutable-once-placed resting order.
type Order struct {
	ID        string    // assigned by the exchange on acceptance; empty until then
	Side      Side
	Token     Token
	Price     float64
	Size      float64
	CreatedAt time.Time
}

// SignedOrder is the on-chain order format the CLOB API expects.
type SignedOrder struct {
	Salt          string        `json:"salt"`
	Maker         string        `json:"maker"`
	Signer        string        `json:"signer"`
	Taker         string        `json:"taker"`
	TokenID       string        `json:"tokenId"`
	MakerAmount   string        `json:"makerAmount"`
	TakerAmount   string        `json:"takerAmount"`
	Side          Side          `json:"side"`
	Expiration    string        `json:"expiration"`
	Nonce         string        `json:"nonce"`
	FeeRateBps    string        `json:"feeRateBps"`
	SignatureType SignatureType `json:"signatureType"`
	Signature     string        `json:"signature"`
}

// OrderPayload is the REST API request body for POST /orders.
type OrderPayload struct {
	Order     SignedOrder `json:"order"`
	Owner     string      `json:"owner"`
	OrderType string      `json:"orderType"`
}

// OrderResponse is the REST API response for one order in a batch POST.
type OrderResponse struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg"`
	OrderID  string `json:"orderID"`
	Status   string `json:"status"`
}

// OpenOrder represents a live resting order as returned by GET /orders.
type OpenOrder struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Market       string `json:"market"`
	AssetID      string `json:"asset_id"`
	Side         string `json:"side"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	Price        string `json:"price"`
}

// CancelResponse is returned by DELETE /orders, /cancel-all, /cancel-market-orders.
type CancelResponse struct {
	Success  bool     `json:"success"`
	Canceled []string `json:"canceled"`
}

// ————————————————————————————————————————————————————————————————————————
// Bands strategy configuration
// ————————————————————————————————————————————————————————————————————————

// Band is a configured price-range/size-range pair describing desired
// liquidity at a margin from the target price. See internal/strategy for
// the operations defined on it.
type Band struct {
	MinMargin float64 `json:"min_margin" mapstructure:"min_margin"`
	AvgMargin float64 `json:"avg_margin" mapstructure:"avg_margin"`
	MaxMargin float64 `json:"max_margin" mapstructure:"max_margin"`
	MinAmount float64 `json:"min_amount" mapstructure:"min_amount"`
	AvgAmount float64 `json:"avg_amount" mapstructure:"avg_amount"`
	MaxAmount float64 `json:"max_amount" mapstructure:"max_amount"`
}

// ————————————————————————————————————————————————————————————————————————
// Order book / ShadowBook
// ————————————————————————————————————————————————————————————————————————

// PriceLevel is a single bid or ask level as received over the wire.
// Price and Size are strings to preserve decimal precision from the feed.
type PriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// BookSnapshot is a full snapshot of one asset's order book, as received
// from the market-data WebSocket's "book" event.
type BookSnapshot struct {
	Market         string       `json:"market"`
	AssetID        string       `json:"asset_id"`
	Bids           []PriceLevel `json:"bids"`
	Asks           []PriceLevel `json:"asks"`
	LastTradePrice string       `json:"last_trade_price"`
}

// PriceChange is a single price-level delta within a "price_change" event.
type PriceChange struct {
	AssetID string `json:"asset_id"`
	Side    string `json:"side"` // "buy" or "sell"
	Price   string `json:"price"`
	Size    string `json:"size"`
	BestBid string `json:"best_bid"`
	BestAsk string `json:"best_ask"`
}

// WSSubscribeMsg is the subscription message sent on connect.
type WSSubscribeMsg struct {
	Type      string   `json:"type"`
	AssetsIDs []string `json:"assets_ids"`
}

// ————————————————————————————————————————————————————————————————————————
// Market identity
// ————————————————————————————————————————————————————————————————————————

// MarketRef is the resolved identity of the one market the keeper tracks:
// a condition id and the two asset ids it resolves to.
type MarketRef struct {
	ConditionID  string
	AssetIDA     string
	AssetIDB     string
	TickSize     TickSize
	MinOrderSize float64
}

// AssetID returns the asset id for the given token.
func (m MarketRef) AssetID(tok Token) string {
	if tok == TokenA {
		return m.AssetIDA
	}
	return m.AssetIDB
}

// TokenForAsset returns the token tag for a given asset id, and whether it matched.
func (m MarketRef) TokenForAsset(assetID string) (Token, bool) {
	switch assetID {
	case m.AssetIDA:
		return TokenA, true
	case m.AssetIDB:
		return TokenB, true
	default:
		return "", false
	}
}
