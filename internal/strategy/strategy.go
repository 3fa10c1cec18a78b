package strategy

import (
	"log/slog"

	"polymarket-mm/pkg/types"
)

// Config is the strategy's JSON/YAML configuration surface (see SPEC_FULL.md §6).
type Config struct {
	Bands        []types.Band  `mapstructure:"bands" json:"bands"`
	ActiveTokens []types.Token `mapstructure:"active_tokens" json:"active_tokens"`
	VanillaMode  bool          `mapstructure:"vanilla_mode" json:"vanilla_mode"`
}

// Strategy is the Bands strategy (C3): a pure function from orders,
// balances, and per-token target prices to (orders_to_cancel, orders_to_place).
type Strategy struct {
	bands        *Bands
	activeTokens []types.Token
	vanillaMode  bool
	logger       *slog.Logger
}

// New builds a Strategy from Config, validating band non-overlap.
func New(cfg Config, logger *slog.Logger) (*Strategy, error) {
	bands, err := NewBands(cfg.Bands, logger)
	if err != nil {
		return nil, err
	}
	tokens := cfg.ActiveTokens
	if len(tokens) == 0 {
		tokens = []types.Token{types.TokenA, types.TokenB}
	}
	return &Strategy{bands: bands, activeTokens: tokens, vanillaMode: cfg.VanillaMode, logger: logger}, nil
}

// belongsToToken reports whether order is managed as part of tok's band set.
// Vanilla mode: the order trades the same token (buy and sell both token tok).
// Arbitrage mode: a BUY of tok, or a SELL of tok's complement (sold to fund tok's buys).
func (s *Strategy) belongsToToken(o types.Order, tok types.Token) bool {
	if s.vanillaMode {
		return o.Token == tok
	}
	return (o.Side == types.BUY && o.Token == tok) || (o.Side == types.SELL && o.Token != tok)
}

func (s *Strategy) ordersForToken(orders []types.Order, tok types.Token) []types.Order {
	var out []types.Order
	for _, o := range orders {
		if s.belongsToToken(o, tok) {
			out = append(out, o)
		}
	}
	return out
}

// GetOrders computes the cancel and place sets for all active tokens given
// the current order book and the per-token target prices. It mirrors
// BandsStrategy.get_orders from the original source: cancels are computed
// first across all tokens, then placement is computed against the
// resulting free balances, decremented as each placement is emitted so
// later bands/tokens see the reduced free balance.
func (s *Strategy) GetOrders(orders []types.Order, balances types.Balances, targetPrices map[types.Token]float64) (toCancel, toPlace []types.Order) {
	cancelSet := map[types.Order]bool{}
	for _, tok := range s.activeTokens {
		target := targetPrices[tok]
		tokOrders := s.ordersForToken(orders, tok)
		cancelled := s.bands.CancellableOrders(tokOrders, &target, s.vanillaMode)
		for _, c := range cancelled {
			if !cancelSet[c] {
				cancelSet[c] = true
				toCancel = append(toCancel, c)
			}
		}
	}

	openOrders := make([]types.Order, 0, len(orders))
	for _, o := range orders {
		if !cancelSet[o] {
			openOrders = append(openOrders, o)
		}
	}

	var lockedByBuys float64
	for _, o := range openOrders {
		if o.Side == types.BUY {
			lockedByBuys += o.Size * o.Price
		}
	}
	freeCollateral := balances[types.Collateral] - lockedByBuys

	for _, tok := range s.activeTokens {
		target := targetPrices[tok]
		tokOrders := s.ordersForToken(openOrders, tok)

		sellToken := tok.Complement()
		if s.vanillaMode {
			sellToken = tok
		}
		var lockedBySells float64
		for _, o := range tokOrders {
			if o.Side == types.SELL {
				lockedBySells += o.Size
			}
		}
		freeToken := balances.Of(sellToken) - lockedBySells

		placed := s.bands.NewOrders(tokOrders, freeCollateral, freeToken, target, tok, s.vanillaMode)
		for _, o := range placed {
			if o.Side == types.BUY {
				freeCollateral -= o.Size * o.Price
			}
		}
		toPlace = append(toPlace, placed...)
	}

	return toCancel, toPlace
}
