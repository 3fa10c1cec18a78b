// Package strategy implements the Bands market-making strategy (C3): a pure
// function of orders, balances and a target price that decides which
// resting orders to cancel and which new orders to place.
//
// Band and Bands mirror poly_market_maker/strategies/bands.py. A Bands value
// is configuration — an ordered, non-overlapping list of Band — and is never
// mutated by a call; virtual bands for a given target price are computed as
// independent copies (see virtualBands), unlike the Python original which
// mutates the configured Band in place.
package strategy

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"polymarket-mm/pkg/types"
)

// Band is one configured liquidity band: a margin range and an amount range.
type Band struct {
	MinMargin float64
	AvgMargin float64
	MaxMargin float64
	MinAmount float64
	AvgAmount float64
	MaxAmount float64
}

// FromConfig builds a Band from the wire/config representation, validating
// the amount and margin orderings.
func FromConfig(b types.Band) (Band, error) {
	band := Band{
		MinMargin: b.MinMargin,
		AvgMargin: b.AvgMargin,
		MaxMargin: b.MaxMargin,
		MinAmount: b.MinAmount,
		AvgAmount: b.AvgAmount,
		MaxAmount: b.MaxAmount,
	}
	if band.MinAmount < 0 || band.AvgAmount < 0 || band.MaxAmount < 0 {
		return Band{}, fmt.Errorf("band amounts must be non-negative")
	}
	if !(band.MinAmount <= band.AvgAmount && band.AvgAmount <= band.MaxAmount) {
		return Band{}, fmt.Errorf("band amounts must satisfy min <= avg <= max")
	}
	if !(band.MinMargin <= band.AvgMargin && band.AvgMargin <= band.MaxMargin) {
		return Band{}, fmt.Errorf("band margins must satisfy min <= avg <= max")
	}
	if !(band.MinMargin < band.MaxMargin) {
		return Band{}, fmt.Errorf("band min_margin must be strictly less than max_margin")
	}
	return band, nil
}

func round(v float64, decimals int) float64 {
	d := decimal.NewFromFloat(v).Round(int32(decimals))
	f, _ := d.Float64()
	return f
}

func applyMargin(price, margin float64) float64 {
	return round(price-margin, types.MaxDecimals)
}

// MinPrice returns the lower strict bound of the band at target price T.
func (b Band) MinPrice(target float64) float64 { return applyMargin(target, b.MaxMargin) }

// BuyPrice returns the BUY limit price for this band at target price T.
func (b Band) BuyPrice(target float64) float64 { return applyMargin(target, b.AvgMargin) }

// SellPrice returns the SELL limit price on the complementary token for this
// band at target price T: (1 - T) + avg_margin. Vanilla mode does not use it;
// NewOrders mirrors BuyPrice around T there instead.
func (b Band) SellPrice(target float64) float64 { return applyMargin(1-target, -b.AvgMargin) }

// MaxPrice returns the upper strict bound of the band at target price T.
func (b Band) MaxPrice(target float64) float64 { return applyMargin(target, b.MinMargin) }

// Includes reports whether order belongs to this band at target price T.
func (b Band) Includes(order types.Order, target float64, vanillaMode bool) bool {
	var price float64
	if order.Side == types.BUY {
		price = order.Price
	} else if vanillaMode {
		price = round(2*target-order.Price, types.MaxDecimals)
	} else {
		price = round(1-order.Price, types.MaxDecimals)
	}
	return price > b.MinPrice(target) && price < b.MaxPrice(target)
}

func (b Band) String() string {
	return fmt.Sprintf("Band[spread<%v,%v>, amount<%v,%v>]", b.MinMargin, b.MaxMargin, b.MinAmount, b.MaxAmount)
}

// ExcessiveOrders returns the orders within this band that must be cancelled
// to bring its aggregate size back at or below MaxAmount.
//
// Sort order depends on position: the first band cancels orders nearest the
// target price first; the last band cancels orders furthest from the target
// price first; every other band cancels the smallest orders first (see
// DESIGN.md open-question #1 for why this differs from the Python source's
// pop()-from-end mechanics).
func (b Band) ExcessiveOrders(orders []types.Order, target float64, isFirst, isLast, vanillaMode bool, logger *slog.Logger) []types.Order {
	var inBand []types.Order
	for _, o := range orders {
		if b.Includes(o, target, vanillaMode) {
			inBand = append(inBand, o)
		}
	}

	switch {
	case isFirst:
		sort.SliceStable(inBand, func(i, j int) bool {
			return absF(inBand[i].Price-target) > absF(inBand[j].Price-target)
		})
	case isLast:
		sort.SliceStable(inBand, func(i, j int) bool {
			return absF(inBand[i].Price-target) < absF(inBand[j].Price-target)
		})
	default:
		sort.SliceStable(inBand, func(i, j int) bool {
			return inBand[i].Size < inBand[j].Size
		})
	}

	var amount float64
	for _, o := range inBand {
		amount += o.Size
	}

	var toCancel []types.Order
	for amount > b.MaxAmount && len(inBand) > 0 {
		var victim types.Order
		switch {
		case isFirst, isLast:
			// Remove from the tail: furthest-from-target (first band, reversed
			// sort) or nearest-to-target (last band) is already sorted to the
			// front, so the tail holds what we cancel first in arrival order.
			victim = inBand[len(inBand)-1]
			inBand = inBand[:len(inBand)-1]
		default:
			victim = inBand[0]
			inBand = inBand[1:]
		}
		toCancel = append(toCancel, victim)
		amount -= victim.Size
	}

	if len(toCancel) > 0 && logger != nil {
		logger.Info("band has excessive amount, scheduling cancellation",
			"band", b.String(), "count", len(toCancel))
	}
	return toCancel
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Bands is an ordered, non-overlapping configuration of Band.
type Bands struct {
	bands  []Band
	logger *slog.Logger
}

// NewBands validates and constructs a Bands configuration.
func NewBands(cfg []types.Band, logger *slog.Logger) (*Bands, error) {
	bands := make([]Band, 0, len(cfg))
	for _, c := range cfg {
		b, err := FromConfig(c)
		if err != nil {
			return nil, fmt.Errorf("invalid band config: %w", err)
		}
		bands = append(bands, b)
	}
	if bandsOverlap(bands) {
		return nil, fmt.Errorf("bands in the config overlap")
	}
	return &Bands{bands: bands, logger: logger}, nil
}

func bandsOverlap(bands []Band) bool {
	overlaps := func(a, b Band) bool {
		return a.MinMargin < b.MaxMargin && b.MinMargin < a.MaxMargin
	}
	for _, a := range bands {
		count := 0
		for _, b := range bands {
			if overlaps(a, b) {
				count++
			}
		}
		if count > 1 {
			return true
		}
	}
	return false
}

// virtualBands returns the subset of configured bands usable at target
// price T, each as an independent copy with AvgMargin rebased if needed.
// The configured []Band is never mutated.
func (bs *Bands) virtualBands(target float64) []Band {
	if target <= 0 {
		return nil
	}
	var out []Band
	for _, b := range bs.bands {
		if b.MaxPrice(target) <= 0 {
			continue
		}
		virtual := b
		if virtual.BuyPrice(target) <= 0 {
			virtual.AvgMargin = target - types.MinTick
		}
		out = append(out, virtual)
	}
	return out
}

// excessiveOrders collects cancellable orders across all virtual bands.
func (bs *Bands) excessiveOrders(orders []types.Order, bands []Band, target float64, vanillaMode bool) []types.Order {
	var out []types.Order
	for i, b := range bands {
		out = append(out, b.ExcessiveOrders(orders, target, i == 0, i == len(bands)-1, vanillaMode, bs.logger)...)
	}
	return out
}

// outsideAnyBandOrders returns orders that don't belong to any virtual band.
func (bs *Bands) outsideAnyBandOrders(orders []types.Order, bands []Band, target float64, vanillaMode bool) []types.Order {
	var out []types.Order
	for _, o := range orders {
		included := false
		for _, b := range bands {
			if b.Includes(o, target, vanillaMode) {
				included = true
				break
			}
		}
		if !included {
			out = append(out, o)
		}
	}
	return out
}

// CancellableOrders returns the union of excessive and outside-any-band
// orders at target price T, or all orders if target is nil (⊥).
func (bs *Bands) CancellableOrders(orders []types.Order, target *float64, vanillaMode bool) []types.Order {
	if target == nil {
		return append([]types.Order(nil), orders...)
	}
	bands := bs.virtualBands(*target)
	out := bs.excessiveOrders(orders, bands, *target, vanillaMode)
	out = append(out, bs.outsideAnyBandOrders(orders, bands, *target, vanillaMode)...)
	return out
}

func newOrderIsValid(price, size float64) bool {
	return price > 0 && price < 1.0 && size >= types.MinSize
}

// NewOrders returns the orders to place to bring every virtual band's
// aggregate size at target price T up toward AvgAmount, given the current
// orders already belonging to buyToken's bands and the free balances
// available. collateralBalance and tokenBalance are NOT mutated; the caller
// (StrategyManager / the multi-token wrapper in strategy.go) is responsible
// for decrementing its own running totals across calls.
func (bs *Bands) NewOrders(orders []types.Order, collateralBalance, tokenBalance, target float64, buyToken types.Token, vanillaMode bool) []types.Order {
	sellToken := buyToken.Complement()
	if vanillaMode {
		sellToken = buyToken
	}

	var placed []types.Order
	for _, band := range bs.virtualBands(target) {
		var bandAmount float64
		for _, o := range orders {
			if band.Includes(o, target, vanillaMode) {
				bandAmount += o.Size
			}
		}
		if bandAmount >= band.MinAmount {
			continue
		}

		var sellPrice float64
		if vanillaMode {
			spread := target - band.BuyPrice(target)
			sellPrice = round(target+spread, types.MaxDecimals)
		} else {
			sellPrice = band.SellPrice(target)
		}
		sellSize := round(minF(band.AvgAmount-bandAmount, tokenBalance), types.MaxDecimals)
		if newOrderIsValid(sellPrice, sellSize) {
			placed = append(placed, types.Order{Side: types.SELL, Token: sellToken, Price: sellPrice, Size: sellSize})
			bandAmount += sellSize
			tokenBalance -= sellSize
		}

		if bandAmount < band.AvgAmount {
			buyPrice := band.BuyPrice(target)
			var buySize float64
			if buyPrice > 0 {
				buySize = round(minF(band.AvgAmount-bandAmount, collateralBalance/buyPrice), types.MaxDecimals)
			}
			if newOrderIsValid(buyPrice, buySize) {
				placed = append(placed, types.Order{Side: types.BUY, Token: buyToken, Price: buyPrice, Size: buySize})
				collateralBalance -= buySize * buyPrice
			}
		}
	}
	return placed
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
