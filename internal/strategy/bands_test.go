package strategy

import (
	"testing"

	"polymarket-mm/pkg/types"
)

func band(minM, avgM, maxM, minA, avgA, maxA float64) types.Band {
	return types.Band{MinMargin: minM, AvgMargin: avgM, MaxMargin: maxM, MinAmount: minA, AvgAmount: avgA, MaxAmount: maxA}
}

func TestBandsOverlapRejected(t *testing.T) {
	t.Parallel()
	_, err := NewBands([]types.Band{
		band(0.0, 0.01, 0.02, 0, 5, 10),
		band(0.01, 0.02, 0.03, 0, 5, 10),
	}, nil)
	if err == nil {
		t.Fatal("expected overlap error, got nil")
	}
}

func TestBandsNonOverlappingAccepted(t *testing.T) {
	t.Parallel()
	_, err := NewBands([]types.Band{
		band(0.0, 0.01, 0.02, 0, 5, 10),
		band(0.02, 0.03, 0.04, 0, 5, 10),
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// S3: order at the strict boundary is excluded and falls into outside-any-band.
func TestCancellableOrdersOutsideAnyBand(t *testing.T) {
	t.Parallel()
	bs, err := NewBands([]types.Band{band(0.01, 0.02, 0.03, 5, 10, 20)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	orders := []types.Order{{Side: types.BUY, Token: types.TokenA, Price: 0.47, Size: 25}}
	target := 0.50
	cancel := bs.CancellableOrders(orders, &target, false)
	if len(cancel) != 1 || cancel[0].Price != 0.47 {
		t.Fatalf("expected the boundary order to be cancelled, got %+v", cancel)
	}
}

func TestCancellableOrdersNilTargetCancelsAll(t *testing.T) {
	t.Parallel()
	bs, err := NewBands([]types.Band{band(0.01, 0.02, 0.03, 5, 10, 20)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	orders := []types.Order{{Side: types.BUY, Price: 0.48, Size: 1}, {Side: types.SELL, Price: 0.52, Size: 1}}
	cancel := bs.CancellableOrders(orders, nil, false)
	if len(cancel) != 2 {
		t.Fatalf("expected all orders cancelled when target is nil, got %d", len(cancel))
	}
}

func TestVirtualBandsDoesNotMutateConfig(t *testing.T) {
	t.Parallel()
	bs, err := NewBands([]types.Band{band(0.01, 0.02, 0.03, 5, 10, 20)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	before := bs.bands[0].AvgMargin

	// A target price low enough to force the buy_price <= 0 rebase.
	_ = bs.virtualBands(0.015)

	if bs.bands[0].AvgMargin != before {
		t.Fatalf("virtualBands mutated the configured band: got %v, want %v", bs.bands[0].AvgMargin, before)
	}
}

func TestExcessiveOrdersMiddleBandCancelsSmallestFirst(t *testing.T) {
	t.Parallel()
	b := Band{MinMargin: 0.0, AvgMargin: 0.01, MaxMargin: 0.02, MinAmount: 0, AvgAmount: 10, MaxAmount: 10}
	target := 0.5
	orders := []types.Order{
		{Side: types.BUY, Price: 0.49, Size: 3},
		{Side: types.BUY, Price: 0.495, Size: 8},
		{Side: types.BUY, Price: 0.485, Size: 5},
	}
	// total = 16 > max 10; must cancel smallest orders first until <= 10.
	cancelled := b.ExcessiveOrders(orders, target, false, false, false, nil)
	if len(cancelled) == 0 {
		t.Fatal("expected some cancellations")
	}
	if cancelled[0].Size != 3 {
		t.Fatalf("expected smallest order (size 3) cancelled first, got size %v", cancelled[0].Size)
	}
}

func TestNewOrdersRespectsMinSizeAndPriceBounds(t *testing.T) {
	t.Parallel()
	bs, err := NewBands([]types.Band{band(0.0, 0.01, 0.02, 5, 10, 20)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	placed := bs.NewOrders(nil, 0, 0, 0.5, types.TokenA, false)
	for _, o := range placed {
		if !(o.Price > 0 && o.Price < 1) {
			t.Fatalf("order price out of bounds: %v", o.Price)
		}
		if o.Size < types.MinSize && o.Size != 0 {
			t.Fatalf("order size below minimum: %v", o.Size)
		}
	}
	if len(placed) != 0 {
		t.Fatalf("expected no orders with zero balances, got %+v", placed)
	}
}

func TestNewOrdersFreeCollateralZeroStillSellsToken(t *testing.T) {
	t.Parallel()
	bs, err := NewBands([]types.Band{band(0.0, 0.01, 0.02, 5, 10, 20)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	placed := bs.NewOrders(nil, 0 /* collateral */, 100 /* token balance */, 0.5, types.TokenA, false)
	var sawSell bool
	for _, o := range placed {
		if o.Side == types.SELL {
			sawSell = true
		}
		if o.Side == types.BUY {
			t.Fatalf("did not expect a BUY with zero free collateral: %+v", o)
		}
	}
	if !sawSell {
		t.Fatal("expected a SELL order when token balance > 0")
	}
}
