package pricing_test

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-sdeal/internal/pricing"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func scenarioInputs() pricing.Inputs {
	return pricing.Inputs{
		Product:        pricing.GardenRoom,
		RoomAreaM2:     d("12"),
		Switches:       2,
		DoubleSockets:  4,
		WallFinish:     pricing.WallNone,
		Windows:        pricing.SizeQty{Count: 2, UnitArea: d("1.2")},
		ExteriorDoors:  pricing.SizeQty{Count: 1, UnitArea: d("2.0")},
		Flooring:       pricing.FlooringNone,
		FlooringAreaM2: d("12"),
		DeliveryKm:     d("25"),
	}
}

func itemKeys(res pricing.Result) []string {
	keys := make([]string, 0, len(res.Items))
	for _, it := range res.Items {
		keys = append(keys, it.Key)
	}
	return keys
}

func findItem(t *testing.T, res pricing.Result, key string) pricing.LineItem {
	t.Helper()
	for _, it := range res.Items {
		if it.Key == key {
			return it
		}
	}
	t.Fatalf("line %q not found in %v", key, itemKeys(res))
	return pricing.LineItem{}
}

func TestCalculateGardenRoomScenario(t *testing.T) {
	res := pricing.Calculate(scenarioInputs(), pricing.DefaultPriceList())

	require.Equal(t, []string{"base_area", "cladding", "switches", "double_socket", "windows", "ext_doors", "flooring"}, itemKeys(res))
	require.Equal(t, "20400.00", findItem(t, res, "base_area").LineTotal.StringFixed(2))
	require.Equal(t, "0.00", findItem(t, res, "cladding").LineTotal.StringFixed(2))
	require.Equal(t, "100.00", findItem(t, res, "switches").LineTotal.StringFixed(2))
	require.Equal(t, "240.00", findItem(t, res, "double_socket").LineTotal.StringFixed(2))

	windows := findItem(t, res, "windows")
	require.Equal(t, "2.40", windows.Quantity.StringFixed(2))
	require.Equal(t, "960.00", windows.LineTotal.StringFixed(2))
	require.NotNil(t, windows.Meta)
	require.Equal(t, 2, windows.Meta.Count)

	require.Equal(t, "1300.00", findItem(t, res, "ext_doors").LineTotal.StringFixed(2))
	require.Equal(t, "0.00", findItem(t, res, "flooring").LineTotal.StringFixed(2))
	require.Equal(t, "Flooring (none)", findItem(t, res, "flooring").Label)

	require.Equal(t, "23000.00", res.Subtotal.StringFixed(2))
	require.Equal(t, "23000.00", res.Net.StringFixed(2))
	require.Equal(t, "3105.00", res.VAT.StringFixed(2))
	require.Equal(t, "26105.00", res.Total.StringFixed(2))
}

func TestCalculateIsIdempotent(t *testing.T) {
	prices := pricing.DefaultPriceList()
	in := scenarioInputs()
	first := pricing.Calculate(in, prices)
	second := pricing.Calculate(in, prices)
	require.Equal(t, itemKeys(first), itemKeys(second))
	require.True(t, first.Total.Equal(second.Total))
}

func TestCalculateIsMonotonic(t *testing.T) {
	prices := pricing.DefaultPriceList()
	base := pricing.Calculate(scenarioInputs(), prices).Total

	bumps := map[string]func(*pricing.Inputs){
		"room area":     func(in *pricing.Inputs) { in.RoomAreaM2 = in.RoomAreaM2.Add(d("1")) },
		"cladding":      func(in *pricing.Inputs) { in.CladdingAreaM2 = d("5") },
		"bathroom":      func(in *pricing.Inputs) { in.BathroomBasic = 1 },
		"shower":        func(in *pricing.Inputs) { in.BathroomShower = 1 },
		"switches":      func(in *pricing.Inputs) { in.Switches++ },
		"sockets":       func(in *pricing.Inputs) { in.DoubleSockets++ },
		"doors":         func(in *pricing.Inputs) { in.InternalDoors = 2 },
		"window count":  func(in *pricing.Inputs) { in.Windows.Count++ },
		"skylight":      func(in *pricing.Inputs) { in.Skylights = pricing.SizeQty{Count: 1, UnitArea: d("0.8")} },
		"delivery":      func(in *pricing.Inputs) { in.DeliveryKm = d("80") },
		"wooden floors": func(in *pricing.Inputs) { in.Flooring = pricing.FlooringWooden },
	}
	for name, bump := range bumps {
		t.Run(name, func(t *testing.T) {
			in := scenarioInputs()
			bump(&in)
			got := pricing.Calculate(in, prices).Total
			require.True(t, got.GreaterThan(base), "expected %s > %s", got, base)
		})
	}
}

func TestDiscountFloor(t *testing.T) {
	prices := pricing.DefaultPriceList()

	in := scenarioInputs()
	in.Discount = d("1000000")
	res := pricing.Calculate(in, prices)
	require.True(t, res.Net.IsZero())
	require.True(t, res.VAT.IsZero())
	require.Equal(t, "0.00", res.Total.StringFixed(2))

	in.Discount = d("-500")
	res = pricing.Calculate(in, prices)
	require.True(t, res.Discount.IsZero())
	require.Equal(t, "26105.00", res.Total.StringFixed(2))

	in.Discount = d("1000")
	res = pricing.Calculate(in, prices)
	require.Equal(t, "22000.00", res.Net.StringFixed(2))
	require.Equal(t, "24970.00", res.Total.StringFixed(2))
}

func TestDeliveryThreshold(t *testing.T) {
	prices := pricing.DefaultPriceList()
	in := scenarioInputs()

	in.DeliveryKm = d("30")
	require.NotContains(t, itemKeys(pricing.Calculate(in, prices)), "delivery")

	in.DeliveryKm = d("40")
	res := pricing.Calculate(in, prices)
	line := findItem(t, res, "delivery")
	require.Equal(t, "10", line.Quantity.String())
	require.Equal(t, "22.00", line.LineTotal.StringFixed(2))
	require.Equal(t, "Delivery distance (km, first 30km free)", line.Label)
}

func TestZeroAndPartialSpecGating(t *testing.T) {
	prices := pricing.DefaultPriceList()
	in := pricing.Inputs{Product: pricing.HouseBuild, RoomAreaM2: d("50")}
	res := pricing.Calculate(in, prices)
	require.Equal(t, []string{"base_area", "cladding"}, itemKeys(res))
	require.Equal(t, "106000.00", res.Items[0].LineTotal.StringFixed(2))

	in.Windows = pricing.SizeQty{Count: 3}
	in.ExteriorDoors = pricing.SizeQty{UnitArea: d("2")}
	in.Skylights = pricing.SizeQty{Count: 0, UnitArea: d("1")}
	in.InternalWallM = decimal.Zero
	in.FlooringAreaM2 = decimal.Zero
	res = pricing.Calculate(in, prices)
	require.Equal(t, []string{"base_area", "cladding"}, itemKeys(res))
}

func TestAllLinesInOrder(t *testing.T) {
	in := pricing.Inputs{
		Product:        pricing.HouseExtension,
		RoomAreaM2:     d("30"),
		CladdingAreaM2: d("40"),
		BathroomBasic:  1,
		BathroomShower: 1,
		Switches:       4,
		DoubleSockets:  6,
		InternalDoors:  2,
		InternalWallM:  d("8"),
		WallFinish:     pricing.WallSkim,
		Windows:        pricing.SizeQty{Count: 3, UnitArea: d("1.5")},
		ExteriorDoors:  pricing.SizeQty{Count: 1, UnitArea: d("2.2")},
		Skylights:      pricing.SizeQty{Count: 2, UnitArea: d("0.6")},
		Flooring:       pricing.FlooringTile,
		FlooringAreaM2: d("28"),
		DeliveryKm:     d("45"),
	}
	res := pricing.Calculate(in, pricing.DefaultPriceList())
	require.Equal(t, []string{
		"base_area", "cladding", "bathroom_t1", "bathroom_t2", "switches", "double_socket",
		"internal_doors", "internal_wall", "windows", "ext_doors", "skylights", "flooring", "delivery",
	}, itemKeys(res))
	require.Equal(t, "Internal wall (skim)", findItem(t, res, "internal_wall").Label)
	require.Equal(t, "2400.00", findItem(t, res, "internal_wall").LineTotal.StringFixed(2))
	// 2 x 0.6 m² x 750 + 900
	require.Equal(t, "1800.00", findItem(t, res, "skylights").LineTotal.StringFixed(2))
	require.Equal(t, "Flooring (tile)", findItem(t, res, "flooring").Label)
}

func TestWindowFixedChargePolicy(t *testing.T) {
	prices := pricing.DefaultPriceList()
	policy := pricing.DefaultPolicy()
	policy.WindowFixedCharge = true
	res := pricing.CalculateWithPolicy(scenarioInputs(), prices, policy)
	require.Equal(t, "1460.00", findItem(t, res, "windows").LineTotal.StringFixed(2))

	policy = pricing.Policy{}
	res = pricing.CalculateWithPolicy(scenarioInputs(), prices, policy)
	require.Equal(t, "800.00", findItem(t, res, "ext_doors").LineTotal.StringFixed(2))
}

func TestTotalRoundsHalfUp(t *testing.T) {
	prices := pricing.DefaultPriceList()
	prices.BasePerM2[pricing.GardenRoom] = d("0.005")
	prices.FixCharge[pricing.GardenRoom] = decimal.Zero
	prices.VATPercent = decimal.Zero
	res := pricing.Calculate(pricing.Inputs{Product: pricing.GardenRoom, RoomAreaM2: d("1")}, prices)
	require.Equal(t, "0.01", res.Total.StringFixed(2))

	prices.BasePerM2[pricing.GardenRoom] = d("0.004")
	res = pricing.Calculate(pricing.Inputs{Product: pricing.GardenRoom, RoomAreaM2: d("1")}, prices)
	require.Equal(t, "0.00", res.Total.StringFixed(2))
}

func TestVATZeroOrNegativeIsIgnored(t *testing.T) {
	prices := pricing.DefaultPriceList()
	prices.VATPercent = d("-5")
	res := pricing.Calculate(scenarioInputs(), prices)
	require.True(t, res.VAT.IsZero())
	require.Equal(t, "23000.00", res.Total.StringFixed(2))
}

func TestUnknownVariantsNormalise(t *testing.T) {
	in := scenarioInputs()
	in.Product = "shed"
	in.Flooring = "marble"
	in.WallFinish = "gold"
	in.InternalWallM = d("3")
	res := pricing.Calculate(in, pricing.DefaultPriceList())
	require.Equal(t, "Internal wall (none)", findItem(t, res, "internal_wall").Label)
	require.Equal(t, "Flooring (none)", findItem(t, res, "flooring").Label)
	require.Equal(t, "26105.00", res.Total.StringFixed(2))
}

func TestParseEnums(t *testing.T) {
	p, err := pricing.ParseProductLine(" House-Build ")
	require.NoError(t, err)
	require.Equal(t, pricing.HouseBuild, p)
	_, err = pricing.ParseProductLine("shed")
	require.Error(t, err)

	w, err := pricing.ParseWallFinish("panel")
	require.NoError(t, err)
	require.Equal(t, pricing.WallPanel, w)
	_, err = pricing.ParseWallFinish("brick")
	require.Error(t, err)

	f, err := pricing.ParseFlooring("WOODEN")
	require.NoError(t, err)
	require.Equal(t, pricing.FlooringWooden, f)
	_, err = pricing.ParseFlooring("carpet")
	require.Error(t, err)
}

func TestCalculateSharesPriceListAcrossGoroutines(t *testing.T) {
	prices := pricing.DefaultPriceList()
	want := pricing.Calculate(scenarioInputs(), prices)
	before := prices.Clone()

	products := []pricing.ProductLine{pricing.GardenRoom, pricing.HouseExtension, pricing.HouseBuild}
	for i := 0; i < 16; i++ {
		product := products[i%len(products)]
		t.Run(fmt.Sprintf("%s-%d", product, i), func(t *testing.T) {
			t.Parallel()
			for n := 0; n < 50; n++ {
				in := scenarioInputs()
				in.Product = product
				in.WallFinish = pricing.WallSkim
				in.InternalWallM = d("4")
				in.Flooring = pricing.FlooringTile
				res := pricing.Calculate(in, prices)
				require.True(t, res.Total.IsPositive())
				if product == pricing.GardenRoom {
					require.True(t, pricing.Calculate(scenarioInputs(), prices).Total.Equal(want.Total))
				}
			}
		})
	}
	t.Cleanup(func() {
		require.Equal(t, before, prices)
	})
}
