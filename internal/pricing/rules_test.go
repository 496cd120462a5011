package pricing_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-sdeal/internal/pricing"
)

func TestDefaultPriceListIsCompleteAndFresh(t *testing.T) {
	prices := pricing.DefaultPriceList()
	require.NoError(t, prices.Complete())

	prices.BasePerM2[pricing.GardenRoom] = d("1")
	prices.FlooringPerM2[pricing.FlooringTile] = d("1")
	_ = pricing.Calculate(scenarioInputs(), prices)

	fresh := pricing.DefaultPriceList()
	require.Equal(t, "1200", fresh.BasePerM2[pricing.GardenRoom].String())
	require.Equal(t, "60", fresh.FlooringPerM2[pricing.FlooringTile].String())
}

func TestCompleteReportsMissingVariant(t *testing.T) {
	prices := pricing.DefaultPriceList()
	delete(prices.InternalWallPerM, pricing.WallPanel)
	err := prices.Complete()
	require.Error(t, err)
	require.Contains(t, err.Error(), "panel")
}

func TestCloneIsDeep(t *testing.T) {
	prices := pricing.DefaultPriceList()
	clone := prices.Clone()
	clone.FixCharge[pricing.HouseBuild] = d("9999")
	require.Equal(t, "6000", prices.FixCharge[pricing.HouseBuild].String())
	require.False(t, prices.Equal(clone))
}

func TestResolveEmptyIsDefaults(t *testing.T) {
	require.True(t, pricing.Resolve(nil).Equal(pricing.DefaultPriceList()))
}

func TestResolveAppliesKnownAndSkipsUnknownKeys(t *testing.T) {
	prices := pricing.Resolve([]pricing.Rule{
		{Key: "basePerM2.house-extension", Value: d("1900")},
		{Key: "internalWall.panelPerM", Value: d("210")},
		{Key: "flooringPerM2.wooden", Value: d("45.5")},
		{Key: "vat", Value: d("23")},
		{Key: "basePerM2.shed", Value: d("1")},
		{Key: "marketingBudget", Value: d("1")},
	})
	require.NoError(t, prices.Complete())
	require.Equal(t, "1900", prices.BasePerM2[pricing.HouseExtension].String())
	require.Equal(t, "1200", prices.BasePerM2[pricing.GardenRoom].String())
	require.Equal(t, "210", prices.InternalWallPerM[pricing.WallPanel].String())
	require.Equal(t, "45.5", prices.FlooringPerM2[pricing.FlooringWooden].String())
	require.Equal(t, "23", prices.VATPercent.String())
	require.Len(t, prices.BasePerM2, 3)
}

func TestRulesRoundTrip(t *testing.T) {
	prices := pricing.DefaultPriceList()
	prices.SkylightPerM2 = d("800")
	prices.DeliveryPerKm = d("2.75")
	rules := pricing.Rules(prices)

	keys := make([]string, 0, len(rules))
	for _, r := range rules {
		keys = append(keys, r.Key)
	}
	require.True(t, sort.StringsAreSorted(keys))
	require.Len(t, rules, 15+3+3+3+3)
	require.Contains(t, keys, "internalWall.skimPerM")
	require.Contains(t, keys, "fixCharge.house-build")

	require.True(t, pricing.Resolve(rules).Equal(prices))
	require.True(t, pricing.Resolve(pricing.Rules(pricing.DefaultPriceList())).Equal(pricing.DefaultPriceList()))
}

func TestKnownKey(t *testing.T) {
	require.True(t, pricing.KnownKey("switchEach"))
	require.True(t, pricing.KnownKey("flooringPerM2.none"))
	require.False(t, pricing.KnownKey("internalWall.panel"))
	require.False(t, pricing.KnownKey(""))
}
