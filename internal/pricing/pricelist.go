package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PriceList holds every unit price and fixed charge used by Calculate. Amounts
// are in euro; VATPercent is a percentage (13.5 means 13.5%).
type PriceList struct {
	BasePerM2         map[ProductLine]decimal.Decimal `json:"basePerM2"`
	FixCharge         map[ProductLine]decimal.Decimal `json:"fixCharge"`
	CladdingPerM2     decimal.Decimal                 `json:"claddingPerM2"`
	BathroomBasic     decimal.Decimal                 `json:"bathroomType1"`
	BathroomShower    decimal.Decimal                 `json:"bathroomType2"`
	SwitchEach        decimal.Decimal                 `json:"switchEach"`
	DoubleSocketEach  decimal.Decimal                 `json:"doubleSocketEach"`
	InternalDoorEach  decimal.Decimal                 `json:"internalDoorEach"`
	InternalWallPerM  map[WallFinish]decimal.Decimal  `json:"internalWall"`
	WindowFixCharge   decimal.Decimal                 `json:"windowFixCharge"`
	WindowPerM2       decimal.Decimal                 `json:"windowPerM2"`
	ExtDoorFixCharge  decimal.Decimal                 `json:"extDoorFixCharge"`
	ExtDoorPerM2      decimal.Decimal                 `json:"extDoorPerM2"`
	SkylightFixCharge decimal.Decimal                 `json:"skylightFixCharge"`
	SkylightPerM2     decimal.Decimal                 `json:"skylightPerM2"`
	FlooringPerM2     map[Flooring]decimal.Decimal    `json:"flooringPerM2"`
	DeliveryFreeKm    decimal.Decimal                 `json:"deliveryFreeKm"`
	DeliveryPerKm     decimal.Decimal                 `json:"deliveryPerKm"`
	VATPercent        decimal.Decimal                 `json:"vat"`
}

// DefaultPriceList returns a fresh copy of the built-in prices. It needs no
// configuration and callers may modify the returned value freely.
func DefaultPriceList() PriceList {
	return PriceList{
		BasePerM2: map[ProductLine]decimal.Decimal{
			GardenRoom:     decimal.NewFromInt(1200),
			HouseExtension: decimal.NewFromInt(1800),
			HouseBuild:     decimal.NewFromInt(2000),
		},
		FixCharge: map[ProductLine]decimal.Decimal{
			GardenRoom:     decimal.NewFromInt(6000),
			HouseExtension: decimal.NewFromInt(6000),
			HouseBuild:     decimal.NewFromInt(6000),
		},
		CladdingPerM2:    decimal.NewFromInt(80),
		BathroomBasic:    decimal.NewFromInt(2500),
		BathroomShower:   decimal.NewFromInt(4500),
		SwitchEach:       decimal.NewFromInt(50),
		DoubleSocketEach: decimal.NewFromInt(60),
		InternalDoorEach: decimal.NewFromInt(200),
		InternalWallPerM: map[WallFinish]decimal.Decimal{
			WallNone:  decimal.Zero,
			WallPanel: decimal.NewFromInt(200),
			WallSkim:  decimal.NewFromInt(300),
		},
		WindowFixCharge:   decimal.NewFromInt(500),
		WindowPerM2:       decimal.NewFromInt(400),
		ExtDoorFixCharge:  decimal.NewFromInt(500),
		ExtDoorPerM2:      decimal.NewFromInt(400),
		SkylightFixCharge: decimal.NewFromInt(900),
		SkylightPerM2:     decimal.NewFromInt(750),
		FlooringPerM2: map[Flooring]decimal.Decimal{
			FlooringNone:   decimal.Zero,
			FlooringWooden: decimal.NewFromInt(40),
			FlooringTile:   decimal.NewFromInt(60),
		},
		DeliveryFreeKm: decimal.NewFromInt(30),
		DeliveryPerKm:  decimal.RequireFromString("2.2"),
		VATPercent:     decimal.RequireFromString("13.5"),
	}
}

// Clone returns a deep copy so the maps of the copy can be written safely.
func (p PriceList) Clone() PriceList {
	out := p
	out.BasePerM2 = cloneMap(p.BasePerM2)
	out.FixCharge = cloneMap(p.FixCharge)
	out.InternalWallPerM = cloneMap(p.InternalWallPerM)
	out.FlooringPerM2 = cloneMap(p.FlooringPerM2)
	return out
}

// Complete returns an error naming the first variant without a price.
func (p PriceList) Complete() error {
	for _, line := range ProductLines {
		if _, ok := p.BasePerM2[line]; !ok {
			return fmt.Errorf("pricing: basePerM2 missing %s", line)
		}
		if _, ok := p.FixCharge[line]; !ok {
			return fmt.Errorf("pricing: fixCharge missing %s", line)
		}
	}
	for _, finish := range WallFinishes {
		if _, ok := p.InternalWallPerM[finish]; !ok {
			return fmt.Errorf("pricing: internalWall missing %s", finish)
		}
	}
	for _, floor := range Floorings {
		if _, ok := p.FlooringPerM2[floor]; !ok {
			return fmt.Errorf("pricing: flooringPerM2 missing %s", floor)
		}
	}
	return nil
}

// Equal compares two price lists amount by amount.
func (p PriceList) Equal(other PriceList) bool {
	a, b := Rules(p), Rules(other)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key != b[i].Key || !a[i].Value.Equal(b[i].Value) {
			return false
		}
	}
	return true
}

func cloneMap[K comparable](in map[K]decimal.Decimal) map[K]decimal.Decimal {
	if in == nil {
		return nil
	}
	out := make(map[K]decimal.Decimal, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
