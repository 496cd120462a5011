package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SizeQty describes a number of identical openings of one size.
type SizeQty struct {
	Count    int             `json:"qty"`
	UnitArea decimal.Decimal `json:"sizeM2"`
}

func (s SizeQty) priced() bool {
	return s.Count > 0 && s.UnitArea.IsPositive()
}

func (s SizeQty) area() decimal.Decimal {
	return decimal.NewFromInt(int64(s.Count)).Mul(s.UnitArea)
}

// Inputs is one quote request. Numeric fields are expected to be
// non-negative; range limits are enforced by the HTTP layer.
type Inputs struct {
	Product        ProductLine     `json:"productSlug"`
	RoomAreaM2     decimal.Decimal `json:"roomAreaM2"`
	CladdingAreaM2 decimal.Decimal `json:"claddingAreaM2"`
	BathroomBasic  int             `json:"bathroomType1Qty"`
	BathroomShower int             `json:"bathroomType2Qty"`
	Switches       int             `json:"switchesQty"`
	DoubleSockets  int             `json:"doubleSocketsQty"`
	InternalDoors  int             `json:"internalDoorsQty"`
	InternalWallM  decimal.Decimal `json:"internalWallM"`
	WallFinish     WallFinish      `json:"internalWallSlug"`
	Windows        SizeQty         `json:"windows"`
	ExteriorDoors  SizeQty         `json:"exteriorDoors"`
	Skylights      SizeQty         `json:"skylights"`
	Flooring       Flooring        `json:"flooringSlug"`
	FlooringAreaM2 decimal.Decimal `json:"flooringAreaM2"`
	DeliveryKm     decimal.Decimal `json:"deliveryKm"`
	Discount       decimal.Decimal `json:"discountAmt"`
	Note           string          `json:"extrasNote,omitempty"`
}

// Normalize replaces unknown variants with their defaults: garden-room for the
// product line and none for wall finish and flooring.
func (in Inputs) Normalize() Inputs {
	if !in.Product.Valid() {
		in.Product = GardenRoom
	}
	if !in.WallFinish.Valid() {
		in.WallFinish = WallNone
	}
	if !in.Flooring.Valid() {
		in.Flooring = FlooringNone
	}
	return in
}

// Meta records the opening size behind an area based line.
type Meta struct {
	Kind     string          `json:"kind"`
	Count    int             `json:"qty"`
	UnitArea decimal.Decimal `json:"sizeM2"`
}

// LineItem is one priced row of a quote breakdown.
type LineItem struct {
	Key       string          `json:"key"`
	Label     string          `json:"label"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	LineTotal decimal.Decimal `json:"lineTotal"`
	Meta      *Meta           `json:"meta,omitempty"`
}

// Result is the computed breakdown. Total is rounded to cents; the other
// aggregates are kept unrounded for display.
type Result struct {
	Items    []LineItem      `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Net      decimal.Decimal `json:"net"`
	VAT      decimal.Decimal `json:"vat"`
	Total    decimal.Decimal `json:"total"`
}

// Policy selects which opening categories add their fixed charge once per
// line. Windows historically do not.
type Policy struct {
	WindowFixedCharge   bool `json:"windowFixedCharge"`
	ExtDoorFixedCharge  bool `json:"extDoorFixedCharge"`
	SkylightFixedCharge bool `json:"skylightFixedCharge"`
}

// DefaultPolicy charges the fixed amount on exterior doors and skylights only.
func DefaultPolicy() Policy {
	return Policy{ExtDoorFixedCharge: true, SkylightFixedCharge: true}
}

const centPlaces = 2

var hundred = decimal.NewFromInt(100)

// Calculate prices the inputs with the default policy.
func Calculate(in Inputs, prices PriceList) Result {
	return CalculateWithPolicy(in, prices, DefaultPolicy())
}

// CalculateWithPolicy prices the inputs. It never fails and never retains in
// or prices. The total is rounded half up to two decimal places.
func CalculateWithPolicy(in Inputs, prices PriceList, policy Policy) Result {
	in = in.Normalize()
	items := make([]LineItem, 0, 13)

	baseRate := prices.BasePerM2[in.Product]
	items = append(items, LineItem{
		Key:       "base_area",
		Label:     "Gross floor area (m²)",
		Quantity:  in.RoomAreaM2,
		UnitPrice: baseRate,
		LineTotal: in.RoomAreaM2.Mul(baseRate).Add(prices.FixCharge[in.Product]),
	})

	items = append(items, LineItem{
		Key:       "cladding",
		Label:     "Cladding (m²)",
		Quantity:  in.CladdingAreaM2,
		UnitPrice: prices.CladdingPerM2,
		LineTotal: in.CladdingAreaM2.Mul(prices.CladdingPerM2),
	})

	items = appendCount(items, "bathroom_t1", "Bathroom 1 (Toilet+Sink+Under Sink Heater)", in.BathroomBasic, prices.BathroomBasic)
	items = appendCount(items, "bathroom_t2", "Bathroom (Toilet+Sink+Shower+Electric Boiler 80L)", in.BathroomShower, prices.BathroomShower)
	items = appendCount(items, "switches", "Switches", in.Switches, prices.SwitchEach)
	items = appendCount(items, "double_socket", "Double Sockets", in.DoubleSockets, prices.DoubleSocketEach)
	items = appendCount(items, "internal_doors", "Internal Doors", in.InternalDoors, prices.InternalDoorEach)

	if in.InternalWallM.IsPositive() {
		rate := prices.InternalWallPerM[in.WallFinish]
		items = append(items, LineItem{
			Key:       "internal_wall",
			Label:     fmt.Sprintf("Internal wall (%s)", in.WallFinish),
			Quantity:  in.InternalWallM,
			UnitPrice: rate,
			LineTotal: in.InternalWallM.Mul(rate),
		})
	}

	items = appendOpening(items, "windows", "Windows (m²)", in.Windows, prices.WindowPerM2, prices.WindowFixCharge, policy.WindowFixedCharge)
	items = appendOpening(items, "ext_doors", "Exterior doors (m²)", in.ExteriorDoors, prices.ExtDoorPerM2, prices.ExtDoorFixCharge, policy.ExtDoorFixedCharge)
	items = appendOpening(items, "skylights", "Skylights (m²)", in.Skylights, prices.SkylightPerM2, prices.SkylightFixCharge, policy.SkylightFixedCharge)

	if in.FlooringAreaM2.IsPositive() {
		rate := prices.FlooringPerM2[in.Flooring]
		items = append(items, LineItem{
			Key:       "flooring",
			Label:     fmt.Sprintf("Flooring (%s)", in.Flooring),
			Quantity:  in.FlooringAreaM2,
			UnitPrice: rate,
			LineTotal: in.FlooringAreaM2.Mul(rate),
		})
	}

	if in.DeliveryKm.GreaterThan(prices.DeliveryFreeKm) {
		billable := in.DeliveryKm.Sub(prices.DeliveryFreeKm)
		items = append(items, LineItem{
			Key:       "delivery",
			Label:     fmt.Sprintf("Delivery distance (km, first %skm free)", prices.DeliveryFreeKm.String()),
			Quantity:  billable,
			UnitPrice: prices.DeliveryPerKm,
			LineTotal: billable.Mul(prices.DeliveryPerKm),
		})
	}

	return summarise(items, in.Discount, prices.VATPercent)
}

func summarise(items []LineItem, discountAmt, vatPercent decimal.Decimal) Result {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.LineTotal)
	}
	discount := decimal.Max(decimal.Zero, discountAmt)
	net := decimal.Max(decimal.Zero, subtotal.Sub(discount))
	vat := decimal.Zero
	if vatPercent.IsPositive() {
		vat = net.Mul(vatPercent).Div(hundred)
	}
	return Result{
		Items:    items,
		Subtotal: subtotal,
		Discount: discount,
		Net:      net,
		VAT:      vat,
		Total:    roundHalfUp(net.Add(vat)),
	}
}

// roundHalfUp rounds to cents. decimal.Round rounds half away from zero, which
// is half up for the non-negative amounts produced here.
func roundHalfUp(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(centPlaces)
}

func appendCount(items []LineItem, key, label string, count int, each decimal.Decimal) []LineItem {
	if count <= 0 {
		return items
	}
	qty := decimal.NewFromInt(int64(count))
	return append(items, LineItem{
		Key:       key,
		Label:     label,
		Quantity:  qty,
		UnitPrice: each,
		LineTotal: qty.Mul(each),
	})
}

func appendOpening(items []LineItem, key, label string, opening SizeQty, perM2, fixed decimal.Decimal, chargeFixed bool) []LineItem {
	if !opening.priced() {
		return items
	}
	area := opening.area()
	total := area.Mul(perM2)
	if chargeFixed {
		total = total.Add(fixed)
	}
	return append(items, LineItem{
		Key:       key,
		Label:     label,
		Quantity:  area,
		UnitPrice: perM2,
		LineTotal: total,
		Meta:      &Meta{Kind: key, Count: opening.Count, UnitArea: opening.UnitArea},
	})
}
