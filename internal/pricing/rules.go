package pricing

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Rule is one persisted price override, keyed by a flat dotted path such as
// "basePerM2.garden-room" or "flooringPerM2.wooden".
type Rule struct {
	Key   string          `json:"key"`
	Value decimal.Decimal `json:"value"`
}

type ruleField struct {
	get func(*PriceList) decimal.Decimal
	set func(*PriceList, decimal.Decimal)
}

var ruleFields = buildRuleFields()

func buildRuleFields() map[string]ruleField {
	scalar := func(ptr func(*PriceList) *decimal.Decimal) ruleField {
		return ruleField{
			get: func(p *PriceList) decimal.Decimal { return *ptr(p) },
			set: func(p *PriceList, v decimal.Decimal) { *ptr(p) = v },
		}
	}
	fields := map[string]ruleField{
		"claddingPerM2":     scalar(func(p *PriceList) *decimal.Decimal { return &p.CladdingPerM2 }),
		"bathroomType1":     scalar(func(p *PriceList) *decimal.Decimal { return &p.BathroomBasic }),
		"bathroomType2":     scalar(func(p *PriceList) *decimal.Decimal { return &p.BathroomShower }),
		"switchEach":        scalar(func(p *PriceList) *decimal.Decimal { return &p.SwitchEach }),
		"doubleSocketEach":  scalar(func(p *PriceList) *decimal.Decimal { return &p.DoubleSocketEach }),
		"internalDoorEach":  scalar(func(p *PriceList) *decimal.Decimal { return &p.InternalDoorEach }),
		"windowFixCharge":   scalar(func(p *PriceList) *decimal.Decimal { return &p.WindowFixCharge }),
		"windowPerM2":       scalar(func(p *PriceList) *decimal.Decimal { return &p.WindowPerM2 }),
		"extDoorFixCharge":  scalar(func(p *PriceList) *decimal.Decimal { return &p.ExtDoorFixCharge }),
		"extDoorPerM2":      scalar(func(p *PriceList) *decimal.Decimal { return &p.ExtDoorPerM2 }),
		"skylightFixCharge": scalar(func(p *PriceList) *decimal.Decimal { return &p.SkylightFixCharge }),
		"skylightPerM2":     scalar(func(p *PriceList) *decimal.Decimal { return &p.SkylightPerM2 }),
		"deliveryFreeKm":    scalar(func(p *PriceList) *decimal.Decimal { return &p.DeliveryFreeKm }),
		"deliveryPerKm":     scalar(func(p *PriceList) *decimal.Decimal { return &p.DeliveryPerKm }),
		"vat":               scalar(func(p *PriceList) *decimal.Decimal { return &p.VATPercent }),
	}
	for _, line := range ProductLines {
		line := line
		fields["basePerM2."+string(line)] = ruleField{
			get: func(p *PriceList) decimal.Decimal { return p.BasePerM2[line] },
			set: func(p *PriceList, v decimal.Decimal) { p.BasePerM2[line] = v },
		}
		fields["fixCharge."+string(line)] = ruleField{
			get: func(p *PriceList) decimal.Decimal { return p.FixCharge[line] },
			set: func(p *PriceList, v decimal.Decimal) { p.FixCharge[line] = v },
		}
	}
	// Stored wall keys keep their per-metre suffix.
	for _, finish := range WallFinishes {
		finish := finish
		fields["internalWall."+string(finish)+"PerM"] = ruleField{
			get: func(p *PriceList) decimal.Decimal { return p.InternalWallPerM[finish] },
			set: func(p *PriceList, v decimal.Decimal) { p.InternalWallPerM[finish] = v },
		}
	}
	for _, floor := range Floorings {
		floor := floor
		fields["flooringPerM2."+string(floor)] = ruleField{
			get: func(p *PriceList) decimal.Decimal { return p.FlooringPerM2[floor] },
			set: func(p *PriceList, v decimal.Decimal) { p.FlooringPerM2[floor] = v },
		}
	}
	return fields
}

// KnownKey reports whether key addresses a field of the price list.
func KnownKey(key string) bool {
	_, ok := ruleFields[key]
	return ok
}

// Keys returns every recognised rule key in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(ruleFields))
	for k := range ruleFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Resolve builds a complete price list from the defaults with every recognised
// rule applied on top. Unrecognised keys are skipped.
func Resolve(rules []Rule) PriceList {
	p := DefaultPriceList()
	for _, r := range rules {
		field, ok := ruleFields[r.Key]
		if !ok {
			continue
		}
		field.set(&p, r.Value)
	}
	return p
}

// Rules flattens p into one rule per recognised key, sorted by key.
func Rules(p PriceList) []Rule {
	keys := Keys()
	out := make([]Rule, 0, len(keys))
	for _, k := range keys {
		out = append(out, Rule{Key: k, Value: ruleFields[k].get(&p)})
	}
	return out
}
