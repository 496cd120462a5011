package pricing

import (
	"fmt"
	"strings"
)

// ProductLine identifies one of the fixed offerings.
type ProductLine string

const (
	GardenRoom     ProductLine = "garden-room"
	HouseExtension ProductLine = "house-extension"
	HouseBuild     ProductLine = "house-build"
)

// ProductLines lists every product line in display order.
var ProductLines = []ProductLine{GardenRoom, HouseExtension, HouseBuild}

// Valid reports whether p is a known product line.
func (p ProductLine) Valid() bool {
	switch p {
	case GardenRoom, HouseExtension, HouseBuild:
		return true
	}
	return false
}

// ParseProductLine converts raw input into a ProductLine.
func ParseProductLine(raw string) (ProductLine, error) {
	p := ProductLine(strings.ToLower(strings.TrimSpace(raw)))
	if !p.Valid() {
		return "", fmt.Errorf("pricing: unknown product line %q", raw)
	}
	return p, nil
}

// WallFinish is the finish applied to internal partition walls.
type WallFinish string

const (
	WallNone  WallFinish = "none"
	WallPanel WallFinish = "panel"
	WallSkim  WallFinish = "skim"
)

// WallFinishes lists every wall finish.
var WallFinishes = []WallFinish{WallNone, WallPanel, WallSkim}

// Valid reports whether w is a known finish.
func (w WallFinish) Valid() bool {
	switch w {
	case WallNone, WallPanel, WallSkim:
		return true
	}
	return false
}

// ParseWallFinish converts raw input into a WallFinish.
func ParseWallFinish(raw string) (WallFinish, error) {
	w := WallFinish(strings.ToLower(strings.TrimSpace(raw)))
	if !w.Valid() {
		return "", fmt.Errorf("pricing: unknown wall finish %q", raw)
	}
	return w, nil
}

// Flooring is the floor covering variant.
type Flooring string

const (
	FlooringNone   Flooring = "none"
	FlooringWooden Flooring = "wooden"
	FlooringTile   Flooring = "tile"
)

// Floorings lists every flooring variant.
var Floorings = []Flooring{FlooringNone, FlooringWooden, FlooringTile}

// Valid reports whether f is a known flooring variant.
func (f Flooring) Valid() bool {
	switch f {
	case FlooringNone, FlooringWooden, FlooringTile:
		return true
	}
	return false
}

// ParseFlooring converts raw input into a Flooring.
func ParseFlooring(raw string) (Flooring, error) {
	f := Flooring(strings.ToLower(strings.TrimSpace(raw)))
	if !f.Valid() {
		return "", fmt.Errorf("pricing: unknown flooring %q", raw)
	}
	return f, nil
}
