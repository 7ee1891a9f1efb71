// Package contour builds the terrain overlay of a basemap: a shared DEM
// raster source, a contour vector source generated from it, and the
// hillshade, contour line and contour label layers drawn from both.
package contour

import (
	"fmt"
	"sort"

	"github.com/hsluv/hsluv-go"
)

// Params configures contour generation. Thresholds maps a zoom level to its
// (minor, major) interval in the linear unit; zooms without an entry are left
// to the plugin's own fallback.
type Params struct {
	Thresholds   map[int][2]float64 `json:"thresholds"`
	Multiplier   float64            `json:"multiplier"`
	ElevationKey string             `json:"elevationKey"`
	LevelKey     string             `json:"levelKey"`
	ContourLayer string             `json:"contourLayer"`
	Unit         string             `json:"unit"`
}

// DefaultParams is the metric preset.
func DefaultParams() Params {
	return Params{
		Thresholds: map[int][2]float64{
			11: {200, 1000},
			12: {100, 500},
			13: {100, 500},
			14: {50, 200},
			15: {20, 100},
		},
		Multiplier:   1,
		ElevationKey: "ele",
		LevelKey:     "level",
		ContourLayer: "contours",
		Unit:         "m",
	}
}

// FeetParams is the imperial preset.
func FeetParams() Params {
	p := DefaultParams()
	p.Thresholds = map[int][2]float64{
		11: {500, 2500},
		12: {250, 1000},
		13: {100, 500},
		14: {50, 250},
		15: {20, 100},
	}
	p.Multiplier = 3.28084
	p.Unit = "ft"
	return p
}

// Zooms returns the zoom levels with explicit thresholds, ascending.
func (p Params) Zooms() []int {
	zs := make([]int, 0, len(p.Thresholds))
	for z := range p.Thresholds {
		zs = append(zs, z)
	}
	sort.Ints(zs)
	return zs
}

// Validate checks the parameters for values the plugin cannot use.
func (p Params) Validate() error {
	if p.Multiplier <= 0 {
		return fmt.Errorf("contour: multiplier must be positive, got %v", p.Multiplier)
	}
	if p.ElevationKey == "" || p.LevelKey == "" || p.ContourLayer == "" {
		return fmt.Errorf("contour: elevation key, level key and contour layer are required")
	}
	for z, t := range p.Thresholds {
		if z < 0 || z > 24 {
			return fmt.Errorf("contour: threshold zoom %d out of range", z)
		}
		if t[0] <= 0 || t[1] < t[0] {
			return fmt.Errorf("contour: zoom %d: bad interval pair %v", z, t)
		}
	}
	return nil
}

// Blend holds the overlay colours.
type Blend struct {
	Shadow    string `json:"shadow" yaml:"shadow" toml:"shadow"`
	Highlight string `json:"highlight" yaml:"highlight" toml:"highlight"`
	Accent    string `json:"accent" yaml:"accent" toml:"accent"`
	Line      string `json:"line" yaml:"line" toml:"line"`
	MajorLine string `json:"majorLine" yaml:"majorLine" toml:"majorLine"`
	Label     string `json:"label" yaml:"label" toml:"label"`
}

// DefaultBlend is the warm earth preset.
func DefaultBlend() Blend {
	return DeriveBlend("#8a6d3b")
}

// DeriveBlend derives a full colour set from one base colour by varying
// lightness in HSLuv, which keeps the perceived hue constant.
func DeriveBlend(base string) Blend {
	h, s, _ := hsluv.HsluvFromHex(base)
	shade := func(sat, light float64) string {
		return hsluv.HsluvToHex(h, s*sat, light)
	}
	return Blend{
		Shadow:    shade(0.6, 22),
		Highlight: shade(0.15, 97),
		Accent:    shade(0.8, 40),
		Line:      shade(0.7, 55),
		MajorLine: shade(0.9, 35),
		Label:     shade(1, 28),
	}
}

// Merge fills empty fields of b from def.
func (b Blend) Merge(def Blend) Blend {
	pick := func(v, d string) string {
		if v == "" {
			return d
		}
		return v
	}
	return Blend{
		Shadow:    pick(b.Shadow, def.Shadow),
		Highlight: pick(b.Highlight, def.Highlight),
		Accent:    pick(b.Accent, def.Accent),
		Line:      pick(b.Line, def.Line),
		MajorLine: pick(b.MajorLine, def.MajorLine),
		Label:     pick(b.Label, def.Label),
	}
}
