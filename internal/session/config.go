package session

import (
	"fmt"
	"strconv"
	"time"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-basemap/internal/contour"
	"github.com/joeblew999/plat-basemap/internal/env"
	"github.com/joeblew999/plat-basemap/internal/order"
	"github.com/joeblew999/plat-basemap/internal/rewrite"
)

// Config is everything a map session is built from. Zero fields are not
// filled in; start from DefaultConfig and override.
type Config struct {
	// Container names the element or surface the engine renders into.
	Container string `json:"container" yaml:"container" toml:"container"`

	// StylePath is the style document, a file path or http(s) URL.
	StylePath string `json:"stylePath" yaml:"stylePath" toml:"stylePath"`
	// FallbackStylePath is consulted when StylePath cannot be loaded.
	FallbackStylePath string `json:"fallbackStylePath" yaml:"fallbackStylePath" toml:"fallbackStylePath"`

	// TilesMode selects archive-protocol or z/x/y directory publishing.
	TilesMode rewrite.Mode `json:"tilesMode" yaml:"tilesMode" toml:"tilesMode"`
	// TilesPrefix is the relative directory archives live under.
	TilesPrefix string `json:"tilesPrefix" yaml:"tilesPrefix" toml:"tilesPrefix"`
	// SubpathHosts are hostname suffixes served under a path prefix.
	SubpathHosts []string `json:"subpathHosts" yaml:"subpathHosts" toml:"subpathHosts"`

	Center  orb.Point `json:"center" yaml:"center" toml:"center"`
	Zoom    float64   `json:"zoom" yaml:"zoom" toml:"zoom"`
	MinZoom float64   `json:"minZoom" yaml:"minZoom" toml:"minZoom"`
	MaxZoom float64   `json:"maxZoom" yaml:"maxZoom" toml:"maxZoom"`
	// Bounds is [west, south, east, north]; empty means unbounded.
	Bounds []float64 `json:"bounds" yaml:"bounds" toml:"bounds"`

	Attribution bool `json:"attribution" yaml:"attribution" toml:"attribution"`

	// Ranks is the draw order policy. Layers missing from it sink to the
	// sentinel band.
	Ranks order.RankTable `json:"ranks" yaml:"ranks" toml:"ranks"`

	Contour ContourConfig `json:"contour" yaml:"contour" toml:"contour"`

	// NoticeTTL is how long an engine error notice stays visible.
	NoticeTTL time.Duration `json:"noticeTTL" yaml:"noticeTTL" toml:"noticeTTL"`
}

// ContourConfig configures the terrain overlay.
type ContourConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" toml:"enabled"`

	DemURL     string        `json:"demUrl" yaml:"demUrl" toml:"demUrl"`
	Encoding   string        `json:"encoding" yaml:"encoding" toml:"encoding"`
	DemMaxZoom int           `json:"demMaxZoom" yaml:"demMaxZoom" toml:"demMaxZoom"`
	Worker     bool          `json:"worker" yaml:"worker" toml:"worker"`
	CacheSize  int           `json:"cacheSize" yaml:"cacheSize" toml:"cacheSize"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout" toml:"timeout"`

	// Units picks the threshold preset: "metric" or "feet".
	Units string `json:"units" yaml:"units" toml:"units"`
	// Thresholds overrides preset intervals, keyed by zoom level.
	Thresholds   map[string][2]float64 `json:"thresholds" yaml:"thresholds" toml:"thresholds"`
	Multiplier   float64               `json:"multiplier" yaml:"multiplier" toml:"multiplier"`
	ElevationKey string                `json:"elevationKey" yaml:"elevationKey" toml:"elevationKey"`
	LevelKey     string                `json:"levelKey" yaml:"levelKey" toml:"levelKey"`
	ContourLayer string                `json:"contourLayer" yaml:"contourLayer" toml:"contourLayer"`

	// BaseColor derives any blend colour left empty.
	BaseColor string        `json:"baseColor" yaml:"baseColor" toml:"baseColor"`
	Blend     contour.Blend `json:"blend" yaml:"blend" toml:"blend"`
}

// DefaultConfig is the stock viewer configuration.
func DefaultConfig() Config {
	return Config{
		Container:         "map",
		StylePath:         "style.json",
		FallbackStylePath: "style.fallback.json",
		TilesMode:         rewrite.ModeArchive,
		TilesPrefix:       rewrite.DefaultTilesPrefix,
		SubpathHosts:      env.DefaultSubpathHosts,
		Center:            orb.Point{23.6, -2.9},
		Zoom:              5,
		MinZoom:           3,
		MaxZoom:           18,
		Bounds:            []float64{10.0, -15.0, 33.0, 7.0},
		Attribution:       true,
		Ranks:             order.Defaults(),
		Contour: ContourConfig{
			Enabled:    true,
			DemURL:     "https://s3.amazonaws.com/elevation-tiles-prod/terrarium/{z}/{x}/{y}.png",
			Encoding:   "terrarium",
			DemMaxZoom: 13,
			CacheSize:  100,
			Timeout:    10 * time.Second,
			Units:      "metric",
		},
		NoticeTTL: 8 * time.Second,
	}
}

// Validate checks the configuration once, before a session is built.
func (c Config) Validate() error {
	if c.StylePath == "" {
		return fmt.Errorf("session: style path is required")
	}
	switch c.TilesMode {
	case rewrite.ModeArchive, rewrite.ModeTraditional:
	default:
		return fmt.Errorf("session: unknown tiles mode %q", c.TilesMode)
	}
	if _, err := rewrite.CleanTilesPrefix(c.TilesPrefix); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if c.MinZoom < 0 || c.MaxZoom > 24 || c.MinZoom > c.MaxZoom {
		return fmt.Errorf("session: bad zoom range [%v, %v]", c.MinZoom, c.MaxZoom)
	}
	if c.Zoom < c.MinZoom || c.Zoom > c.MaxZoom {
		return fmt.Errorf("session: zoom %v outside [%v, %v]", c.Zoom, c.MinZoom, c.MaxZoom)
	}
	if len(c.Bounds) != 0 {
		if len(c.Bounds) != 4 || c.Bounds[0] >= c.Bounds[2] || c.Bounds[1] >= c.Bounds[3] {
			return fmt.Errorf("session: bounds must be [west, south, east, north], got %v", c.Bounds)
		}
	}
	for id, r := range c.Ranks {
		if r < 0 {
			return fmt.Errorf("session: rank of %q is negative", id)
		}
	}
	if c.Contour.Enabled {
		if c.Contour.DemURL == "" {
			return fmt.Errorf("session: contour dem url is required")
		}
		if _, err := c.Contour.Params(); err != nil {
			return fmt.Errorf("session: %w", err)
		}
	}
	return nil
}

// Bound returns the viewport limit, or the zero bound when unset.
func (c Config) Bound() orb.Bound {
	if len(c.Bounds) != 4 {
		return orb.Bound{}
	}
	return orb.Bound{
		Min: orb.Point{c.Bounds[0], c.Bounds[1]},
		Max: orb.Point{c.Bounds[2], c.Bounds[3]},
	}
}

// Params resolves the contour parameters: the units preset with any
// explicit overrides applied.
func (c ContourConfig) Params() (contour.Params, error) {
	var p contour.Params
	switch c.Units {
	case "", "metric":
		p = contour.DefaultParams()
	case "feet":
		p = contour.FeetParams()
	default:
		return p, fmt.Errorf("contour: unknown units %q", c.Units)
	}
	for k, v := range c.Thresholds {
		z, err := strconv.Atoi(k)
		if err != nil {
			return p, fmt.Errorf("contour: threshold zoom %q: %w", k, err)
		}
		p.Thresholds[z] = v
	}
	if c.Multiplier != 0 {
		p.Multiplier = c.Multiplier
	}
	if c.ElevationKey != "" {
		p.ElevationKey = c.ElevationKey
	}
	if c.LevelKey != "" {
		p.LevelKey = c.LevelKey
	}
	if c.ContourLayer != "" {
		p.ContourLayer = c.ContourLayer
	}
	return p, p.Validate()
}

// Provider builds the overlay provider configuration.
func (c ContourConfig) Provider() (contour.Config, error) {
	params, err := c.Params()
	if err != nil {
		return contour.Config{}, err
	}
	blend := c.Blend
	if c.BaseColor != "" {
		blend = blend.Merge(contour.DeriveBlend(c.BaseColor))
	}
	return contour.Config{
		Plugin: contour.PluginConfig{
			URL:       c.DemURL,
			Encoding:  c.Encoding,
			MaxZoom:   c.DemMaxZoom,
			Worker:    c.Worker,
			CacheSize: c.CacheSize,
			Timeout:   c.Timeout,
		},
		Params: params,
		Blend:  blend,
	}, nil
}
