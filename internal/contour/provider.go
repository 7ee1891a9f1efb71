package contour

import (
	"errors"
	"fmt"
	"sync"

	"github.com/joeblew999/plat-basemap/internal/style"
)

// Layer and source ids added by the provider.
const (
	DemSourceID     = "dem"
	ContourSourceID = "contour-source"
	HillshadeID     = "hillshade"
	ContoursID      = "contours"
	LabelsID        = "contour-labels"
)

// ErrConflict is returned when the style already uses an overlay id.
var ErrConflict = errors.New("contour: id already in style")

// Config configures the overlay of a session.
type Config struct {
	Plugin         PluginConfig
	Params         Params
	Blend          Blend
	ContourMaxZoom int
	Font           string
}

// PluginFactory constructs the elevation plugin.
type PluginFactory func(PluginConfig) (Plugin, error)

// DefaultFactory builds a DemSource.
func DefaultFactory(cfg PluginConfig) (Plugin, error) {
	return NewDemSource(cfg)
}

// Provider adds the terrain overlay to styles. The plugin is built once, on
// first use, and shared by every style the provider touches.
type Provider struct {
	cfg     Config
	factory PluginFactory

	once   sync.Once
	plugin Plugin
	err    error
}

// NewProvider creates a provider. A nil factory uses DefaultFactory.
func NewProvider(cfg Config, factory PluginFactory) *Provider {
	if factory == nil {
		factory = DefaultFactory
	}
	if cfg.ContourMaxZoom <= 0 {
		cfg.ContourMaxZoom = 15
	}
	if cfg.Font == "" {
		cfg.Font = "Noto Sans Regular"
	}
	cfg.Blend = cfg.Blend.Merge(DefaultBlend())
	return &Provider{cfg: cfg, factory: factory}
}

// Plugin returns the elevation plugin, constructing it on first call.
func (p *Provider) Plugin() (Plugin, error) {
	p.once.Do(func() {
		p.plugin, p.err = p.factory(p.cfg.Plugin)
		if p.err != nil {
			p.err = fmt.Errorf("contour: init plugin: %w", p.err)
		}
	})
	return p.plugin, p.err
}

// Apply appends the DEM source, the contour source and the hillshade,
// contour and label layers to s. Layers are appended, not sorted.
func (p *Provider) Apply(s *style.Style) error {
	if s == nil {
		return fmt.Errorf("contour: nil style")
	}
	plugin, err := p.Plugin()
	if err != nil {
		return err
	}
	for _, id := range []string{DemSourceID, ContourSourceID} {
		if _, ok := s.Sources[id]; ok {
			return fmt.Errorf("%w: source %q", ErrConflict, id)
		}
	}
	for _, id := range []string{HillshadeID, ContoursID, LabelsID} {
		if _, ok := s.Layer(id); ok {
			return fmt.Errorf("%w: layer %q", ErrConflict, id)
		}
	}

	if s.Sources == nil {
		s.Sources = map[string]*style.Source{}
	}
	pc := p.cfg.Plugin
	s.Sources[DemSourceID] = &style.Source{
		Type:     style.KindRasterDEM,
		Tiles:    []string{plugin.SharedDemProtocolURL()},
		Encoding: encodingOr(pc.Encoding),
		TileSize: 256,
		MaxZoom:  maxZoomOr(pc.MaxZoom),
	}
	s.Sources[ContourSourceID] = &style.Source{
		Type:    style.KindVector,
		Tiles:   []string{plugin.ContourProtocolURL(ContourOptions{Params: p.cfg.Params})},
		MaxZoom: p.cfg.ContourMaxZoom,
	}
	s.Layers = append(s.Layers, p.hillshade(), p.contours(), p.labels())
	return nil
}

func encodingOr(e string) string {
	if e == "" {
		return "terrarium"
	}
	return e
}

func maxZoomOr(z int) int {
	if z <= 0 {
		return 13
	}
	return z
}

func zoomInterpolate(stops ...any) []any {
	return append([]any{"interpolate", []any{"linear"}, []any{"zoom"}}, stops...)
}

// isMajor compares the level property; the plugin tags major lines with 1.
func (p *Provider) isMajor(major, minor any) []any {
	return []any{"case", []any{">", []any{"get", p.cfg.Params.LevelKey}, 0}, major, minor}
}

func (p *Provider) hillshade() style.Layer {
	b := p.cfg.Blend
	return style.Layer{
		ID:     HillshadeID,
		Type:   "hillshade",
		Source: DemSourceID,
		Paint: map[string]any{
			"hillshade-exaggeration":           zoomInterpolate(0, 0.5, 10, 0.35, 14, 0.2),
			"hillshade-shadow-color":           b.Shadow,
			"hillshade-highlight-color":        b.Highlight,
			"hillshade-accent-color":           b.Accent,
			"hillshade-illumination-direction": 335,
		},
	}
}

func (p *Provider) contours() style.Layer {
	b := p.cfg.Blend
	return style.Layer{
		ID:          ContoursID,
		Type:        "line",
		Source:      ContourSourceID,
		SourceLayer: p.cfg.Params.ContourLayer,
		Layout: map[string]any{
			"line-join": "round",
			"line-cap":  "round",
		},
		Paint: map[string]any{
			"line-color":   p.isMajor(b.MajorLine, b.Line),
			"line-width":   zoomInterpolate(11, p.isMajor(0.8, 0.4), 16, p.isMajor(1.6, 0.8)),
			"line-opacity": zoomInterpolate(11, 0.3, 13, 0.6, 16, 0.8),
		},
	}
}

func (p *Provider) labels() style.Layer {
	b := p.cfg.Blend
	params := p.cfg.Params
	return style.Layer{
		ID:          LabelsID,
		Type:        "symbol",
		Source:      ContourSourceID,
		SourceLayer: params.ContourLayer,
		Filter:      []any{">", []any{"get", params.LevelKey}, 0},
		Layout: map[string]any{
			"visibility":       style.Hidden,
			"symbol-placement": "line",
			"text-size":        10,
			"text-font":        []any{p.cfg.Font},
			"text-field": []any{
				"concat",
				[]any{"number-format", []any{"get", params.ElevationKey}, map[string]any{}},
				params.Unit,
			},
		},
		Paint: map[string]any{
			"text-color":      b.Label,
			"text-halo-color": b.Highlight,
			"text-halo-width": 1,
		},
	}
}
