// Package style models the map style document handed to the rendering
// engine: a table of tile sources and an ordered list of layers.
package style

import (
	"encoding/json"
	"fmt"
)

// Visibility values for the "visibility" layout property.
const (
	Visible = "visible"
	Hidden  = "none"
)

// Source kinds used by the composition pipeline.
const (
	KindVector    = "vector"
	KindRaster    = "raster"
	KindRasterDEM = "raster-dem"
	KindGeoJSON   = "geojson"
)

// Style is a map style document. Top-level fields the pipeline does not
// interpret are kept in Extra and written back unchanged.
type Style struct {
	Version int                `json:"version" yaml:"version"`
	Name    string             `json:"name,omitempty" yaml:"name,omitempty"`
	Sprite  string             `json:"sprite,omitempty" yaml:"sprite,omitempty"`
	Glyphs  string             `json:"glyphs,omitempty" yaml:"glyphs,omitempty"`
	Sources map[string]*Source `json:"sources" yaml:"sources"`
	Layers  []Layer            `json:"layers" yaml:"layers"`
	Extra   map[string]any     `json:"-" yaml:",inline"`
}

// Source describes where a layer's data comes from. Archive-protocol sources
// carry a single URL; traditional sources carry tile templates.
type Source struct {
	Type        string    `json:"type" yaml:"type"`
	URL         string    `json:"url,omitempty" yaml:"url,omitempty"`
	Tiles       []string  `json:"tiles,omitempty" yaml:"tiles,omitempty"`
	MinZoom     int       `json:"minzoom,omitempty" yaml:"minzoom,omitempty"`
	MaxZoom     int       `json:"maxzoom,omitempty" yaml:"maxzoom,omitempty"`
	TileSize    int       `json:"tileSize,omitempty" yaml:"tileSize,omitempty"`
	Encoding    string    `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	Scheme      string    `json:"scheme,omitempty" yaml:"scheme,omitempty"`
	Bounds      []float64 `json:"bounds,omitempty" yaml:"bounds,omitempty"`
	Attribution string    `json:"attribution,omitempty" yaml:"attribution,omitempty"`
	Data        any       `json:"data,omitempty" yaml:"data,omitempty"`
}

// Layer is a single draw instruction in the style.
type Layer struct {
	ID          string         `json:"id" yaml:"id"`
	Type        string         `json:"type" yaml:"type"`
	Source      string         `json:"source,omitempty" yaml:"source,omitempty"`
	SourceLayer string         `json:"source-layer,omitempty" yaml:"source-layer,omitempty"`
	MinZoom     *float64       `json:"minzoom,omitempty" yaml:"minzoom,omitempty"`
	MaxZoom     *float64       `json:"maxzoom,omitempty" yaml:"maxzoom,omitempty"`
	Filter      any            `json:"filter,omitempty" yaml:"filter,omitempty"`
	Layout      map[string]any `json:"layout,omitempty" yaml:"layout,omitempty"`
	Paint       map[string]any `json:"paint,omitempty" yaml:"paint,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Visibility returns the layer's layout visibility, defaulting to visible.
func (l Layer) Visibility() string {
	if v, ok := l.Layout["visibility"].(string); ok && v == Hidden {
		return Hidden
	}
	return Visible
}

// SetVisibility writes the layout visibility property.
func (l *Layer) SetVisibility(visible bool) {
	if l.Layout == nil {
		l.Layout = map[string]any{}
	}
	if visible {
		l.Layout["visibility"] = Visible
	} else {
		l.Layout["visibility"] = Hidden
	}
}

type styleAlias Style

// UnmarshalJSON decodes the known fields and keeps the rest in Extra.
func (s *Style) UnmarshalJSON(data []byte) error {
	var a styleAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range []string{"version", "name", "sprite", "glyphs", "sources", "layers"} {
		delete(raw, k)
	}
	if len(raw) > 0 {
		a.Extra = raw
	}
	*s = Style(a)
	return nil
}

// MarshalJSON writes the known fields merged with Extra.
func (s Style) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(styleAlias(s))
	if err != nil {
		return nil, err
	}
	if len(s.Extra) == 0 {
		return known, nil
	}
	merged := make(map[string]any, len(s.Extra)+6)
	for k, v := range s.Extra {
		merged[k] = v
	}
	var fields map[string]any
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// Parse decodes a style document and checks its invariants.
func Parse(data []byte) (*Style, error) {
	var s Style
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing style: %w", err)
	}
	if s.Sources == nil {
		s.Sources = map[string]*Source{}
	}
	if s.Layers == nil {
		s.Layers = []Layer{}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks that layer identifiers are present and unique.
func (s *Style) Validate() error {
	seen := make(map[string]struct{}, len(s.Layers))
	for i, l := range s.Layers {
		if l.ID == "" {
			return fmt.Errorf("layer %d has no id", i)
		}
		if _, dup := seen[l.ID]; dup {
			return fmt.Errorf("duplicate layer id %q", l.ID)
		}
		seen[l.ID] = struct{}{}
	}
	return nil
}

// Clone returns a deep copy of the document.
func (s *Style) Clone() *Style {
	data, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("style: clone: %v", err))
	}
	var out Style
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("style: clone: %v", err))
	}
	if out.Sources == nil {
		out.Sources = map[string]*Source{}
	}
	if out.Layers == nil {
		out.Layers = []Layer{}
	}
	return &out
}

// Layer returns the layer with the given id.
func (s *Style) Layer(id string) (Layer, bool) {
	for _, l := range s.Layers {
		if l.ID == id {
			return l, true
		}
	}
	return Layer{}, false
}

// LayerIDs returns the layer identifiers in document order.
func (s *Style) LayerIDs() []string {
	ids := make([]string, len(s.Layers))
	for i, l := range s.Layers {
		ids[i] = l.ID
	}
	return ids
}

// FallbackStyle is the minimal document used when no style can be loaded:
// a single background fill and no sources.
func FallbackStyle() *Style {
	return &Style{
		Version: 8,
		Name:    "fallback",
		Sources: map[string]*Source{},
		Layers: []Layer{{
			ID:   "background",
			Type: "background",
			Paint: map[string]any{
				"background-color": "#f8f4f0",
			},
		}},
	}
}
