package pmtiles

import "strings"

// TileJSON describes an archive for clients that do not speak the archive
// protocol.
type TileJSON struct {
	TileJSON     string    `json:"tilejson" doc:"TileJSON version"`
	Scheme       string    `json:"scheme"`
	Tiles        []string  `json:"tiles"`
	Name         string    `json:"name,omitempty"`
	Description  string    `json:"description,omitempty"`
	Attribution  string    `json:"attribution,omitempty"`
	Version      string    `json:"version,omitempty"`
	VectorLayers any       `json:"vector_layers,omitempty"`
	Bounds       []float64 `json:"bounds"`
	Center       []float64 `json:"center"`
	MinZoom      uint8     `json:"minzoom"`
	MaxZoom      uint8     `json:"maxzoom"`
}

// NewTileJSON builds the TileJSON of an archive whose tiles are served
// under tileURL as {z}/{x}/{y}.<ext>.
func NewTileJSON(h Header, metadata map[string]any, tileURL string) TileJSON {
	str := func(k string) string {
		s, _ := metadata[k].(string)
		return s
	}
	b := h.Bound()
	c := h.Center()
	return TileJSON{
		TileJSON:     "3.0.0",
		Scheme:       "xyz",
		Tiles:        []string{strings.TrimSuffix(tileURL, "/") + "/{z}/{x}/{y}." + h.TileType.Ext()},
		Name:         str("name"),
		Description:  str("description"),
		Attribution:  str("attribution"),
		Version:      str("version"),
		VectorLayers: metadata["vector_layers"],
		Bounds:       []float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()},
		Center:       []float64{c.Lon(), c.Lat(), float64(h.CenterZoom)},
		MinZoom:      h.MinZoom,
		MaxZoom:      h.MaxZoom,
	}
}
