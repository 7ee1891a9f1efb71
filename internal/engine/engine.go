// Package engine defines the rendering engine a map session drives. The
// engine is an opaque collaborator: it accepts a finished style document at
// construction, then only imperative layer mutations, and reports lifecycle
// and error events.
package engine

import (
	"context"
	"io"
	"sync"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-basemap/internal/env"
	"github.com/joeblew999/plat-basemap/internal/style"
)

// Event names emitted by engines.
const (
	EventLoad       = "load"
	EventError      = "error"
	EventSourceData = "sourcedata"
	EventLayer      = "layer"
)

// Event is a lifecycle, data or error notification.
type Event struct {
	Type     string
	SourceID string
	LayerID  string
	Action   string // for EventLayer: "added", "removed", "updated"
	Err      error
}

// Handler receives engine events.
type Handler func(Event)

// Options is the construction bag handed to an engine factory.
type Options struct {
	Container          string
	Style              *style.Style
	Center             orb.Point
	Zoom               float64
	Bounds             orb.Bound
	MinZoom            float64
	MaxZoom            float64
	Interaction        env.Interaction
	AttributionControl bool
}

// Engine is a live map instance.
type Engine interface {
	AddLayer(layer style.Layer, beforeID string) error
	RemoveLayer(id string) error
	GetLayer(id string) (style.Layer, bool)
	LayerIDs() []string
	SetLayoutProperty(id, name string, value any) error
	SetPaintProperty(id, name string, value any) error
	Style() *style.Style
	SetMaxBounds(b orb.Bound)
	FitBounds(b orb.Bound)
	On(event string, h Handler)
	Remove()
}

// Factory constructs an engine from options.
type Factory func(ctx context.Context, opts Options) (Engine, error)

// TileRequest asks a protocol handler for one tile.
type TileRequest struct {
	URL     string // full protocol URL, e.g. "pmtiles:///tiles/base.pmtiles"
	Archive string // archive path with the scheme removed
	Z       uint8
	X       uint32
	Y       uint32
}

// ProtocolHandler serves tiles for a custom URL scheme. A nil reader with a
// nil error means the tile does not exist.
type ProtocolHandler func(ctx context.Context, req TileRequest) (io.ReadCloser, error)

// Protocols is the registry of custom URL schemes.
type Protocols struct {
	mu       sync.RWMutex
	handlers map[string]ProtocolHandler
}

// NewProtocols creates an empty registry.
func NewProtocols() *Protocols {
	return &Protocols{handlers: make(map[string]ProtocolHandler)}
}

// AddProtocol registers h for scheme, replacing any previous handler.
func (p *Protocols) AddProtocol(scheme string, h ProtocolHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[scheme] = h
}

// RemoveProtocol unregisters scheme.
func (p *Protocols) RemoveProtocol(scheme string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.handlers, scheme)
}

// Handler returns the handler registered for scheme.
func (p *Protocols) Handler(scheme string) (ProtocolHandler, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.handlers[scheme]
	return h, ok
}
