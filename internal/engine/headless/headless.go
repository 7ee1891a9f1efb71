// Package headless is an in-process rendering engine that keeps the live
// layer stack of a map without drawing it. Browsers mirror its stack through
// the session event stream.
package headless

import (
	"context"
	"fmt"
	"sync"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-basemap/internal/engine"
	"github.com/joeblew999/plat-basemap/internal/style"
)

// Engine implements engine.Engine over an in-memory style document.
type Engine struct {
	mu        sync.RWMutex
	doc       *style.Style
	opts      engine.Options
	maxBounds orb.Bound
	view      orb.Bound
	handlers  map[string][]engine.Handler
	loaded    bool
	removed   bool
}

// New is an engine.Factory.
func New(ctx context.Context, opts engine.Options) (engine.Engine, error) {
	if opts.Style == nil {
		return nil, fmt.Errorf("headless: no style")
	}
	if err := opts.Style.Validate(); err != nil {
		return nil, fmt.Errorf("headless: %w", err)
	}
	doc := opts.Style.Clone()
	for _, l := range doc.Layers {
		if err := checkSource(doc, l); err != nil {
			return nil, fmt.Errorf("headless: %w", err)
		}
	}
	e := &Engine{
		doc:      doc,
		opts:     opts,
		handlers: make(map[string][]engine.Handler),
		loaded:   true,
	}
	if isSet(opts.Bounds) {
		e.maxBounds = opts.Bounds
	}
	e.view = orb.Bound{Min: opts.Center, Max: opts.Center}
	return e, nil
}

var _ engine.Engine = (*Engine)(nil)

func checkSource(doc *style.Style, l style.Layer) error {
	if l.Type == "background" || l.Source == "" {
		return nil
	}
	if _, ok := doc.Sources[l.Source]; !ok {
		return fmt.Errorf("layer %q references unknown source %q", l.ID, l.Source)
	}
	return nil
}

func (e *Engine) index(id string) int {
	for i, l := range e.doc.Layers {
		if l.ID == id {
			return i
		}
	}
	return -1
}

// AddLayer inserts layer below beforeID, or on top when beforeID is empty.
func (e *Engine) AddLayer(layer style.Layer, beforeID string) error {
	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return fmt.Errorf("engine removed")
	}
	if e.index(layer.ID) >= 0 {
		e.mu.Unlock()
		return fmt.Errorf("layer %q already exists", layer.ID)
	}
	if err := checkSource(e.doc, layer); err != nil {
		e.mu.Unlock()
		return err
	}
	at := len(e.doc.Layers)
	if beforeID != "" {
		at = e.index(beforeID)
		if at < 0 {
			e.mu.Unlock()
			return fmt.Errorf("before layer %q does not exist", beforeID)
		}
	}
	e.doc.Layers = append(e.doc.Layers, style.Layer{})
	copy(e.doc.Layers[at+1:], e.doc.Layers[at:])
	e.doc.Layers[at] = layer
	e.mu.Unlock()

	e.emit(engine.Event{Type: engine.EventLayer, LayerID: layer.ID, Action: "added"})
	return nil
}

// RemoveLayer deletes a layer from the stack.
func (e *Engine) RemoveLayer(id string) error {
	e.mu.Lock()
	i := e.index(id)
	if i < 0 {
		e.mu.Unlock()
		return fmt.Errorf("layer %q does not exist", id)
	}
	e.doc.Layers = append(e.doc.Layers[:i], e.doc.Layers[i+1:]...)
	e.mu.Unlock()

	e.emit(engine.Event{Type: engine.EventLayer, LayerID: id, Action: "removed"})
	return nil
}

// GetLayer returns a copy of a live layer.
func (e *Engine) GetLayer(id string) (style.Layer, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if i := e.index(id); i >= 0 {
		return e.doc.Layers[i], true
	}
	return style.Layer{}, false
}

// LayerIDs returns the live stack bottom to top.
func (e *Engine) LayerIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.doc.LayerIDs()
}

// SetLayoutProperty sets a layout property of a live layer.
func (e *Engine) SetLayoutProperty(id, name string, value any) error {
	return e.setProperty(id, func(l *style.Layer) {
		if l.Layout == nil {
			l.Layout = map[string]any{}
		}
		l.Layout[name] = value
	})
}

// SetPaintProperty sets a paint property of a live layer.
func (e *Engine) SetPaintProperty(id, name string, value any) error {
	return e.setProperty(id, func(l *style.Layer) {
		if l.Paint == nil {
			l.Paint = map[string]any{}
		}
		l.Paint[name] = value
	})
}

func (e *Engine) setProperty(id string, fn func(*style.Layer)) error {
	e.mu.Lock()
	i := e.index(id)
	if i < 0 {
		e.mu.Unlock()
		return fmt.Errorf("layer %q does not exist", id)
	}
	l := e.doc.Layers[i]
	l.Layout = cloneMap(l.Layout)
	l.Paint = cloneMap(l.Paint)
	fn(&l)
	e.doc.Layers[i] = l
	e.mu.Unlock()

	e.emit(engine.Event{Type: engine.EventLayer, LayerID: id, Action: "updated"})
	return nil
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Style returns a snapshot of the live document.
func (e *Engine) Style() *style.Style {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.doc.Clone()
}

// SetMaxBounds constrains the viewport.
func (e *Engine) SetMaxBounds(b orb.Bound) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maxBounds = b
	if isSet(b) && isSet(e.view) {
		e.view = clamp(e.view, b)
	}
}

// FitBounds moves the viewport to b, clamped to the max bounds.
func (e *Engine) FitBounds(b orb.Bound) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if isSet(e.maxBounds) {
		b = clamp(b, e.maxBounds)
	}
	e.view = b
}

// MaxBounds returns the viewport constraint.
func (e *Engine) MaxBounds() orb.Bound {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.maxBounds
}

// View returns the current viewport.
func (e *Engine) View() orb.Bound {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.view
}

// isSet reports whether b is a real extent rather than the zero value.
func isSet(b orb.Bound) bool {
	return !b.IsZero() && !b.IsEmpty()
}

func clamp(b, limit orb.Bound) orb.Bound {
	if !b.Intersects(limit) {
		return limit
	}
	return orb.Bound{
		Min: orb.Point{max(b.Min[0], limit.Min[0]), max(b.Min[1], limit.Min[1])},
		Max: orb.Point{min(b.Max[0], limit.Max[0]), min(b.Max[1], limit.Max[1])},
	}
}

// On registers an event handler. A "load" handler registered after the
// engine has loaded fires immediately.
func (e *Engine) On(event string, h engine.Handler) {
	e.mu.Lock()
	e.handlers[event] = append(e.handlers[event], h)
	fire := event == engine.EventLoad && e.loaded && !e.removed
	e.mu.Unlock()

	if fire {
		h(engine.Event{Type: engine.EventLoad})
	}
}

// ReportError emits an error event, as a tile fetch failure would.
func (e *Engine) ReportError(sourceID string, err error) {
	e.emit(engine.Event{Type: engine.EventError, SourceID: sourceID, Err: err})
}

// ReportSourceData emits a sourcedata event.
func (e *Engine) ReportSourceData(sourceID string) {
	e.emit(engine.Event{Type: engine.EventSourceData, SourceID: sourceID})
}

// Remove releases the engine; later mutations fail and no events fire.
func (e *Engine) Remove() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removed = true
	e.handlers = map[string][]engine.Handler{}
}

func (e *Engine) emit(ev engine.Event) {
	e.mu.RLock()
	if e.removed {
		e.mu.RUnlock()
		return
	}
	hs := append([]engine.Handler(nil), e.handlers[ev.Type]...)
	e.mu.RUnlock()

	for _, h := range hs {
		h(ev)
	}
}
