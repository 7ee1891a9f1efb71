// Package session assembles a map: it loads the style, adapts it to the
// environment, merges in the terrain overlay, fixes the draw order and hands
// the result to a rendering engine. Afterwards it is the only way callers
// mutate the live layer stack.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/joeblew999/plat-basemap/internal/contour"
	"github.com/joeblew999/plat-basemap/internal/engine"
	"github.com/joeblew999/plat-basemap/internal/env"
	"github.com/joeblew999/plat-basemap/internal/logging"
	"github.com/joeblew999/plat-basemap/internal/order"
	"github.com/joeblew999/plat-basemap/internal/rewrite"
	"github.com/joeblew999/plat-basemap/internal/style"
)

var (
	// ErrDestroyed is returned by every call on a destroyed session.
	ErrDestroyed = errors.New("session destroyed")
	// ErrNotReady is returned by mutations before the engine exists.
	ErrNotReady = errors.New("session has no engine yet")
)

// State is a step of the session lifecycle. States only move forward.
type State int

const (
	Uninitialized State = iota
	LoadingStyle
	StyleReady
	EngineConstructed
	Interactive
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case LoadingStyle:
		return "loading-style"
	case StyleReady:
		return "style-ready"
	case EngineConstructed:
		return "engine-constructed"
	case Interactive:
		return "interactive"
	case Failed:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// StyleLoader yields the raw style document. On failure it still returns a
// usable style together with the diagnostic.
type StyleLoader interface {
	Load(ctx context.Context) (*style.Style, error)
}

// Deps are the collaborators a session is wired to.
type Deps struct {
	Env       env.Classification
	Engine    engine.Factory
	Protocols *engine.Protocols
	// Archive serves the archive protocol; nil leaves it unregistered.
	Archive engine.ProtocolHandler
	// Loader overrides the path-based style loader.
	Loader StyleLoader
	// Contours is shared across sessions so the plugin is built once.
	Contours *contour.Provider
	// DEM backs the shared DEM protocol when set.
	DEM    contour.TileFetcher
	Logger *log.Logger
	// Events receives layer, notice and state events.
	Events func(Event)
	Now    func() time.Time
}

// Event is a change observers of a session are told about.
type Event struct {
	Kind    string `json:"kind" enum:"layer,notice,state"`
	LayerID string `json:"layerId,omitempty"`
	Action  string `json:"action,omitempty"`
	Message string `json:"message,omitempty"`
}

// Notice is a dismissible, auto-expiring message about an engine error.
type Notice struct {
	Message  string    `json:"message"`
	SourceID string    `json:"sourceId,omitempty"`
	Expires  time.Time `json:"expires"`
}

// LayerInfo describes one live layer.
type LayerInfo struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Source  string `json:"source,omitempty"`
	Rank    int    `json:"rank"`
	Ranked  bool   `json:"ranked" doc:"Whether the rank comes from the rank table"`
	Visible bool   `json:"visible"`
}

// Session is one configured map instance.
type Session struct {
	cfg    Config
	deps   Deps
	logger *log.Logger

	mu        sync.RWMutex
	state     State
	destroyed bool
	diag      error
	eng       engine.Engine
	live      *order.Live
	notice    *Notice
	protocols []string
}

// New validates cfg and returns an uninitialized session.
func New(cfg Config, deps Deps) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("session: no engine factory")
	}
	if deps.Protocols == nil {
		deps.Protocols = engine.NewProtocols()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	cfg.Ranks = cfg.Ranks.Clone()
	return &Session{cfg: cfg, deps: deps, logger: deps.Logger}, nil
}

// Open is New followed by Start.
func Open(ctx context.Context, cfg Config, deps Deps) (*Session, error) {
	s, err := New(cfg, deps)
	if err != nil {
		return nil, err
	}
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Start runs the composition pipeline and constructs the engine. A style
// that cannot be fetched is replaced by the fallback style and recorded as
// the session's diagnostic; only engine construction failures are fatal.
func (s *Session) Start(ctx context.Context) error {
	if s.logger == nil {
		s.logger = logging.FromContext(ctx)
	}
	if !s.advance(LoadingStyle) {
		return s.stopped()
	}

	if s.deps.Archive != nil {
		s.register(strings.TrimSuffix(rewrite.ArchiveScheme, "://"), s.deps.Archive)
	}

	loader := s.deps.Loader
	if loader == nil {
		loader = style.NewLoader(s.cfg.StylePath, s.cfg.FallbackStylePath)
	}
	doc, err := loader.Load(ctx)
	if err != nil {
		s.logger.Warn("style load failed, using fallback", "err", err)
		s.mu.Lock()
		s.diag = err
		s.mu.Unlock()
	}
	if doc == nil {
		doc = style.FallbackStyle()
	}
	if !s.advance(StyleReady) {
		return s.stopped()
	}

	doc = s.compose(doc)

	eng, err := s.deps.Engine(ctx, engine.Options{
		Container:          s.cfg.Container,
		Style:              doc,
		Center:             s.cfg.Center,
		Zoom:               s.cfg.Zoom,
		Bounds:             s.cfg.Bound(),
		MinZoom:            s.cfg.MinZoom,
		MaxZoom:            s.cfg.MaxZoom,
		Interaction:        s.Profile().Interaction(),
		AttributionControl: s.cfg.Attribution,
	})
	if err != nil {
		s.fail(err)
		return fmt.Errorf("session: construct engine: %w", err)
	}

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		eng.Remove()
		return ErrDestroyed
	}
	s.eng = eng
	s.live = order.NewLive(eng, s.cfg.Ranks.Clone(), s.logger)
	s.mu.Unlock()

	if !s.advance(EngineConstructed) {
		return s.stopped()
	}
	if b := s.cfg.Bound(); !b.IsZero() {
		eng.SetMaxBounds(b)
	}
	eng.On(engine.EventError, s.onError)
	eng.On(engine.EventLayer, func(ev engine.Event) {
		s.emit(Event{Kind: "layer", LayerID: ev.LayerID, Action: ev.Action})
	})
	eng.On(engine.EventLoad, func(engine.Event) {
		s.advance(Interactive)
	})
	return nil
}

// compose rewrites, extends and orders the loaded document.
func (s *Session) compose(doc *style.Style) *style.Style {
	n := rewrite.New(s.cfg.TilesMode, s.cfg.TilesPrefix, s.deps.Env).Apply(doc)
	s.logger.Debug("rewrote tile urls", "count", n, "mode", s.cfg.TilesMode)

	if s.cfg.Contour.Enabled {
		if err := s.applyContours(doc); err != nil {
			s.logger.Warn("terrain overlay skipped", "err", err)
		}
	}

	doc.Layers = order.Sort(doc.Layers, s.cfg.Ranks)
	return doc
}

func (s *Session) applyContours(doc *style.Style) error {
	provider := s.deps.Contours
	if provider == nil {
		pc, err := s.cfg.Contour.Provider()
		if err != nil {
			return err
		}
		provider = contour.NewProvider(pc, nil)
	}
	if err := provider.Apply(doc); err != nil {
		return err
	}
	if s.deps.DEM == nil {
		return nil
	}
	if src, ok := mustPlugin(provider).(*contour.DemSource); ok {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.destroyed {
			return ErrDestroyed
		}
		src.Register(s.deps.Protocols, s.deps.DEM)
		s.protocols = append(s.protocols, src.SharedProtocol())
	}
	return nil
}

// mustPlugin returns the provider's plugin; Apply has already built it.
func mustPlugin(p *contour.Provider) contour.Plugin {
	plugin, _ := p.Plugin()
	return plugin
}

func (s *Session) register(scheme string, h engine.ProtocolHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	s.deps.Protocols.AddProtocol(scheme, h)
	s.protocols = append(s.protocols, scheme)
}

func (s *Session) onError(ev engine.Event) {
	msg := "map data could not be loaded"
	if ev.Err != nil {
		msg = ev.Err.Error()
		if isRangeError(msg) {
			msg = "tile server does not support byte-range requests: " + msg
		}
	}
	n := &Notice{Message: msg, SourceID: ev.SourceID, Expires: s.deps.Now().Add(s.cfg.NoticeTTL)}

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.notice = n
	s.mu.Unlock()

	s.logger.Warn("engine error", "source", ev.SourceID, "err", ev.Err)
	s.emit(Event{Kind: "notice", Message: msg})
}

func isRangeError(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "range") || strings.Contains(m, "content-length")
}

// advance moves the state forward; it refuses backward moves and any move
// after destroy or failure.
func (s *Session) advance(to State) bool {
	s.mu.Lock()
	if s.destroyed || s.state == Failed || to <= s.state {
		s.mu.Unlock()
		return false
	}
	s.state = to
	s.mu.Unlock()

	s.emit(Event{Kind: "state", Action: to.String()})
	return true
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	if !s.destroyed {
		s.state = Failed
		s.diag = err
	}
	s.mu.Unlock()
	s.logger.Error("session failed", "err", err)
}

func (s *Session) stopped() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.destroyed {
		return ErrDestroyed
	}
	return fmt.Errorf("session: cannot start from state %s", s.state)
}

func (s *Session) emit(ev Event) {
	if s.deps.Events != nil {
		s.deps.Events(ev)
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Diagnostic returns the style-load or engine error recorded, if any.
func (s *Session) Diagnostic() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.diag
}

// Env returns the environment the session was built for.
func (s *Session) Env() env.Classification { return s.deps.Env }

// Profile returns the device profile of the session.
func (s *Session) Profile() env.Profile { return env.ProfileFor(s.deps.Env) }

// Config returns the configuration the session was built from. Runtime
// rank changes are reported by Layers, not here.
func (s *Session) Config() Config {
	c := s.cfg
	c.Ranks = c.Ranks.Clone()
	return c
}

// Notice returns the current notice, or nil once it has expired.
func (s *Session) Notice() *Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notice != nil && !s.deps.Now().Before(s.notice.Expires) {
		s.notice = nil
	}
	if s.notice == nil {
		return nil
	}
	n := *s.notice
	return &n
}

// DismissNotice clears the current notice.
func (s *Session) DismissNotice() {
	s.mu.Lock()
	s.notice = nil
	s.mu.Unlock()
}

// Destroy releases the protocol registrations and the engine. It is safe
// in any state and more than once.
func (s *Session) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	eng := s.eng
	s.eng, s.live = nil, nil
	protocols := s.protocols
	s.protocols = nil
	s.mu.Unlock()

	for _, scheme := range protocols {
		s.deps.Protocols.RemoveProtocol(scheme)
	}
	if eng != nil {
		eng.Remove()
	}
	if s.logger != nil {
		s.logger.Debug("session destroyed")
	}
}

// Destroyed reports whether Destroy has been called.
func (s *Session) Destroyed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.destroyed
}
