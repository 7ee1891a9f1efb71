package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/joeblew999/plat-basemap/internal/contour"
	"github.com/joeblew999/plat-basemap/internal/engine"
	"github.com/joeblew999/plat-basemap/internal/engine/headless"
	"github.com/joeblew999/plat-basemap/internal/env"
	"github.com/joeblew999/plat-basemap/internal/rewrite"
	"github.com/joeblew999/plat-basemap/internal/session"
	"github.com/joeblew999/plat-basemap/internal/style"
)

var (
	// ErrSessionNotFound is returned for unknown session IDs.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTooManySessions is returned by Create when the registry is full
	// and no session is idle long enough to expire.
	ErrTooManySessions = errors.New("too many sessions")
)

// SessionOptions wires a SessionService.
type SessionOptions struct {
	Config session.Config
	// Engine builds the engine of each session; headless when nil.
	Engine engine.Factory
	Tiles  *TileService
	DEM    contour.TileFetcher
	Bus    *EventBus
	Logger *log.Logger

	// IdleTTL expires sessions no request has touched for this long; zero
	// keeps them until deleted.
	IdleTTL time.Duration
	// MaxSessions caps the registry; zero is unbounded.
	MaxSessions int
	// Now is the clock used for idle tracking; time.Now when nil.
	Now func() time.Time
}

// SessionService is the registry of live map sessions. The contour provider
// is shared so the overlay plugin is built once for the process.
type SessionService struct {
	cfg      session.Config
	resolver *env.Resolver
	engine   engine.Factory
	tiles    *TileService
	contours *contour.Provider
	dem      contour.TileFetcher
	bus      *EventBus
	logger   *log.Logger

	idleTTL     time.Duration
	maxSessions int
	now         func() time.Time

	mu       sync.RWMutex
	sessions map[string]*entry

	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

type entry struct {
	s       *session.Session
	created time.Time
	used    atomic.Int64 // unix nanos of the last lookup
}

func (e *entry) touch(t time.Time) { e.used.Store(t.UnixNano()) }

func (e *entry) lastUsed() time.Time { return time.Unix(0, e.used.Load()) }

// NewSessionService validates the configuration and creates the registry.
func NewSessionService(opts SessionOptions) (*SessionService, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Engine == nil {
		opts.Engine = headless.New
	}
	if opts.Bus == nil {
		opts.Bus = NewEventBus()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.IdleTTL < 0 || opts.MaxSessions < 0 {
		return nil, fmt.Errorf("session service: idle ttl and max sessions must not be negative")
	}

	s := &SessionService{
		cfg:      opts.Config,
		resolver: env.NewResolver(opts.Config.SubpathHosts),
		engine:   opts.Engine,
		tiles:    opts.Tiles,
		dem:      opts.DEM,
		bus:      opts.Bus,
		logger:   opts.Logger,
		sessions: make(map[string]*entry),

		idleTTL:     opts.IdleTTL,
		maxSessions: opts.MaxSessions,
		now:         opts.Now,
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	if opts.Config.Contour.Enabled {
		pc, err := opts.Config.Contour.Provider()
		if err != nil {
			return nil, err
		}
		s.contours = contour.NewProvider(pc, nil)
	}
	s.startJanitor()
	return s, nil
}

// startJanitor sweeps idle sessions on a ticker until Close.
func (s *SessionService) startJanitor() {
	if s.idleTTL == 0 {
		close(s.stopped)
		return
	}
	every := max(s.idleTTL/4, time.Second)
	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

// Sweep destroys every session idle for at least the idle TTL and returns
// how many went.
func (s *SessionService) Sweep() int {
	if s.idleTTL == 0 {
		return 0
	}
	cutoff := s.now().Add(-s.idleTTL)

	expired := make(map[string]*entry)
	s.mu.Lock()
	for id, e := range s.sessions {
		if !e.lastUsed().After(cutoff) {
			expired[id] = e
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for id, e := range expired {
		s.destroy(id, e, "expired")
	}
	if len(expired) > 0 {
		s.logger.Info("idle sessions expired", "count", len(expired), "ttl", s.idleTTL)
	}
	return len(expired)
}

// Config returns the configuration new sessions are built from.
func (s *SessionService) Config() session.Config {
	c := s.cfg
	c.Ranks = c.Ranks.Clone()
	return c
}

// Bus returns the event bus sessions publish into.
func (s *SessionService) Bus() *EventBus { return s.bus }

// Resolve classifies a request environment with the configured hosting
// patterns.
func (s *SessionService) Resolve(in env.Input) env.Classification {
	return s.resolver.Resolve(in)
}

func (s *SessionService) deps(id string, c env.Classification) session.Deps {
	d := session.Deps{
		Env:       c,
		Engine:    s.engine,
		Protocols: engine.NewProtocols(),
		Contours:  s.contours,
		DEM:       s.dem,
		Logger:    s.logger.With("session", shortID(id)),
	}
	if s.tiles != nil && s.cfg.TilesMode == rewrite.ModeArchive {
		d.Archive = s.tiles.ArchiveHandler()
	}
	if id != "" {
		d.Events = s.bus.Forward(id)
	}
	return d
}

// Create builds, starts and registers a session for the environment.
func (s *SessionService) Create(ctx context.Context, in env.Input) (SessionInfo, error) {
	id := uuid.NewString()
	sess, err := session.New(s.cfg, s.deps(id, s.Resolve(in)))
	if err != nil {
		return SessionInfo{}, err
	}

	now := s.now()
	e := &entry{s: sess, created: now}
	e.touch(now)
	if err := s.register(id, e); err != nil {
		sess.Destroy()
		return SessionInfo{}, err
	}

	if err := sess.Start(ctx); err != nil {
		s.remove(id)
		sess.Destroy()
		return SessionInfo{}, fmt.Errorf("starting session: %w", err)
	}
	s.logger.Info("session created", "id", id, "state", sess.State(), "profile", sess.Profile().Name())
	return info(id, e), nil
}

// register adds e unless the registry is full. A full registry is swept
// once before giving up.
func (s *SessionService) register(id string, e *entry) error {
	for attempt := 0; ; attempt++ {
		s.mu.Lock()
		if s.maxSessions == 0 || len(s.sessions) < s.maxSessions {
			s.sessions[id] = e
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()
		if attempt > 0 || s.Sweep() == 0 {
			s.logger.Warn("session registry full", "max", s.maxSessions)
			return fmt.Errorf("%w: limit is %d", ErrTooManySessions, s.maxSessions)
		}
	}
}

// Get returns a live session and marks it used.
func (s *SessionService) Get(id string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	e.touch(s.now())
	return e.s, nil
}

// Info returns the public view of a session and marks it used.
func (s *SessionService) Info(id string) (SessionInfo, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return SessionInfo{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	e.touch(s.now())
	return info(id, e), nil
}

// List returns every live session, oldest first.
func (s *SessionService) List() []SessionInfo {
	s.mu.RLock()
	out := make([]SessionInfo, 0, len(s.sessions))
	for id, e := range s.sessions {
		out = append(out, info(id, e))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID < out[j].ID
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out
}

// Delete destroys a session and forgets it.
func (s *SessionService) Delete(id string) error {
	e := s.remove(id)
	if e == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.destroy(id, e, "deleted")
	return nil
}

func (s *SessionService) destroy(id string, e *entry, reason string) {
	e.s.Destroy()
	s.bus.Publish(Event{Session: id, Event: session.Event{Kind: "state", Action: "destroyed"}})
	s.logger.Info("session destroyed", "id", id, "reason", reason)
}

// Compose runs the composition pipeline for an environment without keeping
// a session and returns the composed style.
func (s *SessionService) Compose(ctx context.Context, in env.Input) (*style.Style, error) {
	sess, err := session.Open(ctx, s.cfg, s.deps("", s.Resolve(in)))
	if err != nil {
		return nil, err
	}
	defer sess.Destroy()
	return sess.Style()
}

// Close stops the idle sweep and destroys every session.
func (s *SessionService) Close() {
	s.stopOnce.Do(func() { close(s.done) })
	<-s.stopped

	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*entry)
	s.mu.Unlock()

	for _, e := range all {
		e.s.Destroy()
	}
}

func (s *SessionService) remove(id string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil
	}
	delete(s.sessions, id)
	return e
}

func info(id string, e *entry) SessionInfo {
	sess := e.s
	out := SessionInfo{
		ID:      id,
		State:   sess.State().String(),
		Created: e.created,
		Used:    e.lastUsed(),
		Env:     sess.Env(),
		Profile: sess.Profile().Name(),
		Notice:  sess.Notice(),
	}
	if err := sess.Diagnostic(); err != nil {
		out.Diagnostic = err.Error()
	}
	if layers, err := sess.Layers(); err == nil {
		out.Layers = len(layers)
	}
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
