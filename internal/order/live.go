package order

import (
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/joeblew999/plat-basemap/internal/style"
)

var (
	// ErrLayerNotFound is returned when a mutation names a layer the live
	// stack does not hold.
	ErrLayerNotFound = errors.New("layer not found")
	// ErrLayerExists is returned when inserting an id that is already live.
	ErrLayerExists = errors.New("layer already exists")
)

// Stack is the part of a rendering engine the live reconciler drives.
type Stack interface {
	LayerIDs() []string
	GetLayer(id string) (style.Layer, bool)
	AddLayer(layer style.Layer, beforeID string) error
	RemoveLayer(id string) error
}

// Live keeps a rendered layer stack ordered by a rank table. The table is
// owned by the session; Live is the only writer after construction.
type Live struct {
	stack  Stack
	logger *log.Logger

	mu    sync.RWMutex // guards ranks
	ranks RankTable

	stackMu sync.Mutex // serialises every mutation of the stack

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex // per-layer remove/re-add cycles
}

// NewLive creates a live reconciler over stack. A nil stack makes every
// operation a no-op until the session has an engine.
func NewLive(stack Stack, ranks RankTable, logger *log.Logger) *Live {
	if ranks == nil {
		ranks = RankTable{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Live{
		stack:  stack,
		logger: logger,
		ranks:  ranks,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Ranks returns a snapshot of the rank table.
func (l *Live) Ranks() RankTable {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ranks.Clone()
}

// Rank resolves the current rank of id.
func (l *Live) Rank(id string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ranks.Rank(id)
}

// InsertWithOrder records rank for id and inserts layer into the live stack
// at the position the rank implies. A failed insert leaves the table as it
// was.
func (l *Live) InsertWithOrder(id string, rank int, layer style.Layer) error {
	if l.stack == nil {
		return nil
	}
	if rank < 0 {
		return fmt.Errorf("rank %d for %q: must not be negative", rank, id)
	}
	unlock := l.lock(id)
	defer unlock()
	l.stackMu.Lock()
	defer l.stackMu.Unlock()

	if _, exists := l.stack.GetLayer(id); exists {
		return fmt.Errorf("%w: %q", ErrLayerExists, id)
	}
	layer.ID = id
	restore := l.setRank(id, rank)
	if err := l.add(id, rank, layer); err != nil {
		restore()
		return err
	}
	return nil
}

// ReassignOrder moves a live layer to newRank. Engines have no re-rank in
// place, so the layer is removed and inserted again. When the insert fails
// the layer goes back where it was and keeps its old rank.
func (l *Live) ReassignOrder(id string, newRank int) error {
	if l.stack == nil {
		return nil
	}
	if newRank < 0 {
		return fmt.Errorf("rank %d for %q: must not be negative", newRank, id)
	}
	unlock := l.lock(id)
	defer unlock()
	l.stackMu.Lock()
	defer l.stackMu.Unlock()

	layer, ok := l.stack.GetLayer(id)
	if !ok {
		l.logger.Warn("reorder of unknown layer ignored", "layer", id, "rank", newRank)
		return fmt.Errorf("%w: %q", ErrLayerNotFound, id)
	}
	successor := l.successor(id)
	if err := l.stack.RemoveLayer(id); err != nil {
		return fmt.Errorf("removing %q: %w", id, err)
	}
	restore := l.setRank(id, newRank)
	if err := l.add(id, newRank, layer); err != nil {
		restore()
		l.logger.Error("re-adding layer failed", "layer", id, "rank", newRank, "err", err)
		if rerr := l.stack.AddLayer(layer, successor); rerr != nil {
			return errors.Join(err, fmt.Errorf("restoring %q before %q: %w", id, successor, rerr))
		}
		return err
	}
	l.logger.Debug("layer reordered", "layer", id, "rank", newRank)
	return nil
}

// Remove drops a live layer. The rank entry stays, so a layer added again
// under the same id lands where it was.
func (l *Live) Remove(id string) error {
	if l.stack == nil {
		return nil
	}
	unlock := l.lock(id)
	defer unlock()
	l.stackMu.Lock()
	defer l.stackMu.Unlock()

	if _, ok := l.stack.GetLayer(id); !ok {
		return fmt.Errorf("%w: %q", ErrLayerNotFound, id)
	}
	if err := l.stack.RemoveLayer(id); err != nil {
		return fmt.Errorf("removing %q: %w", id, err)
	}
	l.logger.Debug("layer removed", "layer", id)
	return nil
}

// SetRanks merges ranks into the table and re-sorts the live stack.
func (l *Live) SetRanks(ranks RankTable) error {
	for id, r := range ranks {
		if r < 0 {
			return fmt.Errorf("rank %d for %q: must not be negative", r, id)
		}
	}
	l.mu.Lock()
	l.ranks = l.ranks.Merge(ranks)
	l.mu.Unlock()
	return l.Reconcile()
}

// Reconcile re-sorts the live stack against the table by moving every layer
// that is out of place. It is used after bulk table edits.
func (l *Live) Reconcile() error {
	if l.stack == nil {
		return nil
	}
	ranks := l.Ranks()
	want := SortIDs(l.stack.LayerIDs(), ranks)
	moved := 0
	for i := len(want) - 1; i >= 0; i-- {
		id := want[i]
		before := ""
		if i+1 < len(want) {
			before = want[i+1]
		}
		ok, err := l.move(id, before)
		if err != nil {
			return err
		}
		if ok {
			moved++
		}
	}
	if moved > 0 {
		l.logger.Debug("stack reconciled", "moved", moved)
	}
	return nil
}

// setRank records rank for id and returns a func that undoes it.
func (l *Live) setRank(id string, rank int) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	old, had := l.ranks[id]
	l.ranks[id] = rank
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if had {
			l.ranks[id] = old
		} else {
			delete(l.ranks, id)
		}
	}
}

// add inserts layer at the reference position for rank. stackMu is held.
func (l *Live) add(id string, rank int, layer style.Layer) error {
	before := Reference(l.stack.LayerIDs(), l.Ranks(), rank)
	if err := l.stack.AddLayer(layer, before); err != nil {
		return fmt.Errorf("adding %q before %q: %w", id, before, err)
	}
	return nil
}

// successor returns the id directly above id, or "" when id is on top.
func (l *Live) successor(id string) string {
	ids := l.stack.LayerIDs()
	for i, cur := range ids {
		if cur == id && i+1 < len(ids) {
			return ids[i+1]
		}
	}
	return ""
}

// move places id directly below before (or on top) unless it is already
// there, and reports whether it moved.
func (l *Live) move(id, before string) (bool, error) {
	unlock := l.lock(id)
	defer unlock()
	l.stackMu.Lock()
	defer l.stackMu.Unlock()

	layer, ok := l.stack.GetLayer(id)
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrLayerNotFound, id)
	}
	successor := l.successor(id)
	if successor == before {
		return false, nil
	}
	if err := l.stack.RemoveLayer(id); err != nil {
		return false, err
	}
	if err := l.stack.AddLayer(layer, before); err != nil {
		if rerr := l.stack.AddLayer(layer, successor); rerr != nil {
			return false, errors.Join(err, rerr)
		}
		return false, fmt.Errorf("moving %q before %q: %w", id, before, err)
	}
	return true, nil
}

func (l *Live) lock(id string) func() {
	l.locksMu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.locksMu.Unlock()

	m.Lock()
	return m.Unlock
}
