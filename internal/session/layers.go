package session

import (
	"fmt"

	"github.com/joeblew999/plat-basemap/internal/engine"
	"github.com/joeblew999/plat-basemap/internal/order"
	"github.com/joeblew999/plat-basemap/internal/style"
)

// handles returns the engine and live order handle, or why there are none.
func (s *Session) handles() (engine.Engine, *order.Live, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.destroyed {
		return nil, nil, ErrDestroyed
	}
	if s.eng == nil {
		return nil, nil, ErrNotReady
	}
	return s.eng, s.live, nil
}

// lookup returns a live layer, warning when it does not exist.
func (s *Session) lookup(eng engine.Engine, id string) (style.Layer, error) {
	l, ok := eng.GetLayer(id)
	if !ok {
		s.logger.Warn("layer not found", "layer", id)
		return style.Layer{}, fmt.Errorf("%w: %q", order.ErrLayerNotFound, id)
	}
	return l, nil
}

// SetVisibility shows or hides a layer.
func (s *Session) SetVisibility(id string, visible bool) error {
	eng, _, err := s.handles()
	if err != nil {
		return err
	}
	if _, err := s.lookup(eng, id); err != nil {
		return err
	}
	v := style.Hidden
	if visible {
		v = style.Visible
	}
	return eng.SetLayoutProperty(id, "visibility", v)
}

// ToggleVisibility flips a layer's visibility and returns the new state.
func (s *Session) ToggleVisibility(id string) (bool, error) {
	eng, _, err := s.handles()
	if err != nil {
		return false, err
	}
	l, err := s.lookup(eng, id)
	if err != nil {
		return false, err
	}
	visible := l.Visibility() == style.Hidden
	return visible, s.SetVisibility(id, visible)
}

// SetPaint sets a paint property of a layer.
func (s *Session) SetPaint(id, name string, value any) error {
	eng, _, err := s.handles()
	if err != nil {
		return err
	}
	if _, err := s.lookup(eng, id); err != nil {
		return err
	}
	return eng.SetPaintProperty(id, name, value)
}

// SetLayout sets a layout property of a layer.
func (s *Session) SetLayout(id, name string, value any) error {
	eng, _, err := s.handles()
	if err != nil {
		return err
	}
	if _, err := s.lookup(eng, id); err != nil {
		return err
	}
	return eng.SetLayoutProperty(id, name, value)
}

// InsertLayer adds a layer at the position its rank implies.
func (s *Session) InsertLayer(id string, rank int, layer style.Layer) error {
	_, live, err := s.handles()
	if err != nil {
		return err
	}
	return live.InsertWithOrder(id, rank, layer)
}

// Reorder gives a live layer a new rank and moves it accordingly.
func (s *Session) Reorder(id string, rank int) error {
	_, live, err := s.handles()
	if err != nil {
		return err
	}
	return live.ReassignOrder(id, rank)
}

// RemoveLayer drops a live layer.
func (s *Session) RemoveLayer(id string) error {
	eng, live, err := s.handles()
	if err != nil {
		return err
	}
	if _, err := s.lookup(eng, id); err != nil {
		return err
	}
	return live.Remove(id)
}

// SetRanks merges ranks into the session's rank table and re-sorts the live
// stack to match. Ids without a live layer only affect later inserts.
func (s *Session) SetRanks(ranks order.RankTable) error {
	_, live, err := s.handles()
	if err != nil {
		return err
	}
	if err := live.SetRanks(ranks); err != nil {
		return err
	}
	s.logger.Info("ranks updated", "count", len(ranks))
	return nil
}

// Ranks returns a snapshot of the session's rank table.
func (s *Session) Ranks() (order.RankTable, error) {
	_, live, err := s.handles()
	if err != nil {
		return nil, err
	}
	return live.Ranks(), nil
}

// Layers lists the live stack bottom to top with resolved ranks.
func (s *Session) Layers() ([]LayerInfo, error) {
	eng, live, err := s.handles()
	if err != nil {
		return nil, err
	}
	ranks := live.Ranks()
	ids := eng.LayerIDs()
	out := make([]LayerInfo, 0, len(ids))
	for _, id := range ids {
		l, ok := eng.GetLayer(id)
		if !ok {
			continue
		}
		out = append(out, LayerInfo{
			ID:      id,
			Type:    l.Type,
			Source:  l.Source,
			Rank:    ranks.Rank(id),
			Ranked:  ranks.Has(id),
			Visible: l.Visibility() == style.Visible,
		})
	}
	return out, nil
}

// Style returns a snapshot of the live style document.
func (s *Session) Style() (*style.Style, error) {
	eng, _, err := s.handles()
	if err != nil {
		return nil, err
	}
	return eng.Style(), nil
}
