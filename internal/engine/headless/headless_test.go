package headless

import (
	"context"
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-basemap/internal/engine"
	"github.com/joeblew999/plat-basemap/internal/style"
)

func testStyle() *style.Style {
	return &style.Style{
		Version: 8,
		Sources: map[string]*style.Source{"base": {Type: style.KindVector, URL: "pmtiles:///tiles/base.pmtiles"}},
		Layers: []style.Layer{
			{ID: "background", Type: "background"},
			{ID: "water", Type: "fill", Source: "base", SourceLayer: "water"},
		},
	}
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(context.Background(), engine.Options{Style: testStyle()})
	require.NoError(t, err)
	return e.(*Engine)
}

func TestNewRejectsUnknownSource(t *testing.T) {
	s := testStyle()
	s.Layers = append(s.Layers, style.Layer{ID: "roads", Type: "line", Source: "missing"})
	_, err := New(context.Background(), engine.Options{Style: s})
	require.Error(t, err)
}

func TestAddRemoveLayer(t *testing.T) {
	e := newEngine(t)

	var events []engine.Event
	e.On(engine.EventLayer, func(ev engine.Event) { events = append(events, ev) })

	require.NoError(t, e.AddLayer(style.Layer{ID: "roads", Type: "line", Source: "base"}, ""))
	require.NoError(t, e.AddLayer(style.Layer{ID: "land", Type: "fill", Source: "base"}, "water"))
	assert.Equal(t, []string{"background", "land", "water", "roads"}, e.LayerIDs())

	assert.Error(t, e.AddLayer(style.Layer{ID: "roads", Type: "line", Source: "base"}, ""))
	assert.Error(t, e.AddLayer(style.Layer{ID: "x", Type: "line", Source: "base"}, "missing"))

	require.NoError(t, e.RemoveLayer("land"))
	assert.Error(t, e.RemoveLayer("land"))
	assert.Equal(t, []string{"background", "water", "roads"}, e.LayerIDs())

	require.Len(t, events, 3)
	assert.Equal(t, "removed", events[2].Action)
}

func TestSetProperties(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.SetLayoutProperty("water", "visibility", style.Hidden))
	require.NoError(t, e.SetPaintProperty("water", "fill-color", "#00f"))
	assert.Error(t, e.SetPaintProperty("nope", "fill-color", "#00f"))

	l, ok := e.GetLayer("water")
	require.True(t, ok)
	assert.Equal(t, style.Hidden, l.Visibility())
	assert.Equal(t, "#00f", l.Paint["fill-color"])

	assert.Equal(t, style.Hidden, e.Style().Layers[1].Visibility())
}

func TestLoadFiresForLateHandlers(t *testing.T) {
	e := newEngine(t)
	fired := false
	e.On(engine.EventLoad, func(engine.Event) { fired = true })
	assert.True(t, fired)
}

func TestBounds(t *testing.T) {
	e := newEngine(t)
	limit := orb.Bound{Min: orb.Point{28, -3}, Max: orb.Point{31, 0}}
	e.SetMaxBounds(limit)
	e.FitBounds(orb.Bound{Min: orb.Point{27, -2}, Max: orb.Point{29, -1}})

	assert.Equal(t, orb.Bound{Min: orb.Point{28, -2}, Max: orb.Point{29, -1}}, e.View())
	assert.Equal(t, limit, e.MaxBounds())
}

func TestRemoveSilencesEvents(t *testing.T) {
	e := newEngine(t)
	count := 0
	e.On(engine.EventError, func(engine.Event) { count++ })
	e.ReportError("base", errors.New("range not satisfiable"))
	e.Remove()
	e.ReportError("base", errors.New("again"))

	assert.Equal(t, 1, count)
	assert.Error(t, e.AddLayer(style.Layer{ID: "late", Type: "background"}, ""))
}
