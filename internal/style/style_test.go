package style

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStyle = `{
  "version": 8,
  "name": "basemap",
  "glyphs": "fonts/{fontstack}/{range}.pbf",
  "center": [29.2, -1.6],
  "sources": {
    "base": {"type": "vector", "url": "pmtiles://tiles/base.pmtiles"}
  },
  "layers": [
    {"id": "background", "type": "background"},
    {"id": "water", "type": "fill", "source": "base", "source-layer": "water",
     "layout": {"visibility": "none"}}
  ]
}`

func TestParseKeepsUnknownFields(t *testing.T) {
	s, err := Parse([]byte(sampleStyle))
	require.NoError(t, err)

	assert.Equal(t, 8, s.Version)
	assert.Equal(t, []string{"background", "water"}, s.LayerIDs())
	assert.Contains(t, s.Extra, "center")

	out, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(out), `"center"`)
	assert.Contains(t, string(out), `"source-layer":"water"`)
}

func TestParseRejectsDuplicateIDs(t *testing.T) {
	_, err := Parse([]byte(`{"version":8,"sources":{},"layers":[{"id":"a","type":"fill"},{"id":"a","type":"line"}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestVisibility(t *testing.T) {
	s, err := Parse([]byte(sampleStyle))
	require.NoError(t, err)

	water, ok := s.Layer("water")
	require.True(t, ok)
	assert.Equal(t, Hidden, water.Visibility())

	bg, _ := s.Layer("background")
	assert.Equal(t, Visible, bg.Visibility())

	water.SetVisibility(true)
	assert.Equal(t, Visible, water.Visibility())
}

func TestCloneIsDeep(t *testing.T) {
	s, err := Parse([]byte(sampleStyle))
	require.NoError(t, err)

	c := s.Clone()
	c.Sources["base"].URL = "changed"
	c.Layers[0].ID = "changed"

	assert.Equal(t, "pmtiles://tiles/base.pmtiles", s.Sources["base"].URL)
	assert.Equal(t, "background", s.Layers[0].ID)
}

func TestLoaderPrimary(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "style.json")
	require.NoError(t, os.WriteFile(primary, []byte(sampleStyle), 0644))

	s, err := NewLoader(primary, "").Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "basemap", s.Name)
}

func TestLoaderFallbackPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleStyle))
	}))
	defer srv.Close()

	s, err := NewLoader(filepath.Join(t.TempDir(), "missing.json"), srv.URL+"/style.json").Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "basemap", s.Name)
}

func TestLoaderBuiltinFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	s, err := NewLoader(srv.URL+"/broken.json", filepath.Join(t.TempDir(), "missing.json")).Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFallback))

	require.NotNil(t, s)
	assert.Empty(t, s.Sources)
	require.Len(t, s.Layers, 1)
	assert.Equal(t, "background", s.Layers[0].ID)
	assert.Equal(t, FallbackStyle(), s)
}
