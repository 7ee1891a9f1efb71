package convert

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-basemap/internal/logging"
	"github.com/joeblew999/plat-basemap/internal/pmtiles"
	"github.com/joeblew999/plat-basemap/internal/style"
)

func writeArchive(t *testing.T, path string, tiles []pmtiles.Tile) {
	t.Helper()
	var buf bytes.Buffer
	h := pmtiles.Header{TileType: pmtiles.Mvt, TileCompression: pmtiles.Gzip, MinZoom: 0, MaxZoom: 1}
	_, err := pmtiles.Write(&buf, h, map[string]any{"name": filepath.Base(path)}, tiles)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

var waterTiles = []pmtiles.Tile{
	{Z: 0, X: 0, Y: 0, Data: []byte("world")},
	{Z: 1, X: 0, Y: 0, Data: []byte("ocean")},
	{Z: 1, X: 0, Y: 1, Data: []byte("ocean")},
}

func TestNativeExtract(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "water.pmtiles")
	writeArchive(t, archive, waterTiles)

	out := filepath.Join(dir, "water")
	require.NoError(t, Native{}.Extract(context.Background(), archive, out))

	for path, want := range map[string]string{
		"0/0/0.pbf": "world",
		"1/0/0.pbf": "ocean",
		"1/0/1.pbf": "ocean",
	} {
		got, err := os.ReadFile(filepath.Join(out, path))
		require.NoError(t, err, path)
		assert.Equal(t, want, string(got), path)
	}
	_, err := os.Stat(filepath.Join(out, "1", "1"))
	assert.True(t, os.IsNotExist(err))
}

const basemapJSON = `{
  "version": 8,
  "sources": {
    "water": {"type": "vector", "url": "pmtiles://tiles/water.pmtiles"},
    "roads": {"type": "vector", "url": "pmtiles://tiles/roads.pmtiles"},
    "remote": {"type": "vector", "url": "pmtiles://https://example.com/x.pmtiles"},
    "dem": {"type": "raster-dem", "tiles": ["dem-shared://{z}/{x}/{y}"]}
  },
  "layers": [{"id": "background", "type": "background"}]
}`

func TestRunContinuesPastBadArchive(t *testing.T) {
	dir := t.TempDir()
	writeArchive(t, filepath.Join(dir, "water.pmtiles"), waterTiles)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "roads.pmtiles"), []byte("not an archive"), 0o644))
	stylePath := filepath.Join(dir, "style.json")
	require.NoError(t, os.WriteFile(stylePath, []byte(basemapJSON), 0o644))

	report, err := Run(context.Background(), Options{
		InputDir:  dir,
		Extractor: Native{},
		StylePath: stylePath,
		StyleOut:  filepath.Join(dir, "style.traditional.json"),
	}, logging.Discard())
	require.NoError(t, err)

	require.Len(t, report.Results, 2)
	assert.Equal(t, 1, report.Failed())
	assert.Equal(t, "roads", report.Results[0].Name)
	assert.Error(t, report.Results[0].Err)
	assert.Equal(t, 1, report.Rewritten)

	data, err := os.ReadFile(filepath.Join(dir, "style.traditional.json"))
	require.NoError(t, err)
	s, err := style.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"tiles/water/{z}/{x}/{y}.pbf"}, s.Sources["water"].Tiles)
	assert.Empty(t, s.Sources["water"].URL)
	assert.Equal(t, 1, s.Sources["water"].MaxZoom)
	assert.Equal(t, "pmtiles://tiles/roads.pmtiles", s.Sources["roads"].URL)

	_, err = os.Stat(filepath.Join(dir, "water", "0", "0", "0.pbf"))
	assert.NoError(t, err)
}

func TestRewriteStyle(t *testing.T) {
	s, err := style.Parse([]byte(basemapJSON))
	require.NoError(t, err)
	results := []Result{
		{Name: "water", Header: pmtiles.Header{TileType: pmtiles.Mvt, MinZoom: 2, MaxZoom: 9}},
		{Name: "roads", Err: errors.New("boom")},
	}

	assert.Equal(t, 1, RewriteStyle(s, results, "tiles"))
	water := s.Sources["water"]
	assert.Equal(t, []string{"tiles/water/{z}/{x}/{y}.pbf"}, water.Tiles)
	assert.Equal(t, 2, water.MinZoom)
	assert.Equal(t, 9, water.MaxZoom)
	assert.Equal(t, "pmtiles://tiles/roads.pmtiles", s.Sources["roads"].URL)
	assert.Equal(t, "pmtiles://https://example.com/x.pmtiles", s.Sources["remote"].URL)
	assert.Equal(t, []string{"dem-shared://{z}/{x}/{y}"}, s.Sources["dem"].Tiles)

	assert.Equal(t, 0, RewriteStyle(s, results, "tiles/"))
}

func TestRunToolMissing(t *testing.T) {
	_, err := Run(context.Background(), Options{
		InputDir:  t.TempDir(),
		Extractor: TileJoin{Path: "tile-join-not-installed-here"},
	}, logging.Discard())
	assert.True(t, errors.Is(err, ErrToolMissing))
}

func TestRunMissingInput(t *testing.T) {
	_, err := Run(context.Background(), Options{
		InputDir:  filepath.Join(t.TempDir(), "nope"),
		Extractor: Native{},
	}, logging.Discard())
	assert.Error(t, err)
}

func TestByName(t *testing.T) {
	for name, want := range map[string]string{"": "tilejoin", "tilejoin": "tilejoin", "go": "go"} {
		e, err := ByName(name)
		require.NoError(t, err)
		assert.Equal(t, want, e.Name())
	}
	_, err := ByName("gdal")
	assert.Error(t, err)
}
