package server

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-basemap/internal/logging"
	"github.com/joeblew999/plat-basemap/internal/pmtiles"
)

const styleJSON = `{
  "version": 8,
  "sources": {"roads": {"type": "vector", "url": "pmtiles://tiles/roads.pmtiles"}},
  "layers": [{"id": "roads", "type": "line", "source": "roads", "source-layer": "roads"}]
}`

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tiles", "plain", "0", "0"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tiles", "plain", "0", "0", "0.pbf"), []byte("plain"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "style.json"), []byte(styleJSON), 0o644))

	var buf bytes.Buffer
	_, err := pmtiles.Write(&buf, pmtiles.Header{TileType: pmtiles.Mvt, MaxZoom: 2}, nil,
		[]pmtiles.Tile{{Z: 2, X: 1, Y: 3, Data: []byte("road tile")}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tiles", "roads.pmtiles"), buf.Bytes(), 0o644))

	configPath := filepath.Join(dir, "basemap.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("fallbackStylePath: \"\"\ncontour:\n  enabled: false\n"), 0o644))

	srv, err := New(Config{
		Host:       "localhost",
		Port:       "8086",
		DataDir:    dir,
		ConfigPath: configPath,
		Logger:     logging.Discard(),
	})
	require.NoError(t, err)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return ts, dir
}

func get(t *testing.T, url string, header ...string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestHealthAndOpenAPI(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, body := get(t, ts.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"status":"ok"`)

	resp, body = get(t, ts.URL+"/openapi.json")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "/api/v1/sessions/{id}/layers/{layer}/order")
}

func TestStyleForLocalPage(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, body := get(t, ts.URL+"/style.json", "X-Page-Path", "/index.html")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Contains(t, body, `"url":"pmtiles:///tiles/roads.pmtiles"`)
}

func TestArchiveTileRoute(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := get(t, ts.URL+"/tiles/roads/2/1/3.pbf")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "road tile", body)
	assert.Equal(t, "application/x-protobuf", resp.Header.Get("Content-Type"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, _ = get(t, ts.URL+"/tiles/roads/2/0/0.pbf")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// No archive named plain: served from the converted directory.
	resp, body = get(t, ts.URL+"/tiles/plain/0/0/0.pbf")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "plain", body)
}

func TestArchiveByteRange(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, body := get(t, ts.URL+"/tiles/roads.pmtiles", "Range", "bytes=0-6")
	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "PMTiles", body)
	assert.Equal(t, "Content-Length, Content-Range, Accept-Ranges", resp.Header.Get("Access-Control-Expose-Headers"))
}

func TestDEMRouteDisabled(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, _ := get(t, ts.URL+"/dem/1/0/0.png")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
