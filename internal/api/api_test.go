package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-basemap/internal/logging"
	"github.com/joeblew999/plat-basemap/internal/pmtiles"
	"github.com/joeblew999/plat-basemap/internal/service"
	"github.com/joeblew999/plat-basemap/internal/session"
	"github.com/joeblew999/plat-basemap/internal/style"
)

const styleJSON = `{
  "version": 8,
  "sources": {"water": {"type": "vector", "url": "pmtiles://tiles/water.pmtiles"}},
  "layers": [
    {"id": "water", "type": "fill", "source": "water", "source-layer": "water", "paint": {"fill-color": "#88bbee"}},
    {"id": "background", "type": "background"}
  ]
}`

func newTestAPI(t *testing.T) (*http.ServeMux, *Services) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tiles"), 0o755))

	var buf bytes.Buffer
	_, err := pmtiles.Write(&buf, pmtiles.Header{TileType: pmtiles.Mvt}, map[string]any{"name": "water"},
		[]pmtiles.Tile{{Z: 0, Data: []byte("world")}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tiles", "water.pmtiles"), buf.Bytes(), 0o644))
	stylePath := filepath.Join(dir, "style.json")
	require.NoError(t, os.WriteFile(stylePath, []byte(styleJSON), 0o644))

	cfg := session.DefaultConfig()
	cfg.StylePath = stylePath
	cfg.FallbackStylePath = ""
	cfg.Contour.Enabled = false

	tiles := service.NewTileService(dir)
	sessions, err := service.NewSessionService(service.SessionOptions{
		Config: cfg,
		Tiles:  tiles,
		Logger: logging.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		sessions.Close()
		tiles.Close()
	})
	svc := &Services{
		Session: sessions,
		Tile:    tiles,
		Convert: service.NewConvertService(dir, stylePath, logging.Discard()),
	}

	mux := http.NewServeMux()
	config := huma.DefaultConfig("test", "1.0.0")
	config.CreateHooks = []func(huma.Config) huma.Config{}
	config.Transformers = append(config.Transformers, LinkTransformer())
	api := humago.New(mux, config)
	huma.AutoRegister(api, NewAPIHandler(svc))
	huma.AutoRegister(api, NewInfoHandler(dir, sessions, false))
	return mux, svc
}

func do(t *testing.T, mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	r.Host = "localhost:8086"
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

func createSession(t *testing.T, mux *http.ServeMux) service.SessionInfo {
	t.Helper()
	w := do(t, mux, http.MethodPost, "/api/v1/sessions", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var info service.SessionInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	return info
}

func layerIDs(t *testing.T, w *httptest.ResponseRecorder) []string {
	t.Helper()
	var layers []session.LayerInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &layers))
	ids := make([]string, len(layers))
	for i, l := range layers {
		ids[i] = l.ID
	}
	return ids
}

func TestHealthLinks(t *testing.T) {
	mux, _ := newTestAPI(t)
	w := do(t, mux, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Values("Link"), `</api/v1/sessions>; rel="sessions"`)

	w = do(t, mux, http.MethodGet, "/api/v1/info", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"tiles_mode":"archive"`)
}

func TestGetStyleRewritesForHost(t *testing.T) {
	mux, _ := newTestAPI(t)
	r := httptest.NewRequest(http.MethodGet, "/style.json", nil)
	r.Host = "maps.github.io"
	r.Header.Set("X-Forwarded-Proto", "https")
	r.Header.Set("X-Page-Path", "/basemap/index.html")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var doc style.Style
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "pmtiles://https://maps.github.io/basemap/tiles/water.pmtiles", doc.Sources["water"].URL)
	assert.Equal(t, []string{"background", "water"}, doc.LayerIDs())
}

func TestSessionRoutes(t *testing.T) {
	mux, _ := newTestAPI(t)
	info := createSession(t, mux)
	assert.Equal(t, "interactive", info.State)

	w := do(t, mux, http.MethodGet, "/api/v1/sessions/"+info.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Values("Link"),
		`</api/v1/sessions/`+info.ID+`/layers>; rel="layers"; method="GET"; title="Live layers"`)

	w = do(t, mux, http.MethodGet, "/api/v1/sessions/"+info.ID+"/layers", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"background", "water"}, layerIDs(t, w))

	w = do(t, mux, http.MethodGet, "/api/v1/sessions/"+info.ID+"/notice", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, mux, http.MethodDelete, "/api/v1/sessions/"+info.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, mux, http.MethodGet, "/api/v1/sessions/"+info.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLayerMutations(t *testing.T) {
	mux, _ := newTestAPI(t)
	id := createSession(t, mux).ID
	base := "/api/v1/sessions/" + id + "/layers"

	w := do(t, mux, http.MethodPost, base, `{"id": "health_facilities", "rank": 92, "layer": {"id": "health_facilities", "type": "circle", "source": "water"}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, []string{"background", "water", "health_facilities"}, layerIDs(t, w))

	w = do(t, mux, http.MethodPost, base, `{"id": "water", "rank": 1, "layer": {"id": "water", "type": "fill"}}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, mux, http.MethodPut, base+"/health_facilities/order", `{"rank": 1}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"background", "health_facilities", "water"}, layerIDs(t, w))

	w = do(t, mux, http.MethodPut, base+"/water/visibility", `{"visible": false}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = do(t, mux, http.MethodPost, base+"/water/toggle", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"visible": true}`, w.Body.String())

	w = do(t, mux, http.MethodPut, base+"/water/paint", `{"name": "fill-color", "value": "#003366"}`)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, mux, http.MethodPut, base+"/nope/visibility", `{"visible": false}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, mux, http.MethodDelete, base+"/health_facilities", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, mux, http.MethodGet, "/api/v1/sessions/"+id+"/style", "")
	require.Equal(t, http.StatusOK, w.Code)
	var doc style.Style
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, []string{"background", "water"}, doc.LayerIDs())
}

func TestRankRoutes(t *testing.T) {
	mux, _ := newTestAPI(t)
	id := createSession(t, mux).ID
	base := "/api/v1/sessions/" + id + "/ranks"

	w := do(t, mux, http.MethodPut, base, `{"ranks": {"background": 50, "lakes": 41}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"water", "background"}, layerIDs(t, w))

	w = do(t, mux, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, w.Code)
	var body RanksBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 50, body.Ranks["background"])
	assert.Equal(t, 41, body.Ranks["lakes"])
	assert.Equal(t, 40, body.Ranks["water"])

	w = do(t, mux, http.MethodPut, base, `{"ranks": {"water": -1}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, mux, http.MethodPut, "/api/v1/sessions/missing/ranks", `{"ranks": {}}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTileRoutes(t *testing.T) {
	mux, _ := newTestAPI(t)
	w := do(t, mux, http.MethodGet, "/api/v1/tiles", "")
	require.Equal(t, http.StatusOK, w.Code)
	var files []service.TileFile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &files))
	require.Len(t, files, 1)
	assert.Equal(t, "water", files[0].Name)

	w = do(t, mux, http.MethodGet, "/api/v1/tiles/water/tilejson", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "http://localhost:8086/tiles/water/{z}/{x}/{y}.pbf")

	w = do(t, mux, http.MethodGet, "/api/v1/tiles/missing/tilejson", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, mux, http.MethodPost, "/api/v1/tiles/convert", `{"extractor": "go"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body ConvertBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"water"}, body.Converted)
	assert.Equal(t, 1, body.Rewritten)
}
