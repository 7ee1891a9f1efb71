package dem

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-basemap/internal/logging"
	"github.com/joeblew999/plat-basemap/internal/pmtiles"
)

func upstream(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/5/1/1.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte(r.URL.Path))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetcherCaches(t *testing.T) {
	var hits atomic.Int32
	srv := upstream(t, &hits)
	f, err := New(Config{URL: srv.URL + "/{z}/{x}/{y}.png"}, logging.Discard())
	require.NoError(t, err)
	defer f.Close()

	for i := 0; i < 3; i++ {
		data, err := f.Tile(context.Background(), 3, 2, 1)
		require.NoError(t, err)
		assert.Equal(t, "/3/2/1.png", string(data))
	}
	assert.Equal(t, int32(1), hits.Load())

	data, err := f.Tile(context.Background(), 5, 1, 1)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestFetcherRange(t *testing.T) {
	var hits atomic.Int32
	f, err := New(Config{URL: upstream(t, &hits).URL + "/{z}/{x}/{y}.png", MaxZoom: 10}, logging.Discard())
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Tile(context.Background(), 2, 4, 0)
	assert.True(t, errors.Is(err, ErrOutOfRange))
	_, err = f.Tile(context.Background(), 11, 0, 0)
	assert.True(t, errors.Is(err, ErrOutOfRange))
	assert.Equal(t, int32(0), hits.Load())
}

func TestFetcherArchive(t *testing.T) {
	var buf bytes.Buffer
	_, err := pmtiles.Write(&buf, pmtiles.Header{TileType: pmtiles.Png, MaxZoom: 1},
		nil, []pmtiles.Tile{{Z: 1, X: 1, Y: 0, Data: []byte("png")}})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "dem.pmtiles")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	f, err := New(Config{URL: "pmtiles://" + path}, logging.Discard())
	require.NoError(t, err)
	defer f.Close()

	data, err := f.Tile(context.Background(), 1, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
}

func TestServeHTTP(t *testing.T) {
	var hits atomic.Int32
	f, err := New(Config{URL: upstream(t, &hits).URL + "/{z}/{x}/{y}.png"}, logging.Discard())
	require.NoError(t, err)
	defer f.Close()

	mux := http.NewServeMux()
	mux.Handle(Pattern, f)

	cases := []struct {
		path string
		code int
	}{
		{"/dem/3/2/1.png", http.StatusOK},
		{"/dem/3/2/1", http.StatusOK},
		{"/dem/5/1/1", http.StatusNoContent},
		{"/dem/1/9/9", http.StatusNotFound},
		{"/dem/a/1/1", http.StatusBadRequest},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, c.path, nil))
		assert.Equal(t, c.code, rec.Code, c.path)
	}
}
