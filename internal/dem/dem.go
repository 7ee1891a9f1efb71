// Package dem fetches raster elevation tiles and keeps them in a shared
// in-memory cache, so hillshading and contour generation read each tile from
// upstream only once.
package dem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgraph-io/ristretto"
	"github.com/paulmach/orb/maptile"
	"golang.org/x/sync/singleflight"

	"github.com/joeblew999/plat-basemap/internal/pmtiles"
)

// ErrOutOfRange is returned for tile coordinates outside the pyramid.
var ErrOutOfRange = errors.New("dem: tile out of range")

// Config configures a Fetcher.
type Config struct {
	// URL is a {z}/{x}/{y} template, or the path of a local archive.
	URL        string
	MaxZoom    int
	Timeout    time.Duration
	CacheBytes int64
	TTL        time.Duration
}

// Fetcher serves DEM tiles from an upstream template or archive.
type Fetcher struct {
	cfg     Config
	client  *http.Client
	archive *pmtiles.Reader
	cache   *ristretto.Cache
	group   singleflight.Group
	logger  *log.Logger
}

type tile struct {
	data        []byte
	contentType string
}

// New creates a fetcher. Archive URLs (no {z} placeholder) are opened
// immediately.
func New(cfg Config, logger *log.Logger) (*Fetcher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("dem: url is required")
	}
	if cfg.MaxZoom <= 0 {
		cfg.MaxZoom = 13
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheBytes <= 0 {
		cfg.CacheBytes = 64 << 20
	}
	if logger == nil {
		logger = log.Default()
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     cfg.CacheBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("dem: cache: %w", err)
	}

	f := &Fetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		cache:  cache,
		logger: logger.WithPrefix("dem"),
	}
	if !strings.Contains(cfg.URL, "{z}") {
		f.archive, err = pmtiles.Open(strings.TrimPrefix(cfg.URL, "pmtiles://"))
		if err != nil {
			cache.Close()
			return nil, fmt.Errorf("dem: %w", err)
		}
	}
	return f, nil
}

// Close releases the cache and any open archive.
func (f *Fetcher) Close() error {
	f.cache.Close()
	if f.archive != nil {
		return f.archive.Close()
	}
	return nil
}

// Tile returns the bytes of one tile, or nil when upstream has none.
func (f *Fetcher) Tile(ctx context.Context, z uint8, x, y uint32) ([]byte, error) {
	t, err := f.get(ctx, z, x, y)
	if err != nil || t == nil {
		return nil, err
	}
	return t.data, nil
}

func (f *Fetcher) get(ctx context.Context, z uint8, x, y uint32) (*tile, error) {
	if int(z) > f.cfg.MaxZoom || !maptile.New(x, y, maptile.Zoom(z)).Valid() {
		return nil, fmt.Errorf("%w: %d/%d/%d", ErrOutOfRange, z, x, y)
	}
	key := pmtiles.ZxyToID(z, x, y)
	if v, ok := f.cache.Get(key); ok {
		return v.(*tile), nil
	}

	v, err, _ := f.group.Do(strconv.FormatUint(key, 10), func() (any, error) {
		t, err := f.fetch(ctx, z, x, y)
		if err != nil {
			return nil, err
		}
		if t != nil {
			f.cache.SetWithTTL(key, t, int64(len(t.data)), f.cfg.TTL)
			f.cache.Wait()
		}
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	t, _ := v.(*tile)
	return t, nil
}

func (f *Fetcher) fetch(ctx context.Context, z uint8, x, y uint32) (*tile, error) {
	if f.archive != nil {
		data, ok, err := f.archive.Tile(z, x, y)
		if err != nil || !ok {
			return nil, err
		}
		return &tile{data: data, contentType: f.archive.Header().TileType.ContentType()}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()
	u := expand(f.cfg.URL, z, x, y)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dem: fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("dem: fetch %s: %s", u, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("dem: read %s: %w", u, err)
	}
	f.logger.Debug("fetched", "tile", fmt.Sprintf("%d/%d/%d", z, x, y), "bytes", len(data))
	return &tile{data: data, contentType: resp.Header.Get("Content-Type")}, nil
}

func expand(tpl string, z uint8, x, y uint32) string {
	return strings.NewReplacer(
		"{z}", strconv.Itoa(int(z)),
		"{x}", strconv.FormatUint(uint64(x), 10),
		"{y}", strconv.FormatUint(uint64(y), 10),
	).Replace(tpl)
}
