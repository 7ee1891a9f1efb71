package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joeblew999/plat-basemap/internal/engine"
	"github.com/joeblew999/plat-basemap/internal/pmtiles"
)

// ErrArchiveNotFound is returned for names with no archive behind them.
var ErrArchiveNotFound = errors.New("archive not found")

// TileService manages the published archives and keeps their readers open.
type TileService struct {
	tilesDir string

	mu      sync.Mutex
	readers map[string]*pmtiles.Reader
}

// NewTileService creates a tile service over dataDir/tiles.
func NewTileService(dataDir string) *TileService {
	return &TileService{
		tilesDir: filepath.Join(dataDir, "tiles"),
		readers:  make(map[string]*pmtiles.Reader),
	}
}

// List returns every readable archive with its header summary. Files that
// fail to open are skipped.
func (s *TileService) List() ([]TileFile, error) {
	entries, err := os.ReadDir(s.tilesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []TileFile{}, nil
		}
		return nil, err
	}

	files := []TileFile{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".pmtiles" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".pmtiles")
		r, err := s.reader(name)
		if err != nil {
			continue
		}
		h := r.Header()
		b, c := h.Bound(), h.Center()
		files = append(files, TileFile{
			Name:     name,
			File:     entry.Name(),
			Size:     formatSize(info.Size()),
			TileType: h.TileType.Ext(),
			MinZoom:  int(h.MinZoom),
			MaxZoom:  int(h.MaxZoom),
			Bounds:   []float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()},
			Center:   []float64{c.Lon(), c.Lat()},
			Tiles:    h.AddressedTilesCount,
		})
	}
	return files, nil
}

// TileJSON describes one archive with tiles served below tileURL.
func (s *TileService) TileJSON(name, tileURL string) (pmtiles.TileJSON, error) {
	r, err := s.reader(name)
	if err != nil {
		return pmtiles.TileJSON{}, err
	}
	md, err := r.Metadata()
	if err != nil {
		return pmtiles.TileJSON{}, fmt.Errorf("%s: %w", name, err)
	}
	return pmtiles.NewTileJSON(r.Header(), md, tileURL), nil
}

// Tile returns one tile of an archive, decompressed. A missing tile is
// (nil, nil).
func (s *TileService) Tile(name string, z uint8, x, y uint32) ([]byte, pmtiles.TileType, error) {
	r, err := s.reader(name)
	if err != nil {
		return nil, pmtiles.UnknownTileType, err
	}
	data, ok, err := r.Tile(z, x, y)
	if err != nil || !ok {
		return nil, r.Header().TileType, err
	}
	return data, r.Header().TileType, nil
}

// ArchiveHandler serves the archive protocol for engines from the local
// archives. Only the file name of the requested archive is used.
func (s *TileService) ArchiveHandler() engine.ProtocolHandler {
	return func(ctx context.Context, req engine.TileRequest) (io.ReadCloser, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := strings.TrimSuffix(path.Base(req.Archive), ".pmtiles")
		data, _, err := s.Tile(name, req.Z, req.X, req.Y)
		if err != nil || data == nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(data)), nil
	}
}

// TilesDir returns the path to the tiles directory.
func (s *TileService) TilesDir() string {
	return s.tilesDir
}

// Close closes every open archive.
func (s *TileService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for name, r := range s.readers {
		errs = append(errs, r.Close())
		delete(s.readers, name)
	}
	return errors.Join(errs...)
}

func (s *TileService) reader(name string) (*pmtiles.Reader, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return nil, fmt.Errorf("%w: %q", ErrArchiveNotFound, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.readers[name]; ok {
		return r, nil
	}
	r, err := pmtiles.Open(filepath.Join(s.tilesDir, name+".pmtiles"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q", ErrArchiveNotFound, name)
		}
		return nil, err
	}
	s.readers[name] = r
	return r, nil
}

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
