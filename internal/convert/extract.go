// Package convert turns tiled archives into plain z/x/y tile directories
// and points a style's sources at the result, for hosts that cannot serve
// byte-range requests.
package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joeblew999/plat-basemap/internal/pmtiles"
)

// ErrToolMissing is returned when the external extractor is not installed.
var ErrToolMissing = errors.New("tile-join is not installed")

// Extractor writes every tile of an archive below dir as {z}/{x}/{y}.<ext>.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, archive, dir string) error
}

// TileJoin shells out to tile-join.
type TileJoin struct {
	// Path is the executable, "tile-join" when empty.
	Path string
}

func (t TileJoin) Name() string { return "tilejoin" }

func (t TileJoin) bin() string {
	if t.Path == "" {
		return "tile-join"
	}
	return t.Path
}

// Available reports ErrToolMissing when the executable cannot be found.
func (t TileJoin) Available() error {
	if _, err := exec.LookPath(t.bin()); err != nil {
		return fmt.Errorf("%w: %v", ErrToolMissing, err)
	}
	return nil
}

func (t TileJoin) Extract(ctx context.Context, archive, dir string) error {
	args := []string{
		"-e", dir,
		"--force",
		"--no-tile-compression",
		"--no-tile-size-limit",
		archive,
	}
	cmd := exec.CommandContext(ctx, t.bin(), args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if strings.Contains(err.Error(), "executable file not found") {
			return fmt.Errorf("%w: %v", ErrToolMissing, err)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("tile-join %s: %w", filepath.Base(archive), err)
		}
		return fmt.Errorf("tile-join %s: %w: %s", filepath.Base(archive), err, msg)
	}
	return nil
}

// Native reads the archive in-process. Tiles are written as stored apart
// from gzip, which is undone so the files match tile-join's output.
type Native struct{}

func (Native) Name() string { return "go" }

func (Native) Extract(ctx context.Context, archive, dir string) error {
	r, err := pmtiles.Open(archive)
	if err != nil {
		return err
	}
	defer r.Close()

	ext := r.Header().TileType.Ext()
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clearing %s: %w", dir, err)
	}

	return r.Walk(func(z uint8, x, y uint32, data []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(dir, strconv.Itoa(int(z)), strconv.FormatUint(uint64(x), 10),
			strconv.FormatUint(uint64(y), 10)+"."+ext)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		return os.WriteFile(path, data, 0644)
	})
}

// ByName returns the extractor registered under name.
func ByName(name string) (Extractor, error) {
	switch name {
	case "", "tilejoin":
		return TileJoin{}, nil
	case "go":
		return Native{}, nil
	default:
		return nil, fmt.Errorf("unknown extractor %q (want tilejoin or go)", name)
	}
}
