// Package rewrite adapts the tile URLs of a loaded style to the environment
// the style will be rendered in.
//
// Only relative URLs are rewritten. Every rewritten form is absolute (or
// root-relative), so applying the rewriter to an already rewritten style is a
// no-op and never double-prefixes a URL.
package rewrite

import (
	"fmt"
	"path"
	"strings"

	"github.com/joeblew999/plat-basemap/internal/env"
	"github.com/joeblew999/plat-basemap/internal/style"
)

// ArchiveScheme is the URL scheme of the tiled-archive protocol.
const ArchiveScheme = "pmtiles://"

// DefaultTilesPrefix is the relative directory archives are published under.
const DefaultTilesPrefix = "tiles/"

// Mode selects how sources are published.
type Mode string

const (
	// ModeArchive serves sources through the archive protocol.
	ModeArchive Mode = "archive"
	// ModeTraditional serves sources as z/x/y tile directories.
	ModeTraditional Mode = "traditional"
)

// Rewriter rewrites source URLs for one environment.
type Rewriter struct {
	Mode        Mode
	TilesPrefix string
	Env         env.Classification
}

// New creates a rewriter. An empty or unusable prefix falls back to
// DefaultTilesPrefix; callers that want the error use CleanTilesPrefix.
func New(mode Mode, tilesPrefix string, c env.Classification) *Rewriter {
	if mode == "" {
		mode = ModeArchive
	}
	prefix, err := CleanTilesPrefix(tilesPrefix)
	if tilesPrefix == "" || err != nil {
		prefix = DefaultTilesPrefix
	}
	return &Rewriter{Mode: mode, TilesPrefix: prefix, Env: c}
}

// CleanTilesPrefix normalises a tiles directory to the "dir/" form sources
// use: "./tiles", "/tiles/" and "tiles" all become "tiles/". A prefix that
// resolves to the site root, climbs out of it or carries a scheme is an
// error.
func CleanTilesPrefix(p string) (string, error) {
	if strings.Contains(p, "://") {
		return "", fmt.Errorf("tiles prefix %q: must be a relative directory", p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fmt.Errorf("tiles prefix %q: must stay below the site root", p)
		}
	}
	clean := strings.Trim(path.Clean("/"+strings.TrimSpace(p)), "/")
	if clean == "" {
		return "", fmt.Errorf("tiles prefix %q: names the site root", p)
	}
	return clean + "/", nil
}

// Apply rewrites the sources of s in place and returns how many URLs changed.
func (r *Rewriter) Apply(s *style.Style) int {
	n := 0
	for _, src := range s.Sources {
		if src == nil {
			continue
		}
		switch r.Mode {
		case ModeArchive:
			if u, ok := r.archiveURL(src.URL); ok {
				src.URL = u
				n++
			}
		case ModeTraditional:
			for i, tpl := range src.Tiles {
				if u, ok := r.tileURL(tpl); ok {
					src.Tiles[i] = u
					n++
				}
			}
		}
	}
	return n
}

// archiveURL rewrites "pmtiles://tiles/x.pmtiles" for the environment.
func (r *Rewriter) archiveURL(u string) (string, bool) {
	rest, ok := strings.CutPrefix(u, ArchiveScheme)
	if !ok || r.TilesPrefix == "" {
		return u, false
	}
	// Root-relative or absolute targets are already rewritten.
	if strings.HasPrefix(rest, "/") || strings.Contains(rest, "://") {
		return u, false
	}
	rel, ok := strings.CutPrefix(rest, r.TilesPrefix)
	if !ok {
		return u, false
	}
	tilesDir := "/" + r.TilesPrefix
	switch {
	case r.Env.Local:
		return ArchiveScheme + tilesDir + rel, true
	case r.Env.SubpathHosted && r.Env.Prefix != "":
		return ArchiveScheme + r.Env.Origin + "/" + r.Env.Prefix + tilesDir + rel, true
	default:
		return ArchiveScheme + r.Env.Origin + tilesDir + rel, true
	}
}

// tileURL anchors a relative tile template at the page directory.
func (r *Rewriter) tileURL(tpl string) (string, bool) {
	if tpl == "" || isAbsolute(tpl) {
		return tpl, false
	}
	dir := r.Env.PageDir
	if dir == "" {
		dir = "/"
	}
	return r.Env.Origin + dir + strings.TrimPrefix(tpl, "./"), true
}

func isAbsolute(u string) bool {
	return strings.Contains(u, "://") || strings.HasPrefix(u, "/")
}
