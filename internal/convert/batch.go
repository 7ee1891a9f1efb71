package convert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/joeblew999/plat-basemap/internal/pmtiles"
	"github.com/joeblew999/plat-basemap/internal/rewrite"
	"github.com/joeblew999/plat-basemap/internal/style"
)

// Options configures a batch conversion.
type Options struct {
	// InputDir holds the *.pmtiles archives.
	InputDir string
	// OutputDir receives one directory per archive; InputDir when empty.
	OutputDir string
	Extractor Extractor

	// StylePath, when set, is rewritten to reference the directories.
	StylePath string
	// StyleOut is where the rewritten style goes; StylePath when empty.
	StyleOut string
	// TilesPrefix is the relative prefix sources use, "tiles/" when empty.
	TilesPrefix string

	// Progress, when set, is called after each archive.
	Progress func(done, total int, res Result)
}

// Result is the outcome for one archive.
type Result struct {
	Name    string
	Archive string
	Dir     string
	Header  pmtiles.Header
	Err     error
}

// Report summarises a batch.
type Report struct {
	Results   []Result
	Rewritten int
}

// Failed counts archives that could not be converted.
func (r Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// Run converts every archive in opts.InputDir. Failures of single archives
// are logged and recorded in the report; only a missing tool, an unreadable
// input directory or a style that cannot be rewritten fail the batch.
func Run(ctx context.Context, opts Options, logger *log.Logger) (Report, error) {
	var report Report
	if opts.Extractor == nil {
		opts.Extractor = TileJoin{}
	}
	if opts.OutputDir == "" {
		opts.OutputDir = opts.InputDir
	}
	if opts.TilesPrefix == "" {
		opts.TilesPrefix = rewrite.DefaultTilesPrefix
	}
	if tj, ok := opts.Extractor.(TileJoin); ok {
		if err := tj.Available(); err != nil {
			return report, err
		}
	}

	if _, err := os.Stat(opts.InputDir); err != nil {
		return report, fmt.Errorf("input directory: %w", err)
	}
	archives, err := filepath.Glob(filepath.Join(opts.InputDir, "*.pmtiles"))
	if err != nil {
		return report, err
	}
	sort.Strings(archives)
	logger.Info("converting archives", "count", len(archives), "extractor", opts.Extractor.Name())

	for i, archive := range archives {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res := convertOne(ctx, opts, archive)
		if errors.Is(res.Err, ErrToolMissing) {
			return report, res.Err
		}
		if res.Err != nil {
			logger.Error("conversion failed", "archive", res.Name, "err", res.Err)
		} else {
			logger.Info("converted", "archive", res.Name, "dir", res.Dir,
				"zoom", fmt.Sprintf("%d-%d", res.Header.MinZoom, res.Header.MaxZoom))
		}
		report.Results = append(report.Results, res)
		if opts.Progress != nil {
			opts.Progress(i+1, len(archives), res)
		}
	}

	if opts.StylePath == "" {
		return report, nil
	}
	n, err := rewriteStyleFile(opts, report.Results)
	if err != nil {
		return report, err
	}
	report.Rewritten = n
	logger.Info("style rewritten", "sources", n, "path", styleOut(opts))
	return report, nil
}

func convertOne(ctx context.Context, opts Options, archive string) Result {
	name := strings.TrimSuffix(filepath.Base(archive), ".pmtiles")
	res := Result{Name: name, Archive: archive, Dir: filepath.Join(opts.OutputDir, name)}

	r, err := pmtiles.Open(archive)
	if err != nil {
		res.Err = err
		return res
	}
	res.Header = r.Header()
	r.Close()

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		res.Err = fmt.Errorf("failed to create output directory: %w", err)
		return res
	}
	res.Err = opts.Extractor.Extract(ctx, archive, res.Dir)
	return res
}

// RewriteStyle points every source that references a converted archive as
// pmtiles://<prefix><name>.pmtiles at its tile directory, carrying the
// archive's zoom range. It returns the number of sources changed.
func RewriteStyle(s *style.Style, results []Result, prefix string) int {
	if prefix == "" {
		prefix = rewrite.DefaultTilesPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	done := make(map[string]Result, len(results))
	for _, res := range results {
		if res.Err == nil {
			done[res.Name] = res
		}
	}

	n := 0
	for _, src := range s.Sources {
		if src == nil {
			continue
		}
		rest, ok := strings.CutPrefix(src.URL, rewrite.ArchiveScheme)
		if !ok {
			continue
		}
		rest = strings.TrimPrefix(rest, "/")
		name, ok := strings.CutPrefix(rest, prefix)
		if !ok {
			continue
		}
		name, ok = strings.CutSuffix(name, ".pmtiles")
		if !ok {
			continue
		}
		res, ok := done[name]
		if !ok {
			continue
		}
		src.URL = ""
		src.Tiles = []string{prefix + name + "/{z}/{x}/{y}." + res.Header.TileType.Ext()}
		src.MinZoom = int(res.Header.MinZoom)
		src.MaxZoom = int(res.Header.MaxZoom)
		n++
	}
	return n
}

func rewriteStyleFile(opts Options, results []Result) (int, error) {
	data, err := os.ReadFile(opts.StylePath)
	if err != nil {
		return 0, fmt.Errorf("reading style: %w", err)
	}
	s, err := style.Parse(data)
	if err != nil {
		return 0, err
	}
	n := RewriteStyle(s, results, opts.TilesPrefix)

	out, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encoding style: %w", err)
	}
	if err := os.WriteFile(styleOut(opts), append(out, '\n'), 0644); err != nil {
		return 0, fmt.Errorf("writing style: %w", err)
	}
	return n, nil
}

func styleOut(opts Options) string {
	if opts.StyleOut != "" {
		return opts.StyleOut
	}
	return opts.StylePath
}
