package service

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/joeblew999/plat-basemap/internal/convert"
)

// ConvertService publishes the archives of the tiles directory as z/x/y
// directories next to them, for static hosts without byte-range support.
type ConvertService struct {
	tilesDir  string
	stylePath string
	logger    *log.Logger
}

// NewConvertService creates a conversion service over dataDir/tiles. When
// stylePath is set the style is rewritten into style.traditional.json
// beside it.
func NewConvertService(dataDir, stylePath string, logger *log.Logger) *ConvertService {
	return &ConvertService{
		tilesDir:  filepath.Join(dataDir, "tiles"),
		stylePath: stylePath,
		logger:    logger,
	}
}

// ConvertOptions selects the extractor.
type ConvertOptions struct {
	Extractor string `json:"extractor,omitempty" enum:"tilejoin,go" default:"go" doc:"tilejoin shells out to tile-join; go reads archives in-process"`
}

// ProgressFunc is called with progress updates during conversion.
type ProgressFunc func(progress int, status string)

// Run converts every archive, reporting progress from 0 to 100.
func (s *ConvertService) Run(ctx context.Context, opts ConvertOptions, onProgress ProgressFunc) (convert.Report, error) {
	ex, err := convert.ByName(opts.Extractor)
	if err != nil {
		return convert.Report{}, err
	}
	if onProgress != nil {
		onProgress(5, "Starting conversion...")
	}

	co := convert.Options{
		InputDir:  s.tilesDir,
		Extractor: ex,
		Progress: func(done, total int, res convert.Result) {
			if onProgress == nil {
				return
			}
			status := fmt.Sprintf("Converted %s (%d/%d)", res.Name, done, total)
			if res.Err != nil {
				status = fmt.Sprintf("Failed %s (%d/%d)", res.Name, done, total)
			}
			onProgress(5+done*90/total, status)
		},
	}
	if s.stylePath != "" {
		co.StylePath = s.stylePath
		co.StyleOut = filepath.Join(filepath.Dir(s.stylePath), "style.traditional.json")
	}

	report, err := convert.Run(ctx, co, s.logger)
	if err != nil {
		return report, err
	}
	if onProgress != nil {
		onProgress(100, fmt.Sprintf("Converted %d archives, %d failed", len(report.Results)-report.Failed(), report.Failed()))
	}
	return report, nil
}
