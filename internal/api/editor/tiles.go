package editor

import (
	"context"
	"errors"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-basemap/internal/convert"
	"github.com/joeblew999/plat-basemap/internal/humastar"
	"github.com/joeblew999/plat-basemap/internal/service"
	"github.com/joeblew999/plat-basemap/internal/templates"
)

// TileHandler streams the archive list and runs conversions with progress.
type TileHandler struct {
	humastar.Handler
	tiles   *service.TileService
	convert *service.ConvertService
}

// NewTileHandler creates a tile handler.
func NewTileHandler(tiles *service.TileService, conv *service.ConvertService, renderer *templates.Renderer) *TileHandler {
	return &TileHandler{
		Handler: humastar.Handler{Renderer: renderer},
		tiles:   tiles,
		convert: conv,
	}
}

func (h *TileHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/editor/tiles", h.ListTiles, huma.OperationTags("editor"))
	huma.Post(api, "/api/v1/editor/tiles/convert", h.Convert, huma.OperationTags("editor"))
}

func (h *TileHandler) ListTiles(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		h.patchTiles(sse)
	}), nil
}

// Convert reads the "extractor" signal and streams progress signals while
// the archives are converted.
func (h *TileHandler) Convert(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	opts := service.ConvertOptions{Extractor: signals.String("extractor")}
	if opts.Extractor == "" {
		opts.Extractor = "go"
	}
	if _, err := convert.ByName(opts.Extractor); err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}

	return h.Stream(func(sse humastar.SSE) {
		report, err := h.convert.Run(ctx, opts, func(progress int, status string) {
			sse.Signals(map[string]any{
				"convertStatus":   status,
				"convertProgress": progress,
			})
		})
		if errors.Is(err, convert.ErrToolMissing) {
			sse.Error("tile-join is not installed. Install tippecanoe or use the go extractor.")
			return
		}
		if err != nil {
			sse.Error(err.Error())
			return
		}
		if n := report.Failed(); n > 0 {
			sse.Error(pluralize(n, "archive") + " could not be converted, see the server log")
		} else {
			sse.Success("Converted " + pluralize(len(report.Results), "archive"))
		}
		h.patchTiles(sse)
	}), nil
}

func (h *TileHandler) patchTiles(sse humastar.SSE) {
	tiles, err := h.tiles.List()
	if err != nil {
		sse.Error("Failed to list tiles: " + err.Error())
		return
	}
	items := make([]any, len(tiles))
	for i, t := range tiles {
		items[i] = t
	}
	sse.Patch(h.RenderList("tile-card", items, "No archives found", "Add .pmtiles files to the tiles directory"), "#tile-list")
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}
