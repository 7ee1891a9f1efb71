package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-basemap/internal/service"
)

type InfoHandler struct {
	dataDir  string
	sessions *service.SessionService
	dem      bool
}

func NewInfoHandler(dataDir string, sessions *service.SessionService, dem bool) *InfoHandler {
	return &InfoHandler{dataDir: dataDir, sessions: sessions, dem: dem}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name      string   `json:"name" doc:"Service name"`
	Version   string   `json:"version" doc:"Service version"`
	DataDir   string   `json:"data_dir" doc:"Data directory path"`
	TilesMode string   `json:"tiles_mode" doc:"How archives are published" enum:"archive,traditional"`
	Sessions  int      `json:"sessions" doc:"Live map sessions"`
	DEM       bool     `json:"dem" doc:"Whether DEM tiles are served locally"`
	Features  []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	cfg := h.sessions.Config()
	features := []string{"pmtiles", "draw-order", "environment-rewrite", "convert"}
	if cfg.Contour.Enabled {
		features = append(features, "contours", "hillshade")
	}
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:      "plat-basemap",
		Version:   "0.1.0",
		DataDir:   h.dataDir,
		TilesMode: string(cfg.TilesMode),
		Sessions:  len(h.sessions.List()),
		DEM:       h.dem,
		Features:  features,
	}}, nil
}
