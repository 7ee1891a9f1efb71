// Package server wires the basemap services behind one http.Handler.
package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/joeblew999/plat-basemap/internal/api"
	"github.com/joeblew999/plat-basemap/internal/api/editor"
	"github.com/joeblew999/plat-basemap/internal/config"
	"github.com/joeblew999/plat-basemap/internal/dem"
	"github.com/joeblew999/plat-basemap/internal/service"
	"github.com/joeblew999/plat-basemap/internal/session"
	"github.com/joeblew999/plat-basemap/internal/templates"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string // Published site root: style.json and tiles/
	WebDir  string // Path to web/ directory for static files and templates
	// ConfigPath is a YAML or TOML viewer configuration; empty uses the
	// defaults.
	ConfigPath string
	// SessionIdleTTL expires sessions nobody has touched for this long.
	SessionIdleTTL time.Duration
	MaxSessions    int
	Logger         *log.Logger
}

// Server is the basemap HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	humaAPI  huma.API
	services *api.Services
	dem      *dem.Fetcher
	renderer *templates.Renderer
	logger   *log.Logger
}

// New creates a new basemap server.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	viewer, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	viewer = config.Rooted(viewer, cfg.DataDir)

	mux := http.NewServeMux()

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("plat-basemap API", "1.0.0")
	humaConfig.Info.Description = "Basemap viewer API for map sessions, draw order, composed styles and tile archives."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())

	humaAPI := humago.New(mux, humaConfig)

	s := &Server{
		config:  cfg,
		mux:     mux,
		humaAPI: humaAPI,
		logger:  cfg.Logger,
	}

	tiles := service.NewTileService(cfg.DataDir)
	opts := service.SessionOptions{
		Config:      viewer,
		Tiles:       tiles,
		Logger:      cfg.Logger,
		IdleTTL:     cfg.SessionIdleTTL,
		MaxSessions: cfg.MaxSessions,
	}
	if viewer.Contour.Enabled {
		s.dem, err = dem.New(demConfig(viewer.Contour), cfg.Logger)
		if err != nil {
			// Contours still compose; the engine fetches DEM tiles itself.
			cfg.Logger.Warn("local DEM disabled", "err", err)
		} else {
			opts.DEM = s.dem
		}
	}
	sessions, err := service.NewSessionService(opts)
	if err != nil {
		s.closeDEM()
		tiles.Close()
		return nil, err
	}

	s.services = &api.Services{
		Session: sessions,
		Tile:    tiles,
		Convert: service.NewConvertService(cfg.DataDir, viewer.StylePath, cfg.Logger),
	}

	// Template renderer for editor SSE handlers; web/ fragments override
	// the built-in ones.
	s.renderer = templates.Default()
	if cfg.WebDir != "" {
		fragmentsDir := filepath.Join(cfg.WebDir, "templates", "fragments")
		if _, err := os.Stat(fragmentsDir); err == nil {
			r, err := templates.New(fragmentsDir)
			if err != nil {
				cfg.Logger.Warn("fragment templates not loaded", "dir", fragmentsDir, "err", err)
			} else {
				s.renderer = r
				cfg.Logger.Info("loaded fragment templates", "dir", fragmentsDir)
			}
		}
	}

	s.routes()
	return s, nil
}

func demConfig(c session.ContourConfig) dem.Config {
	return dem.Config{
		URL:        c.DemURL,
		MaxZoom:    c.DemMaxZoom,
		Timeout:    c.Timeout,
		CacheBytes: int64(c.CacheSize) << 18,
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the API description.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Services exposes the services behind the API.
func (s *Server) Services() *api.Services {
	return s.services
}

// Close destroys live sessions and closes server resources.
func (s *Server) Close() error {
	s.services.Session.Close()
	return errors.Join(s.services.Tile.Close(), s.closeDEM())
}

func (s *Server) closeDEM() error {
	if s.dem == nil {
		return nil
	}
	return s.dem.Close()
}

func (s *Server) routes() {
	// Register Huma REST API routes (OpenAPI-documented JSON endpoints)
	huma.AutoRegister(s.humaAPI, api.NewAPIHandler(s.services))
	huma.AutoRegister(s.humaAPI, api.NewInfoHandler(s.config.DataDir, s.services.Session, s.dem != nil))

	// Register Editor SSE routes using Huma + Datastar SDK
	huma.AutoRegister(s.humaAPI, editor.NewLegendHandler(s.services.Session, s.renderer))
	huma.AutoRegister(s.humaAPI, editor.NewTileHandler(s.services.Tile, s.services.Convert, s.renderer))

	if s.dem != nil {
		s.mux.Handle(dem.Pattern, s.dem)
	}

	// Archives and converted tile directories share /tiles/.
	files := s.handleTiles(s.services.Tile.TilesDir())
	s.mux.Handle("/tiles/", http.StripPrefix("/tiles/", files))
	s.mux.Handle("GET /tiles/{name}/{z}/{x}/{y}", s.handleArchiveTile(http.StripPrefix("/tiles/", files)))

	// Static files and templates
	if s.config.WebDir != "" {
		staticDir := filepath.Join(s.config.WebDir, "static")
		s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	}

	// Page routes
	s.mux.HandleFunc("/viewer", s.handleViewer)
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "/viewer", http.StatusFound)
}

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	templatePath := filepath.Join(s.config.WebDir, "templates", "viewer.html")
	if _, err := os.Stat(templatePath); err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, templatePath)
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Range")
	w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")
}

// handleTiles serves archives with byte ranges for the archive protocol,
// and converted z/x/y directories as plain files.
func (s *Server) handleTiles(tilesDir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORS(w)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		http.FileServer(http.Dir(tilesDir)).ServeHTTP(w, r)
	})
}

// handleArchiveTile serves one tile out of an archive for clients that
// speak plain z/x/y. The y segment may carry an extension. Names without
// an archive fall through to the converted directories.
func (s *Server) handleArchiveTile(files http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		z, errZ := strconv.ParseUint(r.PathValue("z"), 10, 8)
		x, errX := strconv.ParseUint(r.PathValue("x"), 10, 32)
		ySeg, _, _ := strings.Cut(r.PathValue("y"), ".")
		y, errY := strconv.ParseUint(ySeg, 10, 32)
		if errZ != nil || errX != nil || errY != nil {
			files.ServeHTTP(w, r)
			return
		}

		data, tt, err := s.services.Tile.Tile(r.PathValue("name"), uint8(z), uint32(x), uint32(y))
		switch {
		case errors.Is(err, service.ErrArchiveNotFound):
			files.ServeHTTP(w, r)
			return
		case err != nil:
			s.logger.Error("tile read failed", "archive", r.PathValue("name"), "err", err)
			http.Error(w, "tile read failed", http.StatusInternalServerError)
			return
		}

		setCORS(w)
		if data == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", tt.ContentType())
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Write(data)
	})
}
