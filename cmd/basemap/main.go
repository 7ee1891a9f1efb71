package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/joeblew999/plat-basemap/internal/logging"
	"github.com/joeblew999/plat-basemap/internal/server"
)

// Options defines all CLI flags and env vars for the basemap server.
// Flags: --host, --port, --data-dir, --web-dir, --config, --idle-minutes,
// --max-sessions, --verbose
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_WEB_DIR, ...
type Options struct {
	Host    string `doc:"Host to bind to" default:"0.0.0.0"`
	Port    int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir string `doc:"Published site root holding style.json and tiles/" default:".data"`
	WebDir  string `doc:"Path to web/ directory" default:"web"`
	Config  string `doc:"Viewer configuration file (.yaml or .toml)" short:"c"`
	// Sessions left by closed pages are reclaimed after this many minutes.
	IdleMinutes int  `doc:"Destroy map sessions idle this many minutes (0 keeps them)" default:"30"`
	MaxSessions int  `doc:"Maximum live map sessions (0 is unbounded)" default:"256"`
	Verbose     bool `doc:"Enable debug logging" short:"v"`
}

func newServer(opts *Options) (*server.Server, error) {
	return server.New(server.Config{
		Host:           opts.Host,
		Port:           fmt.Sprintf("%d", opts.Port),
		DataDir:        opts.DataDir,
		WebDir:         opts.WebDir,
		ConfigPath:     opts.Config,
		SessionIdleTTL: time.Duration(opts.IdleMinutes) * time.Minute,
		MaxSessions:    opts.MaxSessions,
		Logger:         logging.ForVerbosity(opts.Verbose),
	})
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		logger := logging.ForVerbosity(opts.Verbose)
		var httpServer *http.Server
		var srv *server.Server

		hooks.OnStart(func() {
			var err error
			srv, err = newServer(opts)
			if err != nil {
				logger.Fatal("server setup failed", "err", err)
			}

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-basemap server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			fmt.Println()
			fmt.Printf("  Viewer:  %s/viewer\n", baseURL)
			fmt.Printf("  Style:   %s/style.json\n", baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Println()

			httpServer = &http.Server{Addr: addr, Handler: srv}
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatal("server error", "err", err)
			}
		})

		hooks.OnStop(func() {
			if httpServer == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(ctx); err != nil {
				logger.Error("shutdown", "err", err)
			}
			if err := srv.Close(); err != nil {
				logger.Error("closing resources", "err", err)
			}
		})
	})

	cli.Root().Use = "basemap"
	cli.Root().Short = "Basemap viewer server and publishing tools"
	cli.Root().Version = "0.1.0"

	cli.Root().AddCommand(specCommand(), composeCommand(), convertCommand(), configCommand())

	cli.Run()
}
