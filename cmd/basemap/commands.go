package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-basemap/internal/config"
	"github.com/joeblew999/plat-basemap/internal/convert"
	"github.com/joeblew999/plat-basemap/internal/env"
	"github.com/joeblew999/plat-basemap/internal/logging"
	"github.com/joeblew999/plat-basemap/internal/service"
)

// fail prints err and exits 1.
func fail(msg string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}

// writeDoc prints v as indented JSON or as YAML.
func writeDoc(v any, useYAML bool) {
	var output []byte
	var err error
	if useYAML {
		output, err = yaml.Marshal(v)
	} else {
		output, err = json.MarshalIndent(v, "", "  ")
	}
	if err != nil {
		fail("Error marshaling output", err)
	}
	fmt.Println(string(output))
}

// specCommand exports the OpenAPI spec.
func specCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv, err := newServer(opts)
			if err != nil {
				fail("Error creating server", err)
			}
			defer srv.Close()

			useYAML, _ := cmd.Flags().GetBool("yaml")
			writeDoc(srv.OpenAPI(), useYAML)
		}),
	}
	cmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	return cmd
}

// composeCommand prints the style a page at --url would receive.
func composeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Compose the final style for a deployment environment",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			logger := logging.ForVerbosity(opts.Verbose)
			cfg, err := config.Load(opts.Config)
			if err != nil {
				fail("Error loading config", err)
			}
			cfg = config.Rooted(cfg, opts.DataDir)

			pageURL, _ := cmd.Flags().GetString("url")
			u, err := url.Parse(pageURL)
			if err != nil || u.Host == "" {
				fail("Invalid --url", fmt.Errorf("%q", pageURL))
			}
			mobile, _ := cmd.Flags().GetBool("mobile")
			in := env.Input{Scheme: u.Scheme, Host: u.Host, Path: u.Path, MobileHint: mobile}

			sessions, err := service.NewSessionService(service.SessionOptions{
				Config: cfg,
				Logger: logger,
			})
			if err != nil {
				fail("Error creating session service", err)
			}
			defer sessions.Close()

			doc, err := sessions.Compose(cmd.Context(), in)
			if err != nil {
				fail("Error composing style", err)
			}
			useYAML, _ := cmd.Flags().GetBool("yaml")
			writeDoc(doc, useYAML)
		}),
	}
	cmd.Flags().String("url", "http://localhost:8086/", "Page URL the style is composed for")
	cmd.Flags().Bool("mobile", false, "Compose for a touch device")
	cmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	return cmd
}

// convertCommand publishes archives as z/x/y directories. It exits 1 when
// the batch cannot run at all; failures of single archives only log.
func convertCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert [dir]",
		Short: "Convert PMTiles archives into z/x/y tile directories",
		Args:  cobra.MaximumNArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			logger := logging.ForVerbosity(opts.Verbose)
			dir := filepath.Join(opts.DataDir, "tiles")
			if len(args) == 1 {
				dir = args[0]
			}
			name, _ := cmd.Flags().GetString("extractor")
			ex, err := convert.ByName(name)
			if err != nil {
				fail("Invalid --extractor", err)
			}
			out, _ := cmd.Flags().GetString("out")
			stylePath, _ := cmd.Flags().GetString("style")
			styleOut, _ := cmd.Flags().GetString("style-out")
			prefix, _ := cmd.Flags().GetString("prefix")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			report, err := convert.Run(ctx, convert.Options{
				InputDir:    dir,
				OutputDir:   out,
				Extractor:   ex,
				StylePath:   stylePath,
				StyleOut:    styleOut,
				TilesPrefix: prefix,
			}, logger)
			if errors.Is(err, convert.ErrToolMissing) {
				logger.Error("tile-join is required; install tippecanoe or use --extractor go")
				os.Exit(1)
			}
			if err != nil {
				logger.Error("conversion failed", "err", err)
				os.Exit(1)
			}
			logger.Info("done", "converted", len(report.Results)-report.Failed(), "failed", report.Failed(), "sources", report.Rewritten)
		}),
	}
	cmd.Flags().String("out", "", "Output directory (defaults to the input directory)")
	cmd.Flags().String("style", "", "Style document whose archive sources are rewritten")
	cmd.Flags().String("style-out", "", "Where the rewritten style goes (defaults to --style)")
	cmd.Flags().String("prefix", "", "Relative tiles prefix used by style sources (default \"tiles/\")")
	cmd.Flags().String("extractor", "tilejoin", "Extractor: tilejoin or go")
	return cmd
}

// configCommand prints the effective viewer configuration.
func configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective viewer configuration",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			cfg, err := config.Load(opts.Config)
			if err != nil {
				fail("Error loading config", err)
			}
			format, _ := cmd.Flags().GetString("format")
			if err := config.Encode(os.Stdout, cfg, config.Format(format)); err != nil {
				fail("Error encoding config", err)
			}
		}),
	}
	cmd.Flags().StringP("format", "f", string(config.YAML), "Output format: yaml or toml")
	return cmd
}
