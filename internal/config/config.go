// Package config loads viewer configuration files. A file only needs the
// fields it changes; everything else keeps the session defaults.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-basemap/internal/session"
)

// Format is a configuration file syntax.
type Format string

const (
	YAML Format = "yaml"
	TOML Format = "toml"
)

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML, nil
	case ".toml":
		return TOML, nil
	}
	return "", fmt.Errorf("config: unsupported file type %q", filepath.Ext(path))
}

// Load reads path and returns the validated configuration. An empty path
// returns the defaults.
func Load(path string) (session.Config, error) {
	if path == "" {
		return session.DefaultConfig(), nil
	}
	format, err := FormatOf(path)
	if err != nil {
		return session.Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return session.Config{}, fmt.Errorf("config: %w", err)
	}
	cfg, err := Decode(data, format)
	if err != nil {
		return session.Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Decode parses data over the defaults. Rank entries are merged into the
// default table; unknown keys are rejected.
func Decode(data []byte, format Format) (session.Config, error) {
	def := session.DefaultConfig()
	cfg := def
	cfg.Ranks = nil

	switch format {
	case YAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && err != io.EOF {
			return session.Config{}, err
		}
	case TOML:
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return session.Config{}, err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return session.Config{}, fmt.Errorf("unknown keys %v", undecoded)
		}
	default:
		return session.Config{}, fmt.Errorf("unsupported format %q", format)
	}

	cfg.Ranks = def.Ranks.Merge(cfg.Ranks)
	if err := cfg.Validate(); err != nil {
		return session.Config{}, err
	}
	return cfg, nil
}

// Encode writes cfg in the given format.
func Encode(w io.Writer, cfg session.Config, format Format) error {
	switch format {
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	case TOML:
		return toml.NewEncoder(w).Encode(cfg)
	}
	return fmt.Errorf("config: unsupported format %q", format)
}

// Rooted resolves relative local style paths against root. URLs and
// absolute paths are kept.
func Rooted(cfg session.Config, root string) session.Config {
	cfg.StylePath = rooted(cfg.StylePath, root)
	cfg.FallbackStylePath = rooted(cfg.FallbackStylePath, root)
	return cfg
}

func rooted(p, root string) string {
	if p == "" || filepath.IsAbs(p) || strings.Contains(p, "://") {
		return p
	}
	return filepath.Join(root, p)
}
