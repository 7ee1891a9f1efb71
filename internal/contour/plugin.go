package contour

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joeblew999/plat-basemap/internal/engine"
)

// Plugin is the elevation collaborator: it turns a raster DEM template into
// the protocol URLs the engine fetches hillshade and contour tiles from.
type Plugin interface {
	SharedDemProtocolURL() string
	ContourProtocolURL(opts ContourOptions) string
}

// ContourOptions parametrises one contour tile URL.
type ContourOptions struct {
	Params
	Buffer   int
	Extent   int
	Overzoom int
}

// TileFetcher returns the raw bytes of one DEM tile.
type TileFetcher interface {
	Tile(ctx context.Context, z uint8, x, y uint32) ([]byte, error)
}

// PluginConfig is what the elevation plugin is constructed with.
type PluginConfig struct {
	ID        string        `json:"id"`
	URL       string        `json:"url"`
	Encoding  string        `json:"encoding"`
	MaxZoom   int           `json:"maxzoom"`
	Worker    bool          `json:"worker"`
	CacheSize int           `json:"cacheSize"`
	Timeout   time.Duration `json:"-"`
	TimeoutMs int64         `json:"timeoutMs"`
}

// DemSource is the default Plugin. Its URLs use the protocol ids "<id>-shared"
// and "<id>-contour", the scheme the browser contour plugin registers.
type DemSource struct {
	cfg PluginConfig
}

// NewDemSource validates cfg and creates the plugin.
func NewDemSource(cfg PluginConfig) (*DemSource, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("contour: dem url template is required")
	}
	if cfg.ID == "" {
		cfg.ID = "dem"
	}
	switch cfg.Encoding {
	case "":
		cfg.Encoding = "terrarium"
	case "terrarium", "mapbox":
	default:
		return nil, fmt.Errorf("contour: unknown dem encoding %q", cfg.Encoding)
	}
	if cfg.MaxZoom <= 0 {
		cfg.MaxZoom = 13
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.TimeoutMs = cfg.Timeout.Milliseconds()
	return &DemSource{cfg: cfg}, nil
}

var _ Plugin = (*DemSource)(nil)

// Config returns the construction options, for handing to a browser plugin.
func (d *DemSource) Config() PluginConfig { return d.cfg }

// SharedProtocol is the scheme of the shared DEM tiles.
func (d *DemSource) SharedProtocol() string { return d.cfg.ID + "-shared" }

// ContourProtocol is the scheme of the generated contour tiles.
func (d *DemSource) ContourProtocol() string { return d.cfg.ID + "-contour" }

// SharedDemProtocolURL is the tile template of the shared DEM source.
func (d *DemSource) SharedDemProtocolURL() string {
	return d.SharedProtocol() + "://{z}/{x}/{y}"
}

// ContourProtocolURL is the tile template of the contour source.
func (d *DemSource) ContourProtocolURL(opts ContourOptions) string {
	return d.ContourProtocol() + "://{z}/{x}/{y}?" + EncodeOptions(opts)
}

// Register serves the shared DEM protocol from f. Hillshade and contour
// generation then read the same fetched tiles.
func (d *DemSource) Register(p *engine.Protocols, f TileFetcher) {
	p.AddProtocol(d.SharedProtocol(), func(ctx context.Context, req engine.TileRequest) (io.ReadCloser, error) {
		ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
		data, err := f.Tile(ctx, req.Z, req.X, req.Y)
		if err != nil || data == nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(data)), nil
	})
}

// Unregister removes the protocols registered by Register.
func (d *DemSource) Unregister(p *engine.Protocols) {
	p.RemoveProtocol(d.SharedProtocol())
}

// EncodeOptions serialises contour options as a query string: keys sorted,
// thresholds written as "z*minor*major" joined by "~".
func EncodeOptions(opts ContourOptions) string {
	kv := map[string]string{}
	if len(opts.Thresholds) > 0 {
		parts := make([]string, 0, len(opts.Thresholds))
		for _, z := range opts.Zooms() {
			t := opts.Thresholds[z]
			parts = append(parts, strconv.Itoa(z)+"*"+formatNumber(t[0])+"*"+formatNumber(t[1]))
		}
		kv["thresholds"] = strings.Join(parts, "~")
	}
	if opts.Multiplier != 0 {
		kv["multiplier"] = formatNumber(opts.Multiplier)
	}
	if opts.ElevationKey != "" {
		kv["elevationKey"] = opts.ElevationKey
	}
	if opts.LevelKey != "" {
		kv["levelKey"] = opts.LevelKey
	}
	if opts.ContourLayer != "" {
		kv["contourLayer"] = opts.ContourLayer
	}
	if opts.Buffer > 0 {
		kv["buffer"] = strconv.Itoa(opts.Buffer)
	}
	if opts.Extent > 0 {
		kv["extent"] = strconv.Itoa(opts.Extent)
	}
	if opts.Overzoom > 0 {
		kv["overzoom"] = strconv.Itoa(opts.Overzoom)
	}

	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = escape(k) + "=" + escape(kv[k])
	}
	return strings.Join(pairs, "&")
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// escape matches URI component escaping, which leaves !'()* unescaped.
var componentUnescapes = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

func escape(s string) string {
	return componentUnescapes.Replace(url.QueryEscape(s))
}
