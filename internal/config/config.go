// Package config handles configuration loading for the multivec tile server.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Datasets Datasets      `yaml:"datasets"`
	Fetch    FetchConfig   `yaml:"fetch"`
	Cache    CacheConfig   `yaml:"cache"`
	Render   RenderConfig  `yaml:"render"`
	Logging  LoggingConfig `yaml:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DatasetConfig describes one multivec group served by the server.
type DatasetConfig struct {
	URL         string `yaml:"url"`
	Name        string `yaml:"name"`
	BinCapacity int    `yaml:"bin_capacity"`
}

// Datasets is an ordered mapping of dataset id to its settings.
type Datasets struct {
	ids  []string
	byID map[string]DatasetConfig
}

// NewDatasets builds a Datasets from parallel id and config slices.
func NewDatasets(ids []string, configs []DatasetConfig) Datasets {
	d := Datasets{byID: make(map[string]DatasetConfig, len(ids))}
	for i, id := range ids {
		d.add(id, configs[i])
	}
	return d
}

func (d *Datasets) add(id string, ds DatasetConfig) {
	if d.byID == nil {
		d.byID = make(map[string]DatasetConfig)
	}
	if _, ok := d.byID[id]; !ok {
		d.ids = append(d.ids, id)
	}
	d.byID[id] = ds
}

// UnmarshalYAML walks the mapping node so YAML order is preserved.
func (d *Datasets) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("datasets: expected a mapping, got line %d", node.Line)
	}
	*d = Datasets{byID: make(map[string]DatasetConfig, len(node.Content)/2)}
	for i := 0; i+1 < len(node.Content); i += 2 {
		var id string
		if err := node.Content[i].Decode(&id); err != nil {
			return fmt.Errorf("datasets: %w", err)
		}
		var ds DatasetConfig
		if err := node.Content[i+1].Decode(&ds); err != nil {
			return fmt.Errorf("datasets.%s: %w", id, err)
		}
		d.add(id, ds)
	}
	return nil
}

// IDs returns dataset ids in configuration order.
func (d Datasets) IDs() []string {
	out := make([]string, len(d.ids))
	copy(out, d.ids)
	return out
}

// Get returns the dataset with the given id.
func (d Datasets) Get(id string) (DatasetConfig, bool) {
	ds, ok := d.byID[id]
	return ds, ok
}

// Len returns the number of datasets.
func (d Datasets) Len() int { return len(d.ids) }

// Default returns the id of the first configured dataset.
func (d Datasets) Default() string {
	if len(d.ids) == 0 {
		return ""
	}
	return d.ids[0]
}

// FetchConfig contains tile fetching settings.
type FetchConfig struct {
	TileTimeoutSeconds int `yaml:"tile_timeout_seconds"`
	BinCapacity        int `yaml:"bin_capacity"`
}

// TileTimeout returns the per-tile timeout.
func (f FetchConfig) TileTimeout() time.Duration {
	return time.Duration(f.TileTimeoutSeconds) * time.Second
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	TileSizeMB     int `yaml:"tile_size_mb"`
	TileTTLMinutes int `yaml:"tile_ttl_minutes"`
	InfoEntries    int `yaml:"info_entries"`
}

// RenderConfig contains rendering settings.
type RenderConfig struct {
	DefaultColormap string `yaml:"default_colormap"`
	RowHeight       int    `yaml:"row_height"`
}

// LoggingConfig contains log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from a YAML file. A missing file yields the
// default configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	// Apply defaults for missing values
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Datasets: NewDatasets(
			[]string{"default"},
			[]DatasetConfig{{URL: "./data/multivec.zarr", BinCapacity: 256}},
		),
		Fetch: FetchConfig{
			TileTimeoutSeconds: 30,
			BinCapacity:        256,
		},
		Cache: CacheConfig{
			TileSizeMB:     256,
			TileTTLMinutes: 10,
			InfoEntries:    128,
		},
		Render: RenderConfig{
			DefaultColormap: "viridis",
			RowHeight:       4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if cfg.Datasets.Len() == 0 {
		cfg.Datasets = defaults.Datasets
	}
	if cfg.Fetch.TileTimeoutSeconds == 0 {
		cfg.Fetch.TileTimeoutSeconds = defaults.Fetch.TileTimeoutSeconds
	}
	if cfg.Fetch.BinCapacity == 0 {
		cfg.Fetch.BinCapacity = defaults.Fetch.BinCapacity
	}
	for _, id := range cfg.Datasets.IDs() {
		ds, _ := cfg.Datasets.Get(id)
		if ds.BinCapacity == 0 {
			ds.BinCapacity = cfg.Fetch.BinCapacity
		}
		if ds.Name == "" {
			ds.Name = id
		}
		cfg.Datasets.add(id, ds)
	}
	if cfg.Cache.TileSizeMB == 0 {
		cfg.Cache.TileSizeMB = defaults.Cache.TileSizeMB
	}
	if cfg.Cache.TileTTLMinutes == 0 {
		cfg.Cache.TileTTLMinutes = defaults.Cache.TileTTLMinutes
	}
	if cfg.Cache.InfoEntries == 0 {
		cfg.Cache.InfoEntries = defaults.Cache.InfoEntries
	}
	if cfg.Render.DefaultColormap == "" {
		cfg.Render.DefaultColormap = defaults.Render.DefaultColormap
	}
	if cfg.Render.RowHeight == 0 {
		cfg.Render.RowHeight = defaults.Render.RowHeight
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaults.Logging.Format
	}
}

// NewLogger builds the process logger writing to w.
func (l LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Validate checks values that have no sensible default.
func (c *Config) Validate() error {
	for _, id := range c.Datasets.IDs() {
		ds, _ := c.Datasets.Get(id)
		// Tile ids are "<dataset>.<zoom>.<column>".
		if id == "" || strings.Contains(id, ".") {
			return fmt.Errorf("datasets: invalid id %q", id)
		}
		if ds.URL == "" {
			return fmt.Errorf("datasets.%s: url is required", id)
		}
		if ds.BinCapacity < 0 {
			return fmt.Errorf("datasets.%s: bin_capacity must be positive", id)
		}
	}
	if c.Fetch.TileTimeoutSeconds < 0 {
		return fmt.Errorf("fetch.tile_timeout_seconds must be positive")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format: unknown format %q", c.Logging.Format)
	}
	return nil
}
