// Package config handles configuration loading for the lighting server.
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Data   DataConfig   `yaml:"data"`
	Cache  CacheConfig  `yaml:"cache"`
	Render RenderConfig `yaml:"render"`
	Stats  StatsConfig  `yaml:"stats"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port                  int      `yaml:"port"`
	CORSOrigins           []string `yaml:"cors_origins"`
	Title                 string   `yaml:"title"`
	RequestTimeoutSeconds int      `yaml:"request_timeout_seconds"`
}

// DataConfig contains data source settings.
type DataConfig struct {
	VectorPath   string `yaml:"vector_path"`
	VectorTable  string `yaml:"vector_table"`
	RasterPath   string `yaml:"raster_path"`
	MetadataPath string `yaml:"metadata_path"`
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	TileSizeMB     int `yaml:"tile_size_mb"`
	TileTTLMinutes int `yaml:"tile_ttl_minutes"`
	StatsCacheSize int `yaml:"stats_cache_size"`
}

// RenderConfig contains rendering settings.
type RenderConfig struct {
	TileSize        int    `yaml:"tile_size"`
	DefaultColormap string `yaml:"default_colormap"`
	MaxZoom         int    `yaml:"max_zoom"`
}

// StatsConfig contains zonal statistics settings.
type StatsConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"`
	DefaultBins   int `yaml:"default_bins"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Return default config if file doesn't exist
		cfg := DefaultConfig()
		applyEnv(cfg)
		return cfg, nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Apply defaults for missing values
	applyDefaults(&cfg)
	applyEnv(&cfg)

	return &cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                  8000,
			CORSOrigins:           []string{"*"},
			Title:                 "Urban Lighting API",
			RequestTimeoutSeconds: 60,
		},
		Data: DataConfig{
			VectorPath:   "./data/lighting_vector_grid_nonzero_fixed.gpkg",
			RasterPath:   "./data/lighting_model_highres.zarr",
			MetadataPath: "./data/lighting_metadata.json",
		},
		Cache: CacheConfig{
			TileSizeMB:     256,
			TileTTLMinutes: 10,
			StatsCacheSize: 256,
		},
		Render: RenderConfig{
			TileSize:        256,
			DefaultColormap: "lighting",
			MaxZoom:         22,
		},
		Stats: StatsConfig{
			MaxConcurrent: 4,
			DefaultBins:   30,
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
	if cfg.Server.Title == "" {
		cfg.Server.Title = defaults.Server.Title
	}
	if cfg.Server.RequestTimeoutSeconds == 0 {
		cfg.Server.RequestTimeoutSeconds = defaults.Server.RequestTimeoutSeconds
	}
	if cfg.Data.VectorPath == "" {
		cfg.Data.VectorPath = defaults.Data.VectorPath
	}
	if cfg.Data.RasterPath == "" {
		cfg.Data.RasterPath = defaults.Data.RasterPath
	}
	if cfg.Data.MetadataPath == "" {
		cfg.Data.MetadataPath = defaults.Data.MetadataPath
	}
	if cfg.Cache.TileSizeMB == 0 {
		cfg.Cache.TileSizeMB = defaults.Cache.TileSizeMB
	}
	if cfg.Cache.TileTTLMinutes == 0 {
		cfg.Cache.TileTTLMinutes = defaults.Cache.TileTTLMinutes
	}
	if cfg.Cache.StatsCacheSize == 0 {
		cfg.Cache.StatsCacheSize = defaults.Cache.StatsCacheSize
	}
	if cfg.Render.TileSize == 0 {
		cfg.Render.TileSize = defaults.Render.TileSize
	}
	if cfg.Render.DefaultColormap == "" {
		cfg.Render.DefaultColormap = defaults.Render.DefaultColormap
	}
	if cfg.Render.MaxZoom == 0 {
		cfg.Render.MaxZoom = defaults.Render.MaxZoom
	}
	if cfg.Stats.MaxConcurrent == 0 {
		cfg.Stats.MaxConcurrent = defaults.Stats.MaxConcurrent
	}
	if cfg.Stats.DefaultBins == 0 {
		cfg.Stats.DefaultBins = defaults.Stats.DefaultBins
	}
}

// applyEnv expands environment references in paths and applies the
// LIGHTING_VECTOR_PATH, LIGHTING_RASTER_PATH and PORT overrides.
func applyEnv(cfg *Config) {
	if v := os.Getenv("LIGHTING_VECTOR_PATH"); v != "" {
		cfg.Data.VectorPath = v
	}
	if v := os.Getenv("LIGHTING_RASTER_PATH"); v != "" {
		cfg.Data.RasterPath = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Server.Port = port
		}
	}
	cfg.Data.VectorPath = os.ExpandEnv(cfg.Data.VectorPath)
	cfg.Data.RasterPath = os.ExpandEnv(cfg.Data.RasterPath)
	cfg.Data.MetadataPath = os.ExpandEnv(cfg.Data.MetadataPath)
}
