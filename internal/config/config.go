package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultConfigPath = "~/.config/simdash/config.json"
	defaultParallel   = 4

	// DefaultMaskHalfWidth is the on-source window reach, in pixels, each side of a source.
	DefaultMaskHalfWidth = 50
	// DefaultHistogramBins matches the bin count used by every histogram on the dashboard.
	DefaultHistogramBins = 128
)

// Config holds user-editable settings for the dashboard.
type Config struct {
	Data       Data       `json:"data" yaml:"data"`
	Analysis   Analysis   `json:"analysis" yaml:"analysis"`
	Server     Server     `json:"server" yaml:"server"`
	Processing Processing `json:"processing" yaml:"processing"`
	Logging    Logging    `json:"logging" yaml:"logging"`
	Paths      Paths      `json:"paths" yaml:"paths"`
}

// Data describes where simulation runs live on disk.
type Data struct {
	Root         string   `json:"root" yaml:"root"`                   // Output directory holding one folder per run
	FolderPrefix string   `json:"folder_prefix" yaml:"folder_prefix"` // Only folders starting with this are runs
	FITSDir      string   `json:"fits_dir" yaml:"fits_dir"`           // Per-run subdirectory with the images
	Catalogs     []string `json:"catalogs" yaml:"catalogs"`           // Source catalog names, first match wins
}

// Analysis controls the numeric reductions.
type Analysis struct {
	MaskHalfWidth   int `json:"mask_half_width" yaml:"mask_half_width"`
	HistogramBins   int `json:"histogram_bins" yaml:"histogram_bins"`
	StatsDecimals   int `json:"stats_decimals" yaml:"stats_decimals"`
	QualityDecimals int `json:"quality_decimals" yaml:"quality_decimals"`
}

// Server configures the HTTP surface.
type Server struct {
	Addr        string `json:"addr" yaml:"addr"`
	AssetsDir   string `json:"assets_dir" yaml:"assets_dir"`
	Watch       bool   `json:"watch" yaml:"watch"`
	DisplaySize int    `json:"display_size" yaml:"display_size"` // Longest edge of rendered panel images
}

// Processing captures execution preferences.
type Processing struct {
	ParallelLoads int `json:"parallel_loads" yaml:"parallel_loads"`
}

// Logging controls logging verbosity and destinations.
type Logging struct {
	Level      string `json:"level" yaml:"level"`             // debug, info, warn, error
	Format     string `json:"format" yaml:"format"`           // text, json
	FileOutput bool   `json:"file_output" yaml:"file_output"` // Enable file logging
	LogDir     string `json:"log_dir" yaml:"log_dir"`         // Directory for log files
}

// Paths configures auxiliary locations.
type Paths struct {
	DatabasePath string `json:"database_path" yaml:"database_path"` // Empty disables the stats history
}

// Path returns the config file location honoring SIMDASH_CONFIG.
func Path() string {
	if p := os.Getenv("SIMDASH_CONFIG"); p != "" {
		return p
	}
	return defaultConfigPath
}

// Load reads configuration from disk, falling back to sensible defaults.
func Load() (*Config, error) {
	return LoadFile(Path())
}

// LoadFile reads the config at path. A missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	expanded, err := expandUser(path)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(expanded)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(expanded)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, cfg)
	default:
		err = json.Unmarshal(raw, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", expanded, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Data: Data{
			Root:         "./Output/",
			FolderPrefix: "vla_c",
			FITSDir:      "FITS_Files",
			Catalogs:     []string{"sources.pkl", "sources.json", "sources.yaml"},
		},
		Analysis: Analysis{
			MaskHalfWidth:   DefaultMaskHalfWidth,
			HistogramBins:   DefaultHistogramBins,
			StatsDecimals:   3,
			QualityDecimals: 4,
		},
		Server: Server{
			Addr:        "127.0.0.1:8050",
			AssetsDir:   "assets",
			DisplaySize: 800,
		},
		Processing: Processing{
			ParallelLoads: defaultParallel,
		},
		Logging: Logging{
			Level:      "info",
			Format:     "text",
			FileOutput: false,
			LogDir:     "./logs",
		},
		Paths: Paths{
			DatabasePath: filepath.Join(os.TempDir(), "simdash.db"),
		},
	}
}

// Validate checks values the analysis cannot run without.
func (c *Config) Validate() error {
	if c.Data.FolderPrefix == "" {
		return errors.New("data.folder_prefix must not be empty")
	}
	if c.Analysis.MaskHalfWidth <= 0 {
		return fmt.Errorf("analysis.mask_half_width must be positive, got %d", c.Analysis.MaskHalfWidth)
	}
	if c.Analysis.HistogramBins <= 0 {
		return fmt.Errorf("analysis.histogram_bins must be positive, got %d", c.Analysis.HistogramBins)
	}
	if c.Analysis.StatsDecimals < 0 || c.Analysis.QualityDecimals < 0 {
		return errors.New("analysis decimals must not be negative")
	}
	if len(c.Data.Catalogs) == 0 {
		return errors.New("data.catalogs must name at least one catalog file")
	}
	return nil
}

func expandUser(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if path == "~" {
		return home, nil
	}

	return filepath.Join(home, path[2:]), nil
}
