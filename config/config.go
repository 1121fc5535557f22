// Package config loads volrender settings from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/gmlewis/volrender/compress"
	"github.com/gmlewis/volrender/crop"
	"github.com/gmlewis/volrender/mask"
)

// Config represents the application configuration.
type Config struct {
	Compression struct {
		// Chain lists algorithm names in resolution order.
		Chain []string `yaml:"chain"`

		// ExpansionFactor is the initial decompressed/compressed size bound.
		ExpansionFactor  int `yaml:"expansionFactor"`
		// ExpansionRetries is how many times the bound doubles before failing.
		ExpansionRetries int `yaml:"expansionRetries"`
	} `yaml:"compression"`

	Render struct {
		// MaskEntries is the size of the mask color table, index 0 included.
		MaskEntries     int     `yaml:"maskEntries"`
		Gamma           float32 `yaml:"gamma"`
		WhiteBackground bool    `yaml:"whiteBackground"`
		CropOutLevel    float32 `yaml:"cropOutLevel"`
	} `yaml:"render"`

	Window struct {
		Width  int    `yaml:"width"`
		Height int    `yaml:"height"`
		Title  string `yaml:"title"`
	} `yaml:"window"`

	Log struct {
		// Level is a logrus level name.
		Level string `yaml:"level"`

		// File, if set, receives rotated log output instead of stderr.
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"maxSizeMB"`
		MaxBackups int    `yaml:"maxBackups"`
	} `yaml:"log"`

	Loader struct {
		// Concurrency bounds the number of volumes decoded at once.
		Concurrency int `yaml:"concurrency"`
	} `yaml:"loader"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Compression.Chain = []string{"lz4", "zstd", "gzip", "identity"}
	cfg.Compression.ExpansionFactor = compress.DefaultExpansion.Factor
	cfg.Compression.ExpansionRetries = compress.DefaultExpansion.Retries

	cfg.Render.MaskEntries = mask.TableWidth
	cfg.Render.Gamma = 1
	cfg.Render.CropOutLevel = crop.DefaultOutLevel

	cfg.Window.Width = 1024
	cfg.Window.Height = 768
	cfg.Window.Title = "volrender"

	cfg.Log.Level = "info"
	cfg.Log.MaxSizeMB = 10
	cfg.Log.MaxBackups = 3

	cfg.Loader.Concurrency = runtime.NumCPU()

	return cfg
}

// LoadConfig loads configuration from a YAML file. Fields missing from the
// file keep their defaults, and a missing file yields DefaultConfig.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()
	if configPath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file %v: %w", configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to a YAML file, creating its directory if needed.
func SaveConfig(cfg *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// Validate checks values that would otherwise fail much later.
func (c *Config) Validate() error {
	if len(c.Compression.Chain) == 0 {
		return fmt.Errorf("config: empty compression chain")
	}
	if c.Compression.ExpansionFactor < 1 {
		return fmt.Errorf("config: expansion factor %v must be at least 1", c.Compression.ExpansionFactor)
	}
	if c.Compression.ExpansionRetries < 0 {
		return fmt.Errorf("config: negative expansion retries %v", c.Compression.ExpansionRetries)
	}
	if c.Render.MaskEntries < 2 {
		return fmt.Errorf("config: mask table of %v entries holds no structures", c.Render.MaskEntries)
	}
	if c.Render.Gamma <= 0 {
		return fmt.Errorf("config: gamma %v must be positive", c.Render.Gamma)
	}
	if c.Render.CropOutLevel < 0 || c.Render.CropOutLevel > 1 {
		return fmt.Errorf("config: crop out level %v outside [0,1]", c.Render.CropOutLevel)
	}
	if c.Loader.Concurrency < 1 {
		c.Loader.Concurrency = 1
	}
	return nil
}

// Expansion returns the configured decompression bound policy.
func (c *Config) Expansion() compress.Expansion {
	return compress.Expansion{Factor: c.Compression.ExpansionFactor, Retries: c.Compression.ExpansionRetries}
}

// Resolver builds the configured compression chain.
func (c *Config) Resolver() (*compress.Resolver, error) {
	return compress.FromNames(c.Compression.Chain, c.Expansion())
}

// NewTracker returns a mask index tracker sized by the config.
func (c *Config) NewTracker() *mask.Tracker {
	return mask.NewTracker(c.Render.MaskEntries)
}
