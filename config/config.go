// Package config loads the YAML configuration shared by every command.
package config

import (
	"os"

	"imagedupes/matcher"
	"imagedupes/pcache"
	"imagedupes/scanner"
	"imagedupes/signalhandler"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Store backends for the cache snapshot
const (
	StoreFile   = "file"
	StoreBolt   = "bolt"
	StoreS3     = "s3"
	StoreMemory = "memory"
)

// Config is the root of the YAML document
type Config struct {
	// Database is the SQLite file records and reports are written to; empty disables it
	Database string         `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Scan     ScanConfig     `yaml:"scan"`
	Matcher  matcher.Config `yaml:"matcher"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// CacheConfig selects where fingerprints are snapshotted and how many are computed at once
type CacheConfig struct {
	Name    string `yaml:"name"`
	Workers int    `yaml:"workers"`

	// Store is one of file, bolt, s3 or memory
	Store             string          `yaml:"store"`
	Dir               string          `yaml:"dir"`
	BoltPath          string          `yaml:"bolt_path"`
	S3                pcache.S3Config `yaml:"s3"`
	ResetOnCorruption bool            `yaml:"reset_on_corruption"`
}

// ScanConfig controls file enumeration
type ScanConfig struct {
	Excludes []string `yaml:"excludes"`
	// EnableRaw decodes RAW files through their embedded JPEG preview
	EnableRaw  bool `yaml:"enable_raw"`
	AutoOrient bool `yaml:"auto_orient"`
}

// LogConfig controls logging
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// MetricsConfig exposes prometheus metrics over HTTP while a command runs
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Database: DefaultDatabasePath(),
		Cache: CacheConfig{
			Name:    pcache.DefaultName,
			Workers: signalhandler.GetOptimalProcs(),
			Store:   StoreFile,
			Dir:     DefaultCacheDir(),
		},
		Scan: ScanConfig{
			Excludes:   append([]string(nil), scanner.DefaultExcludes...),
			EnableRaw:  true,
			AutoOrient: true,
		},
		Matcher: matcher.DefaultConfig(),
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults. Keys missing from the file keep their default value.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "reading config file")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parsing YAML")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the whole document and reports every problem at once
func (c Config) Validate() error {
	var result *multierror.Error

	if c.Cache.Name == "" {
		result = multierror.Append(result, errors.New("cache.name must not be empty"))
	}
	if c.Cache.Workers < 1 {
		result = multierror.Append(result, errors.Errorf("cache.workers must be at least 1, got %d", c.Cache.Workers))
	}
	switch c.Cache.Store {
	case StoreFile:
		if c.Cache.Dir == "" {
			result = multierror.Append(result, errors.New("cache.dir is required for the file store"))
		}
	case StoreBolt:
		if c.Cache.BoltPath == "" {
			result = multierror.Append(result, errors.New("cache.bolt_path is required for the bolt store"))
		}
	case StoreS3:
		if c.Cache.S3.Endpoint == "" || c.Cache.S3.Bucket == "" {
			result = multierror.Append(result, errors.New("cache.s3.endpoint and cache.s3.bucket are required for the s3 store"))
		}
	case StoreMemory:
	default:
		result = multierror.Append(result, errors.Errorf("unknown cache.store %q", c.Cache.Store))
	}
	if err := c.Matcher.Validate(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "matcher"))
	}

	return result.ErrorOrNil()
}
