// Package config loads the server configuration from a JSONC file.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// Errors returned by Load.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config")
)

// FileName is the config file looked up in the working directory when no
// path is given.
const FileName = "restup.json"

// Config holds all configuration options.
type Config struct {
	Listen     string `json:"listen"`
	Driver     string `json:"driver"`
	DSN        string `json:"dsn"`
	Schema     string `json:"schema,omitempty"`
	MaxConns   int    `json:"max_conns"`
	MaxRunning int    `json:"max_running"`
	BatchBytes int    `json:"batch_bytes"`
	Blobs      []Blob `json:"blobs,omitempty"`
	Log        Log    `json:"log"`

	// Source is the file the config was read from, empty for defaults only.
	Source string `json:"-"`
}

// Blob binds the blob field handler to one table field.
type Blob struct {
	Table     string `json:"table"`
	Field     string `json:"field"`
	Dir       string `json:"dir"`
	KeyColumn string `json:"key_column,omitempty"`
}

// Log configures logging.
type Log struct {
	Level  string `json:"level"`
	SeqURL string `json:"seq_url,omitempty"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Listen:     ":1337",
		Driver:     "sqlite3",
		DSN:        "restup.db",
		MaxConns:   8,
		MaxRunning: 8,
		BatchBytes: 1 << 20,
		Log:        Log{Level: "info"},
	}
}

// Overrides are command line values; zero values leave the config alone.
type Overrides struct {
	Listen string
	Driver string
	DSN    string
	Schema string
}

// LoadInput holds the inputs for Load.
type LoadInput struct {
	WorkDir   string // directory holding the default config file; os.Getwd() when empty
	Path      string // explicit config file, which must exist
	Overrides Overrides
}

// Load builds the configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Config file (explicit path, or restup.json in WorkDir if present)
// 3. Command line overrides.
//
// Relative schema and blob paths in a file are resolved against the file's
// directory.
func Load(in LoadInput) (Config, error) {
	workDir := in.WorkDir
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := Default()

	path, mustExist := in.Path, true
	if path == "" {
		path, mustExist = filepath.Join(workDir, FileName), false
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}

	loaded, err := loadFile(&cfg, path, mustExist)
	if err != nil {
		return Config{}, err
	}
	if loaded {
		cfg.Source = path
		cfg.resolvePaths(filepath.Dir(path))
	}

	cfg.apply(in.Overrides)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadFile decodes path over cfg. A missing optional file is not an error.
func loadFile(cfg *Config, path string, mustExist bool) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if mustExist {
				return false, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
			}
			return false, nil
		}
		return false, fmt.Errorf("%w: %s: %w", ErrConfigFileRead, path, err)
	}

	if err := Parse(data, cfg); err != nil {
		return false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}
	return true, nil
}

// Parse decodes a JSONC document over cfg. Keys absent from data keep their
// current values.
func Parse(data []byte, cfg *Config) error {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fmt.Errorf("invalid JSONC: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func (c *Config) resolvePaths(dir string) {
	if c.Schema != "" && !filepath.IsAbs(c.Schema) {
		c.Schema = filepath.Join(dir, c.Schema)
	}
	for i := range c.Blobs {
		if c.Blobs[i].Dir != "" && !filepath.IsAbs(c.Blobs[i].Dir) {
			c.Blobs[i].Dir = filepath.Join(dir, c.Blobs[i].Dir)
		}
	}
}

func (c *Config) apply(o Overrides) {
	if o.Listen != "" {
		c.Listen = o.Listen
	}
	if o.Driver != "" {
		c.Driver = o.Driver
	}
	if o.DSN != "" {
		c.DSN = o.DSN
	}
	if o.Schema != "" {
		c.Schema = o.Schema
	}
}

// Validate checks every field.
func (c Config) Validate() error {
	switch c.Driver {
	case "sqlite3", "mysql":
	default:
		return fmt.Errorf("%w: driver %q: must be sqlite3 or mysql", ErrConfigInvalid, c.Driver)
	}
	if c.DSN == "" {
		return fmt.Errorf("%w: dsn is required", ErrConfigInvalid)
	}
	if c.Listen == "" {
		return fmt.Errorf("%w: listen is required", ErrConfigInvalid)
	}
	if c.MaxConns <= 0 {
		return fmt.Errorf("%w: max_conns must be positive", ErrConfigInvalid)
	}
	if c.MaxRunning <= 0 {
		return fmt.Errorf("%w: max_running must be positive", ErrConfigInvalid)
	}
	if c.BatchBytes < 0 {
		return fmt.Errorf("%w: batch_bytes must not be negative", ErrConfigInvalid)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return fmt.Errorf("%w: log.level: %w", ErrConfigInvalid, err)
	}

	seen := make(map[string]bool, len(c.Blobs))
	for i, b := range c.Blobs {
		if b.Table == "" || b.Field == "" || b.Dir == "" {
			return fmt.Errorf("%w: blobs[%d]: table, field and dir are required", ErrConfigInvalid, i)
		}
		key := b.Table + "." + b.Field
		if seen[key] {
			return fmt.Errorf("%w: blobs[%d]: %s configured twice", ErrConfigInvalid, i, key)
		}
		seen[key] = true
	}
	return nil
}

// SlogLevel parses Level; empty means info.
func (l Log) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, err
	}
	return level, nil
}
