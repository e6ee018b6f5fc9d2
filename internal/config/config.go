// Package config provides configuration loading for fedq.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source kinds.
const (
	KindSQL         = "sql"
	KindSpreadsheet = "spreadsheet"
	KindDocument    = "document"
	KindObjects     = "objects"
)

// Catalog drivers.
const (
	CatalogSQLite = "sqlite"
	CatalogRedis  = "redis"
)

// Config represents the complete fedq configuration
type Config struct {
	Log     LogConfig      `yaml:"log"`
	Engine  EngineConfig   `yaml:"engine"`
	Catalog CatalogConfig  `yaml:"catalog"`
	Sources []SourceConfig `yaml:"sources"`
}

// LogConfig configures the process logger
type LogConfig struct {
	// Level is one of debug, info, warn, error (default: info)
	Level string `yaml:"level"`
	// Format is text or json (default: text)
	Format string `yaml:"format"`
}

// EngineConfig configures query execution
type EngineConfig struct {
	// MaxFanOut bounds concurrent source fetches per request (default: 4)
	MaxFanOut int `yaml:"max_fan_out"`
}

// CatalogConfig configures where named definitions are stored
type CatalogConfig struct {
	// Driver is sqlite or redis
	Driver string `yaml:"driver"`
	// Path is the SQLite database file
	Path string `yaml:"path,omitempty"`
	// Addr is the Redis server address (host:port)
	Addr string `yaml:"addr,omitempty"`
	// Password authenticates to Redis
	Password string `yaml:"password,omitempty"`
	// DB selects the Redis database
	DB int `yaml:"db,omitempty"`
	// Prefix namespaces Redis keys
	Prefix string `yaml:"prefix,omitempty"`
}

// SourceConfig declares one named data source
type SourceConfig struct {
	Name string `yaml:"name"`
	// Kind is sql, spreadsheet, document or objects
	Kind string `yaml:"kind"`
	// Base selects the table, sheet, root path or collection
	Base string `yaml:"base,omitempty"`

	// Driver and DSN open sql sources (sqlite3 or mysql)
	Driver string `yaml:"driver,omitempty"`
	DSN    string `yaml:"dsn,omitempty"`
	// Queries names SELECT statements usable as a base
	Queries map[string]string `yaml:"queries,omitempty"`

	// Path is the file behind spreadsheet, document and objects sources
	Path string `yaml:"path,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Engine: EngineConfig{
			MaxFanOut: 4,
		},
		Catalog: CatalogConfig{
			Driver: CatalogSQLite,
			Path:   "fedq.db",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Engine.MaxFanOut < 1 {
		return fmt.Errorf("engine.max_fan_out must be at least 1")
	}

	switch c.Catalog.Driver {
	case CatalogSQLite:
		if c.Catalog.Path == "" {
			return fmt.Errorf("catalog.path is required for the sqlite catalog")
		}
	case CatalogRedis:
		if c.Catalog.Addr == "" {
			return fmt.Errorf("catalog.addr is required for the redis catalog")
		}
	default:
		return fmt.Errorf("catalog.driver must be sqlite or redis, got %q", c.Catalog.Driver)
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if s.Name == "" {
			return fmt.Errorf("sources[%d].name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("sources[%d]: duplicate source name %q", i, s.Name)
		}
		seen[s.Name] = true
		if err := s.validate(); err != nil {
			return fmt.Errorf("sources[%d] (%s): %w", i, s.Name, err)
		}
	}
	return nil
}

func (s SourceConfig) validate() error {
	switch s.Kind {
	case KindSQL:
		switch s.Driver {
		case "sqlite3", "sqlite", "mysql":
		default:
			return fmt.Errorf("driver must be sqlite3 or mysql, got %q", s.Driver)
		}
		if s.DSN == "" {
			return errors.New("dsn is required")
		}
		if s.Path != "" {
			return errors.New("path does not apply to sql sources")
		}
	case KindSpreadsheet, KindDocument, KindObjects:
		if s.Path == "" {
			return errors.New("path is required")
		}
		if s.Driver != "" || s.DSN != "" || len(s.Queries) > 0 {
			return fmt.Errorf("driver, dsn and queries apply only to sql sources")
		}
	default:
		return fmt.Errorf("kind must be sql, spreadsheet, document or objects, got %q", s.Kind)
	}
	return nil
}

// SlogLevel parses the configured level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return level, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// Handler returns a slog handler writing to w at the configured level
// and format. verbose forces debug.
func (l LogConfig) Handler(w io.Writer, verbose bool) (slog.Handler, error) {
	level, err := l.SlogLevel()
	if err != nil {
		return nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.NewJSONHandler(w, opts), nil
	}
	return slog.NewTextHandler(w, opts), nil
}

// LoadFromFile loads configuration from a YAML file. Unknown keys are
// rejected. Relative file paths resolve against the file's directory.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	config.resolvePaths(filepath.Dir(path))
	return config, nil
}

// Parse decodes YAML over DefaultConfig.
func Parse(data []byte) (*Config, error) {
	config := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return config, nil
}

func (c *Config) resolvePaths(dir string) {
	if c.Catalog.Driver == CatalogSQLite {
		c.Catalog.Path = resolve(dir, c.Catalog.Path)
	}
	for i := range c.Sources {
		s := &c.Sources[i]
		s.Path = resolve(dir, s.Path)
		if s.Kind == KindSQL && s.Driver != "mysql" && isPlainPath(s.DSN) {
			s.DSN = resolve(dir, s.DSN)
		}
	}
}

func resolve(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// isPlainPath reports whether a SQLite DSN is a bare file name rather
// than a URI or the in-memory database.
func isPlainPath(dsn string) bool {
	return dsn != "" && !strings.HasPrefix(dsn, "file:") && !strings.HasPrefix(dsn, ":memory:")
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
