package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// ProjectConfigFile is the config file looked up in the working directory
const ProjectConfigFile = "fedq.yaml"

// Loader resolves and loads the configuration file
type Loader struct {
	logger *slog.Logger
	dir    string
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// InDir makes the loader look for ProjectConfigFile in dir instead of
// the working directory.
func (l *Loader) InDir(dir string) *Loader {
	l.dir = dir
	return l
}

// Load loads configuration with precedence:
// 1. path, when non-empty (must exist)
// 2. fedq.yaml in the working directory
// 3. DefaultConfig
func (l *Loader) Load(path string) (*Config, error) {
	if path == "" {
		path = l.findProjectConfig()
	}

	var (
		config *Config
		err    error
	)
	if path == "" {
		l.logger.Debug("No project config found, using defaults")
		config = DefaultConfig()
	} else {
		config, err = LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded config", slog.String("path", path), slog.Int("sources", len(config.Sources)))
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

func (l *Loader) findProjectConfig() string {
	dir := l.dir
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return ""
		}
		dir = cwd
	}
	path := filepath.Join(dir, ProjectConfigFile)
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			l.logger.Warn("Failed to stat project config", slog.String("path", path), slog.String("error", err.Error()))
		}
		return ""
	}
	return path
}
