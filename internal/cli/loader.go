package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/fedq/internal/app"
	"github.com/roach88/fedq/internal/compiler"
	"github.com/roach88/fedq/internal/config"
	"github.com/roach88/fedq/internal/engine"
	"github.com/roach88/fedq/internal/graph"
	"github.com/roach88/fedq/internal/querystore"
	"github.com/roach88/fedq/internal/source"
)

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No definition files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeConfig      = "E008" // Config missing or invalid
	ErrCodeCatalog     = "E009" // Catalog or source unavailable at startup

	// Definition errors
	ErrCodeMalformed      = "E101" // Document shape or field error
	ErrCodeUnknownAlias   = "E102" // Reference to an undeclared alias or source
	ErrCodeDuplicateAlias = "E103" // Alias declared twice
	ErrCodeInvalidGraph   = "E104" // Graph-level check failed (cycle, types, schema)
	ErrCodeNoDefinition   = "E105" // Definition not in the catalog

	// Runtime errors
	ErrCodeSourceUnavailable = "E201" // Adapter fetch failed
	ErrCodeSchemaMismatch    = "E202" // Rows disagree with the declared schema
	ErrCodeJoinTypes         = "E203" // Join predicate compares incompatible types
	ErrCodeUnionTypes        = "E204" // Union inputs disagree on column types
	ErrCodeFilterTypes       = "E205" // Filter compares incompatible types
	ErrCodeCancelled         = "E206" // Execution cancelled
	ErrCodeUnknownRoot       = "E207" // Root alias not found at execution time

	// Scenario errors
	ErrCodeScenarioFailed = "E301" // One or more conformance scenarios failed
)

// MapErrorToCode maps a typed error from the engine, graph builder,
// document decoder or source registry to a CLI error code.
func MapErrorToCode(err error) string {
	var re *engine.RuntimeError
	if errors.As(err, &re) {
		switch re.Code {
		case engine.ErrCodeSourceUnavailable:
			return ErrCodeSourceUnavailable
		case engine.ErrCodeSchemaMismatch:
			return ErrCodeSchemaMismatch
		case engine.ErrCodeIncompatibleJoinTypes:
			return ErrCodeJoinTypes
		case engine.ErrCodeUnionTypeMismatch:
			return ErrCodeUnionTypes
		case engine.ErrCodeFilterTypeMismatch:
			return ErrCodeFilterTypes
		case engine.ErrCodeCancelled:
			return ErrCodeCancelled
		case engine.ErrCodeUnknownAlias:
			if errors.Is(err, engine.ErrDefinitionNotFound) {
				return ErrCodeNoDefinition
			}
			return ErrCodeUnknownRoot
		}
		return ErrCodeGeneric
	}
	if errors.Is(err, engine.ErrDefinitionNotFound) {
		return ErrCodeNoDefinition
	}

	var be *graph.BuildError
	if errors.As(err, &be) {
		switch be.Code {
		case graph.ErrCodeUnknownAlias:
			return ErrCodeUnknownAlias
		case graph.ErrCodeDuplicateAlias:
			return ErrCodeDuplicateAlias
		default:
			return ErrCodeInvalidGraph
		}
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) && compileErr.Field == "cue" {
		return ErrCodeBuildFailed
	}
	if querystore.IsMalformedDefinition(err) || compileErr != nil {
		return ErrCodeMalformed
	}

	var se *source.Error
	if errors.As(err, &se) {
		if se.Code == source.ErrCodeSchemaMismatch {
			return ErrCodeSchemaMismatch
		}
		return ErrCodeSourceUnavailable
	}
	return ErrCodeGeneric
}

// environment is the per-invocation state shared by commands: the loaded
// config and a logger writing to stderr.
type environment struct {
	config *config.Config
	logger *slog.Logger
}

// loadEnvironment resolves the config file (--config, then fedq.yaml in
// the working directory, then defaults) and builds the logger it
// describes.
func loadEnvironment(opts *RootOptions, stderr io.Writer) (*environment, error) {
	bootLevel := slog.LevelWarn
	if opts.Verbose {
		bootLevel = slog.LevelDebug
	}
	boot := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: bootLevel}))

	if opts.ConfigPath != "" {
		if _, err := os.Stat(opts.ConfigPath); err != nil {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("config file not found: %s", opts.ConfigPath)}
		}
	}
	cfg, err := config.NewLoader(boot).Load(opts.ConfigPath)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeConfig, Message: err.Error()}
	}
	handler, err := cfg.Log.Handler(stderr, opts.Verbose)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeConfig, Message: err.Error()}
	}
	return &environment{config: cfg, logger: slog.New(handler)}, nil
}

// openSources opens the configured sources without the catalog. The
// caller closes every returned closer.
func (e *environment) openSources(ctx context.Context) (*source.Registry, func(), error) {
	registry, closers, err := app.OpenSources(ctx, e.config.Sources, e.logger)
	if err != nil {
		return nil, nil, &LoadError{Code: ErrCodeCatalog, Message: err.Error()}
	}
	release := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close()
		}
	}
	return registry, release, nil
}

// openApp opens sources, the catalog and the engine.
func (e *environment) openApp(ctx context.Context) (*app.App, error) {
	a, err := app.New(ctx, e.config, app.WithLogger(e.logger))
	if err != nil {
		return nil, &LoadError{Code: ErrCodeCatalog, Message: err.Error()}
	}
	return a, nil
}

// LoadError is a command setup failure: a missing path, bad config, or a
// source or catalog that cannot be opened.
type LoadError struct {
	Code    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadDefinition reads a definition from path: a directory of CUE files,
// a single .cue file, or a persisted JSON document. Setup failures
// (missing path, no CUE files) are *LoadError; definition errors keep
// their typed cause.
func LoadDefinition(path string, sources graph.Sources) (*graph.Definition, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("definition not found: %s", path)}
	}

	if info.IsDir() {
		files, err := filepath.Glob(filepath.Join(path, "*.cue"))
		if err != nil {
			return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
		}
		if len(files) == 0 {
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
		}
		return compiler.CompileDir(path, sources)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("reading %s: %v", path, err)}
	}
	if filepath.Ext(path) == ".cue" {
		return compiler.CompileString(string(data), path, sources)
	}
	return querystore.Load(data, sources)
}

// failWith writes err through the formatter and converts it to an
// ExitError. Setup failures exit with ExitCommandError; everything else
// with ExitFailure.
func failWith(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
		return WrapExitError(ExitCommandError, loadErr.Code, errors.New(loadErr.Message))
	}

	code := MapErrorToCode(err)
	var details any
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) && compileErr.Pos.IsValid() {
		details = map[string]any{
			"file":   compileErr.Pos.Filename(),
			"line":   compileErr.Pos.Line(),
			"column": compileErr.Pos.Column(),
			"field":  compileErr.Field,
		}
	}
	_ = formatter.Error(code, err.Error(), details)
	return WrapExitError(ExitFailure, code, err)
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}
