// Package app wires configuration into a running fedq instance: it opens
// every configured source into a registry, opens the definition catalog
// and constructs the engine over it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/fedq/internal/config"
	"github.com/roach88/fedq/internal/engine"
	"github.com/roach88/fedq/internal/source"
)

// App holds the long-lived components built from a Config.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Sources *source.Registry
	Catalog Catalog
	Engine  *engine.Engine

	closers []io.Closer
}

// Option configures New.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	registerer prometheus.Registerer
	ids        engine.RequestIDGenerator
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRegisterer registers engine metrics on r.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = r
	}
}

// WithRequestIDs overrides the engine's request ID generator.
func WithRequestIDs(gen engine.RequestIDGenerator) Option {
	return func(o *options) {
		o.ids = gen
	}
}

// New opens sources and the catalog described by cfg and builds the
// engine. The caller must Close the returned App.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Logger: o.logger}
	registry, closers, err := OpenSources(ctx, cfg.Sources, o.logger)
	if err != nil {
		return nil, err
	}
	a.Sources = registry
	a.closers = closers

	catalog, err := OpenCatalog(ctx, cfg.Catalog, registry, o.logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Catalog = catalog
	a.closers = append(a.closers, catalog)

	engineOpts := []engine.Option{
		engine.WithLogger(o.logger),
		engine.WithMaxFanOut(cfg.Engine.MaxFanOut),
	}
	if o.registerer != nil {
		engineOpts = append(engineOpts, engine.WithMetrics(engine.NewMetrics(o.registerer)))
	}
	if o.ids != nil {
		engineOpts = append(engineOpts, engine.WithRequestIDs(o.ids))
	}
	a.Engine = engine.New(catalog, engineOpts...)

	o.logger.Debug("app ready",
		"sources", len(registry.Names()),
		"catalog", cfg.Catalog.Driver)
	return a, nil
}

// Close releases sources and the catalog in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Query executes root of the named definition.
func (a *App) Query(ctx context.Context, definition, root string) (*engine.RowSet, error) {
	rs, err := a.Engine.Execute(ctx, definition, root)
	if err != nil {
		return nil, fmt.Errorf("query %s/%s: %w", definition, root, err)
	}
	return rs, nil
}
