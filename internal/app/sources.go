package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/fedq/internal/config"
	"github.com/roach88/fedq/internal/source"
	"github.com/roach88/fedq/internal/source/docsource"
	"github.com/roach88/fedq/internal/source/memsource"
	"github.com/roach88/fedq/internal/source/sheetsource"
	"github.com/roach88/fedq/internal/source/sqlsource"
)

// OpenSources opens an adapter per configured source and registers it.
// Returned closers release connection pools; on error everything opened
// so far is closed.
func OpenSources(ctx context.Context, sources []config.SourceConfig, logger *slog.Logger) (*source.Registry, []io.Closer, error) {
	registry := source.NewRegistry().WithLogger(logger)
	var closers []io.Closer
	fail := func(err error) (*source.Registry, []io.Closer, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close()
		}
		return nil, nil, err
	}

	for _, sc := range sources {
		adapter, closer, err := openAdapter(ctx, sc, logger)
		if err != nil {
			return fail(err)
		}
		if closer != nil {
			closers = append(closers, closer)
		}
		if err := registry.Register(ctx, sc.Name, adapter, sc.Base); err != nil {
			return fail(err)
		}
		logger.Debug("source registered", "source", sc.Name, "kind", sc.Kind, "base", sc.Base)
	}
	return registry, closers, nil
}

func openAdapter(ctx context.Context, sc config.SourceConfig, logger *slog.Logger) (source.Adapter, io.Closer, error) {
	switch sc.Kind {
	case config.KindSQL:
		a, err := sqlsource.Open(ctx, sc.Name, sc.Driver, sc.DSN,
			sqlsource.WithLogger(logger),
			sqlsource.WithQueries(sc.Queries))
		if err != nil {
			return nil, nil, err
		}
		return a, a, nil
	case config.KindSpreadsheet:
		a, err := sheetsource.Open(sc.Name, sc.Path, logger)
		if err != nil {
			return nil, nil, err
		}
		return a, nil, nil
	case config.KindDocument:
		return docsource.Open(sc.Name, sc.Path, logger), nil, nil
	case config.KindObjects:
		return memsource.New(sc.Name, memsource.YAMLFile(sc.Path), logger), nil, nil
	default:
		return nil, nil, fmt.Errorf("source %q: %w", sc.Name, errors.ErrUnsupported)
	}
}
