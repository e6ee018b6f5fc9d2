package app

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/roach88/fedq/internal/config"
	"github.com/roach88/fedq/internal/engine"
	"github.com/roach88/fedq/internal/graph"
	"github.com/roach88/fedq/internal/store"
	"github.com/roach88/fedq/internal/store/redis"
)

// Catalog is a persistent definition store the engine reads from.
type Catalog interface {
	engine.DefinitionProvider
	Put(ctx context.Context, def *graph.Definition) (string, error)
	Document(ctx context.Context, name string) ([]byte, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]Entry, error)
	Close() error
}

// Entry summarizes one stored definition.
type Entry struct {
	Name        string   `json:"name"`
	Fingerprint string   `json:"fingerprint"`
	Revision    int64    `json:"revision"`
	Graphs      []string `json:"graphs,omitempty"`
}

// OpenCatalog opens the configured catalog backend.
func OpenCatalog(ctx context.Context, cfg config.CatalogConfig, sources graph.Sources, logger *slog.Logger) (Catalog, error) {
	switch cfg.Driver {
	case config.CatalogSQLite:
		s, err := store.Open(cfg.Path, sources, store.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("open catalog %s: %w", cfg.Path, err)
		}
		return sqliteCatalog{s}, nil
	case config.CatalogRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		s := redis.New(client, sources, redis.WithPrefix(cfg.Prefix), redis.WithLogger(logger))
		if err := s.Ping(ctx); err != nil {
			client.Close()
			return nil, fmt.Errorf("open catalog %s: %w", cfg.Addr, err)
		}
		return redisCatalog{Store: s, client: client}, nil
	default:
		return nil, fmt.Errorf("unknown catalog driver %q", cfg.Driver)
	}
}

type sqliteCatalog struct {
	*store.Store
}

func (c sqliteCatalog) List(ctx context.Context) ([]Entry, error) {
	summaries, err := c.Store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, len(summaries))
	for i, s := range summaries {
		graphs := make([]string, len(s.Graphs))
		for j, g := range s.Graphs {
			graphs[j] = g.Name
		}
		out[i] = Entry{Name: s.Name, Fingerprint: s.Fingerprint, Revision: s.Revision, Graphs: graphs}
	}
	return out, nil
}

type redisCatalog struct {
	*redis.Store
	client *goredis.Client
}

func (c redisCatalog) List(ctx context.Context) ([]Entry, error) {
	summaries, err := c.Store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, len(summaries))
	for i, s := range summaries {
		out[i] = Entry{Name: s.Name, Fingerprint: s.Fingerprint, Revision: s.Revision}
	}
	return out, nil
}

func (c redisCatalog) Close() error {
	return c.client.Close()
}
