// Package redis stores federated query definitions in Redis.
//
// Each definition lives in a hash at "<prefix>:definition:<name>" with
// fields document, fingerprint and revision. A set at
// "<prefix>:definitions" indexes the stored names.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/fedq/internal/engine"
	"github.com/roach88/fedq/internal/graph"
	"github.com/roach88/fedq/internal/querystore"
	"github.com/roach88/fedq/internal/value"
)

// DefaultPrefix namespaces keys when no prefix is configured.
const DefaultPrefix = "fedq"

// Store is a Redis-backed engine.DefinitionProvider.
//
// Thread-safety: safe for concurrent use; the client pools connections.
type Store struct {
	client  redis.UniversalClient
	prefix  string
	sources graph.Sources
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a store over client. Definitions are rebuilt against
// sources on every read.
func New(client redis.UniversalClient, sources graph.Sources, opts ...Option) *Store {
	s := &Store{client: client, prefix: DefaultPrefix, sources: sources, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summary describes a stored definition.
type Summary struct {
	Name        string
	Fingerprint string
	Revision    int64
}

func (s *Store) indexKey() string {
	return s.prefix + ":definitions"
}

func (s *Store) makeKey(name string) string {
	return fmt.Sprintf("%s:definition:%s", s.prefix, name)
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Put stores def. The revision increments only when the document changes.
func (s *Store) Put(ctx context.Context, def *graph.Definition) (string, error) {
	data, err := querystore.Save(def)
	if err != nil {
		return "", fmt.Errorf("put definition %q: %w", def.Name, err)
	}
	fingerprint := value.Fingerprint(value.DomainDefinition, data)
	key := s.makeKey(def.Name)

	current, err := s.client.HGet(ctx, key, "fingerprint").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("put definition %q: %w", def.Name, err)
	}
	if current == fingerprint {
		s.logger.Debug("definition unchanged", "definition", def.Name, "fingerprint", fingerprint)
		return fingerprint, nil
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "document", string(data), "fingerprint", fingerprint)
		pipe.HIncrBy(ctx, key, "revision", 1)
		pipe.SAdd(ctx, s.indexKey(), def.Name)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("put definition %q: %w", def.Name, err)
	}
	s.logger.Info("definition stored", "definition", def.Name, "fingerprint", fingerprint)
	return fingerprint, nil
}

// Document returns the stored document for name.
func (s *Store) Document(ctx context.Context, name string) ([]byte, error) {
	doc, err := s.client.HGet(ctx, s.makeKey(name), "document").Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %q", engine.ErrDefinitionNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read definition %q: %w", name, err)
	}
	return []byte(doc), nil
}

// Get loads and rebuilds the named definition.
func (s *Store) Get(ctx context.Context, name string) (*graph.Definition, error) {
	doc, err := s.Document(ctx, name)
	if err != nil {
		return nil, err
	}
	def, err := querystore.Load(doc, s.sources)
	if err != nil {
		return nil, fmt.Errorf("load definition %q: %w", name, err)
	}
	return def, nil
}

// Definition implements engine.DefinitionProvider.
func (s *Store) Definition(ctx context.Context, name string) (*graph.Definition, error) {
	return s.Get(ctx, name)
}

// List returns every stored definition ordered by name.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	names, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	sort.Strings(names)

	cmds := make([]*redis.SliceCmd, len(names))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, name := range names {
			cmds[i] = pipe.HMGet(ctx, s.makeKey(name), "fingerprint", "revision")
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}

	out := make([]Summary, 0, len(names))
	for i, name := range names {
		var fields struct {
			Fingerprint string `redis:"fingerprint"`
			Revision    int64  `redis:"revision"`
		}
		if err := cmds[i].Scan(&fields); err != nil {
			return nil, fmt.Errorf("list definitions: %q: %w", name, err)
		}
		if fields.Fingerprint == "" {
			// Index entry without a hash: the definition was deleted
			// between SMEMBERS and HMGET.
			continue
		}
		out = append(out, Summary{Name: name, Fingerprint: fields.Fingerprint, Revision: fields.Revision})
	}
	return out, nil
}

// Delete removes the named definition.
func (s *Store) Delete(ctx context.Context, name string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.makeKey(name))
		pipe.SRem(ctx, s.indexKey(), name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete definition %q: %w", name, err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("delete definition: %w: %q", engine.ErrDefinitionNotFound, name)
	}
	s.logger.Info("definition deleted", "definition", name)
	return nil
}
