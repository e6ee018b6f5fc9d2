package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/fedq/internal/engine"
	"github.com/roach88/fedq/internal/graph"
	"github.com/roach88/fedq/internal/querystore"
)

// Summary describes a stored definition without rebuilding it.
type Summary struct {
	Name        string
	Fingerprint string
	Revision    int64
	Graphs      []GraphSummary
}

// GraphSummary names one stored graph and its roots.
type GraphSummary struct {
	Name  string
	Roots []string
}

// Document returns the stored document for name.
func (s *Store) Document(ctx context.Context, name string) ([]byte, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM definitions WHERE name = ?`, name).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", engine.ErrDefinitionNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read definition %q: %w", name, err)
	}
	return []byte(doc), nil
}

// Get loads the named definition and rebuilds it against the store's
// sources.
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

// List returns every stored definition ordered by name, graphs ordered by
// graph name.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.name, d.fingerprint, d.revision, g.graph, g.roots
		FROM definitions d
		LEFT JOIN definition_graphs g ON g.definition = d.name
		ORDER BY d.name ASC COLLATE BINARY, g.graph ASC COLLATE BINARY
	`)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			name, fingerprint string
			revision          int64
			graphName, roots  sql.NullString
		)
		if err := rows.Scan(&name, &fingerprint, &revision, &graphName, &roots); err != nil {
			return nil, fmt.Errorf("list definitions: %w", err)
		}
		if len(out) == 0 || out[len(out)-1].Name != name {
			out = append(out, Summary{Name: name, Fingerprint: fingerprint, Revision: revision})
		}
		if !graphName.Valid {
			continue
		}
		gs := GraphSummary{Name: graphName.String}
		if err := json.Unmarshal([]byte(roots.String), &gs.Roots); err != nil {
			return nil, fmt.Errorf("list definitions: graph %q roots: %w", graphName.String, err)
		}
		last := &out[len(out)-1]
		last.Graphs = append(last.Graphs, gs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	return out, nil
}

// Owners returns the names of definitions containing a graph called
// graphName, in name order.
func (s *Store) Owners(ctx context.Context, graphName string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT definition FROM definition_graphs
		WHERE graph = ?
		ORDER BY definition ASC COLLATE BINARY
	`, graphName)
	if err != nil {
		return nil, fmt.Errorf("find graph %q: %w", graphName, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("find graph %q: %w", graphName, err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
