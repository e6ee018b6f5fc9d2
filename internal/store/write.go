package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/fedq/internal/engine"
	"github.com/roach88/fedq/internal/graph"
	"github.com/roach88/fedq/internal/querystore"
	"github.com/roach88/fedq/internal/value"
)

// Put stores def, replacing any definition with the same name.
//
// The revision increments only when the saved document changes; putting
// an identical definition is a no-op. Returns the stored fingerprint.
func (s *Store) Put(ctx context.Context, def *graph.Definition) (string, error) {
	data, err := querystore.Save(def)
	if err != nil {
		return "", fmt.Errorf("put definition %q: %w", def.Name, err)
	}
	fingerprint := value.Fingerprint(value.DomainDefinition, data)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("put definition %q: %w", def.Name, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO definitions (name, document, fingerprint, revision)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(name) DO UPDATE SET
			document = excluded.document,
			fingerprint = excluded.fingerprint,
			revision = definitions.revision + 1
		WHERE definitions.fingerprint != excluded.fingerprint
	`, def.Name, string(data), fingerprint)
	if err != nil {
		return "", fmt.Errorf("put definition %q: %w", def.Name, err)
	}
	changed, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("put definition %q: %w", def.Name, err)
	}
	if changed == 0 {
		s.logger.Debug("definition unchanged", "definition", def.Name, "fingerprint", fingerprint)
		return fingerprint, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM definition_graphs WHERE definition = ?`, def.Name); err != nil {
		return "", fmt.Errorf("put definition %q: %w", def.Name, err)
	}
	for _, name := range def.GraphNames() {
		roots, err := json.Marshal(def.Graphs[name].Roots())
		if err != nil {
			return "", fmt.Errorf("put definition %q: %w", def.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO definition_graphs (definition, graph, roots)
			VALUES (?, ?, ?)
		`, def.Name, name, string(roots)); err != nil {
			return "", fmt.Errorf("put definition %q graph %q: %w", def.Name, name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("put definition %q: %w", def.Name, err)
	}
	s.logger.Info("definition stored", "definition", def.Name, "fingerprint", fingerprint)
	return fingerprint, nil
}

// PutDocument loads a persisted document against the store's sources and
// stores the result. Invalid documents are rejected before any write.
func (s *Store) PutDocument(ctx context.Context, data []byte) (*graph.Definition, error) {
	def, err := querystore.Load(data, s.sources)
	if err != nil {
		return nil, err
	}
	if _, err := s.Put(ctx, def); err != nil {
		return nil, err
	}
	return def, nil
}

// Delete removes the named definition. Deleting an unknown name returns
// an error wrapping engine.ErrDefinitionNotFound.
func (s *Store) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM definitions WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete definition %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete definition %q: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("delete definition: %w: %q", engine.ErrDefinitionNotFound, name)
	}
	s.logger.Info("definition deleted", "definition", name)
	return nil
}
