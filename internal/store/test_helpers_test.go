package store

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/roach88/fedq/internal/expr"
	"github.com/roach88/fedq/internal/graph"
	"github.com/roach88/fedq/internal/source"
	"github.com/roach88/fedq/internal/testutil"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	r, _, _ := testutil.OrdersRegistry()
	return createTestStoreWith(t, r)
}

func createTestStoreWith(t *testing.T, sources graph.Sources) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, sources, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestDefinition builds a definition with one join graph and one
// union graph over the order sources.
func createTestDefinition(t *testing.T, r *source.Registry, name string) *graph.Definition {
	t.Helper()
	b := graph.NewBuilder(r)
	b, err := b.Source("sqlSource", "sqlSource")
	if err != nil {
		t.Fatal(err)
	}
	if b, err = b.Source("excelSource", "excelSource"); err != nil {
		t.Fatal(err)
	}
	joined, err := b.Join("joined", "sqlSource", "excelSource",
		expr.MustParse("[sqlSource.OrderID] = [excelSource.OrderID]"))
	if err != nil {
		t.Fatal(err)
	}
	unioned, err := b.Union("all", graph.UnionAll, "sqlSource", "excelSource")
	if err != nil {
		t.Fatal(err)
	}

	g1, err := joined.Build("joins")
	if err != nil {
		t.Fatal(err)
	}
	g2, err := unioned.Build("unions")
	if err != nil {
		t.Fatal(err)
	}
	def, err := graph.NewDefinition(name, g1, g2)
	if err != nil {
		t.Fatal(err)
	}
	return def
}
