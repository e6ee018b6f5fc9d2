package app

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fedq/internal/config"
	"github.com/roach88/fedq/internal/engine"
	"github.com/roach88/fedq/internal/expr"
	"github.com/roach88/fedq/internal/graph"
	"github.com/roach88/fedq/internal/testutil"
	"github.com/roach88/fedq/internal/value"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeFixtures creates one file per source kind in dir and returns the
// matching source configuration.
func writeFixtures(t *testing.T, dir string) []config.SourceConfig {
	t.Helper()

	dbPath := filepath.Join(dir, "nwind.db")
	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE Orders (OrderID INTEGER PRIMARY KEY, OrderDate DATE);
		INSERT INTO Orders VALUES (1, '2024-01-01');
		INSERT INTO Orders VALUES (2, '2024-01-02');
		INSERT INTO Orders VALUES (3, '2024-01-03');
	`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "sales.csv"),
		[]byte("OrderID,Salesperson\n1,Nancy\n3,Andrew\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "categories.json"),
		[]byte(`{"data":[{"Category":"Fruit","Products":["apple","pear"]}]}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "invoices.yaml"),
		[]byte("- {InvoiceID: 10, OrderID: 1}\n- {InvoiceID: 11, OrderID: 2}\n"), 0o644))

	return []config.SourceConfig{
		{Name: "sqlSource", Kind: config.KindSQL, Driver: "sqlite3", DSN: dbPath, Base: "SQL Orders",
			Queries: map[string]string{"SQL Orders": "SELECT * FROM Orders"}},
		{Name: "excelSource", Kind: config.KindSpreadsheet, Path: filepath.Join(dir, "sales.csv")},
		{Name: "json", Kind: config.KindDocument, Path: filepath.Join(dir, "categories.json"), Base: "data"},
		{Name: "objectSource", Kind: config.KindObjects, Path: filepath.Join(dir, "invoices.yaml")},
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Catalog.Path = filepath.Join(dir, "catalog.db")
	cfg.Sources = writeFixtures(t, dir)
	require.NoError(t, cfg.Validate())
	return cfg
}

func salesDefinition(t *testing.T, sources graph.Sources) *graph.Definition {
	t.Helper()
	b := graph.NewBuilder(sources)
	var err error
	for _, name := range []string{"sqlSource", "excelSource", "objectSource"} {
		b, err = b.Source(name, name)
		require.NoError(t, err)
	}
	b, err = b.Join("sold", "sqlSource", "excelSource",
		expr.MustParse("[sqlSource.OrderID] = [excelSource.OrderID]"))
	require.NoError(t, err)
	b, err = b.Join("invoiced", "sqlSource", "objectSource",
		expr.MustParse("[sqlSource.OrderID] = [objectSource.OrderID]"))
	require.NoError(t, err)
	g, err := b.Build("orders")
	require.NoError(t, err)

	c := graph.NewBuilder(sources)
	c, err = c.Source("json", "json")
	require.NoError(t, err)
	c, err = c.Transform("products", "json", graph.Rule{Column: "Products", Alias: "Product", Unfold: true})
	require.NoError(t, err)
	catalog, err := c.Build("catalog")
	require.NoError(t, err)

	def, err := graph.NewDefinition("sales", g, catalog)
	require.NoError(t, err)
	return def
}

func TestNew_EndToEnd(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	a, err := New(ctx, testConfig(t),
		WithLogger(testLogger()),
		WithRegisterer(reg),
		WithRequestIDs(testutil.NewFixedRequestIDs("req")))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	assert.Equal(t, []string{"excelSource", "json", "objectSource", "sqlSource"}, a.Sources.Names())

	_, err = a.Catalog.Put(ctx, salesDefinition(t, a.Sources))
	require.NoError(t, err)

	rs, err := a.Query(ctx, "sales", "sold")
	require.NoError(t, err)
	require.Equal(t, 2, rs.Len())
	assert.Equal(t, value.Int(1), rs.Rows[0][0])
	assert.Equal(t, value.String("Andrew"), rs.Rows[1][3])

	rs, err = a.Query(ctx, "sales", "invoiced")
	require.NoError(t, err)
	assert.Equal(t, 2, rs.Len())

	rs, err = a.Query(ctx, "sales", "catalog")
	require.NoError(t, err)
	assert.Equal(t, 2, rs.Len())

	_, err = a.Query(ctx, "sales", "missing")
	assert.True(t, engine.IsUnknownAlias(err))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	entries, err := a.Catalog.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []string{"catalog", "orders"}, entries[0].Graphs)
}

func TestNew_SourceFailureClosesOpened(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sources = append(cfg.Sources, config.SourceConfig{
		Name: "broken", Kind: config.KindSpreadsheet, Path: filepath.Join(t.TempDir(), "missing.csv"),
	})

	_, err := New(context.Background(), cfg, WithLogger(testLogger()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestNew_UnsupportedSpreadsheet(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sources = []config.SourceConfig{{Name: "s", Kind: config.KindSpreadsheet, Path: "s.ods"}}

	_, err := New(context.Background(), cfg, WithLogger(testLogger()))
	assert.ErrorContains(t, err, "unsupported spreadsheet extension")
}

func TestOpenCatalog_Redis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Catalog = config.CatalogConfig{Driver: config.CatalogRedis, Addr: mr.Addr(), Prefix: "apptest"}

	a, err := New(ctx, cfg, WithLogger(testLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	fp, err := a.Catalog.Put(ctx, salesDefinition(t, a.Sources))
	require.NoError(t, err)
	assert.True(t, mr.Exists("apptest:definition:sales"))

	entries, err := a.Catalog.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Name: "sales", Fingerprint: fp, Revision: 1}}, entries)

	rs, err := a.Query(ctx, "sales", "sold")
	require.NoError(t, err)
	assert.Equal(t, 2, rs.Len())
}

func TestOpenCatalog_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := OpenCatalog(context.Background(),
		config.CatalogConfig{Driver: config.CatalogRedis, Addr: addr},
		nil, testLogger())
	assert.ErrorContains(t, err, "open catalog")
}
