package querystore

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fedq/internal/engine"
	"github.com/roach88/fedq/internal/expr"
	"github.com/roach88/fedq/internal/graph"
	"github.com/roach88/fedq/internal/source"
	"github.com/roach88/fedq/internal/testutil"
	"github.com/roach88/fedq/internal/value"
)

func testRegistry() *source.Registry {
	r, _, _ := testutil.OrdersRegistry()
	testutil.MustRegister(r, "catalog", testutil.NewStaticAdapter([]value.Column{
		{Name: "Category", Type: value.TypeString},
		{Name: "Products", Type: value.TypeArray, Elem: &value.Column{Type: value.TypeString}},
	}, []any{"Fruit", []any{"apple", "pear"}}))
	return r
}

func must(b graph.Builder, err error) graph.Builder {
	if err != nil {
		panic(err)
	}
	return b
}

func salesDefinition(t *testing.T, r *source.Registry) *graph.Definition {
	t.Helper()
	b := graph.NewBuilder(r)
	b = must(b.Source("sqlSource", "sqlSource"))
	b = must(b.Source("excelSource", "excelSource"))
	b = must(b.Select("recent", "sqlSource", []graph.SelectColumn{
		graph.Col(expr.Ref("", "OrderID"), "ID"),
		graph.Col(expr.Ref("", "OrderDate"), ""),
	}, expr.MustParse("[ID] > 1")))
	b = must(b.Join("joined", "sqlSource", "excelSource",
		expr.MustParse("[sqlSource.OrderID] = [excelSource.OrderID]")))
	b = must(b.Union("distinct", graph.Union, "sqlSource", "excelSource"))
	orders, err := b.Build("orders")
	require.NoError(t, err)

	c := graph.NewBuilder(r)
	c = must(c.Source("json", "catalog"))
	c = must(c.Transform("products", "json",
		graph.Rule{Column: "Products", Alias: "Product", Unfold: true}))
	catalog, err := c.Build("catalog")
	require.NoError(t, err)

	def, err := graph.NewDefinition("sales", orders, catalog)
	require.NoError(t, err)
	return def
}

func TestSave_Golden(t *testing.T) {
	data, err := Save(salesDefinition(t, testRegistry()))
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "sales", data)
}

func TestSave_Deterministic(t *testing.T) {
	r := testRegistry()
	first, err := Save(salesDefinition(t, r))
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Save(salesDefinition(t, r))
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}

func TestLoad_RoundTrip(t *testing.T) {
	r := testRegistry()
	def := salesDefinition(t, r)
	data, err := Save(def)
	require.NoError(t, err)

	loaded, err := Load(data, r)
	require.NoError(t, err)

	assert.Equal(t, def.Name, loaded.Name)
	assert.Equal(t, def.GraphNames(), loaded.GraphNames())
	for _, name := range def.GraphNames() {
		want, got := def.Graphs[name], loaded.Graphs[name]
		assert.Equal(t, want.Roots(), got.Roots())
		require.Len(t, got.Nodes(), len(want.Nodes()))
		for i, n := range want.Nodes() {
			m := got.Nodes()[i]
			assert.Equal(t, n.Alias(), m.Alias())
			assert.Equal(t, n.Inputs(), m.Inputs())
			assert.Equal(t, n.Schema(), m.Schema(), n.Alias())
		}
	}

	again, err := Save(loaded)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))
}

func TestLoad_ExecutesLikeOriginal(t *testing.T) {
	r := testRegistry()
	data, err := Save(salesDefinition(t, r))
	require.NoError(t, err)
	loaded, err := Load(data, r)
	require.NoError(t, err)

	e := engine.New(engine.NewCatalog(loaded),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithRequestIDs(testutil.NewFixedRequestIDs("")))
	rs, err := e.Execute(context.Background(), "sales", "products")
	require.NoError(t, err)
	assert.Equal(t, 2, rs.Len())

	rs, err = e.Execute(context.Background(), "sales", "recent")
	require.NoError(t, err)
	assert.Equal(t, []string{"ID", "OrderDate"}, rs.Columns)
	assert.Equal(t, 1, rs.Len())
}

func TestLoad_OrdersNodesTopologically(t *testing.T) {
	doc := `{
	  "version": 1,
	  "name": "d",
	  "graphs": [{
	    "name": "g",
	    "nodes": [
	      {"alias": "u", "type": "union", "inputs": ["a", "b"], "mode": "union_all"},
	      {"alias": "b", "type": "source", "source": "excelSource"},
	      {"alias": "a", "type": "source", "source": "sqlSource"}
	    ]
	  }]
	}`
	def, err := Load([]byte(doc), testRegistry())
	require.NoError(t, err)

	g := def.Graphs["g"]
	aliases := make([]string, 0, 3)
	for _, n := range g.Nodes() {
		aliases = append(aliases, n.Alias())
	}
	assert.Equal(t, []string{"a", "b", "u"}, aliases)
	assert.Equal(t, []string{"u"}, g.Roots())
}

func TestLoad_Malformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		path string
	}{
		{"not json", `{"version":`, ""},
		{"unknown field", `{"version":1,"name":"d","graphs":[],"extra":true}`, ""},
		{"trailing content", `{"version":1,"name":"d","graphs":[]} {}`, ""},
		{"missing version", `{"name":"d","graphs":[]}`, "version"},
		{"future version", `{"version":2,"name":"d","graphs":[]}`, "version"},
		{"missing name", `{"version":1,"graphs":[]}`, "name"},
		{"graph without nodes", `{"version":1,"name":"d","graphs":[{"name":"g","nodes":[]}]}`, "graphs[0].nodes"},
		{"unknown type", `{"version":1,"name":"d","graphs":[{"name":"g","nodes":[
			{"alias":"a","type":"pivot"}]}]}`, "graphs[0].nodes[0].type"},
		{"missing alias", `{"version":1,"name":"d","graphs":[{"name":"g","nodes":[
			{"type":"source","source":"sqlSource"}]}]}`, "graphs[0].nodes[0].alias"},
		{"source with inputs", `{"version":1,"name":"d","graphs":[{"name":"g","nodes":[
			{"alias":"a","type":"source","source":"sqlSource","inputs":["x"]}]}]}`, "graphs[0].nodes[0].inputs"},
		{"join without predicate", `{"version":1,"name":"d","graphs":[{"name":"g","nodes":[
			{"alias":"a","type":"source","source":"sqlSource"},
			{"alias":"b","type":"source","source":"excelSource"},
			{"alias":"j","type":"join","inputs":["a","b"]}]}]}`, "graphs[0].nodes[2].on"},
		{"outer join", `{"version":1,"name":"d","graphs":[{"name":"g","nodes":[
			{"alias":"a","type":"source","source":"sqlSource"},
			{"alias":"b","type":"source","source":"excelSource"},
			{"alias":"j","type":"join","inputs":["a","b"],"on":"[a.OrderID] = [b.OrderID]","kind":"left"}]}]}`, "graphs[0].nodes[2].kind"},
		{"bad union mode", `{"version":1,"name":"d","graphs":[{"name":"g","nodes":[
			{"alias":"a","type":"source","source":"sqlSource"},
			{"alias":"b","type":"source","source":"excelSource"},
			{"alias":"u","type":"union","inputs":["a","b"],"mode":"merge"}]}]}`, "graphs[0].nodes[2].mode"},
		{"bad filter syntax", `{"version":1,"name":"d","graphs":[{"name":"g","nodes":[
			{"alias":"a","type":"source","source":"sqlSource"},
			{"alias":"s","type":"select","inputs":["a"],"columns":[{"expr":"[OrderID]"}],"filter":"[OrderID] >"}]}]}`, "graphs[0].nodes[1].filter"},
		{"bad column expression", `{"version":1,"name":"d","graphs":[{"name":"g","nodes":[
			{"alias":"a","type":"source","source":"sqlSource"},
			{"alias":"s","type":"select","inputs":["a"],"columns":[{"expr":"[OrderID"}]}]}]}`, "graphs[0].nodes[1].columns[0].expr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := Load([]byte(tt.doc), testRegistry())
			assert.Nil(t, def)
			require.Error(t, err)
			assert.True(t, IsMalformedDefinition(err), "got %v", err)

			var de *DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.path, de.Path)
		})
	}
}

func TestLoad_RevalidatesInvariants(t *testing.T) {
	tests := []struct {
		name  string
		nodes string
		check func(error) bool
	}{
		{"unknown source", `{"alias":"a","type":"source","source":"nowhere"}`, graph.IsUnknownAlias},
		{"unknown input", `{"alias":"a","type":"source","source":"sqlSource"},
			{"alias":"s","type":"select","inputs":["missing"],"columns":[{"expr":"[OrderID]"}]}`, graph.IsUnknownAlias},
		{"duplicate alias", `{"alias":"a","type":"source","source":"sqlSource"},
			{"alias":"a","type":"source","source":"excelSource"}`, graph.IsDuplicateAlias},
		{"cycle", `{"alias":"x","type":"select","inputs":["y"],"columns":[{"expr":"[OrderID]"}]},
			{"alias":"y","type":"select","inputs":["x"],"columns":[{"expr":"[OrderID]"}]}`, graph.IsInvalidGraph},
		{"union arity mismatch", `{"alias":"a","type":"source","source":"sqlSource"},
			{"alias":"s","type":"select","inputs":["a"],"columns":[{"expr":"[OrderID]"}]},
			{"alias":"u","type":"union","inputs":["a","s"],"mode":"union"}`, graph.IsInvalidGraph},
		{"unknown column", `{"alias":"a","type":"source","source":"sqlSource"},
			{"alias":"s","type":"select","inputs":["a"],"columns":[{"expr":"[Nope]"}]}`, graph.IsUnknownAlias},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := `{"version":1,"name":"d","graphs":[{"name":"g","nodes":[` + tt.nodes + `]}]}`
			_, err := Load([]byte(doc), testRegistry())
			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v", err)
			assert.False(t, IsMalformedDefinition(err))
		})
	}
}

func TestLoad_CycleNamesPath(t *testing.T) {
	doc := `{"version":1,"name":"d","graphs":[{"name":"g","nodes":[
		{"alias":"x","type":"select","inputs":["y"],"columns":[{"expr":"[OrderID]"}]},
		{"alias":"y","type":"select","inputs":["x"],"columns":[{"expr":"[OrderID]"}]}]}]}`
	_, err := Load([]byte(doc), testRegistry())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "[x y x]"), err.Error())
}

func TestLoad_DuplicateGraphName(t *testing.T) {
	g := `{"name":"g","nodes":[{"alias":"a","type":"source","source":"sqlSource"}]}`
	doc := `{"version":1,"name":"d","graphs":[` + g + `,` + g + `]}`
	_, err := Load([]byte(doc), testRegistry())
	assert.True(t, graph.IsDuplicateAlias(err))
}
