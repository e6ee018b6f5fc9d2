package expr

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fedq/internal/value"
)

func TestParseRoundTrip(t *testing.T) {
	inputs := []string{
		"[sql.OrderID] = [excel.OrderID]",
		"[OrderID] = 1",
		"[a.x] <> 'it''s'",
		"[a.x] >= #2024-01-01#",
		"[a.price] < 2.5",
		"[a.price] < 2.0",
		"[a.n] > -3",
		"[a.flag] = TRUE",
		"[a.x] IS NULL",
		"[a.x] IS NOT NULL",
		"[a.x] = 1 AND [a.y] = 2 AND [a.z] = 3",
		"[a.x] = 1 OR [a.y] = 2 AND [a.z] = 3",
		"([a.x] = 1 OR [a.y] = 2) AND [a.z] = 3",
		"NOT [a.x] = 1",
		"NOT ([a.x] = 1 AND [a.y] = 2)",
		"[.Supplier.Name] = 'Exotic'",
		"[t.Supplier.Name] = 'Exotic'",
		"[a.we]]ird] = 1",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			p, err := Parse(in)
			require.NoError(t, err)
			assert.Equal(t, in, p.String())

			again, err := Parse(p.String())
			require.NoError(t, err)
			assert.Equal(t, p, again)
		})
	}
}

func TestParseTree(t *testing.T) {
	p, err := Parse("[a.x] = 1 OR [a.y] = 2 AND NOT [b.z] IS NULL")
	require.NoError(t, err)

	want := Or{Terms: []Predicate{
		Compare{Op: OpEq, Left: Ref("a", "x"), Right: Lit(value.Int(1))},
		And{Terms: []Predicate{
			Compare{Op: OpEq, Left: Ref("a", "y"), Right: Lit(value.Int(2))},
			Not{Term: IsNull{Expr: Ref("b", "z")}},
		}},
	}}
	assert.Equal(t, want, p)
}

func TestParseNormalizesOperators(t *testing.T) {
	p, err := Parse("[a.x] != 'y' and [a.z] = null")
	require.NoError(t, err)
	assert.Equal(t, "[a.x] <> 'y' AND [a.z] = NULL", p.String())
}

func TestParseErrors(t *testing.T) {
	tests := []string{
		"",
		"[a.x]",
		"[a.x] = ",
		"[a.x = 1",
		"[a.x] = 'open",
		"[a.x] = #2024-01-01",
		"[a.x] = #yesterday#",
		"[a.x] = 1 )",
		"([a.x] = 1",
		"[a.x] ! 1",
		"[a.x] IS 1",
		"[a.] = 1",
		"[a.x] = 1 XOR [a.y] = 2",
		"[a.x] = 99999999999999999999",
	}
	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			var syntaxErr *SyntaxError
			require.ErrorAs(t, err, &syntaxErr)
		})
	}
}

func TestParseExpr(t *testing.T) {
	e, err := ParseExpr("[sql.OrderDate]")
	require.NoError(t, err)
	assert.Equal(t, Ref("sql", "OrderDate"), e)

	e, err = ParseExpr("'fixed'")
	require.NoError(t, err)
	assert.Equal(t, Lit(value.String("fixed")), e)

	_, err = ParseExpr("[a.x] = 1")
	assert.Error(t, err)
}

func TestRefs(t *testing.T) {
	p := MustParse("[a.x] = [b.y] AND ([a.z] IS NULL OR 1 < [c.w])")
	assert.Equal(t, []ColumnRef{Ref("a", "x"), Ref("b", "y"), Ref("a", "z"), Ref("c", "w")}, Refs(p))
}

func TestRewrite(t *testing.T) {
	p := MustParse("[a.x] = [b.y] AND NOT [a.z] IS NULL")
	got := Rewrite(p, func(r ColumnRef) ColumnRef {
		r.Source = ""
		return r
	})
	assert.Equal(t, "[x] = [y] AND NOT [z] IS NULL", got.String())
	assert.Equal(t, "[a.x] = [b.y] AND NOT [a.z] IS NULL", p.String(), "input is not mutated")
}

func TestEquiJoin(t *testing.T) {
	l, r, ok := EquiJoin(MustParse("[sql.OrderID] = [excel.OrderID]"))
	require.True(t, ok)
	assert.Equal(t, Ref("sql", "OrderID"), l)
	assert.Equal(t, Ref("excel", "OrderID"), r)

	for _, in := range []string{
		"[a.x] = 1",
		"[a.x] < [b.x]",
		"[a.x] = [b.x] AND [a.y] = [b.y]",
	} {
		_, _, ok := EquiJoin(MustParse(in))
		assert.False(t, ok, in)
	}
}

func rowEnv(vals map[string]value.Value) Env {
	return func(ref ColumnRef) (value.Value, error) {
		v, ok := vals[ref.Column]
		if !ok {
			return nil, fmt.Errorf("no column %s", ref)
		}
		return v, nil
	}
}

func TestEval(t *testing.T) {
	env := rowEnv(map[string]value.Value{
		"id":    value.Int(2),
		"price": value.Float(2.5),
		"name":  value.String("Chai"),
		"day":   value.NewDate(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)),
		"ship":  value.Null{},
		"ok":    value.Bool(true),
	})

	tests := []struct {
		in   string
		want bool
	}{
		{"[id] = 2", true},
		{"[id] = 2.0", true},
		{"[id] <> 2", false},
		{"[price] > [id]", true},
		{"[name] = 'Chai'", true},
		{"[name] < 'Chang'", true},
		{"[day] >= #2024-01-01#", true},
		{"[day] = '2024-01-02'", true},
		{"[ship] = NULL", false},
		{"[ship] <> 1", false},
		{"[ship] IS NULL", true},
		{"[id] IS NOT NULL", true},
		{"[ok] = TRUE AND [id] > 1", true},
		{"[ok] = FALSE OR [id] > 5", false},
		{"NOT [ok] = FALSE", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Eval(MustParse(tt.in), env)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalNilPredicateIsTrue(t *testing.T) {
	ok, err := Eval(nil, rowEnv(nil))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvalIncomparable(t *testing.T) {
	env := rowEnv(map[string]value.Value{"id": value.Int(1), "name": value.String("1")})
	_, err := Eval(MustParse("[id] = [name]"), env)

	var cmpErr *ComparisonError
	require.ErrorAs(t, err, &cmpErr)
	assert.ErrorIs(t, err, value.ErrIncomparable)
	assert.Equal(t, value.Int(1), cmpErr.Left)
}

func TestEvalUnknownColumn(t *testing.T) {
	_, err := Eval(MustParse("[missing] = 1"), rowEnv(map[string]value.Value{}))
	assert.Error(t, err)
}

func TestOpFlip(t *testing.T) {
	assert.Equal(t, OpGt, OpLt.Flip())
	assert.Equal(t, OpLe, OpGe.Flip())
	assert.Equal(t, OpEq, OpEq.Flip())
}
