package expr

import (
	"fmt"

	"github.com/roach88/fedq/internal/value"
)

// Env resolves column references to values for one row.
type Env func(ref ColumnRef) (value.Value, error)

// EvalExpr evaluates e in env.
func EvalExpr(e Expr, env Env) (value.Value, error) {
	switch ex := e.(type) {
	case ColumnRef:
		return env(ex)
	case Literal:
		if ex.Value == nil {
			return value.Null{}, nil
		}
		return ex.Value, nil
	default:
		return nil, fmt.Errorf("unsupported expression type: %T", e)
	}
}

// ComparisonError reports two operands that cannot be compared.
type ComparisonError struct {
	Pred  Compare
	Left  value.Value
	Right value.Value
	Err   error
}

func (e *ComparisonError) Error() string {
	return fmt.Sprintf("%s: cannot compare %s and %s: %v",
		e.Pred, e.Left.Kind(), e.Right.Kind(), e.Err)
}

func (e *ComparisonError) Unwrap() error {
	return e.Err
}

// Eval evaluates p in env.
//
// Comparisons with Null are false. Comparing values of incompatible kinds
// returns a *ComparisonError rather than false.
func Eval(p Predicate, env Env) (bool, error) {
	switch pred := p.(type) {
	case nil:
		return true, nil
	case Compare:
		return evalCompare(pred, env)
	case IsNull:
		v, err := EvalExpr(pred.Expr, env)
		if err != nil {
			return false, err
		}
		return value.IsNull(v) != pred.Negated, nil
	case And:
		for _, t := range pred.Terms {
			ok, err := Eval(t, env)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case Or:
		for _, t := range pred.Terms {
			ok, err := Eval(t, env)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case Not:
		ok, err := Eval(pred.Term, env)
		if err != nil {
			return false, err
		}
		return !ok, nil
	default:
		return false, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func evalCompare(c Compare, env Env) (bool, error) {
	left, err := EvalExpr(c.Left, env)
	if err != nil {
		return false, err
	}
	right, err := EvalExpr(c.Right, env)
	if err != nil {
		return false, err
	}
	if value.IsNull(left) || value.IsNull(right) {
		return false, nil
	}

	if c.Op == OpEq || c.Op == OpNe {
		eq, err := value.Equal(left, right)
		if err != nil {
			return false, &ComparisonError{Pred: c, Left: left, Right: right, Err: err}
		}
		return eq == (c.Op == OpEq), nil
	}

	cmp, err := value.Compare(left, right)
	if err != nil {
		return false, &ComparisonError{Pred: c, Left: left, Right: right, Err: err}
	}
	switch c.Op {
	case OpLt:
		return cmp < 0, nil
	case OpLe:
		return cmp <= 0, nil
	case OpGt:
		return cmp > 0, nil
	case OpGe:
		return cmp >= 0, nil
	default:
		return false, fmt.Errorf("unknown operator %q", c.Op)
	}
}
