// Package timetabling implements time-tabling propagation for resource
// constraints inside a backtracking finite-domain solver.
//
// The package provides two propagators built on a shared sweep-line profile of
// mandatory resource usage:
//
//   - TimeTablingPerTask enforces a cumulative constraint: at every instant the
//     total demand of the tasks running at that instant stays below a shared
//     capacity. It tightens task start/end bounds and the capacity lower bound.
//   - ReservoirTimeTabling keeps a single accumulated level within bounds as
//     signed events occur at variable times.
//
// Both propagators push bounds through a reversible Trail together with a
// Reason, a set of presence literals and bound facts that by itself implies the
// pushed bound. On infeasibility they record a conflict reason instead of
// mutating any bound, and the calling search layer backtracks.
//
// This file defines the integer layer: quantities, bounded affine expressions
// over trail variables, and the bound facts used inside reasons.
package timetabling

import "fmt"

// IntegerValue is the quantity type used for times, demands, and levels.
//
// The usable range is limited to (MinIntegerValue, MaxIntegerValue) so that
// sums of a demand and a profile height, or of a time and a duration, never
// overflow int64.
type IntegerValue int64

// Sentinel values used for the profile rectangles at both ends of the time
// axis. They are never stored as variable bounds.
const (
	MaxIntegerValue IntegerValue = 1 << 61
	MinIntegerValue IntegerValue = -MaxIntegerValue
)

// IntegerVariable identifies an integer variable owned by a Trail.
// Variables are dense indices so propagators can use them in arrays.
type IntegerVariable int32

// NoIntegerVariable marks an AffineExpr with no variable part (a constant).
const NoIntegerVariable IntegerVariable = -1

// AffineExpr is a bounded integer expression Coeff*Var + Offset.
//
// Constant expressions use NoIntegerVariable and carry the value in Offset.
// A zero Coeff with a valid Var is normalized to a constant at construction.
type AffineExpr struct {
	Var    IntegerVariable
	Coeff  IntegerValue
	Offset IntegerValue
}

// NewAffineExpr returns the expression coeff*v + offset.
func NewAffineExpr(v IntegerVariable, coeff, offset IntegerValue) AffineExpr {
	if v == NoIntegerVariable || coeff == 0 {
		return AffineExpr{Var: NoIntegerVariable, Offset: offset}
	}
	return AffineExpr{Var: v, Coeff: coeff, Offset: offset}
}

// ConstantExpr returns an expression with the fixed value v.
func ConstantExpr(v IntegerValue) AffineExpr {
	return AffineExpr{Var: NoIntegerVariable, Offset: v}
}

// VarExpr returns the expression consisting of the single variable v.
func VarExpr(v IntegerVariable) AffineExpr {
	return AffineExpr{Var: v, Coeff: 1}
}

// IsConstant reports whether the expression has no variable part.
func (e AffineExpr) IsConstant() bool { return e.Var == NoIntegerVariable }

// Negated returns the expression -e.
func (e AffineExpr) Negated() AffineExpr {
	return AffineExpr{Var: e.Var, Coeff: -e.Coeff, Offset: -e.Offset}
}

// Shifted returns the expression e + delta.
func (e AffineExpr) Shifted(delta IntegerValue) AffineExpr {
	return AffineExpr{Var: e.Var, Coeff: e.Coeff, Offset: e.Offset + delta}
}

// String returns a readable form used in logs and test failures.
func (e AffineExpr) String() string {
	if e.IsConstant() {
		return fmt.Sprintf("%d", e.Offset)
	}
	return fmt.Sprintf("%d*v%d+%d", e.Coeff, e.Var, e.Offset)
}

// BoundKind distinguishes the two directions of a bound fact.
type BoundKind int8

const (
	// LowerOrEqualBound states expr <= Value.
	LowerOrEqualBound BoundKind = iota
	// GreaterOrEqualBound states expr >= Value.
	GreaterOrEqualBound
)

// BoundFact is a single fact about an expression, "expr >= v" or "expr <= v",
// as recorded inside a Reason. Facts are normalized so that the expression's
// coefficient is non-negative, which makes equivalent facts comparable.
type BoundFact struct {
	Expr  AffineExpr
	Kind  BoundKind
	Value IntegerValue
}

// GreaterOrEqual returns the fact expr >= v.
func GreaterOrEqual(expr AffineExpr, v IntegerValue) BoundFact {
	if !expr.IsConstant() && expr.Coeff < 0 {
		return BoundFact{Expr: expr.Negated(), Kind: LowerOrEqualBound, Value: -v}
	}
	return BoundFact{Expr: expr, Kind: GreaterOrEqualBound, Value: v}
}

// LowerOrEqual returns the fact expr <= v.
func LowerOrEqual(expr AffineExpr, v IntegerValue) BoundFact {
	if !expr.IsConstant() && expr.Coeff < 0 {
		return BoundFact{Expr: expr.Negated(), Kind: GreaterOrEqualBound, Value: -v}
	}
	return BoundFact{Expr: expr, Kind: LowerOrEqualBound, Value: v}
}

// String returns a readable form used in logs and test failures.
func (f BoundFact) String() string {
	if f.Kind == GreaterOrEqualBound {
		return fmt.Sprintf("%s >= %d", f.Expr, f.Value)
	}
	return fmt.Sprintf("%s <= %d", f.Expr, f.Value)
}

// ceilRatio returns ceil(num/den) for den > 0.
func ceilRatio(num, den IntegerValue) IntegerValue {
	q := num / den
	if num%den != 0 && num > 0 {
		q++
	}
	return q
}

// floorRatio returns floor(num/den) for den > 0.
func floorRatio(num, den IntegerValue) IntegerValue {
	q := num / den
	if num%den != 0 && num < 0 {
		q--
	}
	return q
}

func minValue(a, b IntegerValue) IntegerValue {
	if a < b {
		return a
	}
	return b
}

func maxValue(a, b IntegerValue) IntegerValue {
	if a > b {
		return a
	}
	return b
}
