// Package timetabling provides time-tabling propagation for resource
// constraints.
//
// This file implements the Trail, the reversible bound store shared by all
// propagators. The Trail owns the current lower/upper bounds of integer
// variables and the tri-state assignment of boolean variables, records every
// change together with the Reason that justifies it, and restores all state
// when the search backtracks.
//
// The Trail is the single source of truth for bounds: propagators never cache
// a bound across calls, and every push goes through TightenLowerBound,
// TightenUpperBound, or AssignLiteral so that backtracking stays automatic and
// uniform. A push that crosses the opposing bound records a conflict reason
// and returns false; no state is modified in that case.
//
// The Trail also acts as the checkpoint capability for propagator scratch
// state: SaveInt and RevInt let reversible sweep sets restore themselves on
// backtrack without being recomputed from scratch.
package timetabling

import (
	"fmt"

	"github.com/rs/zerolog"
)

// boundEntry records one bound change for undo and explanation.
type boundEntry struct {
	v       IntegerVariable
	isLower bool
	prev    IntegerValue
	reason  Reason
}

// litEntry records one literal assignment for undo and explanation.
type litEntry struct {
	lit    Literal
	reason Reason
}

// intSave records one reversible scratch value.
type intSave struct {
	target    *int
	prev      int
	stamp     *int
	prevStamp int
}

// levelMark remembers the trail sizes at the moment a decision level was
// opened.
type levelMark struct {
	bounds int
	lits   int
	saves  int
}

// Trail is the reversible bound store. See the file header for the contract.
//
// A Trail is single-threaded: it belongs to one search worker and is never
// shared. Portfolio solves give each worker its own Trail over its own copy of
// the model.
type Trail struct {
	lb, ub   []IntegerValue
	lbReason []Reason
	ubReason []Reason

	states []litState

	boundTrail []boundEntry
	litTrail   []litEntry
	saves      []intSave
	levels     []levelMark

	conflict    Reason
	hasConflict bool

	logger zerolog.Logger

	// Set by the Watcher so that bound changes re-enqueue the propagators
	// watching them.
	onBoundChange     func(IntegerVariable)
	onLiteralAssigned func(Literal)
}

// NewTrail creates an empty trail with a disabled logger.
func NewTrail() *Trail {
	return &Trail{logger: zerolog.Nop()}
}

// SetLogger enables debug tracing of pushes and conflicts.
func (t *Trail) SetLogger(logger zerolog.Logger) { t.logger = logger }

// NewVariable creates an integer variable with the given initial bounds.
func (t *Trail) NewVariable(lb, ub IntegerValue) IntegerVariable {
	v := IntegerVariable(len(t.lb))
	t.lb = append(t.lb, lb)
	t.ub = append(t.ub, ub)
	t.lbReason = append(t.lbReason, Reason{})
	t.ubReason = append(t.ubReason, Reason{})
	return v
}

// NewBooleanVariable creates an unassigned boolean variable and returns its
// positive literal.
func (t *Trail) NewBooleanVariable() Literal {
	v := BooleanVariable(len(t.states))
	t.states = append(t.states, litUndef)
	return NewLiteral(v, true)
}

// LowerBound returns the current lower bound of expr.
func (t *Trail) LowerBound(expr AffineExpr) IntegerValue {
	if expr.IsConstant() {
		return expr.Offset
	}
	if expr.Coeff > 0 {
		return expr.Coeff*t.lb[expr.Var] + expr.Offset
	}
	return expr.Coeff*t.ub[expr.Var] + expr.Offset
}

// UpperBound returns the current upper bound of expr.
func (t *Trail) UpperBound(expr AffineExpr) IntegerValue {
	if expr.IsConstant() {
		return expr.Offset
	}
	if expr.Coeff > 0 {
		return expr.Coeff*t.ub[expr.Var] + expr.Offset
	}
	return expr.Coeff*t.lb[expr.Var] + expr.Offset
}

// IsFixed reports whether expr has a single possible value.
func (t *Trail) IsFixed(expr AffineExpr) bool {
	return t.LowerBound(expr) == t.UpperBound(expr)
}

// TightenLowerBound pushes expr >= v with the given justification.
// It returns false and records a conflict when v exceeds the current upper
// bound of expr; the reason of that conflict is reason plus the opposing
// upper-bound fact.
func (t *Trail) TightenLowerBound(expr AffineExpr, v IntegerValue, reason Reason) bool {
	if expr.IsConstant() {
		if v <= expr.Offset {
			return true
		}
		return t.reportBoundConflict(expr, reason, true)
	}
	var target IntegerValue
	var isLower bool
	if expr.Coeff > 0 {
		target = ceilRatio(v-expr.Offset, expr.Coeff)
		isLower = true
	} else {
		target = floorRatio(expr.Offset-v, -expr.Coeff)
		isLower = false
	}
	return t.tightenVar(expr.Var, target, isLower, reason, expr)
}

// TightenUpperBound pushes expr <= v with the given justification.
func (t *Trail) TightenUpperBound(expr AffineExpr, v IntegerValue, reason Reason) bool {
	if expr.IsConstant() {
		if v >= expr.Offset {
			return true
		}
		return t.reportBoundConflict(expr, reason, false)
	}
	var target IntegerValue
	var isLower bool
	if expr.Coeff > 0 {
		target = floorRatio(v-expr.Offset, expr.Coeff)
		isLower = false
	} else {
		target = ceilRatio(expr.Offset-v, -expr.Coeff)
		isLower = true
	}
	return t.tightenVar(expr.Var, target, isLower, reason, expr)
}

// tightenVar applies a bound on the raw variable, recording the change or the
// conflict. expr is only used to phrase the conflict fact at the level of the
// original expression.
func (t *Trail) tightenVar(x IntegerVariable, target IntegerValue, isLower bool, reason Reason, expr AffineExpr) bool {
	if isLower {
		if target <= t.lb[x] {
			return true
		}
		if target > t.ub[x] {
			return t.reportBoundConflict(expr, reason, true)
		}
		t.boundTrail = append(t.boundTrail, boundEntry{v: x, isLower: true, prev: t.lb[x], reason: t.lbReason[x]})
		t.lb[x] = target
		t.lbReason[x] = reason
	} else {
		if target >= t.ub[x] {
			return true
		}
		if target < t.lb[x] {
			return t.reportBoundConflict(expr, reason, false)
		}
		t.boundTrail = append(t.boundTrail, boundEntry{v: x, isLower: false, prev: t.ub[x], reason: t.ubReason[x]})
		t.ub[x] = target
		t.ubReason[x] = reason
	}
	t.logger.Debug().
		Int("var", int(x)).
		Bool("lower", isLower).
		Int64("value", int64(target)).
		Msg("bound pushed")
	if t.onBoundChange != nil {
		t.onBoundChange(x)
	}
	return true
}

// reportBoundConflict records the conflict for a push that crossed the
// opposing bound. The opposing bound fact completes the reason so that the
// recorded set is inconsistent on its own.
func (t *Trail) reportBoundConflict(expr AffineExpr, reason Reason, wasLower bool) bool {
	if wasLower {
		reason.AddBound(LowerOrEqual(expr, t.UpperBound(expr)))
	} else {
		reason.AddBound(GreaterOrEqual(expr, t.LowerBound(expr)))
	}
	return t.ReportConflict(reason)
}

// LiteralIsTrue reports whether lit is assigned true. NoLiteral is always
// true.
func (t *Trail) LiteralIsTrue(lit Literal) bool {
	if lit == NoLiteral {
		return true
	}
	s := t.states[lit.Variable()]
	if lit.IsPositive() {
		return s == litTrue
	}
	return s == litFalse
}

// LiteralIsFalse reports whether lit is assigned false.
func (t *Trail) LiteralIsFalse(lit Literal) bool {
	if lit == NoLiteral {
		return false
	}
	s := t.states[lit.Variable()]
	if lit.IsPositive() {
		return s == litFalse
	}
	return s == litTrue
}

// LiteralIsAssigned reports whether lit has a value.
func (t *Trail) LiteralIsAssigned(lit Literal) bool {
	return lit == NoLiteral || t.states[lit.Variable()] != litUndef
}

// AssignLiteral makes lit true with the given justification. Assigning an
// already-false literal records a conflict and returns false.
func (t *Trail) AssignLiteral(lit Literal, reason Reason) bool {
	if lit == NoLiteral {
		return true
	}
	if t.LiteralIsTrue(lit) {
		return true
	}
	if t.LiteralIsFalse(lit) {
		reason.Literals = append(reason.Literals, lit.Negated())
		return t.ReportConflict(reason)
	}
	if lit.IsPositive() {
		t.states[lit.Variable()] = litTrue
	} else {
		t.states[lit.Variable()] = litFalse
	}
	t.litTrail = append(t.litTrail, litEntry{lit: lit, reason: reason})
	t.logger.Debug().Stringer("literal", lit).Msg("literal assigned")
	if t.onLiteralAssigned != nil {
		t.onLiteralAssigned(lit)
	}
	return true
}

// ReportConflict records reason as the current conflict and returns false so
// that propagators can `return trail.ReportConflict(reason)`.
func (t *Trail) ReportConflict(reason Reason) bool {
	t.conflict = reason
	t.hasConflict = true
	t.logger.Debug().Stringer("reason", reason).Msg("conflict")
	return false
}

// HasConflict reports whether a conflict was recorded since the last
// backtrack.
func (t *Trail) HasConflict() bool { return t.hasConflict }

// Conflict returns the reason of the last recorded conflict.
func (t *Trail) Conflict() Reason { return t.conflict }

// LowerBoundReason returns the justification of the current lower bound of x.
// Level-zero bounds have an empty reason.
func (t *Trail) LowerBoundReason(x IntegerVariable) Reason { return t.lbReason[x] }

// UpperBoundReason returns the justification of the current upper bound of x.
func (t *Trail) UpperBoundReason(x IntegerVariable) Reason { return t.ubReason[x] }

// PushLevel opens a new decision level and returns it.
func (t *Trail) PushLevel() int {
	t.levels = append(t.levels, levelMark{
		bounds: len(t.boundTrail),
		lits:   len(t.litTrail),
		saves:  len(t.saves),
	})
	return len(t.levels)
}

// CurrentLevel returns the number of open decision levels. Level 0 is the
// root.
func (t *Trail) CurrentLevel() int { return len(t.levels) }

// BacktrackTo undoes all changes recorded after the given level was opened
// and clears any recorded conflict.
func (t *Trail) BacktrackTo(level int) {
	if level < 0 || level >= len(t.levels) {
		if level >= len(t.levels) {
			t.hasConflict = false
			t.conflict = Reason{}
			return
		}
		level = 0
	}
	mark := t.levels[level]
	for i := len(t.boundTrail) - 1; i >= mark.bounds; i-- {
		e := t.boundTrail[i]
		if e.isLower {
			t.lb[e.v] = e.prev
			t.lbReason[e.v] = e.reason
		} else {
			t.ub[e.v] = e.prev
			t.ubReason[e.v] = e.reason
		}
	}
	t.boundTrail = t.boundTrail[:mark.bounds]
	for i := len(t.litTrail) - 1; i >= mark.lits; i-- {
		t.states[t.litTrail[i].lit.Variable()] = litUndef
	}
	t.litTrail = t.litTrail[:mark.lits]
	for i := len(t.saves) - 1; i >= mark.saves; i-- {
		s := t.saves[i]
		*s.target = s.prev
		if s.stamp != nil {
			*s.stamp = s.prevStamp
		}
	}
	t.saves = t.saves[:mark.saves]
	t.levels = t.levels[:level]
	t.hasConflict = false
	t.conflict = Reason{}
}

// SaveInt records the current value of target so that it is restored on
// backtrack past the current level.
func (t *Trail) SaveInt(target *int) {
	t.saves = append(t.saves, intSave{target: target, prev: *target})
}

// RevInt is an int restored to its earlier value when the trail backtracks.
// The zero value is usable. It saves itself at most once per decision level.
type RevInt struct {
	v     int
	stamp int
}

// Value returns the current value.
func (r *RevInt) Value() int { return r.v }

// SetValue updates the value, saving the previous one on first change within
// the current decision level.
func (r *RevInt) SetValue(t *Trail, v int) {
	if lvl := t.CurrentLevel(); lvl > 0 && r.stamp != lvl {
		t.saves = append(t.saves, intSave{
			target:    &r.v,
			prev:      r.v,
			stamp:     &r.stamp,
			prevStamp: r.stamp,
		})
		r.stamp = lvl
	}
	r.v = v
}

// Add increments the value through SetValue.
func (r *RevInt) Add(t *Trail, delta int) { r.SetValue(t, r.v+delta) }

// String returns a readable form.
func (r *RevInt) String() string { return fmt.Sprintf("%d", r.v) }
