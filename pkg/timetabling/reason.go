// Package timetabling provides time-tabling propagation for resource
// constraints. This file defines the Reason value attached to every pushed
// bound and recorded conflict.
package timetabling

import "strings"

// Reason is the set of facts that, replayed alone, imply a pushed bound or a
// conflict. It holds presence propositions and integer bound facts.
//
// A Reason is an owned value built per propagation attempt. Propagators never
// share or reset a common buffer across calls, which keeps reentrant
// propagation free of aliasing bugs.
type Reason struct {
	Literals []Literal
	Bounds   []BoundFact
}

// AddPresence records that the task or event guarded by lit occurs.
// Unconditional presences (NoLiteral) are not facts and are skipped.
func (r *Reason) AddPresence(lit Literal) {
	if lit == NoLiteral {
		return
	}
	r.Literals = append(r.Literals, lit)
}

// AddAbsence records that the task or event guarded by lit does not occur.
func (r *Reason) AddAbsence(lit Literal) {
	if lit == NoLiteral {
		return
	}
	r.Literals = append(r.Literals, lit.Negated())
}

// AddBound records an integer bound fact. Facts about constant expressions
// hold trivially and are skipped.
func (r *Reason) AddBound(f BoundFact) {
	if f.Expr.IsConstant() {
		return
	}
	r.Bounds = append(r.Bounds, f)
}

// Merge appends all facts of other.
func (r *Reason) Merge(other Reason) {
	r.Literals = append(r.Literals, other.Literals...)
	r.Bounds = append(r.Bounds, other.Bounds...)
}

// IsEmpty reports whether the reason carries no fact, as is the case for
// search decisions.
func (r Reason) IsEmpty() bool {
	return len(r.Literals) == 0 && len(r.Bounds) == 0
}

// HasLiteral reports whether lit is part of the reason.
func (r Reason) HasLiteral(lit Literal) bool {
	for _, l := range r.Literals {
		if l == lit {
			return true
		}
	}
	return false
}

// HasBound reports whether the exact fact f is part of the reason.
func (r Reason) HasBound(f BoundFact) bool {
	for _, b := range r.Bounds {
		if b == f {
			return true
		}
	}
	return false
}

// String returns a readable form used in logs and test failures.
func (r Reason) String() string {
	parts := make([]string, 0, len(r.Literals)+len(r.Bounds))
	for _, l := range r.Literals {
		parts = append(parts, l.String())
	}
	for _, b := range r.Bounds {
		parts = append(parts, b.String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
