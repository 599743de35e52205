// Package timetabling provides time-tabling propagation for resource
// constraints. This file defines boolean literals used as presence
// propositions for optional tasks and reservoir events.
package timetabling

import "fmt"

// BooleanVariable identifies a boolean variable owned by a Trail.
type BooleanVariable int32

// Literal is a boolean variable or its negation. The even/odd encoding keeps
// literals usable as dense array indices in watch lists.
type Literal int32

// NoLiteral marks a task or event that is unconditionally present.
const NoLiteral Literal = -1

// NewLiteral returns the positive literal of v, or its negation.
func NewLiteral(v BooleanVariable, positive bool) Literal {
	l := Literal(v) << 1
	if !positive {
		l |= 1
	}
	return l
}

// Variable returns the underlying boolean variable.
func (l Literal) Variable() BooleanVariable { return BooleanVariable(l >> 1) }

// IsPositive reports whether the literal is the unnegated variable.
func (l Literal) IsPositive() bool { return l&1 == 0 }

// Negated returns the opposite literal.
func (l Literal) Negated() Literal { return l ^ 1 }

// String returns a readable form used in logs and test failures.
func (l Literal) String() string {
	if l == NoLiteral {
		return "true"
	}
	if l.IsPositive() {
		return fmt.Sprintf("b%d", l.Variable())
	}
	return fmt.Sprintf("~b%d", l.Variable())
}

// litState is the tri-state assignment of one boolean variable.
type litState int8

const (
	litUndef litState = iota
	litTrue
	litFalse
)
