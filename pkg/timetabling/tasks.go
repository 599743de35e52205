// Package timetabling provides time-tabling propagation for resource
// constraints.
//
// This file implements the task view, a read accessor over externally owned
// interval tasks. Propagators only ever see a *Tasks: they read start, end,
// size, and presence through it and push bounds through its helpers, which
// funnel into the Trail.
//
// The view exists in two time directions. Reversed() returns a second view
// over the same underlying expressions in which every time quantity is
// mirrored (start becomes negated end and vice versa). The backward sweep of a
// propagator runs the forward code on the mirrored view instead of physically
// reversing any array.
package timetabling

import "fmt"

// Interval describes one task when building a view: a start expression, a
// size expression, an end expression, and an optional presence literal
// (NoLiteral for unconditional tasks).
//
// The engine assumes end = start + size is enforced elsewhere whenever size is
// fixed; it only reads the bounds and never asserts the equality itself.
type Interval struct {
	Start    AffineExpr
	Size     AffineExpr
	End      AffineExpr
	Presence Literal
}

// taskData is the storage shared by the forward and mirrored views.
type taskData struct {
	trail     *Trail
	starts    []AffineExpr
	sizes     []AffineExpr
	ends      []AffineExpr
	presences []Literal
}

// Tasks is a direction-aware view over a set of interval tasks. The zero
// value is not usable; build one with NewTasks.
type Tasks struct {
	d      *taskData
	mirror bool
}

// NewTasks builds a forward task view over the given intervals.
// Returns an error on an empty set or a size with a negative lower bound,
// checked once when the constraint is posted.
func NewTasks(trail *Trail, intervals []Interval) (*Tasks, error) {
	if trail == nil {
		return nil, fmt.Errorf("NewTasks: nil trail")
	}
	n := len(intervals)
	if n == 0 {
		return nil, fmt.Errorf("NewTasks: requires at least one interval")
	}
	d := &taskData{
		trail:     trail,
		starts:    make([]AffineExpr, n),
		sizes:     make([]AffineExpr, n),
		ends:      make([]AffineExpr, n),
		presences: make([]Literal, n),
	}
	for i, iv := range intervals {
		if trail.LowerBound(iv.Size) < 0 {
			return nil, fmt.Errorf("NewTasks: interval %d has negative minimum size %d", i, trail.LowerBound(iv.Size))
		}
		d.starts[i] = iv.Start
		d.sizes[i] = iv.Size
		d.ends[i] = iv.End
		d.presences[i] = iv.Presence
	}
	return &Tasks{d: d}, nil
}

// NumTasks returns the number of tasks in the view.
func (ts *Tasks) NumTasks() int { return len(ts.d.starts) }

// Trail returns the bound store the view reads from and pushes through.
func (ts *Tasks) Trail() *Trail { return ts.d.trail }

// Reversed returns the time-mirrored view sharing the same storage. Calling
// Reversed on a mirrored view returns the forward one.
func (ts *Tasks) Reversed() *Tasks {
	return &Tasks{d: ts.d, mirror: !ts.mirror}
}

// IsMirrored reports whether the view runs in mirrored time.
func (ts *Tasks) IsMirrored() bool { return ts.mirror }

// StartExpr returns the start expression of task i in view time.
func (ts *Tasks) StartExpr(i int) AffineExpr {
	if ts.mirror {
		return ts.d.ends[i].Negated()
	}
	return ts.d.starts[i]
}

// EndExpr returns the end expression of task i in view time.
func (ts *Tasks) EndExpr(i int) AffineExpr {
	if ts.mirror {
		return ts.d.starts[i].Negated()
	}
	return ts.d.ends[i]
}

// SizeExpr returns the size expression of task i.
func (ts *Tasks) SizeExpr(i int) AffineExpr { return ts.d.sizes[i] }

// StartMin returns the current earliest start of task i.
func (ts *Tasks) StartMin(i int) IntegerValue { return ts.d.trail.LowerBound(ts.StartExpr(i)) }

// StartMax returns the current latest start of task i.
func (ts *Tasks) StartMax(i int) IntegerValue { return ts.d.trail.UpperBound(ts.StartExpr(i)) }

// EndMin returns the current earliest end of task i.
func (ts *Tasks) EndMin(i int) IntegerValue { return ts.d.trail.LowerBound(ts.EndExpr(i)) }

// EndMax returns the current latest end of task i.
func (ts *Tasks) EndMax(i int) IntegerValue { return ts.d.trail.UpperBound(ts.EndExpr(i)) }

// SizeMin returns the current minimum size of task i.
func (ts *Tasks) SizeMin(i int) IntegerValue { return ts.d.trail.LowerBound(ts.d.sizes[i]) }

// StartIsFixed reports whether the start of task i has a single value.
func (ts *Tasks) StartIsFixed(i int) bool { return ts.StartMin(i) == ts.StartMax(i) }

// PresenceLiteral returns the presence proposition of task i, NoLiteral for
// unconditional tasks.
func (ts *Tasks) PresenceLiteral(i int) Literal { return ts.d.presences[i] }

// IsPresent reports whether task i is proven present.
func (ts *Tasks) IsPresent(i int) bool { return ts.d.trail.LiteralIsTrue(ts.d.presences[i]) }

// IsAbsent reports whether task i is proven absent.
func (ts *Tasks) IsAbsent(i int) bool { return ts.d.trail.LiteralIsFalse(ts.d.presences[i]) }

// IsOptional reports whether the presence of task i is still undecided.
func (ts *Tasks) IsOptional(i int) bool {
	return !ts.d.trail.LiteralIsAssigned(ts.d.presences[i])
}

// HasMandatoryPart reports whether task i is proven present with a non-empty
// mandatory part [StartMax, EndMin).
func (ts *Tasks) HasMandatoryPart(i int) bool {
	return ts.IsPresent(i) && ts.StartMax(i) < ts.EndMin(i)
}

// IncreaseStartMin pushes the earliest start of task i to v in view time.
func (ts *Tasks) IncreaseStartMin(i int, v IntegerValue, reason Reason) bool {
	return ts.d.trail.TightenLowerBound(ts.StartExpr(i), v, reason)
}

// DecreaseEndMax pushes the latest end of task i to v in view time.
func (ts *Tasks) DecreaseEndMax(i int, v IntegerValue, reason Reason) bool {
	return ts.d.trail.TightenUpperBound(ts.EndExpr(i), v, reason)
}

// PushTaskAbsence forces task i absent with the given justification.
// For an unconditional task this is a conflict.
func (ts *Tasks) PushTaskAbsence(i int, reason Reason) bool {
	lit := ts.d.presences[i]
	if lit == NoLiteral {
		return ts.d.trail.ReportConflict(reason)
	}
	return ts.d.trail.AssignLiteral(lit.Negated(), reason)
}

// AddMandatoryPartReason appends to reason the facts that give task i its
// current mandatory part: its presence and the start-max/end-min bounds.
func (ts *Tasks) AddMandatoryPartReason(i int, reason *Reason) {
	reason.AddPresence(ts.d.presences[i])
	reason.AddBound(LowerOrEqual(ts.StartExpr(i), ts.StartMax(i)))
	reason.AddBound(GreaterOrEqual(ts.EndExpr(i), ts.EndMin(i)))
}
