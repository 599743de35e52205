// Package timetabling provides time-tabling propagation for resource
// constraints.
//
// This file implements the Model, the construction-time owner of the trail,
// the dispatcher, and the posted constraints. Models are built once, before
// solving; all malformed-input checks happen here, at posting time, never
// during propagation.
package timetabling

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Model owns one trail and one dispatcher and offers convenience
// constructors for intervals and resource constraints. A Model belongs to a
// single search worker; portfolio solves build one Model per worker.
type Model struct {
	trail   *Trail
	watcher *Watcher
	logger  zerolog.Logger

	// Integer expressions the search driver branches on, in creation order.
	decisions []AffineExpr
}

// NewModel creates an empty model.
func NewModel() *Model {
	trail := NewTrail()
	return &Model{
		trail:   trail,
		watcher: NewWatcher(trail),
		logger:  zerolog.Nop(),
	}
}

// SetLogger enables debug tracing on the model's trail.
func (m *Model) SetLogger(logger zerolog.Logger) {
	m.logger = logger
	m.trail.SetLogger(logger)
}

// Trail returns the model's reversible bound store.
func (m *Model) Trail() *Trail { return m.trail }

// Watcher returns the model's event dispatcher.
func (m *Model) Watcher() *Watcher { return m.watcher }

// NewVariable creates an integer variable with the given bounds and returns
// it as an expression.
func (m *Model) NewVariable(lb, ub IntegerValue) AffineExpr {
	return VarExpr(m.trail.NewVariable(lb, ub))
}

// NewDecision creates an integer variable the search driver branches on.
func (m *Model) NewDecision(lb, ub IntegerValue) AffineExpr {
	e := m.NewVariable(lb, ub)
	m.decisions = append(m.decisions, e)
	return e
}

// Decisions returns the branching expressions in creation order.
func (m *Model) Decisions() []AffineExpr { return m.decisions }

// NewInterval creates a task with a start decision variable in
// [startMin, startMax] and a fixed size; the end is the start shifted by the
// size, so end = start + size holds by construction.
func (m *Model) NewInterval(startMin, startMax, size IntegerValue) Interval {
	start := m.NewDecision(startMin, startMax)
	return Interval{
		Start:    start,
		Size:     ConstantExpr(size),
		End:      start.Shifted(size),
		Presence: NoLiteral,
	}
}

// NewOptionalInterval is NewInterval with a fresh presence literal.
func (m *Model) NewOptionalInterval(startMin, startMax, size IntegerValue) Interval {
	iv := m.NewInterval(startMin, startMax, size)
	iv.Presence = m.trail.NewBooleanVariable()
	return iv
}

// AddCumulative posts a cumulative resource constraint over the given
// intervals and returns its propagator. Demands and capacity are bounded
// expressions; fixed quantities use ConstantExpr.
func (m *Model) AddCumulative(intervals []Interval, demands []AffineExpr, capacity AffineExpr) (*TimeTablingPerTask, error) {
	tasks, err := NewTasks(m.trail, intervals)
	if err != nil {
		return nil, fmt.Errorf("AddCumulative: %w", err)
	}
	p, err := NewTimeTablingPerTask(tasks, demands, capacity)
	if err != nil {
		return nil, fmt.Errorf("AddCumulative: %w", err)
	}
	p.SetLogger(m.logger)
	p.RegisterWith(m.watcher)
	return p, nil
}

// AddReservoir posts a reservoir constraint keeping the running level of the
// events within [minLevel, maxLevel].
func (m *Model) AddReservoir(events []ReservoirEvent, minLevel, maxLevel IntegerValue) ([]*ReservoirTimeTabling, error) {
	sides, err := AddReservoir(m.trail, m.watcher, events, minLevel, maxLevel)
	if err != nil {
		return nil, err
	}
	for _, s := range sides {
		s.SetLogger(m.logger)
	}
	return sides, nil
}

// AddPrecedence posts before + delay <= after. The job-shop consumer chains
// each job's tasks with it; it is not part of the propagation core.
func (m *Model) AddPrecedence(before, after AffineExpr, delay IntegerValue) {
	p := &precedence{trail: m.trail, before: before, after: after, delay: delay}
	id := m.watcher.Register(p)
	m.watcher.WatchExpr(before, id)
	m.watcher.WatchExpr(after, id)
}

// precedence propagates before + delay <= after in both directions.
type precedence struct {
	trail  *Trail
	before AffineExpr
	after  AffineExpr
	delay  IntegerValue
}

func (p *precedence) Propagate() bool {
	lb := p.trail.LowerBound(p.before) + p.delay
	if lb > p.trail.LowerBound(p.after) {
		var reason Reason
		reason.AddBound(GreaterOrEqual(p.before, p.trail.LowerBound(p.before)))
		if !p.trail.TightenLowerBound(p.after, lb, reason) {
			return false
		}
	}
	ub := p.trail.UpperBound(p.after) - p.delay
	if ub < p.trail.UpperBound(p.before) {
		var reason Reason
		reason.AddBound(LowerOrEqual(p.after, p.trail.UpperBound(p.after)))
		if !p.trail.TightenUpperBound(p.before, ub, reason) {
			return false
		}
	}
	return true
}
