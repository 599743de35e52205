// Package timetabling provides time-tabling propagation for resource
// constraints.
//
// This file implements ReservoirTimeTabling, the reservoir propagator. A
// reservoir is a single level that rises and falls as events occur at
// possibly-variable times: level(t) is the sum of the deltas of all present
// events with time <= t, and must stay within [min_level, max_level] over the
// whole horizon.
//
// One ReservoirTimeTabling instance enforces a single one-sided bound,
// level(t) <= capacity. AddReservoir posts two instances, the min side with
// negated deltas and capacity -min_level, which covers both bounds and makes
// every propagation rule delta-sign-symmetric for free.
//
// Because event times may overlap in their domains, the propagator reasons
// about possible orderings through an optimistic profile of the minimum
// achievable level: a present positive event certainly contributes from its
// latest time on, while a negative event may subtract from its earliest time
// on unless proven absent. If even that minimum exceeds the capacity the
// constraint is infeasible.
package timetabling

import (
	"fmt"

	"github.com/rs/zerolog"
)

// ReservoirEvent describes one quantity change when posting a reservoir: a
// bounded time expression, a signed constant delta, and an optional presence
// literal (NoLiteral for unconditional events).
type ReservoirEvent struct {
	Time     AffineExpr
	Delta    IntegerValue
	Presence Literal
}

// ReservoirTimeTabling propagates level(t) <= capacity for one reservoir
// side. Use AddReservoir to post a full [min_level, max_level] constraint.
type ReservoirTimeTabling struct {
	trail     *Trail
	times     []AffineExpr
	deltas    []IntegerValue
	presences []Literal
	capacity  IntegerValue
	logger    zerolog.Logger

	// Scratch, rebuilt on every call.
	profile Profile
	events  []profileEvent
}

// NewReservoirTimeTabling creates the one-sided propagator. The level is
// implicitly zero before the first event and unchecked there; a capacity
// below zero therefore requires an initial-stock event at the horizon start
// (see AddReservoir) to be satisfiable at all.
func NewReservoirTimeTabling(trail *Trail, events []ReservoirEvent, capacity IntegerValue) (*ReservoirTimeTabling, error) {
	if trail == nil {
		return nil, fmt.Errorf("ReservoirTimeTabling: nil trail")
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("ReservoirTimeTabling: requires at least one event")
	}
	p := &ReservoirTimeTabling{
		trail:     trail,
		times:     make([]AffineExpr, len(events)),
		deltas:    make([]IntegerValue, len(events)),
		presences: make([]Literal, len(events)),
		capacity:  capacity,
		logger:    zerolog.Nop(),
	}
	for i, e := range events {
		p.times[i] = e.Time
		p.deltas[i] = e.Delta
		p.presences[i] = e.Presence
	}
	return p, nil
}

// SetLogger enables debug tracing for this propagator.
func (p *ReservoirTimeTabling) SetLogger(logger zerolog.Logger) { p.logger = logger }

// RegisterWith declares every bound and presence the propagator reads to the
// dispatcher.
func (p *ReservoirTimeTabling) RegisterWith(w *Watcher) {
	id := w.Register(p)
	for i := range p.times {
		w.WatchExpr(p.times[i], id)
		w.WatchLiteral(p.presences[i], id)
	}
}

// Propagate rebuilds the level profile and tightens event times per delta
// sign. Returns false on conflict with the reason recorded on the trail.
func (p *ReservoirTimeTabling) Propagate() bool {
	if !p.buildProfile() {
		return false
	}
	for e := range p.times {
		if p.deltas[e] > 0 {
			if p.trail.LiteralIsFalse(p.presences[e]) {
				continue
			}
			if !p.tryToIncreaseMin(e) {
				return false
			}
		} else if p.deltas[e] < 0 {
			// Decreasing the max time of an undecided event would not be
			// justified by the profile, which already counts its delta.
			if !p.trail.LiteralIsTrue(p.presences[e]) {
				continue
			}
			if !p.tryToDecreaseMax(e) {
				return false
			}
		}
	}
	return true
}

// contributesAt reports whether event e is counted in the profile rectangle
// starting at rectStart.
func (p *ReservoirTimeTabling) contributesAt(e int, rectStart IntegerValue) bool {
	if p.deltas[e] > 0 {
		return p.trail.LiteralIsTrue(p.presences[e]) && p.trail.UpperBound(p.times[e]) <= rectStart
	}
	return !p.trail.LiteralIsFalse(p.presences[e]) && p.trail.LowerBound(p.times[e]) <= rectStart
}

// buildProfile builds the minimum achievable level over time: positive deltas
// of present events at their latest time, negative deltas of possibly-present
// events at their earliest time. A rectangle above capacity is a conflict.
func (p *ReservoirTimeTabling) buildProfile() bool {
	trail := p.trail
	p.events = p.events[:0]
	for e := range p.times {
		switch {
		case p.deltas[e] > 0 && trail.LiteralIsTrue(p.presences[e]):
			p.events = append(p.events, profileEvent{time: trail.UpperBound(p.times[e]), delta: p.deltas[e]})
		case p.deltas[e] < 0 && !trail.LiteralIsFalse(p.presences[e]):
			p.events = append(p.events, profileEvent{time: trail.LowerBound(p.times[e]), delta: p.deltas[e]})
		}
	}
	p.profile = buildProfileFromEvents(p.profile, p.events)

	// Both sentinels are skipped: the implicit zero level before the first
	// event is the collaborator's responsibility (see AddReservoir), and the
	// closing sentinel's zero height is not a level the reservoir reaches;
	// the last real rectangle already covers everything after the final
	// event.
	for _, r := range p.profile[1 : len(p.profile)-1] {
		if r.Height <= p.capacity {
			continue
		}
		var reason Reason
		p.fillReasonForProfileRange(&reason, r.Start, r.Start, -1)
		p.logger.Debug().Int64("level", int64(r.Height)).Int64("time", int64(r.Start)).Msg("reservoir level overflow")
		return trail.ReportConflict(reason)
	}
	return true
}

// fillReasonForProfileRange appends the facts that give the profile its
// heights on [left, right]: for counted positive events their presence and
// latest-time bound, for negative events either their absence or the
// earliest-time bound that kept them from subtracting within the range.
// ignore excludes the event being propagated.
func (p *ReservoirTimeTabling) fillReasonForProfileRange(reason *Reason, left, right IntegerValue, ignore int) {
	trail := p.trail
	for e := range p.times {
		if e == ignore {
			continue
		}
		if p.deltas[e] > 0 {
			if trail.LiteralIsTrue(p.presences[e]) && trail.UpperBound(p.times[e]) <= right {
				reason.AddPresence(p.presences[e])
				reason.AddBound(LowerOrEqual(p.times[e], trail.UpperBound(p.times[e])))
			}
		} else if p.deltas[e] < 0 {
			if trail.LiteralIsFalse(p.presences[e]) {
				reason.AddAbsence(p.presences[e])
			} else if trail.LowerBound(p.times[e]) > left {
				reason.AddBound(GreaterOrEqual(p.times[e], trail.LowerBound(p.times[e])))
			}
		}
	}
}

// tryToIncreaseMin pushes the earliest time of a positive event past every
// profile position where its delta would overflow the capacity. If no
// position in the event's window fits, an optional event is forced absent
// and a mandatory one is a conflict.
func (p *ReservoirTimeTabling) tryToIncreaseMin(e int) bool {
	trail := p.trail
	tMin := trail.LowerBound(p.times[e])
	tMax := trail.UpperBound(p.times[e])
	d := p.deltas[e]
	present := trail.LiteralIsTrue(p.presences[e])

	newMin := tMin
	rec := p.profile.rectangleAt(tMin)
	for {
		h := p.profile[rec].Height
		// The event's own contribution starts at tMax; discount it when the
		// scan reaches rectangles that already count it.
		if present && p.profile[rec].Start >= tMax {
			h -= d
		}
		if h+d <= p.capacity {
			break
		}
		newMin = p.profile[rec+1].Start
		if newMin > tMax {
			break
		}
		rec++
	}

	if newMin == tMin {
		return true
	}

	if newMin > tMax {
		var reason Reason
		p.fillReasonForProfileRange(&reason, tMin, tMax, e)
		reason.AddBound(GreaterOrEqual(p.times[e], tMin))
		reason.AddBound(LowerOrEqual(p.times[e], tMax))
		if !trail.LiteralIsAssigned(p.presences[e]) {
			return trail.AssignLiteral(p.presences[e].Negated(), reason)
		}
		reason.AddPresence(p.presences[e])
		return trail.ReportConflict(reason)
	}

	if !present {
		// The time bounds of an undecided event are conditional on its
		// presence; only the infeasible case above propagates.
		return true
	}

	var reason Reason
	p.fillReasonForProfileRange(&reason, tMin, newMin, e)
	reason.AddBound(GreaterOrEqual(p.times[e], tMin))
	return trail.TightenLowerBound(p.times[e], newMin, reason)
}

// tryToDecreaseMax pulls the latest time of a present negative event before
// the first position where the level, without its subtraction, overflows:
// the event must have happened by then.
func (p *ReservoirTimeTabling) tryToDecreaseMax(e int) bool {
	trail := p.trail
	tMin := trail.LowerBound(p.times[e])
	tMax := trail.UpperBound(p.times[e])
	d := p.deltas[e]

	for rec := p.profile.rectangleAt(tMin); rec < len(p.profile); rec++ {
		start := p.profile[rec].Start
		if start > tMax {
			return true
		}
		if start < tMin {
			// Before tMin the profile never counted the event.
			continue
		}
		if p.profile[rec].Height-d <= p.capacity {
			continue
		}
		if start == tMax {
			return true
		}
		var reason Reason
		p.fillReasonForProfileRange(&reason, start, start, e)
		reason.AddBound(GreaterOrEqual(p.times[e], tMin))
		return trail.TightenUpperBound(p.times[e], start, reason)
	}
	return true
}

// AddReservoir posts a full reservoir constraint level(t) in
// [minLevel, maxLevel] on the given trail and registers both one-sided
// propagators with the dispatcher.
//
// The level is implicitly zero before the first event. When zero lies outside
// [minLevel, maxLevel], the constraint materializes the initial stock as a
// fixed present event at the start of the horizon (the smallest earliest
// event time); without it the constraint would be vacuously unsatisfiable
// from the first instant.
func AddReservoir(trail *Trail, w *Watcher, events []ReservoirEvent, minLevel, maxLevel IntegerValue) ([]*ReservoirTimeTabling, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("AddReservoir: requires at least one event")
	}
	if minLevel > maxLevel {
		return nil, fmt.Errorf("AddReservoir: min level %d above max level %d", minLevel, maxLevel)
	}

	all := make([]ReservoirEvent, len(events), len(events)+1)
	copy(all, events)
	if minLevel > 0 || maxLevel < 0 {
		horizonStart := MaxIntegerValue
		for _, e := range events {
			horizonStart = minValue(horizonStart, trail.LowerBound(e.Time))
		}
		initial := minLevel
		if maxLevel < 0 {
			initial = maxLevel
		}
		all = append(all, ReservoirEvent{
			Time:     ConstantExpr(horizonStart),
			Delta:    initial,
			Presence: NoLiteral,
		})
	}

	maxSide, err := NewReservoirTimeTabling(trail, all, maxLevel)
	if err != nil {
		return nil, err
	}
	negated := make([]ReservoirEvent, len(all))
	for i, e := range all {
		negated[i] = ReservoirEvent{Time: e.Time, Delta: -e.Delta, Presence: e.Presence}
	}
	minSide, err := NewReservoirTimeTabling(trail, negated, -minLevel)
	if err != nil {
		return nil, err
	}
	if w != nil {
		maxSide.RegisterWith(w)
		minSide.RegisterWith(w)
	}
	return []*ReservoirTimeTabling{maxSide, minSide}, nil
}
