// Package timetabling provides time-tabling propagation for resource
// constraints.
//
// This file implements TimeTablingPerTask, the cumulative time-tabling
// propagator. Given tasks with variable time windows, optional presences, and
// bounded demands sharing one capacity, it enforces that at every instant the
// total demand of running tasks stays below the capacity.
//
// Propagation strength: time-table filtering over mandatory parts.
//   - The profile sums the minimum demands of tasks over their mandatory
//     parts [start_max, end_min). A profile peak above the capacity upper
//     bound is a conflict; otherwise the peak tightens the capacity lower
//     bound.
//   - The forward sweep pushes each task's earliest start past every profile
//     rectangle it would necessarily overlap whose height plus the task's
//     minimum demand exceeds the capacity upper bound. The backward sweep
//     runs the same code on the time-mirrored task view against the mirrored
//     profile to push latest ends.
//
// This reasons about exact time windows, so it is strictly stronger than a
// task-by-task linear capacity check. It is not as strong as edge-finding,
// but is fast, robust, and catches many practical conflicts; the dispatcher's
// fixpoint loop composes it with other constraints.
//
// Reversible state: two sweep sets (a task with a fixed start is dropped from
// the forward set, one with a fixed end from the backward set) and the prefix
// of tasks contributing to the profile. Set sizes live in RevInt values so
// membership is restored on backtrack without recomputation. The profile
// itself is scratch, rebuilt on every call.
package timetabling

import (
	"fmt"

	"github.com/rs/zerolog"
)

// TimeTablingPerTask propagates one cumulative resource constraint.
// Create it with NewTimeTablingPerTask and register it with RegisterWith.
type TimeTablingPerTask struct {
	trail    *Trail
	tasks    *Tasks
	mirrored *Tasks
	demands  []AffineExpr
	capacity AffineExpr
	logger   zerolog.Logger

	// Scratch profile state, valid only within one Propagate call.
	profile          Profile
	reversedProfile  Profile
	events           []profileEvent
	profileMaxHeight IntegerValue

	// Reversible sweep sets. The first forwardNum entries of
	// forwardTasksToSweep are the tasks still worth sweeping forward, and
	// symmetrically for the backward set.
	forwardTasksToSweep  []int
	forwardNum           RevInt
	backwardTasksToSweep []int
	backwardNum          RevInt

	// Reversible prefix of tasks that may contribute to the profile. A task
	// enters the prefix when it first acquires a mandatory part; the prefix
	// only grows within a branch, so restoring the size on backtrack restores
	// the set.
	profileTasks    []int
	numProfileTasks RevInt
}

// NewTimeTablingPerTask creates the propagator for the given task view,
// per-task demand expressions, and shared capacity expression.
//
// Malformed input is rejected here, once, when the constraint is posted:
// mismatched demand count, a demand with a negative lower bound, or a
// capacity with a negative upper bound.
func NewTimeTablingPerTask(tasks *Tasks, demands []AffineExpr, capacity AffineExpr) (*TimeTablingPerTask, error) {
	if tasks == nil {
		return nil, fmt.Errorf("TimeTablingPerTask: nil task view")
	}
	n := tasks.NumTasks()
	if len(demands) != n {
		return nil, fmt.Errorf("TimeTablingPerTask: %d demands for %d tasks", len(demands), n)
	}
	trail := tasks.Trail()
	for i, d := range demands {
		if trail.LowerBound(d) < 0 {
			return nil, fmt.Errorf("TimeTablingPerTask: demand %d has negative lower bound %d", i, trail.LowerBound(d))
		}
	}
	if trail.UpperBound(capacity) < 0 {
		return nil, fmt.Errorf("TimeTablingPerTask: capacity upper bound %d is negative", trail.UpperBound(capacity))
	}

	demandsCopy := make([]AffineExpr, n)
	copy(demandsCopy, demands)

	p := &TimeTablingPerTask{
		trail:                trail,
		tasks:                tasks,
		mirrored:             tasks.Reversed(),
		demands:              demandsCopy,
		capacity:             capacity,
		logger:               zerolog.Nop(),
		forwardTasksToSweep:  make([]int, n),
		backwardTasksToSweep: make([]int, n),
		profileTasks:         make([]int, n),
	}
	for i := 0; i < n; i++ {
		p.forwardTasksToSweep[i] = i
		p.backwardTasksToSweep[i] = i
		p.profileTasks[i] = i
	}
	p.forwardNum.SetValue(trail, n)
	p.backwardNum.SetValue(trail, n)
	return p, nil
}

// SetLogger enables debug tracing for this propagator.
func (p *TimeTablingPerTask) SetLogger(logger zerolog.Logger) { p.logger = logger }

// RegisterWith declares every bound and presence the propagator reads to the
// dispatcher.
func (p *TimeTablingPerTask) RegisterWith(w *Watcher) {
	id := w.Register(p)
	for i := 0; i < p.tasks.NumTasks(); i++ {
		w.WatchExpr(p.tasks.StartExpr(i), id)
		w.WatchExpr(p.tasks.EndExpr(i), id)
		w.WatchExpr(p.tasks.SizeExpr(i), id)
		w.WatchExpr(p.demands[i], id)
		w.WatchLiteral(p.tasks.PresenceLiteral(i), id)
	}
	w.WatchExpr(p.capacity, id)
}

// Propagate rebuilds the profile, tightens the capacity lower bound, then
// sweeps all tasks forward and backward. Returns false on conflict with the
// reason recorded on the trail.
func (p *TimeTablingPerTask) Propagate() bool {
	if !p.buildProfile() {
		return false
	}
	if !p.sweepAllTasks(p.tasks, p.profile, p.forwardTasksToSweep, &p.forwardNum) {
		return false
	}
	// The backward sweep reuses the same rectangles through a mirrored copy;
	// the forward profile stays untouched.
	p.reversedProfile = reverseProfileInto(p.reversedProfile, p.profile)
	return p.sweepAllTasks(p.mirrored, p.reversedProfile, p.backwardTasksToSweep, &p.backwardNum)
}

// buildProfile constructs the mandatory-part profile and applies the capacity
// rule: a peak above the capacity upper bound is a conflict, a peak above its
// lower bound tightens it.
func (p *TimeTablingPerTask) buildProfile() bool {
	tasks, trail := p.tasks, p.trail

	// Tasks acquire mandatory parts monotonically within a branch; grow the
	// reversible prefix accordingly.
	num := p.numProfileTasks.Value()
	for idx := num; idx < len(p.profileTasks); idx++ {
		t := p.profileTasks[idx]
		if tasks.HasMandatoryPart(t) {
			p.profileTasks[idx], p.profileTasks[num] = p.profileTasks[num], p.profileTasks[idx]
			num++
		}
	}
	p.numProfileTasks.SetValue(trail, num)

	p.events = p.events[:0]
	for idx := 0; idx < num; idx++ {
		t := p.profileTasks[idx]
		// Absence and backtracking can invalidate prefix members; they are
		// skipped, not removed.
		if !tasks.HasMandatoryPart(t) {
			continue
		}
		dm := trail.LowerBound(p.demands[t])
		if dm == 0 {
			continue
		}
		p.events = append(p.events,
			profileEvent{time: tasks.StartMax(t), delta: dm},
			profileEvent{time: tasks.EndMin(t), delta: -dm},
		)
	}
	p.profile = buildProfileFromEvents(p.profile, p.events)
	maxHeight, at := p.profile.MaxHeight()
	p.profileMaxHeight = maxHeight

	capaMax := trail.UpperBound(p.capacity)
	if maxHeight > capaMax {
		var reason Reason
		reason.AddBound(LowerOrEqual(p.capacity, capaMax))
		p.addProfileReason(tasks, &reason, at, at+1, -1)
		p.logger.Debug().Int64("height", int64(maxHeight)).Int64("time", int64(at)).Msg("profile exceeds capacity")
		return trail.ReportConflict(reason)
	}
	if maxHeight > trail.LowerBound(p.capacity) {
		var reason Reason
		p.addProfileReason(tasks, &reason, at, at+1, -1)
		if !trail.TightenLowerBound(p.capacity, maxHeight, reason) {
			return false
		}
	}
	return true
}

// addProfileReason appends the facts explaining the profile height over
// [left, right): for every contributing task with a mandatory part
// intersecting the range, its presence, its start-max and end-min bounds, and
// its demand lower bound. ignore excludes the task being propagated.
func (p *TimeTablingPerTask) addProfileReason(view *Tasks, reason *Reason, left, right IntegerValue, ignore int) {
	for idx := 0; idx < p.numProfileTasks.Value(); idx++ {
		t := p.profileTasks[idx]
		if t == ignore || !view.HasMandatoryPart(t) {
			continue
		}
		dm := p.trail.LowerBound(p.demands[t])
		if dm == 0 {
			continue
		}
		if view.StartMax(t) < right && view.EndMin(t) > left {
			view.AddMandatoryPartReason(t, reason)
			reason.AddBound(GreaterOrEqual(p.demands[t], dm))
		}
	}
}

// sweepAllTasks runs sweepTask on every member of the given reversible sweep
// set, dropping tasks that can no longer be tightened in this direction.
func (p *TimeTablingPerTask) sweepAllTasks(view *Tasks, profile Profile, set []int, num *RevInt) bool {
	capaMax := p.trail.UpperBound(p.capacity)
	for idx := num.Value() - 1; idx >= 0; idx-- {
		t := set[idx]
		if view.IsAbsent(t) || (view.StartIsFixed(t) && !view.IsOptional(t)) {
			// A fixed start cannot improve; membership is trail-tracked, so
			// the task reappears in the set on backtrack.
			n := num.Value()
			set[idx], set[n-1] = set[n-1], set[idx]
			num.SetValue(p.trail, n-1)
			continue
		}
		dm := p.trail.LowerBound(p.demands[t])
		if dm == 0 || p.profileMaxHeight+dm <= capaMax {
			// No rectangle can conflict with this task yet; keep it in the
			// set, a higher peak may still prune it later.
			continue
		}
		if !p.sweepTask(view, profile, t, dm, capaMax) {
			return false
		}
	}
	return true
}

// sweepTask pushes the earliest start of task t past every conflicting
// rectangle it would necessarily overlap, per the file-header contract.
func (p *TimeTablingPerTask) sweepTask(view *Tasks, profile Profile, t int, dm, capaMax IntegerValue) bool {
	startMin := view.StartMin(t)
	startMax := view.StartMax(t)
	sizeMin := view.SizeMin(t)
	endMin := view.EndMin(t)

	conflictHeight := capaMax - dm
	inProfile := view.HasMandatoryPart(t)
	mpStart, mpEnd := startMax, endMin

	newStart := startMin
	newEnd := maxValue(endMin, startMin+sizeMin)
	limit := minValue(startMax, newEnd)
	conflictFound := false

	for rec := profile.rectangleAt(startMin); profile[rec].Start < limit; rec++ {
		h := profile[rec].Height
		// Discount the task's own compulsory load inside its mandatory part.
		if inProfile && profile[rec].Start < mpEnd && profile[rec+1].Start > mpStart {
			h -= dm
		}
		if h <= conflictHeight {
			continue
		}
		conflictFound = true
		next := profile[rec+1].Start
		if next > startMax {
			if inProfile {
				// A task contributing to the profile cannot be pushed past
				// its own mandatory part.
				next = startMax
			} else {
				next = startMax + 1
			}
		}
		if next <= newStart {
			continue
		}
		newStart = next
		newEnd = maxValue(newEnd, newStart+sizeMin)
		limit = minValue(startMax, newEnd)
	}

	if !conflictFound || newStart == startMin {
		return true
	}

	if newStart > startMax {
		// No room anywhere in the window: conflict for a present task,
		// forced absence for an optional one. The reason covers the full
		// scanned range plus the task's own window, size, and demand.
		var reason Reason
		p.addProfileReason(view, &reason, startMin, startMax+1, t)
		reason.AddBound(LowerOrEqual(p.capacity, capaMax))
		reason.AddBound(GreaterOrEqual(p.demands[t], dm))
		reason.AddBound(GreaterOrEqual(view.StartExpr(t), startMin))
		reason.AddBound(LowerOrEqual(view.StartExpr(t), startMax))
		reason.AddBound(GreaterOrEqual(view.SizeExpr(t), sizeMin))
		if view.IsOptional(t) {
			return view.PushTaskAbsence(t, reason)
		}
		reason.AddPresence(view.PresenceLiteral(t))
		return p.trail.ReportConflict(reason)
	}

	if view.IsOptional(t) {
		// Bounds of an undecided task are conditional on its presence; only
		// the infeasible case above may be propagated unconditionally.
		return true
	}

	reason := Reason{}
	p.addProfileReason(view, &reason, startMin, newStart, t)
	reason.AddBound(LowerOrEqual(p.capacity, capaMax))
	reason.AddBound(GreaterOrEqual(p.demands[t], dm))
	reason.AddBound(GreaterOrEqual(view.StartExpr(t), startMin))
	reason.AddBound(GreaterOrEqual(view.SizeExpr(t), sizeMin))
	return view.IncreaseStartMin(t, newStart, reason)
}
