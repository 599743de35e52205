// Package timetabling provides time-tabling propagation for resource
// constraints.
//
// This file implements a small chronological search driver over trail
// levels. The propagation core does not depend on it; it exists so that the
// consumers of the engine (the job-shop CLI, the demos, and the end-to-end
// tests) have a driver, and it doubles as the reference for how a search
// layer is expected to interleave decisions, Propagate calls, and
// BacktrackTo.
package timetabling

import (
	"context"
)

// SearchStats counts the work done by one Search run.
type SearchStats struct {
	Decisions  int64
	Conflicts  int64
	Backtracks int64
	Solutions  int64
}

// Solution is a snapshot of the model's decision expressions at a leaf.
type Solution []IntegerValue

// Search is a depth-first, min-value-first driver fixing the model's
// decision variables. Cancellation is checked between propagation calls, as
// the engine requires.
type Search struct {
	model *Model
	stats SearchStats
}

// NewSearch creates a driver for the given model.
func NewSearch(model *Model) *Search {
	return &Search{model: model}
}

// Stats returns the counters accumulated so far.
func (s *Search) Stats() SearchStats { return s.stats }

// Solve runs propagation to its root fixpoint and then searches for one
// feasible assignment of all decision variables. It returns nil when the
// model is infeasible.
func (s *Search) Solve(ctx context.Context) (Solution, error) {
	trail, watcher := s.model.trail, s.model.watcher
	if !watcher.Propagate() {
		s.stats.Conflicts++
		return nil, nil
	}
	found, err := s.dive(ctx)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	s.stats.Solutions++
	sol := make(Solution, len(s.model.decisions))
	for i, e := range s.model.decisions {
		sol[i] = trail.LowerBound(e)
	}
	return sol, nil
}

// SolveN enumerates up to limit feasible assignments. It returns the
// solutions found, possibly none for an infeasible model.
func (s *Search) SolveN(ctx context.Context, limit int) ([]Solution, error) {
	if limit <= 0 {
		return nil, nil
	}
	if !s.model.watcher.Propagate() {
		s.stats.Conflicts++
		return nil, nil
	}
	var out []Solution
	err := s.enumerate(ctx, limit, &out)
	return out, err
}

// enumerate is dive extended to keep searching after each leaf until limit
// solutions are collected.
func (s *Search) enumerate(ctx context.Context, limit int, out *[]Solution) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	trail, watcher := s.model.trail, s.model.watcher
	v, ok := s.pickVariable()
	if !ok {
		s.stats.Solutions++
		sol := make(Solution, len(s.model.decisions))
		for i, e := range s.model.decisions {
			sol[i] = trail.LowerBound(e)
		}
		*out = append(*out, sol)
		return nil
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		lb := trail.LowerBound(v)
		level := trail.PushLevel()
		s.stats.Decisions++
		if trail.TightenUpperBound(v, lb, Reason{}) && watcher.Propagate() {
			if err := s.enumerate(ctx, limit, out); err != nil {
				return err
			}
			if len(*out) >= limit {
				return nil
			}
		} else {
			s.stats.Conflicts++
		}
		trail.BacktrackTo(level - 1)
		watcher.EnqueueAll()
		s.stats.Backtracks++

		if !trail.TightenLowerBound(v, lb+1, Reason{}) || !watcher.Propagate() {
			s.stats.Conflicts++
			return nil
		}
	}
}

// Minimize searches repeatedly, constraining the objective below the best
// known value after each solution, and returns the last solution found. The
// final infeasible pass proves optimality.
func (s *Search) Minimize(ctx context.Context, objective AffineExpr) (Solution, IntegerValue, error) {
	var best Solution
	bestValue := MaxIntegerValue
	trail := s.model.trail
	for {
		sol, err := s.Solve(ctx)
		if err != nil {
			return best, bestValue, err
		}
		if sol == nil {
			return best, bestValue, nil
		}
		best = sol
		bestValue = trail.LowerBound(objective)
		trail.BacktrackTo(0)
		s.model.watcher.EnqueueAll()
		if !trail.TightenUpperBound(objective, bestValue-1, Reason{}) {
			return best, bestValue, nil
		}
	}
}

// dive recursively fixes the next decision variable, backtracking on
// conflicts. Returns true when every decision variable is fixed.
func (s *Search) dive(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	trail, watcher := s.model.trail, s.model.watcher
	v, ok := s.pickVariable()
	if !ok {
		return true, nil
	}
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		lb := trail.LowerBound(v)
		level := trail.PushLevel()
		s.stats.Decisions++
		if trail.TightenUpperBound(v, lb, Reason{}) && watcher.Propagate() {
			found, err := s.dive(ctx)
			if found || err != nil {
				return found, err
			}
		} else {
			s.stats.Conflicts++
		}
		trail.BacktrackTo(level - 1)
		watcher.EnqueueAll()
		s.stats.Backtracks++

		// The tried value is now refuted at this level.
		if !trail.TightenLowerBound(v, lb+1, Reason{}) || !watcher.Propagate() {
			s.stats.Conflicts++
			return false, nil
		}
	}
}

// pickVariable returns the unfixed decision expression with the smallest
// lower bound, ties broken by smaller range then creation order.
func (s *Search) pickVariable() (AffineExpr, bool) {
	trail := s.model.trail
	var best AffineExpr
	found := false
	var bestLb, bestRange IntegerValue
	for _, e := range s.model.decisions {
		lb, ub := trail.LowerBound(e), trail.UpperBound(e)
		if lb == ub {
			continue
		}
		r := ub - lb
		if !found || lb < bestLb || (lb == bestLb && r < bestRange) {
			best, bestLb, bestRange = e, lb, r
			found = true
		}
	}
	return best, found
}
