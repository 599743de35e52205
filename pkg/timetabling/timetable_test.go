package timetabling

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Two mandatory tasks with demands 3 and 4 fully overlap on [0, 5) while the
// capacity never exceeds 6: the profile alone proves infeasibility, and the
// conflict reason names both presences, both demand lower bounds, and the
// capacity upper bound.
func TestTimeTabling_OverloadConflictWithReason(t *testing.T) {
	m := NewModel()
	tr := m.Trail()

	a := m.NewOptionalInterval(0, 0, 5)
	b := m.NewOptionalInterval(0, 0, 5)
	require.True(t, tr.AssignLiteral(a.Presence, Reason{}))
	require.True(t, tr.AssignLiteral(b.Presence, Reason{}))

	da := m.NewVariable(3, 5)
	db := m.NewVariable(4, 6)
	capa := m.NewVariable(0, 6)
	_, err := m.AddCumulative([]Interval{a, b}, []AffineExpr{da, db}, capa)
	require.NoError(t, err)

	require.False(t, m.Watcher().Propagate())
	require.True(t, tr.HasConflict())

	conflict := tr.Conflict()
	require.True(t, conflict.HasLiteral(a.Presence))
	require.True(t, conflict.HasLiteral(b.Presence))
	require.True(t, conflict.HasBound(GreaterOrEqual(da, 3)))
	require.True(t, conflict.HasBound(GreaterOrEqual(db, 4)))
	require.True(t, conflict.HasBound(LowerOrEqual(capa, 6)))
}

// A single task with a wide window has no mandatory part: nothing to
// propagate, the capacity lower bound stays untouched.
func TestTimeTabling_WideWindowIsQuiet(t *testing.T) {
	m := NewModel()
	iv := m.NewInterval(0, 10, 2)
	capa := m.NewVariable(0, 5)
	_, err := m.AddCumulative([]Interval{iv}, []AffineExpr{ConstantExpr(5)}, capa)
	require.NoError(t, err)

	require.True(t, m.Watcher().Propagate())
	require.Equal(t, IntegerValue(0), m.Trail().LowerBound(capa))
	require.Equal(t, IntegerValue(0), m.Trail().LowerBound(iv.Start))
}

// Once the same task is fixed, its mandatory part covers [0, 2) at height 5
// and the capacity lower bound is tightened to the peak, justified by that
// task's mandatory part.
func TestTimeTabling_CapacityLowerBoundTightenedToPeak(t *testing.T) {
	m := NewModel()
	tr := m.Trail()
	iv := m.NewInterval(0, 0, 2)
	capa := m.NewVariable(0, 5)
	_, err := m.AddCumulative([]Interval{iv}, []AffineExpr{ConstantExpr(5)}, capa)
	require.NoError(t, err)

	require.True(t, m.Watcher().Propagate())
	require.Equal(t, IntegerValue(5), tr.LowerBound(capa))

	reason := tr.LowerBoundReason(capa.Var)
	require.True(t, reason.HasBound(LowerOrEqual(iv.Start, 0)))
	require.True(t, reason.HasBound(GreaterOrEqual(iv.End, 2)))
}

// Tasks A and B occupy [0, 4) at height 4 on a capacity-5 resource; task C
// with demand 2 cannot run anywhere inside [0, 4) and its earliest start is
// pushed to 4, justified by A's and B's mandatory parts.
func TestTimeTabling_PushStartMinPastOccupiedRegion(t *testing.T) {
	m := NewModel()
	tr := m.Trail()

	a := m.NewInterval(0, 0, 4)
	b := m.NewInterval(0, 0, 4)
	c := m.NewInterval(0, 10, 2)
	capa := ConstantExpr(5)
	_, err := m.AddCumulative(
		[]Interval{a, b, c},
		[]AffineExpr{ConstantExpr(2), ConstantExpr(2), ConstantExpr(2)},
		capa,
	)
	require.NoError(t, err)

	require.True(t, m.Watcher().Propagate())
	require.Equal(t, IntegerValue(4), tr.LowerBound(c.Start))

	reason := tr.LowerBoundReason(c.Start.Var)
	require.True(t, reason.HasBound(LowerOrEqual(a.Start, 0)))
	require.True(t, reason.HasBound(GreaterOrEqual(a.End, 4)))
	require.True(t, reason.HasBound(LowerOrEqual(b.Start, 0)))
	require.True(t, reason.HasBound(GreaterOrEqual(b.End, 4)))
}

// The backward sweep is the forward sweep on the mirrored view: a blocked
// region at the end of C's window pushes its latest end leftwards.
func TestTimeTabling_BackwardSweepPushesEndMax(t *testing.T) {
	m := NewModel()
	tr := m.Trail()

	a := m.NewInterval(8, 8, 4) // mandatory on [8, 12)
	b := m.NewInterval(8, 8, 4)
	c := m.NewInterval(0, 10, 2) // end in [2, 12]
	_, err := m.AddCumulative(
		[]Interval{a, b, c},
		[]AffineExpr{ConstantExpr(2), ConstantExpr(2), ConstantExpr(2)},
		ConstantExpr(5),
	)
	require.NoError(t, err)

	require.True(t, m.Watcher().Propagate())
	// C cannot overlap [8, 12), so it must end by 8, i.e. start by 6.
	require.Equal(t, IntegerValue(8), tr.UpperBound(c.End))
	require.Equal(t, IntegerValue(6), tr.UpperBound(c.Start))
}

// A task whose window offers no room anywhere reports a conflict when
// mandatory, and is forced absent when optional.
func TestTimeTabling_NoRoomInWindow(t *testing.T) {
	t.Run("mandatory task conflicts", func(t *testing.T) {
		m := NewModel()
		blockA := m.NewInterval(0, 0, 6)
		blockB := m.NewInterval(0, 0, 6)
		c := m.NewInterval(0, 4, 2)
		_, err := m.AddCumulative(
			[]Interval{blockA, blockB, c},
			[]AffineExpr{ConstantExpr(2), ConstantExpr(2), ConstantExpr(2)},
			ConstantExpr(5),
		)
		require.NoError(t, err)

		require.False(t, m.Watcher().Propagate())
		conflict := m.Trail().Conflict()
		require.True(t, conflict.HasBound(GreaterOrEqual(c.Start, 0)))
		require.True(t, conflict.HasBound(LowerOrEqual(c.Start, 4)))
	})

	t.Run("optional task is forced absent", func(t *testing.T) {
		m := NewModel()
		blockA := m.NewInterval(0, 0, 6)
		blockB := m.NewInterval(0, 0, 6)
		c := m.NewOptionalInterval(0, 4, 2)
		_, err := m.AddCumulative(
			[]Interval{blockA, blockB, c},
			[]AffineExpr{ConstantExpr(2), ConstantExpr(2), ConstantExpr(2)},
			ConstantExpr(5),
		)
		require.NoError(t, err)

		require.True(t, m.Watcher().Propagate())
		require.True(t, m.Trail().LiteralIsFalse(c.Presence))
	})
}

// A task contributing to the profile discounts its own load and is never
// pushed past its own latest start.
func TestTimeTabling_SelfLoadNotDoubleCounted(t *testing.T) {
	m := NewModel()
	tr := m.Trail()

	// Alone on the resource with demand equal to the capacity: its own
	// mandatory part [2, 3) must not push it.
	iv := m.NewInterval(0, 2, 3)
	_, err := m.AddCumulative([]Interval{iv}, []AffineExpr{ConstantExpr(3)}, ConstantExpr(3))
	require.NoError(t, err)

	require.True(t, m.Watcher().Propagate())
	require.Equal(t, IntegerValue(0), tr.LowerBound(iv.Start))
	require.Equal(t, IntegerValue(2), tr.UpperBound(iv.Start))
}

// Re-invoking Propagate without any external change never touches the store.
func TestTimeTabling_Idempotent(t *testing.T) {
	m := NewModel()
	tr := m.Trail()

	a := m.NewInterval(0, 0, 4)
	b := m.NewInterval(0, 0, 4)
	c := m.NewInterval(0, 10, 2)
	capa := m.NewVariable(0, 5)
	p, err := m.AddCumulative(
		[]Interval{a, b, c},
		[]AffineExpr{ConstantExpr(2), ConstantExpr(2), ConstantExpr(2)},
		capa,
	)
	require.NoError(t, err)
	require.True(t, m.Watcher().Propagate())

	snapshotLb := append([]IntegerValue(nil), tr.lb...)
	snapshotUb := append([]IntegerValue(nil), tr.ub...)
	trailLen := len(tr.boundTrail)

	require.True(t, p.Propagate())
	require.Equal(t, snapshotLb, tr.lb)
	require.Equal(t, snapshotUb, tr.ub)
	require.Equal(t, trailLen, len(tr.boundTrail))
}

// The profile built by the propagator satisfies the profile invariant.
func TestTimeTabling_ProfileInvariant(t *testing.T) {
	m := NewModel()
	a := m.NewInterval(0, 1, 4)
	b := m.NewInterval(2, 3, 4)
	c := m.NewInterval(5, 5, 1)
	p, err := m.AddCumulative(
		[]Interval{a, b, c},
		[]AffineExpr{ConstantExpr(1), ConstantExpr(2), ConstantExpr(3)},
		ConstantExpr(6),
	)
	require.NoError(t, err)
	require.True(t, m.Watcher().Propagate())

	require.NoError(t, p.profile.CheckInvariants(true))
	require.NoError(t, p.reversedProfile.CheckInvariants(true))
}

// Sweep-set membership is trail-tracked: a task dropped below a decision
// level reappears after backtracking.
func TestTimeTabling_SweepSetsRestoredOnBacktrack(t *testing.T) {
	m := NewModel()
	tr := m.Trail()

	a := m.NewInterval(0, 10, 2)
	b := m.NewInterval(0, 10, 2)
	p, err := m.AddCumulative(
		[]Interval{a, b},
		[]AffineExpr{ConstantExpr(1), ConstantExpr(1)},
		ConstantExpr(2),
	)
	require.NoError(t, err)
	require.True(t, m.Watcher().Propagate())
	require.Equal(t, 2, p.forwardNum.Value())
	require.Equal(t, 0, p.numProfileTasks.Value())

	tr.PushLevel()
	require.True(t, tr.TightenLowerBound(a.Start, 3, Reason{}))
	require.True(t, tr.TightenUpperBound(a.Start, 3, Reason{}))
	require.True(t, m.Watcher().Propagate())

	// A is fixed: dropped from the forward set, added to the profile prefix.
	require.Equal(t, 1, p.forwardNum.Value())
	require.Equal(t, 1, p.numProfileTasks.Value())

	tr.BacktrackTo(0)
	require.Equal(t, 2, p.forwardNum.Value())
	require.Equal(t, 0, p.numProfileTasks.Value())
}

// Soundness: propagation at the root never excludes a start assignment that
// a brute-force check accepts.
func TestTimeTabling_SoundnessAgainstBruteForce(t *testing.T) {
	durations := []IntegerValue{3, 2, 2}
	demands := []IntegerValue{2, 2, 1}
	capacity := IntegerValue(3)
	horizon := IntegerValue(6)

	feasible := func(starts [3]IntegerValue) bool {
		for tick := IntegerValue(0); tick < horizon+4; tick++ {
			load := IntegerValue(0)
			for i, s := range starts {
				if s <= tick && tick < s+durations[i] {
					load += demands[i]
				}
			}
			if load > capacity {
				return false
			}
		}
		return true
	}

	m := NewModel()
	tr := m.Trail()
	ivs := []Interval{
		m.NewInterval(0, 1, durations[0]), // narrow window creates a mandatory part
		m.NewInterval(0, horizon, durations[1]),
		m.NewInterval(0, horizon, durations[2]),
	}
	_, err := m.AddCumulative(ivs, []AffineExpr{
		ConstantExpr(demands[0]), ConstantExpr(demands[1]), ConstantExpr(demands[2]),
	}, ConstantExpr(capacity))
	require.NoError(t, err)
	require.True(t, m.Watcher().Propagate())

	for s0 := IntegerValue(0); s0 <= 1; s0++ {
		for s1 := IntegerValue(0); s1 <= horizon; s1++ {
			for s2 := IntegerValue(0); s2 <= horizon; s2++ {
				if !feasible([3]IntegerValue{s0, s1, s2}) {
					continue
				}
				for i, s := range []IntegerValue{s0, s1, s2} {
					require.GreaterOrEqual(t, s, tr.LowerBound(ivs[i].Start),
						"feasible start excluded by propagation")
					require.LessOrEqual(t, s, tr.UpperBound(ivs[i].Start))
				}
			}
		}
	}
}

func TestTimeTabling_ConstructorValidation(t *testing.T) {
	m := NewModel()
	iv := m.NewInterval(0, 5, 2)

	// Mismatched demand count.
	_, err := m.AddCumulative([]Interval{iv}, nil, ConstantExpr(3))
	require.Error(t, err)

	// Negative demand lower bound.
	_, err = m.AddCumulative([]Interval{iv}, []AffineExpr{ConstantExpr(-1)}, ConstantExpr(3))
	require.Error(t, err)

	// Negative capacity upper bound.
	_, err = m.AddCumulative([]Interval{iv}, []AffineExpr{ConstantExpr(1)}, ConstantExpr(-2))
	require.Error(t, err)

	// Empty interval set.
	_, err = m.AddCumulative(nil, nil, ConstantExpr(3))
	require.Error(t, err)
}
