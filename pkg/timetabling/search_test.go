package timetabling

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSearch_SolveSchedulesDisjointTasks(t *testing.T) {
	m := NewModel()
	a := m.NewInterval(0, 8, 2)
	b := m.NewInterval(0, 8, 2)
	_, err := m.AddCumulative(
		[]Interval{a, b},
		[]AffineExpr{ConstantExpr(1), ConstantExpr(1)},
		ConstantExpr(1),
	)
	require.NoError(t, err)

	s := NewSearch(m)
	sol, err := s.Solve(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sol)
	require.Len(t, sol, 2)

	// Unit capacity: the tasks must not overlap.
	sa, sb := sol[0], sol[1]
	require.True(t, sa+2 <= sb || sb+2 <= sa, "tasks overlap: %d and %d", sa, sb)
	require.Equal(t, int64(1), s.Stats().Solutions)
}

func TestSearch_SolveReportsInfeasible(t *testing.T) {
	m := NewModel()
	a := m.NewInterval(0, 0, 2)
	b := m.NewInterval(0, 0, 2)
	_, err := m.AddCumulative(
		[]Interval{a, b},
		[]AffineExpr{ConstantExpr(1), ConstantExpr(1)},
		ConstantExpr(1),
	)
	require.NoError(t, err)

	s := NewSearch(m)
	sol, err := s.Solve(context.Background())
	require.NoError(t, err)
	require.Nil(t, sol)
	require.GreaterOrEqual(t, s.Stats().Conflicts, int64(1))
}

func TestSearch_MinimizeMakespan(t *testing.T) {
	m := NewModel()
	a := m.NewInterval(0, 8, 2)
	b := m.NewInterval(0, 8, 2)
	_, err := m.AddCumulative(
		[]Interval{a, b},
		[]AffineExpr{ConstantExpr(1), ConstantExpr(1)},
		ConstantExpr(1),
	)
	require.NoError(t, err)

	makespan := m.NewVariable(0, 12)
	m.AddPrecedence(a.End, makespan, 0)
	m.AddPrecedence(b.End, makespan, 0)

	s := NewSearch(m)
	best, value, err := s.Minimize(context.Background(), makespan)
	require.NoError(t, err)
	require.NotNil(t, best)
	require.Equal(t, IntegerValue(4), value)

	// The optimal schedule runs the tasks back to back.
	sa, sb := best[0], best[1]
	require.True(t, sa+2 <= sb || sb+2 <= sa)
	require.LessOrEqual(t, maxValue(sa, sb), IntegerValue(2))
}

func TestSearch_SolveNEnumeratesAllSchedules(t *testing.T) {
	m := NewModel()
	a := m.NewInterval(0, 2, 2)
	b := m.NewInterval(0, 2, 2)
	_, err := m.AddCumulative(
		[]Interval{a, b},
		[]AffineExpr{ConstantExpr(1), ConstantExpr(1)},
		ConstantExpr(1),
	)
	require.NoError(t, err)

	s := NewSearch(m)
	sols, err := s.SolveN(context.Background(), 10)
	require.NoError(t, err)
	// Within starts 0..2 only the two back-to-back orders fit.
	require.Len(t, sols, 2)
	for _, sol := range sols {
		sa, sb := sol[0], sol[1]
		require.True(t, sa+2 <= sb || sb+2 <= sa)
	}

	m2 := NewModel()
	m2.NewInterval(0, 4, 1)
	s2 := NewSearch(m2)
	sols, err = s2.SolveN(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, sols, 3)
}

func TestSearch_SolveRespectsReservoirOrdering(t *testing.T) {
	m := NewModel()
	td := m.NewDecision(0, 2)
	events := []ReservoirEvent{
		{Time: td, Delta: 1, Presence: NoLiteral},
		{Time: ConstantExpr(1), Delta: -1, Presence: NoLiteral},
	}
	_, err := m.AddReservoir(events, 0, 100)
	require.NoError(t, err)

	s := NewSearch(m)
	sol, err := s.Solve(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sol)
	// The withdrawal at time 1 needs the deposit no later than that.
	require.LessOrEqual(t, sol[0], IntegerValue(1))
}

func TestSearch_CancelledContext(t *testing.T) {
	m := NewModel()
	m.NewInterval(0, 8, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSearch(m)
	_, err := s.Solve(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
