package timetabling

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// countingPropagator records its invocations and delegates to fn when set.
type countingPropagator struct {
	calls int
	fn    func() bool
}

func (c *countingPropagator) Propagate() bool {
	c.calls++
	if c.fn != nil {
		return c.fn()
	}
	return true
}

func TestWatcher_RegisteredPropagatorsRunOnce(t *testing.T) {
	tr := NewTrail()
	w := NewWatcher(tr)

	p1 := &countingPropagator{}
	p2 := &countingPropagator{}
	w.Register(p1)
	w.Register(p2)

	require.True(t, w.Propagate())
	require.Equal(t, 1, p1.calls)
	require.Equal(t, 1, p2.calls)

	// Nothing changed: the fixpoint is already reached.
	require.True(t, w.Propagate())
	require.Equal(t, 1, p1.calls)
	require.Equal(t, 1, p2.calls)
}

func TestWatcher_BoundChangeWakesOnlyItsWatchers(t *testing.T) {
	tr := NewTrail()
	w := NewWatcher(tr)
	x := VarExpr(tr.NewVariable(0, 10))
	y := VarExpr(tr.NewVariable(0, 10))

	px := &countingPropagator{}
	py := &countingPropagator{}
	w.WatchExpr(x, w.Register(px))
	w.WatchExpr(y, w.Register(py))
	require.True(t, w.Propagate())

	require.True(t, tr.TightenLowerBound(x, 3, Reason{}))
	require.True(t, w.Propagate())
	require.Equal(t, 2, px.calls)
	require.Equal(t, 1, py.calls)
}

func TestWatcher_LiteralAssignmentWakesWatchers(t *testing.T) {
	tr := NewTrail()
	w := NewWatcher(tr)
	lit := tr.NewBooleanVariable()

	p := &countingPropagator{}
	w.WatchLiteral(lit, w.Register(p))
	require.True(t, w.Propagate())

	// Both polarities of the variable wake the watcher.
	require.True(t, tr.AssignLiteral(lit.Negated(), Reason{}))
	require.True(t, w.Propagate())
	require.Equal(t, 2, p.calls)
}

func TestWatcher_CascadeRunsToFixpoint(t *testing.T) {
	tr := NewTrail()
	w := NewWatcher(tr)
	x := VarExpr(tr.NewVariable(0, 10))
	y := VarExpr(tr.NewVariable(0, 10))

	// Propagates x <= y by raising y's lower bound.
	link := &countingPropagator{}
	link.fn = func() bool {
		return tr.TightenLowerBound(y, tr.LowerBound(x), Reason{})
	}
	final := &countingPropagator{}

	linkID := w.Register(link)
	w.WatchExpr(x, linkID)
	w.WatchExpr(y, w.Register(final))
	require.True(t, w.Propagate())

	require.True(t, tr.TightenLowerBound(x, 7, Reason{}))
	require.True(t, w.Propagate())
	require.Equal(t, IntegerValue(7), tr.LowerBound(y))
	// The chained change woke the downstream watcher.
	require.GreaterOrEqual(t, final.calls, 2)
}

func TestWatcher_ConflictStopsAndDrainsQueue(t *testing.T) {
	tr := NewTrail()
	w := NewWatcher(tr)

	failing := &countingPropagator{fn: func() bool {
		return tr.ReportConflict(Reason{})
	}}
	after := &countingPropagator{}
	w.Register(failing)
	w.Register(after)

	require.False(t, w.Propagate())
	require.Equal(t, 1, failing.calls)
	require.Equal(t, 0, after.calls)

	// The queue was drained: nothing runs until propagators are re-enqueued.
	tr.BacktrackTo(0)
	require.True(t, w.Propagate())
	require.Equal(t, 0, after.calls)

	failing.fn = nil
	w.EnqueueAll()
	require.True(t, w.Propagate())
	require.Equal(t, 2, failing.calls)
	require.Equal(t, 1, after.calls)
}
