// Package timetabling provides time-tabling propagation for resource
// constraints.
//
// This file implements the Watcher, the event dispatcher that invokes a
// propagator when a bound or presence it depends on changes. Propagators
// register the variables and literals they read; the Watcher runs them to a
// fixpoint after each decision.
package timetabling

// Propagator is the contract shared by all constraint propagators. Propagate
// returns false on a conflict, in which case the reason has already been
// recorded on the trail and no bound was changed by the failing call.
//
// Propagate must be idempotent: re-invoking it without an intervening
// external bound change is a no-op returning true.
type Propagator interface {
	Propagate() bool
}

// Watcher dispatches bound and literal change events to registered
// propagators and runs the propagation fixpoint.
//
// Propagation order across propagators is unspecified; propagators guarantee
// soundness regardless of call order.
type Watcher struct {
	trail       *Trail
	propagators []Propagator

	varWatchers map[IntegerVariable][]int
	litWatchers map[BooleanVariable][]int

	inQueue []bool
	queue   []int
}

// NewWatcher creates a dispatcher bound to the given trail. The watcher
// hooks the trail's change notifications; one watcher per trail.
func NewWatcher(trail *Trail) *Watcher {
	w := &Watcher{
		trail:       trail,
		varWatchers: make(map[IntegerVariable][]int),
		litWatchers: make(map[BooleanVariable][]int),
	}
	trail.onBoundChange = w.onBoundChange
	trail.onLiteralAssigned = w.onLiteralAssigned
	return w
}

// Register adds a propagator and returns its id for watch registration. The
// propagator is enqueued so the first Propagate call reaches its fixpoint.
func (w *Watcher) Register(p Propagator) int {
	id := len(w.propagators)
	w.propagators = append(w.propagators, p)
	w.inQueue = append(w.inQueue, true)
	w.queue = append(w.queue, id)
	return id
}

// WatchIntegerVariable re-enqueues propagator id whenever a bound of v
// changes. Constant expressions have no variable and need no watch.
func (w *Watcher) WatchIntegerVariable(v IntegerVariable, id int) {
	if v == NoIntegerVariable {
		return
	}
	w.varWatchers[v] = append(w.varWatchers[v], id)
}

// WatchExpr watches the variable part of expr, if any.
func (w *Watcher) WatchExpr(expr AffineExpr, id int) {
	w.WatchIntegerVariable(expr.Var, id)
}

// WatchLiteral re-enqueues propagator id whenever lit's variable is assigned.
func (w *Watcher) WatchLiteral(lit Literal, id int) {
	if lit == NoLiteral {
		return
	}
	w.litWatchers[lit.Variable()] = append(w.litWatchers[lit.Variable()], id)
}

func (w *Watcher) onBoundChange(v IntegerVariable) {
	for _, id := range w.varWatchers[v] {
		w.enqueue(id)
	}
}

func (w *Watcher) onLiteralAssigned(lit Literal) {
	for _, id := range w.litWatchers[lit.Variable()] {
		w.enqueue(id)
	}
}

func (w *Watcher) enqueue(id int) {
	if w.inQueue[id] {
		return
	}
	w.inQueue[id] = true
	w.queue = append(w.queue, id)
}

// Propagate runs registered propagators until no watched change remains.
// Returns false as soon as one propagator reports a conflict; the conflict
// reason is then available from the trail. Each propagator call is bounded,
// so the fixpoint terminates because bounds only tighten.
func (w *Watcher) Propagate() bool {
	for len(w.queue) > 0 {
		id := w.queue[0]
		w.queue = w.queue[1:]
		w.inQueue[id] = false
		if !w.propagators[id].Propagate() {
			// Drain so the next call after a backtrack starts clean.
			for _, rest := range w.queue {
				w.inQueue[rest] = false
			}
			w.queue = w.queue[:0]
			return false
		}
	}
	return true
}

// EnqueueAll marks every propagator dirty. The search driver calls it after
// backtracking, when sweep state is conceptually stale.
func (w *Watcher) EnqueueAll() {
	for id := range w.propagators {
		w.enqueue(id)
	}
}
