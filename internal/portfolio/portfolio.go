// Package portfolio runs several independent search workers on copies of the
// same problem and keeps the first result. Trails are single-threaded, so
// every worker builds its own model through the factory; no solver state is
// shared between goroutines.
package portfolio

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"github.com/gitrdm/gotimetable/pkg/timetabling"
)

// Factory builds one worker's private solver: a fresh search over a fresh
// model plus the objective expression to minimize. The worker index lets
// implementations diversify their models.
type Factory func(worker int) (*timetabling.Search, timetabling.AffineExpr, error)

// Result is the outcome reported by the winning worker.
type Result struct {
	Worker    int
	Solution  timetabling.Solution
	Objective timetabling.IntegerValue
	Stats     timetabling.SearchStats
}

// Pool coordinates the workers of one solve.
type Pool struct {
	workers int
	logger  zerolog.Logger
}

// NewPool creates a pool. A nonpositive worker count defaults to the number
// of CPU cores.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{workers: workers, logger: zerolog.Nop()}
}

// SetLogger enables per-worker progress logging.
func (p *Pool) SetLogger(logger zerolog.Logger) { p.logger = logger }

// Minimize runs the workers until the first one completes its optimization,
// then cancels the rest. It returns nil when the problem is infeasible, and
// an error only for worker construction failures or context cancellation.
func (p *Pool) Minimize(ctx context.Context, factory Factory) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		result *Result
		err    error
	}
	outcomes := make(chan outcome, p.workers)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			search, objective, err := factory(worker)
			if err != nil {
				outcomes <- outcome{err: fmt.Errorf("portfolio: worker %d: %w", worker, err)}
				return
			}
			sol, value, err := search.Minimize(ctx, objective)
			if err != nil {
				outcomes <- outcome{err: err}
				return
			}
			if sol == nil {
				outcomes <- outcome{}
				return
			}
			p.logger.Debug().
				Int("worker", worker).
				Int64("objective", int64(value)).
				Msg("worker finished")
			outcomes <- outcome{result: &Result{
				Worker:    worker,
				Solution:  sol,
				Objective: value,
				Stats:     search.Stats(),
			}}
		}(i)
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	// First completed worker wins; cancellation errors from losers whose
	// context we tore down are not reported. The channel is buffered, so
	// abandoned workers never block on send.
	var firstErr error
	for oc := range outcomes {
		if oc.result != nil {
			return oc.result, nil
		}
		if oc.err != nil && firstErr == nil {
			firstErr = oc.err
			cancel()
		}
	}
	return nil, firstErr
}
