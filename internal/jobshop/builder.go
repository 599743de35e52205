package jobshop

import (
	"fmt"

	"github.com/gitrdm/gotimetable/pkg/timetabling"
)

// Problem is a built scheduling model for one instance: intervals laid out
// per job and per operation, plus the makespan expression to minimize.
type Problem struct {
	Instance *Instance
	Model    *timetabling.Model
	Horizon  timetabling.IntegerValue

	// Tasks[j][k] is the interval of operation k of job j.
	Tasks    [][]timetabling.Interval
	Makespan timetabling.AffineExpr
}

// Build creates the model: each job's operations are chained with
// precedences, each machine gets a unit-capacity cumulative over the
// operations it runs, and the makespan dominates every job's last end.
// A nonpositive horizon defaults to ComputeHorizon.
func Build(inst *Instance, horizon timetabling.IntegerValue) (*Problem, error) {
	if inst == nil || len(inst.Jobs) == 0 {
		return nil, fmt.Errorf("jobshop: empty instance")
	}
	if horizon <= 0 {
		horizon = ComputeHorizon(inst)
	}
	if horizon <= 0 {
		return nil, fmt.Errorf("jobshop: nonpositive horizon %d", horizon)
	}

	model := timetabling.NewModel()
	p := &Problem{
		Instance: inst,
		Model:    model,
		Horizon:  horizon,
		Tasks:    make([][]timetabling.Interval, len(inst.Jobs)),
		Makespan: model.NewVariable(0, horizon),
	}

	perMachine := make([][]timetabling.Interval, inst.NumMachines)
	for j, job := range inst.Jobs {
		p.Tasks[j] = make([]timetabling.Interval, len(job))
		for k, op := range job {
			if op.Duration > horizon {
				return nil, fmt.Errorf("jobshop: job %d operation %d longer than horizon", j, k)
			}
			iv := model.NewInterval(0, horizon-op.Duration, op.Duration)
			p.Tasks[j][k] = iv
			perMachine[op.Machine] = append(perMachine[op.Machine], iv)
			if k > 0 {
				model.AddPrecedence(p.Tasks[j][k-1].End, iv.Start, 0)
			}
		}
		if len(job) > 0 {
			model.AddPrecedence(p.Tasks[j][len(job)-1].End, p.Makespan, 0)
		}
	}

	for m, intervals := range perMachine {
		if len(intervals) == 0 {
			continue
		}
		demands := make([]timetabling.AffineExpr, len(intervals))
		for i := range demands {
			demands[i] = timetabling.ConstantExpr(1)
		}
		if _, err := model.AddCumulative(intervals, demands, timetabling.ConstantExpr(1)); err != nil {
			return nil, fmt.Errorf("jobshop: machine %d: %w", m, err)
		}
	}
	return p, nil
}

// StartOf returns the scheduled start of operation k of job j in a solution
// produced by the problem's own model. Solutions list decision variables in
// creation order, which Build makes per job then per operation.
func (p *Problem) StartOf(sol timetabling.Solution, j, k int) timetabling.IntegerValue {
	idx := 0
	for jj := 0; jj < j; jj++ {
		idx += len(p.Tasks[jj])
	}
	return sol[idx+k]
}
