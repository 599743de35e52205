// Package jobshop loads OR-Library job-shop instances and turns them into
// scheduling models: one chain of tasks per job, one unit-capacity resource
// per machine.
package jobshop

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gitrdm/gotimetable/pkg/timetabling"
)

// Operation is one step of a job: a machine index and a duration.
type Operation struct {
	Machine  int
	Duration timetabling.IntegerValue
}

// Instance is a parsed job-shop problem. Every job visits machines in the
// order of its operation list; machines process one operation at a time.
type Instance struct {
	Name        string
	NumMachines int
	Jobs        [][]Operation
}

// Parse reads an instance in the OR-Library format: a counts line
// "jobs machines", then one line per job holding machine/duration pairs.
// Lines starting with '#' and blank lines are skipped.
func Parse(r io.Reader) (*Instance, error) {
	sc := bufio.NewScanner(r)
	fields, err := nextDataLine(sc)
	if err != nil {
		return nil, fmt.Errorf("jobshop: missing counts line: %w", err)
	}
	if len(fields) != 2 {
		return nil, fmt.Errorf("jobshop: counts line has %d fields, want 2", len(fields))
	}
	numJobs, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, fmt.Errorf("jobshop: bad job count %q", fields[0])
	}
	numMachines, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, fmt.Errorf("jobshop: bad machine count %q", fields[1])
	}
	if numJobs <= 0 || numMachines <= 0 {
		return nil, fmt.Errorf("jobshop: nonpositive counts %d x %d", numJobs, numMachines)
	}

	inst := &Instance{
		NumMachines: numMachines,
		Jobs:        make([][]Operation, numJobs),
	}
	for j := 0; j < numJobs; j++ {
		fields, err := nextDataLine(sc)
		if err != nil {
			return nil, fmt.Errorf("jobshop: job %d: %w", j, err)
		}
		if len(fields)%2 != 0 {
			return nil, fmt.Errorf("jobshop: job %d has %d fields, want machine/duration pairs", j, len(fields))
		}
		ops := make([]Operation, 0, len(fields)/2)
		for k := 0; k+1 < len(fields); k += 2 {
			machine, err := strconv.Atoi(fields[k])
			if err != nil {
				return nil, fmt.Errorf("jobshop: job %d: bad machine %q", j, fields[k])
			}
			duration, err := strconv.ParseInt(fields[k+1], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("jobshop: job %d: bad duration %q", j, fields[k+1])
			}
			if machine < 0 || machine >= numMachines {
				return nil, fmt.Errorf("jobshop: job %d references machine %d of %d", j, machine, numMachines)
			}
			if duration < 0 {
				return nil, fmt.Errorf("jobshop: job %d has negative duration %d", j, duration)
			}
			ops = append(ops, Operation{Machine: machine, Duration: timetabling.IntegerValue(duration)})
		}
		inst.Jobs[j] = ops
	}
	return inst, nil
}

// nextDataLine returns the fields of the next non-comment, non-blank line.
func nextDataLine(sc *bufio.Scanner) ([]string, error) {
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return strings.Fields(line), nil
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return nil, io.ErrUnexpectedEOF
}

// ComputeHorizon returns a makespan upper bound: the sum of all durations,
// the length of the schedule that runs every operation back to back.
func ComputeHorizon(inst *Instance) timetabling.IntegerValue {
	var total timetabling.IntegerValue
	for _, job := range inst.Jobs {
		for _, op := range job {
			total += op.Duration
		}
	}
	return total
}

// String renders the instance one job per line, used by the golden test.
func (inst *Instance) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "jobs=%d machines=%d horizon=%d\n", len(inst.Jobs), inst.NumMachines, ComputeHorizon(inst))
	for j, job := range inst.Jobs {
		fmt.Fprintf(&b, "job %d:", j)
		for _, op := range job {
			fmt.Fprintf(&b, " m%d/%d", op.Machine, op.Duration)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
