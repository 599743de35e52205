// Command jobshop solves OR-Library job-shop instances with the time-tabling
// engine: it minimizes the makespan with a portfolio of search workers, or
// enumerates feasible schedules when --max-solutions is set.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gitrdm/gotimetable/internal/jobshop"
	"github.com/gitrdm/gotimetable/internal/portfolio"
	"github.com/gitrdm/gotimetable/pkg/timetabling"
)

// options are the effective settings after merging the params file, the
// JOBSHOP_ environment, and the command-line flags.
type options struct {
	input        string
	params       string
	horizon      int64
	workers      int
	maxSolutions int
	verbose      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "jobshop",
		Short:        "Solve job-shop scheduling instances",
		Long:         "Reads an OR-Library job-shop instance and minimizes its makespan,\nor enumerates feasible schedules when --max-solutions is set.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadParams(cmd, opts); err != nil {
				return err
			}
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "instance file (required)")
	cmd.Flags().StringVar(&opts.params, "params", "", "yaml or json params file")
	cmd.Flags().Int64Var(&opts.horizon, "horizon", 0, "scheduling horizon, 0 computes one from the instance")
	cmd.Flags().IntVar(&opts.workers, "workers", 1, "parallel search workers")
	cmd.Flags().IntVar(&opts.maxSolutions, "max-solutions", 0, "enumerate up to N feasible schedules instead of optimizing")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// loadParams merges the optional params file and JOBSHOP_ environment
// variables under the flag values. Explicit flags win.
func loadParams(cmd *cobra.Command, opts *options) error {
	k := koanf.New(".")
	if opts.params != "" {
		parser, err := paramsParser(opts.params)
		if err != nil {
			return err
		}
		if err := k.Load(file.Provider(opts.params), parser); err != nil {
			return fmt.Errorf("params file %s: %w", opts.params, err)
		}
	}
	if err := k.Load(env.Provider("JOBSHOP_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "JOBSHOP_")), "_", "-")
	}), nil); err != nil {
		return fmt.Errorf("environment: %w", err)
	}

	if !cmd.Flags().Changed("horizon") && k.Exists("horizon") {
		opts.horizon = k.Int64("horizon")
	}
	if !cmd.Flags().Changed("workers") && k.Exists("workers") {
		opts.workers = k.Int("workers")
	}
	if !cmd.Flags().Changed("max-solutions") && k.Exists("max-solutions") {
		opts.maxSolutions = k.Int("max-solutions")
	}
	if !cmd.Flags().Changed("verbose") && k.Exists("verbose") {
		opts.verbose = k.Bool("verbose")
	}
	return nil
}

func paramsParser(path string) (koanf.Parser, error) {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("params file %s: unsupported extension", path)
	}
}

func run(ctx context.Context, opts *options) error {
	logger := newLogger(opts.verbose)

	f, err := os.Open(opts.input)
	if err != nil {
		return err
	}
	inst, err := jobshop.Parse(f)
	f.Close()
	if err != nil {
		return err
	}
	inst.Name = filepath.Base(opts.input)

	horizon := timetabling.IntegerValue(opts.horizon)
	if horizon <= 0 {
		horizon = jobshop.ComputeHorizon(inst)
	}
	logger.Info().
		Str("instance", inst.Name).
		Int("jobs", len(inst.Jobs)).
		Int("machines", inst.NumMachines).
		Int64("horizon", int64(horizon)).
		Msg("instance loaded")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.maxSolutions > 0 {
		return enumerate(ctx, logger, inst, horizon, opts.maxSolutions)
	}
	return minimize(ctx, logger, inst, horizon, opts.workers)
}

func minimize(ctx context.Context, logger zerolog.Logger, inst *jobshop.Instance, horizon timetabling.IntegerValue, workers int) error {
	factory := func(worker int) (*timetabling.Search, timetabling.AffineExpr, error) {
		p, err := jobshop.Build(inst, horizon)
		if err != nil {
			return nil, timetabling.AffineExpr{}, err
		}
		return timetabling.NewSearch(p.Model), p.Makespan, nil
	}

	pool := portfolio.NewPool(workers)
	pool.SetLogger(logger)
	started := time.Now()
	res, err := pool.Minimize(ctx, factory)
	if err != nil {
		return err
	}
	if res == nil {
		logger.Warn().Msg("instance is infeasible")
		return nil
	}
	logger.Info().
		Int64("makespan", int64(res.Objective)).
		Int("worker", res.Worker).
		Int64("decisions", res.Stats.Decisions).
		Int64("conflicts", res.Stats.Conflicts).
		Dur("elapsed", time.Since(started)).
		Msg("optimal schedule found")

	// Rebuild once more to map solution slots back to operations.
	p, err := jobshop.Build(inst, horizon)
	if err != nil {
		return err
	}
	printSchedule(p, res.Solution)
	return nil
}

func enumerate(ctx context.Context, logger zerolog.Logger, inst *jobshop.Instance, horizon timetabling.IntegerValue, limit int) error {
	p, err := jobshop.Build(inst, horizon)
	if err != nil {
		return err
	}
	s := timetabling.NewSearch(p.Model)
	sols, err := s.SolveN(ctx, limit)
	if err != nil {
		return err
	}
	logger.Info().Int("solutions", len(sols)).Msg("enumeration finished")
	for i, sol := range sols {
		fmt.Printf("--- schedule %d ---\n", i+1)
		printSchedule(p, sol)
	}
	return nil
}

func printSchedule(p *jobshop.Problem, sol timetabling.Solution) {
	for j, job := range p.Instance.Jobs {
		for k, op := range job {
			start := p.StartOf(sol, j, k)
			fmt.Printf("job %d op %d machine %d: [%d, %d)\n",
				j, k, op.Machine, start, start+op.Duration)
		}
	}
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().Logger()
}
