// Package runner implements the multi-run execution orchestrator. It
// drives N isolated invocations of the target suite, reassembles
// per-test outcome sequences in run-index order, and records failed
// runs as evidence rather than dropping them.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/flakeseer/flakeseer/internal/logging"
	"github.com/flakeseer/flakeseer/internal/model"
	"github.com/flakeseer/flakeseer/internal/workspace"
)

// Config holds the orchestrator configuration.
type Config struct {
	Target         string
	Runs           int
	TimeoutPerRun  time.Duration
	SessionTimeout time.Duration
	Parallel       int
	Adapter        model.Adapter
	Executor       Executor
	Session        *workspace.Session
}

// Result holds the collected outcome sequences of one session.
type Result struct {
	// RunResults is indexed by run_index-1 and always has one entry per
	// configured run; failed runs carry Error.
	RunResults []*model.RunResult
	// Sequences maps each observed test identity to its complete,
	// run-index-ordered outcome sequence. One entry per run per test;
	// runs that confirmed completion never leave gaps.
	Sequences map[string]model.OutcomeSequence
	// Warnings lists recoverable per-run problems.
	Warnings     []string
	RunsExecuted int
}

// Run executes the configured number of invocations and aggregates
// their reports. Per-run failures degrade to synthetic error outcomes;
// only a session that produces no readable report at all fails.
func Run(ctx context.Context, cfg *Config) (*Result, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}

	log := logging.New("runner")

	if cfg.SessionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.SessionTimeout)
		defer cancel()
	}

	results := make([]*model.RunResult, cfg.Runs)

	g := &errgroup.Group{}
	g.SetLimit(cfg.Parallel)

	for i := 1; i <= cfg.Runs; i++ {
		i := i
		g.Go(func() error {
			results[i-1] = executeRun(ctx, cfg, i, log)
			return nil
		})
	}
	_ = g.Wait() // closures never return errors; failures live in results

	readable := 0
	var runErrs *multierror.Error
	for _, rr := range results {
		if rr.Error == "" {
			readable++
		} else {
			runErrs = multierror.Append(runErrs, fmt.Errorf("run %d: %s", rr.RunIndex, rr.Error))
		}
	}
	if readable == 0 {
		return nil, fmt.Errorf("all %d runs failed to produce a readable report: %w", cfg.Runs, runErrs.ErrorOrNil())
	}

	res := &Result{
		RunResults:   results,
		Sequences:    assemble(results),
		RunsExecuted: len(results),
	}
	if runErrs != nil {
		for _, err := range runErrs.Errors {
			res.Warnings = append(res.Warnings, err.Error())
		}
	}

	log.Info("session complete",
		"runs", cfg.Runs,
		"readable", readable,
		"tests", len(res.Sequences))

	return res, nil
}

func validate(cfg *Config) error {
	if cfg.Runs < 1 {
		return fmt.Errorf("runs must be >= 1, got %d", cfg.Runs)
	}
	if cfg.TimeoutPerRun <= 0 {
		return fmt.Errorf("per-run timeout must be positive, got %s", cfg.TimeoutPerRun)
	}
	if cfg.Parallel < 1 {
		cfg.Parallel = 1
	}
	if cfg.Adapter == nil {
		return fmt.Errorf("adapter is required")
	}
	if cfg.Executor == nil {
		return fmt.Errorf("executor is required")
	}
	if cfg.Session == nil {
		return fmt.Errorf("session workspace is required")
	}
	// Package patterns like ./... name a set of packages, not a path.
	if !strings.Contains(cfg.Target, "...") {
		if _, err := os.Stat(cfg.Target); err != nil {
			return fmt.Errorf("target %s: %w", cfg.Target, err)
		}
	}
	return nil
}

// executeRun performs one isolated invocation. Every failure mode maps
// to a RunResult with Error set; nothing is silently omitted.
func executeRun(ctx context.Context, cfg *Config, runIndex int, log *slog.Logger) *model.RunResult {
	fail := func(err error) *model.RunResult {
		log.Warn("run failed", "run", runIndex, "error", err)
		return &model.RunResult{RunIndex: runIndex, Error: err.Error()}
	}

	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("session cancelled before run started: %w", err))
	}

	runDir, err := cfg.Session.RunDir(runIndex)
	if err != nil {
		return fail(err)
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.TimeoutPerRun)
	defer cancel()

	log.Debug("run starting", "run", runIndex, "dir", runDir)

	cmd := cfg.Adapter.BuildCommand(runDir, cfg.Target)
	if len(cmd) == 0 {
		return fail(fmt.Errorf("adapter returned empty command"))
	}

	if err := cfg.Executor.Execute(runCtx, runDir, cmd); err != nil {
		return fail(err)
	}

	artifact := cfg.Adapter.ExpectedArtifact(runDir)
	if _, err := os.Stat(artifact); os.IsNotExist(err) {
		return fail(fmt.Errorf("expected artifact not found: %s", artifact))
	}

	result, err := cfg.Adapter.Parse(runDir)
	if err != nil {
		return fail(fmt.Errorf("parse run results: %w", err))
	}
	result.RunIndex = runIndex

	log.Debug("run finished", "run", runIndex, "tests", len(result.Tests))
	return result
}

// assemble reassembles per-test outcome sequences in run-index order.
// A test absent from a readable run's report becomes a synthetic error
// outcome, never a pass; a failed run contributes a synthetic error to
// every sequence.
func assemble(results []*model.RunResult) map[string]model.OutcomeSequence {
	ids := make(map[string]bool)
	for _, rr := range results {
		for _, tr := range rr.Tests {
			ids[tr.TestID] = true
		}
	}

	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	sequences := make(map[string]model.OutcomeSequence, len(ids))
	for _, rr := range results {
		byID := make(map[string]model.TestResult, len(rr.Tests))
		for _, tr := range rr.Tests {
			byID[tr.TestID] = tr
		}

		for _, id := range sorted {
			out := model.RunOutcome{TestID: id, RunIndex: rr.RunIndex}
			switch tr, ok := byID[id]; {
			case rr.Error != "":
				out.Outcome = model.OutcomeError
				out.FailureMessage = "run failed: " + rr.Error
			case ok:
				out.Outcome = tr.Outcome
				out.Duration = tr.Duration
				out.FailureMessage = tr.FailureMessage
			default:
				out.Outcome = model.OutcomeError
				out.FailureMessage = "absent from run report"
			}
			sequences[id] = append(sequences[id], out)
		}
	}

	return sequences
}
