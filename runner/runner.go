// Package runner implements the run controller: the
// iteration/invocation loop, warm-up bucketing, RunTracker callbacks, and
// on a failing invocation, scenario minimization.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/concurrit/lincheck/generator"
	"github.com/concurrit/lincheck/internal/telemetry"
	"github.com/concurrit/lincheck/managed"
	"github.com/concurrit/lincheck/report"
	"github.com/concurrit/lincheck/scenario"
	"github.com/concurrit/lincheck/stress"
	"github.com/concurrit/lincheck/verifier"
)

// StrategyKind selects which invocation strategy drives every iteration:
// stress (real goroutines) or managed (single-threaded, interleaving
// search). Merging both into one Config shape (lincheck.Config) requires
// naming that choice somewhere; this is that field, documented as an Open
// Question resolution in DESIGN.md.
type StrategyKind uint8

const (
	StressStrategyKind StrategyKind = iota
	ManagedStrategyKind
)

// RunTracker receives iteration/invocation start and end callbacks.
type RunTracker interface {
	IterationStart(iteration int)
	IterationEnd(iteration int, failure *report.Failure)
	InvocationStart(iteration, invocation int)
	InvocationEnd(iteration, invocation int, result *scenario.ExecutionResult, err error)
}

// CompositeRunTracker chains RunTrackers in declared order.
type CompositeRunTracker []RunTracker

func (c CompositeRunTracker) IterationStart(iteration int) {
	for _, t := range c {
		t.IterationStart(iteration)
	}
}

func (c CompositeRunTracker) IterationEnd(iteration int, failure *report.Failure) {
	for _, t := range c {
		t.IterationEnd(iteration, failure)
	}
}

func (c CompositeRunTracker) InvocationStart(iteration, invocation int) {
	for _, t := range c {
		t.InvocationStart(iteration, invocation)
	}
}

func (c CompositeRunTracker) InvocationEnd(iteration, invocation int, result *scenario.ExecutionResult, err error) {
	for _, t := range c {
		t.InvocationEnd(iteration, invocation, result, err)
	}
}

// Config is the run controller's configuration surface, plus the ambient
// fields (NewVerifier, Strategy, RunTracker, LogLevel's concrete type) the
// Go rendering needs to actually construct its collaborators.
type Config struct {
	Iterations                    int
	InvocationsPerIteration       int
	WarmUpInvocationsPerIteration int

	Threads         int
	ActorsPerThread int
	ActorsBefore    int
	ActorsAfter     int

	TimeoutMs              int
	MinimizeFailedScenario bool

	Strategy StrategyKind

	ExecutionGenerator *generator.Generator
	// NewVerifier constructs a fresh *verifier.Verifier per invocation: its
	// transposition cache is invocation-scoped, so reusing one across
	// invocations would stale-hit; nil defaults to verifier.New.
	NewVerifier             func() *verifier.Verifier
	SequentialSpecification verifier.SequentialSpecification

	CheckObstructionFreedom   bool
	HangingDetectionThreshold int

	CustomScenarios []*scenario.Scenario

	LogLevel telemetry.Level

	RunTracker RunTracker
}

// Runner drives the iteration/invocation loop described by its Config.
type Runner struct {
	cfg    Config
	logger *telemetry.Logger
}

// New validates cfg.CustomScenarios and returns a Runner. It panics on an
// invalid CustomScenario, the same panic-on-invalid-config idiom
// scenario.Scenario.Validate documents for the Config surface as a whole:
// a malformed scenario is a test-declaration error, not a recoverable
// invocation outcome.
func New(cfg Config) *Runner {
	for i, s := range cfg.CustomScenarios {
		if err := s.Validate(); err != nil {
			panic(fmt.Sprintf("runner: invalid custom scenario at index %d: %v", i, err))
		}
	}
	// Config.LogLevel's Go zero value aliases telemetry.LevelEmergency, not
	// telemetry.LevelDisabled (logiface reserves a distinct negative
	// sentinel for "off"); a caller that never sets LogLevel therefore gets
	// Noop, exactly as telemetry.Noop documents, rather than an
	// unconfigured logger writing emergency-only records to stderr.
	logger := telemetry.Noop()
	if cfg.LogLevel > telemetry.LevelEmergency {
		logger = telemetry.New(cfg.LogLevel, nil)
	}
	return &Runner{cfg: cfg, logger: logger}
}

// Stats accounts for every invocation attempted in a run:
// TotalInvocationsCount == InvocationsCount + WarmUpInvocationsCount, and
// RunningTimeNano excludes warm-up time.
type Stats struct {
	InvocationsCount       int
	WarmUpInvocationsCount int
	TotalInvocationsCount  int
	RunningTimeNano        int64
}

// Run executes up to cfg.Iterations iterations, each up to
// cfg.InvocationsPerIteration invocations, stopping at the first failing
// invocation within an iteration (after optionally minimizing it) or when
// ctx is cancelled. Infrastructure and test-declaration errors are not
// representable as a *report.Failure and panic instead, mirroring a
// "thrown immediately, abort the run" semantics.
func (r *Runner) Run(ctx context.Context) (*Stats, *report.Failure) {
	stats := &Stats{}

	for iter := 0; iter < r.cfg.Iterations; iter++ {
		if err := ctx.Err(); err != nil {
			return stats, nil
		}

		s, err := r.nextScenario(iter)
		if err != nil {
			panic(fmt.Sprintf("runner: scenario generation: %v", err))
		}

		r.logger.Debug().Int(`iteration`, iter).Log(`iteration start`)
		if r.cfg.RunTracker != nil {
			r.cfg.RunTracker.IterationStart(iter)
		}

		var failure *report.Failure
		for inv := 0; inv < r.cfg.InvocationsPerIteration; inv++ {
			warmUp := inv < r.cfg.WarmUpInvocationsPerIteration

			r.logger.Trace().Int(`iteration`, iter).Int(`invocation`, inv).Bool(`warm_up`, warmUp).Log(`invocation start`)
			if r.cfg.RunTracker != nil {
				r.cfg.RunTracker.InvocationStart(iter, inv)
			}

			start := time.Now()
			result, invFailure, invErr := r.invoke(s, inv)
			elapsed := time.Since(start)

			if r.cfg.RunTracker != nil {
				r.cfg.RunTracker.InvocationEnd(iter, inv, result, invErr)
			}
			if invErr != nil {
				r.logger.Crit().Int(`iteration`, iter).Int(`invocation`, inv).Err(invErr).Log(`incorrect sequential specification`)
				panic(fmt.Sprintf("runner: %v", invErr))
			}

			stats.TotalInvocationsCount++
			if warmUp {
				stats.WarmUpInvocationsCount++
			} else {
				stats.InvocationsCount++
				stats.RunningTimeNano += elapsed.Nanoseconds()
			}

			r.logger.Trace().Int(`iteration`, iter).Int(`invocation`, inv).Dur(`elapsed`, elapsed).Log(`invocation end`)

			if invFailure != nil {
				failure = invFailure
				r.logger.Notice().Int(`iteration`, iter).Int(`invocation`, inv).Str(`kind`, invFailure.Kind.String()).Log(`invocation failed`)
				break
			}
		}

		if r.cfg.RunTracker != nil {
			r.cfg.RunTracker.IterationEnd(iter, failure)
		}

		if failure != nil {
			if r.cfg.MinimizeFailedScenario {
				r.logger.Info().Int(`iteration`, iter).Log(`minimizing failed scenario`)
				failure = r.minimize(s, failure)
			}
			r.logger.Warning().Int(`iteration`, iter).Str(`kind`, failure.Kind.String()).Log(`run failed`)
			return stats, failure
		}
	}

	return stats, nil
}

func (r *Runner) nextScenario(iteration int) (*scenario.Scenario, error) {
	if len(r.cfg.CustomScenarios) > 0 {
		return r.cfg.CustomScenarios[iteration%len(r.cfg.CustomScenarios)], nil
	}
	return r.cfg.ExecutionGenerator.Generate()
}

// invoke runs one invocation of s and checks it: it returns a non-nil
// *report.Failure for a recoverable invocation outcome that fails
// (deadlock/livelock, obstruction-freedom violation, unexpected exception,
// validation failure, or incorrect results), and a non-nil error only for a
// fatal infrastructure error (an incorrect sequential specification that
// the verifier itself rejects), which the caller must treat as fatal.
func (r *Runner) invoke(s *scenario.Scenario, invocationIndex int) (*scenario.ExecutionResult, *report.Failure, error) {
	instance := r.cfg.SequentialSpecification.New()

	result, runErr := r.runOnce(instance, s, invocationIndex)

	if runErr != nil {
		var dle *stress.DeadlockError
		var ofe *managed.ObstructionFreedomViolation
		switch {
		case errors.As(runErr, &dle):
			return result, &report.Failure{
				Kind: report.DeadlockOrLivelockFailure, Scenario: s, Result: result,
				Trace: report.FromExecutionResult(s, result), Err: runErr, Seed: s.Seed,
				RunID: report.NewRunID(),
			}, nil
		case errors.As(runErr, &ofe):
			return result, &report.Failure{
				Kind: report.ObstructionFreedomViolationFailure, Scenario: s, Result: result,
				Trace: report.FromExecutionResult(s, result), Err: runErr, ObstructionThread: ofe.Thread, Seed: s.Seed,
				RunID: report.NewRunID(),
			}, nil
		default:
			return result, &report.Failure{
				Kind: report.UnexpectedExceptionFailure, Scenario: s, Result: result,
				Trace: report.FromExecutionResult(s, result), Err: runErr, Seed: s.Seed,
				RunID: report.NewRunID(),
			}, nil
		}
	}

	for _, va := range s.Validation {
		if verr := va.Operation(instance); verr != nil {
			return result, &report.Failure{
				Kind: report.ValidationFailureFailure, Scenario: s, Result: result,
				Trace: report.FromExecutionResult(s, result), Err: verr, Seed: s.Seed,
				RunID: report.NewRunID(),
			}, nil
		}
	}

	newVerifier := r.cfg.NewVerifier
	if newVerifier == nil {
		newVerifier = verifier.New
	}
	ok, path, verr := newVerifier().Verify(r.cfg.SequentialSpecification, s, result)
	if verr != nil {
		return result, nil, verr
	}
	if !ok {
		return result, &report.Failure{
			Kind: report.IncorrectResultsFailure, Scenario: s, Result: result,
			Trace: report.FromPath(path), Seed: s.Seed,
			RunID: report.NewRunID(),
		}, nil
	}

	return result, nil, nil
}

func (r *Runner) runOnce(instance any, s *scenario.Scenario, invocationIndex int) (*scenario.ExecutionResult, error) {
	if r.cfg.Strategy == ManagedStrategyKind {
		threshold := 0
		if r.cfg.CheckObstructionFreedom {
			threshold = r.cfg.HangingDetectionThreshold
		}
		mr := managed.NewRunner(threshold)
		mr.SetLogger(r.logger)
		done := make(chan struct{})
		var result *scenario.ExecutionResult
		var err error
		go func() {
			result, err = mr.Execute(instance, s, int64(invocationIndex))
			close(done)
		}()
		if deadline := time.Duration(r.cfg.TimeoutMs) * time.Millisecond; deadline > 0 {
			select {
			case <-done:
			case <-time.After(deadline):
				return nil, &stress.DeadlockError{}
			}
		}
		<-done
		return result, err
	}

	deadline := time.Duration(r.cfg.TimeoutMs) * time.Millisecond
	ctx := context.Background()
	var cancel context.CancelFunc
	if deadline > 0 {
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}
	sr := stress.New(stress.Jitter{})
	sr.SetLogger(r.logger)
	return sr.Execute(ctx, instance, s, deadline)
}
