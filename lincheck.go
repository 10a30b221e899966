// Package lincheck is a facade: a single Config struct and a Check entry
// point in the style of a Go testing helper, wiring scenario generation,
// the stress/managed strategies, the verifier and the run controller
// together without requiring callers to import each subpackage directly.
package lincheck

import (
	"context"
	"fmt"
	"strings"

	"github.com/concurrit/lincheck/generator"
	"github.com/concurrit/lincheck/internal/prng"
	"github.com/concurrit/lincheck/internal/telemetry"
	"github.com/concurrit/lincheck/report"
	"github.com/concurrit/lincheck/runner"
	"github.com/concurrit/lincheck/scenario"
	"github.com/concurrit/lincheck/verifier"
)

// Strategy selects the invocation strategy Check drives every iteration
// with.
type Strategy = runner.StrategyKind

const (
	StressStrategy  = runner.StressStrategyKind
	ManagedStrategy = runner.ManagedStrategyKind
)

// Config is the top-level configuration surface, plus the templates a
// Generator-driven run needs when CustomScenarios is empty.
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

	Strategy Strategy

	// ActorTemplates and Seed build the default ExecutionGenerator when
	// CustomScenarios is empty; ignored otherwise.
	ActorTemplates []generator.ActorTemplate
	Seed           uint64

	SequentialSpecification verifier.SequentialSpecification

	CheckObstructionFreedom   bool
	HangingDetectionThreshold int

	CustomScenarios []*scenario.Scenario

	LogLevel telemetry.Level

	RunTracker runner.RunTracker
}

// TestingT is the minimal subset of *testing.T Check needs, so callers can
// supply any compatible test-framework handle without this package
// importing "testing" itself.
type TestingT interface {
	Helper()
	Fatalf(format string, args ...any)
}

// Check runs cfg's configured scenarios and fails t via t.Fatalf if a
// linearizability (or obstruction-freedom, deadlock, validation) failure is
// found, rendering the failure's trace into the failure message.
func Check(t TestingT, cfg Config) {
	t.Helper()
	failure, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("lincheck: %v", err)
		return
	}
	if failure != nil {
		var b strings.Builder
		_ = failure.Render(&b)
		t.Fatalf("%s", b.String())
	}
}

// Run executes cfg directly, for callers that want the *report.Failure
// itself rather than a testing.T-style fatal assertion. The run's
// *runner.Stats are not returned.
func Run(ctx context.Context, cfg Config) (*report.Failure, error) {
	rcfg := runner.Config{
		Iterations:                    cfg.Iterations,
		InvocationsPerIteration:       cfg.InvocationsPerIteration,
		WarmUpInvocationsPerIteration: cfg.WarmUpInvocationsPerIteration,
		Threads:                       cfg.Threads,
		ActorsPerThread:               cfg.ActorsPerThread,
		ActorsBefore:                  cfg.ActorsBefore,
		ActorsAfter:                   cfg.ActorsAfter,
		TimeoutMs:                     cfg.TimeoutMs,
		MinimizeFailedScenario:        cfg.MinimizeFailedScenario,
		Strategy:                      cfg.Strategy,
		SequentialSpecification:       cfg.SequentialSpecification,
		CheckObstructionFreedom:       cfg.CheckObstructionFreedom,
		HangingDetectionThreshold:     cfg.HangingDetectionThreshold,
		CustomScenarios:               cfg.CustomScenarios,
		LogLevel:                      cfg.LogLevel,
		RunTracker:                    cfg.RunTracker,
	}

	if len(cfg.CustomScenarios) == 0 {
		if len(cfg.ActorTemplates) == 0 {
			return nil, fmt.Errorf("lincheck: Config needs either CustomScenarios or ActorTemplates")
		}
		params := generator.IterationParams{
			Threads:         cfg.Threads,
			ActorsPerThread: cfg.ActorsPerThread,
			ActorsBefore:    cfg.ActorsBefore,
			ActorsAfter:     cfg.ActorsAfter,
		}
		rcfg.ExecutionGenerator = generator.New(cfg.ActorTemplates, params, prng.New(cfg.Seed))
	}

	r := runner.New(rcfg)
	_, failure := r.Run(ctx)
	return failure, nil
}
