package managed

import (
	"sync"

	"github.com/concurrit/lincheck/internal/telemetry"
	"github.com/concurrit/lincheck/oracle"
	"github.com/concurrit/lincheck/scenario"
)

// Runner bridges a scenario.Scenario onto Strategy: it wraps every parallel
// actor application in a BeforeMethodCall/OnMethodCall* pair so Strategy's
// cooperative scheduler controls the interleaving, and records the
// ResultWithClock sequence the verifier expects (the happens-before-start
// vector clocks), exactly as stress.Runner does for real parallelism.
//
// Method-call granularity is the only switch-point granularity available
// without a bytecode-instrumentation layer: a real field/array-access
// switch-point would require instrumenting the sequential specification's
// own compiled code, which this module does not do. This is documented as
// a scope boundary in DESIGN.md, not silently assumed.
type Runner struct {
	hangingThreshold int
	logger           *telemetry.Logger
}

// NewRunner builds a Runner. hangingThreshold is forwarded to Strategy (0
// disables obstruction-freedom checking).
func NewRunner(hangingThreshold int) *Runner {
	return &Runner{hangingThreshold: hangingThreshold, logger: telemetry.Noop()}
}

// SetLogger replaces the Runner's logger, forwarded to the Strategy it
// constructs in Execute.
func (r *Runner) SetLogger(logger *telemetry.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Execute runs s's init sequentially, its parallel part under a managed
// Strategy driven by a RandomSearchDriver seeded from (s.Seed,
// invocationIndex), and its post sequentially.
func (r *Runner) Execute(instance any, s *scenario.Scenario, invocationIndex int64) (*scenario.ExecutionResult, error) {
	o := oracle.New(instance)
	result := &scenario.ExecutionResult{ParallelResults: make([][]scenario.ResultWithClock, s.Threads())}

	for _, a := range s.Init {
		res, err := applySync(o, instance, a)
		if err != nil {
			return result, err
		}
		result.InitResults = append(result.InitResults, res)
	}

	threads := s.Threads()
	var progMu sync.Mutex
	completed := make([]int, threads)

	var pendingMu sync.Mutex
	pending := make(map[scenario.ActorID]*oracle.Continuation)
	resolved := make(map[scenario.ActorID]scenario.Result)

	driver := NewRandomSearchDriver(s.Seed, invocationIndex)
	strategy := NewStrategy(threads, driver, r.hangingThreshold, s.Seed)
	strategy.SetLogger(r.logger)

	bodies := make([]func(tracker EventTracker) error, threads)
	for t := range bodies {
		t := t
		bodies[t] = func(tracker EventTracker) error {
			for p, a := range s.Parallel[t] {
				id := scenario.ActorID{Thread: t, Index: p}
				tracker.BeforeMethodCall(instance, "", string(a.Operation), 0, a.Args)

				progMu.Lock()
				clock := append(scenario.Clock(nil), completed...)
				progMu.Unlock()
				clock[t] = p

				res, err := r.applyOne(o, instance, a, id, tracker, &pendingMu, pending, resolved)
				if err != nil {
					tracker.OnMethodCallThrewException(err)
					return err
				}
				tracker.OnMethodCallFinishedSuccessfully(res.ValuePayload())

				progMu.Lock()
				completed[t]++
				progMu.Unlock()
				pendingMu.Lock()
				result.ParallelResults[t] = append(result.ParallelResults[t], scenario.ResultWithClock{Result: res, Clock: clock})
				toWake := drainResolved(pending, resolved)
				pendingMu.Unlock()
				// Unpark (and the switch-point it triggers) must run with
				// pendingMu released: it may hand the gate straight to the
				// woken thread, which itself needs pendingMu to collect its
				// resolved value, and holding the lock across that handoff
				// would deadlock the two goroutines against each other.
				for _, wt := range toWake {
					tracker.Unpark(wt, 0)
				}
			}
			return nil
		}
	}

	runErr := strategy.Run(bodies)

	for _, a := range s.Post {
		res, err := applySync(o, instance, a)
		if err != nil {
			return result, err
		}
		result.PostResults = append(result.PostResults, res)
	}

	return result, runErr
}

// applyOne dispatches a (possibly suspendable) actor, parking the calling
// thread view when it suspends; tracker.Park both yields to another ready
// thread and blocks id's goroutine on its own gate, so it is only resumed
// once some other actor's application has resolved the pending
// continuation and called tracker.Unpark on its behalf (see drainResolved).
func (r *Runner) applyOne(o *oracle.Oracle, instance any, a scenario.Actor, id scenario.ActorID, tracker EventTracker, pendingMu *sync.Mutex, pending map[scenario.ActorID]*oracle.Continuation, resolved map[scenario.ActorID]scenario.Result) (scenario.Result, error) {
	if !a.IsSuspendable {
		return applySync(o, instance, a)
	}

	res, cont, err := o.ApplySuspendable(instance, a)
	if err != nil {
		return scenario.Result{}, err
	}
	if cont == nil {
		return res, nil
	}

	pendingMu.Lock()
	pending[id] = cont
	pendingMu.Unlock()

	tracker.Park(0)

	// drainResolved stores the delivered value in resolved[id] (guarded by
	// pendingMu) before it ever calls tracker.Unpark(id.Thread, ...), so by
	// the time Park returns here the value is already there to collect.
	pendingMu.Lock()
	v, ok := resolved[id]
	if ok {
		delete(resolved, id)
	}
	pendingMu.Unlock()
	if ok {
		return v, nil
	}
	// A thread should only ever be woken via drainResolved once its
	// continuation is resolved; this fallback only guards against a
	// scheduling bug, not an expected path.
	return cont.Await(), nil
}

// drainResolved checks every pending continuation for a side-effect
// resolution from the actor just applied, stashing each newly-resolved
// value in resolved and returning the thread ids the caller must Unpark.
// Must be called with pendingMu held; performs no tracker calls itself.
func drainResolved(pending map[scenario.ActorID]*oracle.Continuation, resolved map[scenario.ActorID]scenario.Result) []int {
	var toWake []int
	for id, cont := range pending {
		if v, ok := cont.TryAwait(); ok {
			delete(pending, id)
			resolved[id] = v
			toWake = append(toWake, id.Thread)
		}
	}
	return toWake
}

func applySync(o *oracle.Oracle, instance any, a scenario.Actor) (scenario.Result, error) {
	return o.Apply(instance, a)
}
