// Package scenario implements the core data model: Actor,
// Scenario, Result (see result.go) and ExecutionResult with per-thread
// vector clocks.
package scenario

import "fmt"

// ScenarioError is a test-declaration error: it is raised for a malformed
// Scenario and always aborts the run immediately, never folded into a
// verification failure.
type ScenarioError struct {
	Reason string
}

func (e *ScenarioError) Error() string { return "lincheck: invalid scenario: " + e.Reason }

// ValidationActor is the optional zero-parameter actor invoked on the test
// instance once the whole scenario, post included, has run; it is not
// invoked between init and the parallel part. It is represented separately from
// Actor because it may not declare parameters and its failure is reported
// specially (report.ValidationFailureFailure).
type ValidationActor struct {
	Name      OperationID
	Operation func(instance any) error
}

// Scenario is the tuple (init, parallel, post, validation).
type Scenario struct {
	// Init is executed sequentially before the parallel part.
	Init []Actor
	// Parallel holds one ordered actor sequence per thread. len(Parallel)
	// is the thread count, always >= 1 for a non-empty scenario.
	Parallel [][]Actor
	// Post is executed sequentially after the parallel part.
	Post []Actor
	// Validation actors are invoked on the test instance once, after post;
	// they are not invoked after init.
	Validation []ValidationActor

	// Seed is the deterministic seed this scenario (if generated) was drawn
	// from; used to derive per-invocation PRNG streams in stress and
	// managed. A custom, user-authored scenario may leave this zero.
	Seed uint64
}

// Threads returns the parallel thread count.
func (s *Scenario) Threads() int { return len(s.Parallel) }

// Validate checks the well-formedness invariants:
//
//  1. no RunOnce actor appears twice across the whole scenario;
//  2. if any parallel actor IsSuspendable, Init and Post must both be empty;
//  3. a NonParallel group's actors occupy at most one parallel thread.
//
// It returns a *ScenarioError rather than panicking, so callers (generator,
// or a user constructing a custom scenario) can decide how to surface it;
// runner.New panics on an invalid CustomScenario, matching the
// panic-on-invalid-config idiom used for Config as a whole.
func (s *Scenario) Validate() error {
	seenRunOnce := make(map[OperationID]bool)
	checkRunOnce := func(a Actor) error {
		if a.RunOnce {
			if seenRunOnce[a.Operation] {
				return &ScenarioError{Reason: fmt.Sprintf("runOnce actor %q appears more than once", a.Operation)}
			}
			seenRunOnce[a.Operation] = true
		}
		return nil
	}

	anySuspendable := false
	groupThreads := make(map[string]int)

	for _, a := range s.Init {
		if err := checkRunOnce(a); err != nil {
			return err
		}
	}
	for t, thread := range s.Parallel {
		groupSeenThisThread := make(map[string]bool)
		for _, a := range thread {
			if err := checkRunOnce(a); err != nil {
				return err
			}
			if a.IsSuspendable {
				anySuspendable = true
			}
			if a.Group.NonParallel && a.Group.Name != "" && !groupSeenThisThread[a.Group.Name] {
				groupSeenThisThread[a.Group.Name] = true
				groupThreads[a.Group.Name]++
				if groupThreads[a.Group.Name] > 1 {
					return &ScenarioError{Reason: fmt.Sprintf("nonParallel group %q spans more than one thread (thread %d)", a.Group.Name, t)}
				}
			}
		}
	}
	for _, a := range s.Post {
		if err := checkRunOnce(a); err != nil {
			return err
		}
	}

	if anySuspendable && (len(s.Init) != 0 || len(s.Post) != 0) {
		return &ScenarioError{Reason: "init and post must be empty when any parallel actor is suspendable"}
	}

	for _, v := range s.Validation {
		if v.Operation == nil {
			return &ScenarioError{Reason: fmt.Sprintf("validation actor %q has a nil operation", v.Name)}
		}
	}

	return nil
}

// Clock is a fixed-length vector clock, one entry per parallel thread,
// recording for the actor it is attached to the position just before that
// actor of every other thread's execution ("happens-before-start"
// witness).
type Clock []int

// HappensBeforeStart reports whether the actor at position otherPos on
// otherThread had already completed when the actor this clock belongs to
// started, i.e. whether otherPos < c[otherThread].
func (c Clock) HappensBeforeStart(otherThread, otherPos int) bool {
	if otherThread < 0 || otherThread >= len(c) {
		return false
	}
	return otherPos < c[otherThread]
}

// Clone returns an independent copy of c.
func (c Clock) Clone() Clock {
	out := make(Clock, len(c))
	copy(out, c)
	return out
}

// ResultWithClock pairs an observed Result with the Clock recorded for it.
// Clock is nil for actors in Init/Post, which carry no clock.
type ResultWithClock struct {
	Result Result
	Clock  Clock
}

// ExecutionResult is the per-thread sequence of observed results produced by
// one invocation of a Scenario.
type ExecutionResult struct {
	InitResults       []Result
	ParallelResults   [][]ResultWithClock
	PostResults       []Result
	ValidationFailure error
}

// Valid checks the ExecutionResult's internal clock invariants: clock
// entries are monotone along each thread, and clock[i] == the zero-based
// position of this actor in thread i (the number of thread i's actors
// before it) for i == owning thread.
func (r *ExecutionResult) Valid() bool {
	for t, thread := range r.ParallelResults {
		var prev Clock
		for pos, rc := range thread {
			if rc.Clock == nil {
				return false
			}
			if len(rc.Clock) != len(r.ParallelResults) {
				return false
			}
			if rc.Clock[t] != pos {
				return false
			}
			if prev != nil {
				for i, v := range rc.Clock {
					if v < prev[i] {
						return false
					}
				}
			}
			prev = rc.Clock
		}
	}
	return true
}
