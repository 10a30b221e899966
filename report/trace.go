package report

import (
	"github.com/concurrit/lincheck/scenario"
	"github.com/concurrit/lincheck/verifier"
)

// FromPath builds a Trace from a verifier.Path: the closest linearization
// the search found (or failed to complete), in the order the verifier
// visited it.
func FromPath(path *verifier.Path) *Trace {
	if path == nil {
		return &Trace{RunID: NewRunID()}
	}
	t := &Trace{RunID: NewRunID(), Events: make([]TraceEvent, 0, len(path.Steps))}
	for _, step := range path.Steps {
		t.Events = append(t.Events, TraceEvent{Thread: step.Actor.Thread, Actor: step.Actor})
	}
	return t
}

// FromExecutionResult builds a Trace from the raw per-thread order an
// invocation actually observed, for failures where no linearization attempt
// exists (e.g. DeadlockOrLivelockFailure): init, then the parallel actors
// thread by thread, each thread in program order (not interleaved by
// clock), then post.
func FromExecutionResult(s *scenario.Scenario, r *scenario.ExecutionResult) *Trace {
	t := &Trace{RunID: NewRunID()}
	if r == nil {
		return t
	}
	for i, res := range r.InitResults {
		t.Events = append(t.Events, TraceEvent{
			Thread: scenario.ThreadInit,
			Actor:  scenario.ActorID{Thread: scenario.ThreadInit, Index: i},
			Result: res,
		})
	}
	for thread, results := range r.ParallelResults {
		for pos, rc := range results {
			t.Events = append(t.Events, TraceEvent{
				Thread: thread,
				Actor:  scenario.ActorID{Thread: thread, Index: pos},
				Result: rc.Result,
			})
		}
	}
	for i, res := range r.PostResults {
		t.Events = append(t.Events, TraceEvent{
			Thread: scenario.ThreadPost,
			Actor:  scenario.ActorID{Thread: scenario.ThreadPost, Index: i},
			Result: res,
		})
	}
	return t
}
