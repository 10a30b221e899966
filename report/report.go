// Package report implements the failure reporting surface:
// a tagged union of the distinct ways a checked scenario can fail, plus a
// human-readable interleaving renderer for the trace attached to each.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/concurrit/lincheck/internal/codeloc"
	"github.com/concurrit/lincheck/scenario"
)

// FailureKind tags the closed set of Failure variants.
type FailureKind uint8

const (
	// IncorrectResultsFailure means the verifier exhausted its search
	// without finding a linearization of the observed results.
	IncorrectResultsFailure FailureKind = iota
	// DeadlockOrLivelockFailure means an invocation did not complete within
	// its deadline, either from a genuine deadlock or an unreasonably slow
	// schedule.
	DeadlockOrLivelockFailure
	// ObstructionFreedomViolationFailure means the managed strategy
	// observed one thread starving its peers past the configured
	// threshold.
	ObstructionFreedomViolationFailure
	// UnexpectedExceptionFailure means an actor threw an error its
	// HandledExceptions did not declare.
	UnexpectedExceptionFailure
	// ValidationFailureFailure means a scenario.ValidationActor returned a
	// non-nil error.
	ValidationFailureFailure
)

func (k FailureKind) String() string {
	switch k {
	case IncorrectResultsFailure:
		return "incorrect results"
	case DeadlockOrLivelockFailure:
		return "deadlock or livelock"
	case ObstructionFreedomViolationFailure:
		return "obstruction-freedom violation"
	case UnexpectedExceptionFailure:
		return "unexpected exception"
	case ValidationFailureFailure:
		return "validation failure"
	default:
		return "unknown failure"
	}
}

// TraceEvent is one entry of a Trace: an actor application, labeled with the
// thread that ran it and, when known, the source location it occurred at.
type TraceEvent struct {
	Thread int
	Actor  scenario.ActorID
	Result scenario.Result
	Loc    codeloc.Location
	HasLoc bool
}

// Trace is an ordered interleaving of TraceEvents, either the closest
// linearization attempt the verifier found, or the raw per-thread order an
// invocation actually observed.
type Trace struct {
	// RunID stamps this trace with a unique identifier, so a trace pulled
	// out of logs can be correlated back to the invocation that produced
	// it even after a managed-strategy run interleaves many threads'
	// output.
	RunID  string
	Events []TraceEvent
}

// Render writes a human-readable rendering of t to w, one event per line
// prefixed by thread id
func (t *Trace) Render(w io.Writer) error {
	for _, e := range t.Events {
		label := fmt.Sprintf("thread %d", e.Thread)
		if e.Actor.Thread == scenario.ThreadInit {
			label = "init"
		} else if e.Actor.Thread == scenario.ThreadPost {
			label = "post"
		}
		line := fmt.Sprintf("[%s] %s -> %s", label, e.Actor, e.Result)
		if e.HasLoc {
			line += " (" + e.Loc.String() + ")"
		}
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// Failure is the tagged union reported when a checked scenario fails.
type Failure struct {
	Kind FailureKind

	// Scenario is the (possibly minimized by the runner) scenario
	// that reproduced this failure.
	Scenario *scenario.Scenario
	// Result is the observed ExecutionResult for Scenario, when one was
	// captured (not always the case for DeadlockOrLivelockFailure).
	Result *scenario.ExecutionResult
	// Trace is the best trace available to explain Failure: the verifier's
	// closest-attempted linearization for IncorrectResultsFailure, or the
	// raw observed interleaving otherwise.
	Trace *Trace

	// Err carries the underlying error for UnexpectedExceptionFailure,
	// ValidationFailureFailure and DeadlockOrLivelockFailure (a
	// *stress.DeadlockError in the last case).
	Err error
	// ObstructionThread carries the starving thread id for
	// ObstructionFreedomViolationFailure.
	ObstructionThread int

	// Seed is the top-level scenario seed that reproduced this failure,
	// suitable for reproduce.Settings.
	Seed uint64

	// RunID uniquely identifies the invocation that produced this failure,
	// so it can be cross-referenced against logs or a managed-strategy
	// Trace's own RunID.
	RunID string
}

// NewRunID mints a fresh run identifier. runner stamps one into every
// Failure and managed-strategy Trace it produces.
func NewRunID() string { return uuid.New().String() }

func (f *Failure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "lincheck: %s (run %s, seed %d)", f.Kind, f.RunID, f.Seed)
	if f.Err != nil {
		fmt.Fprintf(&b, ": %v", f.Err)
	}
	return b.String()
}

// Render writes a full human-readable report for f to w: the failure kind,
// the underlying error if any, and the trace.
func (f *Failure) Render(w io.Writer) error {
	if _, err := io.WriteString(w, f.Error()+"\n"); err != nil {
		return err
	}
	if f.Trace == nil {
		return nil
	}
	return f.Trace.Render(w)
}
