// Package verifier implements the linearizability checker:
// a reachability search (DFS) over a labeled transition system (LTS) whose
// states are sequential-specification instances and whose transitions are
// actor applications, searching for a linearization of the observed
// ExecutionResult.
package verifier

import (
	"fmt"

	"github.com/concurrit/lincheck/oracle"
	"github.com/concurrit/lincheck/scenario"
)

// SequentialSpecification is the sequential model the observed
// ExecutionResult is checked against.
type SequentialSpecification interface {
	// New constructs a fresh instance, as it would be immediately after
	// construction (no actors applied).
	New() any
	// Clone duplicates instance's current state, so the DFS can branch
	// without the two branches observing each other's mutations. This is
	// scoped to a single instance rather than a whole object graph.
	Clone(instance any) any
}

// StateHasher is an optional instance-level hook a SequentialSpecification's
// instances may implement to accelerate the transposition cache. Without it,
// the cache degenerates to never matching, which is correct but slow.
type StateHasher interface {
	LincheckStateHash() uint64
}

// StateEqualer lets an instance implementing StateHasher also resolve hash
// collisions precisely: when two states share a LincheckStateHash digest,
// the transposition cache calls LincheckStateEqual to tell them apart
// instead of conflating them. Without it, colliding states are assumed
// equal once their hash and cursor vector match.
type StateEqualer interface {
	LincheckStateEqual(other any) bool
}

// IncorrectSpecificationError wraps a fatal error raised by the sequential
// specification itself (an *oracle.OracleError): this must always surface
// distinctly from a `false` verification result.
type IncorrectSpecificationError struct {
	Err error
}

func (e *IncorrectSpecificationError) Error() string {
	return fmt.Sprintf("verifier: incorrect sequential specification: %v", e.Err)
}
func (e *IncorrectSpecificationError) Unwrap() error { return e.Err }

// Step is one entry of a linearization Path: the actor applied, and, for a
// resumption, the actor that triggered it.
type Step struct {
	Actor      scenario.ActorID
	Resumption bool
	ResumedBy  scenario.ActorID
}

// Path is a candidate (or closest-found, on failure) linearization, used by
// report to render a human-readable trace.
type Path struct {
	Steps []Step
}

// Verifier holds the per-session transposition cache; it is invocation-scoped
// and must be reconstructed fresh for every invocation.
type Verifier struct {
	// visited buckets representative states by stateKey. A bucket holds more
	// than one entry exactly when StateHasher collisions occur; StateEqualer
	// (when the instance implements it) tells two colliding states apart
	// instead of conflating them.
	visited map[stateKey][]any
}

// New constructs a Verifier with a fresh, empty transposition cache.
func New() *Verifier {
	return &Verifier{visited: make(map[stateKey][]any)}
}

type stateKey struct {
	hash      uint64
	cursors   string
	pendingOf string
}

// seen reports whether a state equal to instance was already marked visited
// under key. It is only ever consulted when hasStateHasher(instance) is
// true: hash is then a genuine digest of instance's state, so colliding
// entries are rare and StateEqualer (when implemented) or a same-hash
// assumption (when not) resolves them.
func (v *Verifier) seen(key stateKey, instance any) bool {
	for _, other := range v.visited[key] {
		if statesEqual(instance, other) {
			return true
		}
	}
	return false
}

// mark records instance as visited under key.
func (v *Verifier) mark(key stateKey, instance any) {
	v.visited[key] = append(v.visited[key], instance)
}

// statesEqual decides whether a and b are the same state for transposition
// purposes. When either implements StateEqualer, that hook is authoritative;
// otherwise two states that reached this comparison already share a
// StateHasher digest and cursor vector, so they are assumed equal (the
// residual risk a hasher without an equaler accepts).
func statesEqual(a, b any) bool {
	if eq, ok := a.(StateEqualer); ok {
		return eq.LincheckStateEqual(b)
	}
	if eq, ok := b.(StateEqualer); ok {
		return eq.LincheckStateEqual(a)
	}
	return true
}

// hasStateHasher reports whether instance implements StateHasher, gating
// whether the transposition cache may be consulted at all: without a real
// per-state digest, the cache's (cursor, pending-count) key alone cannot
// distinguish genuinely different sequential states, so memoization must be
// disabled rather than keyed on cursors alone.
func hasStateHasher(instance any) bool {
	_, ok := instance.(StateHasher)
	return ok
}

// Verify searches for a linearization of result against spec, for the given
// scenario s. It returns (true, path, nil) if one is found, (false, closest,
// nil) if the search is exhausted without success, and a non-nil error only
// for a fatal *IncorrectSpecificationError, which must never be folded into
// the bool result.
func (v *Verifier) Verify(spec SequentialSpecification, s *scenario.Scenario, result *scenario.ExecutionResult) (bool, *Path, error) {
	instance := spec.New()
	o := oracle.New(instance)

	// Replay init sequentially; a mismatch here means the observed
	// ExecutionResult cannot possibly be linearizable (init is not part of
	// the search space, its order is fixed).
	path := &Path{}
	for i, a := range s.Init {
		r, err := applyChecked(o, instance, a)
		if err != nil {
			return false, nil, err
		}
		if i >= len(result.InitResults) || !r.Equal(result.InitResults[i]) {
			return false, path, nil
		}
		path.Steps = append(path.Steps, Step{Actor: scenario.ActorID{Thread: scenario.ThreadInit, Index: i}})
	}

	d := &dfs{v: v, o: o, spec: spec, s: s, result: result}
	cursors := make([]int, s.Threads())
	ok, tail, err := d.search(instance, cursors, nil, path.Steps)
	if err != nil {
		return false, nil, err
	}
	if !ok {
		return false, &Path{Steps: tail}, nil
	}

	// Post part: strictly after the parallel part and all its resumptions.
	instance = d.final
	for i, a := range s.Post {
		r, aerr := applyChecked(o, instance, a)
		if aerr != nil {
			return false, nil, aerr
		}
		if i >= len(result.PostResults) || !r.Equal(result.PostResults[i]) {
			return false, &Path{Steps: tail}, nil
		}
		tail = append(tail, Step{Actor: scenario.ActorID{Thread: scenario.ThreadPost, Index: i}})
	}

	return true, &Path{Steps: tail}, nil
}

func applyChecked(o *oracle.Oracle, instance any, a scenario.Actor) (scenario.Result, error) {
	r, err := o.Apply(instance, a)
	if err != nil {
		return scenario.Result{}, &IncorrectSpecificationError{Err: err}
	}
	return r, nil
}

func hashOf(instance any) uint64 {
	if h, ok := instance.(StateHasher); ok {
		return h.LincheckStateHash()
	}
	return 0
}
