package verifier

import (
	"fmt"
	"strings"

	"github.com/concurrit/lincheck/oracle"
	"github.com/concurrit/lincheck/scenario"
)

// pendingSuspension tracks a parallel-part actor that the sequential replay
// suspended on: it may later be followed by a resumption (another actor's
// application resolving its Continuation) or, if it declares
// CancelOnSuspension, explicitly cancelled by the verifier.
type pendingSuspension struct {
	thread, pos int
	actor       scenario.Actor
	cont        *oracle.Continuation
	// movesSinceSuspended counts DFS moves taken since this suspension was
	// created; used to gate when cancellation-after-resumption-style
	// exploration is allowed, per actor.PromptCancellation.
	movesSinceSuspended int
}

func (p *pendingSuspension) id() scenario.ActorID {
	return scenario.ActorID{Thread: p.thread, Index: p.pos}
}

type dfs struct {
	v      *Verifier
	o      *oracle.Oracle
	spec   SequentialSpecification
	s      *scenario.Scenario
	result *scenario.ExecutionResult
	// final is the instance reached at the end of the successful search,
	// the state the post part is replayed on.
	final any
}

// search is the DFS core. committed[t] is the number of actors of thread t
// that have been fully resolved (completed, cancelled, or left hanging as a
// final Suspended result once the whole scenario ends). pending holds
// in-flight suspensions, keyed by thread.
//
// NOTE on backtracking and suspension (documented design tradeoff, see
// DESIGN.md "Verification"): once pending is non-empty the search
// continues to mutate the same instance without cloning, rather than
// attempting every possible interleaving of moves around the suspension.
// This keeps each pendingSuspension's Continuation identity stable (a
// SequentialSpecification's Clone need not know how to deep-copy an
// in-flight Continuation reachable from its own fields) at the cost of
// under-exploring some suspend/resume orderings; this is the one place the
// search trades a little completeness away for soundness.
func (d *dfs) search(instance any, committed []int, pending map[int]*pendingSuspension, prefix []Step) (bool, []Step, error) {
	if allDone(committed, d.s) && len(pending) == 0 {
		d.final = instance
		return true, prefix, nil
	}

	canClone := len(pending) == 0
	// canMemo additionally requires a real per-state digest: without one, the
	// (cursor, pending-count) key alone cannot distinguish sequential states
	// that reached the same cursor vector by different interleavings, so
	// consulting the cache would prune states that were never actually
	// explored (see hasStateHasher).
	canMemo := canClone && hasStateHasher(instance)
	if canMemo {
		key := d.memoKey(instance, committed, pending)
		if d.v.seen(key, instance) {
			return false, prefix, nil
		}
	}

	// Candidate 1: advance a ready thread.
	for t := 0; t < d.s.Threads(); t++ {
		if _, blocked := pending[t]; blocked {
			continue
		}
		p := committed[t]
		if p >= len(d.s.Parallel[t]) {
			continue
		}
		if !d.ready(t, p, committed) {
			continue
		}

		var branchInstance any
		if canClone {
			branchInstance = d.spec.Clone(instance)
		} else {
			branchInstance = instance
		}

		ok, tail, err := d.tryApply(branchInstance, t, p, committed, pending, prefix)
		if err != nil {
			return false, nil, err
		}
		if ok {
			return true, tail, nil
		}
	}

	// Candidate 2: cancel an eligible pending suspension.
	for t, p := range pending {
		if !p.actor.CancelOnSuspension {
			continue
		}
		if p.movesSinceSuspended > 0 && !p.actor.PromptCancellation {
			continue
		}
		observed := d.observedResult(t, p.pos)
		if observed.Kind() != scenario.KindCancelled {
			continue
		}

		nextCommitted := append([]int(nil), committed...)
		nextCommitted[t] = p.pos + 1
		nextPending := clonePendingExcept(pending, t)
		bumpMoves(nextPending)
		nextPrefix := append(append([]Step(nil), prefix...), Step{Actor: p.id()})

		ok, tail, err := d.search(instance, nextCommitted, nextPending, nextPrefix)
		if err != nil {
			return false, nil, err
		}
		if ok {
			return true, tail, nil
		}
	}

	if canMemo {
		key := d.memoKey(instance, committed, pending)
		d.v.mark(key, instance)
	}
	return false, prefix, nil
}

// tryApply applies the actor at (t, p) to instance (a branch-local clone, or
// the shared instance while any suspension is pending), checks it against
// the observed result, resolves any pending suspensions it may have
// triggered, and recurses.
func (d *dfs) tryApply(instance any, t, p int, committed []int, pending map[int]*pendingSuspension, prefix []Step) (bool, []Step, error) {
	actor := d.s.Parallel[t][p]
	observed := d.observedResult(t, p)

	nextCommitted := append([]int(nil), committed...)
	nextPending := clonePendingExcept(pending, -1)
	bumpMoves(nextPending)
	nextPrefix := append([]Step(nil), prefix...)

	if actor.IsSuspendable {
		r, cont, err := d.o.ApplySuspendable(instance, actor)
		if err != nil {
			return false, nil, &IncorrectSpecificationError{Err: err}
		}
		if r.Kind() == scenario.KindSuspended {
			if observed.Kind() != scenario.KindSuspended && !actor.AllowExtraSuspension {
				return false, prefix, nil
			}
			if observed.Kind() == scenario.KindSuspended {
				// Stays suspended for the rest of this linearization; only
				// valid if it is never resolved, which we simply allow by
				// marking it committed immediately (it contributes no
				// further actor applications).
				nextCommitted[t] = p + 1
				nextPrefix = append(nextPrefix, Step{Actor: scenario.ActorID{Thread: t, Index: p}})
				return d.search(instance, nextCommitted, nextPending, nextPrefix)
			}
			nextPending[t] = &pendingSuspension{thread: t, pos: p, actor: actor, cont: cont}
			return d.search(instance, nextCommitted, nextPending, nextPrefix)
		}
		if !r.Equal(observed) {
			return false, prefix, nil
		}
		nextCommitted[t] = p + 1
		nextPrefix = append(nextPrefix, Step{Actor: scenario.ActorID{Thread: t, Index: p}})
		resolveReady(d, instance, nextPending, nextCommitted, &nextPrefix, scenario.ActorID{Thread: t, Index: p})
		return d.search(instance, nextCommitted, nextPending, nextPrefix)
	}

	r, err := d.o.Apply(instance, actor)
	if err != nil {
		return false, nil, &IncorrectSpecificationError{Err: err}
	}
	if !r.Equal(observed) {
		return false, prefix, nil
	}
	nextCommitted[t] = p + 1
	nextPrefix = append(nextPrefix, Step{Actor: scenario.ActorID{Thread: t, Index: p}})
	if !resolveReady(d, instance, nextPending, nextCommitted, &nextPrefix, scenario.ActorID{Thread: t, Index: p}) {
		return false, prefix, nil
	}
	return d.search(instance, nextCommitted, nextPending, nextPrefix)
}

// resolveReady drains every pending suspension's Continuation, committing
// any that have now been resolved (by the actor identified by resumer) and
// checking the delivered value against the observed result. Returns false if
// any resolved value mismatches its observed result, meaning this branch is
// invalid.
func resolveReady(d *dfs, instance any, pending map[int]*pendingSuspension, committed []int, prefix *[]Step, resumer scenario.ActorID) bool {
	for t, p := range pending {
		v, ok := p.cont.TryAwait()
		if !ok {
			continue
		}
		observed := d.observedResult(t, p.pos)
		if !v.Equal(observed) {
			return false
		}
		committed[t] = p.pos + 1
		delete(pending, t)
		*prefix = append(*prefix, Step{Actor: p.id(), Resumption: true, ResumedBy: resumer})
	}
	return true
}

func (d *dfs) observedResult(t, p int) scenario.Result {
	if t < 0 || t >= len(d.result.ParallelResults) || p < 0 || p >= len(d.result.ParallelResults[t]) {
		return scenario.NoResult()
	}
	return d.result.ParallelResults[t][p].Result
}

// ready reports whether the actor at (t, p) is a legal next step given the
// happens-before-start vector clock recorded alongside the observed result.
func (d *dfs) ready(t, p int, committed []int) bool {
	if t >= len(d.result.ParallelResults) || p >= len(d.result.ParallelResults[t]) {
		return true
	}
	clock := d.result.ParallelResults[t][p].Clock
	if clock == nil {
		return true
	}
	for ot, need := range clock {
		if ot == t {
			continue
		}
		if need > committed[ot] {
			return false
		}
	}
	return true
}

func allDone(committed []int, s *scenario.Scenario) bool {
	for t, c := range committed {
		if c < len(s.Parallel[t]) {
			return false
		}
	}
	return true
}

func clonePendingExcept(pending map[int]*pendingSuspension, skip int) map[int]*pendingSuspension {
	out := make(map[int]*pendingSuspension, len(pending))
	for k, v := range pending {
		if k == skip {
			continue
		}
		cp := *v
		out[k] = &cp
	}
	return out
}

func bumpMoves(pending map[int]*pendingSuspension) {
	for _, p := range pending {
		p.movesSinceSuspended++
	}
}

func (d *dfs) memoKey(instance any, committed []int, pending map[int]*pendingSuspension) stateKey {
	var sb strings.Builder
	for _, c := range committed {
		fmt.Fprintf(&sb, "%d,", c)
	}
	return stateKey{hash: hashOf(instance), cursors: sb.String(), pendingOf: fmt.Sprint(len(pending))}
}
