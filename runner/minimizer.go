package runner

import (
	"github.com/concurrit/lincheck/report"
	"github.com/concurrit/lincheck/scenario"
)

// removalBudget bounds the total number of candidate removals the
// minimizer will try across the whole reduction, guarding against runaway
// minimization on a scenario whose failure is flaky or slow to reproduce.
const removalBudget = 200

// reproduceBudget is the small invocation budget each candidate gets to
// reproduce the failure before the minimizer gives up on that candidate and
// tries the next one.
const reproduceBudget = 10

// minimize implements a greedy scenario reducer: repeatedly try removing
// one actor (from init, a parallel thread, or post); keep the removal if
// the reduced scenario still reproduces a failure within reproduceBudget
// invocations, and restart the scan from the reduced scenario. Stops at a
// fixed point (no removal still fails) or when removalBudget is exhausted.
// The returned failure's scenario is always one that failed; only at a fixed
// point has every single-actor deletion from it been tried without
// reproducing a failure within reproduceBudget invocations.
func (r *Runner) minimize(original *scenario.Scenario, failure *report.Failure) *report.Failure {
	current := original
	currentFailure := failure
	budget := removalBudget

	for budget > 0 {
		reducedThisPass := false
		for _, candidate := range candidateRemovals(current) {
			if budget <= 0 {
				break
			}
			budget--

			if err := candidate.Validate(); err != nil {
				continue
			}
			if f := r.tryReproduce(candidate); f != nil {
				current = candidate
				currentFailure = f
				reducedThisPass = true
				break
			}
		}
		if !reducedThisPass {
			break
		}
	}

	return currentFailure
}

// tryReproduce runs up to reproduceBudget invocations of s and returns the
// first failure observed, or nil if none reproduced within budget.
func (r *Runner) tryReproduce(s *scenario.Scenario) *report.Failure {
	for i := 0; i < reproduceBudget; i++ {
		_, failure, err := r.invoke(s, i)
		if err != nil {
			panic(err)
		}
		if failure != nil {
			return failure
		}
	}
	return nil
}

// candidateRemovals returns one Scenario per single-actor deletion from s,
// across init, every parallel thread, and post.
func candidateRemovals(s *scenario.Scenario) []*scenario.Scenario {
	var out []*scenario.Scenario

	for i := range s.Init {
		c := cloneScenario(s)
		c.Init = deleteAt(c.Init, i)
		out = append(out, c)
	}
	for t := range s.Parallel {
		for i := range s.Parallel[t] {
			c := cloneScenario(s)
			c.Parallel[t] = deleteAt(c.Parallel[t], i)
			out = append(out, c)
		}
	}
	for i := range s.Post {
		c := cloneScenario(s)
		c.Post = deleteAt(c.Post, i)
		out = append(out, c)
	}

	return out
}

func deleteAt(actors []scenario.Actor, i int) []scenario.Actor {
	out := make([]scenario.Actor, 0, len(actors)-1)
	out = append(out, actors[:i]...)
	out = append(out, actors[i+1:]...)
	return out
}

func cloneScenario(s *scenario.Scenario) *scenario.Scenario {
	c := &scenario.Scenario{Seed: s.Seed, Validation: s.Validation}
	c.Init = append([]scenario.Actor(nil), s.Init...)
	c.Post = append([]scenario.Actor(nil), s.Post...)
	c.Parallel = make([][]scenario.Actor, len(s.Parallel))
	for i, thread := range s.Parallel {
		c.Parallel[i] = append([]scenario.Actor(nil), thread...)
	}
	return c
}
