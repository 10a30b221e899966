// Package generator implements the execution generator:
// randomized scenarios constrained by operation groups, drawn from a
// deterministic pseudo-random source so that repeated runs with the same
// seed produce identical scenarios.
package generator

import (
	"strings"

	"golang.org/x/exp/slices"

	"github.com/concurrit/lincheck/internal/prng"
	"github.com/concurrit/lincheck/scenario"
)

// ParamGen produces one argument value per call, using rnd for any
// randomness it needs. Parameter generation for primitive types is an
// external collaborator's concern, described only at its interface;
// Generator only consumes ParamGen, it does not implement any.
type ParamGen func(rnd *prng.Source) any

// ActorTemplate is one declared operation, as consumed by Generator.
type ActorTemplate struct {
	Operation scenario.OperationID
	ParamGens []ParamGen
	Group     scenario.OperationGroup

	RunOnce              bool
	IsSuspendable        bool
	CancelOnSuspension   bool
	AllowExtraSuspension bool
	Blocking             bool
	CausesBlocking       bool
	PromptCancellation   bool

	// Weight biases the draw toward more "interesting" operations,
	// supplementing a uniform draw; zero is treated as the default weight
	// of 1.
	Weight int
}

func (t ActorTemplate) weight() int {
	if t.Weight <= 0 {
		return 1
	}
	return t.Weight
}

func (t ActorTemplate) sortKey() string {
	parts := make([]string, 0, len(t.ParamGens)+1)
	parts = append(parts, string(t.Operation))
	// Parameter generators carry no reflectable type in Go the way JVM
	// parameter classes would; the generator instead keys secondarily on
	// position count, which is the closest stable proxy available without
	// requiring reflection over ParamGen's closure.
	for i := range t.ParamGens {
		parts = append(parts, "p")
		_ = i
	}
	return strings.Join(parts, "/")
}

func (t ActorTemplate) build(rnd *prng.Source) scenario.Actor {
	args := make([]any, len(t.ParamGens))
	for i, g := range t.ParamGens {
		args[i] = g(rnd)
	}
	return scenario.Actor{
		Operation:            t.Operation,
		Args:                 args,
		Group:                t.Group,
		RunOnce:              t.RunOnce,
		IsSuspendable:        t.IsSuspendable,
		CancelOnSuspension:   t.CancelOnSuspension,
		AllowExtraSuspension: t.AllowExtraSuspension,
		Blocking:             t.Blocking,
		CausesBlocking:       t.CausesBlocking,
		PromptCancellation:   t.PromptCancellation,
	}
}

// IterationParams controls the shape of a generated Scenario.
type IterationParams struct {
	Threads         int
	ActorsPerThread int
	ActorsBefore    int
	ActorsAfter     int
}

// Generator produces randomized Scenarios from a pool of ActorTemplates.
type Generator struct {
	templates []ActorTemplate
	params    IterationParams
	seedGen   *prng.Source
}

// New builds a Generator. seedGen is the run-global seed source; each call
// to Generate draws one fresh seed from it, so successive scenarios in a
// run are independent but the whole run is reproducible from a single
// top-level seed.
func New(templates []ActorTemplate, params IterationParams, seedGen *prng.Source) *Generator {
	ordered := append([]ActorTemplate(nil), templates...)
	// Deterministic enumeration order: primary key is the
	// method name, secondary key the parameter-count-derived sortKey, using
	// a stable sort so equal keys retain registration order.
	slices.SortStableFunc(ordered, func(a, b ActorTemplate) int {
		switch {
		case a.sortKey() < b.sortKey():
			return -1
		case a.sortKey() > b.sortKey():
			return 1
		default:
			return 0
		}
	})
	return &Generator{templates: ordered, params: params, seedGen: seedGen}
}

// Generate produces one Scenario.
func (g *Generator) Generate() (*scenario.Scenario, error) {
	seed := g.seedGen.Uint64()
	rnd := prng.New(seed)

	pool := append([]ActorTemplate(nil), g.templates...)
	expanded := expandByWeight(pool)

	runOnceUsed := make(map[scenario.OperationID]bool)
	nonParallelUsedThread := make(map[string]int) // group name -> thread index already used, or -1

	threads := g.params.Threads
	if threads <= 0 {
		threads = 1
	}

	parallel := make([][]scenario.Actor, threads)
	allSuspendable := len(expanded) > 0 && allTemplatesSuspendable(expanded)

	for t := 0; t < threads; t++ {
		thread := make([]scenario.Actor, 0, g.params.ActorsPerThread)
		for i := 0; i < g.params.ActorsPerThread; i++ {
			tmpl, remaining, ok := draw(expanded, rnd, t, runOnceUsed, nonParallelUsedThread)
			if !ok {
				// no eligible template left - produce a shorter, still valid
				// scenario rather than failing.
				break
			}
			expanded = remaining
			a := tmpl.build(rnd)
			thread = append(thread, a)
			if tmpl.RunOnce {
				runOnceUsed[tmpl.Operation] = true
			}
			if tmpl.Group.NonParallel && tmpl.Group.Name != "" {
				nonParallelUsedThread[tmpl.Group.Name] = t
			}
		}
		parallel[t] = thread
	}

	actorsBefore, actorsAfter := g.params.ActorsBefore, g.params.ActorsAfter
	if allSuspendable {
		actorsBefore, actorsAfter = 0, 0
	}

	nonSuspendable := filterNonSuspendable(g.templates)
	initSeed := prng.Derive(seed, 1)
	init := drawSequential(nonSuspendable, initSeed, actorsBefore, runOnceUsed)
	postSeed := prng.Derive(seed, 2)
	post := drawSequential(nonSuspendable, postSeed, actorsAfter, runOnceUsed)

	s := &scenario.Scenario{Init: init, Parallel: parallel, Post: post, Seed: seed}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func allTemplatesSuspendable(ts []ActorTemplate) bool {
	for _, t := range ts {
		if !t.IsSuspendable {
			return false
		}
	}
	return true
}

func filterNonSuspendable(ts []ActorTemplate) []ActorTemplate {
	out := make([]ActorTemplate, 0, len(ts))
	for _, t := range ts {
		if !t.IsSuspendable {
			out = append(out, t)
		}
	}
	return out
}

// expandByWeight replicates each template Weight times, to implement a
// weighted draw without requiring a separate alias-method sampler.
func expandByWeight(ts []ActorTemplate) []ActorTemplate {
	out := make([]ActorTemplate, 0, len(ts))
	for _, t := range ts {
		for i := 0; i < t.weight(); i++ {
			out = append(out, t)
		}
	}
	return out
}

// draw picks one eligible template uniformly at random from pool, honoring
// runOnce-without-replacement and the at-most-one-thread constraint for
// nonParallel groups. It returns the remaining pool with every expanded copy
// of the chosen (and now ineligible) templates removed.
func draw(pool []ActorTemplate, rnd *prng.Source, thread int, runOnceUsed map[scenario.OperationID]bool, nonParallelUsedThread map[string]int) (ActorTemplate, []ActorTemplate, bool) {
	eligible := make([]int, 0, len(pool))
	for i, t := range pool {
		if t.RunOnce && runOnceUsed[t.Operation] {
			continue
		}
		if t.Group.NonParallel && t.Group.Name != "" {
			if usedThread, ok := nonParallelUsedThread[t.Group.Name]; ok && usedThread != thread {
				continue
			}
		}
		eligible = append(eligible, i)
	}
	if len(eligible) == 0 {
		return ActorTemplate{}, pool, false
	}
	chosenIdx := eligible[rnd.Intn(len(eligible))]
	chosen := pool[chosenIdx]

	if !chosen.RunOnce {
		return chosen, pool, true
	}
	remaining := make([]ActorTemplate, 0, len(pool))
	for _, t := range pool {
		if t.Operation == chosen.Operation && t.RunOnce {
			continue
		}
		remaining = append(remaining, t)
	}
	return chosen, remaining, true
}

func drawSequential(templates []ActorTemplate, rnd *prng.Source, n int, runOnceUsed map[scenario.OperationID]bool) []scenario.Actor {
	if n <= 0 || len(templates) == 0 {
		return nil
	}
	pool := expandByWeight(templates)
	out := make([]scenario.Actor, 0, n)
	for i := 0; i < n; i++ {
		tmpl, remaining, ok := draw(pool, rnd, -1, runOnceUsed, map[string]int{})
		if !ok {
			break
		}
		pool = remaining
		out = append(out, tmpl.build(rnd))
		if tmpl.RunOnce {
			runOnceUsed[tmpl.Operation] = true
		}
	}
	return out
}
