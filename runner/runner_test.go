package runner

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concurrit/lincheck/report"
	"github.com/concurrit/lincheck/scenario"
)

type atomicCounter struct {
	mu sync.Mutex
	v  int
}

func (c *atomicCounter) IncAndGet() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v++
	return c.v
}

type atomicCounterSpec struct{}

func (atomicCounterSpec) New() any { return &atomicCounter{} }
func (atomicCounterSpec) Clone(instance any) any {
	c := instance.(*atomicCounter)
	return &atomicCounter{v: c.v}
}

func twoThreadIncAndGetScenario() *scenario.Scenario {
	return &scenario.Scenario{
		Parallel: [][]scenario.Actor{
			{{Operation: "IncAndGet"}},
			{{Operation: "IncAndGet"}},
		},
	}
}

type countingTracker struct {
	mu                            sync.Mutex
	iterationStarts, iterationEnds int
	invocationStarts, invocationEnds int
}

func (t *countingTracker) IterationStart(int)                       { t.mu.Lock(); t.iterationStarts++; t.mu.Unlock() }
func (t *countingTracker) IterationEnd(int, *report.Failure)        { t.mu.Lock(); t.iterationEnds++; t.mu.Unlock() }
func (t *countingTracker) InvocationStart(int, int)                 { t.mu.Lock(); t.invocationStarts++; t.mu.Unlock() }
func (t *countingTracker) InvocationEnd(int, int, *scenario.ExecutionResult, error) {
	t.mu.Lock()
	t.invocationEnds++
	t.mu.Unlock()
}

func TestRunner_Run_AtomicCounterNeverFails(t *testing.T) {
	tracker := &countingTracker{}
	cfg := Config{
		Iterations:              2,
		InvocationsPerIteration: 20,
		WarmUpInvocationsPerIteration: 5,
		CustomScenarios:         []*scenario.Scenario{twoThreadIncAndGetScenario()},
		SequentialSpecification: atomicCounterSpec{},
		TimeoutMs:               1000,
		RunTracker:              tracker,
	}
	r := New(cfg)
	stats, failure := r.Run(context.Background())
	assert.Nil(t, failure)
	assert.Equal(t, stats.InvocationsCount+stats.WarmUpInvocationsCount, stats.TotalInvocationsCount)
	assert.Equal(t, 40, tracker.invocationStarts)
	assert.Equal(t, 40, tracker.invocationEnds)
	assert.Equal(t, 2, tracker.iterationStarts)
	assert.Equal(t, 2, tracker.iterationEnds)
}

type brokenCounter struct {
	value int
}

func (c *brokenCounter) Inc()      { c.value = c.value + 1 }
func (c *brokenCounter) Get() int  { return c.value }

type brokenCounterSpec struct{}

func (brokenCounterSpec) New() any { return &brokenCounter{} }
func (brokenCounterSpec) Clone(instance any) any {
	c := instance.(*brokenCounter)
	return &brokenCounter{value: c.value}
}

func TestRunner_Run_NonAtomicCounterFailsAndMinimizes(t *testing.T) {
	s := &scenario.Scenario{
		Parallel: [][]scenario.Actor{
			{{Operation: "Inc"}, {Operation: "Inc"}, {Operation: "Get"}},
			{{Operation: "Inc"}, {Operation: "Inc"}, {Operation: "Get"}},
		},
	}
	cfg := Config{
		Iterations:              1,
		InvocationsPerIteration: 500,
		CustomScenarios:         []*scenario.Scenario{s},
		SequentialSpecification: brokenCounterSpec{},
		MinimizeFailedScenario:  true,
		TimeoutMs:               1000,
	}
	r := New(cfg)
	_, failure := r.Run(context.Background())
	require.NotNil(t, failure)
	assert.Equal(t, report.IncorrectResultsFailure, failure.Kind)
	// every remaining single-actor deletion from the reported scenario must
	// still pass; re-check directly rather than trust minimize's internal
	// bookkeeping.
	for _, candidate := range candidateRemovals(failure.Scenario) {
		if err := candidate.Validate(); err != nil {
			continue
		}
		if f := r.tryReproduce(candidate); f != nil {
			t.Fatalf("candidate %+v still fails after minimization claimed a fixed point", candidate)
		}
	}
}
