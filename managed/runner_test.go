package managed

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concurrit/lincheck/oracle"
	"github.com/concurrit/lincheck/scenario"
)

type rendezvous struct {
	mu       sync.Mutex
	signaled bool
	waiter   *oracle.Continuation
}

func (r *rendezvous) Await(cont *oracle.Continuation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.signaled {
		return nil
	}
	r.waiter = cont
	return oracle.Suspended
}

func (r *rendezvous) Signal() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signaled = true
	if r.waiter != nil {
		r.waiter.Resume(scenario.Void())
		r.waiter = nil
	}
	return nil
}

func rendezvousScenario(seed uint64) *scenario.Scenario {
	return &scenario.Scenario{
		Parallel: [][]scenario.Actor{
			{{Operation: "Await", IsSuspendable: true}},
			{{Operation: "Signal"}},
		},
		Seed: seed,
	}
}

func TestRunner_Execute_SuspendAndResumeAcrossThreads(t *testing.T) {
	r := NewRunner(0)
	rv := &rendezvous{}
	result, err := r.Execute(rv, rendezvousScenario(99), 0)
	require.NoError(t, err)
	require.Len(t, result.ParallelResults, 2)
	require.Len(t, result.ParallelResults[0], 1)
	require.Len(t, result.ParallelResults[1], 1)
	assert.Equal(t, scenario.KindVoid, result.ParallelResults[0][0].Result.Kind())
	assert.Equal(t, scenario.KindVoid, result.ParallelResults[1][0].Result.Kind())
}

type counter struct {
	v int
}

func (c *counter) IncAndGet() int {
	c.v++
	return c.v
}

func twoThreadScenario(seed uint64) *scenario.Scenario {
	return &scenario.Scenario{
		Parallel: [][]scenario.Actor{
			{{Operation: "IncAndGet"}, {Operation: "IncAndGet"}},
			{{Operation: "IncAndGet"}, {Operation: "IncAndGet"}},
		},
		Seed: seed,
	}
}

func TestRunner_Execute_ProducesOneResultPerActorWithMonotoneOwnClock(t *testing.T) {
	r := NewRunner(0)
	result, err := r.Execute(&counter{}, twoThreadScenario(7), 0)
	require.NoError(t, err)
	for thread, rs := range result.ParallelResults {
		require.Len(t, rs, 2)
		for pos, rc := range rs {
			assert.Equal(t, pos, rc.Clock[thread])
		}
	}
}
