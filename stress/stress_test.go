package stress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concurrit/lincheck/oracle"
	"github.com/concurrit/lincheck/scenario"
)

type counter struct {
	mu sync.Mutex
	v  int
}

func (c *counter) IncAndGet() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v++
	return c.v
}

func twoThreadScenario(seed uint64) *scenario.Scenario {
	return &scenario.Scenario{
		Seed: seed,
		Parallel: [][]scenario.Actor{
			{{Operation: "IncAndGet"}, {Operation: "IncAndGet"}},
			{{Operation: "IncAndGet"}, {Operation: "IncAndGet"}},
		},
	}
}

func TestRunner_Execute_ProducesOneResultPerActor(t *testing.T) {
	r := New(Jitter{MaxDelay: time.Microsecond})
	s := twoThreadScenario(1)
	result, err := r.Execute(context.Background(), &counter{}, s, 0)
	require.NoError(t, err)

	seen := map[int]bool{}
	for _, thread := range result.ParallelResults {
		for _, rc := range thread {
			require.Equal(t, scenario.KindValue, rc.Result.Kind())
			v := rc.Result.ValuePayload().(int)
			assert.False(t, seen[v], "value %d observed twice, counter is not atomic", v)
			seen[v] = true
		}
	}
	assert.Len(t, seen, 4)
}

func TestRunner_Execute_ClockOwnEntryMatchesPosition(t *testing.T) {
	r := New(Jitter{MaxDelay: time.Microsecond})
	s := twoThreadScenario(2)
	result, err := r.Execute(context.Background(), &counter{}, s, 0)
	require.NoError(t, err)

	for t_, thread := range result.ParallelResults {
		for pos, rc := range thread {
			assert.Equal(t, pos, rc.Clock[t_])
		}
	}
}

func TestRunner_Execute_DeterministicDelaySchedule(t *testing.T) {
	d1 := spinDelay(42, 0, 3, time.Millisecond)
	d2 := spinDelay(42, 0, 3, time.Millisecond)
	assert.Equal(t, d1, d2)
}

type blocker struct{}

func (b *blocker) Wait(cont any) error {
	// Never resolves; exercises the deadline -> DeadlockError path.
	return oracle.Suspended
}

func TestRunner_Execute_DeadlineExceeded(t *testing.T) {
	s := &scenario.Scenario{
		Parallel: [][]scenario.Actor{
			{{Operation: "Wait", IsSuspendable: true}},
		},
	}
	r := New(Jitter{MaxDelay: time.Microsecond})
	_, err := r.Execute(context.Background(), &blocker{}, s, 20*time.Millisecond)
	require.Error(t, err)
	var deadlockErr *DeadlockError
	assert.ErrorAs(t, err, &deadlockErr)
}
