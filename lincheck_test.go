package lincheck

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concurrit/lincheck/scenario"
	"github.com/concurrit/lincheck/verifier"
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

type counterSpec struct{}

func (counterSpec) New() any { return &counter{} }
func (counterSpec) Clone(instance any) any {
	c := instance.(*counter)
	return &counter{v: c.v}
}

var _ verifier.SequentialSpecification = counterSpec{}

func TestRun_AtomicCounterPasses(t *testing.T) {
	s := &scenario.Scenario{
		Parallel: [][]scenario.Actor{
			{{Operation: "IncAndGet"}},
			{{Operation: "IncAndGet"}},
		},
	}
	failure, err := Run(context.Background(), Config{
		Iterations:              1,
		InvocationsPerIteration: 20,
		CustomScenarios:         []*scenario.Scenario{s},
		SequentialSpecification: counterSpec{},
		TimeoutMs:               1000,
	})
	require.NoError(t, err)
	assert.Nil(t, failure)
}

type fakeT struct {
	failed  bool
	message string
}

func (f *fakeT) Helper() {}
func (f *fakeT) Fatalf(format string, args ...any) {
	f.failed = true
	f.message = format
}

func TestCheck_RequiresCustomScenariosOrTemplates(t *testing.T) {
	ft := &fakeT{}
	Check(ft, Config{
		Iterations:              1,
		InvocationsPerIteration: 1,
		SequentialSpecification: counterSpec{},
	})
	assert.True(t, ft.failed)
}
