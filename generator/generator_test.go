package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concurrit/lincheck/internal/prng"
	"github.com/concurrit/lincheck/scenario"
)

func templates() []ActorTemplate {
	return []ActorTemplate{
		{Operation: "incAndGet"},
		{Operation: "get"},
	}
}

func TestGenerator_Generate_Deterministic(t *testing.T) {
	params := IterationParams{Threads: 2, ActorsPerThread: 3}

	g1 := New(templates(), params, prng.New(42))
	s1, err := g1.Generate()
	require.NoError(t, err)

	g2 := New(templates(), params, prng.New(42))
	s2, err := g2.Generate()
	require.NoError(t, err)

	require.NoError(t, s1.Validate())
	assert.Equal(t, s1.Parallel, s2.Parallel)
	assert.Equal(t, s1.Init, s2.Init)
	assert.Equal(t, s1.Post, s2.Post)
}

func TestGenerator_Generate_RunOnceNotDuplicated(t *testing.T) {
	ts := []ActorTemplate{
		{Operation: "create", RunOnce: true},
		{Operation: "use"},
	}
	params := IterationParams{Threads: 3, ActorsPerThread: 4}
	g := New(ts, params, prng.New(7))
	s, err := g.Generate()
	require.NoError(t, err)

	count := 0
	for _, thread := range s.Parallel {
		for _, a := range thread {
			if a.Operation == "create" {
				count++
			}
		}
	}
	for _, a := range s.Init {
		if a.Operation == "create" {
			count++
		}
	}
	for _, a := range s.Post {
		if a.Operation == "create" {
			count++
		}
	}
	assert.LessOrEqual(t, count, 1)
}

func TestGenerator_Generate_NonParallelSingleThread(t *testing.T) {
	g1 := scenario.OperationGroup{Name: "writers", NonParallel: true}
	ts := []ActorTemplate{
		{Operation: "write", Group: g1},
	}
	params := IterationParams{Threads: 4, ActorsPerThread: 2}
	g := New(ts, params, prng.New(99))
	s, err := g.Generate()
	require.NoError(t, err)
	require.NoError(t, s.Validate())

	threadsUsed := 0
	for _, thread := range s.Parallel {
		for _, a := range thread {
			if a.Group.Name == "writers" {
				threadsUsed++
				break
			}
		}
	}
	assert.LessOrEqual(t, threadsUsed, 1)
}

func TestGenerator_Generate_AllSuspendableForcesNoInitPost(t *testing.T) {
	ts := []ActorTemplate{
		{Operation: "await", IsSuspendable: true},
	}
	params := IterationParams{Threads: 2, ActorsPerThread: 1, ActorsBefore: 3, ActorsAfter: 3}
	g := New(ts, params, prng.New(5))
	s, err := g.Generate()
	require.NoError(t, err)
	assert.Empty(t, s.Init)
	assert.Empty(t, s.Post)
}

func TestGenerator_Generate_EmptyPoolShortensScenario(t *testing.T) {
	ts := []ActorTemplate{
		{Operation: "once", RunOnce: true},
	}
	params := IterationParams{Threads: 2, ActorsPerThread: 2}
	g := New(ts, params, prng.New(1))
	s, err := g.Generate()
	require.NoError(t, err)

	total := 0
	for _, thread := range s.Parallel {
		total += len(thread)
	}
	assert.LessOrEqual(t, total, 1)
}
