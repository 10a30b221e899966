package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/concurrit/lincheck/scenario"
	"github.com/concurrit/lincheck/verifier"
)

func TestFromPath_OneEventPerStep(t *testing.T) {
	path := &verifier.Path{Steps: []verifier.Step{
		{Actor: scenario.ActorID{Thread: 0, Index: 0}},
		{Actor: scenario.ActorID{Thread: 1, Index: 0}},
	}}
	tr := FromPath(path)
	assert.Len(t, tr.Events, 2)
	assert.Equal(t, 0, tr.Events[0].Thread)
	assert.Equal(t, 1, tr.Events[1].Thread)
}

func TestFailure_Render_IncludesKindAndTrace(t *testing.T) {
	f := &Failure{
		Kind: IncorrectResultsFailure,
		Seed: 42,
		Trace: &Trace{Events: []TraceEvent{
			{Thread: 0, Actor: scenario.ActorID{Thread: 0, Index: 0}, Result: scenario.Void()},
		}},
	}
	var b strings.Builder
	assert.NoError(t, f.Render(&b))
	out := b.String()
	assert.Contains(t, out, "incorrect results")
	assert.Contains(t, out, "seed 42")
	assert.Contains(t, out, "thread 0")
}

func TestFromExecutionResult_OrdersInitParallelPost(t *testing.T) {
	s := &scenario.Scenario{Parallel: [][]scenario.Actor{{{Operation: "Op"}}}}
	r := &scenario.ExecutionResult{
		InitResults: []scenario.Result{scenario.Void()},
		ParallelResults: [][]scenario.ResultWithClock{
			{{Result: scenario.Value(1), Clock: scenario.Clock{0}}},
		},
		PostResults: []scenario.Result{scenario.Void()},
	}
	tr := FromExecutionResult(s, r)
	assert.Len(t, tr.Events, 3)
	assert.Equal(t, scenario.ThreadInit, tr.Events[0].Thread)
	assert.Equal(t, 0, tr.Events[1].Thread)
	assert.Equal(t, scenario.ThreadPost, tr.Events[2].Thread)
}
