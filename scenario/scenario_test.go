package scenario

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenario_Validate_RunOnceDuplicate(t *testing.T) {
	s := &Scenario{
		Parallel: [][]Actor{
			{{Operation: "init", RunOnce: true}},
			{{Operation: "init", RunOnce: true}},
		},
	}
	err := s.Validate()
	require.Error(t, err)
	var se *ScenarioError
	require.True(t, errors.As(err, &se))
	assert.Contains(t, se.Error(), "runOnce")
}

func TestScenario_Validate_SuspendableRequiresEmptyInitPost(t *testing.T) {
	s := &Scenario{
		Init:     []Actor{{Operation: "setup"}},
		Parallel: [][]Actor{{{Operation: "await", IsSuspendable: true}}},
	}
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init and post must be empty")
}

func TestScenario_Validate_NonParallelGroupSingleThread(t *testing.T) {
	g := OperationGroup{Name: "writers", NonParallel: true}
	s := &Scenario{
		Parallel: [][]Actor{
			{{Operation: "write", Group: g}},
			{{Operation: "write", Group: g}},
		},
	}
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonParallel group")
}

func TestScenario_Validate_OK(t *testing.T) {
	g := OperationGroup{Name: "writers", NonParallel: true}
	s := &Scenario{
		Parallel: [][]Actor{
			{{Operation: "write", Group: g}, {Operation: "write", Group: g}},
			{{Operation: "read"}},
		},
	}
	assert.NoError(t, s.Validate())
}

func TestResult_Equal(t *testing.T) {
	assert.True(t, Value(1).Equal(Value(1)))
	assert.False(t, Value(1).Equal(Value(2)))
	assert.True(t, Void().Equal(Void()))
	assert.False(t, Void().Equal(Suspended()))
	assert.True(t, Exception("FooError").Equal(Exception("FooError")))
	assert.False(t, Exception("FooError").Equal(Exception("BarError")))
	assert.True(t, Cancelled().Equal(Cancelled()))
	assert.True(t, NoResult().Equal(NoResult()))
}

func TestClock_HappensBeforeStart(t *testing.T) {
	c := Clock{2, 0}
	assert.True(t, c.HappensBeforeStart(0, 1))
	assert.False(t, c.HappensBeforeStart(0, 2))
}

func TestExecutionResult_Valid(t *testing.T) {
	r := &ExecutionResult{
		ParallelResults: [][]ResultWithClock{
			{
				{Result: Void(), Clock: Clock{0, 0}},
				{Result: Void(), Clock: Clock{1, 0}},
			},
			{
				{Result: Void(), Clock: Clock{0, 0}},
			},
		},
	}
	assert.True(t, r.Valid())

	bad := &ExecutionResult{
		ParallelResults: [][]ResultWithClock{
			{{Result: Void(), Clock: Clock{1, 0}}},
		},
	}
	assert.False(t, bad.Valid())
}
