package oracle

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concurrit/lincheck/scenario"
)

type Counter struct {
	value int
}

func (c *Counter) IncAndGet() int { c.value++; return c.value }
func (c *Counter) Get() int       { return c.value }
func (c *Counter) Reset()         { c.value = 0 }

type notFoundError struct{ msg string }

func (e *notFoundError) Error() string { return e.msg }

func (c *Counter) GetOrFail(fail bool) (int, error) {
	if fail {
		return 0, &notFoundError{msg: "not found"}
	}
	return c.value, nil
}

func TestOracle_Apply_Value(t *testing.T) {
	c := &Counter{}
	o := New(c)

	r, err := o.Apply(c, scenario.Actor{Operation: "IncAndGet"})
	require.NoError(t, err)
	assert.Equal(t, scenario.KindValue, r.Kind())
	assert.Equal(t, 1, r.ValuePayload())
}

func TestOracle_Apply_Void(t *testing.T) {
	c := &Counter{value: 5}
	o := New(c)

	r, err := o.Apply(c, scenario.Actor{Operation: "Reset"})
	require.NoError(t, err)
	assert.Equal(t, scenario.KindVoid, r.Kind())
	assert.Equal(t, 0, c.value)
}

func TestOracle_Apply_HandledException(t *testing.T) {
	c := &Counter{}
	o := New(c)

	actor := scenario.Actor{
		Operation:         "GetOrFail",
		Args:              []any{true},
		HandledExceptions: []reflect.Type{reflect.TypeOf(&notFoundError{})},
	}
	r, err := o.Apply(c, actor)
	require.NoError(t, err)
	assert.Equal(t, scenario.KindException, r.Kind())
	assert.Contains(t, r.ClassName(), "notFoundError")
}

func TestOracle_Apply_UnhandledExceptionIsFatal(t *testing.T) {
	c := &Counter{}
	o := New(c)

	actor := scenario.Actor{Operation: "GetOrFail", Args: []any{true}}
	_, err := o.Apply(c, actor)
	require.Error(t, err)
	var oe *OracleError
	require.True(t, errors.As(err, &oe))
}

func TestOracle_Apply_UnknownOperation(t *testing.T) {
	c := &Counter{}
	o := New(c)

	_, err := o.Apply(c, scenario.Actor{Operation: "DoesNotExist"})
	require.Error(t, err)
}

func TestContinuation_ResumeAndCancel(t *testing.T) {
	cont := NewContinuation()
	go cont.Resume(scenario.Value(42))
	got := cont.Await()
	assert.Equal(t, scenario.KindValue, got.Kind())
	assert.Equal(t, 42, got.ValuePayload())

	cont2 := NewContinuation()
	go cont2.Cancel()
	got2 := cont2.Await()
	assert.Equal(t, scenario.KindCancelled, got2.Kind())
}
