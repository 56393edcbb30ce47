package promise_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-promise"
)

func TestOutcome_Constructors(t *testing.T) {
	v := promise.Value[int, string](42)
	require.True(t, v.IsValue())
	require.Equal(t, promise.KindValue, v.Kind())
	val, ok := v.ValueOk()
	require.True(t, ok)
	require.Equal(t, 42, val)

	e := promise.Error[int, string]("boom")
	require.True(t, e.IsError())
	err, ok := e.ErrorOk()
	require.True(t, ok)
	require.Equal(t, "boom", err)

	c := promise.Cancelled[int, string]()
	require.True(t, c.IsCancelled())
	require.Equal(t, promise.KindCancelled, c.Kind())
}

func TestOutcome_WrongAccessorReturnsZeroFalse(t *testing.T) {
	v := promise.Value[int, string](42)
	_, ok := v.ErrorOk()
	require.False(t, ok)
}

func TestMapOutcome(t *testing.T) {
	toStr := func(v int) string { return "n" }
	lenErr := func(e string) int { return len(e) }

	v := promise.MapOutcome(promise.Value[int, string](7), toStr, lenErr)
	require.True(t, v.IsValue())
	s, _ := v.ValueOk()
	require.Equal(t, "n", s)

	e := promise.MapOutcome(promise.Error[int, string]("oops"), toStr, lenErr)
	require.True(t, e.IsError())
	n, _ := e.ErrorOk()
	require.Equal(t, 4, n)

	c := promise.MapOutcome[int, string, string, int](promise.Cancelled[int, string](), toStr, lenErr)
	require.True(t, c.IsCancelled())
}

func TestKind_String(t *testing.T) {
	require.Equal(t, "value", promise.KindValue.String())
	require.Equal(t, "error", promise.KindError.String())
	require.Equal(t, "cancelled", promise.KindCancelled.String())
}
