package promise_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-promise"
)

func TestMap_OnValue(t *testing.T) {
	p := promise.Fulfilled[int, string](41)
	q := promise.Map(p, func(x int) int { return x + 1 })
	out, ok := q.Result()
	require.True(t, ok)
	v, _ := out.ValueOk()
	require.Equal(t, 42, v)
}

func TestMap_PassesErrorThrough(t *testing.T) {
	p := promise.Rejected[int, string]("oops")
	q := promise.Map(p, func(x int) int { return x + 1 })
	out, ok := q.Result()
	require.True(t, ok)
	e, _ := out.ErrorOk()
	require.Equal(t, "oops", e)
}

func TestFlatMap_AdoptsInnerOutcome(t *testing.T) {
	p := promise.Fulfilled[int, string](2)
	q := promise.FlatMap(p, func(x int) promise.Promise[string, string] {
		return promise.Fulfilled[string, string]("ok")
	})
	out, ok := q.Result()
	require.True(t, ok)
	v, _ := out.ValueOk()
	require.Equal(t, "ok", v)
}

func TestCatch_RunsOnErrorOnly_PassesOutcomeThrough(t *testing.T) {
	var seen string
	p := promise.Rejected[int, string]("boom")
	q := promise.Catch(p, func(e string) { seen = e })
	out, ok := q.Result()
	require.True(t, ok)
	require.Equal(t, "boom", seen)
	e, _ := out.ErrorOk()
	require.Equal(t, "boom", e)
}

func TestRecover_TurnsErrorIntoValue(t *testing.T) {
	p := promise.Rejected[int, string]("boom")
	q := promise.Recover(p, func(e string) int { return len(e) })
	out, ok := q.Result()
	require.True(t, ok)
	v, _ := out.ValueOk()
	require.Equal(t, 4, v)
}

func TestMapError_TransformsError(t *testing.T) {
	p := promise.Rejected[int, string]("boom")
	q := promise.MapError(p, func(e string) int { return len(e) })
	out, ok := q.Result()
	require.True(t, ok)
	e, _ := out.ErrorOk()
	require.Equal(t, 4, e)
}

func TestFlatMapError_AdoptsInnerOutcome(t *testing.T) {
	p := promise.Rejected[int, string]("boom")
	q := promise.FlatMapError(p, func(e string) promise.Promise[int, int] {
		return promise.Fulfilled[int, int](len(e))
	})
	out, ok := q.Result()
	require.True(t, ok)
	v, _ := out.ValueOk()
	require.Equal(t, 4, v)
}

func TestAlways_RunsForEveryKind(t *testing.T) {
	var kinds []promise.Kind
	record := func(o promise.Outcome[int, string]) { kinds = append(kinds, o.Kind()) }

	promise.Always(promise.Fulfilled[int, string](1), record)
	promise.Always(promise.Rejected[int, string]("x"), record)
	promise.Always(promise.CancelledPromise[int, string](), record)

	require.Equal(t, []promise.Kind{promise.KindValue, promise.KindError, promise.KindCancelled}, kinds)
}

func TestMapResult_TransformsWholeOutcome(t *testing.T) {
	p := promise.Fulfilled[int, string](5)
	q := promise.MapResult(p, func(o promise.Outcome[int, string]) promise.Outcome[string, int] {
		v, _ := o.ValueOk()
		return promise.Value[string, int]("got-" + string(rune('0'+v)))
	})
	out, ok := q.Result()
	require.True(t, ok)
	v, _ := out.ValueOk()
	require.Equal(t, "got-5", v)
}

func TestFlatMapResult_AdoptsInnerOutcome(t *testing.T) {
	p := promise.CancelledPromise[int, string]()
	q := promise.FlatMapResult(p, func(o promise.Outcome[int, string]) promise.Promise[int, string] {
		return promise.Fulfilled[int, string](99)
	})
	out, ok := q.Result()
	require.True(t, ok)
	v, _ := out.ValueOk()
	require.Equal(t, 99, v)
}

func TestOnCancel_RunsOnlyOnCancellation(t *testing.T) {
	var ran bool
	q := promise.OnCancel(promise.CancelledPromise[int, string](), func() { ran = true })
	out, ok := q.Result()
	require.True(t, ok)
	require.True(t, ran)
	require.True(t, out.IsCancelled())

	ran = false
	q2 := promise.OnCancel(promise.Fulfilled[int, string](1), func() { ran = true })
	_, ok = q2.Result()
	require.True(t, ok)
	require.False(t, ran)
}

func TestTap_DoesNotAffectParentObserverCount(t *testing.T) {
	p, r := promise.Pending[int, string]()

	var tapped promise.Outcome[int, string]
	tap := promise.Tap(p, func(o promise.Outcome[int, string]) { tapped = o })

	// Tap must not wire into automatic cancellation propagation: cancelling
	// tap has no effect on p at all.
	tap.RequestCancel()
	require.False(t, r.HasRequestedCancel())

	r.Fulfill(10)
	require.True(t, tapped.IsValue())
	v, _ := tapped.ValueOk()
	require.Equal(t, 10, v)
}

func TestTryMap_RecoversPanicAsPanicError(t *testing.T) {
	p := promise.Fulfilled[int, error](1)
	q := promise.TryMap(p, func(x int) int { panic("bang") })
	out, ok := q.Result()
	require.True(t, ok)
	require.True(t, out.IsError())
	err, _ := out.ErrorOk()
	var panicErr *promise.PanicError
	require.ErrorAs(t, err, &panicErr)
}

func TestTryMap_NormalValuePassesThrough(t *testing.T) {
	p := promise.Fulfilled[int, error](1)
	q := promise.TryMap(p, func(x int) int { return x * 2 })
	out, ok := q.Result()
	require.True(t, ok)
	v, _ := out.ValueOk()
	require.Equal(t, 2, v)
}

func TestTryFlatMapError_RecoversPanic(t *testing.T) {
	p := promise.Rejected[int, error](errors.New("orig"))
	q := promise.TryFlatMapError(p, func(e error) promise.Promise[int, error] {
		panic("nope")
	})
	out, ok := q.Result()
	require.True(t, ok)
	require.True(t, out.IsError())
	err, _ := out.ErrorOk()
	var panicErr *promise.PanicError
	require.ErrorAs(t, err, &panicErr)
}

func TestWithToken_SuppressesCallback(t *testing.T) {
	p, r := promise.Pending[int, string]()
	tok := promise.NewToken()
	var called bool
	q := promise.Map(p, func(x int) int { called = true; return x }, promise.WithToken(tok))

	tok.Invalidate()
	r.Fulfill(1)

	require.False(t, called)
	out, ok := q.Result()
	require.True(t, ok)
	require.True(t, out.IsCancelled())
}

func TestWithContext_DispatchesOnSuppliedContext(t *testing.T) {
	p := promise.Fulfilled[int, string](1)
	done := make(chan struct{})
	var ranOnGoroutine bool
	q := promise.Always(p, func(promise.Outcome[int, string]) {
		ranOnGoroutine = true
		close(done)
	}, promise.WithContext(promise.Goroutine))
	<-done
	require.True(t, ranOnGoroutine)
	_ = q
}
