package promise

import (
	"runtime"
	"sync"
)

// EnableCreationTracking gates whether Promise constructors record their
// caller's file and line for later retrieval via Promise.CreationSite. It
// defaults to off, so the common case pays no runtime.Caller cost; flip it
// on for debug builds or tests that need to attribute a stuck promise back
// to where it was created.
var EnableCreationTracking = false

// Promise is a read handle onto a Box: it can be queried, chained via the
// combinator methods, and asked to propagate cancellation, but it cannot
// resolve the Box directly — only a Resolver can do that. Promise values
// are cheap to copy; every copy shares the same underlying Box.
type Promise[V, E any] struct {
	box  *box[V, E]
	file string
	line int
}

func captureSite() (file string, line int) {
	if !EnableCreationTracking {
		return "", 0
	}
	_, file, line, _ = runtime.Caller(2)
	return file, line
}

// Pending constructs a fresh, unresolved promise and returns it alongside
// the Resolver that settles it.
func Pending[V, E any]() (Promise[V, E], *Resolver[V, E]) {
	b := newBox[V, E]()
	file, line := captureSite()
	return Promise[V, E]{box: b, file: file, line: line}, &Resolver[V, E]{box: b}
}

// Fulfilled constructs an already-fulfilled promise.
func Fulfilled[V, E any](v V) Promise[V, E] {
	file, line := captureSite()
	return Promise[V, E]{box: already[V, E](Value[V, E](v)), file: file, line: line}
}

// Rejected constructs an already-rejected promise.
func Rejected[V, E any](e E) Promise[V, E] {
	file, line := captureSite()
	return Promise[V, E]{box: already[V, E](Error[V, E](e)), file: file, line: line}
}

// CancelledPromise constructs an already-cancelled promise.
func CancelledPromise[V, E any]() Promise[V, E] {
	file, line := captureSite()
	return Promise[V, E]{box: already[V, E](Cancelled[V, E]()), file: file, line: line}
}

// WithBody runs body on ctx and returns the promise it settles. Go has no
// deterministic destructor to stand in for "a Resolver dropped without
// resolving", so WithBody is the structured substitute: if body returns
// without ever calling Fulfill/Reject/Cancel, the promise is cancelled on
// its behalf, the same way an abandoned Resolver is specified to behave.
// Panics inside body are not recovered here — E is not guaranteed to be
// the language's error type, so there is no generic value to reject with;
// see WithBodyErr for the error-typed convenience wrapper that does
// recover.
func WithBody[V, E any](ctx Context, body func(r *Resolver[V, E])) Promise[V, E] {
	b := newBox[V, E]()
	file, line := captureSite()
	p := Promise[V, E]{box: b, file: file, line: line}
	r := &Resolver[V, E]{box: b}
	dispatch(ctx, false, func() {
		defer func() {
			b.resolveOutcome(Cancelled[V, E]())
		}()
		body(r)
	})
	return p
}

// WithBodyErr is WithBody specialised to the common case where the
// promise's error type is the language's generic error: in addition to
// cancelling on an unresolved return, it recovers a panicking body and
// rejects with a *PanicError, mirroring the teacher's Promisify.
func WithBodyErr[V any](ctx Context, body func(r *Resolver[V, error])) Promise[V, error] {
	b := newBox[V, error]()
	file, line := captureSite()
	p := Promise[V, error]{box: b, file: file, line: line}
	r := &Resolver[V, error]{box: b}
	dispatch(ctx, false, func() {
		defer func() {
			if rec := recover(); rec != nil {
				logger().Err().Err(newPanicLogErr(rec)).Log("promise: body panicked")
				b.resolveOutcome(Error[V, error](&PanicError{Value: rec}))
				return
			}
			b.resolveOutcome(Cancelled[V, error]())
		}()
		body(r)
	})
	return p
}

// CreationSite returns the file and line EnableCreationTracking captured
// when this promise was constructed, or ("", 0) if tracking was disabled at
// that time. Combinator children are constructed inside this package, so
// the site they report is the package-internal call that built them, not
// the caller of the combinator.
func (p Promise[V, E]) CreationSite() (file string, line int) {
	return p.file, p.line
}

// Result returns the settled outcome and true, or the zero Outcome and
// false if the promise has not yet reached a terminal state.
func (p Promise[V, E]) Result() (Outcome[V, E], bool) {
	return p.box.peek()
}

// IsResolved reports whether the promise has reached any terminal state
// (fulfilled, rejected, or cancelled).
func (p Promise[V, E]) IsResolved() bool {
	_, ok := p.box.peek()
	return ok
}

// RequestCancel asks this promise to cancel. For a root promise (one
// constructed via Pending or WithBody) this is purely advisory: it moves
// the Box to Cancelling and runs any registered cancel-request observers,
// but the body remains free to still deliver a value. For a combinator
// child, which has no independent body of its own, the request is
// authoritative: nothing else will ever settle it, so it is immediately
// cancelled, and the cascade continues to whatever promise it was chained
// from if that promise's own remaining interest has also hit zero.
func (p Promise[V, E]) RequestCancel() {
	if p.box.isCombinatorChild {
		p.box.giveUp()
		return
	}
	p.box.requestCancel()
}

// IgnoringCancel returns a child promise carrying the same eventual
// outcome as p, except that cancelling the child never propagates upstream
// to p; §4.7's automatic cancellation propagator is disabled for this
// link.
func (p Promise[V, E]) IgnoringCancel() Promise[V, E] {
	child, resolver := Pending[V, E]()
	child.box.isCombinatorChild = true
	pipe(p, resolver)
	return child
}

// PropagatingCancellation returns a child whose propagation rule is
// inverted from the default: rather than waiting for its own holder to
// explicitly request cancellation, it propagates to p as soon as every one
// of ITS OWN combinator children has given up, even while a reference to
// the returned Promise is still held. cancelRequested, if non-nil, runs
// exactly once, immediately before the upstream propagation, so callers
// such as a de-duplication cache can release an entry at that moment.
func (p Promise[V, E]) PropagatingCancellation(cancelRequested func()) Promise[V, E] {
	child, resolver := Pending[V, E]()
	pipe(p, resolver)
	attachPropagation(p.box, child.box)
	child.box.isCombinatorChild = false
	parentRelease := child.box.parentRelease
	var once sync.Once
	child.box.parentRelease = func() {
		once.Do(func() {
			if cancelRequested != nil {
				cancelRequested()
			}
			if parentRelease != nil {
				parentRelease()
			}
		})
	}
	// Unlike a standard combinator child, an explicit RequestCancel on this
	// promise is not what triggers the upstream cascade; giving up all of
	// its own children is. Route RequestCancel to the ordinary advisory
	// path instead of giveUp by leaving isCombinatorChild false, and let
	// decrementObserver (driven by this child's own children) invoke
	// parentRelease once this box's observerCount reaches zero.
	return child
}
