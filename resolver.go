package promise

// Resolver is the unique write capability on a Box. It is handed out once,
// alongside the Promise read handle, by one of the pending constructors.
// Fulfill, Reject and Cancel are idempotent: only the first call across a
// Resolver (or its Promise's own cancellation machinery) has any effect.
type Resolver[V, E any] struct {
	box *box[V, E]
}

// Fulfill resolves the Box with a successful value. Returns true iff this
// call performed the resolution.
func (r *Resolver[V, E]) Fulfill(v V) bool {
	ok := r.box.resolveOutcome(Value[V, E](v))
	if ok {
		logger().Info().Str("kind", KindValue.String()).Log("promise: resolved")
	}
	return ok
}

// Reject resolves the Box with a failure error. Returns true iff this call
// performed the resolution.
func (r *Resolver[V, E]) Reject(e E) bool {
	ok := r.box.resolveOutcome(Error[V, E](e))
	if ok {
		logger().Info().Str("kind", KindError.String()).Log("promise: resolved")
	}
	return ok
}

// Cancel resolves the Box as cancelled. Returns true iff this call
// performed the resolution.
func (r *Resolver[V, E]) Cancel() bool {
	ok := r.box.resolveOutcome(Cancelled[V, E]())
	if ok {
		logger().Info().Str("kind", KindCancelled.String()).Log("promise: resolved")
	}
	return ok
}

// ResolveOutcome settles the Box with a pre-built Outcome. Returns true iff
// this call performed the resolution.
func (r *Resolver[V, E]) ResolveOutcome(o Outcome[V, E]) bool {
	return r.box.resolveOutcome(o)
}

// ResolveWith pipes src's eventual outcome into this Resolver: whatever src
// settles as, this Box settles as too.
func (r *Resolver[V, E]) ResolveWith(src Promise[V, E]) {
	pipe(src, r)
}

// OnRequestCancel registers f to run on ctx when a cancel has been
// requested on this Box (and it is still true at dispatch that the Box has
// not been resolved with a value or error out from under the request). If
// the Box is already past Empty and into Cancelling or Cancelled at
// registration, f runs immediately via ctx (synchronously for Immediate).
// If the Box is already Resolving or Resolved, f is discarded without
// running.
func (r *Resolver[V, E]) OnRequestCancel(ctx Context, f func(*Resolver[V, E])) {
	run := func(res *Resolver[V, E], nowEligible bool) {
		dispatch(ctx, nowEligible, func() {
			if st := res.box.state(); st == stateCancelling || st == stateCancelled {
				f(res)
			}
		})
	}
	node := &cancelNode[V, E]{fn: func(res *Resolver[V, E]) { run(res, false) }}
	sealed, st := r.box.attachCancelRequest(node)
	if !sealed {
		return
	}
	if st == stateCancelling || st == stateCancelled {
		run(r, true)
	}
}

// HasRequestedCancel reports whether request_cancel has moved this Box out
// of Empty, regardless of whether it has since fulfilled, rejected, or
// cancelled.
func (r *Resolver[V, E]) HasRequestedCancel() bool {
	return r.box.hasRequestedCancel()
}
