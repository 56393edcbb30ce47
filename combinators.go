package promise

// ChainOption configures a single combinator registration: the Context a
// callback dispatches through, and an optional Token whose generation
// suppresses the user callback if it has been invalidated by the time the
// parent settles.
type ChainOption interface{ apply(*chainOptions) }

type chainOptions struct {
	ctx   Context
	token *Token
}

type chainOptionFunc func(*chainOptions)

func (f chainOptionFunc) apply(o *chainOptions) { f(o) }

// WithContext selects the Context a combinator's callback dispatches on.
// Defaults to Immediate when not supplied.
func WithContext(ctx Context) ChainOption {
	return chainOptionFunc(func(o *chainOptions) { o.ctx = ctx })
}

// WithToken attaches a suppression Token: if the token is invalidated
// before the parent settles and the callback dispatches, the user function
// is skipped.
func WithToken(t *Token) ChainOption {
	return chainOptionFunc(func(o *chainOptions) { o.token = t })
}

func resolveChainOptions(opts []ChainOption) chainOptions {
	o := chainOptions{ctx: Immediate}
	for _, opt := range opts {
		opt.apply(&o)
	}
	return o
}

// newChild allocates a fresh combinator child of parent, wiring it into
// the automatic cancellation propagator (§4.7).
func newChild[PV, PE, CV, CE any](parent Promise[PV, PE]) (Promise[CV, CE], *Resolver[CV, CE]) {
	child, resolver := Pending[CV, CE]()
	child.box.isCombinatorChild = true
	attachPropagation(parent.box, child.box)
	return child, resolver
}

// registerObserver attaches handler as a completion observer of p: it
// fires exactly once with p's eventual outcome, dispatched via ctx, and ok
// reports whether token's generation at dispatch time still matches the
// generation recorded at registration (always true when token is nil).
func registerObserver[V, E any](p Promise[V, E], ctx Context, token *Token, handler func(out Outcome[V, E], ok bool)) {
	var gen uint64
	if token != nil {
		gen = token.Generation()
	}
	run := func(out Outcome[V, E], nowEligible bool) {
		ok := token == nil || token.Generation() == gen
		dispatch(ctx, nowEligible, func() { handler(out, ok) })
	}
	node := &callbackNode[V, E]{fn: func(o Outcome[V, E]) { run(o, false) }}
	if p.box.attachCallback(node) {
		run(p.box.terminalOutcome(), true)
	}
}

func recoverToError[T any](f func() T) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	result = f()
	return result, nil
}

// Map transforms a fulfilled value, passing rejection and cancellation
// through unchanged.
func Map[V, E, V2 any](p Promise[V, E], f func(V) V2, opts ...ChainOption) Promise[V2, E] {
	o := resolveChainOptions(opts)
	child, resolver := newChild[V, E, V2, E](p)
	registerObserver(p, o.ctx, o.token, func(out Outcome[V, E], ok bool) {
		switch {
		case out.IsValue():
			if !ok {
				resolver.Cancel()
				return
			}
			v, _ := out.ValueOk()
			resolver.Fulfill(f(v))
		case out.IsError():
			e, _ := out.ErrorOk()
			resolver.Reject(e)
		default:
			resolver.Cancel()
		}
	})
	return child
}

// FlatMap transforms a fulfilled value into a new promise and adopts its
// outcome, passing rejection and cancellation through unchanged.
func FlatMap[V, E, V2 any](p Promise[V, E], f func(V) Promise[V2, E], opts ...ChainOption) Promise[V2, E] {
	o := resolveChainOptions(opts)
	child, resolver := newChild[V, E, V2, E](p)
	registerObserver(p, o.ctx, o.token, func(out Outcome[V, E], ok bool) {
		switch {
		case out.IsValue():
			if !ok {
				resolver.Cancel()
				return
			}
			v, _ := out.ValueOk()
			pipe(f(v), resolver)
		case out.IsError():
			e, _ := out.ErrorOk()
			resolver.Reject(e)
		default:
			resolver.Cancel()
		}
	})
	return child
}

// Catch runs f as a side effect on rejection, without altering the
// outcome passed through to the child.
func Catch[V, E any](p Promise[V, E], f func(E), opts ...ChainOption) Promise[V, E] {
	o := resolveChainOptions(opts)
	child, resolver := newChild[V, E, V, E](p)
	registerObserver(p, o.ctx, o.token, func(out Outcome[V, E], ok bool) {
		if ok && out.IsError() {
			e, _ := out.ErrorOk()
			f(e)
		}
		resolver.ResolveOutcome(out)
	})
	return child
}

// Recover turns a rejection into a fulfilled value, passing a fulfilled or
// cancelled parent through unchanged.
func Recover[V, E any](p Promise[V, E], f func(E) V, opts ...ChainOption) Promise[V, E] {
	o := resolveChainOptions(opts)
	child, resolver := newChild[V, E, V, E](p)
	registerObserver(p, o.ctx, o.token, func(out Outcome[V, E], ok bool) {
		switch {
		case out.IsError():
			if !ok {
				resolver.Cancel()
				return
			}
			e, _ := out.ErrorOk()
			resolver.Fulfill(f(e))
		default:
			resolver.ResolveOutcome(out)
		}
	})
	return child
}

// MapError transforms a rejection's error, passing a fulfilled or
// cancelled parent through unchanged.
func MapError[V, E, E2 any](p Promise[V, E], f func(E) E2, opts ...ChainOption) Promise[V, E2] {
	o := resolveChainOptions(opts)
	child, resolver := newChild[V, E, V, E2](p)
	registerObserver(p, o.ctx, o.token, func(out Outcome[V, E], ok bool) {
		switch {
		case out.IsValue():
			v, _ := out.ValueOk()
			resolver.Fulfill(v)
		case out.IsError():
			if !ok {
				resolver.Cancel()
				return
			}
			e, _ := out.ErrorOk()
			resolver.Reject(f(e))
		default:
			resolver.Cancel()
		}
	})
	return child
}

// FlatMapError transforms a rejection into a new promise and adopts its
// outcome, passing a fulfilled or cancelled parent through unchanged.
func FlatMapError[V, E, E2 any](p Promise[V, E], f func(E) Promise[V, E2], opts ...ChainOption) Promise[V, E2] {
	o := resolveChainOptions(opts)
	child, resolver := newChild[V, E, V, E2](p)
	registerObserver(p, o.ctx, o.token, func(out Outcome[V, E], ok bool) {
		switch {
		case out.IsValue():
			v, _ := out.ValueOk()
			resolver.Fulfill(v)
		case out.IsError():
			if !ok {
				resolver.Cancel()
				return
			}
			e, _ := out.ErrorOk()
			pipe(f(e), resolver)
		default:
			resolver.Cancel()
		}
	})
	return child
}

// Always runs f with every outcome kind, without altering the outcome
// passed through to the child.
func Always[V, E any](p Promise[V, E], f func(Outcome[V, E]), opts ...ChainOption) Promise[V, E] {
	o := resolveChainOptions(opts)
	child, resolver := newChild[V, E, V, E](p)
	registerObserver(p, o.ctx, o.token, func(out Outcome[V, E], ok bool) {
		if ok {
			f(out)
		}
		resolver.ResolveOutcome(out)
	})
	return child
}

// MapResult transforms the whole outcome, including cancellation, into a
// possibly different value/error type pair.
func MapResult[V, E, V2, E2 any](p Promise[V, E], f func(Outcome[V, E]) Outcome[V2, E2], opts ...ChainOption) Promise[V2, E2] {
	o := resolveChainOptions(opts)
	child, resolver := newChild[V, E, V2, E2](p)
	registerObserver(p, o.ctx, o.token, func(out Outcome[V, E], ok bool) {
		if !ok {
			resolver.Cancel()
			return
		}
		resolver.ResolveOutcome(f(out))
	})
	return child
}

// FlatMapResult transforms the whole outcome into a new promise and adopts
// its outcome.
func FlatMapResult[V, E, V2, E2 any](p Promise[V, E], f func(Outcome[V, E]) Promise[V2, E2], opts ...ChainOption) Promise[V2, E2] {
	o := resolveChainOptions(opts)
	child, resolver := newChild[V, E, V2, E2](p)
	registerObserver(p, o.ctx, o.token, func(out Outcome[V, E], ok bool) {
		if !ok {
			resolver.Cancel()
			return
		}
		pipe(f(out), resolver)
	})
	return child
}

// OnCancel runs f only when the parent is cancelled, without altering the
// outcome passed through to the child.
func OnCancel[V, E any](p Promise[V, E], f func(), opts ...ChainOption) Promise[V, E] {
	o := resolveChainOptions(opts)
	child, resolver := newChild[V, E, V, E](p)
	registerObserver(p, o.ctx, o.token, func(out Outcome[V, E], ok bool) {
		if ok && out.IsCancelled() {
			f()
		}
		resolver.ResolveOutcome(out)
	})
	return child
}

// Tap runs f as a side effect against every outcome kind, without
// affecting the parent's observer count: using Tap never changes
// cancellation propagation.
func Tap[V, E any](p Promise[V, E], f func(Outcome[V, E]), opts ...ChainOption) Promise[V, E] {
	o := resolveChainOptions(opts)
	child, resolver := Pending[V, E]()
	child.box.isCombinatorChild = true
	registerObserver(p, o.ctx, o.token, func(out Outcome[V, E], ok bool) {
		if ok {
			f(out)
		}
		resolver.ResolveOutcome(out)
	})
	return child
}

// TryMap is Map for a promise whose error type is error: a panic from f is
// recovered and rejects the child with a *PanicError instead of
// propagating to the caller.
func TryMap[V, V2 any](p Promise[V, error], f func(V) V2, opts ...ChainOption) Promise[V2, error] {
	o := resolveChainOptions(opts)
	child, resolver := newChild[V, error, V2, error](p)
	registerObserver(p, o.ctx, o.token, func(out Outcome[V, error], ok bool) {
		switch {
		case out.IsValue():
			if !ok {
				resolver.Cancel()
				return
			}
			v, _ := out.ValueOk()
			r, err := recoverToError(func() V2 { return f(v) })
			if err != nil {
				resolver.Reject(err)
				return
			}
			resolver.Fulfill(r)
		case out.IsError():
			e, _ := out.ErrorOk()
			resolver.Reject(e)
		default:
			resolver.Cancel()
		}
	})
	return child
}

// TryFlatMap is FlatMap for a promise whose error type is error, with
// panic recovery as TryMap.
func TryFlatMap[V, V2 any](p Promise[V, error], f func(V) Promise[V2, error], opts ...ChainOption) Promise[V2, error] {
	o := resolveChainOptions(opts)
	child, resolver := newChild[V, error, V2, error](p)
	registerObserver(p, o.ctx, o.token, func(out Outcome[V, error], ok bool) {
		switch {
		case out.IsValue():
			if !ok {
				resolver.Cancel()
				return
			}
			v, _ := out.ValueOk()
			inner, err := recoverToError(func() Promise[V2, error] { return f(v) })
			if err != nil {
				resolver.Reject(err)
				return
			}
			pipe(inner, resolver)
		case out.IsError():
			e, _ := out.ErrorOk()
			resolver.Reject(e)
		default:
			resolver.Cancel()
		}
	})
	return child
}

// TryRecover is Recover with panic recovery as TryMap.
func TryRecover[V any](p Promise[V, error], f func(error) V, opts ...ChainOption) Promise[V, error] {
	o := resolveChainOptions(opts)
	child, resolver := newChild[V, error, V, error](p)
	registerObserver(p, o.ctx, o.token, func(out Outcome[V, error], ok bool) {
		switch {
		case out.IsError():
			if !ok {
				resolver.Cancel()
				return
			}
			e, _ := out.ErrorOk()
			r, err := recoverToError(func() V { return f(e) })
			if err != nil {
				resolver.Reject(err)
				return
			}
			resolver.Fulfill(r)
		default:
			resolver.ResolveOutcome(out)
		}
	})
	return child
}

// TryMapError is MapError with panic recovery as TryMap.
func TryMapError[V any](p Promise[V, error], f func(error) error, opts ...ChainOption) Promise[V, error] {
	o := resolveChainOptions(opts)
	child, resolver := newChild[V, error, V, error](p)
	registerObserver(p, o.ctx, o.token, func(out Outcome[V, error], ok bool) {
		switch {
		case out.IsValue():
			v, _ := out.ValueOk()
			resolver.Fulfill(v)
		case out.IsError():
			if !ok {
				resolver.Cancel()
				return
			}
			e, _ := out.ErrorOk()
			r, err := recoverToError(func() error { return f(e) })
			if err != nil {
				resolver.Reject(err)
				return
			}
			resolver.Reject(r)
		default:
			resolver.Cancel()
		}
	})
	return child
}

// TryFlatMapError is FlatMapError with panic recovery as TryMap.
func TryFlatMapError[V any](p Promise[V, error], f func(error) Promise[V, error], opts ...ChainOption) Promise[V, error] {
	o := resolveChainOptions(opts)
	child, resolver := newChild[V, error, V, error](p)
	registerObserver(p, o.ctx, o.token, func(out Outcome[V, error], ok bool) {
		switch {
		case out.IsValue():
			v, _ := out.ValueOk()
			resolver.Fulfill(v)
		case out.IsError():
			if !ok {
				resolver.Cancel()
				return
			}
			e, _ := out.ErrorOk()
			inner, err := recoverToError(func() Promise[V, error] { return f(e) })
			if err != nil {
				resolver.Reject(err)
				return
			}
			pipe(inner, resolver)
		default:
			resolver.Cancel()
		}
	})
	return child
}

// TryAlways is Always with panic recovery: a panicking f rejects the child
// with a *PanicError instead of passing the original outcome through.
func TryAlways[V any](p Promise[V, error], f func(Outcome[V, error]), opts ...ChainOption) Promise[V, error] {
	o := resolveChainOptions(opts)
	child, resolver := newChild[V, error, V, error](p)
	registerObserver(p, o.ctx, o.token, func(out Outcome[V, error], ok bool) {
		if ok {
			if _, err := recoverToError(func() any { f(out); return nil }); err != nil {
				resolver.Reject(err)
				return
			}
		}
		resolver.ResolveOutcome(out)
	})
	return child
}

// TryCatch is Catch with panic recovery as TryAlways.
func TryCatch[V any](p Promise[V, error], f func(error), opts ...ChainOption) Promise[V, error] {
	o := resolveChainOptions(opts)
	child, resolver := newChild[V, error, V, error](p)
	registerObserver(p, o.ctx, o.token, func(out Outcome[V, error], ok bool) {
		if ok && out.IsError() {
			e, _ := out.ErrorOk()
			if _, err := recoverToError(func() any { f(e); return nil }); err != nil {
				resolver.Reject(err)
				return
			}
		}
		resolver.ResolveOutcome(out)
	})
	return child
}

// TryOnCancel is OnCancel with panic recovery as TryAlways.
func TryOnCancel[V any](p Promise[V, error], f func(), opts ...ChainOption) Promise[V, error] {
	o := resolveChainOptions(opts)
	child, resolver := newChild[V, error, V, error](p)
	registerObserver(p, o.ctx, o.token, func(out Outcome[V, error], ok bool) {
		if ok && out.IsCancelled() {
			if _, err := recoverToError(func() any { f(); return nil }); err != nil {
				resolver.Reject(err)
				return
			}
		}
		resolver.ResolveOutcome(out)
	})
	return child
}

// TryTap is Tap with panic recovery as TryAlways.
func TryTap[V any](p Promise[V, error], f func(Outcome[V, error]), opts ...ChainOption) Promise[V, error] {
	o := resolveChainOptions(opts)
	child, resolver := Pending[V, error]()
	child.box.isCombinatorChild = true
	registerObserver(p, o.ctx, o.token, func(out Outcome[V, error], ok bool) {
		if ok {
			if _, err := recoverToError(func() any { f(out); return nil }); err != nil {
				resolver.Reject(err)
				return
			}
		}
		resolver.ResolveOutcome(out)
	})
	return child
}

// TryMapResult is MapResult with panic recovery as TryMap.
func TryMapResult[V, V2 any](p Promise[V, error], f func(Outcome[V, error]) Outcome[V2, error], opts ...ChainOption) Promise[V2, error] {
	o := resolveChainOptions(opts)
	child, resolver := newChild[V, error, V2, error](p)
	registerObserver(p, o.ctx, o.token, func(out Outcome[V, error], ok bool) {
		if !ok {
			resolver.Cancel()
			return
		}
		r, err := recoverToError(func() Outcome[V2, error] { return f(out) })
		if err != nil {
			resolver.Reject(err)
			return
		}
		resolver.ResolveOutcome(r)
	})
	return child
}

// TryFlatMapResult is FlatMapResult with panic recovery as TryMap.
func TryFlatMapResult[V, V2 any](p Promise[V, error], f func(Outcome[V, error]) Promise[V2, error], opts ...ChainOption) Promise[V2, error] {
	o := resolveChainOptions(opts)
	child, resolver := newChild[V, error, V2, error](p)
	registerObserver(p, o.ctx, o.token, func(out Outcome[V, error], ok bool) {
		if !ok {
			resolver.Cancel()
			return
		}
		inner, err := recoverToError(func() Promise[V2, error] { return f(out) })
		if err != nil {
			resolver.Reject(err)
			return
		}
		pipe(inner, resolver)
	})
	return child
}
