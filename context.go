package promise

// Context is the execution-location capability a callback is dispatched
// through. It is deliberately a thin contract: Execute eventually runs fn
// on whatever thread the Context represents, and IsImmediate reports
// whether that dispatch is synchronous on the calling goroutine. Real
// production schedulers (serial queues, worker pools, a UI main thread) are
// expected to implement this interface themselves; the variants below are
// reference implementations sufficient to exercise and test the contract,
// not a production scheduler.
type Context interface {
	Execute(fn func())
	IsImmediate() bool
}

type immediateContext struct{}

func (immediateContext) Execute(fn func()) { fn() }
func (immediateContext) IsImmediate() bool { return true }

// Immediate runs callbacks synchronously on whichever goroutine triggers
// them: the resolving goroutine for a terminal dispatch, or the attaching
// goroutine for a post-resolution (sealed) attach.
var Immediate Context = immediateContext{}

type goroutineContext struct{}

// Goroutine dispatches each callback on its own newly-spawned goroutine. A
// panic inside the callback is recovered and logged rather than crashing
// the process, matching the defensive dispatch the teacher's event loop
// uses around submitted work.
var Goroutine Context = goroutineContext{}

func (goroutineContext) Execute(fn func()) {
	go runRecovered(fn)
}

func (goroutineContext) IsImmediate() bool { return false }

func runRecovered(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger().Err().Err(newPanicLogErr(r)).Log("promise: recovered panic from dispatched callback")
		}
	}()
	fn()
}

// serialContext runs every dispatched callback on a single dedicated
// goroutine, in submission order, via a buffered job channel of fixed
// capacity (see WithQueueCapacity); Execute blocks while that channel is
// full. It is the reference stand-in for a "specific serial queue" context.
type serialContext struct {
	jobs chan func()
}

// NewSerialContext starts a background goroutine that executes dispatched
// callbacks one at a time, in the order Execute was called.
func NewSerialContext(opts ...ContextOption) Context {
	cfg := resolveContextOptions(opts)
	c := &serialContext{jobs: make(chan func(), cfg.queueCapacity)}
	go c.run()
	return c
}

func (c *serialContext) run() {
	for fn := range c.jobs {
		runRecovered(fn)
	}
}

func (c *serialContext) Execute(fn func()) { c.jobs <- fn }
func (c *serialContext) IsImmediate() bool { return false }

type nowOrContext struct {
	inner Context
}

// NowOr returns a Context that runs synchronously, as if Immediate, when
// the attach it is used for observes an already-terminal Box at
// registration time; otherwise it defers to inner. This is the "now-or"
// composite context from the external collaborator contract: registering a
// callback on an already-settled promise should not pay for a round trip
// through inner's dispatch queue.
func NowOr(inner Context) Context {
	if inner == nil {
		inner = Immediate
	}
	return nowOrContext{inner: inner}
}

func (c nowOrContext) Execute(fn func()) { c.inner.Execute(fn) }
func (c nowOrContext) IsImmediate() bool { return false }

// dispatch runs fn via ctx, special-casing nowOrContext: when nowEligible
// is true (the attach that produced fn observed the source already
// terminal), a nowOrContext runs fn synchronously instead of deferring to
// its inner context. nowEligible is ignored for every other Context, since
// Immediate is already synchronous and every other context's asynchronous
// contract is unaffected by when the registration happened.
func dispatch(ctx Context, nowEligible bool, fn func()) {
	if ctx == nil {
		ctx = Immediate
	}
	if noc, ok := ctx.(nowOrContext); ok {
		if nowEligible {
			fn()
			return
		}
		noc.inner.Execute(fn)
		return
	}
	ctx.Execute(fn)
}
