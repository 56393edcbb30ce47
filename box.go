package promise

import "sync/atomic"

// boxState is the lifecycle state of a box. Transitions are monotonic along
// one of two paths: empty -> resolving -> resolved, or empty -> cancelling ->
// cancelled. empty -> cancelling -> resolving -> resolved is also permitted
// (a cancel was requested but the body still delivered a value). resolved
// and cancelled are absorbing.
type boxState uint32

const (
	stateEmpty boxState = iota
	stateResolving
	stateResolved
	stateCancelling
	stateCancelled
)

func (s boxState) terminal() bool {
	return s == stateResolved || s == stateCancelled
}

// callbackNode is an intrusive, singly-linked completion observer. Owned by
// the box once linked; box.go never inspects fn beyond invoking it.
type callbackNode[V, E any] struct {
	next *callbackNode[V, E]
	fn   func(Outcome[V, E])
}

// cancelNode is an intrusive, singly-linked cancel-request observer.
type cancelNode[V, E any] struct {
	next *cancelNode[V, E]
	fn   func(*Resolver[V, E])
}

// box is the shared resolution cell underlying every Promise/Resolver pair.
// It is a lock-free state machine plus two intrusive observer lists
// (callbacks and cancelRequests), each with a sealed-sentinel discipline: a
// list's head becomes a dedicated, never-aliased *Node value once drained,
// and any attach attempted thereafter falls through to immediate handling
// instead of being enqueued.
//
// Memory ordering relies on the sequential-consistency guarantee the Go
// memory model makes for sync/atomic operations (as of Go 1.19): a value is
// always written via result.Store before the CAS that publishes a terminal
// state, and any goroutine that observes the terminal state via st.Load has,
// by that same total order, observed the preceding Store. No separate
// acquire/release fence API is needed or available in Go; the atomic
// package's sequential consistency subsumes it.
type box[V, E any] struct {
	st             atomic.Uint32
	result         atomic.Pointer[Outcome[V, E]]
	callbackHead   atomic.Pointer[callbackNode[V, E]]
	callbackSeal   *callbackNode[V, E]
	cancelHead     atomic.Pointer[cancelNode[V, E]]
	cancelSeal     *cancelNode[V, E]
	// observerCount, isCombinatorChild and parentRelease back the automatic
	// cancellation propagator (§4.7 in the design): observerCount counts
	// this box's own live combinator children; parentRelease, when set,
	// releases this box's contributed unit on its parent's observerCount,
	// at most once. See propagate.go.
	observerCount     atomic.Int64
	isCombinatorChild bool
	parentRelease     func()

	// cancelRequested is sticky: it latches true the moment requestCancel
	// performs the Empty -> Cancelling transition, and stays true regardless
	// of whatever terminal state the box later reaches (including Resolved,
	// per the "Resolve after cancel-request" boundary). box.state() alone
	// cannot answer HasRequestedCancel once a post-cancel-request fulfill has
	// moved the state past Cancelling.
	cancelRequested atomic.Bool
}

func newBox[V, E any]() *box[V, E] {
	b := &box[V, E]{
		callbackSeal: &callbackNode[V, E]{},
		cancelSeal:   &cancelNode[V, E]{},
	}
	b.st.Store(uint32(stateEmpty))
	return b
}

// already builds a box pre-seeded with a terminal outcome; used by the
// already-fulfilled/already-rejected/already-cancelled constructors.
func already[V, E any](o Outcome[V, E]) *box[V, E] {
	b := newBox[V, E]()
	switch o.kind {
	case KindCancelled:
		b.st.Store(uint32(stateCancelled))
	default:
		b.result.Store(&o)
		b.st.Store(uint32(stateResolved))
	}
	// Already terminal at construction: both observer lists start sealed, so
	// attachCallback/attachCancelRequest report sealed immediately and the
	// caller runs its observer itself against the pre-set terminal outcome,
	// instead of silently enqueuing onto a list nothing will ever drain.
	b.callbackHead.Store(b.callbackSeal)
	b.cancelHead.Store(b.cancelSeal)
	return b
}

func (b *box[V, E]) state() boxState { return boxState(b.st.Load()) }

func (b *box[V, E]) tryTransition(from, to boxState) bool {
	return b.st.CompareAndSwap(uint32(from), uint32(to))
}

func (b *box[V, E]) tryTransitionAny(froms []boxState, to boxState) bool {
	for _, from := range froms {
		if b.st.CompareAndSwap(uint32(from), uint32(to)) {
			return true
		}
	}
	return false
}

// terminalOutcome reads the settled outcome. Must only be called once state
// is observed terminal (resolved or cancelled); the box invariant guarantees
// result is non-nil in the resolved case by the time that is visible.
func (b *box[V, E]) terminalOutcome() Outcome[V, E] {
	switch b.state() {
	case stateResolved:
		r := b.result.Load()
		if r == nil {
			panic(&InvariantError{Message: "box: state observed resolved before value was published"})
		}
		return *r
	case stateCancelled:
		return Cancelled[V, E]()
	default:
		panic(&InvariantError{Message: "box: terminalOutcome called on a non-terminal box"})
	}
}

// peek returns the settled outcome and true, or the zero Outcome and false
// if the box has not yet reached a terminal state.
func (b *box[V, E]) peek() (Outcome[V, E], bool) {
	if !b.state().terminal() {
		return Outcome[V, E]{}, false
	}
	return b.terminalOutcome(), true
}

// resolveOutcome performs resolve_or_cancel: it is the single entry point
// backing Resolver.fulfill/reject/cancel. Returns true iff this call is the
// one that settled the box (idempotency: later calls are silent no-ops).
func (b *box[V, E]) resolveOutcome(o Outcome[V, E]) bool {
	if o.kind == KindCancelled {
		if !b.tryTransitionAny([]boxState{stateEmpty, stateCancelling}, stateCancelled) {
			return false
		}
		// Seal the cancel-request list without running it: handlers still
		// queued here were never triggered by a cancel request.
		b.cancelHead.Store(b.cancelSeal)
		b.drainCallbacks()
		return true
	}

	if !b.tryTransitionAny([]boxState{stateEmpty, stateCancelling}, stateResolving) {
		return false
	}
	b.result.Store(&o)
	if !b.tryTransition(stateResolving, stateResolved) {
		panic(&InvariantError{Message: "box: impossible state transition resolving->resolved failed"})
	}
	b.cancelHead.Store(b.cancelSeal)
	b.drainCallbacks()
	return true
}

// requestCancel performs promise.request_cancel(): it attempts empty ->
// cancelling and, on success, seizes and drains cancel_requests. Returns
// true iff this call performed the empty -> cancelling transition.
func (b *box[V, E]) requestCancel() bool {
	if !b.tryTransition(stateEmpty, stateCancelling) {
		return false
	}
	b.cancelRequested.Store(true)
	b.drainCancelRequests()
	return true
}

// hasRequestedCancel reports whether requestCancel has ever performed the
// Empty -> Cancelling transition on this box, regardless of what terminal
// state it has since reached.
func (b *box[V, E]) hasRequestedCancel() bool {
	return b.cancelRequested.Load()
}

// attachCallback links node onto the callback list, or reports that the
// list is already sealed (in which case the caller must invoke node.fn
// itself, against the stored terminal outcome).
func (b *box[V, E]) attachCallback(node *callbackNode[V, E]) (sealed bool) {
	for {
		old := b.callbackHead.Load()
		if old == b.callbackSeal {
			return true
		}
		node.next = old
		if b.callbackHead.CompareAndSwap(old, node) {
			return false
		}
	}
}

// attachCancelRequest links node onto the cancel-request list, or reports
// sealed plus the box's state at the moment of sealing so the caller can
// decide whether to run node.fn immediately (cancelling/cancelled) or
// discard it (resolving/resolved), per §4.2.
func (b *box[V, E]) attachCancelRequest(node *cancelNode[V, E]) (sealed bool, st boxState) {
	for {
		old := b.cancelHead.Load()
		if old == b.cancelSeal {
			return true, b.state()
		}
		node.next = old
		if b.cancelHead.CompareAndSwap(old, node) {
			return false, stateEmpty
		}
	}
}

func reverseCallbacks[V, E any](head *callbackNode[V, E]) *callbackNode[V, E] {
	var rev *callbackNode[V, E]
	for n := head; n != nil; {
		next := n.next
		n.next = rev
		rev = n
		n = next
	}
	return rev
}

func reverseCancels[V, E any](head *cancelNode[V, E]) *cancelNode[V, E] {
	var rev *cancelNode[V, E]
	for n := head; n != nil; {
		next := n.next
		n.next = rev
		rev = n
		n = next
	}
	return rev
}

// drainCallbacks seizes the callback list (seals it) and invokes every node
// in FIFO registration order against the now-terminal outcome. Safe to call
// more than once; a redundant call observes the list already sealed and
// does nothing.
func (b *box[V, E]) drainCallbacks() {
	old := b.callbackHead.Swap(b.callbackSeal)
	if old == b.callbackSeal {
		return
	}
	outcome := b.terminalOutcome()
	for n := reverseCallbacks(old); n != nil; n = n.next {
		n.fn(outcome)
	}
}

// giveUp is the terminal action for a box whose downstream interest has
// gone to zero, whether because every one of its own combinator children
// released it or because it was itself a combinator child explicitly told
// to cancel: it runs the advisory request-cancel step (so any live
// cancel-request observer still gets a chance to react), then
// authoritatively settles the box as cancelled — a root reached this way
// has, by definition, lost its last interested downstream observer, so
// forcing it terminal here is what lets cancellation cascade all the way
// up a chain instead of stalling at cancelling (§4.7; see the literal
// scenario asserting both a combinator child and the root it was derived
// from end in cancelled) — and finally releases its own unit on its
// parent, continuing the cascade. Never called for a root's own, direct,
// explicit RequestCancel: that path stays purely advisory and never
// reaches giveUp.
func (b *box[V, E]) giveUp() {
	b.requestCancel()
	b.resolveOutcome(Cancelled[V, E]())
	if b.parentRelease != nil {
		b.parentRelease()
	}
}

// decrementObserver releases one unit of downstream interest. Called by a
// combinator child when it is itself given up (see giveUp). When this
// brings the count to zero, this box has lost every reason to stay alive
// and gives up in turn.
func (b *box[V, E]) decrementObserver() {
	if b.observerCount.Add(-1) == 0 {
		b.giveUp()
	}
}

// drainCancelRequests seizes the cancel-request list and invokes every node
// in FIFO order with a Resolver wrapping this box. Safe to call more than
// once.
func (b *box[V, E]) drainCancelRequests() {
	old := b.cancelHead.Swap(b.cancelSeal)
	if old == b.cancelSeal {
		return
	}
	r := &Resolver[V, E]{box: b}
	for n := reverseCancels(old); n != nil; n = n.next {
		n.fn(r)
	}
}
