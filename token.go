package promise

import (
	"sync/atomic"
	"weak"
)

// tokenChainNode is an intrusive, weakly-referenced link from a parent
// Token to a Token chained from it via ChainFrom. Holding only a weak
// reference means a child Token's lifetime is never extended by its
// parent's chain list.
type tokenChainNode struct {
	next                             *tokenChainNode
	ref                               weak.Pointer[Token]
	includeCancelWithoutInvalidating bool
}

// tokenSubscriberNode is an intrusive, weakly-referenced, type-erased link
// from a Token to a promise registered via RequestCancelOnInvalidate. peek
// reports whether the underlying box is still reachable and not yet
// terminal (worth keeping in the list); fire requests its cancellation.
// Both closures close over a weak.Pointer[box[V,E]] captured once, at
// newTokenSubscriber's single generic call site, which is how a Token
// (itself non-generic) can hold references across heterogeneous
// Promise[V, E] instantiations without its own type parameter.
type tokenSubscriberNode struct {
	next *tokenSubscriberNode
	peek func() bool
	fire func()
}

func newTokenSubscriber[V, E any](p Promise[V, E]) *tokenSubscriberNode {
	wp := weak.Make(p.box)
	return &tokenSubscriberNode{
		peek: func() bool {
			b := wp.Value()
			return b != nil && !b.state().terminal()
		},
		fire: func() {
			if b := wp.Value(); b != nil {
				(Promise[V, E]{box: b}).RequestCancel()
			}
		},
	}
}

// Token is a generation-counted invalidation signal, shared across a tree
// of chained scopes. Combinators registered with WithToken(t) snapshot
// Generation() at registration time; if it has since moved on by the time
// the parent settles and the callback is about to dispatch, the user
// function is skipped (§4.5). Promises registered via
// RequestCancelOnInvalidate are, in addition, directly asked to cancel.
// Token holds only weak references to chained child tokens and subscribed
// promises, so neither keeps the other half of the graph alive.
type Token struct {
	generation        atomic.Uint64
	closed            atomic.Bool
	invalidateOnClose bool
	chainHead         atomic.Pointer[tokenChainNode]
	subHead           atomic.Pointer[tokenSubscriberNode]
}

// TokenOption configures a Token at construction.
type TokenOption interface{ apply(*tokenOptions) }

type tokenOptions struct {
	invalidateOnClose bool
}

type tokenOptionFunc func(*tokenOptions)

func (f tokenOptionFunc) apply(o *tokenOptions) { f(o) }

// WithInvalidateOnClose configures whether Close also invalidates the
// token (bumping its generation and firing its subscribers) before marking
// it closed. Defaults to true: a closed token almost always means "this
// scope is gone", so work still keyed to it should stop.
func WithInvalidateOnClose(enabled bool) TokenOption {
	return tokenOptionFunc(func(o *tokenOptions) { o.invalidateOnClose = enabled })
}

// NewToken constructs a Token at generation 0.
func NewToken(opts ...TokenOption) *Token {
	o := tokenOptions{invalidateOnClose: true}
	for _, opt := range opts {
		opt.apply(&o)
	}
	return &Token{invalidateOnClose: o.invalidateOnClose}
}

// Generation returns the token's current generation counter.
func (t *Token) Generation() uint64 { return t.generation.Load() }

func (t *Token) pushSubscriber(n *tokenSubscriberNode) {
	for {
		old := t.subHead.Load()
		n.next = old
		if t.subHead.CompareAndSwap(old, n) {
			return
		}
	}
}

func (t *Token) pushChain(n *tokenChainNode) {
	for {
		old := t.chainHead.Load()
		n.next = old
		if t.chainHead.CompareAndSwap(old, n) {
			return
		}
	}
}

// fireSubscribers detaches the whole subscriber list, fires every node
// that is still live, drops every node whose weak target died or already
// settled, then splices the surviving nodes back in ahead of anything
// concurrently pushed via RequestCancelOnInvalidate during the scan.
func (t *Token) fireSubscribers() {
	old := t.subHead.Swap(nil)
	var kept *tokenSubscriberNode
	for n := old; n != nil; {
		next := n.next
		if n.peek() {
			n.fire()
			n.next = kept
			kept = n
		}
		n = next
	}
	if kept == nil {
		return
	}
	for {
		head := t.subHead.Load()
		tail := kept
		for tail.next != nil {
			tail = tail.next
		}
		tail.next = head
		if t.subHead.CompareAndSwap(head, kept) {
			return
		}
	}
}

// fireChain walks the chain list, cascading Invalidate or
// CancelWithoutInvalidating to every still-live child token for which the
// operation applies, and compacts away dead weak references.
func (t *Token) fireChain(invalidating bool) {
	old := t.chainHead.Swap(nil)
	var kept *tokenChainNode
	for n := old; n != nil; {
		next := n.next
		child := n.ref.Value()
		if child != nil {
			if invalidating {
				child.Invalidate()
			} else if n.includeCancelWithoutInvalidating {
				child.CancelWithoutInvalidating()
			}
			n.next = kept
			kept = n
		}
		n = next
	}
	if kept == nil {
		return
	}
	for {
		head := t.chainHead.Load()
		tail := kept
		for tail.next != nil {
			tail = tail.next
		}
		tail.next = head
		if t.chainHead.CompareAndSwap(head, kept) {
			return
		}
	}
}

// Invalidate bumps the generation (suppressing any combinator callback
// already registered with an earlier snapshot), requests cancellation of
// every promise registered via RequestCancelOnInvalidate, and cascades to
// every token chained from this one via ChainFrom.
func (t *Token) Invalidate() {
	t.generation.Add(1)
	t.fireSubscribers()
	t.fireChain(true)
}

// CancelWithoutInvalidating requests cancellation of every promise
// registered via RequestCancelOnInvalidate, without bumping the
// generation: combinator callbacks already keyed to the current generation
// still run normally. Cascades only to tokens chained with
// includeCancelWithoutInvalidating set.
func (t *Token) CancelWithoutInvalidating() {
	t.fireSubscribers()
	t.fireChain(false)
}

// ChainFrom registers t (the receiver) as a dependent of parent: a future
// parent.Invalidate() also invalidates t, and, if
// includeCancelWithoutInvalidating is set, a future
// parent.CancelWithoutInvalidating() also cancels t's subscribers without
// bumping t's generation. parent holds only a weak reference to t.
func (t *Token) ChainFrom(parent *Token, includeCancelWithoutInvalidating bool) {
	if parent == nil || parent == t {
		return
	}
	parent.pushChain(&tokenChainNode{
		ref:                               weak.Make(t),
		includeCancelWithoutInvalidating: includeCancelWithoutInvalidating,
	})
}

// Close marks the token closed; if configured with WithInvalidateOnClose
// (the default), it also invalidates the token first. Closing an
// already-closed token is a no-op.
func (t *Token) Close() {
	if !t.closed.CompareAndSwap(false, true) {
		return
	}
	if t.invalidateOnClose {
		t.Invalidate()
	}
}

// RequestCancelOnInvalidate registers p to be asked to cancel every time t
// invalidates or cancels without invalidating, for as long as p remains
// unresolved. t holds only a weak reference to p's underlying Box.
func RequestCancelOnInvalidate[V, E any](t *Token, p Promise[V, E]) {
	if t == nil {
		return
	}
	t.pushSubscriber(newTokenSubscriber(p))
}

// RequestCancelOnInvalidate is the fluent, method-style form of the
// free function of the same name: it registers p with t and returns p
// unchanged, so it composes with other combinator calls.
func (p Promise[V, E]) RequestCancelOnInvalidate(t *Token) Promise[V, E] {
	RequestCancelOnInvalidate(t, p)
	return p
}
