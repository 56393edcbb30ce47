// Package promise provides a generic, lock-free future/promise core:
// an unexported box as the shared resolution cell, [Promise]/[Resolver] the read/write
// capability pair over it, [Token] a weak-referenced invalidation signal,
// and a set of generic combinators for chaining.
//
// # Architecture
//
// Every promise is backed by a Box (the unexported box type), a lock-free state machine reached
// only through [Promise] (read) and [Resolver] (write) handles returned
// together by [Pending]. A Box moves monotonically from empty through
// either resolving to resolved, or cancelling to cancelled — with
// cancelling able to still land in resolved if the body delivers a value
// before observing the cancel request. Two intrusive, singly-linked
// observer lists hang off each Box: completion callbacks, and
// cancel-request callbacks, both using a CAS-prepend-then-seal discipline
// so a registration racing a resolution is never lost and never double-run.
//
// Combinators ([Map], [FlatMap], [Catch], [Recover], [MapError],
// [FlatMapError], [Always], [MapResult], [FlatMapResult], [OnCancel],
// [Tap], and their panic-recovering Try variants) build a child Promise
// from a parent one. All of them except [Tap] and [TryTap] wire the pair
// into the automatic cancellation propagator; Tap and TryTap leave the
// parent's observer count untouched. When a child's last interested observer gives up, that
// interest is released upward, and a parent with no remaining reason to
// stay alive cancels in turn.
//
// [Token] layers generation-counted invalidation and weak-referenced
// auto-cancel subscriptions on top, for scoped cancellation trees (a
// request context, a UI view's lifetime) that outlive any single promise
// chain built against them.
//
// # Execution Model
//
// Every callback dispatches through a [Context]: [Immediate] runs
// synchronously on whichever goroutine triggers it, [Goroutine] spawns one
// goroutine per dispatch with panic recovery, [NewSerialContext] runs
// dispatched work on a single dedicated goroutine in submission order, and
// [NowOr] composes with another Context to avoid a round trip through its
// queue when the promise being observed is already settled at registration
// time.
//
// # Usage
//
//	p, r := promise.Pending[int, error]()
//	child := promise.Map(p, func(v int) int { return v * 2 })
//	r.Fulfill(21)
//	out, ok := child.Result() // Value(42), true
//
// # Error Types
//
// The package provides two error types: [InvariantError] for violations of
// a Box's own state-machine invariants (a library bug, not a caller
// mistake), and [PanicError], which wraps a panic recovered from a
// WithBodyErr body or a Try-variant combinator callback.
//
// Both implement the standard [error] interface and [errors.Unwrap].
package promise
