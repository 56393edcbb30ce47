package promise

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBox_ResolveOutcomeIdempotent(t *testing.T) {
	b := newBox[int, string]()
	require.True(t, b.resolveOutcome(Value[int, string](1)))
	require.False(t, b.resolveOutcome(Value[int, string](2)))
	require.False(t, b.resolveOutcome(Error[int, string]("x")))
	require.False(t, b.resolveOutcome(Cancelled[int, string]()))

	out := b.terminalOutcome()
	v, _ := out.ValueOk()
	require.Equal(t, 1, v)
}

func TestBox_RequestCancelThenFulfillStillResolves(t *testing.T) {
	b := newBox[int, string]()
	require.True(t, b.requestCancel())
	require.Equal(t, stateCancelling, b.state())
	require.True(t, b.resolveOutcome(Value[int, string](5)))
	require.Equal(t, stateResolved, b.state())
	out := b.terminalOutcome()
	v, _ := out.ValueOk()
	require.Equal(t, 5, v)
}

func TestBox_AttachCallbackBeforeResolution_RunsOnce(t *testing.T) {
	b := newBox[int, string]()
	var calls int
	node := &callbackNode[int, string]{fn: func(Outcome[int, string]) { calls++ }}
	sealed := b.attachCallback(node)
	require.False(t, sealed)

	b.resolveOutcome(Value[int, string](1))
	require.Equal(t, 1, calls)
}

func TestBox_AttachCallbackAfterResolution_CallerMustRunItself(t *testing.T) {
	b := newBox[int, string]()
	b.resolveOutcome(Value[int, string](1))

	node := &callbackNode[int, string]{fn: func(Outcome[int, string]) {}}
	sealed := b.attachCallback(node)
	require.True(t, sealed)
}

func TestBox_DrainCallbacksPreservesRegistrationOrder(t *testing.T) {
	b := newBox[int, string]()
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		b.attachCallback(&callbackNode[int, string]{fn: func(Outcome[int, string]) { order = append(order, i) }})
	}
	b.resolveOutcome(Value[int, string](0))
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestBox_ConcurrentAttachAndResolveNeverLosesOrDoublesACallback(t *testing.T) {
	for trial := 0; trial < 50; trial++ {
		b := newBox[int, string]()
		var calls int32Counter
		var wg sync.WaitGroup
		const n = 32
		wg.Add(n + 1)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				node := &callbackNode[int, string]{fn: func(Outcome[int, string]) { calls.inc() }}
				if b.attachCallback(node) {
					node.fn(b.terminalOutcome())
				}
			}()
		}
		go func() {
			defer wg.Done()
			b.resolveOutcome(Value[int, string](1))
		}()
		wg.Wait()
		require.EqualValues(t, n, calls.get())
	}
}

type int32Counter struct {
	mu sync.Mutex
	n  int
}

func (c *int32Counter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *int32Counter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func TestBox_Already_StartsWithBothObserverListsSealed(t *testing.T) {
	b := already[int, string](Value[int, string](7))

	var calls int
	node := &callbackNode[int, string]{fn: func(Outcome[int, string]) { calls++ }}
	require.True(t, b.attachCallback(node))

	cnode := &cancelNode[int, string]{fn: func(*Resolver[int, string]) {}}
	sealed, st := b.attachCancelRequest(cnode)
	require.True(t, sealed)
	require.Equal(t, stateResolved, st)
}

func TestBox_GiveUp_ForcesCancelledRegardlessOfCombinatorFlag(t *testing.T) {
	root := newBox[int, string]()
	root.giveUp()
	require.Equal(t, stateCancelled, root.state())
}

func TestBox_DecrementObserver_CascadesToZero(t *testing.T) {
	parent := newBox[int, string]()
	child := newBox[int, string]()
	child.isCombinatorChild = true
	attachPropagation(parent, child)

	child.giveUp()

	require.Equal(t, stateCancelled, child.state())
	require.Equal(t, stateCancelled, parent.state())
}
