package promise

import "sync"

// attachPropagation wires a freshly-created combinator child to its parent
// for the purposes of automatic cancellation propagation (§4.7): the
// parent gains one unit of observerCount, and the child's parentRelease
// releases that unit, exactly once, the first time the child either gives
// up on its own (decrementObserver reaching zero with no children of its
// own) or is explicitly told to cancel.
//
// Parent and child may be instantiated over different V/E type pairs (as
// with map/flatMap/mapError/...); since this helper itself is generic over
// both pairs within the combinator's own call frame, no type erasure is
// needed here — that machinery is reserved for Token, which must hold weak
// references across combinator calls it did not itself generate.
func attachPropagation[PV, PE, CV, CE any](parent *box[PV, PE], child *box[CV, CE]) {
	parent.observerCount.Add(1)
	var once sync.Once
	child.parentRelease = func() {
		once.Do(func() { parent.decrementObserver() })
	}
}
