package promise

import (
	"sync/atomic"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// logState holds the package-level structured logger used by Promise,
// Resolver and the Context reference implementations to report resolution
// events and recovered panics. It defaults to nil, which is a fully valid,
// disabled *logiface.Logger[*stumpy.Event]: every method on a nil Logger is
// documented as safe to call and a no-op, so importing this package incurs
// no logging overhead unless SetLogger is called.
var logState atomic.Pointer[logiface.Logger[*stumpy.Event]]

// SetLogger installs l as the package-level logger. Passing nil restores
// the disabled default. Safe for concurrent use with logging calls already
// in flight.
func SetLogger(l *logiface.Logger[*stumpy.Event]) {
	logState.Store(l)
}

// logger returns the current package-level logger; nil is a valid, fully
// functional (but disabled) value per logiface's contract.
func logger() *logiface.Logger[*stumpy.Event] {
	return logState.Load()
}

// newPanicLogErr adapts an arbitrary recovered value into an error
// suitable for Builder.Err, so a panic captured from a combinator or a
// WithBodyErr body can be logged without a type switch at every call site.
func newPanicLogErr(recovered any) error {
	if err, ok := recovered.(error); ok {
		return err
	}
	return &PanicError{Value: recovered}
}
