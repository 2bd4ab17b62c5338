package signalfsm

import "github.com/cockroachdb/errors"

// Contract violations. Every fatal failure raised by the engine is an
// assertion failure wrapping one of these, so
// errors.Is(err, ErrChainExceeded) identifies what went wrong.
var (
	ErrNilMachine       = errors.New("nil machine")
	ErrNilState         = errors.New("nil state")
	ErrNilEvent         = errors.New("nil event")
	ErrZeroBound        = errors.New("max chained transitions must be greater than zero")
	ErrReservedSignal   = errors.New("reserved signal dispatched")
	ErrInitNoTransition = errors.New("initial state did not transition")
	ErrExitTransition   = errors.New("exit handler returned transition or error")
	ErrStatusMismatch   = errors.New("handler status does not match Tran usage")
	ErrHandlerError     = errors.New("handler returned error status")
	ErrChainExceeded    = errors.New("max chained transitions exceeded")
	ErrNotStarted       = errors.New("machine not started")
	ErrAlreadyStarted   = errors.New("machine already started")
	ErrReentrant        = errors.New("re-entrant dispatch")
	ErrTranOutside      = errors.New("state change requested outside of a handler")
)

// Runtime conditions reported by Runner. These are ordinary errors.
var (
	ErrQueueFull     = errors.New("event queue full")
	ErrRunnerStopped = errors.New("runner stopped")
	ErrRunnerStarted = errors.New("runner already started")
)

// violation builds an assertion failure wrapping kind
func violation(kind error, format string, args ...any) error {
	return errors.WithAssertionFailure(errors.WrapWithDepthf(1, kind, format, args...))
}
