package signalfsm

import (
	"log/slog"

	"github.com/cockroachdb/errors"
)

// AssertHandler is the fatal sink invoked on a contract violation. It must
// not return: typical implementations log and reset, halt, or panic. If it
// does return, the engine panics with the same error.
type AssertHandler func(err error)

// DefaultAssertHandler is used by machines created without
// WithAssertHandler, and for violations detected before a machine exists.
var DefaultAssertHandler AssertHandler = PanicAssertHandler

// PanicAssertHandler panics with err
func PanicAssertHandler(err error) {
	panic(err)
}

// IsFatal reports whether v, typically a value returned by recover, is an
// engine assertion failure.
func IsFatal(v any) bool {
	err, ok := v.(error)
	return ok && errors.HasAssertionFailure(err)
}

// fatal routes err to the machine's assert handler, or to
// DefaultAssertHandler when m is nil. It never returns.
func fatal(m *Machine, err error) {
	logger := Logger
	handler := DefaultAssertHandler
	if m != nil {
		if m.logger != nil {
			logger = m.logger
		}
		if m.onAssert != nil {
			handler = m.onAssert
		}
		logger = logger.With(slog.String("state", m.current.Name()))
	}

	logger.Error("fsm assertion failed", "error", err)
	if handler != nil {
		handler(err)
	}
	panic(err)
}
