package signalfsm

import (
	"log/slog"
	"strconv"
)

// Signal identifies the meaning of an event
type Signal int16

// Reserved signals. They are generated by the engine and must never be
// dispatched by the application. Application signals start at SigUser.
const (
	// SigInit drives the initial transition in Begin
	SigInit Signal = -4
	// SigEntry is sent to a state right after it becomes current
	SigEntry Signal = -3
	// SigExit is sent to a state right before it stops being current
	SigExit Signal = -2
	// SigIdle is reserved for background processing
	SigIdle Signal = -1

	// SigUser is the first signal available to the application
	SigUser Signal = 0
)

// Reserved reports whether s belongs to the engine
func (s Signal) Reserved() bool {
	return s < SigUser
}

func (s Signal) String() string {
	switch s {
	case SigInit:
		return "INIT"
	case SigEntry:
		return "ENTRY"
	case SigExit:
		return "EXIT"
	case SigIdle:
		return "IDLE"
	}
	return strconv.Itoa(int(s))
}

// Status is the outcome of one handler invocation
type Status int

const (
	// StatusTransition means the handler called Tran and the engine must
	// run the Exit/Entry protocol. Only Tran returns it.
	StatusTransition Status = iota
	// StatusHandled means the event was processed, no state change
	StatusHandled
	// StatusIgnored means the event does not apply to this state
	StatusIgnored
	// StatusError means the state received an event it must never receive.
	// The engine treats it as fatal.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusTransition:
		return "transition"
	case StatusHandled:
		return "handled"
	case StatusIgnored:
		return "ignored"
	case StatusError:
		return "error"
	}
	return "status(" + strconv.Itoa(int(s)) + ")"
}

// Logger is the default logger used when none is provided
var Logger = slog.Default()
