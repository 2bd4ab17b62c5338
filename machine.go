package signalfsm

import (
	"log/slog"
)

type phase int

const (
	phaseUninitialized phase = iota
	phaseConstructed
	phaseRunning
)

// Machine is a flat state machine whose states are handler functions.
//
// A Machine is not safe for concurrent use. Begin and Dispatch must be
// serialized by the owner, for example with a Runner.
type Machine struct {
	current    *State
	maxChained uint32
	phase      phase

	// busy is set while one of this machine's handlers runs
	busy       bool
	tranCalled bool

	data                any
	logger              *slog.Logger
	stateChangeCallback func(from, to *State)
	onAssert            AssertHandler
}

// MachineOption is a functional option for configuring a Machine
type MachineOption func(*Machine)

// WithLogger sets the logger for the machine
func WithLogger(logger *slog.Logger) MachineOption {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithData attaches application data, available to handlers through Data
func WithData(data any) MachineOption {
	return func(m *Machine) {
		m.data = data
	}
}

// WithStateChangeCallback sets a callback invoked after each state change.
// It runs inside the dispatch, so it must not call Dispatch.
func WithStateChangeCallback(fn func(from, to *State)) MachineOption {
	return func(m *Machine) {
		m.stateChangeCallback = fn
	}
}

// WithAssertHandler sets the fatal sink used by this machine
func WithAssertHandler(h AssertHandler) MachineOption {
	return func(m *Machine) {
		m.onAssert = h
	}
}

// New constructs a machine in its initial pseudo-state. The initial state's
// only job is to call Tran when it receives SigInit. maxChained bounds how
// many transitions may follow back to back from a single event. A nil
// initial state or a zero bound is fatal. New does not run any handler.
func New(initial *State, maxChained uint32, opts ...MachineOption) *Machine {
	m := &Machine{
		current:    initial,
		maxChained: maxChained,
		logger:     Logger,
	}

	for _, opt := range opts {
		opt(m)
	}

	if initial == nil {
		fatal(m, violation(ErrNilState, "initial state is nil"))
	}
	if maxChained == 0 {
		fatal(m, violation(ErrZeroBound, "max chained transitions is 0"))
	}

	m.phase = phaseConstructed
	return m
}

// Begin performs the initial transition: SigInit to the initial state, then
// SigEntry to the state it chose, and any transitions chained from there.
// It must be called exactly once, before the first Dispatch.
func (m *Machine) Begin() {
	if m == nil {
		fatal(nil, violation(ErrNilMachine, "Begin on nil machine"))
	}
	if m.current == nil {
		fatal(m, violation(ErrNilState, "Begin on machine without state"))
	}
	if m.maxChained == 0 {
		fatal(m, violation(ErrZeroBound, "Begin on machine without transition bound"))
	}
	if m.busy {
		fatal(m, violation(ErrReentrant, "Begin called from a handler"))
	}
	if m.phase == phaseRunning {
		fatal(m, violation(ErrAlreadyStarted, "Begin called twice"))
	}

	m.busy = true
	initial := m.current
	m.logger.Debug("starting machine", "state", initial)

	status := m.invoke(initial, initEvent)
	if status != StatusTransition || m.current == initial {
		fatal(m, violation(ErrInitNoTransition, "initial state %s returned %s", initial, status))
	}
	m.logger.Debug("initial transition", "from", initial, "to", m.current)
	m.notify(initial, m.current)

	entered := m.current
	m.logger.Debug("entering state", "state", entered)
	m.cascade(entered, m.invoke(entered, entryEvent))

	m.phase = phaseRunning
	m.busy = false
}

// Dispatch delivers e to the current state and resolves every transition
// it causes before returning. Reserved signals are fatal.
func (m *Machine) Dispatch(e Signaler) {
	if m == nil {
		fatal(nil, violation(ErrNilMachine, "Dispatch on nil machine"))
	}
	if e == nil {
		fatal(m, violation(ErrNilEvent, "Dispatch with nil event"))
	}
	if m.phase != phaseRunning || m.current == nil || m.maxChained == 0 {
		fatal(m, violation(ErrNotStarted, "Dispatch before Begin"))
	}
	sig := e.Signal()
	if sig.Reserved() {
		fatal(m, violation(ErrReservedSignal, "signal %s is reserved", sig))
	}
	if m.busy {
		fatal(m, violation(ErrReentrant, "Dispatch of signal %s from a handler", sig))
	}

	m.busy = true
	prev := m.current
	m.logger.Debug("dispatching event", "event", sig, "state", prev)

	status := m.invoke(prev, e)
	switch status {
	case StatusHandled:
		m.logger.Debug("event handled", "event", sig, "state", prev)
	case StatusIgnored:
		m.logger.Debug("event ignored", "event", sig, "state", prev)
	}
	m.cascade(prev, status)

	m.busy = false
}

// CurrentState returns the current state. Before Begin it is the initial
// pseudo-state.
func (m *Machine) CurrentState() *State {
	return m.current
}

// IsInState reports whether s is the current state
func (m *Machine) IsInState(s *State) bool {
	return s != nil && m.current == s
}

// Started reports whether Begin has completed
func (m *Machine) Started() bool {
	return m.phase == phaseRunning
}

// MaxChainedTransitions returns the bound given to New
func (m *Machine) MaxChainedTransitions() uint32 {
	return m.maxChained
}

// Data returns the application data set with WithData
func (m *Machine) Data() any {
	return m.data
}

// invoke runs one handler and checks the status against the use of Tran
func (m *Machine) invoke(s *State, e Signaler) Status {
	m.tranCalled = false
	status := s.handler(m, e)

	if status < StatusTransition || status > StatusError {
		fatal(m, violation(ErrStatusMismatch, "state %s returned unknown %s for %s", s, status, e.Signal()))
	}
	if (status == StatusTransition) != m.tranCalled {
		fatal(m, violation(ErrStatusMismatch, "state %s returned %s for %s, tran called: %t",
			s, status, e.Signal(), m.tranCalled))
	}
	return status
}

func (m *Machine) notify(from, to *State) {
	if m.stateChangeCallback != nil {
		m.stateChangeCallback(from, to)
	}
}
