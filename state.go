package signalfsm

// Handler reacts to an event delivered to the state it belongs to. It
// returns the result of m.Tran to change state, or one of StatusHandled,
// StatusIgnored, StatusError.
//
// Handlers also receive the reserved signals: SigInit (initial state only),
// SigEntry and SigExit. Returning StatusTransition from SigExit is fatal.
type Handler func(m *Machine, e Signaler) Status

// State is a node of the machine. Its identity is the pointer: two States
// with the same handler are still different states.
type State struct {
	name    string
	handler Handler
}

// NewState creates a state. The name is only used for logging and
// diagnostics. A nil handler is fatal.
func NewState(name string, h Handler) *State {
	if h == nil {
		fatal(nil, violation(ErrNilState, "state %q has no handler", name))
	}
	return &State{name: name, handler: h}
}

// Name returns the diagnostic name of the state
func (s *State) Name() string {
	if s == nil {
		return "<nil>"
	}
	return s.name
}

func (s *State) String() string {
	return s.Name()
}
