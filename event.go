package signalfsm

// Signaler is anything that can be dispatched to a Machine. The engine only
// ever reads the signal; extension data stays with the caller.
type Signaler interface {
	Signal() Signal
}

// Event is the base event value. Application events embed it to carry extra
// fields and get Signal for free:
//
//	type KeyEvent struct {
//		signalfsm.Event
//		Keycode uint8
//	}
//
// Handlers recover the extension with a type assertion.
type Event struct {
	sig Signal
}

// NewEvent returns an event carrying sig
func NewEvent(sig Signal) Event {
	return Event{sig: sig}
}

// Signal returns the event's signal
func (e Event) Signal() Signal {
	return e.sig
}

func (e Event) String() string {
	return e.sig.String()
}

// Internal events sent by the engine
var (
	initEvent  Signaler = Event{sig: SigInit}
	entryEvent Signaler = Event{sig: SigEntry}
	exitEvent  Signaler = Event{sig: SigExit}
)
