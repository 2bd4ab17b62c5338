package signalfsm

// Tran makes target the current state. Handlers must return its result:
//
//	case sigStart:
//		return m.Tran(running)
//
// It is the only way to change state. A nil target is fatal, and so is a
// call from outside a handler.
func (m *Machine) Tran(target *State) Status {
	if m == nil {
		fatal(nil, violation(ErrNilMachine, "Tran on nil machine"))
	}
	if target == nil {
		fatal(m, violation(ErrNilState, "transition target is nil"))
	}
	if !m.busy {
		fatal(m, violation(ErrTranOutside, "Tran to %s outside of a handler", target))
	}

	m.current = target
	m.tranCalled = true
	return StatusTransition
}

// cascade resolves the transitions following a handler that returned
// status. prev is the state that was current before that handler ran.
//
// Each iteration exits prev and enters the new current state. An entered
// state may transition again; the chain may not run more than maxChained
// iterations. Exit handlers may not transition or fail.
func (m *Machine) cascade(prev *State, status Status) {
	var i uint32
	for status == StatusTransition {
		if i == m.maxChained {
			fatal(m, violation(ErrChainExceeded, "state %s transitioned after %d chained transitions",
				prev, m.maxChained))
		}

		m.logger.Debug("exiting state", "state", prev)
		if s := m.invoke(prev, exitEvent); s == StatusTransition || s == StatusError {
			fatal(m, violation(ErrExitTransition, "state %s returned %s on exit", prev, s))
		}

		m.logger.Debug("transition", "from", prev, "to", m.current, "chain", i+1)
		m.notify(prev, m.current)

		prev = m.current
		m.logger.Debug("entering state", "state", prev)
		status = m.invoke(prev, entryEvent)
		i++
	}

	if status == StatusError {
		fatal(m, violation(ErrHandlerError, "state %s returned error", prev))
	}
}
