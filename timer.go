package signalfsm

import (
	"time"

	"github.com/cockroachdb/errors"
)

// timerEntry tracks a running timer
type timerEntry struct {
	timer  *time.Timer
	event  Signaler
	period time.Duration // zero for one-shot timers
	owner  *State        // cancelled when the machine leaves owner; nil if unscoped
}

// StartTimer posts e once after d. A timer with the same name is replaced.
func (r *Runner) StartTimer(name string, d time.Duration, e Signaler) {
	r.startTimer(name, d, 0, nil, e)
}

// StartPeriodic posts e every d until stopped
func (r *Runner) StartPeriodic(name string, d time.Duration, e Signaler) {
	r.startTimer(name, d, d, nil, e)
}

// StartStateTimer posts e once after d unless the machine leaves its current
// state first. It must be called from a handler.
func (r *Runner) StartStateTimer(name string, d time.Duration, e Signaler) {
	r.startTimer(name, d, 0, r.machine.current, e)
}

// startTimer arms a timer unless the runner has stopped. Timers started
// after Stop would otherwise re-arm with nothing left to post to.
func (r *Runner) startTimer(name string, d, period time.Duration, owner *State, e Signaler) {
	if e == nil {
		fatal(r.machine, violation(ErrNilEvent, "timer %q with nil event", name))
	}
	if sig := e.Signal(); sig.Reserved() {
		fatal(r.machine, violation(ErrReservedSignal, "timer %q with reserved signal %s", name, sig))
	}

	r.timerMu.Lock()
	defer r.timerMu.Unlock()

	if r.closed() {
		r.logger.Warn("timer not started, runner stopped", "name", name, "event", e.Signal())
		return
	}
	r.cancelTimer(name, "replaced")

	entry := &timerEntry{event: e, period: period, owner: owner}
	entry.timer = time.AfterFunc(d, func() { r.fire(name, entry) })
	r.timers[name] = entry

	r.logger.Debug("timer started", "name", name, "duration", d, "periodic", period > 0,
		"state", owner.Name(), "event", e.Signal())
}

// fire posts the timer's event if the timer was not cancelled or replaced
func (r *Runner) fire(name string, entry *timerEntry) {
	r.timerMu.Lock()
	if r.timers[name] != entry {
		r.timerMu.Unlock()
		return
	}
	if entry.period > 0 {
		entry.timer.Reset(entry.period)
	} else {
		delete(r.timers, name)
	}
	r.timerMu.Unlock()

	r.logger.Debug("timer fired", "name", name, "event", entry.event.Signal())
	err := r.Post(entry.event)
	if err == nil {
		return
	}
	r.logger.Warn("timer event dropped", "name", name, "error", err)
	if errors.Is(err, ErrRunnerStopped) {
		r.timerMu.Lock()
		if r.timers[name] == entry {
			r.cancelTimer(name, "runner stopped")
		}
		r.timerMu.Unlock()
	}
}

// StopTimer cancels the named timer. Unknown names are ignored.
func (r *Runner) StopTimer(name string) {
	r.timerMu.Lock()
	r.cancelTimer(name, "stopped")
	r.timerMu.Unlock()
}

// StopAllTimers cancels every timer, scoped or not
func (r *Runner) StopAllTimers() {
	r.cancelTimers(func(*timerEntry) bool { return true }, "runner cleanup")
}

// TimerActive reports whether the named timer is armed
func (r *Runner) TimerActive(name string) bool {
	r.timerMu.Lock()
	defer r.timerMu.Unlock()
	return r.timers[name] != nil
}

// leaveState cancels the timers owned by s. It runs on every state change,
// self-transitions included, since s has been exited by then.
func (r *Runner) leaveState(s *State) {
	r.cancelTimers(func(e *timerEntry) bool { return e.owner != nil && e.owner == s }, "state exit")
}

func (r *Runner) cancelTimers(match func(*timerEntry) bool, reason string) {
	r.timerMu.Lock()
	defer r.timerMu.Unlock()
	for name, entry := range r.timers {
		if match(entry) {
			r.cancelTimer(name, reason)
		}
	}
}

// cancelTimer stops and forgets name. timerMu must be held.
func (r *Runner) cancelTimer(name, reason string) {
	entry, ok := r.timers[name]
	if !ok {
		return
	}
	entry.timer.Stop()
	delete(r.timers, name)
	r.logger.Debug("timer cancelled", "name", name, "reason", reason)
}
