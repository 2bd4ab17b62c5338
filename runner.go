package signalfsm

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
)

// DefaultQueueSize is the event queue capacity of a Runner created without
// WithQueueSize
const DefaultQueueSize = 32

// Runner owns a Machine and feeds it from a bounded queue on a single
// goroutine, so that at most one dispatch is in flight. Events are still
// dispatched one at a time and every transition cascade completes before
// the next event is taken.
type Runner struct {
	machine *Machine
	events  chan envelope
	logger  *slog.Logger

	timers  map[string]*timerEntry
	timerMu sync.Mutex

	mu      sync.Mutex
	started bool
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

type envelope struct {
	event Signaler
	done  chan struct{}
}

// RunnerOption is a functional option for configuring a Runner
type RunnerOption func(*Runner)

// WithQueueSize sets the event queue buffer size
func WithQueueSize(size int) RunnerOption {
	return func(r *Runner) {
		if size > 0 {
			r.events = make(chan envelope, size)
		}
	}
}

// WithRunnerLogger sets the logger for the runner
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner wraps m. The machine must not be started yet; Start calls
// Begin.
func NewRunner(m *Machine, opts ...RunnerOption) *Runner {
	if m == nil {
		fatal(nil, violation(ErrNilMachine, "NewRunner with nil machine"))
	}

	r := &Runner{
		machine: m,
		events:  make(chan envelope, DefaultQueueSize),
		logger:  m.logger,
		timers:  make(map[string]*timerEntry),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	// State-scoped timers end with their state
	next := m.stateChangeCallback
	m.stateChangeCallback = func(from, to *State) {
		r.leaveState(from)
		if next != nil {
			next(from, to)
		}
	}
	return r
}

// Machine returns the machine driven by r. It must only be touched from
// handlers while r is running.
func (r *Runner) Machine() *Machine {
	return r.machine
}

// Start runs the machine's initial transition on the calling goroutine and
// then begins the event loop. The loop ends when ctx is cancelled or Stop is
// called.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return ErrRunnerStarted
	}
	if r.stopped {
		r.mu.Unlock()
		return ErrRunnerStopped
	}
	r.started = true
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	// A fatal Begin recovered by the caller leaves no loop behind, so Stop
	// and PostSync must not wait for one.
	looping := false
	defer func() {
		if !looping {
			r.cancel()
			close(r.done)
		}
	}()

	// Handlers may Post from their entry actions, so the lock is not held
	r.machine.Begin()

	looping = true
	go r.eventLoop()
	return nil
}

// Stop ends the event loop, cancels all timers and waits for the loop to
// exit. Events still queued are discarded. Stop must not be called from a
// handler.
func (r *Runner) Stop() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	started := r.started
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()

	r.StopAllTimers()
	if started {
		<-r.done
	} else {
		close(r.done)
	}
	return nil
}

// Done is closed once the event loop has exited
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Post queues e for dispatch without blocking. It returns ErrQueueFull when
// the queue has no room and ErrRunnerStopped after Stop. A nil event or a
// reserved signal is fatal.
func (r *Runner) Post(e Signaler) error {
	return r.post(envelope{event: e})
}

// PostSync queues e and waits until it has been dispatched. Like Stop, it
// must not be called from a handler: the loop would wait on itself until ctx
// ends.
func (r *Runner) PostSync(ctx context.Context, e Signaler) error {
	done := make(chan struct{})
	if err := r.post(envelope{event: e, done: done}); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-r.done:
		select {
		case <-done:
			return nil
		default:
			return ErrRunnerStopped
		}
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "waiting for dispatch of signal %s", e.Signal())
	}
}

func (r *Runner) post(env envelope) error {
	if env.event == nil {
		fatal(r.machine, violation(ErrNilEvent, "Post with nil event"))
	}
	if sig := env.event.Signal(); sig.Reserved() {
		fatal(r.machine, violation(ErrReservedSignal, "signal %s is reserved", sig))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stoppedLocked() {
		return ErrRunnerStopped
	}

	select {
	case r.events <- env:
		return nil
	default:
		r.logger.Warn("event queue full, dropping event", "event", env.event.Signal())
		return ErrQueueFull
	}
}

// closed reports whether Stop was called or the context has ended
func (r *Runner) closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stoppedLocked()
}

func (r *Runner) stoppedLocked() bool {
	return r.stopped || (r.ctx != nil && r.ctx.Err() != nil)
}

// eventLoop dispatches queued events until the runner is stopped
func (r *Runner) eventLoop() {
	defer close(r.done)
	defer r.StopAllTimers()
	for {
		select {
		case <-r.ctx.Done():
			return
		case env := <-r.events:
			r.machine.Dispatch(env.event)
			if env.done != nil {
				close(env.done)
			}
		}
	}
}
