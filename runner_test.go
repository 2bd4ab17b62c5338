package signalfsm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sigTick Signal = 10 + iota
	sigToggle
	sigBlock
)

// lamp is a two-state machine reporting every user signal it sees
type lamp struct {
	off, on *State
	seen    chan Signal
	block   chan struct{}
}

func newLamp(onEntry func(m *Machine)) (*lamp, *Machine) {
	l := &lamp{seen: make(chan Signal, 64), block: make(chan struct{})}
	handle := func(next **State) Handler {
		return func(m *Machine, e Signaler) Status {
			switch e.Signal() {
			case SigEntry:
				if onEntry != nil {
					onEntry(m)
				}
				return StatusHandled
			case SigExit:
				return StatusHandled
			case sigBlock:
				<-l.block
			}
			l.seen <- e.Signal()
			if e.Signal() == sigToggle {
				return m.Tran(*next)
			}
			return StatusHandled
		}
	}
	l.off = NewState("off", handle(&l.on))
	l.on = NewState("on", handle(&l.off))
	initial := NewState("init", func(m *Machine, e Signaler) Status { return m.Tran(l.off) })
	return l, New(initial, 2, WithLogger(quietLogger))
}

func receive(t *testing.T, ch <-chan Signal) Signal {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch")
		return 0
	}
}

func TestRunnerDispatchesInOrder(t *testing.T) {
	l, m := newLamp(nil)
	r := NewRunner(m)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	require.True(t, m.Started())
	require.NoError(t, r.Post(NewEvent(sigTick)))
	require.NoError(t, r.Post(NewEvent(sigToggle)))
	require.NoError(t, r.PostSync(context.Background(), NewEvent(sigTick)))

	assert.Equal(t, sigTick, receive(t, l.seen))
	assert.Equal(t, sigToggle, receive(t, l.seen))
	assert.Equal(t, sigTick, receive(t, l.seen))
	assert.Equal(t, l.on, r.Machine().CurrentState())
}

func TestRunnerLifecycle(t *testing.T) {
	_, m := newLamp(nil)
	r := NewRunner(m)

	require.NoError(t, r.Start(context.Background()))
	assert.ErrorIs(t, r.Start(context.Background()), ErrRunnerStarted)

	require.NoError(t, r.Stop())
	require.NoError(t, r.Stop(), "Stop is idempotent")

	select {
	case <-r.Done():
	default:
		t.Fatal("Done must be closed after Stop")
	}
	assert.ErrorIs(t, r.Post(NewEvent(sigTick)), ErrRunnerStopped)
	assert.ErrorIs(t, r.PostSync(context.Background(), NewEvent(sigTick)), ErrRunnerStopped)
	assert.ErrorIs(t, r.Start(context.Background()), ErrRunnerStarted)
}

func TestRunnerStopBeforeStart(t *testing.T) {
	_, m := newLamp(nil)
	r := NewRunner(m)

	require.NoError(t, r.Stop())
	<-r.Done()
	assert.ErrorIs(t, r.Start(context.Background()), ErrRunnerStopped)
	assert.False(t, m.Started())
}

func TestRunnerStopsWithContext(t *testing.T) {
	_, m := newLamp(nil)
	r := NewRunner(m)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.Start(ctx))

	cancel()
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop on context cancellation")
	}
	assert.ErrorIs(t, r.Post(NewEvent(sigTick)), ErrRunnerStopped)
}

func TestRunnerQueueFull(t *testing.T) {
	_, m := newLamp(nil)
	r := NewRunner(m, WithQueueSize(1), WithRunnerLogger(quietLogger))

	require.NoError(t, r.Post(NewEvent(sigTick)))
	assert.ErrorIs(t, r.Post(NewEvent(sigTick)), ErrQueueFull)
	require.NoError(t, r.Stop())
}

func TestRunnerPostSyncHonoursContext(t *testing.T) {
	l, m := newLamp(nil)
	r := NewRunner(m)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := r.PostSync(ctx, NewEvent(sigBlock))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(l.block)
	assert.Equal(t, sigBlock, receive(t, l.seen))
}

func TestRunnerEntryMayPost(t *testing.T) {
	var r *Runner
	posted := false
	l, m := newLamp(func(m *Machine) {
		if !posted {
			posted = true
			require.NoError(t, r.Post(NewEvent(sigTick)))
		}
	})
	r = NewRunner(m)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	assert.Equal(t, sigTick, receive(t, l.seen))
}

func TestRunnerRejectsReservedSignals(t *testing.T) {
	rec := &recorder{}
	var a *State
	initial := rec.state("init", transitionsTo(&a))
	a = rec.state("A", nil)
	r := NewRunner(rec.machine(initial, 1))

	expectFatal(t, ErrReservedSignal, func() { _ = r.Post(NewEvent(SigIdle)) })
	expectFatal(t, ErrNilEvent, func() { _ = r.Post(nil) })
	expectFatal(t, ErrReservedSignal, func() { r.StartTimer("t", time.Second, NewEvent(SigEntry)) })
	assert.Len(t, rec.asserts, 3)
	assert.Empty(t, rec.calls)
	assert.False(t, r.TimerActive("t"))
}

func TestRunnerTimers(t *testing.T) {
	l, m := newLamp(nil)
	r := NewRunner(m)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	t.Run("one-shot", func(t *testing.T) {
		r.StartTimer("once", 5*time.Millisecond, NewEvent(sigToggle))
		assert.Equal(t, sigToggle, receive(t, l.seen))
		assert.Eventually(t, func() bool { return !r.TimerActive("once") }, time.Second, time.Millisecond)
	})

	t.Run("periodic", func(t *testing.T) {
		r.StartPeriodic("tick", 5*time.Millisecond, NewEvent(sigTick))
		assert.Equal(t, sigTick, receive(t, l.seen))
		assert.Equal(t, sigTick, receive(t, l.seen))
		assert.True(t, r.TimerActive("tick"))

		r.StopTimer("tick")
		assert.False(t, r.TimerActive("tick"))
	})

	t.Run("stopped timer never fires", func(t *testing.T) {
		// drain ticks posted before the periodic timer was stopped
		time.Sleep(20 * time.Millisecond)
		require.NoError(t, r.PostSync(context.Background(), NewEvent(sigTick)))
		for len(l.seen) > 0 {
			<-l.seen
		}

		r.StartTimer("late", 50*time.Millisecond, NewEvent(sigToggle))
		r.StartTimer("late", time.Hour, NewEvent(sigToggle)) // replaces
		r.StopAllTimers()
		assert.False(t, r.TimerActive("late"))

		select {
		case s := <-l.seen:
			t.Fatalf("unexpected dispatch of %s", s)
		case <-time.After(100 * time.Millisecond):
		}
	})
}

func TestRunnerTimersEndWithRunner(t *testing.T) {
	t.Run("started after Stop", func(t *testing.T) {
		_, m := newLamp(nil)
		r := NewRunner(m, WithRunnerLogger(quietLogger))
		require.NoError(t, r.Start(context.Background()))
		require.NoError(t, r.Stop())

		r.StartPeriodic("late", time.Millisecond, NewEvent(sigTick))
		assert.False(t, r.TimerActive("late"))
		time.Sleep(20 * time.Millisecond)
		assert.False(t, r.TimerActive("late"))
	})

	t.Run("context cancelled", func(t *testing.T) {
		_, m := newLamp(nil)
		r := NewRunner(m, WithRunnerLogger(quietLogger))
		ctx, cancel := context.WithCancel(context.Background())
		require.NoError(t, r.Start(ctx))

		r.StartPeriodic("tick", 5*time.Millisecond, NewEvent(sigTick))
		cancel()
		<-r.Done()
		assert.False(t, r.TimerActive("tick"))

		r.StartTimer("after", time.Millisecond, NewEvent(sigTick))
		assert.False(t, r.TimerActive("after"))
	})
}

func TestRunnerStateTimers(t *testing.T) {
	var r *Runner
	var l *lamp
	l, m := newLamp(func(m *Machine) {
		if m.IsInState(l.on) {
			r.StartStateTimer("dim", time.Hour, NewEvent(sigTick))
		}
	})
	r = NewRunner(m)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	r.StartTimer("global", time.Hour, NewEvent(sigTick))

	require.NoError(t, r.PostSync(context.Background(), NewEvent(sigToggle)))
	assert.True(t, r.TimerActive("dim"))

	require.NoError(t, r.PostSync(context.Background(), NewEvent(sigToggle)))
	assert.False(t, r.TimerActive("dim"), "leaving the owning state cancels the timer")
	assert.True(t, r.TimerActive("global"))
}

func TestRunnerKeepsStateChangeCallback(t *testing.T) {
	rec := &recorder{}
	var a *State
	initial := rec.state("init", transitionsTo(&a))
	a = rec.state("A", nil)

	var changes []string
	m := rec.machine(initial, 1, WithStateChangeCallback(func(from, to *State) {
		changes = append(changes, from.Name()+"->"+to.Name())
	}))
	r := NewRunner(m)
	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Stop())

	assert.Equal(t, []string{"init->A"}, changes)
}

func TestRunnerStopAfterFatalStart(t *testing.T) {
	rec := &recorder{}
	initial := rec.state("init", nil)
	r := NewRunner(rec.machine(initial, 1))

	expectFatal(t, ErrInitNoTransition, func() { _ = r.Start(context.Background()) })
	assert.ErrorIs(t, r.Post(NewEvent(sigTick)), ErrRunnerStopped)

	stopped := make(chan struct{})
	go func() {
		_ = r.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked after a fatal Start")
	}
}

func TestRunnerPostSyncFromHandlerWaitsForContext(t *testing.T) {
	var r *Runner
	var l *lamp
	waited := make(chan error, 1)
	l, m := newLamp(func(m *Machine) {
		if m.IsInState(l.on) {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()
			waited <- r.PostSync(ctx, NewEvent(sigTick))
		}
	})
	r = NewRunner(m)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	require.NoError(t, r.Post(NewEvent(sigToggle)))
	assert.Equal(t, sigToggle, receive(t, l.seen))
	assert.ErrorIs(t, <-waited, context.DeadlineExceeded)
	assert.Equal(t, sigTick, receive(t, l.seen), "the event is still dispatched once the handler returns")
}
