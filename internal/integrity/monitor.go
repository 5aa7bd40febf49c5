package integrity

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/terra-clan/assessment-engine/internal/failure"
)

// ErrAlreadyArmed is returned when Arm is called on a monitor that was used before
var ErrAlreadyArmed = errors.New("integrity monitor already armed")

// Phase of a monitor's lifecycle
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseActive
	PhaseTerminated
	PhaseDisarmed
)

func (p Phase) String() string {
	switch p {
	case PhaseActive:
		return "active"
	case PhaseTerminated:
		return "terminated"
	case PhaseDisarmed:
		return "disarmed"
	}
	return "idle"
}

// TerminationState is Active, Terminated(reason) or Disarmed.
// Values are immutable; transitions swap the pointer.
type TerminationState struct {
	Phase  Phase
	Reason string
}

var idleState = &TerminationState{Phase: PhaseIdle}

// Monitor watches an armed environment and drives a one-shot termination
type Monitor struct {
	env            Environment
	onTerminate    func(reason string)
	releaseTimeout time.Duration

	state atomic.Pointer[TerminationState]
	media MediaStream
	stop  chan struct{}
}

// NewMonitor creates a monitor. onTerminate is called exactly once, after
// devices and full-screen have been released, when a breach is detected.
func NewMonitor(env Environment, onTerminate func(reason string)) *Monitor {
	m := &Monitor{
		env:            env,
		onTerminate:    onTerminate,
		releaseTimeout: 10 * time.Second,
		stop:           make(chan struct{}),
	}
	m.state.Store(idleState)
	return m
}

// State returns the current termination state
func (m *Monitor) State() TerminationState {
	return *m.state.Load()
}

// Armed reports whether the monitor is actively watching
func (m *Monitor) Armed() bool {
	return m.state.Load().Phase == PhaseActive
}

// Arm enters full-screen and acquires camera and microphone. Either both
// succeed or nothing stays active: a media failure reverts full-screen.
func (m *Monitor) Arm(ctx context.Context) error {
	if m.state.Load() != idleState {
		return ErrAlreadyArmed
	}

	if err := m.env.RequestFullscreen(ctx); err != nil {
		return failure.Wrap(err, failure.KindPermissionDenied,
			"Fullscreen mode is required for this assessment and was not granted")
	}

	media, err := m.env.AcquireMedia(ctx, Constraints{Audio: true, Video: true})
	if err != nil {
		if exitErr := m.env.ExitFullscreen(ctx); exitErr != nil {
			slog.Warn("failed to revert fullscreen after media denial", "error", exitErr)
		}
		return failure.Wrap(err, failure.KindPermissionDenied,
			"Camera and microphone access is required for this assessment and was denied")
	}

	m.media = media
	if !m.state.CompareAndSwap(idleState, &TerminationState{Phase: PhaseActive}) {
		media.Stop()
		return ErrAlreadyArmed
	}

	go m.listen(m.env.Signals())
	return nil
}

// listen pumps environment signals until the monitor stops. A closed channel
// means the environment is gone and terminates an active session.
func (m *Monitor) listen(signals <-chan Signal) {
	for {
		select {
		case <-m.stop:
			return
		case sig, ok := <-signals:
			if !ok {
				m.handle(SignalChannelLost)
				return
			}
			m.handle(sig)
		}
	}
}

// NotifyHidden reports that the environment became hidden
func (m *Monitor) NotifyHidden() bool {
	return m.handle(SignalHidden)
}

// NotifyFullscreenLost reports that full-screen was exited
func (m *Monitor) NotifyFullscreenLost() bool {
	return m.handle(SignalFullscreenLost)
}

// handle runs the termination path for a signal. Only the producer that
// wins the compare-and-set proceeds; every other signal is a no-op.
func (m *Monitor) handle(sig Signal) bool {
	reason := sig.Reason()
	if reason == "" {
		return false
	}

	cur := m.state.Load()
	if cur.Phase != PhaseActive {
		return false
	}
	if !m.state.CompareAndSwap(cur, &TerminationState{Phase: PhaseTerminated, Reason: reason}) {
		return false
	}

	slog.Warn("integrity breach detected", "signal", string(sig), "reason", reason)
	m.release()
	if m.onTerminate != nil {
		m.onTerminate(reason)
	}
	return true
}

// Disarm releases devices and full-screen and detaches listeners.
// Safe to call any number of times and after termination.
func (m *Monitor) Disarm() {
	cur := m.state.Load()
	if cur.Phase != PhaseActive {
		return
	}
	if !m.state.CompareAndSwap(cur, &TerminationState{Phase: PhaseDisarmed}) {
		return
	}
	m.release()
}

// release is reached once, by whichever transition left the active state
func (m *Monitor) release() {
	close(m.stop)

	if m.media != nil {
		m.media.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.releaseTimeout)
	defer cancel()
	if err := m.env.ExitFullscreen(ctx); err != nil {
		slog.Debug("failed to exit fullscreen", "error", err)
	}
}
