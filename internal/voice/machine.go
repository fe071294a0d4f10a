// Package voice supervises a speech-to-text engine as an explicit state
// machine: permission request, listening with interim transcripts,
// auto-restart on unexpected engine end, and an error budget that
// terminates the session when exhausted.
package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"studybuddy/internal/logging"
)

// State is the lifecycle phase of the capture session.
type State int

const (
	StateIdle State = iota
	StateRequestingPermission
	StateListening
	StateStopped
	StateTerminalError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequestingPermission:
		return "requesting-permission"
	case StateListening:
		return "listening"
	case StateStopped:
		return "stopped"
	case StateTerminalError:
		return "terminal-error"
	default:
		return "unknown"
	}
}

// ErrPermissionDenied is returned by Start when microphone access is
// refused. The machine stays Idle.
var ErrPermissionDenied = errors.New("microphone permission denied")

// ErrAlreadyListening is returned by Start while a session is active.
var ErrAlreadyListening = errors.New("voice capture already active")

// Config carries the supervision policy. Durations are injectable so
// tests can compress them.
type Config struct {
	StartTimeout       time.Duration // waiting for the start confirmation
	TickInterval       time.Duration // duration-guard tick
	MaxDuration        time.Duration // hard cap before auto-stop
	RestartDelay       time.Duration // backoff before auto-restart on end
	NetworkErrorBudget int
	TotalErrorBudget   int
}

// Hooks are callbacks into the owning session controller. All hooks are
// invoked outside the machine lock and may be nil.
type Hooks struct {
	// TranscriptChanged delivers the live display text: committed
	// transcript plus the transient interim segment.
	TranscriptChanged func(display string)

	// Finalized delivers the finished transcript when capture stops
	// (explicitly or via the duration cap).
	Finalized func(text string, hasTranscript bool)

	// Notice surfaces user-facing problems (permission denied, error
	// budget exhausted, start failure).
	Notice func(msg string)
}

// Machine is the supervised capture session. All entry points are
// serialized; engine events may arrive from any goroutine.
type Machine struct {
	mu     sync.Mutex
	cfg    Config
	engine Engine
	hooks  Hooks

	state     State
	recording bool // user still intends to capture
	committed string
	interim   string

	netErrors   int
	totalErrors int
	elapsed     time.Duration

	startTimer   *time.Timer
	tickTimer    *time.Timer
	restartTimer *time.Timer
	gen          int // invalidates stale timer callbacks
}

// NewMachine wires a machine to its engine and hooks.
func NewMachine(engine Engine, cfg Config, hooks Hooks) *Machine {
	return &Machine{
		cfg:    cfg,
		engine: engine,
		hooks:  hooks,
		state:  StateIdle,
	}
}

// Start requests microphone permission and begins continuous capture.
// On denial the machine stays Idle and ErrPermissionDenied is returned.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateListening || m.state == StateRequestingPermission {
		m.mu.Unlock()
		return ErrAlreadyListening
	}
	m.state = StateRequestingPermission
	engine := m.engine
	m.mu.Unlock()

	if err := engine.RequestPermission(ctx); err != nil {
		m.mu.Lock()
		m.resetLocked(StateIdle)
		m.mu.Unlock()
		logging.VoiceError("permission denied: %v", err)
		m.notify("Microphone access was denied.")
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}

	m.mu.Lock()
	m.state = StateListening
	m.recording = true
	m.committed = ""
	m.interim = ""
	m.netErrors = 0
	m.totalErrors = 0
	m.elapsed = 0
	m.gen++
	gen := m.gen
	m.startTimer = time.AfterFunc(m.cfg.StartTimeout, func() { m.startTimedOut(gen) })
	m.tickTimer = time.AfterFunc(m.cfg.TickInterval, func() { m.tick(gen) })
	m.mu.Unlock()

	if err := engine.Start(m); err != nil {
		m.mu.Lock()
		m.resetLocked(StateIdle)
		m.mu.Unlock()
		logging.VoiceError("engine start failed: %v", err)
		m.notify("Voice capture could not start.")
		return fmt.Errorf("failed to start voice capture: %w", err)
	}

	logging.Voice("capture started")
	return nil
}

// Stop finalizes the displayed transcript and resets the session.
// The Finalized hook delivers the text into the caller's input buffer.
func (m *Machine) Stop() {
	m.mu.Lock()
	if m.state != StateListening {
		m.mu.Unlock()
		return
	}
	text := strings.TrimSpace(m.committed + m.interim)
	m.resetLocked(StateStopped)
	m.mu.Unlock()

	m.engine.Stop()
	logging.Voice("capture stopped, transcript len=%d", len(text))
	if m.hooks.Finalized != nil {
		m.hooks.Finalized(text, text != "")
	}
}

// Cancel discards the transcript without finalizing and resets to Idle.
func (m *Machine) Cancel() {
	m.mu.Lock()
	if m.state != StateListening && m.state != StateRequestingPermission {
		m.mu.Unlock()
		return
	}
	m.resetLocked(StateIdle)
	m.mu.Unlock()

	m.engine.Stop()
	logging.Voice("capture cancelled")
}

// StartConfirmed disarms the start-safety timer.
func (m *Machine) StartConfirmed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateListening {
		return
	}
	if m.startTimer != nil {
		m.startTimer.Stop()
		m.startTimer = nil
	}
	logging.VoiceDebug("engine confirmed start")
}

// Result commits final segments and refreshes the transient interim
// display. A successful result clears the consecutive-network counter.
func (m *Machine) Result(segments []Segment) {
	m.mu.Lock()
	if m.state != StateListening {
		m.mu.Unlock()
		return
	}
	m.interim = ""
	for _, seg := range segments {
		if seg.Final {
			m.committed += seg.Text + " "
		} else {
			m.interim = seg.Text
		}
	}
	m.netErrors = 0
	display := m.committed + m.interim
	m.mu.Unlock()

	if m.hooks.TranscriptChanged != nil {
		m.hooks.TranscriptChanged(display)
	}
}

// EngineError classifies an engine error code: ignorable codes pass,
// network errors count against both budgets, permission codes
// terminate immediately.
func (m *Machine) EngineError(code string) {
	m.mu.Lock()
	if m.state != StateListening {
		m.mu.Unlock()
		return
	}

	var notice string
	switch code {
	case CodeNoSpeech, CodeAborted:
		logging.VoiceDebug("ignorable engine error: %s", code)
		m.mu.Unlock()
		return

	case CodeNotAllowed, CodeServiceNotAllowed:
		m.resetLocked(StateTerminalError)
		notice = "Microphone access was revoked."
		logging.VoiceError("terminal engine error: %s", code)

	case CodeNetwork:
		m.netErrors++
		m.totalErrors++
		if m.netErrors >= m.cfg.NetworkErrorBudget || m.totalErrors >= m.cfg.TotalErrorBudget {
			m.resetLocked(StateTerminalError)
			notice = "Voice capture stopped after repeated network errors."
			logging.VoiceError("error budget exhausted (network=%d total=%d)", m.netErrors, m.totalErrors)
		} else {
			logging.Voice("network error %d/%d, continuing", m.netErrors, m.cfg.NetworkErrorBudget)
		}

	default:
		m.totalErrors++
		if m.totalErrors >= m.cfg.TotalErrorBudget {
			m.resetLocked(StateTerminalError)
			notice = "Voice capture stopped after repeated errors."
			logging.VoiceError("error budget exhausted (total=%d)", m.totalErrors)
		} else {
			logging.Voice("engine error %q counted (total=%d)", code, m.totalErrors)
		}
	}
	m.mu.Unlock()

	if notice != "" {
		m.engine.Stop()
		m.notify(notice)
	}
}

// Ended handles the engine stopping on its own. While the user still
// intends to record and the budget holds, capture restarts after a
// short delay; otherwise the session resets terminally.
func (m *Machine) Ended() {
	m.mu.Lock()
	if !m.recording || m.state != StateListening {
		m.mu.Unlock()
		return
	}
	if m.totalErrors >= m.cfg.TotalErrorBudget {
		m.resetLocked(StateTerminalError)
		m.mu.Unlock()
		m.notify("Voice capture stopped after repeated errors.")
		return
	}
	gen := m.gen
	m.restartTimer = time.AfterFunc(m.cfg.RestartDelay, func() { m.restart(gen) })
	m.mu.Unlock()
	logging.Voice("engine ended unexpectedly, restart scheduled")
}

func (m *Machine) restart(gen int) {
	m.mu.Lock()
	if gen != m.gen || !m.recording || m.state != StateListening {
		m.mu.Unlock()
		return
	}
	engine := m.engine
	m.mu.Unlock()

	if err := engine.Start(m); err != nil {
		logging.VoiceError("restart failed: %v", err)
		m.EngineError("restart-failed")
		return
	}
	logging.Voice("capture restarted")
}

// startTimedOut fires when no start confirmation arrived in time.
func (m *Machine) startTimedOut(gen int) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateListening || m.startTimer == nil {
		m.mu.Unlock()
		return
	}
	m.resetLocked(StateIdle)
	m.mu.Unlock()

	m.engine.Stop()
	logging.VoiceError("no start confirmation within %v", m.cfg.StartTimeout)
	m.notify("Voice capture did not start. Please try again.")
}

// tick advances the duration guard and enforces the hard cap.
func (m *Machine) tick(gen int) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateListening {
		m.mu.Unlock()
		return
	}
	m.elapsed += m.cfg.TickInterval
	if m.elapsed >= m.cfg.MaxDuration {
		m.mu.Unlock()
		logging.Voice("duration cap reached, auto-stopping")
		m.Stop()
		return
	}
	m.tickTimer = time.AfterFunc(m.cfg.TickInterval, func() { m.tick(gen) })
	m.mu.Unlock()
}

// resetLocked clears all transient session state. Callers hold the lock.
func (m *Machine) resetLocked(to State) {
	if m.startTimer != nil {
		m.startTimer.Stop()
		m.startTimer = nil
	}
	if m.tickTimer != nil {
		m.tickTimer.Stop()
		m.tickTimer = nil
	}
	if m.restartTimer != nil {
		m.restartTimer.Stop()
		m.restartTimer = nil
	}
	m.gen++
	m.state = to
	m.recording = false
	m.committed = ""
	m.interim = ""
	m.netErrors = 0
	m.totalErrors = 0
	m.elapsed = 0
}

func (m *Machine) notify(msg string) {
	if m.hooks.Notice != nil {
		m.hooks.Notice(msg)
	}
}

// State returns the current lifecycle phase.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Recording reports whether the user still intends to capture.
func (m *Machine) Recording() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recording
}

// Transcript returns the current display text: committed plus interim.
func (m *Machine) Transcript() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.committed + m.interim
}

// Elapsed returns the recorded duration so far.
func (m *Machine) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.elapsed
}
