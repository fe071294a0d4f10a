package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeEngine records calls and lets tests drive events through the sink.
type fakeEngine struct {
	mu            sync.Mutex
	permissionErr error
	startErr      error
	confirmStart  bool
	sink          EventSink
	starts        int
	stops         int
}

func (f *fakeEngine) RequestPermission(ctx context.Context) error {
	return f.permissionErr
}

func (f *fakeEngine) Start(sink EventSink) error {
	f.mu.Lock()
	if f.startErr != nil {
		err := f.startErr
		f.mu.Unlock()
		return err
	}
	f.sink = sink
	f.starts++
	confirm := f.confirmStart
	f.mu.Unlock()
	if confirm {
		sink.StartConfirmed()
	}
	return nil
}

func (f *fakeEngine) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeEngine) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

// recorder collects hook invocations.
type recorder struct {
	mu          sync.Mutex
	transcripts []string
	finalized   []string
	hasVoice    []bool
	notices     []string
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		TranscriptChanged: func(s string) {
			r.mu.Lock()
			r.transcripts = append(r.transcripts, s)
			r.mu.Unlock()
		},
		Finalized: func(text string, has bool) {
			r.mu.Lock()
			r.finalized = append(r.finalized, text)
			r.hasVoice = append(r.hasVoice, has)
			r.mu.Unlock()
		},
		Notice: func(msg string) {
			r.mu.Lock()
			r.notices = append(r.notices, msg)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) noticeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notices)
}

func (r *recorder) lastFinalized() (string, bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.finalized) == 0 {
		return "", false, false
	}
	return r.finalized[len(r.finalized)-1], r.hasVoice[len(r.hasVoice)-1], true
}

func testConfig() Config {
	return Config{
		StartTimeout:       100 * time.Millisecond,
		TickInterval:       10 * time.Millisecond,
		MaxDuration:        time.Hour,
		RestartDelay:       5 * time.Millisecond,
		NetworkErrorBudget: 2,
		TotalErrorBudget:   5,
	}
}

func newListening(t *testing.T, eng *fakeEngine, rec *recorder) *Machine {
	t.Helper()
	eng.confirmStart = true
	m := NewMachine(eng, testConfig(), rec.hooks())
	require.NoError(t, m.Start(context.Background()))
	require.Equal(t, StateListening, m.State())
	t.Cleanup(m.Cancel)
	return m
}

func TestStartPermissionDenied(t *testing.T) {
	eng := &fakeEngine{permissionErr: errors.New("denied by user")}
	rec := &recorder{}
	m := NewMachine(eng, testConfig(), rec.hooks())

	err := m.Start(context.Background())
	require.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, StateIdle, m.State())
	assert.Equal(t, 1, rec.noticeCount())
	assert.Equal(t, 0, eng.startCount())
}

func TestStartWhileListeningRejected(t *testing.T) {
	eng := &fakeEngine{}
	rec := &recorder{}
	m := newListening(t, eng, rec)

	assert.ErrorIs(t, m.Start(context.Background()), ErrAlreadyListening)
}

func TestResultCommitsFinalSegmentsAndInterimIsTransient(t *testing.T) {
	eng := &fakeEngine{}
	rec := &recorder{}
	m := newListening(t, eng, rec)

	eng.sink.Result([]Segment{{Text: "hello", Final: true}})
	assert.Equal(t, "hello ", m.Transcript())

	eng.sink.Result([]Segment{{Text: "wor", Final: false}})
	assert.Equal(t, "hello wor", m.Transcript())

	// Next event discards the previous interim segment.
	eng.sink.Result([]Segment{{Text: "world", Final: true}})
	assert.Equal(t, "hello world ", m.Transcript())
}

func TestStopFinalizesTranscript(t *testing.T) {
	eng := &fakeEngine{}
	rec := &recorder{}
	m := newListening(t, eng, rec)

	eng.sink.Result([]Segment{{Text: "study plan", Final: true}})
	m.Stop()

	text, has, ok := rec.lastFinalized()
	require.True(t, ok)
	assert.Equal(t, "study plan", text)
	assert.True(t, has)
	assert.Equal(t, StateStopped, m.State())
	assert.Empty(t, m.Transcript())
}

func TestStopWithEmptyTranscript(t *testing.T) {
	eng := &fakeEngine{}
	rec := &recorder{}
	m := newListening(t, eng, rec)

	m.Stop()

	text, has, ok := rec.lastFinalized()
	require.True(t, ok)
	assert.Empty(t, text)
	assert.False(t, has)
}

func TestCancelDiscardsWithoutFinalizing(t *testing.T) {
	eng := &fakeEngine{}
	rec := &recorder{}
	m := newListening(t, eng, rec)

	eng.sink.Result([]Segment{{Text: "scratch that", Final: true}})
	m.Cancel()

	_, _, finalized := rec.lastFinalized()
	assert.False(t, finalized)
	assert.Equal(t, StateIdle, m.State())
	assert.Empty(t, m.Transcript())
}

func TestNetworkErrorBudget(t *testing.T) {
	eng := &fakeEngine{}
	rec := &recorder{}
	m := newListening(t, eng, rec)

	eng.sink.EngineError(CodeNetwork)
	assert.Equal(t, StateListening, m.State(), "one network error is within budget")

	eng.sink.EngineError(CodeNetwork)
	assert.Equal(t, StateTerminalError, m.State(), "two consecutive network errors are terminal")
	assert.Equal(t, 1, rec.noticeCount())
}

func TestNetworkErrorClearedBySuccessfulResult(t *testing.T) {
	eng := &fakeEngine{}
	rec := &recorder{}
	m := newListening(t, eng, rec)

	eng.sink.EngineError(CodeNetwork)
	eng.sink.Result([]Segment{{Text: "still here", Final: true}})
	eng.sink.EngineError(CodeNetwork)

	assert.Equal(t, StateListening, m.State(), "a successful result resets the consecutive counter")
}

func TestIgnorableErrorsDoNotTerminate(t *testing.T) {
	eng := &fakeEngine{}
	rec := &recorder{}
	m := newListening(t, eng, rec)

	for i := 0; i < 20; i++ {
		eng.sink.EngineError(CodeNoSpeech)
		eng.sink.EngineError(CodeAborted)
	}

	assert.Equal(t, StateListening, m.State())
	assert.Equal(t, 0, rec.noticeCount())
}

func TestPermissionRevokedMidSessionIsTerminal(t *testing.T) {
	tests := []string{CodeNotAllowed, CodeServiceNotAllowed}
	for _, code := range tests {
		t.Run(code, func(t *testing.T) {
			eng := &fakeEngine{}
			rec := &recorder{}
			m := newListening(t, eng, rec)

			eng.sink.EngineError(code)

			assert.Equal(t, StateTerminalError, m.State())
			assert.Equal(t, 1, rec.noticeCount())
		})
	}
}

func TestUnknownErrorsCountAgainstTotalBudget(t *testing.T) {
	eng := &fakeEngine{}
	rec := &recorder{}
	m := newListening(t, eng, rec)

	for i := 0; i < 4; i++ {
		eng.sink.EngineError("audio-capture")
		assert.Equal(t, StateListening, m.State())
	}
	eng.sink.EngineError("audio-capture")
	assert.Equal(t, StateTerminalError, m.State())
}

func TestAutoRestartOnUnexpectedEnd(t *testing.T) {
	eng := &fakeEngine{}
	rec := &recorder{}
	m := newListening(t, eng, rec)

	eng.sink.Ended()

	require.Eventually(t, func() bool {
		return eng.startCount() == 2
	}, time.Second, 5*time.Millisecond, "engine should be restarted")
	assert.Equal(t, StateListening, m.State())
}

func TestEndAfterStopDoesNotRestart(t *testing.T) {
	eng := &fakeEngine{}
	rec := &recorder{}
	m := newListening(t, eng, rec)

	m.Stop()
	eng.sink.Ended()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, eng.startCount())
}

func TestStartSafetyTimeout(t *testing.T) {
	eng := &fakeEngine{confirmStart: false}
	rec := &recorder{}
	cfg := testConfig()
	cfg.StartTimeout = 20 * time.Millisecond
	m := NewMachine(eng, cfg, rec.hooks())

	require.NoError(t, m.Start(context.Background()))

	require.Eventually(t, func() bool {
		return m.State() == StateIdle
	}, time.Second, 5*time.Millisecond, "machine should force-reset without confirmation")
	assert.Equal(t, 1, rec.noticeCount())
}

func TestDurationCapAutoStops(t *testing.T) {
	eng := &fakeEngine{}
	rec := &recorder{}
	cfg := testConfig()
	cfg.TickInterval = 5 * time.Millisecond
	cfg.MaxDuration = 15 * time.Millisecond
	eng.confirmStart = true
	m := NewMachine(eng, cfg, rec.hooks())
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(m.Cancel)

	eng.sink.Result([]Segment{{Text: "long lecture", Final: true}})

	require.Eventually(t, func() bool {
		_, _, ok := rec.lastFinalized()
		return ok
	}, time.Second, 5*time.Millisecond, "duration cap should auto-invoke stop")

	text, has, _ := rec.lastFinalized()
	assert.Equal(t, "long lecture", text)
	assert.True(t, has)
	assert.Equal(t, StateStopped, m.State())
}

func TestStartResetsPreviousSessionState(t *testing.T) {
	eng := &fakeEngine{}
	rec := &recorder{}
	m := newListening(t, eng, rec)

	eng.sink.Result([]Segment{{Text: "first session", Final: true}})
	m.Stop()

	require.NoError(t, m.Start(context.Background()))
	assert.Empty(t, m.Transcript(), "transcript resets on a fresh start")
	assert.Equal(t, StateListening, m.State())
}
