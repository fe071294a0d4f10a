package voice

import "context"

// Error codes reported by speech engines. Anything else is counted
// against the total budget and otherwise ignored.
const (
	CodeNetwork           = "network"
	CodeNoSpeech          = "no-speech"
	CodeAborted           = "aborted"
	CodeNotAllowed        = "not-allowed"
	CodeServiceNotAllowed = "service-not-allowed"
)

// Segment is one recognition result. Final segments are committed to
// the transcript; non-final ones are shown transiently.
type Segment struct {
	Text  string
	Final bool
}

// EventSink receives engine events. The Machine implements it; engines
// may deliver events from any goroutine.
type EventSink interface {
	StartConfirmed()
	Result(segments []Segment)
	EngineError(code string)
	Ended()
}

// Engine abstracts the platform speech-to-text collaborator.
type Engine interface {
	// RequestPermission asks for microphone access. An error means the
	// user (or platform) denied it.
	RequestPermission(ctx context.Context) error

	// Start begins continuous capture with interim results, delivering
	// events to sink until Stop is called or the engine ends on its own.
	Start(sink EventSink) error

	// Stop halts capture. Stopping an engine that is not running is a
	// no-op.
	Stop()
}
