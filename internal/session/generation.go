package session

import (
	"context"
	"strings"

	"studybuddy/internal/backend"
	"studybuddy/internal/logging"
	"studybuddy/internal/staging"
)

// generationFailedReply keeps the history mirror balanced when the
// backend errors out: the exchange still completes with one assistant
// entry.
const generationFailedReply = "Sorry, something went wrong while generating a response. Please try again."

// Send dispatches the user's turn: staged images and the transcript
// flag are attached, the user message is appended and mirrored, and a
// generation starts. Fails when a generation is already live or there
// is nothing to send.
func (c *Controller) Send(text string) error {
	text = strings.TrimSpace(text)

	// Let in-flight encodes land so the message carries every staged
	// image that was accepted before dispatch.
	if c.staged != nil {
		c.staged.Wait()
	}

	c.mu.Lock()
	if c.gen != nil {
		c.mu.Unlock()
		return ErrGenerationInFlight
	}

	var images []staging.Image
	if c.staged != nil {
		if text == "" && c.staged.Count() == 0 {
			c.mu.Unlock()
			return ErrEmptyMessage
		}
		images = c.staged.TakeAll()
	} else if text == "" {
		c.mu.Unlock()
		return ErrEmptyMessage
	}

	isVoice := c.hasVoiceTranscript
	c.hasVoiceTranscript = false
	c.draft = ""

	c.appendLocked(text, SenderUser, images, isVoice)
	c.startGenerationLocked(text, imageRefs(images))
	c.mu.Unlock()

	c.notify(Event{Kind: EventScrollToEnd})
	c.notify(Event{Kind: EventFocusInput})
	c.notify(Event{Kind: EventTypingChanged})
	return nil
}

// startGenerationLocked issues the backend request for one turn.
// Callers hold the lock and have already verified no token is live.
func (c *Controller) startGenerationLocked(text string, refs []string) {
	token := &generation{}
	c.gen = token
	c.typing = true

	req := backend.Request{Text: text, Images: refs}
	go c.resolve(token, req)

	logging.Generation("generation started: text_len=%d images=%d", len(text), len(refs))
}

// resolve waits for the backend and applies the outcome, unless the
// token was cancelled in the interim, in which case the response is
// discarded silently.
func (c *Controller) resolve(token *generation, req backend.Request) {
	resp, err := c.responder.Respond(context.Background(), req)

	c.mu.Lock()
	if token.cancelled {
		c.mu.Unlock()
		logging.Generation("discarding response for cancelled generation")
		return
	}
	c.gen = nil
	c.typing = false

	text := resp.Text
	if err != nil {
		logging.GenerationError("backend failed: %v", err)
		text = generationFailedReply
	}
	c.appendLocked(text, SenderAssistant, nil, false)
	c.mu.Unlock()

	c.notify(Event{Kind: EventTypingChanged})
	c.notify(Event{Kind: EventScrollToEnd})
}

// CancelGeneration cooperatively stops the live generation: the token
// is flagged, typing clears immediately, and the sentinel message takes
// the reply's place. A no-op when nothing is in flight.
func (c *Controller) CancelGeneration() {
	c.mu.Lock()
	if c.gen == nil {
		c.mu.Unlock()
		return
	}
	c.gen.cancelled = true
	c.gen = nil
	c.typing = false
	c.appendLocked(SentinelStopped, SenderAssistant, nil, false)
	c.mu.Unlock()

	logging.Generation("generation cancelled by user")
	c.notify(Event{Kind: EventTypingChanged})
	c.notify(Event{Kind: EventScrollToEnd})
}
