package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"studybuddy/internal/logging"
)

const defaultStubDelay = 1500 * time.Millisecond

// Stub canned replies, selected deterministically by input shape.
const (
	stubTextReply = "Great question! Let's work through it together.\n\n" +
		"1. Break the problem into smaller parts\n" +
		"2. Identify what you already know\n" +
		"3. Tackle the unknowns one at a time\n\n" +
		"Which part would you like to start with?"

	stubImageReply = "Thanks for sharing the image! Here's what I can see:\n\n" +
		"- The material looks well structured\n" +
		"- A few key concepts stand out that we should review\n\n" +
		"Want me to explain any part of it in more detail?"

	stubImageCaptionReply = "I looked at the image with your note in mind. " +
		"Your question touches on the core idea shown there.\n\n" +
		"**Short answer**: yes, you're on the right track. " +
		"Let me know if you'd like a step-by-step walkthrough."
)

// Stub is the development Responder: it waits a fixed simulated delay
// and answers with a canned reply chosen by the request shape.
type Stub struct {
	delay time.Duration
}

// NewStub creates a stub Responder with the given simulated latency.
func NewStub(delay time.Duration) *Stub {
	return &Stub{delay: delay}
}

// Respond waits out the simulated delay and picks the reply:
// image-inclusive requests get the analysis reply (with a caption
// variant when text accompanies them), text-only requests get the
// study reply.
func (s *Stub) Respond(ctx context.Context, req Request) (Response, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return Response{}, fmt.Errorf("stub generation interrupted: %w", ctx.Err())
	}

	logging.GenerationDebug("stub responding: text_len=%d images=%d", len(req.Text), len(req.Images))

	switch {
	case len(req.Images) > 0 && strings.TrimSpace(req.Text) != "":
		return Response{Text: stubImageCaptionReply}, nil
	case len(req.Images) > 0:
		return Response{Text: stubImageReply}, nil
	default:
		return Response{Text: stubTextReply}, nil
	}
}
