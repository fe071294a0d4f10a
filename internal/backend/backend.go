// Package backend produces assistant replies. The default Responder is
// a fixed-delay stub; a Gemini-backed implementation is selected by
// configuration. Cancellation is the caller's business: a Responder
// always delivers exactly one response per accepted request, and the
// session controller discards responses for cancelled generations.
package backend

import "context"

// Request is one generation request: the user's prompt text plus any
// attached image references (data URLs).
type Request struct {
	Text   string
	Images []string
}

// Response is the assistant's reply text.
type Response struct {
	Text string
}

// Responder generates one reply per request.
type Responder interface {
	Respond(ctx context.Context, req Request) (Response, error)
}
