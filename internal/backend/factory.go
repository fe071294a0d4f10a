package backend

import (
	"context"
	"fmt"

	"studybuddy/internal/config"
	"studybuddy/internal/logging"
)

// NewFromConfig builds the Responder selected by configuration.
// Unknown providers fall back to the stub so the app stays usable.
func NewFromConfig(ctx context.Context, cfg config.GenerationConfig) (Responder, error) {
	switch cfg.Provider {
	case "gemini":
		r, err := NewGeminiResponder(ctx, GeminiConfig{
			APIKey: cfg.APIKey,
			Model:  cfg.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build gemini responder: %w", err)
		}
		logging.Generation("using gemini provider, model=%s", cfg.Model)
		return r, nil

	case "stub", "":
		delay := config.ParseDurationOr(cfg.StubDelay, defaultStubDelay)
		logging.Generation("using stub provider, delay=%v", delay)
		return NewStub(delay), nil

	default:
		logging.GenerationError("unknown provider %q, falling back to stub", cfg.Provider)
		delay := config.ParseDurationOr(cfg.StubDelay, defaultStubDelay)
		return NewStub(delay), nil
	}
}
