package backend

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"studybuddy/internal/logging"
)

// GeminiResponder generates replies through the Gemini API, passing
// staged images as inline parts.
type GeminiResponder struct {
	client *genai.Client
	model  string
}

// GeminiConfig holds configuration for the Gemini Responder.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// NewGeminiResponder creates a Gemini-backed Responder.
func NewGeminiResponder(ctx context.Context, cfg GeminiConfig) (*GeminiResponder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiResponder{client: client, model: model}, nil
}

// Respond sends the prompt and any inline images to Gemini.
func (g *GeminiResponder) Respond(ctx context.Context, req Request) (Response, error) {
	var parts []*genai.Part
	if strings.TrimSpace(req.Text) != "" {
		parts = append(parts, genai.NewPartFromText(req.Text))
	}
	for _, ref := range req.Images {
		mime, data, err := decodeDataURL(ref)
		if err != nil {
			logging.GenerationError("skipping undecodable image: %v", err)
			continue
		}
		parts = append(parts, genai.NewPartFromBytes(data, mime))
	}
	if len(parts) == 0 {
		return Response{}, fmt.Errorf("empty generation request")
	}

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	start := time.Now()
	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		logging.GenerationError("gemini request failed after %v: %v", time.Since(start), err)
		return Response{}, fmt.Errorf("gemini generation failed: %w", err)
	}

	text := result.Text()
	logging.Generation("gemini responded in %v, len=%d", time.Since(start), len(text))
	return Response{Text: text}, nil
}

// decodeDataURL splits a data:<mime>;base64,<payload> reference back
// into its MIME type and raw bytes.
func decodeDataURL(ref string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(ref, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data URL")
	}
	mime, _, _ := strings.Cut(meta, ";")
	if mime == "" {
		return "", nil, fmt.Errorf("data URL missing MIME type")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode image payload: %w", err)
	}
	return mime, data, nil
}
