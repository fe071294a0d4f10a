package backend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studybuddy/internal/config"
)

func TestStubReplySelectionByShape(t *testing.T) {
	s := NewStub(0)
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
		want string
	}{
		{"text only", Request{Text: "explain photosynthesis"}, stubTextReply},
		{"images only", Request{Images: []string{"data:image/png;base64,AQID"}}, stubImageReply},
		{"images with caption", Request{Text: "what is this?", Images: []string{"data:image/png;base64,AQID"}}, stubImageCaptionReply},
		{"images with blank caption", Request{Text: "   ", Images: []string{"data:image/png;base64,AQID"}}, stubImageReply},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := s.Respond(ctx, tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Text)
		})
	}
}

func TestStubIsDeterministic(t *testing.T) {
	s := NewStub(0)
	ctx := context.Background()

	first, err := s.Respond(ctx, Request{Text: "hi"})
	require.NoError(t, err)
	second, err := s.Respond(ctx, Request{Text: "completely different"})
	require.NoError(t, err)
	assert.Equal(t, first.Text, second.Text, "same shape yields the same reply")
}

func TestStubHonorsContextCancellation(t *testing.T) {
	s := NewStub(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Respond(ctx, Request{Text: "hi"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecodeDataURL(t *testing.T) {
	mime, data, err := decodeDataURL("data:image/png;base64,AQID")
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, []byte{1, 2, 3}, data)

	_, _, err = decodeDataURL("http://example.com/x.png")
	assert.Error(t, err)

	_, _, err = decodeDataURL("data:image/png;base64,!!!")
	assert.Error(t, err)
}

func TestNewFromConfigDefaultsToStub(t *testing.T) {
	r, err := NewFromConfig(context.Background(), config.GenerationConfig{Provider: "stub", StubDelay: "1ms"})
	require.NoError(t, err)
	_, ok := r.(*Stub)
	assert.True(t, ok)

	r, err = NewFromConfig(context.Background(), config.GenerationConfig{Provider: "does-not-exist"})
	require.NoError(t, err)
	_, ok = r.(*Stub)
	assert.True(t, ok)
}

func TestNewFromConfigGeminiRequiresKey(t *testing.T) {
	_, err := NewFromConfig(context.Background(), config.GenerationConfig{Provider: "gemini"})
	assert.Error(t, err)
}
