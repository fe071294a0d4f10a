package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"studybuddy/internal/config"
)

func TestMimeForFileUsesExtension(t *testing.T) {
	assert.Equal(t, "image/png", mimeForFile("worksheet.png", nil))
	assert.Equal(t, "image/jpeg", mimeForFile("photo.jpg", nil))
}

func TestMimeForFileSniffsUnknownExtension(t *testing.T) {
	pngMagic := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
	assert.Equal(t, "image/png", mimeForFile("upload.bin", pngMagic))
}

func TestVoiceConfigFallsBackOnInvalidDurations(t *testing.T) {
	vc := voiceConfigFrom(config.VoiceConfig{
		StartTimeout: "not-a-duration",
		TickInterval: "-5s",
		MaxDuration:  "",
		RestartDelay: "later",
	})
	assert.Equal(t, 3*time.Second, vc.StartTimeout)
	assert.Equal(t, time.Second, vc.TickInterval)
	assert.Equal(t, 120*time.Second, vc.MaxDuration)
	assert.Equal(t, 300*time.Millisecond, vc.RestartDelay)
}

func TestVoiceConfigUsesConfiguredDurations(t *testing.T) {
	vc := voiceConfigFrom(config.DefaultConfig().Voice)
	assert.Equal(t, 3*time.Second, vc.StartTimeout)
	assert.Equal(t, 2, vc.NetworkErrorBudget)
	assert.Equal(t, 5, vc.TotalErrorBudget)
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["version"])
	assert.True(t, names["clear-history"])
}
