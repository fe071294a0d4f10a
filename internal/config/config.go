// Package config loads and validates studybuddy configuration.
// Configuration lives in .studybuddy/config.yaml under the workspace;
// missing files fall back to defaults so the app runs with zero setup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all studybuddy configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Input limits (staged images)
	Limits LimitsConfig `yaml:"limits"`

	// Voice capture lifecycle
	Voice VoiceConfig `yaml:"voice"`

	// Assistant response generation
	Generation GenerationConfig `yaml:"generation"`

	// Conversation storage
	Storage StorageConfig `yaml:"storage"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LimitsConfig bounds the staged-image set.
type LimitsConfig struct {
	MaxImages      int `yaml:"max_images"`
	MaxImageSizeMB int `yaml:"max_image_size_mb"`
}

// VoiceConfig configures the speech-capture state machine.
// Durations are Go duration strings so tests can compress them.
type VoiceConfig struct {
	StartTimeout       string `yaml:"start_timeout"`        // safety timer waiting for start confirmation
	TickInterval       string `yaml:"tick_interval"`        // duration-guard tick
	MaxDuration        string `yaml:"max_duration"`         // hard cap before auto-stop
	RestartDelay       string `yaml:"restart_delay"`        // backoff before auto-restart on unexpected end
	NetworkErrorBudget int    `yaml:"network_error_budget"` // consecutive network errors before terminal reset
	TotalErrorBudget   int    `yaml:"total_error_budget"`   // total errors before terminal reset
}

// GenerationConfig configures the assistant backend.
type GenerationConfig struct {
	Provider  string `yaml:"provider"` // stub, gemini
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	StubDelay string `yaml:"stub_delay"` // simulated latency for the stub provider
}

// StorageConfig selects the conversation store.
// Disabled means the no-op store: nothing survives a restart.
type StorageConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig controls the category file logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		Name:    "studybuddy",
		Version: "1.0.0",
		Limits: LimitsConfig{
			MaxImages:      5,
			MaxImageSizeMB: 10,
		},
		Voice: VoiceConfig{
			StartTimeout:       "3s",
			TickInterval:       "1s",
			MaxDuration:        "120s",
			RestartDelay:       "300ms",
			NetworkErrorBudget: 2,
			TotalErrorBudget:   5,
		},
		Generation: GenerationConfig{
			Provider:  "stub",
			Model:     "gemini-2.0-flash",
			StubDelay: "1500ms",
		},
		Storage: StorageConfig{
			Enabled:      false,
			DatabasePath: ".studybuddy/conversations.db",
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load reads config from workspace/.studybuddy/config.yaml, applying
// defaults for anything unset. A missing file is not an error.
func Load(workspace string) (Config, error) {
	cfg := DefaultConfig()

	path := filepath.Join(workspace, ".studybuddy", "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyDefaults backfills zero values left by a partial config file.
func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Version == "" {
		cfg.Version = def.Version
	}
	if cfg.Limits.MaxImages <= 0 {
		cfg.Limits.MaxImages = def.Limits.MaxImages
	}
	if cfg.Limits.MaxImageSizeMB <= 0 {
		cfg.Limits.MaxImageSizeMB = def.Limits.MaxImageSizeMB
	}
	if cfg.Voice.StartTimeout == "" {
		cfg.Voice.StartTimeout = def.Voice.StartTimeout
	}
	if cfg.Voice.TickInterval == "" {
		cfg.Voice.TickInterval = def.Voice.TickInterval
	}
	if cfg.Voice.MaxDuration == "" {
		cfg.Voice.MaxDuration = def.Voice.MaxDuration
	}
	if cfg.Voice.RestartDelay == "" {
		cfg.Voice.RestartDelay = def.Voice.RestartDelay
	}
	if cfg.Voice.NetworkErrorBudget <= 0 {
		cfg.Voice.NetworkErrorBudget = def.Voice.NetworkErrorBudget
	}
	if cfg.Voice.TotalErrorBudget <= 0 {
		cfg.Voice.TotalErrorBudget = def.Voice.TotalErrorBudget
	}
	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = def.Generation.Provider
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = def.Generation.Model
	}
	if cfg.Generation.StubDelay == "" {
		cfg.Generation.StubDelay = def.Generation.StubDelay
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = def.Storage.DatabasePath
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
}

// applyEnvOverrides lets the environment win over the file for secrets.
func applyEnvOverrides(cfg *Config) {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.Generation.APIKey = key
	}
}

// ParseDurationOr parses a duration string, falling back when empty or invalid.
func ParseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// MaxImageSizeBytes converts the configured megabyte limit to bytes.
func (l LimitsConfig) MaxImageSizeBytes() int64 {
	return int64(l.MaxImageSizeMB) * 1024 * 1024
}

// Save writes the config back to disk, creating .studybuddy if needed.
func Save(workspace string, cfg Config) error {
	dir := filepath.Join(workspace, ".studybuddy")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0644)
}
