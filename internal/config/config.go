// Package config provides the configuration structure for the MARIE tools.
//
// Values come from a TOML file (through the central configurator for the
// worker, or a local path for the CLI), then from a .env file, then from the
// process environment. Later sources win.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/JanetCheng0311/MARIE/internal/asyncjob"
	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// ErrMissingCredential is returned by the Require methods.
var ErrMissingCredential = errors.New("missing credential")

// MiniMaxConfig holds the speech service settings.
type MiniMaxConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	VoiceID        string `toml:"voice_id"`
	Model          string `toml:"model"`
	LanguageBoost  string `toml:"language_boost"`
	CloneModel     string `toml:"clone_model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// GradioConfig holds the transcription app settings.
type GradioConfig struct {
	URL            string `toml:"url"`
	APIName        string `toml:"api_name"`
	Token          string `toml:"token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	// StreamTimeoutSeconds bounds call requests. The status stream stays
	// open until the app finishes the call.
	StreamTimeoutSeconds int `toml:"stream_timeout_seconds"`
}

// ChatConfig holds the OpenAI-compatible chat server settings.
type ChatConfig struct {
	Endpoint         string `toml:"endpoint"`
	APIKey           string `toml:"api_key"`
	Model            string `toml:"model"`
	SystemPromptFile string `toml:"system_prompt_file"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
}

// LangfuseConfig holds the tracing credentials. Tracing is off without keys.
type LangfuseConfig struct {
	Host           string `toml:"host"`
	PublicKey      string `toml:"public_key"`
	SecretKey      string `toml:"secret_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// PollConfig bounds the poll loops.
type PollConfig struct {
	TTSMaxAttempts           int `toml:"tts_max_attempts"`
	TTSIntervalSeconds       int `toml:"tts_interval_seconds"`
	TranscribeMaxAttempts    int `toml:"transcribe_max_attempts"`
	TranscribeBaseSeconds    int `toml:"transcribe_base_seconds"`
	TranscribeMaxWaitSeconds int `toml:"transcribe_max_wait_seconds"`
	TimeoutSeconds           int `toml:"timeout_seconds"`
	FetchAttempts            int `toml:"fetch_attempts"`
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                    string `toml:"url"`
	SynthesisSubject       string `toml:"synthesis_subject"`
	QueueGroup             string `toml:"queue_group"`
	TextObjectStoreBucket  string `toml:"text_object_store_bucket"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
	HandleBucket           string `toml:"handle_bucket"`
	HandleTTLHours         int    `toml:"handle_ttl_hours"`
	JobTimeoutSeconds      int    `toml:"job_timeout_seconds"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir     string `toml:"base_logs_dir"`
	OutputDir       string `toml:"output_dir"`
	TranscriptsDir  string `toml:"transcripts_dir"`
	FilterTermsFile string `toml:"filter_terms_file"`
}

// AudioConfig locates the ffmpeg tools and bounds voice samples.
type AudioConfig struct {
	FFmpeg           string `toml:"ffmpeg"`
	FFprobe          string `toml:"ffprobe"`
	MaxSampleSeconds int    `toml:"max_sample_seconds"`
	MaxSampleCount   int    `toml:"max_sample_count"`
}

// MetricsConfig holds the Prometheus listener.
type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// Config is the root configuration structure.
type Config struct {
	MiniMax  MiniMaxConfig  `toml:"minimax"`
	Gradio   GradioConfig   `toml:"gradio"`
	Chat     ChatConfig     `toml:"chat"`
	Langfuse LangfuseConfig `toml:"langfuse"`
	Poll     PollConfig     `toml:"poll"`
	NATS     NATSConfig     `toml:"nats"`
	Paths    PathsConfig    `toml:"paths"`
	Audio    AudioConfig    `toml:"audio"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

// Load loads the worker configuration through the central configurator and
// overlays .env and the environment.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return finish(&cfg)
}

// LoadFile reads a local TOML file. An empty path starts from defaults.
func LoadFile(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		err = toml.Unmarshal(data, &cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	err := LoadDotEnv()
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnv(os.LookupEnv)
	cfg.ApplyDefaults()

	return cfg, nil
}

// LoadDotEnv loads the given .env files (default ".env") into the process
// environment. Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	for _, path := range paths {
		_, statErr := os.Stat(path)
		if errors.Is(statErr, os.ErrNotExist) {
			continue
		}

		err := godotenv.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	return nil
}

// TTSPolicy is the poll policy for speech jobs.
func (c *Config) TTSPolicy() asyncjob.PollPolicy {
	policy := asyncjob.FixedPolicy(c.Poll.TTSMaxAttempts, seconds(c.Poll.TTSIntervalSeconds))

	return policy.WithTimeout(seconds(c.Poll.TimeoutSeconds))
}

// TranscribePolicy is the poll policy for transcription jobs.
func (c *Config) TranscribePolicy() asyncjob.PollPolicy {
	policy := asyncjob.ExponentialPolicy(
		c.Poll.TranscribeMaxAttempts,
		seconds(c.Poll.TranscribeBaseSeconds),
		seconds(c.Poll.TranscribeMaxWaitSeconds),
	)

	return policy.WithTimeout(seconds(c.Poll.TimeoutSeconds))
}

// RequireMiniMax fails when the speech API key is missing.
func (c *Config) RequireMiniMax() error {
	if c.MiniMax.APIKey == "" {
		return fmt.Errorf("%w: set MINIMAX_API_KEY or [minimax] api_key", ErrMissingCredential)
	}

	return nil
}

// RequireGradio fails when the transcription app URL is missing.
func (c *Config) RequireGradio() error {
	if c.Gradio.URL == "" {
		return fmt.Errorf("%w: set GRADIO_URL or [gradio] url", ErrMissingCredential)
	}

	return nil
}

// RequireChat fails when the chat endpoint is missing.
func (c *Config) RequireChat() error {
	if c.Chat.Endpoint == "" {
		return fmt.Errorf("%w: set SERVER_IP or [chat] endpoint", ErrMissingCredential)
	}

	return nil
}

// LangfuseEnabled reports whether both Langfuse keys are present.
func (c *Config) LangfuseEnabled() bool {
	return c.Langfuse.PublicKey != "" && c.Langfuse.SecretKey != ""
}

// Timeout converts one of the *_seconds settings.
func Timeout(secondsValue int) time.Duration {
	return seconds(secondsValue)
}

func seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}
