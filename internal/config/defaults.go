package config

import (
	"os"
	"path/filepath"

	"github.com/JanetCheng0311/MARIE/internal/chat"
	"github.com/JanetCheng0311/MARIE/internal/gradio"
	"github.com/JanetCheng0311/MARIE/internal/minimax"
)

// Defaults for settings left empty.
const (
	DefaultVoiceID            = "Cantonese_CuteGirl"
	DefaultLangfuseHost       = "https://cloud.langfuse.com"
	defaultRequestTimeout     = 60
	defaultChatTimeout        = 180
	defaultStreamTimeout      = 600
	defaultLangfuseTimeout    = 10
	defaultTTSMaxAttempts     = 240
	defaultTTSInterval        = 2
	defaultTranscribeAttempts = 60
	defaultTranscribeBase     = 2
	defaultTranscribeMaxWait  = 30
	defaultFetchAttempts      = 3
	defaultSynthesisSubject   = "marie.speech.synthesize"
	defaultQueueGroup         = "marie-workers"
	defaultTextBucket         = "MARIE_TEXT"
	defaultAudioBucket        = "MARIE_AUDIO"
	defaultHandleBucket       = "MARIE_JOB_HANDLES"
	defaultHandleTTLHours     = 24
	defaultJobTimeout         = 600
	defaultOutputDir          = "audio_result"
	defaultTranscriptsDir     = "results"
	defaultMaxSampleSeconds   = 300
	defaultMaxSampleCount     = 7
	defaultMetricsAddr        = ":9090"
	defaultLogsDirName        = "marie-logs"
)

// ApplyDefaults fills every empty setting.
func (c *Config) ApplyDefaults() {
	setString(&c.MiniMax.BaseURL, minimax.DefaultBaseURL)
	setString(&c.MiniMax.VoiceID, DefaultVoiceID)
	setString(&c.MiniMax.Model, minimax.DefaultModel)
	setString(&c.MiniMax.CloneModel, minimax.DefaultCloneModel)
	setInt(&c.MiniMax.TimeoutSeconds, defaultRequestTimeout)

	setString(&c.Gradio.APIName, gradio.DefaultAPIName)
	setInt(&c.Gradio.TimeoutSeconds, defaultRequestTimeout)
	setInt(&c.Gradio.StreamTimeoutSeconds, defaultStreamTimeout)

	setString(&c.Chat.Model, chat.DefaultModel)
	setInt(&c.Chat.TimeoutSeconds, defaultChatTimeout)

	setString(&c.Langfuse.Host, DefaultLangfuseHost)
	setInt(&c.Langfuse.TimeoutSeconds, defaultLangfuseTimeout)

	setInt(&c.Poll.TTSMaxAttempts, defaultTTSMaxAttempts)
	setInt(&c.Poll.TTSIntervalSeconds, defaultTTSInterval)
	setInt(&c.Poll.TranscribeMaxAttempts, defaultTranscribeAttempts)
	setInt(&c.Poll.TranscribeBaseSeconds, defaultTranscribeBase)
	setInt(&c.Poll.TranscribeMaxWaitSeconds, defaultTranscribeMaxWait)
	setInt(&c.Poll.FetchAttempts, defaultFetchAttempts)

	setString(&c.NATS.SynthesisSubject, defaultSynthesisSubject)
	setString(&c.NATS.QueueGroup, defaultQueueGroup)
	setString(&c.NATS.TextObjectStoreBucket, defaultTextBucket)
	setString(&c.NATS.AudioObjectStoreBucket, defaultAudioBucket)
	setString(&c.NATS.HandleBucket, defaultHandleBucket)
	setInt(&c.NATS.HandleTTLHours, defaultHandleTTLHours)
	setInt(&c.NATS.JobTimeoutSeconds, defaultJobTimeout)

	setString(&c.Paths.BaseLogsDir, filepath.Join(os.TempDir(), defaultLogsDirName))
	setString(&c.Paths.OutputDir, defaultOutputDir)
	setString(&c.Paths.TranscriptsDir, defaultTranscriptsDir)

	setInt(&c.Audio.MaxSampleSeconds, defaultMaxSampleSeconds)
	setInt(&c.Audio.MaxSampleCount, defaultMaxSampleCount)

	setString(&c.Metrics.Addr, defaultMetricsAddr)
}

func setString(target *string, value string) {
	if *target == "" {
		*target = value
	}
}

func setInt(target *int, value int) {
	if *target == 0 {
		*target = value
	}
}
