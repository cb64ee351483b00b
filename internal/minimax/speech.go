package minimax

import "github.com/JanetCheng0311/MARIE/internal/asyncjob"

// Speech defaults.
const (
	DefaultModel      = "speech-2.6-turbo"
	DefaultSampleRate = 32000
	DefaultBitrate    = 128000
	DefaultFormat     = "mp3"
	defaultChannel    = 1
	defaultSpeed      = 1.0
	defaultVolume     = 1.0
	defaultPitch      = 1
)

// VoiceSetting selects the voice and its delivery.
type VoiceSetting struct {
	VoiceID string  `json:"voice_id"`
	Speed   float64 `json:"speed"`
	Vol     float64 `json:"vol"`
	Pitch   int     `json:"pitch"`
}

// AudioSetting describes the encoded output.
type AudioSetting struct {
	SampleRate int    `json:"sample_rate"`
	Bitrate    int    `json:"bitrate"`
	Format     string `json:"format"`
	Channel    int    `json:"channel"`
}

// SpeechRequest is the t2a_async_v2 body.
type SpeechRequest struct {
	Model         string       `json:"model"`
	Text          string       `json:"text"`
	VoiceSetting  VoiceSetting `json:"voice_setting"`
	AudioSetting  AudioSetting `json:"audio_setting"`
	LanguageBoost string       `json:"language_boost,omitempty"`
}

// NewSpeechRequest fills in the defaults used for mono 32 kHz mp3 output.
func NewSpeechRequest(text, voiceID string) SpeechRequest {
	return SpeechRequest{
		Model: DefaultModel,
		Text:  text,
		VoiceSetting: VoiceSetting{
			VoiceID: voiceID,
			Speed:   defaultSpeed,
			Vol:     defaultVolume,
			Pitch:   defaultPitch,
		},
		AudioSetting: AudioSetting{
			SampleRate: DefaultSampleRate,
			Bitrate:    DefaultBitrate,
			Format:     DefaultFormat,
			Channel:    defaultChannel,
		},
	}
}

// Job wraps the request for asyncjob.Client.Submit.
func (s SpeechRequest) Job() asyncjob.Request {
	return asyncjob.Request{Payload: s}
}
