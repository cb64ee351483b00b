package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JanetCheng0311/MARIE/internal/asyncjob"
	"github.com/JanetCheng0311/MARIE/internal/chat"
	"github.com/JanetCheng0311/MARIE/internal/minimax"
	"github.com/JanetCheng0311/MARIE/internal/textclean"
)

// ProviderMiniMax labels speech jobs.
const ProviderMiniMax = "minimax"

// Static errors.
var (
	ErrEmptyQuestion = errors.New("question is empty")
	ErrEmptySpeech   = errors.New("nothing to synthesise")
	ErrNoChat        = errors.New("chat client not configured")
)

// Completer returns the model's reply to a prompt. *chat.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, prompt chat.Prompt) (string, error)
}

// SpeechSettings select the voice of synthesised clips.
type SpeechSettings struct {
	VoiceID       string
	Model         string
	LanguageBoost string
	SystemPrompt  string
	OutDir        string
	// Filter, when set, redacts offensive terms from chat replies before synthesis.
	Filter *textclean.Filter
}

// Speech is a saved clip.
type Speech struct {
	Text   string
	Path   string
	TaskID string
}

// Speaker answers questions aloud: chat reply, cleanup, MiniMax synthesis.
type Speaker struct {
	chat     Completer
	runner   *Runner
	settings SpeechSettings
	now      func() time.Time
}

// NewSpeaker creates a Speaker. chat may be nil when only Synthesize is used.
func NewSpeaker(completer Completer, runner *Runner, settings SpeechSettings) *Speaker {
	return &Speaker{
		chat:     completer,
		runner:   runner,
		settings: settings,
		now:      time.Now,
	}
}

// Speak asks the chat model for a Cantonese reply and voices it.
func (s *Speaker) Speak(ctx context.Context, question string) (Speech, error) {
	if strings.TrimSpace(question) == "" {
		return Speech{}, ErrEmptyQuestion
	}

	if s.chat == nil {
		return Speech{}, ErrNoChat
	}

	reply, err := s.chat.Complete(ctx, chat.AnswerPrompt(s.settings.SystemPrompt, question))
	if err != nil {
		return Speech{}, fmt.Errorf("failed to get reply: %w", err)
	}

	reply, err = textclean.StripThinking(reply)
	if err != nil {
		return Speech{}, err
	}

	if s.settings.Filter != nil {
		reply = s.settings.Filter.Redact(reply)
	}

	return s.Synthesize(ctx, reply)
}

// Synthesize voices text and saves the clip.
func (s *Speaker) Synthesize(ctx context.Context, text string) (Speech, error) {
	if strings.TrimSpace(text) == "" {
		return Speech{}, ErrEmptySpeech
	}

	outcome, err := s.runner.Run(ctx, s.SpeechJob(text))
	if err != nil {
		return Speech{}, err
	}

	path, err := WriteArtifact(s.settings.OutDir, SpeechFileName(s.now()), outcome.Artifact)
	if err != nil {
		return Speech{}, err
	}

	return Speech{Text: text, Path: path, TaskID: outcome.Result.Handle.TaskID}, nil
}

// SpeechJob builds the MiniMax job for text in the configured voice.
func (s *Speaker) SpeechJob(text string) Job {
	return s.VoicedJob(text, "")
}

// VoicedJob builds the MiniMax job for text. An empty voiceID uses the
// configured voice.
func (s *Speaker) VoicedJob(text, voiceID string) Job {
	if voiceID == "" {
		voiceID = s.settings.VoiceID
	}

	request := minimax.NewSpeechRequest(text, voiceID)
	if s.settings.Model != "" {
		request.Model = s.settings.Model
	}

	request.LanguageBoost = s.settings.LanguageBoost

	return Job{
		Provider: ProviderMiniMax,
		Name:     "tts",
		Model:    request.Model,
		Input:    text,
		Request:  request.Job(),
	}
}

// Resume collects a clip submitted earlier, identified by its task id.
func (s *Speaker) Resume(ctx context.Context, taskID string) (Speech, error) {
	job := Job{Provider: ProviderMiniMax, Name: "tts-resume", Model: s.settings.Model}

	outcome, err := s.runner.Resume(ctx, job, asyncjob.Handle{TaskID: taskID})
	if err != nil {
		return Speech{}, err
	}

	path, err := WriteArtifact(s.settings.OutDir, SpeechFileName(s.now()), outcome.Artifact)
	if err != nil {
		return Speech{}, err
	}

	return Speech{Path: path, TaskID: taskID}, nil
}
