package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/JanetCheng0311/MARIE/internal/asyncjob"
	"github.com/JanetCheng0311/MARIE/internal/chat"
	"github.com/JanetCheng0311/MARIE/internal/config"
	"github.com/JanetCheng0311/MARIE/internal/minimax"
	"github.com/JanetCheng0311/MARIE/internal/pipeline"
	"github.com/JanetCheng0311/MARIE/internal/textclean"
	"github.com/JanetCheng0311/MARIE/internal/tracing"
)

// langfuse returns the tracing client, or nil when tracing is not configured.
// One client serves the whole invocation and is flushed by close.
func (a *app) langfuse() *tracing.Langfuse {
	if a.tracer != nil || !a.cfg.LangfuseEnabled() {
		return a.tracer
	}

	client, err := tracing.NewLangfuse(context.Background(), a.cfg.Langfuse.Host, a.cfg.Langfuse.PublicKey,
		a.cfg.Langfuse.SecretKey)
	if err != nil {
		a.log.Warn("Langfuse disabled: %v", err)

		return nil
	}

	a.tracer = client

	return client
}

func (a *app) runner(adapter asyncjob.Adapter, timeoutSeconds int, policy asyncjob.PollPolicy) *pipeline.Runner {
	client := asyncjob.NewClient(adapter, config.Timeout(timeoutSeconds), a.log)

	opts := []pipeline.Option{pipeline.WithFetchAttempts(a.cfg.Poll.FetchAttempts)}

	langfuse := a.langfuse()
	if langfuse != nil {
		opts = append(opts, pipeline.WithObserver(tracing.NewLangfuseObserver(langfuse, a.log)))
	}

	return pipeline.NewRunner(client, policy, a.log, opts...)
}

func (a *app) chat() (*chat.Client, error) {
	err := a.cfg.RequireChat()
	if err != nil {
		return nil, err
	}

	client, err := chat.NewClient(a.cfg.Chat.Endpoint, a.cfg.Chat.APIKey, a.cfg.Chat.Model,
		config.Timeout(a.cfg.Chat.TimeoutSeconds))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat client: %w", err)
	}

	return client, nil
}

// speaker builds the speech pipeline. withChat also connects the chat model.
func (a *app) speaker(withChat bool) (*pipeline.Speaker, error) {
	err := a.cfg.RequireMiniMax()
	if err != nil {
		return nil, err
	}

	settings, err := a.speechSettings()
	if err != nil {
		return nil, err
	}

	var completer pipeline.Completer

	if withChat {
		client, chatErr := a.chat()
		if chatErr != nil {
			return nil, chatErr
		}

		completer = client
	}

	adapter := minimax.NewAdapter(a.cfg.MiniMax.BaseURL, a.cfg.MiniMax.APIKey)
	runner := a.runner(adapter, a.cfg.MiniMax.TimeoutSeconds, a.cfg.TTSPolicy())

	return pipeline.NewSpeaker(completer, runner, settings), nil
}

func (a *app) speechSettings() (pipeline.SpeechSettings, error) {
	settings := pipeline.SpeechSettings{
		VoiceID:       a.cfg.MiniMax.VoiceID,
		Model:         a.cfg.MiniMax.Model,
		LanguageBoost: a.cfg.MiniMax.LanguageBoost,
		OutDir:        a.cfg.Paths.OutputDir,
	}

	if a.cfg.Chat.SystemPromptFile != "" {
		prompt, err := os.ReadFile(a.cfg.Chat.SystemPromptFile)
		if err != nil {
			return settings, fmt.Errorf("failed to read system prompt: %w", err)
		}

		settings.SystemPrompt = strings.TrimSpace(string(prompt))
	}

	if a.cfg.Paths.FilterTermsFile != "" {
		filter, err := textclean.LoadFilter(a.cfg.Paths.FilterTermsFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return settings, err
		}

		settings.Filter = filter
	}

	return settings, nil
}
