package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/JanetCheng0311/MARIE/internal/audio"
	"github.com/JanetCheng0311/MARIE/internal/config"
	"github.com/JanetCheng0311/MARIE/internal/minimax"
	"github.com/JanetCheng0311/MARIE/internal/pipeline"
	"github.com/spf13/cobra"
)

const mergedSampleName = "voice_sample.mp3"

func newCloneVoiceCmd(state *app) *cobra.Command {
	var (
		voiceID     string
		previewText string
	)

	cmd := &cobra.Command{
		Use:   "clone-voice <sample|dir>...",
		Short: "Clone a MiniMax voice from audio samples",
		Long: `Pick the shortest samples that fit the sample budget, join them with
ffmpeg, upload the result and register a cloned voice. Print the new voice id;
set it as VoiceID01 to speak with it.

Examples:
  marie clone-voice samples/
  marie clone-voice a.mp3 b.mp3 --voice-id MarieVoice01`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := state.cfg.RequireMiniMax()
			if err != nil {
				return err
			}

			inputs, err := collectAudio(args)
			if err != nil {
				return err
			}

			sample, cleanup, err := state.prepareSample(cmd.Context(), inputs)
			if err != nil {
				return err
			}
			defer cleanup()

			if voiceID == "" {
				voiceID = minimax.NewVoiceID(time.Now())
			}

			client := minimax.NewVoiceClient(state.cfg.MiniMax.BaseURL, state.cfg.MiniMax.APIKey,
				config.Timeout(state.cfg.MiniMax.TimeoutSeconds))

			fileID, err := client.UploadFile(cmd.Context(), sample, minimax.PurposeVoiceClone)
			if err != nil {
				return err
			}

			state.debugf(cmd, "uploaded %s as file %d\n", sample, fileID)

			request := minimax.NewCloneRequest(fileID, voiceID)
			request.Model = state.cfg.MiniMax.CloneModel

			if previewText != "" {
				request.Text = previewText
			}

			response, err := client.CloneVoice(cmd.Context(), request)
			if err != nil {
				return err
			}

			state.log.Info("Cloned voice %s from %s", voiceID, sample)
			state.printf(cmd, "Voice id: %s\n", voiceID)

			if response.DemoAudio != "" {
				state.printf(cmd, "Preview: %s\n", response.DemoAudio)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&voiceID, "voice-id", "", "voice id to register (default ClonedVoice<timestamp>)")
	cmd.Flags().StringVar(&previewText, "preview-text", "", "text of the preview clip")

	return cmd
}

// collectAudio expands directories to their mp3 files.
func collectAudio(args []string) ([]string, error) {
	var inputs []string

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", arg, err)
		}

		if !info.IsDir() {
			inputs = append(inputs, arg)

			continue
		}

		files, err := pipeline.FindAudio(arg)
		if err != nil {
			return nil, err
		}

		inputs = append(inputs, files...)
	}

	if len(inputs) == 0 {
		return nil, audio.ErrNoInputs
	}

	return inputs, nil
}

// prepareSample returns a single file holding the selected samples and a
// cleanup func for any temporary file it created.
func (a *app) prepareSample(ctx context.Context, inputs []string) (string, func(), error) {
	noop := func() {}

	if len(inputs) == 1 {
		return inputs[0], noop, nil
	}

	tools := audio.NewTools(a.cfg.Audio.FFmpeg, a.cfg.Audio.FFprobe, a.log)
	maxTotal := time.Duration(a.cfg.Audio.MaxSampleSeconds) * time.Second
	selected := audio.SelectSamples(tools.Measure(ctx, inputs), maxTotal, a.cfg.Audio.MaxSampleCount)

	a.log.Info("Selected %d of %d samples, %s in total", len(selected), len(inputs), audio.Total(selected))

	if len(selected) == 1 {
		return selected[0].Path, noop, nil
	}

	tempDir, err := os.MkdirTemp("", "marie-clone-")
	if err != nil {
		return "", noop, fmt.Errorf("failed to create temp dir: %w", err)
	}

	cleanup := func() {
		_ = os.RemoveAll(tempDir)
	}

	paths := make([]string, 0, len(selected))
	for _, sample := range selected {
		paths = append(paths, sample.Path)
	}

	merged := filepath.Join(tempDir, mergedSampleName)

	err = tools.Concat(ctx, paths, merged)
	if err != nil {
		cleanup()

		return "", noop, err
	}

	return merged, cleanup, nil
}
