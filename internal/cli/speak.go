package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/JanetCheng0311/MARIE/internal/pipeline"
	"github.com/spf13/cobra"
)

// ErrNoText is returned by tts when neither an argument nor --file is given.
var ErrNoText = errors.New("no text given: pass it as arguments or with --file")

func newSpeakCmd(state *app) *cobra.Command {
	return &cobra.Command{
		Use:   "speak <question>",
		Short: "Ask the chat model and voice its Cantonese reply",
		Long: `Ask the configured chat model a question, strip its reasoning and voice the
reply with MiniMax. The clip is saved under the output directory.

Examples:
  marie speak "今日天氣點呀？"
  marie speak -c marie.toml "講個笑話"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			speaker, err := state.speaker(true)
			if err != nil {
				return err
			}

			speech, err := speaker.Speak(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}

			state.printf(cmd, "%s\n", speech.Text)
			printSpeech(state, cmd, speech)

			return nil
		},
	}
}

func newTTSCmd(state *app) *cobra.Command {
	var textFile string

	cmd := &cobra.Command{
		Use:   "tts [text]",
		Short: "Voice text with MiniMax",
		Long: `Submit text to the MiniMax asynchronous speech API, wait for the job and
save the clip.

Examples:
  marie tts "早晨！"
  marie tts --file reply.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")

			if textFile != "" {
				data, err := os.ReadFile(textFile)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", textFile, err)
				}

				text = string(data)
			}

			if strings.TrimSpace(text) == "" {
				return ErrNoText
			}

			speaker, err := state.speaker(false)
			if err != nil {
				return err
			}

			speech, err := speaker.Synthesize(cmd.Context(), text)
			if err != nil {
				return err
			}

			printSpeech(state, cmd, speech)

			return nil
		},
	}

	cmd.Flags().StringVarP(&textFile, "file", "f", "", "read the text from a file")

	return cmd
}

func newPollCmd(state *app) *cobra.Command {
	var taskID string

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Collect a speech job submitted earlier",
		Long: `Poll an existing MiniMax task until it finishes and save its clip. Use it
after a tts or speak run stopped with a poll timeout.

Example:
  marie poll --task-id 106916112212032`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			speaker, err := state.speaker(false)
			if err != nil {
				return err
			}

			speech, err := speaker.Resume(cmd.Context(), taskID)
			if err != nil {
				return err
			}

			printSpeech(state, cmd, speech)

			return nil
		},
	}

	cmd.Flags().StringVar(&taskID, "task-id", "", "MiniMax task id")
	_ = cmd.MarkFlagRequired("task-id")

	return cmd
}

func printSpeech(state *app, cmd *cobra.Command, speech pipeline.Speech) {
	state.debugf(cmd, "task %s\n", speech.TaskID)
	state.printf(cmd, "Saved %s\n", speech.Path)
}
