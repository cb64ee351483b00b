package cli

import (
	"context"
	"net/http"

	"github.com/JanetCheng0311/MARIE/internal/config"
	"github.com/JanetCheng0311/MARIE/internal/gradio"
	"github.com/JanetCheng0311/MARIE/internal/pipeline"
	"github.com/spf13/cobra"
)

func newTranscribeCmd(state *app) *cobra.Command {
	var (
		opts      pipeline.TranscribeOptions
		noCorrect bool
	)

	cmd := &cobra.Command{
		Use:   "transcribe <dir>",
		Short: "Transcribe the mp3 clips of a directory",
		Long: `Upload each mp3 of a directory to the Gradio transcription app, wait for
the transcript and, unless --no-correct is given, have the chat model correct
it. Outputs land in a timestamped run directory under the transcripts dir.

Examples:
  marie transcribe recordings/
  marie transcribe recordings/ --start 3 --end 5 --reference-dir refs/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transcriber, err := state.transcriber(!noCorrect)
			if err != nil {
				return err
			}

			runDir, records, err := transcriber.TranscribeDir(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}

			failed := 0

			for _, record := range records {
				if record.Error != "" {
					failed++

					state.printf(cmd, "FAIL %s: %s: %s\n", record.File, record.ErrorKind, record.Error)

					continue
				}

				state.printf(cmd, "OK   %s (%.1fs)\n", record.File, record.TranscribeDuration.Seconds())
			}

			state.printf(cmd, "%d/%d transcribed, results in %s\n", len(records)-failed, len(records), runDir)

			return nil
		},
	}

	cmd.Flags().IntVar(&opts.Start, "start", 0, "first file to process (1-based)")
	cmd.Flags().IntVar(&opts.End, "end", 0, "last file to process (1-based, inclusive)")
	cmd.Flags().StringVar(&opts.ReferenceDir, "reference-dir", "", "directory of reference transcripts to compare with")
	cmd.Flags().BoolVar(&noCorrect, "no-correct", false, "skip LLM correction")

	return cmd
}

func (a *app) transcriber(withCorrection bool) (*pipeline.Transcriber, error) {
	err := a.cfg.RequireGradio()
	if err != nil {
		return nil, err
	}

	timeout := config.Timeout(a.cfg.Gradio.TimeoutSeconds)
	adapter := gradio.NewAdapter(a.cfg.Gradio.URL, a.cfg.Gradio.APIName, a.cfg.Gradio.Token)
	uploadClient := &http.Client{Timeout: timeout}

	upload := func(ctx context.Context, path string) (gradio.FileData, error) {
		return adapter.Upload(ctx, uploadClient, path)
	}

	runner := a.runner(adapter, a.cfg.Gradio.StreamTimeoutSeconds, a.cfg.TranscribePolicy())

	var completer pipeline.ModelCompleter

	if withCorrection {
		client, chatErr := a.chat()
		if chatErr != nil {
			return nil, chatErr
		}

		completer = client
	}

	return pipeline.NewTranscriber(upload, runner, completer, a.langfuse(), a.cfg.Paths.TranscriptsDir, a.log), nil
}
