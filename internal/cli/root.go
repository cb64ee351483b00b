// Package cli provides the command-line interface for MARIE.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/JanetCheng0311/MARIE/internal/asyncjob"
	"github.com/JanetCheng0311/MARIE/internal/config"
	"github.com/JanetCheng0311/MARIE/internal/tracing"
	"github.com/book-expert/logger"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "0.1.0"

const cliLogFile = "marie-cli.log"

// app is the state shared by every subcommand of one invocation.
type app struct {
	cfgFile string
	verbose bool
	cfg     *config.Config
	log     *logger.Logger
	tracer  *tracing.Langfuse
}

// NewRootCommand builds the marie command tree.
func NewRootCommand() *cobra.Command {
	state := &app{}

	rootCmd := &cobra.Command{
		Use:   "marie",
		Short: "Cantonese speech and transcription tools",
		Long: `marie drives the remote speech services behind the MARIE assistant.

It asks a chat model for Cantonese replies and voices them with MiniMax,
collects speech jobs submitted earlier, clones voices from samples and
transcribes recordings through a Gradio app with optional LLM correction.`,
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" {
				return nil
			}

			return state.setup()
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			state.close()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&state.cfgFile, "config", "c", "", "TOML config file")
	rootCmd.PersistentFlags().BoolVarP(&state.verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(newSpeakCmd(state))
	rootCmd.AddCommand(newTTSCmd(state))
	rootCmd.AddCommand(newPollCmd(state))
	rootCmd.AddCommand(newTranscribeCmd(state))
	rootCmd.AddCommand(newCloneVoiceCmd(state))
	rootCmd.AddCommand(newSegmentCmd(state))

	return rootCmd
}

// Execute runs the command tree with args.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	rootCmd := NewRootCommand()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	return rootCmd.ExecuteContext(ctx)
}

// FormatError renders err as "kind: message" so callers can tell a job worth
// retrying later from a broken job or a broken integration.
func FormatError(err error) string {
	return fmt.Sprintf("%s: %v", asyncjob.KindOf(err), err)
}

// ExitCode maps err to the process exit status: 0 for success, 2 for
// outcomes that may succeed later, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	if asyncjob.KindOf(err).RetryLater() || errors.Is(err, context.Canceled) {
		return 2
	}

	return 1
}

func (a *app) setup() error {
	cfg, err := config.LoadFile(a.cfgFile)
	if err != nil {
		return err
	}

	err = os.MkdirAll(cfg.Paths.BaseLogsDir, 0o750)
	if err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	log, err := logger.New(cfg.Paths.BaseLogsDir, cliLogFile)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	a.cfg = cfg
	a.log = log

	return nil
}

func (a *app) close() {
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), config.Timeout(a.cfg.Langfuse.TimeoutSeconds))
		a.tracer.Flush(ctx)
		cancel()

		a.tracer = nil
	}

	if a.log == nil {
		return
	}

	_ = a.log.Close()
	a.log = nil
}

func (a *app) printf(cmd *cobra.Command, format string, args ...any) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}

func (a *app) debugf(cmd *cobra.Command, format string, args ...any) {
	if a.verbose {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), format, args...)
	}
}
