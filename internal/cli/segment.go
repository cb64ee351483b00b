package cli

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/JanetCheng0311/MARIE/internal/audio"
	"github.com/spf13/cobra"
)

const defaultSegmentLength = 30 * time.Second

func newSegmentCmd(state *app) *cobra.Command {
	var (
		length time.Duration
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "segment <input>",
		Short: "Split a long recording into fixed-length clips",
		Long: `Cut a recording into clips of at most --length with ffmpeg's segment muxer,
without re-encoding. Clips are named <input>_000.<ext>, <input>_001.<ext>, ...

Example:
  marie segment lecture.mp3 --length 45s --out clips/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			if outDir == "" {
				outDir = filepath.Join(filepath.Dir(input), strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)))
			}

			tools := audio.NewTools(state.cfg.Audio.FFmpeg, state.cfg.Audio.FFprobe, state.log)

			pieces, err := tools.Segment(cmd.Context(), input, outDir, length)
			if err != nil {
				return err
			}

			for _, piece := range pieces {
				state.printf(cmd, "%s\n", piece)
			}

			return nil
		},
	}

	cmd.Flags().DurationVar(&length, "length", defaultSegmentLength, "maximum clip length")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default next to the input)")

	return cmd
}
