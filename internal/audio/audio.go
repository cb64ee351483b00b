// Package audio wraps the ffmpeg tools used to prepare voice samples and
// split long recordings.
package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Default binaries and sample limits.
const (
	DefaultFFmpeg         = "ffmpeg"
	DefaultFFprobe        = "ffprobe"
	DefaultMaxSampleTotal = 300 * time.Second
	DefaultMaxSampleCount = 7
	segmentPattern        = "%03d"
	concatListName        = "concat-*.txt"
)

// Static errors.
var (
	ErrNoInputs   = errors.New("no audio inputs given")
	ErrNoDuration = errors.New("ffprobe reported no duration")
)

// Logger is the logging surface the tools need. *logger.Logger satisfies it.
type Logger interface {
	Warn(format string, args ...any)
}

// Tools runs ffmpeg and ffprobe.
type Tools struct {
	FFmpeg  string
	FFprobe string
	log     Logger
}

// NewTools uses the given binaries, falling back to the ones on PATH.
func NewTools(ffmpeg, ffprobe string, log Logger) *Tools {
	if ffmpeg == "" {
		ffmpeg = DefaultFFmpeg
	}

	if ffprobe == "" {
		ffprobe = DefaultFFprobe
	}

	return &Tools{FFmpeg: ffmpeg, FFprobe: ffprobe, log: log}
}

// Sample is an audio file and its length.
type Sample struct {
	Path     string
	Duration time.Duration
}

// Duration asks ffprobe for the container duration of path.
func (t *Tools) Duration(ctx context.Context, path string) (time.Duration, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	// #nosec G204 -- binary comes from configuration, path is passed as a single argument
	cmd := exec.CommandContext(ctx, t.FFprobe, args...)

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	text := strings.TrimSpace(string(output))
	if text == "" || text == "N/A" {
		return 0, fmt.Errorf("%w: %s", ErrNoDuration, path)
	}

	seconds, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", text, err)
	}

	return time.Duration(seconds * float64(time.Second)), nil
}

// Measure returns a Sample per path. Files ffprobe cannot read are logged
// and kept with zero duration.
func (t *Tools) Measure(ctx context.Context, paths []string) []Sample {
	samples := make([]Sample, 0, len(paths))

	for _, path := range paths {
		duration, err := t.Duration(ctx, path)
		if err != nil {
			t.log.Warn("Could not measure %s: %v", path, err)
		}

		samples = append(samples, Sample{Path: path, Duration: duration})
	}

	return samples
}

// Segment cuts input into pieces of at most length using the segment muxer
// and returns the written files in order.
func (t *Tools) Segment(ctx context.Context, input, outDir string, length time.Duration) ([]string, error) {
	err := os.MkdirAll(outDir, 0o750)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", outDir, err)
	}

	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	ext := filepath.Ext(input)
	pattern := filepath.Join(outDir, base+"_"+segmentPattern+ext)

	args := []string{
		"-y", "-i", input,
		"-f", "segment",
		"-segment_time", strconv.FormatFloat(length.Seconds(), 'f', -1, 64),
		"-reset_timestamps", "1",
		"-c", "copy",
		pattern,
	}

	err = t.run(ctx, args)
	if err != nil {
		return nil, err
	}

	matches, err := filepath.Glob(filepath.Join(outDir, base+"_*"+ext))
	if err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}

	sort.Strings(matches)

	return matches, nil
}

// Concat joins inputs into output with the concat demuxer. Stream copy is
// tried first; mixed formats fall back to a re-encode.
func (t *Tools) Concat(ctx context.Context, inputs []string, output string) error {
	if len(inputs) == 0 {
		return ErrNoInputs
	}

	listFile, err := os.CreateTemp("", concatListName)
	if err != nil {
		return fmt.Errorf("failed to create concat list: %w", err)
	}

	defer func() {
		removeErr := os.Remove(listFile.Name())
		if removeErr != nil {
			t.log.Warn("Failed to remove concat list '%s': %v", listFile.Name(), removeErr)
		}
	}()

	for _, input := range inputs {
		absolute, absErr := filepath.Abs(input)
		if absErr != nil {
			absolute = input
		}

		_, err = fmt.Fprintf(listFile, "file '%s'\n", strings.ReplaceAll(absolute, "'", `'\''`))
		if err != nil {
			_ = listFile.Close()

			return fmt.Errorf("failed to write concat list: %w", err)
		}
	}

	err = listFile.Close()
	if err != nil {
		return fmt.Errorf("failed to close concat list: %w", err)
	}

	base := []string{"-y", "-f", "concat", "-safe", "0", "-i", listFile.Name()}

	copyErr := t.run(ctx, append(append([]string{}, base...), "-c", "copy", output))
	if copyErr == nil {
		return nil
	}

	t.log.Warn("Stream copy concat failed, re-encoding: %v", copyErr)

	return t.run(ctx, append(append([]string{}, base...), "-c:a", "libmp3lame", "-q:a", "2", output))
}

func (t *Tools) run(ctx context.Context, args []string) error {
	// #nosec G204 -- binary comes from configuration, paths are passed as single arguments
	cmd := exec.CommandContext(ctx, t.FFmpeg, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg execution failed: %w - output: %s", err, string(output))
	}

	return nil
}

// SelectSamples picks as many samples as fit in maxTotal, shortest first, up
// to maxCount. When none fits, the single shortest sample is returned.
func SelectSamples(samples []Sample, maxTotal time.Duration, maxCount int) []Sample {
	if len(samples) == 0 {
		return nil
	}

	sorted := append([]Sample(nil), samples...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Duration < sorted[j].Duration
	})

	var (
		selected []Sample
		total    time.Duration
	)

	for _, sample := range sorted {
		if maxCount > 0 && len(selected) >= maxCount {
			break
		}

		if total+sample.Duration <= maxTotal {
			selected = append(selected, sample)
			total += sample.Duration
		}
	}

	if len(selected) == 0 {
		return sorted[:1]
	}

	return selected
}

// Total sums the durations of samples.
func Total(samples []Sample) time.Duration {
	var total time.Duration

	for _, sample := range samples {
		total += sample.Duration
	}

	return total
}
