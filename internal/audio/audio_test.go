package audio_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JanetCheng0311/MARIE/internal/audio"
	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "audio-test.log")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = testLogger.Close()
	})

	return testLogger
}

// writeScript creates an executable shell script standing in for an ffmpeg tool.
// Tests that exec scripts stay sequential to avoid ETXTBSY on fork.
func writeScript(t *testing.T, name, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o700))

	return path
}

func TestSelectSamples(t *testing.T) {
	t.Parallel()

	samples := []audio.Sample{
		{Path: "long.mp3", Duration: 200 * time.Second},
		{Path: "a.mp3", Duration: 60 * time.Second},
		{Path: "b.mp3", Duration: 90 * time.Second},
		{Path: "c.mp3", Duration: 120 * time.Second},
	}

	selected := audio.SelectSamples(samples, audio.DefaultMaxSampleTotal, audio.DefaultMaxSampleCount)
	require.Len(t, selected, 3)
	assert.Equal(t, "a.mp3", selected[0].Path)
	assert.Equal(t, "b.mp3", selected[1].Path)
	assert.Equal(t, "c.mp3", selected[2].Path)
	assert.Equal(t, 270*time.Second, audio.Total(selected))

	limited := audio.SelectSamples(samples, audio.DefaultMaxSampleTotal, 1)
	require.Len(t, limited, 1)
	assert.Equal(t, "a.mp3", limited[0].Path)

	huge := audio.SelectSamples([]audio.Sample{
		{Path: "x.mp3", Duration: time.Hour},
		{Path: "y.mp3", Duration: 2 * time.Hour},
	}, audio.DefaultMaxSampleTotal, 7)
	require.Len(t, huge, 1)
	assert.Equal(t, "x.mp3", huge[0].Path)

	assert.Nil(t, audio.SelectSamples(nil, time.Minute, 1))
	assert.Equal(t, "long.mp3", samples[0].Path)
}

func TestTools_Duration(t *testing.T) {
	ffprobe := writeScript(t, "ffprobe", `echo "12.500000"`)
	tools := audio.NewTools("", ffprobe, createTestLogger(t))

	duration, err := tools.Duration(context.Background(), "clip.mp3")
	require.NoError(t, err)
	assert.Equal(t, 12500*time.Millisecond, duration)

	broken := audio.NewTools("", writeScript(t, "ffprobe", `echo "N/A"`), createTestLogger(t))

	_, err = broken.Duration(context.Background(), "clip.mp3")
	require.ErrorIs(t, err, audio.ErrNoDuration)

	samples := broken.Measure(context.Background(), []string{"clip.mp3"})
	require.Len(t, samples, 1)
	assert.Zero(t, samples[0].Duration)
}

func TestTools_ConcatFallsBackToReencode(t *testing.T) {
	callLog := filepath.Join(t.TempDir(), "calls.txt")
	// Fails whenever stream copy is requested.
	ffmpeg := writeScript(t, "ffmpeg", `echo "$@" >> `+callLog+`
case "$*" in *"-c copy"*) exit 1;; esac
exit 0`)

	tools := audio.NewTools(ffmpeg, "", createTestLogger(t))

	err := tools.Concat(context.Background(), []string{"a.mp3", "b.mp3"}, "out.mp3")
	require.NoError(t, err)

	calls, err := os.ReadFile(callLog)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(calls)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "-c copy")
	assert.Contains(t, lines[1], "libmp3lame")

	require.ErrorIs(t, tools.Concat(context.Background(), nil, "out.mp3"), audio.ErrNoInputs)
}

func TestTools_SegmentListsPieces(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "chopped")
	// Writes two pieces following the output pattern (last argument).
	ffmpeg := writeScript(t, "ffmpeg", `for last; do :; done
touch "$(printf "$last" 0)" "$(printf "$last" 1)"`)

	tools := audio.NewTools(ffmpeg, "", createTestLogger(t))

	pieces, err := tools.Segment(context.Background(), "/data/podcast.mp3", outDir, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(outDir, "podcast_000.mp3"),
		filepath.Join(outDir, "podcast_001.mp3"),
	}, pieces)
}
