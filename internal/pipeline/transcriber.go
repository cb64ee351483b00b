package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/JanetCheng0311/MARIE/internal/chat"
	"github.com/JanetCheng0311/MARIE/internal/gradio"
	"github.com/JanetCheng0311/MARIE/internal/textclean"
	"github.com/JanetCheng0311/MARIE/internal/tracing"
)

// ProviderGradio labels transcription jobs.
const ProviderGradio = "gradio"

const (
	audioExt          = ".mp3"
	referenceExt      = ".txt"
	rawFileFormat     = "%s_%s_raw.txt"
	fixedFileFormat   = "%s.%s.%s.txt"
	recordFileFormat  = "%s.%s.json"
	correctionHeader  = "--- Result for Model: %s ---\nAudio API Runtime: %.2fs\nAI Correction Runtime: %.2fs\n%s\n\n"
	headerRule        = "========================================"
	observationPrefix = "cantonese-correction"
)

// ErrNoAudio is returned when a directory holds no audio to transcribe.
var ErrNoAudio = errors.New("no .mp3 files found")

// UploadFunc sends a local file to the transcription app.
type UploadFunc func(ctx context.Context, path string) (gradio.FileData, error)

// ModelCompleter is a Completer that names its model.
type ModelCompleter interface {
	Completer
	Model() string
}

// TranscribeOptions select the files of one run. Start and End are 1-based
// and inclusive; zero End means the last file.
type TranscribeOptions struct {
	Start        int
	End          int
	ReferenceDir string
}

// Record is the outcome for one audio file, written next to the text outputs.
type Record struct {
	File               string        `json:"file"`
	TaskID             string        `json:"task_id,omitempty"`
	Raw                string        `json:"raw,omitempty"`
	Transcript         string        `json:"transcript,omitempty"`
	Collapsed          bool          `json:"collapsed"`
	TranscribeDuration time.Duration `json:"transcribe_duration"`
	Model              string        `json:"model,omitempty"`
	Corrected          string        `json:"corrected,omitempty"`
	CorrectionDuration time.Duration `json:"correction_duration,omitempty"`
	Comparison         string        `json:"comparison,omitempty"`
	Error              string        `json:"error,omitempty"`
	ErrorKind          string        `json:"error_kind,omitempty"`
}

// Transcriber transcribes a directory of clips and corrects the transcripts.
type Transcriber struct {
	upload   UploadFunc
	runner   *Runner
	chat     ModelCompleter
	langfuse *tracing.Langfuse
	outDir   string
	log      Logger
	now      func() time.Time
}

// NewTranscriber creates a Transcriber. completer and langfuse may be nil to
// skip correction and observation logging.
func NewTranscriber(
	upload UploadFunc,
	runner *Runner,
	completer ModelCompleter,
	langfuse *tracing.Langfuse,
	outDir string,
	log Logger,
) *Transcriber {
	return &Transcriber{
		upload:   upload,
		runner:   runner,
		chat:     completer,
		langfuse: langfuse,
		outDir:   outDir,
		log:      log,
		now:      time.Now,
	}
}

// FindAudio lists the .mp3 files of dir in name order.
func FindAudio(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var files []string

	for _, entry := range entries {
		if !entry.IsDir() && strings.EqualFold(filepath.Ext(entry.Name()), audioExt) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}

	sort.Strings(files)

	return files, nil
}

// TranscribeDir processes the selected files of dir one by one. A failing
// file is recorded and the run goes on.
func (t *Transcriber) TranscribeDir(ctx context.Context, dir string, opts TranscribeOptions) (string, []Record, error) {
	files, err := FindAudio(dir)
	if err != nil {
		return "", nil, err
	}

	files = selectRange(files, opts.Start, opts.End)
	if len(files) == 0 {
		return "", nil, fmt.Errorf("%w in %s", ErrNoAudio, dir)
	}

	stamp := Timestamp(t.now())
	runDir := filepath.Join(t.outDir, stamp)

	records := make([]Record, 0, len(files))

	for _, path := range files {
		if ctx.Err() != nil {
			return runDir, records, ctx.Err()
		}

		record := t.transcribeOne(ctx, path, runDir, stamp, opts.ReferenceDir)
		records = append(records, record)
	}

	return runDir, records, nil
}

func (t *Transcriber) transcribeOne(ctx context.Context, path, runDir, stamp, referenceDir string) Record {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	record := Record{File: path}

	t.log.Info("Transcribing %s", path)

	err := t.transcribe(ctx, path, &record)
	if err != nil {
		return t.failed(record, runDir, base, stamp, err)
	}

	_, err = WriteArtifact(runDir, fmt.Sprintf(rawFileFormat, base, stamp), []byte(record.Transcript))
	if err != nil {
		return t.failed(record, runDir, base, stamp, err)
	}

	if t.chat == nil || strings.TrimSpace(record.Transcript) == "" {
		t.log.Info("Skipping correction for %s", path)
		t.writeRecord(runDir, base, stamp, record)

		return record
	}

	err = t.correct(ctx, &record, referenceDir, base)
	if err != nil {
		return t.failed(record, runDir, base, stamp, err)
	}

	safeModel := strings.ReplaceAll(record.Model, "/", "_")
	header := fmt.Sprintf(correctionHeader, record.Model,
		record.TranscribeDuration.Seconds(), record.CorrectionDuration.Seconds(), headerRule)

	_, err = WriteArtifact(runDir, fmt.Sprintf(fixedFileFormat, base, safeModel, stamp), []byte(header+record.Corrected))
	if err != nil {
		return t.failed(record, runDir, base, stamp, err)
	}

	t.observe(ctx, record)
	t.writeRecord(runDir, base, stamp, record)

	return record
}

func (t *Transcriber) transcribe(ctx context.Context, path string, record *Record) error {
	file, err := t.upload(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", path, err)
	}

	outcome, err := t.runner.Run(ctx, Job{
		Provider: ProviderGradio,
		Name:     filepath.Base(path),
		Input:    path,
		Request:  gradio.TranscribeJob(file),
	})
	if err != nil {
		return err
	}

	record.TaskID = outcome.Result.Handle.TaskID
	record.Raw = string(outcome.Artifact)
	record.TranscribeDuration = outcome.Duration

	record.Transcript, err = textclean.CollapseRepetitions(record.Raw)
	if err != nil {
		return err
	}

	record.Collapsed = record.Transcript != record.Raw

	return nil
}

func (t *Transcriber) correct(ctx context.Context, record *Record, referenceDir, base string) error {
	record.Model = t.chat.Model()
	start := time.Now()

	reply, err := t.chat.Complete(ctx, chat.CorrectionPrompt(record.Transcript))
	if err != nil {
		return fmt.Errorf("correction failed: %w", err)
	}

	record.CorrectionDuration = time.Since(start)

	record.Corrected, err = textclean.StripThinking(reply)
	if err != nil {
		return err
	}

	if referenceDir == "" {
		return nil
	}

	reference, err := os.ReadFile(filepath.Join(referenceDir, base+referenceExt))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("failed to read reference script: %w", err)
	}

	comparison, err := t.chat.Complete(ctx, chat.ComparePrompt(string(reference), record.Corrected))
	if err != nil {
		t.log.Warn("Comparison for %s failed: %v", record.File, err)

		return nil
	}

	record.Comparison, err = textclean.StripThinking(comparison)

	return err
}

func (t *Transcriber) observe(ctx context.Context, record Record) {
	if t.langfuse == nil {
		return
	}

	observation, err := t.langfuse.StartObservation(ctx, tracing.ObservationInput{
		Name:   observationPrefix + ":" + filepath.Base(record.File),
		Input:  record.Transcript,
		Output: record.Corrected,
		Model:  record.Model,
		Metadata: map[string]any{
			"file":                      record.File,
			"transcribe_seconds":        record.TranscribeDuration.Seconds(),
			"correction_seconds":        record.CorrectionDuration.Seconds(),
			"collapsed_repetitions":     record.Collapsed,
			"compared_with_true_script": record.Comparison != "",
		},
	})
	if err != nil {
		t.log.Warn("Langfuse logging for %s failed: %v", record.File, err)

		return
	}

	err = observation.End(ctx, nil)
	if err != nil {
		t.log.Warn("Langfuse logging for %s failed: %v", record.File, err)
	}
}

func (t *Transcriber) failed(record Record, runDir, base, stamp string, err error) Record {
	record.Error = err.Error()
	record.ErrorKind = tracing.JobEvent{Err: err}.Outcome()
	t.log.Error("Processing %s failed: %v", record.File, err)
	t.writeRecord(runDir, base, stamp, record)

	return record
}

func (t *Transcriber) writeRecord(runDir, base, stamp string, record Record) {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		t.log.Warn("Failed to encode record for %s: %v", record.File, err)

		return
	}

	_, err = WriteArtifact(runDir, fmt.Sprintf(recordFileFormat, base, stamp), data)
	if err != nil {
		t.log.Warn("Failed to write record for %s: %v", record.File, err)
	}
}

func selectRange(files []string, start, end int) []string {
	if start < 1 {
		start = 1
	}

	if end <= 0 || end > len(files) {
		end = len(files)
	}

	if start > end {
		return nil
	}

	return files[start-1 : end]
}
