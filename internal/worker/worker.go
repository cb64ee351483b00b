// Package worker provides a NATS worker that synthesises speech for text
// published on a subject.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/JanetCheng0311/MARIE/internal/asyncjob"
	"github.com/JanetCheng0311/MARIE/internal/core"
	"github.com/JanetCheng0311/MARIE/internal/pipeline"
	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	defaultJobTimeout = 10 * time.Minute
	audioExtension    = ".mp3"
)

var (
	// ErrEmptyText indicates that the downloaded text has nothing to speak.
	ErrEmptyText = errors.New("text is empty")
	// ErrTextKeyEmpty indicates an event without a text key.
	ErrTextKeyEmpty = errors.New("text key cannot be empty")
)

// JobBuilder turns text into a speech job. *pipeline.Speaker satisfies it.
type JobBuilder interface {
	VoicedJob(text, voiceID string) pipeline.Job
}

// JobRunner runs speech jobs. *pipeline.Runner satisfies it.
type JobRunner interface {
	Run(ctx context.Context, job pipeline.Job) (pipeline.Outcome, error)
	Resume(ctx context.Context, job pipeline.Job, handle asyncjob.Handle) (pipeline.Outcome, error)
}

// replyContext is stored with a pending handle so a restarted worker can
// still answer the request.
type replyContext struct {
	Event events.TextProcessedEvent `json:"event"`
	Reply string                    `json:"reply,omitempty"`
}

// Options holds the optional worker settings.
type Options struct {
	QueueGroup string
	JobTimeout time.Duration
	// Handles, when set, lists jobs left pending by a previous run.
	Handles core.HandleStore
}

// NatsWorker listens for synthesis requests on a NATS subject and processes them.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	opts           Options
	texts          core.ObjectStore
	clips          core.ObjectStore
	jobs           JobBuilder
	runner         JobRunner
	log            *logger.Logger
	resumed        sync.WaitGroup
}

// NewNatsWorker creates a new instance of a NATS worker. Text is read from
// texts and clips are written to clips; both may be the same store.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	texts, clips core.ObjectStore,
	jobs JobBuilder,
	runner JobRunner,
	log *logger.Logger,
	opts Options,
) *NatsWorker {
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = defaultJobTimeout
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		opts:           opts,
		texts:          texts,
		clips:          clips,
		jobs:           jobs,
		runner:         runner,
		log:            log,
	}
}

// Run resumes pending jobs, then serves requests until ctx is done.
func (w *NatsWorker) Run(ctx context.Context) error {
	w.resumePending(ctx)

	sub, err := w.natsConnection.QueueSubscribe(w.subject, w.opts.QueueGroup, func(msg *nats.Msg) {
		w.handleMessage(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info("Listening for synthesis requests on %s", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()

	w.resumed.Wait()

	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(parent context.Context, msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(parent, w.opts.JobTimeout)
	defer cancel()

	event, err := parseEvent(msg.Data)
	if err != nil {
		w.log.Error("Failed to parse and validate event: %v", err)

		return
	}

	audioKey, err := w.synthesize(ctx, event, msg.Reply)
	if err != nil {
		w.log.Error("Failed to synthesise speech for workflow %s (%s): %v",
			event.Header.WorkflowID, asyncjob.KindOf(err), err)

		return
	}

	err = w.publishReplyEvent(msg.Reply, replyEvent(event, audioKey))
	if err != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v", event.Header.WorkflowID, err)
	}
}

// synthesize downloads the text, runs the speech job and uploads the clip.
func (w *NatsWorker) synthesize(ctx context.Context, event *events.TextProcessedEvent, reply string) (string, error) {
	textData, err := w.texts.Download(ctx, event.TextKey)
	if err != nil {
		return "", fmt.Errorf("failed to download text data for key '%s': %w", event.TextKey, err)
	}

	text := strings.TrimSpace(string(textData))
	if text == "" {
		return "", fmt.Errorf("%w: key '%s'", ErrEmptyText, event.TextKey)
	}

	job := w.jobs.VoicedJob(text, event.Voice)

	job.Context, err = json.Marshal(replyContext{Event: *event, Reply: reply})
	if err != nil {
		return "", fmt.Errorf("failed to marshal reply context: %w", err)
	}

	outcome, err := w.runner.Run(ctx, job)
	if err != nil {
		return "", err
	}

	return w.uploadAudio(ctx, outcome.Artifact)
}

func (w *NatsWorker) uploadAudio(ctx context.Context, audio []byte) (string, error) {
	audioKey := uuid.NewString() + audioExtension

	err := w.clips.Upload(ctx, audioKey, audio)
	if err != nil {
		return "", fmt.Errorf("failed to upload audio data for key '%s': %w", audioKey, err)
	}

	return audioKey, nil
}

// resumePending finishes, in the background, every speech job a previous
// run submitted but never collected.
func (w *NatsWorker) resumePending(ctx context.Context) {
	if w.opts.Handles == nil {
		return
	}

	pending, err := w.opts.Handles.Pending(ctx)
	if err != nil {
		w.log.Warn("Failed to list pending jobs: %v", err)

		return
	}

	for _, entry := range pending {
		if entry.Provider != pipeline.ProviderMiniMax {
			continue
		}

		w.resumed.Add(1)

		go func(entry core.PendingJob) {
			defer w.resumed.Done()

			w.resume(ctx, entry)
		}(entry)
	}
}

func (w *NatsWorker) resume(parent context.Context, entry core.PendingJob) {
	ctx, cancel := context.WithTimeout(parent, w.opts.JobTimeout)
	defer cancel()

	var pending replyContext

	err := json.Unmarshal(entry.Context, &pending)
	if err != nil {
		w.log.Warn("Pending job %s has no usable reply context: %v", entry.Key, err)
	}

	job := pipeline.Job{
		Provider: entry.Provider,
		Name:     "tts-resume",
		Input:    pending.Event.TextKey,
		Context:  entry.Context,
	}

	outcome, err := w.runner.Resume(ctx, job, entry.Handle)
	if err != nil {
		w.log.Error("Failed to resume job %s (%s): %v", entry.Key, asyncjob.KindOf(err), err)

		return
	}

	audioKey, err := w.uploadAudio(ctx, outcome.Artifact)
	if err != nil {
		w.log.Error("Failed to store resumed job %s: %v", entry.Key, err)

		return
	}

	err = w.publishReplyEvent(pending.Reply, replyEvent(&pending.Event, audioKey))
	if err != nil {
		w.log.Error("Failed to publish reply for resumed job %s: %v", entry.Key, err)

		return
	}

	w.log.Info("Resumed job %s stored as %s", entry.Key, audioKey)
}

// publishReplyEvent marshals and sends the AudioChunkCreatedEvent to reply.
// Requests published without a reply subject are only logged.
func (w *NatsWorker) publishReplyEvent(reply string, event *events.AudioChunkCreatedEvent) error {
	if reply == "" {
		w.log.Info("Audio %s ready for workflow %s (no reply subject)", event.AudioKey, event.Header.WorkflowID)

		return nil
	}

	replyData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = w.natsConnection.Publish(reply, replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func replyEvent(event *events.TextProcessedEvent, audioKey string) *events.AudioChunkCreatedEvent {
	return &events.AudioChunkCreatedEvent{
		Header:     event.Header,
		AudioKey:   audioKey,
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
	}
}

func parseEvent(data []byte) (*events.TextProcessedEvent, error) {
	var event events.TextProcessedEvent

	err := json.Unmarshal(data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if event.TextKey == "" {
		return nil, ErrTextKeyEmpty
	}

	return &event, nil
}
