// Package pipeline runs remote jobs end to end: it persists handles, notifies
// observers at each lifecycle hook and hands back the artifact.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/JanetCheng0311/MARIE/internal/asyncjob"
	"github.com/JanetCheng0311/MARIE/internal/core"
	"github.com/JanetCheng0311/MARIE/internal/tracing"
)

const (
	defaultFetchAttempts = 3
	// scheduleWaits is how many upcoming poll waits are logged per job.
	scheduleWaits = 3
)

// Logger is the logging surface of the pipeline. *logger.Logger satisfies it.
type Logger interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// JobClient is the part of *asyncjob.Client the runner drives.
type JobClient interface {
	Submit(ctx context.Context, req asyncjob.Request) (asyncjob.Handle, error)
	AwaitCompletion(ctx context.Context, handle asyncjob.Handle, policy asyncjob.PollPolicy) (asyncjob.Result, error)
	FetchArtifactWithRetry(ctx context.Context, result asyncjob.Result, attempts int) ([]byte, error)
}

// Job is one unit of remote work plus what observers should know about it.
type Job struct {
	Provider string
	Name     string
	Model    string
	Input    any
	Request  asyncjob.Request
	// Context is stored with the handle and returned by HandleStore.Pending.
	Context json.RawMessage
}

// Outcome is a finished job and its artifact.
type Outcome struct {
	Result   asyncjob.Result
	Artifact []byte
	Duration time.Duration
}

// Runner drives jobs through a JobClient.
type Runner struct {
	client        JobClient
	policy        asyncjob.PollPolicy
	observer      tracing.Observer
	store         core.HandleStore
	fetchAttempts int
	log           Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithObserver sets the lifecycle observer.
func WithObserver(observer tracing.Observer) Option {
	return func(r *Runner) {
		if observer != nil {
			r.observer = observer
		}
	}
}

// WithHandleStore persists handles between submit and outcome.
func WithHandleStore(store core.HandleStore) Option {
	return func(r *Runner) {
		r.store = store
	}
}

// WithFetchAttempts sets how often a failed artifact download is tried.
func WithFetchAttempts(attempts int) Option {
	return func(r *Runner) {
		if attempts > 0 {
			r.fetchAttempts = attempts
		}
	}
}

// NewRunner creates a Runner polling with policy.
func NewRunner(client JobClient, policy asyncjob.PollPolicy, log Logger, opts ...Option) *Runner {
	runner := &Runner{
		client:        client,
		policy:        policy,
		observer:      tracing.Nop{},
		fetchAttempts: defaultFetchAttempts,
		log:           log,
	}

	for _, opt := range opts {
		opt(runner)
	}

	return runner
}

// Run submits job, waits for it and fetches the artifact.
func (r *Runner) Run(ctx context.Context, job Job) (Outcome, error) {
	start := time.Now()

	handle, err := r.client.Submit(ctx, job.Request)
	if err != nil {
		r.fail(ctx, job, asyncjob.Handle{}, start, 0, err)

		return Outcome{}, err
	}

	r.observer.OnSubmit(ctx, r.event(job, handle, start))
	r.remember(ctx, job, handle)

	return r.collect(ctx, job, handle, start)
}

// Resume continues a job submitted earlier, e.g. by a previous process.
func (r *Runner) Resume(ctx context.Context, job Job, handle asyncjob.Handle) (Outcome, error) {
	start := handle.SubmittedAt
	if start.IsZero() {
		start = time.Now()
	}

	r.log.Info("Resuming %s job %s", job.Provider, handle.TaskID)

	return r.collect(ctx, job, handle, start)
}

func (r *Runner) collect(ctx context.Context, job Job, handle asyncjob.Handle, start time.Time) (Outcome, error) {
	r.log.Info("Polling %s job %s: up to %d attempts, first waits %v", job.Provider, handle.TaskID,
		r.policy.MaxAttempts, r.policy.Waits(scheduleWaits))

	result, err := r.client.AwaitCompletion(ctx, handle, r.policy)
	if err != nil {
		// A failed job will never succeed; a timeout or abandon may still be resumed.
		if asyncjob.KindOf(err) == asyncjob.KindJobFailed {
			r.forget(ctx, job, handle)
		}

		r.fail(ctx, job, handle, start, 0, err)

		return Outcome{}, err
	}

	artifact, err := r.client.FetchArtifactWithRetry(ctx, result, r.fetchAttempts)
	if err != nil {
		r.fail(ctx, job, handle, start, result.Attempts, err)

		return Outcome{}, err
	}

	r.forget(ctx, job, handle)

	outcome := Outcome{Result: result, Artifact: artifact, Duration: time.Since(start)}

	event := r.event(job, handle, start)
	event.Attempts = result.Attempts
	event.Output = map[string]any{"reference": result.Reference, "bytes": len(artifact)}
	r.observer.OnTerminal(ctx, event)

	return outcome, nil
}

func (r *Runner) fail(ctx context.Context, job Job, handle asyncjob.Handle, start time.Time, attempts int, err error) {
	event := r.event(job, handle, start)
	event.Attempts = attempts
	event.Err = err

	var timeout *asyncjob.PollTimeoutError
	if errors.As(err, &timeout) {
		event.Attempts = timeout.Attempts
	}

	r.log.Error("%s job %s ended with %s: %v", job.Provider, handle.TaskID, asyncjob.KindOf(err), err)
	r.observer.OnError(ctx, event)
}

func (r *Runner) event(job Job, handle asyncjob.Handle, start time.Time) tracing.JobEvent {
	return tracing.JobEvent{
		Provider: job.Provider,
		Name:     job.Name,
		TaskID:   handle.TaskID,
		Model:    job.Model,
		Input:    job.Input,
		Duration: time.Since(start),
	}
}

func (r *Runner) remember(ctx context.Context, job Job, handle asyncjob.Handle) {
	if r.store == nil {
		return
	}

	key := core.PendingKey(job.Provider, handle.TaskID)

	err := r.store.Save(ctx, key, core.PendingJob{
		Key:      key,
		Provider: job.Provider,
		Handle:   handle,
		Context:  job.Context,
	})
	if err != nil {
		r.log.Warn("Failed to persist handle %s: %v", key, err)
	}
}

func (r *Runner) forget(ctx context.Context, job Job, handle asyncjob.Handle) {
	if r.store == nil {
		return
	}

	key := core.PendingKey(job.Provider, handle.TaskID)

	err := r.store.Delete(ctx, key)
	if err != nil {
		r.log.Warn("Failed to delete handle %s: %v", key, err)
	}
}
