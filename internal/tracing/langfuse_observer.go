package tracing

import (
	"context"
	"sync"
)

// Score names written on terminal hooks.
const (
	ScoreJobSucceeded = "job_succeeded"
	scoreSuccess      = 1.0
	scoreFailure      = 0.0
)

// Logger is the logging surface observers need. *logger.Logger satisfies it.
type Logger interface {
	Warn(format string, args ...any)
}

// LangfuseObserver mirrors jobs into Langfuse. Failures are logged and dropped.
type LangfuseObserver struct {
	client *Langfuse
	log    Logger

	mu   sync.Mutex
	open map[string]*Observation
}

// NewLangfuseObserver creates an observer around client.
func NewLangfuseObserver(client *Langfuse, log Logger) *LangfuseObserver {
	return &LangfuseObserver{
		client: client,
		log:    log,
		open:   make(map[string]*Observation),
	}
}

// OnSubmit opens an observation keyed by the task id.
func (o *LangfuseObserver) OnSubmit(ctx context.Context, event JobEvent) {
	observation, err := o.client.StartObservation(ctx, ObservationInput{
		Name:     event.Name,
		Input:    event.Input,
		Model:    event.Model,
		Metadata: withJobMetadata(event),
	})
	if err != nil {
		o.log.Warn("Langfuse start for job %s failed: %v", event.TaskID, err)

		return
	}

	o.mu.Lock()
	o.open[event.TaskID] = observation
	o.mu.Unlock()
}

// OnTerminal records the output and scores the job as succeeded.
func (o *LangfuseObserver) OnTerminal(ctx context.Context, event JobEvent) {
	observation := o.take(ctx, event)
	if observation == nil {
		return
	}

	o.warn(event, observation.Update(ctx, event.Output, withJobMetadata(event)))
	o.warn(event, observation.End(ctx, nil))
	o.warn(event, observation.CreateScore(ctx, ScoreJobSucceeded, scoreSuccess, ""))
}

// OnError closes the observation at error level and scores it as failed.
func (o *LangfuseObserver) OnError(ctx context.Context, event JobEvent) {
	observation := o.take(ctx, event)
	if observation == nil {
		return
	}

	o.warn(event, observation.Update(ctx, event.Output, withJobMetadata(event)))
	o.warn(event, observation.End(ctx, event.Err))
	o.warn(event, observation.CreateScore(ctx, ScoreJobSucceeded, scoreFailure, event.Outcome()))
}

// take returns the observation opened on submit. Jobs resumed after a restart
// or rejected before a task id existed get a fresh one.
func (o *LangfuseObserver) take(ctx context.Context, event JobEvent) *Observation {
	o.mu.Lock()
	observation, ok := o.open[event.TaskID]
	delete(o.open, event.TaskID)
	o.mu.Unlock()

	if ok {
		return observation
	}

	observation, err := o.client.StartObservation(ctx, ObservationInput{
		Name:     event.Name,
		Input:    event.Input,
		Model:    event.Model,
		Metadata: withJobMetadata(event),
	})
	if err != nil {
		o.log.Warn("Langfuse start for job %s failed: %v", event.TaskID, err)

		return nil
	}

	return observation
}

func (o *LangfuseObserver) warn(event JobEvent, err error) {
	if err != nil {
		o.log.Warn("Langfuse update for job %s failed: %v", event.TaskID, err)
	}
}

func withJobMetadata(event JobEvent) map[string]any {
	metadata := make(map[string]any, len(event.Metadata)+5)
	for key, value := range event.Metadata {
		metadata[key] = value
	}

	metadata["provider"] = event.Provider
	metadata["task_id"] = event.TaskID
	metadata["outcome"] = event.Outcome()

	if event.Attempts > 0 {
		metadata["attempts"] = event.Attempts
	}

	if event.Duration > 0 {
		metadata["duration_seconds"] = event.Duration.Seconds()
	}

	return metadata
}
