package tracing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/henomis/langfuse-go"
	"github.com/henomis/langfuse-go/model"
)

// Environment variables the Langfuse SDK reads its endpoint and keys from.
const (
	envLangfuseHost      = "LANGFUSE_HOST"
	envLangfusePublicKey = "LANGFUSE_PUBLIC_KEY"
	envLangfuseSecretKey = "LANGFUSE_SECRET_KEY"
	defaultFlushInterval = time.Second
)

// ErrLangfuseDisabled is returned by NewLangfuse without host or keys.
var ErrLangfuseDisabled = errors.New("langfuse credentials not configured")

// Langfuse records traces, generations and scores through the Langfuse SDK.
// Events are batched and sent in the background; Flush drains them.
type Langfuse struct {
	client *langfuse.Langfuse
	now    func() time.Time
}

// NewLangfuse creates a client. ctx bounds the SDK's background sender.
func NewLangfuse(ctx context.Context, host, publicKey, secretKey string) (*Langfuse, error) {
	if publicKey == "" || secretKey == "" || host == "" {
		return nil, ErrLangfuseDisabled
	}

	for key, value := range map[string]string{
		envLangfuseHost:      host,
		envLangfusePublicKey: publicKey,
		envLangfuseSecretKey: secretKey,
	} {
		err := os.Setenv(key, value)
		if err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", key, err)
		}
	}

	return &Langfuse{
		client: langfuse.New(ctx).WithFlushInterval(defaultFlushInterval),
		now:    time.Now,
	}, nil
}

// Flush sends every queued event, waiting at most until ctx is done.
func (l *Langfuse) Flush(ctx context.Context) {
	l.client.Flush(ctx)
}

// ObservationInput is the payload of StartObservation.
type ObservationInput struct {
	Name     string
	Input    any
	Output   any
	Model    string
	Metadata map[string]any
}

// Observation is an open generation inside its own trace.
type Observation struct {
	ID         string
	TraceID    string
	client     *Langfuse
	generation model.Generation
}

// StartObservation creates a trace and a generation within it.
func (l *Langfuse) StartObservation(_ context.Context, input ObservationInput) (*Observation, error) {
	trace, err := l.client.Trace(&model.Trace{
		Name:     input.Name,
		Input:    input.Input,
		Metadata: input.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create trace: %w", err)
	}

	start := l.now()

	generation, err := l.client.Generation(&model.Generation{
		TraceID:   trace.ID,
		Name:      input.Name,
		StartTime: &start,
		Input:     input.Input,
		Output:    input.Output,
		Model:     input.Model,
		Metadata:  input.Metadata,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create generation: %w", err)
	}

	return &Observation{
		ID:         generation.ID,
		TraceID:    trace.ID,
		client:     l,
		generation: *generation,
	}, nil
}

// Update sets the output and metadata of the generation.
func (o *Observation) Update(_ context.Context, output any, metadata map[string]any) error {
	o.generation.Output = output
	o.generation.Metadata = metadata

	return o.send()
}

// End closes the generation. A non-nil failure marks it as an error.
func (o *Observation) End(_ context.Context, failure error) error {
	end := o.client.now()
	o.generation.EndTime = &end

	if failure != nil {
		o.generation.Level = model.ObservationLevelError
		o.generation.StatusMessage = failure.Error()
	}

	return o.send()
}

// CreateScore attaches a numeric score to the observation.
func (o *Observation) CreateScore(_ context.Context, name string, value float64, comment string) error {
	_, err := o.client.client.Score(&model.Score{
		TraceID:       o.TraceID,
		ObservationID: o.ID,
		Name:          name,
		Value:         value,
		Comment:       comment,
	})
	if err != nil {
		return fmt.Errorf("failed to create score %s: %w", name, err)
	}

	return nil
}

// send queues a snapshot so later changes never race the background sender.
func (o *Observation) send() error {
	snapshot := o.generation

	_, err := o.client.client.GenerationEnd(&snapshot)
	if err != nil {
		return fmt.Errorf("failed to update generation %s: %w", o.ID, err)
	}

	return nil
}
