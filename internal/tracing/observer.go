// Package tracing receives job lifecycle events. Observers are best effort:
// they never fail the job they observe.
package tracing

import (
	"context"
	"strings"
	"time"

	"github.com/JanetCheng0311/MARIE/internal/asyncjob"
)

// OutcomeSucceeded labels a job that produced its artifact.
const OutcomeSucceeded = "succeeded"

// JobEvent describes one job at a lifecycle hook.
type JobEvent struct {
	// Provider names the remote service, e.g. "minimax" or "gradio".
	Provider string
	// Name is a human label for the unit of work, e.g. the input file.
	Name     string
	TaskID   string
	Model    string
	Input    any
	Output   any
	Metadata map[string]any
	Attempts int
	Duration time.Duration
	Err      error
}

// Outcome is "succeeded" for a nil Err and the error kind otherwise.
func (e JobEvent) Outcome() string {
	if e.Err == nil {
		return OutcomeSucceeded
	}

	return strings.ReplaceAll(asyncjob.KindOf(e.Err).String(), " ", "_")
}

// Observer is notified on submit, on terminal success and on any error.
type Observer interface {
	OnSubmit(ctx context.Context, event JobEvent)
	OnTerminal(ctx context.Context, event JobEvent)
	OnError(ctx context.Context, event JobEvent)
}

// Nop ignores every event.
type Nop struct{}

func (Nop) OnSubmit(context.Context, JobEvent)   {}
func (Nop) OnTerminal(context.Context, JobEvent) {}
func (Nop) OnError(context.Context, JobEvent)    {}

type multi []Observer

// Multi fans events out to every non-nil observer in order.
func Multi(observers ...Observer) Observer {
	kept := make(multi, 0, len(observers))

	for _, observer := range observers {
		if observer != nil {
			kept = append(kept, observer)
		}
	}

	return kept
}

func (m multi) OnSubmit(ctx context.Context, event JobEvent) {
	for _, observer := range m {
		observer.OnSubmit(ctx, event)
	}
}

func (m multi) OnTerminal(ctx context.Context, event JobEvent) {
	for _, observer := range m {
		observer.OnTerminal(ctx, event)
	}
}

func (m multi) OnError(ctx context.Context, event JobEvent) {
	for _, observer := range m {
		observer.OnError(ctx, event)
	}
}
