// Package core defines the ports shared by the pipeline, the worker and their stores.
package core

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/JanetCheng0311/MARIE/internal/asyncjob"
)

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// PendingJob is a submitted job whose outcome has not been collected yet.
type PendingJob struct {
	Key      string          `json:"key"`
	Provider string          `json:"provider"`
	Handle   asyncjob.Handle `json:"handle"`
	// Context is caller data needed to finish the job, e.g. the request it answers.
	Context json.RawMessage `json:"context,omitempty"`
}

// HandleStore persists pending jobs across restarts.
type HandleStore interface {
	Save(ctx context.Context, key string, job PendingJob) error
	Delete(ctx context.Context, key string) error
	Pending(ctx context.Context) ([]PendingJob, error)
}

// PendingKey builds the store key of a job.
func PendingKey(provider, taskID string) string {
	return strings.ToLower(provider) + "." + taskID
}
