package asyncjob

import (
	"context"
	"net/http"
)

// Adapter maps one vendor's schema onto the job protocol.
//
// BuildSubmit and ParseSubmit create the job. BuildStatus and InterpretStatus
// read its state. BuildFetch retrieves the artifact; adapters whose status
// payload already carries the artifact implement InlineFetcher instead.
type Adapter interface {
	BuildSubmit(ctx context.Context, req Request) (*http.Request, error)

	// ParseSubmit extracts the task identifier from a 2xx creation response.
	// Returning a *SubmissionRejectedError or *MalformedResponseError keeps
	// that classification; any other error is reported as MalformedResponse.
	ParseSubmit(body []byte) (string, error)

	BuildStatus(ctx context.Context, handle Handle) (*http.Request, error)

	// InterpretStatus maps a status payload onto Status. An error marks the
	// payload as unreadable; the loop treats it as transient.
	InterpretStatus(body []byte) (Status, error)

	BuildFetch(ctx context.Context, result Result) (*http.Request, error)
}

// InlineFetcher is implemented by adapters whose artifact is embedded in the
// final status payload. FetchArtifact then makes no request.
type InlineFetcher interface {
	InlineArtifact(result Result) ([]byte, error)
}

// Logger is the logging surface the client needs. *logger.Logger satisfies it.
type Logger interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
}
