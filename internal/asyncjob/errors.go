package asyncjob

import (
	"errors"
	"fmt"
	"time"
)

// Sentinels matched by the typed errors below through errors.Is.
var (
	ErrTransport          = errors.New("transport error")
	ErrSubmissionRejected = errors.New("submission rejected")
	ErrMalformedResponse  = errors.New("malformed response")
	ErrJobFailed          = errors.New("job failed")
	ErrPollTimeout        = errors.New("poll timeout")
)

// Error formats.
const (
	errFmtTransport          = "%s %s: %v"
	errFmtSubmissionRejected = "service rejected job (status %d): %s"
	errFmtMalformedResponse  = "malformed response: %s"
	errFmtJobFailed          = "job %s reported %s: %s"
	errFmtPollTimeout        = "job %s not terminal after %d attempts in %s"
	errFmtPollTimeoutLastErr = "job %s not terminal after %d attempts in %s (last error: %v)"
	maxBodyInMessage         = 512
)

// TransportError is a network-level failure on a single request, or a non-2xx
// answer to an artifact download.
type TransportError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf(errFmtTransport, e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is matches ErrTransport.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// SubmissionRejectedError is an explicit refusal to create a job.
type SubmissionRejectedError struct {
	StatusCode int
	Body       []byte
}

func (e *SubmissionRejectedError) Error() string {
	return fmt.Sprintf(errFmtSubmissionRejected, e.StatusCode, truncate(e.Body))
}

// Is matches ErrSubmissionRejected.
func (e *SubmissionRejectedError) Is(target error) bool { return target == ErrSubmissionRejected }

// MalformedResponseError means the service answered but broke its contract.
type MalformedResponseError struct {
	Reason string
	Body   []byte
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf(errFmtMalformedResponse, e.Reason)
}

// Is matches ErrMalformedResponse.
func (e *MalformedResponseError) Is(target error) bool { return target == ErrMalformedResponse }

// JobFailedError is a terminal failure reported by the service.
type JobFailedError struct {
	TaskID string
	Status Status
}

func (e *JobFailedError) Error() string {
	detail := e.Status.Detail
	if detail == "" {
		detail = truncate(e.Status.Raw)
	}

	return fmt.Sprintf(errFmtJobFailed, e.TaskID, e.Status.State, detail)
}

// Is matches ErrJobFailed.
func (e *JobFailedError) Is(target error) bool { return target == ErrJobFailed }

// PollTimeoutError means the policy bounds ran out before a terminal status
// was seen. The outcome of the job is unknown.
type PollTimeoutError struct {
	TaskID   string
	Attempts int
	Elapsed  time.Duration
	LastErr  error
}

func (e *PollTimeoutError) Error() string {
	elapsed := e.Elapsed.Round(time.Millisecond)
	if e.LastErr != nil {
		return fmt.Sprintf(errFmtPollTimeoutLastErr, e.TaskID, e.Attempts, elapsed, e.LastErr)
	}

	return fmt.Sprintf(errFmtPollTimeout, e.TaskID, e.Attempts, elapsed)
}

// Is matches ErrPollTimeout. The last transient error is deliberately not
// unwrapped so a timeout never reads as a TransportError.
func (e *PollTimeoutError) Is(target error) bool { return target == ErrPollTimeout }

// Kind is the user-facing classification of an error.
type Kind int

// Error kinds.
const (
	KindOther Kind = iota
	KindTransport
	KindSubmissionRejected
	KindMalformedResponse
	KindJobFailed
	KindPollTimeout
)

var kindNames = map[Kind]string{
	KindOther:              "error",
	KindTransport:          "transport error",
	KindSubmissionRejected: "submission rejected",
	KindMalformedResponse:  "malformed response",
	KindJobFailed:          "job failed",
	KindPollTimeout:        "poll timeout",
}

func (k Kind) String() string {
	return kindNames[k]
}

// RetryLater reports whether the same work may succeed if tried again later.
func (k Kind) RetryLater() bool {
	return k == KindTransport || k == KindPollTimeout
}

// KindOf classifies err. A nil error is KindOther.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindOther
	case errors.Is(err, ErrPollTimeout):
		return KindPollTimeout
	case errors.Is(err, ErrJobFailed):
		return KindJobFailed
	case errors.Is(err, ErrSubmissionRejected):
		return KindSubmissionRejected
	case errors.Is(err, ErrMalformedResponse):
		return KindMalformedResponse
	case errors.Is(err, ErrTransport):
		return KindTransport
	default:
		return KindOther
	}
}

// isTaxonomyError reports whether err already belongs to one of the kinds,
// so adapters can return their own classification.
func isTaxonomyError(err error) bool {
	return KindOf(err) != KindOther
}

func truncate(body []byte) string {
	if len(body) <= maxBodyInMessage {
		return string(body)
	}

	return string(body[:maxBodyInMessage]) + "..."
}
