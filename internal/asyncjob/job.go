// Package asyncjob drives "submit, poll, fetch" remote jobs to a deterministic outcome.
//
// A Client owns the loop. Vendor specifics live in an Adapter, which builds the
// HTTP requests and maps raw payloads onto the tagged Status model. The loop
// never compares raw status strings itself.
//
// Abandoning a job (cancelling the context passed to AwaitCompletion) only
// stops local polling. None of the wrapped services expose a cancel call, so
// the remote job keeps running: cancellation is fire-and-forget.
package asyncjob

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// State is the tagged form of a remote job status.
type State int

// Job states. Only Succeeded and Failed are terminal.
const (
	StateUnknown State = iota
	StateRunning
	StateSucceeded
	StateFailed
)

// Raw status literals recognised by ParseState, compared case-insensitively.
const (
	rawStatusSuccess = "success"
	rawStatusFailed  = "failed"
	rawStatusError   = "error"
)

var stateNames = map[State]string{
	StateUnknown:   "unknown",
	StateRunning:   "running",
	StateSucceeded: "succeeded",
	StateFailed:    "failed",
}

func (s State) String() string {
	name, ok := stateNames[s]
	if !ok {
		return stateNames[StateUnknown]
	}

	return name
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// ParseState maps a raw status string onto a State.
// "success" is Succeeded and "failed"/"error" are Failed, ignoring case.
// An empty string is Unknown; every other value is treated as Running.
func ParseState(raw string) State {
	normalized := strings.ToLower(strings.TrimSpace(raw))

	switch normalized {
	case "":
		return StateUnknown
	case rawStatusSuccess:
		return StateSucceeded
	case rawStatusFailed, rawStatusError:
		return StateFailed
	default:
		return StateRunning
	}
}

// Request carries the parameters for one unit of remote work.
type Request struct {
	// Endpoint optionally overrides the adapter's job-creation URL.
	Endpoint string

	// Payload is serialised to JSON by the adapter.
	Payload any

	// Timeout bounds the submit call. Zero falls back to the client timeout.
	Timeout time.Duration
}

// Handle identifies a submitted job.
type Handle struct {
	TaskID      string    `json:"task_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Status is one status report as seen by the poll loop.
type Status struct {
	State State

	// Reference points at the artifact once the job succeeded.
	Reference string

	// Detail is a short human readable description, when the service gives one.
	Detail string

	// Raw is the full status payload, kept for diagnostics.
	Raw []byte
}

// Result is the terminal success of a job.
type Result struct {
	Handle    Handle
	Reference string
	Attempts  int
	Raw       []byte
}

// NormalizeID turns a JSON identifier that may be a string or a number into
// its string form. null and empty input yield "".
func NormalizeID(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}

	var text string

	err := json.Unmarshal(trimmed, &text)
	if err == nil {
		return strings.TrimSpace(text)
	}

	var number json.Number

	err = json.Unmarshal(trimmed, &number)
	if err == nil {
		return number.String()
	}

	return ""
}
