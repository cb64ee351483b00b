// Package gradio runs Gradio app endpoints as asynchronous jobs.
//
// A call is queued with POST gradio_api/call/<api>, which answers with an
// event id. Reading gradio_api/call/<api>/<event_id> returns an event stream
// whose last event tells whether the call completed. The output travels in
// the stream itself, so the adapter fetches artifacts inline.
package gradio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/JanetCheng0311/MARIE/internal/asyncjob"
)

// DefaultAPIName is the transcription endpoint of the ASR app.
const DefaultAPIName = "/transcribe"

// Paths and stream markers.
const (
	pathCall      = "/gradio_api/call/"
	pathUpload    = "/gradio_api/upload"
	pathFile      = "/gradio_api/file="
	eventPrefix   = "event:"
	dataPrefix    = "data:"
	eventComplete = "complete"
	eventError    = "error"
	headerAccept  = "Accept"
	eventStream   = "text/event-stream"
	fileDataType  = "gradio.FileData"
	maxLineBytes  = 4 << 20
)

// Static errors.
var (
	ErrNoEventID    = errors.New("call response carries no event_id")
	ErrInlineOnly   = errors.New("gradio outputs are read from the event stream")
	ErrEmptyOutput  = errors.New("gradio call produced no output")
	ErrNoUploadPath = errors.New("upload response carries no path")
)

// FileData references a file already uploaded to the app.
type FileData struct {
	Path string   `json:"path"`
	URL  string   `json:"url,omitempty"`
	Meta FileMeta `json:"meta"`
}

// FileMeta tags FileData for the Gradio deserialiser.
type FileMeta struct {
	Type string `json:"_type"`
}

// CallRequest is the body of a queued call.
type CallRequest struct {
	Data []any `json:"data"`
}

// Adapter implements asyncjob.Adapter and asyncjob.InlineFetcher.
type Adapter struct {
	baseURL string
	apiName string
	token   string
}

// NewAdapter creates an adapter for api (e.g. "/transcribe") on the app at baseURL.
// token is sent as a bearer token when set (private Hugging Face spaces).
func NewAdapter(baseURL, api, token string) *Adapter {
	return &Adapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiName: strings.Trim(api, "/"),
		token:   token,
	}
}

// NewFileData wraps a server-side path returned by Upload.
func NewFileData(path string) FileData {
	return FileData{Path: path, Meta: FileMeta{Type: fileDataType}}
}

// TranscribeJob builds the request for a single-audio-input call.
func TranscribeJob(file FileData) asyncjob.Request {
	return asyncjob.Request{Payload: CallRequest{Data: []any{file}}}
}

type callResponse struct {
	EventID string `json:"event_id"`
}

// BuildSubmit POSTs the call payload.
func (a *Adapter) BuildSubmit(ctx context.Context, req asyncjob.Request) (*http.Request, error) {
	endpoint := req.Endpoint
	if endpoint == "" {
		endpoint = a.baseURL + pathCall + a.apiName
	}

	body, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal call payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	a.authorize(httpReq)

	return httpReq, nil
}

// ParseSubmit returns the event id.
func (a *Adapter) ParseSubmit(body []byte) (string, error) {
	var response callResponse

	err := json.Unmarshal(body, &response)
	if err != nil {
		return "", fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	return strings.TrimSpace(response.EventID), nil
}

// BuildStatus GETs the event stream of the call. The app holds the stream
// open until the call ends, so the client timeout must cover the whole call.
func (a *Adapter) BuildStatus(ctx context.Context, handle asyncjob.Handle) (*http.Request, error) {
	target := a.baseURL + pathCall + a.apiName + "/" + handle.TaskID

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerAccept, eventStream)
	a.authorize(httpReq)

	return httpReq, nil
}

// InterpretStatus reads the stream and keys on its last event.
// complete carries the output as reference; error fails the call.
func (a *Adapter) InterpretStatus(body []byte) (asyncjob.Status, error) {
	lastEvent, lastData, err := lastStreamEvent(body)
	if err != nil {
		return asyncjob.Status{}, err
	}

	switch lastEvent {
	case eventComplete:
		return asyncjob.Status{State: asyncjob.StateSucceeded, Reference: lastData, Raw: body}, nil
	case eventError:
		detail := lastData
		if detail == "null" {
			detail = ""
		}

		return asyncjob.Status{State: asyncjob.StateFailed, Detail: detail, Raw: body}, nil
	case "":
		return asyncjob.Status{State: asyncjob.StateUnknown, Raw: body}, nil
	default:
		return asyncjob.Status{State: asyncjob.StateRunning, Raw: body}, nil
	}
}

// BuildFetch is never used: see InlineArtifact.
func (a *Adapter) BuildFetch(context.Context, asyncjob.Result) (*http.Request, error) {
	return nil, ErrInlineOnly
}

// InlineArtifact decodes the output carried by the complete event. The first
// output is used: a string as is, an object through its text or result field.
func (a *Adapter) InlineArtifact(result asyncjob.Result) ([]byte, error) {
	var outputs []json.RawMessage

	err := json.Unmarshal([]byte(result.Reference), &outputs)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal outputs: %w", err)
	}

	if len(outputs) == 0 {
		return nil, ErrEmptyOutput
	}

	return decodeOutput(outputs[0])
}

func decodeOutput(raw json.RawMessage) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrEmptyOutput
	}

	var text string

	err := json.Unmarshal(trimmed, &text)
	if err == nil {
		return []byte(text), nil
	}

	var fields struct {
		Text   *string `json:"text"`
		Result *string `json:"result"`
	}

	err = json.Unmarshal(trimmed, &fields)
	if err == nil {
		if fields.Result != nil {
			return []byte(*fields.Result), nil
		}

		if fields.Text != nil {
			return []byte(*fields.Text), nil
		}
	}

	return trimmed, nil
}

func lastStreamEvent(body []byte) (string, string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var lastEvent, lastData string

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, eventPrefix):
			lastEvent = strings.TrimSpace(strings.TrimPrefix(line, eventPrefix))
			lastData = ""
		case strings.HasPrefix(line, dataPrefix):
			lastData = strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
		}
	}

	err := scanner.Err()
	if err != nil {
		return "", "", fmt.Errorf("failed to read event stream: %w", err)
	}

	return lastEvent, lastData, nil
}

func (a *Adapter) authorize(httpReq *http.Request) {
	if a.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.token)
	}
}
