package asyncjob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// HTTP headers.
const (
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	contentTypeJSON     = "application/json"
	bearerPrefix        = "Bearer "
	queryTaskID         = "task_id"
)

// ErrNoEndpoint is returned when an adapter has no URL for an operation.
var ErrNoEndpoint = errors.New("endpoint not configured")

// Endpoints are the three URLs of a generic job service.
type Endpoints struct {
	// Create receives POST requests with the JSON payload.
	Create string
	// Status receives GET requests with ?task_id=<id>.
	Status string
	// Download is joined with the result reference: GET <Download>/<reference>.
	Download string
}

// HTTPAdapter implements Adapter for services following the common contract:
//
//	POST create         -> {"task_id"|"taskId": <id>}
//	GET  status?task_id -> {"status"|"task_status": <string>, "result_reference"|"file_id": <ref>}
//	GET  download/<ref> -> artifact bytes
//
// Vendor adapters embed it and override the parsing they need.
type HTTPAdapter struct {
	Endpoints Endpoints
	APIKey    string
}

// NewHTTPAdapter creates a generic adapter. An empty apiKey sends no Authorization header.
func NewHTTPAdapter(endpoints Endpoints, apiKey string) *HTTPAdapter {
	return &HTTPAdapter{Endpoints: endpoints, APIKey: apiKey}
}

type submitEnvelope struct {
	TaskID    json.RawMessage `json:"task_id"`
	TaskIDAlt json.RawMessage `json:"taskId"`
}

type statusEnvelope struct {
	Status          string          `json:"status"`
	TaskStatus      string          `json:"task_status"`
	ResultReference json.RawMessage `json:"result_reference"`
	FileID          json.RawMessage `json:"file_id"`
	Error           string          `json:"error"`
	Message         string          `json:"message"`
}

// BuildSubmit serialises req.Payload and POSTs it to the create endpoint.
func (a *HTTPAdapter) BuildSubmit(ctx context.Context, req Request) (*http.Request, error) {
	endpoint := req.Endpoint
	if endpoint == "" {
		endpoint = a.Endpoints.Create
	}

	if endpoint == "" {
		return nil, fmt.Errorf("%w: create", ErrNoEndpoint)
	}

	body, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	a.authorize(httpReq)

	return httpReq, nil
}

// ParseSubmit reads task_id, falling back to taskId.
func (a *HTTPAdapter) ParseSubmit(body []byte) (string, error) {
	var envelope submitEnvelope

	err := json.Unmarshal(body, &envelope)
	if err != nil {
		return "", fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	taskID := NormalizeID(envelope.TaskID)
	if taskID == "" {
		taskID = NormalizeID(envelope.TaskIDAlt)
	}

	return taskID, nil
}

// BuildStatus GETs the status endpoint with the task id as query parameter.
func (a *HTTPAdapter) BuildStatus(ctx context.Context, handle Handle) (*http.Request, error) {
	if a.Endpoints.Status == "" {
		return nil, fmt.Errorf("%w: status", ErrNoEndpoint)
	}

	statusURL, err := url.Parse(a.Endpoints.Status)
	if err != nil {
		return nil, fmt.Errorf("invalid status endpoint: %w", err)
	}

	query := statusURL.Query()
	query.Set(queryTaskID, handle.TaskID)
	statusURL.RawQuery = query.Encode()

	return a.newGet(ctx, statusURL.String())
}

// InterpretStatus reads status|task_status and result_reference|file_id.
func (a *HTTPAdapter) InterpretStatus(body []byte) (Status, error) {
	var envelope statusEnvelope

	err := json.Unmarshal(body, &envelope)
	if err != nil {
		return Status{}, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	raw := envelope.Status
	if raw == "" {
		raw = envelope.TaskStatus
	}

	reference := NormalizeID(envelope.ResultReference)
	if reference == "" {
		reference = NormalizeID(envelope.FileID)
	}

	detail := envelope.Error
	if detail == "" {
		detail = envelope.Message
	}

	return Status{
		State:     ParseState(raw),
		Reference: reference,
		Detail:    detail,
		Raw:       body,
	}, nil
}

// BuildFetch GETs <download>/<reference>.
func (a *HTTPAdapter) BuildFetch(ctx context.Context, result Result) (*http.Request, error) {
	if a.Endpoints.Download == "" {
		return nil, fmt.Errorf("%w: download", ErrNoEndpoint)
	}

	fetchURL := strings.TrimRight(a.Endpoints.Download, "/") + "/" + url.PathEscape(result.Reference)

	return a.newGet(ctx, fetchURL)
}

func (a *HTTPAdapter) newGet(ctx context.Context, target string) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	a.authorize(httpReq)

	return httpReq, nil
}

func (a *HTTPAdapter) authorize(httpReq *http.Request) {
	if a.APIKey != "" {
		httpReq.Header.Set(headerAuthorization, bearerPrefix+a.APIKey)
	}
}
