// Package minimax maps the MiniMax asynchronous speech API onto asyncjob.
package minimax

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/JanetCheng0311/MARIE/internal/asyncjob"
)

// DefaultBaseURL is the public MiniMax API root.
const DefaultBaseURL = "https://api.minimax.io/v1"

// API paths relative to the base URL.
const (
	pathCreate   = "/t2a_async_v2"
	pathQuery    = "/query/t2a_async_query_v2"
	pathFiles    = "/files"
	pathUpload   = "/files/upload"
	pathClone    = "/voice_clone"
	statusExpire = "expired"
)

// MiniMax base_resp codes that are worth another status query.
const (
	codeOK          = 0
	codeUnknown     = 1000
	codeTimeout     = 1001
	codeRateLimited = 1002
)

// BaseResp is the vendor envelope present on every MiniMax answer.
type BaseResp struct {
	StatusCode int    `json:"status_code"`
	StatusMsg  string `json:"status_msg"`
}

// OK reports whether the envelope signals success. A missing envelope decodes as OK.
func (b BaseResp) OK() bool {
	return b.StatusCode == codeOK
}

func (b BaseResp) transient() bool {
	return b.StatusCode == codeUnknown || b.StatusCode == codeTimeout || b.StatusCode == codeRateLimited
}

// Adapter drives MiniMax text-to-speech jobs.
type Adapter struct {
	*asyncjob.HTTPAdapter
}

// NewAdapter creates an adapter for the API rooted at baseURL.
func NewAdapter(baseURL, apiKey string) *Adapter {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}

	return &Adapter{
		HTTPAdapter: asyncjob.NewHTTPAdapter(asyncjob.Endpoints{
			Create:   base + pathCreate,
			Status:   base + pathQuery,
			Download: base + pathFiles,
		}, apiKey),
	}
}

type createResponse struct {
	BaseResp BaseResp `json:"base_resp"`
}

// ParseSubmit rejects answers whose base_resp carries a non-zero code, then
// reads task_id|taskId like the generic adapter.
func (a *Adapter) ParseSubmit(body []byte) (string, error) {
	var envelope createResponse

	err := json.Unmarshal(body, &envelope)
	if err != nil {
		return "", fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	if !envelope.BaseResp.OK() {
		return "", &asyncjob.SubmissionRejectedError{StatusCode: http.StatusOK, Body: body}
	}

	return a.HTTPAdapter.ParseSubmit(body)
}

type queryResponse struct {
	Status     string   `json:"status"`
	TaskStatus string   `json:"task_status"`
	BaseResp   BaseResp `json:"base_resp"`
}

// InterpretStatus adds the MiniMax specifics on top of the generic mapping:
// Expired is a terminal failure, and a base_resp error about the task fails it
// unless the code is a transient one.
func (a *Adapter) InterpretStatus(body []byte) (asyncjob.Status, error) {
	status, err := a.HTTPAdapter.InterpretStatus(body)
	if err != nil {
		return asyncjob.Status{}, err
	}

	var envelope queryResponse

	err = json.Unmarshal(body, &envelope)
	if err != nil {
		return asyncjob.Status{}, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	if strings.EqualFold(envelope.Status, statusExpire) || strings.EqualFold(envelope.TaskStatus, statusExpire) {
		status.State = asyncjob.StateFailed
	}

	if !envelope.BaseResp.OK() && status.State != asyncjob.StateSucceeded {
		if envelope.BaseResp.transient() {
			return asyncjob.Status{}, fmt.Errorf("%w: %d %s", ErrAPI, envelope.BaseResp.StatusCode, envelope.BaseResp.StatusMsg)
		}

		status.State = asyncjob.StateFailed
	}

	if status.Detail == "" {
		status.Detail = envelope.BaseResp.StatusMsg
	}

	return status, nil
}
