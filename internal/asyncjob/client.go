package asyncjob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Operation names used in transport errors.
const (
	opSubmit = "submit"
	opStatus = "status"
	opFetch  = "fetch"
)

// Log formats.
const (
	logFmtSubmitted          = "Submitted job %s"
	logFmtTransientPoll      = "Status query %d for job %s failed, will retry: %v"
	logFmtSucceededNoRef     = "Job %s reports success without a result reference (attempt %d), still polling"
	logFmtTerminalSuccess    = "Job %s succeeded after %d status queries, reference %s"
	logFmtFetchRetry         = "Artifact fetch for job %s failed, retrying in %s: %v"
	errFmtAbandoned          = "polling job %s abandoned: %w"
	errFmtInvalidPolicy      = "invalid poll policy: %w"
	errFmtBuildRequest       = "%w for %s: %w"
	errFmtReadBody           = "failed to read response body: %w"
	errFmtUnexpectedStatus   = "unexpected HTTP status %s"
	errFmtUnreadableStatus   = "unreadable status payload: %w"
	errFmtInlineArtifact     = "inline artifact: %v"
	reasonEmptyTaskID        = "creation response carries no task identifier"
	reasonFmtSubmitUnparsed  = "creation response could not be parsed: %v"
	defaultFetchRetryBackoff = time.Second
)

// Static errors.
var (
	ErrEmptyHandle    = errors.New("job handle has no task identifier")
	ErrEmptyReference = errors.New("job result has no artifact reference")
	// ErrBuildRequest marks an adapter that cannot build a request, e.g. a
	// missing endpoint. It is a configuration fault and is never retried.
	ErrBuildRequest = errors.New("failed to build request")
)

// Client drives jobs through an Adapter. It holds no per-job state, so one
// Client may serve many concurrent jobs.
type Client struct {
	adapter    Adapter
	httpClient *http.Client
	log        Logger
}

// NewClient creates a Client. timeout bounds every single HTTP request.
func NewClient(adapter Adapter, timeout time.Duration, log Logger) *Client {
	return &Client{
		adapter: adapter,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// NewClientWithHTTPClient creates a Client around an existing http.Client.
func NewClientWithHTTPClient(adapter Adapter, httpClient *http.Client, log Logger) *Client {
	return &Client{
		adapter:    adapter,
		httpClient: httpClient,
		log:        log,
	}
}

// Submit creates the remote job. It is never retried here; the caller decides.
func (c *Client) Submit(ctx context.Context, req Request) (Handle, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := c.adapter.BuildSubmit(ctx, req)
	if err != nil {
		return Handle{}, fmt.Errorf(errFmtBuildRequest, ErrBuildRequest, opSubmit, err)
	}

	statusCode, body, err := c.do(httpReq)
	if err != nil {
		return Handle{}, &TransportError{Op: opSubmit, URL: httpReq.URL.String(), Err: err}
	}

	if !isSuccess(statusCode) {
		return Handle{}, &SubmissionRejectedError{StatusCode: statusCode, Body: body}
	}

	taskID, err := c.adapter.ParseSubmit(body)
	if err != nil {
		if isTaxonomyError(err) {
			return Handle{}, err
		}

		return Handle{}, &MalformedResponseError{
			Reason: fmt.Sprintf(reasonFmtSubmitUnparsed, err),
			Body:   body,
		}
	}

	if taskID == "" {
		return Handle{}, &MalformedResponseError{Reason: reasonEmptyTaskID, Body: body}
	}

	c.log.Info(logFmtSubmitted, taskID)

	return Handle{TaskID: taskID, SubmittedAt: time.Now()}, nil
}

// AwaitCompletion polls until the job reaches a terminal state or the policy
// runs out. Status queries for the handle are strictly sequential.
//
// Transport failures and unreadable payloads count against the attempt
// budget but do not end the loop. A success without a reference keeps polling.
// An adapter that cannot build the status request ends it at once with
// ErrBuildRequest.
func (c *Client) AwaitCompletion(ctx context.Context, handle Handle, policy PollPolicy) (Result, error) {
	policyErr := policy.Validate()
	if policyErr != nil {
		return Result{}, fmt.Errorf(errFmtInvalidPolicy, policyErr)
	}

	if handle.TaskID == "" {
		return Result{}, ErrEmptyHandle
	}

	pollCtx := ctx

	if policy.Timeout > 0 {
		var cancel context.CancelFunc

		pollCtx, cancel = context.WithTimeout(ctx, policy.Timeout)
		defer cancel()
	}

	start := time.Now()
	pacer := policy.newBackOff()

	var lastErr error

	for attempt := 1; ; attempt++ {
		status, pollErr := c.queryStatus(pollCtx, handle)

		switch {
		case errors.Is(pollErr, ErrBuildRequest):
			return Result{}, pollErr
		case pollErr != nil:
			if ctx.Err() != nil {
				return Result{}, fmt.Errorf(errFmtAbandoned, handle.TaskID, ctx.Err())
			}

			lastErr = pollErr
			c.log.Warn(logFmtTransientPoll, attempt, handle.TaskID, pollErr)
		case status.State == StateSucceeded && status.Reference != "":
			c.log.Info(logFmtTerminalSuccess, handle.TaskID, attempt, status.Reference)

			return Result{
				Handle:    handle,
				Reference: status.Reference,
				Attempts:  attempt,
				Raw:       status.Raw,
			}, nil
		case status.State == StateSucceeded:
			lastErr = nil
			c.log.Info(logFmtSucceededNoRef, handle.TaskID, attempt)
		case status.State == StateFailed:
			return Result{}, &JobFailedError{TaskID: handle.TaskID, Status: status}
		default:
			lastErr = nil
		}

		timeout := &PollTimeoutError{
			TaskID:   handle.TaskID,
			Attempts: attempt,
			LastErr:  lastErr,
		}

		if policy.MaxAttempts > 0 && attempt >= policy.MaxAttempts {
			timeout.Elapsed = time.Since(start)

			return Result{}, timeout
		}

		wait := pacer.NextBackOff()

		sleepErr := sleepContext(pollCtx, wait)
		if sleepErr != nil {
			if ctx.Err() != nil {
				return Result{}, fmt.Errorf(errFmtAbandoned, handle.TaskID, ctx.Err())
			}

			timeout.Elapsed = time.Since(start)

			return Result{}, timeout
		}
	}
}

// FetchArtifact retrieves the artifact of a completed job. It is idempotent
// and safe to retry without re-submitting or re-polling.
func (c *Client) FetchArtifact(ctx context.Context, result Result) ([]byte, error) {
	if result.Reference == "" {
		return nil, ErrEmptyReference
	}

	inline, ok := c.adapter.(InlineFetcher)
	if ok {
		data, err := inline.InlineArtifact(result)
		if err != nil {
			return nil, &MalformedResponseError{
				Reason: fmt.Sprintf(errFmtInlineArtifact, err),
				Body:   result.Raw,
			}
		}

		return data, nil
	}

	httpReq, err := c.adapter.BuildFetch(ctx, result)
	if err != nil {
		return nil, fmt.Errorf(errFmtBuildRequest, ErrBuildRequest, opFetch, err)
	}

	statusCode, body, err := c.do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: opFetch, URL: httpReq.URL.String(), Err: err}
	}

	if !isSuccess(statusCode) {
		return nil, &TransportError{
			Op:         opFetch,
			URL:        httpReq.URL.String(),
			StatusCode: statusCode,
			Err:        fmt.Errorf(errFmtUnexpectedStatus, http.StatusText(statusCode)),
		}
	}

	return body, nil
}

// FetchArtifactWithRetry calls FetchArtifact up to attempts times, backing off
// exponentially between transport failures. Other errors end it at once.
func (c *Client) FetchArtifactWithRetry(ctx context.Context, result Result, attempts int) ([]byte, error) {
	var data []byte

	operation := func() error {
		fetched, err := c.FetchArtifact(ctx, result)
		if err != nil {
			if KindOf(err) != KindTransport {
				return backoff.Permanent(err)
			}

			return err
		}

		data = fetched

		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.log.Warn(logFmtFetchRetry, result.Handle.TaskID, wait, err)
	}

	retries := 0
	if attempts > 1 {
		retries = attempts - 1
	}

	pacer := backoff.NewExponentialBackOff()
	pacer.InitialInterval = defaultFetchRetryBackoff
	pacer.MaxElapsedTime = 0

	err := backoff.RetryNotify(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(pacer, uint64(retries)), ctx),
		notify,
	)
	if err != nil {
		return nil, err
	}

	return data, nil
}

func (c *Client) queryStatus(ctx context.Context, handle Handle) (Status, error) {
	httpReq, err := c.adapter.BuildStatus(ctx, handle)
	if err != nil {
		return Status{}, fmt.Errorf(errFmtBuildRequest, ErrBuildRequest, opStatus, err)
	}

	statusCode, body, err := c.do(httpReq)
	if err != nil {
		return Status{}, &TransportError{Op: opStatus, URL: httpReq.URL.String(), Err: err}
	}

	if !isSuccess(statusCode) {
		return Status{}, &TransportError{
			Op:         opStatus,
			URL:        httpReq.URL.String(),
			StatusCode: statusCode,
			Err:        fmt.Errorf(errFmtUnexpectedStatus, http.StatusText(statusCode)),
		}
	}

	status, err := c.adapter.InterpretStatus(body)
	if err != nil {
		return Status{}, fmt.Errorf(errFmtUnreadableStatus, err)
	}

	status.Raw = body

	return status, nil
}

func (c *Client) do(httpReq *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf(errFmtReadBody, err)
	}

	return resp.StatusCode, body, nil
}

func isSuccess(statusCode int) bool {
	return statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices
}

func sleepContext(ctx context.Context, wait time.Duration) error {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
