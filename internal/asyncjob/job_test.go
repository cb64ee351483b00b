package asyncjob_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/JanetCheng0311/MARIE/internal/asyncjob"
	"github.com/stretchr/testify/assert"
)

func TestParseState(t *testing.T) {
	t.Parallel()

	tests := map[string]asyncjob.State{
		"Success":    asyncjob.StateSucceeded,
		"success":    asyncjob.StateSucceeded,
		" SUCCESS ":  asyncjob.StateSucceeded,
		"Failed":     asyncjob.StateFailed,
		"error":      asyncjob.StateFailed,
		"Processing": asyncjob.StateRunning,
		"Queueing":   asyncjob.StateRunning,
		"":           asyncjob.StateUnknown,
	}

	for raw, want := range tests {
		assert.Equal(t, want, asyncjob.ParseState(raw), raw)
	}

	assert.True(t, asyncjob.StateFailed.Terminal())
	assert.False(t, asyncjob.StateRunning.Terminal())
	assert.Equal(t, "unknown", asyncjob.State(99).String())
}

func TestNormalizeID(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		`42`:           "42",
		`"abc"`:        "abc",
		`" padded "`:   "padded",
		`null`:         "",
		``:             "",
		`{"nested":1}`: "",
		`306544582099`: "306544582099",
	}

	for raw, want := range tests {
		assert.Equal(t, want, asyncjob.NormalizeID(json.RawMessage(raw)), raw)
	}
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want asyncjob.Kind
	}{
		{err: nil, want: asyncjob.KindOther},
		{err: errors.New("boom"), want: asyncjob.KindOther},
		{err: &asyncjob.TransportError{Op: "status", Err: errors.New("reset")}, want: asyncjob.KindTransport},
		{err: &asyncjob.SubmissionRejectedError{StatusCode: 401}, want: asyncjob.KindSubmissionRejected},
		{err: &asyncjob.MalformedResponseError{Reason: "no id"}, want: asyncjob.KindMalformedResponse},
		{err: &asyncjob.JobFailedError{TaskID: "1"}, want: asyncjob.KindJobFailed},
		{
			err:  &asyncjob.PollTimeoutError{TaskID: "1", LastErr: &asyncjob.TransportError{Err: errors.New("x")}},
			want: asyncjob.KindPollTimeout,
		},
		{
			err:  fmt.Errorf("speak: %w", &asyncjob.JobFailedError{TaskID: "2"}),
			want: asyncjob.KindJobFailed,
		},
	}

	for _, testCase := range tests {
		assert.Equal(t, testCase.want, asyncjob.KindOf(testCase.err), fmt.Sprint(testCase.err))
	}

	assert.True(t, asyncjob.KindTransport.RetryLater())
	assert.True(t, asyncjob.KindPollTimeout.RetryLater())
	assert.False(t, asyncjob.KindJobFailed.RetryLater())
}

func TestSubmissionRejectedError_TruncatesBody(t *testing.T) {
	t.Parallel()

	body := make([]byte, 2048)
	for i := range body {
		body[i] = 'x'
	}

	err := &asyncjob.SubmissionRejectedError{StatusCode: 400, Body: body}
	assert.Less(t, len(err.Error()), 700)
	assert.Len(t, err.Body, 2048)
}
