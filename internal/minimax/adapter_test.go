package minimax_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JanetCheng0311/MARIE/internal/asyncjob"
	"github.com/JanetCheng0311/MARIE/internal/minimax"
	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAudio = "fake-mp3"

type mockMiniMax struct {
	createBody  string
	queryBodies []string
	queryCalls  atomic.Int32
	lastPayload atomic.Value
}

func (m *mockMiniMax) server(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		if request.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token on %s", request.URL.Path)
		}

		switch request.URL.Path {
		case "/v1/t2a_async_v2":
			var payload minimax.SpeechRequest

			decodeErr := json.NewDecoder(request.Body).Decode(&payload)
			if decodeErr != nil {
				t.Errorf("bad create payload: %v", decodeErr)
			}

			m.lastPayload.Store(payload)
			_, _ = responseWriter.Write([]byte(m.createBody))
		case "/v1/query/t2a_async_query_v2":
			call := int(m.queryCalls.Add(1)) - 1

			body := m.queryBodies[len(m.queryBodies)-1]
			if call < len(m.queryBodies) {
				body = m.queryBodies[call]
			}

			_, _ = responseWriter.Write([]byte(body))
		case "/v1/files/176":
			_, _ = responseWriter.Write([]byte(testAudio))
		default:
			responseWriter.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	return server
}

func newClient(t *testing.T, baseURL string) *asyncjob.Client {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "minimax-test.log")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = testLogger.Close()
	})

	return asyncjob.NewClient(minimax.NewAdapter(baseURL, "test-key"), 5*time.Second, testLogger)
}

func TestAdapter_SpeechJobEndToEnd(t *testing.T) {
	t.Parallel()

	mock := &mockMiniMax{
		createBody: `{"task_id":306544582099,"task_token":"t","base_resp":{"status_code":0,"status_msg":"success"}}`,
		queryBodies: []string{
			`{"task_id":306544582099,"status":"Processing","base_resp":{"status_code":0}}`,
			`{"task_id":306544582099,"status":"Success","file_id":176,"base_resp":{"status_code":0}}`,
		},
	}
	server := mock.server(t)
	client := newClient(t, server.URL+"/v1/")
	ctx := context.Background()

	request := minimax.NewSpeechRequest("你好", "Cantonese_CuteGirl")
	request.LanguageBoost = "Cantonese"

	handle, err := client.Submit(ctx, request.Job())
	require.NoError(t, err)
	assert.Equal(t, "306544582099", handle.TaskID)

	sent, ok := mock.lastPayload.Load().(minimax.SpeechRequest)
	require.True(t, ok)
	assert.Equal(t, minimax.DefaultModel, sent.Model)
	assert.Equal(t, "Cantonese_CuteGirl", sent.VoiceSetting.VoiceID)
	assert.Equal(t, minimax.DefaultSampleRate, sent.AudioSetting.SampleRate)
	assert.Equal(t, "Cantonese", sent.LanguageBoost)

	result, err := client.AwaitCompletion(ctx, handle, asyncjob.FixedPolicy(5, time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, "176", result.Reference)

	audio, err := client.FetchArtifact(ctx, result)
	require.NoError(t, err)
	assert.Equal(t, []byte(testAudio), audio)
}

func TestAdapter_BaseRespErrorRejectsSubmission(t *testing.T) {
	t.Parallel()

	mock := &mockMiniMax{
		createBody:  `{"task_id":0,"base_resp":{"status_code":2013,"status_msg":"invalid params"}}`,
		queryBodies: []string{`{}`},
	}
	server := mock.server(t)
	client := newClient(t, server.URL+"/v1")

	_, err := client.Submit(context.Background(), minimax.NewSpeechRequest("x", "v").Job())
	require.ErrorIs(t, err, asyncjob.ErrSubmissionRejected)
	assert.Contains(t, err.Error(), "invalid params")
	assert.Equal(t, int32(0), mock.queryCalls.Load())
}

func TestAdapter_ExpiredIsTerminalFailure(t *testing.T) {
	t.Parallel()

	mock := &mockMiniMax{queryBodies: []string{`{"status":"Expired","base_resp":{"status_code":0}}`}}
	server := mock.server(t)
	client := newClient(t, server.URL+"/v1")

	_, err := client.AwaitCompletion(context.Background(), asyncjob.Handle{TaskID: "1"}, asyncjob.FixedPolicy(5, time.Millisecond))
	require.ErrorIs(t, err, asyncjob.ErrJobFailed)
	assert.Equal(t, int32(1), mock.queryCalls.Load())
}

func TestAdapter_RateLimitIsTransient(t *testing.T) {
	t.Parallel()

	mock := &mockMiniMax{queryBodies: []string{
		`{"base_resp":{"status_code":1002,"status_msg":"rate limit"}}`,
		`{"status":"Success","file_id":176,"base_resp":{"status_code":0}}`,
	}}
	server := mock.server(t)
	client := newClient(t, server.URL+"/v1")

	result, err := client.AwaitCompletion(context.Background(), asyncjob.Handle{TaskID: "1"}, asyncjob.FixedPolicy(5, time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Attempts)
}

func TestAdapter_TaskErrorFailsJob(t *testing.T) {
	t.Parallel()

	mock := &mockMiniMax{queryBodies: []string{`{"base_resp":{"status_code":2013,"status_msg":"task not found"}}`}}
	server := mock.server(t)
	client := newClient(t, server.URL+"/v1")

	_, err := client.AwaitCompletion(context.Background(), asyncjob.Handle{TaskID: "1"}, asyncjob.FixedPolicy(5, time.Millisecond))
	require.ErrorIs(t, err, asyncjob.ErrJobFailed)
	assert.Contains(t, err.Error(), "task not found")
}
