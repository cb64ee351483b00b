package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/JanetCheng0311/MARIE/internal/asyncjob"
	"github.com/JanetCheng0311/MARIE/internal/core"
	"github.com/JanetCheng0311/MARIE/internal/pipeline"
	"github.com/JanetCheng0311/MARIE/internal/tracing"
	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "pipeline-test.log")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = testLogger.Close()
	})

	return testLogger
}

// fakeJobClient returns canned answers for each stage.
type fakeJobClient struct {
	submitErr error
	awaitErr  error
	fetchErr  error
	artifact  []byte
	awaited   []string
}

func (f *fakeJobClient) Submit(context.Context, asyncjob.Request) (asyncjob.Handle, error) {
	if f.submitErr != nil {
		return asyncjob.Handle{}, f.submitErr
	}

	return asyncjob.Handle{TaskID: "42", SubmittedAt: time.Now()}, nil
}

func (f *fakeJobClient) AwaitCompletion(_ context.Context, handle asyncjob.Handle, _ asyncjob.PollPolicy) (asyncjob.Result, error) {
	f.awaited = append(f.awaited, handle.TaskID)

	if f.awaitErr != nil {
		return asyncjob.Result{}, f.awaitErr
	}

	return asyncjob.Result{Handle: handle, Reference: "f9", Attempts: 3}, nil
}

func (f *fakeJobClient) FetchArtifactWithRetry(context.Context, asyncjob.Result, int) ([]byte, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}

	return f.artifact, nil
}

// memoryStore is an in-process core.HandleStore.
type memoryStore struct {
	mu      sync.Mutex
	entries map[string]core.PendingJob
	saved   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[string]core.PendingJob)}
}

func (m *memoryStore) Save(_ context.Context, key string, job core.PendingJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = job
	m.saved++

	return nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)

	return nil
}

func (m *memoryStore) Pending(context.Context) ([]core.PendingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	jobs := make([]core.PendingJob, 0, len(m.entries))
	for _, job := range m.entries {
		jobs = append(jobs, job)
	}

	return jobs, nil
}

// recorder keeps the hook sequence.
type recorder struct {
	mu     sync.Mutex
	hooks  []string
	events []tracing.JobEvent
}

func (r *recorder) add(hook string, event tracing.JobEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.hooks = append(r.hooks, hook)
	r.events = append(r.events, event)
}

func (r *recorder) OnSubmit(_ context.Context, event tracing.JobEvent)   { r.add("submit", event) }
func (r *recorder) OnTerminal(_ context.Context, event tracing.JobEvent) { r.add("terminal", event) }
func (r *recorder) OnError(_ context.Context, event tracing.JobEvent)    { r.add("error", event) }

func newTestRunner(t *testing.T, client pipeline.JobClient) (*pipeline.Runner, *recorder, *memoryStore) {
	t.Helper()

	observer := &recorder{}
	store := newMemoryStore()
	runner := pipeline.NewRunner(
		client,
		asyncjob.FixedPolicy(3, time.Millisecond),
		createTestLogger(t),
		pipeline.WithObserver(observer),
		pipeline.WithHandleStore(store),
		pipeline.WithFetchAttempts(2),
	)

	return runner, observer, store
}

func TestRunner_SuccessHooksAndStore(t *testing.T) {
	t.Parallel()

	runner, observer, store := newTestRunner(t, &fakeJobClient{artifact: []byte("mp3")})

	outcome, err := runner.Run(context.Background(), pipeline.Job{Provider: "minimax", Name: "tts"})
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3"), outcome.Artifact)
	assert.Equal(t, "f9", outcome.Result.Reference)

	assert.Equal(t, []string{"submit", "terminal"}, observer.hooks)
	assert.Equal(t, "42", observer.events[0].TaskID)
	assert.Equal(t, 3, observer.events[1].Attempts)
	assert.Equal(t, 1, store.saved)

	pending, err := store.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

type lineLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *lineLogger) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *lineLogger) Info(format string, args ...any)  { l.add(format, args...) }
func (l *lineLogger) Warn(format string, args ...any)  { l.add(format, args...) }
func (l *lineLogger) Error(format string, args ...any) { l.add(format, args...) }

func TestRunner_LogsPollSchedule(t *testing.T) {
	t.Parallel()

	log := &lineLogger{}
	runner := pipeline.NewRunner(&fakeJobClient{artifact: []byte("mp3")},
		asyncjob.ExponentialPolicy(5, time.Millisecond, 3*time.Millisecond), log)

	_, err := runner.Run(context.Background(), pipeline.Job{Provider: "gradio"})
	require.NoError(t, err)

	require.NotEmpty(t, log.lines)
	assert.Equal(t, "Polling gradio job 42: up to 5 attempts, first waits [1ms 2ms 3ms]", log.lines[0])
}

func TestRunner_SubmitErrorNotifiesWithoutSubmitHook(t *testing.T) {
	t.Parallel()

	runner, observer, store := newTestRunner(t, &fakeJobClient{
		submitErr: &asyncjob.SubmissionRejectedError{StatusCode: 401},
	})

	_, err := runner.Run(context.Background(), pipeline.Job{Provider: "minimax"})
	require.ErrorIs(t, err, asyncjob.ErrSubmissionRejected)
	assert.Equal(t, []string{"error"}, observer.hooks)
	assert.Equal(t, "submission_rejected", observer.events[0].Outcome())
	assert.Zero(t, store.saved)
}

func TestRunner_TimeoutKeepsHandleForResume(t *testing.T) {
	t.Parallel()

	client := &fakeJobClient{awaitErr: &asyncjob.PollTimeoutError{TaskID: "42", Attempts: 3}}
	runner, observer, store := newTestRunner(t, client)
	ctx := context.Background()

	_, err := runner.Run(ctx, pipeline.Job{Provider: "minimax"})
	require.ErrorIs(t, err, asyncjob.ErrPollTimeout)
	assert.Equal(t, []string{"submit", "error"}, observer.hooks)
	assert.Equal(t, 3, observer.events[1].Attempts)

	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "minimax.42", pending[0].Key)

	client.awaitErr = nil
	client.artifact = []byte("late mp3")

	outcome, err := runner.Resume(ctx, pipeline.Job{Provider: "minimax"}, pending[0].Handle)
	require.NoError(t, err)
	assert.Equal(t, []byte("late mp3"), outcome.Artifact)
	assert.Equal(t, []string{"42", "42"}, client.awaited)

	pending, err = store.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRunner_JobFailedForgetsHandle(t *testing.T) {
	t.Parallel()

	runner, observer, store := newTestRunner(t, &fakeJobClient{awaitErr: &asyncjob.JobFailedError{TaskID: "42"}})

	_, err := runner.Run(context.Background(), pipeline.Job{Provider: "minimax"})
	require.ErrorIs(t, err, asyncjob.ErrJobFailed)
	assert.Equal(t, []string{"submit", "error"}, observer.hooks)

	pending, err := store.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRunner_FetchErrorReported(t *testing.T) {
	t.Parallel()

	fetchErr := &asyncjob.TransportError{Op: "fetch", Err: errors.New("reset")}
	runner, observer, _ := newTestRunner(t, &fakeJobClient{fetchErr: fetchErr})

	_, err := runner.Run(context.Background(), pipeline.Job{Provider: "minimax"})
	require.ErrorIs(t, err, asyncjob.ErrTransport)
	assert.Equal(t, []string{"submit", "error"}, observer.hooks)
	assert.Equal(t, "transport_error", observer.events[1].Outcome())
}
