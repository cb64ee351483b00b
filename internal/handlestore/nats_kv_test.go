package handlestore_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/JanetCheng0311/MARIE/internal/asyncjob"
	"github.com/JanetCheng0311/MARIE/internal/core"
	"github.com/JanetCheng0311/MARIE/internal/handlestore"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) (*server.Server, nats.JetStreamContext) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&opts)
	t.Cleanup(natsServer.Shutdown)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	require.NoError(t, err)
	t.Cleanup(natsConnection.Close)

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	return natsServer, jetstreamContext
}

func TestNatsHandleStore_Lifecycle(t *testing.T) {
	t.Parallel()

	_, jetstreamContext := startTestServer(t)
	ctx := context.Background()

	store, err := handlestore.New(jetstreamContext, "handles", 0)
	require.NoError(t, err)

	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	entry := core.PendingJob{
		Key:      "minimax.42",
		Provider: "minimax",
		Handle:   asyncjob.Handle{TaskID: "42", SubmittedAt: time.Date(2026, 1, 8, 10, 0, 0, 0, time.UTC)},
		Context:  json.RawMessage(`{"reply":"_INBOX.x"}`),
	}

	require.NoError(t, store.Save(ctx, entry.Key, entry))

	loaded, err := store.Load(ctx, entry.Key)
	require.NoError(t, err)
	assert.Equal(t, "42", loaded.Handle.TaskID)
	assert.True(t, entry.Handle.SubmittedAt.Equal(loaded.Handle.SubmittedAt))
	assert.JSONEq(t, `{"reply":"_INBOX.x"}`, string(loaded.Context))

	pending, err = store.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, store.Delete(ctx, entry.Key))
	require.NoError(t, store.Delete(ctx, "never-saved"))

	_, err = store.Load(ctx, entry.Key)
	require.ErrorIs(t, err, handlestore.ErrNotFound)

	pending, err = store.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestNatsHandleStore_BindsExistingBucket(t *testing.T) {
	t.Parallel()

	_, jetstreamContext := startTestServer(t)
	ctx := context.Background()

	first, err := handlestore.New(jetstreamContext, "handles", time.Hour)
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, "gradio.evt-1", core.PendingJob{Key: "gradio.evt-1"}))

	second, err := handlestore.New(jetstreamContext, "handles", time.Hour)
	require.NoError(t, err)

	loaded, err := second.Load(ctx, "gradio.evt-1")
	require.NoError(t, err)
	assert.Equal(t, "gradio.evt-1", loaded.Key)
}
