// Package objectstore_test tests the NATS object store implementation.
package objectstore_test

import (
	"context"
	"testing"

	"github.com/JanetCheng0311/MARIE/internal/objectstore"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StartTestServer starts an in-memory NATS server for testing purposes.
func StartTestServer(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&opts)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	return natsServer, natsConnection
}

func TestNatsObjectStore_UploadDownload(t *testing.T) {
	t.Parallel()

	natsServer, natsConnection := StartTestServer(t)
	defer natsServer.Shutdown()
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := objectstore.New(jetstreamContext, "MARIE_AUDIO", 0)
	require.NoError(t, err)

	ctx := context.Background()
	key := "3f1c2a.mp3"
	clip := []byte("ID3 fake mp3 payload")

	require.NoError(t, store.Upload(ctx, key, clip))

	downloaded, err := store.Download(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, clip, downloaded)

	bucket, err := jetstreamContext.ObjectStore("MARIE_AUDIO")
	require.NoError(t, err)

	info, err := bucket.GetInfo(key)
	require.NoError(t, err)
	assert.Equal(t, "audio/mpeg", info.Headers.Get("Content-Type"))
}

func TestNatsObjectStore_BindsExistingBucket(t *testing.T) {
	t.Parallel()

	natsServer, natsConnection := StartTestServer(t)
	defer natsServer.Shutdown()
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	first, err := objectstore.New(jetstreamContext, "MARIE_TEXT", 0)
	require.NoError(t, err)
	require.NoError(t, first.Upload(context.Background(), "page-1", []byte("你好")))

	second, err := objectstore.New(jetstreamContext, "MARIE_TEXT", 0)
	require.NoError(t, err)

	text, err := second.Download(context.Background(), "page-1")
	require.NoError(t, err)
	assert.Equal(t, "你好", string(text))
}

func TestNatsObjectStore_MissingKey(t *testing.T) {
	t.Parallel()

	natsServer, natsConnection := StartTestServer(t)
	defer natsServer.Shutdown()
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := objectstore.New(jetstreamContext, "MARIE_TEXT", 0)
	require.NoError(t, err)

	_, err = store.Download(context.Background(), "nope")
	require.ErrorIs(t, err, objectstore.ErrObjectNotFound)
}
