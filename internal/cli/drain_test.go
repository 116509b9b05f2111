package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/leafline/internal/entity"
	"github.com/roach88/leafline/internal/store"
)

func seedPending(t *testing.T, path string) {
	t.Helper()
	withLocal(t, path, func(_ context.Context, local *store.Local) {
		enqueue(t, local, "op-1", entity.ScanRecord{ID: "s1", PlantName: "Cassava"}, testNow)
		enqueue(t, local, "op-2", entity.DirectoryRecord{ID: "d1", Name: "Agro Hub"}, testNow)
	})
}

func TestDrain_ReplaysQueue(t *testing.T) {
	path := tempDB(t)
	seedPending(t, path)
	srv := (&fakePostgREST{}).start(t)

	out, err := execute(t, NewDrainCommand(testRoot(path, remoteEnv(srv.URL))))
	require.NoError(t, err)
	assert.Equal(t, "Replayed 2 of 2 pending write(s).\nRemaining:     0\n", out)

	withLocal(t, path, func(ctx context.Context, local *store.Local) {
		n, err := local.PendingCount(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		cached, err := local.Entities(ctx, entity.KindDirectory)
		require.NoError(t, err)
		require.Len(t, cached, 1)
		assert.Equal(t, "d1", cached[0].EntityID())

		rec, ok, err := local.Usage(ctx, "2024-06-01")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(2), rec.OperationCount)
	})
}

func TestDrain_RemoteDownKeepsQueue(t *testing.T) {
	path := tempDB(t)
	seedPending(t, path)
	srv := (&fakePostgREST{status: http.StatusServiceUnavailable}).start(t)
	root := testRoot(path, remoteEnv(srv.URL))
	root.Format = "json"

	out, err := execute(t, NewDrainCommand(root))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Data DrainResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 2, resp.Data.Failed)
	assert.Equal(t, 2, resp.Data.Remaining)
	assert.Len(t, resp.Data.Failures, 2)
}

func TestDrain_RejectedGoesToDeadLetters(t *testing.T) {
	path := tempDB(t)
	seedPending(t, path)
	srv := (&fakePostgREST{status: http.StatusConflict}).start(t)

	_, err := execute(t, NewDrainCommand(testRoot(path, remoteEnv(srv.URL))))
	require.NoError(t, err)

	withLocal(t, path, func(ctx context.Context, local *store.Local) {
		dls, err := local.DeadLetters(ctx)
		require.NoError(t, err)
		assert.Len(t, dls, 2)
	})
}

func TestDrain_RequiresRemote(t *testing.T) {
	_, err := execute(t, NewDrainCommand(testRoot(tempDB(t), nil)))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "remote.url")
}

func TestDrain_ExpiredCredentialsKeepQueue(t *testing.T) {
	path := tempDB(t)
	seedPending(t, path)
	srv := (&fakePostgREST{status: http.StatusUnauthorized}).start(t)

	_, err := execute(t, NewDrainCommand(testRoot(path, remoteEnv(srv.URL))))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	withLocal(t, path, func(ctx context.Context, local *store.Local) {
		n, err := local.PendingCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		dls, err := local.DeadLetters(ctx)
		require.NoError(t, err)
		assert.Empty(t, dls)
	})
}

func TestDrain_UnopenableStoreFails(t *testing.T) {
	srv := (&fakePostgREST{}).start(t)
	missing := filepath.Join(t.TempDir(), "no-such-dir", "leafline.db")

	_, err := execute(t, NewDrainCommand(testRoot(missing, remoteEnv(srv.URL))))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to open local store")
}
