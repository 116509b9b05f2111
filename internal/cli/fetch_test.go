package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scanRows = `[
	{"id":"s1","user_id":"u1","plant_name":"Cassava","confidence":0.91,"scanned_at":"2024-05-30T08:00:00Z"},
	{"id":"s2","user_id":"u1","plant_name":"Tomato","confidence":0.62,"scanned_at":"2024-05-31T08:00:00Z"}
]`

func TestFetch_OnlineThenOffline(t *testing.T) {
	path := tempDB(t)
	srv := (&fakePostgREST{rows: map[string]string{"scans": scanRows}}).start(t)

	out, err := execute(t, NewFetchCommand(testRoot(path, remoteEnv(srv.URL))), "scan")
	require.NoError(t, err)
	assert.Contains(t, out, "2 scan record(s) (online)")
	assert.Contains(t, out, "Cassava")

	// The online read refreshed the cache, so an offline read sees the same rows.
	out, err = execute(t, NewFetchCommand(testRoot(path, nil)), "scan", "--offline")
	require.NoError(t, err)
	assert.Contains(t, out, "2 scan record(s) (offline)")
	assert.Contains(t, out, "Tomato")
}

func TestFetch_JSON(t *testing.T) {
	srv := (&fakePostgREST{rows: map[string]string{"scans": scanRows}}).start(t)
	root := testRoot(tempDB(t), remoteEnv(srv.URL))
	root.Format = "json"

	out, err := execute(t, NewFetchCommand(root), "scan")
	require.NoError(t, err)

	var resp struct {
		Data struct {
			Kind   string           `json:"kind"`
			Online bool             `json:"online"`
			Count  int              `json:"count"`
			Items  []map[string]any `json:"items"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "scan", resp.Data.Kind)
	assert.True(t, resp.Data.Online)
	assert.Equal(t, 2, resp.Data.Count)
	assert.Equal(t, "s1", resp.Data.Items[0]["id"])
}

func TestFetch_OfflineEmptyCache(t *testing.T) {
	out, err := execute(t, NewFetchCommand(testRoot(tempDB(t), nil)), "promo", "--offline")
	require.NoError(t, err)
	assert.Equal(t, "0 promo record(s) (offline)\n", out)
}

func TestFetch_UnknownKind(t *testing.T) {
	_, err := execute(t, NewFetchCommand(testRoot(tempDB(t), nil)), "weather")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestFetch_UnopenableStoreFallsBackToMemory(t *testing.T) {
	srv := (&fakePostgREST{rows: map[string]string{"scans": scanRows}}).start(t)
	missing := filepath.Join(t.TempDir(), "no-such-dir", "leafline.db")

	out, err := execute(t, NewFetchCommand(testRoot(missing, remoteEnv(srv.URL))), "scan")
	require.NoError(t, err)
	assert.Contains(t, out, "2 scan record(s) (online)")
}

func TestStats_UnopenableStoreFallsBackToMemory(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "no-such-dir", "leafline.db")

	out, err := execute(t, NewStatsCommand(testRoot(missing, nil)))
	require.NoError(t, err)
	assert.Contains(t, out, "Operations:  0")
}
