package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"maps"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/leafline/internal/entity"
	"github.com/roach88/leafline/internal/logging"
	"github.com/roach88/leafline/internal/store"
	"github.com/roach88/leafline/internal/usage"
)

var testNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

// testRoot returns options pinned to dbPath, UTC, a fixed clock and an
// isolated environment.
func testRoot(dbPath string, env map[string]string) *RootOptions {
	environ := map[string]string{"LEAFLINE_TIMEZONE": "UTC"}
	maps.Copy(environ, env)
	return &RootOptions{
		Format:   "text",
		Database: dbPath,
		Environ:  environ,
		Now:      func() time.Time { return testNow },
	}
}

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "leafline.db")
}

// withLocal opens the SQLite store at path, runs fn and closes it again.
func withLocal(t *testing.T, path string, fn func(ctx context.Context, local *store.Local)) {
	t.Helper()
	st, err := store.Open(path)
	require.NoError(t, err)
	local := store.NewLocal(st)
	fn(context.Background(), local)
	require.NoError(t, local.Close())
}

func seedUsage(t *testing.T, local *store.Local, ops map[string]float64, calls []string) {
	t.Helper()
	gov := usage.NewGovernor(local, usage.DefaultConfig(),
		usage.WithClock(func() time.Time { return testNow }),
		usage.WithLocation(time.UTC),
		usage.WithLogger(logging.Discard()),
	)
	for _, name := range calls {
		gov.RecordOperation(context.Background(), name, ops[name])
	}
}

func enqueue(t *testing.T, local *store.Local, opID string, e entity.Entity, at time.Time) entity.PendingOperation {
	t.Helper()
	op, err := entity.NewPendingOperation(opID, e, at)
	require.NoError(t, err)
	op, err = local.Enqueue(context.Background(), op)
	require.NoError(t, err)
	return op
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// fakePostgREST answers like a PostgREST endpoint: GET returns rows,
// POST echoes the body back as the stored representation.
type fakePostgREST struct {
	rows   map[string]string // table -> JSON array body
	status int               // forced status for POST when non-zero
}

func (f *fakePostgREST) start(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		table := strings.TrimPrefix(r.URL.Path, "/rest/v1/")
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			if table == "" {
				w.WriteHeader(http.StatusOK)
				return
			}
			body, ok := f.rows[table]
			if !ok {
				body = "[]"
			}
			_, _ = io.WriteString(w, body)
		case http.MethodPost:
			if f.status != 0 {
				w.WriteHeader(f.status)
				_, _ = io.WriteString(w, `{"message":"unavailable"}`)
				return
			}
			var row map[string]any
			if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode([]map[string]any{row})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func remoteEnv(url string) map[string]string {
	return map[string]string{
		"LEAFLINE_REMOTE_URL":     url,
		"LEAFLINE_REMOTE_API_KEY": "anon-key",
	}
}
