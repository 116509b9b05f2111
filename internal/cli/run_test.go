package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ServesMetricsAndDrainsOnConnect(t *testing.T) {
	path := tempDB(t)
	seedPending(t, path)
	srv := (&fakePostgREST{}).start(t)

	root := testRoot(path, remoteEnv(srv.URL))
	cmd := NewRunCommand(root)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cmd.SetContext(ctx)

	ready := make(chan string, 1)
	opts := &RunOptions{
		RootOptions: root,
		MetricsAddr: "127.0.0.1:0",
		Ready:       func(addr string) { ready <- addr },
	}

	done := make(chan error, 1)
	go func() { done <- runAgent(opts, cmd) }()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("run exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not become ready")
	}

	scrape := func() string {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return ""
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return string(body)
	}

	// The first probe succeeds, connectivity flips online and the queue drains.
	require.Eventually(t, func() bool {
		body := scrape()
		return strings.Contains(body, "leafline_connectivity_online 1") &&
			strings.Contains(body, `leafline_sync_replays_total{kind="directory",result="confirmed"} 1`) &&
			strings.Contains(body, `leafline_sync_replays_total{kind="scan",result="confirmed"} 1`)
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
	assert.Contains(t, out.String(), "Sync agent started")
}

func TestRun_RequiresRemote(t *testing.T) {
	_, err := execute(t, NewRunCommand(testRoot(tempDB(t), nil)))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRun_InvalidSchedule(t *testing.T) {
	srv := (&fakePostgREST{}).start(t)
	env := remoteEnv(srv.URL)
	env["LEAFLINE_SYNC_SCHEDULE"] = "whenever"

	_, err := execute(t, NewRunCommand(testRoot(tempDB(t), env)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid sync schedule")
}
