package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeAnswersUntilCancelled(t *testing.T) {
	db := fixtureDB(t)
	rootOpts := &RootOptions{Format: "text"}
	rootOpts.Overrides.DSN = db

	addrs := make(chan net.Addr, 1)
	opts := &ServeOptions{RootOptions: rootOpts, Listen: "127.0.0.1:0", MaxBodyBytes: 1 << 20}
	opts.OnListen = func(addr net.Addr) { addrs <- addr }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &bytes.Buffer{}
	cmd := NewServeCommand(rootOpts)
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetContext(ctx)

	done := make(chan error, 1)
	go func() {
		done <- runServe(opts, cmd)
	}()

	var base string
	select {
	case addr := <-addrs:
		base = "http://" + addr.String()
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Post(base+"/url", "application/json", strings.NewReader(`[{"url":"http://a"},{"url":"http://a","status":200}]`))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.JSONEq(t, `[1,1]`, string(body))

	resp, err = http.Get(base + "/url/1")
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
	resp.Body.Close()
	require.Len(t, rows, 1)
	assert.Equal(t, float64(200), rows[0]["status"])

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Contains(t, out.String(), "Listening on 127.0.0.1:")
}

func TestServeListenError(t *testing.T) {
	db := fixtureDB(t)
	_, err := execute(t, "", "--dsn", db, "serve", "--listen", "256.0.0.1:bad")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to listen")
}
