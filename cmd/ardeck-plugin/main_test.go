package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sdk "github.com/project-ardeck/ardeck-plugin-sdk"
	"github.com/project-ardeck/ardeck-plugin-sdk/manifest"
	"github.com/project-ardeck/ardeck-plugin-sdk/protocol"
	"github.com/project-ardeck/ardeck-plugin-sdk/studiotest"
)

func TestParsePort(t *testing.T) {
	tests := []struct {
		in      string
		want    uint16
		wantErr bool
	}{
		{"3000", 3000, false},
		{"65535", 65535, false},
		{"0", 0, true},
		{"65536", 0, true},
		{"-1", 0, true},
		{"port", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := parsePort(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestRootCmd_Args(t *testing.T) {
	for _, args := range [][]string{{}, {"1", "2"}, {"not-a-port"}} {
		cmd := newRootCmd()
		cmd.SetArgs(args)
		cmd.SetOut(io.Discard)
		cmd.SetErr(io.Discard)
		assert.Error(t, cmd.Execute(), "%v", args)
	}
}

type logRecorder struct {
	lines []string
	err   error
}

func (r *logRecorder) Log(text string) error {
	r.lines = append(r.lines, text)
	return r.err
}

func TestSampleActions(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	rec := &logRecorder{}
	actions := sampleActions(rec, logger)
	require.Len(t, actions, 2)

	action := protocol.Action{
		Switch: protocol.SwitchInfo{Type: protocol.SwitchTypeAnalog, ID: 4, State: 512, Timestamp: 1700000000000},
		Target: protocol.ActionTarget{PluginID: "P", ActionID: "hello"},
	}
	require.NoError(t, actions["hello"](context.Background(), action))
	assert.Contains(t, buf.String(), "Hello Ardeck!")
	assert.Contains(t, buf.String(), "switch_type=Analog")

	require.NoError(t, actions["ping"](context.Background(), action))
	assert.Equal(t, []string{"pong"}, rec.lines)

	rec.err = sdk.ErrNotReady
	assert.ErrorIs(t, actions["ping"](context.Background(), action), sdk.ErrNotReady)
}

func TestMetricsRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := sdk.NewMetrics(reg)
	p := sdk.New(testManifest(), sdk.WithMetrics(m))

	srv := httptest.NewServer(newMetricsRouter(reg, p.State))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "none", string(body))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "ardeck_plugin_state 0")
}

func testManifest() manifest.Manifest {
	return manifest.Manifest{Name: "sample", Version: "0.0.1", ID: "P", Main: "ardeck-plugin"}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "manifest.json")
	require.NoError(t, os.WriteFile(manifestPath, []byte(
		`{"name":"sample","version":"0.0.1","id":"P","main":"ardeck-plugin"}`,
	), 0o644))
	t.Setenv("ARDECK_MANIFEST_PATH", manifestPath)
	t.Setenv("ARDECK_LOG_DIR", filepath.Join(dir, "logs"))
	t.Setenv("ARDECK_LOG_LEVEL", "debug")

	studio := studiotest.NewServer()
	defer studio.Close()
	port, err := parsePort(studio.Port())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- run(ctx, port, "") }()

	require.NoError(t, studio.WaitConnected(2*time.Second))
	hello, err := studio.Handshake(2*time.Second, protocol.Success{StudioVersion: "1.0.0", ProtocolVersion: "0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, "P", hello.PluginID)

	require.NoError(t, studio.Send(protocol.Action{
		Switch: protocol.SwitchInfo{Type: protocol.SwitchTypeDigital, ID: 1, State: 1},
		Target: protocol.ActionTarget{PluginID: "P", ActionID: "ping"},
	}))
	m, err := studio.NextMessage(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, protocol.Notice{ID: "log", Text: "pong"}, m)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancel")
	}

	logs, err := os.ReadDir(filepath.Join(dir, "logs"))
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestRun_DroppedConnection(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "manifest.json")
	require.NoError(t, os.WriteFile(manifestPath, []byte(
		`{"name":"sample","version":"0.0.1","id":"P","main":"ardeck-plugin"}`,
	), 0o644))
	t.Setenv("ARDECK_MANIFEST_PATH", manifestPath)
	t.Setenv("ARDECK_LOG_DIR", filepath.Join(dir, "logs"))

	studio := studiotest.NewServer()
	defer studio.Close()
	port, err := parsePort(studio.Port())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- run(context.Background(), port, "") }()

	require.NoError(t, studio.WaitConnected(2*time.Second))
	_, err = studio.Handshake(2*time.Second, protocol.Success{StudioVersion: "1.0.0", ProtocolVersion: "0.0.1"})
	require.NoError(t, err)
	require.NoError(t, studio.DropConn())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after the connection dropped")
	}

	logs, err := os.ReadDir(filepath.Join(dir, "logs"))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	content, err := os.ReadFile(filepath.Join(dir, "logs", logs[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(content), "studio session ended with error")
}

func TestRun_MissingManifest(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ARDECK_MANIFEST_PATH", filepath.Join(dir, "missing.json"))
	t.Setenv("ARDECK_LOG_DIR", filepath.Join(dir, "logs"))

	err := run(context.Background(), 3000, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
