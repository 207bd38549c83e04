package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	gloom "github.com/jcalabro/gloomd"
	"github.com/jcalabro/gloomd/internal/service"
)

func startDaemon(t *testing.T) string {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "gloomd.sock")
	server := service.NewSocketServer(service.ServerConfig{
		Network:         "unix",
		Address:         socketPath,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		MaxRequestBytes: 1 << 24,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	service.NewHandlers(gloom.NewRegistry(), gloom.DefaultParams()).Register(server)

	listener, err := server.Listen()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, listener)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return socketPath
}

func ctl(t *testing.T, socketPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(append([]string{"--socket", socketPath}, args...), &out, io.Discard)
	return out.String(), err
}

func TestCommands(t *testing.T) {
	socketPath := startDaemon(t)

	out, err := ctl(t, socketPath, "init", "visitors", "10000", "0.1", "1234")
	require.NoError(t, err)
	require.Equal(t, "OK\n", out)

	out, err = ctl(t, socketPath, "add", "visitors", "alice")
	require.NoError(t, err)
	require.Equal(t, "OK\n", out)

	_, err = ctl(t, socketPath, "add", "visitors", "bob", "carol")
	require.NoError(t, err)

	out, err = ctl(t, socketPath, "exists", "visitors", "alice")
	require.NoError(t, err)
	require.Equal(t, "1\n", out)

	out, err = ctl(t, socketPath, "exists", "visitors", "bob", "mallory")
	require.NoError(t, err)
	require.Equal(t, "1\n0\n", out)

	out, err = ctl(t, socketPath, "info", "visitors")
	require.NoError(t, err)
	require.Contains(t, out, "capacity:          10,000")
	require.Contains(t, out, "bits:              47,926")
	require.Contains(t, out, "items added:       3")

	_, err = ctl(t, socketPath, "init", "other", "10000", "0.1", "1234")
	require.NoError(t, err)
	_, err = ctl(t, socketPath, "add", "other", "dave")
	require.NoError(t, err)
	_, err = ctl(t, socketPath, "merge", "visitors", "other")
	require.NoError(t, err)

	out, err = ctl(t, socketPath, "exists", "visitors", "dave")
	require.NoError(t, err)
	require.Equal(t, "1\n", out)

	out, err = ctl(t, socketPath, "list")
	require.NoError(t, err)
	require.Equal(t, "other\nvisitors\n", out)

	out, err = ctl(t, socketPath, "status")
	require.NoError(t, err)
	require.Contains(t, out, "filters: 2")

	_, err = ctl(t, socketPath, "del", "other")
	require.NoError(t, err)

	_, err = ctl(t, socketPath, "del", "other")
	require.ErrorIs(t, err, gloom.ErrNotFound)
}

func TestDumpRestore(t *testing.T) {
	socketPath := startDaemon(t)
	file := filepath.Join(t.TempDir(), "visitors.dump")

	_, err := ctl(t, socketPath, "init", "visitors", "1000")
	require.NoError(t, err)
	_, err = ctl(t, socketPath, "add", "visitors", "alice")
	require.NoError(t, err)

	out, err := ctl(t, socketPath, "dump", "visitors", file)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "wrote "), out)

	out, err = ctl(t, socketPath, "restore", "copy", file)
	require.NoError(t, err)
	require.Contains(t, out, "name:              copy")

	_, err = ctl(t, socketPath, "restore", "copy", file)
	require.ErrorIs(t, err, gloom.ErrExists)

	_, err = ctl(t, socketPath, "restore", "copy", file, "--replace")
	require.NoError(t, err)

	out, err = ctl(t, socketPath, "exists", "copy", "alice")
	require.NoError(t, err)
	require.Equal(t, "1\n", out)
}

func TestUsageErrors(t *testing.T) {
	socketPath := startDaemon(t)

	for _, args := range [][]string{
		{},
		{"init"},
		{"init", "a", "1", "0.1", "2", "extra"},
		{"add", "a"},
		{"exists", "a"},
		{"merge", "a"},
		{"del"},
		{"dump", "a"},
		{"restore", "a"},
	} {
		_, err := ctl(t, socketPath, args...)
		var usage usageError
		require.ErrorAs(t, err, &usage, "args %v", args)
	}

	_, err := ctl(t, socketPath, "bf.reserve")
	require.ErrorContains(t, err, "unknown command")

	_, err = ctl(t, socketPath, "init", "a", "many")
	require.ErrorContains(t, err, "capacity")

	_, err = ctl(t, socketPath, "init", "a", "100", "2")
	require.ErrorIs(t, err, gloom.ErrInvalidParams)
}

func TestTCPRequiresAddress(t *testing.T) {
	err := run([]string{"--network", "tcp", "list"}, io.Discard, io.Discard)
	require.ErrorContains(t, err, "--address")
}

func TestDebugPrintsResponses(t *testing.T) {
	socketPath := startDaemon(t)

	var out, debug bytes.Buffer
	err := run([]string{"--socket", socketPath, "--debug", "init", "k"}, &out, &debug)
	require.NoError(t, err)
	require.Equal(t, "OK\n", out.String())
	require.True(t, strings.HasPrefix(debug.String(), `init: {"ok": true`), debug.String())

	debug.Reset()
	err = run([]string{"--socket", socketPath, "--debug", "info", "missing"}, io.Discard, &debug)
	require.ErrorIs(t, err, gloom.ErrNotFound)
	require.Contains(t, debug.String(), `"not_found"`)
}
