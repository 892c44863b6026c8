package main

import (
	"context"
	"math/rand"
	"net/http"
	"testing"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.livesweep.dev/core/games"
	"go.livesweep.dev/core/keepalive"
	"go.livesweep.dev/core/minesweeper"
	"go.livesweep.dev/core/remote/wsstore"
)

func TestConfigParsing(t *testing.T) {
	var executed, err = parseArgs(
		"serve",
		"--sweepd.port=9090",
		"--sweepd.cleanup-interval=30s",
		"--etcd.prefix=/test",
	)
	require.NoError(t, err)
	assert.IsType(t, &cmdServe{}, executed)

	assert.Equal(t, "memory", Config.Sweepd.Store)
	assert.Equal(t, uint16(9090), Config.Sweepd.Port)
	assert.Equal(t, ":9090", Config.Sweepd.ListenAddr())
	assert.Equal(t, "/store", Config.Sweepd.StorePath)
	assert.Equal(t, 30*time.Second, Config.Sweepd.CleanupInterval)
	assert.Equal(t, "/test", Config.Etcd.Prefix)
	assert.Equal(t, "/metrics", Config.Diagnostics.MetricsPath)

	_, err = parseArgs("serve", "--sweepd.store=redis")
	assert.Error(t, err)
}

func TestServeMemoryStore(t *testing.T) {
	var _, err = parseArgs("serve", "--sweepd.cleanup-interval=10ms")
	require.NoError(t, err)

	ln, err := keepalive.Listen("127.0.0.1:0", time.Minute)
	require.NoError(t, err)

	var ctx, cancel = context.WithCancel(context.Background())
	var doneCh = make(chan error, 1)
	go func() { doneCh <- serve(ctx, http.NewServeMux(), ln) }()

	client, err := wsstore.Dial(context.Background(), "ws://"+ln.Addr().String()+"/store")
	require.NoError(t, err)

	// Games created through the served store survive periodic cleanups.
	var dir = games.NewDirectory(client, rand.New(rand.NewSource(1)))
	code, err := dir.Create(ctx, minesweeper.Sizes[0], time.Now())
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	ok, err := dir.Exists(ctx, code)
	require.NoError(t, err)
	assert.True(t, ok)

	snap, err := client.Read(ctx, games.GamePath(code)+"/state")
	require.NoError(t, err)
	assert.Equal(t, string(minesweeper.Play), snap.Val())

	codes, err := dir.Codes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{code}, codes)

	require.NoError(t, client.Close())
	cancel()
	assert.NoError(t, <-doneCh)
}

// parseArgs parses |args| into Config, returning the command which would
// have been executed.
func parseArgs(args ...string) (flags.Commander, error) {
	var parser = newParser()
	var executed flags.Commander

	parser.CommandHandler = func(cmd flags.Commander, _ []string) error {
		executed = cmd
		return nil
	}
	var _, err = parser.ParseArgs(args)
	return executed, err
}
