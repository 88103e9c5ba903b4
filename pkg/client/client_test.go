package client_test

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/atomicobject/fswatchd/pkg/client"
	"github.com/atomicobject/fswatchd/pkg/clockspec"
	"github.com/atomicobject/fswatchd/pkg/config"
	"github.com/atomicobject/fswatchd/pkg/registry"
	"github.com/atomicobject/fswatchd/pkg/root"
	"github.com/atomicobject/fswatchd/pkg/server"
	"github.com/atomicobject/fswatchd/pkg/trigger"
	_ "github.com/atomicobject/fswatchd/pkg/watcher/poll"
)

func startDaemon(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "sock")
	logger := log.New(io.Discard, "", 0)
	daemon := clockspec.Daemon{StartTime: 1, Pid: os.Getpid()}
	cfg := config.Daemon{Watcher: "poll"}
	rootCfg := root.Config{WatcherName: "poll", GCInterval: 5 * time.Minute, GCAge: time.Hour}
	reg := registry.New("", rootCfg, daemon, logger)
	triggers := trigger.NewSet(logger)

	srv := server.New(sockPath, daemon, cfg, reg, triggers, logger)
	require.NoError(t, srv.Listen())
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx)
	t.Cleanup(func() {
		cancel()
		srv.Shutdown()
	})
	return sockPath
}

func TestClientWatchAndQuery(t *testing.T) {
	sockPath := startDaemon(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0644))

	var c *client.Client
	var err error
	for i := 0; i < 50; i++ {
		c, err = client.Dial(sockPath)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Watch(dir)
	require.NoError(t, err)

	var resp map[string]interface{}
	for i := 0; i < 20; i++ {
		resp, err = c.Query(dir, map[string]interface{}{})
		require.NoError(t, err)
		if files, ok := resp["files"].([]interface{}); ok && len(files) > 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("query never returned files: %+v", resp)
}

func TestClientGetPid(t *testing.T) {
	sockPath := startDaemon(t)
	c, err := client.Dial(sockPath)
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.GetPid()
	require.NoError(t, err)
	require.Equal(t, float64(os.Getpid()), resp["pid"])
}

func TestClientErrorResponse(t *testing.T) {
	sockPath := startDaemon(t)
	c, err := client.Dial(sockPath)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Query("/no/such/watched/root", map[string]interface{}{})
	require.Error(t, err)
	var clientErr *client.Error
	require.ErrorAs(t, err, &clientErr)
}
