package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/atomicobject/fswatchd/pkg/clockspec"
	"github.com/atomicobject/fswatchd/pkg/config"
	"github.com/atomicobject/fswatchd/pkg/registry"
	"github.com/atomicobject/fswatchd/pkg/root"
	"github.com/atomicobject/fswatchd/pkg/trigger"
	_ "github.com/atomicobject/fswatchd/pkg/watcher/inotify"
	_ "github.com/atomicobject/fswatchd/pkg/watcher/poll"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	return newTestServerWithWatcher(t, "poll")
}

// newTestServerWithWatcher lets a test pick a backend with sub-tick-interval
// event delivery (inotify) when it needs to observe a single newly created
// file promptly, rather than waiting out poll's full recrawl interval.
func newTestServerWithWatcher(t *testing.T, watcherName string) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "sock")
	logger := log.New(io.Discard, "", 0)
	daemon := clockspec.Daemon{StartTime: 1, Pid: os.Getpid()}

	cfg := config.Daemon{Watcher: watcherName, GCIntervalSec: 300, GCAgeSec: 3600}
	rootCfg := root.Config{WatcherName: watcherName, GCInterval: 5 * time.Minute, GCAge: time.Hour}
	reg := registry.New("", rootCfg, daemon, logger)
	triggers := trigger.NewSet(logger)

	srv := New(sockPath, daemon, cfg, reg, triggers, logger)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx)
	t.Cleanup(func() {
		cancel()
		srv.Shutdown()
	})
	return srv, sockPath
}

type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dialClient(t *testing.T, sockPath string) *testClient {
	t.Helper()
	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("unix", sockPath)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *testClient) send(cmd []interface{}) map[string]interface{} {
	c.t.Helper()
	b, err := json.Marshal(cmd)
	require.NoError(c.t, err)
	b = append(b, '\n')
	require.NoError(c.t, c.conn.SetDeadline(time.Now().Add(5*time.Second)))
	_, err = c.conn.Write(b)
	require.NoError(c.t, err)

	line, err := c.r.ReadBytes('\n')
	require.NoError(c.t, err)

	var resp map[string]interface{}
	require.NoError(c.t, json.Unmarshal(line, &resp))
	return resp
}

func TestWatchAndQueryRoundTrip(t *testing.T) {
	_, sockPath := newTestServer(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0644))

	c := dialClient(t, sockPath)

	watchResp := c.send([]interface{}{"watch", dir})
	require.Nil(t, watchResp["error"])

	var queryResp map[string]interface{}
	for i := 0; i < 20; i++ {
		queryResp = c.send([]interface{}{"query", dir, map[string]interface{}{}})
		require.Nil(t, queryResp["error"])
		if files, ok := queryResp["files"].([]interface{}); ok && len(files) > 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("query never returned files: %+v", queryResp)
}

func TestGetPid(t *testing.T) {
	_, sockPath := newTestServer(t)
	c := dialClient(t, sockPath)

	resp := c.send([]interface{}{"get-pid"})
	require.Equal(t, float64(os.Getpid()), resp["pid"])
}

func TestWatchDelUnwatchesRoot(t *testing.T) {
	_, sockPath := newTestServer(t)
	dir := t.TempDir()
	c := dialClient(t, sockPath)

	watchResp := c.send([]interface{}{"watch", dir})
	require.Nil(t, watchResp["error"])

	listResp := c.send([]interface{}{"watch-list"})
	roots, _ := listResp["roots"].([]interface{})
	require.Len(t, roots, 1)

	delResp := c.send([]interface{}{"watch-del", dir})
	require.Equal(t, true, delResp["deleted"])

	listResp = c.send([]interface{}{"watch-list"})
	roots, _ = listResp["roots"].([]interface{})
	require.Empty(t, roots)
}

// TestClockSyncTimeoutResolves exercises cmdClock's sync_timeout option
// end to end: the daemon's own watcher pipeline must observe the cookie
// file SyncToNow creates and let the call return before the timeout, not
// just return immediately because the initial crawl already finished.
func TestClockSyncTimeoutResolves(t *testing.T) {
	_, sockPath := newTestServerWithWatcher(t, "inotify")
	dir := t.TempDir()
	c := dialClient(t, sockPath)

	watchResp := c.send([]interface{}{"watch", dir})
	require.Nil(t, watchResp["error"])

	// Let the initial crawl settle so sync_timeout is genuinely exercising
	// the sync-to-now cookie round trip, not an in-flight crawl wait.
	for i := 0; i < 20; i++ {
		queryResp := c.send([]interface{}{"query", dir, map[string]interface{}{}})
		require.Nil(t, queryResp["error"])
		if _, ok := queryResp["files"]; ok {
			break
		}
		time.Sleep(25 * time.Millisecond)
	}

	clockResp := c.send([]interface{}{"clock", dir, map[string]interface{}{"sync_timeout": float64(2000)}})
	require.Nil(t, clockResp["error"])
	require.NotEmpty(t, clockResp["clock"])
}

// TestStateEnterSyncTimeoutResolves covers the same wiring on the
// state-enter path, which stateChange must also honor per spec §6.
func TestStateEnterSyncTimeoutResolves(t *testing.T) {
	_, sockPath := newTestServerWithWatcher(t, "inotify")
	dir := t.TempDir()
	c := dialClient(t, sockPath)

	watchResp := c.send([]interface{}{"watch", dir})
	require.Nil(t, watchResp["error"])

	enterResp := c.send([]interface{}{"state-enter", dir, map[string]interface{}{
		"name":         "build",
		"sync_timeout": float64(2000),
	}})
	require.Nil(t, enterResp["error"])
	require.Equal(t, "build", enterResp["state-enter"])
}

func TestSubscribePushesOnChange(t *testing.T) {
	_, sockPath := newTestServerWithWatcher(t, "inotify")
	dir := t.TempDir()
	c := dialClient(t, sockPath)

	watchResp := c.send([]interface{}{"watch", dir})
	require.Nil(t, watchResp["error"])

	subResp := c.send([]interface{}{"subscribe", dir, "sub1", map[string]interface{}{}})
	require.Nil(t, subResp["error"])

	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("y"), 0644))

	require.NoError(t, c.conn.SetDeadline(time.Now().Add(10*time.Second)))
	for i := 0; i < 200; i++ {
		line, err := c.r.ReadBytes('\n')
		require.NoError(t, err)
		var push map[string]interface{}
		require.NoError(t, json.Unmarshal(line, &push))
		if push["subscription"] == "sub1" {
			files, _ := push["files"].([]interface{})
			require.NotEmpty(t, files)
			return
		}
	}
	t.Fatal("never observed a push for sub1")
}
