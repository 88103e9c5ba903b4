package root

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomicobject/fswatchd/pkg/clockspec"
	"github.com/atomicobject/fswatchd/pkg/watcher"
	"github.com/atomicobject/fswatchd/pkg/watcher/fakewatcher"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestRoot(t *testing.T, cfg Config) (*Root, *fakewatcher.Backend) {
	t.Helper()
	dir := t.TempDir()
	fw := fakewatcher.New(0)
	r := newWithWatcher(1, dir, cfg, clockspec.Daemon{StartTime: 1000, Pid: 42}, testLogger(), fw)
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(r.Cancel)
	return r, fw
}

func waitForCrawl(t *testing.T, r *Root) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.WaitForCrawl(ctx))
}

func TestInitialCrawlDiscoversExistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("yo"), 0o644))

	fw := fakewatcher.New(0)
	r := newWithWatcher(1, dir, DefaultConfig(), clockspec.Daemon{StartTime: 1, Pid: 1}, testLogger(), fw)
	require.NoError(t, r.Start(context.Background()))
	defer r.Cancel()

	waitForCrawl(t, r)

	r.Tree().RLock()
	_, aOk := r.Tree().ChildFile(r.Tree().RootDir(), "a.txt")
	subID, subOk := r.Tree().ChildDir(r.Tree().RootDir(), "sub")
	r.Tree().RUnlock()

	assert.True(t, aOk)
	require.True(t, subOk)

	r.Tree().RLock()
	_, bOk := r.Tree().ChildFile(subID, "b.txt")
	r.Tree().RUnlock()
	assert.True(t, bOk)
}

func TestTickAdvancesOnEachObservedChange(t *testing.T) {
	r, _ := newTestRoot(t, DefaultConfig())
	waitForCrawl(t, r)

	before := r.Tree().Tick()
	require.NoError(t, os.WriteFile(filepath.Join(r.Path, "new.txt"), []byte("x"), 0o644))
	r.Pending().Add("new.txt", time.Now(), 0)
	r.Pending().Ping()

	require.Eventually(t, func() bool {
		r.Tree().RLock()
		defer r.Tree().RUnlock()
		return r.Tree().Tick() > before
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNotifyOverflowTriggersRecrawl(t *testing.T) {
	r, fw := newTestRoot(t, DefaultConfig())
	waitForCrawl(t, r)

	r.Tree().RLock()
	before := r.Tree().RecrawlCount()
	r.Tree().RUnlock()

	fw.Push(watcher.Event{Overflowed: true})

	require.Eventually(t, func() bool {
		r.Tree().RLock()
		defer r.Tree().RUnlock()
		return r.Tree().RecrawlCount() > before
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDeletedFileMarkedNonExistent(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "gone.txt")
	require.NoError(t, os.WriteFile(target, []byte("bye"), 0o644))

	fw := fakewatcher.New(0)
	r := newWithWatcher(1, dir, DefaultConfig(), clockspec.Daemon{StartTime: 1, Pid: 1}, testLogger(), fw)
	require.NoError(t, r.Start(context.Background()))
	defer r.Cancel()
	waitForCrawl(t, r)

	r.Tree().RLock()
	id, ok := r.Tree().ChildFile(r.Tree().RootDir(), "gone.txt")
	r.Tree().RUnlock()
	require.True(t, ok)

	require.NoError(t, os.Remove(target))
	r.Pending().Add("gone.txt", time.Now(), 0)
	r.Pending().Ping()

	require.Eventually(t, func() bool {
		r.Tree().RLock()
		defer r.Tree().RUnlock()
		f, ok := r.Tree().File(id)
		return ok && !f.Exists
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCancelEmitsFinalPublisherItem(t *testing.T) {
	r, _ := newTestRoot(t, DefaultConfig())
	waitForCrawl(t, r)

	notified := make(chan struct{}, 1)
	sub := r.Publisher().Subscribe(func() {
		select {
		case notified <- struct{}{}:
		default:
		}
	})
	defer sub.Cancel()

	r.Cancel()

	select {
	case <-notified:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a notification on cancel")
	}

	items := r.Publisher().GetPending(sub)
	require.NotEmpty(t, items)
	payload, ok := items[len(items)-1].Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, payload["canceled"])
}

func TestClockFingerprintMatchesDaemonIdentity(t *testing.T) {
	r, _ := newTestRoot(t, DefaultConfig())
	clock := r.Clock()

	spec, err := clockspec.Parse(clock)
	require.NoError(t, err)
	assert.True(t, spec.Ticked)
	assert.Equal(t, int64(1000), spec.StartTime)
	assert.Equal(t, 42, spec.Pid)
	assert.Equal(t, 1, spec.RootNum)
}
