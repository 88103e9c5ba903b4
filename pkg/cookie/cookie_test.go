package cookie

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// findCookie polls dir for the single file s recognizes as a cookie,
// standing in for the root engine's notify/crawl pipeline observing it.
// Deliberately free of any *testing.T use (including require) since it
// runs on a background goroutine, where a failed assertion can't safely
// fail the test.
func findCookie(s *Sync, dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		abs := filepath.Join(dir, e.Name())
		if s.IsCookie(abs) {
			return abs, true
		}
	}
	return "", false
}

// TestSyncToNowResolvesOnNotify exercises the sync-to-now round trip end to
// end: SyncToNow creates a cookie file and blocks; a stand-in watcher
// goroutine observes it via IsCookie/NotifyCookie, the same way the root
// engine's IO thread resolves one during batch processing.
func TestSyncToNowResolvesOnNotify(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if abs, ok := findCookie(s, dir); ok {
				s.NotifyCookie(abs)
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	require.NoError(t, s.SyncToNow(2*time.Second))

	remaining, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, remaining, "resolved cookie file must be removed")
}

// TestSyncToNowTimesOutWhenNeverObserved covers the case where nothing
// ever calls NotifyCookie — the deadline must fire and the cookie file
// must be cleaned up rather than left behind.
func TestSyncToNowTimesOutWhenNeverObserved(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	start := time.Now()
	err := s.SyncToNow(50 * time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	require.WithinDuration(t, start.Add(50*time.Millisecond), time.Now(), 200*time.Millisecond)

	remaining, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, remaining, "timed-out cookie file must be removed")
}

// TestAbortAllRetriesThenResolves matches spec §4.3's "a concurrent
// recrawl aborts the wait; SyncToNow retries once with the remaining time
// budget" behavior.
func TestAbortAllRetriesThenResolves(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	go func() {
		// Abort the first cookie, then resolve whichever one SyncToNow
		// creates on its retry.
		for {
			if _, ok := findCookie(s, dir); ok {
				s.AbortAll()
				break
			}
			time.Sleep(2 * time.Millisecond)
		}
		for {
			if abs, ok := findCookie(s, dir); ok {
				s.NotifyCookie(abs)
				return
			}
			time.Sleep(2 * time.Millisecond)
		}
	}()

	require.NoError(t, s.SyncToNow(2*time.Second))
}

func TestIsCookieRecognizesItsOwnPrefixOnly(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	require.True(t, s.IsCookie(filepath.Join(dir, s.Prefix()+"1")))
	require.False(t, s.IsCookie(filepath.Join(dir, "not-a-cookie.txt")))
	require.False(t, s.IsCookie(filepath.Join(dir, "other-prefix-1")))
}
