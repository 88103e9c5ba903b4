// Package cookie implements the cookie synchronization protocol (spec
// §4.3): a client-visible sync-to-now that blocks until the daemon's
// notification pipeline has observed a marker file it just created.
// Grounded directly on original_source/CookieSync.{h,cpp}, which has no Go
// analog in the teacher repo.
package cookie

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// ErrTimeout is returned when a sync wait exceeds its deadline.
var ErrTimeout = errors.New("cookie: sync timed out")

// ErrAborted is returned when a recrawl or root teardown aborts an
// outstanding cookie wait; callers of SyncToNow retry once on this error.
var ErrAborted = errors.New("cookie: sync aborted by recrawl")

// Sync is a per-root cookie synchronization engine.
type Sync struct {
	dir    string // directory cookies are created under
	prefix string // "<cookie-dir>/.watchman-cookie-<hostname>-<pid>-"

	mu      sync.Mutex
	pending map[string]*waiter
	serial  uint64
}

type waiter struct {
	done chan error // receives nil on success, ErrAborted on abort
	once sync.Once
}

func (w *waiter) resolve(err error) {
	w.once.Do(func() {
		w.done <- err
		close(w.done)
	})
}

// New constructs a Sync for cookies created under dir, using the current
// hostname and pid to build unique names.
func New(dir string) *Sync {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}
	prefix := filepath.Join(dir, fmt.Sprintf(".watchman-cookie-%s-%d-", hostname, os.Getpid()))
	return &Sync{dir: dir, prefix: prefix, pending: make(map[string]*waiter)}
}

// Prefix returns the cookie filename prefix (sans serial suffix) used to
// recognize cookie paths in the pending collector.
func (s *Sync) Prefix() string { return filepath.Base(s.prefix) }

// sync creates a uniquely named cookie file and returns a channel that
// resolves once notify_cookie observes it (or the wait is aborted).
func (s *Sync) sync() (string, <-chan error, error) {
	serial := atomic.AddUint64(&s.serial, 1)
	name := fmt.Sprintf("%s%d", s.prefix, serial)

	w := &waiter{done: make(chan error, 1)}
	s.mu.Lock()
	s.pending[name] = w
	s.mu.Unlock()

	f, err := os.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0700)
	if err != nil {
		s.mu.Lock()
		delete(s.pending, name)
		s.mu.Unlock()
		return "", nil, errors.Wrap(err, "cookie: create")
	}
	f.Close()

	return name, w.done, nil
}

// SyncToNow creates a cookie and blocks until the watcher pipeline observes
// it or timeout elapses. If a concurrent recrawl aborts the wait, it
// retries once with the remaining time budget, per spec §4.3.
func (s *Sync) SyncToNow(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	retried := false
	for {
		name, done, err := s.sync()
		if err != nil {
			return err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			s.forget(name)
			return ErrTimeout
		}

		select {
		case err := <-done:
			if err == nil {
				return nil
			}
			// Aborted: retry once with whatever time remains.
			if retried {
				return err
			}
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return ErrTimeout
			}
			retried = true
			continue
		case <-time.After(remaining):
			s.forget(name)
			return ErrTimeout
		}
	}
}

func (s *Sync) forget(name string) {
	s.mu.Lock()
	w, ok := s.pending[name]
	if ok {
		delete(s.pending, name)
	}
	s.mu.Unlock()
	if ok {
		w.resolve(ErrTimeout)
		_ = os.Remove(name)
	}
}

// IsCookie reports whether path (absolute) names a cookie this engine
// created, used by the root engine to decide whether an observed path must
// be routed to NotifyCookie instead of (or in addition to) the mutation
// protocol.
func (s *Sync) IsCookie(path string) bool {
	base := filepath.Base(path)
	return len(base) > len(s.Prefix()) && base[:len(s.Prefix())] == s.Prefix()
}

// NotifyCookie is called by the root engine when its crawler/watcher-driver
// observes a path matching the cookie prefix. It resolves and removes the
// matching waiter, unlinking the cookie file.
func (s *Sync) NotifyCookie(path string) {
	name := path
	s.mu.Lock()
	w, ok := s.pending[name]
	if ok {
		delete(s.pending, name)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	w.resolve(nil)
	_ = os.Remove(name)
}

// AbortAll completes every outstanding wait with ErrAborted, called on
// recrawl or root teardown. The cookie files themselves are removed: they
// will never be observed now that the pipeline is being torn down.
func (s *Sync) AbortAll() {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[string]*waiter)
	s.mu.Unlock()

	for name, w := range pending {
		w.resolve(ErrAborted)
		_ = os.Remove(name)
	}
}
