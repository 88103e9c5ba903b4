// Package fakewatcher is a test double for watcher.Watcher, grounded on the
// teacher's stubWatcher in pkg/cache/service_test.go: tests push synthetic
// events instead of relying on real filesystem notifications timing out
// flakily in CI.
package fakewatcher

import (
	"context"
	"sync"
	"time"

	"github.com/atomicobject/fswatchd/pkg/watcher"
)

// Backend is a controllable fake: tests call Push to enqueue events that a
// subsequent WaitNotify/ConsumeNotify pair will observe.
type Backend struct {
	mu       sync.Mutex
	pending  []watcher.Event
	signalCh chan struct{}
	watched  map[string]bool
	closed   bool
	flags    watcher.Flags
}

// New constructs a ready-to-use fake backend.
func New(flags watcher.Flags) *Backend {
	return &Backend{signalCh: make(chan struct{}, 1), watched: make(map[string]bool), flags: flags}
}

func (b *Backend) Init(rootPath string) error         { return nil }
func (b *Backend) Start(ctx context.Context) error     { return nil }
func (b *Backend) StartWatchDir(rel string) error      { b.mark(rel, true); return nil }
func (b *Backend) StopWatchDir(rel string) error       { b.mark(rel, false); return nil }
func (b *Backend) StartWatchFile(rel string) error     { b.mark(rel, true); return nil }
func (b *Backend) StopWatchFile(rel string) error      { b.mark(rel, false); return nil }
func (b *Backend) Flags() watcher.Flags                { return b.flags }

func (b *Backend) mark(rel string, on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if on {
		b.watched[rel] = true
	} else {
		delete(b.watched, rel)
	}
}

// IsWatched reports whether rel currently has an active watch registration.
func (b *Backend) IsWatched(rel string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.watched[rel]
}

// Push enqueues events for the next WaitNotify/ConsumeNotify pair to see.
func (b *Backend) Push(events ...watcher.Event) {
	b.mu.Lock()
	b.pending = append(b.pending, events...)
	b.mu.Unlock()
	select {
	case b.signalCh <- struct{}{}:
	default:
	}
}

func (b *Backend) WaitNotify(timeout time.Duration) bool {
	b.mu.Lock()
	has := len(b.pending) > 0
	b.mu.Unlock()
	if has {
		return true
	}
	select {
	case <-b.signalCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (b *Backend) ConsumeNotify() []watcher.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.pending
	b.pending = nil
	return out
}

func (b *Backend) SignalThreads() {
	select {
	case b.signalCh <- struct{}{}:
	default:
	}
}

func (b *Backend) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (b *Backend) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
