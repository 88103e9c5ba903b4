// Package inotify is the concrete event-stream OS-watcher backend, built on
// fsnotify (the teacher's exact watcher dependency — cache.Watcher /
// fsNotifyWatcher in pkg/cache/service.go). It registers one watch per
// directory (fsnotify has no native recursive mode), which matches spec
// §4.7's "per-directory backends require re-registration after
// rename/move-out" behavior, and surfaces fsnotify's own ErrEventOverflow
// as the NeedsRecursiveRescan signal instead of reaching for raw
// platform-specific queue-overflow syscalls.
package inotify

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/atomicobject/fswatchd/pkg/watcher"
)

// Name is the backend identifier used in config/CLI (watcher=inotify).
const Name = "inotify"

// Priority registers this backend ahead of the poll fallback under
// watcher=auto.
const Priority = 100

func init() {
	watcher.Register(Name, Priority, func() watcher.Watcher { return &Backend{} })
}

// Backend adapts an *fsnotify.Watcher to the watcher.Watcher contract.
type Backend struct {
	rootPath string
	w        *fsnotify.Watcher

	mu        sync.Mutex
	pending   []watcher.Event
	signalCh  chan struct{}
	overflows bool
}

// Init opens the underlying fsnotify watcher for rootPath.
func (b *Backend) Init(rootPath string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	b.rootPath = rootPath
	b.w = w
	b.signalCh = make(chan struct{}, 1)
	return nil
}

// Start begins the background goroutine that translates fsnotify events
// into watcher.Event values. It returns immediately; fsnotify watches are
// ready to deliver events as soon as Init succeeds.
func (b *Backend) Start(ctx context.Context) error {
	go b.loop(ctx)
	return nil
}

func (b *Backend) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-b.w.Events:
			if !ok {
				return
			}
			b.record(translate(evt))
		case err, ok := <-b.w.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				b.record(watcher.Event{Overflowed: true})
			}
			// Other errors (e.g. a single Add() racing a deleted
			// directory) are not fatal to the stream; the crawler will
			// notice the path is gone on its next stat.
		}
	}
}

func translate(evt fsnotify.Event) watcher.Event {
	out := watcher.Event{Path: evt.Name}
	switch {
	case evt.Op&fsnotify.Create == fsnotify.Create:
		out.Created = true
	case evt.Op&fsnotify.Remove == fsnotify.Remove:
		out.Removed = true
	case evt.Op&fsnotify.Rename == fsnotify.Rename:
		out.Renamed = true
	case evt.Op&fsnotify.Write == fsnotify.Write:
		out.Modified = true
	case evt.Op&fsnotify.Chmod == fsnotify.Chmod:
		out.Modified = true
	}
	return out
}

func (b *Backend) record(e watcher.Event) {
	b.mu.Lock()
	b.pending = append(b.pending, e)
	b.mu.Unlock()
	select {
	case b.signalCh <- struct{}{}:
	default:
	}
}

// StartWatchDir registers rel for change notifications.
func (b *Backend) StartWatchDir(rel string) error {
	return b.w.Add(filepath.Join(b.rootPath, rel))
}

// StopWatchDir releases the backend watch for rel.
func (b *Backend) StopWatchDir(rel string) error {
	return b.w.Remove(filepath.Join(b.rootPath, rel))
}

// StartWatchFile is a no-op: fsnotify directory watches already cover
// per-file events within that directory (HasPerFileNotifications is unset).
func (b *Backend) StartWatchFile(rel string) error { return nil }

// StopWatchFile is the matching no-op.
func (b *Backend) StopWatchFile(rel string) error { return nil }

// WaitNotify blocks until an event is recorded or timeout elapses.
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

// ConsumeNotify drains and returns every buffered event.
func (b *Backend) ConsumeNotify() []watcher.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.pending
	b.pending = nil
	return out
}

// SignalThreads wakes a blocked WaitNotify.
func (b *Backend) SignalThreads() {
	select {
	case b.signalCh <- struct{}{}:
	default:
	}
}

// Flags reports this backend's capabilities: directory-only notifications,
// and a recursive rescan requirement after overflow/rename (spec §4.7).
func (b *Backend) Flags() watcher.Flags {
	return watcher.NeedsRecursiveRescan
}

// Close releases the fsnotify watcher.
func (b *Backend) Close() error {
	return b.w.Close()
}
