// Package poll is the coarse, stat-everything OS-watcher backend: it never
// delivers per-path events, instead asking the root engine to recrawl the
// whole tree on a fixed interval. Grounded on the teacher's
// cache.Options.StaleInterval / markStale fallback path in
// pkg/cache/service.go, which the teacher reaches for only when fsnotify's
// setup fails — here it is promoted to a real, selectable backend
// (watcher=poll) per spec §4.7's "coarse backends" row.
package poll

import (
	"context"
	"time"

	"github.com/atomicobject/fswatchd/pkg/watcher"
)

// Name is the backend identifier (watcher=poll).
const Name = "poll"

// Priority is low: watcher=auto only falls back to polling if every
// event-stream backend fails Init.
const Priority = 0

// DefaultInterval matches the teacher's default StaleInterval.
const DefaultInterval = 30 * time.Second

func init() {
	watcher.Register(Name, Priority, func() watcher.Watcher { return &Backend{Interval: DefaultInterval} })
}

// Backend emits one Overflowed event per Interval tick, which the root
// engine treats exactly like a watcher-reported overflow: a full recrawl.
type Backend struct {
	Interval time.Duration

	ticker   *time.Ticker
	signalCh chan struct{}
	done     chan struct{}
}

// Init never fails; polling works on any filesystem.
func (b *Backend) Init(rootPath string) error {
	b.signalCh = make(chan struct{}, 1)
	b.done = make(chan struct{})
	return nil
}

// Start begins the ticker goroutine.
func (b *Backend) Start(ctx context.Context) error {
	b.ticker = time.NewTicker(b.Interval)
	go func() {
		defer b.ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.done:
				return
			case <-b.ticker.C:
				select {
				case b.signalCh <- struct{}{}:
				default:
				}
			}
		}
	}()
	return nil
}

// StartWatchDir/StopWatchDir/StartWatchFile/StopWatchFile are no-ops: a
// coarse backend tracks nothing per-path.
func (b *Backend) StartWatchDir(rel string) error  { return nil }
func (b *Backend) StopWatchDir(rel string) error   { return nil }
func (b *Backend) StartWatchFile(rel string) error { return nil }
func (b *Backend) StopWatchFile(rel string) error  { return nil }

// WaitNotify blocks until the next tick or timeout.
func (b *Backend) WaitNotify(timeout time.Duration) bool {
	select {
	case <-b.signalCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// ConsumeNotify always returns a single synthetic overflow event: the
// crawler's response to "poll" is always a full recrawl.
func (b *Backend) ConsumeNotify() []watcher.Event {
	return []watcher.Event{{Overflowed: true}}
}

// SignalThreads wakes a blocked WaitNotify.
func (b *Backend) SignalThreads() {
	select {
	case b.signalCh <- struct{}{}:
	default:
	}
}

// Flags reports NeedsRecursiveRescan: every tick is a full-tree recrawl
// signal, and the backend has no per-file notification capability.
func (b *Backend) Flags() watcher.Flags {
	return watcher.NeedsRecursiveRescan
}

// Close stops the ticker goroutine.
func (b *Backend) Close() error {
	close(b.done)
	return nil
}
