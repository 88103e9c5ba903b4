// Package watcher defines the OS-watcher abstraction (spec §4.7): a small
// capability-flagged interface the root engine drives, plus a registry so
// "watcher=auto" can try backends in priority order. Grounded on the
// teacher's cache.Watcher interface (Add/Close/Events/Errors), generalized
// from a single always-fsnotify backend into the full capability table.
package watcher

import (
	"context"
	"time"
)

// Flags advertises what a backend can and cannot do, so the root engine
// adapts its crawl/re-registration behavior per spec §4.7's platform-
// behavior table instead of switching on a backend name.
type Flags uint8

const (
	// HasPerFileNotifications means the backend can watch individual files,
	// not just directories (coarse backends silently no-op file watches).
	HasPerFileNotifications Flags = 1 << iota
	// NeedsRecursiveRescan means the backend cannot reliably deliver
	// descendant events without the engine re-scanning recursively after
	// directory moves/renames, or after an overflow.
	NeedsRecursiveRescan
	// BulkStat means the backend's directory enumeration already returns
	// FileInformation, saving a stat(2) call per entry during crawl.
	BulkStat
)

// Event is a single notification the backend observed.
type Event struct {
	Path      string
	Created   bool
	Removed   bool
	Renamed   bool
	Modified  bool
	// Overflowed is set instead of (or alongside) a path-specific event
	// when the backend's internal queue dropped events; the root engine
	// treats this as a recrawl signal (spec §4.1.2).
	Overflowed bool
}

// Watcher is the polymorphic backend contract from spec §4.7's capability
// table. DESIGN NOTES §9 recommends a tagged-variant enum over interface
// inheritance for this in a systems language; in Go, an interface selected
// by a registry (see Register/Open below) is the idiomatic equivalent — no
// inheritance hierarchy is introduced, and the root engine only ever
// branches on Flags(), never on a backend's concrete type.
type Watcher interface {
	// Init prepares backend handles for rootPath. A non-nil error carries a
	// human-readable reason, letting Open try the next backend.
	Init(rootPath string) error
	// Start begins delivering events; it blocks until the backend is ready
	// to answer WaitNotify.
	Start(ctx context.Context) error
	// StartWatchDir registers rel (root-relative) for change notifications.
	StartWatchDir(rel string) error
	// StopWatchDir releases backend resources for rel. Coarse backends may
	// no-op.
	StopWatchDir(rel string) error
	// StartWatchFile/StopWatchFile are per-file equivalents; backends
	// without HasPerFileNotifications no-op them.
	StartWatchFile(rel string) error
	StopWatchFile(rel string) error
	// WaitNotify blocks until events are available or timeout elapses,
	// returning false on timeout.
	WaitNotify(timeout time.Duration) bool
	// ConsumeNotify drains currently available events.
	ConsumeNotify() []Event
	// SignalThreads wakes a blocked WaitNotify so the notify goroutine can
	// observe cancellation promptly.
	SignalThreads()
	// Flags reports this backend's capability bits.
	Flags() Flags
	// Close releases all backend resources.
	Close() error
}

// Factory constructs a fresh, uninitialized Watcher instance.
type Factory func() Watcher

type registration struct {
	name     string
	priority int
	factory  Factory
}

var registry []registration

// Register adds a backend to the global registry under name with the given
// priority (higher runs first under watcher=auto).
func Register(name string, priority int, factory Factory) {
	registry = append(registry, registration{name: name, priority: priority, factory: factory})
}

// Open selects a backend by name ("auto" tries every registered backend in
// descending priority order and keeps the first whose Init succeeds) and
// initializes it against rootPath.
func Open(name, rootPath string) (Watcher, error) {
	candidates := make([]registration, len(registry))
	copy(candidates, registry)
	// Stable highest-priority-first ordering.
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].priority > candidates[j-1].priority; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}

	if name != "" && name != "auto" {
		for _, reg := range candidates {
			if reg.name == name {
				w := reg.factory()
				if err := w.Init(rootPath); err != nil {
					return nil, err
				}
				return w, nil
			}
		}
		return nil, &UnknownBackendError{Name: name}
	}

	var lastErr error
	for _, reg := range candidates {
		w := reg.factory()
		if err := w.Init(rootPath); err != nil {
			lastErr = err
			continue
		}
		return w, nil
	}
	if lastErr == nil {
		lastErr = &UnknownBackendError{Name: "auto"}
	}
	return nil, lastErr
}

// UnknownBackendError reports a named-selection or exhausted-auto failure.
type UnknownBackendError struct{ Name string }

func (e *UnknownBackendError) Error() string {
	return "watcher: no usable backend for " + e.Name
}
