// Package registry is the single process-wide map of watched root path to
// its *root.Root, plus the atomic JSON persistence of that set (spec §5's
// "a single global map of root-path -> root protected by its own mutex"
// and §6's state-file contract). Grounded on the teacher's
// pkg/config.ResolveConfigPath / utils/config.go pattern for an
// atomically-rewritten JSON file under a user config directory.
package registry

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/atomicobject/fswatchd/pkg/clockspec"
	"github.com/atomicobject/fswatchd/pkg/fserrors"
	"github.com/atomicobject/fswatchd/pkg/root"
)

// TriggerDef is the persisted shape of one trigger definition, enough to
// reconstruct it at startup without importing pkg/trigger (which in turn
// depends on this registry's Root lookups via the server layer).
type TriggerDef struct {
	Name    string          `json:"name"`
	Command []string        `json:"command"`
	Stdin   bool            `json:"stdin,omitempty"`
	Expr    json.RawMessage `json:"expr,omitempty"`
}

// entry is what the registry actually tracks per root: the live engine plus
// whatever triggers were registered against it, kept here only so they can
// be serialized — the trigger engine itself (pkg/trigger) owns execution.
type entry struct {
	root     *root.Root
	triggers []TriggerDef
}

// state is the on-disk persistence shape (spec §6: "{version, watched:
// [{path, triggers}]}").
type state struct {
	Version int            `json:"version"`
	Watched []watchedEntry `json:"watched"`
}

type watchedEntry struct {
	Path     string       `json:"path"`
	Triggers []TriggerDef `json:"triggers,omitempty"`
}

const stateVersion = 1

// Registry is the global root-path -> root map.
type Registry struct {
	mu        sync.Mutex
	roots     map[string]*entry
	statePath string
	saveState bool
	cfg       root.Config
	daemon    clockspec.Daemon
	logger    *log.Logger
	nextNum   int
}

// New constructs an empty Registry. statePath is where persistence is
// read/written; an empty statePath disables persistence entirely
// (--no-save-state).
func New(statePath string, cfg root.Config, daemon clockspec.Daemon, logger *log.Logger) *Registry {
	return &Registry{
		roots:     make(map[string]*entry),
		statePath: statePath,
		saveState: statePath != "",
		cfg:       cfg,
		daemon:    daemon,
		logger:    logger,
		nextNum:   1,
	}
}

// Watch starts (or returns the already-running) root at absPath using the
// registry's default config.
func (reg *Registry) Watch(ctx context.Context, absPath string) (*root.Root, error) {
	return reg.WatchWithConfig(ctx, absPath, reg.cfg)
}

// WatchWithConfig is Watch but lets the caller supply a per-root config
// (e.g. one adjusted by a .fswatchdconfig override), used by the server's
// watch/watch-project handlers.
func (reg *Registry) WatchWithConfig(ctx context.Context, absPath string, cfg root.Config) (*root.Root, error) {
	reg.mu.Lock()
	if e, ok := reg.roots[absPath]; ok {
		reg.mu.Unlock()
		return e.root, nil
	}
	number := reg.nextNum
	reg.nextNum++
	reg.mu.Unlock()

	r, err := root.New(number, absPath, cfg, reg.daemon, reg.logger)
	if err != nil {
		return nil, err
	}
	r.OnIdleReap = func(path string) { reg.removeQuiet(path) }
	if err := r.Start(ctx); err != nil {
		return nil, err
	}

	reg.mu.Lock()
	reg.roots[absPath] = &entry{root: r}
	reg.mu.Unlock()

	reg.persist()
	return r, nil
}

// Lookup returns the root watching absPath, if any.
func (reg *Registry) Lookup(absPath string) (*root.Root, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	e, ok := reg.roots[absPath]
	if !ok {
		return nil, false
	}
	return e.root, true
}

// List returns every currently watched root path (spec's watch-list).
func (reg *Registry) List() []string {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := make([]string, 0, len(reg.roots))
	for p := range reg.roots {
		out = append(out, p)
	}
	return out
}

// Del cancels and removes the root at absPath, persisting the change.
func (reg *Registry) Del(absPath string) bool {
	reg.mu.Lock()
	e, ok := reg.roots[absPath]
	if ok {
		delete(reg.roots, absPath)
	}
	reg.mu.Unlock()
	if !ok {
		return false
	}
	e.root.Cancel()
	reg.persist()
	return true
}

// DelAll cancels and removes every watched root.
func (reg *Registry) DelAll() {
	reg.mu.Lock()
	all := reg.roots
	reg.roots = make(map[string]*entry)
	reg.mu.Unlock()
	for _, e := range all {
		e.root.Cancel()
	}
	reg.persist()
}

// removeQuiet is Del without re-canceling the root (idle reap already did).
func (reg *Registry) removeQuiet(absPath string) {
	reg.mu.Lock()
	delete(reg.roots, absPath)
	reg.mu.Unlock()
	reg.persist()
}

// SetTriggers replaces the persisted trigger-definition list for absPath.
func (reg *Registry) SetTriggers(absPath string, defs []TriggerDef) {
	reg.mu.Lock()
	if e, ok := reg.roots[absPath]; ok {
		e.triggers = defs
	}
	reg.mu.Unlock()
	reg.persist()
}

// Triggers returns the persisted trigger definitions for absPath.
func (reg *Registry) Triggers(absPath string) []TriggerDef {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if e, ok := reg.roots[absPath]; ok {
		return append([]TriggerDef(nil), e.triggers...)
	}
	return nil
}

// persist rewrites the state file atomically (tempfile + rename), per spec
// §6. Failures are logged, not returned: persistence is best-effort and
// must never block a client command.
func (reg *Registry) persist() {
	if !reg.saveState {
		return
	}
	reg.mu.Lock()
	s := state{Version: stateVersion}
	for p, e := range reg.roots {
		s.Watched = append(s.Watched, watchedEntry{Path: p, Triggers: e.triggers})
	}
	reg.mu.Unlock()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		reg.logger.Printf("registry: marshal state: %v", err)
		return
	}
	if err := writeFileAtomic(reg.statePath, data); err != nil {
		reg.logger.Printf("registry: persist state: %v", err)
	}
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".fswatchd-state-*")
	if err != nil {
		return fserrors.Wrap(fserrors.Fatal, err, "registry: create tempfile")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fserrors.Wrap(fserrors.TransientIo, err, "registry: write tempfile")
	}
	if err := tmp.Close(); err != nil {
		return fserrors.Wrap(fserrors.TransientIo, err, "registry: close tempfile")
	}
	return os.Rename(tmp.Name(), path)
}

// Load reads the state file (if present) and re-watches every persisted
// root, restoring its trigger definitions. A missing file is not an error:
// the daemon starts with zero watched roots.
func (reg *Registry) Load(ctx context.Context) error {
	if reg.statePath == "" {
		return nil
	}
	data, err := os.ReadFile(reg.statePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fserrors.Wrap(fserrors.Fatal, err, "registry: read state file")
	}
	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		return fserrors.Wrap(fserrors.Fatal, err, "registry: parse state file")
	}
	for _, w := range s.Watched {
		r, err := reg.Watch(ctx, w.Path)
		if err != nil {
			reg.logger.Printf("registry: restore %s: %v", w.Path, err)
			continue
		}
		reg.SetTriggers(w.Path, w.Triggers)
		_ = r
	}
	return nil
}

// CancelAll tears down every root without rewriting the state file — used
// on graceful shutdown, where the on-disk state should still reflect what
// was watched so the next startup restores it.
func (reg *Registry) CancelAll() {
	reg.mu.Lock()
	all := reg.roots
	reg.mu.Unlock()
	for _, e := range all {
		e.root.Cancel()
	}
}
