// Package trigger implements the trigger engine from spec §4.8: one
// goroutine per trigger, subscribed to its root's publisher, that spawns a
// child process whenever the publisher delivers items and at least one
// existing file matches the trigger's expression. The child receives every
// existing matching file, not only the files changed in that batch. Grounded on the teacher's process-spawn usage pattern
// (skratchdot/open-golang's os/exec wrapping in cmd/ — generalized here
// from "open one file in the OS default app" to "exec an arbitrary command
// with the matched file list").
package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"os/exec"
	"strings"
	"sync"

	"github.com/atomicobject/fswatchd/pkg/publisher"
	"github.com/atomicobject/fswatchd/pkg/query"
	"github.com/atomicobject/fswatchd/pkg/registry"
	"github.com/atomicobject/fswatchd/pkg/root"
)

// Definition describes one trigger: what to run, and which files from a
// settled change batch to hand it.
type Definition struct {
	Name    string
	Command []string
	Expr    query.Expr
	// Stdin, when true, feeds the matched file list as a JSON array on the
	// child's stdin instead of appending them as argv.
	Stdin bool
}

// Trigger is a running instance: a publisher subscription plus the
// goroutine draining it.
type Trigger struct {
	def  Definition
	r    *root.Root
	sub  *publisher.Subscriber
	wake chan struct{}
	done chan struct{}

	mu      sync.Mutex
	stopped bool

	logger *log.Logger
}

// Start registers def against r and begins its goroutine. Callers must
// call Stop to release the subscription.
func Start(r *root.Root, def Definition, logger *log.Logger) *Trigger {
	t := &Trigger{def: def, r: r, wake: make(chan struct{}, 1), done: make(chan struct{}), logger: logger}
	t.sub = r.Publisher().Subscribe(func() {
		select {
		case t.wake <- struct{}{}:
		default:
		}
	})
	r.AddRef()
	go t.loop()
	return t
}

// Stop cancels the subscription and removes the trigger's hold on its
// root's idle-reap ref count. It does not close the wake channel — the
// subscriber's notifier may still be in flight — so loop exits via done
// instead.
func (t *Trigger) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.mu.Unlock()

	t.sub.Cancel()
	close(t.done)
	t.r.RemoveRef()
}

func (t *Trigger) loop() {
	for {
		select {
		case <-t.done:
			return
		case <-t.wake:
		}
		items := t.r.Publisher().GetPending(t.sub)
		if len(items) == 0 {
			continue
		}
		files := t.matchedFiles()
		if len(files) == 0 {
			continue
		}
		t.spawn(files)
	}
}

// matchedFiles re-evaluates the trigger's expression against the current
// tree state rather than trying to thread per-item diffs through the
// publisher payload: triggers care about "what matches right now," not a
// precise diff of the settled batch (consistent with the teacher's
// stateless-rescan style in pkg/cache.Service.refreshPath).
func (t *Trigger) matchedFiles() []string {
	tree := t.r.Tree()
	tree.Lock()
	defer tree.Unlock()

	var out []string
	q := &query.Query{}
	ctx := &query.EvalContext{Tree: tree}
	expr := t.def.Expr
	if expr == nil {
		expr = query.True()
	}
	query.Generate(tree, q, func(c query.Candidate) bool {
		if !c.File.Exists {
			return true
		}
		if expr(ctx, &c) {
			out = append(out, c.WholeName())
		}
		return true
	})
	return out
}

func (t *Trigger) spawn(files []string) {
	args := append([]string(nil), t.def.Command...)
	if len(args) == 0 {
		return
	}
	var stdin bytes.Buffer
	if t.def.Stdin {
		enc, err := json.Marshal(files)
		if err == nil {
			stdin.Write(enc)
		}
	} else {
		args = append(args, files...)
	}

	cmd := exec.CommandContext(context.Background(), args[0], args[1:]...)
	cmd.Dir = t.r.Path
	if t.def.Stdin {
		cmd.Stdin = &stdin
	}
	if err := cmd.Run(); err != nil {
		t.logger.Printf("trigger %s: %s: %v", t.def.Name, strings.Join(args, " "), err)
	}
}

// triggerSetKey pairs a root path with a trigger name, the unit the
// server's trigger-del/trigger-list commands operate on.
type triggerSetKey struct {
	rootPath string
	name     string
}

// Set manages every live trigger across all roots, mirroring the registry's
// per-root map shape but keyed additionally by trigger name.
type Set struct {
	mu       sync.Mutex
	triggers map[triggerSetKey]*Trigger
	logger   *log.Logger
}

// NewSet constructs an empty trigger set.
func NewSet(logger *log.Logger) *Set {
	return &Set{triggers: make(map[triggerSetKey]*Trigger), logger: logger}
}

// Register starts (replacing any existing same-named trigger on the same
// root) a new trigger.
func (s *Set) Register(r *root.Root, def Definition) {
	key := triggerSetKey{rootPath: r.Path, name: def.Name}
	s.mu.Lock()
	if existing, ok := s.triggers[key]; ok {
		s.mu.Unlock()
		existing.Stop()
		s.mu.Lock()
	}
	t := Start(r, def, s.logger)
	s.triggers[key] = t
	s.mu.Unlock()
}

// Remove stops and forgets the named trigger on rootPath.
func (s *Set) Remove(rootPath, name string) bool {
	key := triggerSetKey{rootPath: rootPath, name: name}
	s.mu.Lock()
	t, ok := s.triggers[key]
	if ok {
		delete(s.triggers, key)
	}
	s.mu.Unlock()
	if ok {
		t.Stop()
	}
	return ok
}

// List returns the names of every trigger registered on rootPath.
func (s *Set) List(rootPath string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.triggers {
		if k.rootPath == rootPath {
			out = append(out, k.name)
		}
	}
	return out
}

// RestoreFromRegistry starts every persisted trigger definition against its
// already-watched root. The triggers it starts are not added to a Set, so
// trigger-list and trigger-del do not see them.
func RestoreFromRegistry(reg *registry.Registry, rootPath string, defs []registry.TriggerDef, compile func(registry.TriggerDef) (Definition, error), logger *log.Logger) {
	r, ok := reg.Lookup(rootPath)
	if !ok {
		return
	}
	for _, d := range defs {
		def, err := compile(d)
		if err != nil {
			logger.Printf("trigger: restore %s on %s: %v", d.Name, rootPath, err)
			continue
		}
		Start(r, def, logger)
	}
}
