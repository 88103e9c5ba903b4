package root

import (
	"time"

	"github.com/atomicobject/fswatchd/pkg/watchtree"
)

// ageOut implements spec §4.1.3: walk the recency list newest-to-oldest,
// reclaiming file nodes that have been deleted for longer than cfg.GCAge,
// then a second pass to drop directories left empty by that reclamation.
// It also drops cursors whose last value predates the new aging boundary.
func (r *Root) ageOut() {
	if r.cfg.GCAge <= 0 {
		return
	}
	now := time.Now()

	r.tree.Lock()
	defer r.tree.Unlock()

	var toRemove []removalCandidate
	var boundaryTick uint32
	for id := r.tree.RecencyHead(); id != 0; id = r.tree.RecencyNext(id) {
		f, ok := r.tree.File(id)
		if !ok {
			continue
		}
		if f.Exists {
			continue
		}
		if f.OTime.Add(r.cfg.GCAge).After(now) {
			continue
		}
		toRemove = append(toRemove, removalCandidate{id: id, parent: f.Parent})
		if f.OTimeTick > boundaryTick {
			boundaryTick = f.OTimeTick
		}
	}
	if len(toRemove) == 0 {
		return
	}

	touchedDirs := make(map[watchtree.DirID]struct{})
	for _, c := range toRemove {
		r.tree.RemoveFile(c.id)
		touchedDirs[c.parent] = struct{}{}
	}
	for parent := range touchedDirs {
		r.tree.RemoveEmptyDir(parent)
	}

	if boundaryTick > r.tree.LastAgeOutTick() {
		r.tree.SetLastAgeOutTick(boundaryTick)
	}
	r.tree.DropCursorsBefore(boundaryTick)
}

type removalCandidate struct {
	id     watchtree.FileID
	parent watchtree.DirID
}

// checkIdleReap implements spec §4.1.4: a root with a configured
// idle_reap_age, no recent activity, and zero registered triggers or
// subscriptions cancels itself.
func (r *Root) checkIdleReap() {
	if r.cfg.IdleReapAge <= 0 {
		return
	}
	r.mu.Lock()
	idleFor := time.Since(r.lastActivity)
	refs := r.refs
	r.mu.Unlock()

	if refs > 0 || idleFor < r.cfg.IdleReapAge {
		return
	}
	r.logger.Printf("root %s: idle for %s with no active triggers/subscriptions, reaping", r.Path, idleFor)
	r.Cancel()
	if r.OnIdleReap != nil {
		r.OnIdleReap(r.Path)
	}
}
