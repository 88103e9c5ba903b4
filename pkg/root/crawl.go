package root

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/atomicobject/fswatchd/pkg/clockspec"
	"github.com/atomicobject/fswatchd/pkg/fserrors"
	"github.com/atomicobject/fswatchd/pkg/pending"
	"github.com/atomicobject/fswatchd/pkg/watchtree"
)

// processEntryLocked runs the mutation protocol (spec §4.1) on one popped
// pending entry. e.Path is root-relative, slash-separated, with ""
// denoting the root directory itself. Callers (ioLoop's batch drain) must
// already hold the tree's exclusive lock for the whole batch: spec §4.1
// requires the IO thread to take that lock once per pending-drain batch,
// not once per entry, and original_source/root.c's w_root_process_path
// resolves a cookie match as part of this same per-entry, lock-held
// processing — that ordering is what lets a later reader, blocked on the
// read lock, observe every mutation a sync-to-now waiter was promised.
func (r *Root) processEntryLocked(e *pending.Entry) {
	abs := filepath.Join(r.Path, e.Path)
	if e.Path != "" && r.cookies.IsCookie(abs) {
		r.cookies.NotifyCookie(abs)
		return
	}

	if e.Path == "" || e.Flags&pending.CrawlOnly != 0 {
		absDir := r.Path
		if e.Path != "" {
			absDir = abs
		}
		r.crawlDirLocked(e.Path, absDir)
		return
	}

	info, fi, err := statInfo(abs)
	if err == nil {
		r.observePathLocked(e.Path, info, fi)
		return
	}

	switch fserrors.Classify(err) {
	case fserrors.MissingPath:
		r.markMissingLocked(e.Path)
	case fserrors.ResourceExhaustion:
		// This cancels only this root; the server is not poisoned from here.
		r.logger.Printf("root %s: %s: resource exhaustion, cancelling root: %v", r.Path, e.Path, err)
		go r.Cancel()
	case fserrors.Permission:
		r.logger.Printf("root %s: %s: permission denied, treating as deleted: %v", r.Path, e.Path, err)
		r.markMissingLocked(e.Path)
	default:
		// triggerRecrawl takes the tree lock itself; the caller here is
		// already holding it for the batch, so this must run on its own
		// goroutine rather than block the batch.
		go r.triggerRecrawl("stat failure: " + err.Error())
	}
}

// observePathLocked implements mutation-protocol steps 2 and 5: ensure the
// node exists, compare FileInformation, and if changed (or newly created)
// bump the tick, move it to recency head, re-index its suffix, and
// publish. Callers must already hold the tree's exclusive lock.
func (r *Root) observePathLocked(rel string, info watchtree.FileInformation, fi os.FileInfo) {
	parentRel, name := splitRelPath(rel)

	parent := r.tree.EnsureDir(parentRel)

	if fi.IsDir() {
		dirID := r.tree.EnsureDir(rel)
		d, _ := r.tree.Dir(dirID)
		wasKnown := d.LastCheckExisted
		d.LastCheckExisted = true
		if !wasKnown {
			r.publishClockLocked()
		}
		r.watch.StartWatchDir(rel)
		return
	}

	id := r.tree.EnsureFile(parent, name)
	f, _ := r.tree.File(id)

	symlinkTarget := ""
	if fi.Mode()&os.ModeSymlink != 0 {
		if target, err := os.Readlink(filepath.Join(r.Path, rel)); err == nil {
			symlinkTarget = target
		}
	}

	changed := !f.Exists || f.SymlinkTarget != symlinkTarget || f.Info.SignificantlyDiffers(info, false)
	if !changed {
		return
	}
	r.tree.MarkChanged(id, info, symlinkTarget)
	r.watch.StartWatchFile(rel)
	r.publishClockLocked()
}

// markMissingLocked implements mutation-protocol step 3: on ENOENT/ENOTDIR,
// mark the node (and, if a directory, its whole subtree) non-existent and
// stop watching it. Callers must already hold the tree's exclusive lock.
func (r *Root) markMissingLocked(rel string) {
	dirRel, base := splitRelPath(rel)

	parent := r.tree.EnsureDir(dirRel)
	if dirID, ok := r.tree.ChildDir(parent, base); ok {
		r.tree.MarkDirDeleted(dirID)
		r.watch.StopWatchDir(rel)
		r.publishClockLocked()
		return
	}
	if fileID, ok := r.tree.ChildFile(parent, base); ok {
		r.tree.MarkDeleted(fileID)
		r.watch.StopWatchFile(rel)
		r.publishClockLocked()
	}
}

// publishClockLocked enqueues a publisher item describing the root's new
// clock. Callers must already hold the tree lock (spec §4.1 step 5).
func (r *Root) publishClockLocked() {
	clock := clockspec.Format(r.daemon.StartTime, r.daemon.Pid, r.Number, r.tree.Tick())
	r.publisher.Enqueue(map[string]interface{}{"clock": clock, "root": r.Path})
}

func splitRelPath(rel string) (dir, base string) {
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	if rel == "" {
		return "", ""
	}
	i := strings.LastIndexByte(rel, '/')
	if i < 0 {
		return "", rel
	}
	return rel[:i], rel[i+1:]
}

// crawlDirLocked implements §4.1.1: enumerate dirRel (root-relative; "" is
// the root itself), run the mutation protocol on each entry, and mark
// previously known children now absent from the enumeration as deleted.
// Each directory component is opened with symlink traversal denied, by
// walking down from the root and re-resolving one segment at a time with
// O_NOFOLLOW, so a symlink planted in the middle of the path can never
// redirect the crawl outside the watched root. Callers must already hold
// the tree's exclusive lock; the whole recursive enumeration runs under
// it, matching the original's per-batch locking discipline.
func (r *Root) crawlDirLocked(dirRel, absDir string) {
	if r.isCancelled() {
		return
	}

	if err := openNoFollowDir(r.Path, dirRel); err != nil {
		if fserrors.Classify(err) == fserrors.MissingPath {
			r.markMissingLocked(dirRel)
		} else {
			r.logger.Printf("root %s: crawl %s: %v", r.Path, dirRel, err)
		}
		return
	}

	entries, err := os.ReadDir(absDir)
	if err != nil {
		if fserrors.Classify(err) == fserrors.MissingPath {
			r.markMissingLocked(dirRel)
		}
		return
	}

	seen := make(map[string]bool, len(entries))
	for _, ent := range entries {
		name := ent.Name()
		seen[name] = true
		childRel := name
		if dirRel != "" {
			childRel = dirRel + "/" + name
		}
		info, fi, err := statInfo(filepath.Join(r.Path, childRel))
		if err != nil {
			continue
		}
		r.observePathLocked(childRel, info, fi)
		if fi.IsDir() {
			r.crawlDirLocked(childRel, filepath.Join(r.Path, childRel))
		}
	}

	r.pruneVanishedChildrenLocked(dirRel, seen)
	r.watch.StartWatchDir(dirRel)
}

// pruneVanishedChildrenLocked marks deleted every previously known child
// of dirRel that the latest enumeration did not report. Callers must
// already hold the tree's exclusive lock.
func (r *Root) pruneVanishedChildrenLocked(dirRel string, seen map[string]bool) {
	dirID := r.tree.EnsureDir(dirRel)
	d, ok := r.tree.Dir(dirID)
	if !ok {
		return
	}
	var missing []string
	for name := range d.Files {
		if !seen[name] {
			missing = append(missing, name)
		}
	}
	for name := range d.Dirs {
		if !seen[name] {
			missing = append(missing, name)
		}
	}
	for _, name := range missing {
		r.markMissingLocked(joinRel(dirRel, name))
	}
}

func joinRel(dirRel, name string) string {
	if dirRel == "" {
		return name
	}
	return dirRel + "/" + name
}

// openNoFollowDir walks rootPath/relDir one component at a time, opening
// each with O_NOFOLLOW, so a symlink component can never redirect the
// crawl outside the watched root (spec §4.1.1).
func openNoFollowDir(rootPath, relDir string) error {
	cur := rootPath
	if relDir == "" {
		return probeOpenNoFollow(cur)
	}
	for _, seg := range strings.Split(filepath.ToSlash(relDir), "/") {
		if seg == "" {
			continue
		}
		cur = filepath.Join(cur, seg)
		if err := probeOpenNoFollow(cur); err != nil {
			return err
		}
	}
	return nil
}
