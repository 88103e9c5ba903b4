// Package watchtree holds the in-memory directory/file graph for one
// watched root: the tick clock, the recency list, the suffix index, and the
// named-cursor map, all protected by a single reader/writer lock (spec §3,
// §5). Grounded on the teacher's pkg/cache.Service maps (fileIndex,
// tagIndex, dirIndex), generalized from "markdown vault" semantics (one
// flat map of paths) to a real parent/child directory graph with ticks.
package watchtree

import (
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Dir is a directory node: name relative to its parent, back-reference,
// and child maps. The root of the tree owns the top-level directory.
type Dir struct {
	ID               DirID
	Name             string
	Parent           DirID
	Files            map[string]FileID
	Dirs             map[string]DirID
	LastCheckExisted bool
}

// File is a file node, including intrusive links into the per-root recency
// list and per-suffix chain (spec §3).
type File struct {
	ID     FileID
	Name   string
	Parent DirID
	Info   FileInformation
	Exists bool
	// SymlinkTarget is set when the file is a symlink.
	SymlinkTarget string

	// CTimeTick is the tick at which this file was first created in the tree;
	// it never decreases and never changes after creation.
	CTimeTick uint32
	// OTimeTick is the tick (and OTime the matching wall timestamp) at which this file
	// was most recently observed to change.
	OTimeTick uint32
	OTime     time.Time

	recPrev, recNext FileID
	suffix           string
	suffixNext       FileID
}

// Tree is the per-root graph plus clock, recency list, suffix index, and
// cursor map, all behind a single RWMutex (spec §5's "one read-write lock
// covering the tree, recency list, suffix index, tick counter, and cursor
// map").
type Tree struct {
	mu sync.RWMutex

	rootPath        string
	caseInsensitive bool

	tick         uint32
	lastTickTime time.Time

	dirs  map[DirID]*Dir
	files map[FileID]*File
	root  DirID

	nextDirID  DirID
	nextFileID FileID

	recencyHead, recencyTail FileID
	suffixIndex              map[string]FileID

	cursors map[string]uint32

	lastAgeOutTick uint32
	recrawlCount   uint32
}

// New constructs an empty Tree rooted at rootPath (which must already be
// absolute and canonicalized by the caller per spec §4.1's path resolution
// contract).
func New(rootPath string, caseInsensitive bool) *Tree {
	t := &Tree{
		rootPath:        rootPath,
		caseInsensitive: caseInsensitive,
		dirs:            make(map[DirID]*Dir),
		files:           make(map[FileID]*File),
		suffixIndex:     make(map[string]FileID),
		cursors:         make(map[string]uint32),
		lastTickTime:    time.Now(),
	}
	t.nextDirID = 1
	t.root = t.nextDirID
	t.nextDirID++
	t.dirs[t.root] = &Dir{ID: t.root, Files: make(map[string]FileID), Dirs: make(map[string]DirID)}
	return t
}

// Lock/Unlock/RLock/RUnlock expose the tree's single lock to the root
// engine, which holds it across a generator's run (queries) or a
// pending-drain batch (the IO thread), per spec §5.
func (t *Tree) Lock()    { t.mu.Lock() }
func (t *Tree) Unlock()  { t.mu.Unlock() }
func (t *Tree) RLock()   { t.mu.RLock() }
func (t *Tree) RUnlock() { t.mu.RUnlock() }

// RootDir returns the ID of the top-level directory (the root path itself).
func (t *Tree) RootDir() DirID { return t.root }

// RootPath returns the absolute, canonical path this tree is rooted at.
func (t *Tree) RootPath() string { return t.rootPath }

// Tick returns the current tick value. Callers must hold at least RLock.
func (t *Tree) Tick() uint32 { return t.tick }

// LastAgeOutTick returns the tick boundary below which age-out has already
// reclaimed files; queries whose since-tick predates it must report
// is_fresh_instance.
func (t *Tree) LastAgeOutTick() uint32 { return t.lastAgeOutTick }

// RecrawlCount returns how many times this root has been fully re-crawled.
func (t *Tree) RecrawlCount() uint32 { return t.recrawlCount }

func (t *Tree) normalize(name string) string {
	if t.caseInsensitive {
		return strings.ToLower(name)
	}
	return name
}

// Dir looks up a directory node by ID. Callers must hold RLock or Lock.
func (t *Tree) Dir(id DirID) (*Dir, bool) {
	d, ok := t.dirs[id]
	return d, ok
}

// File looks up a file node by ID. Callers must hold RLock or Lock.
func (t *Tree) File(id FileID) (*File, bool) {
	f, ok := t.files[id]
	return f, ok
}

// ChildDir returns the child directory of parent named name, if present.
func (t *Tree) ChildDir(parent DirID, name string) (DirID, bool) {
	d, ok := t.dirs[parent]
	if !ok {
		return NoDir, false
	}
	id, ok := d.Dirs[t.normalize(name)]
	return id, ok
}

// ChildFile returns the child file of parent named name, if present.
func (t *Tree) ChildFile(parent DirID, name string) (FileID, bool) {
	d, ok := t.dirs[parent]
	if !ok {
		return NoFile, false
	}
	id, ok := d.Files[t.normalize(name)]
	return id, ok
}

// EnsureDir resolves rel (a root-relative slash path) to a directory node,
// creating intermediate directory nodes as needed. An empty rel returns the
// root directory. Callers must hold Lock (this mutates the tree).
func (t *Tree) EnsureDir(rel string) DirID {
	rel = filepath.ToSlash(rel)
	rel = strings.Trim(rel, "/")
	cur := t.root
	if rel == "" || rel == "." {
		return cur
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == "" {
			continue
		}
		cur = t.ensureChildDir(cur, seg)
	}
	return cur
}

func (t *Tree) ensureChildDir(parent DirID, name string) DirID {
	pd := t.dirs[parent]
	key := t.normalize(name)
	if id, ok := pd.Dirs[key]; ok {
		return id
	}
	id := t.nextDirID
	t.nextDirID++
	t.dirs[id] = &Dir{ID: id, Name: name, Parent: parent, Files: make(map[string]FileID), Dirs: make(map[string]DirID)}
	pd.Dirs[key] = id
	return id
}

// EnsureFile resolves (parent, name) to a file node, creating it if absent.
// The new node is not marked existent; callers call MarkChanged to do that.
// Callers must hold Lock.
func (t *Tree) EnsureFile(parent DirID, name string) FileID {
	pd := t.dirs[parent]
	key := t.normalize(name)
	if id, ok := pd.Files[key]; ok {
		return id
	}
	id := t.nextFileID + 1
	t.nextFileID = id
	f := &File{ID: id, Name: name, Parent: parent}
	t.files[id] = f
	pd.Files[key] = id
	return id
}

// RelPath reconstructs the root-relative slash path of a file.
func (t *Tree) RelPath(id FileID) string {
	f, ok := t.files[id]
	if !ok {
		return ""
	}
	return t.dirRelPath(f.Parent, f.Name)
}

// DirRelPath reconstructs the root-relative slash path of a directory.
func (t *Tree) DirRelPath(id DirID) string {
	if id == t.root {
		return ""
	}
	d, ok := t.dirs[id]
	if !ok {
		return ""
	}
	return t.dirRelPath(d.Parent, d.Name)
}

func (t *Tree) dirRelPath(parent DirID, name string) string {
	if parent == NoDir || parent == t.root {
		return name
	}
	prefix := t.DirRelPath(parent)
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// bumpTick advances the clock by one and stamps the wall time of the
// observation batch that caused it.
func (t *Tree) bumpTick() uint32 {
	t.tick++
	t.lastTickTime = time.Now()
	return t.tick
}

// MarkChanged records that file id was observed with info at the current
// moment: bumps the tick, stamps otime, moves the file to the recency-list
// head, re-indexes its suffix, and (if newly created) stamps ctime (spec
// §4.1 step 5). Callers must hold Lock.
func (t *Tree) MarkChanged(id FileID, info FileInformation, symlinkTarget string) uint32 {
	f := t.files[id]
	wasNew := f.CTimeTick == 0 && f.OTimeTick == 0 && !f.Exists

	tick := t.bumpTick()
	f.Info = info
	f.SymlinkTarget = symlinkTarget
	f.Exists = true
	f.OTimeTick = tick
	f.OTime = t.lastTickTime
	if wasNew {
		f.CTimeTick = tick
	}

	t.moveToRecencyHead(f)
	t.reindexSuffix(f)
	return tick
}

// MarkDeleted marks file id non-existent, freezing its last-known stat,
// per spec §3's File node invariant. Callers must hold Lock.
func (t *Tree) MarkDeleted(id FileID) uint32 {
	f := t.files[id]
	if !f.Exists {
		return t.tick
	}
	tick := t.bumpTick()
	f.Exists = false
	f.OTimeTick = tick
	f.OTime = t.lastTickTime
	t.moveToRecencyHead(f)
	return tick
}

// MarkDirDeleted recursively marks a directory and every descendant file
// non-existent (spec §4.1 step 3), returning the tick of the batch.
func (t *Tree) MarkDirDeleted(id DirID) uint32 {
	d, ok := t.dirs[id]
	if !ok {
		return t.tick
	}
	d.LastCheckExisted = false
	var tick uint32
	for _, fid := range d.Files {
		tick = t.MarkDeleted(fid)
	}
	for _, did := range d.Dirs {
		t.MarkDirDeleted(did)
	}
	if tick == 0 {
		tick = t.tick
	}
	return tick
}

func (t *Tree) moveToRecencyHead(f *File) {
	t.unlinkRecency(f)
	f.recPrev = NoFile
	f.recNext = t.recencyHead
	if t.recencyHead != NoFile {
		if h, ok := t.files[t.recencyHead]; ok {
			h.recPrev = f.ID
		}
	}
	t.recencyHead = f.ID
	if t.recencyTail == NoFile {
		t.recencyTail = f.ID
	}
}

func (t *Tree) unlinkRecency(f *File) {
	if f.recPrev != NoFile {
		if p, ok := t.files[f.recPrev]; ok {
			p.recNext = f.recNext
		}
	} else if t.recencyHead == f.ID {
		t.recencyHead = f.recNext
	}
	if f.recNext != NoFile {
		if n, ok := t.files[f.recNext]; ok {
			n.recPrev = f.recPrev
		}
	} else if t.recencyTail == f.ID {
		t.recencyTail = f.recPrev
	}
	f.recPrev, f.recNext = NoFile, NoFile
}

// RecencyHead returns the most-recently-changed file, or NoFile if empty.
func (t *Tree) RecencyHead() FileID { return t.recencyHead }

// RecencyNext returns the next-older file in the recency list after id.
func (t *Tree) RecencyNext(id FileID) FileID {
	if f, ok := t.files[id]; ok {
		return f.recNext
	}
	return NoFile
}

// NormalizedSuffix lower-cases a file extension (suffix indexing is always
// case-insensitive, regardless of the root's path case sensitivity, since
// suffixes like ".JPG"/".jpg" are conventionally treated as equivalent by
// watchman clients).
func NormalizedSuffix(name string) string {
	ext := filepath.Ext(name)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

func (t *Tree) reindexSuffix(f *File) {
	t.removeSuffix(f)
	suf := NormalizedSuffix(f.Name)
	if suf == "" {
		return
	}
	f.suffix = suf
	f.suffixNext = t.suffixIndex[suf]
	t.suffixIndex[suf] = f.ID
}

func (t *Tree) removeSuffix(f *File) {
	if f.suffix == "" {
		return
	}
	head := t.suffixIndex[f.suffix]
	if head == f.ID {
		t.suffixIndex[f.suffix] = f.suffixNext
	} else {
		cur := head
		for cur != NoFile {
			c := t.files[cur]
			if c.suffixNext == f.ID {
				c.suffixNext = f.suffixNext
				break
			}
			cur = c.suffixNext
		}
	}
	f.suffix = ""
	f.suffixNext = NoFile
}

// SuffixHead returns the head of the linked list of files with the given
// normalized suffix.
func (t *Tree) SuffixHead(suffix string) FileID { return t.suffixIndex[suffix] }

// SuffixNext returns the next file sharing id's suffix chain.
func (t *Tree) SuffixNext(id FileID) FileID {
	if f, ok := t.files[id]; ok {
		return f.suffixNext
	}
	return NoFile
}

// LookupAndAdvance implements clockspec.CursorStore: it returns the last
// recorded tick for name (ok=false if never seen) and records current as
// name's new value. Callers must hold Lock (this is a side-effecting read,
// spec §4.6).
func (t *Tree) LookupAndAdvance(name string, current uint32) (uint32, bool) {
	last, ok := t.cursors[name]
	t.cursors[name] = current
	return last, ok
}

// DropCursorsBefore removes cursors whose last recorded tick predates
// boundary, per the age-out policy in spec §4.1.3.
func (t *Tree) DropCursorsBefore(boundary uint32) {
	for name, tick := range t.cursors {
		if tick < boundary {
			delete(t.cursors, name)
		}
	}
}

// SetLastAgeOutTick records the new aging boundary.
func (t *Tree) SetLastAgeOutTick(tick uint32) { t.lastAgeOutTick = tick }

// IncrementRecrawlCount bumps the recrawl counter, returning the new value.
func (t *Tree) IncrementRecrawlCount() uint32 {
	t.recrawlCount++
	return t.recrawlCount
}

// RemoveFile deletes a file node outright (age-out reclaiming a
// non-existent, sufficiently old entry — spec §4.1.3). It unlinks the node
// from the recency list and suffix index and drops it from its parent's
// file map.
func (t *Tree) RemoveFile(id FileID) {
	f, ok := t.files[id]
	if !ok {
		return
	}
	t.unlinkRecency(f)
	t.removeSuffix(f)
	if d, ok := t.dirs[f.Parent]; ok {
		delete(d.Files, t.normalize(f.Name))
	}
	delete(t.files, id)
}

// RemoveEmptyDir deletes a directory node that has no children, used by
// age-out's second pass (spec §4.1.3). It is a no-op if the directory
// still has files or subdirectories, or is the root.
func (t *Tree) RemoveEmptyDir(id DirID) {
	if id == t.root {
		return
	}
	d, ok := t.dirs[id]
	if !ok || len(d.Files) != 0 || len(d.Dirs) != 0 {
		return
	}
	if p, ok := t.dirs[d.Parent]; ok {
		delete(p.Dirs, t.normalize(d.Name))
	}
	delete(t.dirs, id)
}
