// Package query implements the generator/expression evaluator described in
// spec §4.5: given a parsed Query and a watchtree.Tree, it produces the
// matching file list plus the clock/fresh-instance metadata every query
// response carries. Grounded on the teacher's pkg/obsidian/ignore.go and
// file_filtering.go glob style, generalized from a single ignore-list match
// into the full generator/expression-tree pair.
package query

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/atomicobject/fswatchd/pkg/clockspec"
	"github.com/atomicobject/fswatchd/pkg/watchtree"
)

// Since bounds a generator/expression evaluation to files touched strictly
// after a point in time, expressed either as a tick or a wall clock.
type Since struct {
	HasTick   bool
	Tick      uint32
	HasWall   bool
	WallTime  int64 // unix seconds
	FieldName string // oclock, cclock, ctime, mtime; not read by the evaluator, which judges "new" by the creation tick
}

// Query is a parsed client request: a generator selection plus an optional
// root expression to filter candidates, and the fields the caller wants
// back.
type Query struct {
	Since        *Since
	SuffixTerms  []string
	PathTerms    []PathTerm
	Glob         []string
	Expr         Expr
	Fields       []string
}

// PathTerm is one entry of a "path" generator clause.
type PathTerm struct {
	Path  string
	Depth int // 0 = direct children only, negative = unbounded
}

// Candidate is one file surfaced by a generator, paired with its lazily
// computed root-relative name.
type Candidate struct {
	ID        watchtree.FileID
	File      *watchtree.File
	wholename string
	tree      *watchtree.Tree
}

// WholeName lazily computes and memoizes the root-relative slash path of
// the candidate (spec §4.5's "optional lazily computed whole-name").
func (c *Candidate) WholeName() string {
	if c.wholename == "" {
		c.wholename = c.tree.RelPath(c.ID)
	}
	return c.wholename
}

func newCandidate(tree *watchtree.Tree, id watchtree.FileID, f *watchtree.File) Candidate {
	return Candidate{ID: id, File: f, tree: tree}
}

// Generate dispatches to whichever generators the query specifies, calling
// visit for every candidate file. If no generator is configured and no
// since is present, the all-files generator runs. Callers must already
// hold tree's read lock.
func Generate(tree *watchtree.Tree, q *Query, visit func(Candidate) bool) {
	ran := false
	if q.Since != nil {
		ran = true
		timeGenerator(tree, q.Since, visit)
	}
	if len(q.SuffixTerms) > 0 {
		ran = true
		suffixGenerator(tree, q.SuffixTerms, visit)
	}
	if len(q.PathTerms) > 0 {
		ran = true
		pathGenerator(tree, q.PathTerms, visit)
	}
	if len(q.Glob) > 0 {
		ran = true
		globGenerator(tree, q.Glob, visit)
	}
	if !ran {
		allFilesGenerator(tree, visit)
	}
}

// timeGenerator walks the recency list from head until the first file
// whose otime predates since.
func timeGenerator(tree *watchtree.Tree, since *Since, visit func(Candidate) bool) {
	for id := tree.RecencyHead(); id != 0; id = tree.RecencyNext(id) {
		f, ok := tree.File(id)
		if !ok {
			continue
		}
		if since.HasTick && f.OTimeTick <= since.Tick {
			break
		}
		if since.HasWall && !f.OTime.After(time.Unix(since.WallTime, 0)) {
			break
		}
		if !visit(newCandidate(tree, id, f)) {
			return
		}
	}
}

// suffixGenerator walks the per-suffix linked list for each requested,
// normalized suffix.
func suffixGenerator(tree *watchtree.Tree, suffixes []string, visit func(Candidate) bool) {
	for _, raw := range suffixes {
		suf := strings.ToLower(strings.TrimPrefix(raw, "."))
		for id := tree.SuffixHead(suf); id != 0; id = tree.SuffixNext(id) {
			f, ok := tree.File(id)
			if !ok {
				continue
			}
			if !visit(newCandidate(tree, id, f)) {
				return
			}
		}
	}
}

// pathGenerator resolves each (path, depth) term to a directory node and
// recursively emits files to the given depth.
func pathGenerator(tree *watchtree.Tree, terms []PathTerm, visit func(Candidate) bool) {
	for _, term := range terms {
		dirID, ok := resolveDir(tree, term.Path)
		if !ok {
			// A syntactically valid but missing path yields no results for
			// that term, not an error (spec §4.5 edge case).
			continue
		}
		if !walkDepth(tree, dirID, term.Depth, visit) {
			return
		}
	}
}

func resolveDir(tree *watchtree.Tree, rel string) (watchtree.DirID, bool) {
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	cur := tree.RootDir()
	if rel == "" || rel == "." {
		return cur, true
	}
	for _, seg := range strings.Split(rel, "/") {
		next, ok := tree.ChildDir(cur, seg)
		if !ok {
			return 0, false
		}
		cur = next
	}
	return cur, true
}

func walkDepth(tree *watchtree.Tree, dirID watchtree.DirID, depth int, visit func(Candidate) bool) bool {
	d, ok := tree.Dir(dirID)
	if !ok {
		return true
	}
	for _, fid := range d.Files {
		f, ok := tree.File(fid)
		if !ok {
			continue
		}
		if !visit(newCandidate(tree, fid, f)) {
			return false
		}
	}
	if depth == 0 {
		return true
	}
	childDepth := depth - 1
	if depth < 0 {
		childDepth = depth
	}
	for _, childID := range d.Dirs {
		if !walkDepth(tree, childID, childDepth, visit) {
			return false
		}
	}
	return true
}

// allFilesGenerator walks the recency list to completion: the default
// generator when neither since nor an explicit generator was specified.
func allFilesGenerator(tree *watchtree.Tree, visit func(Candidate) bool) {
	for id := tree.RecencyHead(); id != 0; id = tree.RecencyNext(id) {
		f, ok := tree.File(id)
		if !ok {
			continue
		}
		if !visit(newCandidate(tree, id, f)) {
			return
		}
	}
}

// ResolveSince converts a clockspec string into the query evaluator's
// internal Since representation, delegating parsing and fingerprint
// comparison to pkg/clockspec (spec §4.6). freshInstance is true when the
// clockspec names a different daemon incarnation, a name never seen
// before, or is absent.
func ResolveSince(spec string, rootNum int, self clockspec.Daemon, currentTick uint32, cursors clockspec.CursorStore) (since *Since, freshInstance bool, err error) {
	if spec == "" {
		return nil, true, nil
	}
	parsed, err := clockspec.Parse(spec)
	if err != nil {
		return nil, false, err
	}
	if parsed.Wall {
		return &Since{HasWall: true, WallTime: parsed.WallTime.Unix()}, false, nil
	}
	ticks, fresh := clockspec.Evaluate(parsed, rootNum, self, currentTick, cursors)
	if fresh {
		return nil, true, nil
	}
	return &Since{HasTick: true, Tick: ticks}, false, nil
}
