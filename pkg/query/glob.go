package query

import (
	"path"
	"strings"

	"github.com/atomicobject/fswatchd/pkg/watchtree"
)

// globNode is one level of a compiled glob pattern: patterns are split by
// '/' and matched level-by-level against a directory's children, per spec
// §4.5's glob generator. A "**" component compiles to a recursive node
// that may consume zero or more path segments.
type globNode struct {
	component string
	recursive bool
	next      *globNode // nil marks the terminal (file-matching) component
}

func compileGlobs(patterns []string) []*globNode {
	compiled := make([]*globNode, 0, len(patterns))
	for _, p := range patterns {
		segs := strings.Split(strings.Trim(path.Clean("/"+p), "/"), "/")
		compiled = append(compiled, compileSegments(segs))
	}
	return compiled
}

func compileSegments(segs []string) *globNode {
	if len(segs) == 0 {
		return nil
	}
	head := segs[0]
	return &globNode{component: head, recursive: head == "**", next: compileSegments(segs[1:])}
}

// globGenerator walks the tree from the root, matching each candidate
// file's root-relative path against the compiled patterns.
func globGenerator(tree *watchtree.Tree, patterns []string, visit func(Candidate) bool) {
	compiled := compileGlobs(patterns)

	var walk func(dirID watchtree.DirID, nodes []*globNode) bool
	walk = func(dirID watchtree.DirID, nodes []*globNode) bool {
		d, ok := tree.Dir(dirID)
		if !ok {
			return true
		}
		nodes = expandZero(nodes)
		for name, fid := range d.Files {
			if matchesTerminal(nodes, name) {
				f, ok := tree.File(fid)
				if ok && !visit(newCandidate(tree, fid, f)) {
					return false
				}
			}
		}
		for name, childID := range d.Dirs {
			childNodes := descend(nodes, name)
			if len(childNodes) > 0 && !walk(childID, childNodes) {
				return false
			}
		}
		return true
	}
	walk(tree.RootDir(), compiled)
}

// matchesTerminal reports whether name matches any node that is already at
// its last path component (next == nil).
func matchesTerminal(nodes []*globNode, name string) bool {
	for _, n := range nodes {
		if n == nil || n.next != nil {
			continue
		}
		if n.recursive {
			return true
		}
		if ok, _ := path.Match(n.component, name); ok {
			return true
		}
	}
	return false
}

// expandZero adds, for every "**" node, the component that follows it,
// since "**" may consume zero path segments (so "**/a.txt" matches "a.txt"
// at any depth, including zero).
func expandZero(nodes []*globNode) []*globNode {
	out := append([]*globNode(nil), nodes...)
	for i := 0; i < len(out); i++ {
		if n := out[i]; n != nil && n.recursive && n.next != nil {
			out = append(out, n.next)
		}
	}
	return out
}

// descend advances each node one directory level given the child's name;
// a "**" node stays in place so it can consume further segments.
func descend(nodes []*globNode, name string) []*globNode {
	var out []*globNode
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if n.recursive {
			out = append(out, n)
			continue
		}
		if ok, _ := path.Match(n.component, name); ok && n.next != nil {
			out = append(out, n.next)
		}
	}
	return out
}
