package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomicobject/fswatchd/pkg/clockspec"
	"github.com/atomicobject/fswatchd/pkg/watchtree"
)

func buildTree(t *testing.T) *watchtree.Tree {
	t.Helper()
	tree := watchtree.New("/root", false)
	tree.Lock()
	defer tree.Unlock()

	sub := tree.EnsureDir("sub")
	a := tree.EnsureFile(tree.RootDir(), "a.txt")
	tree.MarkChanged(a, watchtree.FileInformation{Size: 3}, "")
	b := tree.EnsureFile(sub, "b.log")
	tree.MarkChanged(b, watchtree.FileInformation{Size: 5}, "")
	c := tree.EnsureFile(sub, "c.txt")
	tree.MarkChanged(c, watchtree.FileInformation{Size: 0}, "")
	return tree
}

func TestSuffixGeneratorFindsMatchingFiles(t *testing.T) {
	tree := buildTree(t)
	tree.RLock()
	defer tree.RUnlock()

	var names []string
	suffixGenerator(tree, []string{"txt"}, func(c Candidate) bool {
		names = append(names, c.WholeName())
		return true
	})
	assert.ElementsMatch(t, []string{"a.txt", "sub/c.txt"}, names)
}

func TestPathGeneratorRespectsDepth(t *testing.T) {
	tree := buildTree(t)
	tree.RLock()
	defer tree.RUnlock()

	var names []string
	pathGenerator(tree, []PathTerm{{Path: "", Depth: 0}}, func(c Candidate) bool {
		names = append(names, c.WholeName())
		return true
	})
	assert.Equal(t, []string{"a.txt"}, names)
}

func TestGlobGeneratorMatchesDoubleStar(t *testing.T) {
	tree := buildTree(t)
	tree.RLock()
	defer tree.RUnlock()

	var names []string
	globGenerator(tree, []string{"**/*.txt"}, func(c Candidate) bool {
		names = append(names, c.WholeName())
		return true
	})
	assert.ElementsMatch(t, []string{"a.txt", "sub/c.txt"}, names)
}

func TestEmptyExprMatchesZeroLengthFile(t *testing.T) {
	tree := buildTree(t)
	tree.RLock()
	defer tree.RUnlock()

	expr := Empty()
	ctx := &EvalContext{Tree: tree}
	var matched []string
	allFilesGenerator(tree, func(cand Candidate) bool {
		if expr(ctx, &cand) {
			matched = append(matched, cand.WholeName())
		}
		return true
	})
	assert.Equal(t, []string{"sub/c.txt"}, matched)
}

func TestEvaluateReturnsFreshInstanceWhenClockUnknown(t *testing.T) {
	tree := buildTree(t)
	daemon := clockspec.Daemon{StartTime: 1, Pid: 1}

	resp, err := Evaluate(tree, daemon, 1, "", &Query{}, nil)
	require.NoError(t, err)
	assert.True(t, resp.IsFreshInstance)
	assert.Len(t, resp.Results, 3)
}

func TestEvaluateSinceTickOnlyReturnsNewerFiles(t *testing.T) {
	tree := buildTree(t)
	daemon := clockspec.Daemon{StartTime: 1, Pid: 1}

	tree.RLock()
	tick := tree.Tick()
	tree.RUnlock()

	tree.Lock()
	d := tree.EnsureFile(tree.RootDir(), "late.txt")
	tree.MarkChanged(d, watchtree.FileInformation{Size: 1}, "")
	tree.Unlock()

	clock := clockspec.Format(daemon.StartTime, daemon.Pid, 1, tick)
	resp, err := Evaluate(tree, daemon, 1, clock, &Query{}, nil)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "late.txt", resp.Results[0].WholeName)
	assert.True(t, resp.Results[0].IsNew)
}

func TestNameExprCaseInsensitive(t *testing.T) {
	tree := buildTree(t)
	tree.RLock()
	defer tree.RUnlock()

	expr := Name([]string{"A.TXT"}, ScopeBasename, true)
	ctx := &EvalContext{Tree: tree}
	matched := 0
	allFilesGenerator(tree, func(cand Candidate) bool {
		if expr(ctx, &cand) {
			matched++
		}
		return true
	})
	assert.Equal(t, 1, matched)
}
