package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomicobject/fswatchd/pkg/watchtree"
)

func TestCompileQueryParsesSuffixAndGlob(t *testing.T) {
	q, err := CompileQuery(map[string]interface{}{
		"suffix": []interface{}{"txt", "log"},
		"glob":   "**/*.go",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"txt", "log"}, q.SuffixTerms)
	assert.Equal(t, []string{"**/*.go"}, q.Glob)
}

func TestCompileExprAllOfNameSuffix(t *testing.T) {
	term := []interface{}{
		"allof",
		[]interface{}{"suffix", "txt"},
		[]interface{}{"not", []interface{}{"name", "c.txt"}},
	}
	expr, err := CompileExpr(term)
	require.NoError(t, err)

	tree := buildTree(t)
	tree.RLock()
	defer tree.RUnlock()
	ctx := &EvalContext{Tree: tree}

	var matched []string
	allFilesGenerator(tree, func(c Candidate) bool {
		if expr(ctx, &c) {
			matched = append(matched, c.WholeName())
		}
		return true
	})
	assert.Equal(t, []string{"a.txt"}, matched)
}

func TestCompileExprSizeComparison(t *testing.T) {
	term := []interface{}{"size", "gt", float64(0)}
	expr, err := CompileExpr(term)
	require.NoError(t, err)

	tree := buildTree(t)
	tree.RLock()
	defer tree.RUnlock()
	ctx := &EvalContext{Tree: tree}

	var matched []string
	allFilesGenerator(tree, func(c Candidate) bool {
		if expr(ctx, &c) {
			matched = append(matched, c.WholeName())
		}
		return true
	})
	assert.ElementsMatch(t, []string{"a.txt", "sub/b.log"}, matched)
}

func TestCompileExprRejectsUnknownOperator(t *testing.T) {
	_, err := CompileExpr([]interface{}{"bogus"})
	assert.Error(t, err)
}

func TestCompileQueryExpression(t *testing.T) {
	q, err := CompileQuery(map[string]interface{}{
		"expression": []interface{}{"suffix", "txt"},
	})
	require.NoError(t, err)
	require.NotNil(t, q.Expr)

	tree := watchtree.New("/root", false)
	tree.Lock()
	f := tree.EnsureFile(tree.RootDir(), "a.txt")
	tree.MarkChanged(f, watchtree.FileInformation{Size: 1}, "")
	tree.Unlock()

	tree.RLock()
	defer tree.RUnlock()
	ctx := &EvalContext{Tree: tree}
	cand := newCandidate(tree, f, &watchtree.File{Name: "a.txt", Exists: true})
	assert.True(t, q.Expr(ctx, &cand))
}
