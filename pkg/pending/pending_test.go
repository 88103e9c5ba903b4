package pending

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestAddCoalescesRecursiveOverDescendants drives spec.md's S6 scenario: a
// RECURSIVE entry inserted after a descendant already has an entry must
// prune that descendant, whether the RECURSIVE entry consolidates an
// existing node or is itself a brand-new insert.
func TestAddCoalescesRecursiveOverDescendants(t *testing.T) {
	c := NewCollection("")
	now := time.Now()

	c.Add("a/b/c.txt", now, 0)
	c.Add("a/b", now, Recursive)
	c.Add("a/b/d.txt", now, 0)
	c.Add("a/e.txt", now, 0)

	var got []*Entry
	for {
		e, ok := c.Pop()
		if !ok {
			break
		}
		got = append(got, e)
	}

	require.Len(t, got, 2)
	byPath := map[string]*Entry{}
	for _, e := range got {
		byPath[e.Path] = e
	}
	require.Contains(t, byPath, "a/b")
	require.Contains(t, byPath, "a/e.txt")
	require.NotZero(t, byPath["a/b"].Flags&Recursive)
}

// TestAddPrunesDescendantsOnFreshRecursiveInsert isolates the fresh-insert
// case: a RECURSIVE entry whose trie node has never held an entry before
// (a brand-new insert, not a consolidation of an existing one) must still
// prune already-pending descendants.
func TestAddPrunesDescendantsOnFreshRecursiveInsert(t *testing.T) {
	c := NewCollection("")
	now := time.Now()

	c.Add("dir/child.txt", now, 0)
	require.Equal(t, 1, countLocked(c))

	// "dir" has never had an entry of its own; this is a fresh node insert.
	c.Add("dir", now, Recursive)

	require.Equal(t, 1, countLocked(c), "fresh RECURSIVE insert must prune the descendant entry")
	e, ok := c.Pop()
	require.True(t, ok)
	require.Equal(t, "dir", e.Path)
}

func TestAddSkipsEntryAlreadyCoveredByRecursiveAncestor(t *testing.T) {
	c := NewCollection("")
	now := time.Now()

	c.Add("dir", now, Recursive)
	c.Add("dir/child.txt", now, 0)

	require.Equal(t, 1, countLocked(c))
	e, ok := c.Pop()
	require.True(t, ok)
	require.Equal(t, "dir", e.Path)
}

func TestAddDoesNotPruneCrawlOnlyOrCookieEntries(t *testing.T) {
	c := NewCollection(".watchman-cookie-host-1-")
	now := time.Now()

	c.Add("dir/child.txt", now, CrawlOnly)
	c.Add("dir/.watchman-cookie-host-1-7", now, 0)
	c.Add("dir", now, Recursive)

	require.Equal(t, 3, countLocked(c), "CrawlOnly and cookie entries must survive a RECURSIVE ancestor")
}

func countLocked(c *Collection) int {
	n := 0
	for e := c.head; e != nil; e = e.next {
		n++
	}
	return n
}
