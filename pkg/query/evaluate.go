package query

import (
	"github.com/atomicobject/fswatchd/pkg/clockspec"
	"github.com/atomicobject/fswatchd/pkg/watchtree"
)

// Response is the result of evaluating a query against one root: the
// matched files, the clock observed at evaluation start, and whether the
// root's history predates what the tree can answer for (spec §4.5).
type Response struct {
	Results         []Result
	Clock           string
	IsFreshInstance bool
}

// Evaluate runs the full protocol from spec §4.5 step 1-4: resolve since,
// snapshot the tree under its exclusive lock (held for the whole
// evaluation, since a named-cursor lookup writes), run generators, evaluate expr
// against each candidate, and format results. sinceSpec may be empty.
func Evaluate(tree *watchtree.Tree, daemon clockspec.Daemon, rootNumber int, sinceSpec string, q *Query, expr Expr) (Response, error) {
	tree.Lock() // named-cursor lookup is a side-effecting write (spec §4.6)
	currentTick := tree.Tick()
	since, specFresh, err := ResolveSince(sinceSpec, rootNumber, daemon, currentTick, tree)
	if err != nil {
		tree.Unlock()
		return Response{}, err
	}
	q.Since = since
	freshInstance := specFresh || (since != nil && since.HasTick && since.Tick < tree.LastAgeOutTick())

	clock := clockspec.Format(daemon.StartTime, daemon.Pid, rootNumber, currentTick)

	ctx := &EvalContext{Tree: tree, Since: since}
	if expr == nil {
		expr = True()
	}
	Generate(tree, q, func(c Candidate) bool {
		if expr(ctx, &c) {
			ctx.Results = append(ctx.Results, Result{
				WholeName: c.WholeName(),
				File:      c.File,
				IsNew:     isNew(&c, since),
			})
		}
		return true
	})
	tree.Unlock()

	return Response{Results: ctx.Results, Clock: clock, IsFreshInstance: freshInstance}, nil
}

func isNew(c *Candidate, since *Since) bool {
	if since == nil {
		return true
	}
	if since.HasTick {
		return c.File.CTimeTick > since.Tick
	}
	return true
}
