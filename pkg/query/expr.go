package query

import (
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/atomicobject/fswatchd/pkg/watchtree"
)

// SizeOp is a comparison operator for the size() expression term.
type SizeOp int

const (
	SizeEq SizeOp = iota
	SizeNe
	SizeLt
	SizeLe
	SizeGt
	SizeGe
)

// NameScope selects whether name()/dirname() compares against a file's
// basename or its root-relative wholename.
type NameScope int

const (
	ScopeBasename NameScope = iota
	ScopeWholename
)

// SinceField names which file timestamp/tick field a since() term compares
// against.
type SinceField int

const (
	FieldOClock SinceField = iota
	FieldCClock
	FieldCTime
	FieldMTime
)

// Expr is the total predicate over a (Context, Candidate) pair described in
// spec §4.5. Each constructor below returns a closure implementing it,
// mirroring the teacher's small-predicate style in pkg/obsidian/ignore.go
// rather than a tagged-union visitor.
type Expr func(ctx *EvalContext, c *Candidate) bool

// EvalContext carries the query, the tree, the resolved since-position, and
// the append-only results the evaluator fills in (spec §4.5's Context).
type EvalContext struct {
	Tree       *watchtree.Tree
	Since      *Since
	Results    []Result
}

// Result is one matched file plus the metadata the wire response needs.
type Result struct {
	WholeName string
	File      *watchtree.File
	IsNew     bool
}

// True and False are the trivial leaf expressions.
func True() Expr  { return func(*EvalContext, *Candidate) bool { return true } }
func False() Expr { return func(*EvalContext, *Candidate) bool { return false } }

// Not negates e.
func Not(e Expr) Expr {
	return func(ctx *EvalContext, c *Candidate) bool { return !e(ctx, c) }
}

// AllOf is a short-circuiting conjunction.
func AllOf(terms ...Expr) Expr {
	return func(ctx *EvalContext, c *Candidate) bool {
		for _, t := range terms {
			if !t(ctx, c) {
				return false
			}
		}
		return true
	}
}

// AnyOf is a short-circuiting disjunction.
func AnyOf(terms ...Expr) Expr {
	return func(ctx *EvalContext, c *Candidate) bool {
		for _, t := range terms {
			if t(ctx, c) {
				return true
			}
		}
		return false
	}
}

// Name matches c's basename or wholename against an exact-match set.
func Name(names []string, scope NameScope, caseInsensitive bool) Expr {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[normalizeName(n, caseInsensitive)] = true
	}
	return func(ctx *EvalContext, c *Candidate) bool {
		subject := c.File.Name
		if scope == ScopeWholename {
			subject = c.WholeName()
		}
		return set[normalizeName(subject, caseInsensitive)]
	}
}

func normalizeName(s string, caseInsensitive bool) string {
	if caseInsensitive {
		return strings.ToLower(s)
	}
	return s
}

// Suffix matches the file's normalized extension.
func Suffix(suffix string) Expr {
	want := strings.ToLower(strings.TrimPrefix(suffix, "."))
	return func(ctx *EvalContext, c *Candidate) bool {
		return watchtree.NormalizedSuffix(c.File.Name) == want
	}
}

// TypeChar matches one of the watchman/find-style type codes: b,c,d,f,p,l,s,D.
// File.Info.Mode is stored as the Go os.FileMode bit layout (statinfo.go
// stamps it from os.FileInfo.Mode()), so type bits are read the same way
// here rather than against raw platform stat mode bits.
func TypeChar(t byte) Expr {
	return func(ctx *EvalContext, c *Candidate) bool {
		mode := os.FileMode(c.File.Info.Mode)
		switch t {
		case 'f':
			return mode.IsRegular()
		case 'd':
			return mode&os.ModeDir != 0
		case 'l':
			return mode&os.ModeSymlink != 0
		case 'p':
			return mode&os.ModeNamedPipe != 0
		case 's':
			return mode&os.ModeSocket != 0
		case 'b':
			return mode&os.ModeDevice != 0 && mode&os.ModeCharDevice == 0
		case 'c':
			return mode&os.ModeDevice != 0 && mode&os.ModeCharDevice != 0
		case 'D':
			return mode&os.ModeDevice != 0
		}
		return false
	}
}

// Size compares the file's byte size using op.
func Size(op SizeOp, n int64) Expr {
	return func(ctx *EvalContext, c *Candidate) bool {
		sz := c.File.Info.Size
		switch op {
		case SizeEq:
			return sz == n
		case SizeNe:
			return sz != n
		case SizeLt:
			return sz < n
		case SizeLe:
			return sz <= n
		case SizeGt:
			return sz > n
		case SizeGe:
			return sz >= n
		}
		return false
	}
}

// Dirname matches when the candidate's containing directory equals
// dirPath, or (with depth>0) is within depth levels of it.
func Dirname(dirPath string, depth int, caseInsensitive bool) Expr {
	want := normalizeName(strings.Trim(filepath.ToSlash(dirPath), "/"), caseInsensitive)
	return func(ctx *EvalContext, c *Candidate) bool {
		full := c.WholeName()
		dir := ""
		if i := strings.LastIndexByte(full, '/'); i >= 0 {
			dir = full[:i]
		}
		dir = normalizeName(dir, caseInsensitive)
		if dir == want {
			return true
		}
		if depth <= 0 {
			return false
		}
		if !strings.HasPrefix(dir, want+"/") {
			return false
		}
		rest := strings.TrimPrefix(dir, want+"/")
		return strings.Count(rest, "/")+1 <= depth
	}
}

// Exists matches candidates whose file currently exists. Generators also
// surface files observed as deleted (Exists=false), for example in since()
// results; this term lets a query explicitly filter those out.
func Exists() Expr {
	return func(ctx *EvalContext, c *Candidate) bool { return c.File.Exists }
}

// Empty matches a zero-length regular file (directories are never "empty"
// here — the generator only ever yields files, per spec §3).
func Empty() Expr {
	return func(ctx *EvalContext, c *Candidate) bool {
		return c.File.Exists && c.File.Info.Size == 0 && os.FileMode(c.File.Info.Mode).IsRegular()
	}
}

// Match is a single-component glob match (wholename or basename scope).
func Match(pattern string, scope NameScope, caseInsensitive bool) Expr {
	return func(ctx *EvalContext, c *Candidate) bool {
		subject := c.File.Name
		if scope == ScopeWholename {
			subject = c.WholeName()
		}
		if caseInsensitive {
			subject = strings.ToLower(subject)
			pattern = strings.ToLower(pattern)
		}
		ok, _ := path.Match(pattern, subject)
		return ok
	}
}

// Since matches files whose named field is newer than ctx.Since.
func Since(field SinceField) Expr {
	return func(ctx *EvalContext, c *Candidate) bool {
		if ctx.Since == nil {
			return true
		}
		switch field {
		case FieldOClock, FieldMTime:
			if ctx.Since.HasTick {
				return c.File.OTimeTick > ctx.Since.Tick
			}
			return c.File.OTime.After(time.Unix(ctx.Since.WallTime, 0))
		case FieldCClock, FieldCTime:
			if ctx.Since.HasTick {
				return c.File.CTimeTick > ctx.Since.Tick
			}
			return true
		}
		return true
	}
}

// PCRE compiles pattern as a (possibly case-insensitive) regular
// expression matched against the candidate's wholename, used only when
// regex support is linked in (spec §4.5: "if regex support is linked").
func PCRE(pattern string, caseInsensitive bool) (Expr, error) {
	if caseInsensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return func(ctx *EvalContext, c *Candidate) bool {
		return re.MatchString(c.WholeName())
	}, nil
}
