// compile.go turns the generic wire.Value a client sends for the `query`
// command's query-object into a *Query plus compiled Expr, the JSON-term
// counterpart to expr.go's Go constructors (spec §4.5's term vocabulary:
// not/allof/anyof/name/iname/suffix/type/size/dirname/idirname/exists/
// empty/match/imatch/since/pcre).
package query

import (
	"fmt"
	"strings"
)

// CompileQuery parses a client query object (already JSON/BSER-decoded
// into plain Go values) into a *Query ready for Evaluate. The "since"
// field is intentionally left to the caller: Evaluate takes it as a
// separate sinceSpec argument so legacy `since <path> <clockspec>` and
// modern `query {since: ...}` share one resolution path.
func CompileQuery(obj map[string]interface{}) (*Query, error) {
	q := &Query{}

	if v, ok := obj["suffix"]; ok {
		suffixes, err := stringOrList(v)
		if err != nil {
			return nil, fmt.Errorf("query: suffix: %w", err)
		}
		q.SuffixTerms = suffixes
	}

	if v, ok := obj["glob"]; ok {
		globs, err := stringOrList(v)
		if err != nil {
			return nil, fmt.Errorf("query: glob: %w", err)
		}
		q.Glob = globs
	}

	if v, ok := obj["path"]; ok {
		terms, err := compilePathTerms(v)
		if err != nil {
			return nil, err
		}
		q.PathTerms = terms
	}

	if v, ok := obj["fields"]; ok {
		fields, err := stringOrList(v)
		if err != nil {
			return nil, fmt.Errorf("query: fields: %w", err)
		}
		q.Fields = fields
	}

	if v, ok := obj["expression"]; ok {
		expr, err := CompileExpr(v)
		if err != nil {
			return nil, err
		}
		q.Expr = expr
	}

	return q, nil
}

func stringOrList(v interface{}) ([]string, error) {
	switch t := v.(type) {
	case string:
		return []string{t}, nil
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("expected string, got %T", e)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string or array, got %T", v)
	}
}

func compilePathTerms(v interface{}) ([]PathTerm, error) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("query: path: expected array")
	}
	out := make([]PathTerm, 0, len(list))
	for _, e := range list {
		switch t := e.(type) {
		case string:
			out = append(out, PathTerm{Path: t, Depth: 0})
		case map[string]interface{}:
			p, _ := t["path"].(string)
			depth := 0
			if d, ok := t["depth"]; ok {
				depth = toInt(d)
			}
			out = append(out, PathTerm{Path: p, Depth: depth})
		default:
			return nil, fmt.Errorf("query: path: unsupported term %T", e)
		}
	}
	return out, nil
}

func toInt(v interface{}) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case int64:
		return int(t)
	default:
		return 0
	}
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case int:
		return int64(t)
	case int64:
		return t
	default:
		return 0
	}
}

// CompileExpr compiles one expression term, either a bare string
// ("true"/"false"/"exists"/"empty") or a [name, ...args] array.
func CompileExpr(term interface{}) (Expr, error) {
	switch t := term.(type) {
	case string:
		return compileBareTerm(t)
	case []interface{}:
		return compileArrayTerm(t)
	case nil:
		return True(), nil
	default:
		return nil, fmt.Errorf("query: unsupported expression term %T", term)
	}
}

func compileBareTerm(name string) (Expr, error) {
	switch name {
	case "true":
		return True(), nil
	case "false":
		return False(), nil
	case "exists":
		return Exists(), nil
	case "empty":
		return Empty(), nil
	default:
		return nil, fmt.Errorf("query: unknown bare term %q", name)
	}
}

func compileArrayTerm(t []interface{}) (Expr, error) {
	if len(t) == 0 {
		return nil, fmt.Errorf("query: empty expression term")
	}
	op, ok := t[0].(string)
	if !ok {
		return nil, fmt.Errorf("query: expression term must start with an operator name")
	}
	args := t[1:]

	switch op {
	case "not":
		if len(args) != 1 {
			return nil, fmt.Errorf("query: not takes exactly one argument")
		}
		sub, err := CompileExpr(args[0])
		if err != nil {
			return nil, err
		}
		return Not(sub), nil

	case "allof", "anyof":
		subs := make([]Expr, 0, len(args))
		for _, a := range args {
			sub, err := CompileExpr(a)
			if err != nil {
				return nil, err
			}
			subs = append(subs, sub)
		}
		if op == "allof" {
			return AllOf(subs...), nil
		}
		return AnyOf(subs...), nil

	case "name", "iname":
		if len(args) == 0 {
			return nil, fmt.Errorf("query: %s requires a name argument", op)
		}
		names, err := stringOrList(args[0])
		if err != nil {
			return nil, fmt.Errorf("query: %s: %w", op, err)
		}
		scope := ScopeBasename
		if len(args) > 1 {
			if s, ok := args[1].(string); ok && s == "wholename" {
				scope = ScopeWholename
			}
		}
		return Name(names, scope, op == "iname"), nil

	case "suffix":
		if len(args) != 1 {
			return nil, fmt.Errorf("query: suffix requires exactly one argument")
		}
		suf, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("query: suffix argument must be a string")
		}
		return Suffix(suf), nil

	case "type":
		if len(args) != 1 {
			return nil, fmt.Errorf("query: type requires exactly one argument")
		}
		s, ok := args[0].(string)
		if !ok || len(s) != 1 {
			return nil, fmt.Errorf("query: type argument must be a single character")
		}
		return TypeChar(s[0]), nil

	case "size":
		if len(args) != 2 {
			return nil, fmt.Errorf("query: size requires a comparison and a value")
		}
		cmp, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("query: size comparison must be a string")
		}
		sizeOp, err := parseSizeOp(cmp)
		if err != nil {
			return nil, err
		}
		return Size(sizeOp, toInt64(args[1])), nil

	case "dirname", "idirname":
		if len(args) == 0 {
			return nil, fmt.Errorf("query: %s requires a path argument", op)
		}
		p, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("query: %s path must be a string", op)
		}
		depth := -1
		if len(args) > 1 {
			depth = toInt(args[1])
		}
		return Dirname(p, depth, op == "idirname"), nil

	case "exists":
		return Exists(), nil
	case "empty":
		return Empty(), nil

	case "match", "imatch":
		if len(args) == 0 {
			return nil, fmt.Errorf("query: %s requires a pattern argument", op)
		}
		pat, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("query: %s pattern must be a string", op)
		}
		scope := ScopeBasename
		if len(args) > 1 {
			if s, ok := args[1].(string); ok && s == "wholename" {
				scope = ScopeWholename
			}
		}
		return Match(pat, scope, op == "imatch"), nil

	case "since":
		field := FieldMTime
		if len(args) > 0 {
			if s, ok := args[0].(string); ok {
				field = parseSinceField(s)
			}
		}
		return Since(field), nil

	case "pcre", "ipcre":
		if len(args) == 0 {
			return nil, fmt.Errorf("query: %s requires a pattern argument", op)
		}
		pat, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("query: %s pattern must be a string", op)
		}
		return PCRE(pat, op == "ipcre")

	default:
		return nil, fmt.Errorf("query: unknown expression operator %q", op)
	}
}

func parseSizeOp(s string) (SizeOp, error) {
	switch s {
	case "eq", "==":
		return SizeEq, nil
	case "ne", "!=":
		return SizeNe, nil
	case "lt", "<":
		return SizeLt, nil
	case "le", "<=":
		return SizeLe, nil
	case "gt", ">":
		return SizeGt, nil
	case "ge", ">=":
		return SizeGe, nil
	default:
		return 0, fmt.Errorf("query: unknown size comparison %q", s)
	}
}

func parseSinceField(s string) SinceField {
	switch strings.ToLower(s) {
	case "oclock":
		return FieldOClock
	case "cclock":
		return FieldCClock
	case "ctime":
		return FieldCTime
	default:
		return FieldMTime
	}
}
