package server

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/atomicobject/fswatchd/pkg/config"
	"github.com/atomicobject/fswatchd/pkg/query"
	"github.com/atomicobject/fswatchd/pkg/registry"
	"github.com/atomicobject/fswatchd/pkg/root"
	"github.com/atomicobject/fswatchd/pkg/trigger"
	"github.com/atomicobject/fswatchd/pkg/wire"
)

// dispatch routes one decoded command to its handler (spec §6's command
// table). Argument-shape mistakes are reported as ClientProtocol errors;
// the connection itself is never torn down for a bad command.
func (s *Server) dispatch(ctx context.Context, sess *session, name string, args []interface{}) wire.Value {
	switch name {
	case "watch":
		return s.cmdWatch(ctx, args)
	case "watch-project":
		return s.cmdWatchProject(ctx, args)
	case "watch-del":
		return s.cmdWatchDel(args)
	case "watch-del-all":
		return s.cmdWatchDelAll()
	case "watch-list":
		return s.cmdWatchList()
	case "clock":
		return s.cmdClock(ctx, args)
	case "find":
		return s.cmdFind(args)
	case "since":
		return s.cmdSince(args)
	case "query":
		return s.cmdQuery(args)
	case "subscribe":
		return s.cmdSubscribe(sess, args)
	case "unsubscribe":
		return s.cmdUnsubscribe(sess, args)
	case "trigger":
		return s.cmdTrigger(args)
	case "trigger-del":
		return s.cmdTriggerDel(args)
	case "trigger-list":
		return s.cmdTriggerList(args)
	case "state-enter":
		return s.cmdStateEnter(args)
	case "state-leave":
		return s.cmdStateLeave(args)
	case "get-pid":
		return okResponse(map[string]interface{}{"pid": os.Getpid()})
	case "shutdown-server":
		go s.Shutdown()
		return okResponse(map[string]interface{}{"shutdown-server": true})
	default:
		return errorResponse(fmt.Sprintf("unknown command %q", name))
	}
}

// canonicalPath resolves a client-supplied path to an absolute, symlink-
// resolved path (spec §6 watch: "resolve to an absolute canonical path").
func canonicalPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

func argString(args []interface{}, i int) (string, bool) {
	if i >= len(args) {
		return "", false
	}
	s, ok := args[i].(string)
	return s, ok
}

func argObject(args []interface{}, i int) (map[string]interface{}, bool) {
	if i >= len(args) {
		return nil, false
	}
	m, ok := args[i].(map[string]interface{})
	return m, ok
}

func (s *Server) cmdWatch(ctx context.Context, args []interface{}) wire.Value {
	p, ok := argString(args, 0)
	if !ok {
		return errorResponse("watch requires a path argument")
	}
	abs, err := canonicalPath(p)
	if err != nil {
		return errorResponse(err.Error())
	}
	if !s.rootFilesAllow(abs) {
		return errorResponse(fmt.Sprintf("watch: %s does not contain any of the configured root_files", abs))
	}
	r, err := s.startRoot(ctx, abs)
	if err != nil {
		s.classifyAndMaybePoison(err)
		return errorResponse(err.Error())
	}
	return okResponse(map[string]interface{}{"watch": r.Path, "watcher": s.cfg.Watcher})
}

// rootFilesAllow enforces the root_files allowlist policy: a root is only
// watched directly if it, or an ancestor a watch-project walk would have
// found, contains one of the configured marker files. An explicit `watch`
// on any directory is still honored if no root_files are configured at
// all, matching watchman's permissive default.
func (s *Server) rootFilesAllow(abs string) bool {
	if len(s.cfg.RootFiles) == 0 {
		return true
	}
	_, ok := config.FindRootFiles(abs, s.cfg.RootFiles)
	return ok
}

func (s *Server) startRoot(ctx context.Context, abs string) (*root.Root, error) {
	cfg := s.rootConfig(abs)
	r, err := s.reg.WatchWithConfig(ctx, abs, cfg)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Server) cmdWatchProject(ctx context.Context, args []interface{}) wire.Value {
	p, ok := argString(args, 0)
	if !ok {
		return errorResponse("watch-project requires a path argument")
	}
	abs, err := canonicalPath(p)
	if err != nil {
		return errorResponse(err.Error())
	}
	rootDir, found := config.FindRootFiles(abs, s.cfg.RootFiles)
	if !found {
		rootDir = abs
	}
	r, err := s.startRoot(ctx, rootDir)
	if err != nil {
		s.classifyAndMaybePoison(err)
		return errorResponse(err.Error())
	}
	rel, _ := filepath.Rel(rootDir, abs)
	if rel == "." {
		rel = ""
	}
	return okResponse(map[string]interface{}{"watch": r.Path, "relative_path": rel})
}

func (s *Server) cmdWatchDel(args []interface{}) wire.Value {
	p, ok := argString(args, 0)
	if !ok {
		return errorResponse("watch-del requires a path argument")
	}
	abs, err := canonicalPath(p)
	if err != nil {
		return errorResponse(err.Error())
	}
	deleted := s.reg.Del(abs)
	return okResponse(map[string]interface{}{"root": abs, "deleted": deleted})
}

func (s *Server) cmdWatchDelAll() wire.Value {
	s.reg.DelAll()
	return okResponse(map[string]interface{}{"roots": []interface{}{}})
}

func (s *Server) cmdWatchList() wire.Value {
	roots := s.reg.List()
	out := make([]interface{}, len(roots))
	for i, r := range roots {
		out[i] = r
	}
	return okResponse(map[string]interface{}{"roots": out})
}

func (s *Server) lookupRoot(path string) (*root.Root, error) {
	abs, err := canonicalPath(path)
	if err != nil {
		return nil, err
	}
	r, ok := s.reg.Lookup(abs)
	if !ok {
		return nil, fmt.Errorf("unable to resolve root %s: not watched", abs)
	}
	r.Touch()
	return r, nil
}

// cmdClock implements spec §4.3's sync-to-now protocol: an optional
// sync_timeout blocks until a cookie file this call creates is observed by
// the watcher pipeline, the way w_root_sync_to_now does, rather than just
// waiting for an initial crawl that may long since have finished.
func (s *Server) cmdClock(ctx context.Context, args []interface{}) wire.Value {
	p, ok := argString(args, 0)
	if !ok {
		return errorResponse("clock requires a path argument")
	}
	r, err := s.lookupRoot(p)
	if err != nil {
		return errorResponse(err.Error())
	}
	if opts, ok := argObject(args, 1); ok {
		if ms, ok := opts["sync_timeout"]; ok {
			if d := syncTimeout(ms); d > 0 {
				if err := r.Cookies().SyncToNow(d); err != nil {
					return errorResponse("clock: sync_timeout exceeded")
				}
			}
		}
	}
	return okResponse(map[string]interface{}{"clock": r.Clock()})
}

func syncTimeout(v interface{}) time.Duration {
	switch t := v.(type) {
	case float64:
		return time.Duration(t) * time.Millisecond
	case int:
		return time.Duration(t) * time.Millisecond
	default:
		return 0
	}
}

func (s *Server) cmdFind(args []interface{}) wire.Value {
	p, ok := argString(args, 0)
	if !ok {
		return errorResponse("find requires a path argument")
	}
	r, err := s.lookupRoot(p)
	if err != nil {
		return errorResponse(err.Error())
	}
	patterns := patternStrings(args[1:])
	q := &query.Query{}
	if len(patterns) > 0 {
		q.Expr = matchAnyOf(patterns)
	}
	return s.runQuery(r, "", q)
}

func (s *Server) cmdSince(args []interface{}) wire.Value {
	p, ok := argString(args, 0)
	if !ok {
		return errorResponse("since requires a path argument")
	}
	clock, ok := argString(args, 1)
	if !ok {
		return errorResponse("since requires a clockspec argument")
	}
	r, err := s.lookupRoot(p)
	if err != nil {
		return errorResponse(err.Error())
	}
	patterns := patternStrings(args[2:])
	q := &query.Query{}
	if len(patterns) > 0 {
		q.Expr = matchAnyOf(patterns)
	}
	return s.runQuery(r, clock, q)
}

func patternStrings(args []interface{}) []string {
	var out []string
	for _, a := range args {
		if s, ok := a.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func matchAnyOf(patterns []string) query.Expr {
	terms := make([]query.Expr, 0, len(patterns))
	for _, p := range patterns {
		terms = append(terms, query.Match(p, query.ScopeWholename, false))
	}
	return query.AnyOf(terms...)
}

func (s *Server) cmdQuery(args []interface{}) wire.Value {
	p, ok := argString(args, 0)
	if !ok {
		return errorResponse("query requires a path argument")
	}
	obj, ok := argObject(args, 1)
	if !ok {
		return errorResponse("query requires a query object argument")
	}
	r, err := s.lookupRoot(p)
	if err != nil {
		return errorResponse(err.Error())
	}
	q, err := query.CompileQuery(obj)
	if err != nil {
		return errorResponse(err.Error())
	}
	sinceSpec, _ := obj["since"].(string)
	return s.runQuery(r, sinceSpec, q)
}

func (s *Server) runQuery(r *root.Root, sinceSpec string, q *query.Query) wire.Value {
	resp, err := query.Evaluate(r.Tree(), s.daemon, r.Number, sinceSpec, q, q.Expr)
	if err != nil {
		return errorResponse(err.Error())
	}
	return okResponse(map[string]interface{}{
		"clock":             resp.Clock,
		"is_fresh_instance": resp.IsFreshInstance,
		"files":             formatResults(resp.Results, q.Fields),
	})
}

func (s *Server) cmdSubscribe(sess *session, args []interface{}) wire.Value {
	p, ok := argString(args, 0)
	if !ok {
		return errorResponse("subscribe requires a path argument")
	}
	name, ok := argString(args, 1)
	if !ok {
		return errorResponse("subscribe requires a subscription name")
	}
	obj, ok := argObject(args, 2)
	if !ok {
		obj = map[string]interface{}{}
	}
	r, err := s.lookupRoot(p)
	if err != nil {
		return errorResponse(err.Error())
	}
	q, err := query.CompileQuery(obj)
	if err != nil {
		return errorResponse(err.Error())
	}

	sub := startSubscription(sess, r, name, q, s.daemon)
	sess.addSubscription(subscriptionKey(r.Path, name), sub)
	r.AddRef()

	return okResponse(map[string]interface{}{"subscribe": name, "clock": r.Clock()})
}

func (s *Server) cmdUnsubscribe(sess *session, args []interface{}) wire.Value {
	p, ok := argString(args, 0)
	if !ok {
		return errorResponse("unsubscribe requires a path argument")
	}
	name, ok := argString(args, 1)
	if !ok {
		return errorResponse("unsubscribe requires a subscription name")
	}
	abs, err := canonicalPath(p)
	if err != nil {
		return errorResponse(err.Error())
	}
	if r, ok := s.reg.Lookup(abs); ok {
		r.RemoveRef()
	}
	removed := sess.removeSubscription(subscriptionKey(abs, name))
	return okResponse(map[string]interface{}{"unsubscribe": name, "deleted": removed})
}

func subscriptionKey(rootPath, name string) string { return rootPath + "\x00" + name }

func (s *Server) cmdTrigger(args []interface{}) wire.Value {
	p, ok := argString(args, 0)
	if !ok {
		return errorResponse("trigger requires a path argument")
	}
	def, ok := argObject(args, 1)
	if !ok {
		return errorResponse("trigger requires a trigger definition object")
	}
	r, err := s.lookupRoot(p)
	if err != nil {
		return errorResponse(err.Error())
	}

	name, _ := def["name"].(string)
	if name == "" {
		return errorResponse("trigger: definition requires a name")
	}
	rawCmd, _ := def["command"].([]interface{})
	cmd := make([]string, 0, len(rawCmd))
	for _, c := range rawCmd {
		if cs, ok := c.(string); ok {
			cmd = append(cmd, cs)
		}
	}
	if len(cmd) == 0 {
		return errorResponse("trigger: definition requires a non-empty command")
	}
	stdin, _ := def["stdin"].(bool)

	var expr query.Expr
	var rawExprJSON []byte
	if rawExpr, ok := def["expression"]; ok {
		expr, err = query.CompileExpr(rawExpr)
		if err != nil {
			return errorResponse(err.Error())
		}
		rawExprJSON, _ = json.Marshal(rawExpr)
	}

	td := registry.TriggerDef{Name: name, Command: cmd, Stdin: stdin, Expr: rawExprJSON}
	s.triggers.Register(r, trigger.Definition{Name: name, Command: cmd, Expr: expr, Stdin: stdin})

	var defs []registry.TriggerDef
	for _, d := range s.reg.Triggers(r.Path) {
		if d.Name != name {
			defs = append(defs, d)
		}
	}
	defs = append(defs, td)
	s.reg.SetTriggers(r.Path, defs)

	return okResponse(map[string]interface{}{"trigger": name, "disposition": "created"})
}

func (s *Server) cmdTriggerDel(args []interface{}) wire.Value {
	p, ok := argString(args, 0)
	if !ok {
		return errorResponse("trigger-del requires a path argument")
	}
	name, ok := argString(args, 1)
	if !ok {
		return errorResponse("trigger-del requires a trigger name")
	}
	r, err := s.lookupRoot(p)
	if err != nil {
		return errorResponse(err.Error())
	}
	removed := s.triggers.Remove(r.Path, name)

	var kept []registry.TriggerDef
	for _, d := range s.reg.Triggers(r.Path) {
		if d.Name != name {
			kept = append(kept, d)
		}
	}
	s.reg.SetTriggers(r.Path, kept)

	return okResponse(map[string]interface{}{"deleted": removed, "trigger": name})
}

func (s *Server) cmdTriggerList(args []interface{}) wire.Value {
	p, ok := argString(args, 0)
	if !ok {
		return errorResponse("trigger-list requires a path argument")
	}
	r, err := s.lookupRoot(p)
	if err != nil {
		return errorResponse(err.Error())
	}
	names := s.triggers.List(r.Path)
	out := make([]interface{}, len(names))
	for i, n := range names {
		out[i] = n
	}
	return okResponse(map[string]interface{}{"triggers": out})
}

func (s *Server) cmdStateEnter(args []interface{}) wire.Value {
	return s.stateChange(args, "state-enter")
}

func (s *Server) cmdStateLeave(args []interface{}) wire.Value {
	return s.stateChange(args, "state-leave")
}

func (s *Server) stateChange(args []interface{}, which string) wire.Value {
	p, ok := argString(args, 0)
	if !ok {
		return errorResponse(which + " requires a path argument")
	}
	opts, ok := argObject(args, 1)
	if !ok {
		return errorResponse(which + " requires an options object")
	}
	name, _ := opts["name"].(string)
	if name == "" {
		return errorResponse(which + ": options require a name")
	}
	r, err := s.lookupRoot(p)
	if err != nil {
		return errorResponse(err.Error())
	}
	if ms, ok := opts["sync_timeout"]; ok {
		if d := syncTimeout(ms); d > 0 {
			if err := r.Cookies().SyncToNow(d); err != nil {
				return errorResponse(which + ": sync_timeout exceeded")
			}
		}
	}
	payload := map[string]interface{}{which: name, "root": r.Path}
	if md, ok := opts["metadata"]; ok {
		payload["metadata"] = md
	}
	r.Publisher().Enqueue(payload)
	return okResponse(map[string]interface{}{which: name, "clock": r.Clock()})
}
