// Command fswatchd is the watch daemon: it loads its on-disk config,
// restores persisted watched roots and triggers, and serves client
// connections over a unix socket until told to shut down. Grounded on the
// teacher's cmd/mcp.go Run closure (the teacher's one long-running-server
// entry point) generalized from a stdio MCP server to a unix-socket daemon.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atomicobject/fswatchd/pkg/clockspec"
	"github.com/atomicobject/fswatchd/pkg/config"
	"github.com/atomicobject/fswatchd/pkg/query"
	"github.com/atomicobject/fswatchd/pkg/registry"
	"github.com/atomicobject/fswatchd/pkg/root"
	"github.com/atomicobject/fswatchd/pkg/server"
	"github.com/atomicobject/fswatchd/pkg/trigger"

	_ "github.com/atomicobject/fswatchd/pkg/watcher/inotify"
	_ "github.com/atomicobject/fswatchd/pkg/watcher/poll"
)

func main() {
	var (
		sockname    = flag.String("sockname", "", "path to the unix socket (default: under the user config directory)")
		logfile     = flag.String("logfile", "", "path to the daemon log file (default: under the user config directory)")
		statefile   = flag.String("statefile", "", "path to the persisted watch/trigger state file (default: under the user config directory)")
		noSaveState = flag.Bool("no-save-state", false, "disable state persistence entirely")
		watcherName = flag.String("watcher", "", "watcher backend to use (auto, inotify, poll)")
		foreground  = flag.Bool("foreground", false, "log to stderr instead of the log file")
	)
	flag.Parse()

	cfg, err := config.LoadDaemon()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fswatchd: load config: %v\n", err)
		os.Exit(1)
	}
	applyFlagOverrides(&cfg, *sockname, *logfile, *statefile, *watcherName, *noSaveState)

	sockPath := cfg.SockName
	if sockPath == "" {
		sockPath, err = config.SockPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "fswatchd: resolve socket path: %v\n", err)
			os.Exit(1)
		}
	}
	logPath := cfg.LogFile
	if logPath == "" {
		logPath, err = config.LogPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "fswatchd: resolve log path: %v\n", err)
			os.Exit(1)
		}
	}
	statePath := cfg.StateFile
	if statePath == "" && !cfg.NoSaveState {
		_, statePath, err = config.StatePath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "fswatchd: resolve state path: %v\n", err)
			os.Exit(1)
		}
	}
	if cfg.NoSaveState {
		statePath = ""
	}

	logger, closeLog := openLogger(logPath, *foreground)
	defer closeLog()

	daemon := clockspec.Daemon{StartTime: time.Now().Unix(), Pid: os.Getpid()}
	rootCfg := root.Config{
		WatcherName: cfg.Watcher,
		GCInterval:  cfg.GCInterval(),
		GCAge:       cfg.GCAge(),
		IdleReapAge: cfg.IdleReapAge(),
	}
	reg := registry.New(statePath, rootCfg, daemon, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := reg.Load(ctx); err != nil {
		logger.Printf("fswatchd: load persisted state: %v", err)
	}

	triggers := trigger.NewSet(logger)
	restoreTriggers(reg, triggers, logger)

	srv := server.New(sockPath, daemon, cfg, reg, triggers, logger)
	if err := srv.Listen(); err != nil {
		logger.Printf("fswatchd: listen on %s: %v", sockPath, err)
		fmt.Fprintf(os.Stderr, "fswatchd: listen on %s: %v\n", sockPath, err)
		os.Exit(1)
	}
	logger.Printf("fswatchd: listening on %s (pid %d)", sockPath, daemon.Pid)

	if err := srv.Serve(ctx); err != nil {
		logger.Printf("fswatchd: serve: %v", err)
	}
	srv.Shutdown()
	logger.Printf("fswatchd: shut down")
}

func applyFlagOverrides(cfg *config.Daemon, sockname, logfile, statefile, watcher string, noSaveState bool) {
	if sockname != "" {
		cfg.SockName = sockname
	}
	if logfile != "" {
		cfg.LogFile = logfile
	}
	if statefile != "" {
		cfg.StateFile = statefile
	}
	if watcher != "" {
		cfg.Watcher = watcher
	}
	if noSaveState {
		cfg.NoSaveState = true
	}
}

// openLogger opens logfile for append, falling back to stderr if it cannot
// be created or --foreground was requested. It returns a closer the caller
// must defer.
func openLogger(logfile string, foreground bool) (*log.Logger, func()) {
	if foreground || logfile == "" {
		return log.New(os.Stderr, "", log.LstdFlags), func() {}
	}
	f, err := os.OpenFile(logfile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fswatchd: open log file %s: %v (logging to stderr)\n", logfile, err)
		return log.New(os.Stderr, "", log.LstdFlags), func() {}
	}
	return log.New(f, "", log.LstdFlags), func() { f.Close() }
}

// restoreTriggers re-registers every persisted trigger definition against
// its already-watched root (registry.Load has already run by the time this
// is called), compiling each definition's raw expression JSON back into a
// query.Expr.
func restoreTriggers(reg *registry.Registry, triggers *trigger.Set, logger *log.Logger) {
	for _, rootPath := range reg.List() {
		defs := reg.Triggers(rootPath)
		r, ok := reg.Lookup(rootPath)
		if len(defs) == 0 || !ok {
			continue
		}
		for _, d := range defs {
			def, err := compileTriggerDef(d)
			if err != nil {
				logger.Printf("trigger: restore %s on %s: %v", d.Name, rootPath, err)
				continue
			}
			triggers.Register(r, def)
		}
	}
}

func compileTriggerDef(d registry.TriggerDef) (trigger.Definition, error) {
	def := trigger.Definition{Name: d.Name, Command: d.Command, Stdin: d.Stdin}
	if len(d.Expr) == 0 {
		return def, nil
	}
	var raw interface{}
	if err := json.Unmarshal(d.Expr, &raw); err != nil {
		return def, fmt.Errorf("trigger %s: decode persisted expression: %w", d.Name, err)
	}
	expr, err := query.CompileExpr(raw)
	if err != nil {
		return def, fmt.Errorf("trigger %s: compile persisted expression: %w", d.Name, err)
	}
	def.Expr = expr
	return def, nil
}
