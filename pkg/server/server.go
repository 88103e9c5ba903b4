// Package server implements the daemon's transport and command dispatch
// (spec §6): a unix-socket listener accepting one session per connection,
// each session decoding/encoding PDUs via pkg/wire and dispatching to the
// registry/query/trigger packages. Grounded on the teacher's cmd/mcp.go
// (the one place in the teacher that owns a long-running accept loop
// wired to a background goroutine) generalized from a single MCP stdio
// loop into a multi-connection unix-socket server.
package server

import (
	"context"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/atomicobject/fswatchd/pkg/clockspec"
	"github.com/atomicobject/fswatchd/pkg/config"
	"github.com/atomicobject/fswatchd/pkg/fserrors"
	"github.com/atomicobject/fswatchd/pkg/registry"
	"github.com/atomicobject/fswatchd/pkg/root"
	"github.com/atomicobject/fswatchd/pkg/trigger"
)

// Server owns the listening socket and every live session.
type Server struct {
	sockPath string
	daemon   clockspec.Daemon
	cfg      config.Daemon
	logger   *log.Logger

	reg      *registry.Registry
	triggers *trigger.Set

	mu       sync.Mutex
	listener net.Listener
	poisoned string // non-empty once a ResourceExhaustion condition fires (spec §7)

	wg sync.WaitGroup
}

// New constructs a Server. reg must already have had Load called (or be
// freshly empty) by the caller.
func New(sockPath string, daemon clockspec.Daemon, cfg config.Daemon, reg *registry.Registry, triggers *trigger.Set, logger *log.Logger) *Server {
	return &Server{
		sockPath: sockPath,
		daemon:   daemon,
		cfg:      cfg,
		logger:   logger,
		reg:      reg,
		triggers: triggers,
	}
}

// Listen creates the unix socket, removing a stale one left by a crashed
// previous instance, and sets its permission bits to 0600. The bits are
// fixed rather than read from configuration, and no group-ownership check
// is made.
func (s *Server) Listen() error {
	if _, err := os.Stat(s.sockPath); err == nil {
		os.Remove(s.sockPath)
	}
	l, err := net.Listen("unix", s.sockPath)
	if err != nil {
		return fserrors.Wrap(fserrors.Fatal, err, "server: listen")
	}
	if err := os.Chmod(s.sockPath, 0600); err != nil {
		l.Close()
		return fserrors.Wrap(fserrors.Fatal, err, "server: chmod socket")
	}
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
	return nil
}

// Serve accepts connections until ctx is canceled or Shutdown is called.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		l := s.listener
		s.mu.Unlock()
		if l != nil {
			l.Close()
		}
	}()

	for {
		s.mu.Lock()
		l := s.listener
		s.mu.Unlock()
		if l == nil {
			return fserrors.Wrap(fserrors.Fatal, net.ErrClosed, "server: not listening")
		}
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			return fserrors.Wrap(fserrors.TransientIo, err, "server: accept")
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Shutdown closes the listener, tears down every watched root, and removes
// the socket file. It does not wait for in-flight sessions; each session
// ends when its connection closes.
func (s *Server) Shutdown() {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l != nil {
		l.Close()
	}
	s.reg.CancelAll()
	os.Remove(s.sockPath)
}

// poison records a ResourceExhaustion condition (spec §7): every command
// after this except the small allowlist returns reason verbatim.
func (s *Server) poison(reason string) {
	s.mu.Lock()
	if s.poisoned == "" {
		s.poisoned = reason
		s.logger.Printf("server: poisoned: %s", reason)
	}
	s.mu.Unlock()
}

func (s *Server) poisonReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poisoned
}

// classifyAndMaybePoison inspects an error from starting a root and, if it
// indicates resource exhaustion (EMFILE/ENFILE anywhere in its wrap chain,
// e.g. from opening a watcher), poisons the server per spec §7. Accept
// errors do not pass through here; an Accept failure ends Serve.
func (s *Server) classifyAndMaybePoison(err error) {
	if err == nil {
		return
	}
	if fserrors.KindOf(err) == fserrors.ResourceExhaustion || fserrors.Classify(err) == fserrors.ResourceExhaustion {
		s.poison(err.Error())
	}
}

// rootConfig builds a root.Config for absPath, applying any per-root
// override file on top of the daemon-wide defaults (spec §6's
// .watchmanconfig-equivalent).
func (s *Server) rootConfig(absPath string) root.Config {
	cfg := root.Config{
		WatcherName: s.cfg.Watcher,
		GCInterval:  s.cfg.GCInterval(),
		GCAge:       s.cfg.GCAge(),
		IdleReapAge: s.cfg.IdleReapAge(),
	}
	override, err := config.LoadRootOverride(absPath)
	if err == nil && override != nil {
		if override.GCAgeSeconds > 0 {
			cfg.GCAge = time.Duration(override.GCAgeSeconds) * time.Second
		}
		if override.IdleReapSeconds > 0 {
			cfg.IdleReapAge = time.Duration(override.IdleReapSeconds) * time.Second
		}
	}
	return cfg
}
