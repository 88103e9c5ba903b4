package server

import (
	"context"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/atomicobject/fswatchd/pkg/wire"
)

// Version is reported in every response, the way a real watchman server
// stamps its protocol version on every PDU.
const Version = "1.0"

// session is the per-connection state: the wire codec, every live
// subscription this connection registered, and the write lock that
// serializes command responses against asynchronous subscription pushes
// (both write to the same net.Conn).
type session struct {
	id   string
	srv  *Server
	conn net.Conn

	writeMu sync.Mutex
	enc     *wire.Encoder

	subMu sync.Mutex
	subs  map[string]*subscription
}

func newSession(srv *Server, conn net.Conn) *session {
	return &session{id: uuid.NewString(), srv: srv, conn: conn, subs: make(map[string]*subscription)}
}

// send writes v to the connection, serialized against concurrent
// subscription pushes.
func (sess *session) send(v wire.Value) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	if sess.enc == nil {
		return nil
	}
	return sess.enc.Send(v)
}

// closeAll stops every subscription this session registered, called when
// the connection closes.
func (sess *session) closeAll() {
	sess.subMu.Lock()
	subs := sess.subs
	sess.subs = nil
	sess.subMu.Unlock()
	for _, sub := range subs {
		sub.stop()
		sub.r.RemoveRef()
	}
}

func (sess *session) addSubscription(key string, sub *subscription) {
	sess.subMu.Lock()
	if existing, ok := sess.subs[key]; ok {
		existing.stop()
		existing.r.RemoveRef()
	}
	sess.subs[key] = sub
	sess.subMu.Unlock()
}

func (sess *session) removeSubscription(key string) bool {
	sess.subMu.Lock()
	sub, ok := sess.subs[key]
	if ok {
		delete(sess.subs, key)
	}
	sess.subMu.Unlock()
	if ok {
		sub.stop()
	}
	return ok
}

// handleConn drains PDUs from conn until it closes or ctx is canceled,
// dispatching each to the command table and writing back the response.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	sess := newSession(s, conn)
	defer sess.closeAll()
	s.logger.Printf("server: session %s connected", sess.id)
	defer s.logger.Printf("server: session %s disconnected", sess.id)

	dec := wire.NewDecoder(conn)
	for {
		if ctx.Err() != nil {
			return
		}
		v, err := dec.Next()
		if err != nil {
			return
		}
		if sess.enc == nil {
			sess.enc = wire.NewEncoder(conn, dec.Encoding())
		}

		args, ok := v.([]interface{})
		if !ok || len(args) == 0 {
			sess.send(errorResponse("invalid PDU: expected a non-empty command array"))
			continue
		}
		name, ok := args[0].(string)
		if !ok {
			sess.send(errorResponse("invalid PDU: command name must be a string"))
			continue
		}

		if reason := s.poisonReason(); reason != "" && !allowedWhilePoisoned(name) {
			sess.send(errorResponse(reason))
			continue
		}

		resp := s.dispatch(ctx, sess, name, args[1:])
		if err := sess.send(resp); err != nil {
			return
		}
	}
}

func allowedWhilePoisoned(name string) bool {
	switch name {
	case "shutdown-server", "watch-del-all", "get-pid":
		return true
	default:
		return false
	}
}

func errorResponse(msg string) wire.Value {
	return map[string]interface{}{"error": msg, "version": Version}
}

func okResponse(fields map[string]interface{}) wire.Value {
	out := map[string]interface{}{"version": Version}
	for k, v := range fields {
		out[k] = v
	}
	return out
}
