// Package client is the socket-side counterpart to pkg/server: it dials the
// daemon's unix socket, speaks the same pkg/wire PDU framing, and exposes one
// method per spec §6 verb for cmd/fswatch's cobra commands to call. Grounded
// on the teacher's pkg/obsidian/uri.go pattern of a thin struct wrapping a
// single external-facing operation (there: building and opening an
// obsidian:// URI; here: one round trip over the daemon socket).
package client

import (
	"fmt"
	"net"
	"time"

	"github.com/atomicobject/fswatchd/pkg/wire"
)

// Client is a single connection to the daemon, not safe for concurrent
// command calls (each Call blocks waiting for the matching response) but
// safe to read unsolicited subscription pushes from a separate goroutine
// once Subscribe has been issued, mirroring the real watchman client's
// "one socket, synchronous command/response plus async push" model.
type Client struct {
	conn net.Conn
	dec  *wire.Decoder
	enc  *wire.Encoder
}

// Dial connects to the daemon listening at sockPath.
func Dial(sockPath string) (*Client, error) {
	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", sockPath, err)
	}
	return &Client{conn: conn, dec: wire.NewDecoder(conn)}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// SetTimeout bounds how long the next Call/ReadPush waits for data.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.conn.SetDeadline(time.Now().Add(d))
	} else {
		c.conn.SetDeadline(time.Time{})
	}
}

// Call sends one PDU (command name followed by its arguments) and returns
// the decoded response object. The first call on a connection determines
// its wire encoding (JSON by default; BSER if the daemon ever initiates it,
// which this client never does).
func (c *Client) Call(name string, args ...interface{}) (map[string]interface{}, error) {
	if c.enc == nil {
		c.enc = wire.NewEncoder(c.conn, wire.JSON)
	}
	pdu := append([]interface{}{name}, args...)
	if err := c.enc.Send(pdu); err != nil {
		return nil, fmt.Errorf("client: send %s: %w", name, err)
	}
	return c.readResponse()
}

// ReadPush blocks for the next unsolicited PDU (a subscription result),
// used by `fswatch subscribe`'s streaming mode after the initial subscribe
// Call has returned.
func (c *Client) ReadPush() (map[string]interface{}, error) {
	return c.readResponse()
}

func (c *Client) readResponse() (map[string]interface{}, error) {
	v, err := c.dec.Next()
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("client: expected a response object, got %T", v)
	}
	if msg, ok := obj["error"].(string); ok {
		return obj, &Error{Message: msg}
	}
	return obj, nil
}

// Error wraps a daemon-reported {error: ...} response so callers can
// type-switch on it separately from transport failures.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }
