// Package fserrors classifies filesystem and protocol failures into the
// small set of kinds the root engine and client-facing commands treat
// differently (see spec §7).
package fserrors

import (
	"os"
	"syscall"

	"github.com/pkg/errors"
)

// Kind is one of the error categories the daemon distinguishes when deciding
// whether to recover silently, mark a node deleted, warn, poison the
// process, or surface a client-visible failure.
type Kind int

const (
	// Unknown is returned by Classify for a nil error and by KindOf for an
	// error that was never classified; Classify maps any other unrecognized
	// error to TransientIo.
	Unknown Kind = iota
	// TransientIo covers EINTR/EAGAIN and other retry-or-recrawl conditions.
	TransientIo
	// MissingPath covers ENOENT/ENOTDIR and symlink loops.
	MissingPath
	// Permission covers EACCES/EPERM.
	Permission
	// ResourceExhaustion covers EMFILE/ENFILE; the process is poisoned.
	ResourceExhaustion
	// ClientProtocol covers malformed PDUs and unknown commands.
	ClientProtocol
	// QueryValidation covers unknown query terms or bad argument shapes.
	QueryValidation
	// Timeout covers cookie-sync and query sync-to-now deadlines.
	Timeout
	// Fatal covers conditions that should abort the daemon outright.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case TransientIo:
		return "transient-io"
	case MissingPath:
		return "missing-path"
	case Permission:
		return "permission"
	case ResourceExhaustion:
		return "resource-exhaustion"
	case ClientProtocol:
		return "client-protocol"
	case QueryValidation:
		return "query-validation"
	case Timeout:
		return "timeout"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// classified wraps an error with the Kind assigned to it, preserving the
// pkg/errors stack trace captured at the point of classification.
type classified struct {
	kind Kind
	err  error
}

func (c *classified) Error() string { return c.err.Error() }
func (c *classified) Unwrap() error { return c.err }
func (c *classified) Cause() error  { return c.err }

// Wrap annotates err with kind, capturing a stack trace via pkg/errors so
// Fatal/ResourceExhaustion conditions retain where they originated.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &classified{kind: kind, err: errors.Wrap(err, message)}
}

// KindOf returns the Kind attached by Wrap, or Unknown if err was never
// classified.
func KindOf(err error) Kind {
	var c *classified
	if errors.As(err, &c) {
		return c.kind
	}
	return Unknown
}

// Classify inspects a raw OS error (typically from stat/open/readdir) and
// assigns it a Kind per the stat-failure table in spec §4.1 step 3/4.
func Classify(err error) Kind {
	if err == nil {
		return Unknown
	}
	if os.IsNotExist(err) {
		return MissingPath
	}
	if os.IsPermission(err) {
		return Permission
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ENOENT, syscall.ENOTDIR, syscall.ELOOP:
			return MissingPath
		case syscall.EACCES, syscall.EPERM:
			return Permission
		case syscall.EMFILE, syscall.ENFILE:
			return ResourceExhaustion
		case syscall.EINTR, syscall.EAGAIN:
			return TransientIo
		}
	}
	return TransientIo
}
