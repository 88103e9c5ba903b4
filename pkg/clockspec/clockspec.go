// Package clockspec parses and evaluates the three clockspec forms a client
// may send: a ticked fingerprint, a named cursor, or a bare wall timestamp.
// Semantics are grounded on watchman_clockspec.h in original_source/.
package clockspec

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Position is a resolved (root_number, tick) pair: "everything up to and
// including this tick on this root."
type Position struct {
	RootNumber int
	Ticks      uint32
}

// Spec is a parsed clockspec, exactly one of its non-zero fields populated.
type Spec struct {
	// Ticked is set when the client sent a "c:start_time:pid:root_number:tick"
	// fingerprint.
	Ticked    bool
	StartTime int64
	Pid       int
	RootNum   int
	Tick      uint32

	// Named is set when the client sent "n:<name>".
	Named bool
	Name  string

	// Wall is set when the client sent a bare integer (legacy form).
	Wall     bool
	WallTime time.Time
}

// Parse validates and decodes a clockspec string. Malformed specs return an
// error classified as QueryValidation by the caller.
func Parse(s string) (Spec, error) {
	switch {
	case strings.HasPrefix(s, "c:"):
		return parseTicked(s)
	case strings.HasPrefix(s, "n:"):
		name := strings.TrimPrefix(s, "n:")
		if name == "" {
			return Spec{}, fmt.Errorf("clockspec: empty cursor name")
		}
		return Spec{Named: true, Name: name}, nil
	default:
		// Open Question in spec.md §9: whether the bare-integer form is a
		// supported client contract or a legacy affordance is left
		// unresolved upstream. Decision recorded in DESIGN.md: parsing is
		// preserved, but bare integers are always treated as legacy wall
		// timestamps and are evaluated conservatively (see Evaluate).
		secs, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Spec{}, fmt.Errorf("clockspec: malformed spec %q", s)
		}
		return Spec{Wall: true, WallTime: time.Unix(secs, 0)}, nil
	}
}

func parseTicked(s string) (Spec, error) {
	fields := strings.Split(s, ":")
	if len(fields) != 5 {
		return Spec{}, fmt.Errorf("clockspec: malformed ticked spec %q", s)
	}
	startTime, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return Spec{}, fmt.Errorf("clockspec: bad start_time in %q: %w", s, err)
	}
	pid, err := strconv.Atoi(fields[2])
	if err != nil {
		return Spec{}, fmt.Errorf("clockspec: bad pid in %q: %w", s, err)
	}
	rootNum, err := strconv.Atoi(fields[3])
	if err != nil {
		return Spec{}, fmt.Errorf("clockspec: bad root_number in %q: %w", s, err)
	}
	tick, err := strconv.ParseUint(fields[4], 10, 32)
	if err != nil {
		return Spec{}, fmt.Errorf("clockspec: bad tick in %q: %w", s, err)
	}
	return Spec{
		Ticked:    true,
		StartTime: startTime,
		Pid:       pid,
		RootNum:   rootNum,
		Tick:      uint32(tick),
	}, nil
}

// Format renders a Position back into the "c:start_time:pid:root_number:tick"
// wire form returned by the `clock` command.
func Format(startTime int64, pid, rootNum int, tick uint32) string {
	return fmt.Sprintf("c:%d:%d:%d:%d", startTime, pid, rootNum, tick)
}

// CursorStore resolves/updates named cursors for a single root. Evaluation
// of a named cursor is a side-effecting read: looking it up also advances it
// to the current tick, per spec §4.6.
type CursorStore interface {
	// LookupAndAdvance returns the last tick recorded for name, or ok=false if never
	// seen, then records current as the new value.
	LookupAndAdvance(name string, current uint32) (last uint32, ok bool)
}

// Daemon identifies the running process for fingerprint comparison.
type Daemon struct {
	StartTime int64
	Pid       int
}

// Evaluate resolves a Spec against a specific root's current state. ticked
// fingerprints from a different daemon incarnation (different start_time or
// pid) return ticks=0, freshInstance=true, matching the "fresh instance at
// tick 0" sentinel in spec §4.6.
func Evaluate(spec Spec, rootNum int, self Daemon, currentTick uint32, cursors CursorStore) (ticks uint32, freshInstance bool) {
	switch {
	case spec.Ticked:
		if spec.RootNum != rootNum || spec.StartTime != self.StartTime || spec.Pid != self.Pid {
			return 0, true
		}
		return spec.Tick, false
	case spec.Named:
		last, ok := cursors.LookupAndAdvance(spec.Name, currentTick)
		if !ok {
			return 0, true
		}
		return last, false
	case spec.Wall:
		// Wall timestamps carry no root affinity; the caller compares
		// observation timestamps directly rather than ticks. Returning
		// ticks=0 here signals "tick comparison not applicable" to callers
		// that also check spec.Wall.
		return 0, false
	default:
		return 0, true
	}
}
