// Package wire implements the two PDU framings clients may speak to the
// daemon: newline-terminated JSON, and the binary BSER format. Both are
// autodetected from the first two bytes of a frame, per spec §6.
package wire

import (
	"bufio"
	"errors"
	"io"
)

// Encoding identifies which framing a connection is using.
type Encoding int

const (
	JSON Encoding = iota
	BSERv1
	BSERv2
)

var (
	bserV1Magic = [2]byte{0x00, 0x01}
	bserV2Magic = [2]byte{0x00, 0x02}
)

// ErrNeedData is returned (wrapped) by Decoder.Next when the stream ends
// before a BSER frame's declared payload has been read in full. The bytes
// already consumed are not kept, so the frame cannot be resumed.
var ErrNeedData = errors.New("wire: need more data")

// Sniff inspects the first two bytes of a frame and reports its encoding.
func Sniff(first2 [2]byte) Encoding {
	switch first2 {
	case bserV1Magic:
		return BSERv1
	case bserV2Magic:
		return BSERv2
	default:
		return JSON
	}
}

// Decoder reads PDUs off a byte stream, auto-detecting JSON vs BSER framing
// per connection (the first PDU determines it for the life of the
// connection, matching real watchman behavior: a client picks one framing
// and sticks with it).
type Decoder struct {
	r        *bufio.Reader
	encoding Encoding
	detected bool
}

// NewDecoder wraps r for PDU decoding.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next reads and decodes one PDU, returning it as a generic Value tree
// (map[string]interface{} for objects, []interface{} for arrays/templates).
func (d *Decoder) Next() (Value, error) {
	if !d.detected {
		peek, err := d.r.Peek(2)
		if err != nil {
			return nil, err
		}
		d.encoding = Sniff([2]byte{peek[0], peek[1]})
		d.detected = true
	}
	switch d.encoding {
	case JSON:
		return decodeJSONLine(d.r)
	default:
		return decodeBSER(d.r, d.encoding)
	}
}

// Encoding reports the framing detected for this connection so far.
func (d *Decoder) Encoding() Encoding { return d.encoding }

// Encoder writes PDUs using a fixed encoding for the life of a connection.
type Encoder struct {
	w        io.Writer
	encoding Encoding
	// capabilities is the BSERv2 capability bitmask to advertise; unused
	// for JSON and BSERv1.
	capabilities uint32
}

// NewEncoder constructs an Encoder that writes using enc.
func NewEncoder(w io.Writer, enc Encoding) *Encoder {
	return &Encoder{w: w, encoding: enc}
}

// Send writes v as a single PDU.
func (e *Encoder) Send(v Value) error {
	switch e.encoding {
	case JSON:
		return encodeJSONLine(e.w, v)
	default:
		return encodeBSER(e.w, e.encoding, e.capabilities, v)
	}
}

// Value is the self-describing typed value BSER and JSON both round-trip:
// nil, bool, int64, float64, string, []Value, map[string]Value, or
// TemplateArray (a BSER-specific compact array-of-objects encoding that
// flattens to []Value on decode).
type Value interface{}

