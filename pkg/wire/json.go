package wire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// decodeJSONLine reads one newline-terminated JSON document.
func decodeJSONLine(r *bufio.Reader) (Value, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		if err == io.EOF && len(line) > 0 {
			// Tolerate a final frame missing its trailing newline.
		} else {
			return nil, err
		}
	}
	var v interface{}
	if err := json.Unmarshal(line, &v); err != nil {
		return nil, fmt.Errorf("wire: malformed json pdu: %w", err)
	}
	return v, nil
}

// encodeJSONLine writes v as a single line of JSON terminated by '\n'.
func encodeJSONLine(w io.Writer, v Value) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}
