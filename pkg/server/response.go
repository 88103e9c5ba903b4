package server

import (
	"os"

	"github.com/atomicobject/fswatchd/pkg/query"
)

// formatResults renders query results as the wire.Value array a query/
// since/find/subscribe response carries. With no explicit fields list, a
// fixed default set is returned (name, exists, size, mtime_ms, ctime_ms, type, new);
// an explicit fields list restricts the object to just those keys.
func formatResults(results []query.Result, fields []string) []interface{} {
	out := make([]interface{}, 0, len(results))
	for _, r := range results {
		out = append(out, formatOne(r, fields))
	}
	return out
}

func formatOne(r query.Result, fields []string) map[string]interface{} {
	all := map[string]interface{}{
		"name":     r.WholeName,
		"exists":   r.File.Exists,
		"size":     r.File.Info.Size,
		"mtime_ms": r.File.Info.Mtime.UnixMilli(),
		"ctime_ms": r.File.Info.Ctime.UnixMilli(),
		"type":     typeChar(r.File.Info.Mode),
		"new":      r.IsNew,
	}
	if len(fields) == 0 {
		return all
	}
	out := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		if v, ok := all[f]; ok {
			out[f] = v
		}
	}
	return out
}

func typeChar(mode uint32) string {
	m := os.FileMode(mode)
	switch {
	case m.IsRegular():
		return "f"
	case m&os.ModeDir != 0:
		return "d"
	case m&os.ModeSymlink != 0:
		return "l"
	case m&os.ModeNamedPipe != 0:
		return "p"
	case m&os.ModeSocket != 0:
		return "s"
	case m&os.ModeDevice != 0:
		return "D"
	default:
		return "?"
	}
}
