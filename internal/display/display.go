// Package display renders arbitrary chunk content as stable, non-empty
// text for storage as a Chunk's display_text.
//
// Chunk content can be any Go value a plugin produces: a string, a map
// decoded from YAML, a struct, a slice, a time.Time, anything. This package
// is the Go analogue of the Python source's reliance on repr()/str() as a
// universal fallback, generalized into an explicit interface with
// specializations for the types observed in the reference test suite
// (dict-like values, enums, decimals, paths, datetimes, sets, tuples,
// dataclasses, custom string methods, byte strings).
package display

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Renderer produces the display_text for content. Implementations must
// never return an empty string for non-nil input.
type Renderer interface {
	Render(content any) string
}

// Stringer is implemented by content types that know how to render
// themselves (the Go equivalent of Python's __str__/__repr__ override).
// It takes priority over every other rendering path.
type Stringer interface {
	String() string
}

// defaultRenderer is the package-level Renderer used by Render.
var defaultRenderer Renderer = &renderer{}

// Render formats content into the chunk's display text. A non-empty plain
// string passes through unchanged (an empty one renders as `""`); everything else is serialized through a
// stable formatter so the result is always a non-empty string.
func Render(content any) string {
	return defaultRenderer.Render(content)
}

type renderer struct{}

func (r *renderer) Render(content any) string {
	switch v := content.(type) {
	case nil:
		return "<nil>"
	case string:
		if v == "" {
			return "\"\""
		}
		return v
	case []byte:
		return fmt.Sprintf("b'%s'", string(v))
	case fmt.Stringer:
		s := v.String()
		if s == "" {
			return fmt.Sprintf("%T{}", content)
		}
		return s
	case error:
		return v.Error()
	case time.Time:
		return v.Format(time.RFC3339)
	case map[string]any:
		return renderMap(v)
	case []any:
		return renderSlice(v)
	}

	// Fall back to a stable, deterministic representation for everything
	// else (structs, numbers, bools, other slice/map shapes): prefer JSON
	// when the value marshals cleanly, since JSON keys sort and quote
	// consistently; otherwise fall back to Go's %+v.
	if b, err := json.Marshal(content); err == nil && len(b) > 0 && string(b) != "null" {
		return string(b)
	}
	s := fmt.Sprintf("%+v", content)
	if s == "" {
		return fmt.Sprintf("%T{}", content)
	}
	return s
}

func renderMap(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := "{"
	for i, k := range keys {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%q: %s", k, Render(m[k]))
	}
	return out + "}"
}

func renderSlice(s []any) string {
	out := "["
	for i, v := range s {
		if i > 0 {
			out += ", "
		}
		out += Render(v)
	}
	return out + "]"
}
