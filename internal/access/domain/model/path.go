package model

import (
	"fmt"
	"strings"
)

// AutoID leaves the final placeholder of a document key unbound so a fresh
// id is allocated for it.
const AutoID = ""

// Segment is one slash separated part of a path template.
type Segment struct {
	Literal string
	Param   string
}

// IsParam reports whether the segment is a "{name}" placeholder.
func (s Segment) IsParam() bool { return s.Param != "" }

func (s Segment) String() string {
	if s.IsParam() {
		return "{" + s.Param + "}"
	}
	return s.Literal
}

// Template is a parsed path template such as "users/{uid}/orders/{orderId}".
type Template struct {
	Raw      string
	Segments []Segment
}

// ParseTemplate splits raw into literal and placeholder segments.
func ParseTemplate(raw string) (Template, error) {
	if raw == "" {
		return Template{}, fmt.Errorf("empty path template")
	}
	parts := strings.Split(raw, "/")
	segs := make([]Segment, len(parts))
	seen := map[string]bool{}
	for i, p := range parts {
		switch {
		case p == "":
			return Template{}, fmt.Errorf("template %q has an empty segment", raw)
		case strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") && len(p) > 2:
			name := p[1 : len(p)-1]
			if strings.ContainsAny(name, "{}") {
				return Template{}, fmt.Errorf("template %q has a malformed placeholder %q", raw, p)
			}
			if seen[name] {
				return Template{}, fmt.Errorf("template %q repeats placeholder %q", raw, name)
			}
			seen[name] = true
			segs[i] = Segment{Param: name}
		case strings.ContainsAny(p, "{}"):
			return Template{}, fmt.Errorf("template %q has a malformed placeholder %q", raw, p)
		default:
			segs[i] = Segment{Literal: p}
		}
	}
	return Template{Raw: raw, Segments: segs}, nil
}

// MustParseTemplate panics when raw does not parse.
func MustParseTemplate(raw string) Template {
	t, err := ParseTemplate(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// Placeholders lists placeholder names in path order.
func (t Template) Placeholders() []string {
	var names []string
	for _, s := range t.Segments {
		if s.IsParam() {
			names = append(names, s.Param)
		}
	}
	return names
}

// IsLiteral reports whether the template has no placeholders.
func (t Template) IsLiteral() bool {
	for _, s := range t.Segments {
		if s.IsParam() {
			return false
		}
	}
	return true
}

// IsDocument reports whether the template addresses documents, which
// take an even number of segments.
func (t Template) IsDocument() bool {
	return len(t.Segments)%2 == 0
}

// Last returns the final segment.
func (t Template) Last() Segment {
	return t.Segments[len(t.Segments)-1]
}

// CollectionID returns the id of the collection a document template
// lives in, or "" when it is a placeholder.
func (t Template) CollectionID() string {
	if len(t.Segments) < 2 {
		return ""
	}
	return t.Segments[len(t.Segments)-2].Literal
}

// Match extracts placeholder values from a concrete path.
func (t Template) Match(path string) (map[string]string, bool) {
	parts := strings.Split(path, "/")
	if len(parts) != len(t.Segments) {
		return nil, false
	}
	params := make(map[string]string, len(parts))
	for i, s := range t.Segments {
		if s.IsParam() {
			if parts[i] == "" {
				return nil, false
			}
			params[s.Param] = parts[i]
			continue
		}
		if parts[i] != s.Literal {
			return nil, false
		}
	}
	return params, true
}

// ResolvedPath is the outcome of binding parameters into a template.
type ResolvedPath struct {
	// Path is the concrete path. When TrailingUnbound is set it stops
	// before the unbound final segment.
	Path            string
	TrailingUnbound bool
	// Params holds only the parameters that were substituted.
	Params map[string]string
}
