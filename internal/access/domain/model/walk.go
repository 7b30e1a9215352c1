package model

// Unlimited makes Walk descend through every level of a value.
const Unlimited = -1

// Walker rewrites a value tree. Transform is applied to every visited
// node before its children; when ShouldStop reports true for the
// transformed node its children are left untouched.
type Walker struct {
	Transform  func(Value) Value
	ShouldStop func(Value) bool
}

// Walk applies w to v, descending at most depth levels below v.
// A depth of 0 only transforms v itself. The input is never mutated.
func (w Walker) Walk(v Value, depth int) Value {
	if w.Transform != nil {
		v = w.Transform(v)
	}
	if w.ShouldStop != nil && w.ShouldStop(v) {
		return v
	}
	if depth == 0 {
		return v
	}
	switch v.kind {
	case KindArray:
		out := make([]Value, len(v.arr))
		for i, item := range v.arr {
			out[i] = w.Walk(item, depth-1)
		}
		return Array(out...)
	case KindMap:
		out := make(map[string]Value, len(v.m))
		for k, item := range v.m {
			out[k] = w.Walk(item, depth-1)
		}
		return Map(out)
	}
	return v
}

// WalkFields applies w to each entry of a field map, descending at most
// depth levels below the entries. It returns a new map.
func (w Walker) WalkFields(fields map[string]Value, depth int) map[string]Value {
	out := make(map[string]Value, len(fields))
	for k, item := range fields {
		out[k] = w.Walk(item, depth)
	}
	return out
}

// Clone deep copies v.
func Clone(v Value) Value {
	return Walker{}.Walk(v, Unlimited)
}
