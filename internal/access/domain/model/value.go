package model

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindDate
	KindArray
	KindMap
	// Store-native kinds. They only appear in payloads handed to a store
	// and in raw snapshots read back from one.
	KindTimestamp
	KindDeleteField
	KindServerTimestamp
)

var kindNames = map[Kind]string{
	KindNull:            "null",
	KindBool:            "bool",
	KindNumber:          "number",
	KindString:          "string",
	KindDate:            "date",
	KindArray:           "array",
	KindMap:             "map",
	KindTimestamp:       "timestamp",
	KindDeleteField:     "delete_field",
	KindServerTimestamp: "server_timestamp",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Timestamp is the store-native instant. It is kept distinct from Date so
// encoders can tell a caller supplied date from a value that came out of
// the store.
type Timestamp struct {
	Seconds int64
	Nanos   int32
}

// TimestampFromTime converts t to a store timestamp truncated to whole
// milliseconds, the precision of cursor tokens and BSON dates.
func TimestampFromTime(t time.Time) Timestamp {
	t = t.Truncate(time.Millisecond)
	return Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

// TimestampFromMillis builds a timestamp from epoch milliseconds.
func TimestampFromMillis(ms int64) Timestamp {
	return TimestampFromTime(time.UnixMilli(ms))
}

// Time returns the timestamp as a UTC time.
func (t Timestamp) Time() time.Time {
	return time.Unix(t.Seconds, int64(t.Nanos)).UTC()
}

// Millis returns the timestamp in epoch milliseconds.
func (t Timestamp) Millis() int64 {
	return t.Time().UnixMilli()
}

// Value is the tagged variant every payload, filter value and snapshot
// field is expressed in.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	t    time.Time
	ts   Timestamp
	arr  []Value
	m    map[string]Value
}

func Null() Value                      { return Value{kind: KindNull} }
func Bool(b bool) Value                { return Value{kind: KindBool, b: b} }
func Number(n float64) Value           { return Value{kind: KindNumber, n: n} }
func Int(i int64) Value                { return Value{kind: KindNumber, n: float64(i)} }
func String(s string) Value            { return Value{kind: KindString, s: s} }
func Date(t time.Time) Value           { return Value{kind: KindDate, t: t} }
func TimestampValue(t Timestamp) Value { return Value{kind: KindTimestamp, ts: t} }
func DeleteField() Value               { return Value{kind: KindDeleteField} }
func ServerTimestamp() Value           { return Value{kind: KindServerTimestamp} }

// Array builds an array value. The slice is not copied.
func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, arr: items}
}

// Map builds a map value. The map is not copied.
func Map(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{kind: KindMap, m: fields}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsSentinel reports whether v is a write-time placeholder resolved by the store.
func (v Value) IsSentinel() bool {
	return v.kind == KindDeleteField || v.kind == KindServerTimestamp
}

func (v Value) AsBool() (bool, bool)           { return v.b, v.kind == KindBool }
func (v Value) AsNumber() (float64, bool)      { return v.n, v.kind == KindNumber }
func (v Value) AsString() (string, bool)       { return v.s, v.kind == KindString }
func (v Value) AsDate() (time.Time, bool)      { return v.t, v.kind == KindDate }
func (v Value) AsTimestamp() (Timestamp, bool) { return v.ts, v.kind == KindTimestamp }
func (v Value) AsArray() ([]Value, bool)       { return v.arr, v.kind == KindArray }
func (v Value) AsMap() (map[string]Value, bool) {
	return v.m, v.kind == KindMap
}

// Field looks up a dotted path inside a map value.
func (v Value) Field(path ...string) (Value, bool) {
	cur := v
	for _, p := range path {
		if cur.kind != KindMap {
			return Value{}, false
		}
		next, ok := cur.m[p]
		if !ok {
			return Value{}, false
		}
		cur = next
	}
	return cur, true
}

// Interface converts v back to plain Go values. Dates become time.Time,
// timestamps stay Timestamp and sentinels are returned as their Value.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindDate:
		return v.t
	case KindTimestamp:
		return v.ts
	case KindArray:
		out := make([]interface{}, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]interface{}, len(v.m))
		for k, item := range v.m {
			out[k] = item.Interface()
		}
		return out
	default:
		return v
	}
}

// Equal reports deep equality. Numbers compare by value, dates and
// timestamps by instant.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull, KindDeleteField, KindServerTimestamp:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n == o.n
	case KindString:
		return v.s == o.s
	case KindDate:
		return v.t.Equal(o.t)
	case KindTimestamp:
		return v.ts == o.ts
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, a := range v.m {
			b, ok := o.m[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	}
	return false
}

// typeOrder follows the cross-type ordering used by document stores:
// null < bool < number < instant < string < array < map.
func typeOrder(k Kind) int {
	switch k {
	case KindNull:
		return 0
	case KindBool:
		return 1
	case KindNumber:
		return 2
	case KindDate, KindTimestamp:
		return 3
	case KindString:
		return 4
	case KindArray:
		return 5
	case KindMap:
		return 6
	default:
		return 7
	}
}

func (v Value) instant() time.Time {
	if v.kind == KindTimestamp {
		return v.ts.Time()
	}
	return v.t
}

// Compare orders two values, returning -1, 0 or 1.
func Compare(a, b Value) int {
	ta, tb := typeOrder(a.kind), typeOrder(b.kind)
	if ta != tb {
		return cmpInt(ta, tb)
	}
	switch ta {
	case 1:
		if a.b == b.b {
			return 0
		}
		if !a.b {
			return -1
		}
		return 1
	case 2:
		switch {
		case a.n < b.n:
			return -1
		case a.n > b.n:
			return 1
		}
		return 0
	case 3:
		ia, ib := a.instant(), b.instant()
		switch {
		case ia.Before(ib):
			return -1
		case ia.After(ib):
			return 1
		}
		return 0
	case 4:
		switch {
		case a.s < b.s:
			return -1
		case a.s > b.s:
			return 1
		}
		return 0
	case 5:
		for i := 0; i < len(a.arr) && i < len(b.arr); i++ {
			if c := Compare(a.arr[i], b.arr[i]); c != 0 {
				return c
			}
		}
		return cmpInt(len(a.arr), len(b.arr))
	case 6:
		ka, kb := sortedKeys(a.m), sortedKeys(b.m)
		for i := 0; i < len(ka) && i < len(kb); i++ {
			if ka[i] != kb[i] {
				if ka[i] < kb[i] {
					return -1
				}
				return 1
			}
			if c := Compare(a.m[ka[i]], b.m[kb[i]]); c != 0 {
				return c
			}
		}
		return cmpInt(len(ka), len(kb))
	}
	return 0
}

// Comparable reports whether a and b share a type class, which range
// comparisons require.
func Comparable(a, b Value) bool {
	return typeOrder(a.kind) == typeOrder(b.kind)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func sortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FromAny converts plain Go data (as produced by encoding/json, bson
// decoding or literals) into a Value.
func FromAny(x interface{}) (Value, error) {
	switch v := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return v, nil
	case bool:
		return Bool(v), nil
	case int:
		return Int(int64(v)), nil
	case int8:
		return Int(int64(v)), nil
	case int16:
		return Int(int64(v)), nil
	case int32:
		return Int(int64(v)), nil
	case int64:
		return Int(v), nil
	case uint:
		return Number(float64(v)), nil
	case uint8:
		return Number(float64(v)), nil
	case uint16:
		return Number(float64(v)), nil
	case uint32:
		return Number(float64(v)), nil
	case uint64:
		return Number(float64(v)), nil
	case float32:
		return Number(float64(v)), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Value{}, fmt.Errorf("unsupported number %v", v)
		}
		return Number(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", v, err)
		}
		return Number(f), nil
	case string:
		return String(v), nil
	case time.Time:
		return Date(v), nil
	case *time.Time:
		if v == nil {
			return Null(), nil
		}
		return Date(*v), nil
	case Timestamp:
		return TimestampValue(v), nil
	case []Value:
		return Array(v...), nil
	case map[string]Value:
		return Map(v), nil
	case []string:
		out := make([]Value, len(v))
		for i, s := range v {
			out[i] = String(s)
		}
		return Array(out...), nil
	case []interface{}:
		out := make([]Value, len(v))
		for i, item := range v {
			conv, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = conv
		}
		return Array(out...), nil
	case map[string]string:
		out := make(map[string]Value, len(v))
		for k, s := range v {
			out[k] = String(s)
		}
		return Map(out), nil
	case map[string]interface{}:
		out, err := MapFromAny(v)
		if err != nil {
			return Value{}, err
		}
		return Map(out), nil
	}
	return Value{}, fmt.Errorf("unsupported value type %T", x)
}

// MapFromAny converts a plain Go map into a field map.
func MapFromAny(m map[string]interface{}) (map[string]Value, error) {
	out := make(map[string]Value, len(m))
	for k, item := range m {
		conv, err := FromAny(item)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = conv
	}
	return out, nil
}

// MustFromAny is FromAny for literals known to be convertible.
func MustFromAny(x interface{}) Value {
	v, err := FromAny(x)
	if err != nil {
		panic(err)
	}
	return v
}
