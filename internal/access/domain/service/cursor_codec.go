package service

import (
	"bytes"
	"encoding/json"
	"fmt"

	"firestore-access/internal/access/domain/model"
	"firestore-access/internal/shared/errors"
)

const timestampTag = "Timestamp"

// CursorCodec turns the last seen order-field value into an opaque resume
// token and back.
type CursorCodec interface {
	// Encode captures last under order. found=false encodes a null value.
	Encode(order model.Order, last model.Value, found bool) (string, error)
	// Decode returns the resume value held by token, or ok=false when the
	// token holds null. A token captured under another ordering fails with
	// errors.ErrCursorOrderMismatch.
	Decode(token string, order model.Order) (value model.Value, ok bool, err error)
}

type cursorCodec struct{}

// NewCursorCodec creates a new cursor codec
func NewCursorCodec() CursorCodec {
	return &cursorCodec{}
}

type cursorToken struct {
	OrderedBy  string          `json:"orderedBy"`
	FieldValue json.RawMessage `json:"fieldValue"`
}

type taggedTimestamp struct {
	Type string `json:"type"`
	Val  int64  `json:"val"`
}

func (c *cursorCodec) Encode(order model.Order, last model.Value, found bool) (string, error) {
	raw := json.RawMessage("null")
	if found {
		b, err := json.Marshal(encodeCursorValue(last))
		if err != nil {
			return "", fmt.Errorf("encode cursor value: %w", err)
		}
		raw = b
	}
	b, err := json.Marshal(cursorToken{OrderedBy: order.String(), FieldValue: raw})
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return string(b), nil
}

func (c *cursorCodec) Decode(token string, order model.Order) (model.Value, bool, error) {
	var tok cursorToken
	if err := json.Unmarshal([]byte(token), &tok); err != nil {
		return model.Value{}, false, malformedCursor(err.Error())
	}
	if tok.OrderedBy != order.String() {
		return model.Value{}, false, errors.CursorOrderMismatch(tok.OrderedBy, order.String())
	}
	trimmed := bytes.TrimSpace(tok.FieldValue)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return model.Null(), false, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return model.Value{}, false, malformedCursor(err.Error())
	}
	v, err := decodeCursorValue(raw)
	if err != nil {
		return model.Value{}, false, malformedCursor(err.Error())
	}
	return v, true, nil
}

func malformedCursor(reason string) error {
	return errors.NewValidationError("malformed cursor").
		WithCause(errors.ErrInvalidInput).
		WithCode("MALFORMED_CURSOR").
		WithDetail("reason", reason)
}

func encodeCursorValue(v model.Value) interface{} {
	switch v.Kind() {
	case model.KindTimestamp:
		ts, _ := v.AsTimestamp()
		return taggedTimestamp{Type: timestampTag, Val: ts.Millis()}
	case model.KindDate:
		d, _ := v.AsDate()
		return taggedTimestamp{Type: timestampTag, Val: d.UnixMilli()}
	case model.KindArray:
		items, _ := v.AsArray()
		out := make([]interface{}, len(items))
		for i, item := range items {
			out[i] = encodeCursorValue(item)
		}
		return out
	case model.KindMap:
		fields, _ := v.AsMap()
		out := make(map[string]interface{}, len(fields))
		for k, item := range fields {
			out[k] = encodeCursorValue(item)
		}
		return out
	}
	return v.Interface()
}

func decodeCursorValue(raw interface{}) (model.Value, error) {
	switch x := raw.(type) {
	case map[string]interface{}:
		if ts, ok := asTaggedTimestamp(x); ok {
			return model.TimestampValue(ts), nil
		}
		out := make(map[string]model.Value, len(x))
		for k, item := range x {
			v, err := decodeCursorValue(item)
			if err != nil {
				return model.Value{}, err
			}
			out[k] = v
		}
		return model.Map(out), nil
	case []interface{}:
		out := make([]model.Value, len(x))
		for i, item := range x {
			v, err := decodeCursorValue(item)
			if err != nil {
				return model.Value{}, err
			}
			out[i] = v
		}
		return model.Array(out...), nil
	}
	return model.FromAny(raw)
}

func asTaggedTimestamp(m map[string]interface{}) (model.Timestamp, bool) {
	if len(m) != 2 || m["type"] != timestampTag {
		return model.Timestamp{}, false
	}
	n, ok := m["val"].(json.Number)
	if !ok {
		return model.Timestamp{}, false
	}
	ms, err := n.Int64()
	if err != nil {
		return model.Timestamp{}, false
	}
	return model.TimestampFromMillis(ms), true
}
