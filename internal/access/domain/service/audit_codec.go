package service

import (
	"time"

	"firestore-access/internal/access/domain/model"
	"firestore-access/internal/shared/errors"
)

// AuditCodec injects the audit envelope into outgoing payloads and
// coerces caller values into their store-native form.
type AuditCodec interface {
	// EncodeForWrite returns the payload to hand to the store for op.
	// data is never modified.
	EncodeForWrite(op model.Operation, key string, params map[string]string, data map[string]model.Value, by *model.EventBy) (map[string]model.Value, error)
	// EncodeEvent is EncodeForWrite stamping the given event.
	EncodeEvent(op model.Operation, key string, params map[string]string, data map[string]model.Value, event model.AccountEvent) (map[string]model.Value, error)
}

type auditCodec struct {
	now func() time.Time
}

// NewAuditCodec creates an audit codec stamping events with now.
// A nil clock uses time.Now.
func NewAuditCodec(now func() time.Time) AuditCodec {
	if now == nil {
		now = time.Now
	}
	return &auditCodec{now: now}
}

var (
	datesToTimestamps = model.Walker{
		Transform: func(v model.Value) model.Value {
			if d, ok := v.AsDate(); ok {
				return model.TimestampValue(model.TimestampFromTime(d))
			}
			return v
		},
		ShouldStop: isStoreNative,
	}
	nullsToDeletes = model.Walker{
		Transform: func(v model.Value) model.Value {
			if v.IsNull() {
				return model.DeleteField()
			}
			return v
		},
		ShouldStop: isStoreNative,
	}
	timestampsToDates = model.Walker{
		Transform: func(v model.Value) model.Value {
			if ts, ok := v.AsTimestamp(); ok {
				return model.Date(ts.Time())
			}
			return v
		},
		ShouldStop: func(v model.Value) bool { return v.Kind() == model.KindDate },
	}
)

func isStoreNative(v model.Value) bool {
	return v.IsSentinel() || v.Kind() == model.KindTimestamp
}

func (c *auditCodec) EncodeForWrite(op model.Operation, key string, params map[string]string, data map[string]model.Value, by *model.EventBy) (map[string]model.Value, error) {
	return c.EncodeEvent(op, key, params, data, model.NewAccountEvent(by, c.now()))
}

func (c *auditCodec) EncodeEvent(op model.Operation, key string, params map[string]string, data map[string]model.Value, accountEvent model.AccountEvent) (map[string]model.Value, error) {
	for field := range data {
		if model.IsMetaField(field) {
			return nil, errors.ReservedField(field)
		}
	}

	out := make(map[string]model.Value, len(data)+5)
	for k, v := range data {
		out[k] = v
	}
	event := accountEvent.Value()

	switch op {
	case model.OpCreate:
		out[model.FieldRef] = RefValue(key, params)
		out[model.FieldOnCreate] = event
		out[model.FieldOnUpdate] = model.Null()
		out[model.FieldOnDelete] = model.Null()
		out[model.FieldStandard] = model.Map(map[string]model.Value{
			"created_at": model.ServerTimestamp(),
			"updated_at": model.ServerTimestamp(),
		})
		return datesToTimestamps.WalkFields(out, model.Unlimited), nil
	case model.OpUpdate, model.OpDelete:
		out[op.EnvelopeField()] = event
		out[model.FieldUpdatedAt] = model.ServerTimestamp()
		out = datesToTimestamps.WalkFields(out, model.Unlimited)
		return nullsToDeletes.WalkFields(out, 0), nil
	}
	return nil, errors.NewDomainError("operation has no audit envelope").WithDetail("operation", string(op))
}

// RefValue renders the "$ref" self reference: the document key under "$"
// plus every bound parameter.
func RefValue(key string, params map[string]string) model.Value {
	fields := make(map[string]model.Value, len(params)+1)
	for k, v := range params {
		fields[k] = model.String(v)
	}
	fields[model.RefKeyField] = model.String(key)
	return model.Map(fields)
}

// DecodeField converts a raw snapshot value into its caller form:
// store timestamps become dates at every depth.
func DecodeField(v model.Value) model.Value {
	return timestampsToDates.Walk(v, model.Unlimited)
}

// EncodeValue converts a caller value into its store form: dates become
// timestamps at every depth.
func EncodeValue(v model.Value) model.Value {
	return datesToTimestamps.Walk(v, model.Unlimited)
}
