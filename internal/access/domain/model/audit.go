package model

import (
	"strings"
	"time"
)

// MetaSigil prefixes every root-level field owned by the access layer.
const MetaSigil = "$"

// Envelope fields.
const (
	FieldRef       = "$ref"
	FieldOnCreate  = "$on_create"
	FieldOnUpdate  = "$on_update"
	FieldOnDelete  = "$on_delete"
	FieldStandard  = "$standard"
	FieldCreatedAt = "$standard.created_at"
	FieldUpdatedAt = "$standard.updated_at"

	// RefKeyField holds the document path key inside "$ref".
	RefKeyField = "$"
)

// Account event keys.
const (
	EventAccountName     = "account_name"
	EventAccountID       = "account_id"
	EventServerTimestamp = "server_timestamp"
	EventDeviceTimestamp = "device_timestamp"
)

// Identity recorded when a write has no caller account.
const (
	SystemAccountName = "</ SERVER />"
	SystemAccountID   = "SERVER_ID()"
)

// IsMetaField reports whether a root-level key is reserved.
func IsMetaField(field string) bool {
	return strings.HasPrefix(field, MetaSigil)
}

// Operation names a mutation kind.
type Operation string

const (
	OpCreate     Operation = "create"
	OpUpdate     Operation = "update"
	OpDelete     Operation = "delete"
	OpHardDelete Operation = "hard_delete"
)

// EnvelopeField returns the "$on_<op>" field for create, update and delete.
func (op Operation) EnvelopeField() string {
	return MetaSigil + "on_" + string(op)
}

// EventBy identifies who performs a write. A nil *EventBy means the system.
type EventBy struct {
	AccountName     string
	AccountID       string
	DeviceTimestamp *time.Time
}

// AccountEvent is the stored who/when record of a mutation.
type AccountEvent struct {
	AccountName     string
	AccountID       string
	ServerTimestamp time.Time
	DeviceTimestamp *time.Time
}

// SystemEvent returns the event recorded for writes without a caller.
func SystemEvent(now time.Time) AccountEvent {
	return AccountEvent{
		AccountName:     SystemAccountName,
		AccountID:       SystemAccountID,
		ServerTimestamp: now,
	}
}

// NewAccountEvent builds the event for by, falling back to the system identity.
func NewAccountEvent(by *EventBy, now time.Time) AccountEvent {
	if by == nil {
		return SystemEvent(now)
	}
	return AccountEvent{
		AccountName:     by.AccountName,
		AccountID:       by.AccountID,
		ServerTimestamp: now,
		DeviceTimestamp: by.DeviceTimestamp,
	}
}

// Value renders the event as stored: timestamps as ISO-8601 strings.
func (e AccountEvent) Value() Value {
	fields := map[string]Value{
		EventAccountName:     String(e.AccountName),
		EventAccountID:       String(e.AccountID),
		EventServerTimestamp: String(e.ServerTimestamp.UTC().Format(time.RFC3339Nano)),
	}
	if e.DeviceTimestamp != nil {
		fields[EventDeviceTimestamp] = String(e.DeviceTimestamp.UTC().Format(time.RFC3339Nano))
	}
	return Map(fields)
}

// StandardRecord holds the store-assigned creation and update times.
type StandardRecord struct {
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AuditRecord describes a completed mutation. It is what the façade
// publishes after a write is applied.
type AuditRecord struct {
	Operation Operation
	Key       string
	Path      string
	Params    map[string]string
	Event     AccountEvent
}
