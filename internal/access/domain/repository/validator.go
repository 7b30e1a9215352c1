package repository

import (
	"context"

	"firestore-access/internal/access/domain/model"
)

// SchemaValidator checks caller payloads against the declared shape of a
// document key before they are encoded.
type SchemaValidator interface {
	Validate(ctx context.Context, key string, op model.Operation, data map[string]model.Value) error
}

// AuditSink receives an audit record for every applied mutation.
type AuditSink interface {
	Append(ctx context.Context, record model.AuditRecord) error
}
