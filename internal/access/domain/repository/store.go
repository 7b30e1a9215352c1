package repository

import (
	"context"

	"firestore-access/internal/access/domain/model"
	"firestore-access/internal/shared/firestore"
)

// Snapshot is a document as read from the store. Field values are raw:
// instants come back as model.Timestamp.
type Snapshot interface {
	Ref() firestore.DocPath
	Exists() bool
	// Get looks up a dotted field path such as "$standard.created_at".
	Get(field string) (model.Value, bool)
	Data() map[string]model.Value
}

// Reader is the read half of the store.
type Reader interface {
	// Get returns a snapshot whose Exists reports false for a missing
	// document; it does not return an error for that case.
	Get(ctx context.Context, doc firestore.DocPath) (Snapshot, error)
	RunQuery(ctx context.Context, q model.Query) ([]Snapshot, error)
	Count(ctx context.Context, q model.Query) (int64, error)
}

// Writer is the write half of the store. Payload keys may be dotted field
// paths on Update. Create fails with errors.ErrAlreadyExists when the
// document exists; Update fails with errors.ErrDocumentNotFound when it
// does not.
type Writer interface {
	Create(ctx context.Context, doc firestore.DocPath, data map[string]model.Value) error
	Update(ctx context.Context, doc firestore.DocPath, data map[string]model.Value) error
	Delete(ctx context.Context, doc firestore.DocPath) error
}

// Store is the hierarchical document store the access layer drives.
type Store interface {
	Reader
	Writer

	Doc(path string) (firestore.DocPath, error)
	Collection(path string) (firestore.CollPath, error)
	// NewDoc allocates a fresh document id inside coll without writing.
	NewDoc(coll firestore.CollPath) firestore.DocPath
	CollectionGroup(collectionID string) model.Query

	// RunTransaction runs fn with a transaction. Writes issued on tx are
	// applied atomically when fn returns nil.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
	Batch() WriteBatch
}

// Transaction reads through the transaction and buffers writes until it
// commits. All reads must happen before the first write.
type Transaction interface {
	Get(ctx context.Context, doc firestore.DocPath) (Snapshot, error)
	RunQuery(ctx context.Context, q model.Query) ([]Snapshot, error)
	Create(doc firestore.DocPath, data map[string]model.Value) error
	Update(doc firestore.DocPath, data map[string]model.Value) error
	Delete(doc firestore.DocPath) error
}

// WriteBatch collects writes applied atomically by Commit.
type WriteBatch interface {
	Create(doc firestore.DocPath, data map[string]model.Value)
	Update(doc firestore.DocPath, data map[string]model.Value)
	Delete(doc firestore.DocPath)
	Commit(ctx context.Context) error
}
