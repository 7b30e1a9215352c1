package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"firestore-access/internal/access/domain/model"
	"firestore-access/internal/access/domain/repository"
	"firestore-access/internal/access/domain/service"
	"firestore-access/internal/shared/errors"
	"firestore-access/internal/shared/eventbus"
	"firestore-access/internal/shared/logger"
)

const component = "access"

// DefaultOrder is used when a query names no ordering.
var DefaultOrder = model.Order{Field: model.FieldCreatedAt, Direction: model.Descending}

// DB is the typed, audited access layer over a repository.Store. A DB
// built by NewDB writes directly; RunTransaction and Batch hand out DBs
// bound to buffered write modes. Those are meant for one goroutine.
type DB struct {
	store     repository.Store
	apis      Apis
	schema    *model.Schema
	refs      *referenceBuilder
	codec     service.AuditCodec
	cursors   service.CursorCodec
	validator repository.SchemaValidator
	publisher eventbus.Publisher
	log       logger.Logger

	defaultOrder     model.Order
	finalBatchFactor float64
	now              func() time.Time

	// buffered audit records of transactional and batched DBs
	mu      sync.Mutex
	pending []model.AuditRecord
}

// Option configures a DB.
type Option func(*DB)

// WithValidator sets the schema validation collaborator.
func WithValidator(v repository.SchemaValidator) Option {
	return func(db *DB) { db.validator = v }
}

// WithPublisher publishes an audit record for every applied mutation.
func WithPublisher(p eventbus.Publisher) Option {
	return func(db *DB) { db.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(db *DB) { db.log = l }
}

// WithClock sets the clock stamped into account events.
func WithClock(now func() time.Time) Option {
	return func(db *DB) { db.now = now }
}

// WithDefaultOrder replaces the ordering used when a query names none.
func WithDefaultOrder(o model.Order) Option {
	return func(db *DB) { db.defaultOrder = o }
}

// WithFinalBatchFactor overrides model.DefaultFinalBatchFactor.
func WithFinalBatchFactor(f float64) Option {
	return func(db *DB) { db.finalBatchFactor = f }
}

// NewDB creates a DB writing directly to store.
func NewDB(store repository.Store, schema *model.Schema, opts ...Option) (*DB, error) {
	if store == nil {
		return nil, errors.NewInternalError("store is required")
	}
	if schema == nil {
		return nil, errors.NewInternalError("schema is required")
	}
	db := &DB{
		store:            store,
		apis:             NewDirectApis(store),
		schema:           schema,
		refs:             newReferenceBuilder(store, schema),
		cursors:          service.NewCursorCodec(),
		log:              logger.NoopLogger{},
		defaultOrder:     DefaultOrder,
		finalBatchFactor: model.DefaultFinalBatchFactor,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(db)
	}
	if !db.defaultOrder.Direction.Valid() || db.defaultOrder.Field == "" {
		return nil, errors.NewValidationError("invalid default order").WithDetail("order", db.defaultOrder.String())
	}
	if db.finalBatchFactor < 0 {
		return nil, errors.NewValidationError("final batch factor must not be negative")
	}
	db.codec = service.NewAuditCodec(db.now)
	db.log = db.log.WithComponent(component)
	return db, nil
}

// Mode reports how the DB applies writes.
func (db *DB) Mode() Mode { return db.apis.Mode() }

// Schema returns the declared schema.
func (db *DB) Schema() *model.Schema { return db.schema }

func (db *DB) withApis(apis Apis) *DB {
	return &DB{
		store:            db.store,
		apis:             apis,
		schema:           db.schema,
		refs:             db.refs,
		codec:            db.codec,
		cursors:          db.cursors,
		validator:        db.validator,
		publisher:        db.publisher,
		log:              db.log.WithFields(map[string]interface{}{"mode": string(apis.Mode())}),
		defaultOrder:     db.defaultOrder,
		finalBatchFactor: db.finalBatchFactor,
		now:              db.now,
	}
}

// RunTransaction runs fn with a DB whose reads go through a store
// transaction and whose writes are applied when fn returns nil.
func (db *DB) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx *DB) error) error {
	var committed *DB
	err := db.store.RunTransaction(ctx, func(ctx context.Context, tx repository.Transaction) error {
		txdb := db.withApis(NewTransactionApis(tx))
		if err := fn(ctx, txdb); err != nil {
			return err
		}
		if err := txdb.apis.End(ctx); err != nil {
			return err
		}
		committed = txdb
		return nil
	})
	if err != nil {
		return err
	}
	committed.flush(ctx)
	return nil
}

// Batch returns a DB whose writes are collected into one store batch and
// applied atomically by End. Nothing is visible before End.
func (db *DB) Batch() *DB {
	return db.withApis(NewBatchApis(db.store, db.store.Batch()))
}

// End flushes buffered writes. It is a no-op for direct DBs.
func (db *DB) End(ctx context.Context) error {
	if err := db.apis.End(ctx); err != nil {
		db.log.WithContext(ctx).Errorf("failed to end %s writes: %v", db.apis.Mode(), err)
		return fmt.Errorf("end %s: %w", db.apis.Mode(), err)
	}
	db.flush(ctx)
	return nil
}

// Doc builds a document reference without I/O. A trailing placeholder
// left unbound gets a freshly allocated id.
func (db *DB) Doc(arg PathArgs) (*DocumentRef, error) {
	return db.refs.docRef(arg)
}

// Create writes a new document with the creation envelope.
func (db *DB) Create(ctx context.Context, arg PathArgs, by *model.EventBy, data map[string]model.Value) (*DocumentRef, error) {
	ref, err := db.refs.docRef(arg)
	if err != nil {
		return nil, err
	}
	if err := db.validate(ctx, ref.Key(), model.OpCreate, data); err != nil {
		return nil, err
	}
	event := model.NewAccountEvent(by, db.now())
	payload, err := db.codec.EncodeEvent(model.OpCreate, ref.Key(), ref.params, data, event)
	if err != nil {
		return nil, err
	}
	db.log.WithContext(ctx).Debugf("create %s", ref.Path())
	if err := db.apis.Create(ctx, ref.doc, payload); err != nil {
		db.log.WithContext(ctx).Errorf("failed to create %s: %v", ref.Path(), err)
		return nil, fmt.Errorf("create %s: %w", ref.Path(), err)
	}
	db.record(ctx, model.OpCreate, ref, event)
	return ref, nil
}

// Update merges data into an existing document and stamps $on_update.
// Top-level null values delete their field.
func (db *DB) Update(ctx context.Context, arg PathArgs, by *model.EventBy, data map[string]model.Value) (*DocumentRef, error) {
	return db.mutate(ctx, model.OpUpdate, arg, by, data)
}

// Delete soft deletes a document: it stamps $on_delete, which hides the
// document from queries unless AllowDeleted is set. data is merged like
// an update and may be nil.
func (db *DB) Delete(ctx context.Context, arg PathArgs, by *model.EventBy, data map[string]model.Value) (*DocumentRef, error) {
	if data == nil {
		data = map[string]model.Value{}
	}
	return db.mutate(ctx, model.OpDelete, arg, by, data)
}

func (db *DB) mutate(ctx context.Context, op model.Operation, arg PathArgs, by *model.EventBy, data map[string]model.Value) (*DocumentRef, error) {
	ref, err := db.refs.docRef(arg)
	if err != nil {
		return nil, err
	}
	if err := db.validate(ctx, ref.Key(), op, data); err != nil {
		return nil, err
	}
	event := model.NewAccountEvent(by, db.now())
	payload, err := db.codec.EncodeEvent(op, ref.Key(), ref.params, data, event)
	if err != nil {
		return nil, err
	}
	db.log.WithContext(ctx).Debugf("%s %s", op, ref.Path())
	if err := db.apis.Update(ctx, ref.doc, payload); err != nil {
		db.log.WithContext(ctx).Errorf("failed to %s %s: %v", op, ref.Path(), err)
		return nil, fmt.Errorf("%s %s: %w", op, ref.Path(), err)
	}
	db.record(ctx, op, ref, event)
	return ref, nil
}

// HardDelete removes a document from the store.
func (db *DB) HardDelete(ctx context.Context, arg PathArgs) (*DocumentRef, error) {
	ref, err := db.refs.docRef(arg)
	if err != nil {
		return nil, err
	}
	db.log.WithContext(ctx).Debugf("hard delete %s", ref.Path())
	if err := db.apis.Delete(ctx, ref.doc); err != nil {
		db.log.WithContext(ctx).Errorf("failed to hard delete %s: %v", ref.Path(), err)
		return nil, fmt.Errorf("hard delete %s: %w", ref.Path(), err)
	}
	db.record(ctx, model.OpHardDelete, ref, model.NewAccountEvent(nil, db.now()))
	return ref, nil
}

// GetDoc reads a document. A missing document is returned with Exists
// reporting false.
func (db *DB) GetDoc(ctx context.Context, arg PathArgs) (*Document, error) {
	ref, err := db.refs.docRef(arg)
	if err != nil {
		return nil, err
	}
	snap, err := db.apis.Get(ctx, ref.doc)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", ref.Path(), err)
	}
	return newDocument(ref, snap), nil
}

func (db *DB) validate(ctx context.Context, key string, op model.Operation, data map[string]model.Value) error {
	if db.validator == nil {
		return nil
	}
	return db.validator.Validate(ctx, key, op, data)
}

var eventTypes = map[model.Operation]string{
	model.OpCreate:     eventbus.EventTypeDocumentCreated,
	model.OpUpdate:     eventbus.EventTypeDocumentUpdated,
	model.OpDelete:     eventbus.EventTypeDocumentDeleted,
	model.OpHardDelete: eventbus.EventTypeDocumentHardDeleted,
}

// record publishes an audit record carrying the event stamped into the
// write, or queues it until the buffered writes are applied.
func (db *DB) record(ctx context.Context, op model.Operation, ref *DocumentRef, event model.AccountEvent) {
	if db.publisher == nil {
		return
	}
	rec := model.AuditRecord{
		Operation: op,
		Key:       ref.Key(),
		Path:      ref.Path(),
		Params:    ref.Params(),
		Event:     event,
	}
	if db.apis.Mode() == ModeDirect {
		db.publish(ctx, rec)
		return
	}
	db.mu.Lock()
	db.pending = append(db.pending, rec)
	db.mu.Unlock()
}

func (db *DB) flush(ctx context.Context) {
	db.mu.Lock()
	pending := db.pending
	db.pending = nil
	db.mu.Unlock()
	for _, rec := range pending {
		db.publish(ctx, rec)
	}
}

// publish never fails the write: the mutation is already applied.
func (db *DB) publish(ctx context.Context, rec model.AuditRecord) {
	event := eventbus.NewBasicEventWithSource(eventTypes[rec.Operation], rec, component)
	if err := db.publisher.Publish(ctx, event); err != nil {
		db.log.WithContext(ctx).Warnf("failed to publish %s for %s: %v", event.Type(), rec.Path, err)
	}
}
