// Package mongodb stores the document hierarchy in one MongoDB collection
// keyed by full document path.
package mongodb

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"firestore-access/internal/access/domain/model"
	"firestore-access/internal/access/domain/repository"
	"firestore-access/internal/shared/errors"
	"firestore-access/internal/shared/firestore"
	"firestore-access/internal/shared/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultCollection holds every document of every collection.
const DefaultCollection = "documents"

const (
	idKey           = "_id"
	parentKey       = "parentPath"
	collectionIDKey = "collectionID"
	fieldsKey       = "fields"
	createdKey      = "createTime"
	updatedKey      = "updateTime"
)

// storedDocument is the BSON shape of one document.
type storedDocument struct {
	ID           string    `bson:"_id"`
	Parent       string    `bson:"parentPath"`
	CollectionID string    `bson:"collectionID"`
	Fields       bson.M    `bson:"fields"`
	CreateTime   time.Time `bson:"createTime"`
	UpdateTime   time.Time `bson:"updateTime"`
}

// Store implements repository.Store on MongoDB. Transactions and batches
// use multi-document transactions, which need a replica set.
type Store struct {
	db    *mongo.Database
	docs  *mongo.Collection
	log   logger.Logger
	now   func() time.Time
	newID func() string
}

// Option configures a Store.
type Option func(*Store)

// WithCollection overrides DefaultCollection.
func WithCollection(name string) Option {
	return func(s *Store) { s.docs = s.db.Collection(name) }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithClock sets the clock used for server timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator replaces the document id allocator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// NewStore creates a Store over db.
func NewStore(db *mongo.Database, opts ...Option) *Store {
	s := &Store{
		db:    db,
		docs:  db.Collection(DefaultCollection),
		log:   logger.NoopLogger{},
		now:   time.Now,
		newID: firestore.NewDocumentID,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithComponent("mongodb-store")
	return s
}

var _ repository.Store = (*Store)(nil)

// EnsureIndexes creates the indexes collection and collection-group
// queries scan by.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.docs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: parentKey, Value: 1}}},
		{Keys: bson.D{{Key: collectionIDKey, Value: 1}}},
	})
	if err != nil {
		s.log.WithContext(ctx).Errorf("failed to create indexes: %v", err)
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

func (s *Store) Doc(path string) (firestore.DocPath, error) {
	return firestore.NewDocPath(path)
}

func (s *Store) Collection(path string) (firestore.CollPath, error) {
	return firestore.NewCollPath(path)
}

func (s *Store) NewDoc(coll firestore.CollPath) firestore.DocPath {
	doc, err := coll.Doc(s.newID())
	if err != nil {
		panic(err)
	}
	return doc
}

func (s *Store) CollectionGroup(collectionID string) model.Query {
	return model.NewCollectionGroupQuery(collectionID)
}

func (s *Store) Get(ctx context.Context, doc firestore.DocPath) (repository.Snapshot, error) {
	var stored storedDocument
	err := s.docs.FindOne(ctx, bson.M{idKey: doc.Path()}).Decode(&stored)
	if stderrors.Is(err, mongo.ErrNoDocuments) {
		return &snapshot{ref: doc}, nil
	}
	if err != nil {
		s.log.WithContext(ctx).Errorf("failed to read %s: %v", doc.Path(), err)
		return nil, fmt.Errorf("find %s: %w", doc.Path(), err)
	}
	return decodeSnapshot(&stored)
}

func (s *Store) RunQuery(ctx context.Context, q model.Query) ([]repository.Snapshot, error) {
	if err := q.Validate(); err != nil {
		return nil, errors.NewValidationError(err.Error()).WithCause(errors.ErrInvalidInput)
	}
	filter := buildFilter(q)
	s.log.WithContext(ctx).Debugf("find %s: %v", q.Path, filter)
	cur, err := s.docs.Find(ctx, filter, buildFindOptions(q))
	if err != nil {
		s.log.WithContext(ctx).Errorf("failed to query %s: %v", q.Path, err)
		return nil, fmt.Errorf("find in %s: %w", q.Path, err)
	}
	defer cur.Close(ctx)

	var out []repository.Snapshot
	for cur.Next(ctx) {
		var stored storedDocument
		if err := cur.Decode(&stored); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		snap, err := decodeSnapshot(&stored)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("cursor in %s: %w", q.Path, err)
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context, q model.Query) (int64, error) {
	if err := q.Validate(); err != nil {
		return 0, errors.NewValidationError(err.Error()).WithCause(errors.ErrInvalidInput)
	}
	opts := options.Count()
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	n, err := s.docs.CountDocuments(ctx, buildFilter(q), opts)
	if err != nil {
		s.log.WithContext(ctx).Errorf("failed to count %s: %v", q.Path, err)
		return 0, fmt.Errorf("count in %s: %w", q.Path, err)
	}
	return n, nil
}

func (s *Store) Create(ctx context.Context, doc firestore.DocPath, data map[string]model.Value) error {
	return s.apply(ctx, []write{{kind: model.OpCreate, doc: doc, data: data}})
}

func (s *Store) Update(ctx context.Context, doc firestore.DocPath, data map[string]model.Value) error {
	return s.apply(ctx, []write{{kind: model.OpUpdate, doc: doc, data: data}})
}

func (s *Store) Delete(ctx context.Context, doc firestore.DocPath) error {
	return s.apply(ctx, []write{{kind: model.OpHardDelete, doc: doc}})
}

// RunTransaction runs fn inside a MongoDB session transaction. Reads go
// through the session; writes are applied when fn returns nil.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx repository.Transaction) error) error {
	return s.withTransaction(ctx, func(sc mongo.SessionContext) error {
		tx := &transaction{store: s}
		if err := fn(sc, tx); err != nil {
			return err
		}
		return s.apply(sc, tx.writes)
	})
}

func (s *Store) Batch() repository.WriteBatch {
	return &batch{store: s}
}

func (s *Store) withTransaction(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	session, err := s.db.Client().StartSession()
	if err != nil {
		s.log.WithContext(ctx).Errorf("failed to start session: %v", err)
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	return mongo.WithSession(ctx, session, func(sc mongo.SessionContext) error {
		if err := session.StartTransaction(); err != nil {
			return fmt.Errorf("start transaction: %w", err)
		}
		if err := fn(sc); err != nil {
			if abortErr := session.AbortTransaction(sc); abortErr != nil {
				s.log.WithContext(ctx).Warnf("failed to abort transaction: %v", abortErr)
			}
			return err
		}
		if err := session.CommitTransaction(sc); err != nil {
			s.log.WithContext(ctx).Errorf("failed to commit transaction: %v", err)
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	})
}

type write struct {
	kind model.Operation
	doc  firestore.DocPath
	data map[string]model.Value
}

// apply runs writes in order with one server timestamp for all of them.
func (s *Store) apply(ctx context.Context, writes []write) error {
	now := s.now().UTC()
	for _, w := range writes {
		path := w.doc.Path()
		switch w.kind {
		case model.OpCreate:
			stored := storedDocument{
				ID:           path,
				Parent:       w.doc.Parent().Path(),
				CollectionID: w.doc.Parent().ID(),
				Fields:       fieldsToBSON(w.data, now),
				CreateTime:   now,
				UpdateTime:   now,
			}
			if _, err := s.docs.InsertOne(ctx, stored); err != nil {
				if mongo.IsDuplicateKeyError(err) {
					return errors.NewConflictError("document already exists").
						WithCause(errors.ErrAlreadyExists).
						WithDetail("path", path)
				}
				s.log.WithContext(ctx).Errorf("failed to insert %s: %v", path, err)
				return fmt.Errorf("insert %s: %w", path, err)
			}
		case model.OpUpdate:
			res, err := s.docs.UpdateOne(ctx, bson.M{idKey: path}, updateDocument(w.data, now))
			if err != nil {
				s.log.WithContext(ctx).Errorf("failed to update %s: %v", path, err)
				return fmt.Errorf("update %s: %w", path, err)
			}
			if res.MatchedCount == 0 {
				return errors.NewNotFoundError("document").
					WithCause(errors.ErrDocumentNotFound).
					WithDetail("path", path)
			}
		case model.OpHardDelete:
			if _, err := s.docs.DeleteOne(ctx, bson.M{idKey: path}); err != nil {
				s.log.WithContext(ctx).Errorf("failed to delete %s: %v", path, err)
				return fmt.Errorf("delete %s: %w", path, err)
			}
		}
	}
	return nil
}

func decodeSnapshot(stored *storedDocument) (*snapshot, error) {
	ref, err := firestore.NewDocPath(stored.ID)
	if err != nil {
		return nil, fmt.Errorf("stored document id %q: %w", stored.ID, err)
	}
	fields, err := fieldsFromBSON(stored.Fields)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", stored.ID, err)
	}
	return &snapshot{ref: ref, exists: true, fields: fields}, nil
}

type snapshot struct {
	ref    firestore.DocPath
	exists bool
	fields map[string]model.Value
}

func (s *snapshot) Ref() firestore.DocPath { return s.ref }
func (s *snapshot) Exists() bool           { return s.exists }

func (s *snapshot) Get(field string) (model.Value, bool) {
	if v, ok := s.fields[field]; ok {
		return v, true
	}
	parts := strings.Split(field, ".")
	root, ok := s.fields[parts[0]]
	if !ok || len(parts) == 1 {
		return model.Value{}, false
	}
	return root.Field(parts[1:]...)
}

func (s *snapshot) Data() map[string]model.Value {
	out := make(map[string]model.Value, len(s.fields))
	for k, v := range s.fields {
		out[k] = model.Clone(v)
	}
	return out
}

type transaction struct {
	store  *Store
	writes []write
}

func readAfterWrite() error {
	return errors.NewDomainError("transaction reads must happen before writes").WithCause(errors.ErrInvalidInput)
}

func (t *transaction) Get(ctx context.Context, doc firestore.DocPath) (repository.Snapshot, error) {
	if len(t.writes) > 0 {
		return nil, readAfterWrite()
	}
	return t.store.Get(ctx, doc)
}

func (t *transaction) RunQuery(ctx context.Context, q model.Query) ([]repository.Snapshot, error) {
	if len(t.writes) > 0 {
		return nil, readAfterWrite()
	}
	return t.store.RunQuery(ctx, q)
}

func (t *transaction) Create(doc firestore.DocPath, data map[string]model.Value) error {
	t.writes = append(t.writes, write{kind: model.OpCreate, doc: doc, data: data})
	return nil
}

func (t *transaction) Update(doc firestore.DocPath, data map[string]model.Value) error {
	t.writes = append(t.writes, write{kind: model.OpUpdate, doc: doc, data: data})
	return nil
}

func (t *transaction) Delete(doc firestore.DocPath) error {
	t.writes = append(t.writes, write{kind: model.OpHardDelete, doc: doc})
	return nil
}

type batch struct {
	store  *Store
	writes []write
}

func (b *batch) Create(doc firestore.DocPath, data map[string]model.Value) {
	b.writes = append(b.writes, write{kind: model.OpCreate, doc: doc, data: data})
}

func (b *batch) Update(doc firestore.DocPath, data map[string]model.Value) {
	b.writes = append(b.writes, write{kind: model.OpUpdate, doc: doc, data: data})
}

func (b *batch) Delete(doc firestore.DocPath) {
	b.writes = append(b.writes, write{kind: model.OpHardDelete, doc: doc})
}

// Commit applies the collected writes in one transaction.
func (b *batch) Commit(ctx context.Context) error {
	writes := b.writes
	b.writes = nil
	if len(writes) == 0 {
		return nil
	}
	return b.store.withTransaction(ctx, func(sc mongo.SessionContext) error {
		return b.store.apply(sc, writes)
	})
}
