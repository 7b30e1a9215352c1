package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"firestore-access/internal/access/domain/model"
	"firestore-access/internal/access/domain/repository"
	"firestore-access/internal/shared/errors"
	"firestore-access/internal/shared/firestore"
	"firestore-access/internal/shared/logger"
)

// Store is an in-process implementation of repository.Store. Documents
// live in a path keyed map; transactions are serialized.
type Store struct {
	mu   sync.RWMutex
	docs map[string]map[string]model.Value
	// last resolved server timestamp, guarded by mu
	lastStamp time.Time

	txMu  sync.Mutex
	now   func() time.Time
	newID func() string
	log   logger.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to resolve server timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator replaces the document id generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) { s.log = l.WithComponent("memory-store") }
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		docs:  make(map[string]map[string]model.Value),
		now:   time.Now,
		newID: firestore.NewDocumentID,
		log:   logger.NoopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ repository.Store = (*Store)(nil)

func (s *Store) Doc(path string) (firestore.DocPath, error) {
	return firestore.NewDocPath(path)
}

func (s *Store) Collection(path string) (firestore.CollPath, error) {
	return firestore.NewCollPath(path)
}

func (s *Store) NewDoc(coll firestore.CollPath) firestore.DocPath {
	doc, err := coll.Doc(s.newID())
	if err != nil {
		// generated ids are always valid segments
		panic(err)
	}
	return doc
}

func (s *Store) CollectionGroup(collectionID string) model.Query {
	return model.NewCollectionGroupQuery(collectionID)
}

func (s *Store) Get(ctx context.Context, doc firestore.DocPath) (repository.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(doc), nil
}

func (s *Store) snapshotLocked(doc firestore.DocPath) *snapshot {
	fields, ok := s.docs[doc.Path()]
	if !ok {
		return &snapshot{ref: doc}
	}
	return &snapshot{ref: doc, exists: true, fields: cloneFields(fields)}
}

func (s *Store) RunQuery(ctx context.Context, q model.Query) ([]repository.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, errors.NewValidationError(err.Error()).WithCause(errors.ErrInvalidInput)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.matchLocked(q)
	out := make([]repository.Snapshot, len(matched))
	for i, m := range matched {
		out[i] = m
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context, q model.Query) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := q.Validate(); err != nil {
		return 0, errors.NewValidationError(err.Error()).WithCause(errors.ErrInvalidInput)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.matchLocked(q))), nil
}

func (s *Store) Create(ctx context.Context, doc firestore.DocPath, data map[string]model.Value) error {
	return s.commit(ctx, []write{{kind: model.OpCreate, doc: doc, data: data}})
}

func (s *Store) Update(ctx context.Context, doc firestore.DocPath, data map[string]model.Value) error {
	return s.commit(ctx, []write{{kind: model.OpUpdate, doc: doc, data: data}})
}

func (s *Store) Delete(ctx context.Context, doc firestore.DocPath) error {
	return s.commit(ctx, []write{{kind: model.OpHardDelete, doc: doc}})
}

func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx repository.Transaction) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &transaction{store: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return s.commit(ctx, tx.writes)
}

func (s *Store) Batch() repository.WriteBatch {
	return &batch{store: s}
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

type write struct {
	kind model.Operation
	doc  firestore.DocPath
	data map[string]model.Value
}

// commit applies writes all-or-nothing. Later writes see earlier ones.
func (s *Store) commit(ctx context.Context, writes []write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.serverTimestamp()

	staged := map[string]map[string]model.Value{}
	deleted := map[string]bool{}
	lookup := func(path string) (map[string]model.Value, bool) {
		if deleted[path] {
			return nil, false
		}
		if f, ok := staged[path]; ok {
			return f, true
		}
		f, ok := s.docs[path]
		return f, ok
	}

	for _, w := range writes {
		path := w.doc.Path()
		current, exists := lookup(path)
		switch w.kind {
		case model.OpCreate:
			if exists {
				s.log.Debugf("create rejected, %s exists", path)
				return errors.NewConflictError("document already exists").
					WithCause(errors.ErrAlreadyExists).
					WithDetail("path", path)
			}
			fields := map[string]model.Value{}
			for k, v := range w.data {
				setField(fields, []string{k}, resolve(v, now))
			}
			staged[path] = fields
			delete(deleted, path)
		case model.OpUpdate:
			if !exists {
				return errors.NewNotFoundError("document").
					WithCause(errors.ErrDocumentNotFound).
					WithDetail("path", path)
			}
			fields := cloneFields(current)
			for k, v := range w.data {
				setField(fields, strings.Split(k, "."), resolve(v, now))
			}
			staged[path] = fields
		case model.OpHardDelete:
			delete(staged, path)
			deleted[path] = true
		}
	}

	for path := range deleted {
		delete(s.docs, path)
	}
	for path, fields := range staged {
		s.docs[path] = fields
	}
	return nil
}

// serverTimestamp returns the instant stamped into a commit. Stamps are
// whole milliseconds and strictly increasing, so commits within one
// millisecond never tie on a server timestamp. Callers hold mu.
func (s *Store) serverTimestamp() model.Timestamp {
	now := s.now().Truncate(time.Millisecond)
	if !now.After(s.lastStamp) {
		now = s.lastStamp.Add(time.Millisecond)
	}
	s.lastStamp = now
	return model.TimestampFromTime(now)
}

var sentinelResolver = func(now model.Timestamp) model.Walker {
	return model.Walker{
		Transform: func(v model.Value) model.Value {
			switch v.Kind() {
			case model.KindServerTimestamp:
				return model.TimestampValue(now)
			case model.KindDate:
				d, _ := v.AsDate()
				return model.TimestampValue(model.TimestampFromTime(d))
			}
			return v
		},
	}
}

// resolve replaces server timestamps with now, stores dates as timestamps
// and copies the value. Delete sentinels are kept for setField.
func resolve(v model.Value, now model.Timestamp) model.Value {
	return sentinelResolver(now).Walk(v, model.Unlimited)
}

// setField writes v at path, creating intermediate maps. A delete
// sentinel removes the field instead.
func setField(fields map[string]model.Value, path []string, v model.Value) {
	head := path[0]
	if len(path) == 1 {
		if v.Kind() == model.KindDeleteField {
			delete(fields, head)
			return
		}
		fields[head] = stripDeletes(v)
		return
	}
	child := map[string]model.Value{}
	if existing, ok := fields[head].AsMap(); ok {
		for k, item := range existing {
			child[k] = item
		}
	}
	setField(child, path[1:], v)
	fields[head] = model.Map(child)
}

func stripDeletes(v model.Value) model.Value {
	switch v.Kind() {
	case model.KindMap:
		m, _ := v.AsMap()
		out := make(map[string]model.Value, len(m))
		for k, item := range m {
			if item.Kind() != model.KindDeleteField {
				out[k] = stripDeletes(item)
			}
		}
		return model.Map(out)
	case model.KindArray:
		items, _ := v.AsArray()
		out := make([]model.Value, 0, len(items))
		for _, item := range items {
			if item.Kind() != model.KindDeleteField {
				out = append(out, stripDeletes(item))
			}
		}
		return model.Array(out...)
	}
	return v
}

func cloneFields(fields map[string]model.Value) map[string]model.Value {
	out := make(map[string]model.Value, len(fields))
	for k, v := range fields {
		out[k] = model.Clone(v)
	}
	return out
}

type snapshot struct {
	ref    firestore.DocPath
	exists bool
	fields map[string]model.Value
}

func (s *snapshot) Ref() firestore.DocPath { return s.ref }
func (s *snapshot) Exists() bool           { return s.exists }

func (s *snapshot) Get(field string) (model.Value, bool) {
	return lookupField(s.fields, field)
}

func (s *snapshot) Data() map[string]model.Value {
	return cloneFields(s.fields)
}

func lookupField(fields map[string]model.Value, field string) (model.Value, bool) {
	if v, ok := fields[field]; ok {
		return v, true
	}
	parts := strings.Split(field, ".")
	root, ok := fields[parts[0]]
	if !ok {
		return model.Value{}, false
	}
	return root.Field(parts[1:]...)
}

type transaction struct {
	store  *Store
	writes []write
}

func (t *transaction) Get(ctx context.Context, doc firestore.DocPath) (repository.Snapshot, error) {
	if len(t.writes) > 0 {
		return nil, errors.NewDomainError("transaction reads must happen before writes").WithCause(errors.ErrInvalidInput)
	}
	return t.store.Get(ctx, doc)
}

func (t *transaction) RunQuery(ctx context.Context, q model.Query) ([]repository.Snapshot, error) {
	if len(t.writes) > 0 {
		return nil, errors.NewDomainError("transaction reads must happen before writes").WithCause(errors.ErrInvalidInput)
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
	mu     sync.Mutex
	writes []write
}

func (b *batch) Create(doc firestore.DocPath, data map[string]model.Value) {
	b.add(write{kind: model.OpCreate, doc: doc, data: data})
}

func (b *batch) Update(doc firestore.DocPath, data map[string]model.Value) {
	b.add(write{kind: model.OpUpdate, doc: doc, data: data})
}

func (b *batch) Delete(doc firestore.DocPath) {
	b.add(write{kind: model.OpHardDelete, doc: doc})
}

func (b *batch) add(w write) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes = append(b.writes, w)
}

func (b *batch) Commit(ctx context.Context) error {
	b.mu.Lock()
	writes := b.writes
	b.writes = nil
	b.mu.Unlock()
	return b.store.commit(ctx, writes)
}
