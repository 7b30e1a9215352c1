package usecase

import (
	"context"
	"sync"

	"firestore-access/internal/access/domain/model"
	"firestore-access/internal/access/domain/repository"
	"firestore-access/internal/shared/firestore"
)

// Mode names how a DB applies writes.
type Mode string

const (
	ModeDirect        Mode = "direct"
	ModeTransactional Mode = "transactional"
	ModeBatched       Mode = "batched"
)

// Apis is the store surface a DB drives. Each write mode is one
// implementation; End flushes whatever the mode buffered.
type Apis interface {
	Mode() Mode
	Create(ctx context.Context, doc firestore.DocPath, data map[string]model.Value) error
	Update(ctx context.Context, doc firestore.DocPath, data map[string]model.Value) error
	Delete(ctx context.Context, doc firestore.DocPath) error
	Get(ctx context.Context, doc firestore.DocPath) (repository.Snapshot, error)
	Query(ctx context.Context, q model.Query) ([]repository.Snapshot, error)
	Count(ctx context.Context, q model.Query) (int64, error)
	End(ctx context.Context) error
}

// directApis applies every call to the store immediately.
type directApis struct {
	store repository.Store
}

// NewDirectApis writes straight through to store.
func NewDirectApis(store repository.Store) Apis {
	return &directApis{store: store}
}

func (a *directApis) Mode() Mode { return ModeDirect }

func (a *directApis) Create(ctx context.Context, doc firestore.DocPath, data map[string]model.Value) error {
	return a.store.Create(ctx, doc, data)
}

func (a *directApis) Update(ctx context.Context, doc firestore.DocPath, data map[string]model.Value) error {
	return a.store.Update(ctx, doc, data)
}

func (a *directApis) Delete(ctx context.Context, doc firestore.DocPath) error {
	return a.store.Delete(ctx, doc)
}

func (a *directApis) Get(ctx context.Context, doc firestore.DocPath) (repository.Snapshot, error) {
	return a.store.Get(ctx, doc)
}

func (a *directApis) Query(ctx context.Context, q model.Query) ([]repository.Snapshot, error) {
	return a.store.RunQuery(ctx, q)
}

func (a *directApis) Count(ctx context.Context, q model.Query) (int64, error) {
	return a.store.Count(ctx, q)
}

func (a *directApis) End(context.Context) error { return nil }

// pendingWrite is a write intent queued until End.
type pendingWrite struct {
	op   model.Operation
	doc  firestore.DocPath
	data map[string]model.Value
}

// transactionApis reads through the transaction and queues writes until
// End so every read happens before the first write reaches it.
type transactionApis struct {
	tx repository.Transaction

	mu      sync.Mutex
	pending []pendingWrite
}

// NewTransactionApis buffers writes for tx until End.
func NewTransactionApis(tx repository.Transaction) Apis {
	return &transactionApis{tx: tx}
}

func (a *transactionApis) Mode() Mode { return ModeTransactional }

func (a *transactionApis) queue(w pendingWrite) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = append(a.pending, w)
	return nil
}

func (a *transactionApis) Create(_ context.Context, doc firestore.DocPath, data map[string]model.Value) error {
	return a.queue(pendingWrite{op: model.OpCreate, doc: doc, data: data})
}

func (a *transactionApis) Update(_ context.Context, doc firestore.DocPath, data map[string]model.Value) error {
	return a.queue(pendingWrite{op: model.OpUpdate, doc: doc, data: data})
}

func (a *transactionApis) Delete(_ context.Context, doc firestore.DocPath) error {
	return a.queue(pendingWrite{op: model.OpHardDelete, doc: doc})
}

func (a *transactionApis) Get(ctx context.Context, doc firestore.DocPath) (repository.Snapshot, error) {
	return a.tx.Get(ctx, doc)
}

func (a *transactionApis) Query(ctx context.Context, q model.Query) ([]repository.Snapshot, error) {
	return a.tx.RunQuery(ctx, q)
}

// Count runs the query through the transaction; transactions carry no
// aggregate reads.
func (a *transactionApis) Count(ctx context.Context, q model.Query) (int64, error) {
	q.Limit = 0
	q.StartAfter = nil
	snaps, err := a.tx.RunQuery(ctx, q)
	if err != nil {
		return 0, err
	}
	return int64(len(snaps)), nil
}

func (a *transactionApis) End(context.Context) error {
	a.mu.Lock()
	pending := a.pending
	a.pending = nil
	a.mu.Unlock()

	for _, w := range pending {
		var err error
		switch w.op {
		case model.OpCreate:
			err = a.tx.Create(w.doc, w.data)
		case model.OpUpdate:
			err = a.tx.Update(w.doc, w.data)
		case model.OpHardDelete:
			err = a.tx.Delete(w.doc)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// batchApis collects writes into one store batch committed by End.
// Reads go straight to the store.
type batchApis struct {
	store repository.Store
	batch repository.WriteBatch
}

// NewBatchApis collects writes into batch; reads use store.
func NewBatchApis(store repository.Store, batch repository.WriteBatch) Apis {
	return &batchApis{store: store, batch: batch}
}

func (a *batchApis) Mode() Mode { return ModeBatched }

func (a *batchApis) Create(_ context.Context, doc firestore.DocPath, data map[string]model.Value) error {
	a.batch.Create(doc, data)
	return nil
}

func (a *batchApis) Update(_ context.Context, doc firestore.DocPath, data map[string]model.Value) error {
	a.batch.Update(doc, data)
	return nil
}

func (a *batchApis) Delete(_ context.Context, doc firestore.DocPath) error {
	a.batch.Delete(doc)
	return nil
}

func (a *batchApis) Get(ctx context.Context, doc firestore.DocPath) (repository.Snapshot, error) {
	return a.store.Get(ctx, doc)
}

func (a *batchApis) Query(ctx context.Context, q model.Query) ([]repository.Snapshot, error) {
	return a.store.RunQuery(ctx, q)
}

func (a *batchApis) Count(ctx context.Context, q model.Query) (int64, error) {
	return a.store.Count(ctx, q)
}

func (a *batchApis) End(ctx context.Context) error {
	return a.batch.Commit(ctx)
}
