package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"firestore-access/internal/access/domain/model"
	"firestore-access/internal/access/domain/repository"
	"firestore-access/internal/shared/errors"
	"firestore-access/internal/shared/firestore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var storeNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestStore() *Store {
	return NewStore(WithClock(func() time.Time { return storeNow }))
}

func mustDoc(t *testing.T, s *Store, path string) firestore.DocPath {
	t.Helper()
	d, err := s.Doc(path)
	require.NoError(t, err)
	return d
}

func TestStore_CreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	doc := mustDoc(t, s, "users/u1")

	require.NoError(t, s.Create(ctx, doc, map[string]model.Value{
		"name":      model.String("ana"),
		"phone":     model.String("123"),
		"$standard": model.Map(map[string]model.Value{"created_at": model.ServerTimestamp()}),
	}))

	err := s.Create(ctx, doc, map[string]model.Value{})
	assert.ErrorIs(t, err, errors.ErrAlreadyExists)

	snap, err := s.Get(ctx, doc)
	require.NoError(t, err)
	require.True(t, snap.Exists())
	created, ok := snap.Get("$standard.created_at")
	require.True(t, ok)
	assert.True(t, created.Equal(model.TimestampValue(model.TimestampFromTime(storeNow))))

	require.NoError(t, s.Update(ctx, doc, map[string]model.Value{
		"phone":                model.DeleteField(),
		"$standard.updated_at": model.ServerTimestamp(),
	}))
	snap, _ = s.Get(ctx, doc)
	_, ok = snap.Get("phone")
	assert.False(t, ok)
	_, ok = snap.Get("$standard.created_at")
	assert.True(t, ok, "dotted update keeps sibling fields")
	_, ok = snap.Get("$standard.updated_at")
	assert.True(t, ok)
}

func TestStore_ServerTimestampsStrictlyIncrease(t *testing.T) {
	ctx := context.Background()
	start := storeNow.Add(250 * time.Microsecond)
	s := NewStore(WithClock(func() time.Time { return start }))

	stamp := func(path string) model.Value {
		doc := mustDoc(t, s, path)
		require.NoError(t, s.Create(ctx, doc, map[string]model.Value{"at": model.ServerTimestamp()}))
		snap, err := s.Get(ctx, doc)
		require.NoError(t, err)
		at, ok := snap.Get("at")
		require.True(t, ok)
		return at
	}
	first, second := stamp("users/u1"), stamp("users/u2")
	assert.True(t, first.Equal(model.TimestampValue(model.TimestampFromTime(storeNow))), "truncated to the millisecond")
	assert.True(t, second.Equal(model.TimestampValue(model.TimestampFromTime(storeNow.Add(time.Millisecond)))))
}

func TestStore_UpdateMissing(t *testing.T) {
	s := newTestStore()
	err := s.Update(context.Background(), mustDoc(t, s, "users/none"), map[string]model.Value{"a": model.Int(1)})
	assert.ErrorIs(t, err, errors.ErrDocumentNotFound)
	assert.True(t, errors.IsNotFound(err))
}

func TestStore_GetMissingIsNotAnError(t *testing.T) {
	s := newTestStore()
	snap, err := s.Get(context.Background(), mustDoc(t, s, "users/none"))
	require.NoError(t, err)
	assert.False(t, snap.Exists())
}

func TestStore_SnapshotsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	doc := mustDoc(t, s, "users/u1")
	require.NoError(t, s.Create(ctx, doc, map[string]model.Value{"tags": model.Array(model.String("a"))}))

	snap, _ := s.Get(ctx, doc)
	tags, _ := snap.Get("tags")
	items, _ := tags.AsArray()
	items[0] = model.String("changed")

	again, _ := s.Get(ctx, doc)
	tags, _ = again.Get("tags")
	items, _ = tags.AsArray()
	assert.True(t, items[0].Equal(model.String("a")))
}

func seedOrders(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		owner := "u1"
		if i%2 == 1 {
			owner = "u2"
		}
		doc := mustDoc(t, s, fmt.Sprintf("users/%s/orders/o%d", owner, i))
		require.NoError(t, s.Create(ctx, doc, map[string]model.Value{
			"total":      model.Int(int64(i * 10)),
			"tags":       model.Array(model.String(fmt.Sprintf("t%d", i%3))),
			"$on_delete": model.Null(),
		}))
	}
}

func TestStore_CollectionAndGroupQueries(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	seedOrders(t, s)

	snaps, err := s.RunQuery(ctx, model.NewCollectionQuery("users/u1/orders").OrderBy("total", model.Ascending))
	require.NoError(t, err)
	assert.Equal(t, []string{"o0", "o2", "o4"}, ids(snaps))

	snaps, err = s.RunQuery(ctx, s.CollectionGroup("orders").
		Where("$on_delete", model.OperatorEqual, model.Null()).
		OrderBy("total", model.Descending).
		WithLimit(2))
	require.NoError(t, err)
	assert.Equal(t, []string{"o4", "o3"}, ids(snaps))

	count, err := s.Count(ctx, s.CollectionGroup("orders").Where("total", model.OperatorGreaterThanOrEqual, model.Int(20)))
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestStore_FilterOperators(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	seedOrders(t, s)
	group := s.CollectionGroup("orders")

	tests := []struct {
		name  string
		query model.Query
		want  int
	}{
		{"not equal", group.Where("total", model.OperatorNotEqual, model.Int(0)), 4},
		{"less than", group.Where("total", model.OperatorLessThan, model.Int(20)), 2},
		{"type mismatch never matches range", group.Where("total", model.OperatorGreaterThan, model.String("a")), 0},
		{"array contains", group.Where("tags", model.OperatorArrayContains, model.String("t0")), 2},
		{"array contains any", group.Where("tags", model.OperatorArrayContainsAny, model.Array(model.String("t1"), model.String("t2"))), 3},
		{"in", group.Where("total", model.OperatorIn, model.Array(model.Int(10), model.Int(40))), 2},
		{"not in", group.Where("total", model.OperatorNotIn, model.Array(model.Int(10), model.Int(40))), 3},
		{"missing field", group.Where("nope", model.OperatorEqual, model.Null()), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snaps, err := s.RunQuery(ctx, tt.query)
			require.NoError(t, err)
			assert.Len(t, snaps, tt.want)
		})
	}
}

func TestStore_StartAfter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	seedOrders(t, s)

	q := s.CollectionGroup("orders").OrderBy("total", model.Descending).WithLimit(2)
	first, err := s.RunQuery(ctx, q)
	require.NoError(t, err)
	last, _ := first[len(first)-1].Get("total")

	second, err := s.RunQuery(ctx, q.After(last))
	require.NoError(t, err)
	assert.Equal(t, []string{"o2", "o1"}, ids(second))
}

func TestStore_BatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	a, b := mustDoc(t, s, "users/a"), mustDoc(t, s, "users/b")
	require.NoError(t, s.Create(ctx, b, map[string]model.Value{}))

	batch := s.Batch()
	batch.Create(a, map[string]model.Value{"n": model.Int(1)})
	batch.Create(b, map[string]model.Value{"n": model.Int(2)})
	assert.Equal(t, 1, s.Len(), "nothing visible before commit")

	err := batch.Commit(ctx)
	assert.ErrorIs(t, err, errors.ErrAlreadyExists)
	snap, _ := s.Get(ctx, a)
	assert.False(t, snap.Exists(), "failed batch applies nothing")
}

func TestStore_TransactionAppliesOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	doc := mustDoc(t, s, "users/u1")
	require.NoError(t, s.Create(ctx, doc, map[string]model.Value{"n": model.Int(1)}))

	err := s.RunTransaction(ctx, func(ctx context.Context, tx repository.Transaction) error {
		snap, err := tx.Get(ctx, doc)
		if err != nil {
			return err
		}
		n, _ := snap.Get("n")
		f, _ := n.AsNumber()
		if err := tx.Update(doc, map[string]model.Value{"n": model.Number(f + 1)}); err != nil {
			return err
		}
		_, err = tx.Get(ctx, doc)
		assert.Error(t, err, "reads after writes are rejected")
		return nil
	})
	require.NoError(t, err)

	snap, _ := s.Get(ctx, doc)
	n, _ := snap.Get("n")
	assert.True(t, n.Equal(model.Int(2)))

	boom := fmt.Errorf("boom")
	err = s.RunTransaction(ctx, func(ctx context.Context, tx repository.Transaction) error {
		_ = tx.Delete(doc)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	snap, _ = s.Get(ctx, doc)
	assert.True(t, snap.Exists())
}

func TestStore_NewDoc(t *testing.T) {
	s := NewStore(WithIDGenerator(func() string { return "fixed" }))
	coll, err := s.Collection("users/u1/orders")
	require.NoError(t, err)
	assert.Equal(t, "users/u1/orders/fixed", s.NewDoc(coll).Path())
}

func TestStore_CanceledContext(t *testing.T) {
	s := newTestStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Get(ctx, mustDoc(t, s, "users/u1"))
	assert.ErrorIs(t, err, context.Canceled)
}

func ids(snaps []repository.Snapshot) []string {
	out := make([]string, len(snaps))
	for i, s := range snaps {
		out[i] = s.Ref().ID()
	}
	return out
}
