package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"firestore-access/internal/access/domain/model"
	"firestore-access/internal/shared/errors"
	"firestore-access/internal/shared/eventbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNewDB_RequiresCollaborators(t *testing.T) {
	_, err := NewDB(nil, testSchema())
	assert.Error(t, err)

	db, _ := newTestDB(t)
	_, err = NewDB(db.store, nil)
	assert.Error(t, err)

	_, err = NewDB(db.store, testSchema(), WithDefaultOrder(model.Order{Field: "x", Direction: "sideways"}))
	assert.Error(t, err)
}

func TestDB_DocAllocatesIDWithoutIO(t *testing.T) {
	db, store := newTestDB(t)

	ref, err := db.Doc(Path(orderKey, "uid", "u1"))
	require.NoError(t, err)
	assert.Len(t, ref.ID(), 20)
	assert.Equal(t, ref.ID(), ref.Param("orderId"))
	assert.Equal(t, "u1", ref.Param("uid"))
	assert.Equal(t, "users/u1/orders/"+ref.ID(), ref.Path())
	assert.Equal(t, 0, store.Len())

	again, err := db.Doc(ref.Args())
	require.NoError(t, err)
	assert.Equal(t, ref.Path(), again.Path())
}

func TestDB_CreateAndGetDoc(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)
	due := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	ref, err := db.Create(ctx, Path(orderKey, "uid", "u1"), nil, fields("total", 0, "due", due, "note", ""))
	require.NoError(t, err)
	require.NotEmpty(t, ref.Param("orderId"))

	doc, err := db.GetDoc(ctx, ref.Args())
	require.NoError(t, err)
	require.True(t, doc.Exists())

	total, err := doc.Get("total")
	require.NoError(t, err)
	assert.True(t, total.Equal(model.Int(0)))

	gotDue, err := doc.Get("due")
	require.NoError(t, err)
	d, ok := gotDue.AsDate()
	require.True(t, ok, "timestamps decode to dates")
	assert.True(t, due.Equal(d))

	note, err := doc.Get("note")
	require.NoError(t, err)
	assert.True(t, note.Equal(model.String("")))

	created, err := doc.OnCreate()
	require.NoError(t, err)
	assert.Equal(t, model.SystemAccountName, created.AccountName)
	assert.Equal(t, model.SystemAccountID, created.AccountID)
	assert.True(t, testEpoch.Equal(created.ServerTimestamp))

	std, err := doc.Standard()
	require.NoError(t, err)
	assert.True(t, std.CreatedAt.Equal(std.UpdatedAt))

	onUpdate, err := doc.OnUpdate()
	require.NoError(t, err)
	assert.Nil(t, onUpdate)
	assert.False(t, doc.IsDeleted())

	stored, err := doc.StoredRef()
	require.NoError(t, err)
	assert.Equal(t, ref.Args(), stored)

	data := doc.Data()
	assert.Len(t, data, 3, "metadata is not part of Data")
	assert.True(t, data["due"].Equal(model.Date(due)))
}

func TestDB_GetDocMissing(t *testing.T) {
	db, _ := newTestDB(t)
	doc, err := db.GetDoc(context.Background(), Path(userKey, "uid", "ghost"))
	require.NoError(t, err)
	assert.False(t, doc.Exists())
	assert.Empty(t, doc.Data())

	_, err = doc.OnCreate()
	assert.ErrorIs(t, err, errors.ErrMetadataShape)
}

func TestDB_CallerErrors(t *testing.T) {
	ctx := context.Background()
	db, store := newTestDB(t)

	_, err := db.Create(ctx, Path("carts/{id}", "id", "c1"), nil, fields())
	assert.ErrorIs(t, err, errors.ErrUnknownPathKey)

	_, err = db.GetDoc(ctx, Path("carts/{id}", "id", "c1"))
	assert.ErrorIs(t, err, errors.ErrUnknownPathKey)

	_, err = db.GetQuery(ctx, Path("carts"), QueryOptions{})
	assert.ErrorIs(t, err, errors.ErrUnknownPathKey)

	_, err = db.Create(ctx, Path(orderKey, "orderId", "o1"), nil, fields())
	assert.ErrorIs(t, err, errors.ErrIncompletePath)

	_, err = db.Create(ctx, Path(userKey, "uid", "u1"), nil, fields("$ref", "forged"))
	assert.ErrorIs(t, err, errors.ErrReservedField)

	assert.Equal(t, 0, store.Len())
}

func TestDB_MetadataAccessors(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)
	_, err := db.Create(ctx, Path(userKey, "uid", "u1"), nil, fields("name", "ana"))
	require.NoError(t, err)
	doc, err := db.GetDoc(ctx, Path(userKey, "uid", "u1"))
	require.NoError(t, err)

	_, err = doc.Get(model.FieldOnCreate)
	assert.ErrorIs(t, err, errors.ErrMetadataAccess)

	_, err = doc.MetaData("name")
	assert.ErrorIs(t, err, errors.ErrMetadataAccess)

	v, err := doc.MetaData(model.FieldOnDelete)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestDB_UpdateStampsAndDeletesNulls(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)
	arg := Path(userKey, "uid", "u1")
	_, err := db.Create(ctx, arg, nil, fields("name", "ana", "phone", "123", "visits", 4, "flag", true, "note", "hi"))
	require.NoError(t, err)

	device := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	by := &model.EventBy{AccountName: "bob", AccountID: "acc-2", DeviceTimestamp: &device}
	_, err = db.Update(ctx, arg, by, fields("phone", nil, "visits", 0, "flag", false, "note", ""))
	require.NoError(t, err)

	doc, err := db.GetDoc(ctx, arg)
	require.NoError(t, err)
	_, present, err := doc.Lookup("phone")
	require.NoError(t, err)
	assert.False(t, present)
	visits, _ := doc.Get("visits")
	assert.True(t, visits.Equal(model.Int(0)))
	flag, present, err := doc.Lookup("flag")
	require.NoError(t, err)
	assert.True(t, present, "false is a value, not a delete")
	assert.True(t, flag.Equal(model.Bool(false)))
	note, present, err := doc.Lookup("note")
	require.NoError(t, err)
	assert.True(t, present)
	assert.True(t, note.Equal(model.String("")))

	onUpdate, err := doc.OnUpdate()
	require.NoError(t, err)
	require.NotNil(t, onUpdate)
	assert.Equal(t, "bob", onUpdate.AccountName)
	assert.Equal(t, "acc-2", onUpdate.AccountID)
	require.NotNil(t, onUpdate.DeviceTimestamp)
	assert.True(t, device.Equal(*onUpdate.DeviceTimestamp))

	std, err := doc.Standard()
	require.NoError(t, err)
	assert.True(t, std.UpdatedAt.After(std.CreatedAt))

	created, err := doc.OnCreate()
	require.NoError(t, err)
	assert.Equal(t, model.SystemAccountName, created.AccountName, "on_create is never rewritten")
}

func TestDB_UpdateMissingPassesStoreError(t *testing.T) {
	db, _ := newTestDB(t)
	_, err := db.Update(context.Background(), Path(userKey, "uid", "ghost"), nil, fields("a", 1))
	assert.ErrorIs(t, err, errors.ErrDocumentNotFound)
	assert.False(t, errors.IsCallerError(err))
}

func TestDB_SoftDeleteHidesFromQueries(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)
	for _, id := range []string{"o1", "o2"} {
		_, err := db.Create(ctx, Path(orderKey, "uid", "u1", "orderId", id), nil, fields("total", 1))
		require.NoError(t, err)
	}

	by := &model.EventBy{AccountName: "ana", AccountID: "acc-1"}
	_, err := db.Delete(ctx, Path(orderKey, "uid", "u1", "orderId", "o1"), by, fields("reason", "dup"))
	require.NoError(t, err)

	res, err := db.GetQuery(ctx, Path(orderKey, "uid", "u1"), QueryOptions{})
	require.NoError(t, err)
	require.Len(t, res.Docs, 1)
	assert.Equal(t, "o2", res.Docs[0].Ref().ID())

	res, err = db.GetQuery(ctx, Path(orderKey, "uid", "u1"), QueryOptions{QueryParams: QueryParams{AllowDeleted: true}})
	require.NoError(t, err)
	assert.Len(t, res.Docs, 2)

	doc, err := db.GetDoc(ctx, Path(orderKey, "uid", "u1", "orderId", "o1"))
	require.NoError(t, err)
	assert.True(t, doc.IsDeleted())
	onDelete, err := doc.OnDelete()
	require.NoError(t, err)
	require.NotNil(t, onDelete)
	assert.Equal(t, "acc-1", onDelete.AccountID)
	reason, _ := doc.Get("reason")
	assert.True(t, reason.Equal(model.String("dup")))
}

func TestDB_HardDelete(t *testing.T) {
	ctx := context.Background()
	db, store := newTestDB(t)
	ref, err := db.Create(ctx, Path(userKey, "uid", "u1"), nil, fields())
	require.NoError(t, err)

	_, err = db.HardDelete(ctx, ref.Args())
	require.NoError(t, err)
	assert.Equal(t, 0, store.Len())
}

func TestDB_PublishesAuditRecords(t *testing.T) {
	ctx := context.Background()
	pub := &MockPublisher{}
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(e eventbus.Event) bool {
		rec, ok := e.Data().(model.AuditRecord)
		return ok && e.Type() == eventbus.EventTypeDocumentCreated && rec.Path == "users/u1" && rec.Key == userKey
	})).Return(nil).Once()
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(e eventbus.Event) bool {
		return e.Type() == eventbus.EventTypeDocumentHardDeleted
	})).Return(fmt.Errorf("bus down")).Once()

	db, _ := newTestDB(t, WithPublisher(pub))
	_, err := db.Create(ctx, Path(userKey, "uid", "u1"), nil, fields())
	require.NoError(t, err)
	_, err = db.HardDelete(ctx, Path(userKey, "uid", "u1"))
	require.NoError(t, err, "publish failures do not fail the write")

	pub.AssertExpectations(t)
}

func TestDB_AuditRecordMatchesStoredEnvelope(t *testing.T) {
	ctx := context.Background()
	var published []model.AuditRecord
	pub := &MockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		published = append(published, args.Get(1).(eventbus.Event).Data().(model.AuditRecord))
	}).Return(nil)

	db, _ := newTestDB(t, WithPublisher(pub), WithClock(tickingClock()))
	by := &model.EventBy{AccountName: "ana", AccountID: "acc-1"}
	arg := Path(userKey, "uid", "u1")
	_, err := db.Create(ctx, arg, by, fields("name", "ana"))
	require.NoError(t, err)
	_, err = db.Update(ctx, arg, by, fields("name", "bea"))
	require.NoError(t, err)
	require.Len(t, published, 2)

	doc, err := db.GetDoc(ctx, arg)
	require.NoError(t, err)
	created, err := doc.OnCreate()
	require.NoError(t, err)
	updated, err := doc.OnUpdate()
	require.NoError(t, err)
	require.NotNil(t, updated)

	assert.True(t, created.ServerTimestamp.Equal(published[0].Event.ServerTimestamp))
	assert.True(t, updated.ServerTimestamp.Equal(published[1].Event.ServerTimestamp))
	assert.Equal(t, "acc-1", published[1].Event.AccountID)
}

func TestDB_ValidatorRejection(t *testing.T) {
	ctx := context.Background()
	v := &MockValidator{}
	rejected := errors.NewValidationError("total must be positive")
	v.On("Validate", mock.Anything, orderKey, model.OpCreate, mock.Anything).Return(rejected)

	db, store := newTestDB(t, WithValidator(v))
	_, err := db.Create(ctx, Path(orderKey, "uid", "u1"), nil, fields("total", -1))
	assert.ErrorIs(t, err, rejected)
	assert.Equal(t, 0, store.Len())
	v.AssertExpectations(t)
}
