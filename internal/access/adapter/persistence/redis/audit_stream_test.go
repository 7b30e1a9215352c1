package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"firestore-access/internal/access/domain/model"
	"firestore-access/internal/shared/eventbus"
	"firestore-access/internal/shared/logger"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() model.AuditRecord {
	device := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	return model.AuditRecord{
		Operation: model.OpUpdate,
		Key:       "users/{uid}/orders/{orderId}",
		Path:      "users/u1/orders/o1",
		Params:    map[string]string{"uid": "u1", "orderId": "o1"},
		Event: model.AccountEvent{
			AccountName:     "ana",
			AccountID:       "acc-1",
			ServerTimestamp: time.Date(2024, 1, 1, 10, 0, 0, 123000000, time.UTC),
			DeviceTimestamp: &device,
		},
	}
}

func TestRecordValuesRoundTrip(t *testing.T) {
	rec := sampleRecord()
	values, err := recordValues(rec)
	require.NoError(t, err)
	assert.Equal(t, "update", values[fieldOperation])
	assert.Equal(t, "2024-01-01T10:00:00.123Z", values[fieldServerTimestamp])

	back, err := parseRecord(values)
	require.NoError(t, err)
	assert.Equal(t, rec.Operation, back.Operation)
	assert.Equal(t, rec.Params, back.Params)
	assert.True(t, rec.Event.ServerTimestamp.Equal(back.Event.ServerTimestamp))
	require.NotNil(t, back.Event.DeviceTimestamp)
	assert.True(t, rec.Event.DeviceTimestamp.Equal(*back.Event.DeviceTimestamp))
}

func TestParseRecordRejectsIncompleteEntries(t *testing.T) {
	_, err := parseRecord(map[string]interface{}{fieldPath: "users/u1"})
	assert.Error(t, err)

	_, err = parseRecord(map[string]interface{}{
		fieldOperation:       "create",
		fieldPath:            "users/u1",
		fieldServerTimestamp: "yesterday",
	})
	assert.Error(t, err)
}

func TestHandleRejectsForeignPayloads(t *testing.T) {
	stream := NewAuditStream(nil)
	err := stream.Handle(context.Background(), eventbus.NewBasicEventWithSource(eventbus.EventTypeDocumentCreated, "not a record", "test"))
	assert.Error(t, err)
}

func TestStreamKey(t *testing.T) {
	assert.Equal(t, "audit:users/u1/orders", NewAuditStream(nil).StreamKey("users/u1/orders"))
	assert.Equal(t, "log:users", NewAuditStream(nil, WithPrefix("log")).StreamKey("users"))
}

func createTestRedisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         "localhost:6379",
		DB:           15,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func TestAuditStream_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := createTestRedisClient()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available for testing:", err)
	}
	prefix := fmt.Sprintf("audit-test-%d", time.Now().UnixNano())
	stream := NewAuditStream(client, WithPrefix(prefix), WithMaxLen(100), WithLogger(logger.NewLogger()))
	defer func() {
		client.Del(context.Background(), stream.StreamKey("users/u1/orders"))
		client.Close()
	}()

	bus := eventbus.NewEventBus(logger.NewLogger())
	stream.Subscribe(bus)

	rec := sampleRecord()
	require.NoError(t, bus.Publish(ctx, eventbus.NewBasicEventWithSource(eventbus.EventTypeDocumentUpdated, rec, "test")))
	second := rec
	second.Operation = model.OpDelete
	require.NoError(t, stream.Append(ctx, second))

	entries, err := stream.Events(ctx, "users/u1/orders", "", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.OpUpdate, entries[0].Record.Operation)
	assert.Equal(t, model.OpDelete, entries[1].Record.Operation)

	after, err := stream.Events(ctx, "users/u1/orders", entries[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, entries[1].ID, after[0].ID)
}
