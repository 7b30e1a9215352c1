// Shared fixtures and mocks for the access usecase tests.
package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"firestore-access/internal/access/adapter/persistence/memory"
	"firestore-access/internal/access/domain/model"
	"firestore-access/internal/shared/eventbus"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	userKey  = "users/{uid}"
	orderKey = "users/{uid}/orders/{orderId}"
)

var testEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testSchema() *model.Schema {
	return model.MustNewSchema(map[string]model.DocShape{
		userKey:  {Description: "application users"},
		orderKey: {Description: "orders placed by a user"},
	}, map[string]string{"orders": orderKey})
}

// tickingClock advances one second per call so creation times are distinct.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	now := testEpoch
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

// subMillisClock starts mid-millisecond and advances 100µs per call.
func subMillisClock() func() time.Time {
	var mu sync.Mutex
	now := testEpoch.Add(50 * time.Microsecond)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(100 * time.Microsecond)
		return now
	}
}

func newTestDB(t *testing.T, opts ...Option) (*DB, *memory.Store) {
	t.Helper()
	store := memory.NewStore(memory.WithClock(tickingClock()))
	opts = append([]Option{WithClock(func() time.Time { return testEpoch })}, opts...)
	db, err := NewDB(store, testSchema(), opts...)
	require.NoError(t, err)
	return db, store
}

func fields(kv ...interface{}) map[string]model.Value {
	out := map[string]model.Value{}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i].(string)] = model.MustFromAny(kv[i+1])
	}
	return out
}

// MockPublisher records published events.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event eventbus.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockValidator is a testify mock of repository.SchemaValidator.
type MockValidator struct {
	mock.Mock
}

func (m *MockValidator) Validate(ctx context.Context, key string, op model.Operation, data map[string]model.Value) error {
	args := m.Called(ctx, key, op, data)
	return args.Error(0)
}
