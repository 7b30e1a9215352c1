package di

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	accesshttp "firestore-access/internal/access/adapter/http"
	"firestore-access/internal/access/config"
	"firestore-access/internal/access/domain/model"
	"firestore-access/internal/access/usecase"
	"firestore-access/internal/shared/eventbus"
	"firestore-access/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() *model.Schema {
	return model.MustNewSchema(map[string]model.DocShape{
		"users/{uid}": {Rule: `op != "create" || has(data.name)`},
	}, nil)
}

func TestContainer_MemoryBackends(t *testing.T) {
	ctx := context.Background()
	c := NewContainer(config.DefaultConfig(), logger.NoopLogger{})
	require.NoError(t, c.Initialize(ctx, testSchema()))
	defer func() { assert.NoError(t, c.Close(ctx)) }()

	assert.Equal(t, map[string]string{"store": "memory", "audit": "disabled"}, c.Backends())
	assert.NoError(t, c.HealthCheck(ctx))
	assert.Nil(t, c.Audit)
	require.NotNil(t, c.DB)
}

func TestContainer_CloseDetachesSubscribers(t *testing.T) {
	ctx := context.Background()
	c := NewContainer(config.DefaultConfig(), nil)
	require.NoError(t, c.Initialize(ctx, testSchema()))
	for _, eventType := range eventbus.MutationEventTypes {
		require.Equal(t, 1, c.Bus.GetSubscriberCount(eventType), eventType)
	}

	require.NoError(t, c.Close(ctx))
	for _, eventType := range eventbus.MutationEventTypes {
		assert.Zero(t, c.Bus.GetSubscriberCount(eventType), eventType)
	}
	_, err := c.DB.Create(ctx, usecase.Path("users/{uid}", "uid", "u1"), nil, map[string]model.Value{"name": model.String("ana")})
	assert.NoError(t, err, "writes after close publish to no one")
}

func TestContainer_ServesProtectedRoutes(t *testing.T) {
	ctx := context.Background()
	c := NewContainer(config.DefaultConfig(), nil)
	require.NoError(t, c.Initialize(ctx, testSchema()))

	app := fiber.New(fiber.Config{ErrorHandler: accesshttp.ErrorHandler(c.Logger)})
	c.RegisterRoutes(app)
	token, err := c.Auth.Sign("acc-1", "ana", time.Minute)
	require.NoError(t, err)

	send := func(body string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/docs", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusCreated, send(`{"key":"users/{uid}","params":{"uid":"u1"},"data":{"name":"ana"}}`))
	assert.Equal(t, http.StatusBadRequest, send(`{"key":"users/{uid}","params":{"uid":"u2"},"data":{}}`), "document rule rejects")

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/v1/docs", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestContainer_BadRuleFailsInitialize(t *testing.T) {
	schema := model.MustNewSchema(map[string]model.DocShape{"users/{uid}": {Rule: "data. ="}}, nil)
	c := NewContainer(config.DefaultConfig(), nil)
	assert.Error(t, c.Initialize(context.Background(), schema))
}
