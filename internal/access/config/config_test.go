package config

import (
	"testing"

	"firestore-access/internal/access/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "test-secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.UseMemoryStore())
	assert.False(t, cfg.AuditEnabled())
	assert.Equal(t, "firestore_access", cfg.Mongo.Database)
	assert.Equal(t, "documents", cfg.Mongo.Collection)
	assert.Equal(t, "audit", cfg.Audit.StreamPrefix)
	assert.Equal(t, 1.7, cfg.Pagination.FinalBatchFactor)
	assert.Equal(t, "localhost:3000", cfg.Addr())

	order, err := cfg.DefaultOrder()
	require.NoError(t, err)
	assert.Equal(t, model.Order{Field: model.FieldCreatedAt, Direction: model.Descending}, order)
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "test-secret")
	t.Setenv("MONGODB_URI", "mongodb://db:27017")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("PAGINATION_FINAL_BATCH_FACTOR", "2.5")
	t.Setenv("DEFAULT_ORDER_FIELD", "name")
	t.Setenv("DEFAULT_ORDER_DIRECTION", "asc")
	t.Setenv("LOG_BACKEND", "zap")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.False(t, cfg.UseMemoryStore())
	assert.True(t, cfg.AuditEnabled())
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, 2.5, cfg.Pagination.FinalBatchFactor)
	assert.Equal(t, "zap", cfg.Log.Backend)

	order, err := cfg.DefaultOrder()
	require.NoError(t, err)
	assert.Equal(t, "asc: name", order.String())
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing secret", env: map[string]string{"JWT_SECRET_KEY": ""}},
		{name: "negative factor", env: map[string]string{"JWT_SECRET_KEY": "s", "PAGINATION_FINAL_BATCH_FACTOR": "-1"}},
		{name: "bad direction", env: map[string]string{"JWT_SECRET_KEY": "s", "DEFAULT_ORDER_DIRECTION": "up"}},
		{name: "unknown backend", env: map[string]string{"JWT_SECRET_KEY": "s", "LOG_BACKEND": "stdout"}},
		{name: "malformed number", env: map[string]string{"JWT_SECRET_KEY": "s", "REDIS_DB": "two"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.UseMemoryStore())
}
