package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSchema(t *testing.T) {
	s, err := NewSchema(map[string]DocShape{
		"users/{uid}":                  {},
		"users/{uid}/orders/{orderId}": {Rule: "data.total >= 0"},
	}, map[string]string{"orders": "users/{uid}/orders/{orderId}"})
	require.NoError(t, err)

	assert.True(t, s.HasDoc("users/{uid}"))
	assert.False(t, s.HasDoc("orders"))
	assert.True(t, s.HasQuery("orders"))
	assert.False(t, s.HasQuery("carts"))

	key, ok := s.GroupDocKey("orders")
	assert.True(t, ok)
	assert.Equal(t, "users/{uid}/orders/{orderId}", key)

	shape, _ := s.DocShape("users/{uid}/orders/{orderId}")
	assert.Equal(t, "data.total >= 0", shape.Rule)
	assert.Equal(t, []string{"users/{uid}", "users/{uid}/orders/{orderId}"}, s.DocKeys())
	assert.Equal(t, []string{"orders"}, s.GroupKeys())
}

func TestNewSchema_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		docs   map[string]DocShape
		groups map[string]string
	}{
		{"collection template", map[string]DocShape{"users": {}}, nil},
		{"bad template", map[string]DocShape{"users/{uid": {}}, nil},
		{"unknown target", map[string]DocShape{"users/{uid}": {}}, map[string]string{"orders": "users/{uid}/orders/{id}"}},
		{"group id mismatch", map[string]DocShape{"users/{uid}/orders/{id}": {}}, map[string]string{"carts": "users/{uid}/orders/{id}"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSchema(tt.docs, tt.groups)
			assert.Error(t, err)
		})
	}
}
