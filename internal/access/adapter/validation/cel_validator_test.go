package validation

import (
	"context"
	"testing"
	"time"

	"firestore-access/internal/access/domain/model"
	"firestore-access/internal/shared/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	userKey  = "users/{uid}"
	orderKey = "users/{uid}/orders/{orderId}"
)

func schemaWithRules(orderRule string) *model.Schema {
	return model.MustNewSchema(map[string]model.DocShape{
		userKey:  {},
		orderKey: {Rule: orderRule},
	}, nil)
}

func TestCELValidator_Validate(t *testing.T) {
	v, err := NewCELValidator(schemaWithRules(
		`op != "create" || (has(data.total) && data.total > 0.0 && data.due > timestamp("2020-01-01T00:00:00Z"))`,
	))
	require.NoError(t, err)
	ctx := context.Background()
	due := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		key     string
		op      model.Operation
		data    map[string]model.Value
		wantErr bool
	}{
		{
			name: "valid create",
			key:  orderKey,
			op:   model.OpCreate,
			data: map[string]model.Value{"total": model.Int(3), "due": model.Date(due)},
		},
		{
			name: "timestamps are compared as instants",
			key:  orderKey,
			op:   model.OpCreate,
			data: map[string]model.Value{"total": model.Int(3), "due": model.TimestampValue(model.TimestampFromTime(due))},
		},
		{
			name:    "rule rejects",
			key:     orderKey,
			op:      model.OpCreate,
			data:    map[string]model.Value{"total": model.Int(0), "due": model.Date(due)},
			wantErr: true,
		},
		{
			name:    "missing field",
			key:     orderKey,
			op:      model.OpCreate,
			data:    map[string]model.Value{},
			wantErr: true,
		},
		{
			name: "partial update passes",
			key:  orderKey,
			op:   model.OpUpdate,
			data: map[string]model.Value{"note": model.String("x")},
		},
		{
			name: "key without rule",
			key:  userKey,
			op:   model.OpCreate,
			data: map[string]model.Value{"anything": model.Null()},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(ctx, tt.key, tt.op, tt.data)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
			var appErr *errors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, CodeSchemaViolation, appErr.Code)
			assert.Equal(t, tt.key, appErr.Details["key"])
		})
	}
}

func TestCELValidator_InvalidRules(t *testing.T) {
	_, err := NewCELValidator(schemaWithRules(`data.total >`))
	assert.Error(t, err, "syntax error")

	_, err = NewCELValidator(schemaWithRules(`"not a bool"`))
	assert.Error(t, err, "non boolean rule")

	_, err = NewCELValidator(schemaWithRules(`unknown_var == 1`))
	assert.Error(t, err, "undeclared variable")
}

func TestCELValidator_NestedValues(t *testing.T) {
	v, err := NewCELValidator(schemaWithRules(`data.items.all(i, i.qty >= 1.0) && data.meta.source in ["web", "app"]`))
	require.NoError(t, err)

	item := func(qty int64) model.Value {
		return model.Map(map[string]model.Value{"qty": model.Int(qty)})
	}
	meta := model.Map(map[string]model.Value{"source": model.String("web")})

	err = v.Validate(context.Background(), orderKey, model.OpCreate, map[string]model.Value{
		"items": model.Array(item(1), item(2)),
		"meta":  meta,
	})
	assert.NoError(t, err)

	err = v.Validate(context.Background(), orderKey, model.OpCreate, map[string]model.Value{
		"items": model.Array(item(1), item(0)),
		"meta":  meta,
	})
	assert.Error(t, err)
}
