package mongodb

import (
	"testing"

	"firestore-access/internal/access/domain/model"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
)

func TestBuildFilter_Scope(t *testing.T) {
	assert.Equal(t, bson.M{parentKey: "users/u1/orders"}, buildFilter(model.NewCollectionQuery("users/u1/orders")))
	assert.Equal(t, bson.M{collectionIDKey: "orders"}, buildFilter(model.NewCollectionGroupQuery("orders")))
}

func TestSingleFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter model.Filter
		want   bson.M
	}{
		{
			name:   "null equality matches stored nulls only",
			filter: model.Filter{Field: model.FieldOnDelete, Operator: model.OperatorEqual, Value: model.Null()},
			want:   bson.M{"fields.＄on_delete": bson.M{"$type": "null"}},
		},
		{
			name:   "equality",
			filter: model.Filter{Field: "status", Operator: model.OperatorEqual, Value: model.String("open")},
			want:   bson.M{"fields.status": bson.M{"$eq": "open"}},
		},
		{
			name:   "range",
			filter: model.Filter{Field: "total", Operator: model.OperatorGreaterThanOrEqual, Value: model.Int(2)},
			want:   bson.M{"fields.total": bson.M{"$gte": float64(2)}},
		},
		{
			name:   "in",
			filter: model.Filter{Field: "status", Operator: model.OperatorIn, Value: model.Array(model.String("a"), model.String("b"))},
			want:   bson.M{"fields.status": bson.M{"$in": bson.A{"a", "b"}}},
		},
		{
			name:   "array contains",
			filter: model.Filter{Field: "tags", Operator: model.OperatorArrayContains, Value: model.String("x")},
			want:   bson.M{"fields.tags": bson.M{"$elemMatch": bson.M{"$eq": "x"}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, singleFilter(tt.filter))
		})
	}
}

func TestCursorFilter(t *testing.T) {
	desc := []model.Order{{Field: "total", Direction: model.Descending}}
	assert.Nil(t, cursorFilter(desc, nil))
	assert.Equal(t, bson.M{"fields.total": bson.M{"$lt": float64(5)}}, cursorFilter(desc, []model.Value{model.Int(5)}))

	two := []model.Order{{Field: "a", Direction: model.Ascending}, {Field: "b", Direction: model.Descending}}
	got := cursorFilter(two, []model.Value{model.Int(1), model.String("x")})
	assert.Equal(t, bson.M{"$or": []bson.M{
		{"fields.a": bson.M{"$gt": float64(1)}},
		{"fields.a": bson.M{"$eq": float64(1)}, "fields.b": bson.M{"$lt": "x"}},
	}}, got)
}

func TestBuildFindOptions(t *testing.T) {
	q := model.NewCollectionQuery("users").OrderBy(model.FieldCreatedAt, model.Descending).WithLimit(3)
	opts := buildFindOptions(q)
	assert.Equal(t, int64(3), *opts.Limit)
	assert.Equal(t, bson.D{
		{Key: "fields.＄standard.created_at", Value: -1},
		{Key: idKey, Value: 1},
	}, opts.Sort)

	filter := buildFilter(q.After(model.Int(1)))
	and, ok := filter["$and"].([]bson.M)
	assert.True(t, ok)
	assert.Len(t, and, 3, "scope, order presence and cursor")
}
