package mongodb

import (
	"time"

	"firestore-access/internal/access/domain/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// buildFilter translates scope, filters, ordering presence and the
// startAfter cursor of q into one MongoDB filter.
func buildFilter(q model.Query) bson.M {
	and := []bson.M{scopeFilter(q)}
	for _, f := range q.Filters {
		and = append(and, singleFilter(f))
	}
	// documents lacking an order field are not part of an ordered result
	for _, o := range q.Orders {
		and = append(and, bson.M{fieldPath(o.Field): bson.M{"$exists": true}})
	}
	if cursor := cursorFilter(q.Orders, q.StartAfter); cursor != nil {
		and = append(and, cursor)
	}
	if len(and) == 1 {
		return and[0]
	}
	return bson.M{"$and": and}
}

func scopeFilter(q model.Query) bson.M {
	if q.CollectionGroup {
		return bson.M{collectionIDKey: q.Path}
	}
	return bson.M{parentKey: q.Path}
}

func singleFilter(f model.Filter) bson.M {
	path := fieldPath(f.Field)
	value := toBSON(f.Value, time.Time{})
	switch f.Operator {
	case model.OperatorEqual:
		// an explicit null matches only stored nulls, never absent fields
		if f.Value.IsNull() {
			return bson.M{path: bson.M{"$type": "null"}}
		}
		return bson.M{path: bson.M{"$eq": value}}
	case model.OperatorNotEqual:
		return bson.M{path: bson.M{"$exists": true, "$ne": value, "$not": bson.M{"$type": "null"}}}
	case model.OperatorLessThan:
		return bson.M{path: bson.M{"$lt": value}}
	case model.OperatorLessThanOrEqual:
		return bson.M{path: bson.M{"$lte": value}}
	case model.OperatorGreaterThan:
		return bson.M{path: bson.M{"$gt": value}}
	case model.OperatorGreaterThanOrEqual:
		return bson.M{path: bson.M{"$gte": value}}
	case model.OperatorIn:
		return bson.M{path: bson.M{"$in": value}}
	case model.OperatorNotIn:
		return bson.M{path: bson.M{"$exists": true, "$nin": value}}
	case model.OperatorArrayContains:
		return bson.M{path: bson.M{"$elemMatch": bson.M{"$eq": value}}}
	case model.OperatorArrayContainsAny:
		return bson.M{path: bson.M{"$elemMatch": bson.M{"$in": value}}}
	}
	return bson.M{path: value}
}

// cursorFilter keeps documents strictly after the cursor position in the
// query ordering: the first differing order field decides.
func cursorFilter(orders []model.Order, after []model.Value) bson.M {
	if len(after) == 0 {
		return nil
	}
	var or []bson.M
	for i := range after {
		clause := bson.M{}
		for j := 0; j < i; j++ {
			clause[fieldPath(orders[j].Field)] = bson.M{"$eq": toBSON(after[j], time.Time{})}
		}
		op := "$gt"
		if orders[i].Direction == model.Descending {
			op = "$lt"
		}
		clause[fieldPath(orders[i].Field)] = bson.M{op: toBSON(after[i], time.Time{})}
		or = append(or, clause)
	}
	if len(or) == 1 {
		return or[0]
	}
	return bson.M{"$or": or}
}

// buildFindOptions sorts by the query orderings with the document path as
// the final tiebreak.
func buildFindOptions(q model.Query) *options.FindOptions {
	opts := options.Find().SetSort(buildSort(q.Orders))
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	return opts
}

func buildSort(orders []model.Order) bson.D {
	sort := bson.D{}
	for _, o := range orders {
		dir := 1
		if o.Direction == model.Descending {
			dir = -1
		}
		sort = append(sort, bson.E{Key: fieldPath(o.Field), Value: dir})
	}
	return append(sort, bson.E{Key: idKey, Value: 1})
}
