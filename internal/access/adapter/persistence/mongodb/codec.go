package mongodb

import (
	"fmt"
	"strings"
	"time"

	"firestore-access/internal/access/domain/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Field names may start with "$" (the audit envelope) or contain dots,
// neither of which MongoDB accepts in stored keys.
var keyEscaper = strings.NewReplacer("$", "＄", ".", "．")
var keyUnescaper = strings.NewReplacer("＄", "$", "．", ".")

func escapeKey(k string) string   { return keyEscaper.Replace(k) }
func unescapeKey(k string) string { return keyUnescaper.Replace(k) }

// fieldPath maps a dotted document field path to its location in the
// stored BSON document.
func fieldPath(field string) string {
	parts := strings.Split(field, ".")
	for i, p := range parts {
		parts[i] = escapeKey(p)
	}
	return fieldsKey + "." + strings.Join(parts, ".")
}

// toBSON converts a value for storage. Server timestamps resolve to now,
// dates and timestamps become BSON datetimes (millisecond precision) and
// delete sentinels inside containers are dropped.
func toBSON(v model.Value, now time.Time) interface{} {
	switch v.Kind() {
	case model.KindNull:
		return nil
	case model.KindBool:
		b, _ := v.AsBool()
		return b
	case model.KindNumber:
		n, _ := v.AsNumber()
		return n
	case model.KindString:
		s, _ := v.AsString()
		return s
	case model.KindDate:
		d, _ := v.AsDate()
		return primitive.NewDateTimeFromTime(d)
	case model.KindTimestamp:
		ts, _ := v.AsTimestamp()
		return primitive.NewDateTimeFromTime(ts.Time())
	case model.KindServerTimestamp:
		return primitive.NewDateTimeFromTime(now)
	case model.KindArray:
		items, _ := v.AsArray()
		out := make(bson.A, 0, len(items))
		for _, item := range items {
			if item.Kind() == model.KindDeleteField {
				continue
			}
			out = append(out, toBSON(item, now))
		}
		return out
	case model.KindMap:
		m, _ := v.AsMap()
		return fieldsToBSON(m, now)
	}
	return nil
}

func fieldsToBSON(fields map[string]model.Value, now time.Time) bson.M {
	out := make(bson.M, len(fields))
	for k, item := range fields {
		if item.Kind() == model.KindDeleteField {
			continue
		}
		out[escapeKey(k)] = toBSON(item, now)
	}
	return out
}

// fromBSON converts a decoded BSON value back. Datetimes come back as
// model.Timestamp, like every other store read.
func fromBSON(raw interface{}) (model.Value, error) {
	switch x := raw.(type) {
	case nil:
		return model.Null(), nil
	case bool:
		return model.Bool(x), nil
	case int32:
		return model.Int(int64(x)), nil
	case int64:
		return model.Int(x), nil
	case float64:
		return model.Number(x), nil
	case string:
		return model.String(x), nil
	case primitive.DateTime:
		return model.TimestampValue(model.TimestampFromTime(x.Time())), nil
	case time.Time:
		return model.TimestampValue(model.TimestampFromTime(x)), nil
	case primitive.Timestamp:
		return model.TimestampValue(model.Timestamp{Seconds: int64(x.T)}), nil
	case primitive.A:
		items := make([]model.Value, len(x))
		for i, item := range x {
			v, err := fromBSON(item)
			if err != nil {
				return model.Value{}, err
			}
			items[i] = v
		}
		return model.Array(items...), nil
	case primitive.M:
		m, err := fieldsFromBSON(x)
		if err != nil {
			return model.Value{}, err
		}
		return model.Map(m), nil
	case primitive.D:
		m, err := fieldsFromBSON(x.Map())
		if err != nil {
			return model.Value{}, err
		}
		return model.Map(m), nil
	}
	return model.Value{}, fmt.Errorf("unsupported stored value of type %T", raw)
}

func fieldsFromBSON(m bson.M) (map[string]model.Value, error) {
	out := make(map[string]model.Value, len(m))
	for k, raw := range m {
		v, err := fromBSON(raw)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", unescapeKey(k), err)
		}
		out[unescapeKey(k)] = v
	}
	return out, nil
}

// updateDocument splits an update payload into $set and $unset on the
// stored fields. Payload keys may be dotted paths.
func updateDocument(data map[string]model.Value, now time.Time) bson.M {
	set := bson.M{updatedKey: now}
	unset := bson.M{}
	for k, v := range data {
		if v.Kind() == model.KindDeleteField {
			unset[fieldPath(k)] = ""
			continue
		}
		set[fieldPath(k)] = toBSON(v, now)
	}
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}
