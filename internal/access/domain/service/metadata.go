package service

import (
	"time"

	"firestore-access/internal/access/domain/model"
	"firestore-access/internal/shared/errors"
)

var timestamps = model.NewTimestampParser()

// ParseRef validates a decoded "$ref" and returns its key and parameters.
func ParseRef(v model.Value) (string, map[string]string, error) {
	fields, ok := v.AsMap()
	if !ok {
		return "", nil, errors.MetadataShape(model.FieldRef, "expected a map of strings")
	}
	var key string
	params := make(map[string]string, len(fields))
	for k, item := range fields {
		s, ok := item.AsString()
		if !ok {
			return "", nil, errors.MetadataShape(model.FieldRef, "value of "+k+" is not a string")
		}
		if k == model.RefKeyField {
			key = s
			continue
		}
		params[k] = s
	}
	if key == "" {
		return "", nil, errors.MetadataShape(model.FieldRef, "missing document key")
	}
	return key, params, nil
}

// ParseStandard validates a decoded "$standard".
func ParseStandard(v model.Value) (model.StandardRecord, error) {
	created, err := instantField(model.FieldStandard, v, "created_at")
	if err != nil {
		return model.StandardRecord{}, err
	}
	updated, err := instantField(model.FieldStandard, v, "updated_at")
	if err != nil {
		return model.StandardRecord{}, err
	}
	return model.StandardRecord{CreatedAt: created, UpdatedAt: updated}, nil
}

// ParseAccountEvent validates a decoded "$on_<op>" field. A null or
// missing value returns nil when nullable is set.
func ParseAccountEvent(field string, v model.Value, present, nullable bool) (*model.AccountEvent, error) {
	if !present || v.IsNull() {
		if nullable {
			return nil, nil
		}
		return nil, errors.MetadataShape(field, "account event is missing")
	}
	if _, ok := v.AsMap(); !ok {
		return nil, errors.MetadataShape(field, "expected an account event map")
	}
	name, err := stringField(field, v, model.EventAccountName)
	if err != nil {
		return nil, err
	}
	id, err := stringField(field, v, model.EventAccountID)
	if err != nil {
		return nil, err
	}
	server, err := instantField(field, v, model.EventServerTimestamp)
	if err != nil {
		return nil, err
	}
	event := &model.AccountEvent{AccountName: name, AccountID: id, ServerTimestamp: server}
	if raw, ok := v.Field(model.EventDeviceTimestamp); ok && !raw.IsNull() {
		device, ok := timestamps.Coerce(raw)
		if !ok {
			return nil, errors.MetadataShape(field, model.EventDeviceTimestamp+" is not a timestamp")
		}
		event.DeviceTimestamp = &device
	}
	return event, nil
}

func stringField(field string, v model.Value, name string) (string, error) {
	raw, ok := v.Field(name)
	if !ok {
		return "", errors.MetadataShape(field, name+" is missing")
	}
	s, ok := raw.AsString()
	if !ok {
		return "", errors.MetadataShape(field, name+" is not a string")
	}
	return s, nil
}

func instantField(field string, v model.Value, name string) (time.Time, error) {
	raw, ok := v.Field(name)
	if !ok || raw.IsNull() {
		return time.Time{}, errors.MetadataShape(field, name+" is missing")
	}
	t, ok := timestamps.Coerce(raw)
	if !ok {
		return time.Time{}, errors.MetadataShape(field, name+" is not a timestamp")
	}
	return t, nil
}
