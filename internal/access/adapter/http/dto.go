package http

import (
	"fmt"
	"time"

	"firestore-access/internal/access/domain/model"
	"firestore-access/internal/access/usecase"
	"firestore-access/internal/shared/errors"
)

// Typed JSON markers. A JSON object holding exactly one of these keys
// decodes to the matching value kind instead of a map.
const (
	markerDate            = "$date"
	markerTimestamp       = "$timestamp"
	markerServerTimestamp = "$serverTimestamp"
	markerDelete          = "$delete"
)

// PathRequest addresses a document or collection.
type PathRequest struct {
	Key    string            `json:"key"`
	Params map[string]string `json:"params,omitempty"`
}

func (p PathRequest) args() (usecase.PathArgs, error) {
	if p.Key == "" {
		return usecase.PathArgs{}, errors.NewValidationError("key is required").WithCause(errors.ErrInvalidInput)
	}
	return usecase.PathArgs{Key: p.Key, Params: p.Params}, nil
}

// WriteRequest carries a mutation payload.
type WriteRequest struct {
	PathRequest
	Data map[string]interface{} `json:"data,omitempty"`
}

// FilterRequest is one where clause.
type FilterRequest struct {
	Field string      `json:"field"`
	Op    string      `json:"op"`
	Value interface{} `json:"value"`
}

// OrderRequest names the query ordering.
type OrderRequest struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

// QueryRequest shapes both plain and paginated queries.
type QueryRequest struct {
	PathRequest
	Filters      []FilterRequest `json:"filters,omitempty"`
	AllowDeleted bool            `json:"allowDeleted,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Cursor       string          `json:"cursor,omitempty"`
	OrderBy      *OrderRequest   `json:"orderBy,omitempty"`
	// Page is the state returned by the previous paginated call.
	Page *model.PageCursor `json:"page,omitempty"`
}

func (q QueryRequest) options() (usecase.QueryOptions, error) {
	opts := usecase.QueryOptions{Limit: q.Limit, Cursor: q.Cursor}
	opts.AllowDeleted = q.AllowDeleted
	for i, f := range q.Filters {
		op := model.Operator(f.Op)
		if !op.Valid() {
			return opts, errors.NewValidationError("unsupported filter operator").
				WithCause(errors.ErrInvalidInput).
				WithDetail("filter", i).
				WithDetail("op", f.Op)
		}
		v, err := decodeValue(f.Value)
		if err != nil {
			return opts, errors.NewValidationError("invalid filter value").
				WithCause(err).
				WithDetail("filter", i)
		}
		opts.QueryParams = opts.QueryParams.Where(f.Field, op, v)
	}
	if q.OrderBy != nil {
		opts.OrderBy = &model.Order{Field: q.OrderBy.Field, Direction: model.Direction(q.OrderBy.Direction)}
	}
	return opts, nil
}

// BatchWrite is one entry of a batch request.
type BatchWrite struct {
	Op model.Operation `json:"op"`
	WriteRequest
}

// BatchRequest lists writes applied atomically.
type BatchRequest struct {
	Writes []BatchWrite `json:"writes"`
}

// RefResponse identifies a written document.
type RefResponse struct {
	Key    string            `json:"key"`
	Path   string            `json:"path"`
	ID     string            `json:"id"`
	Params map[string]string `json:"params"`
}

func newRefResponse(ref *usecase.DocumentRef) RefResponse {
	return RefResponse{Key: ref.Key(), Path: ref.Path(), ID: ref.ID(), Params: ref.Params()}
}

// AccountEventResponse is who/when of a mutation.
type AccountEventResponse struct {
	AccountName     string     `json:"accountName"`
	AccountID       string     `json:"accountId"`
	ServerTimestamp time.Time  `json:"serverTimestamp"`
	DeviceTimestamp *time.Time `json:"deviceTimestamp,omitempty"`
}

func newAccountEventResponse(ev *model.AccountEvent) *AccountEventResponse {
	if ev == nil {
		return nil
	}
	return &AccountEventResponse{
		AccountName:     ev.AccountName,
		AccountID:       ev.AccountID,
		ServerTimestamp: ev.ServerTimestamp,
		DeviceTimestamp: ev.DeviceTimestamp,
	}
}

// DocumentResponse is a read document with its decoded envelope.
type DocumentResponse struct {
	RefResponse
	Exists    bool                   `json:"exists"`
	Deleted   bool                   `json:"deleted,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt *time.Time             `json:"createdAt,omitempty"`
	UpdatedAt *time.Time             `json:"updatedAt,omitempty"`
	CreatedBy *AccountEventResponse  `json:"createdBy,omitempty"`
	UpdatedBy *AccountEventResponse  `json:"updatedBy,omitempty"`
	DeletedBy *AccountEventResponse  `json:"deletedBy,omitempty"`
}

// newDocumentResponse renders doc. Envelope fields that fail to decode
// are left out: documents written around the access layer may lack them.
func newDocumentResponse(doc *usecase.Document) DocumentResponse {
	resp := DocumentResponse{RefResponse: newRefResponse(doc.Ref()), Exists: doc.Exists()}
	if !doc.Exists() {
		return resp
	}
	resp.Deleted = doc.IsDeleted()
	resp.Data = encodeFields(doc.Data())
	if std, err := doc.Standard(); err == nil {
		resp.CreatedAt, resp.UpdatedAt = &std.CreatedAt, &std.UpdatedAt
	}
	if ev, err := doc.OnCreate(); err == nil {
		resp.CreatedBy = newAccountEventResponse(&ev)
	}
	if ev, err := doc.OnUpdate(); err == nil {
		resp.UpdatedBy = newAccountEventResponse(ev)
	}
	if ev, err := doc.OnDelete(); err == nil {
		resp.DeletedBy = newAccountEventResponse(ev)
	}
	return resp
}

func newDocumentResponses(docs []*usecase.Document) []DocumentResponse {
	out := make([]DocumentResponse, len(docs))
	for i, doc := range docs {
		out[i] = newDocumentResponse(doc)
	}
	return out
}

// QueryResponse is one page of a plain query.
type QueryResponse struct {
	Docs   []DocumentResponse `json:"docs"`
	Cursor string             `json:"cursor"`
}

// PageResponse is one page of a paginated query.
type PageResponse struct {
	Docs []DocumentResponse `json:"docs"`
	Page model.PageCursor   `json:"page"`
}

// AuditRecordResponse is a mutation as served to audit readers and
// feed subscribers.
type AuditRecordResponse struct {
	ID        string               `json:"id,omitempty"`
	Operation model.Operation      `json:"operation"`
	Key       string               `json:"key"`
	Path      string               `json:"path"`
	Params    map[string]string    `json:"params,omitempty"`
	Event     AccountEventResponse `json:"event"`
}

func newAuditRecordResponse(id string, rec model.AuditRecord) AuditRecordResponse {
	return AuditRecordResponse{
		ID:        id,
		Operation: rec.Operation,
		Key:       rec.Key,
		Path:      rec.Path,
		Params:    rec.Params,
		Event:     *newAccountEventResponse(&rec.Event),
	}
}

func decodeFields(in map[string]interface{}) (map[string]model.Value, error) {
	out := make(map[string]model.Value, len(in))
	for k, item := range in {
		v, err := decodeValue(item)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// decodeValue converts decoded JSON into a Value, honouring the typed
// markers.
func decodeValue(x interface{}) (model.Value, error) {
	switch v := x.(type) {
	case map[string]interface{}:
		if len(v) == 1 {
			if val, ok, err := decodeMarker(v); ok || err != nil {
				return val, err
			}
		}
		fields, err := decodeFields(v)
		if err != nil {
			return model.Value{}, err
		}
		return model.Map(fields), nil
	case []interface{}:
		items := make([]model.Value, len(v))
		for i, item := range v {
			conv, err := decodeValue(item)
			if err != nil {
				return model.Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = conv
		}
		return model.Array(items...), nil
	}
	return model.FromAny(x)
}

func decodeMarker(m map[string]interface{}) (model.Value, bool, error) {
	for k, raw := range m {
		switch k {
		case markerDate, markerTimestamp:
			s, ok := raw.(string)
			if !ok {
				return model.Value{}, true, fmt.Errorf("%s wants a string, got %T", k, raw)
			}
			t, err := model.NewTimestampParser().ParseTimestamp(s)
			if err != nil {
				return model.Value{}, true, err
			}
			if k == markerDate {
				return model.Date(t), true, nil
			}
			return model.TimestampValue(model.TimestampFromTime(t)), true, nil
		case markerServerTimestamp:
			return model.ServerTimestamp(), true, nil
		case markerDelete:
			return model.DeleteField(), true, nil
		}
	}
	return model.Value{}, false, nil
}

func encodeFields(in map[string]model.Value) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = encodeValue(v)
	}
	return out
}

// encodeValue renders v as JSON-ready data. Instants use the typed
// markers so they survive a round trip.
func encodeValue(v model.Value) interface{} {
	switch v.Kind() {
	case model.KindDate:
		t, _ := v.AsDate()
		return map[string]interface{}{markerDate: t.UTC().Format(time.RFC3339Nano)}
	case model.KindTimestamp:
		ts, _ := v.AsTimestamp()
		return map[string]interface{}{markerTimestamp: ts.Time().Format(time.RFC3339Nano)}
	case model.KindArray:
		items, _ := v.AsArray()
		out := make([]interface{}, len(items))
		for i, item := range items {
			out[i] = encodeValue(item)
		}
		return out
	case model.KindMap:
		m, _ := v.AsMap()
		return encodeFields(m)
	case model.KindDeleteField, model.KindServerTimestamp:
		return nil
	}
	return v.Interface()
}
