package usecase

import (
	"firestore-access/internal/access/domain/model"
	"firestore-access/internal/shared/firestore"
)

// PathArgs addresses a document or collection through a declared key and
// its placeholder values.
type PathArgs struct {
	Key    string
	Params map[string]string
}

// Path builds PathArgs from a key and name/value pairs. A trailing name
// without a value is ignored.
func Path(key string, kv ...string) PathArgs {
	params := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		params[kv[i]] = kv[i+1]
	}
	return PathArgs{Key: key, Params: params}
}

// DocumentRef is a resolved document reference. It is immutable.
type DocumentRef struct {
	key    string
	params map[string]string
	doc    firestore.DocPath
}

// Key returns the document key the reference was built from.
func (r *DocumentRef) Key() string { return r.key }

// Param returns a bound placeholder value, including an allocated id.
func (r *DocumentRef) Param(name string) string { return r.params[name] }

// Params returns a copy of every bound placeholder value.
func (r *DocumentRef) Params() map[string]string { return copyParams(r.params) }

// ID returns the document id.
func (r *DocumentRef) ID() string { return r.doc.ID() }

// Path returns the concrete store path.
func (r *DocumentRef) Path() string { return r.doc.Path() }

// Args returns fully bound PathArgs addressing the same document.
func (r *DocumentRef) Args() PathArgs {
	return PathArgs{Key: r.key, Params: copyParams(r.params)}
}

// QueryParams narrows a query.
type QueryParams struct {
	Filters []model.Filter
	// AllowDeleted includes soft deleted documents.
	AllowDeleted bool
}

// Where appends a filter and returns the updated params.
func (p QueryParams) Where(field string, op model.Operator, v model.Value) QueryParams {
	p.Filters = append(append([]model.Filter(nil), p.Filters...), model.Filter{Field: field, Operator: op, Value: v})
	return p
}

// QueryRef is a resolved collection or collection-group query.
type QueryRef struct {
	key    string
	params map[string]string
	docKey string
	query  model.Query
	qp     QueryParams
}

// Key returns the key the query was built from.
func (r *QueryRef) Key() string { return r.key }

// Params returns the bound placeholder values.
func (r *QueryRef) Params() map[string]string { return copyParams(r.params) }

// DocKey returns the document key results are decoded against.
func (r *QueryRef) DocKey() string { return r.docKey }

// QueryParams returns the params the query was built with, including the
// soft delete filter when it was added.
func (r *QueryRef) QueryParams() QueryParams { return r.qp }

// Query returns the store query.
func (r *QueryRef) Query() model.Query { return r.query }

func copyParams(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
