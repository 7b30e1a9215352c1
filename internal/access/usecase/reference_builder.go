package usecase

import (
	"firestore-access/internal/access/domain/model"
	"firestore-access/internal/access/domain/repository"
	"firestore-access/internal/access/domain/service"
	"firestore-access/internal/shared/errors"
	"firestore-access/internal/shared/firestore"
)

// referenceBuilder turns PathArgs into store references. It performs no I/O.
type referenceBuilder struct {
	store    repository.Store
	schema   *model.Schema
	resolver service.PathResolver
}

func newReferenceBuilder(store repository.Store, schema *model.Schema) *referenceBuilder {
	return &referenceBuilder{store: store, schema: schema, resolver: service.NewPathResolver()}
}

// docRef resolves a document key. A trailing unbound placeholder gets a
// freshly allocated id, recorded under the placeholder name.
func (b *referenceBuilder) docRef(arg PathArgs) (*DocumentRef, error) {
	tpl, ok := b.schema.Template(arg.Key)
	if !ok {
		return nil, errors.UnknownPathKey(arg.Key)
	}
	res, err := b.resolver.Resolve(tpl, arg.Params, false)
	if err != nil {
		return nil, err
	}

	params := res.Params
	var doc firestore.DocPath
	if res.TrailingUnbound {
		coll, err := b.store.Collection(res.Path)
		if err != nil {
			return nil, err
		}
		doc = b.store.NewDoc(coll)
		params[tpl.Last().Param] = doc.ID()
	} else {
		doc, err = b.store.Doc(res.Path)
		if err != nil {
			return nil, err
		}
	}
	return &DocumentRef{key: arg.Key, params: params, doc: doc}, nil
}

// refFromSnapshot rebuilds the reference of a stored document from its
// path, matching it against docKey.
func (b *referenceBuilder) refFromSnapshot(docKey string, doc firestore.DocPath) *DocumentRef {
	params := map[string]string{}
	if tpl, ok := b.schema.Template(docKey); ok {
		if matched, ok := tpl.Match(doc.Path()); ok {
			params = matched
		}
	}
	return &DocumentRef{key: docKey, params: params, doc: doc}
}

// queryRef resolves a document key to the collection holding it, or a
// collection-group key to a group scan. Unless qp.AllowDeleted is set,
// soft deleted documents are filtered out first.
func (b *referenceBuilder) queryRef(arg PathArgs, qp QueryParams) (*QueryRef, error) {
	var (
		q      model.Query
		docKey string
		params = map[string]string{}
	)

	if target, ok := b.schema.GroupDocKey(arg.Key); ok {
		q = b.store.CollectionGroup(arg.Key)
		docKey = target
	} else if tpl, ok := b.schema.Template(arg.Key); ok {
		res, err := b.resolver.Resolve(tpl, arg.Params, true)
		if err != nil {
			return nil, err
		}
		path := res.Path
		if !res.TrailingUnbound {
			path = firestore.ParentPath(res.Path)
		}
		coll, err := b.store.Collection(path)
		if err != nil {
			return nil, err
		}
		q = model.NewCollectionQuery(coll.Path())
		docKey = arg.Key
		params = res.Params
	} else {
		return nil, errors.UnknownPathKey(arg.Key)
	}

	built := QueryParams{AllowDeleted: qp.AllowDeleted}
	if !qp.AllowDeleted {
		built = built.Where(model.FieldOnDelete, model.OperatorEqual, model.Null())
	}
	for _, f := range qp.Filters {
		built = built.Where(f.Field, f.Operator, service.EncodeValue(f.Value))
	}
	for _, f := range built.Filters {
		q = q.Where(f.Field, f.Operator, f.Value)
	}
	if err := q.Validate(); err != nil {
		return nil, errors.NewValidationError(err.Error()).WithCause(errors.ErrInvalidInput)
	}

	return &QueryRef{key: arg.Key, params: params, docKey: docKey, query: q, qp: built}, nil
}
