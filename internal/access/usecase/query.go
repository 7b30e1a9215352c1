package usecase

import (
	"context"
	"fmt"

	"firestore-access/internal/access/domain/model"
	"firestore-access/internal/shared/errors"
)

// QueryOptions shapes GetQuery and GetPaginatedDocs.
type QueryOptions struct {
	QueryParams
	// Limit caps the page size. GetQuery treats 0 as unlimited.
	Limit int
	// Cursor resumes a previous GetQuery. GetPaginatedDocs reads the
	// cursor from its PageCursor instead.
	Cursor string
	// OrderBy defaults to descending creation time.
	OrderBy *model.Order
}

// QueryResult is one page of GetQuery.
type QueryResult struct {
	Docs []*Document
	// Cursor resumes after the last document. With no documents it echoes
	// the incoming cursor, or holds a null position when there was none.
	Cursor string
}

// Page is one page of GetPaginatedDocs.
type Page struct {
	Docs       []*Document
	PageCursor model.PageCursor
}

// GetQuery reads one ordered page of a collection or collection group.
func (db *DB) GetQuery(ctx context.Context, arg PathArgs, opts QueryOptions) (*QueryResult, error) {
	if opts.Limit < 0 {
		return nil, errors.NewValidationError("limit must not be negative").WithCause(errors.ErrInvalidInput)
	}
	qref, err := db.refs.queryRef(arg, opts.QueryParams)
	if err != nil {
		return nil, err
	}
	order, err := db.order(opts.OrderBy)
	if err != nil {
		return nil, err
	}
	docs, cursor, err := db.runPage(ctx, qref, order, opts.Cursor, opts.Limit)
	if err != nil {
		return nil, err
	}
	return &QueryResult{Docs: docs, Cursor: cursor}, nil
}

// GetPaginatedDocs reads the next page described by page, nil for the
// first one. Once fewer than Limit*FinalBatchFactor documents appear to
// remain, the count is refreshed and everything left (at least Limit) is
// fetched at once. Between those refreshes the count may be stale.
func (db *DB) GetPaginatedDocs(ctx context.Context, arg PathArgs, opts QueryOptions, page *model.PageCursor) (*Page, error) {
	if opts.Limit <= 0 {
		return nil, errors.NewValidationError("paginated queries need a positive limit").WithCause(errors.ErrInvalidInput)
	}
	var state model.PageCursor
	if page != nil {
		state = *page
	}
	qref, err := db.refs.queryRef(arg, opts.QueryParams)
	if err != nil {
		return nil, err
	}
	order, err := db.order(opts.OrderBy)
	if err != nil {
		return nil, err
	}

	fetch := opts.Limit
	if state.NearEnd(opts.Limit, db.finalBatchFactor) {
		count, err := db.apis.Count(ctx, qref.query.OrderBy(order.Field, order.Direction))
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", qref.query.Path, err)
		}
		state.Count = count
		if state.NearEnd(opts.Limit, db.finalBatchFactor) {
			if remaining := int(state.Remaining()); remaining > fetch {
				fetch = remaining
			}
		}
		db.log.WithContext(ctx).Debugf("final batch check for %s: count=%d sent=%d fetch=%d", arg.Key, state.Count, state.Sent, fetch)
	}

	docs, cursor, err := db.runPage(ctx, qref, order, state.Cursor, fetch)
	if err != nil {
		return nil, err
	}
	state.Sent += int64(len(docs))
	state.Cursor = cursor
	return &Page{Docs: docs, PageCursor: state}, nil
}

func (db *DB) order(o *model.Order) (model.Order, error) {
	if o == nil {
		return db.defaultOrder, nil
	}
	if o.Field == "" || !o.Direction.Valid() {
		return model.Order{}, errors.NewValidationError("invalid ordering").
			WithCause(errors.ErrInvalidInput).
			WithDetail("order", o.String())
	}
	return *o, nil
}

func (db *DB) runPage(ctx context.Context, qref *QueryRef, order model.Order, cursor string, limit int) ([]*Document, string, error) {
	q := qref.query.OrderBy(order.Field, order.Direction)
	if cursor != "" {
		after, ok, err := db.cursors.Decode(cursor, order)
		if err != nil {
			return nil, "", err
		}
		if ok {
			q = q.After(after)
		}
	}
	if limit > 0 {
		q = q.WithLimit(limit)
	}

	db.log.WithContext(ctx).Debugf("query %s (group=%t, filters=%d, limit=%d)", q.Path, q.CollectionGroup, len(q.Filters), limit)
	snaps, err := db.apis.Query(ctx, q)
	if err != nil {
		db.log.WithContext(ctx).Errorf("failed to query %s: %v", q.Path, err)
		return nil, "", fmt.Errorf("query %s: %w", q.Path, err)
	}

	docs := make([]*Document, len(snaps))
	for i, snap := range snaps {
		docs[i] = newDocument(db.refs.refFromSnapshot(qref.docKey, snap.Ref()), snap)
	}

	if len(snaps) == 0 {
		if cursor != "" {
			return docs, cursor, nil
		}
		next, err := db.cursors.Encode(order, model.Null(), false)
		return docs, next, err
	}
	last, found := snaps[len(snaps)-1].Get(order.Field)
	next, err := db.cursors.Encode(order, last, found)
	if err != nil {
		return nil, "", err
	}
	return docs, next, nil
}
