package memory

import (
	"sort"

	"firestore-access/internal/access/domain/model"
	"firestore-access/internal/shared/firestore"
)

// matchLocked evaluates q over the stored documents. Callers hold s.mu.
func (s *Store) matchLocked(q model.Query) []*snapshot {
	var out []*snapshot
	for path, fields := range s.docs {
		if !inScope(q, path) {
			continue
		}
		if !matchesFilters(fields, q.Filters) || !hasOrderFields(fields, q.Orders) {
			continue
		}
		doc, err := firestore.NewDocPath(path)
		if err != nil {
			continue
		}
		out = append(out, &snapshot{ref: doc, exists: true, fields: fields})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return compareDocs(out[i], out[j], q.Orders) < 0
	})

	if len(q.StartAfter) > 0 {
		kept := out[:0]
		for _, snap := range out {
			if afterCursor(snap.fields, q.Orders, q.StartAfter) {
				kept = append(kept, snap)
			}
		}
		out = kept
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}

	for i, snap := range out {
		out[i] = &snapshot{ref: snap.ref, exists: true, fields: cloneFields(snap.fields)}
	}
	return out
}

func inScope(q model.Query, path string) bool {
	parent := firestore.ParentPath(path)
	if q.CollectionGroup {
		return firestore.LastSegment(parent) == q.Path
	}
	return parent == q.Path
}

func hasOrderFields(fields map[string]model.Value, orders []model.Order) bool {
	for _, o := range orders {
		if _, ok := lookupField(fields, o.Field); !ok {
			return false
		}
	}
	return true
}

// compareDocs orders by the query orderings, then by path.
func compareDocs(a, b *snapshot, orders []model.Order) int {
	for _, o := range orders {
		av, _ := lookupField(a.fields, o.Field)
		bv, _ := lookupField(b.fields, o.Field)
		c := model.Compare(av, bv)
		if o.Direction == model.Descending {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	switch {
	case a.ref.Path() < b.ref.Path():
		return -1
	case a.ref.Path() > b.ref.Path():
		return 1
	}
	return 0
}

func afterCursor(fields map[string]model.Value, orders []model.Order, after []model.Value) bool {
	for i, cursor := range after {
		v, _ := lookupField(fields, orders[i].Field)
		c := model.Compare(v, cursor)
		if orders[i].Direction == model.Descending {
			c = -c
		}
		if c != 0 {
			return c > 0
		}
	}
	return false
}

func matchesFilters(fields map[string]model.Value, filters []model.Filter) bool {
	for _, f := range filters {
		v, ok := lookupField(fields, f.Field)
		if !matchFilter(v, ok, f) {
			return false
		}
	}
	return true
}

func matchFilter(v model.Value, present bool, f model.Filter) bool {
	if !present {
		return false
	}
	switch f.Operator {
	case model.OperatorEqual:
		return model.Compare(v, f.Value) == 0
	case model.OperatorNotEqual:
		return !v.IsNull() && model.Compare(v, f.Value) != 0
	case model.OperatorLessThan:
		return model.Comparable(v, f.Value) && model.Compare(v, f.Value) < 0
	case model.OperatorLessThanOrEqual:
		return model.Comparable(v, f.Value) && model.Compare(v, f.Value) <= 0
	case model.OperatorGreaterThan:
		return model.Comparable(v, f.Value) && model.Compare(v, f.Value) > 0
	case model.OperatorGreaterThanOrEqual:
		return model.Comparable(v, f.Value) && model.Compare(v, f.Value) >= 0
	case model.OperatorArrayContains:
		items, ok := v.AsArray()
		return ok && containsValue(items, f.Value)
	case model.OperatorArrayContainsAny:
		items, ok := v.AsArray()
		candidates, isArr := f.Value.AsArray()
		if !ok || !isArr {
			return false
		}
		for _, c := range candidates {
			if containsValue(items, c) {
				return true
			}
		}
		return false
	case model.OperatorIn:
		candidates, ok := f.Value.AsArray()
		return ok && containsValue(candidates, v)
	case model.OperatorNotIn:
		candidates, ok := f.Value.AsArray()
		return ok && !v.IsNull() && !containsValue(candidates, v)
	}
	return false
}

func containsValue(items []model.Value, v model.Value) bool {
	for _, item := range items {
		if model.Compare(item, v) == 0 {
			return true
		}
	}
	return false
}
