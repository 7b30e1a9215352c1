package model

import "fmt"

// Operator is a filter comparison.
type Operator string

// Direction is an ordering direction.
type Direction string

const (
	// Ascending is used for ordering in ascending order.
	Ascending Direction = "asc"
	// Descending is used for ordering in descending order.
	Descending Direction = "desc"
)

// Operator types for filters
const (
	OperatorEqual              Operator = "=="
	OperatorNotEqual           Operator = "!="
	OperatorLessThan           Operator = "<"
	OperatorLessThanOrEqual    Operator = "<="
	OperatorGreaterThan        Operator = ">"
	OperatorGreaterThanOrEqual Operator = ">="
	OperatorArrayContains      Operator = "array-contains"
	OperatorArrayContainsAny   Operator = "array-contains-any"
	OperatorIn                 Operator = "in"
	OperatorNotIn              Operator = "not-in"
)

var validOperators = map[Operator]struct{}{
	OperatorEqual: {}, OperatorNotEqual: {}, OperatorLessThan: {}, OperatorLessThanOrEqual: {},
	OperatorGreaterThan: {}, OperatorGreaterThanOrEqual: {}, OperatorArrayContains: {},
	OperatorArrayContainsAny: {}, OperatorIn: {}, OperatorNotIn: {},
}

// Valid reports whether op is a supported comparison.
func (op Operator) Valid() bool {
	_, ok := validOperators[op]
	return ok
}

// Valid reports whether d is asc or desc.
func (d Direction) Valid() bool {
	return d == Ascending || d == Descending
}

// Filter represents a single where clause.
type Filter struct {
	Field    string
	Operator Operator
	Value    Value
}

// Order represents a single ordering clause.
type Order struct {
	Field     string
	Direction Direction
}

// String renders the order as "<direction>: <field>", the form stored in
// cursor tokens.
func (o Order) String() string {
	return fmt.Sprintf("%s: %s", o.Direction, o.Field)
}

// Query is an immutable store query. Builder methods return copies.
type Query struct {
	// Path is a collection path, or a bare collection id when
	// CollectionGroup is set.
	Path            string
	CollectionGroup bool
	Filters         []Filter
	Orders          []Order
	Limit           int
	StartAfter      []Value
}

// NewCollectionQuery queries the documents directly under a collection path.
func NewCollectionQuery(path string) Query {
	return Query{Path: path}
}

// NewCollectionGroupQuery queries every collection with the given id.
func NewCollectionGroupQuery(collectionID string) Query {
	return Query{Path: collectionID, CollectionGroup: true}
}

func (q Query) clone() Query {
	c := q
	c.Filters = append([]Filter(nil), q.Filters...)
	c.Orders = append([]Order(nil), q.Orders...)
	c.StartAfter = append([]Value(nil), q.StartAfter...)
	return c
}

// Where appends a filter.
func (q Query) Where(field string, op Operator, v Value) Query {
	c := q.clone()
	c.Filters = append(c.Filters, Filter{Field: field, Operator: op, Value: v})
	return c
}

// OrderBy appends an ordering.
func (q Query) OrderBy(field string, dir Direction) Query {
	c := q.clone()
	c.Orders = append(c.Orders, Order{Field: field, Direction: dir})
	return c
}

// WithLimit sets the maximum number of documents returned. 0 means no limit.
func (q Query) WithLimit(n int) Query {
	c := q.clone()
	c.Limit = n
	return c
}

// After resumes the query after the given order-field values.
func (q Query) After(values ...Value) Query {
	c := q.clone()
	c.StartAfter = append([]Value(nil), values...)
	return c
}

// Validate checks operators and directions.
func (q Query) Validate() error {
	if q.Path == "" {
		return fmt.Errorf("query path is empty")
	}
	for _, f := range q.Filters {
		if f.Field == "" {
			return fmt.Errorf("filter field is empty")
		}
		if !f.Operator.Valid() {
			return fmt.Errorf("unsupported operator %q", f.Operator)
		}
	}
	for _, o := range q.Orders {
		if o.Field == "" || !o.Direction.Valid() {
			return fmt.Errorf("invalid order %q", o.String())
		}
	}
	if len(q.StartAfter) > len(q.Orders) {
		return fmt.Errorf("startAfter has %d values for %d orderings", len(q.StartAfter), len(q.Orders))
	}
	if q.Limit < 0 {
		return fmt.Errorf("negative limit %d", q.Limit)
	}
	return nil
}
