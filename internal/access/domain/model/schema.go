package model

import (
	"fmt"
	"sort"
)

// DocShape describes a document path family.
type DocShape struct {
	// Rule is an optional boolean expression over the caller payload,
	// evaluated by the schema validator before create, update and soft
	// delete. Update and delete payloads are partial.
	Rule        string
	Description string
}

// Schema is the declared set of document path keys and collection-group
// keys. It is built once and read-only afterwards.
type Schema struct {
	docs      map[string]DocShape
	groups    map[string]string
	templates map[string]Template
}

// NewSchema validates and copies the declared maps. Every document key
// must be a document template; every group key must be the collection id
// of the document key it maps to.
func NewSchema(docs map[string]DocShape, groups map[string]string) (*Schema, error) {
	s := &Schema{
		docs:      make(map[string]DocShape, len(docs)),
		groups:    make(map[string]string, len(groups)),
		templates: make(map[string]Template, len(docs)),
	}
	for key, shape := range docs {
		t, err := ParseTemplate(key)
		if err != nil {
			return nil, err
		}
		if !t.IsDocument() {
			return nil, fmt.Errorf("document key %q has an odd number of segments", key)
		}
		s.docs[key] = shape
		s.templates[key] = t
	}
	for group, docKey := range groups {
		t, ok := s.templates[docKey]
		if !ok {
			return nil, fmt.Errorf("collection group %q maps to undeclared document key %q", group, docKey)
		}
		if _, clash := s.docs[group]; clash {
			return nil, fmt.Errorf("collection group %q clashes with a document key", group)
		}
		if t.CollectionID() != group {
			return nil, fmt.Errorf("collection group %q does not match the collection of %q", group, docKey)
		}
		s.groups[group] = docKey
	}
	return s, nil
}

// MustNewSchema panics on an invalid declaration.
func MustNewSchema(docs map[string]DocShape, groups map[string]string) *Schema {
	s, err := NewSchema(docs, groups)
	if err != nil {
		panic(err)
	}
	return s
}

// DocShape returns the declared shape of a document key.
func (s *Schema) DocShape(key string) (DocShape, bool) {
	shape, ok := s.docs[key]
	return shape, ok
}

// HasDoc reports whether key is a declared document key.
func (s *Schema) HasDoc(key string) bool {
	_, ok := s.docs[key]
	return ok
}

// Template returns the parsed template of a document key.
func (s *Schema) Template(key string) (Template, bool) {
	t, ok := s.templates[key]
	return t, ok
}

// GroupDocKey returns the document key a collection-group key maps to.
func (s *Schema) GroupDocKey(group string) (string, bool) {
	k, ok := s.groups[group]
	return k, ok
}

// HasQuery reports whether key can be queried.
func (s *Schema) HasQuery(key string) bool {
	if s.HasDoc(key) {
		return true
	}
	_, ok := s.groups[key]
	return ok
}

// DocKeys lists document keys in lexical order.
func (s *Schema) DocKeys() []string {
	keys := make([]string, 0, len(s.docs))
	for k := range s.docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GroupKeys lists collection-group keys in lexical order.
func (s *Schema) GroupKeys() []string {
	keys := make([]string, 0, len(s.groups))
	for k := range s.groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
