package usecase

import (
	"sync"

	"firestore-access/internal/access/domain/model"
	"firestore-access/internal/access/domain/repository"
	"firestore-access/internal/access/domain/service"
	"firestore-access/internal/shared/errors"
)

// Document is a decoded snapshot. Field values are decoded on first
// access and memoized; the cache belongs to this Document only.
type Document struct {
	ref  *DocumentRef
	snap repository.Snapshot

	mu    sync.Mutex
	cache map[string]cachedField
}

type cachedField struct {
	value   model.Value
	present bool
}

func newDocument(ref *DocumentRef, snap repository.Snapshot) *Document {
	return &Document{ref: ref, snap: snap, cache: map[string]cachedField{}}
}

// Ref returns the reference the document was read through.
func (d *Document) Ref() *DocumentRef { return d.ref }

// Exists reports whether the document was found.
func (d *Document) Exists() bool { return d.snap.Exists() }

func (d *Document) field(name string) cachedField {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.cache[name]; ok {
		return c
	}
	var c cachedField
	if raw, ok := d.snap.Get(name); ok {
		c = cachedField{value: service.DecodeField(raw), present: true}
	}
	d.cache[name] = c
	return c
}

// Get returns an ordinary field, with timestamps decoded to dates. Missing
// fields read as null. Metadata fields are rejected.
func (d *Document) Get(field string) (model.Value, error) {
	v, _, err := d.Lookup(field)
	return v, err
}

// Lookup is Get that also reports whether the field is present.
func (d *Document) Lookup(field string) (model.Value, bool, error) {
	if model.IsMetaField(field) {
		return model.Value{}, false, errors.MetadataAccess(field, "metadata fields are read with MetaData")
	}
	c := d.field(field)
	if !c.present {
		return model.Null(), false, nil
	}
	return c.value, true, nil
}

// Data returns every ordinary root field, decoded.
func (d *Document) Data() map[string]model.Value {
	out := map[string]model.Value{}
	if !d.Exists() {
		return out
	}
	for k := range d.snap.Data() {
		if model.IsMetaField(k) {
			continue
		}
		out[k] = d.field(k).value
	}
	return out
}

// MetaData returns a decoded metadata field without shape checks.
func (d *Document) MetaData(field string) (model.Value, error) {
	if !model.IsMetaField(field) {
		return model.Value{}, errors.MetadataAccess(field, "ordinary fields are read with Get")
	}
	c := d.field(field)
	if !c.present {
		return model.Null(), nil
	}
	return c.value, nil
}

// StoredRef returns the self reference recorded at creation.
func (d *Document) StoredRef() (PathArgs, error) {
	c := d.field(model.FieldRef)
	if !c.present {
		return PathArgs{}, errors.MetadataShape(model.FieldRef, "missing")
	}
	key, params, err := service.ParseRef(c.value)
	if err != nil {
		return PathArgs{}, err
	}
	return PathArgs{Key: key, Params: params}, nil
}

// Standard returns the creation and update times.
func (d *Document) Standard() (model.StandardRecord, error) {
	c := d.field(model.FieldStandard)
	if !c.present {
		return model.StandardRecord{}, errors.MetadataShape(model.FieldStandard, "missing")
	}
	return service.ParseStandard(c.value)
}

// OnCreate returns who created the document.
func (d *Document) OnCreate() (model.AccountEvent, error) {
	c := d.field(model.FieldOnCreate)
	ev, err := service.ParseAccountEvent(model.FieldOnCreate, c.value, c.present, false)
	if err != nil {
		return model.AccountEvent{}, err
	}
	return *ev, nil
}

// OnUpdate returns who last updated the document, nil when never updated.
func (d *Document) OnUpdate() (*model.AccountEvent, error) {
	c := d.field(model.FieldOnUpdate)
	return service.ParseAccountEvent(model.FieldOnUpdate, c.value, c.present, true)
}

// OnDelete returns who soft deleted the document, nil when live.
func (d *Document) OnDelete() (*model.AccountEvent, error) {
	c := d.field(model.FieldOnDelete)
	return service.ParseAccountEvent(model.FieldOnDelete, c.value, c.present, true)
}

// IsDeleted reports whether the document carries a soft delete event.
func (d *Document) IsDeleted() bool {
	c := d.field(model.FieldOnDelete)
	return c.present && !c.value.IsNull()
}
