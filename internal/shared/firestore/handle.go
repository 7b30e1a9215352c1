package firestore

// DocPath is a validated document path.
type DocPath struct {
	path string
}

// NewDocPath validates path as a document path.
func NewDocPath(path string) (DocPath, error) {
	if err := ValidateDocumentPath(path); err != nil {
		return DocPath{}, err
	}
	return DocPath{path: BuildDocumentPath(ParseDocumentPath(path)...)}, nil
}

// Path returns the full slash separated path.
func (d DocPath) Path() string { return d.path }

// ID returns the document id.
func (d DocPath) ID() string { return LastSegment(d.path) }

// Parent returns the collection holding the document.
func (d DocPath) Parent() CollPath { return CollPath{path: ParentPath(d.path)} }

// IsZero reports whether d was never set.
func (d DocPath) IsZero() bool { return d.path == "" }

func (d DocPath) String() string { return d.path }

// CollPath is a validated collection path.
type CollPath struct {
	path string
}

// NewCollPath validates path as a collection path.
func NewCollPath(path string) (CollPath, error) {
	if err := ValidateCollectionPath(path); err != nil {
		return CollPath{}, err
	}
	return CollPath{path: BuildDocumentPath(ParseDocumentPath(path)...)}, nil
}

// Path returns the full slash separated path.
func (c CollPath) Path() string { return c.path }

// ID returns the collection id.
func (c CollPath) ID() string { return LastSegment(c.path) }

// Parent returns the path of the owning document, "" for a root collection.
func (c CollPath) Parent() string { return ParentPath(c.path) }

// Doc addresses a document inside the collection.
func (c CollPath) Doc(id string) (DocPath, error) {
	return NewDocPath(BuildDocumentPath(c.path, id))
}

func (c CollPath) String() string { return c.path }
