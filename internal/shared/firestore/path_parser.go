package firestore

import (
	"strings"

	"firestore-access/internal/shared/errors"
)

// MaxSegmentLength bounds a single id segment, in bytes.
const MaxSegmentLength = 1500

// ParseDocumentPath splits a slash separated store path into its segments,
// dropping empty ones.
func ParseDocumentPath(path string) []string {
	if path == "" {
		return []string{}
	}
	var result []string
	for _, segment := range strings.Split(path, "/") {
		if segment != "" {
			result = append(result, segment)
		}
	}
	return result
}

// BuildDocumentPath constructs a path from segments
func BuildDocumentPath(segments ...string) string {
	return strings.Join(segments, "/")
}

// IsValidID checks if a segment can address a collection or document.
func IsValidID(id string) bool {
	if id == "" || id == "." || id == ".." || len(id) > MaxSegmentLength {
		return false
	}
	if strings.ContainsAny(id, "/{}") {
		return false
	}
	return !(strings.HasPrefix(id, "__") && strings.HasSuffix(id, "__"))
}

// IsDocumentPath checks if a path has an even number of segments.
func IsDocumentPath(path string) bool {
	segments := ParseDocumentPath(path)
	return len(segments) > 0 && len(segments)%2 == 0
}

// IsCollectionPath checks if a path has an odd number of segments.
func IsCollectionPath(path string) bool {
	segments := ParseDocumentPath(path)
	return len(segments)%2 == 1
}

// ParentPath returns the path without its last segment, "" for a root collection.
func ParentPath(path string) string {
	segments := ParseDocumentPath(path)
	if len(segments) <= 1 {
		return ""
	}
	return BuildDocumentPath(segments[:len(segments)-1]...)
}

// LastSegment returns the final segment: the document id for a document
// path, the collection id for a collection path.
func LastSegment(path string) string {
	segments := ParseDocumentPath(path)
	if len(segments) == 0 {
		return ""
	}
	return segments[len(segments)-1]
}

// ValidateDocumentPath validates a document path
func ValidateDocumentPath(path string) error {
	segments := ParseDocumentPath(path)
	if len(segments) == 0 || len(segments)%2 != 0 {
		return errors.NewValidationError("invalid document path: must have an even number of segments").
			WithCause(errors.ErrInvalidPath).
			WithDetail("path", path)
	}
	return validateSegments(path, segments)
}

// ValidateCollectionPath validates a collection path
func ValidateCollectionPath(path string) error {
	segments := ParseDocumentPath(path)
	if len(segments)%2 != 1 {
		return errors.NewValidationError("invalid collection path: must have an odd number of segments").
			WithCause(errors.ErrInvalidPath).
			WithDetail("path", path)
	}
	return validateSegments(path, segments)
}

func validateSegments(path string, segments []string) error {
	for i, segment := range segments {
		if !IsValidID(segment) {
			return errors.NewValidationError("invalid path segment").
				WithCause(errors.ErrInvalidPath).
				WithDetail("path", path).
				WithDetail("segment", segment).
				WithDetail("position", i)
		}
	}
	return nil
}
