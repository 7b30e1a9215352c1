package firestore

import (
	"strings"

	"github.com/google/uuid"
)

// DocumentIDLength is the length of generated document ids.
const DocumentIDLength = 20

// NewDocumentID returns a random 20 character document id.
func NewDocumentID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:DocumentIDLength]
}
