package model

// DefaultFinalBatchFactor is the remaining/limit ratio under which a page
// is treated as the final batch and fetches everything that is left.
// Under concurrent writes the refreshed count can still be off, so the
// rule is probabilistic rather than exact.
const DefaultFinalBatchFactor = 1.7

// PageCursor carries pagination state between GetPaginatedDocs calls.
type PageCursor struct {
	// Count is the total number of matching documents when last counted.
	Count int64 `json:"count"`
	// Sent is the number of documents already returned.
	Sent int64 `json:"sent"`
	// Cursor is the resume token, empty for the first page.
	Cursor string `json:"cursor,omitempty"`
}

// Remaining returns Count-Sent, never negative.
func (p PageCursor) Remaining() int64 {
	if r := p.Count - p.Sent; r > 0 {
		return r
	}
	return 0
}

// NearEnd reports whether the remaining documents fall under
// limit*factor, which triggers the final batch.
func (p PageCursor) NearEnd(limit int, factor float64) bool {
	return float64(p.Count-p.Sent) < float64(limit)*factor
}
