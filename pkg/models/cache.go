package models

import "time"

// Cache change types carried by data-change invalidation events.
const (
	DataChangeInsert = "insert"
	DataChangeUpdate = "update"
	DataChangeDelete = "delete"
	DataChangeSchema = "schema"
)

// CacheEntry is one stored query response, keyed by an exact hash or a
// semantic fingerprint. Created on first successful synthesis+execution,
// evicted on expiry or explicit data-change invalidation.
type CacheEntry struct {
	Key       string         `json:"key"`
	Value     *QueryResponse `json:"value"`
	ExpiresAt time.Time      `json:"expires_at"`
	CreatedAt time.Time      `json:"created_at"`
}

// Expired reports whether the entry is past its expiry at the given instant.
func (e *CacheEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// DataChangeEvent notifies the cache that a table's contents changed.
type DataChangeEvent struct {
	TableName  string    `json:"table_name"`
	ChangeType string    `json:"change_type"`
	OccurredAt time.Time `json:"occurred_at"`
}

// SemanticMatch is a similarity hit returned by the semantic matcher.
type SemanticMatch struct {
	Key        string  `json:"key"`
	Similarity float64 `json:"similarity"`
}
