package models

import "time"

// EnhancedQueryResult is the orchestrator's final output: the generated SQL
// plus per-component results and a blended confidence. One instance per
// synthesis request; not mutated after return.
type EnhancedQueryResult struct {
	Success            bool                    `json:"success"`
	GeneratedSQL       string                  `json:"generated_sql"`
	BusinessProfile    *BusinessContextProfile `json:"business_profile,omitempty"`
	JoinResult         *JoinResult             `json:"join_result,omitempty"`
	DateFilterResult   *DateFilterResult       `json:"date_filter_result,omitempty"`
	AggregationResult  *AggregationResult      `json:"aggregation_result,omitempty"`
	OverallConfidence  float64                 `json:"overall_confidence"` // [0,1], mean of component confidences
	ProcessingMetadata map[string]any          `json:"processing_metadata,omitempty"`
	TraceID            string                  `json:"trace_id"`
	Error              string                  `json:"error,omitempty"`
}

// QueryResponse is the result of executing generated SQL, as returned to the
// caller by the resilient query service. On total failure the response is
// still structured: Success=false, a human-readable message and zero rows.
type QueryResponse struct {
	Success     bool             `json:"success"`
	SQL         string           `json:"sql,omitempty"`
	Columns     []string         `json:"columns"`
	Rows        []map[string]any `json:"rows"`
	RowCount    int              `json:"row_count"`
	Message     string           `json:"message,omitempty"`
	Confidence  float64          `json:"confidence,omitempty"`
	FromCache   bool             `json:"from_cache,omitempty"`
	ExecutedAt  time.Time        `json:"executed_at"`
	DurationMs  int64            `json:"duration_ms"`
	Unavailable bool             `json:"unavailable,omitempty"` // circuit open / retries exhausted
}
