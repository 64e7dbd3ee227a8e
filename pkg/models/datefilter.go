package models

// DateFilterStrategy selects the boundary semantics of the WHERE fragment.
type DateFilterStrategy string

const (
	// DateFilterStrategyOptimal uses half-open bounds for day granularity and
	// closed bounds for coarser granularities.
	DateFilterStrategyOptimal DateFilterStrategy = "optimal"
	// DateFilterStrategyInclusive closes the end bound at 23:59:59.
	DateFilterStrategyInclusive DateFilterStrategy = "inclusive"
	// DateFilterStrategyExclusive uses a strict upper bound of end + 1 day.
	DateFilterStrategyExclusive DateFilterStrategy = "exclusive"
	// DateFilterStrategyPerformance casts both sides to DATE to favor
	// index-friendly comparisons.
	DateFilterStrategyPerformance DateFilterStrategy = "performance"
)

// DateFilterResult is the output of one temporal-filter-planning call.
type DateFilterResult struct {
	Success     bool               `json:"success"`
	WhereClause string             `json:"where_clause"`
	DateColumns []string           `json:"date_columns"` // the selected column, or empty
	Strategy    DateFilterStrategy `json:"strategy"`
	Metadata    map[string]any     `json:"metadata,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// RankedDateFilter pairs a generated filter with its quality score, used by
// the multi-strategy operation.
type RankedDateFilter struct {
	Result DateFilterResult `json:"result"`
	Score  float64          `json:"score"`
}

// DateColumnValidation is the output of the date-column validation operation.
type DateColumnValidation struct {
	IsValid           bool     `json:"is_valid"`
	RecommendedColumn string   `json:"recommended_column"`
	Warnings          []string `json:"warnings,omitempty"`
}
