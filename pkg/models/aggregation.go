package models

// AggregationStrategy shapes SELECT clause generation.
type AggregationStrategy string

const (
	AggregationStrategyStandard    AggregationStrategy = "standard"
	AggregationStrategyPerformance AggregationStrategy = "performance" // bounded fallback (TOP 100)
)

// Aggregate function names emitted into SELECT clauses.
const (
	AggregateSum   = "SUM"
	AggregateCount = "COUNT"
	AggregateAvg   = "AVG"
	AggregateMax   = "MAX"
	AggregateMin   = "MIN"
)

// Metric is an aggregated measure extracted from business terms.
type Metric struct {
	ColumnName        string  `json:"column_name"`
	AggregateFunction string  `json:"aggregate_function"`
	Alias             string  `json:"alias"`
	Priority          float64 `json:"priority"` // 0-1
}

// Dimension is a grouping column extracted from business terms.
type Dimension struct {
	ColumnName string  `json:"column_name"`
	Alias      string  `json:"alias"`
	Priority   float64 `json:"priority"` // 0-1
}

// AggregationResult is the output of one aggregation-planning call.
type AggregationResult struct {
	Success       bool                `json:"success"`
	SelectClause  string              `json:"select_clause"`
	GroupByClause string              `json:"group_by_clause"`
	OrderByClause string              `json:"order_by_clause"`
	Metrics       []Metric            `json:"metrics"`
	Dimensions    []Dimension         `json:"dimensions"`
	Strategy      AggregationStrategy `json:"strategy"`
	Metadata      map[string]any      `json:"metadata,omitempty"`
	Error         string              `json:"error,omitempty"`
}

// AggregationValidation partitions metrics/dimensions by membership in the
// available column set. Valid when at least one metric or dimension survives.
type AggregationValidation struct {
	IsValid           bool        `json:"is_valid"`
	ValidMetrics      []Metric    `json:"valid_metrics"`
	InvalidMetrics    []Metric    `json:"invalid_metrics"`
	ValidDimensions   []Dimension `json:"valid_dimensions"`
	InvalidDimensions []Dimension `json:"invalid_dimensions"`
	Warnings          []string    `json:"warnings,omitempty"`
}
