package models

import "time"

// Intent types produced by the upstream business-context analyzer.
const (
	IntentAnalytical  = "analytical"
	IntentOperational = "operational"
	IntentExploratory = "exploratory"
	IntentComparison  = "comparison"
)

// Granularity is the time-bucket size used to shape date filter boundaries.
type Granularity string

const (
	GranularityDay     Granularity = "day"
	GranularityWeek    Granularity = "week"
	GranularityMonth   Granularity = "month"
	GranularityQuarter Granularity = "quarter"
	GranularityYear    Granularity = "year"
)

// TimeRange describes the temporal scope of a question.
// Supplied by the upstream analyzer; read-only to the synthesis core.
type TimeRange struct {
	StartDate          *time.Time `json:"start_date,omitempty"`
	EndDate            *time.Time `json:"end_date,omitempty"`
	Granularity        Granularity `json:"granularity"`
	RelativeExpression string      `json:"relative_expression,omitempty"` // e.g. "last 7 days"
}

// BusinessContextProfile is the structured representation of a user's
// analytical intent, extracted upstream from the raw question.
type BusinessContextProfile struct {
	IntentType      string     `json:"intent_type"`
	BusinessTerms   []string   `json:"business_terms"`
	TimeContext     *TimeRange `json:"time_context,omitempty"`
	ConfidenceScore float64    `json:"confidence_score"`
}

// HasTimeContext reports whether the profile carries a usable time range.
func (p *BusinessContextProfile) HasTimeContext() bool {
	return p.TimeContext != nil && (p.TimeContext.StartDate != nil || p.TimeContext.EndDate != nil || p.TimeContext.RelativeExpression != "")
}
