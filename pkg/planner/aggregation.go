package planner

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/intentql/intentql-engine/pkg/models"
)

// Aggregate functions in deterministic extraction order.
var aggregateOrder = []string{
	models.AggregateSum,
	models.AggregateCount,
	models.AggregateAvg,
	models.AggregateMax,
	models.AggregateMin,
}

// AggregationOptions tunes extraction caps. Zero values fall back to the
// defaults (5 metrics, 3 dimensions, 100 row limit).
type AggregationOptions struct {
	MaxMetrics    int
	MaxDimensions int
	RowLimit      int
}

// AggregationPlanner turns a business-context profile plus available columns
// into SELECT/GROUP BY/ORDER BY fragments.
type AggregationPlanner struct {
	keywords KeywordTables
	scorer   ColumnScorer
	opts     AggregationOptions
	logger   *zap.Logger
}

// NewAggregationPlanner creates an aggregation planner. A nil scorer uses
// the built-in keyword scorer.
func NewAggregationPlanner(keywords KeywordTables, scorer ColumnScorer, opts AggregationOptions, logger *zap.Logger) *AggregationPlanner {
	if scorer == nil {
		scorer = KeywordScorer{}
	}
	if opts.MaxMetrics < 1 {
		opts.MaxMetrics = 5
	}
	if opts.MaxDimensions < 1 {
		opts.MaxDimensions = 3
	}
	if opts.RowLimit < 1 {
		opts.RowLimit = 100
	}
	return &AggregationPlanner{
		keywords: keywords,
		scorer:   scorer,
		opts:     opts,
		logger:   logger.Named("aggregation-planner"),
	}
}

// GenerateAggregation extracts metrics and dimensions from the profile and
// builds the SELECT, GROUP BY and ORDER BY fragments. Any internal failure
// yields Success=false rather than a panic.
func (p *AggregationPlanner) GenerateAggregation(profile *models.BusinessContextProfile, availableColumns []string, strategy models.AggregationStrategy) (result *models.AggregationResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("aggregation planning panicked", zap.Any("panic", r))
			result = &models.AggregationResult{
				Success:  false,
				Strategy: strategy,
				Error:    fmt.Sprintf("aggregation planning failed: %v", r),
			}
		}
	}()

	if profile == nil {
		return &models.AggregationResult{
			Success:  false,
			Strategy: strategy,
			Error:    "business context profile is required",
		}
	}

	metrics := p.extractMetrics(profile, availableColumns)
	dimensions := p.extractDimensions(profile, availableColumns)

	selectClause := p.buildSelectClause(metrics, dimensions, strategy)
	groupByClause := buildGroupByClause(dimensions)
	orderByClause := buildOrderByClause(profile, metrics, dimensions)

	return &models.AggregationResult{
		Success:       true,
		SelectClause:  selectClause,
		GroupByClause: groupByClause,
		OrderByClause: orderByClause,
		Metrics:       metrics,
		Dimensions:    dimensions,
		Strategy:      strategy,
		Metadata: map[string]any{
			"metric_count":    len(metrics),
			"dimension_count": len(dimensions),
			"intent_type":     profile.IntentType,
		},
	}
}

// extractMetrics scans each aggregate function's keyword set against the
// business terms, then matches triggered keyword sets against the available
// columns. Capped to the top metrics by priority.
func (p *AggregationPlanner) extractMetrics(profile *models.BusinessContextProfile, availableColumns []string) []models.Metric {
	type metricKey struct {
		function string
		column   string
	}
	seen := make(map[metricKey]bool)
	var metrics []models.Metric

	for _, function := range aggregateOrder {
		keywords := p.keywords.Metrics[function]
		if !anyTermContainsAny(profile.BusinessTerms, keywords) {
			continue
		}

		for _, col := range availableColumns {
			if !p.columnMatchesKeywords(col, keywords) && !containsAnySubstring(col, p.keywords.GenericMetricColumns) {
				continue
			}
			key := metricKey{function: function, column: strings.ToLower(col)}
			if seen[key] {
				continue
			}
			seen[key] = true

			metrics = append(metrics, models.Metric{
				ColumnName:        col,
				AggregateFunction: function,
				Alias:             function + stripSeparators(col),
				Priority:          p.metricPriority(profile, col),
			})
		}
	}

	// Analytical questions always get at least one measure to aggregate.
	if len(metrics) == 0 && profile.IntentType == models.IntentAnalytical {
		for _, col := range availableColumns {
			if containsAnySubstring(col, p.keywords.DefaultMetricColumns) {
				metrics = append(metrics, models.Metric{
					ColumnName:        col,
					AggregateFunction: models.AggregateSum,
					Alias:             models.AggregateSum + stripSeparators(col),
					Priority:          0.5,
				})
				break
			}
		}
	}

	sort.SliceStable(metrics, func(i, j int) bool {
		return metrics[i].Priority > metrics[j].Priority
	})
	if len(metrics) > p.opts.MaxMetrics {
		metrics = metrics[:p.opts.MaxMetrics]
	}
	return metrics
}

// metricPriority boosts columns the user actually named and columns that
// look like money.
func (p *AggregationPlanner) metricPriority(profile *models.BusinessContextProfile, column string) float64 {
	priority := 0.5
	for _, term := range profile.BusinessTerms {
		if termMatchesColumn(p.scorer, term, column) {
			priority += 0.3
			break
		}
	}
	if containsAnySubstring(column, []string{"amount", "revenue"}) {
		priority += 0.2
	}
	if priority > 1.0 {
		priority = 1.0
	}
	return priority
}

// extractDimensions matches business terms against the fixed dimension
// keyword list, then keywords against available columns. A present time
// context adds the first date/time column as a high-priority dimension.
func (p *AggregationPlanner) extractDimensions(profile *models.BusinessContextProfile, availableColumns []string) []models.Dimension {
	seen := make(map[string]bool)
	var dimensions []models.Dimension

	for _, keyword := range p.keywords.Dimensions {
		if !anyTermContainsAny(profile.BusinessTerms, []string{keyword}) {
			continue
		}
		for _, col := range availableColumns {
			if p.scorer.Score(keyword, col) == 0 {
				continue
			}
			if seen[strings.ToLower(col)] {
				continue
			}
			seen[strings.ToLower(col)] = true
			dimensions = append(dimensions, models.Dimension{
				ColumnName: col,
				Alias:      stripSeparators(col),
				Priority:   0.6,
			})
		}
	}

	if profile.HasTimeContext() {
		for _, col := range availableColumns {
			if !containsAnySubstring(col, []string{"date", "time"}) {
				continue
			}
			if !seen[strings.ToLower(col)] {
				seen[strings.ToLower(col)] = true
				dimensions = append(dimensions, models.Dimension{
					ColumnName: col,
					Alias:      stripSeparators(col),
					Priority:   0.9,
				})
			}
			break
		}
	}

	sort.SliceStable(dimensions, func(i, j int) bool {
		return dimensions[i].Priority > dimensions[j].Priority
	})
	if len(dimensions) > p.opts.MaxDimensions {
		dimensions = dimensions[:p.opts.MaxDimensions]
	}
	return dimensions
}

// buildSelectClause lists dimensions first, then aggregated metrics. With
// nothing extracted the clause falls back to SELECT * (bounded under the
// performance strategy).
func (p *AggregationPlanner) buildSelectClause(metrics []models.Metric, dimensions []models.Dimension, strategy models.AggregationStrategy) string {
	if len(metrics) == 0 && len(dimensions) == 0 {
		if strategy == models.AggregationStrategyPerformance {
			return fmt.Sprintf("SELECT TOP %d *", p.opts.RowLimit)
		}
		return "SELECT *"
	}

	parts := make([]string, 0, len(metrics)+len(dimensions))
	for _, d := range dimensions {
		parts = append(parts, fmt.Sprintf("%s AS %s", d.ColumnName, d.Alias))
	}
	for _, m := range metrics {
		parts = append(parts, fmt.Sprintf("%s(%s) AS %s", m.AggregateFunction, m.ColumnName, m.Alias))
	}
	return "SELECT " + strings.Join(parts, ", ")
}

func buildGroupByClause(dimensions []models.Dimension) string {
	if len(dimensions) == 0 {
		return ""
	}
	cols := make([]string, len(dimensions))
	for i, d := range dimensions {
		cols[i] = d.ColumnName
	}
	return "GROUP BY " + strings.Join(cols, ", ")
}

// buildOrderByClause orders analytical results by the leading metric,
// otherwise by the date dimension when present, otherwise by the first
// dimension.
func buildOrderByClause(profile *models.BusinessContextProfile, metrics []models.Metric, dimensions []models.Dimension) string {
	if profile.IntentType == models.IntentAnalytical && len(metrics) > 0 {
		return fmt.Sprintf("ORDER BY %s DESC", metrics[0].Alias)
	}
	for _, d := range dimensions {
		if containsAnySubstring(d.ColumnName, []string{"date", "time"}) {
			return fmt.Sprintf("ORDER BY %s DESC", d.ColumnName)
		}
	}
	if len(dimensions) > 0 {
		return fmt.Sprintf("ORDER BY %s ASC", dimensions[0].ColumnName)
	}
	return ""
}

// ValidateAggregation partitions metrics and dimensions by case-insensitive
// column membership in the available set. The plan is valid when at least
// one metric or dimension survives.
func (p *AggregationPlanner) ValidateAggregation(metrics []models.Metric, dimensions []models.Dimension, availableColumns []string) *models.AggregationValidation {
	available := make(map[string]bool, len(availableColumns))
	for _, col := range availableColumns {
		available[strings.ToLower(col)] = true
	}

	validation := &models.AggregationValidation{}
	for _, m := range metrics {
		if available[strings.ToLower(m.ColumnName)] {
			validation.ValidMetrics = append(validation.ValidMetrics, m)
		} else {
			validation.InvalidMetrics = append(validation.InvalidMetrics, m)
			validation.Warnings = append(validation.Warnings,
				fmt.Sprintf("metric column %s is not in the available column set", m.ColumnName))
		}
	}
	for _, d := range dimensions {
		if available[strings.ToLower(d.ColumnName)] {
			validation.ValidDimensions = append(validation.ValidDimensions, d)
		} else {
			validation.InvalidDimensions = append(validation.InvalidDimensions, d)
			validation.Warnings = append(validation.Warnings,
				fmt.Sprintf("dimension column %s is not in the available column set", d.ColumnName))
		}
	}

	validation.IsValid = len(validation.ValidMetrics) > 0 || len(validation.ValidDimensions) > 0
	return validation
}

// columnMatchesKeywords reports whether the column name matches any keyword
// in the set under the scorer.
func (p *AggregationPlanner) columnMatchesKeywords(column string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(kw, " ") {
			continue // phrase keywords ("how many") never match column names
		}
		if p.scorer.Score(kw, column) > 0 {
			return true
		}
	}
	return false
}

func anyTermContainsAny(terms, keywords []string) bool {
	for _, term := range terms {
		for _, kw := range keywords {
			if containsKeyword(term, kw) {
				return true
			}
		}
	}
	return false
}

func containsAnySubstring(s string, substrings []string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrings {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

// stripSeparators drops underscores, dashes and spaces from a column name to
// form an alias. Collisions between stripped aliases are not de-duplicated.
func stripSeparators(s string) string {
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(s)
}
