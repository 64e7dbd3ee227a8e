package planner

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/intentql/intentql-engine/pkg/models"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
)

// Columns preferred for date filtering, highest priority first. Exact
// case-insensitive matches win over substring matches.
var dateColumnPriority = []string{
	"Date", "GameDate", "TransactionDate", "CreatedDate", "UpdatedDate",
	"ActionDate", "ProcessDate", "EventDate", "Timestamp", "DateTime",
}

// Substrings accepted when nothing in the priority list matches.
var dateColumnHints = []string{"date", "time", "created", "updated"}

// Substrings a column must carry to pass date-column validation.
var dateColumnValidHints = []string{"date", "time", "created", "updated", "modified", "timestamp"}

// DateFilterPlanner turns a time range plus candidate date columns into a
// WHERE fragment.
type DateFilterPlanner struct {
	logger *zap.Logger
	now    func() time.Time // injectable for tests
}

// NewDateFilterPlanner creates a date filter planner.
func NewDateFilterPlanner(logger *zap.Logger) *DateFilterPlanner {
	return &DateFilterPlanner{
		logger: logger.Named("date-filter-planner"),
		now:    time.Now,
	}
}

// GenerateDateFilter builds the WHERE fragment for the time range. A nil
// time range is a successful no-op; a time range with no candidate columns
// is a failure.
func (p *DateFilterPlanner) GenerateDateFilter(timeRange *models.TimeRange, availableDateColumns []string, strategy models.DateFilterStrategy) *models.DateFilterResult {
	if timeRange == nil {
		return &models.DateFilterResult{
			Success:     true,
			WhereClause: "",
			DateColumns: []string{},
			Strategy:    strategy,
		}
	}

	column, ok := p.selectDateColumn(availableDateColumns)
	if !ok {
		return &models.DateFilterResult{
			Success:  false,
			Strategy: strategy,
			Error:    "no date column available for time filtering",
		}
	}

	start, end := p.resolveBounds(timeRange)
	clause := buildDateClause(column, start, end, timeRange.Granularity, strategy)

	return &models.DateFilterResult{
		Success:     true,
		WhereClause: clause,
		DateColumns: []string{column},
		Strategy:    strategy,
		Metadata: map[string]any{
			"granularity": string(timeRange.Granularity),
			"start":       start.Format(dateLayout),
			"end":         end.Format(dateLayout),
		},
	}
}

// GenerateRankedFilters generates all strategies for the time range and
// ranks them by clause quality. Used when the caller wants the best of
// several candidates rather than one fixed strategy.
func (p *DateFilterPlanner) GenerateRankedFilters(timeRange *models.TimeRange, availableDateColumns []string) []models.RankedDateFilter {
	strategies := []models.DateFilterStrategy{
		models.DateFilterStrategyOptimal,
		models.DateFilterStrategyInclusive,
		models.DateFilterStrategyExclusive,
		models.DateFilterStrategyPerformance,
	}

	var ranked []models.RankedDateFilter
	for _, strategy := range strategies {
		result := p.GenerateDateFilter(timeRange, availableDateColumns, strategy)
		if !result.Success {
			continue
		}
		ranked = append(ranked, models.RankedDateFilter{
			Result: *result,
			Score:  scoreDateFilter(result),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// ValidateDateColumn flags a column that carries none of the recognized
// temporal name hints, and reports the planner's own pick from the available
// set as the recommendation.
func (p *DateFilterPlanner) ValidateDateColumn(column string, availableDateColumns []string) *models.DateColumnValidation {
	validation := &models.DateColumnValidation{IsValid: false}

	lower := strings.ToLower(column)
	for _, hint := range dateColumnValidHints {
		if strings.Contains(lower, hint) {
			validation.IsValid = true
			break
		}
	}
	if !validation.IsValid {
		validation.Warnings = append(validation.Warnings,
			fmt.Sprintf("column %s does not look like a date/time column", column))
	}

	if recommended, ok := p.selectDateColumn(availableDateColumns); ok {
		validation.RecommendedColumn = recommended
	}
	return validation
}

// selectDateColumn picks exactly one date column: exact priority match,
// then priority substring match, then any column with a temporal hint, then
// the first available column.
func (p *DateFilterPlanner) selectDateColumn(columns []string) (string, bool) {
	if len(columns) == 0 {
		return "", false
	}

	for _, preferred := range dateColumnPriority {
		for _, col := range columns {
			if strings.EqualFold(col, preferred) {
				return col, true
			}
		}
	}

	for _, preferred := range dateColumnPriority {
		for _, col := range columns {
			if strings.Contains(strings.ToLower(col), strings.ToLower(preferred)) {
				return col, true
			}
		}
	}

	for _, col := range columns {
		lower := strings.ToLower(col)
		for _, hint := range dateColumnHints {
			if strings.Contains(lower, hint) {
				return col, true
			}
		}
	}

	return columns[0], true
}

// resolveBounds fills missing start/end with the current date.
func (p *DateFilterPlanner) resolveBounds(timeRange *models.TimeRange) (time.Time, time.Time) {
	today := p.now().Truncate(24 * time.Hour)
	start, end := today, today
	if timeRange.StartDate != nil {
		start = *timeRange.StartDate
	}
	if timeRange.EndDate != nil {
		end = *timeRange.EndDate
	}
	return start, end
}

// buildDateClause renders the WHERE fragment for one strategy.
func buildDateClause(column string, start, end time.Time, granularity models.Granularity, strategy models.DateFilterStrategy) string {
	startStr := start.Format(dateLayout)
	endStr := end.Format(dateLayout)

	switch strategy {
	case models.DateFilterStrategyInclusive:
		endOfDay := time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 0, end.Location())
		return fmt.Sprintf("%s >= '%s' AND %s <= '%s'", column, startStr, column, endOfDay.Format(dateTimeLayout))
	case models.DateFilterStrategyExclusive:
		nextDay := end.AddDate(0, 0, 1)
		return fmt.Sprintf("%s >= '%s' AND %s < '%s'", column, startStr, column, nextDay.Format(dateLayout))
	case models.DateFilterStrategyPerformance:
		return fmt.Sprintf("CAST(%s AS DATE) >= '%s' AND CAST(%s AS DATE) <= '%s'", column, startStr, column, endStr)
	default: // DateFilterStrategyOptimal
		if granularity == models.GranularityDay {
			return fmt.Sprintf("%s >= '%s' AND %s < '%s'", column, startStr, column, endStr)
		}
		return fmt.Sprintf("%s >= '%s' AND %s <= '%s'", column, startStr, column, endStr)
	}
}

// scoreDateFilter ranks a generated filter: shorter clauses score higher,
// Performance and Optimal strategies get a bonus, as does a column whose
// name plainly contains "date".
func scoreDateFilter(result *models.DateFilterResult) float64 {
	score := 1.0 - float64(len(result.WhereClause))/500.0

	switch result.Strategy {
	case models.DateFilterStrategyPerformance:
		score += 0.3
	case models.DateFilterStrategyOptimal:
		score += 0.2
	}

	if len(result.DateColumns) > 0 && strings.Contains(strings.ToLower(result.DateColumns[0]), "date") {
		score += 0.1
	}
	return score
}
