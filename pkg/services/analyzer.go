package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/intentql/intentql-engine/pkg/models"
	"github.com/intentql/intentql-engine/pkg/orchestrator"
)

// relativeRangePattern matches expressions like "last 7 days" or
// "past 3 months".
var relativeRangePattern = regexp.MustCompile(`(?i)\b(?:last|past)\s+(\d+)\s+(day|week|month|quarter|year)s?\b`)

var metricKeywords = []string{
	"total", "sum", "average", "avg", "count", "how many", "revenue",
	"deposits", "max", "min", "highest", "lowest",
}

var comparisonKeywords = []string{"compare", "versus", " vs ", "difference between"}

var exploratoryKeywords = []string{"what tables", "which tables", "explore", "what data", "schema"}

// keywordContextAnalyzer is a heuristic implementation of the analyzer
// boundary. It classifies intent, splits the question into business terms
// and parses relative time expressions. A production deployment can swap in
// an AI-backed analyzer behind the same interface.
type keywordContextAnalyzer struct {
	now    func() time.Time
	logger *zap.Logger
}

// NewKeywordContextAnalyzer creates the heuristic analyzer.
func NewKeywordContextAnalyzer(logger *zap.Logger) orchestrator.ContextAnalyzer {
	return &keywordContextAnalyzer{
		now:    time.Now,
		logger: logger.Named("context-analyzer"),
	}
}

func (a *keywordContextAnalyzer) Analyze(_ context.Context, question string) (*models.BusinessContextProfile, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question is empty")
	}

	lower := strings.ToLower(question)
	profile := &models.BusinessContextProfile{
		IntentType:      a.classify(lower),
		BusinessTerms:   extractTerms(lower),
		TimeContext:     a.parseTimeContext(lower),
		ConfidenceScore: 0.5,
	}
	if containsAny(lower, metricKeywords) {
		profile.ConfidenceScore = 0.8
	}

	a.logger.Debug("question analyzed",
		zap.String("intent", profile.IntentType),
		zap.Strings("terms", profile.BusinessTerms),
		zap.Bool("has_time_context", profile.HasTimeContext()))

	return profile, nil
}

func (a *keywordContextAnalyzer) classify(lower string) string {
	switch {
	case containsAny(lower, comparisonKeywords):
		return models.IntentComparison
	case containsAny(lower, exploratoryKeywords):
		return models.IntentExploratory
	case containsAny(lower, metricKeywords):
		return models.IntentAnalytical
	default:
		return models.IntentOperational
	}
}

// extractTerms keeps the full question as one term (planners match by
// substring) and adds fragments split on "by", "and" and commas so
// dimension phrases surface individually.
func extractTerms(lower string) []string {
	terms := []string{lower}
	for _, fragment := range regexp.MustCompile(`\s+by\s+|\s+and\s+|,`).Split(lower, -1) {
		fragment = strings.TrimSpace(fragment)
		if fragment != "" && fragment != lower {
			terms = append(terms, fragment)
		}
	}
	return terms
}

func (a *keywordContextAnalyzer) parseTimeContext(lower string) *models.TimeRange {
	now := a.now().Truncate(24 * time.Hour)

	if m := relativeRangePattern.FindStringSubmatch(lower); m != nil {
		n := 0
		fmt.Sscanf(m[1], "%d", &n)
		unit := strings.ToLower(m[2])
		granularity, span := unitSpan(unit)
		start := now.Add(-time.Duration(n) * span)
		end := now.Add(24 * time.Hour) // exclusive upper bound includes today
		return &models.TimeRange{
			StartDate:          &start,
			EndDate:            &end,
			Granularity:        granularity,
			RelativeExpression: strings.TrimSpace(m[0]),
		}
	}

	switch {
	case strings.Contains(lower, "today"):
		end := now.Add(24 * time.Hour)
		return &models.TimeRange{StartDate: &now, EndDate: &end, Granularity: models.GranularityDay, RelativeExpression: "today"}
	case strings.Contains(lower, "yesterday"):
		start := now.Add(-24 * time.Hour)
		return &models.TimeRange{StartDate: &start, EndDate: &now, Granularity: models.GranularityDay, RelativeExpression: "yesterday"}
	case strings.Contains(lower, "this month"):
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		end := start.AddDate(0, 1, 0)
		return &models.TimeRange{StartDate: &start, EndDate: &end, Granularity: models.GranularityMonth, RelativeExpression: "this month"}
	case strings.Contains(lower, "this year"):
		start := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
		end := start.AddDate(1, 0, 0)
		return &models.TimeRange{StartDate: &start, EndDate: &end, Granularity: models.GranularityYear, RelativeExpression: "this year"}
	}
	return nil
}

func unitSpan(unit string) (models.Granularity, time.Duration) {
	const day = 24 * time.Hour
	switch unit {
	case "week":
		return models.GranularityWeek, 7 * day
	case "month":
		return models.GranularityMonth, 30 * day
	case "quarter":
		return models.GranularityQuarter, 91 * day
	case "year":
		return models.GranularityYear, 365 * day
	default:
		return models.GranularityDay, day
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
