package planner

import (
	"fmt"
	"os"
	"strings"

	"github.com/jinzhu/inflection"
	"gopkg.in/yaml.v3"

	"github.com/intentql/intentql-engine/pkg/models"
)

// ColumnScorer maps a free-text business term to a relevance score for a
// column name. The keyword-table default can be swapped for an
// embedding-based implementation without touching planner control flow.
type ColumnScorer interface {
	// Score returns a relevance score in [0,1] for the column given the term.
	// Zero means no relevance.
	Score(term, columnName string) float64
}

// KeywordTables holds the keyword sets driving metric and dimension
// extraction. Loadable from YAML to override the built-in defaults.
type KeywordTables struct {
	// Metrics maps an aggregate function name to the terms that trigger it.
	Metrics map[string][]string `yaml:"metrics"`
	// GenericMetricColumns are substrings identifying aggregatable columns
	// regardless of the triggering keyword.
	GenericMetricColumns []string `yaml:"generic_metric_columns"`
	// DefaultMetricColumns seed the analytical fallback metric.
	DefaultMetricColumns []string `yaml:"default_metric_columns"`
	// Dimensions are grouping keywords matched against terms and columns.
	Dimensions []string `yaml:"dimensions"`
}

// DefaultKeywordTables returns the built-in keyword sets.
func DefaultKeywordTables() KeywordTables {
	return KeywordTables{
		Metrics: map[string][]string{
			models.AggregateSum:   {"total", "sum", "amount", "revenue", "deposit", "bet", "win"},
			models.AggregateCount: {"count", "number", "how many", "quantity", "times"},
			models.AggregateAvg:   {"average", "avg", "mean", "per user", "per day"},
			models.AggregateMax:   {"max", "maximum", "highest", "top", "largest", "peak"},
			models.AggregateMin:   {"min", "minimum", "lowest", "smallest"},
		},
		GenericMetricColumns: []string{"amount", "value", "count", "sum", "total", "revenue"},
		DefaultMetricColumns: []string{"amount", "revenue", "total", "value", "sum", "deposit"},
		Dimensions:           []string{"country", "currency", "date", "game", "provider", "label", "type", "category"},
	}
}

// LoadKeywordTables reads keyword overrides from a YAML file. Sections left
// empty in the file keep their built-in defaults.
func LoadKeywordTables(path string) (KeywordTables, error) {
	tables := DefaultKeywordTables()
	data, err := os.ReadFile(path)
	if err != nil {
		return tables, fmt.Errorf("read keyword file: %w", err)
	}

	var override KeywordTables
	if err := yaml.Unmarshal(data, &override); err != nil {
		return tables, fmt.Errorf("parse keyword file %s: %w", path, err)
	}

	if len(override.Metrics) > 0 {
		tables.Metrics = override.Metrics
	}
	if len(override.GenericMetricColumns) > 0 {
		tables.GenericMetricColumns = override.GenericMetricColumns
	}
	if len(override.DefaultMetricColumns) > 0 {
		tables.DefaultMetricColumns = override.DefaultMetricColumns
	}
	if len(override.Dimensions) > 0 {
		tables.Dimensions = override.Dimensions
	}
	return tables, nil
}

// KeywordScorer is the default ColumnScorer: substring matching over
// singularized, lowercased forms, so "deposits" matches "Deposit" and
// "TotalDeposits" alike.
type KeywordScorer struct{}

// Score implements ColumnScorer.
func (KeywordScorer) Score(term, columnName string) float64 {
	t := normalizeToken(term)
	col := normalizeToken(columnName)
	if t == "" || col == "" {
		return 0
	}
	if t == col {
		return 1.0
	}
	if strings.Contains(col, t) || strings.Contains(t, col) {
		return 0.7
	}
	return 0
}

// normalizeToken lowercases, strips separators and singularizes a term or
// column name for comparison.
func normalizeToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("_", "", "-", "", " ", "").Replace(s)
	return inflection.Singular(s)
}

// termMatchesColumn reports whether any word of the business term matches
// the column name under singular/plural-insensitive comparison.
func termMatchesColumn(scorer ColumnScorer, term, columnName string) bool {
	if scorer.Score(term, columnName) > 0 {
		return true
	}
	for _, word := range strings.Fields(term) {
		if scorer.Score(word, columnName) > 0 {
			return true
		}
	}
	return false
}

// containsKeyword reports whether text contains the keyword, comparing
// singularized lowercase forms for single-word keywords and plain substring
// matching for phrases ("how many").
func containsKeyword(text, keyword string) bool {
	lower := strings.ToLower(text)
	kw := strings.ToLower(keyword)
	if strings.Contains(lower, kw) {
		return true
	}
	if !strings.Contains(kw, " ") {
		for _, word := range strings.Fields(lower) {
			if inflection.Singular(word) == inflection.Singular(kw) {
				return true
			}
		}
	}
	return false
}
