package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/intentql/intentql-engine/pkg/adapters/datasource"
	"github.com/intentql/intentql-engine/pkg/models"
)

var tablePrefixes = []string{"tbl_", "tb_", "vw_", "dim_", "fact_"}

// schemaTableResolver matches business terms against the live table list.
// Table names are compared token-by-token, singular/plural insensitive, so
// "revenue by country" finds both "Transactions" via its columns upstream
// and "Countries" directly.
type schemaTableResolver struct {
	reader datasource.SchemaReader
	logger *zap.Logger
}

// NewSchemaTableResolver creates a resolver over a schema reader.
func NewSchemaTableResolver(reader datasource.SchemaReader, logger *zap.Logger) TableResolver {
	return &schemaTableResolver{
		reader: reader,
		logger: logger.Named("table-resolver"),
	}
}

func (r *schemaTableResolver) ResolveTables(ctx context.Context, profile *models.BusinessContextProfile) ([]string, string, error) {
	all, err := r.reader.GetTables(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("list tables: %w", err)
	}
	if len(all) == 0 {
		return nil, "", fmt.Errorf("schema has no tables")
	}

	termTokens := make(map[string]bool)
	for _, term := range profile.BusinessTerms {
		for _, tok := range strings.Fields(strings.ToLower(term)) {
			termTokens[inflection.Singular(tok)] = true
		}
	}

	type scored struct {
		table string
		score int
	}
	var matches []scored
	for _, table := range all {
		score := 0
		for _, tok := range tableTokens(table) {
			if termTokens[tok] {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, scored{table: table, score: score})
		}
	}
	if len(matches) == 0 {
		return nil, "", fmt.Errorf("no tables matched the question terms")
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })

	tables := make([]string, len(matches))
	for i, m := range matches {
		tables[i] = m.table
	}

	r.logger.Debug("tables resolved",
		zap.Strings("tables", tables),
		zap.String("primary", tables[0]))

	return tables, tables[0], nil
}

// tableTokens splits a table name into normalized singular tokens:
// "tbl_Daily_actions" -> [daily, action], "GameProviders" -> [game, provider].
func tableTokens(table string) []string {
	name := table
	for _, prefix := range tablePrefixes {
		if strings.HasPrefix(strings.ToLower(name), prefix) {
			name = name[len(prefix):]
			break
		}
	}

	var tokens []string
	for _, part := range strings.Split(name, "_") {
		for _, tok := range splitCamel(part) {
			if tok != "" {
				tokens = append(tokens, inflection.Singular(strings.ToLower(tok)))
			}
		}
	}
	return tokens
}

// splitCamel splits on lower-to-upper boundaries: "GameProviders" ->
// ["Game", "Providers"].
func splitCamel(s string) []string {
	var parts []string
	start := 0
	for i := 1; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' && s[i-1] >= 'a' && s[i-1] <= 'z' {
			parts = append(parts, s[start:i])
			start = i
		}
	}
	parts = append(parts, s[start:])
	return parts
}
