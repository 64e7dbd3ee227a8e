// Package planner contains the three synthesis planners: join path,
// aggregation and temporal filter. Each call is pure given its inputs;
// request-local state (alias uniqueness) never leaks across calls.
package planner

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/intentql/intentql-engine/pkg/catalog"
	"github.com/intentql/intentql-engine/pkg/models"
)

// JoinPlanner turns a table list plus the relationship catalog into a
// FROM/JOIN clause and a table-alias map.
type JoinPlanner struct {
	catalog catalog.RelationshipCatalog
	logger  *zap.Logger
}

// NewJoinPlanner creates a join planner backed by the given catalog.
func NewJoinPlanner(cat catalog.RelationshipCatalog, logger *zap.Logger) *JoinPlanner {
	return &JoinPlanner{
		catalog: cat,
		logger:  logger.Named("join-planner"),
	}
}

// GenerateJoins plans the FROM/JOIN clause for the requested tables.
// The planner never panics past its boundary: any internal failure yields
// Success=false with an error string and empty clause.
func (p *JoinPlanner) GenerateJoins(ctx context.Context, tables []string, primaryTable string, strategy models.JoinStrategy) (result *models.JoinResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("join planning panicked", zap.Any("panic", r))
			result = &models.JoinResult{
				Success:  false,
				Strategy: strategy,
				Error:    fmt.Sprintf("join planning failed: %v", r),
			}
		}
	}()

	tables = dedupeTables(tables)

	if len(tables) <= 1 {
		res := &models.JoinResult{
			Success:      true,
			JoinClause:   "",
			TableAliases: map[string]string{},
			Strategy:     strategy,
		}
		if len(tables) == 1 {
			aliases := NewAliasAllocator()
			aliases.Alias(tables[0])
			res.PrimaryTable = tables[0]
			res.TableAliases = aliases.Aliases(tables)
		}
		return res
	}

	relationships, err := p.catalog.GetRelationshipsForTables(ctx, tables)
	if err != nil {
		return &models.JoinResult{Success: false, Strategy: strategy, Error: fmt.Sprintf("fetch relationships: %v", err)}
	}
	paths, err := p.catalog.GenerateJoinPaths(ctx, tables)
	if err != nil {
		return &models.JoinResult{Success: false, Strategy: strategy, Error: fmt.Sprintf("generate join paths: %v", err)}
	}

	primary := choosePrimaryTable(tables, primaryTable, relationships)
	aliases := NewAliasAllocator()
	for _, t := range tables {
		aliases.Alias(t)
	}

	var clause strings.Builder
	fmt.Fprintf(&clause, "FROM %s %s", primary, aliases.Alias(primary))

	joined := map[string]bool{strings.ToLower(primary): true}

	switch strategy {
	case models.JoinStrategyLeftJoin, models.JoinStrategyInnerJoin:
		p.joinDirect(&clause, tables, primary, relationships, aliases, joined, strategy)
	case models.JoinStrategyMinimalPath:
		p.joinByPaths(&clause, optimalPaths(paths), aliases, joined)
	default: // JoinStrategyOptimal
		p.joinByPaths(&clause, paths, aliases, joined)
	}

	// Never silently drop a requested table: anything still unconnected is
	// cross-joined, trading correctness of intent for possible row blowup.
	if strategy == models.JoinStrategyOptimal {
		for _, t := range tables {
			if !joined[strings.ToLower(t)] {
				p.logger.Warn("table unreachable via join paths, emitting CROSS JOIN",
					zap.String("table", t))
				fmt.Fprintf(&clause, "\nCROSS JOIN %s %s", t, aliases.Alias(t))
				joined[strings.ToLower(t)] = true
			}
		}
	}

	return &models.JoinResult{
		Success:      true,
		JoinClause:   clause.String(),
		TableAliases: aliases.Aliases(tables),
		JoinPaths:    paths,
		PrimaryTable: primary,
		Strategy:     strategy,
		Metadata: map[string]any{
			"table_count":        len(tables),
			"relationship_count": len(relationships),
			"path_count":         len(paths),
		},
	}
}

// joinByPaths walks join paths in order (shortest hop count first, cheaper
// first within equal length) and joins any path with exactly one endpoint
// already joined and the other still pending. Passes repeat until no path
// makes progress, so chains of direct paths connect transitively regardless
// of input order.
func (p *JoinPlanner) joinByPaths(clause *strings.Builder, paths []models.JoinPath, aliases *AliasAllocator, joined map[string]bool) {
	progress := true
	for progress {
		progress = false
		for _, path := range paths {
			from := strings.ToLower(path.FromTable)
			to := strings.ToLower(path.ToTable)

			var conditions []models.JoinCondition
			switch {
			case joined[from] && !joined[to]:
				conditions = path.JoinConditions
			case joined[to] && !joined[from]:
				conditions = reverseConditions(path.JoinConditions)
			default:
				continue
			}

			for _, cond := range conditions {
				right := strings.ToLower(cond.RightTable)
				if joined[right] {
					continue
				}
				fmt.Fprintf(clause, "\nINNER JOIN %s %s ON %s.%s = %s.%s",
					cond.RightTable, aliases.Alias(cond.RightTable),
					aliases.Alias(cond.LeftTable), cond.LeftColumn,
					aliases.Alias(cond.RightTable), cond.RightColumn)
				joined[right] = true
				progress = true
			}
		}
	}
}

// joinDirect emits one join per non-primary table that has a direct FK
// relationship with the primary table. Tables without a direct relationship
// are skipped; multi-hop connection is not attempted under these strategies.
func (p *JoinPlanner) joinDirect(clause *strings.Builder, tables []string, primary string, relationships []models.ForeignKeyRelationship, aliases *AliasAllocator, joined map[string]bool, strategy models.JoinStrategy) {
	joinType := "LEFT JOIN"
	if strategy == models.JoinStrategyInnerJoin {
		joinType = "INNER JOIN"
	}

	for _, t := range tables {
		if joined[strings.ToLower(t)] {
			continue
		}
		rel, reversed, ok := findDirectRelationship(primary, t, relationships)
		if !ok {
			p.logger.Debug("no direct relationship with primary table, skipping",
				zap.String("table", t), zap.String("primary", primary))
			continue
		}

		leftCol, rightCol := rel.ParentColumn, rel.ReferencedColumn
		if reversed {
			leftCol, rightCol = rel.ReferencedColumn, rel.ParentColumn
		}
		fmt.Fprintf(clause, "\n%s %s %s ON %s.%s = %s.%s",
			joinType, t, aliases.Alias(t),
			aliases.Alias(primary), leftCol,
			aliases.Alias(t), rightCol)
		joined[strings.ToLower(t)] = true
	}
}

// ValidateJoinability reports which of the requested tables are reachable
// from each other via known join paths. All requested tables must fall into
// one connected component; a table outside the component anchored at the
// first requested table is isolated, even when it has paths to other
// requested tables.
func (p *JoinPlanner) ValidateJoinability(ctx context.Context, tables []string) (*models.JoinabilityReport, error) {
	tables = dedupeTables(tables)

	report := &models.JoinabilityReport{IsValid: true}
	if len(tables) <= 1 {
		report.ConnectedTables = tables
		return report, nil
	}

	paths, err := p.catalog.GenerateJoinPaths(ctx, tables)
	if err != nil {
		return nil, fmt.Errorf("generate join paths: %w", err)
	}

	adjacency := make(map[string][]string)
	for _, path := range paths {
		from := strings.ToLower(path.FromTable)
		to := strings.ToLower(path.ToTable)
		adjacency[from] = append(adjacency[from], to)
		adjacency[to] = append(adjacency[to], from)
	}

	// BFS from the first requested table; its component is the connected set.
	connected := map[string]bool{strings.ToLower(tables[0]): true}
	queue := []string{strings.ToLower(tables[0])}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[current] {
			if !connected[next] {
				connected[next] = true
				queue = append(queue, next)
			}
		}
	}

	for _, t := range tables {
		if connected[strings.ToLower(t)] {
			report.ConnectedTables = append(report.ConnectedTables, t)
		} else {
			report.IsolatedTables = append(report.IsolatedTables, t)
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("table %s has no join path to %s", t, tables[0]))
		}
	}

	report.IsValid = len(report.IsolatedTables) == 0
	return report, nil
}

// GenerateTableAliases derives the alias map for a table set without
// planning joins.
func (p *JoinPlanner) GenerateTableAliases(tables []string) map[string]string {
	tables = dedupeTables(tables)
	aliases := NewAliasAllocator()
	for _, t := range tables {
		aliases.Alias(t)
	}
	return aliases.Aliases(tables)
}

// choosePrimaryTable picks the caller-supplied primary when it is part of
// the set, otherwise the table referenced by the most relationships, ties
// broken by first occurrence in the request.
func choosePrimaryTable(tables []string, requested string, relationships []models.ForeignKeyRelationship) string {
	if requested != "" {
		for _, t := range tables {
			if strings.EqualFold(t, requested) {
				return t
			}
		}
	}

	counts := make(map[string]int)
	for _, rel := range relationships {
		counts[strings.ToLower(rel.ParentTable)]++
		counts[strings.ToLower(rel.ReferencedTable)]++
	}

	best := tables[0]
	bestCount := counts[strings.ToLower(best)]
	for _, t := range tables[1:] {
		if c := counts[strings.ToLower(t)]; c > bestCount {
			best, bestCount = t, c
		}
	}
	return best
}

// findDirectRelationship looks up a single-hop FK between two tables in
// either direction. reversed is true when the relationship runs from "other"
// to "primary".
func findDirectRelationship(primary, other string, relationships []models.ForeignKeyRelationship) (models.ForeignKeyRelationship, bool, bool) {
	for _, rel := range relationships {
		if strings.EqualFold(rel.ParentTable, primary) && strings.EqualFold(rel.ReferencedTable, other) {
			return rel, false, true
		}
		if strings.EqualFold(rel.ParentTable, other) && strings.EqualFold(rel.ReferencedTable, primary) {
			return rel, true, true
		}
	}
	return models.ForeignKeyRelationship{}, false, false
}

func optimalPaths(paths []models.JoinPath) []models.JoinPath {
	var result []models.JoinPath
	for _, p := range paths {
		if p.IsOptimal {
			result = append(result, p)
		}
	}
	return result
}

func reverseConditions(conditions []models.JoinCondition) []models.JoinCondition {
	result := make([]models.JoinCondition, 0, len(conditions))
	for i := len(conditions) - 1; i >= 0; i-- {
		c := conditions[i]
		result = append(result, models.JoinCondition{
			LeftTable:   c.RightTable,
			LeftColumn:  c.RightColumn,
			RightTable:  c.LeftTable,
			RightColumn: c.LeftColumn,
		})
	}
	return result
}

func dedupeTables(tables []string) []string {
	seen := make(map[string]bool, len(tables))
	result := make([]string, 0, len(tables))
	for _, t := range tables {
		t = strings.TrimSpace(t)
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		result = append(result, t)
	}
	return result
}
