package catalog

import (
	"context"
	"sort"
	"strings"

	"github.com/intentql/intentql-engine/pkg/models"
)

// GraphCatalog is an in-memory RelationshipCatalog backed by an undirected
// FK adjacency graph. Safe for concurrent reads after construction.
type GraphCatalog struct {
	relationships []models.ForeignKeyRelationship
	// Adjacency list: table -> FK edges touching it (both directions).
	edges map[string][]models.ForeignKeyRelationship
	// All unique tables in the graph.
	tables map[string]bool
}

// NewGraphCatalog builds a catalog from a set of FK relationships.
func NewGraphCatalog(fks []models.ForeignKeyRelationship) *GraphCatalog {
	c := &GraphCatalog{
		edges:  make(map[string][]models.ForeignKeyRelationship),
		tables: make(map[string]bool),
	}
	for _, fk := range fks {
		c.addForeignKey(fk)
	}
	return c
}

func (c *GraphCatalog) addForeignKey(fk models.ForeignKeyRelationship) {
	parent := normalizeTable(fk.ParentTable)
	referenced := normalizeTable(fk.ReferencedTable)

	// Reject duplicates by identity quadruple
	for _, existing := range c.edges[parent] {
		if existing == fk {
			return
		}
	}

	c.relationships = append(c.relationships, fk)
	c.tables[parent] = true
	c.tables[referenced] = true
	c.edges[parent] = append(c.edges[parent], fk)
	c.edges[referenced] = append(c.edges[referenced], fk)
}

func normalizeTable(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// HasTable reports whether the table participates in any FK relationship.
func (c *GraphCatalog) HasTable(name string) bool {
	return c.tables[normalizeTable(name)]
}

// GetRelationshipsForTables returns all FK relationships where either
// endpoint is one of the named tables.
func (c *GraphCatalog) GetRelationshipsForTables(ctx context.Context, tableNames []string) ([]models.ForeignKeyRelationship, error) {
	requested := make(map[string]bool, len(tableNames))
	for _, t := range tableNames {
		requested[normalizeTable(t)] = true
	}

	var result []models.ForeignKeyRelationship
	for _, fk := range c.relationships {
		if requested[normalizeTable(fk.ParentTable)] || requested[normalizeTable(fk.ReferencedTable)] {
			result = append(result, fk)
		}
	}
	return result, nil
}

// GenerateJoinPaths returns one shortest join path per connected pair of the
// named tables, ordered by ascending hop count. Paths are restricted to hops
// through the requested table set itself; a pair only reachable through a
// table outside the set is reported as unconnected.
func (c *GraphCatalog) GenerateJoinPaths(ctx context.Context, tableNames []string) ([]models.JoinPath, error) {
	requested := make([]string, 0, len(tableNames))
	seen := make(map[string]bool, len(tableNames))
	for _, t := range tableNames {
		n := normalizeTable(t)
		if !seen[n] {
			seen[n] = true
			requested = append(requested, t)
		}
	}

	var paths []models.JoinPath
	for i := 0; i < len(requested); i++ {
		for j := i + 1; j < len(requested); j++ {
			if path, ok := c.shortestPath(requested[i], requested[j], seen); ok {
				paths = append(paths, path)
			}
		}
	}

	sort.SliceStable(paths, func(a, b int) bool {
		if paths[a].PathLength != paths[b].PathLength {
			return paths[a].PathLength < paths[b].PathLength
		}
		return paths[a].PerformanceScore > paths[b].PerformanceScore
	})
	return paths, nil
}

// bfsHop records how BFS reached a table, so the path can be reconstructed.
type bfsHop struct {
	table string
	fk    models.ForeignKeyRelationship
	prev  int // index of the preceding hop in the trail, -1 for the start
}

// shortestPath runs BFS from one table to another over edges whose endpoints
// are both in the allowed set, and reconstructs the ordered join conditions.
func (c *GraphCatalog) shortestPath(from, to string, allowed map[string]bool) (models.JoinPath, bool) {
	start := normalizeTable(from)
	goal := normalizeTable(to)
	if start == goal {
		return models.JoinPath{}, false
	}

	visited := map[string]bool{start: true}
	trail := []bfsHop{{table: start, prev: -1}}
	queue := []int{0}

	for len(queue) > 0 {
		currentIdx := queue[0]
		queue = queue[1:]
		current := trail[currentIdx]

		for _, fk := range c.edges[current.table] {
			next := normalizeTable(fk.ReferencedTable)
			if next == current.table {
				next = normalizeTable(fk.ParentTable)
			}
			if visited[next] || !allowed[next] {
				continue
			}
			visited[next] = true
			trail = append(trail, bfsHop{table: next, fk: fk, prev: currentIdx})
			if next == goal {
				return buildPath(from, to, trail, len(trail)-1), true
			}
			queue = append(queue, len(trail)-1)
		}
	}
	return models.JoinPath{}, false
}

// buildPath walks the BFS trail backwards from the goal and assembles join
// conditions ordered from the start table toward the goal. Conditions are
// oriented so the left side is the table closer to the start.
func buildPath(from, to string, trail []bfsHop, goalIdx int) models.JoinPath {
	var conditions []models.JoinCondition
	for idx := goalIdx; trail[idx].prev != -1; idx = trail[idx].prev {
		h := trail[idx]
		fk := h.fk
		cond := models.JoinCondition{
			LeftTable:   fk.ParentTable,
			LeftColumn:  fk.ParentColumn,
			RightTable:  fk.ReferencedTable,
			RightColumn: fk.ReferencedColumn,
		}
		// Orient the condition so the right side is the table this hop
		// arrived at.
		if normalizeTable(fk.ParentTable) == h.table {
			cond = models.JoinCondition{
				LeftTable:   fk.ReferencedTable,
				LeftColumn:  fk.ReferencedColumn,
				RightTable:  fk.ParentTable,
				RightColumn: fk.ParentColumn,
			}
		}
		conditions = append([]models.JoinCondition{cond}, conditions...)
	}

	length := len(conditions)
	return models.JoinPath{
		FromTable:        from,
		ToTable:          to,
		PathLength:       length,
		PerformanceScore: performanceScore(length),
		IsOptimal:        length == 1,
		JoinConditions:   conditions,
	}
}

// performanceScore estimates relative join cost: direct FK joins are the
// cheapest, each extra hop halves the score.
func performanceScore(hops int) float64 {
	if hops <= 0 {
		return 0
	}
	score := 100.0
	for i := 1; i < hops; i++ {
		score /= 2
	}
	return score
}
