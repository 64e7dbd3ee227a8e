// Package datasource defines the database adapter boundary: bounded query
// execution plus the schema reads that feed the relationship catalog and
// the planners' column sets.
package datasource

import (
	"context"

	"github.com/intentql/intentql-engine/pkg/models"
)

// MaxQueryLimit is the hard cap on rows returned by Query. Protects
// against unbounded generated SQL.
const MaxQueryLimit = 1000

// QueryExecutionResult holds the rows returned by one bounded query.
type QueryExecutionResult struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// QueryExecutor executes SELECT statements against a datasource. The query
// is always wrapped with a dialect-specific row bound:
//   - PostgreSQL: SELECT * FROM (query) AS _limited LIMIT n
//   - SQL Server: SELECT TOP (n) * FROM (query) AS _limited
//
// limit <= 0 or limit > MaxQueryLimit uses MaxQueryLimit.
type QueryExecutor interface {
	Query(ctx context.Context, sqlQuery string, limit int) (*QueryExecutionResult, error)

	// QueryWithParams runs a parameterized SELECT with the same bounding.
	// Placeholder syntax is dialect-specific ($1 for Postgres, @p1 for SQL
	// Server).
	QueryWithParams(ctx context.Context, sqlQuery string, params []any, limit int) (*QueryExecutionResult, error)

	Close() error
}

// SchemaReader loads the metadata the synthesis pipeline needs: column
// names per table set and the full foreign key graph.
type SchemaReader interface {
	GetTables(ctx context.Context) ([]string, error)
	GetColumns(ctx context.Context, tables []string) ([]string, error)
	ReadForeignKeys(ctx context.Context) ([]models.ForeignKeyRelationship, error)
	Close() error
}

// EffectiveLimit clamps a requested limit into (0, MaxQueryLimit].
func EffectiveLimit(limit int) int {
	if limit <= 0 || limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}
