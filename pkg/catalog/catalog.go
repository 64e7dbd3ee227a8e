// Package catalog provides the relationship catalog: foreign key
// relationships and precomputed join paths between named tables.
package catalog

import (
	"context"

	"github.com/intentql/intentql-engine/pkg/models"
)

// RelationshipCatalog supplies FK relationships and join paths for a table
// set. The join planner depends on this interface only; implementations may
// be graph-backed (in-memory) or load from a live schema.
type RelationshipCatalog interface {
	// GetRelationshipsForTables returns all FK relationships touching any of
	// the named tables.
	GetRelationshipsForTables(ctx context.Context, tableNames []string) ([]models.ForeignKeyRelationship, error)

	// GenerateJoinPaths returns join paths connecting pairs of the named
	// tables, shortest paths first.
	GenerateJoinPaths(ctx context.Context, tableNames []string) ([]models.JoinPath, error)
}

// ForeignKeyReader loads FK relationships from a schema source. Implemented
// by the datasource adapters.
type ForeignKeyReader interface {
	ReadForeignKeys(ctx context.Context) ([]models.ForeignKeyRelationship, error)
}

// Load builds a graph catalog from a foreign key reader.
func Load(ctx context.Context, reader ForeignKeyReader) (*GraphCatalog, error) {
	fks, err := reader.ReadForeignKeys(ctx)
	if err != nil {
		return nil, err
	}
	return NewGraphCatalog(fks), nil
}
