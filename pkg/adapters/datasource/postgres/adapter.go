// Package postgres implements the datasource adapter for PostgreSQL using
// pgx connection pools.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/intentql/intentql-engine/pkg/adapters/datasource"
	"github.com/intentql/intentql-engine/pkg/logging"
	"github.com/intentql/intentql-engine/pkg/models"
)

// Adapter executes bounded queries and reads schema metadata from one
// PostgreSQL database. It implements both datasource.QueryExecutor and
// datasource.SchemaReader over a shared pool.
type Adapter struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewAdapter connects a pool to the given connection string.
func NewAdapter(ctx context.Context, connString string, logger *zap.Logger) (*Adapter, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres %s: %w", logging.SanitizeConnectionString(connString), err)
	}
	return &Adapter{
		pool:   pool,
		logger: logger.Named("postgres"),
	}, nil
}

// Query runs a SELECT wrapped with a LIMIT bound.
func (a *Adapter) Query(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error) {
	return a.QueryWithParams(ctx, sqlQuery, nil, limit)
}

// QueryWithParams runs a parameterized SELECT ($1, $2, ...) with a LIMIT
// bound. pgx parameterizes natively, so values never enter the SQL text.
func (a *Adapter) QueryWithParams(ctx context.Context, sqlQuery string, params []any, limit int) (*datasource.QueryExecutionResult, error) {
	bounded := fmt.Sprintf("SELECT * FROM (%s) AS _limited LIMIT %d", sqlQuery, datasource.EffectiveLimit(limit))

	rows, err := a.pool.Query(ctx, bounded, params...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = string(fd.Name)
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			rowMap[col] = values[i]
		}
		resultRows = append(resultRows, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return &datasource.QueryExecutionResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

// GetTables lists user tables in the public schema.
func (a *Adapter) GetTables(ctx context.Context) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	rows, err := a.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table rows: %w", err)
	}
	return tables, nil
}

// GetColumns returns the distinct column names across the named tables, in
// ordinal order per table.
func (a *Adapter) GetColumns(ctx context.Context, tables []string) ([]string, error) {
	if len(tables) == 0 {
		return nil, nil
	}

	query := `
		SELECT table_name, column_name
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = ANY($1)
		ORDER BY table_name, ordinal_position`

	rows, err := a.pool.Query(ctx, query, tables)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var columns []string
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}
		if !seen[column] {
			seen[column] = true
			columns = append(columns, column)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column rows: %w", err)
	}
	return columns, nil
}

// ReadForeignKeys loads the full FK graph from information_schema.
func (a *Adapter) ReadForeignKeys(ctx context.Context) ([]models.ForeignKeyRelationship, error) {
	query := `
		SELECT
			tc.table_name AS parent_table,
			kcu.column_name AS parent_column,
			ccu.table_name AS referenced_table,
			ccu.column_name AS referenced_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = 'public'
		ORDER BY tc.table_name, kcu.ordinal_position`

	rows, err := a.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}
	defer rows.Close()

	var fks []models.ForeignKeyRelationship
	for rows.Next() {
		var fk models.ForeignKeyRelationship
		if err := rows.Scan(&fk.ParentTable, &fk.ParentColumn, &fk.ReferencedTable, &fk.ReferencedColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key row: %w", err)
		}
		fks = append(fks, fk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign key rows: %w", err)
	}

	a.logger.Debug("loaded foreign keys", zap.Int("count", len(fks)))
	return fks, nil
}

// Close releases the pool.
func (a *Adapter) Close() error {
	a.pool.Close()
	return nil
}
