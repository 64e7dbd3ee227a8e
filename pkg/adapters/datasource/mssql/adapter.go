// Package mssql implements the datasource adapter for Microsoft SQL Server
// via database/sql and the go-mssqldb driver.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"

	"github.com/intentql/intentql-engine/pkg/adapters/datasource"
	"github.com/intentql/intentql-engine/pkg/logging"
	"github.com/intentql/intentql-engine/pkg/models"
)

// Adapter executes bounded queries and reads schema metadata from one SQL
// Server database. It implements both datasource.QueryExecutor and
// datasource.SchemaReader over a shared *sql.DB.
type Adapter struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAdapter opens a connection pool for the given connection string.
func NewAdapter(ctx context.Context, connString string, logger *zap.Logger) (*Adapter, error) {
	db, err := sql.Open("sqlserver", connString)
	if err != nil {
		return nil, fmt.Errorf("open sqlserver connection %s: %w", logging.SanitizeConnectionString(connString), err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlserver: %w", err)
	}
	return &Adapter{
		db:     db,
		logger: logger.Named("mssql"),
	}, nil
}

// NewAdapterFromDB wraps an existing connection pool. The caller keeps
// ownership of ping and lifecycle concerns up to Close.
func NewAdapterFromDB(db *sql.DB, logger *zap.Logger) *Adapter {
	return &Adapter{
		db:     db,
		logger: logger.Named("mssql"),
	}
}

// Query runs a SELECT wrapped with a TOP bound.
func (a *Adapter) Query(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error) {
	return a.QueryWithParams(ctx, sqlQuery, nil, limit)
}

// QueryWithParams runs a parameterized SELECT (@p1, @p2, ...) with a TOP
// bound.
func (a *Adapter) QueryWithParams(ctx context.Context, sqlQuery string, params []any, limit int) (*datasource.QueryExecutionResult, error) {
	bounded := fmt.Sprintf("SELECT TOP (%d) * FROM (%s) AS _limited", datasource.EffectiveLimit(limit), sqlQuery)

	rows, err := a.db.QueryContext(ctx, bounded, params...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	return collectRows(rows)
}

func collectRows(rows *sql.Rows) (*datasource.QueryExecutionResult, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			// Text columns scan as []byte through database/sql.
			if b, ok := values[i].([]byte); ok {
				rowMap[col] = string(b)
			} else {
				rowMap[col] = values[i]
			}
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

// GetTables lists user tables.
func (a *Adapter) GetTables(ctx context.Context) ([]string, error) {
	query := `
		SELECT TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME`

	rows, err := a.db.QueryContext(ctx, query)
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

// GetColumns returns the distinct column names across the named tables.
func (a *Adapter) GetColumns(ctx context.Context, tables []string) ([]string, error) {
	if len(tables) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(tables))
	args := make([]any, len(tables))
	for i, t := range tables {
		placeholders[i] = fmt.Sprintf("@p%d", i+1)
		args[i] = t
	}

	query := fmt.Sprintf(`
		SELECT TABLE_NAME, COLUMN_NAME
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_NAME IN (%s)
		ORDER BY TABLE_NAME, ORDINAL_POSITION`, strings.Join(placeholders, ", "))

	rows, err := a.db.QueryContext(ctx, query, args...)
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

// ReadForeignKeys loads the full FK graph from the sys catalog views.
func (a *Adapter) ReadForeignKeys(ctx context.Context) ([]models.ForeignKeyRelationship, error) {
	query := `
	SET NOCOUNT ON;
	SELECT
		OBJECT_NAME(fk.parent_object_id) AS parent_table,
		COL_NAME(fkc.parent_object_id, fkc.parent_column_id) AS parent_column,
		OBJECT_NAME(fk.referenced_object_id) AS referenced_table,
		COL_NAME(fkc.referenced_object_id, fkc.referenced_column_id) AS referenced_column
	FROM sys.foreign_keys fk
	INNER JOIN sys.foreign_key_columns fkc ON fk.object_id = fkc.constraint_object_id
	WHERE fk.is_ms_shipped = 0
	ORDER BY parent_table, fkc.constraint_column_id`

	rows, err := a.db.QueryContext(ctx, query)
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

// Close releases the connection pool.
func (a *Adapter) Close() error {
	return a.db.Close()
}
