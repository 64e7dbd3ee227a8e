package mssql

import (
	"context"

	"go.uber.org/zap"

	"github.com/intentql/intentql-engine/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Driver: "mssql",
		QueryExecutorFactory: func(ctx context.Context, connString string, logger *zap.Logger) (datasource.QueryExecutor, error) {
			return NewAdapter(ctx, connString, logger)
		},
		SchemaReaderFactory: func(ctx context.Context, connString string, logger *zap.Logger) (datasource.SchemaReader, error) {
			return NewAdapter(ctx, connString, logger)
		},
	})
}
