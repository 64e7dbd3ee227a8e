package datasource

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// AdapterRegistration holds the factories for one datasource driver.
// Adapters self-register from their init() functions.
type AdapterRegistration struct {
	Driver               string
	QueryExecutorFactory func(ctx context.Context, connString string, logger *zap.Logger) (QueryExecutor, error)
	SchemaReaderFactory  func(ctx context.Context, connString string, logger *zap.Logger) (SchemaReader, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]AdapterRegistration)
)

// Register is called by each adapter's init(). Thread-safe.
func Register(reg AdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Driver] = reg
}

// RegisteredDrivers returns the names of all registered drivers.
func RegisteredDrivers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	drivers := make([]string, 0, len(registry))
	for d := range registry {
		drivers = append(drivers, d)
	}
	return drivers
}

// NewQueryExecutor creates an executor for the named driver.
func NewQueryExecutor(ctx context.Context, driver, connString string, logger *zap.Logger) (QueryExecutor, error) {
	registryMu.RLock()
	reg, ok := registry[driver]
	registryMu.RUnlock()
	if !ok || reg.QueryExecutorFactory == nil {
		return nil, fmt.Errorf("no query executor registered for driver %q", driver)
	}
	return reg.QueryExecutorFactory(ctx, connString, logger)
}

// NewSchemaReader creates a schema reader for the named driver.
func NewSchemaReader(ctx context.Context, driver, connString string, logger *zap.Logger) (SchemaReader, error) {
	registryMu.RLock()
	reg, ok := registry[driver]
	registryMu.RUnlock()
	if !ok || reg.SchemaReaderFactory == nil {
		return nil, fmt.Errorf("no schema reader registered for driver %q", driver)
	}
	return reg.SchemaReaderFactory(ctx, connString, logger)
}
