package datasource

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestRegisterAndCreate(t *testing.T) {
	var gotConn string
	Register(AdapterRegistration{
		Driver: "fake",
		QueryExecutorFactory: func(ctx context.Context, connString string, logger *zap.Logger) (QueryExecutor, error) {
			gotConn = connString
			return nil, nil
		},
	})

	found := false
	for _, d := range RegisteredDrivers() {
		if d == "fake" {
			found = true
		}
	}
	if !found {
		t.Fatalf("RegisteredDrivers() = %v, missing fake", RegisteredDrivers())
	}

	if _, err := NewQueryExecutor(context.Background(), "fake", "server=db01", zap.NewNop()); err != nil {
		t.Fatalf("NewQueryExecutor: %v", err)
	}
	if gotConn != "server=db01" {
		t.Errorf("factory received %q", gotConn)
	}

	// No schema reader factory was registered for the driver.
	if _, err := NewSchemaReader(context.Background(), "fake", "server=db01", zap.NewNop()); err == nil {
		t.Error("NewSchemaReader should fail with no factory registered")
	}
}

func TestUnknownDriver(t *testing.T) {
	if _, err := NewQueryExecutor(context.Background(), "oracle", "", zap.NewNop()); err == nil {
		t.Error("unknown driver should error")
	}
	if _, err := NewSchemaReader(context.Background(), "oracle", "", zap.NewNop()); err == nil {
		t.Error("unknown driver should error")
	}
}

func TestEffectiveLimit(t *testing.T) {
	tests := []struct {
		limit int
		want  int
	}{
		{0, MaxQueryLimit},
		{-5, MaxQueryLimit},
		{1, 1},
		{500, 500},
		{MaxQueryLimit, MaxQueryLimit},
		{MaxQueryLimit + 1, MaxQueryLimit},
	}
	for _, tc := range tests {
		if got := EffectiveLimit(tc.limit); got != tc.want {
			t.Errorf("EffectiveLimit(%d) = %d, want %d", tc.limit, got, tc.want)
		}
	}
}
