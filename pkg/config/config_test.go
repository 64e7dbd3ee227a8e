package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("1.2.3")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Version != "1.2.3" {
		t.Errorf("Version = %q", cfg.Version)
	}
	if cfg.Env != "local" {
		t.Errorf("Env = %q", cfg.Env)
	}
	if cfg.Planner.MaxMetrics != 5 || cfg.Planner.MaxDimensions != 3 || cfg.Planner.DefaultRowLimit != 100 {
		t.Errorf("planner defaults = %+v", cfg.Planner)
	}
	if cfg.Resilience.MaxRetries != 3 || cfg.Resilience.QueryTimeout != 5*time.Minute || cfg.Resilience.AITimeout != 30*time.Second {
		t.Errorf("resilience defaults = %+v", cfg.Resilience)
	}
	if cfg.Resilience.DBFailureRateThreshold != 0.5 || cfg.Resilience.DBMinimumThroughput != 3 || cfg.Resilience.AIFailureThreshold != 5 {
		t.Errorf("breaker defaults = %+v", cfg.Resilience)
	}
	if cfg.Cache.ExactTTL != time.Hour || cfg.Cache.SemanticTTL != 24*time.Hour || cfg.Cache.SimilarityThreshold != 0.85 {
		t.Errorf("cache defaults = %+v", cfg.Cache)
	}
	if cfg.AI.Provider != "openai" || cfg.AI.MaxTokens != 2000 {
		t.Errorf("ai defaults = %+v", cfg.AI)
	}
	if cfg.Datasource.Type != "postgres" || cfg.Datasource.Port != 5432 || cfg.Datasource.MaxQueryRows != 1000 {
		t.Errorf("datasource defaults = %+v", cfg.Datasource)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATASOURCE_TYPE", "mssql")
	t.Setenv("DATASOURCE_PORT", "1433")
	t.Setenv("DATASOURCE_PASSWORD", "s3cret")
	t.Setenv("RESILIENCE_MAX_RETRIES", "7")
	t.Setenv("AI_API_KEY", "sk-test")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load("dev")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Env != "production" {
		t.Errorf("Env = %q", cfg.Env)
	}
	if cfg.Datasource.Type != "mssql" || cfg.Datasource.Port != 1433 {
		t.Errorf("datasource = %+v", cfg.Datasource)
	}
	if cfg.Datasource.Password != "s3cret" {
		t.Error("password not read from environment")
	}
	if cfg.Resilience.MaxRetries != 7 {
		t.Errorf("MaxRetries = %d", cfg.Resilience.MaxRetries)
	}
	if cfg.AI.APIKey != "sk-test" {
		t.Error("api key not read from environment")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"failure rate above one", "RESILIENCE_DB_FAILURE_RATE", "1.5"},
		{"failure rate zero", "RESILIENCE_DB_FAILURE_RATE", "0"},
		{"similarity above one", "CACHE_SIMILARITY_THRESHOLD", "2"},
		{"zero metrics", "PLANNER_MAX_METRICS", "0"},
		{"unknown datasource", "DATASOURCE_TYPE", "oracle"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load("dev"); err == nil {
				t.Errorf("Load accepted %s=%s", tc.key, tc.value)
			}
		})
	}
}

func TestConnectionString(t *testing.T) {
	pg := DatasourceConfig{
		Type: "postgres", Host: "db01", Port: 5432,
		User: "svc", Password: "pw", Database: "gaming", SSLMode: "require",
	}
	want := "host=db01 port=5432 user=svc password=pw dbname=gaming sslmode=require"
	if got := pg.ConnectionString(); got != want {
		t.Errorf("postgres = %q, want %q", got, want)
	}

	ms := DatasourceConfig{
		Type: "mssql", Host: "db02", Port: 1433,
		User: "svc", Password: "pw", Database: "gaming",
	}
	want = "server=db02;port=1433;user id=svc;password=pw;database=gaming"
	if got := ms.ConnectionString(); got != want {
		t.Errorf("mssql = %q, want %q", got, want)
	}

	if !strings.Contains(pg.ConnectionString(), "password=") {
		t.Error("connection string should carry credentials for the driver")
	}
}
