package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for intentql-engine.
// Configuration can come from a YAML file (config.yaml) or environment
// variables. Environment variables always override YAML values. Secrets
// (passwords, API keys) must only come from environment variables.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"` // Set at load time, not from config

	Planner    PlannerConfig    `yaml:"planner"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Cache      CacheConfig      `yaml:"cache"`
	AI         AIConfig         `yaml:"ai"`
	Datasource DatasourceConfig `yaml:"datasource"`
}

// PlannerConfig holds tuning knobs for the three planners.
type PlannerConfig struct {
	// MaxMetrics caps the number of metrics kept per request, by priority.
	MaxMetrics int `yaml:"max_metrics" env:"PLANNER_MAX_METRICS" env-default:"5"`
	// MaxDimensions caps the number of dimensions kept per request.
	MaxDimensions int `yaml:"max_dimensions" env:"PLANNER_MAX_DIMENSIONS" env-default:"3"`
	// DefaultRowLimit bounds fallback SELECT statements (TOP n).
	DefaultRowLimit int `yaml:"default_row_limit" env:"PLANNER_DEFAULT_ROW_LIMIT" env-default:"100"`
	// KeywordFile optionally points at a YAML file overriding the built-in
	// metric/dimension keyword tables.
	KeywordFile string `yaml:"keyword_file" env:"PLANNER_KEYWORD_FILE" env-default:""`
}

// ResilienceConfig holds retry, circuit breaker and timeout settings for the
// two wrapped dependency categories (database execution and AI generation).
type ResilienceConfig struct {
	// MaxRetries is the attempt cap for primary operations.
	MaxRetries int `yaml:"max_retries" env:"RESILIENCE_MAX_RETRIES" env-default:"3"`
	// BestEffortRetries is the lighter attempt cap for side operations
	// (cache writes, suggestion lookups).
	BestEffortRetries int `yaml:"best_effort_retries" env:"RESILIENCE_BEST_EFFORT_RETRIES" env-default:"1"`

	// QueryTimeout bounds full query processing.
	QueryTimeout time.Duration `yaml:"query_timeout" env:"RESILIENCE_QUERY_TIMEOUT" env-default:"5m"`
	// AITimeout bounds a single AI text generation call.
	AITimeout time.Duration `yaml:"ai_timeout" env:"RESILIENCE_AI_TIMEOUT" env-default:"30s"`

	// DBFailureRateThreshold trips the database breaker when exceeded within
	// the sampling window (0-1).
	DBFailureRateThreshold float64 `yaml:"db_failure_rate_threshold" env:"RESILIENCE_DB_FAILURE_RATE" env-default:"0.5"`
	// DBSamplingWindow is the rolling window over which the failure rate is
	// computed.
	DBSamplingWindow time.Duration `yaml:"db_sampling_window" env:"RESILIENCE_DB_SAMPLING_WINDOW" env-default:"30s"`
	// DBMinimumThroughput is the least number of calls in the window before
	// the failure rate is considered meaningful.
	DBMinimumThroughput int `yaml:"db_minimum_throughput" env:"RESILIENCE_DB_MIN_THROUGHPUT" env-default:"3"`

	// AIFailureThreshold is the consecutive-failure count that trips the AI
	// breaker.
	AIFailureThreshold int `yaml:"ai_failure_threshold" env:"RESILIENCE_AI_FAILURE_THRESHOLD" env-default:"5"`

	// BreakerCooldown is how long an open breaker stays open before probing.
	BreakerCooldown time.Duration `yaml:"breaker_cooldown" env:"RESILIENCE_BREAKER_COOLDOWN" env-default:"1m"`
}

// CacheConfig holds result cache TTLs and the semantic similarity threshold.
type CacheConfig struct {
	ExactTTL            time.Duration `yaml:"exact_ttl" env:"CACHE_EXACT_TTL" env-default:"1h"`
	SemanticTTL         time.Duration `yaml:"semantic_ttl" env:"CACHE_SEMANTIC_TTL" env-default:"24h"`
	SimilarityThreshold float64       `yaml:"similarity_threshold" env:"CACHE_SIMILARITY_THRESHOLD" env-default:"0.85"`
}

// AIConfig holds the AI generation endpoint used for SQL drafting and
// insight generation.
type AIConfig struct {
	// Provider selects the client implementation: "openai" (any
	// OpenAI-compatible endpoint) or "anthropic".
	Provider string `yaml:"provider" env:"AI_PROVIDER" env-default:"openai"`
	Endpoint string `yaml:"endpoint" env:"AI_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model    string `yaml:"model" env:"AI_MODEL" env-default:""`
	APIKey   string `yaml:"-" env:"AI_API_KEY"` // Secret - not in YAML
	// MaxTokens bounds generation length for providers that require it.
	MaxTokens int `yaml:"max_tokens" env:"AI_MAX_TOKENS" env-default:"2000"`
}

// DatasourceConfig holds the reporting database the generated SQL runs
// against and the FK catalog is loaded from.
type DatasourceConfig struct {
	// Type is the dialect: "postgres" or "mssql".
	Type     string `yaml:"type" env:"DATASOURCE_TYPE" env-default:"postgres"`
	Host     string `yaml:"host" env:"DATASOURCE_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"DATASOURCE_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"DATASOURCE_USER" env-default:""`
	Password string `yaml:"-" env:"DATASOURCE_PASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"DATASOURCE_DATABASE" env-default:""`
	SSLMode  string `yaml:"ssl_mode" env:"DATASOURCE_SSL_MODE" env-default:"disable"`
	// MaxQueryRows is the hard cap applied to executed result sets.
	MaxQueryRows int `yaml:"max_query_rows" env:"DATASOURCE_MAX_QUERY_ROWS" env-default:"1000"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. If config.yaml does not exist, environment variables and
// defaults alone are used.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment config: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Resilience.DBFailureRateThreshold <= 0 || c.Resilience.DBFailureRateThreshold > 1 {
		return fmt.Errorf("db_failure_rate_threshold must be in (0,1], got %v", c.Resilience.DBFailureRateThreshold)
	}
	if c.Cache.SimilarityThreshold < 0 || c.Cache.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0,1], got %v", c.Cache.SimilarityThreshold)
	}
	if c.Planner.MaxMetrics < 1 {
		return fmt.Errorf("max_metrics must be at least 1, got %d", c.Planner.MaxMetrics)
	}
	if c.Planner.MaxDimensions < 1 {
		return fmt.Errorf("max_dimensions must be at least 1, got %d", c.Planner.MaxDimensions)
	}
	switch c.Datasource.Type {
	case "postgres", "mssql":
	default:
		return fmt.Errorf("unsupported datasource type %q", c.Datasource.Type)
	}
	return nil
}

// ConnectionString returns a dialect-appropriate connection string.
func (c *DatasourceConfig) ConnectionString() string {
	if c.Type == "mssql" {
		return fmt.Sprintf(
			"server=%s;port=%d;user id=%s;password=%s;database=%s",
			c.Host, c.Port, c.User, c.Password, c.Database,
		)
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
