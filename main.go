package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/intentql/intentql-engine/pkg/adapters/datasource"
	_ "github.com/intentql/intentql-engine/pkg/adapters/datasource/mssql"
	_ "github.com/intentql/intentql-engine/pkg/adapters/datasource/postgres"
	"github.com/intentql/intentql-engine/pkg/cache"
	"github.com/intentql/intentql-engine/pkg/catalog"
	"github.com/intentql/intentql-engine/pkg/config"
	"github.com/intentql/intentql-engine/pkg/llm"
	"github.com/intentql/intentql-engine/pkg/logging"
	"github.com/intentql/intentql-engine/pkg/orchestrator"
	"github.com/intentql/intentql-engine/pkg/planner"
	"github.com/intentql/intentql-engine/pkg/resilience"
	"github.com/intentql/intentql-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("datasource_type", cfg.Datasource.Type),
		zap.String("ai_provider", cfg.AI.Provider))

	ctx := context.Background()

	connString := cfg.Datasource.ConnectionString()
	executor, err := datasource.NewQueryExecutor(ctx, cfg.Datasource.Type, connString, logger)
	if err != nil {
		logger.Fatal("failed to open query executor", zap.Error(err))
	}
	defer executor.Close()

	schemaReader, err := datasource.NewSchemaReader(ctx, cfg.Datasource.Type, connString, logger)
	if err != nil {
		logger.Fatal("failed to open schema reader", zap.Error(err))
	}
	defer schemaReader.Close()

	relationshipCatalog, err := catalog.Load(ctx, schemaReader)
	if err != nil {
		logger.Fatal("failed to load relationship catalog", zap.Error(err))
	}

	keywords := planner.DefaultKeywordTables()
	if cfg.Planner.KeywordFile != "" {
		keywords, err = planner.LoadKeywordTables(cfg.Planner.KeywordFile)
		if err != nil {
			logger.Fatal("failed to load keyword tables", zap.Error(err))
		}
	}

	aggOpts := planner.AggregationOptions{
		MaxMetrics:    cfg.Planner.MaxMetrics,
		MaxDimensions: cfg.Planner.MaxDimensions,
		RowLimit:      cfg.Planner.DefaultRowLimit,
	}

	analyzer := services.NewKeywordContextAnalyzer(logger)
	orch := orchestrator.New(
		analyzer,
		schemaReader,
		relationshipCatalog,
		planner.NewJoinPlanner(relationshipCatalog, logger),
		planner.NewDateFilterPlanner(logger),
		planner.NewAggregationPlanner(keywords, planner.KeywordScorer{}, aggOpts, logger),
		cfg.Planner.DefaultRowLimit,
		logger,
	)

	aiClient, err := buildAIClient(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build AI client", zap.Error(err))
	}
	// Insight generation is best-effort: a failed AI call degrades the
	// response, never the query. Lighter retry budget than the query path.
	resilientAI := resilience.NewResilientAIService(
		aiClient,
		resilience.NewConsecutiveBreaker(cfg.Resilience.AIFailureThreshold, cfg.Resilience.BreakerCooldown),
		&resilience.RetryConfig{
			MaxRetries:   cfg.Resilience.BestEffortRetries,
			InitialDelay: resilience.DefaultRetryConfig().InitialDelay,
			MaxDelay:     resilience.DefaultRetryConfig().MaxDelay,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
		cfg.Resilience.AITimeout,
		logger,
	)

	queryCache := cache.NewQueryCache(cache.NewMemoryStore(), nil, cache.Options{
		ExactTTL:            cfg.Cache.ExactTTL,
		SemanticTTL:         cfg.Cache.SemanticTTL,
		SimilarityThreshold: cfg.Cache.SimilarityThreshold,
	}, logger)

	runner := resilience.NewBackgroundRunner(4, 30*time.Second, logger)
	defer runner.Wait()

	processor := services.NewQueryProcessingService(
		orch,
		analyzer,
		services.NewSchemaTableResolver(schemaReader, logger),
		executor,
		queryCache,
		resilientAI,
		runner,
		cfg.Planner.DefaultRowLimit,
		logger,
	)

	queryService := resilience.NewResilientQueryService(
		processor,
		resilience.NewRateBreaker(
			cfg.Resilience.DBFailureRateThreshold,
			cfg.Resilience.DBSamplingWindow,
			cfg.Resilience.DBMinimumThroughput,
			cfg.Resilience.BreakerCooldown,
		),
		resilience.DefaultRetryConfig(),
		cfg.Resilience.QueryTimeout,
		logger,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"version": cfg.Version,
		})
	})
	mux.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Question string `json:"question"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Question == "" {
			http.Error(w, "question is required", http.StatusBadRequest)
			return
		}
		resp, err := queryService.ProcessQuery(r.Context(), body.Question)
		if err != nil {
			logger.Error("query processing failed", zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	addr := ":8080"
	logger.Info("starting intentql-engine", zap.String("addr", addr), zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func buildAIClient(cfg *config.Config, logger *zap.Logger) (llm.AIClient, error) {
	llmCfg := &llm.Config{
		Endpoint:  cfg.AI.Endpoint,
		Model:     cfg.AI.Model,
		APIKey:    cfg.AI.APIKey,
		MaxTokens: cfg.AI.MaxTokens,
	}
	if cfg.AI.Provider == "anthropic" {
		return llm.NewAnthropicClient(llmCfg, logger)
	}
	return llm.NewClient(llmCfg, logger)
}
