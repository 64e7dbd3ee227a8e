// Package services composes the synthesis pipeline, cache, screening and
// execution into the query processing service consumed by the resilience
// shell.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/intentql/intentql-engine/pkg/adapters/datasource"
	"github.com/intentql/intentql-engine/pkg/cache"
	"github.com/intentql/intentql-engine/pkg/llm"
	"github.com/intentql/intentql-engine/pkg/logging"
	"github.com/intentql/intentql-engine/pkg/models"
	"github.com/intentql/intentql-engine/pkg/orchestrator"
	"github.com/intentql/intentql-engine/pkg/resilience"
	"github.com/intentql/intentql-engine/pkg/sqlcheck"
)

// TableResolver maps a business-context profile to the table set the
// question is about. External collaborator, typically metadata-backed.
type TableResolver interface {
	ResolveTables(ctx context.Context, profile *models.BusinessContextProfile) (tables []string, primary string, err error)
}

// QueryProcessor is the full query pipeline. Its ProcessQuery/ExecuteSQL
// subset is what the resilience shell decorates.
type QueryProcessor interface {
	resilience.QueryService

	// HandleDataChange invalidates cached responses affected by a table
	// change.
	HandleDataChange(ctx context.Context, event models.DataChangeEvent)

	// WarmupCache probes the cache for common questions and reports gaps.
	WarmupCache(ctx context.Context, questions []string) cache.WarmupReport
}

type queryProcessingService struct {
	orch     *orchestrator.Orchestrator
	analyzer orchestrator.ContextAnalyzer
	resolver TableResolver
	executor datasource.QueryExecutor
	cache    *cache.QueryCache
	ai       llm.AIClient
	runner   *resilience.BackgroundRunner
	rowLimit int
	logger   *zap.Logger
}

// NewQueryProcessingService wires the pipeline. ai may be nil to skip
// insight generation; cache and runner are required.
func NewQueryProcessingService(
	orch *orchestrator.Orchestrator,
	analyzer orchestrator.ContextAnalyzer,
	resolver TableResolver,
	executor datasource.QueryExecutor,
	queryCache *cache.QueryCache,
	ai llm.AIClient,
	runner *resilience.BackgroundRunner,
	rowLimit int,
	logger *zap.Logger,
) QueryProcessor {
	if rowLimit < 1 {
		rowLimit = 100
	}
	return &queryProcessingService{
		orch:     orch,
		analyzer: analyzer,
		resolver: resolver,
		executor: executor,
		cache:    queryCache,
		ai:       ai,
		runner:   runner,
		rowLimit: rowLimit,
		logger:   logger.Named("query-service"),
	}
}

func (s *queryProcessingService) ProcessQuery(ctx context.Context, question string) (*models.QueryResponse, error) {
	start := time.Now()

	if hit := s.cache.GetExact(ctx, question); hit != nil {
		s.logger.Debug("exact cache hit", zap.String("question", question))
		return hit, nil
	}
	if hit := s.cache.GetSemantic(ctx, question); hit != nil {
		s.logger.Debug("semantic cache hit", zap.String("question", question))
		return hit, nil
	}

	profile, err := s.analyzer.Analyze(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("analyze question: %w", err)
	}
	tables, primary, err := s.resolver.ResolveTables(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("resolve tables: %w", err)
	}

	result, _ := s.orch.Synthesize(ctx, &orchestrator.SynthesisRequest{
		Question:     question,
		Profile:      profile,
		Tables:       tables,
		PrimaryTable: primary,
	})
	if !result.Success || result.GeneratedSQL == "" {
		return failureResponse(result.Error, start), nil
	}

	validation := sqlcheck.ValidateReadOnly(result.GeneratedSQL)
	if validation.Error != nil {
		s.logger.Warn("generated SQL rejected",
			zap.String("trace_id", result.TraceID),
			zap.String("sql", logging.SanitizeQuery(result.GeneratedSQL)),
			zap.Error(validation.Error))
		return failureResponse("generated SQL failed safety screening", start), nil
	}

	exec, err := s.executor.Query(ctx, validation.NormalizedSQL, s.rowLimit)
	if err != nil {
		return nil, fmt.Errorf("execute synthesized query: %w", err)
	}

	resp := &models.QueryResponse{
		Success:    true,
		SQL:        validation.NormalizedSQL,
		Columns:    exec.Columns,
		Rows:       exec.Rows,
		RowCount:   exec.RowCount,
		Confidence: result.OverallConfidence,
		ExecutedAt: start,
		DurationMs: time.Since(start).Milliseconds(),
	}

	if s.ai != nil {
		resp.Message = s.insightFor(ctx, question, resp)
	}

	s.runner.Go("cache-write", func(ctx context.Context) error {
		s.cache.Put(ctx, question, resp, 0)
		return nil
	})

	return resp, nil
}

func (s *queryProcessingService) ExecuteSQL(ctx context.Context, sqlQuery string) (*models.QueryResponse, error) {
	start := time.Now()

	validation := sqlcheck.ValidateReadOnly(sqlQuery)
	if validation.Error != nil {
		return failureResponse(validation.Error.Error(), start), nil
	}

	exec, err := s.executor.Query(ctx, validation.NormalizedSQL, s.rowLimit)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}

	return &models.QueryResponse{
		Success:    true,
		SQL:        validation.NormalizedSQL,
		Columns:    exec.Columns,
		Rows:       exec.Rows,
		RowCount:   exec.RowCount,
		ExecutedAt: start,
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

func (s *queryProcessingService) HandleDataChange(ctx context.Context, event models.DataChangeEvent) {
	s.cache.InvalidateOnChange(ctx, event)
}

func (s *queryProcessingService) WarmupCache(ctx context.Context, questions []string) cache.WarmupReport {
	return s.cache.Warmup(ctx, questions)
}

// insightFor asks the AI client for a short explanation of the result. The
// resilient decorator turns provider failures into a marked placeholder, so
// this never fails the query.
func (s *queryProcessingService) insightFor(ctx context.Context, question string, resp *models.QueryResponse) string {
	prompt := fmt.Sprintf(
		"Question: %s\nSQL: %s\nColumns: %s\nRow count: %d\nSummarize what this result shows in one or two sentences.",
		question, resp.SQL, strings.Join(resp.Columns, ", "), resp.RowCount)

	insight, err := s.ai.GenerateInsight(ctx, prompt)
	if err != nil {
		s.logger.Warn("insight generation failed", zap.Error(err))
		return ""
	}
	return insight
}

func failureResponse(message string, start time.Time) *models.QueryResponse {
	if message == "" {
		message = "query could not be processed"
	}
	return &models.QueryResponse{
		Success:    false,
		Message:    message,
		ExecutedAt: start,
		DurationMs: time.Since(start).Milliseconds(),
	}
}
