// Package orchestrator sequences the synthesis pipeline: context analysis,
// metadata retrieval, the three planners and SQL assembly, producing a
// confidence-scored SQL statement with a structured trace.
package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/intentql/intentql-engine/pkg/catalog"
	"github.com/intentql/intentql-engine/pkg/models"
	"github.com/intentql/intentql-engine/pkg/planner"
)

// Component confidence weights blended into the overall score. The blend is
// a coarse signal, not a calibrated probability.
const (
	joinConfidenceSuccess = 0.9
	joinConfidenceFailure = 0.3
	dateConfidenceSuccess = 0.8
	dateConfidenceFailure = 0.5
	aggConfidenceSuccess  = 0.8
	aggConfidenceFailure  = 0.5
)

// ContextAnalyzer is the upstream business-context analyzer boundary.
type ContextAnalyzer interface {
	Analyze(ctx context.Context, question string) (*models.BusinessContextProfile, error)
}

// MetadataProvider is the business metadata retrieval boundary: it supplies
// the column catalog for a table set.
type MetadataProvider interface {
	GetColumns(ctx context.Context, tables []string) ([]string, error)
}

// SynthesisRequest is one intent-to-SQL request. Either Profile or Question
// must be set; when both are present the pre-analyzed profile wins.
type SynthesisRequest struct {
	Question     string
	Profile      *models.BusinessContextProfile
	Tables       []string
	PrimaryTable string
	TraceID      string

	JoinStrategy        models.JoinStrategy
	DateFilterStrategy  models.DateFilterStrategy
	AggregationStrategy models.AggregationStrategy
}

// Orchestrator runs the linear synthesis state machine. It is the only
// component that talks to the analyzer and metadata collaborators; their
// outputs are opaque inputs to the planners.
type Orchestrator struct {
	analyzer    ContextAnalyzer
	metadata    MetadataProvider
	catalog     catalog.RelationshipCatalog
	joins       *planner.JoinPlanner
	dateFilters *planner.DateFilterPlanner
	aggregation *planner.AggregationPlanner
	rowLimit    int
	logger      *zap.Logger
}

// New creates an orchestrator wired to its collaborators and planners.
func New(
	analyzer ContextAnalyzer,
	metadata MetadataProvider,
	cat catalog.RelationshipCatalog,
	joins *planner.JoinPlanner,
	dateFilters *planner.DateFilterPlanner,
	aggregation *planner.AggregationPlanner,
	rowLimit int,
	logger *zap.Logger,
) *Orchestrator {
	if rowLimit < 1 {
		rowLimit = 100
	}
	return &Orchestrator{
		analyzer:    analyzer,
		metadata:    metadata,
		catalog:     cat,
		joins:       joins,
		dateFilters: dateFilters,
		aggregation: aggregation,
		rowLimit:    rowLimit,
		logger:      logger.Named("orchestrator"),
	}
}

// Synthesize runs the pipeline for one request. Planning failures degrade
// confidence but do not abort; collaborator failures abort with success=false
// and no partial SQL. The trace records every step in order.
func (o *Orchestrator) Synthesize(ctx context.Context, req *SynthesisRequest) (*models.EnhancedQueryResult, *PipelineTrace) {
	trace := NewPipelineTrace(req.TraceID)
	trace.Record(StepStarted, StatusOK, 0, map[string]any{
		"tables": req.Tables,
	})

	// SemanticAnalysis
	profile := req.Profile
	if profile == nil {
		if o.analyzer == nil {
			return o.fail(trace, StepSemanticAnalysis, fmt.Errorf("no business context profile supplied and no analyzer configured"))
		}
		analyzed, err := o.analyzer.Analyze(ctx, req.Question)
		if err != nil {
			return o.fail(trace, StepSemanticAnalysis, fmt.Errorf("semantic analysis: %w", err))
		}
		profile = analyzed
	}
	trace.Record(StepSemanticAnalysis, StatusOK, profile.ConfidenceScore, map[string]any{
		"intent_type": profile.IntentType,
		"term_count":  len(profile.BusinessTerms),
	})

	// SchemaRetrieval
	columns, err := o.metadata.GetColumns(ctx, req.Tables)
	if err != nil {
		return o.fail(trace, StepSchemaRetrieval, fmt.Errorf("schema retrieval: %w", err))
	}
	trace.Record(StepSchemaRetrieval, StatusOK, 0, map[string]any{
		"column_count": len(columns),
	})

	// RelationshipDiscovery
	relationships, err := o.catalog.GetRelationshipsForTables(ctx, req.Tables)
	if err != nil {
		return o.fail(trace, StepRelationshipDiscovery, fmt.Errorf("relationship discovery: %w", err))
	}
	trace.Record(StepRelationshipDiscovery, StatusOK, 0, map[string]any{
		"relationship_count": len(relationships),
	})

	// JoinGeneration
	joinResult := o.joins.GenerateJoins(ctx, req.Tables, req.PrimaryTable, defaultJoinStrategy(req.JoinStrategy))
	joinConfidence := joinConfidenceFailure
	joinStatus := StatusDegraded
	if joinResult.Success {
		joinConfidence = joinConfidenceSuccess
		joinStatus = StatusOK
	}
	trace.Record(StepJoinGeneration, joinStatus, joinConfidence, map[string]any{
		"primary_table": joinResult.PrimaryTable,
		"strategy":      string(joinResult.Strategy),
	})

	// DateFilterGeneration
	dateResult := o.dateFilters.GenerateDateFilter(profile.TimeContext, columns, defaultDateStrategy(req.DateFilterStrategy))
	dateConfidence := dateConfidenceFailure
	dateStatus := StatusDegraded
	if dateResult.Success {
		dateConfidence = dateConfidenceSuccess
		dateStatus = StatusOK
	}
	trace.Record(StepDateFilterGeneration, dateStatus, dateConfidence, map[string]any{
		"strategy": string(dateResult.Strategy),
		"columns":  dateResult.DateColumns,
	})

	// AggregationGeneration
	aggResult := o.aggregation.GenerateAggregation(profile, columns, defaultAggStrategy(req.AggregationStrategy))
	aggConfidence := aggConfidenceFailure
	aggStatus := StatusDegraded
	if aggResult.Success {
		aggConfidence = aggConfidenceSuccess
		aggStatus = StatusOK
	}
	trace.Record(StepAggregationGeneration, aggStatus, aggConfidence, map[string]any{
		"strategy":   string(aggResult.Strategy),
		"metrics":    len(aggResult.Metrics),
		"dimensions": len(aggResult.Dimensions),
	})

	// SqlAssembly
	sql := o.assembleSQL(joinResult, dateResult, aggResult)
	trace.Record(StepSQLAssembly, StatusOK, 0, map[string]any{
		"sql_length": len(sql),
	})

	overall := (profile.ConfidenceScore + joinConfidence + dateConfidence + aggConfidence) / 4
	overall = clamp01(overall)

	trace.Record(StepCompleted, StatusOK, overall, nil)
	o.logger.Info("synthesis completed",
		zap.String("trace_id", trace.ID),
		zap.Float64("confidence", overall),
		zap.Int("sql_length", len(sql)))

	return &models.EnhancedQueryResult{
		Success:           true,
		GeneratedSQL:      sql,
		BusinessProfile:   profile,
		JoinResult:        joinResult,
		DateFilterResult:  dateResult,
		AggregationResult: aggResult,
		OverallConfidence: overall,
		TraceID:           trace.ID,
		ProcessingMetadata: map[string]any{
			"steps": len(trace.Steps()),
		},
	}, trace
}

// assembleSQL concatenates the fragments in fixed order, each on its own
// line. An empty plan still produces a bounded default statement.
func (o *Orchestrator) assembleSQL(join *models.JoinResult, date *models.DateFilterResult, agg *models.AggregationResult) string {
	var lines []string

	selectClause := ""
	if agg != nil && agg.Success {
		selectClause = agg.SelectClause
	}
	if selectClause == "" {
		selectClause = fmt.Sprintf("SELECT TOP %d *", o.rowLimit)
	}
	lines = append(lines, selectClause)

	if join != nil && join.Success && join.JoinClause != "" {
		lines = append(lines, join.JoinClause)
	}
	if date != nil && date.Success && date.WhereClause != "" {
		lines = append(lines, "WHERE "+date.WhereClause)
	}
	if agg != nil && agg.Success {
		if agg.GroupByClause != "" {
			lines = append(lines, agg.GroupByClause)
		}
		if agg.OrderByClause != "" {
			lines = append(lines, agg.OrderByClause)
		}
	}

	return strings.Join(lines, "\n")
}

// fail transitions the pipeline to the error state: no partial SQL.
func (o *Orchestrator) fail(trace *PipelineTrace, step string, err error) (*models.EnhancedQueryResult, *PipelineTrace) {
	trace.Fail(step, err)
	trace.Fail(StepError, err)
	o.logger.Error("synthesis failed",
		zap.String("trace_id", trace.ID),
		zap.String("step", step),
		zap.Error(err))

	return &models.EnhancedQueryResult{
		Success: false,
		TraceID: trace.ID,
		Error:   err.Error(),
	}, trace
}

func defaultJoinStrategy(s models.JoinStrategy) models.JoinStrategy {
	if s == "" {
		return models.JoinStrategyOptimal
	}
	return s
}

func defaultDateStrategy(s models.DateFilterStrategy) models.DateFilterStrategy {
	if s == "" {
		return models.DateFilterStrategyOptimal
	}
	return s
}

func defaultAggStrategy(s models.AggregationStrategy) models.AggregationStrategy {
	if s == "" {
		return models.AggregationStrategyStandard
	}
	return s
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
