package orchestrator

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/intentql/intentql-engine/pkg/catalog"
	"github.com/intentql/intentql-engine/pkg/models"
	"github.com/intentql/intentql-engine/pkg/planner"
)

type stubAnalyzer struct {
	profile  *models.BusinessContextProfile
	err      error
	lastQ    string
	analyzed int
}

func (s *stubAnalyzer) Analyze(ctx context.Context, question string) (*models.BusinessContextProfile, error) {
	s.analyzed++
	s.lastQ = question
	return s.profile, s.err
}

type stubMetadata struct {
	columns []string
	err     error
}

func (s stubMetadata) GetColumns(ctx context.Context, tables []string) ([]string, error) {
	return s.columns, s.err
}

type failingRelCatalog struct{}

func (failingRelCatalog) GetRelationshipsForTables(context.Context, []string) ([]models.ForeignKeyRelationship, error) {
	return nil, errors.New("catalog offline")
}

func (failingRelCatalog) GenerateJoinPaths(context.Context, []string) ([]models.JoinPath, error) {
	return nil, errors.New("catalog offline")
}

func newTestOrchestrator(analyzer ContextAnalyzer, metadata MetadataProvider, cat catalog.RelationshipCatalog) *Orchestrator {
	logger := zap.NewNop()
	return New(
		analyzer,
		metadata,
		cat,
		planner.NewJoinPlanner(cat, logger),
		planner.NewDateFilterPlanner(logger),
		planner.NewAggregationPlanner(planner.DefaultKeywordTables(), planner.KeywordScorer{}, planner.AggregationOptions{}, logger),
		100,
		logger,
	)
}

func TestSynthesizeEndToEnd(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)
	profile := &models.BusinessContextProfile{
		IntentType:    models.IntentAnalytical,
		BusinessTerms: []string{"total revenue", "country"},
		TimeContext: &models.TimeRange{
			StartDate:          &start,
			EndDate:            &end,
			Granularity:        models.GranularityDay,
			RelativeExpression: "last 7 days",
		},
		ConfidenceScore: 0.85,
	}
	cat := catalog.NewGraphCatalog([]models.ForeignKeyRelationship{
		{ParentTable: "Transactions", ParentColumn: "CountryID", ReferencedTable: "Countries", ReferencedColumn: "CountryID"},
	})
	metadata := stubMetadata{columns: []string{"TransactionDate", "Revenue", "Country", "CountryID"}}

	o := newTestOrchestrator(nil, metadata, cat)
	result, trace := o.Synthesize(context.Background(), &SynthesisRequest{
		Profile:      profile,
		Tables:       []string{"Transactions", "Countries"},
		PrimaryTable: "Transactions",
	})

	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}

	sql := result.GeneratedSQL
	if !strings.Contains(sql, "SUM(Revenue) AS SUMRevenue") {
		t.Errorf("missing aggregated metric in %q", sql)
	}
	if !strings.Contains(sql, "FROM Transactions tr\nINNER JOIN Countries co ON tr.CountryID = co.CountryID") {
		t.Errorf("missing join clause in %q", sql)
	}
	if !strings.Contains(sql, "WHERE TransactionDate >= '2024-01-01' AND TransactionDate < '2024-01-07'") {
		t.Errorf("missing date filter in %q", sql)
	}
	if !strings.Contains(sql, "GROUP BY") || !strings.Contains(sql, "Country") {
		t.Errorf("missing grouping in %q", sql)
	}
	if !strings.Contains(sql, "ORDER BY SUMRevenue DESC") {
		t.Errorf("missing ordering in %q", sql)
	}

	if result.OverallConfidence <= 0 || result.OverallConfidence >= 1 {
		t.Errorf("confidence = %f, want a blend strictly inside (0,1)", result.OverallConfidence)
	}
	want := (0.85 + 0.9 + 0.8 + 0.8) / 4
	if math.Abs(result.OverallConfidence-want) > 1e-9 {
		t.Errorf("confidence = %f, want %f", result.OverallConfidence, want)
	}

	steps := trace.Steps()
	if len(steps) == 0 || steps[0].Step != StepStarted || steps[len(steps)-1].Step != StepCompleted {
		t.Errorf("trace should run from started to completed: %+v", steps)
	}
	for _, step := range steps {
		if step.Status == StatusFailed {
			t.Errorf("unexpected failed step %q: %s", step.Step, step.Error)
		}
	}
}

func TestSynthesizeAnalyzesWhenProfileMissing(t *testing.T) {
	analyzer := &stubAnalyzer{profile: &models.BusinessContextProfile{
		IntentType:      models.IntentOperational,
		BusinessTerms:   []string{"recent logins"},
		ConfidenceScore: 0.6,
	}}
	o := newTestOrchestrator(analyzer, stubMetadata{columns: []string{"LoginDate"}}, catalog.NewGraphCatalog(nil))

	result, _ := o.Synthesize(context.Background(), &SynthesisRequest{
		Question: "show recent logins",
		Tables:   []string{"Logins"},
	})
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if analyzer.analyzed != 1 || analyzer.lastQ != "show recent logins" {
		t.Errorf("analyzer called %d times with %q", analyzer.analyzed, analyzer.lastQ)
	}
}

func TestSynthesizePreAnalyzedProfileWins(t *testing.T) {
	analyzer := &stubAnalyzer{err: errors.New("should not be called")}
	o := newTestOrchestrator(analyzer, stubMetadata{}, catalog.NewGraphCatalog(nil))

	result, _ := o.Synthesize(context.Background(), &SynthesisRequest{
		Question: "anything",
		Profile:  &models.BusinessContextProfile{IntentType: models.IntentOperational, ConfidenceScore: 0.5},
	})
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if analyzer.analyzed != 0 {
		t.Error("analyzer must not run when a profile is supplied")
	}
}

func TestSynthesizeFailsWithoutProfileOrAnalyzer(t *testing.T) {
	o := newTestOrchestrator(nil, stubMetadata{}, catalog.NewGraphCatalog(nil))

	result, trace := o.Synthesize(context.Background(), &SynthesisRequest{Question: "anything"})
	if result.Success {
		t.Fatal("expected failure without profile or analyzer")
	}
	if record, ok := trace.Get(StepSemanticAnalysis); !ok || record.Status != StatusFailed {
		t.Errorf("semantic analysis step = %+v", record)
	}
	if result.GeneratedSQL != "" {
		t.Errorf("aborted synthesis must not carry SQL, got %q", result.GeneratedSQL)
	}
}

func TestSynthesizeAnalyzerErrorAborts(t *testing.T) {
	analyzer := &stubAnalyzer{err: errors.New("analyzer offline")}
	o := newTestOrchestrator(analyzer, stubMetadata{}, catalog.NewGraphCatalog(nil))

	result, trace := o.Synthesize(context.Background(), &SynthesisRequest{Question: "anything"})
	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Error, "analyzer offline") {
		t.Errorf("error = %q", result.Error)
	}
	if record, ok := trace.Get(StepError); !ok || record.Status != StatusFailed {
		t.Errorf("error step = %+v", record)
	}
}

func TestSynthesizeMetadataErrorAborts(t *testing.T) {
	o := newTestOrchestrator(nil, stubMetadata{err: errors.New("schema offline")}, catalog.NewGraphCatalog(nil))

	result, trace := o.Synthesize(context.Background(), &SynthesisRequest{
		Profile: &models.BusinessContextProfile{IntentType: models.IntentOperational},
		Tables:  []string{"Transactions"},
	})
	if result.Success {
		t.Fatal("expected failure")
	}
	if record, ok := trace.Get(StepSchemaRetrieval); !ok || record.Status != StatusFailed {
		t.Errorf("schema retrieval step = %+v", record)
	}
}

func TestSynthesizeCatalogErrorAborts(t *testing.T) {
	o := newTestOrchestrator(nil, stubMetadata{}, failingRelCatalog{})

	result, trace := o.Synthesize(context.Background(), &SynthesisRequest{
		Profile: &models.BusinessContextProfile{IntentType: models.IntentOperational},
		Tables:  []string{"Transactions"},
	})
	if result.Success {
		t.Fatal("expected failure")
	}
	if record, ok := trace.Get(StepRelationshipDiscovery); !ok || record.Status != StatusFailed {
		t.Errorf("relationship discovery step = %+v", record)
	}
}

func TestSynthesizeDegradesOnDateFilterFailure(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	profile := &models.BusinessContextProfile{
		IntentType:      models.IntentOperational,
		BusinessTerms:   []string{"status"},
		TimeContext:     &models.TimeRange{StartDate: &start, Granularity: models.GranularityDay},
		ConfidenceScore: 0.6,
	}
	// No columns at all, so the date planner cannot pick one.
	o := newTestOrchestrator(nil, stubMetadata{}, catalog.NewGraphCatalog(nil))

	result, trace := o.Synthesize(context.Background(), &SynthesisRequest{
		Profile: profile,
		Tables:  []string{"Transactions"},
	})
	if !result.Success {
		t.Fatalf("planner failure must degrade, not abort: %q", result.Error)
	}
	if strings.Contains(result.GeneratedSQL, "WHERE") {
		t.Errorf("failed date filter must not emit a WHERE clause: %q", result.GeneratedSQL)
	}

	record, ok := trace.Get(StepDateFilterGeneration)
	if !ok || record.Status != StatusDegraded {
		t.Errorf("date filter step = %+v", record)
	}

	want := (0.6 + 0.9 + 0.5 + 0.8) / 4
	if math.Abs(result.OverallConfidence-want) > 1e-9 {
		t.Errorf("confidence = %f, want %f with the date failure weight", result.OverallConfidence, want)
	}
}

func TestSynthesizeEmptyRequestStillProducesSQL(t *testing.T) {
	o := newTestOrchestrator(nil, stubMetadata{}, catalog.NewGraphCatalog(nil))

	result, _ := o.Synthesize(context.Background(), &SynthesisRequest{
		Profile: &models.BusinessContextProfile{IntentType: models.IntentOperational},
	})
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if result.GeneratedSQL != "SELECT *" {
		t.Errorf("sql = %q", result.GeneratedSQL)
	}
}

func TestSynthesizeKeepsCallerTraceID(t *testing.T) {
	o := newTestOrchestrator(nil, stubMetadata{}, catalog.NewGraphCatalog(nil))

	result, trace := o.Synthesize(context.Background(), &SynthesisRequest{
		Profile: &models.BusinessContextProfile{IntentType: models.IntentOperational},
		TraceID: "req-7",
	})
	if result.TraceID != "req-7" || trace.ID != "req-7" {
		t.Errorf("trace id = %q / %q, want req-7", result.TraceID, trace.ID)
	}
}
