package orchestrator

import (
	"time"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/google/uuid"
)

// Pipeline steps, in execution order.
const (
	StepStarted               = "started"
	StepSemanticAnalysis      = "semantic_analysis"
	StepSchemaRetrieval       = "schema_retrieval"
	StepRelationshipDiscovery = "relationship_discovery"
	StepJoinGeneration        = "join_generation"
	StepDateFilterGeneration  = "date_filter_generation"
	StepAggregationGeneration = "aggregation_generation"
	StepSQLAssembly           = "sql_assembly"
	StepCompleted             = "completed"
	StepError                 = "error"
)

// Step statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFailed   = "failed"
)

// StepRecord captures one pipeline step's outcome for the trace.
type StepRecord struct {
	Step       string         `json:"step"`
	Status     string         `json:"status"`
	Confidence float64        `json:"confidence,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	Error      string         `json:"error,omitempty"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// PipelineTrace is the ordered, caller-visible record of one synthesis
// request. Entries are appended in step order; steps for one request never
// execute concurrently, so no locking is needed.
type PipelineTrace struct {
	ID    string
	steps *orderedmap.OrderedMap[string, StepRecord]
}

// NewPipelineTrace creates a trace keyed by the caller-supplied id, or a
// generated one when empty.
func NewPipelineTrace(id string) *PipelineTrace {
	if id == "" {
		id = uuid.NewString()
	}
	return &PipelineTrace{
		ID:    id,
		steps: orderedmap.NewOrderedMap[string, StepRecord](),
	}
}

// Record appends a successful or degraded step entry.
func (t *PipelineTrace) Record(step, status string, confidence float64, detail map[string]any) {
	t.steps.Set(step, StepRecord{
		Step:       step,
		Status:     status,
		Confidence: confidence,
		Detail:     detail,
		RecordedAt: time.Now(),
	})
}

// Fail appends a failed step entry with the error message.
func (t *PipelineTrace) Fail(step string, err error) {
	t.steps.Set(step, StepRecord{
		Step:       step,
		Status:     StatusFailed,
		Error:      err.Error(),
		RecordedAt: time.Now(),
	})
}

// Steps returns the recorded entries in insertion order.
func (t *PipelineTrace) Steps() []StepRecord {
	records := make([]StepRecord, 0, t.steps.Len())
	for el := t.steps.Front(); el != nil; el = el.Next() {
		records = append(records, el.Value)
	}
	return records
}

// Get returns the record for a step, if present.
func (t *PipelineTrace) Get(step string) (StepRecord, bool) {
	return t.steps.Get(step)
}
