package models

// JoinStrategy selects how the join planner connects the requested tables.
type JoinStrategy string

const (
	// JoinStrategyOptimal walks precomputed join paths by hop count and
	// performance score, falling back to CROSS JOIN for unreachable tables.
	JoinStrategyOptimal JoinStrategy = "optimal"
	// JoinStrategyLeftJoin emits LEFT JOINs for direct relationships with
	// the primary table only.
	JoinStrategyLeftJoin JoinStrategy = "left_join"
	// JoinStrategyInnerJoin emits INNER JOINs for direct relationships with
	// the primary table only.
	JoinStrategyInnerJoin JoinStrategy = "inner_join"
	// JoinStrategyMinimalPath uses only paths flagged optimal, shortest first.
	JoinStrategyMinimalPath JoinStrategy = "minimal_path"
)

// ForeignKeyRelationship is an immutable FK edge sourced from the
// relationship catalog. Identity is the full column quadruple.
type ForeignKeyRelationship struct {
	ParentTable      string `json:"parent_table"`
	ParentColumn     string `json:"parent_column"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

// JoinCondition is one alias-qualified equality within a join path.
type JoinCondition struct {
	LeftTable   string `json:"left_table"`
	LeftColumn  string `json:"left_column"`
	RightTable  string `json:"right_table"`
	RightColumn string `json:"right_column"`
}

// JoinPath is a sequence of FK hops connecting two tables, derived per
// request from the relationship graph. Never persisted.
type JoinPath struct {
	FromTable        string          `json:"from_table"`
	ToTable          string          `json:"to_table"`
	PathLength       int             `json:"path_length"` // hop count
	PerformanceScore float64         `json:"performance_score"` // higher = cheaper
	IsOptimal        bool            `json:"is_optimal"`
	JoinConditions   []JoinCondition `json:"join_conditions"`
}

// JoinResult is the output of one join-planning call.
type JoinResult struct {
	Success      bool              `json:"success"`
	JoinClause   string            `json:"join_clause"`
	TableAliases map[string]string `json:"table_aliases"`
	JoinPaths    []JoinPath        `json:"join_paths,omitempty"`
	PrimaryTable string            `json:"primary_table"`
	Strategy     JoinStrategy      `json:"strategy"`
	Metadata     map[string]any    `json:"metadata,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// JoinabilityReport is the output of ValidateJoinability.
type JoinabilityReport struct {
	IsValid         bool     `json:"is_valid"`
	ConnectedTables []string `json:"connected_tables"`
	IsolatedTables  []string `json:"isolated_tables"`
	Warnings        []string `json:"warnings,omitempty"`
}
