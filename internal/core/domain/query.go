package domain

import "time"

// Bounds applied to caller-supplied query options.
const (
	DefaultQueryLimit = 1000
	MaxQueryLimit     = 10000

	DefaultQueryTimeout = 30 * time.Second
	MaxQueryTimeout     = 300 * time.Second
)

// QueryRequest is one SQL execution request against a user's database.
type QueryRequest struct {
	SQL     string       `json:"sql"`
	Params  []any        `json:"params,omitempty"`
	Options QueryOptions `json:"options,omitempty"`
}

// QueryOptions tune a single execution. Zero values take the defaults.
type QueryOptions struct {
	Limit       int  `json:"limit,omitempty"`
	Timeout     int  `json:"timeout,omitempty"` // seconds
	ExplainPlan bool `json:"explain_plan,omitempty"`
	DryRun      bool `json:"dry_run,omitempty"`
}

// EffectiveLimit returns the row cap for this request, clamped to
// [1, MaxQueryLimit].
func (o QueryOptions) EffectiveLimit() int {
	if o.Limit <= 0 {
		return DefaultQueryLimit
	}
	if o.Limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return o.Limit
}

// EffectiveTimeout returns the execution deadline for this request,
// clamped to [1s, MaxQueryTimeout].
func (o QueryOptions) EffectiveTimeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultQueryTimeout
	}
	d := time.Duration(o.Timeout) * time.Second
	if d > MaxQueryTimeout {
		return MaxQueryTimeout
	}
	return d
}

// QueryResult is the shaped outcome of one execution.
type QueryResult struct {
	Columns         []string         `json:"columns"`
	Rows            [][]any          `json:"rows"`
	RowCount        int64            `json:"row_count"`
	ExecutionTimeMs float64          `json:"execution_time_ms"`
	ExplainPlan     []map[string]any `json:"explain_plan,omitempty"`
	Warnings        []string         `json:"warnings,omitempty"`
}
