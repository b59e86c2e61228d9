package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ColdranAI/sqlbase/internal/core/domain"
)

// Executor runs validated statements inside a read-only transaction and
// shapes rows into a QueryResult. It is stateless: the pool comes in per
// call because each user has their own.
type Executor struct{}

func NewExecutor() *Executor {
	return &Executor{}
}

// Execute runs one statement. The caller has already validated req.SQL;
// stmt carries what the validator learned about it.
//
// Rewrites applied, in priority order:
//   - dry_run: plan only, nothing executes
//   - explain_plan: EXPLAIN ANALYZE with a JSON plan
//   - plain SELECT without LIMIT: the effective limit is appended
func (e *Executor) Execute(ctx context.Context, pool *pgxpool.Pool, req domain.QueryRequest, stmt *domain.StatementInfo) (*domain.QueryResult, error) {
	sql := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(req.SQL), ";"))

	var warnings []string
	wantPlan := false

	// A statement that is already an EXPLAIN runs as written; wrapping it
	// again would not parse.
	switch {
	case stmt.IsExplain:
	case req.Options.DryRun:
		sql = "EXPLAIN (FORMAT JSON) " + sql
		warnings = append(warnings, "dry run: statement was planned but not executed")
		wantPlan = true
	case req.Options.ExplainPlan:
		sql = "EXPLAIN (FORMAT JSON, ANALYZE true) " + sql
		wantPlan = true
	case !stmt.HasLimit:
		limit := req.Options.EffectiveLimit()
		sql = fmt.Sprintf("%s LIMIT %d", sql, limit)
		warnings = append(warnings, fmt.Sprintf("no LIMIT clause, appended LIMIT %d", limit))
	}

	ctx, cancel := context.WithTimeout(ctx, req.Options.EffectiveTimeout())
	defer cancel()

	start := time.Now()

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, wrapExecErr(ctx, fmt.Errorf("beginning transaction: %w", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, sql, req.Params...)
	if err != nil {
		return nil, wrapExecErr(ctx, fmt.Errorf("executing query: %w", err))
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = fd.Name
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row values: %w", err)
		}
		row := make([]any, len(values))
		copy(row, values)
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapExecErr(ctx, fmt.Errorf("iterating rows: %w", err))
	}
	rows.Close()

	if err := tx.Commit(ctx); err != nil {
		return nil, wrapExecErr(ctx, fmt.Errorf("committing transaction: %w", err))
	}

	result := &domain.QueryResult{
		Columns:         columns,
		Rows:            resultRows,
		RowCount:        int64(len(resultRows)),
		ExecutionTimeMs: float64(time.Since(start).Nanoseconds()) / 1e6,
		Warnings:        warnings,
	}

	if wantPlan && len(resultRows) > 0 && len(resultRows[0]) > 0 {
		plan, err := parseExplainPlan(resultRows[0][0])
		if err != nil {
			return nil, fmt.Errorf("parsing explain plan: %w", err)
		}
		result.ExplainPlan = plan
	}

	return result, nil
}

// wrapExecErr tags errors from the database conversation: deadline hits
// become timeouts, everything else a connection-kind error whose message
// keeps the server's native text.
func wrapExecErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.Kind(domain.ErrTimeout, err)
	}
	return domain.Kind(domain.ErrConnection, err)
}

// parseExplainPlan normalizes the single json column EXPLAIN (FORMAT JSON)
// returns. pgx decodes json values into []any already; raw text shows up
// when the value arrives as string or []byte.
func parseExplainPlan(v any) ([]map[string]any, error) {
	var raw []byte
	switch val := v.(type) {
	case []any:
		plan := make([]map[string]any, 0, len(val))
		for _, el := range val {
			m, ok := el.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("unexpected plan element type %T", el)
			}
			plan = append(plan, m)
		}
		return plan, nil
	case string:
		raw = []byte(val)
	case []byte:
		raw = val
	default:
		return nil, fmt.Errorf("unexpected plan type %T", v)
	}

	var plan []map[string]any
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, err
	}
	return plan, nil
}
