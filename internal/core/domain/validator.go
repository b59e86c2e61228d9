package domain

import (
	"errors"
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

var (
	ErrEmptyQuery     = errors.New("empty query")
	ErrNotAllowed     = errors.New("only SELECT and EXPLAIN statements are allowed")
	ErrMultiStatement = errors.New("multiple statements are not allowed")
)

// StatementInfo is what the validator learned about an accepted statement.
type StatementInfo struct {
	// IsExplain is true for EXPLAIN and EXPLAIN ANALYZE statements.
	IsExplain bool
	// HasLimit is true when the statement already bounds its own result,
	// or when no LIMIT can be appended to it.
	HasLimit bool
}

// QueryValidator gates SQL statements using PostgreSQL's actual parser.
// Only single SELECT (including WITH ... SELECT) and EXPLAIN statements
// pass (allow-list approach); everything else is rejected by statement
// type, so keywords hidden in comments or strings cannot slip through.
type QueryValidator struct{}

func NewQueryValidator() *QueryValidator {
	return &QueryValidator{}
}

// Validate parses the SQL and rejects anything that isn't a single SELECT
// or EXPLAIN statement. For accepted statements it reports whether a
// LIMIT is already present.
func (v *QueryValidator) Validate(sql string) (*StatementInfo, error) {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return nil, ErrEmptyQuery
	}

	tree, err := pg_query.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SQL: %w", err)
	}

	if len(tree.Stmts) == 0 {
		return nil, ErrEmptyQuery
	}

	if len(tree.Stmts) > 1 {
		return nil, ErrMultiStatement
	}

	stmt := tree.Stmts[0].Stmt
	if stmt == nil {
		return nil, ErrEmptyQuery
	}

	switch node := stmt.Node.(type) {
	case *pg_query.Node_SelectStmt:
		sel := node.SelectStmt
		// A locking clause ends the statement, so no LIMIT can follow it.
		hasLimit := sel.LimitCount != nil || len(sel.LockingClause) > 0
		return &StatementInfo{HasLimit: hasLimit}, nil
	case *pg_query.Node_ExplainStmt:
		return &StatementInfo{IsExplain: true, HasLimit: true}, nil
	default:
		return nil, ErrNotAllowed
	}
}
