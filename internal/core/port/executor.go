package port

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ColdranAI/sqlbase/internal/core/domain"
)

// QueryExecutor runs one validated statement against a user's pool and
// shapes the outcome. The statement info comes from the validator that
// accepted the SQL.
type QueryExecutor interface {
	Execute(ctx context.Context, pool *pgxpool.Pool, req domain.QueryRequest, stmt *domain.StatementInfo) (*domain.QueryResult, error)
}
