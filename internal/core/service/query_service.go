package service

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ColdranAI/sqlbase/internal/core/domain"
	"github.com/ColdranAI/sqlbase/internal/core/port"
)

// connectionSource yields a ready-to-use pool for a user. Satisfied by
// *Broker.
type connectionSource interface {
	GetConnection(ctx context.Context, userID string) (*pgxpool.Pool, error)
}

// QueryService orchestrates SQL validation (domain), connection lookup
// (broker) and execution (infrastructure). Successful executions are
// recorded asynchronously for the usage history.
type QueryService struct {
	validator *domain.QueryValidator
	broker    connectionSource
	executor  port.QueryExecutor
	usage     port.UsageLogger
	history   port.UsageRepository
	logger    *slog.Logger
}

func NewQueryService(
	validator *domain.QueryValidator,
	broker connectionSource,
	executor port.QueryExecutor,
	usage port.UsageLogger,
	history port.UsageRepository,
	logger *slog.Logger,
) *QueryService {
	return &QueryService{
		validator: validator,
		broker:    broker,
		executor:  executor,
		usage:     usage,
		history:   history,
		logger:    logger,
	}
}

// Execute validates the SQL statement and, if allowed, runs it on the
// user's connection. Rejected statements never reach the database.
func (s *QueryService) Execute(ctx context.Context, userID string, req domain.QueryRequest) (*domain.QueryResult, error) {
	stmt, err := s.validator.Validate(req.SQL)
	if err != nil {
		return nil, domain.Kind(domain.ErrValidation, err)
	}

	pool, err := s.broker.GetConnection(ctx, userID)
	if err != nil {
		return nil, err
	}

	result, err := s.executor.Execute(ctx, pool, req, stmt)
	if err != nil {
		s.logger.Warn("query execution failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	// Record never blocks; a full buffer drops the entry.
	s.usage.Record(port.UsageEntry{
		UserID:          userID,
		SQL:             req.SQL,
		RowCount:        result.RowCount,
		ExecutionTimeMs: result.ExecutionTimeMs,
	})

	return result, nil
}

// History returns the user's recent query usage, newest first.
func (s *QueryService) History(ctx context.Context, userID string, limit, offset int) ([]port.UsageRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.history.ListByUser(ctx, userID, limit, offset)
}
