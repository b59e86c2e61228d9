package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ColdranAI/sqlbase/internal/core/port"
)

const insertUsage = `
	INSERT INTO query_usage (user_id, query_text, row_count, execution_time_ms)
	VALUES ($1, $2, $3, $4)`

const listUsageByUser = `
	SELECT id, query_text, row_count, execution_time_ms, created_at
	FROM query_usage
	WHERE user_id = $1
	ORDER BY created_at DESC
	LIMIT $2 OFFSET $3`

// UsageRepositoryAdapter implements port.UsageRepository on the
// control-plane database.
type UsageRepositoryAdapter struct {
	pool *pgxpool.Pool
}

// NewUsageRepository creates a new UsageRepositoryAdapter.
func NewUsageRepository(pool *pgxpool.Pool) *UsageRepositoryAdapter {
	return &UsageRepositoryAdapter{pool: pool}
}

// InsertBatch writes the entries in one pipelined round trip.
func (a *UsageRepositoryAdapter) InsertBatch(ctx context.Context, entries []port.UsageEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(insertUsage, e.UserID, e.SQL, e.RowCount, e.ExecutionTimeMs)
	}

	results := a.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()

	for range entries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("inserting usage entry: %w", err)
		}
	}
	return nil
}

// ListByUser returns a user's usage entries, newest first.
func (a *UsageRepositoryAdapter) ListByUser(ctx context.Context, userID string, limit, offset int) ([]port.UsageRecord, error) {
	rows, err := a.pool.Query(ctx, listUsageByUser, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing usage: %w", err)
	}
	defer rows.Close()

	records := make([]port.UsageRecord, 0, limit)
	for rows.Next() {
		var (
			rec port.UsageRecord
			id  pgtype.UUID
		)
		if err := rows.Scan(&id, &rec.SQL, &rec.RowCount, &rec.ExecutionTimeMs, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning usage row: %w", err)
		}
		rec.ID = uuid.UUID(id.Bytes)
		rec.UserID = userID
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage rows: %w", err)
	}
	return records, nil
}
