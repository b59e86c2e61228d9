package port

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UsageEntry records one successful query execution.
type UsageEntry struct {
	UserID          string
	SQL             string
	RowCount        int64
	ExecutionTimeMs float64
}

// UsageRecord is a stored usage entry as returned by history reads.
type UsageRecord struct {
	ID              uuid.UUID `json:"id"`
	UserID          string    `json:"-"`
	SQL             string    `json:"sql"`
	RowCount        int64     `json:"row_count"`
	ExecutionTimeMs float64   `json:"execution_time_ms"`
	CreatedAt       time.Time `json:"executed_at"`
}

// UsageLogger accepts usage entries for asynchronous persistence.
type UsageLogger interface {
	// Record enqueues a usage entry for writing. Non-blocking; a full
	// buffer drops the entry rather than delaying the response.
	Record(entry UsageEntry)

	// Close flushes remaining entries and stops the background writer.
	Close()
}

// UsageRepository provides storage operations for usage entries.
type UsageRepository interface {
	// InsertBatch writes multiple usage entries in a single operation.
	InsertBatch(ctx context.Context, entries []UsageEntry) error

	// ListByUser retrieves a user's usage entries, newest first.
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]UsageRecord, error)
}
