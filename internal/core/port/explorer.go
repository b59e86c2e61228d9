package port

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ColdranAI/sqlbase/internal/core/domain"
)

// SchemaIntrospector reads table and view metadata from a user's
// database. Implementations degrade gracefully: a relation whose
// columns cannot be read is returned without them rather than failing
// the whole snapshot.
type SchemaIntrospector interface {
	Snapshot(ctx context.Context, pool *pgxpool.Pool) (*domain.SchemaSnapshot, error)
}
