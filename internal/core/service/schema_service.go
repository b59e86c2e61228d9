package service

import (
	"context"
	"log/slog"

	"github.com/ColdranAI/sqlbase/internal/core/domain"
	"github.com/ColdranAI/sqlbase/internal/core/port"
)

// SchemaService produces schema snapshots of a user's database.
type SchemaService struct {
	broker       connectionSource
	introspector port.SchemaIntrospector
	logger       *slog.Logger
}

func NewSchemaService(broker connectionSource, introspector port.SchemaIntrospector, logger *slog.Logger) *SchemaService {
	return &SchemaService{
		broker:       broker,
		introspector: introspector,
		logger:       logger,
	}
}

// Snapshot returns the tables, views and columns of the user's database.
func (s *SchemaService) Snapshot(ctx context.Context, userID string) (*domain.SchemaSnapshot, error) {
	pool, err := s.broker.GetConnection(ctx, userID)
	if err != nil {
		return nil, err
	}

	snap, err := s.introspector.Snapshot(ctx, pool)
	if err != nil {
		return nil, domain.Kind(domain.ErrSchema, err)
	}
	return snap, nil
}
