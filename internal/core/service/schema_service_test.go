package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ColdranAI/sqlbase/internal/core/domain"
)

type stubIntrospector struct {
	snapFn func(ctx context.Context, pool *pgxpool.Pool) (*domain.SchemaSnapshot, error)
}

func (s *stubIntrospector) Snapshot(ctx context.Context, pool *pgxpool.Pool) (*domain.SchemaSnapshot, error) {
	if s.snapFn != nil {
		return s.snapFn(ctx, pool)
	}
	return &domain.SchemaSnapshot{}, nil
}

func TestSchemaService_Snapshot(t *testing.T) {
	pool, err := newLazyPool(context.Background())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	source := &stubSource{getFn: func(context.Context, string) (*pgxpool.Pool, error) {
		return pool, nil
	}}
	want := &domain.SchemaSnapshot{
		Tables: []domain.TableInfo{{
			Name:   "orders",
			Schema: "public",
			Columns: []domain.ColumnInfo{
				{Name: "id", Type: "bigint", IsPrimaryKey: true},
				{Name: "total", Type: "numeric", Nullable: true},
			},
			RowCount: 1204,
		}},
		Views: []domain.ViewInfo{{
			Name:       "paid_orders",
			Schema:     "public",
			Definition: "SELECT * FROM orders WHERE status = 'paid'",
		}},
	}
	introspector := &stubIntrospector{snapFn: func(_ context.Context, gotPool *pgxpool.Pool) (*domain.SchemaSnapshot, error) {
		assert.Same(t, pool, gotPool)
		return want, nil
	}}
	svc := NewSchemaService(source, introspector, testLogger())

	snap, err := svc.Snapshot(context.Background(), "user1")
	require.NoError(t, err)
	assert.Same(t, want, snap)
}

func TestSchemaService_Snapshot_IntrospectionError(t *testing.T) {
	pool, err := newLazyPool(context.Background())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	source := &stubSource{getFn: func(context.Context, string) (*pgxpool.Pool, error) {
		return pool, nil
	}}
	introspector := &stubIntrospector{snapFn: func(context.Context, *pgxpool.Pool) (*domain.SchemaSnapshot, error) {
		return nil, fmt.Errorf("permission denied for schema public")
	}}
	svc := NewSchemaService(source, introspector, testLogger())

	_, err = svc.Snapshot(context.Background(), "user1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSchema)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestSchemaService_Snapshot_NoConnection(t *testing.T) {
	source := &stubSource{getFn: func(context.Context, string) (*pgxpool.Pool, error) {
		return nil, domain.ErrConfigNotFound
	}}
	svc := NewSchemaService(source, &stubIntrospector{}, testLogger())

	_, err := svc.Snapshot(context.Background(), "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigNotFound)
}
