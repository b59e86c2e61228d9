package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ColdranAI/sqlbase/internal/core/domain"
)

// Introspector reads table and view metadata from a user's database.
// Column lookups that fail (permissions, odd catalog state) degrade to a
// relation without columns instead of failing the snapshot.
type Introspector struct {
	logger *slog.Logger
}

func NewIntrospector(logger *slog.Logger) *Introspector {
	return &Introspector{logger: logger}
}

// Snapshot lists every non-system base table and view with their columns.
// An empty database yields empty slices, not nil.
func (in *Introspector) Snapshot(ctx context.Context, pool *pgxpool.Pool) (*domain.SchemaSnapshot, error) {
	tables, err := in.listTables(ctx, pool)
	if err != nil {
		return nil, err
	}
	views, err := in.listViews(ctx, pool)
	if err != nil {
		return nil, err
	}

	for i := range tables {
		tables[i].Columns = in.fetchColumns(ctx, pool, tables[i].Schema, tables[i].Name)
	}
	for i := range views {
		views[i].Columns = in.fetchColumns(ctx, pool, views[i].Schema, views[i].Name)
	}

	return &domain.SchemaSnapshot{Tables: tables, Views: views}, nil
}

func (in *Introspector) listTables(ctx context.Context, pool *pgxpool.Pool) ([]domain.TableInfo, error) {
	rows, err := pool.Query(ctx, queryListTables)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	tables := make([]domain.TableInfo, 0)
	for rows.Next() {
		var t domain.TableInfo
		var liveRows *int64
		if err := rows.Scan(&t.Schema, &t.Name, &liveRows); err != nil {
			return nil, fmt.Errorf("scanning table row: %w", err)
		}
		if liveRows != nil {
			t.RowCount = *liveRows
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tables: %w", err)
	}
	return tables, nil
}

func (in *Introspector) listViews(ctx context.Context, pool *pgxpool.Pool) ([]domain.ViewInfo, error) {
	rows, err := pool.Query(ctx, queryListViews)
	if err != nil {
		return nil, fmt.Errorf("listing views: %w", err)
	}
	defer rows.Close()

	views := make([]domain.ViewInfo, 0)
	for rows.Next() {
		var v domain.ViewInfo
		if err := rows.Scan(&v.Schema, &v.Name, &v.Definition); err != nil {
			return nil, fmt.Errorf("scanning view row: %w", err)
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating views: %w", err)
	}
	return views, nil
}

// fetchColumns returns the relation's columns in ordinal order. Failures
// are logged and swallowed.
func (in *Introspector) fetchColumns(ctx context.Context, pool *pgxpool.Pool, schema, name string) []domain.ColumnInfo {
	rows, err := pool.Query(ctx, queryColumns, schema, name)
	if err != nil {
		in.logger.Warn("column introspection failed",
			slog.String("schema", schema),
			slog.String("relation", name),
			slog.String("error", err.Error()),
		)
		return nil
	}
	defer rows.Close()

	var cols []domain.ColumnInfo
	for rows.Next() {
		var col domain.ColumnInfo
		if err := rows.Scan(&col.Name, &col.Type, &col.Nullable, &col.DefaultValue, &col.IsPrimaryKey, &col.IsForeignKey); err != nil {
			in.logger.Warn("column scan failed",
				slog.String("schema", schema),
				slog.String("relation", name),
				slog.String("error", err.Error()),
			)
			return nil
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		in.logger.Warn("column introspection failed",
			slog.String("schema", schema),
			slog.String("relation", name),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return cols
}
