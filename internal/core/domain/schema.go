package domain

// SchemaSnapshot describes the shape of a connected database at one point
// in time. It is recomputed on every request and never cached.
type SchemaSnapshot struct {
	Tables []TableInfo `json:"tables"`
	Views  []ViewInfo  `json:"views"`
}

// TableInfo is one base table. RowCount is the estimate the database
// maintains for the planner, not a live count; it is omitted when the
// statistics view has no row for the table.
type TableInfo struct {
	Name     string       `json:"name"`
	Schema   string       `json:"schema"`
	Columns  []ColumnInfo `json:"columns"`
	RowCount int64        `json:"row_count,omitempty"`
}

// ViewInfo is one view plus its defining query text.
type ViewInfo struct {
	Name       string       `json:"name"`
	Schema     string       `json:"schema"`
	Definition string       `json:"definition"`
	Columns    []ColumnInfo `json:"columns"`
}

// ColumnInfo is one column of a table or view.
type ColumnInfo struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Nullable     bool   `json:"nullable"`
	DefaultValue string `json:"default_value,omitempty"`
	IsPrimaryKey bool   `json:"is_primary_key"`
	IsForeignKey bool   `json:"is_foreign_key"`
}
