package postgres

const queryListTables = `
	SELECT
		t.table_schema,
		t.table_name,
		s.n_live_tup
	FROM information_schema.tables t
	LEFT JOIN pg_stat_user_tables s
		ON s.schemaname = t.table_schema AND s.relname = t.table_name
	WHERE t.table_schema NOT IN ('pg_catalog', 'information_schema')
		AND t.table_type = 'BASE TABLE'
	ORDER BY t.table_schema, t.table_name`

const queryListViews = `
	SELECT
		v.table_schema,
		v.table_name,
		COALESCE(v.view_definition, '')
	FROM information_schema.views v
	WHERE v.table_schema NOT IN ('pg_catalog', 'information_schema')
	ORDER BY v.table_schema, v.table_name`

// queryColumns flags key membership inline so one round trip per relation
// covers columns, primary keys and foreign keys.
const queryColumns = `
	SELECT
		c.column_name,
		c.data_type,
		c.is_nullable = 'YES',
		COALESCE(c.column_default, ''),
		EXISTS (
			SELECT 1
			FROM pg_index i
			JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
			WHERE i.indrelid = (quote_ident(c.table_schema) || '.' || quote_ident(c.table_name))::regclass
				AND i.indisprimary
				AND a.attname = c.column_name
		) AS is_primary_key,
		EXISTS (
			SELECT 1
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
			WHERE tc.constraint_type = 'FOREIGN KEY'
				AND tc.table_schema = c.table_schema
				AND tc.table_name = c.table_name
				AND kcu.column_name = c.column_name
		) AS is_foreign_key
	FROM information_schema.columns c
	WHERE c.table_schema = $1 AND c.table_name = $2
	ORDER BY c.ordinal_position`
