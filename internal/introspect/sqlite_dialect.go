package introspect

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO

	"github.com/databao-dev/contextd/internal/contexterr"
)

const sqlitePseudoCatalog = "main"

// SQLiteDialect introspects a SQLite database via sqlite_master and the
// PRAGMA family, grounded on
// original_source/.../plugins/databases/sqlite_introspector.py. It doubles
// as a second concrete dialect (alongside PostgresDialect) to exercise the
// framework's multi-dialect contract without requiring a live Postgres
// server in tests.
type SQLiteDialect struct {
	DatabasePath string
}

var _ Dialect = (*SQLiteDialect)(nil)

func (d *SQLiteDialect) SupportsCatalogs() bool { return false }

func (d *SQLiteDialect) IgnoredSchemas() []string { return []string{"temp"} }

func (d *SQLiteDialect) Connect(ctx context.Context, catalog string) (Conn, error) {
	db, err := sql.Open("sqlite", d.DatabasePath)
	if err != nil {
		return nil, contexterr.Wrap(contexterr.KindTransientProvider, err, "sqlite: open %s", d.DatabasePath)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, contexterr.Wrap(contexterr.KindTransientProvider, err, "sqlite: connect %s", d.DatabasePath)
	}
	return &sqlConn{db: db}, nil
}

func (d *SQLiteDialect) Catalogs(ctx context.Context, conn Conn) ([]string, error) {
	return []string{sqlitePseudoCatalog}, nil
}

func (d *SQLiteDialect) SchemasForCatalog(ctx context.Context, conn Conn, catalog string) ([]string, error) {
	return []string{sqlitePseudoCatalog}, nil
}

func (d *SQLiteDialect) CollectCatalogModel(ctx context.Context, conn Conn, catalog string, schemas []string) ([]Schema, error) {
	var rows componentRows
	var err error

	if rows.relations, err = conn.FetchAllDicts(ctx, sqliteRelationsSQL, nil); err != nil {
		return nil, err
	}
	if rows.columns, err = conn.FetchAllDicts(ctx, sqliteColumnsSQL, nil); err != nil {
		return nil, err
	}
	if rows.primaryKeys, err = conn.FetchAllDicts(ctx, sqlitePrimaryKeysSQL, nil); err != nil {
		return nil, err
	}
	if rows.foreignKeys, err = conn.FetchAllDicts(ctx, sqliteForeignKeysSQL, nil); err != nil {
		return nil, err
	}
	if rows.indexes, err = conn.FetchAllDicts(ctx, sqliteIndexesSQL, nil); err != nil {
		return nil, err
	}

	return buildSchemas([]string{sqlitePseudoCatalog}, rows), nil
}

func (d *SQLiteDialect) SampleRows(ctx context.Context, conn Conn, catalog, schema, table string, limit int) ([]map[string]any, error) {
	sql := fmt.Sprintf("SELECT * FROM %s LIMIT %d", quoteIdent(table), limit)
	return conn.FetchAllDicts(ctx, sql, nil)
}

func (d *SQLiteDialect) RunSQL(ctx context.Context, sqlText string, params []any, readOnly bool) (ExecutionResult, error) {
	if readOnly {
		return ExecutionResult{}, contexterr.NotSupportedf("sqlite dialect does not enforce read_only")
	}
	conn, err := d.Connect(ctx, "")
	if err != nil {
		return ExecutionResult{}, err
	}
	defer conn.Close()

	rows, err := conn.FetchAllDicts(ctx, sqlText, params)
	if err != nil {
		return ExecutionResult{}, err
	}
	return dictsToExecutionResult(rows), nil
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}

func dictsToExecutionResult(rows []map[string]any) ExecutionResult {
	if len(rows) == 0 {
		return ExecutionResult{}
	}
	columns := make([]string, 0, len(rows[0]))
	for col := range rows[0] {
		columns = append(columns, col)
	}
	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		row := make([]any, len(columns))
		for i, col := range columns {
			row[i] = r[col]
		}
		out = append(out, row)
	}
	return ExecutionResult{Columns: columns, Rows: out}
}

const sqliteRelationsSQL = `
SELECT
	'main' AS schema_name,
	m.name AS table_name,
	CASE m.type WHEN 'view' THEN 'view' ELSE 'table' END AS kind,
	NULL AS description
FROM sqlite_master m
WHERE m.type IN ('table', 'view') AND m.name NOT LIKE 'sqlite_%'
ORDER BY m.name`

const sqliteColumnsSQL = `
SELECT
	'main' AS schema_name,
	m.name AS table_name,
	c.name AS column_name,
	(c."cid" + 1) AS ordinal_position,
	COALESCE(c.type, '') AS data_type,
	CASE WHEN c."notnull" = 0 THEN 1 ELSE 0 END AS nullable,
	c.dflt_value AS default_expression
FROM sqlite_master m
JOIN pragma_table_info(m.name) c
WHERE m.type IN ('table', 'view') AND m.name NOT LIKE 'sqlite_%'
ORDER BY m.name, c."cid"`

const sqlitePrimaryKeysSQL = `
SELECT
	'main' AS schema_name,
	m.name AS table_name,
	NULL AS constraint_name,
	c.name AS column_name
FROM sqlite_master m
JOIN pragma_table_info(m.name) c ON c.pk > 0
WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
ORDER BY m.name, c.pk`

const sqliteForeignKeysSQL = `
SELECT
	'main' AS schema_name,
	m.name AS table_name,
	'fk_' || m.name || '_' || fk."id" AS constraint_name,
	fk."from" AS from_column,
	fk."to" AS to_column,
	fk."table" AS referenced_table
FROM sqlite_master m
JOIN pragma_foreign_key_list(m.name) fk
WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
ORDER BY m.name, fk."id", fk."seq"`

const sqliteIndexesSQL = `
SELECT
	'main' AS schema_name,
	m.name AS table_name,
	il.name AS index_name,
	ii.name AS column_name,
	CASE WHEN il."unique" = 1 THEN 1 ELSE 0 END AS "unique"
FROM sqlite_master m
JOIN pragma_index_list(m.name) il
JOIN pragma_index_info(il.name) ii
WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%' AND il.origin = 'c'
ORDER BY m.name, il.name, ii.seqno`

// sqlConn adapts a *sql.DB to the Conn interface shared by every dialect.
type sqlConn struct {
	db *sql.DB
}

func (c *sqlConn) FetchAllDicts(ctx context.Context, query string, params []any) ([]map[string]any, error) {
	rows, err := c.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, contexterr.Wrap(contexterr.KindPermanentProvider, err, "query failed")
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (c *sqlConn) Close() error { return c.db.Close() }
