package introspect

import "context"

// Conn is an open, catalog-scoped database connection. Dialects decide
// what concrete type backs it (e.g. *sql.DB, *sql.Conn, *pgxpool.Conn);
// the orchestration layer only ever calls FetchAllDicts/Close through this
// interface, mirroring the original's untyped "connection" parameter.
type Conn interface {
	// FetchAllDicts runs sql with params and returns rows as maps keyed by
	// column name as the driver reports it; names are not case-folded.
	// Every component query aliases its columns in lower case, so those
	// rows are keyed by lower-case column name (spec §4.7 step 4a).
	FetchAllDicts(ctx context.Context, sql string, params []any) ([]map[string]any, error)
	Close() error
}

// Dialect is the set of abstract methods a concrete SQL engine must
// implement (spec §4.7's BaseIntrospector abstract methods: _connect,
// _fetchall_dicts folded into Conn, _get_catalogs,
// collect_catalog_model, optionally _sql_sample_rows).
type Dialect interface {
	// SupportsCatalogs reports whether this engine has a catalog level
	// above schema (e.g. PostgreSQL databases) or only schemas (e.g.
	// SQLite, which uses a single pseudo-catalog, spec §4.7 step 2).
	SupportsCatalogs() bool

	// IgnoredSchemas returns schemas this dialect always denies, beyond
	// the framework-wide "information_schema" (spec §4.7 "Denied schemas
	// (information_schema, dialect-specifics like pg_catalog, system,
	// etc.) are never included").
	IgnoredSchemas() []string

	// Connect opens a connection, optionally scoped to catalog (spec §4.7
	// step 2/4: "If the catalog argument is provided, the connection is
	// 'scoped' to that catalog").
	Connect(ctx context.Context, catalog string) (Conn, error)

	// Catalogs lists the catalogs visible on conn, or a single
	// pseudo-catalog name if SupportsCatalogs() is false (spec §4.7 step
	// 2).
	Catalogs(ctx context.Context, conn Conn) ([]string, error)

	// SchemasForCatalog lists catalog's schemas (spec §4.7 step 3).
	SchemasForCatalog(ctx context.Context, conn Conn, catalog string) ([]string, error)

	// CollectCatalogModel issues the dialect's component queries for the
	// given in-scope schemas and returns normalized Schema aggregates, or
	// nil if the catalog yielded nothing (spec §4.7 step 4a).
	CollectCatalogModel(ctx context.Context, conn Conn, catalog string, schemas []string) ([]Schema, error)

	// SampleRows fetches up to limit sample rows for one table, or an
	// error of kind contexterr.KindNotSupported if this dialect has no
	// sampling query (spec §4.7 step 4b).
	SampleRows(ctx context.Context, conn Conn, catalog, schema, table string, limit int) ([]map[string]any, error)
}
