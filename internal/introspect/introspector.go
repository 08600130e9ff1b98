package introspect

import (
	"context"
	"log/slog"

	"github.com/databao-dev/contextd/internal/contexterr"
)

// SampleLimit is the default number of sample rows collected per table
// (spec §4.7 "_SAMPLE_LIMIT = 5").
const SampleLimit = 5

var ignoredSchemasAlways = []string{"information_schema"}

// Introspector runs IntrospectDatabase against one Dialect (spec §4.7
// "Abstract flow in BaseIntrospector.introspect_database(file_config)"),
// grounded on base_introspector.py's BaseIntrospector, translated from an
// ABC with template-method hooks into composition over the Dialect
// interface.
type Introspector struct {
	dialect Dialect
	logger  *slog.Logger
}

// NewIntrospector builds an Introspector for one dialect.
func NewIntrospector(dialect Dialect, logger *slog.Logger) *Introspector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Introspector{dialect: dialect, logger: logger}
}

// CheckConnection opens and immediately closes a connection, the
// introspection-side half of the plugin ConnectionChecker capability
// (spec §4.7 "check_connection").
func (in *Introspector) CheckConnection(ctx context.Context) error {
	conn, err := in.dialect.Connect(ctx, "")
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.FetchAllDicts(ctx, "SELECT 1", nil)
	return err
}

// IntrospectDatabase produces a uniform Result from the dialect (spec §4.7
// steps 1–5).
func (in *Introspector) IntrospectDatabase(ctx context.Context, scope *Scope) (Result, error) {
	denied := append(append([]string{}, ignoredSchemasAlways...), in.dialect.IgnoredSchemas()...)
	matcher := NewScopeMatcher(scope, denied)

	rootConn, err := in.dialect.Connect(ctx, "")
	if err != nil {
		return Result{}, err
	}
	catalogs, err := in.dialect.Catalogs(ctx, rootConn)
	rootConn.Close()
	if err != nil {
		return Result{}, err
	}

	schemasPerCatalog := make(map[string][]string, len(catalogs))
	for _, catalog := range catalogs {
		conn, err := in.dialect.Connect(ctx, catalog)
		if err != nil {
			return Result{}, err
		}
		schemas, err := in.dialect.SchemasForCatalog(ctx, conn, catalog)
		conn.Close()
		if err != nil {
			return Result{}, err
		}
		schemasPerCatalog[catalog] = schemas
	}

	filtered := matcher.FilterScopes(catalogs, schemasPerCatalog)

	var introspected []Catalog
	for _, catalog := range filtered.Catalogs {
		schemasToIntrospect := filtered.SchemasPerCatalog[catalog]
		if len(schemasToIntrospect) == 0 {
			continue
		}

		conn, err := in.dialect.Connect(ctx, catalog)
		if err != nil {
			return Result{}, err
		}

		schemas, err := in.dialect.CollectCatalogModel(ctx, conn, catalog, schemasToIntrospect)
		if err != nil {
			conn.Close()
			return Result{}, err
		}
		if len(schemas) == 0 {
			conn.Close()
			continue
		}

		in.collectSamples(ctx, conn, catalog, schemas)
		conn.Close()

		introspected = append(introspected, Catalog{Name: catalog, Schemas: schemas})
	}

	return Result{Catalogs: introspected}, nil
}

// collectSamples fills each table's Samples in place, logging and
// swallowing per-table errors (spec §4.7 step 4b: "logging-and-swallowing
// per-table errors").
func (in *Introspector) collectSamples(ctx context.Context, conn Conn, catalog string, schemas []Schema) {
	if SampleLimit <= 0 {
		return
	}
	for si := range schemas {
		for ti := range schemas[si].Tables {
			table := &schemas[si].Tables[ti]
			samples, err := in.dialect.SampleRows(ctx, conn, catalog, schemas[si].Name, table.Name, SampleLimit)
			if err != nil {
				if contexterr.IsKind(err, contexterr.KindNotSupported) {
					continue
				}
				in.logger.Warn("failed to fetch samples for table",
					"catalog", catalog, "schema", schemas[si].Name, "table", table.Name, "error", err)
				continue
			}
			table.Samples = samples
		}
	}
}

// RunSQL executes sql and returns its tabular result (spec §4.7 "Run-SQL
// contract"). read_only enforcement is dialect-specific: PostgresDialect
// runs the statement in a READ ONLY transaction and reports a rejected
// statement as a PermissionError; SQLiteDialect does not enforce it and
// returns a NotSupported error when read_only is set.
func (in *Introspector) RunSQL(ctx context.Context, sql string, params []any, readOnly bool) (ExecutionResult, error) {
	runner, ok := in.dialect.(SQLRunnerDialect)
	if !ok {
		return ExecutionResult{}, contexterr.NotSupportedf("dialect does not support run_sql")
	}
	return runner.RunSQL(ctx, sql, params, readOnly)
}

// SQLRunnerDialect is an optional Dialect capability for ad hoc SQL
// execution (spec §4.7 "Run-SQL contract").
type SQLRunnerDialect interface {
	RunSQL(ctx context.Context, sql string, params []any, readOnly bool) (ExecutionResult, error)
}
