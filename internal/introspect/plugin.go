package introspect

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/databao-dev/contextd/internal/contexterr"
	"github.com/databao-dev/contextd/internal/plugin"
)

// DatabasePlugin adapts the Database Introspection Framework into the
// build plugin contract (spec §4.8), so a database datasource
// participates in a build the same way any other plugin does: Execute
// builds a per-connection Dialect from the datasource's config and runs
// it, DivideIntoChunks turns the resulting Result into one embeddable
// chunk per table plus one per column.
//
// One DatabasePlugin instance is registered per full_type
// (databases/sqlite, databases/postgres, ...) and builds a fresh Dialect
// per Execute call because each datasource config carries its own
// connection details (spec §6: "dialect-specific connection:"); the
// Dialect itself is stateless connection configuration, not a live
// connection, so constructing one per call is cheap.
//
// Grounded on original_source's database_chunker.py's build_database_chunks,
// translated from a free function over a DatabaseIntrospectionResult into a
// method on the Go Introspector's own Result type.
type DatabasePlugin struct {
	FullType string
	// NewDialect builds the Dialect for one datasource's connection config.
	NewDialect func(config map[string]any) (Dialect, error)
	Logger     *slog.Logger
}

var _ plugin.Plugin = (*DatabasePlugin)(nil)
var _ plugin.ConnectionChecker = (*DatabasePlugin)(nil)
var _ plugin.SQLRunner = (*DatabasePlugin)(nil)

func (p *DatabasePlugin) FullTypes() []string { return []string{p.FullType} }

func (p *DatabasePlugin) introspector(config map[string]any) (*Introspector, error) {
	dialect, err := p.NewDialect(config)
	if err != nil {
		return nil, err
	}
	return NewIntrospector(dialect, p.Logger), nil
}

// Execute runs IntrospectDatabase with the scope carried in config (spec
// §6 "Config file shape": "dialect-specific connection: (and optional
// introspection_scope:)").
func (p *DatabasePlugin) Execute(ctx context.Context, fullType, name string, config map[string]any) (plugin.ExecutionResult, error) {
	introspector, err := p.introspector(config)
	if err != nil {
		return plugin.ExecutionResult{}, err
	}
	scope := scopeFromConfig(config)
	result, err := introspector.IntrospectDatabase(ctx, scope)
	if err != nil {
		return plugin.ExecutionResult{}, err
	}
	return plugin.ExecutionResult{
		Name:   name,
		Type:   fullType,
		Result: result,
	}, nil
}

func (p *DatabasePlugin) CheckConnection(ctx context.Context, fullType, name string, config map[string]any) error {
	introspector, err := p.introspector(config)
	if err != nil {
		return err
	}
	return introspector.CheckConnection(ctx)
}

func (p *DatabasePlugin) RunSQL(ctx context.Context, sqlText string, params []any, readOnly bool) (plugin.SQLExecutionResult, error) {
	return plugin.SQLExecutionResult{}, contexterr.NotSupportedf("run_sql must be called through a datasource-bound SQLRunner, not the registry-level DatabasePlugin")
}

// DivideIntoChunks turns a Result into one EmbeddableChunk per table and
// one per column (spec §4.8, grounded on database_chunker.py).
func (p *DatabasePlugin) DivideIntoChunks(ctx context.Context, execResult plugin.ExecutionResult) ([]plugin.EmbeddableChunk, error) {
	result, ok := execResult.Result.(Result)
	if !ok {
		return nil, contexterr.Invariantf("database plugin: execution result is not an introspect.Result")
	}

	var chunks []plugin.EmbeddableChunk
	for _, catalog := range result.Catalogs {
		for _, schema := range catalog.Schemas {
			for _, table := range schema.Tables {
				chunks = append(chunks, plugin.EmbeddableChunk{
					EmbeddableText: buildTableChunkText(table),
					Content: TableChunkContent{
						CatalogName: catalog.Name,
						SchemaName:  schema.Name,
						Table:       table,
					},
				})
				for _, column := range table.Columns {
					chunks = append(chunks, plugin.EmbeddableChunk{
						EmbeddableText: buildColumnChunkText(table, column),
						Content: ColumnChunkContent{
							CatalogName: catalog.Name,
							SchemaName:  schema.Name,
							TableName:   table.Name,
							Column:      column,
						},
					})
				}
			}
		}
	}
	return chunks, nil
}

// TableChunkContent is the chunk content object for a table-level chunk.
type TableChunkContent struct {
	CatalogName string
	SchemaName  string
	Table       Table
}

// ColumnChunkContent is the chunk content object for a column-level chunk.
type ColumnChunkContent struct {
	CatalogName string
	SchemaName  string
	TableName   string
	Column      Column
}

func scopeFromConfig(config map[string]any) *Scope {
	raw, ok := config["introspection_scope"].(map[string]any)
	if !ok {
		return nil
	}
	scope := &Scope{}
	scope.Include = scopeRulesFromConfig(raw["include"])
	scope.Exclude = scopeRulesFromConfig(raw["exclude"])
	return scope
}

func scopeRulesFromConfig(raw any) []ScopeRule {
	entries, ok := raw.([]any)
	if !ok {
		return nil
	}
	var rules []ScopeRule
	for _, e := range entries {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		rule := ScopeRule{}
		if catalog, ok := m["catalog"].(string); ok {
			rule.Catalog = catalog
		}
		if schema, ok := m["schema"].(string); ok {
			rule.Schema = schema
		}
		rules = append(rules, rule)
	}
	return rules
}

func buildTableChunkText(table Table) string {
	sections := []string{
		fmt.Sprintf("%s is a database %s with %d columns", table.Name, strings.ToLower(string(table.Kind)), len(table.Columns)),
		tablePrimaryKeyText(table),
		tableForeignKeysSection(table),
		tableAllColumnsSection(table),
		table.Description,
	}
	return joinNonEmpty(". ", sections)
}

func tableAllColumnsSection(table Table) string {
	names := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		names[i] = c.Name
	}
	return fmt.Sprintf("Here is the full list of columns for the %s: %s", strings.ToLower(string(table.Kind)), strings.Join(names, ", "))
}

func tablePrimaryKeyText(table Table) string {
	if table.PrimaryKey == nil {
		return ""
	}
	if len(table.PrimaryKey.Columns) == 1 {
		pk := table.PrimaryKey.Columns[0]
		for _, c := range table.Columns {
			if c.Name == pk {
				return fmt.Sprintf("Its primary key is the column %s of type %s", pk, c.DataType)
			}
		}
		return ""
	}
	return fmt.Sprintf("Its primary key is composed of the columns (%s)", strings.Join(table.PrimaryKey.Columns, ", "))
}

func tableForeignKeysSection(table Table) string {
	if len(table.ForeignKeys) == 0 {
		return ""
	}
	targets := make([]string, len(table.ForeignKeys))
	for i, fk := range table.ForeignKeys {
		targets[i] = fk.ReferencedTable
	}
	joined := joinWithLastSeparator(", ", " and ", targets)
	if len(table.ForeignKeys) == 1 {
		return fmt.Sprintf("The column has a foreign key to %s", joined)
	}
	return fmt.Sprintf("The %s has foreign keys to %s", strings.ToLower(string(table.Kind)), joined)
}

func buildColumnChunkText(table Table, column Column) string {
	nullText := " not"
	if column.Nullable {
		nullText = ""
	}
	sections := []string{
		fmt.Sprintf("%s is a column with type %s in the %s %s", column.Name, column.DataType, strings.ToLower(string(table.Kind)), table.Name),
		fmt.Sprintf("It can%s contain null values", nullText),
		columnPrimaryKeySection(table, column),
		columnForeignKeySection(table, column),
		columnGeneratedSection(column),
		column.Description,
	}
	return joinNonEmpty(". ", sections)
}

func columnGeneratedSection(column Column) string {
	switch column.Generated {
	case "":
		return ""
	case "identity":
		return "This column is an identity column"
	default:
		return "This column is a generated column"
	}
}

func columnPrimaryKeySection(table Table, column Column) string {
	if table.PrimaryKey == nil {
		return ""
	}
	if len(table.PrimaryKey.Columns) == 1 && table.PrimaryKey.Columns[0] == column.Name {
		return fmt.Sprintf("It is the primary key of the %s", strings.ToLower(string(table.Kind)))
	}
	for _, c := range table.PrimaryKey.Columns {
		if c == column.Name {
			return fmt.Sprintf("It is part of the primary key of the %s", strings.ToLower(string(table.Kind)))
		}
	}
	return ""
}

func columnForeignKeySection(table Table, column Column) string {
	if len(table.ForeignKeys) == 0 {
		return ""
	}

	var single, complex []ForeignKey
	for _, fk := range table.ForeignKeys {
		partOf := false
		for _, m := range fk.Mapping {
			if m.FromColumn == column.Name {
				partOf = true
				break
			}
		}
		if !partOf {
			continue
		}
		if len(fk.Mapping) == 1 {
			single = append(single, fk)
		} else {
			complex = append(complex, fk)
		}
	}

	var parts []string
	if len(single) > 0 {
		targets := make([]string, len(single))
		for i, fk := range single {
			targets[i] = fmt.Sprintf("%s.%s", fk.ReferencedTable, fk.Mapping[0].ToColumn)
		}
		parts = append(parts, fmt.Sprintf("This column is a foreign key to %s", joinWithLastSeparator(", ", " and ", targets)))
	}
	if len(complex) > 0 {
		targets := make([]string, len(complex))
		for i, fk := range complex {
			targets[i] = fk.ReferencedTable
		}
		parts = append(parts, fmt.Sprintf("This column is part of a foreign key to %s", joinWithLastSeparator(", ", " and ", targets)))
	}
	return joinNonEmpty(". ", parts)
}

func joinNonEmpty(sep string, parts []string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, sep)
}

func joinWithLastSeparator(sep, lastSep string, items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], sep) + lastSep + items[len(items)-1]
	}
}
