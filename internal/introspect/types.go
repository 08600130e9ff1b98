// Package introspect implements the Database Introspection Framework (spec
// §4.7): a provider-agnostic engine that walks catalogs, schemas, and
// tables through a uniform dialect protocol and produces a normalized
// IntrospectionResult tree, grounded on
// original_source/.../plugins/databases/base_introspector.py translated
// from an ABC with template-method hooks into composition over a Dialect
// interface.
package introspect

// Kind classifies a relation the way the original's DatasetKind enum does.
type Kind string

const (
	KindTable             Kind = "table"
	KindView              Kind = "view"
	KindMaterializedView  Kind = "materialized_view"
	KindExternalTable     Kind = "external_table"
)

// Column is one column of a Table (spec §3 "IntrospectionResult").
type Column struct {
	Name               string
	DataType           string
	Nullable           bool
	Description        string
	DefaultExpression  string
	Generated          string // "identity", "computed", or ""
}

// KeyConstraint backs both PrimaryKey and each entry of UniqueConstraints.
type KeyConstraint struct {
	Name    string
	Columns []string
}

// ForeignKeyColumnMap is one from→to column pair of a ForeignKey mapping.
type ForeignKeyColumnMap struct {
	FromColumn string
	ToColumn   string
}

// ForeignKey references another table by fully qualified string name, not
// a pointer (spec §8 "Cyclic references... Foreign keys are references by
// fully qualified string name, not pointers").
type ForeignKey struct {
	Name             string
	Mapping          []ForeignKeyColumnMap
	ReferencedTable  string
}

// CheckConstraint is a named or anonymous CHECK expression.
type CheckConstraint struct {
	Name       string
	Expression string
}

// Index describes one index over a Table.
type Index struct {
	Name    string
	Columns []string
	Unique  bool
	Method  string
}

// PartitionInfo describes a partitioned table's child relations.
type PartitionInfo struct {
	PartitionTables []string
}

// TableStats holds engine- or sample-derived row count estimates.
type TableStats struct {
	RowCountEstimate int64
	Method           string // "engine_stats", "sampled", "full_scan"
}

// Table is one relation within a Schema (spec §3).
type Table struct {
	Name              string
	Kind              Kind
	Description       string
	Columns           []Column
	PrimaryKey        *KeyConstraint
	UniqueConstraints []KeyConstraint
	ForeignKeys       []ForeignKey
	CheckConstraints  []CheckConstraint
	Indexes           []Index
	PartitionInfo     *PartitionInfo
	Stats             *TableStats
	Samples           []map[string]any
}

// Schema groups Tables within a Catalog.
type Schema struct {
	Name   string
	Tables []Table
}

// Catalog is the top level of the introspection tree (a SQL "database" in
// dialects that support catalogs, or a single pseudo-catalog otherwise).
type Catalog struct {
	Name    string
	Schemas []Schema
}

// Result is the immutable output of IntrospectDatabase (spec §3
// "IntrospectionResult... Immutable once produced by a plugin; input to
// chunking").
type Result struct {
	Catalogs []Catalog
}

// SQLQuery pairs a parameterized statement with its bind arguments, the Go
// analogue of the original's SQLQuery dataclass.
type SQLQuery struct {
	SQL    string
	Params []any
}

// ExecutionResult is the generic tabular shape run_sql returns (spec §4.7
// "Run-SQL contract").
type ExecutionResult struct {
	Columns []string
	Rows    [][]any
}

// componentRows is the raw, ungrouped row output of one dialect's
// collectCatalogModel call, keyed by logical group (spec §4.7 step 4a:
// "relations, columns, primary_keys, uniques, checks, foreign_keys,
// indexes, partitions, table_stats, column_stats — each optional per
// dialect"). Each row is a generic string-keyed map, mirroring the
// original's "rows as dictionaries keyed by lower-case column name".
type componentRows struct {
	relations   []map[string]any
	columns     []map[string]any
	primaryKeys []map[string]any
	uniques     []map[string]any
	checks      []map[string]any
	foreignKeys []map[string]any
	indexes     []map[string]any
	partitions  []map[string]any
	tableStats  []map[string]any
}
