package introspect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn lets CollectCatalogModel/SampleRows be exercised against
// canned rows without a live PostgreSQL server — PostgresDialect only
// talks to its Conn through the shared interface.
type fakeConn struct {
	rowsBySQL map[string][]map[string]any
}

func (f *fakeConn) FetchAllDicts(_ context.Context, sql string, _ []any) ([]map[string]any, error) {
	return f.rowsBySQL[sql], nil
}

func (f *fakeConn) Close() error { return nil }

func TestPostgresDialect_SupportsCatalogsAndIgnoredSchemas(t *testing.T) {
	d := &PostgresDialect{}
	assert.True(t, d.SupportsCatalogs())
	assert.Contains(t, d.IgnoredSchemas(), "pg_catalog")
	assert.Contains(t, d.IgnoredSchemas(), "pg_toast")
}

func TestPostgresDialect_CollectCatalogModel_BuildsTablesFromComponentRows(t *testing.T) {
	conn := &fakeConn{rowsBySQL: map[string][]map[string]any{
		pgRelationsSQL: {
			{"schema_name": "public", "table_name": "users", "kind": "table"},
		},
		pgColumnsSQL: {
			{"schema_name": "public", "table_name": "users", "column_name": "id", "ordinal_position": int64(1), "data_type": "integer", "nullable": false},
			{"schema_name": "public", "table_name": "users", "column_name": "email", "ordinal_position": int64(2), "data_type": "text", "nullable": false},
		},
		pgPrimaryKeysSQL: {
			{"schema_name": "public", "table_name": "users", "constraint_name": "users_pkey", "column_name": "id"},
		},
	}}

	d := &PostgresDialect{}
	schemas, err := d.CollectCatalogModel(context.Background(), conn, "appdb", []string{"public"})
	require.NoError(t, err)
	require.Len(t, schemas, 1)
	require.Len(t, schemas[0].Tables, 1)

	users := schemas[0].Tables[0]
	assert.Equal(t, "users", users.Name)
	require.Len(t, users.Columns, 2)
	require.NotNil(t, users.PrimaryKey)
	assert.Equal(t, []string{"id"}, users.PrimaryKey.Columns)
}
