package introspect

import "github.com/databao-dev/contextd/internal/contexterr"

// NewSQLiteDialectFromConfig builds a SQLiteDialect from a datasource's
// connection config (spec §6 "Config file shape"): `connection: {path:
// <file>}`.
func NewSQLiteDialectFromConfig(config map[string]any) (Dialect, error) {
	conn, _ := config["connection"].(map[string]any)
	path, _ := conn["path"].(string)
	if path == "" {
		return nil, contexterr.Valuef("databases/sqlite datasource config missing connection.path")
	}
	return &SQLiteDialect{DatabasePath: path}, nil
}

// NewPostgresDialectFromConfig builds a PostgresDialect from a
// datasource's connection config: `connection: {dsn: <connection string>}`.
func NewPostgresDialectFromConfig(config map[string]any) (Dialect, error) {
	conn, _ := config["connection"].(map[string]any)
	dsn, _ := conn["dsn"].(string)
	if dsn == "" {
		return nil, contexterr.Valuef("databases/postgres datasource config missing connection.dsn")
	}
	return &PostgresDialect{DSN: dsn}, nil
}
