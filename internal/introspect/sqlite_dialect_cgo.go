//go:build cgo

package introspect

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3" // CGO SQLite driver, alternate path

	"github.com/databao-dev/contextd/internal/contexterr"
)

// SQLiteCGODialect is the CGO-backed alternative to SQLiteDialect. It
// reuses every other SQLiteDialect method (the sqlite_master/PRAGMA
// introspection queries are driver-agnostic) and only overrides Connect to
// go through mattn/go-sqlite3 instead of the default pure-Go
// modernc.org/sqlite driver. RunSQL is promoted from SQLiteDialect and
// opens its connection through SQLiteDialect.Connect, so it uses the
// modernc driver. NewSQLiteDialectFromConfig still wires the
// modernc path by default (DOMAIN STACK: "cgo-free alt path documented,
// default stays modernc") — this type exists for deployments that already
// pay the CGO cost elsewhere and want mattn's driver instead. Only
// compiled when the cgo build tag is active.
type SQLiteCGODialect struct {
	SQLiteDialect
}

var _ Dialect = (*SQLiteCGODialect)(nil)

func (d *SQLiteCGODialect) Connect(ctx context.Context, catalog string) (Conn, error) {
	db, err := sql.Open("sqlite3", d.DatabasePath)
	if err != nil {
		return nil, contexterr.Wrap(contexterr.KindTransientProvider, err, "sqlite3 (cgo): open %s", d.DatabasePath)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, contexterr.Wrap(contexterr.KindTransientProvider, err, "sqlite3 (cgo): connect %s", d.DatabasePath)
	}
	return &sqlConn{db: db}, nil
}
