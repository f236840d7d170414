// Package databasetest provides database handles for repository tests.
package databasetest

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
)

// FailingDB returns a handle on which every query and exec fails with err, the way a server-side
// error reaches a repository.
func FailingDB(t testing.TB, err error) *sql.DB {
	t.Helper()
	db := sql.OpenDB(connector{err: err})
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type connector struct{ err error }

func (c connector) Connect(context.Context) (driver.Conn, error) { return conn{err: c.err}, nil }

func (connector) Driver() driver.Driver { return failingDriver{} }

type failingDriver struct{}

func (failingDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("databasetest: open through FailingDB")
}

type conn struct{ err error }

func (c conn) Prepare(string) (driver.Stmt, error) { return nil, c.err }

func (conn) Close() error { return nil }

func (c conn) Begin() (driver.Tx, error) { return nil, c.err }

func (c conn) QueryContext(context.Context, string, []driver.NamedValue) (driver.Rows, error) {
	return nil, c.err
}

func (c conn) ExecContext(context.Context, string, []driver.NamedValue) (driver.Result, error) {
	return nil, c.err
}
