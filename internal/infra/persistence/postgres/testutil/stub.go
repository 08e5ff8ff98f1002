// Package testutil provides a scripted stub database for postgres store tests.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

var stubSeq atomic.Int64

// StubConn records the statements issued by the store and replays scripted
// results. Fields may be changed between calls.
type StubConn struct {
	mu sync.Mutex

	Execs   []string
	Queries []string
	Args    [][]any

	// PingErr fails PingContext.
	PingErr error
	// ExecErr fails every ExecContext call.
	ExecErr error
	// QueryErr fails every QueryContext call.
	QueryErr error
	// Affected is the RowsAffected value returned by exec; zero defaults to 1.
	Affected int64
	// Columns and Rows describe the next query result.
	Columns []string
	Rows    [][]driver.Value
}

// NewStubDB registers a sql.DB backed by a fresh stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{}
	name := fmt.Sprintf("stubpg%d", stubSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

// ExecCount returns how many exec statements were recorded.
func (c *StubConn) ExecCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Execs)
}

// LastExec returns the most recent exec statement and its arguments.
func (c *StubConn) LastExec() (string, []any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Execs) == 0 {
		return "", nil
	}
	return c.Execs[len(c.Execs)-1], c.Args[len(c.Args)-1]
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) { return stubTx{}, nil }

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error { return c.PingErr }

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	c.Args = append(c.Args, values(args))
	if c.ExecErr != nil {
		return nil, c.ExecErr
	}
	if c.Affected == 0 {
		return driver.RowsAffected(1), nil
	}
	if c.Affected < 0 {
		return driver.RowsAffected(0), nil
	}
	return driver.RowsAffected(c.Affected), nil
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Queries = append(c.Queries, query)
	if c.QueryErr != nil {
		return nil, c.QueryErr
	}
	return &stubRows{cols: c.Columns, rows: c.Rows}, nil
}

func values(args []driver.NamedValue) []any {
	out := make([]any, len(args))
	for i, arg := range args {
		out[i] = arg.Value
	}
	return out
}

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}
