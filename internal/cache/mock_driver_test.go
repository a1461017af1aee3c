package cache

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
)

// driverStats counts what the cache does to driver statements.
type driverStats struct {
	prepared atomic.Int64
	closed   atomic.Int64
}

var errPrepare = errors.New("syntax error at or near \"selct\"")

type stubDriver struct{ stats *driverStats }

func (d stubDriver) Open(string) (driver.Conn, error) { return stubConn(d), nil }

type stubConn struct{ stats *driverStats }

// Prepare fails for any query starting with "selct".
func (c stubConn) Prepare(query string) (driver.Stmt, error) {
	if strings.HasPrefix(query, "selct") {
		return nil, errPrepare
	}
	c.stats.prepared.Add(1)
	return stubStmt(c), nil
}

func (stubConn) Close() error { return nil }
func (stubConn) Begin() (driver.Tx, error) { return nil, driver.ErrSkip }

type stubStmt struct{ stats *driverStats }

func (s stubStmt) Close() error {
	s.stats.closed.Add(1)
	return nil
}

func (stubStmt) NumInput() int { return -1 }
func (stubStmt) Exec([]driver.Value) (driver.Result, error) { return nil, driver.ErrSkip }
func (stubStmt) Query([]driver.Value) (driver.Rows, error) { return nil, driver.ErrSkip }

var driverSeq atomic.Uint64

func openStubDB() (*sql.DB, *driverStats, error) {
	stats := &driverStats{}
	name := fmt.Sprintf("quarry-stmtcache-%d", driverSeq.Add(1))
	sql.Register(name, stubDriver{stats: stats})
	db, err := sql.Open(name, "")
	if err != nil {
		return nil, nil, err
	}
	db.SetMaxOpenConns(1)
	return db, stats, nil
}
