package core

import (
	"context"
	"database/sql"
	"time"

	"github.com/coregx/quarry/internal/cache"
	"github.com/coregx/quarry/internal/logger"
	"github.com/coregx/quarry/internal/tracer"
)

// runOutcome carries what run reports about an executed statement.
type runOutcome struct {
	rowsAffected int64
}

// run is the single execution path of a connection. It reconnects when no
// handle is held, times the statement, records it, and applies the retry
// policy: inside a transaction every failure is returned as is; outside,
// a lost connection is retried exactly once on a fresh handle.
func run[T any](ctx context.Context, c *Connection, query string, bindings []any,
	fn func(ctx context.Context, query string, bindings []any) (T, runOutcome, error)) (T, error) {
	var zero T

	ctx, span := c.tracer.Start(ctx, tracer.SpanQuery)

	if err := c.reconnectIfMissing(ctx); err != nil {
		c.logFailure(ctx, span, query, bindings, 0, err, false)
		return zero, &QueryError{Connection: c.name, SQL: query, Bindings: bindings, Err: err}
	}

	start := time.Now()
	if c.pretending {
		c.logSuccess(ctx, span, query, bindings, 0, runOutcome{}, false)
		return zero, nil
	}

	result, out, err := runCallbackInto(ctx, c, query, bindings, fn)
	retried := false
	if err != nil && c.transactions == 0 && causedByLostConnection(err) {
		c.logger.Warn("lost connection, retrying once", "error", err)
		if rerr := c.Reconnect(ctx); rerr != nil {
			err = &QueryError{Connection: c.name, SQL: query, Bindings: bindings, Err: rerr}
		} else {
			retried = true
			result, out, err = runCallbackInto(ctx, c, query, bindings, fn)
		}
	}
	elapsed := time.Since(start)

	if err != nil {
		c.logFailure(ctx, span, query, bindings, elapsed, err, retried)
		return zero, err
	}
	c.logSuccess(ctx, span, query, bindings, elapsed, out, retried)
	return result, nil
}

func runCallbackInto[T any](ctx context.Context, c *Connection, query string, bindings []any,
	fn func(ctx context.Context, query string, bindings []any) (T, runOutcome, error)) (T, runOutcome, error) {
	result, out, err := fn(ctx, c.grammar.DriverSQL(query), bindings)
	if err != nil {
		return result, out, &QueryError{Connection: c.name, SQL: query, Bindings: bindings, Err: err}
	}
	return result, out, nil
}

func (c *Connection) logSuccess(ctx context.Context, span tracer.Span, query string, bindings []any,
	elapsed time.Duration, out runOutcome, retried bool) {
	if c.loggingQueries {
		c.queryLog = append(c.queryLog, QueryLog{Query: query, Bindings: bindings, Duration: elapsed})
	}
	logger.LogStatement(c.logger, c.sanitizer, logger.Statement{
		SQL:          query,
		Bindings:     bindings,
		Duration:     elapsed,
		RowsAffected: out.rowsAffected,
		Pretend:      c.pretending,
		Retried:      retried,
	})
	c.finish(ctx, span, query, bindings, elapsed, out.rowsAffected, nil, retried)
}

func (c *Connection) logFailure(ctx context.Context, span tracer.Span, query string, bindings []any,
	elapsed time.Duration, err error, retried bool) {
	logger.LogStatement(c.logger, c.sanitizer, logger.Statement{
		SQL:      query,
		Bindings: bindings,
		Duration: elapsed,
		Retried:  retried,
		Err:      err,
	})
	c.finish(ctx, span, query, bindings, elapsed, 0, err, retried)
}

func (c *Connection) finish(ctx context.Context, span tracer.Span, query string, bindings []any,
	elapsed time.Duration, rows int64, err error, retried bool) {
	span.SetAttributes(tracer.Statement{
		System:       c.grammar.dialect.Name(),
		Connection:   c.name,
		SQL:          query,
		Bindings:     len(bindings),
		Duration:     elapsed,
		RowsAffected: rows,
		Retried:      retried,
	}.Attributes()...)
	span.Finish(err)

	c.fireHooks(ctx, QueryEvent{
		Connection:   c.name,
		SQL:          query,
		Bindings:     bindings,
		Duration:     elapsed,
		RowsAffected: rows,
		Error:        err,
		Operation:    tracer.Operation(query),
		Pretend:      c.pretending,
	})
}

// queryRows runs a row-returning statement on h, through the statement
// cache when one is given.
func queryRows(ctx context.Context, h execer, sc *cache.StmtCache, query string, args []any) (*sql.Rows, error) {
	if sc == nil {
		return h.QueryContext(ctx, query, args...)
	}
	stmt, err := sc.Prepare(ctx, h, query)
	if err != nil {
		return nil, err
	}
	return stmt.QueryContext(ctx, args...)
}

func execStatement(ctx context.Context, h execer, sc *cache.StmtCache, query string, args []any) (sql.Result, error) {
	if sc == nil {
		return h.ExecContext(ctx, query, args...)
	}
	stmt, err := sc.Prepare(ctx, h, query)
	if err != nil {
		return nil, err
	}
	return stmt.ExecContext(ctx, args...)
}

// Select runs a query and returns every row. useRead routes it to the read
// handle when one is configured.
func (c *Connection) Select(ctx context.Context, query string, bindings []any, useRead bool) ([]Row, error) {
	return run(ctx, c, query, bindings, func(ctx context.Context, q string, args []any) ([]Row, runOutcome, error) {
		h, sc := c.handle(useRead)
		rows, err := queryRows(ctx, h, sc, q, args)
		if err != nil {
			return nil, runOutcome{}, err
		}
		defer rows.Close()
		result, err := c.processor.ProcessSelect(rows)
		return result, runOutcome{}, err
	})
}

// SelectInto runs a query and scans the rows into dest, a pointer to a
// slice of structs. With single set, dest is a pointer to struct and only
// the first row is scanned; ErrNoRows is returned when there is none.
func (c *Connection) SelectInto(ctx context.Context, query string, bindings []any, useRead, single bool, dest any) error {
	found, err := run(ctx, c, query, bindings, func(ctx context.Context, q string, args []any) (bool, runOutcome, error) {
		h, sc := c.handle(useRead)
		rows, err := queryRows(ctx, h, sc, q, args)
		if err != nil {
			return false, runOutcome{}, err
		}
		defer rows.Close()
		if !single {
			return true, runOutcome{}, globalScanner.scanRows(rows, dest)
		}
		if !rows.Next() {
			return false, runOutcome{}, rows.Err()
		}
		return true, runOutcome{}, globalScanner.scanRow(rows, dest)
	})
	if err != nil {
		return err
	}
	if single && !found && !c.pretending {
		return ErrNoRows
	}
	return nil
}

// SelectFromWriteConnection runs a query on the write handle.
func (c *Connection) SelectFromWriteConnection(ctx context.Context, query string, bindings []any) ([]Row, error) {
	return c.Select(ctx, query, bindings, false)
}

// SelectOne returns the first row, or nil when there is none.
func (c *Connection) SelectOne(ctx context.Context, query string, bindings []any, useRead bool) (Row, error) {
	rows, err := c.Select(ctx, query, bindings, useRead)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// Scalar returns the first column of the first row.
func (c *Connection) Scalar(ctx context.Context, query string, bindings []any, useRead bool) (any, error) {
	rows, err := c.Select(ctx, query, bindings, useRead)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	if len(rows[0]) > 1 {
		return nil, invalidArgument("scalar query returned more than one column")
	}
	for _, v := range rows[0] {
		return v, nil
	}
	return nil, nil
}

// Cursor runs a query and returns a forward-only cursor over its rows. The
// caller must close it. When pretending the cursor is empty.
func (c *Connection) Cursor(ctx context.Context, query string, bindings []any, useRead bool) (*Cursor, error) {
	rows, err := run(ctx, c, query, bindings, func(ctx context.Context, q string, args []any) (*sql.Rows, runOutcome, error) {
		h, sc := c.handle(useRead)
		rows, err := queryRows(ctx, h, sc, q, args)
		return rows, runOutcome{}, err
	})
	if err != nil {
		return nil, err
	}
	return newCursor(rows, c.processor), nil
}

// Insert runs an insert statement.
func (c *Connection) Insert(ctx context.Context, query string, bindings []any) error {
	_, err := c.insertResult(ctx, query, bindings)
	return err
}

func (c *Connection) insertResult(ctx context.Context, query string, bindings []any) (sql.Result, error) {
	return run(ctx, c, query, bindings, func(ctx context.Context, q string, args []any) (sql.Result, runOutcome, error) {
		h, sc := c.handle(false)
		res, err := execStatement(ctx, h, sc, q, args)
		if err != nil {
			return nil, runOutcome{}, err
		}
		c.RecordsHaveBeenModified(true)
		n, _ := res.RowsAffected()
		return res, runOutcome{rowsAffected: n}, nil
	})
}

// Update runs an update statement and returns the affected row count.
func (c *Connection) Update(ctx context.Context, query string, bindings []any) (int64, error) {
	return c.AffectingStatement(ctx, query, bindings)
}

// Delete runs a delete statement and returns the affected row count.
func (c *Connection) Delete(ctx context.Context, query string, bindings []any) (int64, error) {
	return c.AffectingStatement(ctx, query, bindings)
}

// Statement runs any statement and marks the connection as written.
func (c *Connection) Statement(ctx context.Context, query string, bindings []any) error {
	return c.execute(ctx, query, bindings, true)
}

func (c *Connection) execute(ctx context.Context, query string, bindings []any, modifies bool) error {
	_, err := run(ctx, c, query, bindings, func(ctx context.Context, q string, args []any) (struct{}, runOutcome, error) {
		h, sc := c.handle(false)
		if _, err := execStatement(ctx, h, sc, q, args); err != nil {
			return struct{}{}, runOutcome{}, err
		}
		c.RecordsHaveBeenModified(modifies)
		return struct{}{}, runOutcome{}, nil
	})
	return err
}

// AffectingStatement runs a statement and returns the affected row count.
// The connection counts as written only when rows changed.
func (c *Connection) AffectingStatement(ctx context.Context, query string, bindings []any) (int64, error) {
	return run(ctx, c, query, bindings, func(ctx context.Context, q string, args []any) (int64, runOutcome, error) {
		h, sc := c.handle(false)
		res, err := execStatement(ctx, h, sc, q, args)
		if err != nil {
			return 0, runOutcome{}, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, runOutcome{}, err
		}
		c.RecordsHaveBeenModified(n > 0)
		return n, runOutcome{rowsAffected: n}, nil
	})
}

// Unprepared runs a statement without bindings or preparation.
func (c *Connection) Unprepared(ctx context.Context, query string) error {
	if err := c.validate(ctx, query, nil); err != nil {
		return err
	}
	_, err := run(ctx, c, query, nil, func(ctx context.Context, q string, _ []any) (struct{}, runOutcome, error) {
		h, _ := c.handle(false)
		if _, err := h.ExecContext(ctx, q); err != nil {
			return struct{}{}, runOutcome{}, err
		}
		c.RecordsHaveBeenModified(true)
		return struct{}{}, runOutcome{}, nil
	})
	return err
}
