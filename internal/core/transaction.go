package core

import (
	"context"
	"errors"
	"strconv"

	"github.com/coregx/quarry/internal/tracer"
)

// TransactionLevel returns the current nesting depth; 0 means none.
func (c *Connection) TransactionLevel() int { return c.transactions }

func savepointName(level int) string { return "trans" + strconv.Itoa(level) }

// BeginTransaction opens a transaction, or a savepoint when one is already
// open.
func (c *Connection) BeginTransaction(ctx context.Context) error {
	if c.transactions == 0 {
		if !c.pretending {
			if err := c.beginOuter(ctx); err != nil {
				return err
			}
		}
	} else if c.transactions >= 1 {
		sql := c.grammar.CompileSavepoint(savepointName(c.transactions + 1))
		if err := c.execute(ctx, sql, nil, false); err != nil {
			return err
		}
	}
	c.transactions++
	return nil
}

func (c *Connection) beginOuter(ctx context.Context) error {
	if err := c.reconnectIfMissing(ctx); err != nil {
		return err
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil && causedByLostConnection(err) {
		if rerr := c.Reconnect(ctx); rerr != nil {
			return rerr
		}
		tx, err = c.db.BeginTx(ctx, nil)
	}
	if err != nil {
		return err
	}
	c.tx = tx
	c.logger.Debug("transaction started")
	return nil
}

// Commit commits the outermost transaction. Inner levels only decrease the
// depth; their savepoints are released with the outer commit.
func (c *Connection) Commit(ctx context.Context) error {
	if c.transactions == 0 {
		return ErrTxDone
	}
	if c.transactions == 1 && c.tx != nil {
		err := c.tx.Commit()
		c.tx = nil
		if err != nil {
			c.transactions = 0
			return err
		}
		c.logger.Debug("transaction committed")
	}
	c.transactions--
	return nil
}

// RollBack rolls back to toLevel, by default one level down. Level 0 rolls
// back the whole transaction; higher levels roll back to a savepoint.
// Out of range levels are ignored.
func (c *Connection) RollBack(ctx context.Context, toLevel ...int) error {
	level := c.transactions - 1
	if len(toLevel) > 0 {
		level = toLevel[0]
	}
	if level < 0 || level >= c.transactions {
		return nil
	}

	var err error
	if level == 0 {
		if c.tx != nil {
			err = c.tx.Rollback()
			c.tx = nil
		}
	} else if c.tx != nil || c.pretending {
		err = c.execute(ctx, c.grammar.CompileSavepointRollback(savepointName(level+1)), nil, false)
	}

	if err != nil {
		if causedByLostConnection(err) {
			c.transactions = 0
			c.tx = nil
		}
		return err
	}
	c.transactions = level
	c.logger.Debug("transaction rolled back", "level", level)
	return nil
}

// Transaction runs fn inside a transaction and commits it. A deadlock in
// the outermost level re-runs fn, up to attempts times in total. Any other
// error, or a panic, rolls the level back and is returned.
func (c *Connection) Transaction(ctx context.Context, fn func(*Connection) error, attempts ...int) (err error) {
	maxAttempts := 1
	if len(attempts) > 0 && attempts[0] > 1 {
		maxAttempts = attempts[0]
	}

	ctx, span := c.tracer.Start(ctx, tracer.SpanTransaction)
	meta := tracer.Transaction{Connection: c.name, Level: c.transactions + 1}
	defer func() {
		span.SetAttributes(meta.Attributes()...)
		span.Finish(err)
	}()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		meta.Attempts = attempt
		if err = c.BeginTransaction(ctx); err != nil {
			return err
		}

		if err = c.runInTransaction(ctx, fn); err != nil {
			retry, herr := c.handleTransactionError(ctx, err, attempt, maxAttempts)
			if retry {
				continue
			}
			return herr
		}

		if err = c.Commit(ctx); err != nil {
			if causedByConcurrencyError(err) && attempt < maxAttempts {
				c.logger.Warn("deadlock on commit, retrying", "attempt", attempt)
				continue
			}
			if causedByLostConnection(err) {
				c.transactions = 0
			}
			return err
		}
		return nil
	}
	return err
}

// runInTransaction calls fn, rolling the level back and re-panicking if it
// panics.
func (c *Connection) runInTransaction(ctx context.Context, fn func(*Connection) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			_ = c.RollBack(ctx)
			panic(p)
		}
	}()
	return fn(c)
}

// handleTransactionError applies the retry policy to a callback error.
// A deadlock in a nested level only decrements the depth and propagates so
// the outermost level can retry the whole unit.
func (c *Connection) handleTransactionError(ctx context.Context, err error, attempt, maxAttempts int) (bool, error) {
	if causedByConcurrencyError(err) && c.transactions > 1 {
		c.transactions--
		return false, err
	}

	if rerr := c.RollBack(ctx); rerr != nil {
		return false, errors.Join(err, rerr)
	}

	if causedByConcurrencyError(err) && attempt < maxAttempts {
		c.logger.Warn("deadlock detected, retrying transaction", "attempt", attempt, "error", err)
		return true, nil
	}
	return false, err
}
