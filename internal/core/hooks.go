package core

import (
	"context"
	"time"
)

// QueryEvent describes one executed statement. It is passed to every hook
// registered with Connection.Listen.
type QueryEvent struct {
	// Connection is the name of the connection that ran the statement.
	Connection string
	// SQL is the statement with "?" placeholders.
	SQL string
	// Bindings are the bound values in placeholder order.
	Bindings []any
	// Duration is the execution time, zero when pretending.
	Duration time.Duration
	// RowsAffected is set for affecting statements.
	RowsAffected int64
	// Error is the failure, nil on success.
	Error error
	// Operation is the leading keyword as classified by tracer.Operation.
	Operation string
	// Pretend is true when the statement was recorded but not executed.
	Pretend bool
}

// QueryHook is called after each statement, successful or not.
//
// Example:
//
//	conn.Listen(func(ctx context.Context, e quarry.QueryEvent) {
//	    slog.Info("query", "sql", e.SQL, "duration", e.Duration, "err", e.Error)
//	})
type QueryHook func(ctx context.Context, event QueryEvent)

// Listen registers a hook fired after every statement.
func (c *Connection) Listen(hook QueryHook) {
	if hook != nil {
		c.hooks = append(c.hooks, hook)
	}
}

func (c *Connection) fireHooks(ctx context.Context, event QueryEvent) {
	for _, h := range c.hooks {
		h(ctx, event)
	}
}
