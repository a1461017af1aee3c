package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Predefined errors returned by quarry operations.
var (
	// ErrNoRows is returned when a query that expects rows returns no results.
	ErrNoRows = errors.New("no rows in result set")
	// ErrTxDone is returned when committing or rolling back with no active transaction.
	ErrTxDone = errors.New("transaction has already been committed or rolled back")
	// ErrUnsupportedDialect is returned when an unsupported database dialect is specified.
	ErrUnsupportedDialect = errors.New("unsupported database dialect")
	// ErrInvalidArgument is returned for malformed builder input. It is never retried.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrMissingOrder is returned by Chunk when the query has no order by clause.
	ErrMissingOrder = errors.New("you must specify an orderBy clause when using this function")
	// ErrNoConnection is returned when no handle is available and reconnecting failed.
	ErrNoConnection = errors.New("no database connection available")
	// ErrConnectionNotConfigured is returned by the manager for unknown connection names.
	ErrConnectionNotConfigured = errors.New("database connection not configured")
	// ErrStopChunk may be returned by a chunk callback to stop iterating without error.
	ErrStopChunk = errors.New("stop chunking")
	// ErrMacroNotFound is returned when calling an unregistered macro.
	ErrMacroNotFound = errors.New("macro not registered")
)

// WrapError wraps an error with additional context message.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{
		msg: message,
		err: err,
	}
}

type wrappedError struct {
	msg string
	err error
}

func (e *wrappedError) Error() string {
	return e.msg + ": " + e.err.Error()
}

func (e *wrappedError) Unwrap() error {
	return e.err
}

// invalidArgument builds an error matching ErrInvalidArgument.
func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// QueryError is returned for any driver failure while running a statement.
// It carries the statement and its bindings so the failure can be reproduced.
type QueryError struct {
	Connection string
	SQL        string
	Bindings   []any
	Err        error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%v (Connection: %s, SQL: %s)", e.Err, e.Connection, e.RawSQL())
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// RawSQL returns the statement with bindings substituted for display.
func (e *QueryError) RawSQL() string {
	return InterpolateSQL(e.SQL, e.Bindings)
}

// InterpolateSQL substitutes bindings into "?" placeholders for display only.
// Quoted literals are left untouched. The result must never be executed.
func InterpolateSQL(sql string, bindings []any) string {
	if len(bindings) == 0 {
		return sql
	}

	var out strings.Builder
	out.Grow(len(sql) + len(bindings)*8)

	next := 0
	var quote byte
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == '?' && next < len(bindings):
			out.WriteString(displayValue(bindings[next]))
			next++
			continue
		}
		out.WriteByte(c)
	}
	return out.String()
}

func displayValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case bool:
		if val {
			return "1"
		}
		return "0"
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	case []byte:
		return "'" + strings.ReplaceAll(string(val), "'", "''") + "'"
	case time.Time:
		return "'" + val.Format("2006-01-02 15:04:05") + "'"
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case Raw:
		return string(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
