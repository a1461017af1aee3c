// Package dialects provides database-specific SQL dialect hooks for PostgreSQL,
// MySQL, and SQLite. The query grammar compiles builder state generically and
// defers to a Dialect wherever the databases disagree: identifier quoting,
// placeholders, date extraction, row locks, upserts, and truncation.
package dialects

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Lock modes passed to LockClause.
const (
	LockShared    = false
	LockExclusive = true
)

// Statement is a single SQL statement with its bound values.
type Statement struct {
	SQL      string
	Bindings []any
}

// Dialect defines database-specific behaviors.
type Dialect interface {
	// Name returns the canonical dialect name (mysql, postgres, sqlite).
	Name() string
	// QuoteIdentifier quotes a single identifier segment.
	QuoteIdentifier(string) string
	// Placeholder returns the driver placeholder for the 1-based parameter index.
	Placeholder(int) string
	// DateBasedWhere compiles a Date/Time/Day/Month/Year predicate against an
	// already wrapped column.
	DateBasedWhere(kind, column, operator, value string) string
	// LockClause returns the row lock suffix for a SELECT.
	LockClause(exclusive bool) string
	// RandomOrder returns the ORDER BY expression for random ordering.
	RandomOrder(seed string) string
	// UpsertSQL returns the conflict clause appended to an INSERT. Columns are
	// already wrapped. A nil update list means "ignore the conflicting row".
	UpsertSQL(conflict, update []string) string
	// InsertOrIgnore rewrites a compiled INSERT so that conflicting rows are skipped.
	InsertOrIgnore(insert string) string
	// SupportsReturning reports whether INSERT ... RETURNING is available.
	SupportsReturning() bool
	// WrapUnion wraps one compiled branch of a UNION.
	WrapUnion(sql string) string
	// OffsetWithoutLimit returns the LIMIT clause emitted when only an offset is set.
	OffsetWithoutLimit() string
	// TruncateSQL returns the statements that empty a table.
	TruncateSQL(wrappedTable, table string) []Statement
	// ExplainPrefix returns the keyword prepended to a SELECT to obtain its plan.
	ExplainPrefix() string
	// RowIdentifier names the hidden row key used to rewrite UPDATE/DELETE
	// with joins or limits as "key in (select ...)". Empty means the dialect
	// supports joins and limits on UPDATE/DELETE natively.
	RowIdentifier() string
	// Operators returns comparison operators understood in addition to the standard set.
	Operators() []string
}

var (
	mu       sync.RWMutex
	dialects = make(map[string]Dialect)
)

// RegisterDialect registers a database dialect by driver name.
func RegisterDialect(name string, d Dialect) {
	mu.Lock()
	defer mu.Unlock()
	dialects[strings.ToLower(name)] = d
}

// GetDialect retrieves a registered dialect by driver name.
func GetDialect(name string) (Dialect, error) {
	mu.RLock()
	defer mu.RUnlock()
	if d, ok := dialects[strings.ToLower(name)]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("unsupported dialect: %s", name)
}

// MustGetDialect is like GetDialect but panics for unknown names.
// Intended for package-level initialization and tests.
func MustGetDialect(name string) Dialect {
	d, err := GetDialect(name)
	if err != nil {
		panic(err)
	}
	return d
}

// Registered returns the sorted list of registered driver names.
func Registered() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// quoteWith doubles the quote character inside s and surrounds it.
func quoteWith(s, q string) string {
	return q + strings.ReplaceAll(s, q, q+q) + q
}

// conflictUpdates renders "col = <source>(col)" pairs for upsert clauses.
func conflictUpdates(cols []string, format string) string {
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = fmt.Sprintf(format, col, col)
	}
	return strings.Join(parts, ", ")
}
