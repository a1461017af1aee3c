package dialects

import (
	"fmt"
	"strings"
)

// MySQLDialect implements MySQL-specific SQL dialect.
type MySQLDialect struct{}

func init() {
	RegisterDialect("mysql", &MySQLDialect{})
	RegisterDialect("mariadb", &MySQLDialect{})
}

// Name returns "mysql".
func (d *MySQLDialect) Name() string { return "mysql" }

// QuoteIdentifier quotes a MySQL identifier using backticks.
func (d *MySQLDialect) QuoteIdentifier(s string) string {
	return quoteWith(s, "`")
}

// Placeholder returns MySQL placeholder format (always "?").
func (d *MySQLDialect) Placeholder(_ int) string {
	return "?"
}

// DateBasedWhere uses the MySQL date functions of the same name.
func (d *MySQLDialect) DateBasedWhere(kind, column, operator, value string) string {
	return fmt.Sprintf("%s(%s) %s %s", strings.ToLower(kind), column, operator, value)
}

// LockClause returns "for update" or "lock in share mode".
func (d *MySQLDialect) LockClause(exclusive bool) string {
	if exclusive {
		return "for update"
	}
	return "lock in share mode"
}

// RandomOrder returns RAND() with an optional seed.
func (d *MySQLDialect) RandomOrder(seed string) string {
	return "RAND(" + seed + ")"
}

// UpsertSQL generates MySQL UPSERT syntax using ON DUPLICATE KEY UPDATE.
// MySQL has no per-column conflict target, so conflict is ignored.
func (d *MySQLDialect) UpsertSQL(_, update []string) string {
	if len(update) == 0 {
		return ""
	}
	return " on duplicate key update " + conflictUpdates(update, "%s = values(%s)")
}

// InsertOrIgnore turns "insert into" into "insert ignore into".
func (d *MySQLDialect) InsertOrIgnore(insert string) string {
	return strings.Replace(insert, "insert", "insert ignore", 1)
}

// SupportsReturning reports false; ids come from LAST_INSERT_ID().
func (d *MySQLDialect) SupportsReturning() bool { return false }

// WrapUnion parenthesizes the branch.
func (d *MySQLDialect) WrapUnion(sql string) string { return "(" + sql + ")" }

// OffsetWithoutLimit returns the largest unsigned BIGINT as MySQL requires a LIMIT.
func (d *MySQLDialect) OffsetWithoutLimit() string {
	return "limit 18446744073709551615"
}

// TruncateSQL returns TRUNCATE TABLE.
func (d *MySQLDialect) TruncateSQL(wrappedTable, _ string) []Statement {
	return []Statement{{SQL: "truncate table " + wrappedTable}}
}

// ExplainPrefix returns "explain ".
func (d *MySQLDialect) ExplainPrefix() string { return "explain " }

// RowIdentifier returns "": MySQL accepts joins and limits in UPDATE/DELETE.
func (d *MySQLDialect) RowIdentifier() string { return "" }

// Operators returns MySQL-only comparison operators.
func (d *MySQLDialect) Operators() []string {
	return []string{"sounds like"}
}
