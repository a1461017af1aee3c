package dialects

import (
	"fmt"
	"strings"
)

// SQLiteDialect implements SQLite-specific SQL dialect.
type SQLiteDialect struct{}

func init() {
	RegisterDialect("sqlite", &SQLiteDialect{})
	RegisterDialect("sqlite3", &SQLiteDialect{})
}

// sqliteDateFormats maps date parts to strftime formats.
var sqliteDateFormats = map[string]string{
	"date":  "%Y-%m-%d",
	"time":  "%H:%M:%S",
	"day":   "%d",
	"month": "%m",
	"year":  "%Y",
}

// Name returns "sqlite".
func (d *SQLiteDialect) Name() string { return "sqlite" }

// QuoteIdentifier quotes a SQLite identifier using double quotes.
func (d *SQLiteDialect) QuoteIdentifier(s string) string {
	return quoteWith(s, `"`)
}

// Placeholder returns SQLite placeholder format (always "?").
func (d *SQLiteDialect) Placeholder(_ int) string {
	return "?"
}

// DateBasedWhere compares strftime() output with the value cast to text.
func (d *SQLiteDialect) DateBasedWhere(kind, column, operator, value string) string {
	format, ok := sqliteDateFormats[strings.ToLower(kind)]
	if !ok {
		format = "%Y-%m-%d"
	}
	return fmt.Sprintf("strftime('%s', %s) %s cast(%s as text)", format, column, operator, value)
}

// LockClause returns "": SQLite locks the whole database file.
func (d *SQLiteDialect) LockClause(_ bool) string {
	return ""
}

// RandomOrder returns RANDOM().
func (d *SQLiteDialect) RandomOrder(_ string) string {
	return "RANDOM()"
}

// UpsertSQL generates SQLite UPSERT syntax using ON CONFLICT.
func (d *SQLiteDialect) UpsertSQL(conflict, update []string) string {
	if len(update) == 0 {
		if len(conflict) > 0 {
			return " on conflict (" + strings.Join(conflict, ", ") + ") do nothing"
		}
		return " on conflict do nothing"
	}
	return " on conflict (" + strings.Join(conflict, ", ") + ") do update set " +
		conflictUpdates(update, `%s = "excluded".%s`)
}

// InsertOrIgnore turns "insert into" into "insert or ignore into".
func (d *SQLiteDialect) InsertOrIgnore(insert string) string {
	return strings.Replace(insert, "insert", "insert or ignore", 1)
}

// SupportsReturning reports false; ids come from last_insert_rowid().
func (d *SQLiteDialect) SupportsReturning() bool { return false }

// WrapUnion selects from the branch as a sub-query: SQLite rejects
// parenthesized compound members.
func (d *SQLiteDialect) WrapUnion(sql string) string { return "select * from (" + sql + ")" }

// OffsetWithoutLimit returns "limit -1" since SQLite needs a LIMIT before OFFSET.
func (d *SQLiteDialect) OffsetWithoutLimit() string { return "limit -1" }

// TruncateSQL deletes all rows and resets the AUTOINCREMENT sequence.
func (d *SQLiteDialect) TruncateSQL(wrappedTable, table string) []Statement {
	return []Statement{
		{SQL: "delete from sqlite_sequence where name = ?", Bindings: []any{table}},
		{SQL: "delete from " + wrappedTable},
	}
}

// ExplainPrefix returns "explain query plan ".
func (d *SQLiteDialect) ExplainPrefix() string { return "explain query plan " }

// RowIdentifier returns "rowid".
func (d *SQLiteDialect) RowIdentifier() string { return "rowid" }

// Operators returns SQLite-only comparison operators.
func (d *SQLiteDialect) Operators() []string {
	return []string{"glob", "not glob", "match"}
}
