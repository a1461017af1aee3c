package dialects

import (
	"fmt"
	"strconv"
	"strings"
)

// PostgresDialect implements PostgreSQL-specific SQL dialect.
type PostgresDialect struct{}

func init() {
	RegisterDialect("postgres", &PostgresDialect{})
	RegisterDialect("postgresql", &PostgresDialect{})
	RegisterDialect("pgsql", &PostgresDialect{})
	RegisterDialect("pgx", &PostgresDialect{})
}

// Name returns "postgres".
func (d *PostgresDialect) Name() string { return "postgres" }

// QuoteIdentifier quotes a PostgreSQL identifier using double quotes.
func (d *PostgresDialect) QuoteIdentifier(s string) string {
	return quoteWith(s, `"`)
}

// Placeholder returns PostgreSQL placeholder format ($1, $2, etc.).
func (d *PostgresDialect) Placeholder(index int) string {
	return "$" + strconv.Itoa(index)
}

// DateBasedWhere casts for Date/Time and uses extract() for the rest.
func (d *PostgresDialect) DateBasedWhere(kind, column, operator, value string) string {
	switch strings.ToLower(kind) {
	case "date":
		return fmt.Sprintf("%s::date %s %s", column, operator, value)
	case "time":
		return fmt.Sprintf("%s::time %s %s", column, operator, value)
	default:
		return fmt.Sprintf("extract(%s from %s) %s %s", strings.ToLower(kind), column, operator, value)
	}
}

// LockClause returns "for update" or "for share".
func (d *PostgresDialect) LockClause(exclusive bool) string {
	if exclusive {
		return "for update"
	}
	return "for share"
}

// RandomOrder returns RANDOM(); PostgreSQL ignores the seed here.
func (d *PostgresDialect) RandomOrder(_ string) string {
	return "RANDOM()"
}

// UpsertSQL generates PostgreSQL UPSERT syntax using ON CONFLICT.
func (d *PostgresDialect) UpsertSQL(conflict, update []string) string {
	if len(update) == 0 {
		if len(conflict) > 0 {
			return " on conflict (" + strings.Join(conflict, ", ") + ") do nothing"
		}
		return " on conflict do nothing"
	}
	return " on conflict (" + strings.Join(conflict, ", ") + ") do update set " +
		conflictUpdates(update, `%s = "excluded".%s`)
}

// InsertOrIgnore appends ON CONFLICT DO NOTHING.
func (d *PostgresDialect) InsertOrIgnore(insert string) string {
	return insert + " on conflict do nothing"
}

// SupportsReturning reports true.
func (d *PostgresDialect) SupportsReturning() bool { return true }

// WrapUnion parenthesizes the branch.
func (d *PostgresDialect) WrapUnion(sql string) string { return "(" + sql + ")" }

// OffsetWithoutLimit returns "" as PostgreSQL accepts a bare OFFSET.
func (d *PostgresDialect) OffsetWithoutLimit() string { return "" }

// TruncateSQL returns TRUNCATE with identity reset.
func (d *PostgresDialect) TruncateSQL(wrappedTable, _ string) []Statement {
	return []Statement{{SQL: "truncate " + wrappedTable + " restart identity cascade"}}
}

// ExplainPrefix returns "explain ".
func (d *PostgresDialect) ExplainPrefix() string { return "explain " }

// RowIdentifier returns "ctid".
func (d *PostgresDialect) RowIdentifier() string { return "ctid" }

// Operators returns PostgreSQL-only comparison operators.
func (d *PostgresDialect) Operators() []string {
	return []string{"ilike", "not ilike", "~", "~*", "!~", "!~*", "similar to", "not similar to", "~~*", "!~~*", "@>", "<@", "&&"}
}
