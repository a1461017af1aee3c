package core

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/coregx/quarry/internal/dialects"
)

var aliasSplit = regexp.MustCompile(`(?i)\s+as\s+`)

// Grammar renders builder state into SQL for one dialect. It always emits
// "?" placeholders; dialects with numbered placeholders are rewritten at
// execution time by DriverSQL.
type Grammar struct {
	dialect dialects.Dialect
	prefix  string
}

// NewGrammar creates a grammar for the given dialect.
func NewGrammar(d dialects.Dialect) *Grammar {
	return &Grammar{dialect: d}
}

// Dialect returns the grammar's dialect.
func (g *Grammar) Dialect() dialects.Dialect { return g.dialect }

// TablePrefix returns the prefix prepended to every table name.
func (g *Grammar) TablePrefix() string { return g.prefix }

// SetTablePrefix sets the table prefix.
func (g *Grammar) SetTablePrefix(prefix string) *Grammar {
	g.prefix = prefix
	return g
}

// Wrap quotes a column reference. Raw values pass through untouched,
// "a as b" aliases and dotted "table.column" paths are handled, and the
// table segment of a dotted path receives the table prefix.
func (g *Grammar) Wrap(value any) string {
	switch v := value.(type) {
	case Raw:
		return string(v)
	case string:
		if parts := aliasSplit.Split(v, 2); len(parts) == 2 {
			return g.Wrap(parts[0]) + " as " + g.wrapValue(parts[1])
		}
		return g.wrapSegments(strings.Split(v, "."), false)
	case Expression:
		// Only the SQL is rendered here; Builder.columnRef files the
		// bindings of column-position expressions.
		sql, _ := v.Build(g)
		return sql
	default:
		return g.wrapValue(fmt.Sprint(v))
	}
}

// WrapTable quotes a table reference, applying the prefix to the table
// name and to its alias.
func (g *Grammar) WrapTable(table any) string {
	switch v := table.(type) {
	case Raw:
		return string(v)
	case string:
		if parts := aliasSplit.Split(v, 2); len(parts) == 2 {
			return g.WrapTable(parts[0]) + " as " + g.wrapValue(g.prefix+parts[1])
		}
		return g.wrapSegments(strings.Split(v, "."), true)
	default:
		return g.Wrap(table)
	}
}

// wrapSegments quotes each segment. For tables the last segment is the
// table name; for columns it is the one before the last.
func (g *Grammar) wrapSegments(segments []string, isTable bool) string {
	tableAt := len(segments) - 2
	if isTable {
		tableAt = len(segments) - 1
	}
	out := make([]string, len(segments))
	for i, s := range segments {
		if i == tableAt {
			s = g.prefix + s
		}
		out[i] = g.wrapValue(s)
	}
	return strings.Join(out, ".")
}

func (g *Grammar) wrapValue(value string) string {
	if value == "*" {
		return value
	}
	return g.dialect.QuoteIdentifier(value)
}

// Columnize wraps and joins a column list.
func (g *Grammar) Columnize(columns []any) string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = g.Wrap(c)
	}
	return strings.Join(out, ", ")
}

func (g *Grammar) columnizeStrings(columns []string) string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = g.Wrap(c)
	}
	return strings.Join(out, ", ")
}

// Parameter returns the placeholder for a value: Raw renders literally,
// anything else becomes "?".
func (g *Grammar) Parameter(value any) string {
	if r, ok := value.(Raw); ok {
		return string(r)
	}
	return "?"
}

// Parameterize renders a comma separated placeholder list.
func (g *Grammar) Parameterize(values []any) string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = g.Parameter(v)
	}
	return strings.Join(out, ", ")
}

// DriverSQL rewrites "?" placeholders into the dialect's native form.
// Placeholders inside quoted literals are kept.
func (g *Grammar) DriverSQL(sql string) string {
	if g.dialect.Placeholder(1) == "?" {
		return sql
	}

	var out strings.Builder
	out.Grow(len(sql) + 16)
	n := 0
	var quote byte
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '?':
			n++
			out.WriteString(g.dialect.Placeholder(n))
			continue
		}
		out.WriteByte(c)
	}
	return out.String()
}

// Operators lists every comparison operator accepted by Where.
func (g *Grammar) Operators() []string {
	return append(append([]string(nil), baseOperators...), g.dialect.Operators()...)
}

var baseOperators = []string{
	"=", "<", ">", "<=", ">=", "<>", "!=", "<=>",
	"like", "like binary", "not like",
	"&", "|", "^", "<<", ">>", "&~",
	"is", "is not", "rlike", "not rlike", "regexp", "not regexp",
}

func (g *Grammar) isOperator(op string) bool {
	op = strings.ToLower(op)
	for _, o := range baseOperators {
		if o == op {
			return true
		}
	}
	for _, o := range g.dialect.Operators() {
		if o == op {
			return true
		}
	}
	return false
}
