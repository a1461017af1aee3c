package core

import (
	"strconv"
	"strings"

	"github.com/coregx/quarry/internal/dialects"
)

// CompileSelect renders the builder as a SELECT statement.
func (g *Grammar) CompileSelect(b *Builder) string {
	if b.aggregate != nil && (len(b.unions) > 0 || len(b.havings) > 0) {
		return g.compileUnionAggregate(b)
	}

	parts := make([]string, 0, 12)
	if b.aggregate != nil {
		parts = append(parts, g.compileAggregate(b))
	} else {
		parts = append(parts, g.compileColumns(b))
	}
	if b.from != nil {
		parts = append(parts, "from "+g.WrapTable(b.from))
	}
	if len(b.joins) > 0 {
		parts = append(parts, g.compileJoins(b.joins))
	}
	if len(b.wheres) > 0 {
		parts = append(parts, "where "+g.compileConditions(b.wheres))
	}
	if len(b.groups) > 0 {
		parts = append(parts, "group by "+g.Columnize(b.groups))
	}
	if len(b.havings) > 0 {
		parts = append(parts, "having "+g.compileHavings(b.havings))
	}
	if len(b.orders) > 0 {
		parts = append(parts, g.compileOrders(b.orders))
	}
	if s := g.compileLimitOffset(b.limit, b.offset); s != "" {
		parts = append(parts, s)
	}
	if s := g.compileLock(b.lock); s != "" {
		parts = append(parts, s)
	}

	sql := joinParts(parts)
	if len(b.unions) > 0 {
		sql = g.dialect.WrapUnion(sql) + g.compileUnions(b)
	}
	return sql
}

func joinParts(parts []string) string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

func (g *Grammar) compileAggregate(b *Builder) string {
	column := g.Columnize(b.aggregate.columns)
	if b.distinct && column != "*" {
		column = "distinct " + column
	}
	return "select " + b.aggregate.function + "(" + column + ") as aggregate"
}

func (g *Grammar) compileUnionAggregate(b *Builder) string {
	sql := g.compileAggregate(b)
	inner := b.CloneWithout("aggregate")
	return sql + " from (" + g.CompileSelect(inner) + ") as " + g.WrapTable("temp_table")
}

func (g *Grammar) compileColumns(b *Builder) string {
	columns := b.columns
	if len(columns) == 0 {
		columns = []any{"*"}
	}
	sel := "select "
	if b.distinct {
		sel = "select distinct "
	}
	return sel + g.Columnize(columns)
}

func (g *Grammar) compileJoins(joins []*JoinClause) string {
	out := make([]string, len(joins))
	for i, j := range joins {
		sql := j.kind + " join " + g.WrapTable(j.table)
		if len(j.query.wheres) > 0 {
			sql += " on " + g.compileConditions(j.query.wheres)
		}
		out[i] = sql
	}
	return strings.Join(out, " ")
}

// compileConditions renders a condition list without its leading boolean.
func (g *Grammar) compileConditions(wheres []*where) string {
	var sb strings.Builder
	for i, w := range wheres {
		if i > 0 {
			sb.WriteString(" " + w.boolean + " ")
		}
		sb.WriteString(g.compileWhere(w))
	}
	return sb.String()
}

func (g *Grammar) compileWhere(w *where) string {
	switch w.kind {
	case whereBasic:
		return g.Wrap(w.column) + " " + w.operator + " " + g.Parameter(w.value)
	case whereColumn:
		return g.Wrap(w.column) + " " + w.operator + " " + g.Wrap(w.second)
	case whereNested:
		sql := "(" + g.compileConditions(w.query.wheres) + ")"
		if w.not {
			return "not " + sql
		}
		return sql
	case whereSub:
		return g.Wrap(w.column) + " " + w.operator + " (" + w.sql + ")"
	case whereIn:
		if len(w.values) == 0 {
			if w.not {
				return "1 = 1"
			}
			return "0 = 1"
		}
		return g.Wrap(w.column) + notPrefix(w.not) + " in (" + g.Parameterize(w.values) + ")"
	case whereInSub:
		return g.Wrap(w.column) + notPrefix(w.not) + " in (" + w.sql + ")"
	case whereNull:
		if w.not {
			return g.Wrap(w.column) + " is not null"
		}
		return g.Wrap(w.column) + " is null"
	case whereBetween:
		return g.Wrap(w.column) + notPrefix(w.not) + " between " +
			g.Parameter(w.values[0]) + " and " + g.Parameter(w.values[1])
	case whereExists:
		if w.not {
			return "not exists (" + w.sql + ")"
		}
		return "exists (" + w.sql + ")"
	case whereDate:
		return g.dialect.DateBasedWhere(w.datePart, g.Wrap(w.column), w.operator, g.Parameter(w.value))
	default:
		return w.sql
	}
}

func notPrefix(not bool) string {
	if not {
		return " not"
	}
	return ""
}

func (g *Grammar) compileHavings(havings []*where) string {
	return g.compileConditions(havings)
}

func (g *Grammar) compileOrders(orders []order) string {
	out := make([]string, len(orders))
	for i, o := range orders {
		if o.sql != "" {
			out[i] = o.sql
			continue
		}
		out[i] = g.Wrap(o.column) + " " + o.direction
	}
	return "order by " + strings.Join(out, ", ")
}

func (g *Grammar) compileLimitOffset(limit, offset int) string {
	switch {
	case limit >= 0 && offset >= 0:
		return "limit " + strconv.Itoa(limit) + " offset " + strconv.Itoa(offset)
	case limit >= 0:
		return "limit " + strconv.Itoa(limit)
	case offset >= 0:
		if prefix := g.dialect.OffsetWithoutLimit(); prefix != "" {
			return prefix + " offset " + strconv.Itoa(offset)
		}
		return "offset " + strconv.Itoa(offset)
	}
	return ""
}

func (g *Grammar) compileLock(l lockState) string {
	if !l.set {
		return ""
	}
	if l.sql != "" {
		return l.sql
	}
	if l.exclusive {
		return g.dialect.LockClause(dialects.LockExclusive)
	}
	return g.dialect.LockClause(dialects.LockShared)
}

func (g *Grammar) compileUnions(b *Builder) string {
	var sb strings.Builder
	for _, u := range b.unions {
		if u.all {
			sb.WriteString(" union all ")
		} else {
			sb.WriteString(" union ")
		}
		sb.WriteString(g.dialect.WrapUnion(g.CompileSelect(u.query)))
	}
	if len(b.unionOrders) > 0 {
		sb.WriteString(" " + g.compileOrders(b.unionOrders))
	}
	if s := g.compileLimitOffset(b.unionLimit, b.unionOffset); s != "" {
		sb.WriteString(" " + s)
	}
	return sb.String()
}

// CompileExists wraps the select in "select exists(...) as exists".
func (g *Grammar) CompileExists(b *Builder) string {
	return "select exists(" + g.CompileSelect(b) + ") as " + g.wrapValue("exists")
}

// CompileInsert renders a multi-row insert. Every row lists its values in
// columns order.
func (g *Grammar) CompileInsert(b *Builder, columns []string, rows [][]any) string {
	table := g.WrapTable(b.from)
	if len(columns) == 0 {
		return "insert into " + table + " default values"
	}
	values := make([]string, len(rows))
	for i, r := range rows {
		values[i] = "(" + g.Parameterize(r) + ")"
	}
	return "insert into " + table + " (" + g.columnizeStrings(columns) + ") values " + strings.Join(values, ", ")
}

// CompileInsertGetID renders an insert that yields the new key. Dialects
// with RETURNING get a returning clause; the rest rely on the driver's
// last insert id.
func (g *Grammar) CompileInsertGetID(b *Builder, columns []string, values []any, sequence string) string {
	sql := g.CompileInsert(b, columns, [][]any{values})
	if g.dialect.SupportsReturning() {
		sql += " returning " + g.Wrap(sequence)
	}
	return sql
}

// CompileInsertOrIgnore renders an insert that skips conflicting rows.
func (g *Grammar) CompileInsertOrIgnore(b *Builder, columns []string, rows [][]any) string {
	return g.dialect.InsertOrIgnore(g.CompileInsert(b, columns, rows))
}

// CompileUpsert renders an insert that updates the update columns when a
// row conflicts on uniqueBy.
func (g *Grammar) CompileUpsert(b *Builder, columns []string, rows [][]any, uniqueBy, update []string) string {
	conflict := make([]string, len(uniqueBy))
	for i, c := range uniqueBy {
		conflict[i] = g.Wrap(c)
	}
	updates := make([]string, len(update))
	for i, c := range update {
		updates[i] = g.Wrap(c)
	}
	return g.CompileInsert(b, columns, rows) + g.dialect.UpsertSQL(conflict, updates)
}

// assignment is one "column = value" pair of an UPDATE.
type assignment struct {
	column string
	value  any
}

// CompileUpdate renders an UPDATE. Dialects with a row identifier rewrite
// updates that have joins or a limit into "where rowid in (select ...)".
func (g *Grammar) CompileUpdate(b *Builder, values []assignment) string {
	table := g.WrapTable(b.from)
	sets := make([]string, len(values))
	for i, a := range values {
		sets[i] = g.Wrap(g.updateColumn(a.column)) + " = " + g.Parameter(a.value)
	}
	columns := strings.Join(sets, ", ")

	if g.rewritesWithRowID(b) {
		return "update " + table + " set " + columns + " where " + g.rowIDSubSelect(b)
	}

	parts := []string{"update " + table}
	if len(b.joins) > 0 {
		parts = append(parts, g.compileJoins(b.joins))
	}
	parts = append(parts, "set "+columns)
	if len(b.wheres) > 0 {
		parts = append(parts, "where "+g.compileConditions(b.wheres))
	}
	parts = append(parts, g.inlineOrderLimit(b)...)
	return joinParts(parts)
}

// updateColumn drops the table qualifier on dialects that reject it in SET.
func (g *Grammar) updateColumn(column string) string {
	if g.dialect.RowIdentifier() == "" {
		return column
	}
	if i := strings.LastIndex(column, "."); i >= 0 {
		return column[i+1:]
	}
	return column
}

// PrepareBindingsForUpdate orders the bindings to match CompileUpdate.
func (g *Grammar) PrepareBindingsForUpdate(b *Builder, values []assignment) []any {
	var vals []any
	for _, a := range values {
		if _, ok := a.value.(Raw); ok {
			continue
		}
		vals = append(vals, a.value)
	}
	if g.rewritesWithRowID(b) {
		return append(vals, b.bindingsExcept(bindSelect)...)
	}
	out := b.bindingsOf(bindFrom, bindJoin)
	out = append(out, vals...)
	return append(out, g.trailingBindings(b)...)
}

// CompileDelete renders a DELETE.
func (g *Grammar) CompileDelete(b *Builder) string {
	table := g.WrapTable(b.from)

	if g.rewritesWithRowID(b) {
		return "delete from " + table + " where " + g.rowIDSubSelect(b)
	}

	var parts []string
	if len(b.joins) > 0 {
		alias := table
		if i := strings.LastIndex(table, " as "); i >= 0 {
			alias = table[i+4:]
		}
		parts = append(parts, "delete "+alias+" from "+table, g.compileJoins(b.joins))
	} else {
		parts = append(parts, "delete from "+table)
	}
	if len(b.wheres) > 0 {
		parts = append(parts, "where "+g.compileConditions(b.wheres))
	}
	parts = append(parts, g.inlineOrderLimit(b)...)
	return joinParts(parts)
}

// PrepareBindingsForDelete orders the bindings to match CompileDelete.
func (g *Grammar) PrepareBindingsForDelete(b *Builder) []any {
	if g.rewritesWithRowID(b) {
		return b.bindingsExcept(bindSelect)
	}
	return append(b.bindingsOf(bindFrom, bindJoin), g.trailingBindings(b)...)
}

// trailingBindings are the where bindings of an UPDATE or DELETE, followed
// by the order bindings when inlineOrderLimit emits the orders.
func (g *Grammar) trailingBindings(b *Builder) []any {
	if len(g.inlineOrderLimit(b)) == 0 || len(b.orders) == 0 {
		return b.bindingsOf(bindWhere)
	}
	return b.bindingsOf(bindWhere, bindOrder)
}

func (g *Grammar) rewritesWithRowID(b *Builder) bool {
	return g.dialect.RowIdentifier() != "" && (len(b.joins) > 0 || b.limit >= 0)
}

// inlineOrderLimit returns order and limit clauses for dialects that accept
// them directly on UPDATE and DELETE.
func (g *Grammar) inlineOrderLimit(b *Builder) []string {
	if g.dialect.RowIdentifier() != "" || len(b.joins) > 0 {
		return nil
	}
	var out []string
	if len(b.orders) > 0 {
		out = append(out, g.compileOrders(b.orders))
	}
	if b.limit >= 0 {
		out = append(out, "limit "+strconv.Itoa(b.limit))
	}
	return out
}

func (g *Grammar) rowIDSubSelect(b *Builder) string {
	rowID := g.dialect.RowIdentifier()
	alias := tableAlias(b.from)
	sub := b.Clone()
	sub.columns = []any{alias + "." + rowID}
	sub.aggregate = nil
	sub.lock = lockState{}
	return g.wrapValue(rowID) + " in (" + g.CompileSelect(sub) + ")"
}

func tableAlias(from any) string {
	var s string
	switch f := from.(type) {
	case string:
		s = f
	case Raw:
		s = string(f)
	}
	if parts := aliasSplit.Split(s, 2); len(parts) == 2 {
		return parts[1]
	}
	return s
}

// CompileTruncate returns the statements that empty the table.
func (g *Grammar) CompileTruncate(b *Builder) []dialects.Statement {
	name, _ := b.from.(string)
	return g.dialect.TruncateSQL(g.WrapTable(b.from), g.prefix+name)
}

// CompileSavepoint creates a savepoint.
func (g *Grammar) CompileSavepoint(name string) string {
	return "SAVEPOINT " + name
}

// CompileSavepointRollback rolls back to a savepoint.
func (g *Grammar) CompileSavepointRollback(name string) string {
	return "ROLLBACK TO SAVEPOINT " + name
}

// CompileExplain prefixes a statement with the dialect's explain keyword.
func (g *Grammar) CompileExplain(sql string) string {
	return g.dialect.ExplainPrefix() + sql
}
