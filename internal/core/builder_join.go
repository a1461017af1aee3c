package core

// JoinClause holds the table and ON conditions of one join. Conditions are
// stored in an inner builder, so the full where family is available on it.
type JoinClause struct {
	kind  string
	table any
	query *Builder
}

func newJoinClause(parent *Builder, kind string, table any) *JoinClause {
	return &JoinClause{kind: kind, table: table, query: parent.NewQuery()}
}

func (j *JoinClause) clone() *JoinClause {
	return &JoinClause{kind: j.kind, table: j.table, query: j.query.Clone()}
}

// Kind returns the join type: inner, left, right or cross.
func (j *JoinClause) Kind() string { return j.kind }

// On adds a column comparison: On("a.id", "b.a_id") or On("a.id", "=", "b.a_id").
// A func(*JoinClause) first argument builds a nested group.
func (j *JoinClause) On(first any, args ...any) *JoinClause {
	return j.on("and", first, args)
}

// OrOn adds a column comparison joined with "or".
func (j *JoinClause) OrOn(first any, args ...any) *JoinClause {
	return j.on("or", first, args)
}

func (j *JoinClause) on(boolean string, first any, args []any) *JoinClause {
	if fn, ok := first.(func(*JoinClause)); ok {
		nested := &JoinClause{kind: j.kind, table: j.table, query: j.query.NewQuery()}
		fn(nested)
		j.query.addNestedWhereQuery(nested.query, boolean, false)
		return j
	}
	j.query.whereColumn(boolean, first, args)
	return j
}

// Where adds a value condition to the join.
func (j *JoinClause) Where(column any, args ...any) *JoinClause {
	j.query.Where(column, args...)
	return j
}

// OrWhere adds a value condition joined with "or".
func (j *JoinClause) OrWhere(column any, args ...any) *JoinClause {
	j.query.OrWhere(column, args...)
	return j
}

// WhereIn adds "column in (...)" to the join.
func (j *JoinClause) WhereIn(column any, values any) *JoinClause {
	j.query.WhereIn(column, values)
	return j
}

// WhereNotIn adds "column not in (...)" to the join.
func (j *JoinClause) WhereNotIn(column any, values any) *JoinClause {
	j.query.WhereNotIn(column, values)
	return j
}

// WhereNull adds "column is null" to the join.
func (j *JoinClause) WhereNull(column any) *JoinClause {
	j.query.WhereNull(column)
	return j
}

// WhereNotNull adds "column is not null" to the join.
func (j *JoinClause) WhereNotNull(column any) *JoinClause {
	j.query.WhereNotNull(column)
	return j
}

// WhereBetween adds a between condition to the join.
func (j *JoinClause) WhereBetween(column any, low, high any) *JoinClause {
	j.query.WhereBetween(column, low, high)
	return j
}

// WhereRaw adds a raw condition to the join.
func (j *JoinClause) WhereRaw(sql string, bindings ...any) *JoinClause {
	j.query.WhereRaw(sql, bindings...)
	return j
}

// Join adds an inner join. first is either a func(*JoinClause) or the left
// column of an ON comparison followed by (second) or (operator, second).
//
//	Join("contacts", "users.id", "=", "contacts.user_id")
//	Join("contacts", func(j *JoinClause) { j.On("users.id", "contacts.user_id").Where("contacts.kind", "home") })
func (b *Builder) Join(table any, first any, args ...any) *Builder {
	return b.join("inner", table, first, args, false)
}

// LeftJoin adds a left join.
func (b *Builder) LeftJoin(table any, first any, args ...any) *Builder {
	return b.join("left", table, first, args, false)
}

// RightJoin adds a right join.
func (b *Builder) RightJoin(table any, first any, args ...any) *Builder {
	return b.join("right", table, first, args, false)
}

// JoinWhere adds an inner join whose condition compares a column with a
// bound value.
func (b *Builder) JoinWhere(table any, first any, args ...any) *Builder {
	return b.join("inner", table, first, args, true)
}

// LeftJoinWhere adds a left join with a value condition.
func (b *Builder) LeftJoinWhere(table any, first any, args ...any) *Builder {
	return b.join("left", table, first, args, true)
}

// CrossJoin adds a cross join; with conditions it behaves like an inner join
// of kind "cross".
func (b *Builder) CrossJoin(table any, args ...any) *Builder {
	if len(args) > 0 {
		return b.join("cross", table, args[0], args[1:], false)
	}
	j := newJoinClause(b, "cross", table)
	b.joins = append(b.joins, j)
	return b
}

func (b *Builder) join(kind string, table, first any, args []any, valueWhere bool) *Builder {
	j := newJoinClause(b, kind, table)

	switch {
	case isJoinCallback(first):
		first.(func(*JoinClause))(j)
	case valueWhere:
		j.Where(first, args...)
	default:
		j.On(first, args...)
	}

	if j.query.err != nil {
		return b.setErr(j.query.err)
	}
	b.joins = append(b.joins, j)
	b.addBinding(bindJoin, j.query.Bindings()...)
	return b
}

func isJoinCallback(v any) bool {
	_, ok := v.(func(*JoinClause))
	return ok
}

// JoinSub joins a sub-query under alias.
func (b *Builder) JoinSub(query any, alias string, first any, args ...any) *Builder {
	return b.joinSub("inner", query, alias, first, args)
}

// LeftJoinSub left joins a sub-query under alias.
func (b *Builder) LeftJoinSub(query any, alias string, first any, args ...any) *Builder {
	return b.joinSub("left", query, alias, first, args)
}

// RightJoinSub right joins a sub-query under alias.
func (b *Builder) RightJoinSub(query any, alias string, first any, args ...any) *Builder {
	return b.joinSub("right", query, alias, first, args)
}

func (b *Builder) joinSub(kind string, query any, alias string, first any, args []any) *Builder {
	sql, bindings, err := b.compileSub(query)
	if err != nil {
		return b.setErr(err)
	}
	table := Raw("(" + sql + ") as " + b.grammar.WrapTable(alias))
	b.addBinding(bindJoin, bindings...)
	return b.join(kind, table, first, args, false)
}
