package core

import (
	"strings"
)

// Table sets the table the query targets. It is an alias of From.
func (b *Builder) Table(table any, alias ...string) *Builder {
	return b.From(table, alias...)
}

// From sets the source table. A *Builder or func(*Builder) is treated as a
// sub-query and requires an alias.
func (b *Builder) From(table any, alias ...string) *Builder {
	switch t := table.(type) {
	case *Builder, func(*Builder):
		if len(alias) == 0 {
			return b.setErr(invalidArgument("a sub-query in from requires an alias"))
		}
		return b.FromSub(t, alias[0])
	case string:
		if len(alias) > 0 {
			b.from = t + " as " + alias[0]
			return b
		}
		b.from = t
	case Raw:
		b.from = t
	default:
		return b.setErr(invalidArgument("table must be string, Raw or sub-query, got %T", table))
	}
	return b
}

// FromSub selects from a sub-query under alias.
func (b *Builder) FromSub(query any, alias string) *Builder {
	sql, bindings, err := b.compileSub(query)
	if err != nil {
		return b.setErr(err)
	}
	b.from = Raw("(" + sql + ") as " + b.grammar.WrapTable(alias))
	b.bindings[bindFrom] = nil
	b.addBinding(bindFrom, bindings...)
	return b
}

// FromRaw sets a raw from clause.
func (b *Builder) FromRaw(sql string, bindings ...any) *Builder {
	b.from = Raw(sql)
	b.bindings[bindFrom] = nil
	b.addBinding(bindFrom, bindings...)
	return b
}

// Select replaces the selected columns. No columns means "*".
func (b *Builder) Select(columns ...any) *Builder {
	if len(columns) == 0 {
		columns = []any{"*"}
	}
	b.columns = nil
	b.bindings[bindSelect] = nil
	return b.AddSelect(columns...)
}

// AddSelect appends columns to the select list.
func (b *Builder) AddSelect(columns ...any) *Builder {
	for _, c := range columns {
		switch v := c.(type) {
		case string, Raw:
			b.columns = append(b.columns, v)
		case []string:
			for _, s := range v {
				b.columns = append(b.columns, s)
			}
		default:
			return b.setErr(invalidArgument("select column must be string or Raw, got %T", c))
		}
	}
	return b
}

// SelectRaw appends a raw select expression.
func (b *Builder) SelectRaw(sql string, bindings ...any) *Builder {
	b.columns = append(b.columns, Raw(sql))
	b.addBinding(bindSelect, bindings...)
	return b
}

// SelectSub appends a sub-query column under alias.
func (b *Builder) SelectSub(query any, alias string) *Builder {
	sql, bindings, err := b.compileSub(query)
	if err != nil {
		return b.setErr(err)
	}
	return b.SelectRaw("("+sql+") as "+b.grammar.Wrap(alias), bindings...)
}

// SelectExpr appends a structured expression, optionally aliased.
func (b *Builder) SelectExpr(exp Expression, alias ...string) *Builder {
	sql, bindings := exp.Build(b.grammar)
	if len(alias) > 0 && alias[0] != "" {
		sql += " as " + b.grammar.Wrap(alias[0])
	}
	return b.SelectRaw(sql, bindings...)
}

// Distinct makes the query return distinct rows.
func (b *Builder) Distinct() *Builder {
	b.distinct = true
	return b
}

// GroupBy appends grouping columns.
func (b *Builder) GroupBy(groups ...any) *Builder {
	for _, g := range groups {
		switch v := g.(type) {
		case string, Raw:
			b.groups = append(b.groups, v)
		default:
			return b.setErr(invalidArgument("group column must be string or Raw, got %T", g))
		}
	}
	return b
}

// GroupByRaw appends a raw grouping expression.
func (b *Builder) GroupByRaw(sql string, bindings ...any) *Builder {
	b.groups = append(b.groups, Raw(sql))
	b.addBinding(bindGroupBy, bindings...)
	return b
}

// Having adds a having condition: (value) or (operator, value).
func (b *Builder) Having(column any, args ...any) *Builder {
	return b.having("and", column, args)
}

// OrHaving adds a having condition joined with "or".
func (b *Builder) OrHaving(column any, args ...any) *Builder {
	return b.having("or", column, args)
}

func (b *Builder) having(boolean string, column any, args []any) *Builder {
	if len(args) == 0 {
		if exp, ok := column.(Expression); ok {
			sql, bindings := exp.Build(b.grammar)
			return b.havingRaw(boolean, sql, bindings)
		}
		return b.setErr(invalidArgument("having on %v requires a value", column))
	}
	operator, value, err := b.operatorAndValue(args)
	if err != nil {
		return b.setErr(err)
	}
	column = b.columnRef(column, bindHaving)
	if value == nil {
		b.havings = append(b.havings, &where{kind: whereNull, boolean: boolean, column: column, not: operator != "="})
		return b
	}
	b.havings = append(b.havings, &where{
		kind: whereBasic, boolean: boolean, column: column, operator: operator, value: value,
	})
	b.addBinding(bindHaving, value)
	return b
}

// HavingRaw adds a raw having condition.
func (b *Builder) HavingRaw(sql string, bindings ...any) *Builder {
	return b.havingRaw("and", sql, bindings)
}

// OrHavingRaw adds a raw having condition joined with "or".
func (b *Builder) OrHavingRaw(sql string, bindings ...any) *Builder {
	return b.havingRaw("or", sql, bindings)
}

func (b *Builder) havingRaw(boolean, sql string, bindings []any) *Builder {
	b.havings = append(b.havings, &where{kind: whereRaw, boolean: boolean, sql: sql})
	b.addBinding(bindHaving, bindings...)
	return b
}

// HavingBetween adds "column between ? and ?" to the having clause.
func (b *Builder) HavingBetween(column any, low, high any) *Builder {
	b.havings = append(b.havings, &where{kind: whereBetween, boolean: "and", column: column, values: []any{low, high}})
	b.addBinding(bindHaving, low, high)
	return b
}

// HavingNull adds "column is null" to the having clause.
func (b *Builder) HavingNull(column any) *Builder {
	b.havings = append(b.havings, &where{kind: whereNull, boolean: "and", column: column})
	return b
}

// HavingNotNull adds "column is not null" to the having clause.
func (b *Builder) HavingNotNull(column any) *Builder {
	b.havings = append(b.havings, &where{kind: whereNull, boolean: "and", column: column, not: true})
	return b
}

// OrderBy adds an ordering. direction defaults to "asc". After a union the
// ordering applies to the whole compound query.
func (b *Builder) OrderBy(column any, direction ...string) *Builder {
	dir := "asc"
	if len(direction) > 0 {
		dir = strings.ToLower(direction[0])
	}
	if dir != "asc" && dir != "desc" {
		return b.setErr(invalidArgument("order direction must be asc or desc, got %q", direction[0]))
	}

	switch c := column.(type) {
	case *Builder, func(*Builder):
		sql, bindings, err := b.compileSub(c)
		if err != nil {
			return b.setErr(err)
		}
		return b.OrderByRaw("("+sql+") "+dir, bindings...)
	case Raw, string:
		b.pushOrder(order{column: c, direction: dir})
		return b
	case Expression:
		sql, bindings := c.Build(b.grammar)
		return b.OrderByRaw(sql+" "+dir, bindings...)
	default:
		return b.setErr(invalidArgument("order column must be string, Raw or sub-query, got %T", column))
	}
}

// OrderByDesc adds a descending ordering.
func (b *Builder) OrderByDesc(column any) *Builder {
	return b.OrderBy(column, "desc")
}

// OrderByRaw adds a raw ordering.
func (b *Builder) OrderByRaw(sql string, bindings ...any) *Builder {
	b.pushOrder(order{sql: sql})
	if len(b.unions) > 0 {
		b.addBinding(bindUnionOrder, bindings...)
	} else {
		b.addBinding(bindOrder, bindings...)
	}
	return b
}

func (b *Builder) pushOrder(o order) {
	if len(b.unions) > 0 {
		b.unionOrders = append(b.unionOrders, o)
		return
	}
	b.orders = append(b.orders, o)
}

// Latest orders by column descending; the default column is "created_at".
func (b *Builder) Latest(column ...string) *Builder {
	c := "created_at"
	if len(column) > 0 {
		c = column[0]
	}
	return b.OrderBy(c, "desc")
}

// Oldest orders by column ascending; the default column is "created_at".
func (b *Builder) Oldest(column ...string) *Builder {
	c := "created_at"
	if len(column) > 0 {
		c = column[0]
	}
	return b.OrderBy(c, "asc")
}

// InRandomOrder orders rows randomly, with an optional seed where supported.
func (b *Builder) InRandomOrder(seed ...string) *Builder {
	s := ""
	if len(seed) > 0 {
		s = seed[0]
	}
	return b.OrderByRaw(b.grammar.dialect.RandomOrder(s))
}

// Reorder removes every ordering and its bindings.
func (b *Builder) Reorder() *Builder {
	b.orders = nil
	b.unionOrders = nil
	b.bindings[bindOrder] = nil
	b.bindings[bindUnionOrder] = nil
	return b
}

// Limit sets the maximum number of rows. After a union it limits the
// compound query.
func (b *Builder) Limit(n int) *Builder {
	if n < 0 {
		return b.setErr(invalidArgument("limit must not be negative, got %d", n))
	}
	if len(b.unions) > 0 {
		b.unionLimit = n
	} else {
		b.limit = n
	}
	return b
}

// Take is an alias of Limit.
func (b *Builder) Take(n int) *Builder { return b.Limit(n) }

// Offset sets the number of rows to skip. Negative values are clamped to 0.
func (b *Builder) Offset(n int) *Builder {
	n = max(n, 0)
	if len(b.unions) > 0 {
		b.unionOffset = n
	} else {
		b.offset = n
	}
	return b
}

// Skip is an alias of Offset.
func (b *Builder) Skip(n int) *Builder { return b.Offset(n) }

// ForPage limits the query to one page of results.
func (b *Builder) ForPage(page, perPage int) *Builder {
	return b.Offset((page - 1) * perPage).Limit(perPage)
}

// ForPageAfterID limits the query to perPage rows whose column is greater
// than lastID, ordered by column. A nil lastID starts from the beginning.
func (b *Builder) ForPageAfterID(perPage int, lastID any, column string) *Builder {
	b.removeOrdersFor(column)
	if lastID != nil {
		b.Where(column, ">", lastID)
	}
	return b.OrderBy(column, "asc").Limit(perPage)
}

// ForPageBeforeID is the descending counterpart of ForPageAfterID.
func (b *Builder) ForPageBeforeID(perPage int, lastID any, column string) *Builder {
	b.removeOrdersFor(column)
	if lastID != nil {
		b.Where(column, "<", lastID)
	}
	return b.OrderBy(column, "desc").Limit(perPage)
}

func (b *Builder) removeOrdersFor(column string) {
	kept := b.orders[:0:0]
	for _, o := range b.orders {
		if s, ok := o.column.(string); ok && s == column {
			continue
		}
		kept = append(kept, o)
	}
	b.orders = kept
}

// Union appends a union with query (*Builder or func(*Builder)).
func (b *Builder) Union(query any) *Builder { return b.union(query, false) }

// UnionAll appends a union all with query.
func (b *Builder) UnionAll(query any) *Builder { return b.union(query, true) }

func (b *Builder) union(query any, all bool) *Builder {
	sub, err := b.subQuery(query)
	if err != nil {
		return b.setErr(err)
	}
	if sub.err != nil {
		return b.setErr(sub.err)
	}
	b.unions = append(b.unions, union{query: sub, all: all})
	b.addBinding(bindUnion, sub.Bindings()...)
	return b
}

// LockForUpdate adds an exclusive row lock. Locked reads use the write handle.
func (b *Builder) LockForUpdate() *Builder { return b.Lock(true) }

// SharedLock adds a shared row lock.
func (b *Builder) SharedLock() *Builder { return b.Lock(false) }

// Lock sets the lock clause: true for exclusive, false for shared, or a raw
// string appended verbatim.
func (b *Builder) Lock(value any) *Builder {
	switch v := value.(type) {
	case bool:
		b.lock = lockState{set: true, exclusive: v}
	case string:
		b.lock = lockState{set: true, sql: v}
	default:
		return b.setErr(invalidArgument("lock must be bool or string, got %T", value))
	}
	b.useWrite = true
	return b
}

// When applies fn when condition is true, otherwise the optional fallback.
func (b *Builder) When(condition bool, fn func(*Builder), fallback ...func(*Builder)) *Builder {
	if condition {
		fn(b)
	} else if len(fallback) > 0 && fallback[0] != nil {
		fallback[0](b)
	}
	return b
}

// Tap passes the builder to fn and returns it.
func (b *Builder) Tap(fn func(*Builder)) *Builder {
	fn(b)
	return b
}
