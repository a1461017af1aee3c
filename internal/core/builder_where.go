package core

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

type whereKind int

const (
	whereBasic whereKind = iota
	whereColumn
	whereNested
	whereSub
	whereIn
	whereInSub
	whereNull
	whereBetween
	whereExists
	whereDate
	whereRaw
)

// where is one condition of a WHERE, HAVING or join ON list.
type where struct {
	kind     whereKind
	boolean  string
	not      bool
	column   any
	operator string
	value    any
	values   []any
	second   any
	query    *Builder
	sql      string
	datePart string
}

func cloneWheres(ws []*where) []*where {
	if ws == nil {
		return nil
	}
	out := make([]*where, len(ws))
	for i, w := range ws {
		c := *w
		c.values = cloneSlice(w.values)
		if w.query != nil {
			c.query = w.query.Clone()
		}
		out[i] = &c
	}
	return out
}

// Where adds a condition joined with "and".
//
//	Where("votes", 100)              // "votes" = ?
//	Where("votes", ">", 100)         // "votes" > ?
//	Where("deleted_at", nil)         // "deleted_at" is null
//	Where(map[string]any{"a": 1})    // ("a" = ?)
//	Where(func(q *Builder) {...})    // nested group
//	Where(Eq("status", 1))           // structured expression
func (b *Builder) Where(column any, args ...any) *Builder {
	return b.addWhere("and", column, args)
}

// OrWhere adds a condition joined with "or".
func (b *Builder) OrWhere(column any, args ...any) *Builder {
	return b.addWhere("or", column, args)
}

// WhereNot adds a negated nested group.
func (b *Builder) WhereNot(column any, args ...any) *Builder {
	return b.whereNegated("and", column, args)
}

// OrWhereNot adds a negated nested group joined with "or".
func (b *Builder) OrWhereNot(column any, args ...any) *Builder {
	return b.whereNegated("or", column, args)
}

func (b *Builder) whereNegated(boolean string, column any, args []any) *Builder {
	return b.whereNested(boolean, true, func(q *Builder) {
		q.addWhere("and", column, args)
	})
}

func (b *Builder) addWhere(boolean string, column any, args []any) *Builder {
	if len(args) == 0 {
		switch c := column.(type) {
		case map[string]any:
			return b.whereMap(boolean, c)
		case [][]any:
			return b.whereList(boolean, c)
		case func(*Builder):
			return b.whereNested(boolean, false, c)
		case Raw:
			return b.whereRaw(boolean, string(c), nil)
		case Expression:
			sql, bindings := c.Build(b.grammar)
			if sql == "" {
				return b
			}
			return b.whereRaw(boolean, "("+sql+")", bindings)
		default:
			return b.setErr(invalidArgument("where on %v requires a value", column))
		}
	}

	operator, value, err := b.operatorAndValue(args)
	if err != nil {
		return b.setErr(err)
	}
	column = b.columnRef(column, bindWhere)

	switch v := value.(type) {
	case func(*Builder), *Builder:
		sql, bindings, err := b.compileSub(v)
		if err != nil {
			return b.setErr(err)
		}
		b.wheres = append(b.wheres, &where{
			kind: whereSub, boolean: boolean, column: column, operator: operator, sql: sql,
		})
		b.addBinding(bindWhere, bindings...)
		return b
	case nil:
		return b.addNull(boolean, column, operator != "=")
	}

	b.wheres = append(b.wheres, &where{
		kind: whereBasic, boolean: boolean, column: column, operator: operator, value: value,
	})
	b.addBinding(bindWhere, value)
	return b
}

// operatorAndValue normalizes (value) and (operator, value) argument lists.
// An unknown operator is taken as the value compared with "=".
func (b *Builder) operatorAndValue(args []any) (string, any, error) {
	switch len(args) {
	case 1:
		return "=", args[0], nil
	case 2:
		op, ok := args[0].(string)
		if !ok {
			return "", nil, invalidArgument("operator must be a string, got %T", args[0])
		}
		value := args[1]
		if value == nil && b.grammar.isOperator(op) && !isEqualityOperator(op) {
			return "", nil, invalidArgument("illegal operator and value combination: %s null", op)
		}
		if !b.grammar.isOperator(op) {
			return "=", op, nil
		}
		return strings.ToLower(op), value, nil
	default:
		return "", nil, invalidArgument("expected (value) or (operator, value), got %d arguments", len(args))
	}
}

func isEqualityOperator(op string) bool {
	return op == "=" || op == "<>" || op == "!="
}

func (b *Builder) whereMap(boolean string, m map[string]any) *Builder {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return b.whereNested(boolean, false, func(q *Builder) {
		for _, k := range keys {
			q.Where(k, "=", m[k])
		}
	})
}

func (b *Builder) whereList(boolean string, list [][]any) *Builder {
	return b.whereNested(boolean, false, func(q *Builder) {
		for _, cond := range list {
			if len(cond) == 0 {
				q.setErr(invalidArgument("empty condition in where list"))
				continue
			}
			q.Where(cond[0], cond[1:]...)
		}
	})
}

// WhereNested adds a parenthesized group built by fn.
func (b *Builder) WhereNested(fn func(*Builder), boolean ...string) *Builder {
	conj := "and"
	if len(boolean) > 0 {
		conj = boolean[0]
	}
	return b.whereNested(conj, false, fn)
}

func (b *Builder) whereNested(boolean string, not bool, fn func(*Builder)) *Builder {
	q := b.NewQuery()
	q.from = b.from
	fn(q)
	return b.addNestedWhereQuery(q, boolean, not)
}

func (b *Builder) addNestedWhereQuery(q *Builder, boolean string, not bool) *Builder {
	if q.err != nil {
		return b.setErr(q.err)
	}
	if len(q.wheres) == 0 {
		return b
	}
	b.wheres = append(b.wheres, &where{kind: whereNested, boolean: boolean, not: not, query: q})
	b.addBinding(bindWhere, q.bindings[bindWhere]...)
	return b
}

// WhereRaw adds a raw condition.
func (b *Builder) WhereRaw(sql string, bindings ...any) *Builder {
	return b.whereRaw("and", sql, bindings)
}

// OrWhereRaw adds a raw condition joined with "or".
func (b *Builder) OrWhereRaw(sql string, bindings ...any) *Builder {
	return b.whereRaw("or", sql, bindings)
}

func (b *Builder) whereRaw(boolean, sql string, bindings []any) *Builder {
	b.wheres = append(b.wheres, &where{kind: whereRaw, boolean: boolean, sql: sql})
	b.addBinding(bindWhere, bindings...)
	return b
}

// WhereColumn compares two columns: (first, second) or (first, operator, second).
func (b *Builder) WhereColumn(first any, args ...any) *Builder {
	return b.whereColumn("and", first, args)
}

// OrWhereColumn compares two columns, joined with "or".
func (b *Builder) OrWhereColumn(first any, args ...any) *Builder {
	return b.whereColumn("or", first, args)
}

func (b *Builder) whereColumn(boolean string, first any, args []any) *Builder {
	if pairs, ok := first.([][]any); ok && len(args) == 0 {
		return b.whereNested(boolean, false, func(q *Builder) {
			for _, p := range pairs {
				if len(p) == 0 {
					continue
				}
				q.WhereColumn(p[0], p[1:]...)
			}
		})
	}

	var operator string
	var second any
	switch len(args) {
	case 1:
		operator, second = "=", args[0]
	case 2:
		op, ok := args[0].(string)
		if !ok {
			return b.setErr(invalidArgument("operator must be a string, got %T", args[0]))
		}
		operator, second = op, args[1]
		if !b.grammar.isOperator(op) {
			operator, second = "=", op
		}
	default:
		return b.setErr(invalidArgument("where column expects (second) or (operator, second)"))
	}
	first = b.columnRef(first, bindWhere)
	second = b.columnRef(second, bindWhere)

	b.wheres = append(b.wheres, &where{
		kind: whereColumn, boolean: boolean, column: first, operator: strings.ToLower(operator), second: second,
	})
	return b
}

// WhereIn adds "column in (...)". values may be a slice, a *Builder or a
// func(*Builder).
func (b *Builder) WhereIn(column any, values any) *Builder {
	return b.whereIn("and", column, values, false)
}

// OrWhereIn adds "column in (...)" joined with "or".
func (b *Builder) OrWhereIn(column any, values any) *Builder {
	return b.whereIn("or", column, values, false)
}

// WhereNotIn adds "column not in (...)".
func (b *Builder) WhereNotIn(column any, values any) *Builder {
	return b.whereIn("and", column, values, true)
}

// OrWhereNotIn adds "column not in (...)" joined with "or".
func (b *Builder) OrWhereNotIn(column any, values any) *Builder {
	return b.whereIn("or", column, values, true)
}

func (b *Builder) whereIn(boolean string, column, values any, not bool) *Builder {
	switch v := values.(type) {
	case *Builder, func(*Builder):
		sql, bindings, err := b.compileSub(v)
		if err != nil {
			return b.setErr(err)
		}
		column = b.columnRef(column, bindWhere)
		b.wheres = append(b.wheres, &where{kind: whereInSub, boolean: boolean, not: not, column: column, sql: sql})
		b.addBinding(bindWhere, bindings...)
		return b
	}

	list, err := toAnySlice(values)
	if err != nil {
		return b.setErr(err)
	}
	// An empty list compiles to a constant and never renders the column.
	if len(list) > 0 {
		column = b.columnRef(column, bindWhere)
	}
	b.wheres = append(b.wheres, &where{kind: whereIn, boolean: boolean, not: not, column: column, values: list})
	b.addBinding(bindWhere, list...)
	return b
}

// toAnySlice converts any slice or array into []any.
// columnRef renders an Expression given in column position as Raw SQL and
// adds its bindings to category, ahead of the condition's own values.
func (b *Builder) columnRef(column any, category bindingCategory) any {
	exp, ok := column.(Expression)
	if !ok {
		return column
	}
	if r, ok := column.(Raw); ok {
		return r
	}
	sql, bindings := exp.Build(b.grammar)
	b.addBinding(category, bindings...)
	return Raw(sql)
}

func toAnySlice(values any) ([]any, error) {
	if values == nil {
		return nil, nil
	}
	if s, ok := values.([]any); ok {
		return s, nil
	}
	rv := reflect.ValueOf(values)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, invalidArgument("expected a list of values, got %T", values)
	}
	// []byte is a single value, not a list.
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, invalidArgument("expected a list of values, got %T", values)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

// WhereNull adds "column is null".
func (b *Builder) WhereNull(column any) *Builder { return b.addNull("and", column, false) }

// OrWhereNull adds "column is null" joined with "or".
func (b *Builder) OrWhereNull(column any) *Builder { return b.addNull("or", column, false) }

// WhereNotNull adds "column is not null".
func (b *Builder) WhereNotNull(column any) *Builder { return b.addNull("and", column, true) }

// OrWhereNotNull adds "column is not null" joined with "or".
func (b *Builder) OrWhereNotNull(column any) *Builder { return b.addNull("or", column, true) }

func (b *Builder) addNull(boolean string, column any, not bool) *Builder {
	column = b.columnRef(column, bindWhere)
	b.wheres = append(b.wheres, &where{kind: whereNull, boolean: boolean, not: not, column: column})
	return b
}

// WhereBetween adds "column between ? and ?".
func (b *Builder) WhereBetween(column any, low, high any) *Builder {
	return b.addBetween("and", column, low, high, false)
}

// OrWhereBetween adds a between condition joined with "or".
func (b *Builder) OrWhereBetween(column any, low, high any) *Builder {
	return b.addBetween("or", column, low, high, false)
}

// WhereNotBetween adds "column not between ? and ?".
func (b *Builder) WhereNotBetween(column any, low, high any) *Builder {
	return b.addBetween("and", column, low, high, true)
}

// OrWhereNotBetween adds a not-between condition joined with "or".
func (b *Builder) OrWhereNotBetween(column any, low, high any) *Builder {
	return b.addBetween("or", column, low, high, true)
}

func (b *Builder) addBetween(boolean string, column, low, high any, not bool) *Builder {
	column = b.columnRef(column, bindWhere)
	b.wheres = append(b.wheres, &where{
		kind: whereBetween, boolean: boolean, not: not, column: column, values: []any{low, high},
	})
	b.addBinding(bindWhere, low, high)
	return b
}

// WhereExists adds "exists (sub-query)".
func (b *Builder) WhereExists(query any) *Builder { return b.addExists("and", query, false) }

// OrWhereExists adds an exists condition joined with "or".
func (b *Builder) OrWhereExists(query any) *Builder { return b.addExists("or", query, false) }

// WhereNotExists adds "not exists (sub-query)".
func (b *Builder) WhereNotExists(query any) *Builder { return b.addExists("and", query, true) }

// OrWhereNotExists adds a not-exists condition joined with "or".
func (b *Builder) OrWhereNotExists(query any) *Builder { return b.addExists("or", query, true) }

func (b *Builder) addExists(boolean string, query any, not bool) *Builder {
	sql, bindings, err := b.compileSub(query)
	if err != nil {
		return b.setErr(err)
	}
	b.wheres = append(b.wheres, &where{kind: whereExists, boolean: boolean, not: not, sql: sql})
	b.addBinding(bindWhere, bindings...)
	return b
}

// WhereDate compares the date part of a column.
func (b *Builder) WhereDate(column any, args ...any) *Builder {
	return b.addDate("and", "Date", column, args)
}

// OrWhereDate compares the date part of a column, joined with "or".
func (b *Builder) OrWhereDate(column any, args ...any) *Builder {
	return b.addDate("or", "Date", column, args)
}

// WhereTime compares the time part of a column.
func (b *Builder) WhereTime(column any, args ...any) *Builder {
	return b.addDate("and", "Time", column, args)
}

// OrWhereTime compares the time part of a column, joined with "or".
func (b *Builder) OrWhereTime(column any, args ...any) *Builder {
	return b.addDate("or", "Time", column, args)
}

// WhereDay compares the day of month of a column.
func (b *Builder) WhereDay(column any, args ...any) *Builder {
	return b.addDate("and", "Day", column, args)
}

// OrWhereDay compares the day of month, joined with "or".
func (b *Builder) OrWhereDay(column any, args ...any) *Builder {
	return b.addDate("or", "Day", column, args)
}

// WhereMonth compares the month of a column.
func (b *Builder) WhereMonth(column any, args ...any) *Builder {
	return b.addDate("and", "Month", column, args)
}

// OrWhereMonth compares the month, joined with "or".
func (b *Builder) OrWhereMonth(column any, args ...any) *Builder {
	return b.addDate("or", "Month", column, args)
}

// WhereYear compares the year of a column.
func (b *Builder) WhereYear(column any, args ...any) *Builder {
	return b.addDate("and", "Year", column, args)
}

// OrWhereYear compares the year, joined with "or".
func (b *Builder) OrWhereYear(column any, args ...any) *Builder {
	return b.addDate("or", "Year", column, args)
}

func (b *Builder) addDate(boolean, part string, column any, args []any) *Builder {
	operator, value, err := b.operatorAndValue(args)
	if err != nil {
		return b.setErr(err)
	}
	value = formatDatePart(part, value)
	column = b.columnRef(column, bindWhere)
	b.wheres = append(b.wheres, &where{
		kind: whereDate, boolean: boolean, datePart: part, column: column, operator: operator, value: value,
	})
	b.addBinding(bindWhere, value)
	return b
}

// formatDatePart renders time values as the string the date function yields
// and pads day and month numbers to two digits.
func formatDatePart(part string, value any) any {
	if t, ok := value.(time.Time); ok {
		switch part {
		case "Date":
			return t.Format("2006-01-02")
		case "Time":
			return t.Format("15:04:05")
		case "Day":
			return t.Format("02")
		case "Month":
			return t.Format("01")
		case "Year":
			return t.Format("2006")
		}
	}
	if part == "Day" || part == "Month" {
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return fmt.Sprintf("%02d", v)
		case string:
			if len(v) == 1 {
				return "0" + v
			}
		}
	}
	return value
}

// WhereKey filters by the "id" column; several ids produce an IN list.
func (b *Builder) WhereKey(ids ...any) *Builder {
	switch len(ids) {
	case 0:
		return b.setErr(invalidArgument("where key requires at least one id"))
	case 1:
		return b.Where("id", "=", ids[0])
	default:
		return b.WhereIn("id", ids)
	}
}
