package core

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// ready reports the recorded build error, or ErrNoConnection when the
// builder cannot execute.
func (b *Builder) ready() error {
	if b.err != nil {
		return b.err
	}
	if b.conn == nil {
		return ErrNoConnection
	}
	return nil
}

func (b *Builder) useRead() bool { return !b.useWrite }

// Get runs the query and returns every row. columns apply only when the
// builder has no select list of its own.
func (b *Builder) Get(ctx context.Context, columns ...any) ([]Row, error) {
	q := b.withColumns(columns)
	if err := q.ready(); err != nil {
		return nil, err
	}
	sql, err := q.ToSQL()
	if err != nil {
		return nil, err
	}
	return q.conn.Select(ctx, sql, q.Bindings(), q.useRead())
}

func (b *Builder) withColumns(columns []any) *Builder {
	if len(columns) == 0 || len(b.columns) > 0 {
		return b
	}
	q := b.Clone()
	q.columns = columns
	return q
}

// First returns the first row, or nil when the query matches nothing.
func (b *Builder) First(ctx context.Context, columns ...any) (Row, error) {
	rows, err := b.Clone().Limit(1).Get(ctx, columns...)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// Find returns the row whose id equals id.
func (b *Builder) Find(ctx context.Context, id any, columns ...any) (Row, error) {
	return b.Clone().Where("id", "=", id).First(ctx, columns...)
}

// Value returns a single column of the first row.
func (b *Builder) Value(ctx context.Context, column any) (any, error) {
	row, err := b.First(ctx, column)
	if err != nil || row == nil {
		return nil, err
	}
	if v, ok := row[resultKey(column)]; ok {
		return v, nil
	}
	for _, v := range row {
		return v, nil
	}
	return nil, nil
}

// Pluck returns one column of every row.
func (b *Builder) Pluck(ctx context.Context, column any) ([]any, error) {
	q := b.Clone()
	q.columns = []any{column}
	q.bindings[bindSelect] = nil
	rows, err := q.Get(ctx)
	if err != nil {
		return nil, err
	}
	key := resultKey(column)
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r[key]
	}
	return out, nil
}

// resultKey is the key a selected column has in a result row: its alias,
// or its last dotted segment.
func resultKey(column any) string {
	s, ok := column.(string)
	if !ok {
		if r, isRaw := column.(Raw); isRaw {
			s = string(r)
		}
	}
	if parts := aliasSplit.Split(s, 2); len(parts) == 2 {
		return parts[1]
	}
	if i := strings.LastIndex(s, "."); i >= 0 {
		return s[i+1:]
	}
	return s
}

// GetInto scans every row into dest, a pointer to a slice of structs.
func (b *Builder) GetInto(ctx context.Context, dest any) error {
	if err := b.ready(); err != nil {
		return err
	}
	sql, err := b.ToSQL()
	if err != nil {
		return err
	}
	return b.conn.SelectInto(ctx, sql, b.Bindings(), b.useRead(), false, dest)
}

// FirstInto scans the first row into dest, a pointer to struct. It returns
// ErrNoRows when nothing matches.
func (b *Builder) FirstInto(ctx context.Context, dest any) error {
	q := b.Clone().Limit(1)
	if err := q.ready(); err != nil {
		return err
	}
	sql, err := q.ToSQL()
	if err != nil {
		return err
	}
	return q.conn.SelectInto(ctx, sql, q.Bindings(), q.useRead(), true, dest)
}

// Cursor runs the query and returns a forward-only cursor. The caller
// must close it.
func (b *Builder) Cursor(ctx context.Context) (*Cursor, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	sql, err := b.ToSQL()
	if err != nil {
		return nil, err
	}
	return b.conn.Cursor(ctx, sql, b.Bindings(), b.useRead())
}

// Exists reports whether the query matches any row.
func (b *Builder) Exists(ctx context.Context) (bool, error) {
	if err := b.ready(); err != nil {
		return false, err
	}
	rows, err := b.conn.Select(ctx, b.grammar.CompileExists(b), b.Bindings(), b.useRead())
	if err != nil || len(rows) == 0 {
		return false, err
	}
	return toBool(rows[0]["exists"]), nil
}

// DoesntExist is the negation of Exists.
func (b *Builder) DoesntExist(ctx context.Context) (bool, error) {
	ok, err := b.Exists(ctx)
	return !ok, err
}

// Explain runs the dialect's EXPLAIN over the query.
func (b *Builder) Explain(ctx context.Context) ([]Row, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	sql, err := b.ToSQL()
	if err != nil {
		return nil, err
	}
	return b.conn.Select(ctx, b.grammar.CompileExplain(sql), b.Bindings(), b.useRead())
}

// Aggregate runs function over columns and returns the raw result, nil
// when no row came back.
func (b *Builder) Aggregate(ctx context.Context, function string, columns ...any) (any, error) {
	if len(columns) == 0 {
		columns = []any{"*"}
	}
	q := b.Clone()
	if len(q.unions) == 0 && len(q.havings) == 0 {
		q.columns = nil
		q.bindings[bindSelect] = nil
	}
	if len(q.groups) == 0 {
		q.orders = nil
		q.bindings[bindOrder] = nil
	}
	q.aggregate = &aggregate{function: function, columns: columns}

	if err := q.ready(); err != nil {
		return nil, err
	}
	sql, err := q.ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := q.conn.Select(ctx, sql, q.Bindings(), q.useRead())
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0]["aggregate"], nil
}

// Count returns the number of matching rows.
func (b *Builder) Count(ctx context.Context, columns ...any) (int64, error) {
	v, err := b.Aggregate(ctx, "count", columns...)
	if err != nil {
		return 0, err
	}
	return toInt64(v)
}

// Min returns the smallest value of column.
func (b *Builder) Min(ctx context.Context, column any) (any, error) {
	return b.Aggregate(ctx, "min", column)
}

// Max returns the largest value of column.
func (b *Builder) Max(ctx context.Context, column any) (any, error) {
	return b.Aggregate(ctx, "max", column)
}

// Sum returns the sum of column, 0 when there is nothing to add.
func (b *Builder) Sum(ctx context.Context, column any) (any, error) {
	v, err := b.Aggregate(ctx, "sum", column)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return int64(0), nil
	}
	return v, nil
}

// Avg returns the average of column.
func (b *Builder) Avg(ctx context.Context, column any) (any, error) {
	return b.Aggregate(ctx, "avg", column)
}

// Average is an alias of Avg.
func (b *Builder) Average(ctx context.Context, column any) (any, error) {
	return b.Avg(ctx, column)
}

// insertRows normalizes values, a map or a slice of maps, into a sorted
// column list and rows in column order. Every row must carry the same keys.
func insertRows(values any) ([]string, [][]any, error) {
	var maps []map[string]any
	switch v := values.(type) {
	case map[string]any:
		if len(v) > 0 {
			maps = []map[string]any{v}
		}
	case Row:
		if len(v) > 0 {
			maps = []map[string]any{v}
		}
	case []map[string]any:
		maps = v
	case []Row:
		for _, r := range v {
			maps = append(maps, r)
		}
	default:
		return nil, nil, invalidArgument("insert values must be a map or a slice of maps, got %T", values)
	}
	if len(maps) == 0 {
		return nil, nil, nil
	}

	columns := sortedKeys(maps[0])
	rows := make([][]any, len(maps))
	for i, m := range maps {
		if len(m) != len(columns) {
			return nil, nil, invalidArgument("insert row %d has different columns", i)
		}
		row := make([]any, len(columns))
		for j, c := range columns {
			v, ok := m[c]
			if !ok {
				return nil, nil, invalidArgument("insert row %d is missing column %q", i, c)
			}
			row[j] = v
		}
		rows[i] = row
	}
	return columns, rows, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// flattenValues returns the bindings of insert rows, skipping Raw values.
func flattenValues(rows [][]any) []any {
	var out []any
	for _, r := range rows {
		for _, v := range r {
			if _, ok := v.(Raw); ok {
				continue
			}
			out = append(out, v)
		}
	}
	return out
}

// Insert inserts one row (map) or several (slice of maps). Inserting
// nothing succeeds without touching the database.
func (b *Builder) Insert(ctx context.Context, values any) error {
	if err := b.ready(); err != nil {
		return err
	}
	columns, rows, err := insertRows(values)
	if err != nil || len(rows) == 0 {
		return err
	}
	return b.conn.Insert(ctx, b.grammar.CompileInsert(b, columns, rows), flattenValues(rows))
}

// InsertGetID inserts one row and returns its generated key. sequence
// names the key column and defaults to "id".
func (b *Builder) InsertGetID(ctx context.Context, values map[string]any, sequence ...string) (int64, error) {
	if err := b.ready(); err != nil {
		return 0, err
	}
	seq := "id"
	if len(sequence) > 0 && sequence[0] != "" {
		seq = sequence[0]
	}
	columns := sortedKeys(values)
	row := make([]any, len(columns))
	for i, c := range columns {
		row[i] = values[c]
	}
	sql := b.grammar.CompileInsertGetID(b, columns, row, seq)
	return b.conn.processor.ProcessInsertGetID(ctx, b, sql, flattenValues([][]any{row}), seq)
}

// InsertOrIgnore inserts rows, skipping those that violate a unique
// constraint, and returns the number inserted.
func (b *Builder) InsertOrIgnore(ctx context.Context, values any) (int64, error) {
	if err := b.ready(); err != nil {
		return 0, err
	}
	columns, rows, err := insertRows(values)
	if err != nil || len(rows) == 0 {
		return 0, err
	}
	return b.conn.AffectingStatement(ctx, b.grammar.CompileInsertOrIgnore(b, columns, rows), flattenValues(rows))
}

// Upsert inserts rows and updates the update columns of rows conflicting
// on uniqueBy. Without update columns every inserted column is updated.
func (b *Builder) Upsert(ctx context.Context, values any, uniqueBy []string, update ...string) (int64, error) {
	if err := b.ready(); err != nil {
		return 0, err
	}
	if len(uniqueBy) == 0 {
		return 0, invalidArgument("upsert requires at least one unique column")
	}
	columns, rows, err := insertRows(values)
	if err != nil || len(rows) == 0 {
		return 0, err
	}
	if len(update) == 0 {
		update = columns
	}
	sql := b.grammar.CompileUpsert(b, columns, rows, uniqueBy, update)
	return b.conn.AffectingStatement(ctx, sql, flattenValues(rows))
}

// Update sets values on every matching row and returns the affected count.
// Columns are assigned in sorted order.
func (b *Builder) Update(ctx context.Context, values map[string]any) (int64, error) {
	if len(values) == 0 {
		return 0, b.setErr(invalidArgument("update requires at least one column")).err
	}
	assignments := make([]assignment, 0, len(values))
	for _, k := range sortedKeys(values) {
		assignments = append(assignments, assignment{column: k, value: values[k]})
	}
	return b.update(ctx, assignments)
}

func (b *Builder) update(ctx context.Context, values []assignment) (int64, error) {
	if err := b.ready(); err != nil {
		return 0, err
	}
	sql := b.grammar.CompileUpdate(b, values)
	return b.conn.Update(ctx, sql, b.grammar.PrepareBindingsForUpdate(b, values))
}

// UpdateOrInsert updates the row matching attributes with values, or
// inserts attributes and values together when no row matches.
func (b *Builder) UpdateOrInsert(ctx context.Context, attributes, values map[string]any) (bool, error) {
	exists, err := b.Clone().Where(attributes).Exists(ctx)
	if err != nil {
		return false, err
	}
	if !exists {
		merged := make(map[string]any, len(attributes)+len(values))
		for k, v := range attributes {
			merged[k] = v
		}
		for k, v := range values {
			merged[k] = v
		}
		return true, b.Insert(ctx, merged)
	}
	if len(values) == 0 {
		return true, nil
	}
	n, err := b.Clone().Where(attributes).Limit(1).Update(ctx, values)
	return n > 0, err
}

// Increment adds amount to column. extra columns are updated in the same
// statement, after the increment.
func (b *Builder) Increment(ctx context.Context, column string, amount any, extra ...map[string]any) (int64, error) {
	return b.step(ctx, column, "+", amount, extra)
}

// Decrement subtracts amount from column.
func (b *Builder) Decrement(ctx context.Context, column string, amount any, extra ...map[string]any) (int64, error) {
	return b.step(ctx, column, "-", amount, extra)
}

func (b *Builder) step(ctx context.Context, column, sign string, amount any, extra []map[string]any) (int64, error) {
	if !isNumeric(amount) {
		return 0, b.setErr(invalidArgument("non-numeric value passed to increment method: %v", amount)).err
	}
	values := []assignment{{
		column: column,
		value:  Raw(fmt.Sprintf("%s %s %v", b.grammar.Wrap(column), sign, amount)),
	}}
	for _, m := range extra {
		for _, k := range sortedKeys(m) {
			if k == column {
				values[0].value = m[k]
				continue
			}
			values = append(values, assignment{column: k, value: m[k]})
		}
	}
	return b.update(ctx, values)
}

func isNumeric(v any) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// Delete removes the matching rows. An id narrows the delete to that row
// of the builder's table.
func (b *Builder) Delete(ctx context.Context, id ...any) (int64, error) {
	q := b
	if len(id) > 0 {
		column := "id"
		if b.from != nil {
			column = tableAlias(b.from) + ".id"
		}
		q = b.Clone().Where(column, "=", id[0])
	}
	if err := q.ready(); err != nil {
		return 0, err
	}
	return q.conn.Delete(ctx, q.grammar.CompileDelete(q), q.grammar.PrepareBindingsForDelete(q))
}

// Truncate removes every row of the table and resets its sequences where
// the dialect supports it.
func (b *Builder) Truncate(ctx context.Context) error {
	if err := b.ready(); err != nil {
		return err
	}
	for _, st := range b.grammar.CompileTruncate(b) {
		if err := b.conn.Statement(ctx, st.SQL, st.Bindings); err != nil {
			return err
		}
	}
	return nil
}
