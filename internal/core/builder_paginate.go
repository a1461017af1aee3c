package core

import (
	"context"
	"errors"
)

func normalizePage(perPage, page int) (int, int) {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	return perPage, max(page, 1)
}

// Paginate returns page of the query with perPage rows and the total row
// count. The count runs first; a zero total skips the page query.
func (b *Builder) Paginate(ctx context.Context, perPage, page int, columns ...any) (*LengthAwarePaginator, error) {
	perPage, page = normalizePage(perPage, page)
	total, err := b.GetCountForPagination(ctx)
	if err != nil {
		return nil, err
	}
	items := []Row{}
	if total > 0 {
		if items, err = b.Clone().ForPage(page, perPage).Get(ctx, columns...); err != nil {
			return nil, err
		}
	}
	return newLengthAwarePaginator(items, total, perPage, page), nil
}

// SimplePaginate returns page of the query without counting the total.
// One extra row is fetched to learn whether another page follows.
func (b *Builder) SimplePaginate(ctx context.Context, perPage, page int, columns ...any) (*Paginator, error) {
	perPage, page = normalizePage(perPage, page)
	items, err := b.Clone().Offset((page-1)*perPage).Limit(perPage+1).Get(ctx, columns...)
	if err != nil {
		return nil, err
	}
	hasMore := len(items) > perPage
	if hasMore {
		items = items[:perPage]
	}
	return &Paginator{Items: items, PerPage: perPage, CurrentPage: page, HasMore: hasMore, PageName: "page"}, nil
}

// GetCountForPagination counts the rows the query would return without its
// ordering and paging. Grouped and distinct queries are counted through a
// derived table.
func (b *Builder) GetCountForPagination(ctx context.Context, columns ...any) (int64, error) {
	if len(columns) == 0 {
		columns = []any{"*"}
	}
	counted := &aggregate{function: "count", columns: withoutSelectAliases(columns)}

	var q *Builder
	switch {
	case len(b.groups) > 0 || len(b.havings) > 0 || b.distinct:
		clone := b.CloneWithout("orders", "limit", "offset").CloneWithoutBindings("order")
		if len(clone.columns) == 0 && len(b.joins) > 0 && b.from != nil {
			clone.Select(tableAlias(b.from) + ".*")
		}
		sql, err := clone.ToSQL()
		if err != nil {
			return 0, err
		}
		q = b.NewQuery().FromRaw("("+sql+") as "+b.grammar.Wrap("aggregate_table"), clone.Bindings()...)
	case len(b.unions) > 0:
		q = b.CloneWithout("orders", "limit", "offset", "unionOrders", "unionLimit", "unionOffset").
			CloneWithoutBindings("order", "unionOrder")
	default:
		q = b.CloneWithout("columns", "orders", "limit", "offset").CloneWithoutBindings("select", "order")
	}
	q.useWrite = b.useWrite
	q.aggregate = counted

	rows, err := q.Get(ctx)
	if err != nil || len(rows) == 0 {
		return 0, err
	}
	return toInt64(rows[0]["aggregate"])
}

func withoutSelectAliases(columns []any) []any {
	out := make([]any, len(columns))
	for i, c := range columns {
		if s, ok := c.(string); ok {
			if parts := aliasSplit.Split(s, 2); len(parts) == 2 {
				c = parts[0]
			}
		}
		out[i] = c
	}
	return out
}

// Chunk runs the query page by page, count rows at a time, and passes each
// page to fn. The query must be ordered. Returning ErrStopChunk from fn
// stops early and yields (false, nil).
func (b *Builder) Chunk(ctx context.Context, count int, fn func(rows []Row, page int) error) (bool, error) {
	if len(b.orders) == 0 && len(b.unionOrders) == 0 {
		return false, ErrMissingOrder
	}
	if count <= 0 {
		return false, invalidArgument("chunk size must be positive, got %d", count)
	}

	for page := 1; ; page++ {
		rows, err := b.Clone().ForPage(page, count).Get(ctx)
		if err != nil {
			return false, err
		}
		if len(rows) == 0 {
			return true, nil
		}
		if err := fn(rows, page); err != nil {
			if errors.Is(err, ErrStopChunk) {
				return false, nil
			}
			return false, err
		}
		if len(rows) < count {
			return true, nil
		}
	}
}

// ChunkByID pages through the query by comparing column with the last id
// seen, which stays correct when fn modifies rows. alias names the key in
// the result rows when it differs from column.
func (b *Builder) ChunkByID(ctx context.Context, count int, fn func(rows []Row, page int) error, column string, alias ...string) (bool, error) {
	if count <= 0 {
		return false, invalidArgument("chunk size must be positive, got %d", count)
	}
	if column == "" {
		column = "id"
	}
	key := resultKey(column)
	if len(alias) > 0 && alias[0] != "" {
		key = alias[0]
	}

	var lastID any
	for page := 1; ; page++ {
		rows, err := b.Clone().ForPageAfterID(count, lastID, column).Get(ctx)
		if err != nil {
			return false, err
		}
		if len(rows) == 0 {
			return true, nil
		}
		if err := fn(rows, page); err != nil {
			if errors.Is(err, ErrStopChunk) {
				return false, nil
			}
			return false, err
		}
		lastID = rows[len(rows)-1][key]
		if lastID == nil {
			return false, invalidArgument("chunk by id aborted: column %q is not present in the query result", key)
		}
		if len(rows) < count {
			return true, nil
		}
	}
}

// Each calls fn for every row, fetching count rows per query (1000 by
// default). The query must be ordered.
func (b *Builder) Each(ctx context.Context, fn func(row Row) error, count ...int) (bool, error) {
	return b.Chunk(ctx, chunkSize(count), eachRow(fn))
}

// EachByID is the ChunkByID counterpart of Each.
func (b *Builder) EachByID(ctx context.Context, fn func(row Row) error, column string, count ...int) (bool, error) {
	return b.ChunkByID(ctx, chunkSize(count), eachRow(fn), column)
}

func chunkSize(count []int) int {
	if len(count) > 0 {
		return count[0]
	}
	return 1000
}

func eachRow(fn func(Row) error) func([]Row, int) error {
	return func(rows []Row, _ int) error {
		for _, r := range rows {
			if err := fn(r); err != nil {
				return err
			}
		}
		return nil
	}
}
