package core

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"
)

// Row is one result row keyed by column name. Text columns that drivers
// return as []byte are converted to string.
type Row map[string]any

// Processor turns driver results into rows and insert ids.
type Processor struct{}

// ProcessSelect reads every remaining row.
func (p *Processor) ProcessSelect(rows *sql.Rows) ([]Row, error) {
	out := []Row{}
	for rows.Next() {
		r, err := p.scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Processor) scanRow(rows *sql.Rows) (Row, error) {
	m := make(map[string]any)
	if err := sqlx.MapScan(rows, m); err != nil {
		return nil, err
	}
	for k, v := range m {
		if b, ok := v.([]byte); ok {
			m[k] = string(b)
		}
	}
	return Row(m), nil
}

// ProcessInsertGetID runs an insert compiled by CompileInsertGetID and
// returns the new key: from the RETURNING row when the dialect has one,
// otherwise from the driver's last insert id.
func (p *Processor) ProcessInsertGetID(ctx context.Context, b *Builder, query string, bindings []any, sequence string) (int64, error) {
	if b.grammar.dialect.SupportsReturning() {
		rows, err := b.conn.SelectFromWriteConnection(ctx, query, bindings)
		if err != nil {
			return 0, err
		}
		if len(rows) == 0 {
			return 0, nil
		}
		return toInt64(rows[0][sequence])
	}

	res, err := b.conn.insertResult(ctx, query, bindings)
	if err != nil || res == nil {
		return 0, err
	}
	return res.LastInsertId()
}

// toInt64 converts a scanned numeric value.
func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case float32:
		return int64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to int64: %w", n, err)
		}
		return int64(f), nil
	case []byte:
		return toInt64(string(n))
	default:
		return 0, fmt.Errorf("cannot convert %T to int64", v)
	}
}

func toBool(v any) bool {
	n, err := toInt64(v)
	return err == nil && n != 0
}
