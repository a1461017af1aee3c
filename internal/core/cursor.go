package core

import (
	"database/sql"
)

// Cursor iterates a result set one row at a time without buffering it.
//
//	cur, err := conn.Table("users").Cursor(ctx)
//	if err != nil { ... }
//	defer cur.Close()
//	for cur.Next() {
//	    row := cur.Row()
//	}
//	if err := cur.Err(); err != nil { ... }
type Cursor struct {
	rows      *sql.Rows
	processor *Processor
	current   Row
	err       error
}

func newCursor(rows *sql.Rows, p *Processor) *Cursor {
	return &Cursor{rows: rows, processor: p}
}

// Next advances to the next row.
func (c *Cursor) Next() bool {
	c.current = nil
	if c.rows == nil || c.err != nil {
		return false
	}
	return c.rows.Next()
}

// Row returns the current row as a map.
func (c *Cursor) Row() Row {
	if c.current == nil && c.rows != nil && c.err == nil {
		c.current, c.err = c.processor.scanRow(c.rows)
	}
	return c.current
}

// Scan copies the current row into dest, a pointer to struct.
func (c *Cursor) Scan(dest any) error {
	if c.rows == nil {
		return ErrNoRows
	}
	return globalScanner.scanRow(c.rows, dest)
}

// Err returns the first error met while iterating.
func (c *Cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	if c.rows == nil {
		return nil
	}
	return c.rows.Err()
}

// Close releases the result set. It is safe to call more than once.
func (c *Cursor) Close() error {
	if c.rows == nil {
		return nil
	}
	return c.rows.Close()
}
