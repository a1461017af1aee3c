package core

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-openapi/inflect"
)

// scanner maps result columns onto struct fields. Fields are matched by
// their db tag, or by the snake_case form of the field name.
type scanner struct {
	mu    sync.RWMutex
	cache map[reflect.Type]map[string][]int
}

func newScanner() *scanner {
	return &scanner{cache: make(map[reflect.Type]map[string][]int)}
}

var globalScanner = newScanner()

// fields returns column name → field index path for typ, cached per type.
func (s *scanner) fields(typ reflect.Type) (map[string][]int, error) {
	s.mu.RLock()
	m, ok := s.cache[typ]
	s.mu.RUnlock()
	if ok {
		return m, nil
	}

	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("scanner: expected struct, got %s", typ.Kind())
	}
	m = make(map[string][]int)
	collectFields(typ, nil, m)

	s.mu.Lock()
	s.cache[typ] = m
	s.mu.Unlock()
	return m, nil
}

func collectFields(typ reflect.Type, index []int, into map[string][]int) {
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if !f.IsExported() {
			continue
		}
		path := append(append([]int{}, index...), i)

		tag, tagged := f.Tag.Lookup("db")
		if tag == "-" {
			continue
		}
		if f.Anonymous && f.Type.Kind() == reflect.Struct && !tagged {
			collectFields(f.Type, path, into)
			continue
		}

		name := tag
		if !tagged || name == "" {
			name = inflect.Underscore(f.Name)
		}
		name = strings.ToLower(name)
		if _, dup := into[name]; !dup {
			into[name] = path
		}
	}
}

// destinations returns one scan target per column; unmapped columns are
// discarded.
func (s *scanner) destinations(columns []string, v reflect.Value) ([]any, error) {
	fields, err := s.fields(v.Type())
	if err != nil {
		return nil, err
	}
	dests := make([]any, len(columns))
	for i, col := range columns {
		path, ok := fields[strings.ToLower(col)]
		if !ok {
			dests[i] = new(any)
			continue
		}
		dests[i] = v.FieldByIndex(path).Addr().Interface()
	}
	return dests, nil
}

// scanRow scans the current row into dest, a pointer to struct.
func (s *scanner) scanRow(rows *sql.Rows, dest any) error {
	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("scanner: dest must be pointer to struct, got %T", dest)
	}
	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("scanner: failed to get columns: %w", err)
	}
	dests, err := s.destinations(columns, v.Elem())
	if err != nil {
		return err
	}
	if err := rows.Scan(dests...); err != nil {
		return fmt.Errorf("scanner: scan failed: %w", err)
	}
	return nil
}

// scanRows scans every remaining row into dest, a pointer to a slice of
// structs or struct pointers.
func (s *scanner) scanRows(rows *sql.Rows, dest any) error {
	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("scanner: dest must be pointer to slice, got %T", dest)
	}
	slice := v.Elem()
	elemType := slice.Type().Elem()
	isPtr := elemType.Kind() == reflect.Ptr
	if isPtr {
		elemType = elemType.Elem()
	}
	if elemType.Kind() != reflect.Struct {
		return fmt.Errorf("scanner: slice element must be struct or *struct, got %s", elemType.Kind())
	}

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("scanner: failed to get columns: %w", err)
	}

	for rows.Next() {
		elem := reflect.New(elemType).Elem()
		dests, err := s.destinations(columns, elem)
		if err != nil {
			return err
		}
		if err := rows.Scan(dests...); err != nil {
			return fmt.Errorf("scanner: scan failed: %w", err)
		}
		if isPtr {
			slice.Set(reflect.Append(slice, elem.Addr()))
		} else {
			slice.Set(reflect.Append(slice, elem))
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("scanner: rows iteration failed: %w", err)
	}
	return nil
}
