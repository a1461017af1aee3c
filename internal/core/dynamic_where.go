package core

import (
	"strings"
	"unicode"

	"github.com/go-openapi/inflect"
)

// DynamicClause is one column comparison parsed from a dynamic where name.
type DynamicClause struct {
	Column  string
	Boolean string
}

// ParseDynamicWhere splits a method name such as "WhereEmailAndStatusOrRole"
// into snake_case columns joined by "and"/"or". The connectors are only
// recognised when followed by an upper case letter, so "WhereBrand" is one
// column.
func ParseDynamicWhere(method string) ([]DynamicClause, error) {
	var finder string
	switch {
	case strings.HasPrefix(method, "Where"):
		finder = method[len("Where"):]
	case strings.HasPrefix(method, "where"):
		finder = method[len("where"):]
	default:
		return nil, invalidArgument("dynamic where method must start with Where: %s", method)
	}
	if finder == "" {
		return nil, invalidArgument("dynamic where method names no column: %s", method)
	}

	var clauses []DynamicClause
	boolean := "and"
	start := 0
	for i := 1; i < len(finder); i++ {
		conn := connectorAt(finder, i)
		if conn == "" {
			continue
		}
		if seg := finder[start:i]; seg != "" {
			clauses = append(clauses, DynamicClause{Column: inflect.Underscore(seg), Boolean: boolean})
		}
		boolean = strings.ToLower(conn)
		i += len(conn) - 1
		start = i + 1
	}
	if seg := finder[start:]; seg != "" {
		clauses = append(clauses, DynamicClause{Column: inflect.Underscore(seg), Boolean: boolean})
	}
	if len(clauses) == 0 {
		return nil, invalidArgument("dynamic where method names no column: %s", method)
	}
	return clauses, nil
}

// connectorAt returns "And" or "Or" when one starts at i and is followed by
// an upper case letter.
func connectorAt(s string, i int) string {
	for _, c := range []string{"And", "Or"} {
		end := i + len(c)
		if strings.HasPrefix(s[i:], c) && end < len(s) && unicode.IsUpper(rune(s[end])) {
			return c
		}
	}
	return ""
}

// DynamicWhere adds one equality per column named by method, taking values
// from params in order.
//
//	q.DynamicWhere("WhereNameAndAge", "taylor", 30)
//	// where "name" = ? and "age" = ?
func (b *Builder) DynamicWhere(method string, params ...any) *Builder {
	clauses, err := ParseDynamicWhere(method)
	if err != nil {
		return b.setErr(err)
	}
	if len(params) < len(clauses) {
		return b.setErr(invalidArgument("%s expects %d parameters, got %d", method, len(clauses), len(params)))
	}
	for i, c := range clauses {
		b.addWhere(c.Boolean, c.Column, []any{"=", params[i]})
	}
	return b
}
