// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package core

import (
	"fmt"
	"strings"
)

// Function expressions are meant for SelectExpr and OrderByExpr. Their string
// arguments are column names unless quoted with single quotes; any other value
// is bound.

// CaseExp represents a SQL CASE expression, simple or searched.
type CaseExp struct {
	column    string
	whens     []whenClause
	elseValue any
	alias     string
}

type whenClause struct {
	condition any // value to match (simple) or raw condition (searched)
	result    any
}

// Case creates a simple CASE expression.
//
// Example:
//
//	quarry.Case("status").When("active", 1).When("inactive", 0).Else(-1).As("status_code")
//
// Generates: case "status" when ? then ? when ? then ? else ? end as "status_code"
func Case(column string) *CaseExp {
	return &CaseExp{column: column}
}

// CaseWhen creates a searched CASE expression whose conditions are raw SQL.
func CaseWhen() *CaseExp {
	return &CaseExp{}
}

// When adds a WHEN clause.
func (c *CaseExp) When(condition, result any) *CaseExp {
	c.whens = append(c.whens, whenClause{condition: condition, result: result})
	return c
}

// Else sets the ELSE value.
func (c *CaseExp) Else(value any) *CaseExp {
	c.elseValue = value
	return c
}

// As sets an alias.
func (c *CaseExp) As(alias string) *CaseExp {
	c.alias = alias
	return c
}

// Build implements the Expression interface.
func (c *CaseExp) Build(g *Grammar) (string, []any) {
	if len(c.whens) == 0 {
		return "", nil
	}

	var sql strings.Builder
	args := make([]any, 0, len(c.whens)*2+1)

	sql.WriteString("case")
	if c.column != "" {
		sql.WriteString(" " + g.Wrap(c.column))
	}

	for _, when := range c.whens {
		sql.WriteString(" when ")
		if c.column != "" {
			sql.WriteString(g.Parameter(when.condition))
			args = appendBinding(args, when.condition)
		} else {
			sql.WriteString(fmt.Sprint(when.condition))
		}
		sql.WriteString(" then " + g.Parameter(when.result))
		args = appendBinding(args, when.result)
	}

	if c.elseValue != nil {
		sql.WriteString(" else " + g.Parameter(c.elseValue))
		args = appendBinding(args, c.elseValue)
	}

	sql.WriteString(" end")
	return withAlias(g, sql.String(), c.alias), args
}

// FuncExp is a SQL function call over columns, quoted literals, and values.
type FuncExp struct {
	name   string
	values []any
	alias  string
}

// Coalesce creates a COALESCE expression.
//
// Example:
//
//	quarry.Coalesce("nickname", "first_name", "'Anonymous'").As("display_name")
//
// Generates: coalesce("nickname", "first_name", 'Anonymous') as "display_name"
func Coalesce(values ...any) *FuncExp {
	return &FuncExp{name: "coalesce", values: values}
}

// NullIf creates a NULLIF expression.
func NullIf(expr1, expr2 any) *FuncExp {
	return &FuncExp{name: "nullif", values: []any{expr1, expr2}}
}

// Greatest creates a GREATEST expression (MAX on SQLite).
func Greatest(values ...any) *FuncExp {
	return &FuncExp{name: "greatest", values: values}
}

// Least creates a LEAST expression (MIN on SQLite).
func Least(values ...any) *FuncExp {
	return &FuncExp{name: "least", values: values}
}

// Concat creates a string concatenation: concat() on MySQL, "||" elsewhere.
func Concat(values ...any) *FuncExp {
	return &FuncExp{name: "concat", values: values}
}

// As sets an alias.
func (f *FuncExp) As(alias string) *FuncExp {
	f.alias = alias
	return f
}

// Build implements the Expression interface.
func (f *FuncExp) Build(g *Grammar) (string, []any) {
	if len(f.values) == 0 {
		return "", nil
	}

	parts := make([]string, 0, len(f.values))
	var args []any
	for _, val := range f.values {
		sql, subArgs := buildFuncArg(val, g)
		parts = append(parts, sql)
		args = append(args, subArgs...)
	}

	name := f.name
	if g.dialect.Name() == "sqlite" {
		switch name {
		case "greatest":
			name = "max"
		case "least":
			name = "min"
		}
	}

	var sql string
	if name == "concat" && g.dialect.Name() != "mysql" {
		sql = strings.Join(parts, " || ")
	} else {
		sql = name + "(" + strings.Join(parts, ", ") + ")"
	}
	return withAlias(g, sql, f.alias), args
}

func buildFuncArg(val any, g *Grammar) (string, []any) {
	switch v := val.(type) {
	case string:
		if strings.HasPrefix(v, "'") {
			return v, nil
		}
		return g.Wrap(v), nil
	case Expression:
		return v.Build(g)
	default:
		return "?", []any{v}
	}
}

func withAlias(g *Grammar, sql, alias string) string {
	if alias == "" {
		return sql
	}
	return sql + " as " + g.wrapValue(alias)
}

func appendBinding(args []any, value any) []any {
	if _, ok := value.(Raw); ok {
		return args
	}
	return append(args, value)
}
