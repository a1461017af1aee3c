// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package core

import (
	"sort"
	"strings"
)

// Expression is a SQL fragment that knows how to render itself.
// Build returns SQL with "?" placeholders and the values bound to them,
// in placeholder order.
//
// Example:
//
//	conn.Table("users").
//	    Where(quarry.And(
//	        quarry.HashExp{"status": 1},
//	        quarry.GreaterThan("age", 18),
//	    )).
//	    Get(ctx)
type Expression interface {
	Build(g *Grammar) (sql string, args []any)
}

// Raw is a literal SQL fragment. Wherever a column, table, or value is
// expected, a Raw is emitted verbatim: it is never quoted and never bound.
//
// Example:
//
//	conn.Table("users").Update(ctx, map[string]any{"votes": quarry.Raw("votes + 1")})
type Raw string

// Build returns the fragment unchanged.
func (r Raw) Build(_ *Grammar) (string, []any) {
	return string(r), nil
}

// RawExp represents a raw SQL expression with parameter bindings.
//
// Example:
//
//	quarry.NewExp("age > ? and status = ?", 18, "active")
type RawExp struct {
	SQL  string
	Args []any
}

// NewExp creates a new raw SQL expression with optional parameter bindings.
func NewExp(sql string, args ...any) Expression {
	return &RawExp{SQL: sql, Args: args}
}

// Build returns the SQL and args as given.
func (e *RawExp) Build(_ *Grammar) (string, []any) {
	return e.SQL, e.Args
}

// HashExp is a map of column-value pairs combined with "and".
//
// Special value handling:
//   - nil value → "column is null"
//   - []any → "column in (...)"
//   - Expression → nested expression, parenthesized
//
// Keys are sorted so the generated SQL is deterministic.
type HashExp map[string]any

func buildHashExpValue(key string, value any, g *Grammar) (string, []any) {
	switch v := value.(type) {
	case nil:
		return g.Wrap(key) + " is null", nil
	case Raw:
		return g.Wrap(key) + " = " + string(v), nil
	case Expression:
		sql, args := v.Build(g)
		if sql == "" {
			return "", nil
		}
		return "(" + sql + ")", args
	case []any:
		return In(key, v...).Build(g)
	default:
		return g.Wrap(key) + " = ?", []any{value}
	}
}

// Build converts a HashExp into a SQL fragment.
func (e HashExp) Build(g *Grammar) (string, []any) {
	if len(e) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	var args []any
	for _, key := range keys {
		sql, subArgs := buildHashExpValue(key, e[key], g)
		if sql != "" {
			parts = append(parts, sql)
			args = append(args, subArgs...)
		}
	}

	return strings.Join(parts, " and "), args
}

// CompareExp represents a binary comparison.
type CompareExp struct {
	Col      string
	Operator string
	Value    any
}

// Eq generates "column = value" ("column is null" for nil).
func Eq(col string, value any) Expression {
	return &CompareExp{Col: col, Operator: "=", Value: value}
}

// NotEq generates "column <> value" ("column is not null" for nil).
func NotEq(col string, value any) Expression {
	return &CompareExp{Col: col, Operator: "<>", Value: value}
}

// GreaterThan generates "column > value".
func GreaterThan(col string, value any) Expression {
	return &CompareExp{Col: col, Operator: ">", Value: value}
}

// LessThan generates "column < value".
func LessThan(col string, value any) Expression {
	return &CompareExp{Col: col, Operator: "<", Value: value}
}

// GreaterOrEqual generates "column >= value".
func GreaterOrEqual(col string, value any) Expression {
	return &CompareExp{Col: col, Operator: ">=", Value: value}
}

// LessOrEqual generates "column <= value".
func LessOrEqual(col string, value any) Expression {
	return &CompareExp{Col: col, Operator: "<=", Value: value}
}

// Build converts a comparison expression into a SQL fragment.
func (e *CompareExp) Build(g *Grammar) (string, []any) {
	col := g.Wrap(e.Col)

	if e.Value == nil {
		switch e.Operator {
		case "=":
			return col + " is null", nil
		case "<>", "!=":
			return col + " is not null", nil
		}
	}

	switch v := e.Value.(type) {
	case Raw:
		return col + " " + e.Operator + " " + string(v), nil
	case Expression:
		sql, args := v.Build(g)
		return col + " " + e.Operator + " (" + sql + ")", args
	}

	return col + " " + e.Operator + " ?", []any{e.Value}
}

// InExp represents an IN or NOT IN expression.
type InExp struct {
	Col    string
	Values []any
	Not    bool
}

// In generates "column in (...)". An empty list is always false.
func In(col string, values ...any) Expression {
	return &InExp{Col: col, Values: values}
}

// NotIn generates "column not in (...)". An empty list is always true.
func NotIn(col string, values ...any) Expression {
	return &InExp{Col: col, Values: values, Not: true}
}

// Build converts an IN expression into a SQL fragment.
func (e *InExp) Build(g *Grammar) (string, []any) {
	if len(e.Values) == 0 {
		if e.Not {
			return "1 = 1", nil
		}
		return "0 = 1", nil
	}

	op := " in "
	if e.Not {
		op = " not in "
	}

	placeholders := make([]string, len(e.Values))
	var args []any
	for i, val := range e.Values {
		switch v := val.(type) {
		case nil:
			placeholders[i] = "null"
		case Raw:
			placeholders[i] = string(v)
		default:
			placeholders[i] = "?"
			args = append(args, val)
		}
	}

	return g.Wrap(e.Col) + op + "(" + strings.Join(placeholders, ", ") + ")", args
}

// BetweenExp represents a BETWEEN or NOT BETWEEN expression.
type BetweenExp struct {
	Col      string
	From, To any
	Not      bool
}

// Between generates "column between from and to".
func Between(col string, from, to any) Expression {
	return &BetweenExp{Col: col, From: from, To: to}
}

// NotBetween generates "column not between from and to".
func NotBetween(col string, from, to any) Expression {
	return &BetweenExp{Col: col, From: from, To: to, Not: true}
}

// Build converts a BETWEEN expression into a SQL fragment.
func (e *BetweenExp) Build(g *Grammar) (string, []any) {
	op := " between "
	if e.Not {
		op = " not between "
	}
	return g.Wrap(e.Col) + op + "? and ?", []any{e.From, e.To}
}

// LikeExp represents a LIKE family expression with automatic escaping.
type LikeExp struct {
	Col         string
	Values      []string
	Like        string // "like", "not like", or "ilike"
	Or          bool   // true = or, false = and
	Left, Right bool   // wildcard on left/right
	Escape      []string
}

// DefaultLikeEscape lists special characters (even positions) and their
// escaped forms (odd positions).
var DefaultLikeEscape = []string{"\\", "\\\\", "%", "\\%", "_", "\\_"}

// Like generates a LIKE expression matching values anywhere in the column.
//
// Example:
//
//	quarry.Like("name", "key", "word") // "name" like ? and "name" like ?  ["%key%", "%word%"]
func Like(col string, values ...string) *LikeExp {
	return &LikeExp{
		Col:    col,
		Values: values,
		Like:   "like",
		Left:   true,
		Right:  true,
		Escape: DefaultLikeEscape,
	}
}

// NotLike generates a NOT LIKE expression.
func NotLike(col string, values ...string) *LikeExp {
	exp := Like(col, values...)
	exp.Like = "not like"
	return exp
}

// OrLike generates a LIKE expression where any value may match.
func OrLike(col string, values ...string) *LikeExp {
	exp := Like(col, values...)
	exp.Or = true
	return exp
}

// Match sets wildcard matching on the left and/or right of the values.
func (e *LikeExp) Match(left, right bool) *LikeExp {
	e.Left, e.Right = left, right
	return e
}

// EscapeChars sets custom escape pairs: [special1, escaped1, special2, escaped2, ...].
func (e *LikeExp) EscapeChars(chars ...string) *LikeExp {
	if len(chars)%2 != 0 {
		panic("LikeExp.EscapeChars requires even number of strings")
	}
	e.Escape = chars
	return e
}

// Build converts a LIKE expression into a SQL fragment.
func (e *LikeExp) Build(g *Grammar) (string, []any) {
	if len(e.Values) == 0 {
		return "", nil
	}

	col := g.Wrap(e.Col)
	parts := make([]string, 0, len(e.Values))
	args := make([]any, 0, len(e.Values))

	for _, val := range e.Values {
		for j := 0; j < len(e.Escape); j += 2 {
			val = strings.ReplaceAll(val, e.Escape[j], e.Escape[j+1])
		}
		if e.Left {
			val = "%" + val
		}
		if e.Right {
			val += "%"
		}
		parts = append(parts, col+" "+e.Like+" ?")
		args = append(args, val)
	}

	join := " and "
	if e.Or {
		join = " or "
	}
	return strings.Join(parts, join), args
}

// AndOrExp combines expressions with "and" or "or". Nil members are skipped.
type AndOrExp struct {
	Exps []Expression
	Op   string
}

// And generates "(a) and (b) ...".
func And(exps ...Expression) Expression {
	return &AndOrExp{Exps: exps, Op: "and"}
}

// Or generates "(a) or (b) ...".
func Or(exps ...Expression) Expression {
	return &AndOrExp{Exps: exps, Op: "or"}
}

// Build converts an AND/OR expression into a SQL fragment.
func (e *AndOrExp) Build(g *Grammar) (string, []any) {
	var parts []string
	var args []any

	for _, exp := range e.Exps {
		if exp == nil {
			continue
		}
		sql, subArgs := exp.Build(g)
		if sql != "" {
			parts = append(parts, sql)
			args = append(args, subArgs...)
		}
	}

	switch len(parts) {
	case 0:
		return "", nil
	case 1:
		return parts[0], args
	}
	return "(" + strings.Join(parts, ") "+e.Op+" (") + ")", args
}

// NotExp negates an expression.
type NotExp struct {
	Exp Expression
}

// Not generates "not (exp)".
func Not(exp Expression) Expression {
	return &NotExp{Exp: exp}
}

// Build converts a NOT expression into a SQL fragment.
func (e *NotExp) Build(g *Grammar) (string, []any) {
	if e.Exp == nil {
		return "", nil
	}
	sql, args := e.Exp.Build(g)
	if sql == "" {
		return "", nil
	}
	return "not (" + sql + ")", args
}
