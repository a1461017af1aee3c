// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package core

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coregx/quarry/internal/dialects"
)

func TestExpressions(t *testing.T) {
	g := NewGrammar(dialects.MustGetDialect("postgres"))

	tests := []struct {
		name string
		exp  Expression
		sql  string
		args []any
	}{
		{"raw", Raw("now()"), "now()", nil},
		{"raw exp", NewExp("age > ? and status = ?", 18, "active"), "age > ? and status = ?", []any{18, "active"}},
		{"eq", Eq("status", 1), `"status" = ?`, []any{1}},
		{"eq nil", Eq("deleted_at", nil), `"deleted_at" is null`, nil},
		{"not eq nil", NotEq("deleted_at", nil), `"deleted_at" is not null`, nil},
		{"compare raw", GreaterThan("updated_at", Raw("created_at")), `"updated_at" > created_at`, nil},
		{"compare nested", LessOrEqual("votes", NewExp("select max(votes) from t where a = ?", 1)),
			`"votes" <= (select max(votes) from t where a = ?)`, []any{1}},
		{"in", In("id", 1, Raw("2"), nil), `"id" in (?, 2, null)`, []any{1}},
		{"empty in", In("id"), "0 = 1", nil},
		{"empty not in", NotIn("id"), "1 = 1", nil},
		{"between", NotBetween("age", 1, 9), `"age" not between ? and ?`, []any{1, 9}},
		{"hash", HashExp{"b": []any{1, 2}, "a": nil, "c": Raw("now()"), "d": 4},
			`"a" is null and "b" in (?, ?) and "c" = now() and "d" = ?`, []any{1, 2, 4}},
		{"empty hash", HashExp{}, "", nil},
		{"like", Like("name", "50%", "a_b"), `"name" like ? and "name" like ?`, []any{`%50\%%`, `%a\_b%`}},
		{"or like right", OrLike("name", "jo").Match(false, true), `"name" like ?`, []any{"jo%"}},
		{"not like custom escape", NotLike("code", "x!").EscapeChars("!", "!!"), `"code" not like ?`, []any{"%x!!%"}},
		{"empty like", Like("name"), "", nil},
		{"and", And(Eq("a", 1), nil, HashExp{}, Eq("b", 2)), `("a" = ?) and ("b" = ?)`, []any{1, 2}},
		{"single or", Or(Eq("a", 1)), `"a" = ?`, []any{1}},
		{"not", Not(Or(Eq("a", 1), Eq("b", 2))), `not (("a" = ?) or ("b" = ?))`, []any{1, 2}},
		{"empty not", Not(And()), "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := tt.exp.Build(g)
			assert.Equal(t, tt.sql, sql)
			if tt.args == nil {
				assert.Empty(t, args)
			} else {
				assert.Equal(t, tt.args, args)
			}
		})
	}
}

func TestLikeExp_OddEscapePanics(t *testing.T) {
	assert.Panics(t, func() { Like("a", "b").EscapeChars("!") })
}
