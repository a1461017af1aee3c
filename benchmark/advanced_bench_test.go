// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package benchmark

import (
	"fmt"
	"testing"

	"github.com/coregx/quarry/internal/core"
	"github.com/coregx/quarry/internal/dialects"
)

// These measure SQL compilation only; nothing is executed.

func builderFor(dialect string) *core.Builder {
	return core.NewBuilder(core.NewGrammar(dialects.MustGetDialect(dialect)), nil)
}

// BenchmarkExists_vs_In compares a correlated EXISTS with IN (subquery).
func BenchmarkExists_vs_In(b *testing.B) {
	orders := func() *core.Builder {
		return builderFor("postgres").From("orders").Select("user_id").Where("status", "active")
	}

	b.Run("EXISTS", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			q := builderFor("postgres").From("users").
				WhereExists(orders().WhereColumn("orders.user_id", "users.id"))
			_, _ = q.ToSQL()
		}
	})

	b.Run("IN", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			q := builderFor("postgres").From("users").WhereIn("id", orders())
			_, _ = q.ToSQL()
		}
	})
}

// BenchmarkInSubquery_vs_InList compares IN (select ...) with a literal list.
func BenchmarkInSubquery_vs_InList(b *testing.B) {
	ids := make([]any, 100)
	for i := range ids {
		ids[i] = i + 1
	}

	b.Run("Subquery", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			sub := builderFor("mysql").From("users").Select("id").Where("status", "active")
			_, _ = builderFor("mysql").From("orders").WhereIn("user_id", sub).ToSQL()
		}
	})

	b.Run("List_100", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_, _ = builderFor("mysql").From("orders").WhereIn("user_id", ids).ToSQL()
		}
	})

	b.Run("Expression_100", func(b *testing.B) {
		g := core.NewGrammar(dialects.MustGetDialect("mysql"))
		exp := core.In("user_id", ids...)
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_, _ = exp.Build(g)
		}
	})
}

// BenchmarkComplexQueryBuild compiles a join, grouping, having, ordering and
// pagination query on every dialect.
func BenchmarkComplexQueryBuild(b *testing.B) {
	for _, dialect := range []string{"mysql", "postgres", "sqlite"} {
		b.Run(dialect, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				q := builderFor(dialect).
					From("users", "u").
					Select("u.id", "u.name").
					SelectRaw("count(o.id) as order_count").
					LeftJoin("orders as o", "o.user_id", "=", "u.id").
					Where("u.status", "active").
					WhereNested(func(q *core.Builder) {
						q.Where("u.age", ">", 18).OrWhereNull("u.age")
					}).
					GroupBy("u.id", "u.name").
					Having("order_count", ">", 5).
					OrderByDesc("order_count").
					ForPage(i%10+1, 20)
				if _, err := q.ToSQL(); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkDeleteWithJoinBuild compiles a delete that needs the row
// identifier rewrite on postgres and sqlite.
func BenchmarkDeleteWithJoinBuild(b *testing.B) {
	for _, dialect := range []string{"mysql", "postgres", "sqlite"} {
		b.Run(dialect, func(b *testing.B) {
			g := core.NewGrammar(dialects.MustGetDialect(dialect))
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				q := core.NewBuilder(g, nil).From("users").
					Join("teams", "teams.id", "=", "users.team_id").
					Where("teams.name", fmt.Sprintf("team-%d", i%4)).
					Limit(10)
				_ = g.CompileDelete(q)
			}
		})
	}
}
