package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/coregx/quarry"
)

// setupBenchDB opens an in-memory SQLite connection with a users table.
func setupBenchDB(b *testing.B, opts ...quarry.ConnectionOption) *quarry.Connection {
	conn, err := quarry.Open("sqlite", ":memory:", opts...)
	if err != nil {
		b.Fatalf("Failed to open database: %v", err)
	}
	conn.DB().SetMaxOpenConns(1)

	err = conn.Statement(context.Background(), `
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			age INTEGER
		)
	`, nil)
	if err != nil {
		b.Fatalf("Failed to create table: %v", err)
	}

	b.Cleanup(func() {
		_ = conn.Disconnect()
	})
	return conn
}

func userRows(n int) []map[string]any {
	rows := make([]map[string]any, n)
	for j := range rows {
		rows[j] = map[string]any{
			"name":  fmt.Sprintf("User %d", j),
			"email": fmt.Sprintf("user%d@example.com", j),
			"age":   20 + j%50,
		}
	}
	return rows
}

func benchmarkBulkInsert(b *testing.B, n int) {
	conn := setupBenchDB(b)
	ctx := context.Background()
	rows := userRows(n)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := conn.Table("users").Insert(ctx, rows); err != nil {
			b.Fatalf("Bulk insert failed: %v", err)
		}
		_, _ = conn.Table("users").Delete(ctx)
	}
}

func BenchmarkBulkInsert_10rows(b *testing.B)   { benchmarkBulkInsert(b, 10) }
func BenchmarkBulkInsert_100rows(b *testing.B)  { benchmarkBulkInsert(b, 100) }
func BenchmarkBulkInsert_1000rows(b *testing.B) { benchmarkBulkInsert(b, 1000) }

// BenchmarkSingleInsert_100rows inserts the same rows one statement at a time.
func BenchmarkSingleInsert_100rows(b *testing.B) {
	conn := setupBenchDB(b)
	ctx := context.Background()
	rows := userRows(100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, row := range rows {
			if err := conn.Table("users").Insert(ctx, row); err != nil {
				b.Fatalf("Insert failed: %v", err)
			}
		}
		_, _ = conn.Table("users").Delete(ctx)
	}
}

func BenchmarkSingleInsert_100rows_InTransaction(b *testing.B) {
	conn := setupBenchDB(b)
	ctx := context.Background()
	rows := userRows(100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		err := conn.Transaction(ctx, func(c *quarry.Connection) error {
			for _, row := range rows {
				if err := c.Table("users").Insert(ctx, row); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			b.Fatalf("Transaction failed: %v", err)
		}
		_, _ = conn.Table("users").Delete(ctx)
	}
}

func BenchmarkUpsert_100rows(b *testing.B) {
	conn := setupBenchDB(b)
	ctx := context.Background()
	rows := userRows(100)
	if err := conn.Table("users").Insert(ctx, rows); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := conn.Table("users").Upsert(ctx, rows, []string{"email"}, "name", "age"); err != nil {
			b.Fatalf("Upsert failed: %v", err)
		}
	}
}

func BenchmarkUpdateWhereIn_100rows(b *testing.B) {
	conn := setupBenchDB(b)
	ctx := context.Background()
	if err := conn.Table("users").Insert(ctx, userRows(100)); err != nil {
		b.Fatal(err)
	}
	ids := make([]any, 100)
	for j := range ids {
		ids[j] = j + 1
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := conn.Table("users").WhereIn("id", ids).Increment(ctx, "age", 1); err != nil {
			b.Fatalf("Update failed: %v", err)
		}
	}
}
