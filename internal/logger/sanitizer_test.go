package logger

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizer_MaskParams_DefaultFields(t *testing.T) {
	tests := []struct {
		name   string
		sql    string
		params []any
		want   []any
	}{
		{
			name:   "password in update set",
			sql:    `update "users" set "password" = ? where "id" = ?`,
			params: []any{"secret123", 1},
			want:   []any{DefaultMask, 1},
		},
		{
			name:   "token in insert column list",
			sql:    `insert into "sessions" ("token", "user_id") values (?, ?)`,
			params: []any{"abc-xyz-token", 123},
			want:   []any{DefaultMask, 123},
		},
		{
			name:   "multi-row insert",
			sql:    `insert into users (name, password) values (?, ?), (?, ?)`,
			params: []any{"Alice", "a-secret", "Bob", "b-secret"},
			want:   []any{"Alice", DefaultMask, "Bob", DefaultMask},
		},
		{
			name:   "api key in where",
			sql:    `select * from "integrations" where "api_key" = ?`,
			params: []any{"sk_test_123456"},
			want:   []any{DefaultMask},
		},
		{
			name:   "qualified column in where",
			sql:    "select * from `users` where `users`.`name` = ? and `users`.`token` = ?",
			params: []any{"Alice", "t0k3n"},
			want:   []any{"Alice", DefaultMask},
		},
		{
			name:   "in list",
			sql:    `select * from users where secret in (?, ?, ?) and id = ?`,
			params: []any{"a", "b", "c", 7},
			want:   []any{DefaultMask, DefaultMask, DefaultMask, 7},
		},
		{
			name:   "unattributed placeholder is masked",
			sql:    `select * from users where password = crypt(?, salt) and id = ?`,
			params: []any{"plain", 1},
			want:   []any{DefaultMask, 1},
		},
		{
			name:   "quoted question mark is not a placeholder",
			sql:    `update users set note = '?', password = ? where id = ?`,
			params: []any{"pw", 9},
			want:   []any{DefaultMask, 9},
		},
		{
			name:   "no sensitive fields",
			sql:    "select * from users where id = ? and name = ?",
			params: []any{1, "Alice"},
			want:   []any{1, "Alice"},
		},
		{
			name:   "empty params",
			sql:    "select count(*) from users",
			params: []any{},
			want:   []any{},
		},
	}

	sanitizer := NewSanitizer(nil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.MaskParams(tt.sql, tt.params)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizer_MaskParams_DoesNotModifyInput(t *testing.T) {
	sanitizer := NewSanitizer(nil)
	params := []any{"secret", 1}

	_ = sanitizer.MaskParams("update users set password = ? where id = ?", params)

	assert.Equal(t, []any{"secret", 1}, params)
}

func TestSanitizer_MaskParams_CustomFields(t *testing.T) {
	sanitizer := NewSanitizer([]string{"secret_key", "private_data"})

	tests := []struct {
		name   string
		sql    string
		params []any
		want   []any
	}{
		{
			name:   "custom field secret_key",
			sql:    "update config set secret_key = ? where id = ?",
			params: []any{"mySecret", 1},
			want:   []any{DefaultMask, 1},
		},
		{
			name:   "custom field private_data",
			sql:    "insert into logs (private_data) values (?)",
			params: []any{"sensitive info"},
			want:   []any{DefaultMask},
		},
		{
			name:   "default names no longer apply",
			sql:    "select * from users where password = ?",
			params: []any{"Alice"},
			want:   []any{"Alice"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.MaskParams(tt.sql, tt.params)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizer_WordBoundaries(t *testing.T) {
	sanitizer := NewSanitizer(nil)

	got := sanitizer.MaskParams("select * from passwordless_auth where user_id = ?", []any{123})

	assert.Equal(t, []any{123}, got)
}

func TestSanitizer_FormatParams(t *testing.T) {
	sanitizer := NewSanitizer(nil)

	tests := []struct {
		name   string
		params []any
		want   string
	}{
		{name: "empty", params: []any{}, want: "[]"},
		{name: "single", params: []any{123}, want: "[123]"},
		{name: "multiple", params: []any{123, "Alice", true}, want: "[123, Alice, true]"},
		{name: "null", params: []any{nil}, want: "[NULL]"},
		{name: "masked", params: []any{DefaultMask}, want: "[***REDACTED***]"},
		{
			name:   "long string truncation",
			params: []any{strings.Repeat("a", 150)},
			want:   "[" + strings.Repeat("a", 100) + "...]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizer.FormatParams(tt.params))
		})
	}
}

func TestSanitizer_FormatParams_AfterMasking(t *testing.T) {
	sanitizer := NewSanitizer(nil)

	masked := sanitizer.MaskParams("update users set password = ? where id = ?", []any{"secretPassword123", 1})
	formatted := sanitizer.FormatParams(masked)

	assert.Equal(t, "[***REDACTED***, 1]", formatted)
	assert.NotContains(t, formatted, "secretPassword123")
}

func TestSanitizer_ThreadSafety(t *testing.T) {
	sanitizer := NewSanitizer(nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sanitizer.MaskParams("update users set password = ? where id = ?", []any{"secret", 1})
		}()
	}
	wg.Wait()
}

func BenchmarkSanitizer_MaskParams_Sensitive(b *testing.B) {
	sanitizer := NewSanitizer(nil)
	sql := "update users set password = ?, token = ? where id = ?"
	params := []any{"secretPassword", "token123", 1}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = sanitizer.MaskParams(sql, params)
	}
}
