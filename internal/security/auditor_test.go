package security

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/quarry/internal/logger"
)

func newCapturingAuditor(level AuditLevel) (*Auditor, *bytes.Buffer) {
	var buf bytes.Buffer
	log := logger.NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, nil)))
	a := NewAuditor(log, level)
	a.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return a, &buf
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestAuditor_Levels(t *testing.T) {
	tests := []struct {
		level     AuditLevel
		operation string
		audited   bool
	}{
		{AuditNone, "DELETE", false},
		{AuditWrites, "INSERT", true},
		{AuditWrites, "TRUNCATE", true},
		{AuditWrites, "SELECT", false},
		{AuditAll, "SELECT", true},
		{AuditAll, "SAVEPOINT", true},
	}

	for _, tt := range tests {
		a, buf := newCapturingAuditor(tt.level)
		_, ok := a.Audit(context.Background(), Statement{Operation: tt.operation, SQL: "x"})
		assert.Equal(t, tt.audited, ok, "level %d op %s", tt.level, tt.operation)
		assert.Equal(t, tt.audited, buf.Len() > 0)
	}
}

func TestAuditor_Event(t *testing.T) {
	a, buf := newCapturingAuditor(AuditWrites)
	ctx := WithRequestID(WithClientIP(WithUser(context.Background(), "alice"), "10.0.0.1"), "req-1")

	event, ok := a.Audit(ctx, Statement{
		Connection:   "main",
		Operation:    "UPDATE",
		SQL:          `update "users" set "name" = ? where "id" = ?`,
		Bindings:     []any{"secret-name", 7},
		RowsAffected: 1,
		Duration:     1500 * time.Millisecond,
	})
	require.True(t, ok)

	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), event.Timestamp)
	assert.Equal(t, "alice", event.User)
	assert.Equal(t, "10.0.0.1", event.ClientIP)
	assert.Equal(t, "req-1", event.RequestID)
	assert.Equal(t, "users", event.Table)
	assert.Equal(t, int64(1500), event.DurationMS)
	assert.True(t, event.Success)
	assert.Len(t, event.ParamsHash, 64)

	lines := logLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "audit", lines[0]["msg"])
	assert.Equal(t, "alice", lines[0]["user"])
	assert.NotContains(t, buf.String(), "secret-name")
}

func TestAuditor_FailureAndPretend(t *testing.T) {
	a, buf := newCapturingAuditor(AuditAll)

	event, ok := a.Audit(context.Background(), Statement{Operation: "DELETE", SQL: "delete from logs", Err: errors.New("boom")})
	require.True(t, ok)
	assert.False(t, event.Success)
	assert.Equal(t, "boom", event.Error)

	_, ok = a.Audit(context.Background(), Statement{Operation: "DELETE", SQL: "delete from logs", Pretend: true})
	assert.False(t, ok)

	lines := logLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "WARN", lines[0]["level"])
	assert.Equal(t, "boom", lines[0]["error"])
}

func TestAuditor_Blocked(t *testing.T) {
	a, buf := newCapturingAuditor(AuditNone)
	a.Blocked(WithUser(context.Background(), "mallory"), "select 1; drop table x", ErrUnsafeStatement)

	lines := logLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "statement blocked", lines[0]["msg"])
	assert.Equal(t, "mallory", lines[0]["user"])
}

func TestHashParams(t *testing.T) {
	assert.Empty(t, hashParams(nil))
	assert.Equal(t, hashParams([]any{1, "a"}), hashParams([]any{1, "a"}))
	assert.NotEqual(t, hashParams([]any{1, "a"}), hashParams([]any{"a", 1}))
}

func TestTableOf(t *testing.T) {
	tests := map[string]string{
		"insert into `users` (`name`) values (?)":       "users",
		"insert ignore into logs values (?)":            "logs",
		`update "orders" set "state" = ?`:               "orders",
		"delete from sessions where id = ?":             "sessions",
		"delete `u` from `users` as `u` join x on 1 = 1": "users",
		"truncate table events":                         "events",
		`select * from "app"."posts" where id = ?`:      "app",
		"SAVEPOINT trans2":                              "",
	}
	for query, want := range tests {
		assert.Equal(t, want, tableOf(query), query)
	}
}

func TestNewAuditor_NilLogger(t *testing.T) {
	a := NewAuditor(nil, AuditAll)
	_, ok := a.Audit(context.Background(), Statement{Operation: "SELECT"})
	assert.True(t, ok)
}
