package core

import (
	"context"
	"database/sql"
	"strconv"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/coregx/quarry/internal/dialects"
)

// sqlFor returns a connection-less builder compiling for dialect.
func sqlFor(dialect string) *Builder {
	return NewBuilder(NewGrammar(dialects.MustGetDialect(dialect)), nil)
}

// newMockConnection wraps a sqlmock handle that matches statements exactly.
func newMockConnection(t *testing.T, driver string, opts ...ConnectionOption) (*Connection, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	conn, err := NewConnection(db, append([]ConnectionOption{WithDriverName(driver)}, opts...)...)
	require.NoError(t, err)
	return conn, mock
}

// pretendLog runs fn in pretend mode and returns the statements it built.
func pretendLog(t *testing.T, driver string, fn func(ctx context.Context, c *Connection) error) []QueryLog {
	t.Helper()

	conn, mock := newMockConnection(t, driver)
	log, err := conn.Pretend(context.Background(), func(c *Connection) error {
		return fn(context.Background(), c)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	return log
}

// newSQLiteConnection opens an in-memory database on a single pooled
// connection, so every statement sees the same schema.
func newSQLiteConnection(t *testing.T, opts ...ConnectionOption) *Connection {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	conn, err := NewConnection(db, append([]ConnectionOption{WithDriverName("sqlite")}, opts...)...)
	require.NoError(t, err)
	return conn
}

const usersSchema = `create table users (
	id integer primary key autoincrement,
	name text not null,
	email text not null unique,
	votes integer not null default 0,
	active integer not null default 1,
	updated_at text
)`

// seedUsers creates the users table and inserts n users named user1..userN
// with votes equal to their number.
func seedUsers(t *testing.T, conn *Connection, n int) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, conn.Statement(ctx, usersSchema, nil))
	rows := make([]map[string]any, n)
	for i := range rows {
		id := i + 1
		rows[i] = map[string]any{
			"name":  "user" + strconv.Itoa(id),
			"email": "user" + strconv.Itoa(id) + "@example.com",
			"votes": id,
		}
	}
	if n > 0 {
		require.NoError(t, conn.Table("users").Insert(ctx, rows))
	}
}
