//go:build integration
// +build integration

package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgres_InsertGetIDUsesReturning(t *testing.T) {
	ds := SetupPostgreSQLTestDB(t, "pgsql")
	CreateTables(t, ds, "users")
	ctx := context.Background()

	ds.Conn.EnableQueryLog()
	id, err := ds.Conn.Table("users").InsertGetID(ctx, map[string]any{"name": "alice", "email": "alice@example.com"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	log := ds.Conn.QueryLog()
	require.Len(t, log, 1)
	assert.Equal(t, `insert into "users" ("email", "name") values (?, ?) returning "id"`, log[0].Query)

	var fetched User
	require.NoError(t, ds.Conn.Table("users").Where("id", id).FirstInto(ctx, &fetched))
	assert.Equal(t, "alice", fetched.Name)
}

// TestPostgres_ReconnectsAfterTermination kills the backend serving the
// connection from another session; the next statement still succeeds.
func TestPostgres_ReconnectsAfterTermination(t *testing.T) {
	for _, driver := range []string{"pgsql", "pgx"} {
		t.Run(driver, func(t *testing.T) {
			ds := SetupPostgreSQLTestDB(t, driver)
			ctx := context.Background()
			ds.Conn.DB().SetMaxOpenConns(1)

			pid, err := ds.Conn.Scalar(ctx, "select pg_backend_pid()", nil, false)
			require.NoError(t, err)

			admin, err := ds.Manager.Connection(ctx, "main::write")
			require.NoError(t, err)
			_, err = admin.SelectOne(ctx, "select pg_terminate_backend(?)", []any{pid}, false)
			require.NoError(t, err)

			again, err := ds.Conn.Scalar(ctx, "select pg_backend_pid()", nil, false)
			require.NoError(t, err)
			assert.NotEqual(t, toInt(t, pid), toInt(t, again))
		})
	}
}

func TestPostgres_Explain(t *testing.T) {
	ds := SetupPostgreSQLTestDB(t, "pgx")
	CreateTables(t, ds, "users")

	plan, err := ds.Conn.Table("users").Where("id", 1).Explain(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, plan)
}
