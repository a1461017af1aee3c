//go:build integration
// +build integration

package test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/quarry"
)

type User struct {
	ID     int64  `db:"id"`
	TeamID int64  `db:"team_id"`
	Name   string `db:"name"`
	Email  string `db:"email"`
	Votes  int64  `db:"votes"`
	Active bool   `db:"active"`
}

func TestCRUD(t *testing.T) {
	forEachDatabase(t, func(t *testing.T, ds *DatabaseSetup) {
		CreateTables(t, ds, "users")
		ctx := context.Background()
		users := func() *quarry.Builder { return ds.Conn.Table("users") }

		id, err := users().InsertGetID(ctx, map[string]any{"name": "alice", "email": "alice@example.com"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), id)

		var alice User
		require.NoError(t, users().Where("id", id).FirstInto(ctx, &alice))
		assert.Equal(t, "alice", alice.Name)
		assert.True(t, alice.Active)

		n, err := users().Where("id", id).Update(ctx, map[string]any{"name": "Alice"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = users().Where("id", id).Increment(ctx, "votes", 5, map[string]any{"active": false})
		require.NoError(t, err)
		require.NoError(t, users().Where("id", id).FirstInto(ctx, &alice))
		assert.Equal(t, "Alice", alice.Name)
		assert.Equal(t, int64(5), alice.Votes)
		assert.False(t, alice.Active)

		_, err = users().Upsert(ctx, []map[string]any{
			{"name": "alice2", "email": "alice@example.com", "votes": 50},
			{"name": "bob", "email": "bob@example.com", "votes": 1},
		}, []string{"email"}, "votes")
		require.NoError(t, err)

		var all []User
		require.NoError(t, users().OrderBy("id").GetInto(ctx, &all))
		require.Len(t, all, 2)
		assert.Equal(t, "Alice", all[0].Name)
		assert.Equal(t, int64(50), all[0].Votes)
		assert.Equal(t, "bob", all[1].Name)

		inserted, err := users().InsertOrIgnore(ctx, map[string]any{"name": "dup", "email": "bob@example.com"})
		require.NoError(t, err)
		assert.Zero(t, inserted)

		created, err := users().UpdateOrInsert(ctx,
			map[string]any{"email": "carol@example.com"},
			map[string]any{"name": "carol"})
		require.NoError(t, err)
		assert.True(t, created)

		exists, err := users().Where("name", "carol").Exists(ctx)
		require.NoError(t, err)
		assert.True(t, exists)

		deleted, err := users().Where("votes", "<", 100).OrderByDesc("id").Limit(1).Delete(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		count, err := users().Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		gone, err := users().Where("email", "carol@example.com").DoesntExist(ctx)
		require.NoError(t, err)
		assert.True(t, gone)
	})
}

func TestReads(t *testing.T) {
	forEachDatabase(t, func(t *testing.T, ds *DatabaseSetup) {
		CreateTables(t, ds, "users")
		InsertTestUsers(t, ds, 25)
		ctx := context.Background()
		users := func() *quarry.Builder { return ds.Conn.Table("users") }

		page, err := users().OrderBy("id").Paginate(ctx, 10, 3)
		require.NoError(t, err)
		assert.Equal(t, int64(25), page.Total)
		assert.Equal(t, 3, page.LastPage)
		assert.Len(t, page.Items, 5)

		grouped, err := users().GroupBy("team_id").Paginate(ctx, 10, 1, "team_id")
		require.NoError(t, err)
		assert.Equal(t, int64(2), grouped.Total)

		var seen int
		_, err = users().ChunkByID(ctx, 7, func(rows []quarry.Row, _ int) error {
			seen += len(rows)
			return nil
		}, "id")
		require.NoError(t, err)
		assert.Equal(t, 25, seen)

		var top []User
		err = users().
			Where("active", true).
			WhereNested(func(q *quarry.Builder) {
				q.Where("votes", ">", 20).OrWhereIn("id", []any{1, 2})
			}).
			OrderBy("votes").
			GetInto(ctx, &top)
		require.NoError(t, err)
		require.Len(t, top, 7)
		assert.Equal(t, "user1", top[0].Name)

		var like []User
		require.NoError(t, users().Where(quarry.Like("name", "user2").Match(false, true)).GetInto(ctx, &like))
		assert.Len(t, like, 7)

		sum, err := users().Where("team_id", 1).Sum(ctx, "votes")
		require.NoError(t, err)
		assert.EqualValues(t, 156, toInt(t, sum))

		var unioned []User
		err = users().Where("id", 1).UnionAll(users().Where("id", 2)).OrderBy("id").GetInto(ctx, &unioned)
		require.NoError(t, err)
		assert.Len(t, unioned, 2)
	})
}

func TestUpdateAndDeleteWithJoin(t *testing.T) {
	forEachDatabase(t, func(t *testing.T, ds *DatabaseSetup) {
		CreateTables(t, ds, "users", "teams")
		InsertTestUsers(t, ds, 6)
		ctx := context.Background()
		require.NoError(t, ds.Conn.Table("teams").Insert(ctx, []map[string]any{{"name": "red"}, {"name": "blue"}}))

		n, err := ds.Conn.Table("users").
			Join("teams", "teams.id", "=", "users.team_id").
			Where("teams.name", "red").
			Update(ctx, map[string]any{"users.active": false})
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		inactive, err := ds.Conn.Table("users").Where("active", false).Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), inactive)

		n, err = ds.Conn.Table("users").
			Join("teams", "teams.id", "=", "users.team_id").
			Where("teams.name", "blue").
			Delete(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		left, err := ds.Conn.Table("users").Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), left)
	})
}

func toInt(t *testing.T, v any) int64 {
	t.Helper()
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case string:
		var i int64
		_, err := fmt.Sscan(n, &i)
		require.NoError(t, err)
		return i
	case []byte:
		return toInt(t, string(n))
	}
	t.Fatalf("unexpected aggregate type %T", v)
	return 0
}
