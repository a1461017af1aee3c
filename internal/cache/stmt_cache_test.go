package cache

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) (*sql.DB, *driverStats) {
	t.Helper()
	db, stats, err := openStubDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db, stats
}

func createTestStmt(t *testing.T, db *sql.DB, query string) *sql.Stmt {
	t.Helper()
	stmt, err := db.Prepare(query)
	require.NoError(t, err)
	return stmt
}

func TestNewStmtCacheWithCapacity(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		expected int
	}{
		{name: "positive capacity", capacity: 100, expected: 100},
		{name: "zero capacity defaults", capacity: 0, expected: DefaultStmtCacheCapacity},
		{name: "negative capacity defaults", capacity: -10, expected: DefaultStmtCacheCapacity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := NewStmtCacheWithCapacity(tt.capacity)
			require.NotNil(t, cache)
			assert.Equal(t, tt.expected, cache.Stats().Capacity)
			assert.Equal(t, 0, cache.Len())
		})
	}
}

func TestStmtCache_GetSet(t *testing.T) {
	db, _ := setupTestDB(t)
	cache := NewStmtCache()

	stmt, found := cache.Get("select 1")
	assert.Nil(t, stmt)
	assert.False(t, found)

	testStmt := createTestStmt(t, db, "select 1")
	cache.Set("select 1", testStmt)

	stmt, found = cache.Get("select 1")
	assert.True(t, found)
	assert.Same(t, testStmt, stmt)

	stats := cache.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 0.001)
}

func TestStmtCache_LRUEvictionClosesStatement(t *testing.T) {
	db, drv := setupTestDB(t)
	cache := NewStmtCacheWithCapacity(3)

	for i := 1; i <= 3; i++ {
		q := fmt.Sprintf("select %d", i)
		cache.Set(q, createTestStmt(t, db, q))
	}
	assert.Equal(t, uint64(0), cache.Stats().Evictions)

	// Touch the oldest so that "select 2" becomes the eviction candidate.
	_, found := cache.Get("select 1")
	require.True(t, found)

	cache.Set("select 4", createTestStmt(t, db, "select 4"))

	stats := cache.Stats()
	assert.Equal(t, 3, stats.Size)
	assert.Equal(t, uint64(1), stats.Evictions)
	assert.Equal(t, int64(1), drv.closed.Load())

	_, found = cache.Get("select 2")
	assert.False(t, found)
	for _, q := range []string{"select 1", "select 3", "select 4"} {
		_, found = cache.Get(q)
		assert.True(t, found, q)
	}
}

func TestStmtCache_ReplaceClosesPrevious(t *testing.T) {
	db, drv := setupTestDB(t)
	cache := NewStmtCacheWithCapacity(2)

	first := createTestStmt(t, db, "select 1")
	second := createTestStmt(t, db, "select 1")
	cache.Set("select 1", first)
	cache.Set("select 1", second)

	got, found := cache.Get("select 1")
	require.True(t, found)
	assert.Same(t, second, got)
	assert.Equal(t, int64(1), drv.closed.Load())
	assert.Equal(t, uint64(0), cache.Stats().Evictions)

	// Re-setting the same statement is a no-op.
	cache.Set("select 1", second)
	assert.Equal(t, int64(1), drv.closed.Load())
}

func TestStmtCache_Remove(t *testing.T) {
	db, drv := setupTestDB(t)
	cache := NewStmtCache()

	cache.Set("select 1", createTestStmt(t, db, "select 1"))

	assert.True(t, cache.Remove("select 1"))
	assert.False(t, cache.Remove("select 1"))
	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, int64(1), drv.closed.Load())
	assert.Equal(t, uint64(0), cache.Stats().Evictions)
}

func TestStmtCache_Clear(t *testing.T) {
	db, drv := setupTestDB(t)
	cache := NewStmtCache()

	for i := 0; i < 5; i++ {
		q := fmt.Sprintf("select %d", i)
		cache.Set(q, createTestStmt(t, db, q))
	}
	require.Equal(t, 5, cache.Len())

	cache.Clear()

	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, int64(5), drv.closed.Load())
	assert.Equal(t, uint64(0), cache.Stats().Evictions)
}

func TestStmtCache_Concurrent(t *testing.T) {
	db, _ := setupTestDB(t)
	cache := NewStmtCacheWithCapacity(50)

	stmts := make([]*sql.Stmt, 20)
	for i := range stmts {
		stmts[i] = createTestStmt(t, db, fmt.Sprintf("select %d", i))
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				idx := (g + i) % len(stmts)
				key := fmt.Sprintf("select %d", idx)
				if _, ok := cache.Get(key); !ok {
					cache.Set(key, stmts[idx])
				}
			}
		}(g)
	}
	wg.Wait()

	stats := cache.Stats()
	assert.Equal(t, 20, stats.Size)
	assert.Equal(t, uint64(800), stats.Hits+stats.Misses)
}

func TestStmtCache_Prepare(t *testing.T) {
	db, drv := setupTestDB(t)
	sc := NewStmtCacheWithCapacity(2)
	ctx := context.Background()

	first, err := sc.Prepare(ctx, db, "select ?")
	require.NoError(t, err)
	again, err := sc.Prepare(ctx, db, "select ?")
	require.NoError(t, err)

	assert.Same(t, first, again)
	assert.Equal(t, int64(1), drv.prepared.Load())
	assert.Equal(t, Stats{Size: 1, Capacity: 2, Hits: 1, Misses: 1, HitRate: 0.5}, sc.Stats())

	_, err = sc.Prepare(ctx, db, "selct ?")
	require.ErrorIs(t, err, errPrepare)
	assert.Equal(t, 1, sc.Len())
}

func TestStmtCache_PrepareConcurrentMisses(t *testing.T) {
	db, drv := setupTestDB(t)
	sc := NewStmtCache()

	var wg sync.WaitGroup
	stmts := make([]*sql.Stmt, 16)
	for i := range stmts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stmt, err := sc.Prepare(context.Background(), db, "update t set n = n + 1")
			assert.NoError(t, err)
			stmts[i] = stmt
		}(i)
	}
	wg.Wait()

	for _, stmt := range stmts[1:] {
		assert.Same(t, stmts[0], stmt)
	}
	// Late goroutines may still miss after the first prepare finished, but
	// they find the statement without preparing again.
	assert.Equal(t, int64(1), drv.prepared.Load())
	assert.Equal(t, 1, sc.Len())
}
