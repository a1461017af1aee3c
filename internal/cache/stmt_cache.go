// Package cache holds prepared statements per database handle.
package cache

import (
	"context"
	"database/sql"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultStmtCacheCapacity is used when a non-positive capacity is given.
const DefaultStmtCacheCapacity = 1000

// Preparer is satisfied by *sql.DB and *sql.Conn.
type Preparer interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// StmtCache maps driver SQL to a prepared statement of one handle. The
// least recently used statement is closed once capacity is reached.
type StmtCache struct {
	items    *lru.Cache[string, *sql.Stmt]
	capacity int
	inflight singleflight.Group

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	// dropping is set while statements leave the cache on request, so that
	// only capacity evictions are counted.
	dropping atomic.Bool
}

// NewStmtCache returns a cache of DefaultStmtCacheCapacity statements.
func NewStmtCache() *StmtCache {
	return NewStmtCacheWithCapacity(DefaultStmtCacheCapacity)
}

// NewStmtCacheWithCapacity returns a cache holding at most capacity statements.
func NewStmtCacheWithCapacity(capacity int) *StmtCache {
	if capacity <= 0 {
		capacity = DefaultStmtCacheCapacity
	}
	sc := &StmtCache{capacity: capacity}
	sc.items, _ = lru.NewWithEvict[string, *sql.Stmt](capacity, sc.closeEvicted)
	return sc
}

func (sc *StmtCache) closeEvicted(_ string, stmt *sql.Stmt) {
	_ = stmt.Close()
	if !sc.dropping.Load() {
		sc.evictions.Add(1)
	}
}

// Prepare returns the cached statement for query, preparing it on p on a
// miss. Concurrent misses for the same query share one PrepareContext call.
// A failed prepare is not cached.
func (sc *StmtCache) Prepare(ctx context.Context, p Preparer, query string) (*sql.Stmt, error) {
	if stmt, ok := sc.Get(query); ok {
		return stmt, nil
	}
	v, err, _ := sc.inflight.Do(query, func() (any, error) {
		if stmt, ok := sc.items.Peek(query); ok {
			return stmt, nil
		}
		stmt, err := p.PrepareContext(ctx, query)
		if err != nil {
			return nil, err
		}
		sc.items.Add(query, stmt)
		return stmt, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*sql.Stmt), nil
}

// Get looks query up and marks it recently used.
func (sc *StmtCache) Get(query string) (*sql.Stmt, bool) {
	stmt, ok := sc.items.Get(query)
	if ok {
		sc.hits.Add(1)
	} else {
		sc.misses.Add(1)
	}
	return stmt, ok
}

// Set caches stmt under query, closing a different statement cached there.
func (sc *StmtCache) Set(query string, stmt *sql.Stmt) {
	if old, ok := sc.items.Peek(query); ok && old != stmt {
		sc.dropping.Store(true)
		sc.items.Remove(query)
		sc.dropping.Store(false)
	}
	sc.items.Add(query, stmt)
}

// Remove closes and drops the statement for query and reports whether one
// was cached.
func (sc *StmtCache) Remove(query string) bool {
	sc.dropping.Store(true)
	defer sc.dropping.Store(false)
	return sc.items.Remove(query)
}

// Clear closes every cached statement. The connection calls it whenever
// the underlying handle is replaced.
func (sc *StmtCache) Clear() {
	sc.dropping.Store(true)
	defer sc.dropping.Store(false)
	sc.items.Purge()
}

// Len returns the number of cached statements.
func (sc *StmtCache) Len() int {
	return sc.items.Len()
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Size      int
	Capacity  int
	Hits      uint64
	Misses    uint64
	Evictions uint64 // capacity evictions only
	HitRate   float64
}

// Stats returns the current counters.
func (sc *StmtCache) Stats() Stats {
	s := Stats{
		Size:      sc.items.Len(),
		Capacity:  sc.capacity,
		Hits:      sc.hits.Load(),
		Misses:    sc.misses.Load(),
		Evictions: sc.evictions.Load(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}
