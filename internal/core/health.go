package core

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/coregx/quarry/internal/logger"
)

// HealthStatus is the outcome of the last background ping of a
// connection's handles.
type HealthStatus struct {
	Healthy   bool
	LastCheck time.Time
	// Failures counts consecutive failed pings per handle ("write", "read").
	Failures map[string]int
	// Lost names the handles whose last failure looked like a lost
	// connection; the next statement on them reconnects.
	Lost []string
}

type healthTarget struct {
	role     string
	db       *sql.DB
	lastErr  error
	failures int
}

// healthChecker pings the write handle, and the read handle when it is a
// separate pool, on a fixed interval. It only observes: handles are
// replaced by the connection, never by the checker.
type healthChecker struct {
	logger   logger.Logger
	interval time.Duration
	timeout  time.Duration
	stop     chan struct{}
	wg       sync.WaitGroup

	mu       sync.RWMutex
	targets  []*healthTarget
	lastPing time.Time
}

func newHealthChecker(write, read *sql.DB, log logger.Logger, interval time.Duration) *healthChecker {
	h := &healthChecker{
		logger:   log,
		interval: interval,
		timeout:  5 * time.Second,
		stop:     make(chan struct{}),
		targets:  []*healthTarget{{role: "write", db: write}},
	}
	if read != nil && read != write {
		h.targets = append(h.targets, &healthTarget{role: "read", db: read})
	}
	return h
}

func (h *healthChecker) start() {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.ping()
			case <-h.stop:
				return
			}
		}
	}()
}

func (h *healthChecker) ping() {
	for _, t := range h.targets {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		err := t.db.PingContext(ctx)
		cancel()

		h.mu.Lock()
		t.lastErr = err
		if err != nil {
			t.failures++
		} else {
			t.failures = 0
		}
		failures := t.failures
		h.mu.Unlock()

		if err != nil {
			h.logger.Warn("health check failed",
				"handle", t.role,
				"lost_connection", causedByLostConnection(err),
				"consecutive_failures", failures,
				"error", err)
		}
	}

	h.mu.Lock()
	h.lastPing = time.Now()
	h.mu.Unlock()
}

func (h *healthChecker) shutdown() {
	close(h.stop)
	h.wg.Wait()
}

func (h *healthChecker) status() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := HealthStatus{Healthy: true, LastCheck: h.lastPing, Failures: make(map[string]int, len(h.targets))}
	for _, t := range h.targets {
		s.Failures[t.role] = t.failures
		if t.lastErr == nil {
			continue
		}
		s.Healthy = false
		if causedByLostConnection(t.lastErr) {
			s.Lost = append(s.Lost, t.role)
		}
	}
	return s
}
