package core

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/quarry/internal/logger"
)

func newPingMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestHealthChecker_WriteAndRead(t *testing.T) {
	write, wmock := newPingMock(t)
	read, rmock := newPingMock(t)

	h := newHealthChecker(write, read, &logger.NoopLogger{}, time.Hour)
	s := h.status()
	assert.True(t, s.Healthy)
	assert.True(t, s.LastCheck.IsZero())

	wmock.ExpectPing()
	rmock.ExpectPing().WillReturnError(errors.New("dial tcp 10.0.0.2:5432: connection refused"))
	h.ping()

	s = h.status()
	assert.False(t, s.Healthy)
	assert.False(t, s.LastCheck.IsZero())
	assert.Equal(t, map[string]int{"write": 0, "read": 1}, s.Failures)
	assert.Equal(t, []string{"read"}, s.Lost)

	wmock.ExpectPing().WillReturnError(errors.New("permission denied"))
	rmock.ExpectPing().WillReturnError(errors.New("connection refused"))
	h.ping()

	s = h.status()
	assert.Equal(t, map[string]int{"write": 1, "read": 2}, s.Failures)
	assert.Equal(t, []string{"read"}, s.Lost)

	wmock.ExpectPing()
	rmock.ExpectPing()
	h.ping()
	assert.True(t, h.status().Healthy)

	require.NoError(t, wmock.ExpectationsWereMet())
	require.NoError(t, rmock.ExpectationsWereMet())
}

func TestHealthChecker_SharedHandlePingedOnce(t *testing.T) {
	db, mock := newPingMock(t)

	h := newHealthChecker(db, db, &logger.NoopLogger{}, time.Hour)
	mock.ExpectPing()
	h.ping()

	assert.Equal(t, map[string]int{"write": 0}, h.status().Failures)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnection_HealthCheck(t *testing.T) {
	// Without ping monitoring every background ping succeeds.
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	conn, err := NewConnection(db, WithDriverName("mysql"), WithHealthCheck(10*time.Millisecond))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return !conn.LastHealthCheck().IsZero() }, time.Second, 5*time.Millisecond)
	assert.True(t, conn.IsHealthy())

	mock.ExpectClose()
	require.NoError(t, conn.Disconnect())
	assert.Equal(t, HealthStatus{Healthy: true}, conn.HealthStatus())
}
