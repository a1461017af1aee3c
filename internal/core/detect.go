package core

import (
	"database/sql/driver"
	"errors"
	"io"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// lostConnectionMessages are driver messages that mean the session is gone
// and a fresh handle may succeed.
var lostConnectionMessages = []string{
	"server has gone away",
	"no connection to the server",
	"lost connection",
	"is dead or not enabled",
	"error while sending",
	"decryption failed or bad record mac",
	"server closed the connection unexpectedly",
	"ssl connection has been closed unexpectedly",
	"error writing data to the connection",
	"resource deadlock avoided",
	"reset by peer",
	"physical connection is not usable",
	"packets out of order",
	"communication link failure",
	"connection is no longer usable",
	"login timeout expired",
	"connection refused",
	"broken pipe",
	"connection timed out",
	"temporary failure in name resolution",
	"disconnected by the server because of inactivity",
	"could not translate host name",
	"network is unreachable",
	"server is shutting down",
	"failed to connect to",
	"bad connection",
	"invalid connection",
	"connection lost",
	"the database system is shutting down",
	"terminating connection due to administrator command",
}

// concurrencyMessages are driver messages for deadlocks and lock timeouts,
// after which the whole transaction may be retried.
var concurrencyMessages = []string{
	"deadlock found when trying to get lock",
	"deadlock detected",
	"the database file is locked",
	"database is locked",
	"database table is locked",
	"a table in the database is locked",
	"has been chosen as the deadlock victim",
	"lock wait timeout exceeded; try restarting transaction",
	"wsrep detected deadlock/conflict and aborted the transaction",
}

// causedByLostConnection reports whether err means the handle is unusable.
func causedByLostConnection(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "08" {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "08") {
		return true
	}

	return containsAny(err.Error(), lostConnectionMessages)
}

// causedByConcurrencyError reports whether err is a deadlock or lock wait
// failure.
func causedByConcurrencyError(err error) bool {
	if err == nil {
		return false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && (myErr.Number == 1213 || myErr.Number == 1205) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && (pqErr.Code == "40P01" || pqErr.Code == "40001") {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40P01" || pgErr.Code == "40001") {
		return true
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}

	return containsAny(err.Error(), concurrencyMessages)
}

func containsAny(msg string, needles []string) bool {
	msg = strings.ToLower(msg)
	for _, n := range needles {
		if strings.Contains(msg, n) {
			return true
		}
	}
	return false
}
