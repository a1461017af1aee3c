package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"

	"github.com/coregx/quarry/internal/logger"
)

// AuditLevel selects which statements are audited.
type AuditLevel int

const (
	// AuditNone disables auditing.
	AuditNone AuditLevel = iota
	// AuditWrites audits INSERT, UPDATE, DELETE and TRUNCATE.
	AuditWrites
	// AuditAll audits every statement, reads included.
	AuditAll
)

// Statement is an executed statement as seen by the auditor.
type Statement struct {
	Connection   string
	Operation    string
	SQL          string
	Bindings     []any
	RowsAffected int64
	Duration     time.Duration
	Err          error
	Pretend      bool
}

// AuditEvent is one audit log entry. Binding values are never logged, only
// a hash of them.
type AuditEvent struct {
	Timestamp    time.Time `json:"timestamp"`
	Connection   string    `json:"connection"`
	User         string    `json:"user,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	ClientIP     string    `json:"client_ip,omitempty"`
	Operation    string    `json:"operation"`
	Table        string    `json:"table,omitempty"`
	SQL          string    `json:"sql"`
	ParamsHash   string    `json:"params_hash,omitempty"`
	AffectedRows int64     `json:"affected_rows"`
	DurationMS   int64     `json:"duration_ms"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
}

// Auditor writes audit events for executed statements.
type Auditor struct {
	log   logger.Logger
	level AuditLevel
	now   func() time.Time
}

// NewAuditor returns an auditor writing to log.
func NewAuditor(log logger.Logger, level AuditLevel) *Auditor {
	if log == nil {
		log = &logger.NoopLogger{}
	}
	return &Auditor{log: log, level: level, now: time.Now}
}

// Audit records st when the level covers its operation. Pretended
// statements are skipped. The event is returned for callers that keep
// their own trail; ok is false when nothing was recorded.
func (a *Auditor) Audit(ctx context.Context, st Statement) (event AuditEvent, ok bool) {
	if st.Pretend || !a.covers(st.Operation) {
		return AuditEvent{}, false
	}

	event = AuditEvent{
		Timestamp:    a.now().UTC(),
		Connection:   st.Connection,
		User:         GetUser(ctx),
		RequestID:    GetRequestID(ctx),
		ClientIP:     GetClientIP(ctx),
		Operation:    st.Operation,
		Table:        tableOf(st.SQL),
		SQL:          st.SQL,
		ParamsHash:   hashParams(st.Bindings),
		AffectedRows: st.RowsAffected,
		DurationMS:   st.Duration.Milliseconds(),
		Success:      st.Err == nil,
	}
	if st.Err != nil {
		event.Error = st.Err.Error()
	}

	args := []any{
		"connection", event.Connection,
		"operation", event.Operation,
		"table", event.Table,
		"sql", event.SQL,
		"params_hash", event.ParamsHash,
		"affected_rows", event.AffectedRows,
		"duration_ms", event.DurationMS,
		"user", event.User,
		"request_id", event.RequestID,
		"client_ip", event.ClientIP,
	}
	if event.Success {
		a.log.Info("audit", args...)
	} else {
		a.log.Warn("audit", append(args, "error", event.Error)...)
	}
	return event, true
}

// Blocked records a statement refused by a Validator.
func (a *Auditor) Blocked(ctx context.Context, query string, err error) {
	a.log.Warn("statement blocked",
		"sql", query,
		"error", err,
		"user", GetUser(ctx),
		"request_id", GetRequestID(ctx))
}

func (a *Auditor) covers(operation string) bool {
	switch a.level {
	case AuditAll:
		return true
	case AuditWrites:
		switch operation {
		case "INSERT", "UPDATE", "DELETE", "TRUNCATE":
			return true
		}
	}
	return false
}

func hashParams(params []any) string {
	if len(params) == 0 {
		return ""
	}
	h := sha256.New()
	for _, p := range params {
		_, _ = fmt.Fprintf(h, "%v\x00", p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

var tablePattern = regexp.MustCompile("(?i)^\\s*(?:insert(?:\\s+ignore)?\\s+into|update|delete(?:\\s+\\S+)?\\s+from|truncate(?:\\s+table)?|select\\b.*?\\bfrom)\\s+[\"`\\[]?([\\w.]+)")

// tableOf returns the first table a statement targets, or "" when it
// cannot tell.
func tableOf(query string) string {
	if m := tablePattern.FindStringSubmatch(query); m != nil {
		return m[1]
	}
	return ""
}

type contextKey string

const (
	userKey      contextKey = "quarry:user"
	clientIPKey  contextKey = "quarry:client_ip"
	requestIDKey contextKey = "quarry:request_id"
)

// WithUser attaches the acting user to ctx for auditing.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// WithClientIP attaches the client address to ctx for auditing.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// WithRequestID attaches a request id to ctx for auditing.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetUser returns the user attached by WithUser.
func GetUser(ctx context.Context) string {
	v, _ := ctx.Value(userKey).(string)
	return v
}

// GetClientIP returns the address attached by WithClientIP.
func GetClientIP(ctx context.Context) string {
	v, _ := ctx.Value(clientIPKey).(string)
	return v
}

// GetRequestID returns the id attached by WithRequestID.
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}
