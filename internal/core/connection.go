package core

import (
	"context"
	"database/sql"
	"time"

	"github.com/coregx/quarry/internal/cache"
	"github.com/coregx/quarry/internal/dialects"
	"github.com/coregx/quarry/internal/logger"
	"github.com/coregx/quarry/internal/security"
	"github.com/coregx/quarry/internal/tracer"
)

// Reconnector replaces the handles of a connection whose session was lost.
// It usually calls SetDB and SetReadDB with freshly opened handles.
type Reconnector func(ctx context.Context, conn *Connection) error

// QueryLog is one entry of a connection's query log.
type QueryLog struct {
	Query    string
	Bindings []any
	Duration time.Duration
}

// Milliseconds returns the elapsed time in fractional milliseconds.
func (q QueryLog) Milliseconds() float64 {
	return float64(q.Duration.Microseconds()) / 1000.0
}

// Connection executes statements on one logical database. It owns a write
// handle, an optional read handle, the transaction depth, the pretend flag
// and the query log.
//
// A Connection is not safe for concurrent use; callers serialize access or
// use one connection per goroutine.
type Connection struct {
	name       string
	driverName string
	database   string
	prefix     string
	grammar    *Grammar
	processor  *Processor
	macros     *MacroRegistry

	db     *sql.DB
	readDB *sql.DB
	tx     *sql.Tx

	transactions    int
	reconnector     Reconnector
	pretending      bool
	loggingQueries  bool
	queryLog        []QueryLog
	recordsModified bool
	sticky          bool

	logger    logger.Logger
	sanitizer *logger.Sanitizer
	tracer    tracer.Tracer
	hooks     []QueryHook
	validator *security.Validator
	auditor   *security.Auditor

	stmtCapacity  int
	stmtCache     *cache.StmtCache
	readStmtCache *cache.StmtCache

	healthInterval time.Duration
	health         *healthChecker
}

// ConnectionOption configures a Connection.
type ConnectionOption func(*Connection)

// WithName sets the connection name used in errors, logs and spans.
func WithName(name string) ConnectionOption {
	return func(c *Connection) { c.name = name }
}

// WithDriverName sets the database/sql driver name; it also selects the
// dialect unless WithDialect is given.
func WithDriverName(driver string) ConnectionOption {
	return func(c *Connection) { c.driverName = driver }
}

// WithDialect sets the dialect explicitly.
func WithDialect(d dialects.Dialect) ConnectionOption {
	return func(c *Connection) { c.grammar = NewGrammar(d) }
}

// WithDatabase records the database name for tracing.
func WithDatabase(name string) ConnectionOption {
	return func(c *Connection) { c.database = name }
}

// WithTablePrefix sets the prefix applied to every table name.
func WithTablePrefix(prefix string) ConnectionOption {
	return func(c *Connection) { c.prefix = prefix }
}

// WithReadDB sets the handle used for reads.
func WithReadDB(db *sql.DB) ConnectionOption {
	return func(c *Connection) { c.readDB = db }
}

// WithReconnector sets the function used to replace lost handles.
func WithReconnector(r Reconnector) ConnectionOption {
	return func(c *Connection) { c.reconnector = r }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) ConnectionOption {
	return func(c *Connection) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSensitiveFields replaces the column names masked in logged bindings.
func WithSensitiveFields(fields ...string) ConnectionOption {
	return func(c *Connection) { c.sanitizer = logger.NewSanitizer(fields) }
}

// WithTracer sets the tracer.
func WithTracer(t tracer.Tracer) ConnectionOption {
	return func(c *Connection) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithStatementCache enables a prepared statement cache of the given
// capacity per handle. Zero disables it.
func WithStatementCache(capacity int) ConnectionOption {
	return func(c *Connection) { c.stmtCapacity = capacity }
}

// WithSticky makes reads use the write handle once this connection has
// written.
func WithSticky(sticky bool) ConnectionOption {
	return func(c *Connection) { c.sticky = sticky }
}

// WithMacros shares a macro registry with the connection's builders.
func WithMacros(r *MacroRegistry) ConnectionOption {
	return func(c *Connection) { c.macros = r }
}

// WithHealthCheck pings the write handle every interval.
func WithHealthCheck(interval time.Duration) ConnectionOption {
	return func(c *Connection) { c.healthInterval = interval }
}

// WithQueryHook registers a hook, like Listen.
func WithQueryHook(hook QueryHook) ConnectionOption {
	return func(c *Connection) { c.Listen(hook) }
}

// WithValidator checks hand-written statements, those given to Unprepared,
// SelectNamed and StatementNamed, before they run.
func WithValidator(v *security.Validator) ConnectionOption {
	return func(c *Connection) { c.validator = v }
}

// WithAuditor audits every executed statement the auditor's level covers.
func WithAuditor(a *security.Auditor) ConnectionOption {
	return func(c *Connection) {
		c.auditor = a
		c.Listen(func(ctx context.Context, e QueryEvent) {
			a.Audit(ctx, security.Statement{
				Connection:   e.Connection,
				Operation:    e.Operation,
				SQL:          e.SQL,
				Bindings:     e.Bindings,
				RowsAffected: e.RowsAffected,
				Duration:     e.Duration,
				Err:          e.Error,
				Pretend:      e.Pretend,
			})
		})
	}
}

// NewConnection wraps db. The dialect comes from WithDialect or
// WithDriverName; it is an error to give neither.
func NewConnection(db *sql.DB, opts ...ConnectionOption) (*Connection, error) {
	c := &Connection{
		name:      "default",
		db:        db,
		processor: &Processor{},
		logger:    &logger.NoopLogger{},
		sanitizer: logger.NewSanitizer(nil),
		tracer:    &tracer.NoopTracer{},
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.grammar == nil {
		if c.driverName == "" {
			return nil, invalidArgument("connection needs a driver name or a dialect")
		}
		d, err := dialects.GetDialect(c.driverName)
		if err != nil {
			return nil, WrapError(ErrUnsupportedDialect, err.Error())
		}
		c.grammar = NewGrammar(d)
	}
	c.grammar.SetTablePrefix(c.prefix)
	if c.driverName == "" {
		c.driverName = c.grammar.dialect.Name()
	}
	if c.macros == nil {
		c.macros = NewMacroRegistry()
	}
	c.logger = c.logger.With("connection", c.name)
	c.resetStatementCaches()
	c.startHealthCheck()
	return c, nil
}

// Name returns the connection name.
func (c *Connection) Name() string { return c.name }

// DriverName returns the database/sql driver name.
func (c *Connection) DriverName() string { return c.driverName }

// Grammar returns the connection's grammar.
func (c *Connection) Grammar() *Grammar { return c.grammar }

// Processor returns the result processor.
func (c *Connection) Processor() *Processor { return c.processor }

// Macros returns the macro registry shared by the connection's builders.
func (c *Connection) Macros() *MacroRegistry { return c.macros }

// TablePrefix returns the table prefix.
func (c *Connection) TablePrefix() string { return c.grammar.TablePrefix() }

// DB returns the write handle, nil when disconnected.
func (c *Connection) DB() *sql.DB { return c.db }

// ReadDB returns the read handle, falling back to the write handle.
func (c *Connection) ReadDB() *sql.DB {
	if c.readDB != nil {
		return c.readDB
	}
	return c.db
}

// SetDB replaces the write handle.
func (c *Connection) SetDB(db *sql.DB) *Connection {
	c.db = db
	c.tx = nil
	c.resetStatementCaches()
	c.startHealthCheck()
	return c
}

// SetReadDB replaces the read handle.
func (c *Connection) SetReadDB(db *sql.DB) *Connection {
	c.readDB = db
	c.resetStatementCaches()
	c.startHealthCheck()
	return c
}

// SetReconnector replaces the reconnector.
func (c *Connection) SetReconnector(r Reconnector) *Connection {
	c.reconnector = r
	return c
}

// Query returns a new builder on this connection.
func (c *Connection) Query() *Builder {
	return NewBuilder(c.grammar, c)
}

// Table returns a new builder targeting table.
func (c *Connection) Table(table any, alias ...string) *Builder {
	return c.Query().From(table, alias...)
}

// Raw returns a raw SQL fragment.
func (c *Connection) Raw(sql string) Raw { return Raw(sql) }

// Ping verifies the write handle.
func (c *Connection) Ping(ctx context.Context) error {
	if c.db == nil {
		return ErrNoConnection
	}
	return c.db.PingContext(ctx)
}

// IsHealthy reports whether the last health check reached every handle.
// Without WithHealthCheck it is always true.
func (c *Connection) IsHealthy() bool {
	return c.HealthStatus().Healthy
}

// LastHealthCheck returns the time of the last health check.
func (c *Connection) LastHealthCheck() time.Time {
	return c.HealthStatus().LastCheck
}

// HealthStatus returns the outcome of the last background check.
func (c *Connection) HealthStatus() HealthStatus {
	if c.health == nil {
		return HealthStatus{Healthy: true}
	}
	return c.health.status()
}

// StatementCacheStats returns statistics of the write handle's statement
// cache.
func (c *Connection) StatementCacheStats() cache.Stats {
	if c.stmtCache == nil {
		return cache.Stats{}
	}
	return c.stmtCache.Stats()
}

// Disconnect closes both handles. The next statement reconnects through the
// reconnector.
func (c *Connection) Disconnect() error {
	c.stopHealthCheck()
	c.clearStatementCaches()

	var firstErr error
	if c.readDB != nil && c.readDB != c.db {
		firstErr = c.readDB.Close()
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.db, c.readDB, c.tx = nil, nil, nil
	c.transactions = 0
	return firstErr
}

// Reconnect replaces the handles through the reconnector.
func (c *Connection) Reconnect(ctx context.Context) error {
	if c.reconnector == nil {
		return WrapError(ErrNoConnection, "lost connection and no reconnector available")
	}
	c.logger.Warn("reconnecting")
	c.clearStatementCaches()
	c.tx = nil
	if err := c.reconnector(ctx, c); err != nil {
		return err
	}
	if c.db == nil {
		return WrapError(ErrNoConnection, "reconnector returned without a handle")
	}
	return nil
}

func (c *Connection) reconnectIfMissing(ctx context.Context) error {
	if c.db != nil || c.pretending {
		return nil
	}
	return c.Reconnect(ctx)
}

// EnableQueryLog starts recording executed statements.
func (c *Connection) EnableQueryLog() { c.loggingQueries = true }

// DisableQueryLog stops recording executed statements.
func (c *Connection) DisableQueryLog() { c.loggingQueries = false }

// LoggingQueries reports whether the query log is enabled.
func (c *Connection) LoggingQueries() bool { return c.loggingQueries }

// QueryLog returns a copy of the recorded statements.
func (c *Connection) QueryLog() []QueryLog {
	return append([]QueryLog(nil), c.queryLog...)
}

// FlushQueryLog clears the query log.
func (c *Connection) FlushQueryLog() { c.queryLog = nil }

// Pretending reports whether statements are recorded instead of executed.
func (c *Connection) Pretending() bool { return c.pretending }

// Pretend runs fn with execution disabled and returns the statements it
// would have run. The query log and its enabled state are restored after.
func (c *Connection) Pretend(ctx context.Context, fn func(*Connection) error) ([]QueryLog, error) {
	wasLogging, oldLog, wasPretending := c.loggingQueries, c.queryLog, c.pretending
	c.loggingQueries, c.queryLog, c.pretending = true, nil, true
	defer func() {
		c.loggingQueries, c.queryLog, c.pretending = wasLogging, oldLog, wasPretending
	}()

	err := fn(c)
	return append([]QueryLog(nil), c.queryLog...), err
}

// RecordsHaveBeenModified marks the connection as having written, which
// makes sticky connections read from the write handle.
func (c *Connection) RecordsHaveBeenModified(value bool) {
	if !c.recordsModified {
		c.recordsModified = value
	}
}

// ForgetRecordModificationState clears the written flag.
func (c *Connection) ForgetRecordModificationState() { c.recordsModified = false }

// handle picks the handle for a statement: the open transaction, the read
// handle for reads, or the write handle.
func (c *Connection) handle(useRead bool) (execer, *cache.StmtCache) {
	if c.tx != nil {
		return c.tx, nil
	}
	if useRead && c.readDB != nil && !(c.sticky && c.recordsModified) {
		return c.readDB, c.readStmtCache
	}
	return c.db, c.stmtCache
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

func (c *Connection) resetStatementCaches() {
	c.clearStatementCaches()
	if c.stmtCapacity <= 0 {
		c.stmtCache, c.readStmtCache = nil, nil
		return
	}
	c.stmtCache = cache.NewStmtCacheWithCapacity(c.stmtCapacity)
	c.readStmtCache = cache.NewStmtCacheWithCapacity(c.stmtCapacity)
}

func (c *Connection) clearStatementCaches() {
	if c.stmtCache != nil {
		c.stmtCache.Clear()
	}
	if c.readStmtCache != nil {
		c.readStmtCache.Clear()
	}
}

func (c *Connection) startHealthCheck() {
	c.stopHealthCheck()
	if c.healthInterval <= 0 || c.db == nil {
		return
	}
	c.health = newHealthChecker(c.db, c.readDB, c.logger, c.healthInterval)
	c.health.start()
}

func (c *Connection) stopHealthCheck() {
	if c.health != nil {
		c.health.shutdown()
		c.health = nil
	}
}

// validate runs the validator, if any, over a hand-written statement.
func (c *Connection) validate(ctx context.Context, query string, bindings []any) error {
	if c.validator == nil {
		return nil
	}
	err := c.validator.ValidateQuery(query)
	if err == nil {
		err = c.validator.ValidateParams(bindings)
	}
	if err != nil {
		c.logger.Warn("statement rejected", "sql", query, "error", err)
		if c.auditor != nil {
			c.auditor.Blocked(ctx, query, err)
		}
	}
	return err
}
