// Package quarry is a SQL query builder and connection layer for Go with
// dialect grammars for MySQL, PostgreSQL and SQLite. Queries are built
// fluently, compiled per dialect and run through a Connection that handles
// reconnects, nested transactions, read/write splitting, dry runs and a
// query log. A Manager resolves named connections from YAML configuration.
package quarry

import (
	"database/sql"
	"fmt"

	"github.com/coregx/quarry/internal/core"
	"github.com/coregx/quarry/internal/logger"
	"github.com/coregx/quarry/internal/security"
	"github.com/coregx/quarry/internal/tracer"
)

type (
	// Connection runs statements against one database.
	Connection = core.Connection
	// ConnectionOption configures a Connection.
	ConnectionOption = core.ConnectionOption
	// Builder builds and runs a query.
	Builder = core.Builder
	// JoinClause is the builder passed to join callbacks.
	JoinClause = core.JoinClause
	// Grammar compiles builders into dialect SQL.
	Grammar = core.Grammar
	// Processor post-processes results such as inserted ids.
	Processor = core.Processor
	// Row is one result row keyed by column name.
	Row = core.Row
	// Params holds named parameters for {:name} placeholders.
	Params = core.Params
	// Cursor iterates over rows without loading them all.
	Cursor = core.Cursor
	// Paginator is a page of results without a total.
	Paginator = core.Paginator
	// LengthAwarePaginator is a page of results with a total.
	LengthAwarePaginator = core.LengthAwarePaginator
	// QueryLog is one entry of the connection query log.
	QueryLog = core.QueryLog
	// QueryEvent is passed to query hooks.
	QueryEvent = core.QueryEvent
	// QueryHook observes executed statements.
	QueryHook = core.QueryHook
	// QueryError wraps a driver error with its SQL and bindings.
	QueryError = core.QueryError
	// Reconnector reopens the handles of a connection.
	Reconnector = core.Reconnector
	// HealthStatus is the result of the background health check.
	HealthStatus = core.HealthStatus

	// Manager resolves named connections.
	Manager = core.Manager
	// ManagerOption configures a Manager.
	ManagerOption = core.ManagerOption
	// Config lists named connections.
	Config = core.Config
	// ConnectionConfig describes one connection.
	ConnectionConfig = core.ConnectionConfig
	// Hosts is a host list.
	Hosts = core.Hosts
	// Connector opens a database handle for a configuration.
	Connector = core.Connector
	// Resolver wraps handles into a Connection.
	Resolver = core.Resolver
	// ConnectionFactory builds a whole connection.
	ConnectionFactory = core.ConnectionFactory

	// MacroRegistry holds builder macros.
	MacroRegistry = core.MacroRegistry
	// MacroFunc is a builder macro.
	MacroFunc = core.MacroFunc
	// DynamicClause is one column of a dynamic where method name.
	DynamicClause = core.DynamicClause

	// Raw is SQL emitted verbatim.
	Raw = core.Raw
	// Expression is a condition that renders its own SQL.
	Expression = core.Expression
	// HashExp is a column to value equality map.
	HashExp = core.HashExp
	// LikeExp is a LIKE condition.
	LikeExp = core.LikeExp
	// CaseExp is a CASE expression.
	CaseExp = core.CaseExp
	// FuncExp is a SQL function call.
	FuncExp = core.FuncExp

	// Logger is the logging interface used by connections.
	Logger = logger.Logger
	// Tracer is the tracing interface used by connections.
	Tracer = tracer.Tracer

	// Validator rejects hand-written statements matching injection patterns.
	Validator = security.Validator
	// Auditor writes audit events for executed statements.
	Auditor = security.Auditor
	// AuditLevel selects which statements are audited.
	AuditLevel = security.AuditLevel
)

// Audit levels.
const (
	AuditNone   = security.AuditNone
	AuditWrites = security.AuditWrites
	AuditAll    = security.AuditAll
)

var (
	ErrNoRows                  = core.ErrNoRows
	ErrInvalidArgument         = core.ErrInvalidArgument
	ErrMissingOrder            = core.ErrMissingOrder
	ErrNoConnection            = core.ErrNoConnection
	ErrConnectionNotConfigured = core.ErrConnectionNotConfigured
	ErrUnsupportedDialect      = core.ErrUnsupportedDialect
	ErrStopChunk               = core.ErrStopChunk
	ErrMacroNotFound           = core.ErrMacroNotFound
	ErrUnsafeStatement         = security.ErrUnsafeStatement
)

var (
	NewConnection       = core.NewConnection
	WithName            = core.WithName
	WithDriverName      = core.WithDriverName
	WithDialect         = core.WithDialect
	WithDatabase        = core.WithDatabase
	WithTablePrefix     = core.WithTablePrefix
	WithReadDB          = core.WithReadDB
	WithReconnector     = core.WithReconnector
	WithLogger          = core.WithLogger
	WithSensitiveFields = core.WithSensitiveFields
	WithTracer          = core.WithTracer
	WithStatementCache  = core.WithStatementCache
	WithSticky          = core.WithSticky
	WithMacros          = core.WithMacros
	WithHealthCheck     = core.WithHealthCheck
	WithQueryHook       = core.WithQueryHook
	WithValidator       = core.WithValidator
	WithAuditor         = core.WithAuditor

	NewManager            = core.NewManager
	WithManagerLogger     = core.WithManagerLogger
	WithManagerTracer     = core.WithManagerTracer
	WithManagerMacros     = core.WithManagerMacros
	WithManagerQueryHook  = core.WithManagerQueryHook
	WithConnectionOptions = core.WithConnectionOptions
	LoadConfig            = core.LoadConfig
	ParseConfig           = core.ParseConfig
	BuildDSN              = core.BuildDSN
	SQLDriverName         = core.SQLDriverName

	NewMacroRegistry  = core.NewMacroRegistry
	ParseDynamicWhere = core.ParseDynamicWhere
	InterpolateSQL    = core.InterpolateSQL

	NewSlogLogger = logger.NewSlogAdapter
	NewOtelTracer = tracer.NewOtelTracer
	NewValidator  = security.NewValidator
	WithStrict    = security.WithStrict
	NewAuditor    = security.NewAuditor
	WithUser      = security.WithUser
	WithClientIP  = security.WithClientIP
	WithRequestID = security.WithRequestID
)

// Expression constructors.
var (
	NewExp         = core.NewExp
	Eq             = core.Eq
	NotEq          = core.NotEq
	GreaterThan    = core.GreaterThan
	LessThan       = core.LessThan
	GreaterOrEqual = core.GreaterOrEqual
	LessOrEqual    = core.LessOrEqual
	In             = core.In
	NotIn          = core.NotIn
	Between        = core.Between
	NotBetween     = core.NotBetween
	Like           = core.Like
	NotLike        = core.NotLike
	OrLike         = core.OrLike
	And            = core.And
	Or             = core.Or
	Not            = core.Not
	Case           = core.Case
	CaseWhen       = core.CaseWhen
	Coalesce       = core.Coalesce
	NullIf         = core.NullIf
	Greatest       = core.Greatest
	Least          = core.Least
	Concat         = core.Concat
)

// Open opens a database with the database/sql driver serving driverName and
// wraps it in a Connection for that dialect.
func Open(driverName, dsn string, opts ...ConnectionOption) (*Connection, error) {
	db, err := sql.Open(core.SQLDriverName(driverName), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	conn, err := core.NewConnection(db, append([]ConnectionOption{core.WithDriverName(driverName)}, opts...)...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return conn, nil
}

// WrapDB wraps an existing handle.
func WrapDB(db *sql.DB, driverName string, opts ...ConnectionOption) (*Connection, error) {
	return core.NewConnection(db, append([]ConnectionOption{core.WithDriverName(driverName)}, opts...)...)
}
