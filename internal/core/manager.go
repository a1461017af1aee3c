package core

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/coregx/quarry/internal/dialects"
	"github.com/coregx/quarry/internal/logger"
	"github.com/coregx/quarry/internal/tracer"
)

// ConnectionFactory builds a whole connection for a configuration. It is
// registered with Manager.Extend.
type ConnectionFactory func(ctx context.Context, name string, cfg ConnectionConfig) (*Connection, error)

// Resolver wraps opened handles into a Connection. It is registered per
// driver with Manager.ResolverFor.
type Resolver func(db *sql.DB, opts ...ConnectionOption) (*Connection, error)

// Manager resolves named connections from a Config. Connections are built
// on first use and cached; "name::read" and "name::write" address one side
// of a read/write connection. A Manager is safe for concurrent use, the
// connections it returns are not.
type Manager struct {
	mu          sync.RWMutex
	config      Config
	defaultName string
	connections map[string]*Connection
	extensions  map[string]ConnectionFactory
	resolvers   map[string]Resolver
	connectors  map[string]Connector
	group       singleflight.Group

	logger logger.Logger
	tracer tracer.Tracer
	macros *MacroRegistry
	hooks  []QueryHook
	extra  []ConnectionOption
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger handed to every connection.
func WithManagerLogger(l logger.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithManagerTracer sets the tracer handed to every connection.
func WithManagerTracer(t tracer.Tracer) ManagerOption {
	return func(m *Manager) {
		if t != nil {
			m.tracer = t
		}
	}
}

// WithManagerMacros shares one macro registry across all connections.
func WithManagerMacros(r *MacroRegistry) ManagerOption {
	return func(m *Manager) { m.macros = r }
}

// WithManagerQueryHook registers a hook on every connection.
func WithManagerQueryHook(hook QueryHook) ManagerOption {
	return func(m *Manager) { m.hooks = append(m.hooks, hook) }
}

// WithConnectionOptions appends options applied to every connection after
// the ones derived from its configuration.
func WithConnectionOptions(opts ...ConnectionOption) ManagerOption {
	return func(m *Manager) { m.extra = append(m.extra, opts...) }
}

// NewManager validates cfg and returns a manager. No connection is opened.
func NewManager(cfg Config, opts ...ManagerOption) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		config:      cfg,
		defaultName: cfg.Default,
		connections: make(map[string]*Connection),
		extensions:  make(map[string]ConnectionFactory),
		resolvers:   make(map[string]Resolver),
		connectors:  make(map[string]Connector),
		logger:      &logger.NoopLogger{},
		tracer:      &tracer.NoopTracer{},
		macros:      NewMacroRegistry(),
	}
	if m.defaultName == "" && len(cfg.Connections) == 1 {
		for name := range cfg.Connections {
			m.defaultName = name
		}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// parseName splits "name::type"; an empty name means the default.
func (m *Manager) parseName(name string) (full, base, typ string) {
	if name == "" {
		name = m.DefaultConnection()
	}
	base, typ, _ = strings.Cut(name, "::")
	return name, base, typ
}

// Connection returns the named connection, building it on first use.
// Concurrent first calls for one name share a single build.
func (m *Manager) Connection(ctx context.Context, name string) (*Connection, error) {
	full, base, typ := m.parseName(name)
	if c := m.cached(full); c != nil {
		return c, nil
	}

	v, err, _ := m.group.Do(full, func() (any, error) {
		if c := m.cached(full); c != nil {
			return c, nil
		}
		c, err := m.makeConnection(ctx, full, base, typ)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.connections[full] = c
		m.mu.Unlock()
		m.logger.Info("connection established", "connection", full, "driver", c.DriverName())
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Connection), nil
}

func (m *Manager) cached(name string) *Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connections[name]
}

func (m *Manager) configuration(base, typ string) (ConnectionConfig, error) {
	m.mu.RLock()
	cfg, ok := m.config.Connections[base]
	m.mu.RUnlock()
	if !ok {
		return ConnectionConfig{}, WrapError(ErrConnectionNotConfigured, "database connection ["+base+"] not configured")
	}
	switch typ {
	case "":
		return cfg, nil
	case "read":
		return cfg.ReadConfig(), nil
	case "write":
		return cfg.WriteConfig(), nil
	default:
		return ConnectionConfig{}, invalidArgument("unknown connection type %q, want read or write", typ)
	}
}

func (m *Manager) makeConnection(ctx context.Context, full, base, typ string) (*Connection, error) {
	cfg, err := m.configuration(base, typ)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	ext, ok := m.extensions[base]
	if !ok {
		ext, ok = m.extensions[cfg.Driver]
	}
	m.mu.RUnlock()
	if ok {
		return ext(ctx, full, cfg)
	}

	write, read, err := m.openHandles(ctx, cfg)
	if err != nil {
		return nil, err
	}
	opts := m.connectionOptions(full, cfg)
	if read != nil {
		opts = append(opts, WithReadDB(read))
	}

	resolve := m.resolverFor(cfg.Driver)
	c, err := resolve(write, opts...)
	if err != nil {
		_ = write.Close()
		if read != nil {
			_ = read.Close()
		}
		return nil, err
	}
	c.SetReconnector(m.reconnector(cfg))
	return c, nil
}

// openHandles opens the write handle and, for read/write configurations,
// the read handle.
func (m *Manager) openHandles(ctx context.Context, cfg ConnectionConfig) (write, read *sql.DB, err error) {
	if !cfg.HasReadWrite() {
		write, err = m.connect(ctx, cfg)
		return write, nil, err
	}
	if write, err = m.connect(ctx, cfg.WriteConfig()); err != nil {
		return nil, nil, err
	}
	if read, err = m.connect(ctx, cfg.ReadConfig()); err != nil {
		_ = write.Close()
		return nil, nil, err
	}
	return write, read, nil
}

func (m *Manager) connect(ctx context.Context, cfg ConnectionConfig) (*sql.DB, error) {
	m.mu.RLock()
	connector, ok := m.connectors[cfg.Driver]
	m.mu.RUnlock()
	if !ok {
		connector = defaultConnector
	}
	return connector(ctx, cfg)
}

// reconnector replaces the handles of a connection with freshly opened
// ones for the same configuration.
func (m *Manager) reconnector(cfg ConnectionConfig) Reconnector {
	return func(ctx context.Context, c *Connection) error {
		write, read, err := m.openHandles(ctx, cfg)
		if err != nil {
			return err
		}
		c.SetDB(write)
		if read != nil {
			c.SetReadDB(read)
		}
		return nil
	}
}

func (m *Manager) connectionOptions(name string, cfg ConnectionConfig) []ConnectionOption {
	opts := []ConnectionOption{
		WithName(name),
		WithDriverName(cfg.Driver),
		WithDatabase(cfg.Database),
		WithTablePrefix(cfg.Prefix),
		WithLogger(m.logger),
		WithTracer(m.tracer),
		WithStatementCache(cfg.StatementCache),
		WithSticky(cfg.Sticky),
		WithMacros(m.macros),
	}
	if cfg.HealthCheckInterval > 0 {
		opts = append(opts, WithHealthCheck(cfg.HealthCheckInterval))
	}
	if len(cfg.SensitiveFields) > 0 {
		opts = append(opts, WithSensitiveFields(cfg.SensitiveFields...))
	}
	for _, h := range m.hooks {
		opts = append(opts, WithQueryHook(h))
	}
	return append(opts, m.extra...)
}

func (m *Manager) resolverFor(driver string) Resolver {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.resolvers[driver]; ok {
		return r
	}
	return NewConnection
}

// Reconnect replaces the handles of the named connection, building it when
// it does not exist yet.
func (m *Manager) Reconnect(ctx context.Context, name string) (*Connection, error) {
	full, _, _ := m.parseName(name)
	c := m.cached(full)
	if c == nil {
		return m.Connection(ctx, full)
	}
	if err := c.Disconnect(); err != nil {
		m.logger.Warn("disconnect before reconnect failed", "connection", full, "error", err)
	}
	if err := c.Reconnect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Disconnect closes the handles of the named connection but keeps it
// cached; its next statement reconnects.
func (m *Manager) Disconnect(name string) error {
	full, _, _ := m.parseName(name)
	if c := m.cached(full); c != nil {
		return c.Disconnect()
	}
	return nil
}

// Purge disconnects the named connection and forgets it.
func (m *Manager) Purge(name string) error {
	full, _, _ := m.parseName(name)
	m.mu.Lock()
	c := m.connections[full]
	delete(m.connections, full)
	m.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Disconnect()
}

// DefaultConnection returns the name used for an empty connection name.
func (m *Manager) DefaultConnection() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultName
}

// SetDefaultConnection changes the default connection name.
func (m *Manager) SetDefaultConnection(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultName = name
}

// Extend registers a factory for a connection name or a driver. A factory
// for a name wins over one for its driver.
func (m *Manager) Extend(nameOrDriver string, fn ConnectionFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extensions[nameOrDriver] = fn
}

// ResolverFor registers the constructor used to wrap handles of driver.
func (m *Manager) ResolverFor(driver string, fn Resolver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolvers[driver] = fn
}

// RegisterConnector registers the function that opens handles for driver.
func (m *Manager) RegisterConnector(driver string, fn Connector) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectors[driver] = fn
}

// Connections returns the connections built so far, keyed by name.
func (m *Manager) Connections() map[string]*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*Connection, len(m.connections))
	for k, v := range m.connections {
		out[k] = v
	}
	return out
}

// AvailableDrivers lists the drivers that have both a dialect and a
// registered database/sql driver.
func (m *Manager) AvailableDrivers() []string {
	loaded := make(map[string]bool)
	for _, d := range sql.Drivers() {
		loaded[d] = true
	}
	var out []string
	for _, name := range dialects.Registered() {
		if loaded[SQLDriverName(name)] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Close purges every connection.
func (m *Manager) Close() error {
	m.mu.Lock()
	conns := m.connections
	m.connections = make(map[string]*Connection)
	m.mu.Unlock()

	var errs []error
	for _, c := range conns {
		if err := c.Disconnect(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
