//go:build integration
// +build integration

package test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/coregx/quarry"
)

// DatabaseSetup is a running database and a manager configured for it.
type DatabaseSetup struct {
	Manager   *quarry.Manager
	Conn      *quarry.Connection
	Config    quarry.ConnectionConfig
	Container testcontainers.Container
	Dialect   string
}

// Close disconnects and terminates the container.
func (ds *DatabaseSetup) Close() {
	if ds.Manager != nil {
		ds.Manager.Close() //nolint:errcheck
	}
	if ds.Container != nil {
		ds.Container.Terminate(context.Background()) //nolint:errcheck
	}
}

func newSetup(t *testing.T, dialect string, cfg quarry.ConnectionConfig, container testcontainers.Container) *DatabaseSetup {
	t.Helper()

	m, err := quarry.NewManager(quarry.Config{
		Default:     "main",
		Connections: map[string]quarry.ConnectionConfig{"main": cfg},
	})
	require.NoError(t, err)

	conn, err := m.Connection(context.Background(), "main")
	if err != nil && container != nil {
		container.Terminate(context.Background()) //nolint:errcheck
	}
	require.NoError(t, err)

	ds := &DatabaseSetup{Manager: m, Conn: conn, Config: cfg, Container: container, Dialect: dialect}
	t.Cleanup(ds.Close)
	return ds
}

// containerConfig fills host and port from a running container.
func containerConfig(t *testing.T, c testcontainers.Container, port string, cfg quarry.ConnectionConfig) quarry.ConnectionConfig {
	t.Helper()
	ctx := context.Background()

	host, err := c.Host(ctx)
	require.NoError(t, err)
	mapped, err := c.MappedPort(ctx, port+"/tcp")
	require.NoError(t, err)

	cfg.Host = quarry.Hosts{host}
	cfg.Port = mapped.Int()
	return cfg
}

// SetupPostgreSQLTestDB starts PostgreSQL and connects through driver,
// either "pgsql" (lib/pq) or "pgx". POSTGRES_TEST_DSN skips Docker.
func SetupPostgreSQLTestDB(t *testing.T, driver string) *DatabaseSetup {
	ctx := context.Background()

	if dsn := os.Getenv("POSTGRES_TEST_DSN"); dsn != "" {
		return newSetup(t, "postgres", quarry.ConnectionConfig{Driver: driver, DSN: dsn}, nil)
	}

	pgContainer, err := postgres.Run(
		ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skip("Docker not available for PostgreSQL integration tests: " + err.Error())
	}

	cfg := containerConfig(t, pgContainer, "5432", quarry.ConnectionConfig{
		Driver:   driver,
		Database: "testdb",
		Username: "user",
		Password: "password",
		SSLMode:  "disable",
	})
	return newSetup(t, "postgres", cfg, pgContainer)
}

// SetupMySQLTestDB starts MySQL. MYSQL_TEST_DSN skips Docker.
func SetupMySQLTestDB(t *testing.T) *DatabaseSetup {
	ctx := context.Background()

	if dsn := os.Getenv("MYSQL_TEST_DSN"); dsn != "" {
		return newSetup(t, "mysql", quarry.ConnectionConfig{Driver: "mysql", DSN: dsn}, nil)
	}

	mysqlContainer, err := mysql.Run(
		ctx,
		"mysql:8.0",
		mysql.WithDatabase("testdb"),
		mysql.WithUsername("user"),
		mysql.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("port: 3306  MySQL Community Server").
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skip("Docker not available for MySQL integration tests: " + err.Error())
	}

	cfg := containerConfig(t, mysqlContainer, "3306", quarry.ConnectionConfig{
		Driver:   "mysql",
		Database: "testdb",
		Username: "user",
		Password: "password",
		Charset:  "utf8mb4",
	})
	return newSetup(t, "mysql", cfg, mysqlContainer)
}

// SetupSQLiteTestDB opens an in-memory SQLite database.
func SetupSQLiteTestDB(t *testing.T) *DatabaseSetup {
	return newSetup(t, "sqlite", quarry.ConnectionConfig{Driver: "sqlite", Database: ":memory:"}, nil)
}

// forEachDatabase runs fn against SQLite, PostgreSQL through both drivers
// and MySQL.
func forEachDatabase(t *testing.T, fn func(t *testing.T, ds *DatabaseSetup)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, SetupSQLiteTestDB(t)) })
	t.Run("postgres", func(t *testing.T) { fn(t, SetupPostgreSQLTestDB(t, "pgsql")) })
	t.Run("pgx", func(t *testing.T) { fn(t, SetupPostgreSQLTestDB(t, "pgx")) })
	t.Run("mysql", func(t *testing.T) { fn(t, SetupMySQLTestDB(t)) })
}

var schemas = map[string]map[string]string{
	"users": {
		"postgres": `CREATE TABLE users (
			id SERIAL PRIMARY KEY,
			team_id INTEGER,
			name VARCHAR(255) NOT NULL,
			email VARCHAR(255) UNIQUE NOT NULL,
			votes INTEGER NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		"mysql": `CREATE TABLE users (
			id INT AUTO_INCREMENT PRIMARY KEY,
			team_id INT,
			name VARCHAR(255) NOT NULL,
			email VARCHAR(255) UNIQUE NOT NULL,
			votes INT NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		"sqlite": `CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			team_id INTEGER,
			name VARCHAR(255) NOT NULL,
			email VARCHAR(255) UNIQUE NOT NULL,
			votes INTEGER NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
	},
	"teams": {
		"postgres": `CREATE TABLE teams (id SERIAL PRIMARY KEY, name VARCHAR(255) NOT NULL)`,
		"mysql":    `CREATE TABLE teams (id INT AUTO_INCREMENT PRIMARY KEY, name VARCHAR(255) NOT NULL)`,
		"sqlite":   `CREATE TABLE teams (id INTEGER PRIMARY KEY AUTOINCREMENT, name VARCHAR(255) NOT NULL)`,
	},
}

// CreateTables drops and recreates the named tables.
func CreateTables(t *testing.T, ds *DatabaseSetup, tables ...string) {
	t.Helper()
	ctx := context.Background()
	for _, table := range tables {
		require.NoError(t, ds.Conn.Statement(ctx, "DROP TABLE IF EXISTS "+table, nil))
		require.NoError(t, ds.Conn.Statement(ctx, schemas[table][ds.Dialect], nil))
	}
}

// InsertTestUsers inserts users user1..userN with votes equal to their
// number, alternating between teams 1 and 2.
func InsertTestUsers(t *testing.T, ds *DatabaseSetup, count int) {
	t.Helper()
	rows := make([]map[string]any, count)
	for i := range rows {
		n := i + 1
		rows[i] = map[string]any{
			"team_id": n%2 + 1,
			"name":    fmt.Sprintf("user%d", n),
			"email":   fmt.Sprintf("user%d@example.com", n),
			"votes":   n,
		}
	}
	require.NoError(t, ds.Conn.Table("users").Insert(context.Background(), rows))
}
