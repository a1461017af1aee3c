package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
default: app
connections:
  app:
    driver: mysql
    host: [a.example, b.example]
    port: 3307
    database: shop
    username: root
    password: secret
    charset: utf8mb4
    conn_max_lifetime: 5m
    statement_cache: 64
    sticky: true
    params:
      timeout: 5s
    read:
      host: replica.example
      params:
        readTimeout: 2s
  cache:
    driver: sqlite
    database: ":memory:"
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "app", cfg.Default)
	require.Len(t, cfg.Connections, 2)

	app := cfg.Connections["app"]
	assert.Equal(t, Hosts{"a.example", "b.example"}, app.Host)
	assert.Equal(t, 3307, app.Port)
	assert.Equal(t, 5*time.Minute, app.ConnMaxLifetime)
	assert.Equal(t, 64, app.StatementCache)
	assert.True(t, app.Sticky)
	assert.True(t, app.HasReadWrite())
	require.NotNil(t, app.Read)
	assert.Equal(t, Hosts{"replica.example"}, app.Read.Host)

	assert.False(t, cfg.Connections["cache"].HasReadWrite())
}

func TestParseConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing driver", "connections:\n  a:\n    database: x\n"},
		{"unknown default", "default: b\nconnections:\n  a:\n    driver: sqlite\n"},
		{"host mapping", "connections:\n  a:\n    driver: mysql\n    host:\n      name: x\n"},
		{"malformed", "connections: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_ExpandsEnvironment(t *testing.T) {
	t.Setenv("QUARRY_TEST_PASSWORD", "s3cret")
	path := filepath.Join(t.TempDir(), "database.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
connections:
  main:
    driver: postgres
    password: ${QUARRY_TEST_PASSWORD}
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Connections["main"].Password)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConnectionConfig_ReadWriteMerge(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)
	app := cfg.Connections["app"]

	read := app.ReadConfig()
	assert.Equal(t, Hosts{"replica.example"}, read.Host)
	assert.Equal(t, "shop", read.Database)
	assert.Equal(t, "root", read.Username)
	assert.Equal(t, map[string]string{"timeout": "5s", "readTimeout": "2s"}, read.Params)
	assert.Nil(t, read.Read)
	assert.False(t, read.HasReadWrite())

	write := app.WriteConfig()
	assert.Equal(t, Hosts{"a.example", "b.example"}, write.Host)
	assert.Equal(t, map[string]string{"timeout": "5s"}, write.Params)
}

func TestBuildDSN(t *testing.T) {
	t.Run("mysql", func(t *testing.T) {
		dsn, err := BuildDSN(ConnectionConfig{
			Driver:   "mariadb",
			Port:     3307,
			Database: "shop",
			Username: "root",
			Password: "secret",
			Charset:  "utf8mb4",
			Params:   map[string]string{"timeout": "5s"},
		}, "db.example")
		require.NoError(t, err)

		parsed, err := mysql.ParseDSN(dsn)
		require.NoError(t, err)
		assert.Equal(t, "tcp", parsed.Net)
		assert.Equal(t, "db.example:3307", parsed.Addr)
		assert.Equal(t, "root", parsed.User)
		assert.Equal(t, "secret", parsed.Passwd)
		assert.Equal(t, "shop", parsed.DBName)
		assert.True(t, parsed.ParseTime)
		assert.Equal(t, 5*time.Second, parsed.Timeout)
	})

	tests := []struct {
		name string
		cfg  ConnectionConfig
		host string
		want string
	}{
		{"explicit dsn", ConnectionConfig{Driver: "mysql", DSN: "user@/db"}, "", "user@/db"},
		{"postgres", ConnectionConfig{Driver: "pgsql", Database: "app", Username: "u", Password: "p", SSLMode: "disable"},
			"pg.example", "postgres://u:p@pg.example:5432/app?sslmode=disable"},
		{"pgx default host", ConnectionConfig{Driver: "pgx", Port: 6432, Database: "app"},
			"", "postgres://localhost:6432/app"},
		{"sqlite path", ConnectionConfig{Driver: "sqlite", Database: ":memory:"}, "", ":memory:"},
		{"sqlite params", ConnectionConfig{Driver: "sqlite3", Database: "app.db",
			Params: map[string]string{"_pragma": "busy_timeout(5000)"}},
			"", "file:app.db?_pragma=busy_timeout%285000%29"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn, err := BuildDSN(tt.cfg, tt.host)
			require.NoError(t, err)
			assert.Equal(t, tt.want, dsn)
		})
	}

	_, err := BuildDSN(ConnectionConfig{Driver: "sqlite"}, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = BuildDSN(ConnectionConfig{Driver: "oracle"}, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSQLDriverName(t *testing.T) {
	assert.Equal(t, "mysql", SQLDriverName("mariadb"))
	assert.Equal(t, "postgres", SQLDriverName("pgsql"))
	assert.Equal(t, "pgx", SQLDriverName("pgx"))
	assert.Equal(t, "sqlite", SQLDriverName("sqlite3"))
	assert.Equal(t, "custom", SQLDriverName("custom"))
}
