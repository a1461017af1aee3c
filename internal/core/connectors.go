package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/url"
	"sort"
	"strconv"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
)

// Connector opens a database handle for a configuration.
type Connector func(ctx context.Context, cfg ConnectionConfig) (*sql.DB, error)

var sqlDriverNames = map[string]string{
	"mysql":      "mysql",
	"mariadb":    "mysql",
	"pgsql":      "postgres",
	"postgres":   "postgres",
	"postgresql": "postgres",
	"pgx":        "pgx",
	"sqlite":     "sqlite",
	"sqlite3":    "sqlite",
}

// SQLDriverName maps a configured driver to the database/sql driver that
// serves it. Unknown names are returned unchanged.
func SQLDriverName(driver string) string {
	if n, ok := sqlDriverNames[driver]; ok {
		return n
	}
	return driver
}

// BuildDSN renders the data source name for cfg, connecting to host.
func BuildDSN(cfg ConnectionConfig, host string) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	switch SQLDriverName(cfg.Driver) {
	case "mysql":
		return mysqlDSN(cfg, host), nil
	case "postgres", "pgx":
		return postgresDSN(cfg, host), nil
	case "sqlite":
		return sqliteDSN(cfg)
	default:
		return "", invalidArgument("cannot build a DSN for driver %q, set dsn", cfg.Driver)
	}
}

func mysqlDSN(cfg ConnectionConfig, host string) string {
	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = hostPort(host, cfg.Port, 3306)
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.Collation = cfg.Collation
	if len(cfg.Params) > 0 || cfg.Charset != "" {
		mc.Params = make(map[string]string, len(cfg.Params)+1)
		for k, v := range cfg.Params {
			mc.Params[k] = v
		}
		if cfg.Charset != "" {
			mc.Params["charset"] = cfg.Charset
		}
	}
	return mc.FormatDSN()
}

func postgresDSN(cfg ConnectionConfig, host string) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   hostPort(host, cfg.Port, 5432),
		Path:   "/" + cfg.Database,
	}
	if cfg.Username != "" {
		u.User = url.UserPassword(cfg.Username, cfg.Password)
	}
	q := url.Values{}
	for k, v := range cfg.Params {
		q.Set(k, v)
	}
	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	}
	if cfg.Charset != "" {
		q.Set("client_encoding", cfg.Charset)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func sqliteDSN(cfg ConnectionConfig) (string, error) {
	if cfg.Database == "" {
		return "", invalidArgument("sqlite connection needs a database path")
	}
	if len(cfg.Params) == 0 {
		return cfg.Database, nil
	}
	keys := make([]string, 0, len(cfg.Params))
	for k := range cfg.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	q := url.Values{}
	for _, k := range keys {
		q.Add(k, cfg.Params[k])
	}
	return "file:" + cfg.Database + "?" + q.Encode(), nil
}

func hostPort(host string, port, fallback int) string {
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = fallback
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// defaultConnector opens cfg with the registered database/sql driver. The
// hosts are tried in random order until one answers a ping.
func defaultConnector(ctx context.Context, cfg ConnectionConfig) (*sql.DB, error) {
	hosts := append([]string(nil), cfg.Host...)
	if len(hosts) == 0 {
		hosts = []string{""}
	}
	rand.Shuffle(len(hosts), func(i, j int) { hosts[i], hosts[j] = hosts[j], hosts[i] })

	var errs []error
	for _, host := range hosts {
		dsn, err := BuildDSN(cfg, host)
		if err != nil {
			return nil, err
		}
		db, err := sql.Open(SQLDriverName(cfg.Driver), dsn)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
		}
		configurePool(db, cfg)
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			errs = append(errs, fmt.Errorf("host %q: %w", host, err))
			continue
		}
		return db, nil
	}
	return nil, fmt.Errorf("connect %s: %w", cfg.Driver, errors.Join(errs...))
}

func configurePool(db *sql.DB, cfg ConnectionConfig) {
	switch {
	case cfg.MaxOpenConns > 0:
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	case SQLDriverName(cfg.Driver) == "sqlite" && cfg.Database == ":memory:" && cfg.DSN == "":
		// every pooled connection would open its own empty database
		db.SetMaxOpenConns(1)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}
