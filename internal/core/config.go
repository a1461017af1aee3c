package core

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config lists the named connections a Manager can build.
type Config struct {
	Default     string                      `yaml:"default"`
	Connections map[string]ConnectionConfig `yaml:"connections"`
}

// Hosts is a host list. In YAML it may be written as a single string or a
// sequence; a random entry is used on each connect.
type Hosts []string

// UnmarshalYAML accepts a scalar or a sequence.
func (h *Hosts) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*h = Hosts{s}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*h = list
		return nil
	default:
		return fmt.Errorf("line %d: host must be a string or a list of strings", node.Line)
	}
}

// ConnectionConfig describes one connection. DSN, when set, is used as is;
// otherwise the DSN is built from the discrete fields for the driver.
type ConnectionConfig struct {
	Driver    string            `yaml:"driver"`
	DSN       string            `yaml:"dsn"`
	Host      Hosts             `yaml:"host"`
	Port      int               `yaml:"port"`
	Database  string            `yaml:"database"`
	Username  string            `yaml:"username"`
	Password  string            `yaml:"password"`
	Charset   string            `yaml:"charset"`
	Collation string            `yaml:"collation"`
	SSLMode   string            `yaml:"sslmode"`
	Params    map[string]string `yaml:"params"`
	Prefix    string            `yaml:"prefix"`

	Read   *ConnectionConfig `yaml:"read"`
	Write  *ConnectionConfig `yaml:"write"`
	Sticky bool              `yaml:"sticky"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`

	StatementCache      int           `yaml:"statement_cache"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	SensitiveFields     []string      `yaml:"sensitive_fields"`
}

// LoadConfig reads a YAML configuration file. ${VAR} references are
// expanded from the environment before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return ParseConfig([]byte(os.ExpandEnv(string(data))))
}

// ParseConfig decodes and validates a YAML configuration.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that every connection names a driver and that the
// default connection exists.
func (c Config) Validate() error {
	for name, cc := range c.Connections {
		if cc.Driver == "" {
			return invalidArgument("connection %q has no driver", name)
		}
	}
	if c.Default != "" && len(c.Connections) > 0 {
		if _, ok := c.Connections[c.Default]; !ok {
			return invalidArgument("default connection %q is not configured", c.Default)
		}
	}
	return nil
}

// HasReadWrite reports whether the connection splits reads and writes.
func (c ConnectionConfig) HasReadWrite() bool { return c.Read != nil || c.Write != nil }

// merged returns c with the non-zero fields of override applied. The
// result carries no read or write section.
func (c ConnectionConfig) merged(override *ConnectionConfig) ConnectionConfig {
	out := c
	out.Read, out.Write = nil, nil
	if override == nil {
		return out
	}
	o := *override
	if o.Driver != "" {
		out.Driver = o.Driver
	}
	if o.DSN != "" {
		out.DSN = o.DSN
	}
	if len(o.Host) > 0 {
		out.Host = o.Host
	}
	if o.Port != 0 {
		out.Port = o.Port
	}
	if o.Database != "" {
		out.Database = o.Database
	}
	if o.Username != "" {
		out.Username = o.Username
	}
	if o.Password != "" {
		out.Password = o.Password
	}
	if o.Charset != "" {
		out.Charset = o.Charset
	}
	if o.Collation != "" {
		out.Collation = o.Collation
	}
	if o.SSLMode != "" {
		out.SSLMode = o.SSLMode
	}
	if len(o.Params) > 0 {
		params := make(map[string]string, len(c.Params)+len(o.Params))
		for k, v := range c.Params {
			params[k] = v
		}
		for k, v := range o.Params {
			params[k] = v
		}
		out.Params = params
	}
	if o.MaxOpenConns != 0 {
		out.MaxOpenConns = o.MaxOpenConns
	}
	if o.MaxIdleConns != 0 {
		out.MaxIdleConns = o.MaxIdleConns
	}
	if o.ConnMaxLifetime != 0 {
		out.ConnMaxLifetime = o.ConnMaxLifetime
	}
	if o.ConnMaxIdleTime != 0 {
		out.ConnMaxIdleTime = o.ConnMaxIdleTime
	}
	return out
}

// ReadConfig is the configuration of the read handle.
func (c ConnectionConfig) ReadConfig() ConnectionConfig { return c.merged(c.Read) }

// WriteConfig is the configuration of the write handle.
func (c ConnectionConfig) WriteConfig() ConnectionConfig { return c.merged(c.Write) }
