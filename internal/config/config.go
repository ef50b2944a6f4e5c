package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v2"
)

// ErrConfiguration marks every validation failure reported by Load. Callers
// can match it with errors.Is to distinguish bad input from I/O problems.
var ErrConfiguration = errors.New("configuration error")

// Supported database drivers.
const (
	DriverOracle = "oracle"
	DriverPgx    = "pgx"
	DriverSQLite = "sqlite3"
)

// identifier restricts table and column names to plain (optionally schema
// qualified) SQL identifiers since they are spliced into the INSERT statement.
var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$#]*(\.[A-Za-z_][A-Za-z0-9_$#]*)?$`)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	URL      string `yaml:"url"`
	TNSName  string `yaml:"tns_name"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Table    string `yaml:"table"`
	Column   string `yaml:"column"`
	// BatchSize is the number of pending inserts accumulated before a
	// single execute-and-commit.
	BatchSize int `yaml:"batch_size"`

	// CloudCredentialsFile points at a downloaded wallet zip. When set the
	// connection is established through the secure bootstrap.
	CloudCredentialsFile string `yaml:"cloud_credentials_file"`
	WalletPassword       string `yaml:"wallet_password"`
	HTTPSProxy           string `yaml:"https_proxy"`
}

// Enabled reports whether a database target has been configured.
func (d DatabaseConfig) Enabled() bool {
	return d.URL != "" || d.TNSName != ""
}

// thinPrefix introduces a JDBC thin connect string.
const thinPrefix = "jdbc:oracle:thin:@"

// Target returns the connection descriptor, preferring the URL over the TNS
// name when both are present. A leading jdbc:oracle:thin:@ is dropped so the
// direct and wallet paths see the same descriptor.
func (d DatabaseConfig) Target() string {
	t := d.URL
	if t == "" {
		t = d.TNSName
	}
	t = strings.TrimSpace(t)
	if len(t) >= len(thinPrefix) && strings.EqualFold(t[:len(thinPrefix)], thinPrefix) {
		t = t[len(thinPrefix):]
	}
	return t
}

type RESTConfig struct {
	URL       string `yaml:"url"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type Config struct {
	// Threads is the number of independent workers.
	Threads    int            `yaml:"threads"`
	OutputFile string         `yaml:"output_file"`
	Database   DatabaseConfig `yaml:"database"`
	REST       RESTConfig     `yaml:"rest"`
	Redis      RedisConfig    `yaml:"redis"`
	Kafka      KafkaConfig    `yaml:"kafka"`

	// WaitSeconds is the upper bound (exclusive) of the random pause between
	// two cycles. Zero disables the pause.
	WaitSeconds  int  `yaml:"wait_seconds"`
	HistoricData bool `yaml:"historic_data"`
	StaticData   bool `yaml:"static_data"`
	// MaxCycles stops each worker after that many cycles; zero runs forever.
	MaxCycles int `yaml:"max_cycles"`

	StatusAddr string `yaml:"status_addr"`
	LogLevel   string `yaml:"log_level"`
}

// Load reads and unmarshals the configuration file located at the given path.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	// Relative credential archives are resolved against the config directory.
	if f := cfg.Database.CloudCredentialsFile; f != "" && !filepath.IsAbs(f) {
		cfg.Database.CloudCredentialsFile = filepath.Join(filepath.Dir(absPath), f)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero values with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Threads <= 0 {
		c.Threads = 1
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverOracle
	}
	c.Database.Driver = strings.ToLower(c.Database.Driver)
	if c.Database.BatchSize <= 0 {
		c.Database.BatchSize = 1
	}
	if c.REST.TimeoutMS <= 0 {
		c.REST.TimeoutMS = 10_000
	}
	if c.Redis.Key == "" {
		c.Redis.Key = "coffeeshop:sales"
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "coffeeshop.sales"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the configuration is usable. Every returned error wraps
// ErrConfiguration.
func (c *Config) Validate() error {
	if !c.HasSink() {
		return fmt.Errorf("%w: at least one of output_file, database.url, database.tns_name, rest.url, redis.addr or kafka.brokers is required", ErrConfiguration)
	}
	if c.WaitSeconds < 0 {
		return fmt.Errorf("%w: wait_seconds must not be negative", ErrConfiguration)
	}
	if c.MaxCycles < 0 {
		return fmt.Errorf("%w: max_cycles must not be negative", ErrConfiguration)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	for _, b := range c.Kafka.Brokers {
		if strings.TrimSpace(b) == "" {
			return fmt.Errorf("%w: kafka.brokers must not contain empty entries", ErrConfiguration)
		}
	}

	if c.Database.Enabled() {
		db := c.Database
		switch db.Driver {
		case DriverOracle, DriverPgx, DriverSQLite:
		default:
			return fmt.Errorf("%w: unsupported database driver: %s", ErrConfiguration, db.Driver)
		}
		if db.Table == "" || db.Column == "" {
			return fmt.Errorf("%w: database.table and database.column are required when a database is configured", ErrConfiguration)
		}
		if !identifier.MatchString(db.Table) {
			return fmt.Errorf("%w: database.table %q is not a valid identifier", ErrConfiguration, db.Table)
		}
		if !identifier.MatchString(db.Column) {
			return fmt.Errorf("%w: database.column %q is not a valid identifier", ErrConfiguration, db.Column)
		}
		if db.CloudCredentialsFile != "" && db.Driver != DriverOracle {
			return fmt.Errorf("%w: database.cloud_credentials_file requires the oracle driver", ErrConfiguration)
		}
		if db.HTTPSProxy != "" && db.CloudCredentialsFile == "" {
			return fmt.Errorf("%w: database.https_proxy is only used with database.cloud_credentials_file", ErrConfiguration)
		}
	}
	return nil
}

// HasSink reports whether at least one destination is configured.
func (c *Config) HasSink() bool {
	return c.OutputFile != "" || c.Database.Enabled() || c.REST.URL != "" || c.Redis.Addr != "" || len(c.Kafka.Brokers) > 0
}
