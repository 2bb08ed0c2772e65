// Package config loads the replica topology and monitor settings from defaults,
// an optional YAML file and the process environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// DefaultSyncTables are the tables compared by the consistency monitor.
var DefaultSyncTables = []string{
	"users", "position_history", "real_positions", "custodial_sessions",
	"legal_signatures", "managed_nfts", "invoices", "referrals",
}

// DefaultCriticalTables are always served by the primary, reads included.
var DefaultCriticalTables = []string{
	"users", "custodial_sessions", "position_history", "invoices",
}

// DatabaseConfig describes one replica's connection pool.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host" validate:"required_without=URL"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Port     int    `yaml:"port" validate:"omitempty,min=1,max=65535"`

	MaxConns       int32         `yaml:"max_conns" validate:"min=1"`
	MinConns       int32         `yaml:"min_conns" validate:"min=0,ltefield=MaxConns"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" validate:"gt=0"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" validate:"gte=0"`

	// InsecureTLS keeps TLS on but skips certificate verification, which
	// managed Postgres providers with self-signed chains require.
	InsecureTLS bool `yaml:"insecure_tls"`
}

// ConnString returns the URL if one is configured, otherwise a postgres://
// URL assembled from the individual parts.
func (d DatabaseConfig) ConnString() string {
	if d.URL != "" {
		return d.URL
	}

	port := d.Port
	if port == 0 {
		port = 5432
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(port)),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=require",
	}
	if d.User != "" {
		if d.Password != "" {
			u.User = url.UserPassword(d.User, d.Password)
		} else {
			u.User = url.User(d.User)
		}
	}
	return u.String()
}

// Redacted returns the connection target without credentials, for logs.
func (d DatabaseConfig) Redacted() string {
	u, err := url.Parse(d.ConnString())
	if err != nil {
		return "<unparseable>"
	}
	u.User = nil
	u.RawQuery = ""
	return u.String()
}

// HealthConfig controls the replica liveness probes.
type HealthConfig struct {
	Interval     time.Duration `yaml:"interval" validate:"gte=1s"`
	ProbeTimeout time.Duration `yaml:"probe_timeout" validate:"gt=0"`
}

// SyncConfig controls the consistency monitor.
type SyncConfig struct {
	Interval       time.Duration `yaml:"interval" validate:"gte=1s"`
	Tables         []string      `yaml:"tables" validate:"min=1,dive,required"`
	VerifyContent  bool          `yaml:"verify_content"`
	SampleLimit    int           `yaml:"sample_limit" validate:"min=0"`
	AlertThreshold int64         `yaml:"alert_threshold" validate:"min=0"`
}

// RouterConfig controls query classification and stats retention.
type RouterConfig struct {
	CriticalTables []string `yaml:"critical_tables" validate:"dive,required"`
	HistorySize    int      `yaml:"history_size" validate:"min=1"`
}

// APIConfig controls the admin HTTP server.
type APIConfig struct {
	ListenAddr     string `yaml:"listen_addr" validate:"required"`
	AdminJWTSecret string `yaml:"admin_jwt_secret" validate:"omitempty,min=32"`
}

// Config is the full process configuration.
type Config struct {
	Primary   DatabaseConfig `yaml:"primary"`
	Secondary DatabaseConfig `yaml:"secondary"`
	Health    HealthConfig   `yaml:"health"`
	Sync      SyncConfig     `yaml:"sync"`
	Router    RouterConfig   `yaml:"router"`
	API       APIConfig      `yaml:"api"`
	LogLevel  string         `yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error DEBUG INFO WARN WARNING ERROR"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
// Hosts are left empty and must come from the file or the environment.
func DefaultConfig() Config {
	return Config{
		Primary: DatabaseConfig{
			Port:           5432,
			MaxConns:       20,
			ConnectTimeout: 2 * time.Second,
			IdleTimeout:    30 * time.Second,
			InsecureTLS:    true,
		},
		Secondary: DatabaseConfig{
			Port:           5432,
			MaxConns:       15,
			ConnectTimeout: 2 * time.Second,
			IdleTimeout:    30 * time.Second,
			InsecureTLS:    true,
		},
		Health: HealthConfig{
			Interval:     30 * time.Second,
			ProbeTimeout: 5 * time.Second,
		},
		Sync: SyncConfig{
			Interval:       5 * time.Minute,
			Tables:         append([]string(nil), DefaultSyncTables...),
			AlertThreshold: 5,
		},
		Router: RouterConfig{
			CriticalTables: append([]string(nil), DefaultCriticalTables...),
			HistorySize:    100,
		},
		API: APIConfig{
			ListenAddr: ":8090",
		},
		LogLevel: "info",
	}
}

// Validate checks struct constraints on the whole configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}

	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if fe.Param() != "" {
			errs = append(errs, fmt.Errorf("%s: failed '%s=%s' check", field, fe.Tag(), fe.Param()))
		} else {
			errs = append(errs, fmt.Errorf("%s: failed '%s' check", field, fe.Tag()))
		}
	}
	return fmt.Errorf("invalid config: %w", errors.Join(errs...))
}
