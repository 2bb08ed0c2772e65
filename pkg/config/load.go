package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load builds the configuration from defaults, the YAML file named by
// DUALDB_CONFIG (if set) and the environment, then validates it.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("DUALDB_CONFIG"))
}

// LoadFile is Load with an explicit file path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if err := applyDatabaseEnv(&cfg.Primary, "DATABASE_"); err != nil {
		return err
	}
	if err := applyDatabaseEnv(&cfg.Secondary, "SECONDARY_DATABASE_"); err != nil {
		return err
	}

	var err error
	if cfg.Primary.MaxConns, err = envInt32("DUALDB_PRIMARY_MAX_CONNS", cfg.Primary.MaxConns); err != nil {
		return err
	}
	if cfg.Secondary.MaxConns, err = envInt32("DUALDB_SECONDARY_MAX_CONNS", cfg.Secondary.MaxConns); err != nil {
		return err
	}

	connectTimeout := parseDuration(os.Getenv("DUALDB_CONNECT_TIMEOUT"), 0)
	if connectTimeout > 0 {
		cfg.Primary.ConnectTimeout = connectTimeout
		cfg.Secondary.ConnectTimeout = connectTimeout
	}
	idleTimeout := parseDuration(os.Getenv("DUALDB_IDLE_TIMEOUT"), -1)
	if idleTimeout >= 0 {
		cfg.Primary.IdleTimeout = idleTimeout
		cfg.Secondary.IdleTimeout = idleTimeout
	}

	cfg.Health.Interval = parseDuration(os.Getenv("DUALDB_HEALTH_INTERVAL"), cfg.Health.Interval)
	cfg.Health.ProbeTimeout = parseDuration(os.Getenv("DUALDB_PROBE_TIMEOUT"), cfg.Health.ProbeTimeout)

	cfg.Sync.Interval = parseDuration(os.Getenv("DUALDB_SYNC_INTERVAL"), cfg.Sync.Interval)
	if tables := os.Getenv("DUALDB_SYNC_TABLES"); tables != "" {
		cfg.Sync.Tables = splitAndTrim(tables, ",")
	}
	if v := os.Getenv("DUALDB_SYNC_VERIFY_CONTENT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DUALDB_SYNC_VERIFY_CONTENT: %w", err)
		}
		cfg.Sync.VerifyContent = b
	}
	if v := os.Getenv("DUALDB_SYNC_ALERT_THRESHOLD"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("DUALDB_SYNC_ALERT_THRESHOLD: %w", err)
		}
		cfg.Sync.AlertThreshold = n
	}

	if tables := os.Getenv("DUALDB_CRITICAL_TABLES"); tables != "" {
		cfg.Router.CriticalTables = splitAndTrim(tables, ",")
	}

	cfg.API.ListenAddr = getEnvOrDefault("DUALDB_LISTEN_ADDR", cfg.API.ListenAddr)
	cfg.API.AdminJWTSecret = getEnvOrDefault("DUALDB_ADMIN_JWT_SECRET", cfg.API.AdminJWTSecret)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)

	return nil
}

func applyDatabaseEnv(db *DatabaseConfig, prefix string) error {
	db.URL = getEnvOrDefault(prefix+"URL", db.URL)
	db.Host = getEnvOrDefault(prefix+"HOST", db.Host)
	db.Name = getEnvOrDefault(prefix+"NAME", db.Name)
	db.User = getEnvOrDefault(prefix+"USER", db.User)
	db.Password = getEnvOrDefault(prefix+"PASSWORD", db.Password)

	if v := os.Getenv(prefix + "PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sPORT: %w", prefix, err)
		}
		db.Port = port
	}
	return nil
}

// getEnvOrDefault returns the environment variable value or a default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envInt32(key string, defaultValue int32) (int32, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return int32(n), nil
}

// parseDuration parses a duration string with a default value
func parseDuration(s string, defaultValue time.Duration) time.Duration {
	if s == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultValue
	}
	return d
}

// splitAndTrim splits a string and trims whitespace from each part
func splitAndTrim(s string, sep string) []string {
	parts := strings.Split(s, sep)
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
