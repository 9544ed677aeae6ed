package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/cleared-dev/ledger/internal/store"
)

// FileName is the config file created by `ledger init`.
const FileName = "ledger.yaml"

// Config represents the top-level ledger.yaml configuration.
type Config struct {
	Business  BusinessConfig  `yaml:"business"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Storage   StorageConfig   `yaml:"storage"`
	Recurring RecurringConfig `yaml:"recurring"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// BusinessConfig identifies the business entity.
type BusinessConfig struct {
	Name       string `yaml:"name"`
	EntityType string `yaml:"entity_type"`
}

// LedgerConfig holds accounting rules.
type LedgerConfig struct {
	BaseCurrency string `yaml:"base_currency"`
	// BalancePredicate selects which transactions count toward account
	// balances: locked, unlocked or all.
	BalancePredicate store.LockFilter `yaml:"balance_predicate"`
}

// StorageConfig locates the database and audit log, relative to the project dir.
type StorageConfig struct {
	Database string `yaml:"database"`
	AuditDir string `yaml:"audit_dir"`
}

// RecurringConfig controls the recurring scheduler.
type RecurringConfig struct {
	Concurrency int    `yaml:"concurrency"`
	Interval    string `yaml:"interval"` // Go duration, e.g. "1h"
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig controls the Prometheus endpoint served by `ledger schedule`.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads a ledger.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new project.
func Default(businessName, entityType, baseCurrency string) *Config {
	return &Config{
		Business: BusinessConfig{
			Name:       businessName,
			EntityType: entityType,
		},
		Ledger: LedgerConfig{
			BaseCurrency:     baseCurrency,
			BalancePredicate: store.LockLocked,
		},
		Storage: StorageConfig{
			Database: "ledger.db",
			AuditDir: "logs",
		},
		Recurring: RecurringConfig{
			Concurrency: 4,
			Interval:    "1h",
		},
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
	}
}

// ApplyEnv loads a .env file and overlays LEDGER_* variables onto c. With no
// envPath, a .env in the working directory is used if present.
func (c *Config) ApplyEnv(envPath ...string) error {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return fmt.Errorf("loading .env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	setString(&c.Storage.Database, "LEDGER_DATABASE")
	setString(&c.Storage.AuditDir, "LEDGER_AUDIT_DIR")
	setString(&c.Ledger.BaseCurrency, "LEDGER_BASE_CURRENCY")
	setString(&c.Log.Level, "LEDGER_LOG_LEVEL")
	setString(&c.Metrics.Addr, "LEDGER_METRICS_ADDR")
	setString(&c.Recurring.Interval, "LEDGER_RECURRING_INTERVAL")
	if v := os.Getenv("LEDGER_BALANCE_PREDICATE"); v != "" {
		c.Ledger.BalancePredicate = store.LockFilter(v)
	}
	if v := os.Getenv("LEDGER_RECURRING_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid LEDGER_RECURRING_CONCURRENCY: %w", err)
		}
		c.Recurring.Concurrency = n
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks the values the ledger cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.Ledger.BaseCurrency == "" {
		errs = append(errs, errors.New("ledger.base_currency is required"))
	}
	if !c.Ledger.BalancePredicate.Valid() {
		errs = append(errs, fmt.Errorf("ledger.balance_predicate %q must be one of locked, unlocked, all", c.Ledger.BalancePredicate))
	}
	if c.Storage.Database == "" {
		errs = append(errs, errors.New("storage.database is required"))
	}
	if c.Recurring.Concurrency < 1 {
		errs = append(errs, errors.New("recurring.concurrency must be at least 1"))
	}
	if _, err := c.RecurringInterval(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RecurringInterval parses Recurring.Interval.
func (c *Config) RecurringInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Recurring.Interval)
	if err != nil {
		return 0, fmt.Errorf("recurring.interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("recurring.interval must be positive, got %s", d)
	}
	return d, nil
}
