// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers a YAML file and TALLY_* environment variables on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Drivers accepted for the pluggable adapters.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"

	LedgerMemory = "memory"
	LedgerHTTP   = "http"

	NotifierLog  = "log"
	NotifierNATS = "nats"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// SentryDSN enables error reporting when set.
	SentryDSN string `koanf:"sentry_dsn"`

	// StoreDriver selects the fact log: memory or sqlite.
	StoreDriver string `koanf:"store_driver"`
	SQLiteDir   string `koanf:"sqlite_dir"`

	// LedgerDriver selects the AGC ledger: memory or http.
	LedgerDriver    string `koanf:"ledger_driver"`
	LedgerURL       string `koanf:"ledger_url"`
	LedgerTimeoutMS int    `koanf:"ledger_timeout_ms"`
	// LedgerAutoFund funds unknown transactions in the memory ledger; 0 keeps it strict.
	LedgerAutoFund int64 `koanf:"ledger_auto_fund"`

	// NotifierDriver selects where certificate events go: log or nats.
	NotifierDriver string `koanf:"notifier_driver"`
	NATSURL        string `koanf:"nats_url"`
	NATSSubject    string `koanf:"nats_subject"`
	NATSJetStream  bool   `koanf:"nats_jetstream"`

	// QueueSize bounds the notifier delivery queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of notifier delivery workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the in-flight transaction cache.
	DedupeSize int `koanf:"dedupe_size"`

	RescoreIntervalMS  int `koanf:"rescore_interval_ms"`
	ConflictMaxRetries int `koanf:"conflict_max_retries"`

	// Minimum AGC amounts a transaction must carry.
	VotePriceAGC       int64 `koanf:"vote_price_agc"`
	NominationPriceAGC int64 `koanf:"nomination_price_agc"`

	// CatalogPath points at the TOML roster; empty starts with no catalog.
	CatalogPath string `koanf:"catalog_path"`

	// Weights maps tier -> role -> weight. Empty uses the built-in tables.
	Weights map[string]map[string]float64 `koanf:"weights"`

	// Thresholds and WinnerCounts override the per-tier eligibility rules.
	Thresholds   map[string]int64 `koanf:"thresholds"`
	WinnerCounts map[string]int   `koanf:"winner_counts"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:           "info",
		Addr:               ":9080",
		StoreDriver:        StoreMemory,
		SQLiteDir:          "data",
		LedgerDriver:       LedgerMemory,
		LedgerTimeoutMS:    2000,
		LedgerAutoFund:     1,
		NotifierDriver:     NotifierLog,
		NATSURL:            "nats://127.0.0.1:4222",
		NATSSubject:        "agc.certificates",
		QueueSize:          10_000,
		WorkerCount:        4,
		DedupeSize:         50_000,
		RescoreIntervalMS:  1000,
		ConflictMaxRetries: 5,
		VotePriceAGC:       1,
		NominationPriceAGC: 1,
	}
}

// LedgerTimeout is the per-call ledger deadline.
func (c *Config) LedgerTimeout() time.Duration {
	return time.Duration(c.LedgerTimeoutMS) * time.Millisecond
}

// RescoreInterval is the period of the background rescoring pass.
func (c *Config) RescoreInterval() time.Duration {
	return time.Duration(c.RescoreIntervalMS) * time.Millisecond
}

// Validate rejects settings the process cannot start with.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.StoreDriver != StoreMemory && c.StoreDriver != StoreSQLite:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	case c.StoreDriver == StoreSQLite && strings.TrimSpace(c.SQLiteDir) == "":
		return fmt.Errorf("%w: sqlite store needs sqlite_dir", ErrInvalidConfig)
	case c.LedgerDriver != LedgerMemory && c.LedgerDriver != LedgerHTTP:
		return fmt.Errorf("%w: unknown ledger_driver %q", ErrInvalidConfig, c.LedgerDriver)
	case c.LedgerDriver == LedgerHTTP && strings.TrimSpace(c.LedgerURL) == "":
		return fmt.Errorf("%w: http ledger needs ledger_url", ErrInvalidConfig)
	case c.LedgerTimeoutMS <= 0:
		return fmt.Errorf("%w: ledger_timeout_ms must be positive", ErrInvalidConfig)
	case c.NotifierDriver != NotifierLog && c.NotifierDriver != NotifierNATS:
		return fmt.Errorf("%w: unknown notifier_driver %q", ErrInvalidConfig, c.NotifierDriver)
	case c.ConflictMaxRetries < 0:
		return fmt.Errorf("%w: conflict_max_retries must not be negative", ErrInvalidConfig)
	case c.VotePriceAGC < 0 || c.NominationPriceAGC < 0:
		return fmt.Errorf("%w: prices must not be negative", ErrInvalidConfig)
	}
	return nil
}
