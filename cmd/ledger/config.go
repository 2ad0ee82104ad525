package main

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
)

const (
	backendMemory = "memory"
	backendSQLite = "sqlite"
	backendNATS   = "nats"
)

var validBackends = []string{backendMemory, backendSQLite, backendNATS}

type Config struct {
	Backend    string     `env:"LEDGER_BACKEND" envDefault:"sqlite"`
	SQLitePath string     `env:"LEDGER_SQLITE_PATH" envDefault:"ledger.db"`
	NatsURL    string     `env:"NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	NatsPrefix string     `env:"LEDGER_NATS_PREFIX" envDefault:"ledger"`
	Snapshots  bool       `env:"LEDGER_SNAPSHOTS" envDefault:"true"`
	CacheSize  int        `env:"LEDGER_SNAPSHOT_CACHE_SIZE" envDefault:"256"`
	LogLevel   slog.Level `env:"LEDGER_LOG_LEVEL" envDefault:"WARN"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	for _, b := range validBackends {
		if c.Backend == b {
			return nil
		}
	}
	return fmt.Errorf("invalid backend %q: must be one of %v", c.Backend, validBackends)
}
