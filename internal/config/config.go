// Package config loads runtime configuration from the environment and the
// optional rates file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ReLoop-Network/market_layer/internal/app/domain/job"
	"github.com/ReLoop-Network/market_layer/internal/app/pricing"
)

// Config is the full runtime configuration. Values come from the
// environment, with a .env file honoured for local development.
type Config struct {
	Server struct {
		Host string `env:"SERVER_HOST,default=0.0.0.0"`
		Port int    `env:"SERVER_PORT,default=8080"`
	}

	Logging struct {
		Level      string `env:"LOG_LEVEL,default=info"`
		Format     string `env:"LOG_FORMAT,default=text"`
		Output     string `env:"LOG_OUTPUT,default=stdout"`
		FilePrefix string `env:"LOG_FILE_PREFIX,default=market"`
	}

	Storage struct {
		// Backend selects the persistent store: file, memory, postgres
		// or redis.
		Backend     string `env:"STORAGE_BACKEND,default=file"`
		Dir         string `env:"STORAGE_DIR,default=./data"`
		PostgresDSN string `env:"STORAGE_POSTGRES_DSN,default="`
		RedisAddr   string `env:"STORAGE_REDIS_ADDR,default=localhost:6379"`
		RedisDB     int    `env:"STORAGE_REDIS_DB,default=0"`
	}

	Ledger struct {
		Network      string        `env:"LEDGER_NETWORK,default=simnet"`
		Latency      time.Duration `env:"LEDGER_LATENCY,default=300ms"`
		ConfirmAfter time.Duration `env:"LEDGER_CONFIRM_AFTER,default=15s"`
		FaucetAmount float64       `env:"LEDGER_FAUCET_AMOUNT,default=50"`
	}

	Wallet struct {
		PollInterval time.Duration `env:"WALLET_POLL_INTERVAL,default=10s"`
	}

	Pricing struct {
		// RatesFile optionally overrides the built-in per-kg rate bands.
		RatesFile string `env:"PRICING_RATES_FILE,default="`
	}

	Stats struct {
		RolloverSchedule string `env:"STATS_ROLLOVER_SCHEDULE,default=@midnight"`
	}
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	return &cfg, nil
}

// Rates returns the per-kg rate bands, loading the configured YAML file or
// falling back to the built-in defaults.
func (c *Config) Rates() (map[job.Material]pricing.RateBand, error) {
	if c.Pricing.RatesFile == "" {
		return pricing.DefaultRates(), nil
	}

	raw, err := os.ReadFile(c.Pricing.RatesFile)
	if err != nil {
		return nil, fmt.Errorf("read rates file: %w", err)
	}

	var parsed map[string]pricing.RateBand
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse rates file: %w", err)
	}

	rates := pricing.DefaultRates()
	for name, band := range parsed {
		material := job.Material(name)
		if !material.Valid() {
			return nil, fmt.Errorf("rates file: unknown material %q", name)
		}
		if band.Avg <= 0 || band.Min < 0 || band.Max < band.Min {
			return nil, fmt.Errorf("rates file: invalid band for %q", name)
		}
		rates[material] = band
	}
	return rates, nil
}
