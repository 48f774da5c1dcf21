// Package config loads deployment settings from the environment.
//
// A .env file is honored when present; real environment variables win.
// Every knob has a default so the server runs with no configuration at
// all, which is how tests and local development use it.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	defaultPort              = 8080
	defaultDBPath            = "cardledger.db"
	defaultLowBalanceWarning = 1000 // yen
	defaultLockTimeout       = 5 * time.Second
	defaultRetouchWindow     = 30 * time.Second
)

// Config carries the deployment knobs. It implements lending.Settings.
type Config struct {
	Port              int
	DBPath            string
	lowBalanceWarning decimal.Decimal
	LockTimeout       time.Duration
	RetouchWindow     time.Duration
}

// Load reads the optional .env file and the environment. Malformed values
// fall back to their defaults with a warning; the server never refuses to
// start over a bad knob.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Info(".env file loaded")
	}

	return &Config{
		Port:              envInt("CARDLEDGER_PORT", defaultPort),
		DBPath:            envString("CARDLEDGER_DB", defaultDBPath),
		lowBalanceWarning: decimal.NewFromInt(int64(envInt("CARDLEDGER_LOW_BALANCE_WARNING", defaultLowBalanceWarning))),
		LockTimeout:       envDuration("CARDLEDGER_LOCK_TIMEOUT", defaultLockTimeout),
		RetouchWindow:     envDuration("CARDLEDGER_RETOUCH_WINDOW", defaultRetouchWindow),
	}
}

// Default returns the built-in settings, used by tests.
func Default() *Config {
	return &Config{
		Port:              defaultPort,
		DBPath:            defaultDBPath,
		lowBalanceWarning: decimal.NewFromInt(defaultLowBalanceWarning),
		LockTimeout:       defaultLockTimeout,
		RetouchWindow:     defaultRetouchWindow,
	}
}

// LowBalanceWarning is the threshold at or below which a returned card
// should be recharged.
func (c *Config) LowBalanceWarning() decimal.Decimal {
	return c.lowBalanceWarning
}

// SetLowBalanceWarning overrides the threshold; used by tests.
func (c *Config) SetLowBalanceWarning(d decimal.Decimal) {
	c.lowBalanceWarning = d
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warnf("%s: not an integer, using default %d", key, fallback)
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warnf("%s: not a duration, using default %s", key, fallback)
		return fallback
	}
	return d
}
