package config

import (
	"fmt"
	"os"
	"strconv"
)

// Environment variables read by [ApplyEnv]. Credentials are only ever taken
// from the environment so they never end up in a config file or shell history.
const (
	EnvS3AccessKey = "GDC_S3_ACCESS_KEY"
	EnvS3SecretKey = "GDC_S3_SECRET_KEY"
	EnvWorkers     = "GDC_WORKERS"
	EnvLedger      = "GDC_LEDGER"
)

// ApplyEnv overlays environment settings onto cfg. It runs after [LoadFile]
// and before flag parsing, so flags still take precedence.
func ApplyEnv(cfg *Config) error {
	cfg.S3.AccessKey = envString(EnvS3AccessKey, cfg.S3.AccessKey)
	cfg.S3.SecretKey = envString(EnvS3SecretKey, cfg.S3.SecretKey)
	cfg.LedgerPath = envString(EnvLedger, cfg.LedgerPath)

	workers, err := envInt(EnvWorkers, cfg.Workers)
	if err != nil {
		return err
	}
	cfg.Workers = workers
	return nil
}

func envString(key string, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	if v, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", key, err)
		}
		return i, nil
	}
	return def, nil
}
