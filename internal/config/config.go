package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServiceName string
	DatabaseURL string
	// BackupDir is the root directory where dump files are written, one
	// subdirectory per resource group.
	BackupDir         string
	MetricsListenAddr string
	LogLevel          string

	// WatchdogTimeout is how long a record may sit in an in-progress
	// status before the watchdog force-fails it. Minimum one minute.
	WatchdogTimeout time.Duration
	// InDepthDelete also removes remote copies at channels that support
	// deletion when an expired record is swept.
	InDepthDelete bool
	// ExpiryBatchSize bounds how many expired records one sweeper pass
	// handles.
	ExpiryBatchSize int
}

func Load() (*Config, error) {
	timeoutMinutes, err := getEnvInt("WATCHDOG_TIMEOUT_MINUTES", 10)
	if err != nil {
		return nil, err
	}
	if timeoutMinutes < 1 {
		timeoutMinutes = 1
	}

	batchSize, err := getEnvInt("EXPIRY_BATCH_SIZE", 50)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServiceName:       getEnv("SERVICE_NAME", "backhaul"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		BackupDir:         getEnv("BACKUP_DIR", "/var/backups/backhaul"),
		MetricsListenAddr: getEnv("METRICS_LISTEN_ADDR", ":9290"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		WatchdogTimeout:   time.Duration(timeoutMinutes) * time.Minute,
		InDepthDelete:     getEnvBool("IN_DEPTH_DELETE", false),
		ExpiryBatchSize:   batchSize,
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.BackupDir == "" {
		missing = append(missing, "BACKUP_DIR")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
