package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/SmarTanom/sessionguard"
	"github.com/joho/godotenv"
)

type cliConfig struct {
	BaseURL        string
	RequestTimeout time.Duration

	Store       string
	SQLitePath  string
	RedisAddr   string
	RedisPrefix string

	LockoutThreshold int
	LockoutWindow    time.Duration

	DiscardExpiredTokens bool
	Audit                bool
	AuditEvents          []string
	LogLevel             string
}

func loadConfig() (*cliConfig, error) {
	_ = godotenv.Load()

	cfg := &cliConfig{
		BaseURL:              getEnv("SESSIONGUARD_BASE_URL", "http://127.0.0.1:8000"),
		RequestTimeout:       getEnvAsDuration("SESSIONGUARD_TIMEOUT", 15*time.Second),
		Store:                strings.ToLower(getEnv("SESSIONGUARD_STORE", "sqlite")),
		SQLitePath:           getEnv("SESSIONGUARD_SQLITE_PATH", "sessionguard.db"),
		RedisAddr:            getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPrefix:          getEnv("SESSIONGUARD_REDIS_PREFIX", "sg"),
		LockoutThreshold:     getEnvAsInt("SESSIONGUARD_LOCKOUT_THRESHOLD", 5),
		LockoutWindow:        getEnvAsDuration("SESSIONGUARD_LOCKOUT_WINDOW", 24*time.Hour),
		DiscardExpiredTokens: getEnvAsBool("SESSIONGUARD_DISCARD_EXPIRED", false),
		Audit:                getEnvAsBool("SESSIONGUARD_AUDIT", false),
		AuditEvents:          getEnvAsList("SESSIONGUARD_AUDIT_EVENTS"),
		LogLevel:             getEnv("LOG_LEVEL", "warn"),
	}

	switch cfg.Store {
	case "sqlite", "redis":
	default:
		return nil, fmt.Errorf("SESSIONGUARD_STORE must be sqlite or redis, got %q", cfg.Store)
	}

	return cfg, nil
}

// guardConfig overlays the environment on the library defaults.
func (c *cliConfig) guardConfig() sessionguard.Config {
	cfg := sessionguard.DefaultConfig()
	cfg.Backend.BaseURL = c.BaseURL
	cfg.Backend.RequestTimeout = c.RequestTimeout
	cfg.Lockout.Threshold = c.LockoutThreshold
	cfg.Lockout.Window = c.LockoutWindow
	cfg.Session.DiscardExpiredTokens = c.DiscardExpiredTokens
	cfg.Audit.Events = c.AuditEvents
	return cfg
}

func (c *cliConfig) logLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelWarn
	}
	return level
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvAsList splits a comma-separated value, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
