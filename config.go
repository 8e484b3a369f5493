package sessionguard

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds every tunable of a [Guard].
type Config struct {
	Backend BackendConfig
	Lockout LockoutConfig
	Storage StorageConfig
	Session SessionConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
BACKEND CONFIG
====================================
*/

// BackendConfig locates the accounts API. Paths are relative to BaseURL.
type BackendConfig struct {
	BaseURL        string
	LoginPath      string
	RegisterPath   string
	ProfilePath    string
	ActivatePath   string
	RequestTimeout time.Duration
	UserAgent      string
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig controls the per-email failed-login lockout.
type LockoutConfig struct {
	Enabled   bool
	Threshold int
	Window    time.Duration
	KeyPrefix string
}

/*
====================================
STORAGE / SESSION CONFIG
====================================
*/

// StorageConfig names the keys the session is persisted under.
type StorageConfig struct {
	UserKey  string
	TokenKey string
}

// SessionConfig controls how a persisted session is restored.
type SessionConfig struct {
	// DiscardExpiredTokens drops a restored session whose token is a JWT
	// with a past exp claim. Opaque tokens are never considered expired.
	DiscardExpiredTokens bool
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// Events limits delivery to these event types. Empty means all.
	Events []string
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Backend: BackendConfig{
			BaseURL:        "http://127.0.0.1:8000",
			LoginPath:      "/api/accounts/login/",
			RegisterPath:   "/api/accounts/register/",
			ProfilePath:    "/api/accounts/profile/",
			ActivatePath:   "/api/accounts/activate/",
			RequestTimeout: 15 * time.Second,
			UserAgent:      "sessionguard",
		},
		Lockout: LockoutConfig{
			Enabled:   true,
			Threshold: 5,
			Window:    24 * time.Hour,
			KeyPrefix: "lockout_",
		},
		Storage: StorageConfig{
			UserKey:  "user",
			TokenKey: "token",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	if cfg.Audit.Events != nil {
		cfg.Audit.Events = append([]string(nil), cfg.Audit.Events...)
	}
	return cfg
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first problem found in c.
func (c *Config) Validate() error {
	// Backend
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Host == "" {
		return errors.New("Backend BaseURL must be an absolute URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("Backend BaseURL scheme must be http or https")
	}
	for name, p := range map[string]string{
		"LoginPath":    c.Backend.LoginPath,
		"RegisterPath": c.Backend.RegisterPath,
		"ProfilePath":  c.Backend.ProfilePath,
		"ActivatePath": c.Backend.ActivatePath,
	} {
		if strings.TrimSpace(p) == "" {
			return errors.New("Backend " + name + " must not be empty")
		}
	}
	if c.Backend.RequestTimeout <= 0 {
		return errors.New("Backend RequestTimeout must be > 0")
	}

	// Lockout
	if c.Lockout.Enabled {
		if c.Lockout.Threshold <= 0 {
			return errors.New("Lockout Threshold must be > 0")
		}
		if c.Lockout.Window <= 0 {
			return errors.New("Lockout Window must be > 0")
		}
		if c.Lockout.KeyPrefix == "" {
			return errors.New("Lockout KeyPrefix must not be empty")
		}
	}

	// Storage
	if c.Storage.UserKey == "" || c.Storage.TokenKey == "" {
		return errors.New("Storage UserKey and TokenKey must not be empty")
	}
	if c.Storage.UserKey == c.Storage.TokenKey {
		return errors.New("Storage UserKey and TokenKey must differ")
	}
	if c.Lockout.Enabled && (strings.HasPrefix(c.Storage.UserKey, c.Lockout.KeyPrefix) ||
		strings.HasPrefix(c.Storage.TokenKey, c.Lockout.KeyPrefix)) {
		return errors.New("Storage keys must not share the Lockout KeyPrefix")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}
	for _, name := range c.Audit.Events {
		if !isAuditEventType(name) {
			return fmt.Errorf("Audit Events: unknown event type %q", name)
		}
	}

	return nil
}
