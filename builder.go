package sessionguard

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/SmarTanom/sessionguard/internal/backend"
	"github.com/SmarTanom/sessionguard/internal/limiters"
	"github.com/SmarTanom/sessionguard/kv"
	"github.com/SmarTanom/sessionguard/session"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
)

// Builder assembles a [Guard]. A Builder may be used for one Build only.
type Builder struct {
	config Config

	store       kv.Store
	redis       redis.UniversalClient
	redisPrefix string
	sqlitePath  string

	httpClient *http.Client
	now        func() time.Time
	logger     *slog.Logger
	auditSink  AuditSink

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore persists state in an existing key-value store.
func (b *Builder) WithStore(store kv.Store) *Builder {
	b.store = store
	return b
}

// WithRedis persists state in Redis. prefix namespaces the keys and may be
// empty.
func (b *Builder) WithRedis(client redis.UniversalClient, prefix string) *Builder {
	b.redis = client
	b.redisPrefix = prefix
	return b
}

// WithSQLite persists state in the SQLite file at path. The Guard owns the
// file handle and releases it on [Guard.Close].
func (b *Builder) WithSQLite(path string) *Builder {
	b.sqlitePath = path
	return b
}

// WithHTTPClient sets the client used for backend calls. Its Timeout is
// ignored in favour of Backend.RequestTimeout.
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

// WithClock replaces time.Now, mainly for tests of the lockout window.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithLogger sets the structured logger. Without one, nothing is logged.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink enables audit events and delivers them to sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	if sink != nil {
		b.config.Audit.Enabled = true
	}
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the login latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Guard. The Guard
// starts unauthenticated; call [Guard.RestoreSession] to pick up a persisted
// session.
func (b *Builder) Build() (*Guard, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var closers []func() error
	store := b.store
	switch {
	case store != nil:
	case b.redis != nil:
		store = kv.NewRedisStore(b.redis, b.redisPrefix)
	case b.sqlitePath != "":
		sq, err := kv.OpenSQLite(kv.SQLiteConfig{Path: b.sqlitePath})
		if err != nil {
			return nil, err
		}
		store = sq
		closers = append(closers, sq.Close)
	default:
		return nil, errors.New("a key-value store is required (WithStore, WithRedis or WithSQLite)")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	client, err := backend.New(backend.Config{
		BaseURL:      cfg.Backend.BaseURL,
		LoginPath:    cfg.Backend.LoginPath,
		RegisterPath: cfg.Backend.RegisterPath,
		ProfilePath:  cfg.Backend.ProfilePath,
		ActivatePath: cfg.Backend.ActivatePath,
		Timeout:      cfg.Backend.RequestTimeout,
		UserAgent:    cfg.Backend.UserAgent,
	}, b.httpClient)
	if err != nil {
		return nil, err
	}

	g := &Guard{
		config:  cfg,
		store:   store,
		backend: client,
		base:    b.httpClient,
		sessions: session.NewStore(
			store,
			cfg.Storage.UserKey,
			cfg.Storage.TokenKey,
		),
		lockout: limiters.NewLockoutLimiter(store, limiters.LockoutConfig{
			Enabled:   cfg.Lockout.Enabled,
			Threshold: cfg.Lockout.Threshold,
			Window:    cfg.Lockout.Window,
			KeyPrefix: cfg.Lockout.KeyPrefix,
		}, now),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		metrics:  NewMetrics(cfg.Metrics),
		audit:    newAuditDispatcher(cfg.Audit, b.auditSink),
		now:      now,
		closers:  closers,
	}

	b.built = true
	return g, nil
}
