package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/singleflight"

	"storygen-backend/internal/shared/telemetry"
)

// Profile names the kind of process holding the pool.
type Profile string

const (
	ProfileServer Profile = "server"
	ProfileLambda Profile = "lambda"
	ProfileCLI    Profile = "cli"
)

// ErrNoDatabaseURL is returned when Connect is given a blank URL.
var ErrNoDatabaseURL = errors.New("DATABASE_URL is empty")

// Options sizes the pool and bounds the startup ping loop.
type Options struct {
	Profile      Profile
	MaxOpen      int
	MaxIdle      int
	Lifetime     time.Duration
	IdleTime     time.Duration
	PingTimeout  time.Duration
	PingAttempts uint
	PingBackoff  time.Duration
}

// OptionsFor returns pool defaults for a process profile. Unknown profiles get server sizing.
func OptionsFor(p Profile) Options {
	switch p {
	case ProfileLambda:
		// One invocation at a time per sandbox; keep the footprint small.
		return Options{Profile: p, MaxOpen: 2, MaxIdle: 1, Lifetime: 15 * time.Minute, IdleTime: 30 * time.Second,
			PingTimeout: 3 * time.Second, PingAttempts: 2, PingBackoff: 250 * time.Millisecond}
	case ProfileCLI:
		return Options{Profile: p, MaxOpen: 1, MaxIdle: 1, Lifetime: time.Hour, IdleTime: 2 * time.Minute,
			PingTimeout: 5 * time.Second, PingAttempts: 10, PingBackoff: 2 * time.Second}
	default:
		return Options{Profile: ProfileServer, MaxOpen: 10, MaxIdle: 5, Lifetime: time.Hour, IdleTime: 2 * time.Minute,
			PingTimeout: 5 * time.Second, PingAttempts: 5, PingBackoff: time.Second}
	}
}

// WithEnv applies DB_* overrides. Malformed values are logged and ignored.
func (o Options) WithEnv() Options {
	envInt("DB_MAX_OPEN_CONNS", func(n int) { o.MaxOpen = n })
	envInt("DB_MAX_IDLE_CONNS", func(n int) { o.MaxIdle = n })
	envInt("DB_PING_ATTEMPTS", func(n int) { o.PingAttempts = uint(n) })
	envDuration("DB_CONN_MAX_LIFETIME", func(d time.Duration) { o.Lifetime = d })
	envDuration("DB_CONN_MAX_IDLE_TIME", func(d time.Duration) { o.IdleTime = d })
	envDuration("DB_PING_TIMEOUT", func(d time.Duration) { o.PingTimeout = d })
	return o
}

// InLambda reports whether the process runs inside an AWS Lambda sandbox.
func InLambda() bool {
	return strings.TrimSpace(os.Getenv("AWS_LAMBDA_FUNCTION_NAME")) != ""
}

// openDB is swapped in tests.
var openDB = func(databaseURL, appName string) (*sql.DB, error) {
	cfg, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.RuntimeParams["application_name"] = appName
	return stdlib.OpenDB(*cfg), nil
}

// Connect opens a pgx-backed pool and blocks until the server answers a ping
// or the attempts run out.
func Connect(ctx context.Context, databaseURL string, opts Options) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, ErrNoDatabaseURL
	}
	if opts.Profile == "" {
		opts.Profile = ProfileServer
	}

	pool, err := openDB(databaseURL, "storygen-"+string(opts.Profile))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	size(pool, opts)

	if err := ping(ctx, pool, opts); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	stats := pool.Stats()
	telemetry.Info("db.connected", map[string]any{
		"profile":  opts.Profile,
		"max_open": stats.MaxOpenConnections,
		"open":     stats.OpenConnections,
		"idle":     stats.Idle,
	})
	return pool, nil
}

func size(pool *sql.DB, opts Options) {
	maxOpen, maxIdle, lifetime := opts.MaxOpen, opts.MaxIdle, opts.Lifetime
	if maxOpen <= 0 {
		maxOpen = 10
	}
	if maxIdle <= 0 || maxIdle > maxOpen {
		maxIdle = maxOpen
	}
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	pool.SetMaxOpenConns(maxOpen)
	pool.SetMaxIdleConns(maxIdle)
	pool.SetConnMaxLifetime(lifetime)
	if opts.IdleTime > 0 {
		pool.SetConnMaxIdleTime(opts.IdleTime)
	}
}

func ping(ctx context.Context, pool *sql.DB, opts Options) error {
	timeout := opts.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	attempts := max(opts.PingAttempts, 1)
	backoff := opts.PingBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	return retry.Do(
		func() error {
			attemptCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return pool.PingContext(attemptCtx)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(backoff),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			telemetry.Warn("db.ping.retry", map[string]any{
				"profile": opts.Profile,
				"attempt": n + 1,
				"of":      attempts,
				"error":   err,
			})
		}),
	)
}

var (
	shared     atomic.Pointer[sql.DB]
	sharedInit singleflight.Group
)

// Shared returns the pool kept for the lifetime of a Lambda sandbox. Concurrent
// first calls share one Connect; a failed Connect is retried by the next call.
func Shared(ctx context.Context, databaseURL string, opts Options) (*sql.DB, error) {
	if pool := shared.Load(); pool != nil {
		return pool, nil
	}
	v, err, _ := sharedInit.Do("pool", func() (any, error) {
		if pool := shared.Load(); pool != nil {
			return pool, nil
		}
		pool, err := Connect(ctx, databaseURL, opts)
		if err != nil {
			return nil, err
		}
		shared.Store(pool)
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*sql.DB), nil
}

func envInt(key string, set func(int)) {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		telemetry.Warn("db.env.ignored", map[string]any{"key": key, "value": raw})
		return
	}
	set(n)
}

func envDuration(key string, set func(time.Duration)) {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		telemetry.Warn("db.env.ignored", map[string]any{"key": key, "value": raw})
		return
	}
	set(d)
}
