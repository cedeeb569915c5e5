package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

import (
	"github.com/redis/go-redis/v9"
)

import (
	"github.com/nanjiek/souk-gate/internal/config"
)

// Key templates for better readability and maintainability
const (
	keyFWTmpl = "%s:fw:{%s}:%s"
)

const defaultPrefix = "souk:gate"

// RedisRepo wraps the shared-counter backend: key namespacing plus script
// evaluation with per-operation timeouts, so a slow Redis can never stall the
// admission path for long.
type RedisRepo struct {
	Prefix         string
	Cli            *redis.Client
	logger         *slog.Logger
	defaultTimeout time.Duration
}

// Option pattern for custom configurations
type Option func(*RedisRepo)

func WithDefaultTimeout(d time.Duration) Option {
	return func(r *RedisRepo) { r.defaultTimeout = d }
}

// New connects to Redis and verifies the connection with a ping.
func New(cfg config.RedisCfg, logger *slog.Logger, opts ...Option) (*RedisRepo, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled() {
		return nil, errors.New("no redis address configured")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}

	r := &RedisRepo{
		Prefix:         prefix,
		logger:         logger,
		defaultTimeout: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.Cli = redis.NewClient(buildOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Cli.Ping(ctx).Err(); err != nil {
		logger.Error("redis ping failed", "addr", cfg.Addr, "err", err)
		return nil, fmt.Errorf("redis connect failed: %w", err)
	}

	return r, nil
}

func buildOptions(cfg config.RedisCfg) *redis.Options {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.ReadTimeoutMs > 0 {
		opts.ReadTimeout = time.Duration(cfg.ReadTimeoutMs) * time.Millisecond
	}
	if cfg.WriteTimeoutMs > 0 {
		opts.WriteTimeout = time.Duration(cfg.WriteTimeoutMs) * time.Millisecond
	}
	if cfg.DialTimeoutMs > 0 {
		opts.DialTimeout = time.Duration(cfg.DialTimeoutMs) * time.Millisecond
	}
	return opts
}

// withTimeout helper to reduce repetition
func (r *RedisRepo) withTimeout(ctx context.Context, opTimeout time.Duration) (context.Context, context.CancelFunc) {
	if opTimeout == 0 {
		opTimeout = r.defaultTimeout
	}
	return context.WithTimeout(ctx, opTimeout)
}

// KeyFixedWindow builds the counter key for a policy/identifier pair. Hash
// tags keep all counters of one policy on a single slot if the deployment
// moves to cluster mode.
func (r *RedisRepo) KeyFixedWindow(policyName, identifier string) string {
	return fmt.Sprintf(keyFWTmpl, r.Prefix, policyName, identifier)
}

// Eval runs a Lua script and normalizes the reply to a result slice.
func (r *RedisRepo) Eval(parentCtx context.Context, script string, keys []string, args ...interface{}) ([]interface{}, error) {
	ctx, cancel := r.withTimeout(parentCtx, 200*time.Millisecond)
	defer cancel()
	res, err := r.Cli.Eval(ctx, script, keys, args...).Result()
	if err != nil {
		return nil, fmt.Errorf("eval script failed: %w", err)
	}
	if val, ok := res.([]interface{}); ok {
		return val, nil
	}
	return []interface{}{res}, nil
}

func (r *RedisRepo) Close() error {
	if r.Cli == nil {
		return nil
	}
	return r.Cli.Close()
}
