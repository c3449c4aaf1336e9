// Package redis provides Redis-backed counters and redemption claims shared
// across scoring instances.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/louisbranch/questline/internal/platform/config"
	"github.com/louisbranch/questline/internal/platform/timeouts"
	"github.com/louisbranch/questline/internal/services/scoring/storage"
)

const (
	defaultKeyPrefix = "questline:scoring:"

	// expiryGrace keeps a counter alive briefly past its window so a request
	// straddling the boundary still reads a consistent count.
	expiryGrace = time.Minute
)

// Config configures the Redis connection.
type Config struct {
	Addr          string        `env:"SCORING_REDIS_ADDR"`
	Password      string        `env:"SCORING_REDIS_PASSWORD"`
	DB            int           `env:"SCORING_REDIS_DB"`
	KeyPrefix     string        `env:"SCORING_REDIS_KEY_PREFIX"     envDefault:"questline:scoring:"`
	RedemptionTTL time.Duration `env:"SCORING_REDIS_REDEMPTION_TTL" envDefault:"24h"`
}

// LoadConfig reads the Redis configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Store keeps counters and redemption claims in Redis.
type Store struct {
	client        goredis.UniversalClient
	prefix        string
	redemptionTTL time.Duration
}

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: timeouts.RedisDial,
	})
	pingCtx, cancel := context.WithTimeout(ctx, timeouts.RedisDial)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client, cfg.KeyPrefix, cfg.RedemptionTTL), nil
}

// New wraps an existing client.
func New(client goredis.UniversalClient, prefix string, redemptionTTL time.Duration) *Store {
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultKeyPrefix
	}
	if redemptionTTL <= 0 {
		redemptionTTL = 24 * time.Hour
	}
	return &Store{client: client, prefix: prefix, redemptionTTL: redemptionTTL}
}

// Close closes the client.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// IncrementCounter increments the counter for key and schedules its expiry
// after the window ends. INCR is atomic across every client of the server.
func (s *Store) IncrementCounter(ctx context.Context, key storage.CounterKey) (int64, error) {
	if s == nil || s.client == nil {
		return 0, errors.New("redis store is not configured")
	}
	redisKey := s.counterKey(key)
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	if !key.WindowEnd.IsZero() {
		pipe.ExpireAt(ctx, redisKey, key.WindowEnd.Add(expiryGrace))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("increment counter: %w", err)
	}
	return incr.Val(), nil
}

// ClaimRedemption records key with SETNX and reports whether it was already
// present. Claims expire after the redemption TTL.
func (s *Store) ClaimRedemption(ctx context.Context, key storage.RedemptionKey, at time.Time) (bool, error) {
	if s == nil || s.client == nil {
		return false, errors.New("redis store is not configured")
	}
	set, err := s.client.SetNX(ctx, s.redemptionKey(key), at.UTC().UnixMilli(), s.redemptionTTL).Result()
	if err != nil {
		return false, fmt.Errorf("claim redemption: %w", err)
	}
	return !set, nil
}

// Redeemed reports whether key holds a live claim.
func (s *Store) Redeemed(ctx context.Context, key storage.RedemptionKey) (bool, error) {
	if s == nil || s.client == nil {
		return false, errors.New("redis store is not configured")
	}
	n, err := s.client.Exists(ctx, s.redemptionKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("check redemption: %w", err)
	}
	return n > 0, nil
}

// ReleaseRedemption deletes the claim for key.
func (s *Store) ReleaseRedemption(ctx context.Context, key storage.RedemptionKey) error {
	if s == nil || s.client == nil {
		return errors.New("redis store is not configured")
	}
	if err := s.client.Del(ctx, s.redemptionKey(key)).Err(); err != nil {
		return fmt.Errorf("release redemption: %w", err)
	}
	return nil
}

func (s *Store) counterKey(key storage.CounterKey) string {
	return s.prefix + "rl:" + strings.Join([]string{
		key.ScopeType,
		key.ScopeValue,
		key.WindowName,
		strconv.FormatInt(key.WindowStart.UTC().Unix(), 10),
	}, ":")
}

func (s *Store) redemptionKey(key storage.RedemptionKey) string {
	return s.prefix + "redeem:" + strings.Join([]string{
		key.GameID,
		key.ExternalTaskID,
		key.ExternalUserID,
		key.Commitment,
	}, ":")
}

var (
	_ storage.CounterStore    = (*Store)(nil)
	_ storage.RedemptionStore = (*Store)(nil)
)
