package taskset

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vietddude/governor/internal/core/domain"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	URL      string        `yaml:"url"      env:"GOVERNOR_REDIS_URL"`
	Password string        `yaml:"password" env:"GOVERNOR_REDIS_PASSWORD"`
	TTL      time.Duration `yaml:"ttl"      env:"GOVERNOR_REDIS_TTL"`
}

// DefaultClaimTTL bounds how long a crashed replica can hold a claim.
const DefaultClaimTTL = 10 * time.Minute

// Only the replica that set the key may delete it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Extends only a key this replica still holds.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a TaskSet shared by governor replicas. Claims are SET NX keys
// carrying this replica's token and expire after TTL unless extended.
type Redis struct {
	rdb    *redis.Client
	prefix string
	token  string
	ttl    time.Duration
}

// NewRedis connects to Redis and scopes keys to the governor address.
func NewRedis(cfg RedisConfig, governor domain.Address) (*Redis, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}

	return &Redis{
		rdb:    rdb,
		prefix: fmt.Sprintf("governor:running:%s", governor),
		token:  uuid.NewString(),
		ttl:    ttl,
	}, nil
}

func (r *Redis) key(id domain.GameID) string {
	return fmt.Sprintf("%s:%d", r.prefix, id)
}

func (r *Redis) Claim(ctx context.Context, id domain.GameID) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, r.key(id), r.token, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

func (r *Redis) Release(ctx context.Context, id domain.GameID) error {
	if err := releaseScript.Run(ctx, r.rdb, []string{r.key(id)}, r.token).Err(); err != nil {
		return fmt.Errorf("release failed: %w", err)
	}
	return nil
}

// Extend refreshes the expiry of a claim held by this replica.
func (r *Redis) Extend(ctx context.Context, id domain.GameID) (bool, error) {
	n, err := extendScript.Run(ctx, r.rdb, []string{r.key(id)}, r.token, r.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("extend failed: %w", err)
	}
	return n == 1, nil
}

// TTL returns the claim expiry.
func (r *Redis) TTL() time.Duration {
	return r.ttl
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
