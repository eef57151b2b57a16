package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager/v3"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultRedisTTL    = 30 * time.Second
	DefaultRedisPrefix = "ikou:lock:"
)

var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

type RedisConfig struct {
	Prefix        string
	TTL           time.Duration
	Wait          time.Duration
	RetryInterval time.Duration
}

// Redis is a Locker backed by a single Redis key per lock. The key holds
// a random owner token and expires after TTL unless the holder keeps
// refreshing it, so a crashed run frees the lock on its own.
type Redis struct {
	client redis.UniversalClient
	config RedisConfig
	clock  clock.Clock
	logger lager.Logger
}

func NewRedis(client redis.UniversalClient, config RedisConfig, clk clock.Clock, logger lager.Logger) *Redis {
	if config.TTL <= 0 {
		config.TTL = DefaultRedisTTL
	}
	if config.Prefix == "" {
		config.Prefix = DefaultRedisPrefix
	}

	return &Redis{
		client: client,
		config: config,
		clock:  clk,
		logger: logger.Session("redis-lock"),
	}
}

// Acquire takes the lock for key. The held context is cancelled with
// ErrLost when a refresh finds the key gone, or when refreshing keeps
// failing for a whole TTL.
func (r *Redis) Acquire(ctx context.Context, key string) (context.Context, func(), error) {
	redisKey := r.config.Prefix + key
	token := uuid.NewString()
	logger := r.logger.WithData(lager.Data{"key": redisKey})

	err := Poll(ctx, r.clock, r.config.Wait, r.config.RetryInterval, func(ctx context.Context) (bool, error) {
		return r.client.SetNX(ctx, redisKey, token, r.config.TTL).Result()
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock %s: %w", redisKey, err)
	}
	logger.Debug(acquired)

	held, cancel := context.WithCancelCause(ctx)

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.refresh(logger, redisKey, token, cancel, stop, done)

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			<-done
			defer cancel(nil)

			err := releaseScript.Run(context.Background(), r.client, []string{redisKey}, token).Err()
			if err != nil {
				logger.Error(failedToRelease, err)
				return
			}
			logger.Debug(released)
		})
	}

	return held, release, nil
}

func (r *Redis) refresh(
	logger lager.Logger,
	key, token string,
	onLost context.CancelCauseFunc,
	stop <-chan struct{},
	done chan<- struct{},
) {
	defer close(done)

	ticker := r.clock.NewTicker(r.config.TTL / 3)
	defer ticker.Stop()

	lastRefreshed := r.clock.Now()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			ttl := r.config.TTL.Milliseconds()
			n, err := refreshScript.Run(context.Background(), r.client, []string{key}, token, ttl).Int()
			switch {
			case err != nil:
				logger.Error(failedToRefresh, err)
				if r.clock.Since(lastRefreshed) < r.config.TTL {
					continue
				}
			case n == 1:
				lastRefreshed = r.clock.Now()
				continue
			}

			logger.Error(lost, ErrLost)
			onLost(ErrLost)
			return
		}
	}
}

const (
	acquired        = "acquired"
	released        = "released"
	lost            = "lost"
	failedToRelease = "failed-to-release"
	failedToRefresh = "failed-to-refresh"
)
