package config

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var (
	rdb    *redis.Client
	locker *redislock.Client
)

func GetRedisDB() *redis.Client {
	return rdb
}

func GetRedisLock() *redislock.Client {
	return locker
}

// RedisEnabled reports whether REDIS_ADDRESS is set. Without Redis the service
// runs with DB row locks only and no Redis sink or rate limiter.
func RedisEnabled() bool {
	return os.Getenv("REDIS_ADDRESS") != ""
}

// ConnectRedisWithRetry pings REDIS_ADDRESS until it answers or ctx is done,
// then sets the shared client and lock client.
func ConnectRedisWithRetry(ctx context.Context) error {
	addr := os.Getenv("REDIS_ADDRESS")
	if addr == "" {
		return errors.New("REDIS_ADDRESS not set")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		PoolSize: intFromEnv("REDIS_POOL_SIZE", 50),
	})
	for attempt := 1; ; attempt++ {
		err := client.Ping(ctx).Err()
		if err == nil {
			rdb, locker = client, redislock.New(client)
			logg.WithFields(logrus.Fields{"field": "redis", "addr": addr, "attempt": attempt}).Info("redis connected")
			return nil
		}

		delay := retryDelay(attempt)
		logg.WithFields(logrus.Fields{
			"field":   "redis",
			"addr":    addr,
			"attempt": attempt,
			"retry":   delay.String(),
		}).Warn("redis unavailable: " + err.Error())
		if err := sleepCtx(ctx, delay); err != nil {
			_ = client.Close()
			return fmt.Errorf("connect redis %s: %w", addr, err)
		}
	}
}
