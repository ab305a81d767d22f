package config

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to the configured Redis server. It returns nil when
// rate limiting is disabled or the server does not answer a ping, and callers
// must then run without Redis.
func NewRedisClient() *redis.Client {
	if !AppConfig.RateLimitEnabled || AppConfig.RedisAddr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     AppConfig.RedisAddr,
		Password: AppConfig.RedisPassword,
		DB:       AppConfig.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("Redis at %s unreachable, rate limiting disabled: %v", AppConfig.RedisAddr, err)
		_ = client.Close()
		return nil
	}
	return client
}
