package config

import (
	"sync"
	"time"
)

var (
	redisOnce   sync.Once
	redisConfig *RedisConfig
)

type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	KeyPrefix  string
	StatusTTL  time.Duration
	LockTTL    time.Duration
	MaxRetries int
}

func GetRedisConfig() *RedisConfig {
	redisOnce.Do(func() {
		loadEnv()
		redisConfig = &RedisConfig{
			Addr:       getEnv("REDIS_ADDR", "localhost:6379"),
			Password:   getEnv("REDIS_PASSWORD", ""),
			DB:         getEnvAsInt("REDIS_DB", 0),
			KeyPrefix:  getEnv("REDIS_KEY_PREFIX", "docalert"),
			StatusTTL:  getEnvAsDuration("REDIS_STATUS_TTL", 24*time.Hour),
			LockTTL:    getEnvAsDuration("REDIS_LOCK_TTL", 30*time.Second),
			MaxRetries: getEnvAsInt("QUEUE_MAX_RETRIES", 3),
		}
	})
	return redisConfig
}
