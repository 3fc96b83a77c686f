package config

import (
	"sync"
	"time"
)

var (
	redisOnce   sync.Once
	redisConfig *RedisConfig
)

// RedisConfig is shared by the status cache and the asynq queue.
// An empty Addr disables both.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	StatusTTL   time.Duration
	Concurrency int
}

func GetRedisConfig() *RedisConfig {
	redisOnce.Do(func() {
		loadEnv()
		redisConfig = &RedisConfig{
			Addr:        getEnv("REDIS_ADDR", ""),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getEnvInt("REDIS_DB", 0),
			StatusTTL:   getEnvDuration("REDIS_STATUS_TTL", 24*time.Hour),
			Concurrency: getEnvInt("WORKER_CONCURRENCY", 5),
		}
	})
	return redisConfig
}
