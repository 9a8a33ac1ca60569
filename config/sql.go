package config

import (
	"sync"
	"time"
)

var (
	sqlOnce   sync.Once
	sqlConfig *SQLConfig
)

// SQLConfig configures the sqlite / postgres alert store.
type SQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func GetSQLConfig() *SQLConfig {
	sqlOnce.Do(func() {
		loadEnv()
		sqlConfig = &SQLConfig{
			DSN:             getEnv("DB_URL", "file:alerts.db?_pragma=busy_timeout(5000)"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MIN_CONNS", 2),
			ConnMaxLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
		}
	})
	return sqlConfig
}
