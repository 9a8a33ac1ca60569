package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/document-alerts/config"
	"github.com/feichai0017/document-alerts/pkg/logger"
)

// New opens the alert store named by cfg.AlertStore.
func New(ctx context.Context, cfg *config.EngineConfig, log logger.Logger) (AlertStore, error) {
	switch cfg.AlertStore {
	case "memory":
		return NewMemoryStore(), nil
	case "redis":
		redisCfg := config.GetRedisConfig()
		client := redis.NewClient(&redis.Options{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		})
		s := NewRedisStore(client, redisCfg.KeyPrefix, log)
		if err := s.Ping(ctx); err != nil {
			client.Close()
			return nil, err
		}
		return s, nil
	case string(DialectSQLite), string(DialectPostgres):
		return OpenSQLStore(ctx, Dialect(cfg.AlertStore), config.GetSQLConfig(), log)
	default:
		return nil, fmt.Errorf("unsupported alert store: %s", cfg.AlertStore)
	}
}
