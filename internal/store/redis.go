package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/document-alerts/internal/models"
	"github.com/feichai0017/document-alerts/pkg/logger"
)

// RedisStore keeps each alert as JSON under its own key, indexed by a sorted
// set per status (score: trigger time in ms) and a set of active alert ids per
// document.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger logger.Logger
}

func NewRedisStore(client *redis.Client, prefix string, log logger.Logger) *RedisStore {
	if prefix == "" {
		prefix = "docalert"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		logger: log.Named("store.redis"),
	}
}

func (s *RedisStore) alertKey(id string) string {
	return fmt.Sprintf("%s:alert:%s", s.prefix, id)
}

func (s *RedisStore) statusKey(status models.AlertStatus) string {
	return fmt.Sprintf("%s:alerts:%s", s.prefix, status)
}

func (s *RedisStore) activeKey(documentID string) string {
	return fmt.Sprintf("%s:doc:%s:active", s.prefix, documentID)
}

func (s *RedisStore) seqKey() string {
	return s.prefix + ":seq"
}

func (s *RedisStore) Save(ctx context.Context, alert models.Alert) (models.Alert, error) {
	existing, err := s.get(ctx, alert.ID)
	if err != nil {
		return models.Alert{}, err
	}
	if existing != nil {
		alert.Seq = existing.Seq
	} else {
		seq, err := s.client.Incr(ctx, s.seqKey()).Result()
		if err != nil {
			return models.Alert{}, s.fail("save", err)
		}
		alert.Seq = seq
	}

	data, err := json.Marshal(alert)
	if err != nil {
		return models.Alert{}, fmt.Errorf("failed to marshal alert: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.alertKey(alert.ID), data, 0)
		for _, st := range []models.AlertStatus{models.AlertActive, models.AlertResolved} {
			if st != alert.Status {
				pipe.ZRem(ctx, s.statusKey(st), alert.ID)
			}
		}
		pipe.ZAdd(ctx, s.statusKey(alert.Status), redis.Z{
			Score:  float64(alert.TriggeredAt.UnixMilli()),
			Member: alert.ID,
		})
		if alert.Status == models.AlertActive {
			pipe.SAdd(ctx, s.activeKey(alert.DocumentID), alert.ID)
		} else {
			pipe.SRem(ctx, s.activeKey(alert.DocumentID), alert.ID)
		}
		return nil
	})
	if err != nil {
		return models.Alert{}, s.fail("save", err)
	}
	return alert, nil
}

func (s *RedisStore) FindActiveByDocument(ctx context.Context, documentID string) ([]models.Alert, error) {
	ids, err := s.client.SMembers(ctx, s.activeKey(documentID)).Result()
	if err != nil {
		return nil, s.fail("find active", err)
	}
	alerts, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := alerts[:0]
	for _, a := range alerts {
		if a.Status == models.AlertActive {
			out = append(out, a)
		}
	}
	sortByRecency(out)
	return out, nil
}

func (s *RedisStore) FindByStatus(ctx context.Context, status models.AlertStatus) ([]models.Alert, error) {
	ids, err := s.client.ZRevRange(ctx, s.statusKey(status), 0, -1).Result()
	if err != nil {
		return nil, s.fail("find by status", err)
	}
	alerts, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	sortByRecency(alerts)
	return alerts, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return s.fail("ping", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) get(ctx context.Context, id string) (*models.Alert, error) {
	data, err := s.client.Get(ctx, s.alertKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, s.fail("get", err)
	}
	var a models.Alert
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alert %s: %w", id, err)
	}
	return &a, nil
}

func (s *RedisStore) load(ctx context.Context, ids []string) ([]models.Alert, error) {
	if len(ids) == 0 {
		return []models.Alert{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.alertKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, s.fail("load", err)
	}

	alerts := make([]models.Alert, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// index entry without a body; skip it rather than fail the read
			s.logger.Warn("Dangling alert index entry", logger.String("alertId", ids[i]))
			continue
		}
		var a models.Alert
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("failed to unmarshal alert %s: %w", ids[i], err)
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

func (s *RedisStore) fail(op string, err error) error {
	s.logger.Error("Redis operation failed",
		logger.String("op", op),
		logger.Error(err),
	)
	return models.StoreError(op, err)
}
