package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/document-alerts/internal/models"
)

// ErrStatusNotFound is returned when no analysis was recorded for a document.
var ErrStatusNotFound = errors.New("analysis status not found")

// AnalysisStatus 定义分析状态
type AnalysisStatus struct {
	DocumentID string                `json:"documentId"`
	Status     models.AnalysisStatus `json:"status"`
	Attempt    int                   `json:"attempt,omitempty"`
	Matches    int                   `json:"matches"`
	Mutations  int                   `json:"mutations"`
	Error      string                `json:"error,omitempty"`
	StartedAt  time.Time             `json:"startedAt"`
	FinishedAt *time.Time            `json:"finishedAt,omitempty"`
}

type StatusStore interface {
	SaveStatus(ctx context.Context, status *AnalysisStatus) error
	GetStatus(ctx context.Context, documentID string) (*AnalysisStatus, error)
}

// RedisStatusStore keeps the latest analysis status per document.
type RedisStatusStore struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStatusStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStatusStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStatusStore{redis: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStatusStore) key(documentID string) string {
	return fmt.Sprintf("%s:analysis_status:%s", s.prefix, documentID)
}

// SaveStatus 保存任务状态
func (s *RedisStatusStore) SaveStatus(ctx context.Context, status *AnalysisStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(status.DocumentID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

// GetStatus 获取任务状态
func (s *RedisStatusStore) GetStatus(ctx context.Context, documentID string) (*AnalysisStatus, error) {
	data, err := s.redis.Get(ctx, s.key(documentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStatusNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get status from redis: %w", err)
	}

	var status AnalysisStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	return &status, nil
}
