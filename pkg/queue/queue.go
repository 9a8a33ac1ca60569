// pkg/queue/queue.go
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/document-alerts/config"
)

// TaskType 定义任务类型
const (
	TaskTypeDocumentAnalyze = "document:analyze"
)

var queueNames = []string{"critical", "default", "low"}

// ErrAlreadyQueued is returned when the document already waits for analysis.
var ErrAlreadyQueued = errors.New("analysis already queued")

// Queue 接口定义
type Queue interface {
	EnqueueAnalysis(ctx context.Context, documentID string, priority int) (string, error)
	CancelTask(ctx context.Context, taskID string) error
	Close() error
}

// AnalysisPayload is the payload of a document:analyze task.
type AnalysisPayload struct {
	DocumentID string `json:"documentId"`
}

// NewAnalysisTask builds the asynq task analysing documentID.
func NewAnalysisTask(documentID string, opts ...asynq.Option) (*asynq.Task, error) {
	if documentID == "" {
		return nil, fmt.Errorf("missing document id")
	}
	payload, err := json.Marshal(AnalysisPayload{DocumentID: documentID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TaskTypeDocumentAnalyze, payload, opts...), nil
}

// ParseAnalysisPayload decodes the payload of a document:analyze task.
func ParseAnalysisPayload(t *asynq.Task) (AnalysisPayload, error) {
	var p AnalysisPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if p.DocumentID == "" {
		return p, fmt.Errorf("payload without document id")
	}
	return p, nil
}

// AsynqQueue 实现
type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	cfg       *QueueConfig
}

// QueueConfig 定义队列配置
type QueueConfig struct {
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	MaxRetries     int
	ProcessTimeout time.Duration
}

// RedisOpt returns the asynq connection options for cfg.
func (cfg *QueueConfig) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// ConfigFromEnv 从环境变量构建队列配置
func ConfigFromEnv() *QueueConfig {
	redisCfg := config.GetRedisConfig()
	engineCfg := config.GetEngineConfig()
	return &QueueConfig{
		RedisAddr:      redisCfg.Addr,
		RedisPassword:  redisCfg.Password,
		RedisDB:        redisCfg.DB,
		MaxRetries:     redisCfg.MaxRetries,
		ProcessTimeout: engineCfg.ExtractTimeout + time.Minute,
	}
}

// GetQueue 获取队列实例
func GetQueue() (*AsynqQueue, error) {
	return NewAsynqQueue(ConfigFromEnv())
}

// NewAsynqQueue 创建新的队列实例
func NewAsynqQueue(cfg *QueueConfig) (*AsynqQueue, error) {
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("queue: redis address is required")
	}
	return &AsynqQueue{
		client:    asynq.NewClient(cfg.RedisOpt()),
		inspector: asynq.NewInspector(cfg.RedisOpt()),
		cfg:       cfg,
	}, nil
}

// EnqueueAnalysis 将分析任务加入队列. A document already waiting in the
// queue is not enqueued twice.
func (q *AsynqQueue) EnqueueAnalysis(ctx context.Context, documentID string, priority int) (string, error) {
	opts := []asynq.Option{
		asynq.MaxRetry(q.cfg.MaxRetries),
		asynq.Timeout(q.cfg.ProcessTimeout),
		asynq.TaskID(documentID),
		asynq.Queue(queueFor(priority)),
	}

	t, err := NewAnalysisTask(documentID, opts...)
	if err != nil {
		return "", err
	}
	info, err := q.client.EnqueueContext(ctx, t)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		// the id is also held by archived and retained tasks; those are finished
		cleared, cerr := q.clearFinished(documentID)
		if cerr != nil {
			return "", fmt.Errorf("failed to inspect task %s: %w", documentID, cerr)
		}
		if !cleared {
			return "", fmt.Errorf("%w: %s", ErrAlreadyQueued, documentID)
		}
		info, err = q.client.EnqueueContext(ctx, t)
	}
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return "", fmt.Errorf("%w: %s", ErrAlreadyQueued, documentID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}
	return info.ID, nil
}

// clearFinished deletes the archived or completed task with the given id.
// It reports false while the task is still pending, scheduled, active or
// waiting for a retry.
func (q *AsynqQueue) clearFinished(taskID string) (bool, error) {
	for _, name := range queueNames {
		info, err := q.inspector.GetTaskInfo(name, taskID)
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			continue
		}
		if err != nil {
			return false, err
		}
		switch info.State {
		case asynq.TaskStateArchived, asynq.TaskStateCompleted:
			if err := q.inspector.DeleteTask(name, taskID); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
				return false, err
			}
			return true, nil
		default:
			return false, nil
		}
	}
	// gone since the conflict
	return true, nil
}

// CancelTask 取消任务
func (q *AsynqQueue) CancelTask(ctx context.Context, taskID string) error {
	var lastErr error
	for _, name := range queueNames {
		err := q.inspector.DeleteTask(name, taskID)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("failed to cancel task: %w", lastErr)
}

func (q *AsynqQueue) Close() error {
	if err := q.inspector.Close(); err != nil {
		return err
	}
	return q.client.Close()
}

// 根据优先级选择队列
func queueFor(priority int) string {
	switch priority {
	case 1:
		return "critical"
	case 2:
		return "default"
	default:
		return "low"
	}
}
