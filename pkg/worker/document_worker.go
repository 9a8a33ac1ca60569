package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/document-alerts/internal/models"
	"github.com/feichai0017/document-alerts/pkg/logger"
	"github.com/feichai0017/document-alerts/pkg/queue"
)

// Analyzer runs one document analysis.
type Analyzer interface {
	Analyze(ctx context.Context, documentID string) (*models.AnalysisResult, error)
}

type DocumentWorker struct {
	BaseWorker
	analyzer Analyzer
	statuses queue.StatusStore
	now      func() time.Time
}

func NewDocumentWorker(cfg *Config, analyzer Analyzer, statuses queue.StatusStore, log logger.Logger) (*DocumentWorker, error) {
	if cfg.Queue == nil {
		return nil, fmt.Errorf("worker: queue config is required")
	}
	queues := cfg.Queues
	if len(queues) == 0 {
		queues = DefaultQueues()
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Minute
	}

	server := asynq.NewServer(
		cfg.Queue.RedisOpt(),
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      queues,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n+1) * retryDelay
			},
		},
	)

	w := newDocumentWorker(analyzer, statuses, log)
	w.server = server
	return w, nil
}

func newDocumentWorker(analyzer Analyzer, statuses queue.StatusStore, log logger.Logger) *DocumentWorker {
	w := &DocumentWorker{
		BaseWorker: BaseWorker{
			mux:    asynq.NewServeMux(),
			logger: log.Named("worker"),
		},
		analyzer: analyzer,
		statuses: statuses,
		now:      time.Now,
	}

	// 注册任务处理器
	w.registerHandlers()
	return w
}

func (w *DocumentWorker) registerHandlers() {
	w.mux.HandleFunc(queue.TaskTypeDocumentAnalyze, w.handleDocumentAnalyze)
}

func (w *DocumentWorker) handleDocumentAnalyze(ctx context.Context, t *asynq.Task) error {
	payload, err := queue.ParseAnalysisPayload(t)
	if err != nil {
		w.logger.Error("Invalid analysis task",
			logger.String("payload", string(t.Payload())),
			logger.Error(err),
		)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	retried, _ := asynq.GetRetryCount(ctx)
	status := &queue.AnalysisStatus{
		DocumentID: payload.DocumentID,
		Status:     models.StatusRunning,
		Attempt:    retried + 1,
		StartedAt:  w.now().UTC(),
	}
	w.saveStatus(ctx, status)

	w.logger.Info("Processing analysis task",
		logger.String("documentId", payload.DocumentID),
		logger.Int("attempt", status.Attempt),
	)

	result, err := w.analyzer.Analyze(ctx, payload.DocumentID)
	finished := w.now().UTC()
	status.FinishedAt = &finished
	if err != nil {
		status.Status = models.StatusFailed
		status.Error = publicError(err)
		w.saveStatus(context.WithoutCancel(ctx), status)

		if permanent(err) {
			w.logger.Warn("Analysis failed permanently",
				logger.String("documentId", payload.DocumentID),
				logger.Error(err),
			)
			return fmt.Errorf("analyze %s: %w: %w", payload.DocumentID, err, asynq.SkipRetry)
		}
		return fmt.Errorf("analyze %s: %w", payload.DocumentID, err)
	}

	status.Status = models.StatusCompleted
	status.Matches = len(result.Matches)
	status.Mutations = len(result.Mutations)
	w.saveStatus(ctx, status)

	if rw := t.ResultWriter(); rw != nil {
		if data, err := json.Marshal(result); err == nil {
			if _, err := rw.Write(data); err != nil {
				w.logger.Error("Failed to write task result", logger.Error(err))
			}
		}
	}
	return nil
}

func (w *DocumentWorker) saveStatus(ctx context.Context, status *queue.AnalysisStatus) {
	if w.statuses == nil {
		return
	}
	if err := w.statuses.SaveStatus(ctx, status); err != nil {
		w.logger.Error("Failed to save analysis status",
			logger.String("documentId", status.DocumentID),
			logger.Error(err),
		)
	}
}

// Start runs the asynq server in the background. Callers stop it with Stop.
func (w *DocumentWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	return nil
}

// permanent reports errors that a retry cannot fix.
func permanent(err error) bool {
	return errors.Is(err, models.ErrDecode) ||
		errors.Is(err, models.ErrTruncated) ||
		errors.Is(err, models.ErrRuleDefinition) ||
		errors.Is(err, models.ErrDocumentNotFound)
}

// publicError hides backend details from status records.
func publicError(err error) string {
	switch {
	case errors.Is(err, models.ErrStoreUnavailable):
		return "internal error"
	case errors.Is(err, models.ErrDocumentNotFound):
		return "document not found"
	case errors.Is(err, context.DeadlineExceeded):
		return "analysis timed out"
	default:
		return err.Error()
	}
}
