package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/document-alerts/internal/models"
	"github.com/feichai0017/document-alerts/pkg/logger"
	"github.com/feichai0017/document-alerts/pkg/queue"
)

type analyzeFunc func(ctx context.Context, documentID string) (*models.AnalysisResult, error)

func (f analyzeFunc) Analyze(ctx context.Context, documentID string) (*models.AnalysisResult, error) {
	return f(ctx, documentID)
}

type memoryStatuses struct {
	mu      sync.Mutex
	history []queue.AnalysisStatus
}

func (m *memoryStatuses) SaveStatus(ctx context.Context, s *queue.AnalysisStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, *s)
	return nil
}

func (m *memoryStatuses) GetStatus(ctx context.Context, documentID string) (*queue.AnalysisStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].DocumentID == documentID {
			s := m.history[i]
			return &s, nil
		}
	}
	return nil, queue.ErrStatusNotFound
}

func (m *memoryStatuses) last() queue.AnalysisStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history[len(m.history)-1]
}

func analysisTask(t *testing.T, id string) *asynq.Task {
	t.Helper()
	task, err := queue.NewAnalysisTask(id)
	if err != nil {
		t.Fatal(err)
	}
	return task
}

func TestHandleAnalyzeSuccess(t *testing.T) {
	statuses := &memoryStatuses{}
	var got string
	w := newDocumentWorker(analyzeFunc(func(ctx context.Context, id string) (*models.AnalysisResult, error) {
		got = id
		return &models.AnalysisResult{
			DocumentID: id,
			Matches:    []models.RuleMatch{{RuleID: "r"}},
			Mutations:  []models.Mutation{{Kind: models.MutationCreated}},
		}, nil
	}), statuses, logger.NewNop())

	if err := w.mux.ProcessTask(context.Background(), analysisTask(t, "D")); err != nil {
		t.Fatal(err)
	}
	if got != "D" {
		t.Fatalf("analyzed %q", got)
	}
	if len(statuses.history) != 2 || statuses.history[0].Status != models.StatusRunning {
		t.Fatalf("history = %+v", statuses.history)
	}
	final := statuses.last()
	if final.Status != models.StatusCompleted || final.Matches != 1 || final.Mutations != 1 || final.FinishedAt == nil {
		t.Fatalf("final status = %+v", final)
	}
	if final.Attempt != 1 {
		t.Fatalf("attempt = %d", final.Attempt)
	}
}

func TestHandleAnalyzeFailures(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		skipRetry bool
		public    string
	}{
		{"decode", models.NewDecodeError("D", 0, errors.New("bad header")), true, ""},
		{"truncated", models.NewTruncatedError("D", 2, errors.New("eof")), true, ""},
		{"not found", fmt.Errorf("fetch: %w", models.ErrDocumentNotFound), true, "document not found"},
		{"store", models.StoreError("save", errors.New("dial tcp 10.0.0.3:6379: refused")), false, "internal error"},
		{"timeout", fmt.Errorf("extract: %w", context.DeadlineExceeded), false, "analysis timed out"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			statuses := &memoryStatuses{}
			w := newDocumentWorker(analyzeFunc(func(ctx context.Context, id string) (*models.AnalysisResult, error) {
				return nil, tt.err
			}), statuses, logger.NewNop())

			err := w.handleDocumentAnalyze(context.Background(), analysisTask(t, "D"))
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want wrapping %v", err, tt.err)
			}
			if got := errors.Is(err, asynq.SkipRetry); got != tt.skipRetry {
				t.Fatalf("SkipRetry = %v, want %v", got, tt.skipRetry)
			}

			final := statuses.last()
			if final.Status != models.StatusFailed || final.Error == "" {
				t.Fatalf("final status = %+v", final)
			}
			if tt.public != "" && final.Error != tt.public {
				t.Fatalf("public error = %q, want %q", final.Error, tt.public)
			}
		})
	}
}

func TestHandleAnalyzeInvalidPayload(t *testing.T) {
	called := false
	w := newDocumentWorker(analyzeFunc(func(ctx context.Context, id string) (*models.AnalysisResult, error) {
		called = true
		return nil, nil
	}), nil, logger.NewNop())

	err := w.handleDocumentAnalyze(context.Background(), asynq.NewTask(queue.TaskTypeDocumentAnalyze, []byte(`{}`)))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("err = %v, want SkipRetry", err)
	}
	if called {
		t.Fatal("analyzer called for invalid payload")
	}
}
