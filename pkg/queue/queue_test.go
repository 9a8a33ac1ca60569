package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/document-alerts/internal/models"
)

func TestAnalysisTaskPayload(t *testing.T) {
	task, err := NewAnalysisTask("doc-1")
	if err != nil {
		t.Fatal(err)
	}
	if task.Type() != TaskTypeDocumentAnalyze {
		t.Fatalf("type = %s", task.Type())
	}
	p, err := ParseAnalysisPayload(task)
	if err != nil {
		t.Fatal(err)
	}
	if p.DocumentID != "doc-1" {
		t.Fatalf("payload = %+v", p)
	}

	if _, err := NewAnalysisTask(""); err == nil {
		t.Fatal("expected error for empty document id")
	}
	if _, err := ParseAnalysisPayload(asynq.NewTask(TaskTypeDocumentAnalyze, []byte("not json"))); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestQueueForPriority(t *testing.T) {
	for priority, want := range map[int]string{1: "critical", 2: "default", 3: "low", 0: "low"} {
		if got := queueFor(priority); got != want {
			t.Errorf("queueFor(%d) = %s, want %s", priority, got, want)
		}
	}
}

func TestNewAsynqQueueRequiresAddress(t *testing.T) {
	if _, err := NewAsynqQueue(&QueueConfig{}); err == nil {
		t.Fatal("expected error without redis address")
	}
}

func TestRedisStatusStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	s := NewRedisStatusStore(client, "test", time.Hour)
	ctx := context.Background()

	if _, err := s.GetStatus(ctx, "D"); !errors.Is(err, ErrStatusNotFound) {
		t.Fatalf("err = %v, want ErrStatusNotFound", err)
	}

	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	finished := started.Add(2 * time.Second)
	want := &AnalysisStatus{
		DocumentID: "D",
		Status:     models.StatusCompleted,
		Attempt:    2,
		Matches:    3,
		Mutations:  1,
		StartedAt:  started,
		FinishedAt: &finished,
	}
	if err := s.SaveStatus(ctx, want); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetStatus(ctx, "D")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != want.Status || got.Attempt != 2 || got.Matches != 3 || !got.FinishedAt.Equal(finished) {
		t.Fatalf("status = %+v", got)
	}

	if ttl := mr.TTL("test:analysis_status:D"); ttl != time.Hour {
		t.Fatalf("ttl = %s", ttl)
	}
	mr.FastForward(2 * time.Hour)
	if _, err := s.GetStatus(ctx, "D"); !errors.Is(err, ErrStatusNotFound) {
		t.Fatalf("err after expiry = %v", err)
	}
}

func newTestQueue(t *testing.T) (*AsynqQueue, *asynq.Inspector) {
	t.Helper()
	mr := miniredis.RunT(t)
	q, err := NewAsynqQueue(&QueueConfig{RedisAddr: mr.Addr(), MaxRetries: 3, ProcessTimeout: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() {
		inspector.Close()
		q.Close()
	})
	return q, inspector
}

func TestEnqueueAnalysisDeduplicatesPendingTask(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	id, err := q.EnqueueAnalysis(ctx, "D", 2)
	if err != nil {
		t.Fatal(err)
	}
	if id != "D" {
		t.Fatalf("task id = %q, want document id", id)
	}
	if _, err := q.EnqueueAnalysis(ctx, "D", 2); !errors.Is(err, ErrAlreadyQueued) {
		t.Fatalf("err = %v, want ErrAlreadyQueued", err)
	}
}

func TestEnqueueAnalysisReplacesArchivedTask(t *testing.T) {
	q, inspector := newTestQueue(t)
	ctx := context.Background()

	if _, err := q.EnqueueAnalysis(ctx, "D", 2); err != nil {
		t.Fatal(err)
	}
	if err := inspector.ArchiveTask("default", "D"); err != nil {
		t.Fatalf("archive: %v", err)
	}

	if _, err := q.EnqueueAnalysis(ctx, "D", 2); err != nil {
		t.Fatalf("enqueue after archive: %v", err)
	}
	info, err := inspector.GetTaskInfo("default", "D")
	if err != nil {
		t.Fatal(err)
	}
	if info.State != asynq.TaskStatePending {
		t.Fatalf("state = %v, want pending", info.State)
	}
}
