package store

import (
	"context"
	"sync"

	"github.com/feichai0017/document-alerts/internal/models"
)

// MemoryStore keeps alerts in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	alerts map[string]models.Alert
	seq    int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{alerts: make(map[string]models.Alert)}
}

func (s *MemoryStore) Save(ctx context.Context, alert models.Alert) (models.Alert, error) {
	if err := ctx.Err(); err != nil {
		return models.Alert{}, models.StoreError("save", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.alerts[alert.ID]; ok {
		alert.Seq = existing.Seq
	} else {
		s.seq++
		alert.Seq = s.seq
	}
	s.alerts[alert.ID] = alert
	return alert, nil
}

func (s *MemoryStore) FindActiveByDocument(ctx context.Context, documentID string) ([]models.Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.StoreError("find active", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Alert, 0)
	for _, a := range s.alerts {
		if a.DocumentID == documentID && a.Status == models.AlertActive {
			out = append(out, a)
		}
	}
	sortByRecency(out)
	return out, nil
}

func (s *MemoryStore) FindByStatus(ctx context.Context, status models.AlertStatus) ([]models.Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.StoreError("find by status", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Alert, 0)
	for _, a := range s.alerts {
		if a.Status == status {
			out = append(out, a)
		}
	}
	sortByRecency(out)
	return out, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
