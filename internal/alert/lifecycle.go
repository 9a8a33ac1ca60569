// Package alert maintains the alert lifecycle of analysed documents.
package alert

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/document-alerts/internal/models"
	"github.com/feichai0017/document-alerts/internal/store"
	"github.com/feichai0017/document-alerts/pkg/logger"
)

// Manager reconciles rule matches with the alerts stored for a document.
type Manager struct {
	store  store.AlertStore
	locks  *KeyedMutex
	shared Locker
	now    func() time.Time
	newID  func() string
	logger logger.Logger
}

type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithIDGenerator replaces the uuid alert id generator.
func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) {
		m.newID = newID
	}
}

// WithLocker adds a lock shared with other processes, taken after the local
// per-document lock.
func WithLocker(l Locker) Option {
	return func(m *Manager) {
		m.shared = l
	}
}

func NewManager(s store.AlertStore, log logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:  s,
		locks:  NewKeyedMutex(),
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
		logger: log.Named("lifecycle"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Reconcile makes the active alerts of documentID equal to the matched rules:
// new matches are created, repeated matches re-triggered, and active alerts
// whose rule no longer matches are resolved.
//
// Calls for the same document are serialized, across processes when a
// shared Locker is configured. ctx may cancel the call until
// the first write; from then on the remaining writes are carried out
// regardless. A store failure stops the remaining writes and is returned
// together with the mutations already applied.
func (m *Manager) Reconcile(ctx context.Context, documentID string, matches []models.RuleMatch) ([]models.Mutation, error) {
	unlock, err := m.locks.Lock(ctx, documentID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	if m.shared != nil {
		release, err := m.shared.Lock(ctx, documentID)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	active, err := m.store.FindActiveByDocument(ctx, documentID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("load active alerts: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	plan := m.plan(documentID, active, matches, m.now())

	wctx := context.WithoutCancel(ctx)
	applied := make([]models.Mutation, 0, len(plan))
	for _, mut := range plan {
		saved, err := m.store.Save(wctx, mut.Alert)
		if err != nil {
			m.logger.Error("Reconcile aborted",
				logger.String("documentId", documentID),
				logger.String("ruleId", mut.Alert.RuleID),
				logger.String("mutation", string(mut.Kind)),
				logger.Int("applied", len(applied)),
				logger.Int("planned", len(plan)),
				logger.Error(err),
			)
			return applied, fmt.Errorf("%s alert for rule %s: %w", mut.Kind, mut.Alert.RuleID, err)
		}
		mut.Alert = saved
		applied = append(applied, mut)
	}

	m.logger.Info("Alerts reconciled",
		logger.String("documentId", documentID),
		logger.Int("matches", len(matches)),
		logger.Int("mutations", len(applied)),
	)
	return applied, nil
}

// plan computes the mutations in a fixed order: matched rules by id, then
// resolutions by rule id.
func (m *Manager) plan(documentID string, active []models.Alert, matches []models.RuleMatch, now time.Time) []models.Mutation {
	current := make(map[string]models.Alert, len(active))
	var stale []models.Alert
	for _, a := range active {
		if _, dup := current[a.RuleID]; dup {
			// active is most recent first; older duplicates get resolved
			stale = append(stale, a)
			continue
		}
		current[a.RuleID] = a
	}

	sorted := append([]models.RuleMatch(nil), matches...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].RuleID < sorted[j].RuleID })

	plan := make([]models.Mutation, 0, len(sorted)+len(current))
	matched := make(map[string]bool, len(sorted))
	for _, match := range sorted {
		if matched[match.RuleID] {
			continue
		}
		matched[match.RuleID] = true

		if existing, ok := current[match.RuleID]; ok {
			existing.TriggeredAt = now
			existing.Evidence = match.Evidence
			plan = append(plan, models.Mutation{Kind: models.MutationRetriggered, Alert: existing})
			continue
		}
		plan = append(plan, models.Mutation{
			Kind: models.MutationCreated,
			Alert: models.Alert{
				ID:          m.newID(),
				DocumentID:  documentID,
				RuleID:      match.RuleID,
				Status:      models.AlertActive,
				Evidence:    match.Evidence,
				TriggeredAt: now,
			},
		})
	}

	for _, a := range current {
		if !matched[a.RuleID] {
			stale = append(stale, a)
		}
	}
	sort.SliceStable(stale, func(i, j int) bool { return stale[i].RuleID < stale[j].RuleID })
	for _, a := range stale {
		resolvedAt := now
		a.Status = models.AlertResolved
		a.ResolvedAt = &resolvedAt
		plan = append(plan, models.Mutation{Kind: models.MutationResolved, Alert: a})
	}

	return plan
}
