// Package store persists alerts.
package store

import (
	"context"
	"sort"

	"github.com/feichai0017/document-alerts/internal/models"
)

// AlertStore persists alerts. Every backend failure is reported as
// models.ErrStoreUnavailable.
type AlertStore interface {
	// Save upserts alert by ID. The store assigns Seq on first insert and
	// returns the stored alert.
	Save(ctx context.Context, alert models.Alert) (models.Alert, error)
	FindActiveByDocument(ctx context.Context, documentID string) ([]models.Alert, error)
	// FindByStatus returns alerts sorted by TriggeredAt descending, ties by Seq ascending.
	FindByStatus(ctx context.Context, status models.AlertStatus) ([]models.Alert, error)
	Ping(ctx context.Context) error
	Close() error
}

// sortByRecency orders alerts most recently triggered first; equal timestamps
// keep insertion order.
func sortByRecency(alerts []models.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if !a.TriggeredAt.Equal(b.TriggeredAt) {
			return a.TriggeredAt.After(b.TriggeredAt)
		}
		return a.Seq < b.Seq
	})
}
