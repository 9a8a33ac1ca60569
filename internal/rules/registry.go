package rules

import (
	"sync/atomic"

	"github.com/feichai0017/document-alerts/pkg/logger"
)

// Registry holds the current rule set. Analyses take one snapshot with
// Current; Swap installs a new set without affecting in-flight snapshots.
type Registry struct {
	current atomic.Pointer[RuleSet]
	logger  logger.Logger
}

func NewRegistry(initial *RuleSet, log logger.Logger) *Registry {
	r := &Registry{logger: log.Named("rules")}
	if initial == nil {
		initial = newRuleSet(nil, "")
	}
	r.current.Store(initial)
	return r
}

func (r *Registry) Current() *RuleSet {
	return r.current.Load()
}

// Swap installs next and returns the previous set. A nil set installs an
// empty one.
func (r *Registry) Swap(next *RuleSet) *RuleSet {
	if next == nil {
		next = newRuleSet(nil, "")
	}
	prev := r.current.Swap(next)
	r.logger.Info("Rule set installed",
		logger.String("version", next.Version()),
		logger.Int("rules", next.Len()),
		logger.String("previousVersion", prev.Version()),
	)
	return prev
}

// Reload loads path and swaps it in. On error the current set stays.
func (r *Registry) Reload(path string) error {
	set, err := LoadFile(path)
	if err != nil {
		r.logger.Error("Rule reload rejected",
			logger.String("path", path),
			logger.Error(err),
		)
		return err
	}
	r.Swap(set)
	return nil
}
