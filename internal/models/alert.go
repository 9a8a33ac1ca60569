package models

import "time"

// AlertStatus 告警状态
type AlertStatus string

const (
	AlertActive   AlertStatus = "ACTIVE"
	AlertResolved AlertStatus = "RESOLVED"
)

// Valid reports whether s is a known status.
func (s AlertStatus) Valid() bool {
	return s == AlertActive || s == AlertResolved
}

// Alert is raised for a (document, rule) pair while the rule keeps matching.
type Alert struct {
	ID          string      `json:"id"`
	DocumentID  string      `json:"documentId"`
	RuleID      string      `json:"ruleId"`
	Status      AlertStatus `json:"status"`
	Evidence    string      `json:"evidence,omitempty"`
	TriggeredAt time.Time   `json:"triggeredAt"`
	ResolvedAt  *time.Time  `json:"resolvedAt,omitempty"`
	// Seq is assigned by the store on first save and orders alerts with equal
	// TriggeredAt.
	Seq int64 `json:"seq"`
}

// RuleMatch is produced when a rule's predicate holds for a document.
type RuleMatch struct {
	RuleID   string `json:"ruleId"`
	Evidence string `json:"evidence"`
	// Page is the matching page index for page-scoped rules, -1 otherwise.
	Page int `json:"page"`
}

// MutationKind 告警变更类型
type MutationKind string

const (
	MutationCreated     MutationKind = "created"
	MutationRetriggered MutationKind = "retriggered"
	MutationResolved    MutationKind = "resolved"
)

// Mutation records one change applied to an alert during reconcile.
type Mutation struct {
	Kind  MutationKind `json:"kind"`
	Alert Alert        `json:"alert"`
}

// AnalysisResult is returned by a completed analysis run.
type AnalysisResult struct {
	DocumentID string      `json:"documentId"`
	Pages      int         `json:"pages"`
	Matches    []RuleMatch `json:"matches"`
	Mutations  []Mutation  `json:"mutations"`
	AnalyzedAt time.Time   `json:"analyzedAt"`
}

// AnalysisStatus 分析任务状态
type AnalysisStatus string

const (
	StatusPending   AnalysisStatus = "pending"
	StatusRunning   AnalysisStatus = "running"
	StatusCompleted AnalysisStatus = "completed"
	StatusFailed    AnalysisStatus = "failed"
)
