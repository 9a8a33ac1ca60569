package converters

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/feichai0017/document-alerts/internal/models"
)

// ReportConverter 定义分析报告转换器接口
type ReportConverter interface {
	Convert(doc *models.ExtractedDocument, result *models.AnalysisResult) (*AnalysisReport, error)
}

// AnalysisReport is the persisted outcome of one analysis run.
type AnalysisReport struct {
	DocumentID string         `json:"documentId"`
	Status     string         `json:"status"`
	Pages      []PageContent  `json:"pages"`
	Matches    []MatchContent `json:"matches"`
	Alerts     []AlertChange  `json:"alerts"`
	Metadata   ReportMetadata `json:"metadata"`
	AnalyzedAt time.Time      `json:"analyzedAt"`
}

// PageContent 页面内容
type PageContent struct {
	Index     int    `json:"index"`
	Text      string `json:"text"`
	Fragments int    `json:"fragments"`
}

// MatchContent 规则命中
type MatchContent struct {
	RuleID   string `json:"ruleId"`
	Evidence string `json:"evidence"`
	Page     *int   `json:"page,omitempty"`
}

// AlertChange 告警变更
type AlertChange struct {
	Kind    string `json:"kind"`
	AlertID string `json:"alertId"`
	RuleID  string `json:"ruleId"`
	Status  string `json:"status"`
}

// ReportMetadata 报告元数据
type ReportMetadata struct {
	PageCount  int `json:"pageCount"`
	MatchCount int `json:"matchCount"`
	Created    int `json:"created"`
	Retriggers int `json:"retriggered"`
	Resolved   int `json:"resolved"`
}

// JSONConverter 实现报告转换器
type JSONConverter struct{}

func NewJSONConverter() *JSONConverter {
	return &JSONConverter{}
}

func (c *JSONConverter) Convert(doc *models.ExtractedDocument, result *models.AnalysisResult) (*AnalysisReport, error) {
	if result == nil {
		return nil, fmt.Errorf("no analysis result to convert")
	}

	report := &AnalysisReport{
		DocumentID: result.DocumentID,
		Status:     string(models.StatusCompleted),
		Pages:      make([]PageContent, 0, result.Pages),
		Matches:    make([]MatchContent, 0, len(result.Matches)),
		Alerts:     make([]AlertChange, 0, len(result.Mutations)),
		AnalyzedAt: result.AnalyzedAt,
		Metadata: ReportMetadata{
			PageCount:  result.Pages,
			MatchCount: len(result.Matches),
		},
	}

	if doc != nil {
		for _, p := range doc.Pages {
			report.Pages = append(report.Pages, PageContent{
				Index:     p.Index,
				Text:      p.Text,
				Fragments: len(p.Fragments),
			})
		}
	}

	for _, m := range result.Matches {
		mc := MatchContent{RuleID: m.RuleID, Evidence: m.Evidence}
		if m.Page >= 0 {
			page := m.Page
			mc.Page = &page
		}
		report.Matches = append(report.Matches, mc)
	}

	for _, mu := range result.Mutations {
		report.Alerts = append(report.Alerts, AlertChange{
			Kind:    string(mu.Kind),
			AlertID: mu.Alert.ID,
			RuleID:  mu.Alert.RuleID,
			Status:  string(mu.Alert.Status),
		})
		switch mu.Kind {
		case models.MutationCreated:
			report.Metadata.Created++
		case models.MutationRetriggered:
			report.Metadata.Retriggers++
		case models.MutationResolved:
			report.Metadata.Resolved++
		}
	}

	return report, nil
}

// Marshal encodes the report as indented JSON.
func (r *AnalysisReport) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return data, nil
}
