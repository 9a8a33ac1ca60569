package converters

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/feichai0017/document-alerts/internal/models"
)

func TestJSONConverterSummarizesRun(t *testing.T) {
	doc := &models.ExtractedDocument{
		DocumentID: "D",
		Pages: []models.PageText{
			models.NewPageText(0, []string{"invoice", "overdue"}),
			models.NewPageText(1, []string{"IBAN", "DE89"}),
		},
	}
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	result := &models.AnalysisResult{
		DocumentID: "D",
		Pages:      2,
		Matches: []models.RuleMatch{
			{RuleID: "keyword:overdue", Evidence: "invoice overdue", Page: -1},
			{RuleID: "iban", Evidence: "IBAN DE89", Page: 1},
		},
		Mutations: []models.Mutation{
			{Kind: models.MutationCreated, Alert: models.Alert{ID: "a1", RuleID: "iban", Status: models.AlertActive}},
			{Kind: models.MutationRetriggered, Alert: models.Alert{ID: "a2", RuleID: "keyword:overdue", Status: models.AlertActive}},
			{Kind: models.MutationResolved, Alert: models.Alert{ID: "a3", RuleID: "gone", Status: models.AlertResolved}},
		},
		AnalyzedAt: at,
	}

	report, err := NewJSONConverter().Convert(doc, result)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Pages) != 2 || report.Pages[0].Text != "invoice overdue" || report.Pages[1].Fragments != 2 {
		t.Fatalf("pages = %+v", report.Pages)
	}
	if report.Matches[0].Page != nil || report.Matches[1].Page == nil || *report.Matches[1].Page != 1 {
		t.Fatalf("matches = %+v", report.Matches)
	}
	want := ReportMetadata{PageCount: 2, MatchCount: 2, Created: 1, Retriggers: 1, Resolved: 1}
	if report.Metadata != want {
		t.Fatalf("metadata = %+v, want %+v", report.Metadata, want)
	}

	data, err := report.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["documentId"] != "D" || decoded["status"] != "completed" {
		t.Fatalf("decoded = %v", decoded)
	}
}

func TestJSONConverterRequiresResult(t *testing.T) {
	if _, err := NewJSONConverter().Convert(nil, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestAlertsToXLSX(t *testing.T) {
	resolved := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)
	alerts := []models.Alert{
		{ID: "a1", DocumentID: "D1", RuleID: "r1", Status: models.AlertActive, TriggeredAt: time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC), Evidence: "overdue"},
		{ID: "a2", DocumentID: "D2", RuleID: "r2", Status: models.AlertResolved, TriggeredAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), ResolvedAt: &resolved},
	}

	data, err := AlertsToXLSX(alerts)
	if err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := f.GetRows(alertSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "Alert ID" || rows[1][0] != "a1" || rows[2][0] != "a2" {
		t.Fatalf("rows = %v", rows)
	}
	if rows[1][4] != "2024-03-01T10:05:00Z" || rows[2][5] != "2024-03-02T09:00:00Z" {
		t.Fatalf("timestamps = %v / %v", rows[1], rows[2])
	}
	if rows[1][6] != "overdue" {
		t.Fatalf("evidence = %v", rows[1])
	}
}
