package converters

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/feichai0017/document-alerts/internal/models"
)

const alertSheet = "Alerts"

var alertHeaders = []string{"Alert ID", "Document ID", "Rule ID", "Status", "Triggered At", "Resolved At", "Evidence"}

// AlertsToXLSX renders alerts, in the given order, as a single-sheet workbook.
func AlertsToXLSX(alerts []models.Alert) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", alertSheet); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}

	for i, h := range alertHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(alertSheet, cell, h)
	}

	for i, a := range alerts {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(alertSheet, cell, v)
		}
		write(1, a.ID)
		write(2, a.DocumentID)
		write(3, a.RuleID)
		write(4, string(a.Status))
		write(5, a.TriggeredAt.UTC().Format(time.RFC3339))
		if a.ResolvedAt != nil {
			write(6, a.ResolvedAt.UTC().Format(time.RFC3339))
		}
		write(7, a.Evidence)
	}

	_ = f.SetColWidth(alertSheet, "A", "C", 38)
	_ = f.SetColWidth(alertSheet, "D", "D", 12)
	_ = f.SetColWidth(alertSheet, "E", "F", 22)
	_ = f.SetColWidth(alertSheet, "G", "G", 80)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
