package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-alerts/internal/models"
	"github.com/feichai0017/document-alerts/pkg/converters"
	"github.com/feichai0017/document-alerts/pkg/logger"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type AlertHandler struct {
	alerts AlertReader
	logger logger.Logger
}

// AlertView is the dashboard representation of an alert.
type AlertView struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"documentId"`
	RuleID      string    `json:"ruleId"`
	Status      string    `json:"status"`
	TriggeredAt time.Time `json:"triggeredAt"`
}

func NewAlertHandler(alerts AlertReader, log logger.Logger) *AlertHandler {
	return &AlertHandler{alerts: alerts, logger: log.Named("http.alerts")}
}

// List 按状态列出告警, most recently triggered first.
func (h *AlertHandler) List(c *gin.Context) {
	status, ok := h.status(c)
	if !ok {
		return
	}

	alerts, err := h.alerts.FindByStatus(c.Request.Context(), status)
	if err != nil {
		handleError(c, h.logger, "Failed to list alerts", err)
		return
	}

	views := make([]AlertView, len(alerts))
	for i, a := range alerts {
		views[i] = AlertView{
			ID:          a.ID,
			DocumentID:  a.DocumentID,
			RuleID:      a.RuleID,
			Status:      string(a.Status),
			TriggeredAt: a.TriggeredAt,
		}
	}
	c.JSON(http.StatusOK, views)
}

// Export 导出告警为 XLSX
func (h *AlertHandler) Export(c *gin.Context) {
	status, ok := h.status(c)
	if !ok {
		return
	}

	alerts, err := h.alerts.FindByStatus(c.Request.Context(), status)
	if err != nil {
		handleError(c, h.logger, "Failed to export alerts", err)
		return
	}

	data, err := converters.AlertsToXLSX(alerts)
	if err != nil {
		handleError(c, h.logger, "Failed to render export", err)
		return
	}

	filename := fmt.Sprintf("alerts_%s_%s.xlsx", strings.ToLower(string(status)), time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}

func (h *AlertHandler) status(c *gin.Context) (models.AlertStatus, bool) {
	status := models.AlertStatus(strings.ToUpper(c.DefaultQuery("status", string(models.AlertActive))))
	if !status.Valid() {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Bad Request",
			Message: fmt.Sprintf("unknown alert status %q", c.Query("status")),
		})
		return "", false
	}
	return status, true
}
