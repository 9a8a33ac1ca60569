package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-alerts/internal/models"
	"github.com/feichai0017/document-alerts/internal/service/document"
	"github.com/feichai0017/document-alerts/pkg/logger"
	"github.com/feichai0017/document-alerts/pkg/queue"
)

// Analyzer runs a synchronous analysis.
type Analyzer interface {
	Analyze(ctx context.Context, documentID string) (*models.AnalysisResult, error)
}

// AlertReader lists alerts by status.
type AlertReader interface {
	FindByStatus(ctx context.Context, status models.AlertStatus) ([]models.Alert, error)
}

type Handlers struct {
	Document *DocumentHandler
	Alert    *AlertHandler
}

// Deps collects what the handlers need. Queue and Statuses may be nil, which
// disables asynchronous analysis.
type Deps struct {
	Documents   document.DocumentRepository
	Analyzer    Analyzer
	Alerts      AlertReader
	Queue       queue.Queue
	Statuses    queue.StatusStore
	MaxFileSize int64
}

func NewHandlers(deps Deps, log logger.Logger) *Handlers {
	return &Handlers{
		Document: NewDocumentHandler(deps, log),
		Alert:    NewAlertHandler(deps.Alerts, log),
	}
}

// ErrorResponse 定义错误响应结构
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, document.ErrInvalidDocument):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrDocumentNotFound), errors.Is(err, queue.ErrStatusNotFound):
		return http.StatusNotFound
	case errors.Is(err, queue.ErrAlreadyQueued):
		return http.StatusConflict
	case errors.Is(err, models.ErrDecode), errors.Is(err, models.ErrTruncated):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// handleError 统一错误处理. Server-side failures are reported without details.
func handleError(c *gin.Context, log logger.Logger, message string, err error) {
	status := statusFor(err)
	log = logger.FromContext(c.Request.Context(), log)

	response := ErrorResponse{Error: http.StatusText(status), Message: message}
	if status >= http.StatusInternalServerError {
		log.Error(message,
			logger.String("path", c.Request.URL.Path),
			logger.Error(err),
		)
		if status == http.StatusInternalServerError {
			response = ErrorResponse{Error: "internal error"}
		}
	} else {
		log.Warn(message,
			logger.String("path", c.Request.URL.Path),
			logger.Error(err),
		)
		response.Message = err.Error()
		var invalid *document.ValidationFailedError
		if errors.As(err, &invalid) {
			response.Details = invalid.Result.Errors
		}
	}

	c.AbortWithStatusJSON(status, response)
}
