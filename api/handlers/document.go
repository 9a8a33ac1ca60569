package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-alerts/internal/models"
	"github.com/feichai0017/document-alerts/internal/service/document"
	"github.com/feichai0017/document-alerts/pkg/logger"
	"github.com/feichai0017/document-alerts/pkg/queue"
)

type DocumentHandler struct {
	documents   document.DocumentRepository
	analyzer    Analyzer
	queue       queue.Queue
	statuses    queue.StatusStore
	maxFileSize int64
	logger      logger.Logger
}

// UploadResponse 定义上传响应结构
type UploadResponse struct {
	Document *models.DocumentMetadata `json:"document"`
	TaskID   string                   `json:"taskId,omitempty"`
	// EnqueueError is set when the document was stored but could not be
	// queued; it can be queued again through the enqueue endpoint.
	EnqueueError string `json:"enqueueError,omitempty"`
}

func NewDocumentHandler(deps Deps, log logger.Logger) *DocumentHandler {
	maxSize := deps.MaxFileSize
	if maxSize <= 0 {
		maxSize = 50 * 1024 * 1024
	}
	return &DocumentHandler{
		documents:   deps.Documents,
		analyzer:    deps.Analyzer,
		queue:       deps.Queue,
		statuses:    deps.Statuses,
		maxFileSize: maxSize,
		logger:      log.Named("http.documents"),
	}
}

// Upload 上传文档. With enqueue=true the analysis is queued right away.
func (h *DocumentHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "Bad Request", Message: "Invalid file upload"})
		return
	}
	defer file.Close()

	// one byte past the limit lets the validator report oversized files
	content, err := io.ReadAll(io.LimitReader(file, h.maxFileSize+1))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "Bad Request", Message: "Failed to read file"})
		return
	}

	meta, err := h.documents.Upload(c.Request.Context(), header.Filename, header.Header.Get("Content-Type"), content)
	if err != nil {
		handleError(c, h.logger, "Failed to upload document", err)
		return
	}

	resp := UploadResponse{Document: meta}
	if c.Query("enqueue") == "true" {
		taskID, err := h.enqueue(c, meta.ID)
		if err != nil {
			logger.FromContext(c.Request.Context(), h.logger).Warn("Uploaded document not queued",
				logger.String("documentId", meta.ID),
				logger.Error(err),
			)
			resp.EnqueueError = "analysis not queued"
			if statusFor(err) < http.StatusInternalServerError {
				resp.EnqueueError = err.Error()
			}
		}
		resp.TaskID = taskID
	}

	c.JSON(http.StatusCreated, resp)
}

// Analyze 同步分析文档
func (h *DocumentHandler) Analyze(c *gin.Context) {
	documentID := c.Param("id")
	ctx := c.Request.Context()

	started := time.Now().UTC()
	result, err := h.analyzer.Analyze(ctx, documentID)
	h.recordStatus(c, documentID, started, result, err)
	if err != nil {
		handleError(c, h.logger, "Analysis failed", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Enqueue 异步分析文档
func (h *DocumentHandler) Enqueue(c *gin.Context) {
	documentID := c.Param("id")
	if _, err := h.documents.Metadata(c.Request.Context(), documentID); err != nil {
		handleError(c, h.logger, "Unknown document", err)
		return
	}

	taskID, err := h.enqueue(c, documentID)
	if err != nil {
		handleError(c, h.logger, "Failed to enqueue analysis", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"documentId": documentID,
		"taskId":     taskID,
		"status":     models.StatusPending,
	})
}

// GetAnalysis 获取分析状态
func (h *DocumentHandler) GetAnalysis(c *gin.Context) {
	if h.statuses == nil {
		c.AbortWithStatusJSON(http.StatusNotImplemented, ErrorResponse{Error: "analysis status unavailable"})
		return
	}

	status, err := h.statuses.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, h.logger, "Failed to get analysis status", err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetReport 下载分析报告
func (h *DocumentHandler) GetReport(c *gin.Context) {
	documentID := c.Param("id")
	report, err := h.documents.Report(c.Request.Context(), documentID)
	if err != nil {
		handleError(c, h.logger, "Failed to get report", err)
		return
	}

	data, err := report.Marshal()
	if err != nil {
		handleError(c, h.logger, "Failed to serialize report", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=report_%s.json", documentID))
	c.Data(http.StatusOK, "application/json", data)
}

func (h *DocumentHandler) enqueue(c *gin.Context, documentID string) (string, error) {
	if h.queue == nil {
		return "", errors.New("analysis queue not configured")
	}
	ctx := c.Request.Context()
	taskID, err := h.queue.EnqueueAnalysis(ctx, documentID, 2)
	if err != nil {
		return "", err
	}
	if h.statuses != nil {
		if err := h.statuses.SaveStatus(ctx, &queue.AnalysisStatus{
			DocumentID: documentID,
			Status:     models.StatusPending,
			StartedAt:  time.Now().UTC(),
		}); err != nil {
			h.logger.Error("Failed to save pending status",
				logger.String("documentId", documentID),
				logger.Error(err),
			)
		}
	}
	return taskID, nil
}

func (h *DocumentHandler) recordStatus(c *gin.Context, documentID string, started time.Time, result *models.AnalysisResult, err error) {
	if h.statuses == nil {
		return
	}
	finished := time.Now().UTC()
	status := &queue.AnalysisStatus{
		DocumentID: documentID,
		Status:     models.StatusCompleted,
		Attempt:    1,
		StartedAt:  started,
		FinishedAt: &finished,
	}
	if err != nil {
		status.Status = models.StatusFailed
		status.Error = http.StatusText(statusFor(err))
	} else {
		status.Matches = len(result.Matches)
		status.Mutations = len(result.Mutations)
	}
	if err := h.statuses.SaveStatus(c.Request.Context(), status); err != nil {
		h.logger.Error("Failed to save analysis status",
			logger.String("documentId", documentID),
			logger.Error(err),
		)
	}
}
