package document

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/document-alerts/internal/models"
	"github.com/feichai0017/document-alerts/internal/utils/validator"
	"github.com/feichai0017/document-alerts/pkg/converters"
	"github.com/feichai0017/document-alerts/pkg/logger"
	"github.com/feichai0017/document-alerts/pkg/storage"
)

// ErrInvalidDocument is returned by Upload when validation rejects the file.
var ErrInvalidDocument = errors.New("invalid document")

// ValidationFailedError carries the validator findings of a rejected upload.
type ValidationFailedError struct {
	Result *validator.ValidationResult
}

func (e *ValidationFailedError) Error() string {
	return e.Result.Err().Error()
}

func (e *ValidationFailedError) Is(target error) bool {
	return target == ErrInvalidDocument
}

type DocumentService struct {
	storage   storage.Storage
	validator *validator.DocumentValidator
	logger    logger.Logger
	now       func() time.Time
}

func NewService(store storage.Storage, v *validator.DocumentValidator, log logger.Logger) *DocumentService {
	return &DocumentService{
		storage:   store,
		validator: v,
		logger:    log.Named("documents"),
		now:       time.Now,
	}
}

func contentKey(id string) string  { return fmt.Sprintf("documents/%s", id) }
func metadataKey(id string) string { return fmt.Sprintf("documents/%s.json", id) }
func reportKey(id string) string   { return fmt.Sprintf("report:%s", id) }

// Upload validates and stores a document, returning its metadata.
func (s *DocumentService) Upload(ctx context.Context, filename, contentType string, content []byte) (*models.DocumentMetadata, error) {
	s.logger.Info("Starting document upload",
		logger.String("filename", filename),
		logger.Int("size", len(content)),
	)

	// 验证文件
	result := s.validator.Validate(filename, contentType, content)
	if !result.IsValid {
		return nil, &ValidationFailedError{Result: result}
	}

	ext := strings.ToLower(filepath.Ext(filename))
	meta := &models.DocumentMetadata{
		ID:          uuid.New().String(),
		Filename:    filename,
		FileType:    fileType(ext),
		FileSize:    result.FileInfo.Size,
		ContentType: s.validator.ContentType(ext),
		Pages:       result.FileInfo.Pages,
		Hash:        result.FileInfo.Hash,
		CreatedAt:   s.now().UTC(),
	}

	// 存储文件
	if _, err := s.storage.Store(ctx, bytes.NewReader(content), contentKey(meta.ID)); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}
	if err := s.putJSON(ctx, metadataKey(meta.ID), meta); err != nil {
		return nil, fmt.Errorf("failed to store metadata: %w", err)
	}

	s.logger.Info("Document stored",
		logger.String("documentId", meta.ID),
		logger.String("filename", filename),
		logger.String("contentType", meta.ContentType),
	)
	return meta, nil
}

// Fetch loads the document bytes. A missing document yields an error
// matching models.ErrDocumentNotFound.
func (s *DocumentService) Fetch(ctx context.Context, documentID string) (*models.Document, error) {
	meta, err := s.Metadata(ctx, documentID)
	if err != nil {
		return nil, err
	}

	reader, err := s.storage.Get(ctx, contentKey(documentID))
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", documentID, err)
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", documentID, err)
	}

	return &models.Document{
		ID:          documentID,
		ContentType: meta.ContentType,
		Content:     content,
	}, nil
}

func (s *DocumentService) Metadata(ctx context.Context, documentID string) (*models.DocumentMetadata, error) {
	var meta models.DocumentMetadata
	if err := s.getJSON(ctx, metadataKey(documentID), &meta); err != nil {
		return nil, fmt.Errorf("failed to get metadata of %s: %w", documentID, err)
	}
	return &meta, nil
}

// SaveReport persists the report under report:<documentID>, replacing any
// earlier report.
func (s *DocumentService) SaveReport(ctx context.Context, report *converters.AnalysisReport) error {
	data, err := report.Marshal()
	if err != nil {
		return err
	}
	if _, err := s.storage.Store(ctx, bytes.NewReader(data), reportKey(report.DocumentID)); err != nil {
		return fmt.Errorf("failed to store report: %w", err)
	}
	return nil
}

func (s *DocumentService) Report(ctx context.Context, documentID string) (*converters.AnalysisReport, error) {
	var report converters.AnalysisReport
	if err := s.getJSON(ctx, reportKey(documentID), &report); err != nil {
		return nil, fmt.Errorf("failed to get report of %s: %w", documentID, err)
	}
	return &report, nil
}

// Cleanup 清理过期文件
func (s *DocumentService) Cleanup(ctx context.Context, retention time.Duration) error {
	threshold := s.now().Add(-retention)

	if err := s.storage.CleanupBefore(ctx, threshold); err != nil {
		return fmt.Errorf("failed to cleanup storage: %w", err)
	}

	s.logger.Info("Completed documents cleanup",
		logger.Time("threshold", threshold),
	)
	return nil
}

func (s *DocumentService) putJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.storage.Store(ctx, bytes.NewReader(data), key)
	return err
}

func (s *DocumentService) getJSON(ctx context.Context, key string, v interface{}) error {
	reader, err := s.storage.Get(ctx, key)
	if err != nil {
		return err
	}
	defer reader.Close()
	return json.NewDecoder(reader).Decode(v)
}

func fileType(ext string) models.FileType {
	if ext == ".pdf" {
		return models.PDF
	}
	return models.Image
}
