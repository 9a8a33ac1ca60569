package document

import (
	"context"
	"time"

	"github.com/feichai0017/document-alerts/internal/models"
	"github.com/feichai0017/document-alerts/pkg/converters"
)

// DocumentRepository stores uploaded documents and their analysis reports.
type DocumentRepository interface {
	Upload(ctx context.Context, filename, contentType string, content []byte) (*models.DocumentMetadata, error)
	Fetch(ctx context.Context, documentID string) (*models.Document, error)
	Metadata(ctx context.Context, documentID string) (*models.DocumentMetadata, error)
	SaveReport(ctx context.Context, report *converters.AnalysisReport) error
	Report(ctx context.Context, documentID string) (*converters.AnalysisReport, error)
	Cleanup(ctx context.Context, retention time.Duration) error
}
