package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/document-alerts/internal/models"
	"github.com/feichai0017/document-alerts/pkg/logger"
)

// DecoderResolver picks the decoder for a content type.
type DecoderResolver interface {
	GetDecoder(contentType string) (Decoder, error)
}

// Extractor turns a document into page-ordered text.
type Extractor struct {
	decoders DecoderResolver
	workers  int
	logger   logger.Logger
}

func NewExtractor(decoders DecoderResolver, workers int, log logger.Logger) *Extractor {
	if workers <= 0 {
		workers = 4
	}
	return &Extractor{
		decoders: decoders,
		workers:  workers,
		logger:   log.Named("extractor"),
	}
}

// Extract decodes every page of doc. Pages are decoded concurrently but the
// result is always in page order, and any failed page fails the whole call.
func (e *Extractor) Extract(ctx context.Context, doc *models.Document) (*models.ExtractedDocument, error) {
	start := time.Now()

	decoder, err := e.decoders.GetDecoder(doc.ContentType)
	if err != nil {
		return nil, models.NewDecodeError(doc.ID, -1, err)
	}

	src, err := decoder.Open(ctx, doc.Content)
	if err != nil {
		return nil, classify(doc.ID, -1, err)
	}
	defer src.Close()

	numPages := src.NumPage()
	if numPages <= 0 {
		return nil, models.NewDecodeError(doc.ID, -1, errors.New("document declares no pages"))
	}

	pages := make([]models.PageText, numPages)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := 0; i < numPages; i++ {
		index := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fragments, err := src.PageFragments(gctx, index)
			if err != nil {
				return classify(doc.ID, index, err)
			}
			pages[index] = models.NewPageText(index, fragments)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("extract document %s: %w", doc.ID, ctxErr)
		}
		e.logger.Warn("Extraction failed",
			logger.String("documentId", doc.ID),
			logger.Int("pages", numPages),
			logger.Error(err),
		)
		return nil, err
	}

	e.logger.Debug("Extraction completed",
		logger.String("documentId", doc.ID),
		logger.Int("pages", numPages),
		logger.Duration("elapsed", time.Since(start)),
	)

	return &models.ExtractedDocument{DocumentID: doc.ID, Pages: pages}, nil
}

// classify makes sure every extraction failure is a decode or truncation
// error tagged with the document id.
func classify(documentID string, page int, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var ae *models.AnalysisError
	if errors.As(err, &ae) {
		if ae.DocumentID != "" {
			return err
		}
		tagged := *ae
		tagged.DocumentID = documentID
		if tagged.Page < 0 {
			tagged.Page = page
		}
		return &tagged
	}
	return models.NewDecodeError(documentID, page, err)
}
