// Package analysis runs documents through extraction, rule evaluation and
// alert reconciliation.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/feichai0017/document-alerts/internal/models"
	"github.com/feichai0017/document-alerts/internal/rules"
	"github.com/feichai0017/document-alerts/pkg/converters"
	"github.com/feichai0017/document-alerts/pkg/logger"
)

// DocumentSource yields the stored bytes of a document. A missing document
// must be reported with an error matching models.ErrDocumentNotFound.
type DocumentSource interface {
	Fetch(ctx context.Context, documentID string) (*models.Document, error)
}

type TextExtractor interface {
	Extract(ctx context.Context, doc *models.Document) (*models.ExtractedDocument, error)
}

// RuleSource returns the rule set in effect.
type RuleSource interface {
	Current() *rules.RuleSet
}

type Reconciler interface {
	Reconcile(ctx context.Context, documentID string, matches []models.RuleMatch) ([]models.Mutation, error)
}

// ReportSink receives the report of every completed analysis.
type ReportSink interface {
	SaveReport(ctx context.Context, report *converters.AnalysisReport) error
}

type Service struct {
	source     DocumentSource
	extractor  TextExtractor
	rules      RuleSource
	reconciler Reconciler
	reports    ReportSink
	converter  converters.ReportConverter
	timeout    time.Duration
	retries    int
	now        func() time.Time
	logger     logger.Logger
}

type Option func(*Service)

// WithExtractTimeout bounds the extraction step; zero disables the bound.
func WithExtractTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

// WithReportSink persists a report after each successful analysis.
func WithReportSink(sink ReportSink) Option {
	return func(s *Service) {
		s.reports = sink
	}
}

// WithTruncatedRetries sets how often a truncated extraction is retried with
// freshly fetched bytes. Defaults to 1.
func WithTruncatedRetries(n int) Option {
	return func(s *Service) {
		s.retries = n
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(source DocumentSource, extractor TextExtractor, ruleSource RuleSource, reconciler Reconciler, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		source:     source,
		extractor:  extractor,
		rules:      ruleSource,
		reconciler: reconciler,
		converter:  converters.NewJSONConverter(),
		retries:    1,
		now:        time.Now,
		logger:     log.Named("analysis"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze extracts the document text, evaluates the current rule set against
// it and reconciles the document's alerts with the matches. Extraction
// failures are returned without touching alerts.
func (s *Service) Analyze(ctx context.Context, documentID string) (*models.AnalysisResult, error) {
	ctx = logger.ContextWithDocumentID(ctx, documentID)
	log := logger.FromContext(ctx, s.logger)
	started := s.now()

	// one snapshot per run; a concurrent reload does not affect it
	set := s.rules.Current()

	extracted, err := s.extract(ctx, documentID)
	if err != nil {
		log.Warn("Extraction failed", logger.Error(err))
		return nil, err
	}

	matches := rules.Evaluate(extracted, set)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mutations, err := s.reconciler.Reconcile(ctx, documentID, matches)
	if err != nil {
		log.Error("Reconcile failed",
			logger.Int("applied", len(mutations)),
			logger.Error(err),
		)
		return nil, fmt.Errorf("reconcile alerts of %s: %w", documentID, err)
	}

	result := &models.AnalysisResult{
		DocumentID: documentID,
		Pages:      extracted.PageCount(),
		Matches:    matches,
		Mutations:  mutations,
		AnalyzedAt: s.now().UTC(),
	}
	s.saveReport(ctx, extracted, result)

	log.Info("Analysis completed",
		logger.String("ruleSet", set.Version()),
		logger.Int("pages", result.Pages),
		logger.Int("matches", len(matches)),
		logger.Int("mutations", len(mutations)),
		logger.Duration("elapsed", s.now().Sub(started)),
	)
	return result, nil
}

func (s *Service) extract(ctx context.Context, documentID string) (*models.ExtractedDocument, error) {
	for attempt := 0; ; attempt++ {
		doc, err := s.source.Fetch(ctx, documentID)
		if err != nil {
			return nil, fmt.Errorf("fetch document %s: %w", documentID, err)
		}

		extracted, err := s.extractOnce(ctx, doc)
		if err == nil {
			return extracted, nil
		}
		if errors.Is(err, models.ErrTruncated) && attempt < s.retries && ctx.Err() == nil {
			s.logger.Warn("Truncated extraction, fetching document again",
				logger.String("documentId", documentID),
				logger.Int("attempt", attempt+1),
				logger.Error(err),
			)
			continue
		}
		return nil, err
	}
}

func (s *Service) extractOnce(ctx context.Context, doc *models.Document) (*models.ExtractedDocument, error) {
	if s.timeout <= 0 {
		return s.extractor.Extract(ctx, doc)
	}

	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	extracted, err := s.extractor.Extract(tctx, doc)
	if err != nil && ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("extraction of %s exceeded %s: %w", doc.ID, s.timeout, context.DeadlineExceeded)
	}
	return extracted, err
}

func (s *Service) saveReport(ctx context.Context, extracted *models.ExtractedDocument, result *models.AnalysisResult) {
	if s.reports == nil {
		return
	}
	report, err := s.converter.Convert(extracted, result)
	if err == nil {
		err = s.reports.SaveReport(context.WithoutCancel(ctx), report)
	}
	if err != nil {
		s.logger.Error("Failed to save analysis report",
			logger.String("documentId", result.DocumentID),
			logger.Error(err),
		)
	}
}
