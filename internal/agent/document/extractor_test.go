package document

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/feichai0017/document-alerts/internal/models"
	"github.com/feichai0017/document-alerts/pkg/logger"
)

type fakeSource struct {
	pages    [][]string
	failPage int
	failErr  error
	maxDelay time.Duration
	inFlight int32
	peak     int32
}

func (s *fakeSource) NumPage() int { return len(s.pages) }

func (s *fakeSource) PageFragments(ctx context.Context, index int) ([]string, error) {
	n := atomic.AddInt32(&s.inFlight, 1)
	defer atomic.AddInt32(&s.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&s.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&s.peak, peak, n) {
			break
		}
	}

	if s.maxDelay > 0 {
		select {
		case <-time.After(time.Duration(rand.Int63n(int64(s.maxDelay)))):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if index == s.failPage {
		return nil, s.failErr
	}
	return s.pages[index], nil
}

func (s *fakeSource) Close() error { return nil }

type fakeDecoder struct {
	src     *fakeSource
	openErr error
}

func (d *fakeDecoder) CanDecode(contentType string) bool { return contentType == "application/test" }

func (d *fakeDecoder) Open(ctx context.Context, content []byte) (PageSource, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	return d.src, nil
}

func (d *fakeDecoder) Close() error { return nil }

type fakeResolver struct {
	decoder Decoder
}

func (r fakeResolver) GetDecoder(contentType string) (Decoder, error) {
	if r.decoder.CanDecode(contentType) {
		return r.decoder, nil
	}
	return nil, fmt.Errorf("unsupported content type: %q", contentType)
}

func testDoc() *models.Document {
	return &models.Document{ID: "doc-1", ContentType: "application/test", Content: []byte("x")}
}

func TestExtractKeepsPageOrderUnderConcurrency(t *testing.T) {
	pages := make([][]string, 40)
	for i := range pages {
		pages[i] = []string{fmt.Sprintf("page-%d", i), "body"}
	}
	src := &fakeSource{pages: pages, failPage: -1, maxDelay: 5 * time.Millisecond}
	e := NewExtractor(fakeResolver{&fakeDecoder{src: src}}, 4, logger.NewNop())

	for run := 0; run < 5; run++ {
		got, err := e.Extract(context.Background(), testDoc())
		if err != nil {
			t.Fatalf("Extract: %v", err)
		}
		if got.PageCount() != len(pages) {
			t.Fatalf("page count = %d, want %d", got.PageCount(), len(pages))
		}
		for i, p := range got.Pages {
			if p.Index != i {
				t.Fatalf("pages[%d].Index = %d", i, p.Index)
			}
			if want := fmt.Sprintf("page-%d body", i); p.Text != want {
				t.Fatalf("pages[%d].Text = %q, want %q", i, p.Text, want)
			}
		}
	}
	if peak := atomic.LoadInt32(&src.peak); peak > 4 {
		t.Fatalf("peak concurrency = %d, want <= 4", peak)
	}
}

func TestExtractFailsWholeDocumentOnPageError(t *testing.T) {
	src := &fakeSource{
		pages:    [][]string{{"one"}, {"two"}, {"three"}},
		failPage: 1,
		failErr:  models.NewTruncatedError("", 1, errors.New("missing object")),
	}
	e := NewExtractor(fakeResolver{&fakeDecoder{src: src}}, 2, logger.NewNop())

	got, err := e.Extract(context.Background(), testDoc())
	if got != nil {
		t.Fatalf("expected no partial result, got %d pages", got.PageCount())
	}
	if !errors.Is(err, models.ErrTruncated) {
		t.Fatalf("err = %v, want ErrTruncated", err)
	}
	var ae *models.AnalysisError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %T, want *AnalysisError", err)
	}
	if ae.DocumentID != "doc-1" || ae.Page != 1 {
		t.Fatalf("error context = %q page %d, want doc-1 page 1", ae.DocumentID, ae.Page)
	}
}

func TestExtractWrapsUnknownPageErrorsAsDecode(t *testing.T) {
	src := &fakeSource{pages: [][]string{{"a"}, {"b"}}, failPage: 0, failErr: errors.New("bad stream")}
	e := NewExtractor(fakeResolver{&fakeDecoder{src: src}}, 1, logger.NewNop())

	_, err := e.Extract(context.Background(), testDoc())
	if !errors.Is(err, models.ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
	if !strings.Contains(err.Error(), "bad stream") {
		t.Fatalf("cause lost: %v", err)
	}
}

func TestExtractUnsupportedContentType(t *testing.T) {
	e := NewExtractor(fakeResolver{&fakeDecoder{}}, 1, logger.NewNop())
	doc := testDoc()
	doc.ContentType = "application/msword"

	if _, err := e.Extract(context.Background(), doc); !errors.Is(err, models.ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
}

func TestExtractNoPages(t *testing.T) {
	src := &fakeSource{failPage: -1}
	e := NewExtractor(fakeResolver{&fakeDecoder{src: src}}, 1, logger.NewNop())

	if _, err := e.Extract(context.Background(), testDoc()); !errors.Is(err, models.ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
}

func TestExtractHonoursCancellation(t *testing.T) {
	pages := make([][]string, 8)
	for i := range pages {
		pages[i] = []string{"x"}
	}
	src := &fakeSource{pages: pages, failPage: -1, maxDelay: 50 * time.Millisecond}
	e := NewExtractor(fakeResolver{&fakeDecoder{src: src}}, 2, logger.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	got, err := e.Extract(ctx, testDoc())
	if got != nil {
		t.Fatalf("expected no result after cancellation")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}
