package pdf

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/feichai0017/document-alerts/internal/agent/document"
	"github.com/feichai0017/document-alerts/internal/models"
	"github.com/feichai0017/document-alerts/pkg/logger"
)

const mimeType = "application/pdf"

// Decoder reads PDF text content with ledongthuc/pdf.
type Decoder struct {
	logger   logger.Logger
	poolSize int
}

func NewDecoder(log logger.Logger, poolSize int) *Decoder {
	if poolSize <= 0 {
		poolSize = 4
	}
	return &Decoder{
		logger:   log.Named("pdf"),
		poolSize: poolSize,
	}
}

func (d *Decoder) CanDecode(contentType string) bool {
	return document.MediaType(contentType) == mimeType
}

// Open parses the cross-reference table and page tree. The reader is not safe
// for concurrent page access, so the page source keeps a small pool of readers
// over the same bytes.
func (d *Decoder) Open(ctx context.Context, content []byte) (document.PageSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := openReader(content)
	if err != nil {
		return nil, models.NewDecodeError("", -1, err)
	}

	src := &pageSource{
		content: content,
		numPage: r.NumPage(),
		pool:    make(chan *pdf.Reader, d.poolSize),
	}
	src.pool <- r

	d.logger.Debug("Opened PDF",
		logger.Int("pages", src.numPage),
		logger.Int("size", len(content)),
	)
	return src, nil
}

func (d *Decoder) Close() error {
	return nil
}

type pageSource struct {
	content []byte
	numPage int
	pool    chan *pdf.Reader
}

func (s *pageSource) NumPage() int {
	return s.numPage
}

func (s *pageSource) PageFragments(ctx context.Context, index int) ([]string, error) {
	if index < 0 || index >= s.numPage {
		return nil, fmt.Errorf("page index %d out of range [0,%d)", index, s.numPage)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r, err := s.acquire()
	if err != nil {
		return nil, models.NewDecodeError("", index, err)
	}

	page := r.Page(index + 1)
	if page.V.IsNull() {
		s.release(r)
		return nil, models.NewTruncatedError("", index,
			fmt.Errorf("page %d of %d declared pages is missing", index+1, s.numPage))
	}

	texts, err := pageTexts(page)
	if err != nil {
		// the reader may be left mid-stream; drop it instead of pooling it
		return nil, models.NewDecodeError("", index, err)
	}
	s.release(r)

	return Runs(texts), nil
}

func (s *pageSource) Close() error {
	for {
		select {
		case <-s.pool:
		default:
			return nil
		}
	}
}

func (s *pageSource) acquire() (*pdf.Reader, error) {
	select {
	case r := <-s.pool:
		return r, nil
	default:
		return openReader(s.content)
	}
}

func (s *pageSource) release(r *pdf.Reader) {
	select {
	case s.pool <- r:
	default:
	}
}

// openReader converts parser panics on malformed input into errors.
func openReader(content []byte) (r *pdf.Reader, err error) {
	defer func() {
		if p := recover(); p != nil {
			r, err = nil, fmt.Errorf("malformed pdf: %v", p)
		}
	}()
	br := bytes.NewReader(content)
	return pdf.NewReader(br, br.Size())
}

func pageTexts(page pdf.Page) ([]pdf.Text, error) {
	return readContent(func() []pdf.Text { return page.Content().Text })
}

// readContent converts a content stream parser panic into an error.
func readContent(read func() []pdf.Text) (texts []pdf.Text, err error) {
	defer func() {
		if p := recover(); p != nil {
			texts, err = nil, fmt.Errorf("malformed content stream: %v", p)
		}
	}()
	return read(), nil
}
