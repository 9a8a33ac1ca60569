package image

import (
	"context"
	"fmt"
	"sync"

	"github.com/feichai0017/document-alerts/internal/agent/document"
)

var supportedTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/tiff": true,
}

func canDecode(contentType string) bool {
	return supportedTypes[document.MediaType(contentType)]
}

// singlePage is an image document: one page whose fragments are recognized
// on first access.
type singlePage struct {
	once      sync.Once
	recognize func(ctx context.Context) ([]string, error)
	fragments []string
	err       error
}

func (p *singlePage) NumPage() int {
	return 1
}

func (p *singlePage) PageFragments(ctx context.Context, index int) ([]string, error) {
	if index != 0 {
		return nil, fmt.Errorf("page index %d out of range [0,1)", index)
	}
	p.once.Do(func() {
		p.fragments, p.err = p.recognize(ctx)
	})
	return p.fragments, p.err
}

func (p *singlePage) Close() error {
	return nil
}
