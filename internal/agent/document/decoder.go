package document

import (
	"context"
	"mime"
	"strings"
)

// PageSource is an opened, paginated document.
type PageSource interface {
	// NumPage returns the page count the document declares.
	NumPage() int
	// PageFragments returns the text fragments of the 0-based page index in
	// the order the decoder emits them. Safe for concurrent use.
	PageFragments(ctx context.Context, index int) ([]string, error)
	Close() error
}

// Decoder 文档解码器接口
type Decoder interface {
	// CanDecode 检查是否可以解码指定 MIME 类型的文件
	CanDecode(contentType string) bool

	// Open 打开文档；格式错误时返回 models.ErrDecode
	Open(ctx context.Context, content []byte) (PageSource, error)

	// Close 清理资源
	Close() error
}

// MediaType strips parameters from a content type and lowercases it.
func MediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}
