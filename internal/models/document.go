package models

import (
	"strings"
	"time"
)

// FileType 文件类型
type FileType string

const (
	PDF   FileType = "pdf"
	Image FileType = "image"
)

// Document is an uploaded document as handed to the extractor. Content is only
// held for the duration of an extraction.
type Document struct {
	ID          string `json:"id"`
	ContentType string `json:"contentType"`
	Content     []byte `json:"-"`
}

// DocumentMetadata 文档元数据
type DocumentMetadata struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	FileType    FileType  `json:"fileType"`
	FileSize    int64     `json:"fileSize"`
	ContentType string    `json:"contentType"`
	Pages       int       `json:"pages"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PageText is the text recovered from one page. Text is Fragments joined with
// a single space.
type PageText struct {
	Index     int      `json:"index"`
	Fragments []string `json:"fragments"`
	Text      string   `json:"text"`
}

// NewPageText builds a PageText from fragments in emission order.
func NewPageText(index int, fragments []string) PageText {
	return PageText{
		Index:     index,
		Fragments: fragments,
		Text:      strings.Join(fragments, " "),
	}
}

// PageBoundary separates pages in the document-wide text.
const PageBoundary = "\f"

// ExtractedDocument holds one PageText per page, in page order.
type ExtractedDocument struct {
	DocumentID string     `json:"documentId"`
	Pages      []PageText `json:"pages"`
}

// PageCount returns the number of extracted pages.
func (d *ExtractedDocument) PageCount() int {
	return len(d.Pages)
}

// FullText joins all pages, keeping page boundaries as PageBoundary.
func (d *ExtractedDocument) FullText() string {
	texts := make([]string, len(d.Pages))
	for i, p := range d.Pages {
		texts[i] = p.Text
	}
	return strings.Join(texts, PageBoundary)
}
