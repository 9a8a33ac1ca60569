package validator

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/feichai0017/document-alerts/pkg/logger"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// minimalPDF writes a well-formed PDF with n empty pages.
func minimalPDF(n int) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	kids := make([]string, n)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", 3+i)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))
	for i := 0; i < n; i++ {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func newTestValidator() *DocumentValidator {
	return NewDocumentValidator(logger.NewNop(), &ValidatorConfig{
		MaxFileSize:  1024,
		AllowedTypes: DefaultAllowedTypes(),
		MaxPageCount: 2,
	})
}

func codes(r *ValidationResult) []string {
	out := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		out[i] = e.Code
	}
	return out
}

func TestValidateAcceptsSupportedDocuments(t *testing.T) {
	v := newTestValidator()

	png := v.Validate("scan.PNG", "image/png", pngHeader)
	if !png.IsValid {
		t.Fatalf("png rejected: %v", codes(png))
	}
	if png.FileInfo.Extension != ".png" || png.FileInfo.MimeType != "image/png" || len(png.FileInfo.Hash) != 64 {
		t.Fatalf("file info = %+v", png.FileInfo)
	}
	if png.Err() != nil {
		t.Fatalf("Err = %v", png.Err())
	}

	pdf := v.Validate("invoice.pdf", "", minimalPDF(2))
	if !pdf.IsValid {
		t.Fatalf("pdf rejected: %v", pdf.Errors)
	}
	if pdf.FileInfo.Pages != 2 {
		t.Fatalf("pages = %d, want 2", pdf.FileInfo.Pages)
	}
}

func TestValidateRejects(t *testing.T) {
	v := newTestValidator()
	tests := []struct {
		name     string
		filename string
		declared string
		content  []byte
		code     string
	}{
		{"empty", "a.png", "", nil, "EMPTY_FILE"},
		{"too large", "a.png", "", append(append([]byte{}, pngHeader...), make([]byte, 2048)...), "FILE_TOO_LARGE"},
		{"extension", "a.docx", "", []byte("PK\x03\x04"), "INVALID_FILE_TYPE"},
		{"sniffed type", "a.png", "", []byte("just some text"), "INVALID_MIME_TYPE"},
		{"declared type", "a.png", "application/pdf", pngHeader, "CONTENT_TYPE_MISMATCH"},
		{"too many pages", "a.pdf", "application/pdf", minimalPDF(3), "TOO_MANY_PAGES"},
		{"broken pdf", "a.pdf", "", []byte("%PDF-1.4\nthis is not a pdf body"), "INVALID_PDF"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := v.Validate(tt.filename, tt.declared, tt.content)
			if r.IsValid {
				t.Fatal("expected rejection")
			}
			found := false
			for _, c := range codes(r) {
				if c == tt.code {
					found = true
				}
			}
			if !found {
				t.Fatalf("codes = %v, want %s", codes(r), tt.code)
			}
			if r.Err() == nil {
				t.Fatal("Err() = nil for invalid result")
			}
		})
	}
}

func TestContentType(t *testing.T) {
	v := newTestValidator()
	if got := v.ContentType(".JPG"); got != "image/jpeg" {
		t.Fatalf("ContentType(.JPG) = %q", got)
	}
	if got := v.ContentType(".exe"); got != "" {
		t.Fatalf("ContentType(.exe) = %q", got)
	}
}
