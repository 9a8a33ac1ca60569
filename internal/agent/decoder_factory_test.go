package agent

import (
	"testing"

	"github.com/feichai0017/document-alerts/internal/agent/document/pdf"
	"github.com/feichai0017/document-alerts/pkg/logger"
)

func TestDecoderFactoryResolvesByTypeOrExtension(t *testing.T) {
	f := NewDecoderFactory(logger.NewNop(), pdf.NewDecoder(logger.NewNop(), 1))

	for _, ct := range []string{"application/pdf", "application/pdf; charset=binary", ".pdf", ".PDF"} {
		if _, err := f.GetDecoder(ct); err != nil {
			t.Errorf("GetDecoder(%q): %v", ct, err)
		}
	}
	for _, ct := range []string{"image/png", ".docx", ""} {
		if _, err := f.GetDecoder(ct); err == nil {
			t.Errorf("GetDecoder(%q) succeeded, want error", ct)
		}
	}
}
