package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/feichai0017/document-alerts/config"
	"github.com/feichai0017/document-alerts/internal/agent/document"
	"github.com/feichai0017/document-alerts/internal/agent/document/image"
	"github.com/feichai0017/document-alerts/internal/agent/document/pdf"
	"github.com/feichai0017/document-alerts/pkg/logger"
)

// 扩展名到 MIME 类型的映射
var extToMIME = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".pdf":  "application/pdf",
}

type DecoderFactory struct {
	decoders []document.Decoder
	logger   logger.Logger
}

// NewDecoderFactory returns a factory over the given decoders, consulted in order.
func NewDecoderFactory(log logger.Logger, decoders ...document.Decoder) *DecoderFactory {
	return &DecoderFactory{
		decoders: decoders,
		logger:   log,
	}
}

// NewDefaultDecoderFactory wires the PDF decoder plus the configured image decoder.
func NewDefaultDecoderFactory(ctx context.Context, cfg *config.EngineConfig, log logger.Logger) (*DecoderFactory, error) {
	decoders := []document.Decoder{pdf.NewDecoder(log, cfg.ExtractWorkers)}

	switch cfg.ImageDecoder {
	case "textract":
		textract, err := image.NewTextractDecoder(ctx, config.GetTextractConfig(), log)
		if err != nil {
			return nil, fmt.Errorf("failed to create textract decoder: %w", err)
		}
		decoders = append(decoders, textract)
	case "tesseract":
		decoders = append(decoders, image.NewOCRDecoder(config.GetOCRConfig(), log))
	case "", "none":
	default:
		return nil, fmt.Errorf("unsupported image decoder: %s", cfg.ImageDecoder)
	}

	return NewDecoderFactory(log, decoders...), nil
}

// GetDecoder accepts either a content type or a file extension.
func (f *DecoderFactory) GetDecoder(contentType string) (document.Decoder, error) {
	mimeType := contentType
	if strings.HasPrefix(contentType, ".") {
		mimeType = extToMIME[strings.ToLower(contentType)]
	}

	for _, d := range f.decoders {
		if d.CanDecode(mimeType) {
			return d, nil
		}
	}

	f.logger.Warn("No decoder found",
		logger.String("contentType", contentType),
	)
	return nil, fmt.Errorf("unsupported content type: %q", contentType)
}

func (f *DecoderFactory) Close() error {
	for _, d := range f.decoders {
		if err := d.Close(); err != nil {
			return err
		}
	}
	return nil
}
