package image

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	"github.com/feichai0017/document-alerts/config"
	"github.com/feichai0017/document-alerts/internal/agent/document"
	"github.com/feichai0017/document-alerts/internal/models"
	"github.com/feichai0017/document-alerts/pkg/logger"
)

// OCRDecoder recognizes text lines of a scanned page with tesseract.
type OCRDecoder struct {
	cfg    *config.OCRConfig
	logger logger.Logger
}

func NewOCRDecoder(cfg *config.OCRConfig, log logger.Logger) *OCRDecoder {
	return &OCRDecoder{
		cfg:    cfg,
		logger: log.Named("ocr"),
	}
}

func (d *OCRDecoder) CanDecode(contentType string) bool {
	return canDecode(contentType)
}

func (d *OCRDecoder) Open(ctx context.Context, content []byte) (document.PageSource, error) {
	img, err := imaging.Decode(bytes.NewReader(content), imaging.AutoOrientation(true))
	if err != nil {
		return nil, models.NewDecodeError("", -1, fmt.Errorf("decode image: %w", err))
	}
	return &singlePage{
		recognize: func(ctx context.Context) ([]string, error) {
			return d.recognize(ctx, img)
		},
	}, nil
}

func (d *OCRDecoder) recognize(ctx context.Context, img image.Image) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, preprocess(img, d.cfg.Contrast), imaging.PNG); err != nil {
		return nil, models.NewDecodeError("", 0, fmt.Errorf("encode preprocessed image: %w", err))
	}

	client := gosseract.NewClient()
	defer client.Close()

	if d.cfg.TessdataDir != "" {
		client.TessdataPrefix = d.cfg.TessdataDir
	}
	if err := client.SetLanguage(strings.Join(d.cfg.Languages, "+")); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, models.NewDecodeError("", 0, err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, models.NewDecodeError("", 0, fmt.Errorf("recognize text lines: %w", err))
	}

	fragments := make([]string, 0, len(boxes))
	dropped := 0
	for _, box := range boxes {
		word := strings.TrimSpace(box.Word)
		if word == "" {
			continue
		}
		if box.Confidence < d.cfg.MinConfidence {
			dropped++
			continue
		}
		fragments = append(fragments, word)
	}

	d.logger.Debug("OCR completed",
		logger.Int("lines", len(fragments)),
		logger.Int("lowConfidence", dropped),
	)
	return fragments, nil
}

func (d *OCRDecoder) Close() error {
	return nil
}

// preprocess converts to grayscale and boosts contrast, which tesseract
// handles better than colour scans.
func preprocess(img image.Image, contrast float64) image.Image {
	gray := imaging.Grayscale(img)
	if contrast == 0 {
		return gray
	}
	return imaging.AdjustContrast(gray, contrast)
}
