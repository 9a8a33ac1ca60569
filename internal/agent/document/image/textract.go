package image

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/feichai0017/document-alerts/config"
	"github.com/feichai0017/document-alerts/internal/agent/document"
	"github.com/feichai0017/document-alerts/internal/models"
	"github.com/feichai0017/document-alerts/pkg/logger"
)

// TextractAPI is the part of the Textract client the decoder uses.
type TextractAPI interface {
	DetectDocumentText(ctx context.Context, params *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
}

// TextractDecoder recognizes text lines of a scanned page with AWS Textract.
type TextractDecoder struct {
	client        TextractAPI
	minConfidence float32
	logger        logger.Logger
}

func NewTextractDecoder(ctx context.Context, cfg *config.TextractConfig, log logger.Logger) (*TextractDecoder, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	client := textract.NewFromConfig(awsCfg, func(o *textract.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewTextractDecoderWithClient(client, float32(cfg.MinConfidence), log), nil
}

func NewTextractDecoderWithClient(client TextractAPI, minConfidence float32, log logger.Logger) *TextractDecoder {
	return &TextractDecoder{
		client:        client,
		minConfidence: minConfidence,
		logger:        log.Named("textract"),
	}
}

func (d *TextractDecoder) CanDecode(contentType string) bool {
	return canDecode(contentType)
}

func (d *TextractDecoder) Open(ctx context.Context, content []byte) (document.PageSource, error) {
	if len(content) == 0 {
		return nil, models.NewDecodeError("", -1, fmt.Errorf("empty image"))
	}
	return &singlePage{
		recognize: func(ctx context.Context) ([]string, error) {
			return d.recognize(ctx, content)
		},
	}, nil
}

func (d *TextractDecoder) recognize(ctx context.Context, content []byte) ([]string, error) {
	out, err := d.client.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{Bytes: content},
	})
	if err != nil {
		var invalid *types.InvalidParameterException
		var unsupported *types.UnsupportedDocumentException
		var badDoc *types.BadDocumentException
		if asAny(err, &invalid, &unsupported, &badDoc) {
			return nil, models.NewDecodeError("", 0, err)
		}
		return nil, fmt.Errorf("failed to detect document text: %w", err)
	}

	fragments := make([]string, 0, len(out.Blocks))
	for _, block := range out.Blocks {
		if block.BlockType != types.BlockTypeLine || block.Text == nil {
			continue
		}
		if block.Confidence != nil && *block.Confidence < d.minConfidence {
			continue
		}
		fragments = append(fragments, aws.ToString(block.Text))
	}

	d.logger.Debug("Textract completed", logger.Int("lines", len(fragments)))
	return fragments, nil
}

func (d *TextractDecoder) Close() error {
	return nil
}

func asAny(err error, targets ...interface{}) bool {
	for _, t := range targets {
		if errors.As(err, t) {
			return true
		}
	}
	return false
}
