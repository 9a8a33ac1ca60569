package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	cfg "github.com/feichai0017/document-alerts/config"
	"github.com/feichai0017/document-alerts/internal/models"
	"github.com/feichai0017/document-alerts/pkg/logger"
)

type GCSStorage struct {
	client     *storage.Client
	bucketName string
	logger     logger.Logger
}

func (g *GCSStorage) bucket() *storage.BucketHandle {
	return g.client.Bucket(g.bucketName)
}

func (g *GCSStorage) Store(ctx context.Context, reader io.Reader, key string) (string, error) {
	w := g.bucket().Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, reader); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to write object: %w", err)
	}
	if err := w.Close(); err != nil {
		g.logger.Error("Failed to store file to GCS",
			logger.String("bucket", g.bucketName),
			logger.String("key", key),
			logger.Error(err),
		)
		return "", fmt.Errorf("failed to store file: %w", err)
	}
	return key, nil
}

func (g *GCSStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := g.bucket().Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", models.ErrDocumentNotFound, key)
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return r, nil
}

func (g *GCSStorage) Delete(ctx context.Context, key string) error {
	if err := g.bucket().Object(key).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (g *GCSStorage) CleanupBefore(ctx context.Context, threshold time.Time) error {
	it := g.bucket().Objects(ctx, nil)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to list objects: %w", err)
		}
		if !attrs.Updated.Before(threshold) {
			continue
		}
		if err := g.Delete(ctx, attrs.Name); err != nil {
			g.logger.Error("Failed to delete expired object",
				logger.String("key", attrs.Name),
				logger.Error(err),
			)
			continue
		}
		g.logger.Info("Deleted expired object",
			logger.String("key", attrs.Name),
			logger.Time("lastModified", attrs.Updated),
		)
	}
}

func NewGCSStorage(ctx context.Context, log logger.Logger) (*GCSStorage, error) {
	gcsConfig := cfg.GetGCSConfig()

	var opts []option.ClientOption
	if gcsConfig.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(gcsConfig.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	if _, err := client.Bucket(gcsConfig.BucketName).Attrs(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to verify bucket existence: %w", err)
	}

	return &GCSStorage{
		client:     client,
		bucketName: gcsConfig.BucketName,
		logger:     log.Named("storage.gcs"),
	}, nil
}

func GetClient(ctx context.Context, log logger.Logger) (*GCSStorage, error) {
	return NewGCSStorage(ctx, log)
}
