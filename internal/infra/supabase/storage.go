package supabase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/boddenberg/marketplace-bff-go/internal/infra/resilience"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Storage uploads objects to Supabase Storage buckets.
type Storage struct {
	client   *Client
	bulkhead *resilience.Bulkhead
}

// NewStorage limits concurrent uploads to maxConcurrency.
func NewStorage(client *Client, maxConcurrency int) *Storage {
	return &Storage{client: client, bulkhead: resilience.NewBulkhead(maxConcurrency)}
}

// ObjectName builds a unique object path below prefix keeping the file extension.
func ObjectName(prefix, filename string) string {
	return fmt.Sprintf("%s/%s%s", strings.Trim(prefix, "/"), uuid.NewString(), strings.ToLower(path.Ext(filename)))
}

// PublicURL returns the public address of an object.
func (s *Storage) PublicURL(bucket, objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.client.baseURL, bucket, objectPath)
}

// UploadFile stores body under a fresh object name below prefix.
func (s *Storage) UploadFile(ctx context.Context, bucket, prefix, filename, contentType string, body io.Reader) (string, error) {
	return s.Upload(ctx, bucket, ObjectName(prefix, filename), contentType, body)
}

// Upload stores body at bucket/objectPath, replacing any existing object.
func (s *Storage) Upload(ctx context.Context, bucket, objectPath, contentType string, body io.Reader) (string, error) {
	ctx, span := tracer.Start(ctx, "Supabase.Upload")
	defer span.End()
	span.SetAttributes(attribute.String("bucket", bucket), attribute.String("object", objectPath))

	// Read once so retries can resend the payload.
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read upload body: %w", err)
	}

	if err := s.bulkhead.Acquire(ctx); err != nil {
		return "", err
	}
	defer s.bulkhead.Release()

	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.client.baseURL, bucket, objectPath)
	err = s.client.execute(ctx, "storage", func() error {
		_, err := s.client.send(ctx, http.MethodPost, url, bytes.NewReader(data), map[string]string{
			"Content-Type": contentType,
			"x-upsert":     "true",
		})
		return err
	})
	if err != nil {
		return "", err
	}

	s.client.logger.Info("supabase: object uploaded",
		zap.String("bucket", bucket),
		zap.String("object", objectPath),
		zap.Int("bytes", len(data)),
	)
	return s.PublicURL(bucket, objectPath), nil
}
