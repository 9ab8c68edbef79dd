package aws

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vitudev/secretboot/internal/blob"
	apperrors "github.com/vitudev/secretboot/internal/errors"
)

// S3Source fetches the encrypted config blob from object storage, for
// deployments where the encryption workflow publishes to a bucket instead of
// baking the blob into the image.
type S3Source struct {
	client *s3.Client
	bucket string
	key    string
	logger *slog.Logger
}

func NewS3Source(cfg aws.Config, bucket, key string, logger *slog.Logger) *S3Source {
	return &S3Source{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		key:    key,
		logger: logger,
	}
}

func (s *S3Source) Fetch(ctx context.Context) (*blob.Envelope, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &s.key,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: cannot fetch s3://%s/%s: %w", apperrors.ErrTransport, s.bucket, s.key, err)
	}
	defer func() {
		if cerr := out.Body.Close(); cerr != nil {
			s.logger.WarnContext(ctx, "failed to close s3 object body", "error", cerr)
		}
	}()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading s3://%s/%s: %w", apperrors.ErrTransport, s.bucket, s.key, err)
	}

	return blob.Parse(data)
}
