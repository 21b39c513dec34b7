package snapshot

import (
	"context"
	"fmt"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// S3Mirror optionally uploads completed snapshot buckets to S3, so a
// deployment can retain snapshots past what local disk holds. It is
// deliberately a side-car, not part of Store's core read/write path: a
// mirror failure is logged and never fails a CreateSnapshot call.
type S3Mirror struct {
	bucket   string
	uploader *manager.Uploader
	log      zerolog.Logger
}

// NewS3Mirror builds a mirror targeting bucket using the process's default
// AWS credential chain. Returns nil, nil if bucket is empty (mirroring
// disabled).
func NewS3Mirror(ctx context.Context, bucket string, log zerolog.Logger) (*S3Mirror, error) {
	if bucket == "" {
		return nil, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot s3 mirror: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return &S3Mirror{
		bucket:   bucket,
		uploader: manager.NewUploader(client),
		log:      log.With().Str("component", "snapshot_s3_mirror").Logger(),
	}, nil
}

// Mirror uploads the bucket file at path under key to the mirror bucket.
// Errors are returned for the caller to log; nothing is retried here.
func (m *S3Mirror) Mirror(ctx context.Context, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("snapshot s3 mirror: open %s: %w", path, err)
	}
	defer f.Close()

	_, err = m.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: &m.bucket,
		Key:    &key,
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("snapshot s3 mirror: upload %s: %w", key, err)
	}
	m.log.Debug().Str("key", key).Msg("mirrored snapshot bucket to s3")
	return nil
}
