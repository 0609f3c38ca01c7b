// services/snapshot_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// SnapshotService uploads collection exports to S3-compatible object storage
// (DigitalOcean Spaces). Uploads always happen outside ledger transactions:
// a failed upload only logs, it never blocks or rolls back economy state.
type SnapshotService struct {
	client *s3.Client
	bucket string
	region string
	root   string
}

func NewSnapshotService(spacesKey, spacesSecret, region, bucket, root string) (*SnapshotService, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: fmt.Sprintf("https://%s.digitaloceanspaces.com", region),
		}, nil
	})

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithEndpointResolverWithOptions(resolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(spacesKey, spacesSecret, "")),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load object storage config: %w", err)
	}

	return &SnapshotService{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		region: region,
		root:   strings.Trim(root, "/"),
	}, nil
}

// UploadCollectionCSV stores a point-in-time export under a dated key and
// returns the object key.
func (s *SnapshotService) UploadCollectionCSV(ctx context.Context, data []byte, takenAt time.Time) (string, error) {
	key := fmt.Sprintf("%s/collections/%s.csv", s.root, takenAt.UTC().Format("20060102T150405Z"))
	contentType := "text/csv"

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload snapshot %s: %w", key, err)
	}

	slog.Info("Uploaded collection snapshot",
		slog.String("key", key),
		slog.Int("bytes", len(data)))
	return key, nil
}
