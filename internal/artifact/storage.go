// Package artifact uploads run result artifacts to S3/MinIO so rollout
// records survive the operator machine.
package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/rollout/rollout/internal/config"
	"github.com/rollout/rollout/internal/result"
	"github.com/rollout/rollout/pkg/log"
)

// Uploader stores run artifacts in an S3-compatible bucket.
type Uploader struct {
	client *minio.Client
	bucket string
	log    log.Logger
}

// NewUploader creates an Uploader from the plan's store settings.
func NewUploader(cfg *config.StoreConfig, logger log.Logger) (*Uploader, error) {
	if logger == nil {
		logger = log.NewNop()
	}

	endpoint := cfg.Endpoint
	// Remove protocol prefix if present
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	useSSL := cfg.UseSSL == nil || *cfg.UseSSL

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &Uploader{
		client: client,
		bucket: cfg.Bucket,
		log:    logger.With("component", "artifact_uploader"),
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (u *Uploader) EnsureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		u.log.Info().Str("bucket", u.bucket).Msg("created bucket")
	}

	return nil
}

// Upload stores the artifact as JSON and returns the object path.
func (u *Uploader) Upload(ctx context.Context, art *result.Artifact) (string, error) {
	data, err := json.MarshalIndent(art, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal artifact: %w", err)
	}

	objectPath := objectPath(art.RunID)

	u.log.Debug().Str("run_id", art.RunID).Str("path", objectPath).Msg("uploading artifact")

	info, err := u.client.PutObject(ctx, u.bucket, objectPath,
		bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType: "application/json",
		})
	if err != nil {
		return "", fmt.Errorf("failed to upload artifact: %w", err)
	}

	u.log.Info().
		Str("run_id", art.RunID).
		Str("path", objectPath).
		Int64("size", info.Size).
		Msg("uploaded artifact")

	return objectPath, nil
}

// objectPath generates the storage path for a run artifact.
func objectPath(runID string) string {
	return fmt.Sprintf("rollouts/%s/result.json", runID)
}
