package stores

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/params"
	"github.com/linkflow-ai/scriptflow/internal/pkg/config"
)

type presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// FileStore resolves ${file:KEY} to a presigned download URL for the object
// KEY under the workspace's prefix.
type FileStore struct {
	presign presigner
	bucket  string
	expiry  time.Duration
	now     func() time.Time
}

func NewFileStore(ctx context.Context, cfg *config.S3Config) (*FileStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newFileStore(s3.NewPresignClient(client), cfg.Bucket, cfg.PresignExpiry), nil
}

func newFileStore(p presigner, bucket string, expiry time.Duration) *FileStore {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &FileStore{presign: p, bucket: bucket, expiry: expiry, now: time.Now}
}

// ObjectKey scopes a locator to the workspace.
func ObjectKey(workspaceID uuid.UUID, locator string) string {
	return path.Join(workspaceID.String(), path.Clean("/" + locator)[1:])
}

func (s *FileStore) Lookup(ctx context.Context, workspaceID uuid.UUID, ref params.Reference) (params.Value, error) {
	key := ObjectKey(workspaceID, ref.Locator)

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(o *s3.PresignOptions) {
		o.Expires = s.expiry
	})
	if err != nil {
		return params.Value{}, fmt.Errorf("presign failed: %w", err)
	}

	return params.Value{
		Data: map[string]interface{}{
			"key":        ref.Locator,
			"bucket":     s.bucket,
			"url":        req.URL,
			"expires_at": s.now().Add(s.expiry).UTC().Format(time.RFC3339),
		},
		Secret: true,
	}, nil
}
