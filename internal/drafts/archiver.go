// Package drafts preserves already-produced content when the remote create
// call fails, so operators can retry a publish without a second charge.
package drafts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/postsmith/postsmith/internal/models"
)

type Archiver interface {
	Archive(ctx context.Context, draft models.RecoverableDraft) error
}

// S3Archiver writes draft envelopes to object storage under:
//
//	s3://<bucket>/<prefix>/drafts/YYYY/MM/DD/<requestID>.json
type S3Archiver struct {
	bucket   string
	prefix   string
	uploader *manager.Uploader
}

// NewS3Archiver creates an S3Archiver. Region and credentials come from the
// environment (AWS_REGION, AWS_PROFILE, AWS_ACCESS_KEY_ID/SECRET etc.).
func NewS3Archiver(ctx context.Context, bucket, prefix string) (*S3Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Archiver{
		bucket:   bucket,
		prefix:   prefix,
		uploader: manager.NewUploader(client),
	}, nil
}

func (a *S3Archiver) Archive(ctx context.Context, draft models.RecoverableDraft) error {
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = time.Now().UTC()
	}
	body, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	key := Key(a.prefix, draft)
	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("upload draft %s: %w", key, err)
	}
	return nil
}

// Key derives the date-partitioned object key for a draft.
func Key(prefix string, draft models.RecoverableDraft) string {
	ts := draft.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	year, month, day := ts.Date()
	return path.Join(prefix, "drafts",
		fmt.Sprintf("%04d/%02d/%02d", year, month, day),
		draft.RequestID.String()+".json")
}
