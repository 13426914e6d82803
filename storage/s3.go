package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"crowdvolt_tracker/config"
	"crowdvolt_tracker/models"
)

// S3Archiver writes one JSON document per scrape cycle to S3-compatible
// storage.
type S3Archiver struct {
	client *s3.Client
	bucket string
}

// CycleArchive is the archived form of one cycle.
type CycleArchive struct {
	SiteID    string               `json:"site_id"`
	CycleID   uuid.UUID            `json:"cycle_id"`
	Timestamp time.Time            `json:"timestamp"`
	Rows      []models.SnapshotRow `json:"rows"`
}

func NewS3Archiver(ctx context.Context, cfg config.S3Config) (*S3Archiver, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var client *s3.Client
	if cfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	return &S3Archiver{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// ArchiveKey is snapshots/<site>/<yyyy>/<mm>/<dd>/<cycle>.json.
func ArchiveKey(siteID string, cycleID uuid.UUID, ts time.Time) string {
	return fmt.Sprintf("snapshots/%s/%s/%s.json", siteID, ts.UTC().Format("2006/01/02"), cycleID)
}

func (a *S3Archiver) ArchiveCycle(ctx context.Context, archive *CycleArchive) error {
	data, err := json.Marshal(archive)
	if err != nil {
		return err
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(ArchiveKey(archive.SiteID, archive.CycleID, archive.Timestamp)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}
