package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"streak-backend/internal/models"

	"cloud.google.com/go/civil"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// Auditor keeps a record of every completed sweep
type Auditor interface {
	Record(ctx context.Context, report *models.SweepReport) error
}

// S3AuditorConfig configures where sweep reports are written
type S3AuditorConfig struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// Endpoint overrides the S3 endpoint, e.g. for MinIO
	Endpoint string
}

// S3Auditor stores sweep reports as JSON objects under sweeps/<date>.json
type S3Auditor struct {
	client *s3.Client
	bucket string
}

// NewS3Auditor creates an auditor writing to cfg.Bucket
func NewS3Auditor(ctx context.Context, cfg S3AuditorConfig) (*S3Auditor, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Auditor{client: client, bucket: cfg.Bucket}, nil
}

// reportKey returns the object key of the report for date
func reportKey(date civil.Date) string {
	return fmt.Sprintf("sweeps/%s.json", date)
}

// Record uploads the report, replacing any earlier one for the same date
func (a *S3Auditor) Record(ctx context.Context, report *models.SweepReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal sweep report: %w", err)
	}

	key := reportKey(report.AsOf)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload sweep report: %w", err)
	}

	log.Info().Str("bucket", a.bucket).Str("key", key).Msg("Sweep report uploaded")
	return nil
}

// ReportURL returns a pre-signed download URL for the report of date
func (a *S3Auditor) ReportURL(ctx context.Context, date civil.Date, expires time.Duration) (string, error) {
	presignClient := s3.NewPresignClient(a.client)
	request, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(reportKey(date)),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate pre-signed URL: %w", err)
	}
	return request.URL, nil
}
