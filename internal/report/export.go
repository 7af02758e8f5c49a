package report

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ignite/session-reconciler/internal/pkg/logger"
	"github.com/ignite/session-reconciler/internal/reconcile"
)

// s3PutAPI is the slice of the S3 client the exporter needs.
type s3PutAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Exporter uploads rendered digests to an S3 bucket so reporting tools
// and stakeholders can fetch them without touching the service.
type S3Exporter struct {
	client   s3PutAPI
	renderer *Renderer
	bucket   string
	prefix   string
}

// NewS3Exporter creates an exporter using the default AWS credential chain.
func NewS3Exporter(ctx context.Context, bucket, prefix, region string) (*S3Exporter, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for report export: %w", err)
	}
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}
	return &S3Exporter{
		client:   s3.NewFromConfig(cfg),
		renderer: renderer,
		bucket:   bucket,
		prefix:   prefix,
	}, nil
}

// Export renders the report and uploads it. Returns the object key.
func (e *S3Exporter) Export(ctx context.Context, report *reconcile.Report) (string, error) {
	html, err := e.renderer.Render(report)
	if err != nil {
		return "", err
	}

	key := e.objectKey(report)
	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader([]byte(html)),
		ContentType: aws.String("text/html; charset=utf-8"),
	})
	if err != nil {
		return "", fmt.Errorf("S3 PutObject %s/%s: %w", e.bucket, key, err)
	}

	logger.Info("report digest exported", "bucket", e.bucket, "key", key)
	return key, nil
}

func (e *S3Exporter) objectKey(report *reconcile.Report) string {
	prefix := e.prefix
	if prefix == "" {
		prefix = "session-audit"
	}
	return fmt.Sprintf("%s/%s_%s.html",
		prefix,
		report.GeneratedAt.UTC().Format("2006-01-02T150405Z"),
		report.ID,
	)
}
