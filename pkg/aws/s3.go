package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewS3Client creates a new S3 client. Path-style addressing is forced when a
// custom endpoint (LocalStack) is configured.
func NewS3Client(cfg sdkaws.Config) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.BaseEndpoint != nil
	})
}

// Archiver stores JSON snapshots of committed documents.
type Archiver interface {
	Archive(ctx context.Context, key string, doc interface{}) error
}

// S3Archiver writes each document as one JSON object under a prefix.
type S3Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

func NewS3Archiver(cfg sdkaws.Config, bucket, prefix string) *S3Archiver {
	return &S3Archiver{client: NewS3Client(cfg), bucket: bucket, prefix: prefix}
}

// Archive puts doc at <prefix>/<key>.json.
func (a *S3Archiver) Archive(ctx context.Context, key string, doc interface{}) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal archive document: %w", err)
	}
	objectKey := path.Join(a.prefix, key+".json")
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      sdkaws.String(a.bucket),
		Key:         sdkaws.String(objectKey),
		Body:        bytes.NewReader(body),
		ContentType: sdkaws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", objectKey, err)
	}
	return nil
}
