package repository

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appConfig "github.com/ayukmesoh/storekeeper/internal/config"
)

// ReceiptS3Repository archives payment receipts in S3-compatible object
// storage (SeaweedFS in deployment). Receipts are write-once; the URL goes
// into the subscription history alongside the transaction ID.
type ReceiptS3Repository struct {
	client    *s3.Client
	bucket    string
	publicURL string
}

// NewReceiptS3Repository creates a new receipt archive
func NewReceiptS3Repository(ctx context.Context, cfg appConfig.S3Config) (*ReceiptS3Repository, error) {
	// SeaweedFS and other S3-compatible stores want path-style addressing
	// and accept static placeholder credentials.
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("any", "any", "")),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config, %v", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	repo := &ReceiptS3Repository{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: cfg.Endpoint,
	}

	if err := repo.ensureBucket(ctx); err != nil {
		return nil, err
	}

	return repo, nil
}

// Store archives one receipt and returns its URL. The key is namespaced per
// shop so retention policies can be applied per tenant.
func (r *ReceiptS3Repository) Store(ctx context.Context, shopID, transactionID string, receipt []byte) (string, error) {
	key := fmt.Sprintf("receipts/%s/%s.json", shopID, transactionID)

	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(receipt),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive receipt: %w", err)
	}

	return fmt.Sprintf("%s/%s/%s", r.publicURL, r.bucket, key), nil
}

// ensureBucket checks if the bucket exists, creating it if necessary
func (r *ReceiptS3Repository) ensureBucket(ctx context.Context) error {
	_, err := r.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(r.bucket),
	})

	if err != nil {
		_, err = r.client.CreateBucket(ctx, &s3.CreateBucketInput{
			Bucket: aws.String(r.bucket),
		})
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", r.bucket, err)
		}
	}
	return nil
}
