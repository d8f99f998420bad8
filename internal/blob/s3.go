package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/storyforge/go-storybook-backend/internal/config"
)

// S3Store stores illustrations in an S3 bucket and returns presigned GET
// URLs that expire after the configured TTL.
type S3Store struct {
	client   *s3.S3
	bucket   string
	ttl      time.Duration
	maxBytes int
	now      func() time.Time
}

// NewS3Store creates the S3 backend. endpoint, when set, points the client
// at an S3-compatible service (MinIO, LocalStack).
func NewS3Store(cfg config.BlobConfig, region, endpoint string) (*S3Store, error) {
	awsConfig := &aws.Config{
		Region: aws.String(region),
	}
	if endpoint != "" {
		awsConfig.Endpoint = aws.String(endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Store{
		client:   s3.New(sess),
		bucket:   cfg.AssetsBucket,
		ttl:      cfg.SignedURLTTL,
		maxBytes: cfg.MaxImageBytes,
		now:      time.Now,
	}, nil
}

func (s *S3Store) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	if err := validateUpload(in, s.maxBytes); err != nil {
		return nil, err
	}

	fileName := normalizeFileName(in.FileName, in.ContentType)
	key := BuildImageKey(in.StoryID, in.PageNumber, fileName, s.now().UTC())

	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(in.Data),
		ContentType: aws.String(in.ContentType),
		Metadata: map[string]*string{
			"storyId":    aws.String(in.StoryID),
			"pageNumber": aws.String(strconv.Itoa(in.PageNumber)),
			"uploadedAt": aws.String(s.now().UTC().Format(time.RFC3339)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("s3 upload failed: %w", err)
	}

	url, err := s.SignedURL(ctx, key)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("key", key).Msg("uploaded story image")
	return &UploadResult{Key: key, URL: url}, nil
}

func (s *S3Store) SignedURL(_ context.Context, key string) (string, error) {
	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(s.ttl)
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return url, nil
}

func (s *S3Store) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	ct := aws.StringValue(out.ContentType)
	if ct == "" {
		ct = contentTypeForKey(key)
	}
	return out.Body, ct, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete failed: %w", err)
	}
	return nil
}
