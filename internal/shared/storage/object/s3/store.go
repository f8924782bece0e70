package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"storygen-backend/internal/shared/storage/object"
)

// MaxObjectBytes bounds Read. Stored documents are a few kilobytes.
const MaxObjectBytes = 8 << 20

// Config selects the bucket and optional key prefix. A KMS key switches
// server-side encryption from AES256 to aws:kms.
type Config struct {
	Region   string
	Bucket   string
	Prefix   string
	KMSKeyID string
}

type api interface {
	PutObject(context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(context.Context, *s3.DeleteObjectInput, ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Store is an object.Blobs backed by one S3 bucket.
type Store struct {
	api    api
	bucket string
	prefix string
	kmsKey string
}

// New loads the default AWS credential chain and returns a Store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("s3 bucket is required")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newStore(s3.NewFromConfig(awsCfg), cfg), nil
}

func newStore(client api, cfg Config) *Store {
	return &Store{
		api:    client,
		bucket: strings.TrimSpace(cfg.Bucket),
		prefix: strings.Trim(strings.TrimSpace(cfg.Prefix), "/"),
		kmsKey: strings.TrimSpace(cfg.KMSKeyID),
	}
}

func (s *Store) objectKey(key string) (string, error) {
	if err := object.CheckKey(key); err != nil {
		return "", err
	}
	if s.prefix == "" {
		return key, nil
	}
	return s.prefix + "/" + key, nil
}

func (s *Store) Write(ctx context.Context, key string, body []byte, contentType string) error {
	k, err := s.objectKey(key)
	if err != nil {
		return err
	}
	in := &s3.PutObjectInput{
		Bucket:            aws.String(s.bucket),
		Key:               aws.String(k),
		Body:              bytes.NewReader(body),
		ContentLength:     aws.Int64(int64(len(body))),
		ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if s.kmsKey != "" {
		in.ServerSideEncryption = types.ServerSideEncryptionAwsKms
		in.SSEKMSKeyId = aws.String(s.kmsKey)
	} else {
		in.ServerSideEncryption = types.ServerSideEncryptionAes256
	}
	if _, err := s.api.PutObject(ctx, in); err != nil {
		return fmt.Errorf("s3 put s3://%s/%s: %w", s.bucket, k, err)
	}
	return nil
}

func (s *Store) Read(ctx context.Context, key string) ([]byte, error) {
	k, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(k)})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, object.ErrNotFound
		}
		return nil, fmt.Errorf("s3 get s3://%s/%s: %w", s.bucket, k, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(io.LimitReader(out.Body, MaxObjectBytes+1))
	if err != nil {
		return nil, fmt.Errorf("s3 read s3://%s/%s: %w", s.bucket, k, err)
	}
	if len(body) > MaxObjectBytes {
		return nil, fmt.Errorf("s3 object s3://%s/%s exceeds %d bytes", s.bucket, k, MaxObjectBytes)
	}
	return body, nil
}

// Remove deletes the object. S3 reports success for missing keys.
func (s *Store) Remove(ctx context.Context, key string) error {
	k, err := s.objectKey(key)
	if err != nil {
		return err
	}
	if _, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(k)}); err != nil {
		return fmt.Errorf("s3 delete s3://%s/%s: %w", s.bucket, k, err)
	}
	return nil
}

var _ object.Blobs = (*Store)(nil)
