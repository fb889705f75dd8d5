package aws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hengadev/encxorm"
)

// s3Client interface for the S3 operations used by S3KeySource (allows mocking)
type s3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3KeySource keeps the key material of one encryptor in an S3 object.
// Objects are written with SSE-KMS when a KMS key is configured and AES256
// server-side encryption otherwise.
type S3KeySource struct {
	client   s3Client
	bucket   string
	key      string
	kmsKeyID string
}

// NewS3KeySources returns encxorm.KeySources storing each key at
// "<cfg.KeyPrefix>/.<name>.key" in cfg.KeyBucket.
func NewS3KeySources(ctx context.Context, cfg encxorm.AWSConfig) (encxorm.KeySources, error) {
	if cfg.KeyBucket == "" {
		return nil, fmt.Errorf("%w: key bucket cannot be empty", encxorm.ErrInvalidConfiguration)
	}
	awsConfig, err := loadConfig(ctx, cfg.Region)
	if err != nil {
		return nil, err
	}
	return s3KeySources(s3.NewFromConfig(awsConfig), cfg), nil
}

func s3KeySources(client s3Client, cfg encxorm.AWSConfig) encxorm.KeySources {
	return func(name string) encxorm.KeySource {
		return &S3KeySource{
			client:   client,
			bucket:   cfg.KeyBucket,
			key:      path.Join(cfg.KeyPrefix, "."+name+".key"),
			kmsKeyID: cfg.KMSKeyID,
		}
	}
}

// Location returns the s3:// URL of the key object.
func (s *S3KeySource) Location() string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.key)
}

func (s *S3KeySource) Load(ctx context.Context) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%w: %s", encxorm.ErrKeyNotFound, s.Location())
		}
		return nil, fmt.Errorf("failed to read key %s: %w", s.Location(), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read key %s: %w", s.Location(), err)
	}
	return data, nil
}

func (s *S3KeySource) Store(ctx context.Context, key []byte) error {
	input := &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(s.key),
		Body:                 bytes.NewReader(key),
		ContentType:          aws.String("application/octet-stream"),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	}
	if s.kmsKeyID != "" {
		input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
		input.SSEKMSKeyId = aws.String(s.kmsKeyID)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to write key %s: %w", s.Location(), err)
	}
	return nil
}

func (s *S3KeySource) Exists(ctx context.Context) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err == nil {
		return true, nil
	}

	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check key %s: %w", s.Location(), err)
}
