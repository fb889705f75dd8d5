// Package aws provides AWS integrations for encxorm: an Encryptor backed by
// AWS KMS and a key source that keeps key files in S3.
package aws

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/hengadev/encxorm"
)

// EncryptorName is the registry name of the KMS encryptor.
const EncryptorName = "aws-kms"

// kmsClient interface for AWS KMS operations (allows mocking)
type kmsClient interface {
	DescribeKey(ctx context.Context, params *kms.DescribeKeyInput, optFns ...func(*kms.Options)) (*kms.DescribeKeyOutput, error)
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// KMSEncryptor implements encxorm.Encryptor by sending every value to AWS
// KMS. Values are limited to 4 KiB by KMS.
//
// The keyID can be:
//   - Key ID: "1234abcd-12ab-34cd-56ef-1234567890ab"
//   - Key ARN: "arn:aws:kms:us-east-1:123456789012:key/1234abcd-..."
//   - Alias name: "alias/my-key" (a bare name gets the prefix added)
type KMSEncryptor struct {
	client kmsClient
	keyID  string
}

// NewKMSEncryptor loads the default AWS configuration for cfg.Region and
// checks that cfg.KMSKeyID exists.
func NewKMSEncryptor(ctx context.Context, cfg encxorm.AWSConfig) (*KMSEncryptor, error) {
	awsConfig, err := loadConfig(ctx, cfg.Region)
	if err != nil {
		return nil, err
	}
	enc, err := newKMSEncryptor(kms.NewFromConfig(awsConfig), cfg.KMSKeyID)
	if err != nil {
		return nil, err
	}
	if _, err := enc.Describe(ctx); err != nil {
		return nil, err
	}
	return enc, nil
}

func newKMSEncryptor(client kmsClient, keyID string) (*KMSEncryptor, error) {
	if keyID == "" {
		return nil, fmt.Errorf("%w: KMS key id cannot be empty", encxorm.ErrInvalidConfiguration)
	}
	if !strings.HasPrefix(keyID, "alias/") && !strings.HasPrefix(keyID, "arn:") && !looksLikeKeyID(keyID) {
		keyID = "alias/" + keyID
	}
	return &KMSEncryptor{client: client, keyID: keyID}, nil
}

// looksLikeKeyID matches the 36 character UUID form of KMS key ids.
func looksLikeKeyID(s string) bool {
	return len(s) == 36 && strings.Count(s, "-") == 4
}

// KeyID returns the key identifier used for Encrypt.
func (k *KMSEncryptor) KeyID() string {
	return k.keyID
}

// Describe resolves the configured key to its key id.
func (k *KMSEncryptor) Describe(ctx context.Context) (string, error) {
	result, err := k.client.DescribeKey(ctx, &kms.DescribeKeyInput{KeyId: aws.String(k.keyID)})
	if err != nil {
		return "", fmt.Errorf("%w: failed to describe KMS key %s: %w", encxorm.ErrInvalidConfiguration, k.keyID, err)
	}
	if result.KeyMetadata == nil || result.KeyMetadata.KeyId == nil {
		return "", fmt.Errorf("%w: no key metadata returned for %s", encxorm.ErrInvalidConfiguration, k.keyID)
	}
	return *result.KeyMetadata.KeyId, nil
}

// Encrypt returns the KMS ciphertext blob, base64 encoded for storage.
func (k *KMSEncryptor) Encrypt(ctx context.Context, plaintext string) (string, error) {
	result, err := k.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     aws.String(k.keyID),
		Plaintext: []byte(plaintext),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encrypt with KMS key %s: %w", k.keyID, err)
	}
	if result.CiphertextBlob == nil {
		return "", fmt.Errorf("no ciphertext returned from KMS")
	}
	return base64.StdEncoding.EncodeToString(result.CiphertextBlob), nil
}

// Decrypt lets KMS pick the key from the ciphertext metadata.
func (k *KMSEncryptor) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	result, err := k.client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: blob,
		KeyId:          aws.String(k.keyID),
	})
	if err != nil {
		return "", fmt.Errorf("failed to decrypt with KMS: %w", err)
	}
	if result.Plaintext == nil {
		return "", fmt.Errorf("no plaintext returned from KMS")
	}
	return string(result.Plaintext), nil
}

// Register adds the aws-kms encryptor to r. AWS is only contacted when the
// encryptor is selected.
func Register(r *encxorm.Registry, cfg encxorm.AWSConfig) error {
	return r.Register(EncryptorName, func(ctx context.Context) (encxorm.Encryptor, error) {
		return NewKMSEncryptor(ctx, cfg)
	})
}
