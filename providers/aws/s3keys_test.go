package aws

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hengadev/encxorm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockS3Client keeps objects in memory, keyed by bucket and key.
type mockS3Client struct {
	objects map[string][]byte
	puts    []*s3.PutObjectInput
	err     error
}

func newMockS3Client() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	data, ok := m.objects[*params.Bucket+"/"+*params.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.objects[*params.Bucket+"/"+*params.Key] = data
	m.puts = append(m.puts, params)
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	if _, ok := m.objects[*params.Bucket+"/"+*params.Key]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestS3KeySource(t *testing.T) {
	ctx := context.Background()
	client := newMockS3Client()
	keys := s3KeySources(client, encxorm.AWSConfig{KeyBucket: "secrets", KeyPrefix: "prod"})

	src := keys("xchacha").(*S3KeySource)
	assert.Equal(t, "s3://secrets/prod/.xchacha.key", src.Location())

	exists, err := src.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = src.Load(ctx)
	assert.ErrorIs(t, err, encxorm.ErrKeyNotFound)

	require.NoError(t, src.Store(ctx, []byte("key material")))
	exists, err = src.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := src.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("key material"), data)
	assert.Equal(t, types.ServerSideEncryptionAes256, client.puts[0].ServerSideEncryption)
}

func TestS3KeySource_KMSServerSideEncryption(t *testing.T) {
	client := newMockS3Client()
	keys := s3KeySources(client, encxorm.AWSConfig{KeyBucket: "secrets", KMSKeyID: "alias/keys"})

	require.NoError(t, keys("age").Store(context.Background(), []byte("identity")))
	require.Len(t, client.puts, 1)
	assert.Equal(t, types.ServerSideEncryptionAwsKms, client.puts[0].ServerSideEncryption)
	assert.Equal(t, "alias/keys", *client.puts[0].SSEKMSKeyId)
	assert.Equal(t, ".age.key", *client.puts[0].Key)
}

func TestS3KeySource_Errors(t *testing.T) {
	ctx := context.Background()
	client := newMockS3Client()
	client.err = errors.New("access denied")
	src := s3KeySources(client, encxorm.AWSConfig{KeyBucket: "secrets"})("aes")

	_, err := src.Exists(ctx)
	assert.ErrorContains(t, err, "access denied")
	_, err = src.Load(ctx)
	assert.NotErrorIs(t, err, encxorm.ErrKeyNotFound)
	assert.Error(t, src.Store(ctx, []byte("k")))
}

func TestS3KeySource_BuiltinEncryptors(t *testing.T) {
	ctx := context.Background()
	client := newMockS3Client()
	keys := s3KeySources(client, encxorm.AWSConfig{KeyBucket: "secrets"})

	r := encxorm.NewRegistry()
	require.NoError(t, encxorm.RegisterBuiltinEncryptors(r, keys))

	enc, err := r.New(ctx, encxorm.EncryptorXChaCha)
	require.NoError(t, err)
	ciphertext, err := enc.Encrypt(ctx, "secret")
	require.NoError(t, err)
	assert.Contains(t, client.objects, "secrets/.xchacha.key")

	again, err := r.New(ctx, encxorm.EncryptorXChaCha)
	require.NoError(t, err)
	plaintext, err := again.Decrypt(ctx, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "secret", plaintext)
}

func TestNewS3KeySources_RequiresBucket(t *testing.T) {
	_, err := NewS3KeySources(context.Background(), encxorm.AWSConfig{})
	assert.ErrorIs(t, err, encxorm.ErrInvalidConfiguration)
}
