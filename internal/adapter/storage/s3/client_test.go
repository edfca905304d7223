package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type APIMock struct {
	PutObjectFunc func(ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error)
}

func (m *APIMock) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return m.PutObjectFunc(ctx, in)
}

func TestUpload(t *testing.T) {
	var body string
	c := &S3Client{bucket: "reports", client: &APIMock{PutObjectFunc: func(ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		assert.Equal(t, "reports", aws.ToString(in.Bucket))
		assert.Equal(t, "application/json", aws.ToString(in.ContentType))
		b, _ := io.ReadAll(in.Body)
		body = string(b)
		return &s3.PutObjectOutput{}, nil
	}}}

	loc, err := c.Upload(context.Background(), "reputation/2026-03-02.json", strings.NewReader(`{"date":"2026-03-02"}`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, "s3://reports/reputation/2026-03-02.json", loc)
	assert.Equal(t, `{"date":"2026-03-02"}`, body)
}

func TestUploadError(t *testing.T) {
	c := &S3Client{bucket: "reports", client: &APIMock{PutObjectFunc: func(ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		return nil, errors.New("NoSuchBucket")
	}}}
	_, err := c.Upload(context.Background(), "k", strings.NewReader("x"), "text/plain")
	assert.ErrorContains(t, err, "s3 put object")
}
