package evidence

import (
	"bytes"
	"context"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/karnali/wildguard-go/internal/errors"
)

// S3Store persists evidence clips in an S3-compatible bucket through the
// MinIO client.
type S3Store struct {
	client *minio.Client
	bucket string
}

// NewS3Store creates a client against endpoint and ensures the bucket exists.
func NewS3Store(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*S3Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, errors.New(err).
			Component("evidence").
			Category(errors.CategoryEvidence).
			Context("endpoint", endpoint).
			Build()
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, errors.New(err).
			Component("evidence").
			Category(errors.CategoryEvidence).
			Context("bucket", bucket).
			Build()
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errors.New(err).
				Component("evidence").
				Category(errors.CategoryEvidence).
				Context("bucket", bucket).
				Build()
		}
	}

	return &S3Store{client: client, bucket: bucket}, nil
}

// Save uploads the clip and returns its object path.
func (s *S3Store) Save(ctx context.Context, key Key, payload []byte) (string, error) {
	objectPath := key.Tier + "/" + key.Filename()

	_, err := s.client.PutObject(ctx, s.bucket, objectPath,
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "video/mp4"})
	if err != nil {
		return "", errors.New(err).
			Component("evidence").
			Category(errors.CategoryEvidence).
			Context("bucket", s.bucket).
			Context("object", objectPath).
			Build()
	}
	return objectPath, nil
}
