package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/solquestio/solquestio-sub002/core"
	"github.com/solquestio/solquestio-sub002/ports"
)

// objectAPI is the subset of *minio.Client the store needs; tests substitute a fake.
type objectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinioStore uploads token metadata documents to an S3-compatible bucket
type MinioStore struct {
	api     objectAPI
	bucket  string
	baseURL string
}

// NewMinioClient connects to an S3-compatible endpoint with static credentials.
func NewMinioClient(endpoint, accessKey, secretKey string, useSSL bool) (*minio.Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return client, nil
}

// NewMinioStore ensures bucket exists. Published URIs are publicBaseURL + object name.
func NewMinioStore(ctx context.Context, api objectAPI, bucket, publicBaseURL string) (*MinioStore, error) {
	s := &MinioStore{
		api:     api,
		bucket:  bucket,
		baseURL: strings.TrimSuffix(publicBaseURL, "/") + "/",
	}

	exists, err := api.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := api.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return s, nil
}

var _ ports.MetadataStore = (*MinioStore)(nil)

// Publish uploads metadata as <tokenID>.json. The document's own uri field is
// left out; it is the address of the document itself.
func (s *MinioStore) Publish(ctx context.Context, tokenID int64, metadata core.MintMetadata) (string, error) {
	metadata.URI = ""
	payload, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}

	name := objectName(tokenID)
	_, err = s.api.PutObject(ctx, s.bucket, name, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload metadata: %w", err)
	}
	return s.baseURL + name, nil
}
