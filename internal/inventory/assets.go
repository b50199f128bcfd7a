package inventory

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cliniccare/pharmacy-backend/pkg/storage/gcs"
)

// GCSAssetStore stores item images in a GCS bucket under a fixed key prefix.
type GCSAssetStore struct {
	client *gcs.Client
	bucket string
	prefix string
}

// NewGCSAssetStore builds an AssetStore backed by the provided GCS client.
func NewGCSAssetStore(client *gcs.Client, bucket, prefix string) (*GCSAssetStore, error) {
	if client == nil {
		return nil, fmt.Errorf("gcs client required")
	}
	return &GCSAssetStore{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

// Upload writes the object and returns its public URL.
func (s *GCSAssetStore) Upload(ctx context.Context, object, contentType string, data io.Reader) (string, error) {
	object = strings.TrimLeft(object, "/")
	if s.prefix != "" {
		object = s.prefix + "/" + object
	}
	return s.client.UploadObject(ctx, s.bucket, object, contentType, data)
}
