// Package gcs provides a Google Cloud Storage implementation of the storage
// connection interface.
package gcs

import (
	"context"
	"fmt"
	"io"

	gcstorage "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/tigerroll/solarback/pkg/storage"
	"github.com/tigerroll/solarback/pkg/support/logger"
)

// ProviderType defines the type identifier for this GCS storage adapter.
const ProviderType = "gcs"

func init() {
	storage.RegisterAdapter(ProviderType, func(cfg storage.StorageConfig, name string) (storage.Connection, error) {
		return NewAdapter(context.Background(), cfg, name)
	})
}

// adapter implements storage.Connection over a GCS client.
type adapter struct {
	client *gcstorage.Client
	cfg    storage.StorageConfig
	name   string
}

// Verify that adapter implements the storage.Connection interface.
var _ storage.Connection = (*adapter)(nil)

// NewAdapter creates a GCS storage adapter. When a credentials file is
// configured it is used explicitly; otherwise application default credentials
// apply.
func NewAdapter(ctx context.Context, cfg storage.StorageConfig, name string) (storage.Connection, error) {
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("gcs storage adapter '%s': BucketName must be specified in configuration", name)
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := gcstorage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs storage adapter '%s': failed to create client: %w", name, err)
	}

	return &adapter{client: client, cfg: cfg, name: name}, nil
}

// Close releases the underlying GCS client.
func (a *adapter) Close() error {
	return a.client.Close()
}

// Type returns the type of the adapter, which is "gcs".
func (a *adapter) Type() string {
	return ProviderType
}

// Name returns the name of this connection.
func (a *adapter) Name() string {
	return a.name
}

// Upload writes data to the specified bucket and object name.
func (a *adapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	if bucket == "" {
		bucket = a.cfg.BucketName
	}

	writer := a.client.Bucket(bucket).Object(objectName).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}

	if _, err := io.Copy(writer, data); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write object 'gs://%s/%s': %w", bucket, objectName, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize object 'gs://%s/%s': %w", bucket, objectName, err)
	}
	logger.Debugf("Uploaded object 'gs://%s/%s' (gcs adapter '%s').", bucket, objectName, a.name)
	return nil
}

// Download opens the specified object for reading. The returned ReadCloser
// must be closed by the caller.
func (a *adapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	if bucket == "" {
		bucket = a.cfg.BucketName
	}

	reader, err := a.client.Bucket(bucket).Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open object 'gs://%s/%s': %w", bucket, objectName, err)
	}
	return reader, nil
}
