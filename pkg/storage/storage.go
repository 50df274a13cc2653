// Package storage defines the common interfaces for the archive and export
// storage backends, allowing bucket files to be shipped to a local directory
// or an object store through a unified API.
package storage

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/tigerroll/solarback/pkg/support/logger"
)

// StorageConfig holds configuration for a single storage connection.
type StorageConfig struct {
	Type            string `yaml:"type"`             // Type of storage (e.g., "gcs", "local").
	BucketName      string `yaml:"bucket_name"`      // Default bucket name for operations.
	CredentialsFile string `yaml:"credentials_file"` // Path to credentials file (e.g., service account key for GCS).
	BaseDir         string `yaml:"base_dir"`         // Base directory for local file system operations.
}

// Connection represents one data storage connection.
type Connection interface {
	// Upload uploads data to the specified bucket and object name.
	// 'data' is the stream of data to upload. 'contentType' is the MIME type of the data.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download downloads data from the specified bucket and object name.
	// It returns a ReadCloser which must be closed by the caller after use.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// Close releases the connection's resources.
	Close() error
	// Type returns the storage type identifier.
	Type() string
	// Name returns the connection name.
	Name() string
}

// AdapterFactory creates a Connection from a decoded StorageConfig.
type AdapterFactory func(cfg StorageConfig, name string) (Connection, error)

var (
	adapterRegistry = make(map[string]AdapterFactory)
	adapterMutex    sync.RWMutex
)

// RegisterAdapter registers an AdapterFactory for the given storage type.
func RegisterAdapter(storageType string, factory AdapterFactory) {
	adapterMutex.Lock()
	defer adapterMutex.Unlock()
	if _, exists := adapterRegistry[storageType]; exists {
		logger.Warnf("Storage adapter for type '%s' already registered. Overwriting.", storageType)
	}
	adapterRegistry[storageType] = factory
}

// GetAdapterFactory retrieves the AdapterFactory for the specified storage type.
func GetAdapterFactory(storageType string) (AdapterFactory, error) {
	adapterMutex.RLock()
	defer adapterMutex.RUnlock()
	factory, ok := adapterRegistry[storageType]
	if !ok {
		return nil, fmt.Errorf("no storage adapter registered for type: %s", storageType)
	}
	return factory, nil
}
