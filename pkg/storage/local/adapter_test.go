package local_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tigerroll/solarback/pkg/storage"
	"github.com/tigerroll/solarback/pkg/storage/local"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAdapterRequiresBaseDir(t *testing.T) {
	_, err := local.NewAdapter(storage.StorageConfig{Type: local.ProviderType}, "archive")
	assert.Error(t, err)
}

func TestNewAdapterCreatesMissingBaseDir(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "archive-root")

	_, err := local.NewAdapter(storage.StorageConfig{Type: local.ProviderType, BaseDir: baseDir}, "archive")
	require.NoError(t, err)

	info, err := os.Stat(baseDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewAdapterRejectsFileAsBaseDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := local.NewAdapter(storage.StorageConfig{Type: local.ProviderType, BaseDir: path}, "archive")
	assert.Error(t, err)
}

func TestUploadAndDownloadRoundTrip(t *testing.T) {
	baseDir := t.TempDir()
	conn, err := local.NewAdapter(storage.StorageConfig{Type: local.ProviderType, BaseDir: baseDir}, "archive")
	require.NoError(t, err)

	content := "timestamp,solar_power\n2023-05-22T00:00:00Z,1500\n"
	require.NoError(t, conn.Upload(context.Background(), "site-data", "123456/power/2023-05-22.csv", strings.NewReader(content), "text/csv"))

	reader, err := conn.Download(context.Background(), "site-data", "123456/power/2023-05-22.csv")
	require.NoError(t, err)
	defer reader.Close()

	got, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))
}

func TestUploadDefaultsToConfiguredBucket(t *testing.T) {
	baseDir := t.TempDir()
	conn, err := local.NewAdapter(storage.StorageConfig{Type: local.ProviderType, BaseDir: baseDir, BucketName: "default-bucket"}, "archive")
	require.NoError(t, err)

	require.NoError(t, conn.Upload(context.Background(), "", "object.txt", strings.NewReader("data"), "text/plain"))

	_, err = os.Stat(filepath.Join(baseDir, "default-bucket", "object.txt"))
	assert.NoError(t, err)
}

func TestUploadRejectsPathEscapingBaseDir(t *testing.T) {
	baseDir := t.TempDir()
	conn, err := local.NewAdapter(storage.StorageConfig{Type: local.ProviderType, BaseDir: baseDir}, "archive")
	require.NoError(t, err)

	err = conn.Upload(context.Background(), "bucket", "../../etc/passwd", strings.NewReader("x"), "text/plain")
	assert.Error(t, err)
}

func TestDownloadMissingObject(t *testing.T) {
	conn, err := local.NewAdapter(storage.StorageConfig{Type: local.ProviderType, BaseDir: t.TempDir()}, "archive")
	require.NoError(t, err)

	_, err = conn.Download(context.Background(), "bucket", "absent.csv")
	assert.Error(t, err)
}

func TestAdapterIdentity(t *testing.T) {
	conn, err := local.NewAdapter(storage.StorageConfig{Type: local.ProviderType, BaseDir: t.TempDir()}, "archive")
	require.NoError(t, err)

	assert.Equal(t, local.ProviderType, conn.Type())
	assert.Equal(t, "archive", conn.Name())
	assert.NoError(t, conn.Close())
}
