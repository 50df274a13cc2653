package export

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/solarback/pkg/storage"
	"github.com/tigerroll/solarback/pkg/support/exception"
	"github.com/tigerroll/solarback/pkg/support/logger"
)

// ArchiveSink mirrors completed bucket files to a storage connection after a
// sweep, preserving the on-disk layout under an object-path prefix.
type ArchiveSink struct {
	conn   storage.Connection
	prefix string
}

// NewArchiveSink creates an ArchiveSink over an established storage connection.
func NewArchiveSink(conn storage.Connection, prefix string) *ArchiveSink {
	return &ArchiveSink{conn: conn, prefix: prefix}
}

// ArchiveSite uploads every completed CSV file under the site directory.
// Partial files are never archived. Per-file failures are aggregated; one
// failed upload does not abort the rest.
//
// Parameters:
//
//	baseDir: The download base directory.
//	site: The site directory name.
func (s *ArchiveSink) ArchiveSite(ctx context.Context, baseDir, site string) error {
	root := filepath.Join(baseDir, site)

	var multiErr error
	archived := 0
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".csv") || strings.HasSuffix(path, ".partial.csv") {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(baseDir, path)
		if err != nil {
			return err
		}
		objectName := filepath.ToSlash(rel)
		if s.prefix != "" {
			objectName = s.prefix + "/" + objectName
		}

		if err := s.uploadFile(ctx, path, objectName); err != nil {
			multiErr = multierror.Append(multiErr, err)
		} else {
			archived++
		}
		return nil
	})
	if err != nil {
		multiErr = multierror.Append(multiErr, err)
	}

	logger.Infof("Archive for site %s finished: %d files uploaded.", site, archived)
	return multiErr
}

// uploadFile streams one local file to the storage connection.
func (s *ArchiveSink) uploadFile(ctx context.Context, localPath, objectName string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return exception.NewBatchError(moduleName, "failed to open "+localPath+" for archiving", err, true, false)
	}
	defer f.Close()

	if err := s.conn.Upload(ctx, "", objectName, f, "text/csv"); err != nil {
		return exception.NewBatchError(moduleName, "failed to archive "+localPath+" to "+objectName, err, true, false)
	}
	return nil
}
