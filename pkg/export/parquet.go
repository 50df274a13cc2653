// Package export converts completed power bucket files to Parquet and ships
// them to a storage connection using Hive-style date partitions.
package export

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/solarback/pkg/series"
	"github.com/tigerroll/solarback/pkg/storage"
	"github.com/tigerroll/solarback/pkg/support/exception"
	"github.com/tigerroll/solarback/pkg/support/logger"
)

const moduleName = "export"

// PowerParquetRecord is the Parquet row layout for exported power samples.
type PowerParquetRecord struct {
	Timestamp         int64   `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	SiteID            int64   `parquet:"name=site_id, type=INT64"`
	SolarPower        float64 `parquet:"name=solar_power, type=DOUBLE"`
	BatteryPower      float64 `parquet:"name=battery_power, type=DOUBLE"`
	GridPower         float64 `parquet:"name=grid_power, type=DOUBLE"`
	GridServicesPower float64 `parquet:"name=grid_services_power, type=DOUBLE"`
	GeneratorPower    float64 `parquet:"name=generator_power, type=DOUBLE"`
	LoadPower         float64 `parquet:"name=load_power, type=DOUBLE"`
}

// ExporterOptions carries the tunable parts of the Parquet exporter.
type ExporterOptions struct {
	// OutputBaseDir is the base directory within the storage connection.
	OutputBaseDir string
	// Compression is the Parquet compression codec name ("SNAPPY", "GZIP", "NONE").
	Compression string
}

// Exporter converts power bucket files to Parquet and uploads them, one file
// per day partition.
type Exporter struct {
	conn storage.Connection
	opts ExporterOptions
}

// NewExporter creates an Exporter over an established storage connection.
func NewExporter(conn storage.Connection, opts ExporterOptions) (*Exporter, error) {
	if opts.OutputBaseDir == "" {
		return nil, exception.NewBatchError(moduleName, "exporter requires an output base directory", nil, false, false)
	}
	if opts.Compression == "" {
		opts.Compression = "SNAPPY"
	}
	if _, err := getCompressionCodec(opts.Compression); err != nil {
		return nil, exception.NewBatchErrorf(moduleName, "invalid compression type '%s'", opts.Compression, false, false, err)
	}
	return &Exporter{conn: conn, opts: opts}, nil
}

// ExportSite converts every completed power bucket file of a site to Parquet
// and uploads each under a dt= partition. Per-partition failures are
// aggregated; one bad bucket does not abort the export of its neighbors.
//
// Parameters:
//
//	baseDir: The download base directory.
//	site: The site directory name.
//	siteID: The numeric site identifier stamped into each record.
//	v: The schema version governing the bucket layout.
func (e *Exporter) ExportSite(ctx context.Context, baseDir, site string, siteID int64, v series.SchemaVersion) error {
	dir := series.PowerDir(baseDir, site, v)
	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return exception.NewBatchErrorf(moduleName, "failed to enumerate bucket files in %s", dir, false, false, err)
	}

	var multiErr error
	exported := 0
	for _, path := range matches {
		if strings.HasSuffix(path, series.PartialSuffix) {
			continue
		}
		if err := ctx.Err(); err != nil {
			multiErr = multierror.Append(multiErr, err)
			break
		}

		day, ok := bucketDate(path)
		if !ok {
			continue
		}
		if err := e.exportBucket(ctx, path, day, siteID, v); err != nil {
			multiErr = multierror.Append(multiErr, err)
			continue
		}
		exported++
	}

	logger.Infof("Parquet export for site %s finished: %d bucket files exported.", site, exported)
	return multiErr
}

// exportBucket converts one bucket file and uploads it.
func (e *Exporter) exportBucket(ctx context.Context, path, day string, siteID int64, v series.SchemaVersion) error {
	rows, err := series.ReadPowerBucket(path, v)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	records := make([]PowerParquetRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, PowerParquetRecord{
			Timestamp:         row.Timestamp.UnixMilli(),
			SiteID:            siteID,
			SolarPower:        row.SolarPower,
			BatteryPower:      row.BatteryPower,
			GridPower:         row.GridPower,
			GridServicesPower: row.GridServicesPower,
			GeneratorPower:    row.GeneratorPower,
			LoadPower:         row.LoadPower(),
		})
	}

	buf, err := e.serialize(records, day)
	if err != nil {
		return err
	}

	fileName := fmt.Sprintf("data_%s_%s.parquet", time.Now().Format("20060102150405"), generateRandomString(8))
	objectName := filepath.Join(e.opts.OutputBaseDir, "dt="+day, fileName)

	logger.Debugf("Uploading %d bytes of Parquet for partition dt=%s to %s.", buf.Len(), day, objectName)
	if err := e.conn.Upload(ctx, "", objectName, buf, "application/octet-stream"); err != nil {
		return exception.NewBatchErrorf(moduleName, "failed to upload Parquet file %s", objectName, true, false, err)
	}
	return nil
}

// serialize writes records into an in-memory Parquet file.
func (e *Exporter) serialize(records []PowerParquetRecord, day string) (*bytes.Buffer, error) {
	codec, err := getCompressionCodec(e.opts.Compression)
	if err != nil {
		return nil, exception.NewBatchErrorf(moduleName, "invalid compression type '%s'", e.opts.Compression, false, false, err)
	}

	buf := new(bytes.Buffer)
	// One row group per file: the row group size is the record count.
	pw, err := writer.NewParquetWriterFromWriter(buf, new(PowerParquetRecord), int64(len(records)))
	if err != nil {
		return nil, exception.NewBatchErrorf(moduleName, "failed to create Parquet writer for partition dt=%s", day, true, false, err)
	}
	pw.CompressionType = codec

	for _, record := range records {
		if err := pw.Write(record); err != nil {
			return nil, exception.NewBatchErrorf(moduleName, "failed to write record to Parquet for partition dt=%s", day, true, false, err)
		}
	}

	// WriteStop can panic inside the library; convert that to an error.
	var stopErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				stopErr = fmt.Errorf("parquet writer panicked during WriteStop for partition dt=%s: %v", day, r)
			}
		}()
		stopErr = pw.WriteStop()
	}()
	if stopErr != nil {
		return nil, exception.NewBatchErrorf(moduleName, "failed to finalize Parquet file for partition dt=%s", day, true, false, stopErr)
	}

	return buf, nil
}

// bucketDate extracts the YYYY-MM-DD date from a bucket file name.
func bucketDate(path string) (string, bool) {
	name := strings.TrimSuffix(filepath.Base(path), ".csv")
	if _, err := time.Parse("2006-01-02", name); err != nil {
		return "", false
	}
	return name, true
}

// getCompressionCodec returns the Parquet compression codec from a string.
func getCompressionCodec(compressionType string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(compressionType) {
	case "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", compressionType)
	}
}

// generateRandomString generates a random string used to keep uploaded file
// names collision free.
func generateRandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	seededRand := rand.New(rand.NewSource(time.Now().UnixNano()))
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[seededRand.Intn(len(charset))]
	}
	return string(b)
}
