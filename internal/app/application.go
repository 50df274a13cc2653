package app

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"go.uber.org/fx"

	config "github.com/tigerroll/solarback/internal/config"
	"github.com/tigerroll/solarback/internal/metrics"
	"github.com/tigerroll/solarback/pkg/backfill"
	"github.com/tigerroll/solarback/pkg/backfill/retry"
	"github.com/tigerroll/solarback/pkg/export"
	"github.com/tigerroll/solarback/pkg/journal"
	"github.com/tigerroll/solarback/pkg/series"
	"github.com/tigerroll/solarback/pkg/storage"
	"github.com/tigerroll/solarback/pkg/support/exception"
	"github.com/tigerroll/solarback/pkg/support/logger"
	"github.com/tigerroll/solarback/pkg/tesla"
)

// RunApplication sets up and runs the backfill application using uber-fx.
// The account identifier selects the credential store used for the run.
func RunApplication(appCtx context.Context, account, envFilePath string, embeddedConfig config.EmbeddedConfig, journalMigrationsFS embed.FS) {
	cfg, err := config.LoadConfig(envFilePath, embeddedConfig)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logger.SetLogLevel(cfg.Solarback.System.Logging.Level)
	logger.Infof("Log level set to: %s", cfg.Solarback.System.Logging.Level)

	app := fx.New(
		fx.Supply(
			embeddedConfig,
			fx.Annotate(account, fx.ResultTags(`name:"account"`)),
			fx.Annotate(envFilePath, fx.ResultTags(`name:"envFilePath"`)),
			fx.Annotate(
				journalMigrationsFS,
				fx.ResultTags(`name:"rawJournalMigrationsFS"`),
			),
			fx.Annotate(
				appCtx,
				fx.As(new(context.Context)),
				fx.ResultTags(`name:"appCtx"`),
			),
		),
		logger.Module,
		config.Module,
		metrics.Module,
		Module,

		fx.Invoke(startBackfill),
	)

	app.Run()

	if app.Err() != nil {
		logger.Fatalf("Application run failed: %v", app.Err())
	}
}

// BackfillParams bundles everything the backfill run needs from the Fx graph.
type BackfillParams struct {
	fx.In
	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner

	Cfg      *config.Config
	Client   *tesla.Client
	Fetcher  backfill.SiteFetcher
	Checker  *backfill.Checker
	Sleeper  retry.Sleeper
	Recorder *metrics.PrometheusRecorder
	Tracer   *metrics.Tracer

	JournalProvider *journal.Provider
	StorageResolver *storage.Resolver

	MigrationsFS fs.FS           `name:"journalMigrationsFS"`
	AppCtx       context.Context `name:"appCtx"`
}

// startBackfill registers the Fx hook that runs the backfill and shuts the
// application down afterwards.
func startBackfill(p BackfillParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Errorf("Panic recovered in backfill run: %v", r)
					}
					logger.Infof("Requesting application shutdown after backfill completion.")
					if err := p.Shutdowner.Shutdown(); err != nil {
						logger.Errorf("Failed to shutdown application: %v", err)
					}
				}()

				if err := runBackfill(p.AppCtx, p); err != nil {
					logger.Errorf("Backfill run failed: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Infof("Application is shutting down.")
			return nil
		},
	})
}

// runBackfill executes one full backfill: site discovery, the power sweep,
// the energy sweep, and the optional archive and export phases.
func runBackfill(ctx context.Context, p BackfillParams) error {
	cfg := p.Cfg.Solarback

	version := series.SchemaVersion(cfg.Download.SchemaVersion)
	if !version.Valid() {
		return fmt.Errorf("invalid schema version %d; must be 1, 2 or 3", cfg.Download.SchemaVersion)
	}

	recorders := backfill.MultiRecorder{p.Recorder}
	if cfg.Journal.Enabled {
		conn, err := p.JournalProvider.GetConnection(cfg.Journal.DBRef)
		if err != nil {
			return fmt.Errorf("failed to open journal connection '%s': %w", cfg.Journal.DBRef, err)
		}
		if err := journal.Migrate(conn, p.MigrationsFS, conn.Type()); err != nil {
			return err
		}
		recorders = append(recorders, journal.NewRecorder(conn))
	}

	site, err := discoverSite(ctx, p.Client, cfg)
	if err != nil {
		return err
	}

	driver := backfill.NewDriver(backfill.DriverOptions{
		BaseDir:            cfg.Download.BaseDir,
		Version:            version,
		EarliestDate:       parseEarliestDate(cfg.Download.EarliestDate, site.Location),
		EnergyItemInterval: time.Duration(cfg.API.EnergyItemIntervalMs) * time.Millisecond,
		Span: func(ctx context.Context, bucket time.Time, kind string) (context.Context, func(error)) {
			bctx, span := p.Tracer.StartBucketSpan(ctx, bucket, kind)
			return bctx, func(err error) { metrics.EndSpan(span, err) }
		},
	}, p.Fetcher, p.Checker, recorders, p.Sleeper)

	sweepCtx, span := p.Tracer.StartSweepSpan(ctx, site.ID, backfill.KindPower)
	_, err = driver.RunPower(sweepCtx, site)
	metrics.EndSpan(span, err)
	if err != nil {
		return err
	}

	if cfg.Download.Energy {
		sweepCtx, span = p.Tracer.StartSweepSpan(ctx, site.ID, backfill.KindEnergy)
		_, err = driver.RunEnergy(sweepCtx, site)
		metrics.EndSpan(span, err)
		if err != nil {
			return err
		}
	}

	// The archive and export phases are best effort: their failures are
	// reported but never undo a completed sweep.
	if cfg.Archive.Enabled {
		if err := runArchive(ctx, p, cfg, site); err != nil {
			logger.Errorf("Archive phase failed: %v", err)
		}
	}
	if cfg.Export.Enabled {
		if err := runExport(ctx, p, cfg, site, version); err != nil {
			logger.Errorf("Export phase failed: %v", err)
		}
	}

	return nil
}

// discoverSite resolves the energy site and its sweep bounds from the API.
func discoverSite(ctx context.Context, client *tesla.Client, cfg config.SolarbackConfig) (backfill.Site, error) {
	if err := client.DiscoverRegion(ctx); err != nil {
		return backfill.Site{}, err
	}

	products, err := client.ProductList(ctx)
	if err != nil {
		return backfill.Site{}, err
	}
	siteID, err := tesla.FindEnergySite(products)
	if err != nil {
		return backfill.Site{}, err
	}

	siteConfig, err := client.SiteConfig(ctx, siteID)
	if err != nil {
		return backfill.Site{}, err
	}

	timezone := siteConfig.InstallationTimeZone
	if cfg.System.Timezone != "" {
		timezone = cfg.System.Timezone
	}
	location, err := time.LoadLocation(timezone)
	if err != nil {
		logger.Warnf("Timezone '%s' is not loadable; falling back to UTC: %v", timezone, err)
		timezone = "UTC"
		location = time.UTC
	}

	installDate, err := parseInstallDate(siteConfig.InstallationDate, location)
	if err != nil {
		return backfill.Site{}, err
	}

	logger.Infof("Resolved energy site %d ('%s'): installed %s, timezone %s.",
		siteID, siteConfig.SiteName, installDate.Format("2006-01-02"), timezone)

	return backfill.Site{
		ID:          siteID,
		InstallDate: installDate,
		Timezone:    timezone,
		Location:    location,
	}, nil
}

// parseInstallDate parses the install date reported by the site info
// endpoint, which may carry a full timestamp or a bare date.
func parseInstallDate(value string, loc *time.Location) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return backfill.TruncateDay(ts, loc), nil
	}
	if ts, err := time.ParseInLocation("2006-01-02", value, loc); err == nil {
		return ts, nil
	}
	return time.Time{}, exception.NewSchemaError("app", fmt.Sprintf("installation date '%s' is not parseable", value), nil)
}

// parseEarliestDate parses the optional backfill floor; a malformed value is
// ignored with a warning rather than aborting the run.
func parseEarliestDate(value string, loc *time.Location) time.Time {
	if value == "" {
		return time.Time{}
	}
	ts, err := time.ParseInLocation("2006-01-02", value, loc)
	if err != nil {
		logger.Warnf("Earliest date '%s' is not parseable and is ignored: %v", value, err)
		return time.Time{}
	}
	return ts
}

// runArchive mirrors the completed bucket files to the archive storage.
func runArchive(ctx context.Context, p BackfillParams, cfg config.SolarbackConfig, site backfill.Site) error {
	conn, err := p.StorageResolver.Resolve(cfg.Archive.StorageRef)
	if err != nil {
		return err
	}
	sink := export.NewArchiveSink(conn, cfg.Archive.Prefix)
	return sink.ArchiveSite(ctx, cfg.Download.BaseDir, site.DirName())
}

// runExport converts completed power buckets to Parquet and uploads them.
func runExport(ctx context.Context, p BackfillParams, cfg config.SolarbackConfig, site backfill.Site, version series.SchemaVersion) error {
	conn, err := p.StorageResolver.Resolve(cfg.Export.StorageRef)
	if err != nil {
		return err
	}
	exporter, err := export.NewExporter(conn, export.ExporterOptions{
		OutputBaseDir: cfg.Export.OutputBaseDir,
		Compression:   cfg.Export.Compression,
	})
	if err != nil {
		return err
	}
	return exporter.ExportSite(ctx, cfg.Download.BaseDir, site.DirName(), site.ID, version)
}
