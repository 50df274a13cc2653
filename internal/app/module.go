// Package app wires the backfill engine together: configuration, the vendor
// API client, the sweep driver and its recorders, and the optional journal,
// archive and export components.
package app

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
	"time"

	"go.uber.org/fx"

	config "github.com/tigerroll/solarback/internal/config"
	"github.com/tigerroll/solarback/internal/metrics"
	"github.com/tigerroll/solarback/pkg/backfill"
	"github.com/tigerroll/solarback/pkg/backfill/retry"
	"github.com/tigerroll/solarback/pkg/journal"
	"github.com/tigerroll/solarback/pkg/series"
	"github.com/tigerroll/solarback/pkg/storage"
	"github.com/tigerroll/solarback/pkg/support/exception"
	"github.com/tigerroll/solarback/pkg/support/logger"
	"github.com/tigerroll/solarback/pkg/tesla"
)

// NewHTTPClient creates the shared HTTP client with the configured timeout.
func NewHTTPClient(cfg *config.Config) *http.Client {
	timeout := time.Duration(cfg.Solarback.API.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// CredentialProviderParams bundles the credential provider's dependencies,
// including the account identity given on the command line.
type CredentialProviderParams struct {
	fx.In
	Cfg        *config.Config
	HTTPClient *http.Client
	Account    string `name:"account"`
}

// NewCredentialProvider creates the file-backed credential provider. The
// account selects a per-account store file next to the configured one.
func NewCredentialProvider(p CredentialProviderParams) tesla.CredentialProvider {
	api := p.Cfg.Solarback.API
	storePath := tesla.StorePathForAccount(api.TokenStore, p.Account)
	return tesla.NewFileCredentialProvider(storePath, api.AuthURL, api.ClientID, p.HTTPClient)
}

// NewRetryPolicy creates the bounded exponential backoff policy from the
// retry configuration.
func NewRetryPolicy(cfg *config.Config) retry.RetryPolicy {
	r := cfg.Solarback.API.Retry
	factory := retry.NewDefaultRetryPolicyFactory()
	return factory.Create(
		r.MaxAttempts,
		time.Duration(r.InitialInterval)*time.Millisecond,
		time.Duration(r.MaxInterval)*time.Millisecond,
		r.Factor,
		[]string{exception.FetchException},
	)
}

// NewTeslaClient creates the rate-limited owner API client.
func NewTeslaClient(
	cfg *config.Config,
	creds tesla.CredentialProvider,
	policy retry.RetryPolicy,
	sleeper retry.Sleeper,
	httpClient *http.Client,
	recorder *metrics.PrometheusRecorder,
) *tesla.Client {
	api := cfg.Solarback.API
	return tesla.NewClient(tesla.ClientOptions{
		BaseURL:            api.BaseURL,
		MinRequestInterval: time.Duration(api.RequestIntervalMs) * time.Millisecond,
		Observer:           recorder,
	}, creds, policy, sleeper, httpClient)
}

// NewChecker creates the bucket completeness checker.
func NewChecker(cfg *config.Config) *backfill.Checker {
	dl := cfg.Solarback.Download
	return backfill.NewChecker(dl.BaseDir, series.SchemaVersion(dl.SchemaVersion))
}

// NewFetcher creates the production bucket fetcher.
func NewFetcher(cfg *config.Config, client *tesla.Client) backfill.SiteFetcher {
	return backfill.NewAPIFetcher(client, series.SchemaVersion(cfg.Solarback.Download.SchemaVersion))
}

// NewJournalProvider creates the journal database provider with a shutdown hook.
func NewJournalProvider(lc fx.Lifecycle, cfg *config.Config) *journal.Provider {
	provider := journal.NewProvider(cfg)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Infof("Closing journal database connections...")
			return provider.CloseAll()
		},
	})
	return provider
}

// NewStorageResolver creates the storage connection resolver with a shutdown hook.
func NewStorageResolver(lc fx.Lifecycle, cfg *config.Config) *storage.Resolver {
	resolver := storage.NewResolver(cfg)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Infof("Closing storage connections...")
			return resolver.CloseAll()
		},
	})
	return resolver
}

// NewJournalMigrationsFS strips the go:embed prefix so the journal migrator
// can reference per-database subdirectories directly.
func NewJournalMigrationsFS(params struct {
	fx.In
	RawFS embed.FS `name:"rawJournalMigrationsFS"`
}) (fs.FS, error) {
	return fs.Sub(params.RawFS, "resources/migrations")
}

// Module defines the application's Fx module.
var Module = fx.Options(
	fx.Provide(NewHTTPClient),
	fx.Provide(NewCredentialProvider),
	fx.Provide(NewRetryPolicy),
	fx.Provide(retry.NewSleeper),
	fx.Provide(NewTeslaClient),
	fx.Provide(NewChecker),
	fx.Provide(NewFetcher),
	fx.Provide(NewJournalProvider),
	fx.Provide(NewStorageResolver),
	fx.Provide(fx.Annotate(
		NewJournalMigrationsFS,
		fx.ResultTags(`name:"journalMigrationsFS"`),
	)),
)
