// Package tesla implements the vendor owner-API collaborators: the credential
// provider backed by a local JSON token store and the rate-limited HTTP client.
package tesla

import "time"

// Product is one entry of the account's product list.
type Product struct {
	EnergySiteID int64  `json:"energy_site_id"`
	ResourceType string `json:"resource_type"`
	SiteName     string `json:"site_name"`
}

// productListResponse is the envelope of the product list endpoint.
type productListResponse struct {
	Response []Product `json:"response"`
	Count    int       `json:"count"`
}

// SiteConfig carries the site metadata relevant to a backfill: the install
// date lower bound and the site timezone.
type SiteConfig struct {
	ID                   string `json:"id"`
	SiteName             string `json:"site_name"`
	InstallationDate     string `json:"installation_date"`
	InstallationTimeZone string `json:"installation_time_zone"`
}

// siteConfigResponse is the envelope of the site info endpoint.
type siteConfigResponse struct {
	Response *SiteConfig `json:"response"`
}

// calendarHistoryResponse is the envelope of the calendar history endpoint.
// Individual time series entries stay weakly typed; the series package maps
// them onto canonical rows per schema version.
type calendarHistoryResponse struct {
	Response *struct {
		SerialNumber string                   `json:"serial_number"`
		Period       string                   `json:"period"`
		TimeSeries   []map[string]interface{} `json:"time_series"`
	} `json:"response"`
}

// regionResponse is the envelope of the region lookup endpoint.
type regionResponse struct {
	Response *struct {
		Region           string `json:"region"`
		FleetAPIBaseURL  string `json:"fleet_api_base_url"`
	} `json:"response"`
}

// RequestObserver receives notifications about outbound requests, their
// outcomes and retries. Implementations must be cheap; the client calls
// them on the hot path.
type RequestObserver interface {
	ObserveRequest(endpoint string, status int, elapsed time.Duration)
	ObserveRetry(endpoint string)
}

// nopObserver is the default observer used when none is wired.
type nopObserver struct{}

func (nopObserver) ObserveRequest(string, int, time.Duration) {}
func (nopObserver) ObserveRetry(string)                      {}
