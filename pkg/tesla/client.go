package tesla

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"context"

	"github.com/tigerroll/solarback/pkg/backfill/retry"
	"github.com/tigerroll/solarback/pkg/support/exception"
	"github.com/tigerroll/solarback/pkg/support/logger"
)

const clientModule = "client"

// errUnauthorized signals a 401 inside the request loop so the client can
// apply its one-shot refresh-and-retry before surfacing an AuthError.
var errUnauthorized = errors.New("unauthorized")

// ClientOptions carries the tunable parts of the rate-limited client.
type ClientOptions struct {
	// BaseURL is the owner API base URL; region discovery may replace it.
	BaseURL string
	// MinRequestInterval is the fixed minimum delay between consecutive
	// outbound requests.
	MinRequestInterval time.Duration
	// Observer receives request/retry notifications; optional.
	Observer RequestObserver
}

// Client is the rate-limited owner-API client. It enforces a fixed minimum
// inter-request delay, retries transient failures with bounded exponential
// backoff, and applies a one-shot refresh-and-retry on authorization
// rejections. It is not safe for concurrent use; the backfill runs a single
// sequential worker by design.
type Client struct {
	httpClient  *http.Client
	creds       CredentialProvider
	policy      retry.RetryPolicy
	sleeper     retry.Sleeper
	observer    RequestObserver
	baseURL     string
	minInterval time.Duration

	clock       func() time.Time
	lastRequest time.Time
}

// NewClient creates a new rate-limited client.
//
// Parameters:
//
//	opts: Client tunables.
//	creds: The credential provider supplying bearer tokens.
//	policy: The retry policy applied to transient failures.
//	sleeper: The sleeper used for pacing and backoff delays.
//	httpClient: The underlying HTTP client; defaults to http.DefaultClient.
func NewClient(opts ClientOptions, creds CredentialProvider, policy retry.RetryPolicy, sleeper retry.Sleeper, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &Client{
		httpClient:  httpClient,
		creds:       creds,
		policy:      policy,
		sleeper:     sleeper,
		observer:    observer,
		baseURL:     opts.BaseURL,
		minInterval: opts.MinRequestInterval,
		clock:       time.Now,
	}
}

// BaseURL returns the currently effective API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// DiscoverRegion performs the region lookup call and switches the client to
// the region-specific base URL. A failed lookup keeps the configured default
// and is not fatal.
func (c *Client) DiscoverRegion(ctx context.Context) error {
	var envelope regionResponse
	if err := c.get(ctx, "region", "/api/1/users/region", nil, &envelope); err != nil {
		if exception.IsAuthError(err) {
			return err
		}
		logger.Warnf("Region lookup failed; keeping base URL %s: %v", c.baseURL, err)
		return nil
	}
	if envelope.Response != nil && envelope.Response.FleetAPIBaseURL != "" {
		logger.Infof("Region '%s' resolved. Using base URL %s.", envelope.Response.Region, envelope.Response.FleetAPIBaseURL)
		c.baseURL = envelope.Response.FleetAPIBaseURL
	}
	return nil
}

// ProductList fetches the account's product list.
func (c *Client) ProductList(ctx context.Context) ([]Product, error) {
	var envelope productListResponse
	if err := c.get(ctx, "product_list", "/api/1/products", nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Response, nil
}

// FindEnergySite selects the first energy site from a product list.
func FindEnergySite(products []Product) (int64, error) {
	for _, p := range products {
		if p.EnergySiteID != 0 {
			return p.EnergySiteID, nil
		}
	}
	return 0, exception.NewSchemaError(clientModule, "product list holds no energy site", nil)
}

// SiteConfig fetches the site metadata (install date, timezone).
func (c *Client) SiteConfig(ctx context.Context, siteID int64) (*SiteConfig, error) {
	var envelope siteConfigResponse
	path := fmt.Sprintf("/api/1/energy_sites/%d/site_info", siteID)
	if err := c.get(ctx, "site_config", path, nil, &envelope); err != nil {
		return nil, err
	}
	if envelope.Response == nil {
		return nil, exception.NewSchemaError(clientModule, "site info response holds no payload", nil)
	}
	return envelope.Response, nil
}

// CalendarHistory fetches one calendar history bucket.
// An empty time series is a valid terminal signal (the site had no activity
// in that bucket), not an error.
//
// Parameters:
//
//	siteID: The energy site identifier.
//	kind: "power" or "energy".
//	period: The bucket granularity ("day" or "month").
//	endDate: The inclusive end instant of the bucket, in site-local time.
//	timezone: The site's IANA timezone name.
func (c *Client) CalendarHistory(ctx context.Context, siteID int64, kind, period string, endDate time.Time, timezone string) ([]map[string]interface{}, error) {
	query := url.Values{}
	query.Set("kind", kind)
	query.Set("period", period)
	query.Set("end_date", endDate.Format(time.RFC3339))
	if timezone != "" {
		query.Set("time_zone", timezone)
	}

	var envelope calendarHistoryResponse
	path := fmt.Sprintf("/api/1/energy_sites/%d/calendar_history", siteID)
	if err := c.get(ctx, "calendar_history_"+kind, path, query, &envelope); err != nil {
		return nil, err
	}
	if envelope.Response == nil {
		return nil, nil
	}
	return envelope.Response.TimeSeries, nil
}

// get performs one authenticated GET with pacing, bounded retry and the
// one-shot 401 refresh.
func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values, target interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	refreshed := false
	attempt := 1
	for {
		err := c.doOnce(ctx, endpoint, u, target)
		if err == nil {
			return nil
		}

		if errors.Is(err, errUnauthorized) {
			if !refreshed {
				refreshed = true
				logger.Warnf("Request to %s was rejected as unauthorized. Refreshing token once.", endpoint)
				if rerr := c.creds.Refresh(ctx); rerr != nil {
					return rerr
				}
				// The refresh retry does not consume a backoff attempt.
				continue
			}
			return exception.NewAuthError(clientModule, fmt.Sprintf("request to %s rejected after token refresh", endpoint), nil)
		}

		if attempt < c.policy.GetMaxAttempts() && c.policy.ShouldRetry(err) {
			c.observer.ObserveRetry(endpoint)
			interval := c.policy.GetBackoffInterval(attempt)
			logger.Debugf("Transient failure on %s (attempt %d/%d). Backing off %v: %v", endpoint, attempt, c.policy.GetMaxAttempts(), interval, err)
			if serr := c.sleeper.Sleep(ctx, interval); serr != nil {
				return serr
			}
			attempt++
			continue
		}
		return err
	}
}

// doOnce issues a single paced, authenticated request and classifies the outcome.
func (c *Client) doOnce(ctx context.Context, endpoint, u string, target interface{}) error {
	token, err := c.creds.AccessToken(ctx)
	if err != nil {
		return err
	}

	if err := c.pace(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return exception.NewBatchErrorf(clientModule, "failed to build request for %s", endpoint, false, false, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	start := c.clock()
	c.lastRequest = start
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return exception.NewFetchError(clientModule, fmt.Sprintf("request to %s failed", endpoint), err)
	}
	defer resp.Body.Close()
	c.observer.ObserveRequest(endpoint, resp.StatusCode, c.clock().Sub(start))

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%s: %w", endpoint, errUnauthorized)
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return exception.NewFetchError(clientModule, fmt.Sprintf("request to %s returned status %d", endpoint, resp.StatusCode), nil)
	default:
		// Other client errors will not improve on retry; the bucket is skipped.
		return exception.NewBatchError(clientModule,
			fmt.Sprintf("request to %s returned status %s", endpoint, strconv.Itoa(resp.StatusCode)),
			fmt.Errorf("%w: status %d", exception.ErrFetch, resp.StatusCode), true, false)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return exception.NewFetchError(clientModule, fmt.Sprintf("failed to read response from %s", endpoint), err)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return exception.NewSchemaError(clientModule, fmt.Sprintf("response from %s is not decodable", endpoint), err)
	}
	return nil
}

// pace enforces the minimum inter-request delay.
func (c *Client) pace(ctx context.Context) error {
	if c.lastRequest.IsZero() || c.minInterval <= 0 {
		return nil
	}
	elapsed := c.clock().Sub(c.lastRequest)
	if wait := c.minInterval - elapsed; wait > 0 {
		return c.sleeper.Sleep(ctx, wait)
	}
	return nil
}
