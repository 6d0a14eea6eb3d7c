// Package census is a client for the U.S. Census Bureau Data API
// (https://api.census.gov/data). Metadata documents are fetched without a
// key and cached; data queries require an API key.
package census

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/rhuss/mcp-census/pkg/cache"
	"github.com/rhuss/mcp-census/pkg/debug"
	"github.com/rhuss/mcp-census/pkg/observability"
)

const (
	DefaultBaseURL    = "https://api.census.gov/data"
	DefaultCatalogURL = "https://api.census.gov/data.json"
)

// maxResponseBody caps upstream bodies; variables.json for the largest
// ACS tables is tens of megabytes.
const maxResponseBody = 128 << 20

// Options configures a Client.
type Options struct {
	BaseURL    string
	CatalogURL string
	APIKey     string
	Timeout    time.Duration
	CacheSize  int
	CacheTTL   time.Duration
}

// Client calls the Census Data API.
type Client struct {
	BaseURL    string
	CatalogURL string
	APIKey     string
	HTTPClient *http.Client

	cache *cache.LRU[[]byte]
}

// New creates a Client. Empty URLs fall back to the public endpoints.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.CatalogURL == "" {
		opts.CatalogURL = DefaultCatalogURL
	}
	return &Client{
		BaseURL:    strings.TrimRight(opts.BaseURL, "/"),
		CatalogURL: opts.CatalogURL,
		APIKey:     opts.APIKey,
		HTTPClient: &http.Client{Timeout: opts.Timeout},
		cache:      cache.New[[]byte](opts.CacheSize, opts.CacheTTL),
	}
}

// datasetURL returns {base}/{year}/{dataset}. Timeseries datasets have no
// vintage, so an empty year is omitted.
func (c *Client) datasetURL(year, dataset string) (string, error) {
	dataset = strings.Trim(dataset, "/")
	if dataset == "" {
		return "", fmt.Errorf("%w: dataset is required", ErrInvalidQuery)
	}
	if strings.Contains(dataset, "..") || strings.Contains(year, "/") || strings.Contains(year, "..") {
		return "", fmt.Errorf("%w: malformed year or dataset", ErrInvalidQuery)
	}
	if year == "" {
		return c.BaseURL + "/" + dataset, nil
	}
	return c.BaseURL + "/" + year + "/" + dataset, nil
}

// metadata fetches a metadata document ({dataset URL}/{file}) through the
// cache. The returned slice is shared with the cache and must not be
// modified or handed out.
func (c *Client) metadata(ctx context.Context, op, year, dataset, file string) ([]byte, error) {
	base, err := c.datasetURL(year, dataset)
	if err != nil {
		return nil, err
	}
	u := base + "/" + file

	if body, ok := c.cache.Get(u); ok {
		debug.Log("census", "metadata cache hit", "op", op, "url", u)
		return body, nil
	}

	body, _, err := c.get(ctx, op, u, nil)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, fmt.Errorf("%w: empty %s", ErrNoData, file)
	}
	c.cache.Put(u, body)
	return body, nil
}

// get performs a GET and returns the body of a 2xx response. The returned
// status is 0 when the request never completed.
func (c *Client) get(ctx context.Context, op, rawURL string, params url.Values) ([]byte, int, error) {
	ctx, span := observability.StartSpan(ctx, "census."+op)
	defer span.End()

	fullURL := rawURL
	if len(params) > 0 {
		fullURL += "?" + encodeParams(params)
	}
	redacted := redactURL(rawURL, params)
	span.SetAttributes(
		attribute.String("census.endpoint", op),
		attribute.String("url.full", redacted),
	)

	start := time.Now()
	body, status, err := c.do(ctx, fullURL)
	duration := time.Since(start)

	statusLabel := "error"
	if status > 0 {
		statusLabel = strconv.Itoa(status)
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	observability.UpstreamRequestsTotal.WithLabelValues(op, statusLabel).Inc()
	observability.UpstreamDuration.WithLabelValues(op).Observe(duration.Seconds())
	debug.Log("census", "upstream request", "op", op, "url", redacted, "status", status, "duration", duration)
	if debug.TraceIsEnabled("census") {
		debug.Trace("census", "upstream response body", "op", op, "url", redacted, "body", string(body))
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, status, fmt.Errorf("census %s request: %w", op, err)
	}

	if status < 200 || status > 299 {
		serr := &StatusError{StatusCode: status, URL: redacted, Body: truncateBody(body)}
		span.SetStatus(codes.Error, serr.Error())
		return nil, status, serr
	}
	if status == http.StatusNoContent {
		return nil, status, nil
	}

	// An invalid key is answered with 200 and an HTML page.
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || (trimmed[0] != '[' && trimmed[0] != '{') {
		span.SetStatus(codes.Error, "non-JSON response")
		return nil, status, fmt.Errorf("%w from %s: %s", ErrInvalidResponse, redacted, truncateBody(trimmed))
	}
	return body, status, nil
}

func (c *Client) do(ctx context.Context, fullURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		// Never surface the URL from *url.Error; it carries the key.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return nil, 0, uerr.Err
		}
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// encodeParams encodes params sorted by key, preserving the order of
// repeated values. Spaces become %20 because level names such as
// "county subdivision" contain them.
func encodeParams(params url.Values) string {
	return strings.ReplaceAll(params.Encode(), "+", "%20")
}

func redactURL(rawURL string, params url.Values) string {
	if len(params) == 0 {
		return rawURL
	}
	if _, ok := params["key"]; !ok {
		return rawURL + "?" + encodeParams(params)
	}
	safe := make(url.Values, len(params))
	for k, v := range params {
		safe[k] = v
	}
	safe.Set("key", "REDACTED")
	return rawURL + "?" + encodeParams(safe)
}
