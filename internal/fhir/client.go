package fhir

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"stealthcompany.com/fhirrecord/internal/fhirerr"
	"stealthcompany.com/fhirrecord/internal/jsonpath"
	"stealthcompany.com/fhirrecord/internal/metrics"
)

const (
	// ContentType is sent and accepted for every FHIR payload
	ContentType = "application/fhir+json"

	defaultTimeout = 30 * time.Second
)

// Config holds the connection settings of the source and destination servers
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Count and Format are appended to every search URL; zero values are omitted
	Count  int
	Format string
	// RateLimit is the maximum number of requests per second, 0 for no limit
	RateLimit float64
	// MaxPages caps pagination, 0 for no cap
	MaxPages int

	DestinationURL string
	UploadMethod   string
}

// Client talks to the source FHIR server and, when configured, uploads
// assembled bundles to a destination server. It issues one request at a time.
type Client struct {
	httpClient *http.Client
	config     Config
	limiter    *rate.Limiter
	collector  *Collector
}

// Response is a raw server reply
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the server answered with a 2xx status
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// StatusError is returned when the source server answers a search with a
// non-ok status
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("FHIR server returned status %d for %s", e.StatusCode, e.URL)
}

func (e *StatusError) Unwrap() error { return fhirerr.ErrTransportFailure }

// NewClient creates a new FHIR client
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config:  cfg,
		limiter: limiter,
	}
	c.collector = NewCollector(c, cfg.MaxPages)
	return c
}

// BaseURL returns the source server root
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// SearchURL builds <base>/<type><suffix><code>&_format=<fmt>&_count=<n>
func (c *Client) SearchURL(resourceType, suffix, code string) string {
	var b strings.Builder
	b.WriteString(c.config.BaseURL)
	b.WriteByte('/')
	b.WriteString(resourceType)
	b.WriteString(suffix)
	b.WriteString(code)

	sep := "&"
	if !strings.Contains(suffix, "?") {
		sep = "?"
	}
	if c.config.Format != "" {
		b.WriteString(sep + "_format=" + c.config.Format)
		sep = "&"
	}
	if c.config.Count > 0 {
		b.WriteString(sep + "_count=" + strconv.Itoa(c.config.Count))
	}
	return b.String()
}

// Get performs a GET and returns the raw reply. Errors are transport
// failures; non-ok statuses are reported through Response.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	return c.do(ctx, "search", http.MethodGet, url, nil, nil)
}

// GetBundle fetches url and decodes the reply into a JSON tree
func (c *Client) GetBundle(ctx context.Context, url string) (jsonpath.Node, error) {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return jsonpath.Node{}, err
	}

	if !resp.OK() {
		return jsonpath.Node{}, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	bundle, err := jsonpath.Parse(resp.Body)
	if err != nil {
		return jsonpath.Node{}, fmt.Errorf("failed to decode FHIR bundle from %s: %w: %w", url, fhirerr.ErrTransportFailure, err)
	}
	return bundle, nil
}

// CollectAll gathers the entries of every page of a search
func (c *Client) CollectAll(ctx context.Context, url string) ([]jsonpath.Node, error) {
	return c.collector.CollectAll(ctx, url)
}

func (c *Client) do(ctx context.Context, operation, method, url string, body io.Reader, header http.Header) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed to wait for request slot: %w: %w", fhirerr.ErrTransportFailure, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w: %w", fhirerr.ErrTransportFailure, err)
	}
	req.Header.Set("Accept", ContentType)
	for k, v := range header {
		req.Header[k] = v
	}

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)

	if err != nil {
		metrics.RecordFetch(operation, 0, duration)
		return nil, fmt.Errorf("failed to fetch %s: %w: %w", url, fhirerr.ErrTransportFailure, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("Failed to close response body")
		}
	}()

	metrics.RecordFetch(operation, resp.StatusCode, duration)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body from %s: %w: %w", url, fhirerr.ErrTransportFailure, err)
	}

	log.Debug().
		Str("method", method).
		Str("url", url).
		Int("status", resp.StatusCode).
		Dur("duration", duration).
		Msg("FHIR request completed")

	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}
