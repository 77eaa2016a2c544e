package shopee

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"shopee-research/config"
	"shopee-research/models"
	"shopee-research/utils"
)

var (
	ErrEmptyKeyword = errors.New("shopee: empty keyword")
	ErrStatus       = errors.New("shopee: unexpected status")
	ErrMalformed    = errors.New("shopee: malformed response")
)

// maxBodyBytes caps how much of a search response is read.
const maxBodyBytes = 16 << 20

// Options configures a Client.
type Options struct {
	Endpoint    string
	SiteURL     string
	Timeout     time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
	Identity    *Identity
}

// OptionsFromConfig maps application config onto client options.
func OptionsFromConfig(cfg *config.Config, logger *utils.Logger) Options {
	return Options{
		Endpoint:    cfg.SearchEndpoint,
		SiteURL:     cfg.SiteURL,
		Timeout:     cfg.RequestTimeout,
		MaxAttempts: cfg.MaxRetries,
		RetryDelay:  cfg.RetryDelay,
		Identity:    IdentityFromConfig(cfg, logger),
	}
}

// Client queries the Shopee search API, one keyword per call.
type Client struct {
	endpoint *url.URL
	siteURL  string
	timeout  time.Duration
	identity *Identity
	retry    *utils.RetryConfig
	logger   *utils.Logger
}

// New creates a ready-to-use Client.
func New(opts Options, logger *utils.Logger) (*Client, error) {
	endpoint, err := url.Parse(opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("shopee: parse endpoint %q: %w", opts.Endpoint, err)
	}
	if endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, fmt.Errorf("shopee: endpoint %q is not absolute", opts.Endpoint)
	}

	id := opts.Identity
	if id == nil {
		id = &Identity{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		endpoint: endpoint,
		siteURL:  strings.TrimRight(opts.SiteURL, "/"),
		timeout:  timeout,
		identity: id,
		retry: &utils.RetryConfig{
			MaxAttempts: opts.MaxAttempts,
			BaseDelay:   opts.RetryDelay,
			Logger:      logger,
		},
		logger: logger,
	}, nil
}

// session is the per-call HTTP state: its own cookie jar and connections.
type session struct {
	client    *http.Client
	transport *http.Transport
	userAgent string
}

func (c *Client) newSession() (*session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("shopee: cookie jar: %w", err)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	return &session{
		client:    &http.Client{Jar: jar, Transport: transport},
		transport: transport,
		userAgent: c.identity.UserAgent(),
	}, nil
}

func (s *session) close() {
	s.transport.CloseIdleConnections()
}

// Search runs one query for req.Keyword. A response without items is an
// empty result, not an error. Transport failures, non-200 statuses and
// undecodable bodies are retried and then returned as errors.
func (c *Client) Search(ctx context.Context, req models.SearchRequest) ([]models.RawListing, error) {
	if !req.Valid() {
		return nil, ErrEmptyKeyword
	}
	keyword := strings.TrimSpace(req.Keyword)

	s, err := c.newSession()
	if err != nil {
		return nil, err
	}
	defer s.close()

	c.warmUp(ctx, s, keyword)

	apiURL := c.BuildSearchURL(req)
	var items []models.RawListing
	err = c.retry.Do(ctx, "search "+strconv.Quote(keyword), func() error {
		var fetchErr error
		items, fetchErr = c.fetch(ctx, s, apiURL)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("[shopee] %q returned %d items", keyword, len(items))
	return items, nil
}

func (c *Client) warmUp(ctx context.Context, s *session, keyword string) {
	if c.identity.Warmer == nil || c.siteURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.warmTimeout())
	defer cancel()

	page, err := http.NewRequestWithContext(ctx, http.MethodGet, c.SearchPageURL(keyword), nil)
	if err != nil {
		c.logger.Warn("[shopee] warm-up request for %q: %v", keyword, err)
		return
	}
	c.identity.Apply(page, s.userAgent)
	page.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	if err := c.identity.Warmer.Warm(ctx, s.client, page); err != nil {
		c.logger.Warn("[shopee] warm-up for %q failed, continuing without cookies: %v", keyword, err)
	}
}

// warmTimeout is the warmer's own budget when it declares one, otherwise
// the request timeout.
func (c *Client) warmTimeout() time.Duration {
	if w, ok := c.identity.Warmer.(interface{ WarmTimeout() time.Duration }); ok {
		if d := w.WarmTimeout(); d > 0 {
			return d
		}
	}
	return c.timeout
}

func (c *Client) fetch(ctx context.Context, s *session, apiURL string) ([]models.RawListing, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("shopee: build request: %w", err)
	}
	c.identity.Apply(req, s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("shopee: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	return decodeItems(io.LimitReader(resp.Body, maxBodyBytes))
}

// decodeItems reads the top-level "items" array. Entries that are not JSON
// objects are dropped; a missing or non-array "items" yields no items.
func decodeItems(r io.Reader) ([]models.RawListing, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	raw, ok := body["items"].([]any)
	if !ok {
		return nil, nil
	}

	items := make([]models.RawListing, 0, len(raw))
	for _, entry := range raw {
		if obj, ok := entry.(map[string]any); ok {
			items = append(items, models.RawListing(obj))
		}
	}
	return items, nil
}

// BuildSearchURL encodes req onto the configured endpoint.
func (c *Client) BuildSearchURL(req models.SearchRequest) string {
	u := *c.endpoint

	q := u.Query()
	q.Set("keyword", strings.TrimSpace(req.Keyword))
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	setIfNotEmpty(q, "by", req.By)
	setIfNotEmpty(q, "order", req.Order)
	setIfNotEmpty(q, "page_type", req.PageType)
	setIfNotEmpty(q, "scenario", req.Scenario)
	if req.Version > 0 {
		q.Set("version", strconv.Itoa(req.Version))
	}
	u.RawQuery = q.Encode()

	return u.String()
}

// SearchPageURL is the human-facing results page for keyword.
func (c *Client) SearchPageURL(keyword string) string {
	return c.siteURL + "/search?keyword=" + url.QueryEscape(keyword)
}

func setIfNotEmpty(q url.Values, key, val string) {
	if val != "" {
		q.Set(key, val)
	}
}
