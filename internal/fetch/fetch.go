// Package fetch is the HTTP collaborator for manifest resolution. It
// downloads manifest documents with retry logic and reports the URL a
// request finally resolved to, which parsers need as the base for
// relative references.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"streamnorm/internal/logger"
)

const (
	maxRetries     = 3
	retryDelay     = 100 * time.Millisecond
	requestTimeout = 5 * time.Second
)

// Client downloads manifests over HTTP. It satisfies the parsers'
// Fetcher and URLProber collaborator interfaces.
type Client struct {
	httpClient *http.Client
	logger     logger.Logger
	userAgent  string
}

// NewClient creates a client. An empty userAgent leaves the Go default.
func NewClient(log logger.Logger, userAgent string) *Client {
	transport := &http.Transport{
		ResponseHeaderTimeout: 3 * time.Second,
	}
	return &Client{
		httpClient: &http.Client{Transport: transport},
		logger:     log,
		userAgent:  userAgent,
	}
}

// HTTPClient returns the underlying http.Client instance.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Fetch downloads rawURL with per-request timeout and retries. A non-nil
// data body turns the request into a POST. The returned URL is the one
// the request resolved to after redirects.
func (c *Client) Fetch(rawURL string, headers http.Header, query url.Values, data []byte) ([]byte, string, error) {
	reqURL := rawURL
	if len(query) > 0 {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, "", fmt.Errorf("failed to parse URL %s: %w", rawURL, err)
		}
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
		reqURL = u.String()
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		body, finalURL, err := c.fetchOnce(reqURL, headers, data)
		if err == nil {
			return body, finalURL, nil
		}
		lastErr = err
		c.logger.Warnf("Fetch attempt %d/%d for %s failed: %v", attempt, maxRetries, reqURL, err)
		time.Sleep(retryDelay)
	}
	return nil, "", fmt.Errorf("failed to fetch %s after %d attempts: %w", reqURL, maxRetries, lastErr)
}

func (c *Client) fetchOnce(reqURL string, headers http.Header, data []byte) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	method := http.MethodGet
	var reqBody io.Reader
	if data != nil {
		method = http.MethodPost
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.logger.Debugf("Fetching %s", reqURL)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	// resp.Request points at the last request in the redirect chain.
	finalURL := resp.Request.URL.String()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("received status code %d from %s", resp.StatusCode, finalURL)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response body: %w", err)
	}
	return body, finalURL, nil
}

// Probe checks reachability with a HEAD request, without retries. Some
// origins reject HEAD outright; those count as reachable.
func (c *Client) Probe(rawURL string) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented {
		return nil
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("received status code %d", resp.StatusCode)
	}
	return nil
}
