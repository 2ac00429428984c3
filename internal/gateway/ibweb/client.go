// Package ibweb implements the broker boundary against the Interactive
// Brokers Client Portal gateway, a local HTTPS process exposing the
// brokerage session as REST. The gateway serves a self-signed
// certificate, so the client supports insecure TLS for localhost use.
package ibweb

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hedgerd/internal/gateway/broker"
	"hedgerd/internal/logger"
)

// Config describes how to reach the Client Portal gateway.
type Config struct {
	BaseURL            string
	TimeoutSeconds     int
	InsecureSkipVerify bool
	// AccountID selects the brokerage account; resolved from the
	// gateway when empty.
	AccountID string
}

// Client is a thin REST client over the gateway. All methods are
// bounded by the HTTP client timeout.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	accountID  string
}

const defaultTimeout = 10 * time.Second

func NewClient(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, fmt.Errorf("ibweb: base url cannot be empty")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("ibweb: parsing base url: %w", err)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402
		} else {
			transport.TLSClientConfig.InsecureSkipVerify = true // #nosec G402
		}
	}
	return &Client{
		baseURL: parsed,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		accountID: strings.TrimSpace(cfg.AccountID),
	}, nil
}

// SetHTTPClient sets the HTTP client for testing.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

func (c *Client) post(ctx context.Context, path string, body io.Reader) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, nil, body)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return nil, fmt.Errorf("%w: building %s %s: %v", broker.ErrOperation, method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", broker.ErrOperation, method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s response: %v", broker.ErrOperation, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Debugf("ibweb: %s %s -> %d: %s", method, path, resp.StatusCode, truncate(payload, 300))
		return nil, fmt.Errorf("%w: %s %s returned %d", broker.ErrOperation, method, path, resp.StatusCode)
	}
	return payload, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
