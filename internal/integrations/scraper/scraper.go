// Package scraper fetches raw page markup from Stack Overflow.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	fetchTimeout = 10 * time.Second
	// Stack Overflow serves a challenge page to clients without a browser UA.
	userAgent = "Mozilla/5.0"
)

// Client fetches question pages over HTTP. Single attempt, no retry.
type Client struct {
	http *resty.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at an alternate host. Tests use this to
// target an httptest server.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.http.SetBaseURL(strings.TrimRight(baseURL, "/"))
	}
}

// New creates a page fetcher with a 10s timeout.
func New(opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetTimeout(fetchTimeout).
			SetHeader("User-Agent", userAgent),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch retrieves the page at url and returns its body as a string.
// A non-2xx status is an error.
func (c *Client) Fetch(ctx context.Context, url string) (string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return "", errors.New("scraper: url must not be empty")
	}

	res, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", fmt.Errorf("scraper: fetch %s: %w", url, err)
	}
	if res.IsError() {
		return "", fmt.Errorf("scraper: fetch %s: unexpected status %d", url, res.StatusCode())
	}
	return string(res.Body()), nil
}
