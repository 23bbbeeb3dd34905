package rest

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/net/http2"

	"github.com/Cray-HPE/sat-sub000/internal/common"
)

// ClientConfig holds configuration for the HTTP client
type ClientConfig struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
	EnableHTTP2        bool

	// MaxRetryElapsed bounds the exponential backoff applied to transient
	// request errors. Zero disables retrying.
	MaxRetryElapsed time.Duration
}

// DefaultClientConfig returns the default HTTP client configuration
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:            10 * time.Second,
		InsecureSkipVerify: false, // Only set to true in development
		EnableHTTP2:        true,
		MaxRetryElapsed:    15 * time.Second,
	}
}

// Client provides a wrapper around http.Client with retry and improved error
// handling, shared by the REST-polling condition checkers.
type Client struct {
	client *http.Client
	config ClientConfig
}

// NewClient creates a new HTTP client
func NewClient(config ClientConfig) (*Client, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: config.InsecureSkipVerify,
		},
	}

	if config.EnableHTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			return nil, fmt.Errorf("failed to configure HTTP/2 transport: %w", err)
		}
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   config.Timeout,
	}

	return &Client{
		client: client,
		config: config,
	}, nil
}

// Get performs a GET request, retrying transient transport errors with
// exponential backoff. Non-2xx responses are returned to the caller
// untouched; they are a poll result, not a transport error.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*http.Response, error) {
	var resp *http.Response

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(fmt.Errorf("context canceled during request: %w", ctx.Err()))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		for key, value := range headers {
			req.Header.Set(key, value)
		}

		resp, err = c.client.Do(req)
		if err != nil {
			return err // Retry this error
		}
		return nil
	}

	if c.config.MaxRetryElapsed <= 0 {
		if err := operation(); err != nil {
			return nil, common.UnavailableError("GET %s failed: %v", url, err)
		}
		return resp, nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.config.MaxRetryElapsed

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, common.UnavailableError("GET %s failed: %v", url, err)
	}
	return resp, nil
}

// ReadResponseBody reads and closes the response body
func (c *Client) ReadResponseBody(resp *http.Response) ([]byte, error) {
	if resp == nil {
		return nil, fmt.Errorf("response is nil")
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, nil
}
