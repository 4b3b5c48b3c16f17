// Package azure talks to the hosted Computer Vision REST API.
package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/menta2k/image-describer/pkg/types"
)

// APIVersion is the REST API version path segment
const APIVersion = "v3.2"

// KeyHeader carries the subscription key
const KeyHeader = "Ocp-Apim-Subscription-Key"

// Client is a Computer Vision REST client
type Client struct {
	baseURL    string
	key        string
	language   string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for requests
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets a per-request timeout; zero keeps the client default
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithLanguage sets the language of captions and tags
func WithLanguage(lang string) Option {
	return func(c *Client) { c.language = lang }
}

// NewClient creates a client for the resource at endpoint authenticated by key
func NewClient(endpoint, key string, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid endpoint %q: scheme and host required", endpoint)
	}
	if key == "" {
		return nil, fmt.Errorf("subscription key is empty")
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(endpoint, "/"),
		key:        key,
		language:   "en",
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Analyze runs the requested visual features over the image
func (c *Client) Analyze(ctx context.Context, image []byte, features []types.VisualFeature) (*types.AnalysisResult, error) {
	if len(features) == 0 {
		features = types.DefaultFeatures
	}
	names := make([]string, len(features))
	for i, f := range features {
		names[i] = string(f)
	}

	q := url.Values{}
	q.Set("visualFeatures", strings.Join(names, ","))
	if c.language != "" {
		q.Set("language", c.language)
	}

	resp, err := c.post(ctx, "analyze", q, image)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result types.AnalysisResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse analysis response: %w", err)
	}
	return &result, nil
}

// Thumbnail requests a generated thumbnail. The returned stream is the
// response body; the caller must close it.
func (c *Client) Thumbnail(ctx context.Context, width, height int, image []byte, smartCropping bool) (io.ReadCloser, error) {
	q := url.Values{}
	q.Set("width", strconv.Itoa(width))
	q.Set("height", strconv.Itoa(height))
	q.Set("smartCropping", strconv.FormatBool(smartCropping))

	resp, err := c.post(ctx, "generateThumbnail", q, image)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Close releases idle connections
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// post sends the image and returns the response when the status is 2xx
func (c *Client) post(ctx context.Context, operation string, query url.Values, image []byte) (*http.Response, error) {
	endpoint := fmt.Sprintf("%s/vision/%s/%s?%s", c.baseURL, APIVersion, operation, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set(KeyHeader, c.key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", operation, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}
