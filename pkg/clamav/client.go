package clamav

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"
)

const (
	// DefaultScanTimeout bounds a single scan call.
	DefaultScanTimeout = 15 * time.Minute

	defaultRequestTimeout = 30 * time.Second
	userAgent             = "LayerScan"
	maxErrorBodySize      = 64 * 1024
)

// Clientset defines methods of the scan service client.
type Clientset interface {
	Info(ctx context.Context) (Info, error)
	Health(ctx context.Context) (Health, error)
	Monitor(ctx context.Context) (MonitoringInfo, error)
	Scan(ctx context.Context, data io.Reader, timeout time.Duration) (Verdict, error)
	StreamScan(ctx context.Context, data io.Reader, timeout time.Duration) (*EventStream, error)
	SSEScan(ctx context.Context, data io.Reader, timeout time.Duration) (Verdict, error)
}

// Client represents the scan service client.
//
// The client never retries; retry policy belongs to the caller.
type Client struct {
	routes     Routes
	httpClient *http.Client
	logger     logr.Logger
}

var _ Clientset = &Client{}

type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLogger(logger logr.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient constructs a new scan service client with the specified base URL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	routes, err := NewRoutes(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid scan service URL %q: %w", baseURL, err)
	}
	c := &Client{
		routes:     routes,
		httpClient: &http.Client{},
		logger:     logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithName("clamav")
	return c, nil
}

func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Add("User-Agent", userAgent)
	if body != nil {
		req.Header.Add("Content-Type", "application/octet-stream")
	}
	return req, nil
}

// do sends the request and returns the response if its status code is 2xx.
func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(ctx, req.Method+" "+req.URL.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, newScanError(resp)
	}
	return resp, nil
}

func newScanError(resp *http.Response) *ScanError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	return &ScanError{
		StatusCode: resp.StatusCode,
		Message:    errorMessage(resp.StatusCode, body),
	}
}

// errorMessage extracts a human readable message from an error response body.
func errorMessage(statusCode int, body []byte) string {
	var doc struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &doc); err == nil {
		for _, m := range []string{doc.Message, doc.Error, doc.Detail} {
			if m != "" {
				return m
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return http.StatusText(statusCode)
}

func (c *Client) getJSON(ctx context.Context, url string, v interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Add("Accept", "application/json")
	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response from %s: %w", url, err)
	}
	return nil
}

func (c *Client) Info(ctx context.Context) (Info, error) {
	var info Info
	err := c.getJSON(ctx, c.routes.Info(), &info)
	return info, err
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var health Health
	err := c.getJSON(ctx, c.routes.Health(), &health)
	return health, err
}

func (c *Client) Monitor(ctx context.Context) (MonitoringInfo, error) {
	var info MonitoringInfo
	err := c.getJSON(ctx, c.routes.Monitor(), &info)
	return info, err
}

// Scan uploads data and waits for the buffered scan verdict.
func (c *Client) Scan(ctx context.Context, data io.Reader, timeout time.Duration) (Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, scanTimeout(timeout))
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodPost, c.routes.Scan(), data)
	if err != nil {
		return Verdict{}, err
	}
	req.Header.Add("Accept", "application/json")
	resp, err := c.do(ctx, req)
	if err != nil {
		return Verdict{}, err
	}
	defer resp.Body.Close()

	var scanResponse ScanResponse
	if err := json.NewDecoder(resp.Body).Decode(&scanResponse); err != nil {
		if ctx.Err() != nil {
			return Verdict{}, transportError(ctx, "reading scan response", err)
		}
		return Verdict{}, fmt.Errorf("decoding scan response: %w", err)
	}
	return scanResponse.Verdict()
}

// StreamScan uploads data and returns the stream of scan progress events.
// The returned EventStream must be closed by the caller.
func (c *Client) StreamScan(ctx context.Context, data io.Reader, timeout time.Duration) (*EventStream, error) {
	ctx, cancel := context.WithTimeout(ctx, scanTimeout(timeout))

	req, err := c.newRequest(ctx, http.MethodPost, c.routes.SSEScan(), data)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Add("Accept", "text/event-stream")
	resp, err := c.do(ctx, req)
	if err != nil {
		cancel()
		return nil, err
	}
	return newEventStream(ctx, cancel, resp.Body, c.logger), nil
}

// SSEScan uploads data and decodes the final verdict from the event stream.
func (c *Client) SSEScan(ctx context.Context, data io.Reader, timeout time.Duration) (Verdict, error) {
	stream, err := c.StreamScan(ctx, data, timeout)
	if err != nil {
		return Verdict{}, err
	}
	defer stream.Close()
	return stream.Verdict()
}

func scanTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return DefaultScanTimeout
	}
	return timeout
}
