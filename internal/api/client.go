package api

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	// gzipThreshold is the minimum body size for gzip compression.
	gzipThreshold = 1024 // 1 KiB

	// maxResponseSize is the maximum decompressed response body size (10 MiB).
	// Protects against gzip bombs in compressed responses.
	maxResponseSize = 10 * 1024 * 1024

	// userAgentPrefix is the User-Agent header prefix.
	userAgentPrefix = "tfconsole/"
)

// HealthSink receives the gateway's classification of every outcome that is
// relevant to global service health. Implementations must be fast: the
// gateway calls them synchronously, before the original caller sees the
// response, so the health gate is never momentarily stale.
type HealthSink interface {
	// ReportFailure is invoked for rate_limited and connection_error
	// outcomes. retryAfter is non-zero only for rate limiting.
	ReportFailure(kind FailureKind, retryAfter time.Duration)

	// ReportSuccess is invoked for 2xx responses. probe is true when the
	// call was the designated health probe.
	ReportSuccess(probe bool)
}

// Gateway is the single chokepoint through which all platform HTTP calls
// pass. It attaches credentials, classifies every outcome, and publishes
// health signals for failures that affect the whole application.
type Gateway struct {
	httpClient *http.Client
	baseURL    string
	version    string
	tokens     TokenSource
	logger     *slog.Logger

	mu     sync.RWMutex
	health HealthSink
}

// NewGateway creates a new Gateway client with the given configuration.
// tokens may be nil, in which case calls go out unauthenticated.
func NewGateway(cfg Config, version string, tokens TokenSource, logger *slog.Logger) (*Gateway, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.TLSInsecureSkipVerify,
		},
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		DisableCompression: true,
	}

	httpClient := &http.Client{
		Timeout:   cfg.RequestTimeout,
		Transport: transport,
	}

	if cfg.TLSInsecureSkipVerify {
		logger.Warn("TLS certificate verification disabled")
	}

	return &Gateway{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		version:    version,
		tokens:     tokens,
		logger:     logger,
	}, nil
}

// SetHealthSink registers the receiver for health signals. A nil sink
// disables signalling (classification still happens for the caller).
func (c *Gateway) SetHealthSink(sink HealthSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.health = sink
}

// healthSink returns the current health sink.
func (c *Gateway) healthSink() HealthSink {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.health
}

// token returns the current bearer token, or "" when no source is set.
func (c *Gateway) token() string {
	if c.tokens == nil {
		return ""
	}
	return c.tokens.Token()
}

// do is the core HTTP helper that handles JSON marshaling, gzip compression,
// request execution, response decoding, and health signalling. The health
// signal is published before the error is returned to the caller.
func (c *Gateway) do(ctx context.Context, method, path string, body, result any, probe bool) error {
	resp, err := c.sendRequest(ctx, method, path, body)
	if err != nil {
		c.signalFailure(err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := errorFromResponse(resp)
		c.signalFailure(apiErr)
		return apiErr
	}

	c.signalSuccess(probe)

	if result != nil {
		var reader io.Reader = resp.Body
		if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
			gr, err := gzip.NewReader(resp.Body)
			if err != nil {
				return fmt.Errorf("api: gzip decompress response: %w", err)
			}
			defer gr.Close()
			reader = io.LimitReader(gr, maxResponseSize)
		}
		if err := json.NewDecoder(reader).Decode(result); err != nil {
			return fmt.Errorf("api: decode response: %w", err)
		}
	}

	return nil
}

// signalFailure publishes rate_limited and connection_error outcomes to the
// health sink. Other failures stay local to the caller.
func (c *Gateway) signalFailure(err error) {
	sink := c.healthSink()
	if sink == nil {
		return
	}

	kind := Classify(err)
	if kind == FailureOther {
		return
	}

	var retryAfter time.Duration
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		retryAfter = apiErr.RetryAfter
	}
	sink.ReportFailure(kind, retryAfter)
}

// signalSuccess publishes a success outcome to the health sink.
func (c *Gateway) signalSuccess(probe bool) {
	if sink := c.healthSink(); sink != nil {
		sink.ReportSuccess(probe)
	}
}

// sendRequest builds and executes an HTTP request with standard headers,
// optional JSON body marshaling, and gzip compression for large payloads.
// Transport-level failures are wrapped in *ConnectionError.
func (c *Gateway) sendRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	var compressed bool

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("api: marshal request body: %w", err)
		}

		if len(data) > gzipThreshold {
			var buf bytes.Buffer
			gw := gzip.NewWriter(&buf)
			if _, err := gw.Write(data); err != nil {
				return nil, fmt.Errorf("api: gzip compress request: %w", err)
			}
			if err := gw.Close(); err != nil {
				return nil, fmt.Errorf("api: gzip close: %w", err)
			}
			bodyReader = &buf
			compressed = true
		} else {
			bodyReader = bytes.NewReader(data)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("api: create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if compressed {
		req.Header.Set("Content-Encoding", "gzip")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("User-Agent", userAgentPrefix+c.version)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ConnectionError{Op: method + " " + path, Err: err}
	}
	return resp, nil
}

// Ping sends the designated startup health probe.
// GET /v1/health
func (c *Gateway) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/v1/health", nil, nil, true)
}

// PostJSON sends a POST request with a JSON body and decodes the JSON response.
func (c *Gateway) PostJSON(ctx context.Context, path string, body any, result any) error {
	return c.do(ctx, http.MethodPost, path, body, result, false)
}

// GetJSON sends a GET request and decodes the JSON response.
func (c *Gateway) GetJSON(ctx context.Context, path string, result any) error {
	return c.do(ctx, http.MethodGet, path, nil, result, false)
}
