// Package backend is the HTTP client for the agent backend: the streaming
// chat endpoint, the project storage endpoints, and the image upload endpoint.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"canvaschat/internal/domain"
	"canvaschat/internal/infra/config"
)

// maxResponseBody is the maximum response body size read from the backend.
const maxResponseBody = 32 * 1024 * 1024 // 32 MB; project documents embed file blobs

// Circuit breaker defaults for the storage endpoints.
const (
	cbMaxFailures uint32        = 5
	cbTimeout     time.Duration = 30 * time.Second
	cbInterval    time.Duration = 60 * time.Second
)

// Client talks to the agent backend. Storage writes go through a token-bucket
// rate limiter and a circuit breaker; the streaming chat path bypasses both
// (a chat turn is user-initiated and already guarded by the session's busy
// flag).
type Client struct {
	baseURL string
	http    *http.Client
	// stream has no client timeout: an SSE response stays open for the whole
	// generation. Cancellation comes from the request context.
	stream  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *slog.Logger
}

// New creates a backend client from config.
func New(cfg config.BackendConfig, logger *slog.Logger) *Client {
	ratePerSec := cfg.SaveRatePerSec
	if ratePerSec <= 0 {
		ratePerSec = 2
	}
	burst := cfg.SaveBurst
	if burst <= 0 {
		burst = 4
	}

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "backend:storage",
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    cbInterval,
		Timeout:     cbTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cbMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		stream:  &http.Client{},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
		breaker: cb,
		logger:  logger,
	}
}

// doJSON performs a JSON request and returns the response body.
func (c *Client) doJSON(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, mapHTTPError(httpResp.StatusCode, respBody)
	}
	return respBody, nil
}

// doGuardedJSON is doJSON behind the rate limiter and circuit breaker; used
// for the storage write paths.
func (c *Client) doGuardedJSON(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("save rate limiter: %w", err)
	}
	return c.breaker.Execute(func() ([]byte, error) {
		return c.doJSON(ctx, method, url, body)
	})
}

// doStream performs a JSON POST for SSE streaming and returns the open
// response. The caller must close the body.
func (c *Client) doStream(ctx context.Context, url string, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	httpResp, err := c.stream.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, mapHTTPError(httpResp.StatusCode, respBody)
	}
	return httpResp, nil
}

// mapHTTPError maps an HTTP status code + response body to a domain error so
// callers and the circuit breaker can classify failures.
func mapHTTPError(statusCode int, body []byte) error {
	detail := fmt.Sprintf("API error %d: %s", statusCode, string(body))

	switch {
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimit, detail)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrAuthInvalid, detail)
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, detail)
	case statusCode >= 500:
		return fmt.Errorf("%w: %s", domain.ErrUpstream, detail)
	default:
		return fmt.Errorf("%s", detail)
	}
}

func marshalBody(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return data, nil
}
