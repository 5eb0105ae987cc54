package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/rickgao/livesync/internal/logging"
	"github.com/rickgao/livesync/internal/metrics"
	"github.com/rickgao/livesync/internal/retry"
)

// doRequest performs a single HTTP round trip with the given bearer token.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body []byte, token string) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if id, ok := logging.CorrelationID(ctx); ok {
		req.Header.Set("X-Request-ID", id)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &RequestError{Kind: KindNetwork, Method: method, Path: path, Err: err}
		}
	}

	exchange := func() ([]byte, error) {
		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.metrics.ObserveRequest(method, 0, time.Since(start))
			return nil, &RequestError{Kind: KindNetwork, Method: method, Path: path, Err: err}
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		c.metrics.ObserveRequest(method, resp.StatusCode, time.Since(start))
		if err != nil {
			return nil, &RequestError{Kind: KindNetwork, Method: method, Path: path, Err: fmt.Errorf("read response: %w", err)}
		}

		if resp.StatusCode >= 400 {
			return nil, &RequestError{
				Kind:       kindForStatus(resp.StatusCode),
				StatusCode: resp.StatusCode,
				Method:     method,
				Path:       path,
				Message:    errorMessage(resp.StatusCode, respBody),
				Body:       respBody,
			}
		}
		return respBody, nil
	}

	if c.breaker == nil {
		return exchange()
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return exchange()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &RequestError{Kind: KindNetwork, Method: method, Path: path, Err: err}
	}
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

// send performs a request with the session's token. The first 401 in a
// call chain refreshes the credential and replays the request; refreshed
// records that across attempts, so any later 401 is final.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, body []byte, refreshed *bool) ([]byte, error) {
	token := c.accessToken()

	data, err := c.doRequest(ctx, method, path, query, body, token)
	if c.session == nil || *refreshed || !isUnauthorized(err) {
		return data, err
	}
	*refreshed = true

	c.logger.DebugContext(ctx, "refreshing credential after 401", "path", path)
	fresh, refreshErr := c.session.Refresh(ctx, token)
	if refreshErr != nil {
		c.metrics.ObserveRefresh(metrics.OutcomeError)
		return nil, &RequestError{
			Kind:       KindAuth,
			StatusCode: http.StatusUnauthorized,
			Method:     method,
			Path:       path,
			Message:    "credential refresh failed",
			Err:        refreshErr,
		}
	}
	c.metrics.ObserveRefresh(metrics.OutcomeSuccess)

	return c.doRequest(ctx, method, path, query, body, fresh)
}

// doWithRetry performs a request with exponential backoff on 5xx and 429.
func (c *Client) doWithRetry(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	var refreshed bool

	policy := retry.Policy{
		MaxAttempts:    c.maxRetries + 1,
		InitialBackoff: c.retryBackoff,
		Clock:          c.clock,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			c.logger.DebugContext(ctx, "retrying request",
				"attempt", attempt,
				"backoff", backoff,
				"path", path,
				"error", err,
			)
		},
	}

	body, err := retry.Do(ctx, policy, classify, func(ctx context.Context) ([]byte, error) {
		return c.send(ctx, method, path, query, nil, &refreshed)
	})
	var perm *retry.PermanentError
	if errors.As(err, &perm) {
		return nil, perm.Err
	}
	return body, err
}

// classify retries server errors and rate limiting. Everything else,
// including transport failures, is final.
func classify(err error) retry.Action {
	var reqErr *RequestError
	if errors.As(err, &reqErr) && reqErr.IsRetryable() {
		return retry.Retry
	}
	return retry.Stop
}

func (c *Client) accessToken() string {
	if c.session == nil {
		return ""
	}
	return c.session.AccessToken()
}

// get performs an authenticated GET request with retries.
func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	ctx, _ = logging.EnsureCorrelationID(ctx)

	body, err := c.doWithRetry(ctx, http.MethodGet, path, query)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	return nil
}

// post performs an authenticated POST request without retries. result may
// be nil when the response body is ignored.
func (c *Client) post(ctx context.Context, path string, payload, result any) error {
	ctx, _ = logging.EnsureCorrelationID(ctx)

	body, err := encodeBody(payload)
	if err != nil {
		return err
	}

	var refreshed bool
	resp, err := c.send(ctx, http.MethodPost, path, nil, body, &refreshed)
	if err != nil {
		return err
	}
	return decodeBody(resp, result)
}

// postAnonymous performs a POST without credentials or refresh handling.
// Used by the auth endpoints so a refresh never recurses into itself.
func (c *Client) postAnonymous(ctx context.Context, path string, payload, result any) error {
	ctx, _ = logging.EnsureCorrelationID(ctx)

	body, err := encodeBody(payload)
	if err != nil {
		return err
	}

	resp, err := c.doRequest(ctx, http.MethodPost, path, nil, body, "")
	if err != nil {
		return err
	}
	return decodeBody(resp, result)
}

func encodeBody(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return body, nil
}

func decodeBody(body []byte, result any) error {
	if result == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
