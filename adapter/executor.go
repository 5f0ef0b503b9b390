/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see LICENSE file for details.                                       *
 ******************************************************************************/

package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/PivotLLM/LedgerMCP/db"
	"github.com/PivotLLM/LedgerMCP/global"
)

// Executor issues one authenticated upstream call per Execute, handling
// throttling, a one-shot forced token refresh on 401, and classification of
// all other failures into the typed error taxonomy.
type Executor struct {
	tokens  *TokenManager
	store   db.Database
	config  *Config
	client  *http.Client
	limiter *rate.Limiter
	logger  global.Logger

	// sleep is injectable so tests can observe backoff without waiting
	sleep func(ctx context.Context, d time.Duration) error
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithHTTPClient sets the HTTP client used for data calls
func WithHTTPClient(client *http.Client) ExecutorOption {
	return func(e *Executor) {
		e.client = client
	}
}

// WithSleepFunc overrides the backoff sleep (used in tests)
func WithSleepFunc(sleep func(ctx context.Context, d time.Duration) error) ExecutorOption {
	return func(e *Executor) {
		e.sleep = sleep
	}
}

// NewExecutor creates an Executor
func NewExecutor(tokens *TokenManager, store db.Database, config *Config, logger global.Logger, options ...ExecutorOption) *Executor {
	e := &Executor{
		tokens: tokens,
		store:  store,
		config: config,
		logger: logger,
	}
	for _, option := range options {
		option(e)
	}
	if e.client == nil {
		e.client = &http.Client{Timeout: config.HTTPTimeout()}
	}
	if e.sleep == nil {
		e.sleep = contextSleep
	}
	if config.RateLimit.Enabled && config.RateLimit.RequestsPerSecond > 0 {
		burst := config.RateLimit.Burst
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(config.RateLimit.RequestsPerSecond), burst)
	}
	return e
}

// contextSleep waits for the duration or until the context is cancelled
func contextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Execute issues the request described by spec against the connection's
// region and returns the parsed response body
func (e *Executor) Execute(ctx context.Context, conn *db.ConnectionRecord, spec RequestSpec) (map[string]any, error) {
	region, err := e.config.RegionFor(conn.Region)
	if err != nil {
		return nil, fmt.Errorf("connection %s: %w", conn.ID, err)
	}

	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}
	return e.ExecuteURL(ctx, conn, method, spec.URL(region.BaseURL))
}

// ExecuteURL issues an authenticated call against an absolute URL. Used
// directly by the pagination engine, since continuation references already
// encode the full query.
func (e *Executor) ExecuteURL(ctx context.Context, conn *db.ConnectionRecord, method, fullURL string) (map[string]any, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	correlationID := uuid.NewString()
	maxAttempts := e.config.Retry.MaxAttempts
	refreshed := false

	var lastRetryAfter time.Duration

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		token, err := e.tokens.EnsureUsableToken(ctx, conn)
		if err != nil {
			return nil, err
		}

		resp, err := e.send(ctx, method, fullURL, token, correlationID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &UpstreamUnavailableError{Cause: err}
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			body, err := e.parseBody(resp)
			if err != nil {
				return nil, err
			}
			e.store.TouchConnectionLastUsed(conn.ID)
			return body, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			retryAfter := e.retryDelay(resp)
			lastRetryAfter = retryAfter
			e.drain(resp)

			if attempt == maxAttempts {
				if e.logger != nil {
					e.logger.Warningf("Rate limit retry budget exhausted after %d attempts for %s (correlation %s)",
						attempt, fullURL, correlationID)
				}
				return nil, &ThrottledError{RetryAfter: lastRetryAfter, Attempts: attempt}
			}

			if e.logger != nil {
				e.logger.Infof("Upstream throttled (attempt %d/%d), waiting %s before retry (correlation %s)",
					attempt, maxAttempts, retryAfter, correlationID)
			}
			if err := e.sleep(ctx, retryAfter); err != nil {
				return nil, err
			}

		case resp.StatusCode == http.StatusUnauthorized:
			e.logBody(resp, correlationID)

			if refreshed {
				// The refreshed token was rejected too; the grant is gone
				if _, err := e.store.MarkConnectionRefreshFailed(conn.ID); err != nil && e.logger != nil {
					e.logger.Errorf("Failed to mark connection %s as refresh_failed: %v", conn.ID, err)
				}
				return nil, &AuthExpiredError{ConnectionID: conn.ID}
			}

			refreshed = true
			if _, err := e.tokens.ForceRefresh(ctx, conn); err != nil {
				return nil, err
			}
			// Retry with the new token without consuming a throttle attempt
			attempt--

		case resp.StatusCode >= 500:
			e.logBody(resp, correlationID)
			return nil, &UpstreamUnavailableError{StatusCode: resp.StatusCode}

		default:
			e.logBody(resp, correlationID)
			return nil, &UpstreamRejectedError{StatusCode: resp.StatusCode, Path: fullURL}
		}
	}

	return nil, &ThrottledError{RetryAfter: lastRetryAfter, Attempts: maxAttempts}
}

// send builds and issues one physical HTTP request
func (e *Executor) send(ctx context.Context, method, fullURL, token, correlationID string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Correlation-ID", correlationID)

	return e.client.Do(req)
}

// retryDelay reads the Retry-After hint from a 429 response. Only a valid
// non-negative integer number of seconds is honored; anything else falls
// back to the configured default.
func (e *Executor) retryDelay(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header != "" {
		if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return e.config.DefaultRetryDelay()
}

// parseBody decodes a successful response body. An empty body yields an
// empty map.
func (e *Executor) parseBody(resp *http.Response) (map[string]any, error) {
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamUnavailableError{Cause: fmt.Errorf("failed to read response body: %w", err)}
	}
	if len(data) == 0 {
		return map[string]any{}, nil
	}

	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &UpstreamUnavailableError{Cause: fmt.Errorf("upstream returned malformed JSON: %w", err)}
	}

	switch v := parsed.(type) {
	case map[string]any:
		return v, nil
	case []any:
		// Some endpoints return a bare array
		return map[string]any{"results": v}, nil
	default:
		return map[string]any{}, nil
	}
}

// logBody logs an upstream error body at debug level. Bodies are never
// included in errors surfaced to the caller.
func (e *Executor) logBody(resp *http.Response, correlationID string) {
	defer func() { _ = resp.Body.Close() }()
	if e.logger == nil {
		return
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	e.logger.Debugf("Upstream HTTP %d (correlation %s): %s", resp.StatusCode, correlationID, string(body))
}

// drain discards and closes a response body so the connection can be reused
func (e *Executor) drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
