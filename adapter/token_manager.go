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
	"net/url"
	"strings"
	"time"

	"github.com/PivotLLM/LedgerMCP/db"
	"github.com/PivotLLM/LedgerMCP/global"
)

// TokenManager owns the access/refresh token lifecycle for connections.
// Refresh tokens are single-use: an out-of-band refresher (e.g. a scheduled
// job) may rotate a connection's tokens at any time, so the manager re-reads
// the persisted record immediately before refreshing rather than trusting
// the working copy. There is no lock; correctness relies entirely on that
// read-before-write pattern.
type TokenManager struct {
	store        db.Database
	config       *Config
	client       *http.Client
	logger       global.Logger
	safetyBuffer time.Duration
}

// TokenManagerOption configures a TokenManager
type TokenManagerOption func(*TokenManager)

// WithTokenHTTPClient sets the HTTP client used for refresh calls
func WithTokenHTTPClient(client *http.Client) TokenManagerOption {
	return func(m *TokenManager) {
		m.client = client
	}
}

// WithSafetyBuffer overrides the expiry safety buffer
func WithSafetyBuffer(buffer time.Duration) TokenManagerOption {
	return func(m *TokenManager) {
		m.safetyBuffer = buffer
	}
}

// NewTokenManager creates a TokenManager backed by the given store
func NewTokenManager(store db.Database, config *Config, logger global.Logger, options ...TokenManagerOption) *TokenManager {
	m := &TokenManager{
		store:        store,
		config:       config,
		logger:       logger,
		safetyBuffer: DefaultSafetyBuffer,
	}
	for _, option := range options {
		option(m)
	}
	if m.client == nil {
		m.client = &http.Client{Timeout: config.HTTPTimeout()}
	}
	return m
}

// needsRefresh reports whether an expiry is within the safety buffer.
// The boundary is inclusive: an expiry exactly at now+buffer needs refresh.
func (m *TokenManager) needsRefresh(expiresAt time.Time) bool {
	return !clockNow().Before(expiresAt.Add(-m.safetyBuffer))
}

// EnsureUsableToken returns an access token that is safe to use for at least
// the safety buffer, refreshing if necessary. The working copy is updated in
// place with whatever triple ends up current.
func (m *TokenManager) EnsureUsableToken(ctx context.Context, conn *db.ConnectionRecord) (string, error) {
	if conn.Status == db.ConnectionRefreshFailed {
		// Re-read in case the connection was re-authorized out-of-band
		if persisted, err := m.store.GetConnection(conn.ID); err == nil {
			*conn = *persisted
		}
		if conn.Status == db.ConnectionRefreshFailed {
			return "", &ReauthorizationRequiredError{ConnectionID: conn.ID}
		}
	}

	if !m.needsRefresh(conn.ExpiresAt) {
		return conn.AccessToken, nil
	}

	// The working copy is stale or about to expire. Consult the persisted
	// record first: a scheduled refresher may already have rotated the
	// tokens, and replaying its consumed refresh token would fail.
	persisted, err := m.store.GetConnection(conn.ID)
	if err != nil {
		if m.logger != nil {
			m.logger.Warningf("Could not re-read connection %s before refresh, using in-memory tokens: %v", conn.ID, err)
		}
		return m.refresh(ctx, conn)
	}

	*conn = *persisted
	if !m.needsRefresh(conn.ExpiresAt) {
		if m.logger != nil {
			m.logger.Debugf("Connection %s already refreshed out-of-band, adopting persisted tokens", conn.ID)
		}
		return conn.AccessToken, nil
	}

	return m.refresh(ctx, conn)
}

// ForceRefresh is used after an upstream 401: the current access token was
// rejected regardless of its recorded expiry. If the persisted record
// already carries a different access token, that rotation is adopted
// instead of burning another refresh token.
func (m *TokenManager) ForceRefresh(ctx context.Context, conn *db.ConnectionRecord) (string, error) {
	rejected := conn.AccessToken

	persisted, err := m.store.GetConnection(conn.ID)
	if err == nil {
		*conn = *persisted
		if conn.AccessToken != "" && conn.AccessToken != rejected {
			if m.logger != nil {
				m.logger.Debugf("Connection %s rotated out-of-band after 401, adopting persisted tokens", conn.ID)
			}
			return conn.AccessToken, nil
		}
	} else if m.logger != nil {
		m.logger.Warningf("Could not re-read connection %s after 401: %v", conn.ID, err)
	}

	return m.refresh(ctx, conn)
}

// refresh exchanges the connection's refresh token for a new triple,
// persists all three together, and updates the working copy. On failure the
// connection is marked refresh_failed and ReauthorizationRequired is
// returned.
func (m *TokenManager) refresh(ctx context.Context, conn *db.ConnectionRecord) (string, error) {
	region, err := m.config.RegionFor(conn.Region)
	if err != nil {
		return "", fmt.Errorf("connection %s: %w", conn.ID, err)
	}

	tokenResp, err := m.requestRefresh(ctx, region.TokenURL, conn.RefreshToken)
	if err != nil {
		m.recordRefreshFailure(conn, err)
		return "", &ReauthorizationRequiredError{ConnectionID: conn.ID, Cause: err}
	}

	newRefresh := tokenResp.RefreshToken
	if newRefresh == "" {
		// Some authorization servers omit the refresh token when the old
		// one remains valid
		newRefresh = conn.RefreshToken
	}
	expiresAt := clockNow().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)

	if err := m.store.UpdateConnectionTokens(conn.ID, tokenResp.AccessToken, newRefresh, expiresAt); err != nil {
		if m.logger != nil {
			m.logger.Errorf("Refreshed tokens for connection %s but failed to persist them: %v", conn.ID, err)
		}
		return "", fmt.Errorf("failed to persist refreshed tokens for connection %s: %w", conn.ID, err)
	}

	conn.AccessToken = tokenResp.AccessToken
	conn.RefreshToken = newRefresh
	conn.ExpiresAt = expiresAt
	conn.Status = db.ConnectionActive

	if m.logger != nil {
		m.logger.Infof("Refreshed tokens for connection %s (expires %s)", conn.ID, expiresAt.Format(time.RFC3339))
	}
	return conn.AccessToken, nil
}

// recordRefreshFailure marks the connection refresh_failed and raises a
// single operator alert per failure streak
func (m *TokenManager) recordRefreshFailure(conn *db.ConnectionRecord, cause error) {
	conn.Status = db.ConnectionRefreshFailed

	alertNeeded, err := m.store.MarkConnectionRefreshFailed(conn.ID)
	if err != nil {
		if m.logger != nil {
			m.logger.Errorf("Failed to mark connection %s as refresh_failed: %v", conn.ID, err)
		}
		return
	}

	if m.logger != nil {
		if alertNeeded {
			m.logger.Noticef("ALERT: connection %s requires re-authorization: %v", conn.ID, cause)
		} else {
			m.logger.Warningf("Token refresh failed again for connection %s: %v", conn.ID, cause)
		}
	}
}

// requestRefresh performs the form-encoded refresh POST against the region's
// token endpoint
func (m *TokenManager) requestRefresh(ctx context.Context, tokenURL, refreshToken string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("no refresh token available")
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", m.config.ClientID)
	if m.config.ClientSecret != "" {
		form.Set("client_secret", m.config.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read refresh response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		// Log the body for diagnosis but never propagate it
		if m.logger != nil {
			m.logger.Debugf("Token endpoint returned HTTP %d: %s", resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("token endpoint returned HTTP %d", resp.StatusCode)
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse refresh response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint returned no access token")
	}

	return &tokenResp, nil
}
