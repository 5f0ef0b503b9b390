/******************************************************************************
 * Copyright (c) 2025 Tenebris Technologies Inc.                              *
 * Please see LICENSE file for details.                                       *
 ******************************************************************************/

package db

import "time"

// ConnectionStatus indicates whether a connection is usable
type ConnectionStatus string

const (
	// ConnectionActive means the connection's tokens are believed to be valid
	ConnectionActive ConnectionStatus = "active"

	// ConnectionRefreshFailed means the last token refresh failed and the
	// connection requires re-authorization by an operator
	ConnectionRefreshFailed ConnectionStatus = "refresh_failed"
)

// ConnectionRecord holds the persisted state for one upstream connection.
// AccessToken and RefreshToken are encrypted at rest when an encryption key
// is configured.
type ConnectionRecord struct {
	ID           string           `json:"id"`
	Description  string           `json:"description,omitempty"`
	Region       string           `json:"region"`
	Division     string           `json:"division,omitempty"`
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
	ExpiresAt    time.Time        `json:"expires_at"`
	Status       ConnectionStatus `json:"status"`

	// RefreshFailures counts consecutive failed refresh attempts. Reset to
	// zero on any successful refresh.
	RefreshFailures int `json:"refresh_failures,omitempty"`

	// AlertSent records that an operator alert was raised for the current
	// failure streak, so repeated failures do not spam the operator.
	AlertSent bool `json:"alert_sent,omitempty"`

	LastRefreshAt time.Time `json:"last_refresh_at,omitempty"`
	LastUsedAt    time.Time `json:"last_used_at,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// APITokenMetadata holds metadata for a client-facing API token. The token
// itself is never stored; only its SHA-256 hash and a short prefix for
// identification.
type APITokenMetadata struct {
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsed    time.Time `json:"last_used"`
	Description string    `json:"description"`
	Prefix      string    `json:"prefix"`
}
