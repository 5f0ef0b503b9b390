/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see LICENSE file for details.                                       *
 ******************************************************************************/

package adapter

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ReauthorizationRequiredError indicates that the connection's refresh token
// has been exhausted or revoked. This is user-actionable and must not be
// retried by the system.
type ReauthorizationRequiredError struct {
	ConnectionID string `json:"connection_id"`
	Cause        error  `json:"-"`
}

// Error implements the error interface
func (e ReauthorizationRequiredError) Error() string {
	return fmt.Sprintf("authorization for connection %s has expired and could not be renewed. "+
		"Please re-authorize the connection before retrying.", e.ConnectionID)
}

// Unwrap returns the underlying error
func (e ReauthorizationRequiredError) Unwrap() error {
	return e.Cause
}

// ThrottledError indicates the retry budget was exhausted while the upstream
// was rate limiting. Callers may retry later.
type ThrottledError struct {
	RetryAfter time.Duration `json:"retry_after"`
	Attempts   int           `json:"attempts"`
}

// Error implements the error interface
func (e ThrottledError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("the upstream service is rate limiting requests. Please retry in about %s.",
			e.RetryAfter.Round(time.Second))
	}
	return "the upstream service is rate limiting requests. Please retry in about a minute."
}

// AuthExpiredError indicates the access token was rejected even after one
// forced refresh. For callers it means the same as ReauthorizationRequired.
type AuthExpiredError struct {
	ConnectionID string `json:"connection_id"`
}

// Error implements the error interface
func (e AuthExpiredError) Error() string {
	return fmt.Sprintf("the upstream service rejected the credentials for connection %s. "+
		"Please re-authorize the connection before retrying.", e.ConnectionID)
}

// UpstreamUnavailableError indicates a 5xx response or a transport-level
// failure. Transient; callers may retry the whole call.
type UpstreamUnavailableError struct {
	StatusCode int   `json:"status_code,omitempty"`
	Cause      error `json:"-"`
}

// Error implements the error interface
func (e UpstreamUnavailableError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("the upstream service is temporarily unavailable (HTTP %d). Please retry shortly.", e.StatusCode)
	}
	return "the upstream service could not be reached. Please retry shortly."
}

// Unwrap returns the underlying error
func (e UpstreamUnavailableError) Unwrap() error {
	return e.Cause
}

// UpstreamRejectedError indicates a non-2xx response other than 401/429/5xx.
// The message is derived from the status code and the request path category
// only; upstream response bodies never appear here.
type UpstreamRejectedError struct {
	StatusCode int    `json:"status_code"`
	Path       string `json:"path"`
}

// Error implements the error interface
func (e UpstreamRejectedError) Error() string {
	return rejectionMessage(e.StatusCode, e.Path)
}

// pathCategory maps a path substring to a human explanation for 403/404
// responses. Checked in order; first match wins.
type pathCategory struct {
	substring string
	label     string
}

var pathCategories = []pathCategory{
	{"financial", "financial ledger data"},
	{"salesinvoice", "sales invoice data"},
	{"crm", "relation (CRM) data"},
	{"logistics", "inventory and item data"},
	{"project", "project data"},
	{"hrm", "division data"},
}

// categorizePath returns a human label for the endpoint the request targeted
func categorizePath(path string) string {
	lower := strings.ToLower(path)
	for _, c := range pathCategories {
		if strings.Contains(lower, c.substring) {
			return c.label
		}
	}
	return "the requested data"
}

// rejectionMessage builds the fixed, user-safe message for a rejected call
func rejectionMessage(statusCode int, path string) string {
	switch statusCode {
	case 400:
		return "the upstream service rejected the request as invalid (HTTP 400). Check the filter and field selection."
	case 403:
		return fmt.Sprintf("access to %s was denied (HTTP 403). The connection's subscription or permissions likely do not include it.", categorizePath(path))
	case 404:
		return fmt.Sprintf("%s was not found (HTTP 404). The endpoint may not be available for this administration.", categorizePath(path))
	default:
		return fmt.Sprintf("the upstream service rejected the request (HTTP %d).", statusCode)
	}
}

// Helper functions for safe error type checking with wrapped errors

// AsReauthorizationRequired safely extracts a ReauthorizationRequiredError
// from an error chain
func AsReauthorizationRequired(err error) (*ReauthorizationRequiredError, bool) {
	var target *ReauthorizationRequiredError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// AsThrottled safely extracts a ThrottledError from an error chain
func AsThrottled(err error) (*ThrottledError, bool) {
	var target *ThrottledError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// AsAuthExpired safely extracts an AuthExpiredError from an error chain
func AsAuthExpired(err error) (*AuthExpiredError, bool) {
	var target *AuthExpiredError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// AsUpstreamUnavailable safely extracts an UpstreamUnavailableError from an
// error chain
func AsUpstreamUnavailable(err error) (*UpstreamUnavailableError, bool) {
	var target *UpstreamUnavailableError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// AsUpstreamRejected safely extracts an UpstreamRejectedError from an error
// chain
func AsUpstreamRejected(err error) (*UpstreamRejectedError, bool) {
	var target *UpstreamRejectedError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
