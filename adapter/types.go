/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see LICENSE file for details.                                       *
 ******************************************************************************/

package adapter

import (
	"net/url"
	"time"
)

// RequestSpec describes one logical upstream query before pagination
type RequestSpec struct {
	// Method defaults to GET when empty
	Method string

	// Path is the endpoint path relative to the region base URL, with the
	// division already substituted (e.g. "/api/v1/123456/financial/GLAccounts")
	Path string

	// Query carries $filter, $select, $top and friends
	Query url.Values
}

// URL builds the absolute URL for the spec against a region base URL
func (s RequestSpec) URL(baseURL string) string {
	u := baseURL + s.Path
	if len(s.Query) > 0 {
		u += "?" + s.Query.Encode()
	}
	return u
}

// TokenResponse is the authorization server's reply to a refresh request
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// Division is read-only reference data describing one administration under a
// connection
type Division struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Default     bool   `json:"default"`
}

// PageResult accumulates records across a pagination run
type PageResult struct {
	// Records in arrival order across all fetched pages
	Records []any `json:"records"`

	// Pages is the number of pages fetched
	Pages int `json:"pages"`

	// Partial is true when the run stopped before the upstream signalled
	// the final page (error, cancellation, or a repeating cursor)
	Partial bool `json:"partial"`
}

// clockNow is swapped in tests to control the safety-buffer boundary
var clockNow = time.Now
