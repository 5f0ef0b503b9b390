/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see LICENSE file for details.                                       *
 ******************************************************************************/

package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/PivotLLM/LedgerMCP/db"
	"github.com/PivotLLM/LedgerMCP/global"
)

// AuthMiddleware validates bearer API tokens against the local database.
type AuthMiddleware struct {
	database    db.Database
	logger      global.Logger
	requireAuth bool
	skipPaths   map[string]bool
}

// AuthOption defines a function type for configuring the AuthMiddleware.
type AuthOption func(*AuthMiddleware)

func WithAuthLogger(logger global.Logger) AuthOption {
	return func(a *AuthMiddleware) {
		a.logger = logger
	}
}

func WithRequireAuth(require bool) AuthOption {
	return func(a *AuthMiddleware) {
		a.requireAuth = require
	}
}

// NewAuthMiddleware creates middleware that validates tokens stored in the database.
func NewAuthMiddleware(database db.Database, options ...AuthOption) *AuthMiddleware {
	a := &AuthMiddleware{
		database:    database,
		requireAuth: true,
		skipPaths: map[string]bool{
			"/health":       true,
			"/metrics":      true,
			"/status":       true,
			"/capabilities": true,
		},
	}

	for _, opt := range options {
		opt(a)
	}

	return a
}

// Middleware returns an HTTP handler that enforces bearer token authentication.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		if !a.requireAuth {
			next.ServeHTTP(w, r)
			return
		}

		token := extractBearerToken(r)
		if token == "" {
			a.logf("Missing bearer token from %s for %s", r.RemoteAddr, r.URL.Path)
			a.writeErrorResponse(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}

		valid, _, err := a.database.ValidateAPIToken(token)
		if err != nil || !valid {
			a.logf("Invalid token from %s for %s", r.RemoteAddr, r.URL.Path)
			a.writeErrorResponse(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), global.ClientContextKey, r.RemoteAddr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *AuthMiddleware) logf(format string, args ...any) {
	if a.logger != nil {
		a.logger.Infof(format, args...)
	}
}

func (a *AuthMiddleware) writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// extractBearerToken pulls the token from the Authorization header.
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
